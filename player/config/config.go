package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"gopkg.in/ini.v1"
)

// SourceConfig stores per-provider settings from a [source.<name>] section.
type SourceConfig map[string]string

// Config wraps viper and provides typed accessors.
type Config struct {
	v       *viper.Viper
	sources map[string]SourceConfig
}

// Load reads the config file at path and prepares defaults. A missing file is
// not an error: defaults and environment variables still apply.
func Load(path string) (*Config, error) {
	if err := loadDotEnv(filepath.Join(filepath.Dir(path), ".env")); err != nil {
		return nil, fmt.Errorf("read .env: %w", err)
	}

	v := viper.New()
	v.SetEnvPrefix("MUSICPLAYER")
	v.AutomaticEnv()
	setDefaults(v)

	c := &Config{
		v:       v,
		sources: make(map[string]SourceConfig),
	}

	if strings.TrimSpace(path) == "" {
		return c, nil
	}
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return c, nil
	}

	if strings.EqualFold(filepath.Ext(path), ".ini") {
		cfg, err := loadINI(v, path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		loadSources(cfg, c)
		return c, nil
	}

	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return c, nil
}

func loadDotEnv(path string) error {
	if _, err := os.Stat(path); err != nil {
		return nil
	}
	return godotenv.Load(path)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("APIBaseURL", "https://music-api.gdstudio.xyz/api.php")
	v.SetDefault("DefaultSource", "netease")
	v.SetDefault("SearchPageSize", 30)
	v.SetDefault("StreamBitrate", 320)
	v.SetDefault("CoverSize", 500)
	v.SetDefault("RequestTimeoutSec", 0)
	v.SetDefault("RetryMax", 0)
	v.SetDefault("RateLimitPerSecond", 5.0)
	v.SetDefault("RateLimitBurst", 5)
	v.SetDefault("StoreBackend", "sqlite")
	v.SetDefault("Database", "data/session.db")
	v.SetDefault("RedisAddr", "localhost:6379")
	v.SetDefault("RedisPassword", "")
	v.SetDefault("RedisDB", 0)
	v.SetDefault("KeyPrefix", "")
	v.SetDefault("WorkerPoolSize", 2)
	v.SetDefault("LogLevel", "info")
	v.SetDefault("LogFormat", "text")
	v.SetDefault("LogSource", false)
	v.SetDefault("LogDir", "./log")
}

// GetString returns a string value.
func (c *Config) GetString(key string) string {
	return c.v.GetString(key)
}

// GetInt returns an int value.
func (c *Config) GetInt(key string) int {
	return c.v.GetInt(key)
}

// GetFloat64 returns a float64 value.
func (c *Config) GetFloat64(key string) float64 {
	return c.v.GetFloat64(key)
}

// GetBool returns a bool value.
func (c *Config) GetBool(key string) bool {
	return c.v.GetBool(key)
}

// Set overrides a value at runtime. Used by tests and the console.
func (c *Config) Set(key string, value any) {
	c.v.Set(key, value)
}

// GetSourceConfig returns the [source.<name>] section, if present.
func (c *Config) GetSourceConfig(name string) (SourceConfig, bool) {
	cfg, ok := c.sources[strings.ToLower(name)]
	return cfg, ok
}

// SourceNames returns the configured source section names, sorted.
func (c *Config) SourceNames() []string {
	if len(c.sources) == 0 {
		return nil
	}
	names := make([]string, 0, len(c.sources))
	for name := range c.sources {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// GetSourceString returns a value from a source section or "".
func (c *Config) GetSourceString(source, key string) string {
	cfg, ok := c.GetSourceConfig(source)
	if !ok {
		return ""
	}
	return cfg[key]
}

// GetSourceBool reports a boolean source setting. Missing keys return def.
func (c *Config) GetSourceBool(source, key string, def bool) bool {
	cfg, ok := c.GetSourceConfig(source)
	if !ok {
		return def
	}
	val, ok := cfg[key]
	if !ok {
		return def
	}
	val = strings.TrimSpace(val)
	return strings.EqualFold(val, "true") || val == "1" || strings.EqualFold(val, "yes")
}

// GetSourceList splits a comma separated source setting.
func (c *Config) GetSourceList(source, key string) []string {
	raw := c.GetSourceString(source, key)
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func loadINI(v *viper.Viper, path string) (*ini.File, error) {
	cfg, err := ini.Load(path)
	if err != nil {
		return nil, err
	}

	for _, key := range cfg.Section("").Keys() {
		v.Set(key.Name(), key.Value())
	}

	return cfg, nil
}

func loadSources(cfg *ini.File, c *Config) {
	const sourcePrefix = "source."

	for _, section := range cfg.Sections() {
		name := section.Name()
		if !strings.HasPrefix(name, sourcePrefix) {
			continue
		}
		sourceName := strings.ToLower(strings.TrimPrefix(name, sourcePrefix))
		if sourceName == "" {
			continue
		}
		sourceCfg := make(SourceConfig)
		for _, key := range section.Keys() {
			sourceCfg[key.Name()] = key.Value()
		}
		c.sources[sourceName] = sourceCfg
	}
}
