package platform

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

type stubSettings map[string]map[string]string

func (s stubSettings) SourceNames() []string {
	names := make([]string, 0, len(s))
	for name := range s {
		names = append(names, name)
	}
	return names
}

func (s stubSettings) GetSourceBool(source, key string, def bool) bool {
	v, ok := s[source][key]
	if !ok {
		return def
	}
	return v == "true"
}

func (s stubSettings) GetSourceList(source, key string) []string {
	if v, ok := s[source][key]; ok && v != "" {
		return []string{v}
	}
	return nil
}

func (s stubSettings) GetSourceString(source, key string) string {
	return s[source][key]
}

func TestSourcesResolve(t *testing.T) {
	sources := NewSources()

	cases := map[string]string{
		"netease":    "netease",
		" 163 ":      "netease",
		"QQ":         "tencent",
		"@kw":        "kuwo",
		"ytmusic":    "ytmusic",
		"AppleMusic": "apple",
	}
	for input, want := range cases {
		got, ok := sources.Resolve(input)
		assert.True(t, ok, input)
		assert.Equal(t, want, got, input)
	}

	_, ok := sources.Resolve("bandcamp")
	assert.False(t, ok)
	_, ok = sources.Resolve("  ")
	assert.False(t, ok)

	sources.AllowUnknown = true
	got, ok := sources.Resolve("Bandcamp")
	assert.True(t, ok)
	assert.Equal(t, "bandcamp", got)
}

func TestSourcesApplySettings(t *testing.T) {
	sources := NewSources()
	sources.Apply(stubSettings{
		"tidal":   {"enabled": "false"},
		"netease": {"aliases": "cloud", "display_name": "NCM"},
		"custom":  {"display_name": "Custom"},
	})

	_, ok := sources.Resolve("tidal")
	assert.False(t, ok)

	got, ok := sources.Resolve("cloud")
	assert.True(t, ok)
	assert.Equal(t, "netease", got)

	got, ok = sources.Resolve("163")
	assert.True(t, ok)
	assert.Equal(t, "netease", got)

	meta, ok := sources.Meta("netease")
	assert.True(t, ok)
	assert.Equal(t, "NCM", meta.DisplayName)

	got, ok = sources.Resolve("custom")
	assert.True(t, ok)
	assert.Equal(t, "custom", got)

	for _, meta := range sources.List() {
		assert.NotEqual(t, "tidal", meta.Name)
	}
}

func TestSourcesAliasCannotShadowSource(t *testing.T) {
	sources := NewSources()
	sources.Register(Meta{Name: "kugou", Aliases: []string{"kuwo", "qq"}})

	got, _ := sources.Resolve("kuwo")
	assert.Equal(t, "kuwo", got)
	got, _ = sources.Resolve("qq")
	assert.Equal(t, "tencent", got)
}

func TestSourcesMetaFallback(t *testing.T) {
	meta, ok := NewSources().Meta("Unknown")
	assert.False(t, ok)
	assert.Equal(t, "unknown", meta.Name)
}

func TestPlatformErrorWrapping(t *testing.T) {
	err := fmt.Errorf("play: %w", NewUnavailableError("kuwo", "url", "42", "empty url"))

	assert.True(t, errors.Is(err, ErrUnavailable))
	assert.False(t, errors.Is(err, ErrNotFound))

	var pErr *PlatformError
	assert.True(t, errors.As(err, &pErr))
	assert.Equal(t, "kuwo", pErr.Platform)
	assert.Equal(t, "kuwo: url 42: platform: content unavailable: empty url", pErr.Error())

	assert.True(t, IsRetryable(NewRateLimitedError("netease", "search")))
	assert.True(t, IsRetryable(ErrCircuitOpen))
	assert.False(t, IsRetryable(NewNotFoundError("netease", "url", "1")))
	assert.Equal(t, "migu: search: platform: feature not supported", NewUnsupportedError("migu", "search").Error())
}
