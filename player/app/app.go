package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/liuran001/MusicPlayer-Go/player"
	"github.com/liuran001/MusicPlayer-Go/player/config"
	"github.com/liuran001/MusicPlayer-Go/player/console"
	"github.com/liuran001/MusicPlayer-Go/player/gdstudio"
	logpkg "github.com/liuran001/MusicPlayer-Go/player/logger"
	"github.com/liuran001/MusicPlayer-Go/player/platform"
	"github.com/liuran001/MusicPlayer-Go/player/session"
	"github.com/liuran001/MusicPlayer-Go/player/storage"
	"github.com/liuran001/MusicPlayer-Go/player/worker"
)

// App wires all application dependencies.
type App struct {
	Config   *config.Config
	Logger   *logpkg.Logger
	Store    player.Store
	Sources  *platform.Sources
	Resolver *gdstudio.Client
	Session  *session.Session
	Pool     *worker.Pool
	Console  *console.Console
	Build    BuildInfo

	// In and Out are the console streams. They default to stdin and stdout.
	In  io.Reader
	Out io.Writer

	done chan struct{}
	err  error
}

// BuildInfo provides build-time metadata.
type BuildInfo struct {
	RuntimeVer string
	BinVersion string
	CommitSHA  string
	BuildTime  string
	BuildArch  string
}

// New builds the application container.
func New(ctx context.Context, configPath string, build BuildInfo) (*App, error) {
	conf, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	log, err := logpkg.New(logpkg.Options{
		Level:     conf.GetString("LogLevel"),
		Format:    conf.GetString("LogFormat"),
		AddSource: conf.GetBool("LogSource"),
		Dir:       conf.GetString("LogDir"),
		// stdout belongs to the console.
		Output: os.Stderr,
	})
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	store, err := openStore(conf, log)
	if err != nil {
		_ = log.Close()
		return nil, fmt.Errorf("init store: %w", err)
	}
	adapter := storage.NewAdapter(store, conf.GetString("KeyPrefix"), log)

	sources := platform.NewSources()
	sources.Apply(conf)

	defaultSource := strings.TrimSpace(conf.GetString("DefaultSource"))
	if resolved, ok := sources.Resolve(defaultSource); ok {
		defaultSource = resolved
	} else {
		log.Warn("unknown default source, falling back", "source", defaultSource, "fallback", platform.DefaultSource)
		defaultSource = platform.DefaultSource
	}

	resolver := gdstudio.New(gdstudio.Options{
		BaseURL:       conf.GetString("APIBaseURL"),
		Timeout:       time.Duration(conf.GetInt("RequestTimeoutSec")) * time.Second,
		RetryMax:      conf.GetInt("RetryMax"),
		RatePerSecond: conf.GetFloat64("RateLimitPerSecond"),
		Burst:         conf.GetInt("RateLimitBurst"),
		Logger:        log,
	})

	sess := session.New(resolver, adapter, session.Options{
		DefaultSource: defaultSource,
		PageSize:      conf.GetInt("SearchPageSize"),
		Bitrate:       conf.GetInt("StreamBitrate"),
		CoverSize:     conf.GetInt("CoverSize"),
		Logger:        log,
	})

	pool := worker.New(conf.GetInt("WorkerPoolSize"), log)

	return &App{
		Config:   conf,
		Logger:   log,
		Store:    store,
		Sources:  sources,
		Resolver: resolver,
		Session:  sess,
		Pool:     pool,
		Build:    build,
		In:       os.Stdin,
		Out:      os.Stdout,
		done:     make(chan struct{}),
	}, nil
}

func openStore(conf *config.Config, log *logpkg.Logger) (player.Store, error) {
	backend := strings.ToLower(strings.TrimSpace(conf.GetString("StoreBackend")))
	switch backend {
	case "", "sqlite":
		path := strings.TrimSpace(conf.GetString("Database"))
		if path == "" {
			path = "data/session.db"
		}
		gormLogger := logpkg.NewGormLogger(log.Slog(), logpkg.GormLevel(conf.GetString("LogLevel")))
		store, err := storage.NewSQLiteStore(path, gormLogger)
		if err != nil {
			return nil, err
		}
		entries, err := store.Count(context.Background())
		if err != nil {
			log.Warn("failed to count stored entries", "error", err)
		}
		log.Info("using sqlite store", "path", path, "entries", entries)
		return store, nil
	case "redis":
		addr := conf.GetString("RedisAddr")
		store, err := storage.NewRedisStore(addr, conf.GetString("RedisPassword"), conf.GetInt("RedisDB"))
		if err != nil {
			return nil, err
		}
		log.Info("using redis store", "addr", addr)
		return store, nil
	case "memory":
		log.Warn("using in-memory store, session state will not survive restarts")
		return storage.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", backend)
	}
}

// Start launches the console. Done is closed when it exits.
func (a *App) Start(ctx context.Context) error {
	if a.Console != nil {
		return errors.New("app already started")
	}
	a.Console = console.New(a.Session, a.Sources, a.Pool, a.Out, a.Logger)

	a.Logger.Info("music player started",
		"version", a.Build.BinVersion,
		"commit", a.Build.CommitSHA,
		"runtime", a.Build.RuntimeVer,
		"arch", a.Build.BuildArch,
		"workers", a.Pool.Size(),
	)

	go func() {
		defer close(a.done)
		if err := a.Console.Run(ctx, a.In); err != nil && !errors.Is(err, context.Canceled) {
			a.Logger.Error("console stopped", "error", err)
			a.err = err
		}
	}()
	return nil
}

// Done is closed once the console has exited.
func (a *App) Done() <-chan struct{} {
	return a.done
}

// Err reports why the console stopped, if it failed. Valid after Done.
func (a *App) Err() error {
	return a.err
}

// Shutdown drains background work and releases resources.
func (a *App) Shutdown(ctx context.Context) error {
	var firstErr error

	if a.Pool != nil {
		if err := a.Pool.Shutdown(ctx); err != nil {
			a.Pool.StopNow()
			if firstErr == nil {
				firstErr = fmt.Errorf("shutdown worker pool: %w", err)
			}
		}
	}

	if a.Store != nil {
		if err := a.Store.Close(); err != nil {
			if a.Logger != nil {
				a.Logger.Error("failed to close store", "error", err)
			}
			if firstErr == nil {
				firstErr = fmt.Errorf("close store: %w", err)
			}
		}
	}

	if a.Logger != nil {
		if err := a.Logger.Close(); err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("close logger: %w", err)
			}
		}
	}

	return firstErr
}
