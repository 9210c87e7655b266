package cli

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/roach88/formforge/internal/builder"
	"github.com/roach88/formforge/internal/config"
	"github.com/roach88/formforge/internal/metrics"
	"github.com/roach88/formforge/internal/registry"
	"github.com/roach88/formforge/internal/session"
	"github.com/roach88/formforge/internal/store"
)

// app is the wiring shared by every command that touches storage.
type app struct {
	cfg     *config.Config
	logger  *slog.Logger
	store   *store.Store
	metrics *metrics.Metrics
	builder *builder.Builder
	closers []func() error
}

// loadConfig reads --config, or formforge.yaml when it exists.
func loadConfig(opts *RootOptions) (*config.Config, error) {
	if opts.Config != "" {
		return config.Load(opts.Config, true)
	}
	return config.Load(defaultConfigPath, false)
}

// openApp loads the configuration and opens the store, session store and
// registry. Failures are command errors (exit code 2).
func openApp(opts *RootOptions, logOut io.Writer) (*app, error) {
	cfg, err := loadConfig(opts)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load config", err)
	}
	logger := cfg.Log.NewLogger(logOut, opts.Verbose)

	reg, err := loadRegistry(cfg.Registry.Files)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load type registry", err)
	}

	a := &app{cfg: cfg, logger: logger, metrics: metrics.New()}

	sessions, closeSessions, err := openSessions(cfg)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open session store", err)
	}
	if closeSessions != nil {
		a.closers = append(a.closers, closeSessions)
	}

	logger.Debug("opening database", "driver", cfg.Database.Driver, "dsn", cfg.Database.DSN)
	st, err := store.Open(cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		a.Close()
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}
	a.store = st
	a.closers = append(a.closers, st.Close)

	a.builder = builder.New(st,
		builder.WithSessions(sessions),
		builder.WithRegistry(reg),
		builder.WithMetrics(a.metrics),
		builder.WithLogger(logger),
	)
	return a, nil
}

// Close releases everything openApp opened, last opened first.
func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

func loadRegistry(files []string) (*registry.Registry, error) {
	sources := make([]registry.Source, 0, len(files))
	for _, path := range files {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
		sources = append(sources, registry.Source{Name: path, Data: data})
	}
	return registry.Load(sources...)
}

// openSessions builds the configured session store. The returned close
// function is nil when the store holds no resources.
func openSessions(cfg *config.Config) (session.Store, func() error, error) {
	switch cfg.Session.Backend {
	case config.SessionMemory:
		return session.NewMemoryStore(), nil, nil
	case config.SessionFile:
		fs, err := session.NewFileStore(cfg.Session.Dir)
		if err != nil {
			return nil, nil, err
		}
		return fs, nil, nil
	case config.SessionRedis:
		rs, err := session.NewRedisStore(session.RedisConfig{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Prefix:   cfg.Redis.Prefix,
			TTL:      cfg.Session.TTL,
		})
		if err != nil {
			return nil, nil, err
		}
		return rs, rs.Close, nil
	}
	return nil, nil, fmt.Errorf("unsupported session backend %q", cfg.Session.Backend)
}
