package cli

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/roach88/sitecms/internal/auth"
	"github.com/roach88/sitecms/internal/config"
	"github.com/roach88/sitecms/internal/engine"
	"github.com/roach88/sitecms/internal/resolve"
	"github.com/roach88/sitecms/internal/store"
)

// app is the configured store and engine a command works with.
type app struct {
	cfg      config.Config
	store    *store.Store
	engine   *engine.Engine
	resolver *resolve.Resolver
	logger   *slog.Logger
	identity auth.Identity
}

// openApp loads configuration, opens the database and resolves the acting
// identity. Failures are command errors.
func openApp(ctx context.Context, opts *RootOptions) (*app, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load config", err)
	}
	if opts.Database != "" {
		cfg.Database = opts.Database
	}
	logFormat := cfg.LogFormat
	if opts.LogFormat != "" {
		logFormat = opts.LogFormat
	}
	logger := opts.newLogger(logFormat)

	logger.Debug("opening database", "path", cfg.Database)
	st, err := store.Open(cfg.Database)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}

	a := &app{
		cfg:    cfg,
		store:  st,
		engine: engine.New(st, engine.WithLogger(logger), engine.WithRevisionLimit(cfg.RevisionLimit)),
		logger: logger,
	}
	a.resolver = resolve.New(st, resolve.WithRegistry(a.engine.Registry()), resolve.WithLogger(logger))

	a.identity = auth.System()
	if opts.As != "" {
		a.identity, err = auth.NewResolver(st).Resolve(ctx, opts.As)
		if err != nil {
			st.Close()
			return nil, WrapExitError(ExitCommandError, fmt.Sprintf("failed to resolve user %q", opts.As), err)
		}
	}
	return a, nil
}

func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		a.logger.Error("error closing database", "error", err)
	}
}
