// Package bootstrap assembles the controller and its adapters from config.
// Both binaries go through New so they behave identically.
package bootstrap

import (
	"context"
	"errors"
	"fmt"

	"github.com/melih/gamehost/internal/adapters/builder"
	"github.com/melih/gamehost/internal/adapters/docker"
	"github.com/melih/gamehost/internal/adapters/registry"
	"github.com/melih/gamehost/internal/config"
	"github.com/melih/gamehost/internal/core/ports"
	"github.com/melih/gamehost/internal/core/services"
	"github.com/rs/zerolog"
)

type App struct {
	Config      config.Config
	Logger      zerolog.Logger
	Runtime     *docker.Adapter
	Registry    ports.GameRegistry
	Controller  *services.Controller
	Provisioner *services.Provisioner

	closers []func(context.Context) error
}

// New connects the registry and the Docker engine, then syncs the working
// set so statuses reflect the running containers.
func New(ctx context.Context, cfg config.Config, logger zerolog.Logger) (*App, error) {
	reg, closeRegistry, err := OpenRegistry(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	app := &App{Config: cfg, Logger: logger, Registry: reg, closers: []func(context.Context) error{closeRegistry}}

	runtime, err := docker.NewAdapter(logger)
	if err != nil {
		_ = app.Close(ctx)
		return nil, err
	}
	app.Runtime = runtime

	build, err := builder.NewBuilderAdapter(logger)
	if err != nil {
		_ = app.Close(ctx)
		return nil, err
	}

	app.Controller = services.NewController(runtime, reg, ControllerOptions(cfg), logger)
	app.Provisioner = services.NewProvisioner(build, app.Controller, cfg.GamesRoot, cfg.EntryMarker, logger)

	if err := app.Controller.Sync(ctx); err != nil {
		_ = app.Close(ctx)
		return nil, fmt.Errorf("failed to sync games: %w", err)
	}
	return app, nil
}

func (a *App) Close(ctx context.Context) error {
	var errs []error
	for _, c := range a.closers {
		if err := c(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

// OpenRegistry returns the configured GameRegistry and its closer.
func OpenRegistry(ctx context.Context, cfg config.Config, logger zerolog.Logger) (ports.GameRegistry, func(context.Context) error, error) {
	r := cfg.Registry
	switch r.Backend {
	case config.BackendMongo:
		store, closeFn, err := registry.ConnectMongo(ctx, registry.MongoConfig{
			URI:                r.MongoURI,
			Database:           r.MongoDatabase,
			Collection:         r.MongoCollection,
			CountersCollection: r.MongoCounters,
		}, logger)
		if err != nil {
			return nil, nil, err
		}
		return store, closeFn, nil
	case config.BackendRedis:
		store, closeFn, err := registry.ConnectRedis(ctx, registry.RedisConfig{
			Addr:     r.RedisAddr,
			Password: r.RedisPassword,
			DB:       r.RedisDB,
			Prefix:   r.RedisPrefix,
		}, logger)
		if err != nil {
			return nil, nil, err
		}
		return store, closeFn, nil
	case config.BackendMemory:
		logger.Warn().Msg("using in-memory registry, games are lost on exit")
		return registry.NewMemory(), func(context.Context) error { return nil }, nil
	default:
		return nil, nil, fmt.Errorf("unknown registry backend %q", r.Backend)
	}
}

func ControllerOptions(cfg config.Config) services.Options {
	return services.Options{
		BasePort:             cfg.BasePort,
		ContainerPort:        cfg.ContainerPort,
		MountTarget:          cfg.MountTarget,
		DefaultImage:         cfg.DefaultImage,
		DefaultContainerName: cfg.DefaultContainerName,
		Env:                  cfg.Env,
		RuntimeTimeout:       cfg.RuntimeTimeout,
		MaxPortRetries:       cfg.MaxPortRetries,
		MaxNameRetries:       cfg.MaxNameRetries,
	}
}
