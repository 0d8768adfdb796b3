package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/melih/gamehost/internal/adapters/http"
	"github.com/melih/gamehost/internal/bootstrap"
	"github.com/melih/gamehost/internal/config"
	"github.com/melih/gamehost/internal/observability"
)

func main() {
	configPath := flag.String("config", os.Getenv(config.EnvConfigPath), "path to a TOML config file")
	flag.Parse()

	// .env is optional; a missing file is not an error.
	envErr := godotenv.Load()

	// 1. Configuration and logging
	cfg, err := config.Load(*configPath)
	if err != nil {
		bootLogger := observability.InitLogger("gamehost-api", "info", true)
		bootLogger.Fatal().Err(err).Msg("failed to load config")
	}
	logger := observability.InitLogger("gamehost-api", cfg.Log.Level, cfg.Log.Console)
	if envErr != nil && !os.IsNotExist(envErr) {
		logger.Warn().Err(envErr).Msg("failed to load .env file")
	}
	observability.RegisterMetrics()

	// 2. Adapters and the lifecycle controller
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	bootCtx, cancelBoot := context.WithTimeout(ctx, 30*time.Second)
	app, err := bootstrap.New(bootCtx, cfg, logger)
	cancelBoot()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize gamehost")
	}

	// 3. HTTP handlers, Docker adapter doubles as the log streamer
	gameHandler := http.NewGameHandler(app.Controller, app.Provisioner, app.Runtime, cfg.EntryMarker)
	proxyHandler := http.NewProxyHandler(app.Controller, cfg.ProxyDomain)
	server := http.NewApp(gameHandler, proxyHandler, logger)

	// 4. Start Server
	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", cfg.ListenAddr).Int("games", len(app.Controller.List())).Msg("server starting")
		errCh <- server.Listen(cfg.ListenAddr)
	}()

	// 5. Graceful Shutdown
	select {
	case <-ctx.Done():
		logger.Info().Msg("shutting down")
	case err := <-errCh:
		if err != nil {
			logger.Error().Err(err).Msg("server failed")
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.ShutdownWithContext(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("http shutdown failed")
	}
	if err := app.Close(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("failed to close registry")
	}
	logger.Info().Msg("server stopped")
}
