// Command gamehostctl manages games against the configured registry and the
// local Docker engine without going through the HTTP API.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/melih/gamehost/internal/bootstrap"
	"github.com/melih/gamehost/internal/config"
	"github.com/melih/gamehost/internal/observability"
	"github.com/urfave/cli/v3"
)

func main() {
	_ = godotenv.Load()

	cmd := &cli.Command{
		Name:  "gamehostctl",
		Usage: "register, start and stop containerized games",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Usage:   "path to a TOML config file",
				Sources: cli.EnvVars(config.EnvConfigPath),
			},
			&cli.BoolFlag{Name: "debug", Usage: "enable debug output in the logs"},
		},
		Commands: []*cli.Command{
			listCommand,
			addCommand,
			startCommand,
			stopCommand,
			statusCommand,
			rmCommand,
			importCommand,
			buildCommand,
		},
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := cmd.Run(ctx, os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "gamehostctl:", err)
		os.Exit(1)
	}
}

// withApp loads config, boots the controller and closes it after fn.
func withApp(ctx context.Context, cmd *cli.Command, fn func(*bootstrap.App) error) error {
	cfg, err := config.Load(cmd.String("config"))
	if err != nil {
		return err
	}
	level := cfg.Log.Level
	if cmd.Bool("debug") {
		level = "debug"
	} else if level == "" || level == "info" {
		level = "warn"
	}
	logger := observability.InitLogger("gamehostctl", level, true)

	app, err := bootstrap.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := app.Close(context.WithoutCancel(ctx)); err != nil {
			logger.Warn().Err(err).Msg("failed to close registry")
		}
	}()
	return fn(app)
}
