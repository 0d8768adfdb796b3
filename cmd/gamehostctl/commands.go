package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/melih/gamehost/internal/bootstrap"
	"github.com/melih/gamehost/internal/core/domain"
	"github.com/melih/gamehost/internal/core/services"
	"github.com/urfave/cli/v3"
)

var nameFlag = &cli.StringFlag{
	Name:  "name",
	Usage: "container name, defaults to the directory name",
}

var imageFlag = &cli.StringFlag{
	Name:  "image",
	Usage: "image to run, defaults to the configured image",
}

var listCommand = &cli.Command{
	Name:  "list",
	Usage: "list registered games",
	Action: func(ctx context.Context, cmd *cli.Command) error {
		return withApp(ctx, cmd, func(app *bootstrap.App) error {
			printGames(app.Controller.List()...)
			return nil
		})
	},
}

var addCommand = &cli.Command{
	Name:      "add",
	Usage:     "register a game directory",
	ArgsUsage: "<directory>",
	Flags:     []cli.Flag{nameFlag, imageFlag},
	Action: func(ctx context.Context, cmd *cli.Command) error {
		if cmd.Args().Len() != 1 {
			return errors.New("add takes exactly one directory")
		}
		return withApp(ctx, cmd, func(app *bootstrap.App) error {
			dir, err := services.ValidateDirectory(cmd.Args().First(), app.Config.EntryMarker)
			if err != nil {
				return err
			}
			game, err := app.Controller.Register(ctx, dir, cmd.String("name"), cmd.String("image"))
			if err != nil {
				return err
			}
			printGames(game)
			return nil
		})
	},
}

var startCommand = &cli.Command{
	Name:      "start",
	Usage:     "start a game's container",
	ArgsUsage: "<id>",
	Action: gameAction(func(ctx context.Context, app *bootstrap.App, id int64) (domain.Game, error) {
		return app.Controller.Start(ctx, id)
	}),
}

var stopCommand = &cli.Command{
	Name:      "stop",
	Usage:     "stop a game's container",
	ArgsUsage: "<id>",
	Action: gameAction(func(ctx context.Context, app *bootstrap.App, id int64) (domain.Game, error) {
		return app.Controller.Stop(ctx, id)
	}),
}

var buildCommand = &cli.Command{
	Name:      "build",
	Usage:     "build the game's Dockerfile and use the result as its image",
	ArgsUsage: "<id>",
	Action: gameAction(func(ctx context.Context, app *bootstrap.App, id int64) (domain.Game, error) {
		return app.Provisioner.BuildImage(ctx, id)
	}),
}

var statusCommand = &cli.Command{
	Name:      "status",
	Usage:     "reconcile one game, or all games when no id is given",
	ArgsUsage: "[id]",
	Action: func(ctx context.Context, cmd *cli.Command) error {
		if cmd.Args().Len() == 0 {
			return withApp(ctx, cmd, func(app *bootstrap.App) error {
				games, err := app.Controller.ReconcileAll(ctx)
				printGames(games...)
				return err
			})
		}
		return gameAction(func(ctx context.Context, app *bootstrap.App, id int64) (domain.Game, error) {
			return app.Controller.Reconcile(ctx, id)
		})(ctx, cmd)
	},
}

var rmCommand = &cli.Command{
	Name:      "rm",
	Usage:     "remove a game and its container",
	ArgsUsage: "<id>",
	Action: func(ctx context.Context, cmd *cli.Command) error {
		id, err := parseID(cmd)
		if err != nil {
			return err
		}
		return withApp(ctx, cmd, func(app *bootstrap.App) error {
			if err := app.Controller.Remove(ctx, id); err != nil {
				return err
			}
			fmt.Printf("removed game %d\n", id)
			return nil
		})
	},
}

var importCommand = &cli.Command{
	Name:      "import",
	Usage:     "clone a git repository into the games root and register it",
	ArgsUsage: "<repo-url>",
	Flags: []cli.Flag{
		&cli.StringFlag{Name: "dir", Usage: "directory name under the games root"},
		nameFlag,
		imageFlag,
	},
	Action: func(ctx context.Context, cmd *cli.Command) error {
		if cmd.Args().Len() != 1 {
			return errors.New("import takes exactly one repository URL")
		}
		return withApp(ctx, cmd, func(app *bootstrap.App) error {
			game, err := app.Provisioner.Import(ctx, cmd.Args().First(), cmd.String("dir"), cmd.String("name"), cmd.String("image"))
			if err != nil {
				return err
			}
			printGames(game)
			return nil
		})
	},
}

// gameAction adapts a single-game controller call to a command action.
// The last known game is printed even when op fails.
func gameAction(op func(context.Context, *bootstrap.App, int64) (domain.Game, error)) cli.ActionFunc {
	return func(ctx context.Context, cmd *cli.Command) error {
		id, err := parseID(cmd)
		if err != nil {
			return err
		}
		return withApp(ctx, cmd, func(app *bootstrap.App) error {
			game, err := op(ctx, app, id)
			if game.ID != 0 {
				printGames(game)
			}
			return err
		})
	}
}

func parseID(cmd *cli.Command) (int64, error) {
	if cmd.Args().Len() != 1 {
		return 0, fmt.Errorf("%s takes exactly one game id", cmd.Name)
	}
	id, err := strconv.ParseInt(cmd.Args().First(), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid game id %q", cmd.Args().First())
	}
	return id, nil
}

func printGames(games ...domain.Game) {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tPORT\tSTATUS\tIMAGE\tDIRECTORY")
	for _, g := range games {
		fmt.Fprintf(w, "%d\t%s\t%d\t%s\t%s\t%s\n", g.ID, g.ContainerName, g.Port, g.Status, g.Image, g.Directory)
	}
	_ = w.Flush()
}
