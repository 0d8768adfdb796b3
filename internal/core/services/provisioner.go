package services

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/melih/gamehost/internal/core/domain"
	"github.com/melih/gamehost/internal/core/ports"
	"github.com/rs/zerolog"
)

// Provisioner brings game sources onto the host and builds per-game images.
type Provisioner struct {
	builder    ports.BuilderService
	controller *Controller
	root       string
	marker     string
	logger     zerolog.Logger
}

func NewProvisioner(builder ports.BuilderService, controller *Controller, root, marker string, logger zerolog.Logger) *Provisioner {
	return &Provisioner{
		builder:    builder,
		controller: controller,
		root:       root,
		marker:     marker,
		logger:     logger.With().Str("component", "provisioner").Logger(),
	}
}

// Import clones repoURL under the games root and registers it. name picks
// the checkout directory and defaults to the repository name. A checkout
// whose marker lives in www/ is registered at that subdirectory.
func (p *Provisioner) Import(ctx context.Context, repoURL, name, containerName, image string) (domain.Game, error) {
	if strings.TrimSpace(repoURL) == "" {
		return domain.Game{}, errors.New("repository URL is required")
	}
	if name == "" {
		name = repoName(repoURL)
	}
	name = sanitizeName(name)
	if name == "" {
		return domain.Game{}, fmt.Errorf("cannot derive a directory name from %q", repoURL)
	}

	dest := filepath.Join(p.root, name)
	if _, err := os.Stat(dest); err == nil {
		return domain.Game{}, fmt.Errorf("destination %s already exists", dest)
	}
	if err := os.MkdirAll(p.root, 0o755); err != nil {
		return domain.Game{}, fmt.Errorf("failed to create games root: %w", err)
	}
	if err := p.builder.Clone(ctx, repoURL, dest); err != nil {
		return domain.Game{}, err
	}

	dir, err := ValidateDirectory(dest, p.marker)
	if err != nil {
		www, wwwErr := ValidateDirectory(filepath.Join(dest, "www"), p.marker)
		if wwwErr != nil {
			return domain.Game{}, err
		}
		dir = www
	}
	p.logger.Info().Str("repo", repoURL).Str("directory", dir.Path).Msg("game imported")
	return p.controller.Register(ctx, dir, containerName, image)
}

// BuildImage builds the Dockerfile in the game's directory and switches the
// game to the resulting image. The next start picks it up.
func (p *Provisioner) BuildImage(ctx context.Context, id int64) (domain.Game, error) {
	game, err := p.controller.Get(ctx, id)
	if err != nil {
		return domain.Game{}, err
	}
	if _, err := os.Stat(filepath.Join(game.Directory, "Dockerfile")); err != nil {
		return game, fmt.Errorf("%w: no Dockerfile in %s", domain.ErrInvalidDirectory, game.Directory)
	}
	tag := "gamehost/" + strings.ToLower(game.ContainerName) + ":latest"
	built, err := p.builder.BuildImage(ctx, game.Directory, tag)
	if err != nil {
		return game, err
	}
	return p.controller.SetImage(ctx, id, built)
}

func repoName(repoURL string) string {
	trimmed := strings.TrimSuffix(strings.TrimRight(repoURL, "/"), ".git")
	if i := strings.LastIndex(trimmed, ":"); i >= 0 && !strings.Contains(trimmed[i:], "/") {
		trimmed = trimmed[i+1:]
	}
	return path.Base(trimmed)
}
