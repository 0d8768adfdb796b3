package builder

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/archive"
	"github.com/go-git/go-git/v5"
	"github.com/rs/zerolog"
)

type imageBuilder interface {
	ImageBuild(ctx context.Context, buildContext io.Reader, options types.ImageBuildOptions) (types.ImageBuildResponse, error)
}

// Adapter implements ports.BuilderService with go-git and the Docker SDK.
type Adapter struct {
	cli    imageBuilder
	logger zerolog.Logger
}

func NewBuilderAdapter(logger zerolog.Logger) (*Adapter, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to create docker client: %w", err)
	}
	return &Adapter{cli: cli, logger: logger.With().Str("component", "builder").Logger()}, nil
}

// Clone shallow-clones repoURL into dest.
func (a *Adapter) Clone(ctx context.Context, repoURL string, dest string) error {
	a.logger.Info().Str("repo", repoURL).Str("dest", dest).Msg("cloning")
	_, err := git.PlainCloneContext(ctx, dest, false, &git.CloneOptions{
		URL:   repoURL,
		Depth: 1,
	})
	if err != nil {
		return fmt.Errorf("failed to clone repo: %w", err)
	}
	return nil
}

// BuildImage tars contextDir and builds its Dockerfile as imageName.
func (a *Adapter) BuildImage(ctx context.Context, contextDir string, imageName string) (string, error) {
	tar, err := archive.TarWithOptions(contextDir, &archive.TarOptions{})
	if err != nil {
		return "", fmt.Errorf("failed to create build context: %w", err)
	}
	defer tar.Close()

	a.logger.Info().Str("image", imageName).Str("context", contextDir).Msg("building image")
	resp, err := a.cli.ImageBuild(ctx, tar, types.ImageBuildOptions{
		Tags:       []string{imageName},
		Dockerfile: "Dockerfile",
		Remove:     true,
	})
	if err != nil {
		return "", fmt.Errorf("failed to build image: %w", err)
	}
	defer resp.Body.Close()

	// The build runs until the stream is drained. Errors arrive in-band.
	if err := drainBuildOutput(resp.Body); err != nil {
		return "", fmt.Errorf("failed to build image %s: %w", imageName, err)
	}
	return imageName, nil
}

type buildMessage struct {
	Stream string `json:"stream"`
	Error  string `json:"error"`
}

func drainBuildOutput(r io.Reader) error {
	dec := json.NewDecoder(r)
	for {
		var msg buildMessage
		err := dec.Decode(&msg)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		if msg.Error != "" {
			return errors.New(msg.Error)
		}
	}
}
