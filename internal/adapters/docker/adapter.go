package docker

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"
	"github.com/docker/docker/errdefs"
	"github.com/docker/go-connections/nat"
	"github.com/melih/gamehost/internal/core/domain"
	"github.com/melih/gamehost/internal/core/ports"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
	"github.com/rs/zerolog"
)

// engine is the slice of the Docker SDK the adapter uses.
type engine interface {
	ContainerList(ctx context.Context, options container.ListOptions) ([]types.Container, error)
	ContainerCreate(ctx context.Context, config *container.Config, hostConfig *container.HostConfig, networkingConfig *network.NetworkingConfig, platform *ocispec.Platform, containerName string) (container.CreateResponse, error)
	ContainerStart(ctx context.Context, containerID string, options container.StartOptions) error
	ContainerRemove(ctx context.Context, containerID string, options container.RemoveOptions) error
	ContainerWait(ctx context.Context, containerID string, condition container.WaitCondition) (<-chan container.WaitResponse, <-chan error)
	ContainerLogs(ctx context.Context, containerID string, options container.LogsOptions) (io.ReadCloser, error)
	ImageInspectWithRaw(ctx context.Context, imageID string) (types.ImageInspect, []byte, error)
	ImagePull(ctx context.Context, refStr string, options types.ImagePullOptions) (io.ReadCloser, error)
}

// Adapter implements ports.RuntimeService and ports.LogStreamer using the
// Docker SDK.
type Adapter struct {
	cli    engine
	logger zerolog.Logger
}

var (
	_ ports.RuntimeService = (*Adapter)(nil)
	_ ports.LogStreamer    = (*Adapter)(nil)
)

// NewAdapter creates a new Docker adapter instance from the environment
// (DOCKER_HOST and friends).
func NewAdapter(logger zerolog.Logger) (*Adapter, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to create docker client: %w", err)
	}
	return newAdapter(cli, logger), nil
}

func newAdapter(cli engine, logger zerolog.Logger) *Adapter {
	return &Adapter{cli: cli, logger: logger.With().Str("component", "docker").Logger()}
}

// ListRunning returns the names of running containers matching filter.
func (a *Adapter) ListRunning(ctx context.Context, filter string) ([]string, error) {
	opts := container.ListOptions{}
	if filter != "" {
		opts.Filters = filters.NewArgs(filters.Arg("name", filter))
	}
	containers, err := a.cli.ContainerList(ctx, opts)
	if err != nil {
		return nil, runtimeError(err)
	}

	var names []string
	for _, c := range containers {
		for _, n := range c.Names {
			names = append(names, strings.TrimPrefix(n, "/"))
		}
	}
	return names, nil
}

// Run is the SDK equivalent of
// `docker run --init -it -v src:dst -p host:ctr --name name -e ... -d image`.
func (a *Adapter) Run(ctx context.Context, spec ports.RunSpec) error {
	if err := a.ensureImage(ctx, spec.Image); err != nil {
		return err
	}

	ctrPort, err := nat.NewPort("tcp", strconv.Itoa(spec.ContainerPort))
	if err != nil {
		return &domain.RuntimeError{Reason: domain.ReasonOther, Message: err.Error(), Err: err}
	}
	useInit := true
	resp, err := a.cli.ContainerCreate(ctx,
		&container.Config{
			Image:        spec.Image,
			Env:          spec.Env,
			Tty:          true,
			OpenStdin:    true,
			ExposedPorts: nat.PortSet{ctrPort: struct{}{}},
		},
		&container.HostConfig{
			Init: &useInit,
			PortBindings: nat.PortMap{
				ctrPort: []nat.PortBinding{{HostPort: strconv.Itoa(spec.HostPort)}},
			},
			Mounts: []mount.Mount{{
				Type:   mount.TypeBind,
				Source: spec.MountSource,
				Target: spec.MountTarget,
			}},
		},
		nil, nil, spec.Name)
	if err != nil {
		return runtimeError(err)
	}
	for _, w := range resp.Warnings {
		a.logger.Warn().Str("container", spec.Name).Msg(w)
	}

	// Port binding happens here, so a clash surfaces from start, not create.
	if err := a.cli.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		return runtimeError(err)
	}
	if spec.Detached {
		return nil
	}

	waitCh, errCh := a.cli.ContainerWait(ctx, resp.ID, container.WaitConditionNotRunning)
	select {
	case err := <-errCh:
		return runtimeError(err)
	case res := <-waitCh:
		if res.StatusCode != 0 {
			msg := fmt.Sprintf("container %s exited with status %d", spec.Name, res.StatusCode)
			return &domain.RuntimeError{Reason: domain.ReasonOther, Message: msg}
		}
		return nil
	}
}

// ForceRemove kills and removes a container by name. A missing container is
// not an error.
func (a *Adapter) ForceRemove(ctx context.Context, name string) error {
	err := a.cli.ContainerRemove(ctx, name, container.RemoveOptions{Force: true})
	if err == nil || errdefs.IsNotFound(err) {
		return nil
	}
	return runtimeError(err)
}

// Logs returns a stream of container logs
func (a *Adapter) Logs(ctx context.Context, name string) (io.ReadCloser, error) {
	options := container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
		Follow:     false,
		Timestamps: true,
	}
	rc, err := a.cli.ContainerLogs(ctx, name, options)
	if err != nil {
		return nil, runtimeError(err)
	}
	return rc, nil
}

// ensureImage pulls the image only when it is not present locally.
func (a *Adapter) ensureImage(ctx context.Context, image string) error {
	_, _, err := a.cli.ImageInspectWithRaw(ctx, image)
	if err == nil {
		return nil
	}
	if !errdefs.IsNotFound(err) {
		return runtimeError(err)
	}

	a.logger.Info().Str("image", image).Msg("pulling image")
	reader, err := a.cli.ImagePull(ctx, image, types.ImagePullOptions{})
	if err != nil {
		return runtimeError(err)
	}
	defer reader.Close()
	// the pull only completes once the progress stream is drained
	if _, err := io.Copy(io.Discard, reader); err != nil {
		return runtimeError(err)
	}
	return nil
}

// runtimeError keeps the engine's message verbatim and pre-tags what the
// API can tell us structurally.
func runtimeError(err error) error {
	if err == nil {
		return nil
	}
	if client.IsErrConnectionFailed(err) {
		return &domain.RuntimeError{
			Reason:  domain.ReasonOther,
			Message: err.Error(),
			Err:     fmt.Errorf("%w: %w", domain.ErrRuntimeUnreachable, err),
		}
	}
	reason := domain.ReasonOther
	if errdefs.IsConflict(err) {
		reason = domain.ReasonNameConflict
	}
	return &domain.RuntimeError{Reason: reason, Message: err.Error(), Err: err}
}
