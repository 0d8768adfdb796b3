package ports

import (
	"context"
	"io"
)

// RunSpec describes a single container launch.
type RunSpec struct {
	Name          string
	Image         string
	HostPort      int
	ContainerPort int
	MountSource   string
	MountTarget   string
	Env           []string
	Detached      bool
}

// RuntimeService is the boundary to the container engine.
// This interface allows us to switch between Docker, Podman, or a fake
// without changing the lifecycle logic.
type RuntimeService interface {
	// ListRunning returns the names of running containers whose name matches
	// filter. An empty filter lists every running container. A backend that
	// cannot be reached returns an error wrapping domain.ErrRuntimeUnreachable.
	ListRunning(ctx context.Context, filter string) ([]string, error)
	// Run creates and starts a container. Failures are *domain.RuntimeError.
	Run(ctx context.Context, spec RunSpec) error
	// ForceRemove kills and removes a container. Removing an absent
	// container is not an error.
	ForceRemove(ctx context.Context, name string) error
}

// LogStreamer is implemented by runtimes that can expose container logs.
type LogStreamer interface {
	Logs(ctx context.Context, name string) (io.ReadCloser, error)
}
