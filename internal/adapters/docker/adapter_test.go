package docker

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"
	"github.com/docker/docker/errdefs"
	"github.com/docker/go-connections/nat"
	"github.com/melih/gamehost/internal/core/domain"
	"github.com/melih/gamehost/internal/core/ports"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
	"github.com/rs/zerolog"
)

type fakeEngine struct {
	listed     []types.Container
	listErr    error
	createErr  error
	startErr   error
	removeErr  error
	inspectErr error

	createdName string
	config      *container.Config
	hostConfig  *container.HostConfig
	pulled      []string
	removed     []string
	listOpts    container.ListOptions
	exitCode    int64
	waitErr     error
	waited      bool
}

func (f *fakeEngine) ContainerList(_ context.Context, opts container.ListOptions) ([]types.Container, error) {
	f.listOpts = opts
	return f.listed, f.listErr
}

func (f *fakeEngine) ContainerCreate(_ context.Context, cfg *container.Config, hc *container.HostConfig, _ *network.NetworkingConfig, _ *ocispec.Platform, name string) (container.CreateResponse, error) {
	f.createdName, f.config, f.hostConfig = name, cfg, hc
	if f.createErr != nil {
		return container.CreateResponse{}, f.createErr
	}
	return container.CreateResponse{ID: "abc123"}, nil
}

func (f *fakeEngine) ContainerStart(context.Context, string, container.StartOptions) error {
	return f.startErr
}

func (f *fakeEngine) ContainerRemove(_ context.Context, id string, _ container.RemoveOptions) error {
	f.removed = append(f.removed, id)
	return f.removeErr
}

func (f *fakeEngine) ContainerWait(context.Context, string, container.WaitCondition) (<-chan container.WaitResponse, <-chan error) {
	f.waited = true
	ch := make(chan container.WaitResponse, 1)
	errCh := make(chan error, 1)
	if f.waitErr != nil {
		errCh <- f.waitErr
	} else {
		ch <- container.WaitResponse{StatusCode: f.exitCode}
	}
	return ch, errCh
}

func (f *fakeEngine) ContainerLogs(context.Context, string, container.LogsOptions) (io.ReadCloser, error) {
	return io.NopCloser(strings.NewReader("hello\n")), nil
}

func (f *fakeEngine) ImageInspectWithRaw(context.Context, string) (types.ImageInspect, []byte, error) {
	return types.ImageInspect{}, nil, f.inspectErr
}

func (f *fakeEngine) ImagePull(_ context.Context, ref string, _ types.ImagePullOptions) (io.ReadCloser, error) {
	f.pulled = append(f.pulled, ref)
	return io.NopCloser(strings.NewReader(`{"status":"done"}`)), nil
}

func testSpec() ports.RunSpec {
	return ports.RunSpec{
		Name:          "a",
		Image:         "farrar142/mvix",
		HostPort:      3001,
		ContainerPort: 3000,
		MountSource:   "/games/a",
		MountTarget:   "/game",
		Env:           []string{"DEBUG=true"},
		Detached:      true,
	}
}

func TestRunBuildsContainerConfig(t *testing.T) {
	eng := &fakeEngine{}
	a := newAdapter(eng, zerolog.Nop())

	if err := a.Run(context.Background(), testSpec()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if eng.createdName != "a" {
		t.Fatalf("container name = %q", eng.createdName)
	}
	binding := eng.hostConfig.PortBindings[nat.Port("3000/tcp")]
	if len(binding) != 1 || binding[0].HostPort != "3001" {
		t.Fatalf("port bindings = %+v", eng.hostConfig.PortBindings)
	}
	if len(eng.hostConfig.Mounts) != 1 || eng.hostConfig.Mounts[0].Source != "/games/a" || eng.hostConfig.Mounts[0].Target != "/game" {
		t.Fatalf("mounts = %+v", eng.hostConfig.Mounts)
	}
	if eng.hostConfig.Init == nil || !*eng.hostConfig.Init {
		t.Fatal("init process not requested")
	}
	if !eng.config.Tty || !eng.config.OpenStdin {
		t.Fatal("tty/stdin not requested")
	}
	if len(eng.pulled) != 0 {
		t.Fatalf("pulled %v for a local image", eng.pulled)
	}
}

func TestRunPullsMissingImage(t *testing.T) {
	eng := &fakeEngine{inspectErr: errdefs.NotFound(errors.New("No such image"))}
	a := newAdapter(eng, zerolog.Nop())
	if err := a.Run(context.Background(), testSpec()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(eng.pulled) != 1 || eng.pulled[0] != "farrar142/mvix" {
		t.Fatalf("pulled = %v", eng.pulled)
	}
}

func TestRunKeepsEngineMessage(t *testing.T) {
	msg := "driver failed programming external connectivity: Bind for 0.0.0.0:3001 failed: port is already allocated"
	eng := &fakeEngine{startErr: errdefs.System(errors.New(msg))}
	a := newAdapter(eng, zerolog.Nop())

	err := a.Run(context.Background(), testSpec())
	var rerr *domain.RuntimeError
	if !errors.As(err, &rerr) {
		t.Fatalf("Run() err = %T %v, want *domain.RuntimeError", err, err)
	}
	if !strings.Contains(rerr.Message, "port is already allocated") {
		t.Fatalf("message = %q", rerr.Message)
	}
	if rerr.Reason != domain.ReasonOther {
		t.Fatalf("reason = %v, want other", rerr.Reason)
	}
}

func TestRunTagsNameConflict(t *testing.T) {
	eng := &fakeEngine{createErr: errdefs.Conflict(errors.New(`Conflict. The container name "/a" is already in use by container "abc"`))}
	a := newAdapter(eng, zerolog.Nop())

	var rerr *domain.RuntimeError
	if err := a.Run(context.Background(), testSpec()); !errors.As(err, &rerr) || rerr.Reason != domain.ReasonNameConflict {
		t.Fatalf("Run() err = %v, want name conflict", err)
	}
}

func TestUnreachableEngine(t *testing.T) {
	eng := &fakeEngine{listErr: client.ErrorConnectionFailed("unix:///var/run/docker.sock")}
	a := newAdapter(eng, zerolog.Nop())

	_, err := a.ListRunning(context.Background(), "a")
	if !errors.Is(err, domain.ErrRuntimeUnreachable) {
		t.Fatalf("ListRunning() err = %v, want ErrRuntimeUnreachable", err)
	}
}

func TestListRunningTrimsNames(t *testing.T) {
	eng := &fakeEngine{listed: []types.Container{{Names: []string{"/a"}}, {Names: []string{"/ab"}}}}
	a := newAdapter(eng, zerolog.Nop())

	names, err := a.ListRunning(context.Background(), "a")
	if err != nil {
		t.Fatalf("ListRunning: %v", err)
	}
	if len(names) != 2 || names[0] != "a" || names[1] != "ab" {
		t.Fatalf("names = %v", names)
	}
	if got := eng.listOpts.Filters.Get("name"); len(got) != 1 || got[0] != "a" {
		t.Fatalf("name filter = %v", got)
	}
}

func TestForceRemoveIgnoresMissing(t *testing.T) {
	eng := &fakeEngine{removeErr: errdefs.NotFound(errors.New("No such container: a"))}
	a := newAdapter(eng, zerolog.Nop())
	if err := a.ForceRemove(context.Background(), "a"); err != nil {
		t.Fatalf("ForceRemove() = %v, want nil", err)
	}

	eng.removeErr = errdefs.System(errors.New("boom"))
	if err := a.ForceRemove(context.Background(), "a"); err == nil {
		t.Fatal("ForceRemove() = nil, want error")
	}
}

func TestRunAttachedWaitsForExit(t *testing.T) {
	spec := testSpec()
	spec.Detached = false

	eng := &fakeEngine{}
	if err := newAdapter(eng, zerolog.Nop()).Run(context.Background(), spec); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !eng.waited {
		t.Fatal("attached run did not wait for the container")
	}

	eng = &fakeEngine{exitCode: 2}
	err := newAdapter(eng, zerolog.Nop()).Run(context.Background(), spec)
	var rerr *domain.RuntimeError
	if !errors.As(err, &rerr) || rerr.Reason != domain.ReasonOther || !strings.Contains(rerr.Message, "status 2") {
		t.Fatalf("Run() err = %v, want RuntimeError with exit status", err)
	}

	eng = &fakeEngine{waitErr: errors.New("wait interrupted")}
	err = newAdapter(eng, zerolog.Nop()).Run(context.Background(), spec)
	if !errors.As(err, &rerr) || !strings.Contains(rerr.Message, "wait interrupted") {
		t.Fatalf("Run() err = %v, want wait error", err)
	}
}

func TestRunDetachedDoesNotWait(t *testing.T) {
	eng := &fakeEngine{exitCode: 1}
	if err := newAdapter(eng, zerolog.Nop()).Run(context.Background(), testSpec()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if eng.waited {
		t.Fatal("detached run waited for the container")
	}
}
