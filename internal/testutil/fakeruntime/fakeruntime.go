// Package fakeruntime is an in-memory container engine for tests. It mimics
// Docker's behaviour closely enough to drive the lifecycle controller: a
// launch whose host port is taken leaves a created-but-stopped container
// behind, and a second launch under the same name is a name conflict until
// that container is removed.
package fakeruntime

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/melih/gamehost/internal/core/domain"
	"github.com/melih/gamehost/internal/core/ports"
)

type containerState struct {
	port    int
	running bool
}

type Runtime struct {
	mu          sync.Mutex
	containers  map[string]*containerState
	blocked     map[int]bool
	queued      []error
	unreachable bool
	removeErr   error
	runDelay    time.Duration

	runs    []ports.RunSpec
	removed []string
}

func New() *Runtime {
	return &Runtime{
		containers: make(map[string]*containerState),
		blocked:    make(map[int]bool),
	}
}

// BlockPorts marks host ports as bound by some unrelated process.
func (r *Runtime) BlockPorts(ports ...int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range ports {
		r.blocked[p] = true
	}
}

// QueueRunErrors makes the next Run calls fail with errs, in order, before
// any simulated behaviour applies.
func (r *Runtime) QueueRunErrors(errs ...error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.queued = append(r.queued, errs...)
}

func (r *Runtime) SetUnreachable(v bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.unreachable = v
}

func (r *Runtime) SetRemoveError(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.removeErr = err
}

// SetRunDelay makes Run block for d or until its context ends.
func (r *Runtime) SetRunDelay(d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runDelay = d
}

// AddContainer seeds a container as if created outside the controller.
func (r *Runtime) AddContainer(name string, port int, running bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.containers[name] = &containerState{port: port, running: running}
}

func (r *Runtime) IsRunning(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.containers[name]
	return ok && c.running
}

func (r *Runtime) Runs() []ports.RunSpec {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]ports.RunSpec(nil), r.runs...)
}

func (r *Runtime) Removed() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.removed...)
}

func (r *Runtime) ListRunning(_ context.Context, filter string) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.unreachable {
		return nil, unreachableError()
	}
	var names []string
	for name, c := range r.containers {
		if c.running && strings.Contains(name, filter) {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names, nil
}

func (r *Runtime) Run(ctx context.Context, spec ports.RunSpec) error {
	r.mu.Lock()
	delay := r.runDelay
	r.mu.Unlock()
	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return &domain.RuntimeError{Reason: domain.ReasonOther, Message: ctx.Err().Error(), Err: ctx.Err()}
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs = append(r.runs, spec)
	if r.unreachable {
		return unreachableError()
	}
	if len(r.queued) > 0 {
		err := r.queued[0]
		r.queued = r.queued[1:]
		if err != nil {
			return err
		}
	}
	if _, exists := r.containers[spec.Name]; exists {
		msg := fmt.Sprintf(`Error response from daemon: Conflict. The container name "/%s" is already in use by container "0123456789ab". You have to remove (or rename) that container to be able to reuse that name.`, spec.Name)
		return &domain.RuntimeError{Reason: domain.ReasonNameConflict, Message: msg}
	}
	// docker creates the container before failing to bind the port
	r.containers[spec.Name] = &containerState{port: spec.HostPort}
	if r.portInUse(spec.Name, spec.HostPort) {
		msg := fmt.Sprintf("Error response from daemon: driver failed programming external connectivity on endpoint %s: Bind for 0.0.0.0:%d failed: port is already allocated", spec.Name, spec.HostPort)
		return &domain.RuntimeError{Reason: domain.ReasonOther, Message: msg}
	}
	r.containers[spec.Name].running = true
	return nil
}

func (r *Runtime) ForceRemove(_ context.Context, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.removed = append(r.removed, name)
	if r.unreachable {
		return unreachableError()
	}
	if r.removeErr != nil {
		return r.removeErr
	}
	delete(r.containers, name)
	return nil
}

func (r *Runtime) portInUse(self string, port int) bool {
	if r.blocked[port] {
		return true
	}
	for name, c := range r.containers {
		if name != self && c.running && c.port == port {
			return true
		}
	}
	return false
}

func unreachableError() error {
	msg := "Cannot connect to the Docker daemon at unix:///var/run/docker.sock. Is the docker daemon running?"
	return &domain.RuntimeError{
		Reason:  domain.ReasonOther,
		Message: msg,
		Err:     fmt.Errorf("%w: %s", domain.ErrRuntimeUnreachable, errors.New(msg)),
	}
}
