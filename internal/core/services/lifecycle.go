package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/melih/gamehost/internal/core/domain"
	"github.com/melih/gamehost/internal/core/ports"
	"github.com/melih/gamehost/internal/observability"
	"github.com/rs/zerolog"
)

const maxHostPort = 65535

// Options tunes the lifecycle controller.
type Options struct {
	BasePort             int
	ContainerPort        int
	MountTarget          string
	DefaultImage         string
	DefaultContainerName string
	Env                  []string
	RuntimeTimeout       time.Duration
	MaxPortRetries       int
	MaxNameRetries       int
	Classifier           *Classifier
}

// DefaultOptions mirrors the stock `docker run` invocation for a game.
func DefaultOptions() Options {
	return Options{
		BasePort:             3000,
		ContainerPort:        3000,
		MountTarget:          "/game",
		DefaultImage:         "farrar142/mvix",
		DefaultContainerName: "my_container",
		Env:                  []string{"DEBUG=true"},
		RuntimeTimeout:       10 * time.Second,
		MaxPortRetries:       100,
		MaxNameRetries:       5,
	}
}

// Controller drives games through NotCreated -> Stopped <-> Running against a
// container runtime and a registry.
//
// The registry owns game state. The controller keeps a working set that
// mirrors it for the current process and is refreshed from the registry on
// Sync and after every mutation.
type Controller struct {
	runtime  ports.RuntimeService
	registry ports.GameRegistry
	opts     Options
	classify *Classifier
	logger   zerolog.Logger
	now      func() time.Time

	// allocMu serializes every port assignment: read-max-then-insert in
	// Register and the scan-then-write of a port retry in Start.
	allocMu sync.Mutex
	locks   *keyedMutex

	mu    sync.RWMutex
	games map[int64]domain.Game
	order []int64
}

// NewController wires a controller. Zero-valued options fall back to
// DefaultOptions.
func NewController(runtime ports.RuntimeService, registry ports.GameRegistry, opts Options, logger zerolog.Logger) *Controller {
	def := DefaultOptions()
	if opts.BasePort == 0 {
		opts.BasePort = def.BasePort
	}
	if opts.ContainerPort == 0 {
		opts.ContainerPort = def.ContainerPort
	}
	if opts.MountTarget == "" {
		opts.MountTarget = def.MountTarget
	}
	if opts.DefaultImage == "" {
		opts.DefaultImage = def.DefaultImage
	}
	if opts.DefaultContainerName == "" {
		opts.DefaultContainerName = def.DefaultContainerName
	}
	if opts.RuntimeTimeout <= 0 {
		opts.RuntimeTimeout = def.RuntimeTimeout
	}
	if opts.MaxPortRetries <= 0 {
		opts.MaxPortRetries = def.MaxPortRetries
	}
	if opts.MaxNameRetries <= 0 {
		opts.MaxNameRetries = def.MaxNameRetries
	}
	classify := opts.Classifier
	if classify == nil {
		classify = NewClassifier()
	}
	return &Controller{
		runtime:  runtime,
		registry: registry,
		opts:     opts,
		classify: classify,
		logger:   logger.With().Str("component", "lifecycle").Logger(),
		now:      time.Now,
		locks:    newKeyedMutex(),
		games:    make(map[int64]domain.Game),
	}
}

// Sync reloads the working set from the registry and reconciles every game.
// Call it once at session start.
func (c *Controller) Sync(ctx context.Context) error {
	games, err := c.registry.List(ctx)
	if err != nil {
		return fmt.Errorf("failed to load games: %w", err)
	}
	c.replaceAll(games)
	c.logger.Info().Int("games", len(games)).Msg("working set loaded")
	_, err = c.ReconcileAll(ctx)
	return err
}

// List returns the working set in registration order.
func (c *Controller) List() []domain.Game {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]domain.Game, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.games[id])
	}
	return out
}

// Get returns a game from the working set, falling back to the registry.
func (c *Controller) Get(ctx context.Context, id int64) (domain.Game, error) {
	c.mu.RLock()
	game, ok := c.games[id]
	c.mu.RUnlock()
	if ok {
		return game, nil
	}
	return c.lookup(ctx, id)
}

// FindByContainerName looks a game up in the working set by container name.
func (c *Controller) FindByContainerName(name string) (domain.Game, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, id := range c.order {
		if g := c.games[id]; g.ContainerName == name {
			return g, true
		}
	}
	return domain.Game{}, false
}

// Register stores a new game for a verified directory. The port is one past
// the highest port the registry has ever handed out, so ports are never
// reused.
func (c *Controller) Register(ctx context.Context, dir domain.GameDirectory, containerName, image string) (domain.Game, error) {
	if !dir.Verified || dir.Path == "" {
		observability.RecordLifecycle("register", domain.ErrInvalidDirectory)
		return domain.Game{}, fmt.Errorf("%w: %q was not checked for its entry marker", domain.ErrInvalidDirectory, dir.Path)
	}
	if containerName == "" {
		containerName = DefaultContainerName(dir.Path, c.opts.DefaultContainerName)
	}
	if image == "" {
		image = c.opts.DefaultImage
	}

	c.allocMu.Lock()
	defer c.allocMu.Unlock()

	port := c.opts.BasePort
	maxPort, ok, err := c.registry.MaxPort(ctx)
	if err != nil {
		observability.RecordLifecycle("register", err)
		return domain.Game{}, fmt.Errorf("failed to read max port: %w", err)
	}
	if ok {
		port = maxPort
	}
	port++
	if port > maxHostPort {
		observability.RecordLifecycle("register", domain.ErrPortExhausted)
		return domain.Game{}, domain.ErrPortExhausted
	}

	game, err := c.registry.Create(ctx, domain.Game{
		Directory:     dir.Path,
		Port:          port,
		ContainerName: containerName,
		Image:         image,
		Status:        domain.StatusNotCreated,
	})
	observability.RecordLifecycle("register", err)
	if err != nil {
		return domain.Game{}, fmt.Errorf("failed to create game: %w", err)
	}
	c.store(game)
	c.logger.Info().
		Int64("game_id", game.ID).
		Str("container", game.ContainerName).
		Int("port", game.Port).
		Str("directory", game.Directory).
		Msg("game registered")
	return game, nil
}

// Start launches the game's container. Port conflicts move the game to the
// next free port and name conflicts remove the stale container; both retry
// up to the configured caps. Any other failure leaves the status untouched
// and returns a *domain.LaunchError.
func (c *Controller) Start(ctx context.Context, id int64) (domain.Game, error) {
	unlock := c.locks.Lock(id)
	defer unlock()

	game, err := c.lookup(ctx, id)
	if err != nil {
		observability.RecordLifecycle("start", err)
		return domain.Game{}, err
	}

	portRetries, nameRetries := 0, 0
	for attempt := 1; ; attempt++ {
		runErr := c.run(ctx, game)
		if runErr == nil {
			game.Status = domain.StatusRunning
			game.ReconciledAt = c.now()
			if err := c.persist(ctx, game); err != nil {
				observability.RecordLifecycle("start", err)
				return game, err
			}
			observability.RecordLifecycle("start", nil)
			c.logger.Info().
				Int64("game_id", id).
				Str("container", game.ContainerName).
				Int("port", game.Port).
				Int("attempt", attempt).
				Msg("game started")
			return game, nil
		}

		reason, msg := c.reasonFor(runErr)
		c.logger.Warn().
			Int64("game_id", id).
			Str("container", game.ContainerName).
			Int("port", game.Port).
			Int("attempt", attempt).
			Str("reason", reason.String()).
			Str("message", msg).
			Msg("launch failed")

		switch reason {
		case domain.ReasonPortConflict:
			portRetries++
			c.removeQuietly(ctx, game.ContainerName)
			if portRetries > c.opts.MaxPortRetries {
				err := fmt.Errorf("%w: game %d after %d port changes, last error: %s", domain.ErrPortExhausted, id, c.opts.MaxPortRetries, msg)
				observability.RecordLifecycle("start", err)
				return game, err
			}
			moved, err := c.movePort(ctx, game)
			if err != nil {
				observability.RecordLifecycle("start", err)
				return game, err
			}
			game = moved
			observability.RecordLaunchRetry(reason.String())

		case domain.ReasonNameConflict:
			nameRetries++
			if nameRetries > c.opts.MaxNameRetries {
				err := &domain.LaunchError{Reason: reason, Message: msg, Err: runErr}
				observability.RecordLifecycle("start", err)
				return game, err
			}
			c.removeQuietly(ctx, game.ContainerName)
			observability.RecordLaunchRetry(reason.String())

		default:
			err := &domain.LaunchError{Reason: domain.ReasonOther, Message: msg, Err: runErr}
			observability.RecordLifecycle("start", err)
			return game, err
		}
	}
}

// Stop force-removes the game's container. A failed removal is terminal and
// leaves the status untouched.
func (c *Controller) Stop(ctx context.Context, id int64) (domain.Game, error) {
	unlock := c.locks.Lock(id)
	defer unlock()

	game, err := c.lookup(ctx, id)
	if err != nil {
		observability.RecordLifecycle("stop", err)
		return domain.Game{}, err
	}
	if err := c.forceRemove(ctx, game.ContainerName); err != nil {
		stopErr := &domain.StopError{Message: err.Error(), Err: err}
		observability.RecordLifecycle("stop", stopErr)
		c.logger.Error().Err(err).Int64("game_id", id).Str("container", game.ContainerName).Msg("stop failed")
		return game, stopErr
	}
	game.Status = domain.StatusStopped
	game.ReconciledAt = c.now()
	if err := c.persist(ctx, game); err != nil {
		observability.RecordLifecycle("stop", err)
		return game, err
	}
	observability.RecordLifecycle("stop", nil)
	c.logger.Info().Int64("game_id", id).Str("container", game.ContainerName).Msg("game stopped")
	return game, nil
}

// Reconcile recomputes one game's status from the runtime and persists it.
// An unreachable runtime counts as stopped.
func (c *Controller) Reconcile(ctx context.Context, id int64) (domain.Game, error) {
	unlock := c.locks.Lock(id)
	defer unlock()

	game, err := c.lookup(ctx, id)
	if err != nil {
		observability.RecordLifecycle("reconcile", err)
		return domain.Game{}, err
	}
	game, err = c.applyStatus(ctx, game, c.listRunning(ctx, game.ContainerName))
	observability.RecordLifecycle("reconcile", err)
	return game, err
}

// ReconcileAll refreshes the working set from the registry and reconciles
// every game. Each game is listed under its own lock so a start or stop that
// finishes mid-sweep is never overwritten by a stale listing.
func (c *Controller) ReconcileAll(ctx context.Context) ([]domain.Game, error) {
	games, err := c.registry.List(ctx)
	if err != nil {
		observability.RecordLifecycle("reconcile", err)
		return nil, fmt.Errorf("failed to list games: %w", err)
	}
	c.replaceAll(games)

	var errs []error
	out := make([]domain.Game, 0, len(games))
	for _, g := range games {
		if g.ID == 0 {
			continue
		}
		game, err := c.reconcileLocked(ctx, g.ID)
		if errors.Is(err, domain.ErrNotFound) {
			continue
		}
		if err != nil {
			errs = append(errs, err)
			continue
		}
		out = append(out, game)
	}
	err = errors.Join(errs...)
	observability.RecordLifecycle("reconcile", err)
	return out, err
}

func (c *Controller) reconcileLocked(ctx context.Context, id int64) (domain.Game, error) {
	unlock := c.locks.Lock(id)
	defer unlock()
	game, err := c.lookup(ctx, id)
	if err != nil {
		return domain.Game{}, err
	}
	return c.applyStatus(ctx, game, c.listRunning(ctx, game.ContainerName))
}

func (c *Controller) applyStatus(ctx context.Context, game domain.Game, running map[string]bool) (domain.Game, error) {
	if running[game.ContainerName] {
		game.Status = domain.StatusRunning
	} else {
		game.Status = domain.StatusStopped
	}
	game.ReconciledAt = c.now()
	if err := c.persist(ctx, game); err != nil {
		return game, err
	}
	c.logger.Debug().Int64("game_id", game.ID).Str("status", string(game.Status)).Msg("game reconciled")
	return game, nil
}

// Remove force-removes any container for the game, ignoring errors, and
// deletes the registry entry.
func (c *Controller) Remove(ctx context.Context, id int64) error {
	unlock := c.locks.Lock(id)
	defer unlock()

	game, err := c.lookup(ctx, id)
	if err != nil {
		observability.RecordLifecycle("remove", err)
		return err
	}
	c.removeQuietly(ctx, game.ContainerName)
	if err := c.registry.Delete(ctx, id); err != nil {
		observability.RecordLifecycle("remove", err)
		return fmt.Errorf("failed to delete game %d: %w", id, err)
	}
	c.drop(id)
	observability.RecordLifecycle("remove", nil)
	c.logger.Info().Int64("game_id", id).Str("container", game.ContainerName).Msg("game removed")
	return nil
}

// SetImage changes the image a game launches with.
func (c *Controller) SetImage(ctx context.Context, id int64, image string) (domain.Game, error) {
	unlock := c.locks.Lock(id)
	defer unlock()

	game, err := c.lookup(ctx, id)
	if err != nil {
		return domain.Game{}, err
	}
	game.Image = image
	if err := c.persist(ctx, game); err != nil {
		return game, err
	}
	return game, nil
}

func (c *Controller) run(ctx context.Context, game domain.Game) error {
	ctx, cancel := context.WithTimeout(ctx, c.opts.RuntimeTimeout)
	defer cancel()
	start := time.Now()
	err := c.runtime.Run(ctx, ports.RunSpec{
		Name:          game.ContainerName,
		Image:         game.Image,
		HostPort:      game.Port,
		ContainerPort: c.opts.ContainerPort,
		MountSource:   game.Directory,
		MountTarget:   c.opts.MountTarget,
		Env:           c.opts.Env,
		Detached:      true,
	})
	observability.ObserveRuntimeCall("run", time.Since(start))
	return err
}

func (c *Controller) forceRemove(ctx context.Context, name string) error {
	ctx, cancel := context.WithTimeout(ctx, c.opts.RuntimeTimeout)
	defer cancel()
	start := time.Now()
	err := c.runtime.ForceRemove(ctx, name)
	observability.ObserveRuntimeCall("force_remove", time.Since(start))
	return err
}

func (c *Controller) removeQuietly(ctx context.Context, name string) {
	if err := c.forceRemove(ctx, name); err != nil {
		c.logger.Debug().Err(err).Str("container", name).Msg("best-effort remove failed")
	}
}

// listRunning returns the running container names matching filter. Runtime
// errors yield an empty set.
func (c *Controller) listRunning(ctx context.Context, filter string) map[string]bool {
	ctx, cancel := context.WithTimeout(ctx, c.opts.RuntimeTimeout)
	defer cancel()
	start := time.Now()
	names, err := c.runtime.ListRunning(ctx, filter)
	observability.ObserveRuntimeCall("list_running", time.Since(start))
	if err != nil {
		c.logger.Warn().Err(err).Str("filter", filter).Msg("runtime listing failed, treating games as stopped")
		return map[string]bool{}
	}
	running := make(map[string]bool, len(names))
	for _, n := range names {
		running[n] = true
	}
	return running
}

// reasonFor classifies a launch failure. The message table is consulted
// first; the adapter's own reason only breaks ties the table cannot.
func (c *Controller) reasonFor(err error) (domain.FailureReason, string) {
	msg := err.Error()
	adapterReason := domain.ReasonOther
	var rerr *domain.RuntimeError
	if errors.As(err, &rerr) {
		msg = rerr.Message
		adapterReason = rerr.Reason
	}
	if errors.Is(err, domain.ErrRuntimeUnreachable) {
		return domain.ReasonOther, msg
	}
	if reason := c.classify.Classify(msg); reason != domain.ReasonOther {
		return reason, msg
	}
	return adapterReason, msg
}

// movePort advances the game to the next free port and persists it. It
// shares allocMu with Register so a concurrent registration cannot pick the
// same port between the scan and the write.
func (c *Controller) movePort(ctx context.Context, game domain.Game) (domain.Game, error) {
	c.allocMu.Lock()
	defer c.allocMu.Unlock()

	next, err := c.nextFreePort(ctx, game)
	if err != nil {
		return game, err
	}
	game.Port = next
	if err := c.persist(ctx, game); err != nil {
		return game, err
	}
	return game, nil
}

// nextFreePort returns the first port above game.Port that no other game
// holds.
func (c *Controller) nextFreePort(ctx context.Context, game domain.Game) (int, error) {
	games, err := c.registry.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list games: %w", err)
	}
	taken := make(map[int]bool, len(games))
	for _, g := range games {
		if g.ID != game.ID {
			taken[g.Port] = true
		}
	}
	for port := game.Port + 1; port <= maxHostPort; port++ {
		if !taken[port] {
			return port, nil
		}
	}
	return 0, fmt.Errorf("%w: game %d ran past port %d", domain.ErrPortExhausted, game.ID, maxHostPort)
}

func (c *Controller) lookup(ctx context.Context, id int64) (domain.Game, error) {
	game, err := c.registry.Get(ctx, id)
	if errors.Is(err, domain.ErrNotFound) {
		c.drop(id)
		return domain.Game{}, fmt.Errorf("game %d: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return domain.Game{}, fmt.Errorf("failed to load game %d: %w", id, err)
	}
	c.store(game)
	return game, nil
}

func (c *Controller) persist(ctx context.Context, game domain.Game) error {
	if err := c.registry.Update(ctx, game); err != nil {
		return fmt.Errorf("failed to persist game %d: %w", game.ID, err)
	}
	c.store(game)
	return nil
}

func (c *Controller) store(game domain.Game) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.games[game.ID]; !ok {
		// ids are assigned in insertion order
		i := sort.Search(len(c.order), func(i int) bool { return c.order[i] > game.ID })
		c.order = append(c.order, 0)
		copy(c.order[i+1:], c.order[i:])
		c.order[i] = game.ID
	}
	c.games[game.ID] = game
}

func (c *Controller) drop(id int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.games[id]; !ok {
		return
	}
	delete(c.games, id)
	for i, v := range c.order {
		if v == id {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
}

func (c *Controller) replaceAll(games []domain.Game) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.games = make(map[int64]domain.Game, len(games))
	c.order = make([]int64, 0, len(games))
	for _, g := range games {
		c.games[g.ID] = g
		c.order = append(c.order, g.ID)
	}
}
