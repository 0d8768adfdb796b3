package http

import (
	"context"
	"errors"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/melih/gamehost/internal/core/domain"
	"github.com/melih/gamehost/internal/core/ports"
	"github.com/melih/gamehost/internal/core/services"
)

// GameService is the lifecycle surface the handlers drive.
type GameService interface {
	List() []domain.Game
	Get(ctx context.Context, id int64) (domain.Game, error)
	Register(ctx context.Context, dir domain.GameDirectory, containerName, image string) (domain.Game, error)
	Start(ctx context.Context, id int64) (domain.Game, error)
	Stop(ctx context.Context, id int64) (domain.Game, error)
	Reconcile(ctx context.Context, id int64) (domain.Game, error)
	ReconcileAll(ctx context.Context) ([]domain.Game, error)
	Remove(ctx context.Context, id int64) error
}

// Provisioner imports games from git and builds their images.
type Provisioner interface {
	Import(ctx context.Context, repoURL, name, containerName, image string) (domain.Game, error)
	BuildImage(ctx context.Context, id int64) (domain.Game, error)
}

type GameHandler struct {
	games       GameService
	provisioner Provisioner
	logs        ports.LogStreamer
	marker      string
}

// NewGameHandler wires the handlers. provisioner and logs may be nil, in
// which case their routes answer 501.
func NewGameHandler(games GameService, provisioner Provisioner, logs ports.LogStreamer, marker string) *GameHandler {
	return &GameHandler{games: games, provisioner: provisioner, logs: logs, marker: marker}
}

// Routes mounts the game endpoints on r.
func (h *GameHandler) Routes(r fiber.Router) {
	games := r.Group("/games")
	games.Get("/", h.ListGames)
	games.Post("/", h.CreateGame)
	games.Post("/import", h.ImportGame)
	games.Post("/reconcile", h.ReconcileAll)
	games.Get("/:id", h.GetGame)
	games.Delete("/:id", h.DeleteGame)
	games.Post("/:id/start", h.StartGame)
	games.Post("/:id/stop", h.StopGame)
	games.Post("/:id/reconcile", h.ReconcileGame)
	games.Post("/:id/build", h.BuildImage)
	games.Get("/:id/logs", h.GetGameLogs)
}

type CreateGameRequest struct {
	Directory     string `json:"directory"`
	ContainerName string `json:"container_name"`
	Image         string `json:"image"`
}

type ImportGameRequest struct {
	RepoURL       string `json:"repo_url"`
	Name          string `json:"name"`
	ContainerName string `json:"container_name"`
	Image         string `json:"image"`
}

func (h *GameHandler) ListGames(c *fiber.Ctx) error {
	return c.JSON(h.games.List())
}

func (h *GameHandler) GetGame(c *fiber.Ctx) error {
	id, err := gameID(c)
	if err != nil {
		return badRequest(c, err)
	}
	game, err := h.games.Get(c.Context(), id)
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(game)
}

func (h *GameHandler) CreateGame(c *fiber.Ctx) error {
	var req CreateGameRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	dir, err := services.ValidateDirectory(req.Directory, h.marker)
	if err != nil {
		return errorResponse(c, err)
	}
	game, err := h.games.Register(c.Context(), dir, req.ContainerName, req.Image)
	if err != nil {
		return errorResponse(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(game)
}

func (h *GameHandler) ImportGame(c *fiber.Ctx) error {
	if h.provisioner == nil {
		return c.Status(fiber.StatusNotImplemented).JSON(fiber.Map{"error": "import is not configured"})
	}
	var req ImportGameRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if req.RepoURL == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "repo_url is required",
		})
	}
	game, err := h.provisioner.Import(c.Context(), req.RepoURL, req.Name, req.ContainerName, req.Image)
	if err != nil {
		return errorResponse(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(game)
}

func (h *GameHandler) StartGame(c *fiber.Ctx) error {
	return h.withGame(c, h.games.Start)
}

func (h *GameHandler) StopGame(c *fiber.Ctx) error {
	return h.withGame(c, h.games.Stop)
}

func (h *GameHandler) ReconcileGame(c *fiber.Ctx) error {
	return h.withGame(c, h.games.Reconcile)
}

func (h *GameHandler) BuildImage(c *fiber.Ctx) error {
	if h.provisioner == nil {
		return c.Status(fiber.StatusNotImplemented).JSON(fiber.Map{"error": "image builds are not configured"})
	}
	return h.withGame(c, h.provisioner.BuildImage)
}

func (h *GameHandler) ReconcileAll(c *fiber.Ctx) error {
	games, err := h.games.ReconcileAll(c.Context())
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(games)
}

func (h *GameHandler) DeleteGame(c *fiber.Ctx) error {
	id, err := gameID(c)
	if err != nil {
		return badRequest(c, err)
	}
	if err := h.games.Remove(c.Context(), id); err != nil {
		return errorResponse(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *GameHandler) GetGameLogs(c *fiber.Ctx) error {
	if h.logs == nil {
		return c.Status(fiber.StatusNotImplemented).JSON(fiber.Map{"error": "logs are not available"})
	}
	id, err := gameID(c)
	if err != nil {
		return badRequest(c, err)
	}
	game, err := h.games.Get(c.Context(), id)
	if err != nil {
		return errorResponse(c, err)
	}
	logs, err := h.logs.Logs(c.Context(), game.ContainerName)
	if err != nil {
		return errorResponse(c, err)
	}
	// SendStream closes the reader once the body is written.
	c.Set("Content-Type", "text/plain")
	return c.SendStream(logs)
}

// withGame runs op against the :id param and renders the game. On failure
// the last known game is returned next to the error.
func (h *GameHandler) withGame(c *fiber.Ctx, op func(context.Context, int64) (domain.Game, error)) error {
	id, err := gameID(c)
	if err != nil {
		return badRequest(c, err)
	}
	game, err := op(c.Context(), id)
	if err != nil {
		if game.ID != 0 {
			return errorResponseWithGame(c, err, &game)
		}
		return errorResponse(c, err)
	}
	return c.JSON(game)
}

var errBadGameID = errors.New("game ID must be a positive integer")

func gameID(c *fiber.Ctx) (int64, error) {
	id, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, errBadGameID
	}
	return id, nil
}

func badRequest(c *fiber.Ctx, err error) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
		"error": err.Error(),
	})
}

func errorResponse(c *fiber.Ctx, err error) error {
	return errorResponseWithGame(c, err, nil)
}

func errorResponseWithGame(c *fiber.Ctx, err error, game *domain.Game) error {
	status, reason := statusFor(err)
	body := fiber.Map{"error": err.Error()}
	if reason != "" {
		body["reason"] = reason
	}
	if game != nil {
		body["game"] = game
	}
	return c.Status(status).JSON(body)
}

func statusFor(err error) (int, string) {
	var launchErr *domain.LaunchError
	var stopErr *domain.StopError
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return fiber.StatusNotFound, ""
	case errors.Is(err, domain.ErrInvalidDirectory):
		return fiber.StatusBadRequest, ""
	case errors.Is(err, domain.ErrPortExhausted):
		return fiber.StatusConflict, "port_exhausted"
	case errors.Is(err, domain.ErrPortTaken):
		return fiber.StatusConflict, "port_taken"
	case errors.Is(err, domain.ErrRuntimeUnreachable):
		return fiber.StatusServiceUnavailable, "runtime_unreachable"
	case errors.As(err, &launchErr):
		if launchErr.Reason == domain.ReasonOther {
			return fiber.StatusBadGateway, launchErr.Reason.String()
		}
		return fiber.StatusConflict, launchErr.Reason.String()
	case errors.As(err, &stopErr):
		return fiber.StatusBadGateway, "stop_failed"
	default:
		return fiber.StatusInternalServerError, ""
	}
}
