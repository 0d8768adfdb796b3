package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/melih/gamehost/internal/observability"
	"github.com/rs/zerolog"
)

// NewApp assembles the Fiber application: subdomain proxy first, then the
// versioned API, metrics and health endpoints.
func NewApp(games *GameHandler, proxy *ProxyHandler, logger zerolog.Logger) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               "gamehost",
		DisableStartupMessage: true,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			return c.Status(code).JSON(fiber.Map{"error": err.Error()})
		},
	})
	app.Use(observability.RequestLogger(logger))
	if proxy != nil {
		app.Use(proxy.ProxyRequest)
	}

	app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})
	app.Get("/metrics", adaptor.HTTPHandler(observability.MetricsHandler()))

	v1 := app.Group("/api").Group("/v1")
	games.Routes(v1)
	return app
}
