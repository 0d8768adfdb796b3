package observability

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const RequestIDHeader = "X-Request-ID"

// UnmatchedPath is the path label for requests no route claimed.
const UnmatchedPath = "unmatched"

// RequestLogger tags each request with an id, logs it and records metrics.
func RequestLogger(logger zerolog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		reqID := c.Get(RequestIDHeader)
		if reqID == "" {
			reqID = uuid.NewString()
		}
		c.Set(RequestIDHeader, reqID)

		chainErr := c.Next()
		if chainErr != nil {
			// let the app error handler pick the status before we read it
			if err := c.App().ErrorHandler(c, chainErr); err != nil {
				_ = c.SendStatus(fiber.StatusInternalServerError)
			}
		}

		status := c.Response().StatusCode()
		// unrouted requests share one label so raw URLs cannot grow the series
		path := c.Route().Path
		if path == "" || path == "/" {
			path = UnmatchedPath
		}

		event := logger.Info()
		if status >= 500 {
			event = logger.Error()
		} else if status >= 400 {
			event = logger.Warn()
		}
		event.
			Str("request_id", reqID).
			Str("method", c.Method()).
			Str("path", path).
			Int("status", status).
			Dur("duration", time.Since(start)).
			Str("client_ip", c.IP()).
			Msg("http_request")

		RecordHTTPRequest(c.Method(), path, status, time.Since(start))
		return nil
	}
}
