package observability

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// InitLogger builds the process logger and installs it as the zerolog
// global. console selects the human-readable writer over JSON lines.
func InitLogger(app, level string, console bool) zerolog.Logger {
	var out io.Writer = os.Stdout
	if console {
		out = zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		}
	}
	logger := zerolog.New(out).Level(ParseLevel(level)).With().Timestamp().Str("app", app).Logger()
	log.Logger = logger
	return logger
}

// ParseLevel maps a config string to a zerolog level. Unknown values are info.
func ParseLevel(raw string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "disabled", "off", "none":
		return zerolog.Disabled
	default:
		return zerolog.InfoLevel
	}
}
