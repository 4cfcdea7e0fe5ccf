package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/Yogesh-MG/Iotfarming/internal/infrastructure/config"
)

// serviceName is attached to every record so logs from the daemon and the
// operator tool can be told apart in a shared sink.
const serviceName = "irrigation"

// Logger wraps slog.Logger so callers share one handler configuration and
// a common set of default attributes.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
type Logger struct {
	*slog.Logger
}

// New builds a Logger from the logging section of the configuration.
//
// Parameters:
//   - cfg: Logging configuration (level, format, output)
//   - version: Build version recorded on every entry
//
// Returns:
//   - *Logger: Configured logger ready for use
func New(cfg config.LoggingConfig, version string) *Logger {
	return NewWithWriter(cfg, version, outputFor(cfg.Output))
}

// NewWithWriter is New with an explicit destination. Tests use it to
// capture output; cfg.Output is ignored.
func NewWithWriter(cfg config.LoggingConfig, version string, w io.Writer) *Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(cfg.Level)}

	var handler slog.Handler
	if strings.EqualFold(cfg.Format, "text") {
		handler = slog.NewTextHandler(w, opts)
	} else {
		handler = slog.NewJSONHandler(w, opts)
	}

	handler = handler.WithAttrs([]slog.Attr{
		slog.String("service", serviceName),
		slog.String("version", version),
	})

	return &Logger{Logger: slog.New(handler)}
}

func outputFor(name string) io.Writer {
	if strings.EqualFold(name, "stderr") {
		return os.Stderr
	}
	return os.Stdout
}

// parseLevel maps debug, info, warn(ing) and error onto slog levels.
// Anything else is treated as info.
func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// With returns a child Logger carrying extra default attributes.
//
// Example:
//
//	bridgeLog := logger.With("component", "mqtt-bridge")
//	bridgeLog.Info("subscribed", "topic", topic)
func (l *Logger) With(args ...any) *Logger {
	return &Logger{Logger: l.Logger.With(args...)}
}

// WithDevice returns a child Logger scoped to a single device.
func (l *Logger) WithDevice(deviceID string) *Logger {
	return l.With("device_id", deviceID)
}

// Default is used before configuration has been loaded: JSON on stdout at
// info level.
func Default() *Logger {
	return New(config.LoggingConfig{
		Level:  "info",
		Format: "json",
		Output: "stdout",
	}, "dev")
}
