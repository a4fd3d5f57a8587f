package logger

import (
	"log/slog"
	"os"
	"time"

	"github.com/getsentry/sentry-go"
	slogmulti "github.com/samber/slog-multi"
	slogsentry "github.com/samber/slog-sentry/v2"
)

// Logger is the global structured logger
var Logger *slog.Logger

// Init initializes the global logger based on environment.
// When sentryDSN is set, error-level records are also forwarded to Sentry.
func Init(env string, sentryDSN string) {
	var handlers []slog.Handler

	if env == "production" {
		// JSON format for production (machine-readable)
		handlers = append(handlers, slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		}))
	} else {
		// Text format for development (human-readable)
		handlers = append(handlers, slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelDebug,
		}))
	}

	if sentryDSN != "" {
		err := sentry.Init(sentry.ClientOptions{
			Dsn:         sentryDSN,
			Environment: env,
		})
		if err == nil {
			handlers = append(handlers, slogsentry.Option{
				Level: slog.LevelError,
			}.NewSentryHandler())
		}
	}

	var handler slog.Handler
	if len(handlers) > 1 {
		handler = slogmulti.Fanout(handlers...)
	} else {
		handler = handlers[0]
	}

	Logger = slog.New(handler)
	slog.SetDefault(Logger)
}

// Flush waits for buffered Sentry events to be delivered.
func Flush(timeout time.Duration) {
	sentry.Flush(timeout)
}

// With returns a logger with additional key-value pairs
func With(args ...any) *slog.Logger {
	if Logger == nil {
		Init("development", "")
	}
	return Logger.With(args...)
}

// Info logs an info message
func Info(msg string, args ...any) {
	if Logger == nil {
		Init("development", "")
	}
	Logger.Info(msg, args...)
}

// Debug logs a debug message
func Debug(msg string, args ...any) {
	if Logger == nil {
		Init("development", "")
	}
	Logger.Debug(msg, args...)
}

// Warn logs a warning message
func Warn(msg string, args ...any) {
	if Logger == nil {
		Init("development", "")
	}
	Logger.Warn(msg, args...)
}

// Error logs an error message
func Error(msg string, args ...any) {
	if Logger == nil {
		Init("development", "")
	}
	Logger.Error(msg, args...)
}
