package logger

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

var (
	// Logger is the global logger instance
	Logger = zerolog.New(os.Stdout).With().Timestamp().Logger()
)

// Init initializes the global logger for a named service
func Init(level, service string) {
	logLevel, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		logLevel = zerolog.InfoLevel
	}

	zerolog.SetGlobalLevel(logLevel)

	var output io.Writer = os.Stdout

	// Pretty console logging in development
	if os.Getenv("ENV") == "development" {
		output = zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		}
	}

	ctx := zerolog.New(output).
		With().
		Timestamp().
		Caller()
	if service != "" {
		ctx = ctx.Str("service", service)
	}
	Logger = ctx.Logger()

	Logger.Info().
		Str("level", logLevel.String()).
		Msg("logger initialized")
}

// WithComponent returns a logger with a component field
func WithComponent(component string) zerolog.Logger {
	return Logger.With().Str("component", component).Logger()
}

// WithRequestID returns a logger with a request ID field
func WithRequestID(requestID string) zerolog.Logger {
	return Logger.With().Str("request_id", requestID).Logger()
}
