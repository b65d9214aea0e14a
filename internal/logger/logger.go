package logger

import (
	"context"
	"io"
	stdlog "log"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Init initializes the global zerolog logger.
func Init(logLevelStr string, appEnv string) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnixMs
	parsedLevel, err := zerolog.ParseLevel(strings.ToLower(logLevelStr))
	if err != nil || logLevelStr == "" {
		parsedLevel = zerolog.InfoLevel
		log.Warn().Err(err).Msgf("Invalid log level '%s', defaulting to 'info'", logLevelStr)
	}
	zerolog.SetGlobalLevel(parsedLevel)

	var output io.Writer = os.Stdout
	if strings.ToLower(appEnv) == "development" || strings.ToLower(appEnv) == "dev" {
		output = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	}

	log.Logger = zerolog.New(output).With().Timestamp().Logger()
	zerolog.DefaultContextLogger = &log.Logger

	stdlog.SetFlags(0)
	stdlog.SetOutput(log.Logger)
}

// WithAttempt tags every log line of one authentication attempt with a fresh
// attempt id and the provider id. Use zerolog.Ctx(ctx) downstream.
func WithAttempt(ctx context.Context, providerID string) (context.Context, string) {
	attemptID := uuid.NewString()
	l := log.Logger.With().
		Str("attemptId", attemptID).
		Str("provider", providerID).
		Logger()
	return l.WithContext(ctx), attemptID
}
