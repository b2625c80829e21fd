package log

import (
	"github.com/rs/zerolog"

	logAdapter "github.com/bft-labs/meshlink/internal/adapters/log"
)

// NewZerologLogger creates a Logger writing through an existing zerolog.Logger.
func NewZerologLogger(logger zerolog.Logger) Logger {
	return logAdapter.NewZerologAdapter(logger)
}

// NewConsoleLogger creates a Logger writing human-readable lines to stderr
// at level and above.
func NewConsoleLogger(level zerolog.Level) Logger {
	return logAdapter.NewConsoleLogger(level)
}
