package log

import logAdapter "github.com/bft-labs/meshlink/internal/adapters/log"

// NewNoopLogger creates a Logger that discards all messages.
func NewNoopLogger() Logger {
	return logAdapter.NewNoopLogger()
}
