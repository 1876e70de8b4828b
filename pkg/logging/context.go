package logging

import (
	"log/slog"

	"github.com/dustin/go-humanize"
)

// WithComponent creates a logger with component/subsystem context.
//
// Example:
//
//	log := logging.WithComponent("setops")
//	log.Info("component initialized")
func WithComponent(component string) *slog.Logger {
	return GetLogger().With("component", component)
}

// WithOperator creates a logger with set-operation context.
//
// Example:
//
//	log := logging.WithOperator("intersect_all")
//	log.Debug("operand done", "operand", 1)
func WithOperator(op string) *slog.Logger {
	return GetLogger().With("operator", op)
}

// Bytes renders a byte count as a slog attribute in IEC units, e.g. "16 MiB".
func Bytes(key string, n int64) slog.Attr {
	if n < 0 {
		return slog.Int64(key, n)
	}
	return slog.String(key, humanize.IBytes(uint64(n)))
}
