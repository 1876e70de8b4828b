// Package logging provides a process-wide structured logger for setexec.
//
// The package wraps [log/slog] and exposes a single global logger instance
// that is initialized once and then retrieved via GetLogger. All subsystems
// should obtain a logger through this package rather than constructing their
// own slog.Logger values, so that log level and output destination are
// controlled from a single place.
//
// # Initialisation
//
// Call Init once at program startup. Without it, GetLogger falls back to an
// INFO text logger on stderr:
//
//	if err := logging.Init(logging.Config{Level: logging.LevelDebug, OutputPath: "/var/log/setexec/exec.log"}); err != nil {
//	    log.Fatal(err)
//	}
//
// File output is rotated by lumberjack according to MaxSizeMB, MaxBackups
// and MaxAgeDays.
//
// # Context helpers
//
// Several helpers return child loggers pre-populated with structured fields:
//
//	log := logging.WithComponent("setops")  // adds component field
//	log := logging.WithOperator("except")   // adds operator field
package logging
