package logging

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/cockroachdb/errors"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	mu       sync.Mutex
	logger   *slog.Logger
	rotating io.Closer // set while logging to a file
)

// LogLevel is the [logging] level key of the config file.
type LogLevel string

const (
	LevelDebug LogLevel = "DEBUG"
	LevelInfo  LogLevel = "INFO"
	LevelWarn  LogLevel = "WARN"
	LevelError LogLevel = "ERROR"
)

// Config is the [logging] table of the config file. An empty OutputPath
// logs to stderr; otherwise the file is rotated by size and age.
type Config struct {
	Level      LogLevel `toml:"level"`
	OutputPath string   `toml:"output_path"`
	Format     string   `toml:"format"` // "json" or "text"

	MaxSizeMB  int  `toml:"max_size_mb"`
	MaxBackups int  `toml:"max_backups"`
	MaxAgeDays int  `toml:"max_age_days"`
	Compress   bool `toml:"compress"`
}

// ParseLevel maps a LogLevel to a slog level, defaulting to INFO.
func ParseLevel(l LogLevel) slog.Level {
	switch l {
	case LevelDebug:
		return slog.LevelDebug
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NewHandler builds the slog handler described by config writing to w.
func NewHandler(w io.Writer, config Config) slog.Handler {
	opts := &slog.HandlerOptions{Level: ParseLevel(config.Level)}
	if config.Format == "json" {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}

// Init installs the process logger. It fails if a logger is already
// installed; Close first to replace it.
func Init(config Config) error {
	mu.Lock()
	defer mu.Unlock()

	if logger != nil {
		return errors.New("logger already initialized")
	}

	var w io.Writer = os.Stderr
	if config.OutputPath != "" {
		if err := os.MkdirAll(filepath.Dir(config.OutputPath), 0o750); err != nil {
			return errors.Wrap(err, "creating log directory")
		}
		file := &lumberjack.Logger{
			Filename:   config.OutputPath,
			MaxSize:    config.MaxSizeMB,
			MaxBackups: config.MaxBackups,
			MaxAge:     config.MaxAgeDays,
			Compress:   config.Compress,
		}
		w, rotating = file, file
	}

	logger = slog.New(NewHandler(w, config))
	return nil
}

// Close flushes and closes the log file, if any, and uninstalls the logger.
// Calling it without a logger installed is a no-op.
func Close() error {
	mu.Lock()
	defer mu.Unlock()

	var err error
	if rotating != nil {
		err = rotating.Close()
		rotating = nil
	}
	logger = nil
	return err
}

// GetLogger returns the process logger. Before Init it installs an INFO text
// logger on stderr.
func GetLogger() *slog.Logger {
	mu.Lock()
	defer mu.Unlock()

	if logger == nil {
		logger = slog.New(NewHandler(os.Stderr, Config{Level: LevelInfo}))
	}
	return logger
}
