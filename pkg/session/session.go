// Package session carries the per-query execution context: configuration,
// cancellation, temp-file system, logger and metrics. It is passed explicitly
// to every row source.
package session

import (
	"context"
	"log/slog"
	"os"
	"sync/atomic"

	"setexec/pkg/config"
	"setexec/pkg/dberror"
	"setexec/pkg/logging"
	"setexec/pkg/metrics"

	"github.com/spf13/afero"
)

// ExecContext is shared by all operators of one query. Only Kill may be called
// from another goroutine.
type ExecContext struct {
	ctx     context.Context
	killed  atomic.Bool
	nextID  atomic.Uint64
	config  *config.Config
	fs      afero.Fs
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// Option customises an ExecContext.
type Option func(*ExecContext)

// WithFs sets the file system chunk files are created on.
func WithFs(fs afero.Fs) Option {
	return func(e *ExecContext) { e.fs = fs }
}

// WithLogger overrides the component logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *ExecContext) { e.logger = l }
}

// WithMetrics sets the instruments updated by this query.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *ExecContext) { e.metrics = m }
}

// New creates an execution context. A nil cfg means config.Default().
func New(ctx context.Context, cfg *config.Config, opts ...Option) *ExecContext {
	if ctx == nil {
		ctx = context.Background()
	}
	if cfg == nil {
		cfg = config.Default()
	}

	e := &ExecContext{ctx: ctx, config: cfg}
	for _, opt := range opts {
		opt(e)
	}

	if e.fs == nil {
		e.fs = afero.NewOsFs()
	}
	if e.logger == nil {
		e.logger = logging.WithComponent("exec")
	}
	if e.metrics == nil {
		e.metrics = metrics.New(nil)
	}
	return e
}

func (e *ExecContext) Context() context.Context { return e.ctx }

func (e *ExecContext) Config() *config.Config { return e.config }

func (e *ExecContext) Fs() afero.Fs { return e.fs }

func (e *ExecContext) Logger() *slog.Logger { return e.logger }

func (e *ExecContext) Metrics() *metrics.Metrics { return e.metrics }

// TempDir is the directory chunk files and disk row stores are created in.
func (e *ExecContext) TempDir() string {
	if e.config.TempDir != "" {
		return e.config.TempDir
	}
	return os.TempDir()
}

// Kill asks the query to stop. Operators observe it at their next poll.
func (e *ExecContext) Kill() {
	e.killed.Store(true)
}

// Killed reports whether the query was killed or its context cancelled.
func (e *ExecContext) Killed() bool {
	return e.killed.Load() || e.ctx.Err() != nil
}

// CheckKilled returns ErrQueryKilled once the query has been killed. Every
// multi-row loop calls it once per row.
func (e *ExecContext) CheckKilled() error {
	if e.Killed() {
		return dberror.QueryKilled()
	}
	return nil
}

// NextID returns a query-unique number. Set operation processors mix it into
// their partitioning seed so nested operations do not share one.
func (e *ExecContext) NextID() uint64 {
	return e.nextID.Add(1)
}
