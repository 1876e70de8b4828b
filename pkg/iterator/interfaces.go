package iterator

import (
	"setexec/pkg/primitives"
	"setexec/pkg/session"
	"setexec/pkg/tuple"
)

// RowSource defines the contract for all pull-based row producers in the
// execution engine. Every operator, table scan and materialization exposes
// its output through this interface, and consumers drive it one row at a time.
//
// Calls on one RowSource are sequential and single threaded.
type RowSource interface {
	// Init prepares the source for (re-)iteration. It may be called many
	// times; each call restarts the stream from the beginning. Init may run
	// nested work such as a materialization of the source's children.
	Init(ec *session.ExecContext) error

	// Read returns the next row. At end of stream it returns (nil, nil).
	//
	// The returned row is owned by the source and may be overwritten by the
	// next Read. Consumers that keep a row across calls must Clone it.
	//
	// Read polls the execution context and returns ErrQueryKilled once the
	// query has been killed.
	Read() (*tuple.Tuple, error)

	// UnlockRow tells the source that the last row it returned was rejected
	// by a consumer and any lock the source took for it may be released.
	// Sources without locking ignore it.
	UnlockRow()

	// SetNullRowFlag makes subsequent reads of this source behave as a
	// null-complemented row (outer join padding) when isNull is true.
	SetNullRowFlag(isNull bool)

	// StartBatchMode and EndBatchMode are performance hints for storage
	// sources that may prefetch; all other sources treat them as no-ops.
	StartBatchMode()
	EndBatchMode()

	// Schema returns the description of rows produced by Read. It can be
	// called regardless of iteration state.
	Schema() *tuple.TupleDescription

	// Close releases resources. Calling Close twice is safe.
	Close() error
}

// RowIDSource is implemented by sources whose rows carry a stable row id in
// tuple.Tuple.RowID, e.g. table scans over a row store.
type RowIDSource interface {
	RowSource

	// PositionedRowID returns the row id of the last row returned by Read.
	PositionedRowID() primitives.RowID
}
