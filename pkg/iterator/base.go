package iterator

import (
	"setexec/pkg/session"
	"setexec/pkg/tuple"
)

// ReadNextFunc produces the next row of an operator, or (nil, nil) at end of
// stream.
type ReadNextFunc func() (*tuple.Tuple, error)

// BaseSource provides the parts of RowSource shared by every operator: the
// execution context, the kill poll before every read, and no-op hints.
// Operators embed it and supply their row logic as a ReadNextFunc.
type BaseSource struct {
	ec       *session.ExecContext
	schema   *tuple.TupleDescription
	readNext ReadNextFunc
	nullRow  *tuple.Tuple
	isNull   bool
	done     bool
}

// NewBaseSource creates a base with the given output schema and row logic.
func NewBaseSource(schema *tuple.TupleDescription, readNext ReadNextFunc) *BaseSource {
	return &BaseSource{schema: schema, readNext: readNext}
}

// InitBase stores the execution context and resets end-of-stream state.
// Embedding operators call it from their own Init.
func (b *BaseSource) InitBase(ec *session.ExecContext) {
	b.ec = ec
	b.done = false
}

// ExecContext returns the context passed to the last Init.
func (b *BaseSource) ExecContext() *session.ExecContext {
	return b.ec
}

// Init implements RowSource for sources with no children.
func (b *BaseSource) Init(ec *session.ExecContext) error {
	b.InitBase(ec)
	return nil
}

// Read polls for a kill and then delegates to the operator's ReadNextFunc.
// Once the function reports end of stream, Read keeps returning (nil, nil)
// until the next Init.
func (b *BaseSource) Read() (*tuple.Tuple, error) {
	if b.ec != nil {
		if err := b.ec.CheckKilled(); err != nil {
			return nil, err
		}
	}
	if b.isNull {
		if b.nullRow == nil {
			b.nullRow = tuple.NewTuple(b.schema)
		}
		return b.nullRow, nil
	}
	if b.done {
		return nil, nil
	}

	row, err := b.readNext()
	if err != nil {
		return nil, err
	}
	if row == nil {
		b.done = true
	}
	return row, nil
}

func (b *BaseSource) UnlockRow() {}

func (b *BaseSource) SetNullRowFlag(isNull bool) {
	b.isNull = isNull
}

func (b *BaseSource) StartBatchMode() {}

func (b *BaseSource) EndBatchMode() {}

func (b *BaseSource) Schema() *tuple.TupleDescription {
	return b.schema
}

func (b *BaseSource) Close() error {
	return nil
}
