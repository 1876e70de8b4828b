package materialize

import (
	"setexec/pkg/iterator"
	"setexec/pkg/primitives"
	"setexec/pkg/session"
	"setexec/pkg/tuple"
)

// RecursiveReference is the self-reference of a recursive query: a source
// over the rows of the table being materialized that the previous round
// added. It is valid inside the recursive operands of its
// MaterializeIterator only.
type RecursiveReference struct {
	*iterator.BaseSource
	m *MaterializeIterator
}

func newRecursiveReference(m *MaterializeIterator) *RecursiveReference {
	r := &RecursiveReference{m: m}
	r.BaseSource = iterator.NewBaseSource(m.opts.Schema, r.readNext)
	return r
}

func (r *RecursiveReference) Init(ec *session.ExecContext) error {
	r.InitBase(ec)
	return r.m.tail.Init(ec)
}

func (r *RecursiveReference) readNext() (*tuple.Tuple, error) {
	return r.m.tail.Read()
}

// PositionedRowID returns the row id of the last row returned.
func (r *RecursiveReference) PositionedRowID() primitives.RowID {
	return r.m.tail.PositionedRowID()
}
