package query

import (
	"setexec/pkg/dberror"
	"setexec/pkg/iterator"
	"setexec/pkg/session"
	"setexec/pkg/tuple"
)

// LimitOptions enables the optional behaviours of LimitOffset.
type LimitOptions struct {
	// CountAllRows keeps reading the source after the limit is reached so
	// that SeenRows reports the full input size.
	CountAllRows bool

	// RejectMultipleRows makes a second row after the offset an
	// ErrSubqueryMultipleRows error, for scalar subqueries.
	RejectMultipleRows bool
}

// LimitOffset implements SQL LIMIT and OFFSET functionality.
// It restricts the number of tuples returned by a query and allows
// skipping a specified number of tuples from the beginning.
//
// The offset is skipped on the first Read rather than in Init, so that
// initializing a plan never pulls rows nobody asked for.
//
// Example: SELECT * FROM users LIMIT 10 OFFSET 5
// Returns 10 tuples starting from the 6th tuple.
type LimitOffset struct {
	*iterator.UnaryOperator
	limit  uint64
	offset uint64
	opts   LimitOptions

	needsOffset bool
	seen        uint64 // rows read from the source, offset included
	returned    uint64
}

// NewLimitOffset creates a LimitOffset over child.
//
// Parameters:
//   - child: The underlying source that provides tuples
//   - limit: Maximum number of tuples to return
//   - offset: Number of tuples to skip from the beginning
//   - opts: Optional count-all and scalar-cardinality behaviour
func NewLimitOffset(child iterator.RowSource, limit, offset uint64, opts LimitOptions) (*LimitOffset, error) {
	l := &LimitOffset{
		limit:  limit,
		offset: offset,
		opts:   opts,
	}

	unaryOp, err := iterator.NewUnaryOperator(child, l.readNext)
	if err != nil {
		return nil, err
	}
	l.UnaryOperator = unaryOp

	return l, nil
}

// Init initializes the child and arms the offset skip for the first Read.
func (l *LimitOffset) Init(ec *session.ExecContext) error {
	if err := l.UnaryOperator.Init(ec); err != nil {
		return err
	}
	l.needsOffset = l.offset > 0
	l.seen = 0
	l.returned = 0
	return nil
}

// SeenRows returns how many rows the source produced so far. With
// CountAllRows this is the full input size once Read reported end of stream.
func (l *LimitOffset) SeenRows() uint64 {
	return l.seen
}

func (l *LimitOffset) readNext() (*tuple.Tuple, error) {
	if l.needsOffset {
		l.needsOffset = false
		eof, err := l.skipOffset()
		if err != nil || eof {
			return nil, err
		}
	}

	if l.returned >= l.limit {
		return nil, l.pastLimit()
	}

	t, err := l.FetchNext()
	if err != nil || t == nil {
		return t, err
	}
	l.seen++

	if l.opts.RejectMultipleRows && l.returned > 0 {
		return nil, dberror.SubqueryMultipleRows()
	}
	l.returned++
	return t, nil
}

// skipOffset discards offset rows. It reports eof when the source ran out
// first.
func (l *LimitOffset) skipOffset() (bool, error) {
	for l.seen < l.offset {
		t, err := l.FetchNext()
		if err != nil {
			return false, err
		}
		if t == nil {
			return true, nil
		}
		l.seen++
	}
	return false, nil
}

// pastLimit runs once the limit is reached: it enforces the scalar
// cardinality check and, in count-all mode, drains the rest of the source.
func (l *LimitOffset) pastLimit() error {
	if l.opts.RejectMultipleRows && l.returned > 0 {
		t, err := l.FetchNext()
		if err != nil {
			return err
		}
		if t != nil {
			return dberror.SubqueryMultipleRows()
		}
		return nil
	}

	if !l.opts.CountAllRows {
		return nil
	}
	for {
		t, err := l.FetchNext()
		if err != nil || t == nil {
			return err
		}
		l.seen++
	}
}
