package query

import (
	"setexec/pkg/iterator"
	"setexec/pkg/primitives"
	"setexec/pkg/session"
	"setexec/pkg/storage/rowstore"
	"setexec/pkg/tuple"
)

// CopiesFunc maps a stored row's counter to the number of times the row is
// emitted.
type CopiesFunc func(counter uint64) uint64

// TableScan reads a row store in row id order. With a CopiesFunc each row
// is repeated according to its counter, which is how the results of
// INTERSECT ALL and EXCEPT ALL are expanded.
type TableScan struct {
	*iterator.BaseSource
	store  *rowstore.Store
	copies CopiesFunc

	cursor    *rowstore.Cursor
	row       *tuple.Tuple
	remaining uint64
	pos       primitives.RowID
}

// NewTableScan creates a scan of store. A nil copies emits every row once.
func NewTableScan(store *rowstore.Store, copies CopiesFunc) *TableScan {
	ts := &TableScan{store: store, copies: copies}
	ts.BaseSource = iterator.NewBaseSource(store.Schema(), ts.readNext)
	return ts
}

func (ts *TableScan) Init(ec *session.ExecContext) error {
	ts.InitBase(ec)
	ts.cursor = ts.store.NewCursor()
	ts.row = nil
	ts.remaining = 0
	ts.pos = primitives.InvalidRowID
	return nil
}

func (ts *TableScan) readNext() (*tuple.Tuple, error) {
	if ts.remaining > 0 {
		ts.remaining--
		return ts.row, nil
	}
	for {
		row, counter, err := ts.cursor.Next()
		if err != nil || row == nil {
			return nil, err
		}
		n := uint64(1)
		if ts.copies != nil {
			n = ts.copies(counter)
		}
		if n == 0 {
			continue
		}
		ts.row = row
		ts.pos = row.RowID
		ts.remaining = n - 1
		return row, nil
	}
}

// PositionedRowID returns the row id of the last row returned.
func (ts *TableScan) PositionedRowID() primitives.RowID {
	return ts.pos
}

// FollowTail reads the rows of a store that is still being appended to,
// restricted to a window of row ids. Recursive materialization points it at
// the rows the previous round produced while the current round appends
// after them.
type FollowTail struct {
	*iterator.BaseSource
	store *rowstore.Store

	after  primitives.RowID
	upTo   primitives.RowID
	cursor *rowstore.Cursor
	pos    primitives.RowID
}

// NewFollowTail creates a tail reader over store. SetWindow selects the rows
// each Init reads.
func NewFollowTail(store *rowstore.Store) *FollowTail {
	ft := &FollowTail{store: store}
	ft.BaseSource = iterator.NewBaseSource(store.Schema(), ft.readNext)
	return ft
}

// SetWindow makes the next Init read rows with after < id <= upTo.
func (ft *FollowTail) SetWindow(after, upTo primitives.RowID) {
	ft.after = after
	ft.upTo = upTo
}

func (ft *FollowTail) Init(ec *session.ExecContext) error {
	ft.InitBase(ec)
	ft.cursor = ft.store.NewCursor()
	ft.cursor.SeekAfter(ft.after)
	ft.pos = primitives.InvalidRowID
	return nil
}

func (ft *FollowTail) readNext() (*tuple.Tuple, error) {
	if ft.cursor.Position() >= ft.upTo {
		return nil, nil
	}
	row, _, err := ft.cursor.Next()
	if err != nil || row == nil {
		return nil, err
	}
	ft.pos = row.RowID
	return row, nil
}

// PositionedRowID returns the row id of the last row returned.
func (ft *FollowTail) PositionedRowID() primitives.RowID {
	return ft.pos
}
