package iterator

import (
	"setexec/pkg/session"
	"setexec/pkg/tuple"
)

// SliceIterator provides a generic iterator over a slice of any type T.
// This encapsulates the common pattern of iterating through materialized data
// stored in a slice, eliminating duplicate slice+index logic across operators.
type SliceIterator[T any] struct {
	data         []T // The underlying slice to iterate over
	currentIndex int // Current position in the slice
}

// NewSliceIterator creates a new iterator over the given slice.
func NewSliceIterator[T any](data []T) *SliceIterator[T] {
	return &SliceIterator[T]{data: data}
}

// HasNext checks if there are more elements available.
func (it *SliceIterator[T]) HasNext() bool {
	return it.currentIndex < len(it.data)
}

// Next returns the next element and advances. ok is false when exhausted.
func (it *SliceIterator[T]) Next() (elem T, ok bool) {
	if it.currentIndex >= len(it.data) {
		return elem, false
	}
	elem = it.data[it.currentIndex]
	it.currentIndex++
	return elem, true
}

// Rewind resets the iterator position to the beginning of the slice.
func (it *SliceIterator[T]) Rewind() {
	it.currentIndex = 0
}

// Len returns the total number of elements in the slice.
func (it *SliceIterator[T]) Len() int {
	return len(it.data)
}

// SliceSource is a RowSource over rows held in memory. It hands out a
// per-source copy of each row so consumers cannot alter the backing data.
type SliceSource struct {
	*BaseSource
	rows    *SliceIterator[*tuple.Tuple]
	current *tuple.Tuple

	// Inits counts calls to Init; tests use it to observe re-execution.
	Inits int
}

// NewSliceSource creates a source that yields rows in order on every Init.
func NewSliceSource(schema *tuple.TupleDescription, rows []*tuple.Tuple) *SliceSource {
	s := &SliceSource{
		rows:    NewSliceIterator(rows),
		current: tuple.NewTuple(schema),
	}
	s.BaseSource = NewBaseSource(schema, s.readNext)
	return s
}

func (s *SliceSource) Init(ec *session.ExecContext) error {
	s.InitBase(ec)
	s.rows.Rewind()
	s.Inits++
	return nil
}

func (s *SliceSource) readNext() (*tuple.Tuple, error) {
	row, ok := s.rows.Next()
	if !ok {
		return nil, nil
	}
	s.current.CopyFrom(row)
	return s.current, nil
}
