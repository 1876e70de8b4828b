package query

import (
	"fmt"
	"sort"

	"setexec/pkg/iterator"
	"setexec/pkg/session"
	"setexec/pkg/tuple"
	"setexec/pkg/types"
)

// SortKey is one ORDER BY column.
type SortKey struct {
	Column     int
	Descending bool
}

// Sort operator orders tuples by a list of key columns. NULL sorts first in
// ascending order.
//
// Implementation:
//   - Materializes all tuples from input on the first Read (blocking operator)
//   - Sorts tuples in memory with a stable sort on the key columns
//   - Streams sorted tuples in order
//
// Sort feeds the operators that need grouped input, RemoveDuplicates and
// the streaming Aggregate.
type Sort struct {
	*iterator.UnaryOperator
	keys         []SortKey
	sorted       *iterator.SliceIterator[*tuple.Tuple]
	materialized bool
}

// NewSort creates a new Sort operator that orders tuples by keys.
//
// Parameters:
//   - child: Input source providing tuples to sort
//   - keys: Columns to sort by, most significant first
func NewSort(child iterator.RowSource, keys []SortKey) (*Sort, error) {
	if child == nil {
		return nil, fmt.Errorf("child operator cannot be nil")
	}
	if len(keys) == 0 {
		return nil, fmt.Errorf("sort needs at least one key")
	}

	td := child.Schema()
	for _, k := range keys {
		if k.Column < 0 || k.Column >= td.NumFields() {
			return nil, fmt.Errorf("sort field index %d out of bounds (schema has %d fields)",
				k.Column, td.NumFields())
		}
	}

	s := &Sort{keys: keys}
	unaryOp, err := iterator.NewUnaryOperator(child, s.readNext)
	if err != nil {
		return nil, err
	}
	s.UnaryOperator = unaryOp
	return s, nil
}

// Init initializes the child. Sorting is deferred to the first Read.
func (s *Sort) Init(ec *session.ExecContext) error {
	s.materialized = false
	s.sorted = nil
	return s.UnaryOperator.Init(ec)
}

// materializeTuples reads all tuples from the child and sorts them.
func (s *Sort) materializeTuples() error {
	tuples := make([]*tuple.Tuple, 0)
	for {
		t, err := s.FetchNext()
		if err != nil {
			return fmt.Errorf("error fetching tuple from source: %w", err)
		}
		if t == nil {
			break
		}
		tuples = append(tuples, t.Clone())
	}

	var sortErr error
	sort.SliceStable(tuples, func(i, j int) bool {
		if sortErr != nil {
			return false
		}
		cmp, err := s.compare(tuples[i], tuples[j])
		if err != nil {
			sortErr = err
			return false
		}
		return cmp < 0
	})
	if sortErr != nil {
		return fmt.Errorf("error sorting tuples: %w", sortErr)
	}

	s.sorted = iterator.NewSliceIterator(tuples)
	s.materialized = true
	return nil
}

func (s *Sort) compare(a, b *tuple.Tuple) (int, error) {
	for _, k := range s.keys {
		fa, err := a.GetField(k.Column)
		if err != nil {
			return 0, err
		}
		fb, err := b.GetField(k.Column)
		if err != nil {
			return 0, err
		}
		cmp := types.CompareFields(fa, fb)
		if k.Descending {
			cmp = -cmp
		}
		if cmp != 0 {
			return cmp, nil
		}
	}
	return 0, nil
}

// readNext returns the next tuple from the sorted slice.
func (s *Sort) readNext() (*tuple.Tuple, error) {
	if !s.materialized {
		if err := s.materializeTuples(); err != nil {
			return nil, err
		}
	}

	t, ok := s.sorted.Next()
	if !ok {
		return nil, nil
	}
	return t, nil
}
