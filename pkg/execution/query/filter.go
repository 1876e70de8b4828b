package query

import (
	"fmt"

	"setexec/pkg/iterator"
	"setexec/pkg/tuple"
)

// Filter represents a filtering operator that applies a predicate to each tuple
// from its source operator, only returning tuples that satisfy the predicate condition.
// Rejected rows are unlocked in the source before the next one is read.
type Filter struct {
	*iterator.UnaryOperator
	predicate *Predicate
}

// NewFilter creates a new Filter operator with the specified predicate and source.
func NewFilter(predicate *Predicate, source iterator.RowSource) (*Filter, error) {
	if predicate == nil {
		return nil, fmt.Errorf("predicate cannot be nil")
	}

	f := &Filter{predicate: predicate}
	unaryOp, err := iterator.NewUnaryOperator(source, f.readNext)
	if err != nil {
		return nil, err
	}
	f.UnaryOperator = unaryOp
	return f, nil
}

// readNext keeps pulling from the source until a row satisfies the predicate
// or the input is exhausted.
func (f *Filter) readNext() (*tuple.Tuple, error) {
	for {
		t, err := f.FetchNext()
		if err != nil || t == nil {
			return t, err
		}

		passes, err := f.predicate.Filter(t)
		if err != nil {
			return nil, fmt.Errorf("predicate evaluation failed: %w", err)
		}

		if passes {
			return t, nil
		}
		f.GetChild().UnlockRow()
	}
}
