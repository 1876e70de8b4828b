package aggregation

import (
	"fmt"

	"setexec/pkg/iterator"
	"setexec/pkg/session"
	"setexec/pkg/tuple"
)

// Aggregate computes GROUP BY aggregates over input that is already grouped
// on the key columns, emitting one row per run of equal keys. Without group
// columns it emits exactly one row, even for empty input.
type Aggregate struct {
	*iterator.BaseSource
	child iterator.RowSource
	g     *grouping
	acc   *accumulators

	first   *tuple.Tuple // first row of the current group
	out     *tuple.Tuple
	started bool
	done    bool
}

// NewAggregate creates a streaming aggregation of child.
func NewAggregate(child iterator.RowSource, groupCols []int, specs []Spec) (*Aggregate, error) {
	if child == nil {
		return nil, fmt.Errorf("source iterator cannot be nil")
	}
	g, err := newGrouping(child.Schema(), groupCols, specs)
	if err != nil {
		return nil, err
	}

	a := &Aggregate{
		child: child,
		g:     g,
		acc:   newAccumulators(specs),
		first: tuple.NewTuple(child.Schema()),
		out:   tuple.NewTuple(g.outDesc),
	}
	a.BaseSource = iterator.NewBaseSource(g.outDesc, a.readNext)
	return a, nil
}

func (a *Aggregate) Init(ec *session.ExecContext) error {
	a.InitBase(ec)
	a.started = false
	a.done = false
	a.acc.reset()
	if err := a.child.Init(ec); err != nil {
		return fmt.Errorf("failed to init source iterator: %w", err)
	}
	return nil
}

func (a *Aggregate) readNext() (*tuple.Tuple, error) {
	if a.done {
		return nil, nil
	}

	for {
		row, err := a.child.Read()
		if err != nil {
			return nil, fmt.Errorf("error reading from child iterator: %w", err)
		}

		if row == nil {
			a.done = true
			if !a.started && len(a.g.groupCols) > 0 {
				return nil, nil
			}
			return a.emit()
		}

		if !a.started {
			a.started = true
			a.first.CopyFrom(row)
		} else {
			same, err := a.g.sameKey(a.first, row)
			if err != nil {
				return nil, err
			}
			if !same {
				out, err := a.emit()
				if err != nil {
					return nil, err
				}
				a.first.CopyFrom(row)
				a.acc.reset()
				if err := a.acc.update(row); err != nil {
					return nil, err
				}
				return out, nil
			}
		}

		if err := a.acc.update(row); err != nil {
			return nil, err
		}
	}
}

func (a *Aggregate) emit() (*tuple.Tuple, error) {
	var key *tuple.Tuple
	if a.started {
		key = a.first
	}
	if err := a.g.project(a.out, key); err != nil {
		return nil, err
	}
	if err := a.acc.fill(a.out, len(a.g.groupCols)); err != nil {
		return nil, err
	}
	return a.out, nil
}

func (a *Aggregate) StartBatchMode() {
	a.child.StartBatchMode()
}

func (a *Aggregate) EndBatchMode() {
	a.child.EndBatchMode()
}

func (a *Aggregate) Close() error {
	return a.child.Close()
}
