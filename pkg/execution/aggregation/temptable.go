package aggregation

import (
	"fmt"
	"log/slog"

	"setexec/pkg/iterator"
	"setexec/pkg/logging"
	"setexec/pkg/primitives"
	"setexec/pkg/session"
	"setexec/pkg/storage/rowstore"
	"setexec/pkg/tuple"
)

// TemptableAggregate computes GROUP BY aggregates over unordered input. Group
// keys go into a row store with a unique index, and the accumulators of a
// group live at the index of its row id. The whole input is consumed on the
// first Read; groups are then returned in first-seen order.
type TemptableAggregate struct {
	*iterator.BaseSource
	child iterator.RowSource
	g     *grouping
	log   *slog.Logger

	store  *rowstore.Store
	groups []*accumulators
	key    *tuple.Tuple
	out    *tuple.Tuple
	cursor *rowstore.Cursor
	built  bool
}

// NewTemptableAggregate creates a hashed aggregation of child. At least one
// group column is required; use Aggregate for a scalar aggregate.
func NewTemptableAggregate(child iterator.RowSource, groupCols []int, specs []Spec) (*TemptableAggregate, error) {
	if child == nil {
		return nil, fmt.Errorf("source iterator cannot be nil")
	}
	if len(groupCols) == 0 {
		return nil, fmt.Errorf("temptable aggregation needs at least one group column")
	}
	g, err := newGrouping(child.Schema(), groupCols, specs)
	if err != nil {
		return nil, err
	}

	a := &TemptableAggregate{
		child: child,
		g:     g,
		log:   logging.WithOperator("temptable_aggregate"),
		key:   tuple.NewTuple(g.keyDesc),
		out:   tuple.NewTuple(g.outDesc),
	}
	a.BaseSource = iterator.NewBaseSource(g.outDesc, a.readNext)
	return a, nil
}

func (a *TemptableAggregate) Init(ec *session.ExecContext) error {
	a.InitBase(ec)
	a.built = false
	a.groups = a.groups[:0]
	a.cursor = nil

	if a.store == nil {
		a.store = rowstore.New(rowstore.Options{
			Schema:      a.g.keyDesc,
			Unique:      true,
			MemoryLimit: int64(ec.Config().RowStoreMemoryLimit),
			Dir:         ec.TempDir(),
			Metrics:     ec.Metrics(),
			Logger:      a.log,
		})
	} else if err := a.store.Truncate(); err != nil {
		return err
	}

	if err := a.child.Init(ec); err != nil {
		return fmt.Errorf("failed to init source iterator: %w", err)
	}
	return nil
}

// Groups returns the number of groups found so far.
func (a *TemptableAggregate) Groups() int {
	return len(a.groups)
}

func (a *TemptableAggregate) build() error {
	for {
		row, err := a.child.Read()
		if err != nil {
			return fmt.Errorf("error reading from child iterator: %w", err)
		}
		if row == nil {
			break
		}
		if err := a.g.project(a.key, row); err != nil {
			return err
		}

		id, found, err := a.store.LookupUnique(a.key)
		if err != nil {
			return err
		}
		if !found {
			if id, err = a.addGroup(); err != nil {
				return err
			}
		}
		if err := a.groups[id-1].update(row); err != nil {
			return err
		}
	}

	a.log.Debug("groups built", "groups", len(a.groups), "on_disk", a.store.Promoted())
	a.cursor = a.store.NewCursor()
	a.built = true
	return nil
}

func (a *TemptableAggregate) addGroup() (primitives.RowID, error) {
	hash, err := a.store.Hash(a.key)
	if err != nil {
		return primitives.InvalidRowID, err
	}
	id, err := a.store.Write(a.key, hash, 0)
	if err != nil {
		return primitives.InvalidRowID, err
	}
	if int(id) != len(a.groups)+1 {
		return primitives.InvalidRowID, fmt.Errorf("group row id %d out of sequence", id)
	}
	a.groups = append(a.groups, newAccumulators(a.g.specs))
	return id, nil
}

func (a *TemptableAggregate) readNext() (*tuple.Tuple, error) {
	if !a.built {
		if err := a.build(); err != nil {
			return nil, err
		}
	}

	key, _, err := a.cursor.Next()
	if err != nil || key == nil {
		return nil, err
	}
	for i := range a.g.groupCols {
		f, err := key.GetField(i)
		if err != nil {
			return nil, err
		}
		if err := a.out.SetField(i, f); err != nil {
			return nil, err
		}
	}
	if err := a.groups[key.RowID-1].fill(a.out, len(a.g.groupCols)); err != nil {
		return nil, err
	}
	return a.out, nil
}

func (a *TemptableAggregate) StartBatchMode() {
	a.child.StartBatchMode()
}

func (a *TemptableAggregate) EndBatchMode() {
	a.child.EndBatchMode()
}

func (a *TemptableAggregate) Close() error {
	childErr := a.child.Close()
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			return err
		}
	}
	return childErr
}
