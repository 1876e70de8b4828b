package query

import (
	"encoding/binary"
	"fmt"

	"setexec/pkg/iterator"
	"setexec/pkg/session"
	"setexec/pkg/tuple"

	"github.com/google/btree"
)

const weedoutDegree = 16

// rowIDKey is the concatenated big-endian row ids of the weedout tables.
type rowIDKey string

func (k rowIDKey) Less(than btree.Item) bool {
	return k < than.(rowIDKey)
}

// Weedout removes duplicates produced by a semi-join rewritten as an inner
// join: a row passes only the first time its combination of row ids from
// tables is seen. The seen set is cleared on Init.
type Weedout struct {
	*iterator.UnaryOperator
	tables []iterator.RowIDSource
	seen   *btree.BTree
	key    []byte
}

// NewWeedout creates a weedout over child keyed by the current row ids of
// tables, which must all be sources inside child.
func NewWeedout(child iterator.RowSource, tables []iterator.RowIDSource) (*Weedout, error) {
	if len(tables) == 0 {
		return nil, fmt.Errorf("weedout needs at least one table")
	}
	w := &Weedout{
		tables: tables,
		seen:   btree.New(weedoutDegree),
	}
	unaryOp, err := iterator.NewUnaryOperator(child, w.readNext)
	if err != nil {
		return nil, err
	}
	w.UnaryOperator = unaryOp
	return w, nil
}

func (w *Weedout) Init(ec *session.ExecContext) error {
	w.seen.Clear(false)
	return w.UnaryOperator.Init(ec)
}

func (w *Weedout) readNext() (*tuple.Tuple, error) {
	for {
		t, err := w.FetchNext()
		if err != nil || t == nil {
			return t, err
		}

		w.key = w.key[:0]
		for _, table := range w.tables {
			w.key = binary.BigEndian.AppendUint64(w.key, uint64(table.PositionedRowID()))
		}
		if w.seen.ReplaceOrInsert(rowIDKey(w.key)) == nil {
			return t, nil
		}
		w.GetChild().UnlockRow()
	}
}
