package query

import (
	"fmt"

	"setexec/pkg/iterator"
	"setexec/pkg/session"
	"setexec/pkg/tuple"
)

// JoinType selects what NestedLoop emits for each outer row.
type JoinType int

const (
	// JoinInner emits one joined row per matching inner row.
	JoinInner JoinType = iota
	// JoinOuter is JoinInner plus one NULL-complemented row for outer rows
	// without a match.
	JoinOuter
	// JoinSemi emits each outer row that has at least one match, once.
	JoinSemi
	// JoinAnti emits each outer row that has no match.
	JoinAnti
)

func (j JoinType) String() string {
	switch j {
	case JoinInner:
		return "INNER"
	case JoinOuter:
		return "OUTER"
	case JoinSemi:
		return "SEMI"
	case JoinAnti:
		return "ANTI"
	default:
		return fmt.Sprintf("JoinType(%d)", int(j))
	}
}

// JoinCondition decides whether an inner row matches the current outer row.
type JoinCondition func(outer, inner *tuple.Tuple) (bool, error)

type nestedLoopState int

const (
	needsOuterRow nestedLoopState = iota
	readingFirstInnerRow
	readingInnerRows
	endOfRows
)

// NestedLoop joins every outer row with the rows of inner, which is
// re-initialized once per outer row. SEMI and ANTI stop scanning the inner
// side at the first match.
type NestedLoop struct {
	*iterator.BaseSource
	outer    iterator.RowSource
	inner    iterator.RowSource
	joinType JoinType
	cond     JoinCondition

	state    nestedLoopState
	outerRow *tuple.Tuple
	joined   *tuple.Tuple
}

// NewNestedLoop creates a join of outer and inner. A nil cond matches every
// pair.
func NewNestedLoop(outer, inner iterator.RowSource, joinType JoinType, cond JoinCondition) (*NestedLoop, error) {
	if outer == nil || inner == nil {
		return nil, fmt.Errorf("nested loop join needs both children")
	}

	schema := outer.Schema()
	if joinType == JoinInner || joinType == JoinOuter {
		schema = tuple.Combine(outer.Schema(), inner.Schema())
	}

	n := &NestedLoop{
		outer:    outer,
		inner:    inner,
		joinType: joinType,
		cond:     cond,
	}
	n.BaseSource = iterator.NewBaseSource(schema, n.readNext)
	if joinType == JoinInner || joinType == JoinOuter {
		n.joined = tuple.NewTuple(schema)
	}
	return n, nil
}

func (n *NestedLoop) Init(ec *session.ExecContext) error {
	n.InitBase(ec)
	n.state = needsOuterRow
	n.outerRow = nil
	return n.outer.Init(ec)
}

func (n *NestedLoop) readNext() (*tuple.Tuple, error) {
	for {
		switch n.state {
		case endOfRows:
			return nil, nil

		case needsOuterRow:
			row, err := n.outer.Read()
			if err != nil {
				return nil, err
			}
			if row == nil {
				n.state = endOfRows
				return nil, nil
			}
			n.outerRow = row
			if err := n.inner.Init(n.ExecContext()); err != nil {
				return nil, err
			}
			n.state = readingFirstInnerRow

		case readingFirstInnerRow, readingInnerRows:
			inner, err := n.inner.Read()
			if err != nil {
				return nil, err
			}
			if inner == nil {
				unmatched := n.state == readingFirstInnerRow
				n.state = needsOuterRow
				if !unmatched {
					continue
				}
				switch n.joinType {
				case JoinOuter:
					return n.join(nil)
				case JoinAnti:
					return n.outerRow, nil
				}
				continue
			}

			if n.cond != nil {
				ok, err := n.cond(n.outerRow, inner)
				if err != nil {
					return nil, err
				}
				if !ok {
					n.inner.UnlockRow()
					continue
				}
			}

			switch n.joinType {
			case JoinSemi:
				n.state = needsOuterRow
				return n.outerRow, nil
			case JoinAnti:
				n.state = needsOuterRow
				n.outer.UnlockRow()
				continue
			}
			n.state = readingInnerRows
			return n.join(inner)
		}
	}
}

// join fills the output row with the outer row followed by inner, or by
// NULLs when inner is nil.
func (n *NestedLoop) join(inner *tuple.Tuple) (*tuple.Tuple, error) {
	width := n.outerRow.NumFields()
	for i := 0; i < width; i++ {
		f, err := n.outerRow.GetField(i)
		if err != nil {
			return nil, err
		}
		if err := n.joined.SetField(i, f); err != nil {
			return nil, err
		}
	}
	for i := 0; i < n.inner.Schema().NumFields(); i++ {
		if inner == nil {
			if err := n.joined.SetField(width+i, nil); err != nil {
				return nil, err
			}
			continue
		}
		f, err := inner.GetField(i)
		if err != nil {
			return nil, err
		}
		if err := n.joined.SetField(width+i, f); err != nil {
			return nil, err
		}
	}
	return n.joined, nil
}

func (n *NestedLoop) UnlockRow() {
	n.outer.UnlockRow()
	if n.joinType == JoinInner || n.joinType == JoinOuter {
		n.inner.UnlockRow()
	}
}

func (n *NestedLoop) SetNullRowFlag(isNull bool) {
	n.outer.SetNullRowFlag(isNull)
	n.inner.SetNullRowFlag(isNull)
}

func (n *NestedLoop) StartBatchMode() {
	n.inner.StartBatchMode()
}

func (n *NestedLoop) EndBatchMode() {
	n.inner.EndBatchMode()
}

func (n *NestedLoop) Close() error {
	outerErr := n.outer.Close()
	innerErr := n.inner.Close()
	if outerErr != nil {
		return outerErr
	}
	return innerErr
}
