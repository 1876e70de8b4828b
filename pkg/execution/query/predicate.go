package query

import (
	"fmt"

	"setexec/pkg/primitives"
	"setexec/pkg/tuple"
	"setexec/pkg/types"
)

// Predicate compares a tuple field to a constant value using a specified operation.
// It encapsulates the field index, comparison operation, and the constant operand
// to create a reusable filter condition for tuple evaluation.
type Predicate struct {
	fieldIndex primitives.ColumnID  // Which field in the tuple to compare (0-based index)
	op         primitives.Predicate // The comparison operation to perform
	operand    types.Field          // The constant value to compare against
}

func NewPredicate(fieldIndex primitives.ColumnID, op primitives.Predicate, operand types.Field) *Predicate {
	return &Predicate{
		fieldIndex: fieldIndex,
		op:         op,
		operand:    operand,
	}
}

// Filter evaluates the predicate against t. A NULL field never satisfies it.
func (p *Predicate) Filter(t *tuple.Tuple) (bool, error) {
	field, err := t.GetField(int(p.fieldIndex))
	if err != nil {
		return false, err
	}

	if field == nil {
		return false, nil
	}

	return field.Compare(p.op, p.operand)
}

func (p *Predicate) String() string {
	return fmt.Sprintf("field[%d] %s %s", p.fieldIndex, p.op.String(), p.operand.String())
}

// FieldIndex returns the index of the field within the tuple that this predicate operates on.
func (p *Predicate) FieldIndex() primitives.ColumnID {
	return p.fieldIndex
}

// Operation returns the comparison operation type used by this predicate (e.g., =, <, >).
func (p *Predicate) Operation() primitives.Predicate {
	return p.op
}

// Value returns the constant operand this predicate compares the tuple field against.
func (p *Predicate) Value() types.Field {
	return p.operand
}

// ColumnsEqual returns a join condition that holds when column left of the
// outer row equals column right of the inner row. NULL matches nothing.
func ColumnsEqual(left, right int) JoinCondition {
	return func(outer, inner *tuple.Tuple) (bool, error) {
		l, err := outer.GetField(left)
		if err != nil {
			return false, err
		}
		r, err := inner.GetField(right)
		if err != nil {
			return false, err
		}
		if l == nil || r == nil {
			return false, nil
		}
		return l.Compare(primitives.Equals, r)
	}
}
