package tuple

import (
	"fmt"
	"setexec/pkg/primitives"
	"setexec/pkg/types"
	"strings"
)

// Tuple represents a row of data.
//
// Tuples handed out by a row source may be reused by that source on the next
// Read; a consumer that needs to keep a row across reads must Clone it.
type Tuple struct {
	TupleDesc *TupleDescription // Schema of this tuple
	fields    []types.Field     // The actual field values; nil means NULL
	RowID     primitives.RowID  // Where this tuple is stored (InvalidRowID if not stored)
}

// NewTuple creates a new tuple with the given schema; all fields start as NULL.
func NewTuple(td *TupleDescription) *Tuple {
	return &Tuple{
		TupleDesc: td,
		fields:    make([]types.Field, td.NumFields()),
	}
}

// SetField sets the ith field. A nil field stores NULL.
func (t *Tuple) SetField(i int, field types.Field) error {
	if i < 0 || i >= len(t.fields) {
		return fmt.Errorf("field index %d out of bounds [0, %d)", i, len(t.fields))
	}

	if field != nil {
		expectedType := t.TupleDesc.Types[i]
		if field.Type() != expectedType {
			return fmt.Errorf("field type mismatch: expected %v, got %v",
				expectedType, field.Type())
		}
	}

	t.fields[i] = field
	return nil
}

// GetField returns the value of the ith field
func (t *Tuple) GetField(i int) (types.Field, error) {
	if i < 0 || i >= len(t.fields) {
		return nil, fmt.Errorf("field index %d out of bounds [0, %d)", i, len(t.fields))
	}
	return t.fields[i], nil
}

// NumFields returns the number of fields.
func (t *Tuple) NumFields() int {
	return len(t.fields)
}

// SetNull marks every field NULL, producing the null-complemented row used by
// outer joins.
func (t *Tuple) SetNull() {
	clear(t.fields)
}

// String returns a string representation of this tuple
// Format: field1\tfield2\tfield3\t...\tfieldN
func (t *Tuple) String() string {
	parts := make([]string, 0, len(t.fields))
	for _, field := range t.fields {
		if field != nil {
			parts = append(parts, field.String())
		} else {
			parts = append(parts, "null")
		}
	}
	return strings.Join(parts, "\t")
}

// Clone creates a copy of this tuple that is independent of the original's
// field slice. Fields are immutable values and are shared.
func (t *Tuple) Clone() *Tuple {
	newTup := &Tuple{
		TupleDesc: t.TupleDesc,
		fields:    make([]types.Field, len(t.fields)),
		RowID:     t.RowID,
	}
	copy(newTup.fields, t.fields)
	return newTup
}

// CopyFrom overwrites t's fields with src's. Both must share a schema width.
func (t *Tuple) CopyFrom(src *Tuple) {
	copy(t.fields, src.fields)
	t.RowID = src.RowID
}

// CombineTuples combines two tuples into a single tuple
// This is useful for joins where we concatenate tuples from different tables
func CombineTuples(t1, t2 *Tuple) (*Tuple, error) {
	if t1 == nil || t2 == nil {
		return nil, fmt.Errorf("cannot combine nil tuples")
	}

	newTuple := NewTuple(Combine(t1.TupleDesc, t2.TupleDesc))
	copy(newTuple.fields, t1.fields)
	copy(newTuple.fields[len(t1.fields):], t2.fields)
	return newTuple, nil
}

// Equal reports whether a and b hold the same values column by column. NULL
// equals NULL, which is the DISTINCT/set-operation notion of equality.
func Equal(a, b *Tuple) bool {
	if len(a.fields) != len(b.fields) {
		return false
	}

	for i := range a.fields {
		if types.CompareFields(a.fields[i], b.fields[i]) != 0 {
			return false
		}
	}
	return true
}

// Compare orders a and b column by column.
func Compare(a, b *Tuple) int {
	n := min(len(a.fields), len(b.fields))
	for i := 0; i < n; i++ {
		if c := types.CompareFields(a.fields[i], b.fields[i]); c != 0 {
			return c
		}
	}
	return len(a.fields) - len(b.fields)
}
