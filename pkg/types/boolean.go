package types

import (
	"fmt"
	"io"
	"setexec/pkg/primitives"
	"strconv"
)

// BoolField represents a boolean field type in the database.
// It stores a single boolean value and provides operations for
// serialization, comparison, and other field operations.
type BoolField struct {
	Value bool // The boolean value stored in this field
}

// NewBoolField creates a new BoolField instance with the specified boolean value.
func NewBoolField(value bool) *BoolField {
	return &BoolField{Value: value}
}

// Serialize writes the boolean field as a single byte (0 or 1).
func (b *BoolField) Serialize(w io.Writer) error {
	var byteValue byte
	if b.Value {
		byteValue = 1
	}

	_, err := w.Write([]byte{byteValue})
	return err
}

func (b *BoolField) CompareTo(other Field) int {
	o, ok := other.(*BoolField)
	if !ok {
		return compareTypes(BoolType, other.Type())
	}
	switch {
	case b.Value == o.Value:
		return 0
	case !b.Value:
		return -1
	default:
		return 1
	}
}

// Compare performs a comparison operation between this BoolField and another Field.
// false orders before true.
func (b *BoolField) Compare(op primitives.Predicate, other Field) (bool, error) {
	if _, ok := other.(*BoolField); !ok {
		return false, fmt.Errorf("cannot compare BoolField with %T", other)
	}
	return op.Holds(b.CompareTo(other)), nil
}

// Type returns the type identifier for this field.
func (b *BoolField) Type() Type {
	return BoolType
}

func (b *BoolField) String() string {
	return strconv.FormatBool(b.Value)
}

func (b *BoolField) Equals(other Field) bool {
	o, ok := other.(*BoolField)
	if !ok {
		return false
	}
	return b.Value == o.Value
}

func (b *BoolField) Length() uint32 {
	return 1
}
