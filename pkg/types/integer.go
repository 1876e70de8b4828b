package types

import (
	"cmp"
	"encoding/binary"
	"fmt"
	"io"
	"setexec/pkg/primitives"
	"strconv"
)

// IntField represents a 64-bit signed integer field
type IntField struct {
	Value int64
}

func NewIntField(value int64) *IntField {
	return &IntField{Value: value}
}

func (f *IntField) Serialize(w io.Writer) error {
	bytes := make([]byte, 8)
	binary.BigEndian.PutUint64(bytes, uint64(f.Value)) // #nosec G115
	_, err := w.Write(bytes)
	return err
}

func (f *IntField) CompareTo(other Field) int {
	o, ok := other.(*IntField)
	if !ok {
		return compareTypes(IntType, other.Type())
	}
	return cmp.Compare(f.Value, o.Value)
}

func (f *IntField) Compare(op primitives.Predicate, other Field) (bool, error) {
	if _, ok := other.(*IntField); !ok {
		return false, fmt.Errorf("cannot compare IntField with %T", other)
	}
	return op.Holds(f.CompareTo(other)), nil
}

func (f *IntField) Type() Type {
	return IntType
}

func (f *IntField) String() string {
	return strconv.FormatInt(f.Value, 10)
}

func (f *IntField) Equals(other Field) bool {
	otherInt, ok := other.(*IntField)
	if !ok {
		return false
	}
	return f.Value == otherInt.Value
}

func (f *IntField) Length() uint32 {
	return 8
}
