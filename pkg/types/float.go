package types

import (
	"cmp"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"setexec/pkg/primitives"
	"strconv"
)

// Float64Field represents a double precision floating point field.
//
// Equality is exact rather than epsilon based: set operations must never merge
// two distinct values. -0 and +0 are equal and NaN equals NaN, and the
// serialized form is normalised accordingly so equal values hash equally.
type Float64Field struct {
	Value float64
}

func NewFloat64Field(value float64) *Float64Field {
	return &Float64Field{Value: value}
}

func (f *Float64Field) canonicalBits() uint64 {
	switch {
	case f.Value == 0:
		return 0
	case math.IsNaN(f.Value):
		return 0x7ff8000000000001
	default:
		return math.Float64bits(f.Value)
	}
}

func (f *Float64Field) Serialize(w io.Writer) error {
	bytes := make([]byte, 8)
	binary.BigEndian.PutUint64(bytes, f.canonicalBits())
	_, err := w.Write(bytes)
	return err
}

func (f *Float64Field) CompareTo(other Field) int {
	o, ok := other.(*Float64Field)
	if !ok {
		return compareTypes(FloatType, other.Type())
	}
	return cmp.Compare(f.Value, o.Value)
}

func (f *Float64Field) Compare(op primitives.Predicate, other Field) (bool, error) {
	if _, ok := other.(*Float64Field); !ok {
		return false, fmt.Errorf("cannot compare Float64Field with %T", other)
	}
	return op.Holds(f.CompareTo(other)), nil
}

func (f *Float64Field) Type() Type {
	return FloatType
}

func (f *Float64Field) String() string {
	return strconv.FormatFloat(f.Value, 'g', -1, 64)
}

func (f *Float64Field) Equals(other Field) bool {
	o, ok := other.(*Float64Field)
	if !ok {
		return false
	}
	return f.CompareTo(o) == 0
}

func (f *Float64Field) Length() uint32 {
	return 8
}
