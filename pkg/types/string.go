package types

import (
	"encoding/binary"
	"fmt"
	"io"
	"setexec/pkg/primitives"
	"strings"
)

// StringField represents a variable-length string field type in the database.
//
// Unlike page-resident strings, values here are never padded: rows are
// serialized into chunk files and hash arenas where every byte counts against
// the memory budget.
type StringField struct {
	Value string
}

// NewStringField creates a new StringField holding value.
func NewStringField(value string) *StringField {
	return &StringField{Value: value}
}

// Compare performs a comparison operation between this StringField and another Field
// using the specified predicate. String comparisons are performed lexicographically.
func (s *StringField) Compare(op primitives.Predicate, other Field) (bool, error) {
	if _, ok := other.(*StringField); !ok {
		return false, fmt.Errorf("cannot compare StringField with %T", other)
	}
	return op.Holds(s.CompareTo(other)), nil
}

func (s *StringField) CompareTo(other Field) int {
	o, ok := other.(*StringField)
	if !ok {
		return compareTypes(StringType, other.Type())
	}
	return strings.Compare(s.Value, o.Value)
}

// Serialize writes the string field to the provided writer in binary format:
// a big-endian uint32 length followed by the string bytes.
func (s *StringField) Serialize(w io.Writer) error {
	lengthBytes := make([]byte, 4)
	binary.BigEndian.PutUint32(lengthBytes, uint32(len(s.Value))) // #nosec G115

	if _, err := w.Write(lengthBytes); err != nil {
		return err
	}

	_, err := io.WriteString(w, s.Value)
	return err
}

// Type returns the type identifier for this field.
func (s *StringField) Type() Type {
	return StringType
}

// String returns the string value stored in this field.
func (s *StringField) String() string {
	return s.Value
}

// Equals checks if this StringField is equal to another Field.
func (s *StringField) Equals(other Field) bool {
	otherStringField, ok := other.(*StringField)
	if !ok {
		return false
	}
	return s.Value == otherStringField.Value
}

// Length returns the total serialized size of this string field in bytes.
func (s *StringField) Length() uint32 {
	return 4 + uint32(len(s.Value)) // #nosec G115
}
