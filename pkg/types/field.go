package types

import (
	"io"
	"setexec/pkg/primitives"
)

// Field is a single non-NULL column value. NULL is represented by a nil Field
// at the tuple level.
type Field interface {
	// Serialize writes the canonical binary encoding of the value. Two fields
	// that are Equal always serialize to the same bytes, which makes the
	// encoding suitable as hash input.
	Serialize(w io.Writer) error

	// CompareTo returns a negative, zero or positive result. Fields of
	// different types compare by type order.
	CompareTo(other Field) int

	// Compare evaluates op against other.
	Compare(op primitives.Predicate, other Field) (bool, error)

	Type() Type

	String() string

	Equals(other Field) bool

	// Length returns the serialized size in bytes.
	Length() uint32
}

// CompareFields orders two possibly-NULL fields. NULL sorts first and is equal
// to NULL, which is the grouping semantics used by DISTINCT and set operations.
func CompareFields(a, b Field) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	}
	return a.CompareTo(b)
}

func compareTypes(a, b Type) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}
