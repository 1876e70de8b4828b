package types

// Type identifies the value type of a column.
type Type int

const (
	IntType Type = iota
	StringType
	BoolType
	FloatType
)

// String returns a string representation of the type
func (t Type) String() string {
	switch t {
	case IntType:
		return "INT_TYPE"
	case StringType:
		return "STRING_TYPE"
	case BoolType:
		return "BOOL_TYPE"
	case FloatType:
		return "FLOAT_TYPE"
	default:
		return "UNKNOWN_TYPE"
	}
}

// Size returns the fixed serialized size of the type in bytes, or 0 for
// variable-length types.
func (t Type) Size() uint32 {
	switch t {
	case IntType, FloatType:
		return 8
	case BoolType:
		return 1
	default:
		return 0
	}
}
