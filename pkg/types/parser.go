package types

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"strconv"
)

// ParseField reads and parses a field from the given reader based on the specified field type.
// This function acts as a dispatcher to the appropriate type-specific parsing function.
func ParseField(r io.Reader, fieldType Type) (Field, error) {
	switch fieldType {
	case IntType:
		v, err := readUint64(r)
		if err != nil {
			return nil, err
		}
		return NewIntField(int64(v)), nil // #nosec G115

	case FloatType:
		v, err := readUint64(r)
		if err != nil {
			return nil, err
		}
		return NewFloat64Field(math.Float64frombits(v)), nil

	case StringType:
		return parseStringField(r)

	case BoolType:
		bytes := make([]byte, 1)
		if _, err := io.ReadFull(r, bytes); err != nil {
			return nil, err
		}
		return NewBoolField(bytes[0] != 0), nil

	default:
		return nil, fmt.Errorf("unsupported field type: %v", fieldType)
	}
}

func readUint64(r io.Reader) (uint64, error) {
	bytes := make([]byte, 8)
	if _, err := io.ReadFull(r, bytes); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(bytes), nil
}

// parseStringField reads a length-prefixed string written by StringField.Serialize.
func parseStringField(r io.Reader) (*StringField, error) {
	lengthBytes := make([]byte, 4)
	if _, err := io.ReadFull(r, lengthBytes); err != nil {
		return nil, err
	}

	length := binary.BigEndian.Uint32(lengthBytes)
	strBytes := make([]byte, length)
	if _, err := io.ReadFull(r, strBytes); err != nil {
		return nil, err
	}

	return NewStringField(string(strBytes)), nil
}

// CreateFieldFromConstant parses a textual literal into a field of type t.
func CreateFieldFromConstant(t Type, constant string) (Field, error) {
	switch t {
	case IntType:
		v, err := strconv.ParseInt(constant, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid integer literal %q: %w", constant, err)
		}
		return NewIntField(v), nil

	case BoolType:
		v, err := strconv.ParseBool(constant)
		if err != nil {
			return nil, fmt.Errorf("invalid boolean literal %q: %w", constant, err)
		}
		return NewBoolField(v), nil

	case FloatType:
		v, err := strconv.ParseFloat(constant, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid float literal %q: %w", constant, err)
		}
		return NewFloat64Field(v), nil

	case StringType:
		return NewStringField(constant), nil

	default:
		return nil, fmt.Errorf("unsupported field type: %v", t)
	}
}
