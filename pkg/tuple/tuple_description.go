package tuple

import (
	"fmt"
	"setexec/pkg/types"
	"strings"
)

// TupleDescription describes the schema of a tuple (like a table schema).
// It contains the types and names of fields in a tuple, providing metadata
// about the structure of data records in the database.
type TupleDescription struct {
	// Types contains the data type of each field in order
	Types []types.Type
	// FieldNames contains the name of each field (optional, may be nil)
	FieldNames []string
}

// NewTupleDesc creates a new TupleDescription given field types and optional field names.
// If fieldNames is nil, fields will have no names.
//
// Parameters:
//   - fieldTypes: slice of field types (must contain at least one element)
//   - fieldNames: optional slice of field names (must match fieldTypes length if provided)
//
// Returns:
//   - *TupleDescription: newly created tuple descriptor
//   - error: if fieldTypes is empty or fieldNames length doesn't match fieldTypes length
func NewTupleDesc(fieldTypes []types.Type, fieldNames []string) (*TupleDescription, error) {
	if len(fieldTypes) < 1 {
		return nil, fmt.Errorf("must provide at least one field type")
	}

	typesCopy := make([]types.Type, len(fieldTypes))
	copy(typesCopy, fieldTypes)

	var namesCopy []string
	if fieldNames != nil {
		if len(fieldNames) != len(fieldTypes) {
			return nil, fmt.Errorf("field names length (%d) must match field types length (%d)",
				len(fieldNames), len(fieldTypes))
		}
		namesCopy = make([]string, len(fieldNames))
		copy(namesCopy, fieldNames)
	}

	return &TupleDescription{
		Types:      typesCopy,
		FieldNames: namesCopy,
	}, nil
}

// MustNewTupleDesc is NewTupleDesc for schemas known to be valid.
func MustNewTupleDesc(fieldTypes []types.Type, fieldNames []string) *TupleDescription {
	td, err := NewTupleDesc(fieldTypes, fieldNames)
	if err != nil {
		panic(fmt.Sprintf("invalid tuple description: %v", err))
	}
	return td
}

// NumFields returns the number of fields in this tuple descriptor.
func (td *TupleDescription) NumFields() int {
	return len(td.Types)
}

// GetFieldName returns the name of the ith field, or an empty string if no
// names were provided.
func (td *TupleDescription) GetFieldName(i int) (string, error) {
	if i < 0 || i >= len(td.Types) {
		return "", fmt.Errorf("field index %d out of bounds [0, %d)", i, len(td.Types))
	}

	if td.FieldNames == nil {
		return "", nil
	}

	return td.FieldNames[i], nil
}

// TypeAtIndex returns the type of the ith field.
func (td *TupleDescription) TypeAtIndex(i int) (types.Type, error) {
	if i < 0 || i >= len(td.Types) {
		return 0, fmt.Errorf("field index %d out of bounds [0, %d)", i, len(td.Types))
	}
	return td.Types[i], nil
}

// Equals checks if two TupleDescriptions are equal.
// Two descriptors are equal if they have the same field types in the same order.
// Field names are not compared.
func (td *TupleDescription) Equals(other *TupleDescription) bool {
	if other == nil || len(td.Types) != len(other.Types) {
		return false
	}

	for i, fieldType := range td.Types {
		if fieldType != other.Types[i] {
			return false
		}
	}
	return true
}

// String returns a string representation of this TupleDescription.
// Format: "Type1(fieldName1),Type2(fieldName2),..."
func (td *TupleDescription) String() string {
	var parts []string

	for i, fieldType := range td.Types {
		fieldName := "null"
		if td.FieldNames != nil && i < len(td.FieldNames) {
			fieldName = td.FieldNames[i]
		}
		parts = append(parts, fmt.Sprintf("%s(%s)", fieldType.String(), fieldName))
	}

	return strings.Join(parts, ",")
}

// Combine merges two TupleDescriptions into one.
// The resulting descriptor contains all fields from td1 followed by all fields from td2.
func Combine(td1, td2 *TupleDescription) *TupleDescription {
	if td1 == nil {
		return td2
	}
	if td2 == nil {
		return td1
	}

	combinedTypes := make([]types.Type, 0, len(td1.Types)+len(td2.Types))
	combinedTypes = append(combinedTypes, td1.Types...)
	combinedTypes = append(combinedTypes, td2.Types...)

	var combinedNames []string
	if td1.FieldNames != nil || td2.FieldNames != nil {
		combinedNames = make([]string, 0, len(combinedTypes))
		combinedNames = append(combinedNames, namesOrBlank(td1)...)
		combinedNames = append(combinedNames, namesOrBlank(td2)...)
	}

	return &TupleDescription{Types: combinedTypes, FieldNames: combinedNames}
}

func namesOrBlank(td *TupleDescription) []string {
	if td.FieldNames != nil {
		return td.FieldNames
	}
	return make([]string, len(td.Types))
}
