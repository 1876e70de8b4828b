package primitives

import "math"

// HashCode represents a 64-bit content hash of a row or key.
type HashCode uint64

// ColumnID identifies a column within a row.
type ColumnID uint32

// RowID identifies a row within a row store. Row ids are assigned in
// insertion order starting at 1, so they double as an append position.
type RowID uint64

// Sentinel values for invalid/unset identifiers
const (
	// InvalidRowID is never assigned to a stored row.
	InvalidRowID RowID = 0

	InvalidColumnID ColumnID = math.MaxUint32
)
