package dberror

import (
	"github.com/cockroachdb/errors"
)

const (
	CodeTempFileIO           = "TEMP_FILE_IO"
	CodeIntersectAllOverflow = "INTERSECT_ALL_OVERFLOW"
	CodeSubqueryMultipleRows = "SUBQUERY_MULTIPLE_ROWS"
	CodeQueryKilled          = "QUERY_KILLED"
	CodeOutOfMemory          = "OUT_OF_MEMORY"
	CodeRowStoreWrite        = "ROW_STORE_WRITE"
	CodeDuplicateKey         = "DUPLICATE_KEY"
	CodeInvalidConfig        = "INVALID_CONFIG"
	CodeRecursionLimit       = "RECURSION_LIMIT"
)

// Sentinels for errors.Is. Never return these directly; use the constructors
// below so that each instance carries its own stack and context.
var (
	ErrTempFileIO           = &DBError{Code: CodeTempFileIO}
	ErrIntersectAllOverflow = &DBError{Code: CodeIntersectAllOverflow}
	ErrSubqueryMultipleRows = &DBError{Code: CodeSubqueryMultipleRows}
	ErrQueryKilled          = &DBError{Code: CodeQueryKilled}
	ErrOutOfMemory          = &DBError{Code: CodeOutOfMemory}
	ErrRowStoreWrite        = &DBError{Code: CodeRowStoreWrite}
	ErrDuplicateKey         = &DBError{Code: CodeDuplicateKey}
	ErrInvalidConfig        = &DBError{Code: CodeInvalidConfig}
	ErrRecursionLimit       = &DBError{Code: CodeRecursionLimit}
)

// TempFileIO wraps a failure reading or writing a chunk file. Errors that
// already carry a code (a kill observed mid-read) keep it.
func TempFileIO(err error, operation string) *DBError {
	return Wrap(err, CodeTempFileIO, operation, "chunkfile")
}

// IntersectAllOverflow reports a left-side multiplicity that no longer fits in
// the 32-bit half of an INTERSECT ALL counter.
func IntersectAllOverflow() *DBError {
	return New(ErrCategoryData, CodeIntersectAllOverflow,
		"INTERSECT ALL left multiplicity exceeds 32-bit counter")
}

// SubqueryMultipleRows reports a scalar subquery that produced more than one row.
func SubqueryMultipleRows() *DBError {
	return New(ErrCategoryUser, CodeSubqueryMultipleRows, "subquery returns more than 1 row")
}

// QueryKilled reports that the execution context was killed or cancelled.
func QueryKilled() *DBError {
	return New(ErrCategoryTransient, CodeQueryKilled, "query execution was interrupted")
}

// OutOfMemory reports that an allocation could not be satisfied within budget.
func OutOfMemory(requested, budget int64) *DBError {
	return New(ErrCategoryTransient, CodeOutOfMemory, "memory budget exceeded").
		WithDetail("requested %d bytes, budget %d bytes", requested, budget)
}

// RowStoreWrite wraps a failure of the output row store.
func RowStoreWrite(err error, operation string) *DBError {
	return &DBError{
		Code:      CodeRowStoreWrite,
		Category:  ErrCategorySystem,
		Message:   "row store write failed",
		Operation: operation,
		Component: "rowstore",
		Cause:     err,
		origin:    errors.WithStackDepth(err, 1),
	}
}

// DuplicateKey reports a unique index violation.
func DuplicateKey(index string) *DBError {
	return New(ErrCategoryData, CodeDuplicateKey, "duplicate key").
		WithDetail("index %q", index)
}

// InvalidConfig reports a configuration value that failed validation.
func InvalidConfig(format string, args ...any) *DBError {
	return New(ErrCategoryUser, CodeInvalidConfig, "invalid configuration").
		WithDetail(format, args...)
}

// RecursionLimit reports a recursive materialization that was still adding
// rows after maxDepth rounds.
func RecursionLimit(maxDepth int) *DBError {
	return New(ErrCategoryUser, CodeRecursionLimit, "recursive query aborted").
		WithDetail("no fixed point after %d rounds", maxDepth)
}

// AssertionFailedf reports a broken internal invariant. The result is not a
// DBError; it is marked as an assertion failure for reporting.
func AssertionFailedf(format string, args ...any) error {
	return errors.AssertionFailedWithDepthf(1, format, args...)
}

// IsAssertionFailure reports whether err is an internal invariant violation.
func IsAssertionFailure(err error) bool {
	return errors.HasAssertionFailure(err)
}
