package dberror

import (
	"fmt"
	"strings"

	"github.com/cockroachdb/errors"
)

// ErrorCategory classifies errors by their nature and appropriate handling strategy.
type ErrorCategory int

const (
	// ErrCategoryUser represents errors caused by the query itself.
	// Examples: a scalar subquery returning more than one row.
	ErrCategoryUser ErrorCategory = iota

	// ErrCategoryTransient represents errors that might succeed if the query is re-run.
	// Examples: the query was killed, the memory budget was exhausted.
	ErrCategoryTransient

	// ErrCategorySystem represents errors requiring administrator intervention.
	// Examples: temp directory full, unreadable chunk files.
	ErrCategorySystem

	// ErrCategoryData represents errors related to the values being processed.
	// Examples: counter overflow, duplicate keys in a unique index.
	ErrCategoryData
)

func (c ErrorCategory) String() string {
	switch c {
	case ErrCategoryUser:
		return "user"
	case ErrCategoryTransient:
		return "transient"
	case ErrCategorySystem:
		return "system"
	case ErrCategoryData:
		return "data"
	default:
		return fmt.Sprintf("category(%d)", int(c))
	}
}

// DBError represents a structured execution error with rich context information.
type DBError struct {
	// Code is a unique identifier for this error type (e.g., "TEMP_FILE_IO").
	Code string

	// Category classifies the error for appropriate handling strategy.
	Category ErrorCategory

	// Message is a human-readable description of what went wrong.
	Message string

	// Detail provides additional context about the specific error instance.
	Detail string

	// Operation identifies the operation that was being performed when the error occurred.
	// Examples: "SpillState.Init", "MaterializeIterator.Init", "ChunkFile.Append".
	Operation string

	// Component identifies the system component where the error originated.
	// Examples: "setops", "materialize", "rowstore".
	Component string

	// Cause is the underlying error that triggered this error.
	Cause error

	// origin carries the stack captured where the error was created.
	origin error
}

// New creates a new DBError with the specified code, category, and message.
func New(category ErrorCategory, code, message string) *DBError {
	return &DBError{
		Code:     code,
		Category: category,
		Message:  message,
		origin:   errors.NewWithDepth(1, message),
	}
}

// Wrap wraps an existing error with execution-specific context information.
// If the error already contains a DBError, it enriches that error with
// operation and component context (only if not already set).
func Wrap(err error, code, operation, component string) *DBError {
	if err == nil {
		return nil
	}

	var dbErr *DBError
	if errors.As(err, &dbErr) {
		if dbErr.Operation == "" {
			dbErr.Operation = operation
		}
		if dbErr.Component == "" {
			dbErr.Component = component
		}
		return dbErr
	}

	return &DBError{
		Code:      code,
		Category:  ErrCategorySystem,
		Message:   err.Error(),
		Operation: operation,
		Component: component,
		Cause:     err,
		origin:    errors.WithStackDepth(err, 1),
	}
}

// WithDetail sets the Detail field and returns the error for chaining.
func (e *DBError) WithDetail(format string, args ...any) *DBError {
	e.Detail = fmt.Sprintf(format, args...)
	return e
}

// At sets Operation and Component and returns the error for chaining.
func (e *DBError) At(operation, component string) *DBError {
	e.Operation = operation
	e.Component = component
	return e
}

// Error implements the standard Go error interface
//
// The format follows the pattern:
// [ERROR_CODE] Message: Detail (operation: Operation, component: Component) caused by: underlying error
func (e *DBError) Error() string {
	var b strings.Builder

	fmt.Fprintf(&b, "[%s] %s", e.Code, e.Message)

	if e.Detail != "" {
		fmt.Fprintf(&b, ": %s", e.Detail)
	}

	if e.Operation != "" {
		fmt.Fprintf(&b, " (operation: %s", e.Operation)
		if e.Component != "" {
			fmt.Fprintf(&b, ", component: %s", e.Component)
		}
		b.WriteString(")")
	}

	if e.Cause != nil && e.Cause.Error() != e.Message {
		fmt.Fprintf(&b, " caused by: %v", e.Cause)
	}

	return b.String()
}

// Unwrap returns the underlying cause error, enabling error chain traversal
// with errors.Is and errors.As.
func (e *DBError) Unwrap() error {
	return e.Cause
}

// Is matches any DBError carrying the same code, so the package sentinels can
// be used with errors.Is regardless of where an instance was created.
func (e *DBError) Is(target error) bool {
	t, ok := target.(*DBError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// FormatStack returns a human-readable stack trace for debugging purposes.
func (e *DBError) FormatStack() string {
	if e.origin == nil {
		return ""
	}
	return fmt.Sprintf("%+v", e.origin)
}

// CodeOf returns the code of the first DBError in err's chain, or "" if none.
func CodeOf(err error) string {
	var dbErr *DBError
	if errors.As(err, &dbErr) {
		return dbErr.Code
	}
	return ""
}
