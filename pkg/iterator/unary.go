package iterator

import (
	"fmt"
	"setexec/pkg/session"
	"setexec/pkg/tuple"
)

// UnaryOperator provides a base implementation for operators with a single child.
// It combines BaseSource's read loop with child management, eliminating
// boilerplate code in Filter, LimitOffset, RemoveDuplicates and similar operators.
//
// UnaryOperator handles:
// - Initializing and closing the child
// - Forwarding row unlocks, null-row flags and batch hints to the child
// - Providing FetchNext helper for reading from child
// - Forwarding the row schema from child
type UnaryOperator struct {
	*BaseSource
	child RowSource
}

// NewUnaryOperator creates a new unary operator base with the given child and read function.
// The readNextFunc should implement the operator's specific transformation logic.
func NewUnaryOperator(child RowSource, readNextFunc ReadNextFunc) (*UnaryOperator, error) {
	if child == nil {
		return nil, fmt.Errorf("child operator cannot be nil")
	}

	return &UnaryOperator{
		BaseSource: NewBaseSource(child.Schema(), readNextFunc),
		child:      child,
	}, nil
}

// FetchNext retrieves the next row from the child operator.
// Returns the row if available, nil if no more rows, or error.
func (u *UnaryOperator) FetchNext() (*tuple.Tuple, error) {
	return u.child.Read()
}

// Init initializes the child and resets this operator.
func (u *UnaryOperator) Init(ec *session.ExecContext) error {
	u.InitBase(ec)
	if err := u.child.Init(ec); err != nil {
		return fmt.Errorf("failed to init child operator: %w", err)
	}
	return nil
}

// Close closes the child operator and releases resources.
func (u *UnaryOperator) Close() error {
	return u.child.Close()
}

func (u *UnaryOperator) UnlockRow() {
	u.child.UnlockRow()
}

func (u *UnaryOperator) SetNullRowFlag(isNull bool) {
	u.child.SetNullRowFlag(isNull)
}

func (u *UnaryOperator) StartBatchMode() {
	u.child.StartBatchMode()
}

func (u *UnaryOperator) EndBatchMode() {
	u.child.EndBatchMode()
}

// GetChild returns the child operator (useful for inspection/testing).
func (u *UnaryOperator) GetChild() RowSource {
	return u.child
}
