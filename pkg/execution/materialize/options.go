package materialize

import (
	"setexec/pkg/iterator"
	"setexec/pkg/tuple"
)

// DefaultMaxRecursionDepth bounds the rounds of a recursive materialization
// when Options.MaxRecursionDepth is zero.
const DefaultMaxRecursionDepth = 1000

// Operand is one input of a materialization.
type Operand struct {
	Source iterator.RowSource

	// Recursive marks an operand that reads the materialized table itself
	// through RecursiveReference.
	Recursive bool

	// EstimatedRows is the planner's row estimate; zero when unknown. Only
	// the left operand's estimate is used, to size a spill.
	EstimatedRows int64
}

// Options configures a MaterializeIterator.
type Options struct {
	Type   SetOp
	Schema *tuple.TupleDescription

	// FirstDistinct is, for EXCEPT ALL, the index of the first operand whose
	// matches remove a row entirely. Zero means none.
	FirstDistinct int

	// LimitRows stops a UNION materialization once the table holds this many
	// rows. Zero means no limit. Hashed operations always read every operand.
	LimitRows uint64

	// RejectMultipleRows fails the materialization with
	// ErrSubqueryMultipleRows if it would produce more than one row.
	RejectMultipleRows bool

	// RematerializeAlways reruns the materialization on every Init.
	RematerializeAlways bool

	// Invalidators are checked on Init; a generation change since the last
	// materialization forces a rerun.
	Invalidators []*Invalidator

	// MaxRecursionDepth bounds recursive rounds. Zero means
	// DefaultMaxRecursionDepth.
	MaxRecursionDepth int
}

// Invalidator is a generation counter for state a materialized result
// depends on, such as the outer row of a correlated subquery.
type Invalidator struct {
	generation uint64
}

// Invalidate marks every result that depends on i as stale.
func (i *Invalidator) Invalidate() {
	i.generation++
}

// Generation returns the current generation.
func (i *Invalidator) Generation() uint64 {
	return i.generation
}
