package setops

import (
	"fmt"
	"math"

	"setexec/pkg/dberror"
)

// Action tells the caller what to do with the row it just classified.
type Action int

const (
	// ActionNone leaves storage untouched.
	ActionNone Action = iota
	// ActionInsert stores the row with the returned counter.
	ActionInsert
	// ActionUpdate replaces the counter of the matching stored row.
	ActionUpdate
)

func (a Action) String() string {
	switch a {
	case ActionNone:
		return "none"
	case ActionInsert:
		return "insert"
	case ActionUpdate:
		return "update"
	default:
		return fmt.Sprintf("action(%d)", int(a))
	}
}

// Policy holds the multiplicity rules of one set operation. The same policy
// drives the in-memory hash map and the index-based fallback, so both paths
// agree on every counter transition.
//
// Operand 0 is the left operand; right operands are numbered from 1.
type Policy interface {
	// OnLeftRow classifies a row of the left operand. found reports whether
	// an equal row is already stored, with counter its current counter.
	OnLeftRow(found bool, counter uint64) (Action, uint64, error)

	// OnRightRow classifies a row of right operand `operand`. Right rows are
	// never inserted.
	OnRightRow(found bool, operand int, counter uint64) (Action, uint64, error)

	// Copies is the number of output rows a stored row with the final
	// counter produces.
	Copies(counter uint64) uint64

	// Name identifies the operation in logs and metrics.
	Name() string
}

// ExceptPolicy implements EXCEPT and EXCEPT ALL. Operands from firstDistinct
// on are DISTINCT; a match from such an operand removes the row entirely.
type ExceptPolicy struct {
	numOperands   int
	firstDistinct int
	distinctLeft  bool
}

// NewExceptAll returns the EXCEPT ALL policy. firstDistinct is the index of
// the first DISTINCT operand, or numOperands when all operands are ALL.
func NewExceptAll(numOperands, firstDistinct int) *ExceptPolicy {
	if firstDistinct < 1 || firstDistinct > numOperands {
		firstDistinct = numOperands
	}
	return &ExceptPolicy{numOperands: numOperands, firstDistinct: firstDistinct}
}

// NewExceptDistinct returns the EXCEPT (DISTINCT) policy.
func NewExceptDistinct(numOperands int) *ExceptPolicy {
	return &ExceptPolicy{numOperands: numOperands, firstDistinct: 1, distinctLeft: true}
}

func (p *ExceptPolicy) distinctResult() bool {
	return p.distinctLeft || p.firstDistinct < p.numOperands
}

func (p *ExceptPolicy) OnLeftRow(found bool, counter uint64) (Action, uint64, error) {
	if !found {
		return ActionInsert, 1, nil
	}
	if p.distinctLeft {
		return ActionNone, counter, nil
	}
	return ActionUpdate, counter + 1, nil
}

func (p *ExceptPolicy) OnRightRow(found bool, operand int, counter uint64) (Action, uint64, error) {
	if !found || counter == 0 {
		return ActionNone, counter, nil
	}
	if operand < p.firstDistinct {
		return ActionUpdate, counter - 1, nil
	}
	return ActionUpdate, 0, nil
}

func (p *ExceptPolicy) Copies(counter uint64) uint64 {
	if p.distinctResult() {
		return min(counter, 1)
	}
	return counter
}

func (p *ExceptPolicy) Name() string {
	if p.distinctLeft {
		return "except"
	}
	return "except_all"
}

// IntersectAllPolicy implements INTERSECT ALL. The counter packs the left
// multiplicity in the high 32 bits and the number of right matches in the low
// 32 bits. It is only correct for exactly two operands.
type IntersectAllPolicy struct{}

const halfMask = math.MaxUint32

// NewIntersectAll returns the INTERSECT ALL policy. It fails unless
// numOperands is exactly two.
func NewIntersectAll(numOperands int) (*IntersectAllPolicy, error) {
	if numOperands != 2 {
		return nil, dberror.AssertionFailedf("INTERSECT ALL needs exactly 2 operands, got %d", numOperands)
	}
	return &IntersectAllPolicy{}, nil
}

func leftHalf(counter uint64) uint64  { return counter >> 32 }
func rightHalf(counter uint64) uint64 { return counter & halfMask }

func (p *IntersectAllPolicy) OnLeftRow(found bool, counter uint64) (Action, uint64, error) {
	if !found {
		return ActionInsert, 1 << 32, nil
	}
	left := leftHalf(counter)
	if left == halfMask {
		return ActionNone, counter, dberror.IntersectAllOverflow()
	}
	return ActionUpdate, (left+1)<<32 | rightHalf(counter), nil
}

func (p *IntersectAllPolicy) OnRightRow(found bool, operand int, counter uint64) (Action, uint64, error) {
	if operand != 1 {
		return ActionNone, counter, dberror.AssertionFailedf("INTERSECT ALL right operand %d", operand)
	}
	if !found {
		return ActionNone, counter, nil
	}
	right := rightHalf(counter)
	if right >= leftHalf(counter) {
		return ActionNone, counter, nil
	}
	return ActionUpdate, counter&^halfMask | (right + 1), nil
}

func (p *IntersectAllPolicy) Copies(counter uint64) uint64 {
	return rightHalf(counter)
}

func (p *IntersectAllPolicy) Name() string { return "intersect_all" }

// IntersectDistinctPolicy implements N-ary INTERSECT. The left operand sets a
// row's counter to numOperands-1 and operand i counts it down only when every
// operand before i matched, so the row survives iff the counter reaches 0.
type IntersectDistinctPolicy struct {
	numOperands int
}

func NewIntersectDistinct(numOperands int) *IntersectDistinctPolicy {
	return &IntersectDistinctPolicy{numOperands: numOperands}
}

func (p *IntersectDistinctPolicy) OnLeftRow(found bool, counter uint64) (Action, uint64, error) {
	if found {
		return ActionNone, counter, nil
	}
	return ActionInsert, uint64(p.numOperands - 1), nil
}

func (p *IntersectDistinctPolicy) OnRightRow(found bool, operand int, counter uint64) (Action, uint64, error) {
	if !found || counter != uint64(p.numOperands-operand) {
		return ActionNone, counter, nil
	}
	return ActionUpdate, counter - 1, nil
}

func (p *IntersectDistinctPolicy) Copies(counter uint64) uint64 {
	if counter == 0 {
		return 1
	}
	return 0
}

func (p *IntersectDistinctPolicy) Name() string { return "intersect" }
