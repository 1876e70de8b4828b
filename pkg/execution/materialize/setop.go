package materialize

import (
	"fmt"
	"strings"

	"setexec/pkg/execution/setops"
)

// SetOp is the operation a MaterializeIterator applies to its operands.
type SetOp int

const (
	UnionAll SetOp = iota
	UnionDistinct
	Intersect
	IntersectAll
	Except
	ExceptAll
)

func (op SetOp) String() string {
	switch op {
	case UnionAll:
		return "union_all"
	case UnionDistinct:
		return "union"
	case Intersect:
		return "intersect"
	case IntersectAll:
		return "intersect_all"
	case Except:
		return "except"
	case ExceptAll:
		return "except_all"
	default:
		return fmt.Sprintf("SetOp(%d)", int(op))
	}
}

// ParseSetOp accepts the names printed by String, with '-' allowed in place
// of '_'.
func ParseSetOp(s string) (SetOp, error) {
	name := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "-", "_")
	for op := UnionAll; op <= ExceptAll; op++ {
		if op.String() == name {
			return op, nil
		}
	}
	if name == "union_distinct" {
		return UnionDistinct, nil
	}
	return 0, fmt.Errorf("unknown set operation %q", s)
}

// Hashed reports whether the operation deduplicates through the hash map
// and its spill machinery rather than writing rows straight to the store.
func (op SetOp) Hashed() bool {
	return op >= Intersect
}

// newPolicy returns the multiplicity rules for a hashed operation.
// firstDistinct only applies to EXCEPT ALL.
func newPolicy(op SetOp, numOperands, firstDistinct int) (setops.Policy, error) {
	switch op {
	case Intersect:
		return setops.NewIntersectDistinct(numOperands), nil
	case IntersectAll:
		return setops.NewIntersectAll(numOperands)
	case Except:
		return setops.NewExceptDistinct(numOperands), nil
	case ExceptAll:
		return setops.NewExceptAll(numOperands, firstDistinct), nil
	default:
		return nil, fmt.Errorf("%s has no multiplicity policy", op)
	}
}
