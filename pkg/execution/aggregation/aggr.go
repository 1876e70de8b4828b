package aggregation

import (
	"fmt"
	"strings"

	"setexec/pkg/tuple"
)

// NoColumn as a Spec column makes COUNT count rows instead of values.
const NoColumn = -1

// AggregateOp represents the type of aggregation operation to perform
type AggregateOp int

const (
	Min AggregateOp = iota
	Max
	Sum
	Avg
	Count
)

// String returns a string representation of the aggregation operation
func (op AggregateOp) String() string {
	switch op {
	case Min:
		return "MIN"
	case Max:
		return "MAX"
	case Sum:
		return "SUM"
	case Avg:
		return "AVG"
	case Count:
		return "COUNT"
	default:
		return "UNKNOWN"
	}
}

// ParseAggregateOp accepts an operation name in any case.
func ParseAggregateOp(s string) (AggregateOp, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "MIN":
		return Min, nil
	case "MAX":
		return Max, nil
	case "SUM":
		return Sum, nil
	case "AVG":
		return Avg, nil
	case "COUNT":
		return Count, nil
	default:
		return 0, fmt.Errorf("unknown aggregate operation %q", s)
	}
}

// Spec is one aggregate of the select list, applied to input column Column.
type Spec struct {
	Op     AggregateOp
	Column int
}

func (s Spec) name(in *tuple.TupleDescription) string {
	if s.Column == NoColumn {
		return s.Op.String() + "(*)"
	}
	return fmt.Sprintf("%s(%s)", s.Op, columnName(in, s.Column))
}

func columnName(td *tuple.TupleDescription, i int) string {
	name, err := td.GetFieldName(i)
	if err != nil || name == "" {
		return fmt.Sprintf("col%d", i)
	}
	return name
}
