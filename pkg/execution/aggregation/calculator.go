package aggregation

import (
	"fmt"

	"setexec/pkg/tuple"
	"setexec/pkg/types"
)

// calculator accumulates one aggregate of one group. NULL inputs are
// ignored by everything except COUNT(*).
type calculator interface {
	update(f types.Field) error
	result() types.Field
	reset()
}

// resultType validates op against the input column type and returns the
// type of the aggregate's value.
func resultType(op AggregateOp, in types.Type, star bool) (types.Type, error) {
	if star && op != Count {
		return 0, fmt.Errorf("%s needs a column", op)
	}
	switch op {
	case Count:
		return types.IntType, nil
	case Sum:
		if in != types.IntType && in != types.FloatType {
			return 0, fmt.Errorf("SUM is not supported for %s", in)
		}
		return in, nil
	case Avg:
		if in != types.IntType && in != types.FloatType {
			return 0, fmt.Errorf("AVG is not supported for %s", in)
		}
		return types.FloatType, nil
	case Min, Max:
		return in, nil
	default:
		return 0, fmt.Errorf("unsupported aggregate operation %d", int(op))
	}
}

func newCalculator(op AggregateOp, star bool) calculator {
	switch op {
	case Count:
		return &countCalculator{star: star}
	case Sum:
		return &sumCalculator{}
	case Avg:
		return &avgCalculator{}
	case Max:
		return &extremeCalculator{max: true}
	default:
		return &extremeCalculator{}
	}
}

type countCalculator struct {
	star bool
	n    int64
}

func (c *countCalculator) update(f types.Field) error {
	if c.star || f != nil {
		c.n++
	}
	return nil
}

func (c *countCalculator) result() types.Field { return types.NewIntField(c.n) }

func (c *countCalculator) reset() { c.n = 0 }

type sumCalculator struct {
	isFloat bool
	seen    bool
	ints    int64
	floats  float64
}

func (c *sumCalculator) update(f types.Field) error {
	switch v := f.(type) {
	case nil:
		return nil
	case *types.IntField:
		c.ints += v.Value
	case *types.Float64Field:
		c.isFloat = true
		c.floats += v.Value
	default:
		return fmt.Errorf("cannot sum %s", f.Type())
	}
	c.seen = true
	return nil
}

func (c *sumCalculator) result() types.Field {
	if !c.seen {
		return nil
	}
	if c.isFloat {
		return types.NewFloat64Field(c.floats + float64(c.ints))
	}
	return types.NewIntField(c.ints)
}

func (c *sumCalculator) reset() { *c = sumCalculator{} }

type avgCalculator struct {
	sum float64
	n   int64
}

func (c *avgCalculator) update(f types.Field) error {
	switch v := f.(type) {
	case nil:
		return nil
	case *types.IntField:
		c.sum += float64(v.Value)
	case *types.Float64Field:
		c.sum += v.Value
	default:
		return fmt.Errorf("cannot average %s", f.Type())
	}
	c.n++
	return nil
}

func (c *avgCalculator) result() types.Field {
	if c.n == 0 {
		return nil
	}
	return types.NewFloat64Field(c.sum / float64(c.n))
}

func (c *avgCalculator) reset() { *c = avgCalculator{} }

type extremeCalculator struct {
	max  bool
	best types.Field
}

func (c *extremeCalculator) update(f types.Field) error {
	if f == nil {
		return nil
	}
	if c.best == nil {
		c.best = f
		return nil
	}
	cmp := types.CompareFields(f, c.best)
	if (c.max && cmp > 0) || (!c.max && cmp < 0) {
		c.best = f
	}
	return nil
}

func (c *extremeCalculator) result() types.Field { return c.best }

func (c *extremeCalculator) reset() { c.best = nil }

// accumulators holds one calculator per Spec for a single group.
type accumulators struct {
	specs []Spec
	calcs []calculator
}

func newAccumulators(specs []Spec) *accumulators {
	a := &accumulators{specs: specs, calcs: make([]calculator, len(specs))}
	for i, s := range specs {
		a.calcs[i] = newCalculator(s.Op, s.Column == NoColumn)
	}
	return a
}

func (a *accumulators) update(row *tuple.Tuple) error {
	for i, s := range a.specs {
		var f types.Field
		if s.Column != NoColumn {
			var err error
			if f, err = row.GetField(s.Column); err != nil {
				return err
			}
		}
		if err := a.calcs[i].update(f); err != nil {
			return fmt.Errorf("%s: %w", s.Op, err)
		}
	}
	return nil
}

// fill writes the aggregate values into out starting at column offset.
func (a *accumulators) fill(out *tuple.Tuple, offset int) error {
	for i, c := range a.calcs {
		if err := out.SetField(offset+i, c.result()); err != nil {
			return err
		}
	}
	return nil
}

func (a *accumulators) reset() {
	for _, c := range a.calcs {
		c.reset()
	}
}
