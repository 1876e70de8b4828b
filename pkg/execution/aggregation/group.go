package aggregation

import (
	"fmt"

	"setexec/pkg/tuple"
	"setexec/pkg/types"
)

// grouping describes a GROUP BY: the input columns forming the key and the
// aggregates computed per group. Output rows carry the key columns followed
// by one column per aggregate.
type grouping struct {
	groupCols []int
	specs     []Spec
	keyDesc   *tuple.TupleDescription
	outDesc   *tuple.TupleDescription
}

func newGrouping(in *tuple.TupleDescription, groupCols []int, specs []Spec) (*grouping, error) {
	if len(specs) == 0 && len(groupCols) == 0 {
		return nil, fmt.Errorf("aggregation needs a group column or an aggregate")
	}

	var keyTypes []types.Type
	var keyNames []string
	for _, c := range groupCols {
		t, err := in.TypeAtIndex(c)
		if err != nil {
			return nil, fmt.Errorf("invalid group field index: %d", c)
		}
		keyTypes = append(keyTypes, t)
		keyNames = append(keyNames, columnName(in, c))
	}

	outTypes := append([]types.Type{}, keyTypes...)
	outNames := append([]string{}, keyNames...)
	for _, s := range specs {
		var inType types.Type
		if s.Column != NoColumn {
			t, err := in.TypeAtIndex(s.Column)
			if err != nil {
				return nil, fmt.Errorf("invalid aggregate field index: %d", s.Column)
			}
			inType = t
		}
		t, err := resultType(s.Op, inType, s.Column == NoColumn)
		if err != nil {
			return nil, err
		}
		outTypes = append(outTypes, t)
		outNames = append(outNames, s.name(in))
	}

	g := &grouping{groupCols: groupCols, specs: specs}
	var err error
	if g.outDesc, err = tuple.NewTupleDesc(outTypes, outNames); err != nil {
		return nil, err
	}
	if len(keyTypes) > 0 {
		if g.keyDesc, err = tuple.NewTupleDesc(keyTypes, keyNames); err != nil {
			return nil, err
		}
	}
	return g, nil
}

// project copies the key columns of row into dst, which has keyDesc or
// outDesc as its schema.
func (g *grouping) project(dst, row *tuple.Tuple) error {
	for i, c := range g.groupCols {
		var f types.Field
		if row != nil {
			var err error
			if f, err = row.GetField(c); err != nil {
				return err
			}
		}
		if err := dst.SetField(i, f); err != nil {
			return err
		}
	}
	return nil
}

// sameKey reports whether a and b agree on every key column. NULL keys
// group together.
func (g *grouping) sameKey(a, b *tuple.Tuple) (bool, error) {
	for _, c := range g.groupCols {
		fa, err := a.GetField(c)
		if err != nil {
			return false, err
		}
		fb, err := b.GetField(c)
		if err != nil {
			return false, err
		}
		if types.CompareFields(fa, fb) != 0 {
			return false, nil
		}
	}
	return true, nil
}
