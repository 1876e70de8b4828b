package query

import (
	"context"
	"testing"

	"setexec/pkg/config"
	"setexec/pkg/iterator"
	"setexec/pkg/session"
	"setexec/pkg/tuple"
	"setexec/pkg/types"

	"github.com/stretchr/testify/require"
)

var (
	intDesc  = tuple.MustNewTupleDesc([]types.Type{types.IntType}, []string{"id"})
	pairDesc = tuple.MustNewTupleDesc([]types.Type{types.IntType, types.StringType}, []string{"id", "name"})
)

func newContext() *session.ExecContext {
	return session.New(context.Background(), config.Default())
}

func intRows(vals ...int64) []*tuple.Tuple {
	rows := make([]*tuple.Tuple, len(vals))
	for i, v := range vals {
		rows[i] = tuple.NewBuilder(intDesc).AddInt(v).MustBuild()
	}
	return rows
}

func pairRow(id int64, name string) *tuple.Tuple {
	return tuple.NewBuilder(pairDesc).AddInt(id).AddString(name).MustBuild()
}

// countingSource records how it is driven by its consumer.
type countingSource struct {
	*iterator.SliceSource
	reads   int
	unlocks int
	nullSet []bool
	batches int
}

func newCountingSource(schema *tuple.TupleDescription, rows []*tuple.Tuple) *countingSource {
	return &countingSource{SliceSource: iterator.NewSliceSource(schema, rows)}
}

func (c *countingSource) Read() (*tuple.Tuple, error) {
	c.reads++
	return c.SliceSource.Read()
}

func (c *countingSource) UnlockRow() {
	c.unlocks++
}

func (c *countingSource) SetNullRowFlag(isNull bool) {
	c.nullSet = append(c.nullSet, isNull)
	c.SliceSource.SetNullRowFlag(isNull)
}

func (c *countingSource) StartBatchMode() {
	c.batches++
}

func ints(t *testing.T, rows []*tuple.Tuple, col int) []int64 {
	t.Helper()
	out := make([]int64, 0, len(rows))
	for _, r := range rows {
		f, err := r.GetField(col)
		require.NoError(t, err)
		if f == nil {
			out = append(out, -1)
			continue
		}
		out = append(out, f.(*types.IntField).Value)
	}
	return out
}

func collectInts(t *testing.T, ec *session.ExecContext, src iterator.RowSource) []int64 {
	t.Helper()
	rows, err := iterator.Collect(ec, src)
	require.NoError(t, err)
	return ints(t, rows, 0)
}

func sequence(from, to int64) []int64 {
	var vals []int64
	for v := from; v <= to; v++ {
		vals = append(vals, v)
	}
	return vals
}
