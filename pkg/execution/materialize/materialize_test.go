package materialize

import (
	"context"
	"sort"
	"testing"

	"setexec/pkg/config"
	"setexec/pkg/dberror"
	"setexec/pkg/execution/query"
	"setexec/pkg/iterator"
	"setexec/pkg/metrics"
	"setexec/pkg/primitives"
	"setexec/pkg/session"
	"setexec/pkg/tuple"
	"setexec/pkg/types"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var intDesc = tuple.MustNewTupleDesc([]types.Type{types.IntType}, []string{"n"})

type testEnv struct {
	ec      *session.ExecContext
	metrics *metrics.Metrics
	fs      afero.Fs
}

func newTestEnv(t *testing.T, mutate func(*config.Config)) *testEnv {
	t.Helper()
	cfg := config.Default()
	cfg.TempDir = t.TempDir()
	if mutate != nil {
		mutate(cfg)
	}
	fs := afero.NewMemMapFs()
	m := metrics.New(nil)
	return &testEnv{
		ec:      session.New(context.Background(), cfg, session.WithFs(fs), session.WithMetrics(m)),
		metrics: m,
		fs:      fs,
	}
}

func intRows(vals ...int64) []*tuple.Tuple {
	rows := make([]*tuple.Tuple, len(vals))
	for i, v := range vals {
		rows[i] = tuple.NewBuilder(intDesc).AddInt(v).MustBuild()
	}
	return rows
}

func source(vals ...int64) *iterator.SliceSource {
	return iterator.NewSliceSource(intDesc, intRows(vals...))
}

func newMaterialize(t *testing.T, opts Options, operands ...[]int64) *MaterializeIterator {
	t.Helper()
	opts.Schema = intDesc
	m, err := New(opts)
	require.NoError(t, err)
	for _, vals := range operands {
		require.NoError(t, m.AddOperand(Operand{Source: source(vals...)}))
	}
	t.Cleanup(func() { _ = m.Close() })
	return m
}

// values reads src to its end and returns the first column, sorted.
func values(t *testing.T, ec *session.ExecContext, src iterator.RowSource) []int64 {
	t.Helper()
	rows, err := iterator.Collect(ec, src)
	require.NoError(t, err)
	out := make([]int64, 0, len(rows))
	for _, r := range rows {
		f, err := r.GetField(0)
		require.NoError(t, err)
		out = append(out, f.(*types.IntField).Value)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func TestMaterialize_SetOperations(t *testing.T) {
	tests := []struct {
		name          string
		op            SetOp
		firstDistinct int
		operands      [][]int64
		want          []int64
	}{
		{name: "union all", op: UnionAll, operands: [][]int64{{1, 1, 2}, {2, 3}}, want: []int64{1, 1, 2, 2, 3}},
		{name: "union distinct", op: UnionDistinct, operands: [][]int64{{1, 1, 2}, {2, 3}}, want: []int64{1, 2, 3}},
		{name: "except all", op: ExceptAll, operands: [][]int64{{1, 1, 2, 3}, {1, 3}}, want: []int64{1, 2}},
		{name: "except distinct", op: Except, operands: [][]int64{{1, 1, 2, 3}, {1, 3}}, want: []int64{2}},
		{
			name:          "except all with distinct tail",
			op:            ExceptAll,
			firstDistinct: 2,
			operands:      [][]int64{{1, 1, 1, 2, 2, 3}, {1}, {2}},
			want:          []int64{1, 3},
		},
		{name: "intersect all", op: IntersectAll, operands: [][]int64{{1, 1, 1, 2}, {1, 1, 3}}, want: []int64{1, 1}},
		{name: "intersect distinct", op: Intersect, operands: [][]int64{{1, 2, 3}, {2, 3}, {3, 2, 2}}, want: []int64{2, 3}},
		{name: "empty left", op: Except, operands: [][]int64{{}, {1}}, want: []int64{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, nil)
			m := newMaterialize(t, Options{Type: tt.op, FirstDistinct: tt.firstDistinct}, tt.operands...)

			assert.Equal(t, tt.want, values(t, env.ec, m))
			assert.Equal(t, 1.0, testutil.ToFloat64(env.metrics.Materializations.WithLabelValues(tt.op.String())))
		})
	}
}

func TestMaterialize_SpilledIntersect(t *testing.T) {
	env := newTestEnv(t, func(c *config.Config) {
		c.SetOperationBufferSize = 2048
		c.MaxChunkFiles = 4
	})

	var left, right []int64
	for i := int64(0); i < 2000; i++ {
		left = append(left, i%500)
		if i%3 == 0 {
			right = append(right, i%500)
		}
	}
	m, err := New(Options{Type: Intersect, Schema: intDesc})
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close() })
	require.NoError(t, m.AddOperand(Operand{Source: source(left...), EstimatedRows: 2000}))
	require.NoError(t, m.AddOperand(Operand{Source: source(right...)}))

	got := values(t, env.ec, m)
	want := make(map[int64]bool)
	for _, v := range right {
		want[v] = true
	}
	assert.Len(t, got, len(want))
	for _, v := range got {
		assert.True(t, want[v], "unexpected row %d", v)
	}
	assert.GreaterOrEqual(t, testutil.ToFloat64(env.metrics.Spills), 1.0)
	assert.Zero(t, testutil.ToFloat64(env.metrics.ChunkFilesOpen))
}

func TestMaterialize_ReusesResult(t *testing.T) {
	env := newTestEnv(t, nil)
	src := source(1, 2, 3)
	var inv Invalidator

	m, err := New(Options{Type: UnionAll, Schema: intDesc, Invalidators: []*Invalidator{&inv}})
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close() })
	require.NoError(t, m.AddOperand(Operand{Source: src}))

	assert.Equal(t, []int64{1, 2, 3}, values(t, env.ec, m))
	assert.Equal(t, []int64{1, 2, 3}, values(t, env.ec, m))
	assert.Equal(t, 1, src.Inits, "second Init reuses the table")

	inv.Invalidate()
	assert.Equal(t, []int64{1, 2, 3}, values(t, env.ec, m))
	assert.Equal(t, 2, src.Inits)
	assert.Equal(t, int64(3), m.Store().Rows(), "rematerialization starts from an empty table")
}

func TestMaterialize_RematerializeAlways(t *testing.T) {
	env := newTestEnv(t, nil)
	src := source(4, 4)
	m, err := New(Options{Type: IntersectAll, Schema: intDesc, RematerializeAlways: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close() })
	require.NoError(t, m.AddOperand(Operand{Source: src}))
	require.NoError(t, m.AddOperand(Operand{Source: source(4, 4, 4)}))

	for i := 1; i <= 3; i++ {
		assert.Equal(t, []int64{4, 4}, values(t, env.ec, m))
		assert.Equal(t, i, src.Inits)
	}
}

func TestMaterialize_LimitRows(t *testing.T) {
	env := newTestEnv(t, nil)
	m := newMaterialize(t, Options{Type: UnionAll, LimitRows: 3}, []int64{1, 2}, []int64{3, 4, 5})

	assert.Equal(t, []int64{1, 2, 3}, values(t, env.ec, m))
}

func TestMaterialize_RejectMultipleRows(t *testing.T) {
	tests := []struct {
		name     string
		op       SetOp
		operands [][]int64
		wantErr  bool
	}{
		{name: "single row", op: UnionAll, operands: [][]int64{{7}}},
		{name: "duplicates collapse", op: UnionDistinct, operands: [][]int64{{7, 7}, {7}}},
		{name: "two rows", op: UnionAll, operands: [][]int64{{7}, {8}}, wantErr: true},
		{name: "hashed single row", op: Intersect, operands: [][]int64{{7, 8}, {7}}},
		{name: "hashed copies count", op: IntersectAll, operands: [][]int64{{7, 7}, {7, 7}}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, nil)
			m := newMaterialize(t, Options{Type: tt.op, RejectMultipleRows: true}, tt.operands...)

			err := m.Init(env.ec)
			if tt.wantErr {
				assert.ErrorIs(t, err, dberror.ErrSubqueryMultipleRows)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, []int64{7}, values(t, env.ec, m))
		})
	}
}

func TestMaterialize_PromotedStore(t *testing.T) {
	env := newTestEnv(t, func(c *config.Config) { c.RowStoreMemoryLimit = 1024 })
	var vals []int64
	for i := int64(0); i < 500; i++ {
		vals = append(vals, i)
	}
	m := newMaterialize(t, Options{Type: UnionDistinct}, vals, vals)

	got := values(t, env.ec, m)
	assert.Equal(t, vals, got)
	assert.True(t, m.Store().Promoted())
}

func TestMaterialize_Weedout(t *testing.T) {
	env := newTestEnv(t, nil)
	m := newMaterialize(t, Options{Type: UnionDistinct}, []int64{1, 2})

	join, err := query.NewNestedLoop(m, source(1, 1, 2, 2, 2), query.JoinInner, query.ColumnsEqual(0, 0))
	require.NoError(t, err)
	w, err := query.NewWeedout(join, []iterator.RowIDSource{m})
	require.NoError(t, err)

	assert.Equal(t, []int64{1, 2}, values(t, env.ec, w))
}

func TestMaterialize_Killed(t *testing.T) {
	env := newTestEnv(t, nil)
	m := newMaterialize(t, Options{Type: UnionAll}, []int64{1, 2, 3})

	env.ec.Kill()
	assert.ErrorIs(t, m.Init(env.ec), dberror.ErrQueryKilled)
}

func TestMaterialize_Validation(t *testing.T) {
	_, err := New(Options{Type: UnionAll})
	assert.Error(t, err, "schema required")

	m, err := New(Options{Type: Intersect, Schema: intDesc})
	require.NoError(t, err)
	other := tuple.MustNewTupleDesc([]types.Type{types.StringType}, []string{"s"})
	assert.Error(t, m.AddOperand(Operand{Source: iterator.NewSliceSource(other, nil)}), "schema mismatch")
	assert.Error(t, m.AddOperand(Operand{}), "missing source")
	require.NoError(t, m.AddOperand(Operand{Source: source(1)}))
	assert.Error(t, m.AddOperand(Operand{Source: m.RecursiveReference(), Recursive: true}), "hashed ops are not recursive")

	u, err := New(Options{Type: UnionAll, Schema: intDesc})
	require.NoError(t, err)
	assert.Error(t, u.AddOperand(Operand{Source: u.RecursiveReference(), Recursive: true}), "first operand is not recursive")

	env := newTestEnv(t, nil)
	assert.Error(t, u.Init(env.ec), "no operands")

	ia, err := New(Options{Type: IntersectAll, Schema: intDesc})
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		require.NoError(t, ia.AddOperand(Operand{Source: source(1)}))
	}
	assert.Error(t, ia.Init(env.ec), "INTERSECT ALL takes two operands")
	assert.Error(t, ia.Init(env.ec), "and keeps failing")
	assert.Nil(t, ia.Store())
}

func TestMaterialize_PositionedRowID(t *testing.T) {
	env := newTestEnv(t, nil)
	m := newMaterialize(t, Options{Type: ExceptAll}, []int64{5, 5, 6}, []int64{})
	require.NoError(t, m.Init(env.ec))

	perID := make(map[primitives.RowID]int)
	for {
		row, err := m.Read()
		require.NoError(t, err)
		if row == nil {
			break
		}
		perID[m.PositionedRowID()]++
	}
	require.Len(t, perID, 2)
	counts := make([]int, 0, 2)
	for _, n := range perID {
		counts = append(counts, n)
	}
	assert.ElementsMatch(t, []int{1, 2}, counts, "copies of one stored row share its id")
}

func TestParseSetOp(t *testing.T) {
	tests := []struct {
		in   string
		want SetOp
	}{
		{"union-all", UnionAll},
		{"UNION", UnionDistinct},
		{"union_distinct", UnionDistinct},
		{"intersect", Intersect},
		{"intersect-all", IntersectAll},
		{"except", Except},
		{" except_all ", ExceptAll},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseSetOp(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := ParseSetOp("minus")
	assert.Error(t, err)
	assert.True(t, ExceptAll.Hashed())
	assert.False(t, UnionDistinct.Hashed())
}
