package setops

import (
	"context"
	"math/rand"
	"testing"

	"setexec/pkg/config"
	"setexec/pkg/dberror"
	"setexec/pkg/iterator"
	"setexec/pkg/metrics"
	"setexec/pkg/session"
	"setexec/pkg/storage/rowstore"
	"setexec/pkg/tuple"
	"setexec/pkg/types"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const spillDir = "/spill"

var intDesc = tuple.MustNewTupleDesc([]types.Type{types.IntType}, []string{"a"})

func intRows(vals ...int64) []*tuple.Tuple {
	rows := make([]*tuple.Tuple, len(vals))
	for i, v := range vals {
		rows[i] = tuple.NewBuilder(intDesc).AddInt(v).MustBuild()
	}
	return rows
}

type testEnv struct {
	ec      *session.ExecContext
	metrics *metrics.Metrics
	fs      afero.Fs
}

func newTestEnv(buffer int64, maxChunks int) *testEnv {
	cfg := config.Default()
	cfg.SetOperationBufferSize = config.ByteSize(buffer)
	cfg.MaxChunkFiles = maxChunks
	cfg.TempDir = spillDir

	fs := afero.NewMemMapFs()
	m := metrics.New(nil)
	ec := session.New(context.Background(), cfg, session.WithFs(fs), session.WithMetrics(m))
	return &testEnv{ec: ec, metrics: m, fs: fs}
}

// runProcessor materializes operands and returns the output multiset.
func runProcessor(t *testing.T, env *testEnv, policy Policy, operands [][]int64, estimatedRows int64) map[int64]uint64 {
	t.Helper()
	store := rowstore.New(rowstore.Options{Schema: intDesc, Dir: t.TempDir()})
	defer store.Close()

	p := NewProcessor(env.ec, intDesc, policy, store, len(operands))
	defer p.Close()

	for i, vals := range operands {
		src := iterator.NewSliceSource(intDesc, intRows(vals...))
		require.NoError(t, src.Init(env.ec))
		require.NoError(t, p.MaterializeOperand(i, src, estimatedRows))
	}
	require.NoError(t, p.Finish())

	out := make(map[int64]uint64)
	seen := make(map[int64]bool)
	c := store.NewCursor()
	for {
		row, counter, err := c.Next()
		require.NoError(t, err)
		if row == nil {
			return out
		}
		f, err := row.GetField(0)
		require.NoError(t, err)
		v := f.(*types.IntField).Value
		require.False(t, seen[v], "row %d stored twice", v)
		seen[v] = true
		if n := policy.Copies(counter); n > 0 {
			out[v] = n
		}
	}
}

func bag(vals []int64) map[int64]uint64 {
	b := make(map[int64]uint64)
	for _, v := range vals {
		b[v]++
	}
	return b
}

func modelExceptAll(operands [][]int64) map[int64]uint64 {
	out := bag(operands[0])
	for _, right := range operands[1:] {
		for v, n := range bag(right) {
			if out[v] <= n {
				delete(out, v)
			} else {
				out[v] -= n
			}
		}
	}
	return out
}

func modelExceptDistinct(operands [][]int64) map[int64]uint64 {
	out := make(map[int64]uint64)
	for v := range bag(operands[0]) {
		out[v] = 1
	}
	for _, right := range operands[1:] {
		for v := range bag(right) {
			delete(out, v)
		}
	}
	return out
}

func modelIntersectAll(operands [][]int64) map[int64]uint64 {
	left, right := bag(operands[0]), bag(operands[1])
	out := make(map[int64]uint64)
	for v, n := range left {
		if m := min(n, right[v]); m > 0 {
			out[v] = m
		}
	}
	return out
}

func modelIntersectDistinct(operands [][]int64) map[int64]uint64 {
	out := make(map[int64]uint64)
	for v := range bag(operands[0]) {
		out[v] = 1
	}
	for _, right := range operands[1:] {
		b := bag(right)
		for v := range out {
			if b[v] == 0 {
				delete(out, v)
			}
		}
	}
	return out
}

type setOpCase struct {
	name     string
	operands int
	policy   func(n int) Policy
	model    func([][]int64) map[int64]uint64
}

var setOpCases = []setOpCase{
	{
		name:     "except all",
		operands: 3,
		policy:   func(n int) Policy { return NewExceptAll(n, n) },
		model:    modelExceptAll,
	},
	{
		name:     "except distinct",
		operands: 3,
		policy:   func(n int) Policy { return NewExceptDistinct(n) },
		model:    modelExceptDistinct,
	},
	{
		name:     "intersect all",
		operands: 2,
		policy: func(n int) Policy {
			p, err := NewIntersectAll(n)
			if err != nil {
				panic(err)
			}
			return p
		},
		model: modelIntersectAll,
	},
	{
		name:     "intersect distinct",
		operands: 4,
		policy:   func(n int) Policy { return NewIntersectDistinct(n) },
		model:    modelIntersectDistinct,
	},
}

func randomOperands(seed int64, n, rows int, span int64) [][]int64 {
	rng := rand.New(rand.NewSource(seed))
	operands := make([][]int64, n)
	for i := range operands {
		// Right operands are shifted so they overlap the left one partially.
		offset := int64(i) * span / 4
		for j := 0; j < rows; j++ {
			operands[i] = append(operands[i], offset+rng.Int63n(span))
		}
	}
	return operands
}

func TestProcessor_Scenarios(t *testing.T) {
	tests := []struct {
		name     string
		policy   Policy
		operands [][]int64
		want     map[int64]uint64
	}{
		{
			name:     "except distinct",
			policy:   NewExceptDistinct(2),
			operands: [][]int64{{1, 1, 2, 3}, {1}},
			want:     map[int64]uint64{2: 1, 3: 1},
		},
		{
			name:     "except all",
			policy:   NewExceptAll(2, 2),
			operands: [][]int64{{1, 1, 2}, {1}},
			want:     map[int64]uint64{1: 1, 2: 1},
		},
		{
			name:     "intersect all",
			policy:   intersectAll(t),
			operands: [][]int64{{1, 1, 1}, {1, 1}},
			want:     map[int64]uint64{1: 2},
		},
		{
			name:     "intersect distinct",
			policy:   NewIntersectDistinct(3),
			operands: [][]int64{{1, 2, 2, 3}, {2, 3, 3}, {3, 2, 9}},
			want:     map[int64]uint64{2: 1, 3: 1},
		},
		{
			name:     "empty left",
			policy:   NewExceptAll(2, 2),
			operands: [][]int64{{}, {1, 2}},
			want:     map[int64]uint64{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(1<<20, 128)
			got := runProcessor(t, env, tt.policy, tt.operands, 0)
			assert.Equal(t, tt.want, got)
			assert.Zero(t, testutil.ToFloat64(env.metrics.Spills))
		})
	}
}

func intersectAll(t *testing.T) Policy {
	p, err := NewIntersectAll(2)
	require.NoError(t, err)
	return p
}

// The result of a set operation does not depend on whether it ran in
// memory, spilled, or overflowed its spill.
func TestProcessor_SpillTransparency(t *testing.T) {
	configs := []struct {
		name          string
		buffer        int64
		maxChunks     int
		estimatedRows int64
		spills        bool
		secondary     bool
	}{
		{name: "in memory", buffer: 1 << 20, maxChunks: 128},
		{name: "spilled", buffer: 5000, maxChunks: 128, estimatedRows: 1000, spills: true},
		{name: "spilled over sets", buffer: 5000, maxChunks: 4, estimatedRows: 1000, spills: true},
		{name: "secondary overflow", buffer: 250, maxChunks: 2, spills: true, secondary: true},
	}

	for _, op := range setOpCases {
		operands := randomOperands(int64(len(op.name)), op.operands, 300, 100)
		want := op.model(operands)

		for _, cfg := range configs {
			t.Run(op.name+"/"+cfg.name, func(t *testing.T) {
				env := newTestEnv(cfg.buffer, cfg.maxChunks)
				got := runProcessor(t, env, op.policy(op.operands), operands, cfg.estimatedRows)
				assert.Equal(t, want, got)

				if cfg.spills {
					assert.Equal(t, 1.0, testutil.ToFloat64(env.metrics.Spills))
				} else {
					assert.Zero(t, testutil.ToFloat64(env.metrics.Spills))
				}
				if cfg.secondary {
					assert.Equal(t, 1.0, testutil.ToFloat64(env.metrics.SecondaryOverflows))
				} else {
					assert.Zero(t, testutil.ToFloat64(env.metrics.SecondaryOverflows))
				}

				assert.Zero(t, testutil.ToFloat64(env.metrics.ChunkFilesOpen))
				if ok, _ := afero.DirExists(env.fs, spillDir); ok {
					left, err := afero.ReadDir(env.fs, spillDir)
					require.NoError(t, err)
					assert.Empty(t, left, "chunk files left behind")
				}
			})
		}
	}
}

func TestProcessor_LargeDistinctSpill(t *testing.T) {
	rows := 100_000
	if testing.Short() {
		rows = 5_000
	}
	left := make([]int64, rows)
	for i := range left {
		left[i] = int64(i)
	}
	right := []int64{0, 7, 99, int64(rows - 1), int64(rows + 5)}
	operands := [][]int64{left, right}

	env := newTestEnv(250, 128)
	got := runProcessor(t, env, NewExceptDistinct(2), operands, 0)

	assert.Len(t, got, rows-4)
	for _, v := range right {
		assert.NotContains(t, got, v)
	}
	assert.Equal(t, modelExceptDistinct(operands), got)
	assert.Equal(t, 1.0, testutil.ToFloat64(env.metrics.Spills))
	assert.Equal(t, 1.0, testutil.ToFloat64(env.metrics.SecondaryOverflows))
}

func TestProcessor_SingleRowTooLarge(t *testing.T) {
	// The buffer is smaller than a single row, so the first left row moves
	// deduplication to the row store.
	env := newTestEnv(64, 128)
	got := runProcessor(t, env, NewExceptAll(2, 2), [][]int64{{1, 1, 2, 3, 3, 3}, {3, 1}}, 0)

	assert.Equal(t, map[int64]uint64{1: 1, 2: 1, 3: 2}, got)
	assert.Equal(t, 1.0, testutil.ToFloat64(env.metrics.SingleRowFallbacks))
	assert.Zero(t, testutil.ToFloat64(env.metrics.Spills))
}

func TestProcessor_Killed(t *testing.T) {
	env := newTestEnv(1<<20, 128)
	store := rowstore.New(rowstore.Options{Schema: intDesc, Dir: t.TempDir()})
	defer store.Close()
	p := NewProcessor(env.ec, intDesc, NewExceptDistinct(2), store, 2)
	defer p.Close()

	src := iterator.NewSliceSource(intDesc, intRows(1, 2, 3))
	require.NoError(t, src.Init(env.ec))
	env.ec.Kill()

	err := p.MaterializeOperand(0, src, 0)
	assert.ErrorIs(t, err, dberror.ErrQueryKilled)
}

func TestProcessor_OperandOutOfRange(t *testing.T) {
	env := newTestEnv(1<<20, 128)
	store := rowstore.New(rowstore.Options{Schema: intDesc, Dir: t.TempDir()})
	defer store.Close()
	p := NewProcessor(env.ec, intDesc, NewExceptDistinct(2), store, 2)

	src := iterator.NewSliceSource(intDesc, nil)
	require.NoError(t, src.Init(env.ec))
	err := p.MaterializeOperand(2, src, 0)
	assert.True(t, dberror.IsAssertionFailure(err))
}

func TestProcessor_SeedDiffersPerProcessor(t *testing.T) {
	env := newTestEnv(1<<20, 128)

	seeds := make(map[uint64]bool)
	for i := 0; i < 3; i++ {
		store := rowstore.New(rowstore.Options{Schema: intDesc, Dir: t.TempDir()})
		defer store.Close()
		p := NewProcessor(env.ec, intDesc, NewExceptDistinct(2), store, 2)
		defer p.Close()
		seeds[p.spill.seed] = true
	}
	assert.Len(t, seeds, 3, "nested operations with the same operand count partition differently")
}

// killAfterFirstRow kills the query once it has returned a row and never
// polls the kill flag itself.
type killAfterFirstRow struct {
	ec    *session.ExecContext
	rows  []*tuple.Tuple
	reads int
}

func (k *killAfterFirstRow) Init(ec *session.ExecContext) error {
	k.ec = ec
	k.reads = 0
	return nil
}

func (k *killAfterFirstRow) Read() (*tuple.Tuple, error) {
	if k.reads == len(k.rows) {
		return nil, nil
	}
	r := k.rows[k.reads]
	k.reads++
	k.ec.Kill()
	return r, nil
}

func (k *killAfterFirstRow) UnlockRow() {}
func (k *killAfterFirstRow) SetNullRowFlag(bool) {}
func (k *killAfterFirstRow) StartBatchMode() {}
func (k *killAfterFirstRow) EndBatchMode() {}
func (k *killAfterFirstRow) Schema() *tuple.TupleDescription { return intDesc }
func (k *killAfterFirstRow) Close() error { return nil }

func TestProcessor_KilledWhileSavingRightOperand(t *testing.T) {
	env := newTestEnv(5000, 128)
	store := rowstore.New(rowstore.Options{Schema: intDesc, Dir: t.TempDir()})
	defer store.Close()
	p := NewProcessor(env.ec, intDesc, NewExceptDistinct(2), store, 2)
	defer p.Close()

	vals := make([]int64, 300)
	for i := range vals {
		vals[i] = int64(i % 100)
	}
	left := iterator.NewSliceSource(intDesc, intRows(vals...))
	require.NoError(t, left.Init(env.ec))
	require.NoError(t, p.MaterializeOperand(0, left, 1000))
	require.True(t, p.Spilled())
	require.False(t, p.Indexed())

	right := &killAfterFirstRow{rows: intRows(sequence(0, 99)...)}
	require.NoError(t, right.Init(env.ec))
	err := p.MaterializeOperand(1, right, 0)
	assert.ErrorIs(t, err, dberror.ErrQueryKilled)
	assert.Equal(t, 1, right.reads, "saving stops at the first poll after the kill")
}
