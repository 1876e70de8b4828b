package query

import (
	"testing"

	"setexec/pkg/dberror"
	"setexec/pkg/iterator"
	"setexec/pkg/tuple"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLimitOffset(t *testing.T) {
	tests := []struct {
		name   string
		input  []int64
		limit  uint64
		offset uint64
		want   []int64
	}{
		{name: "offset and limit", input: sequence(1, 10), limit: 3, offset: 5, want: []int64{6, 7, 8}},
		{name: "limit only", input: sequence(1, 10), limit: 2, want: []int64{1, 2}},
		{name: "limit beyond input", input: sequence(1, 3), limit: 10, want: []int64{1, 2, 3}},
		{name: "offset beyond input", input: sequence(1, 3), limit: 10, offset: 5, want: []int64{}},
		{name: "zero limit", input: sequence(1, 3), limit: 0, want: []int64{}},
		{name: "empty input", input: nil, limit: 3, offset: 1, want: []int64{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ec := newContext()
			l, err := NewLimitOffset(newCountingSource(intDesc, intRows(tt.input...)), tt.limit, tt.offset, LimitOptions{})
			require.NoError(t, err)
			assert.Equal(t, tt.want, collectInts(t, ec, l))
		})
	}
}

func TestLimitOffset_ReadsAfterEOF(t *testing.T) {
	ec := newContext()
	src := newCountingSource(intDesc, intRows(sequence(1, 10)...))
	l, err := NewLimitOffset(src, 3, 5, LimitOptions{})
	require.NoError(t, err)
	require.NoError(t, l.Init(ec))
	assert.Zero(t, src.reads, "the offset is not skipped during Init")

	for _, want := range []int64{6, 7, 8} {
		row, err := l.Read()
		require.NoError(t, err)
		require.NotNil(t, row)
		assert.Equal(t, []int64{want}, ints(t, []*tuple.Tuple{row}, 0))
	}

	row, err := l.Read()
	require.NoError(t, err)
	assert.Nil(t, row, "the fourth read reports end of stream")
	assert.Equal(t, 8, src.reads, "no rows past the limit are pulled")
}

func TestLimitOffset_Reinit(t *testing.T) {
	ec := newContext()
	l, err := NewLimitOffset(newCountingSource(intDesc, intRows(sequence(1, 5)...)), 2, 1, LimitOptions{})
	require.NoError(t, err)

	assert.Equal(t, []int64{2, 3}, collectInts(t, ec, l))
	assert.Equal(t, []int64{2, 3}, collectInts(t, ec, l))
}

func TestLimitOffset_CountAllRows(t *testing.T) {
	ec := newContext()
	l, err := NewLimitOffset(newCountingSource(intDesc, intRows(sequence(1, 10)...)), 3, 2, LimitOptions{CountAllRows: true})
	require.NoError(t, err)

	assert.Equal(t, []int64{3, 4, 5}, collectInts(t, ec, l))
	assert.Equal(t, uint64(10), l.SeenRows())
}

func TestLimitOffset_RejectMultipleRows(t *testing.T) {
	tests := []struct {
		name    string
		input   []int64
		limit   uint64
		wantErr bool
	}{
		{name: "single row", input: []int64{7}, limit: 1},
		{name: "no rows", input: nil, limit: 1},
		{name: "two rows limit one", input: []int64{7, 8}, limit: 1, wantErr: true},
		{name: "two rows no limit", input: []int64{7, 8}, limit: 100, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ec := newContext()
			l, err := NewLimitOffset(newCountingSource(intDesc, intRows(tt.input...)), tt.limit, 0, LimitOptions{RejectMultipleRows: true})
			require.NoError(t, err)

			rows, err := iterator.Collect(ec, l)
			if tt.wantErr {
				assert.ErrorIs(t, err, dberror.ErrSubqueryMultipleRows)
				return
			}
			require.NoError(t, err)
			assert.Len(t, rows, len(tt.input))
		})
	}
}

func TestLimitOffset_Killed(t *testing.T) {
	ec := newContext()
	l, err := NewLimitOffset(newCountingSource(intDesc, intRows(1, 2, 3)), 3, 0, LimitOptions{})
	require.NoError(t, err)
	require.NoError(t, l.Init(ec))

	ec.Kill()
	_, err = l.Read()
	assert.ErrorIs(t, err, dberror.ErrQueryKilled)
}
