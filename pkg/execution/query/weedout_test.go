package query

import (
	"testing"

	"setexec/pkg/iterator"
	"setexec/pkg/storage/rowstore"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newIntStore(t *testing.T, opts rowstore.Options, vals []int64, counters []uint64) *rowstore.Store {
	t.Helper()
	opts.Schema = intDesc
	store := rowstore.New(opts)
	t.Cleanup(func() { _ = store.Close() })

	for i, row := range intRows(vals...) {
		hash, err := store.Hash(row)
		require.NoError(t, err)
		counter := uint64(1)
		if counters != nil {
			counter = counters[i]
		}
		_, err = store.Write(row, hash, counter)
		require.NoError(t, err)
	}
	return store
}

func TestWeedout(t *testing.T) {
	ec := newContext()
	scan := NewTableScan(newIntStore(t, rowstore.Options{}, []int64{1, 2, 3}, nil), nil)
	inner := newCountingSource(intDesc, intRows(1, 1, 3, 3, 3))
	join, err := NewNestedLoop(scan, inner, JoinInner, ColumnsEqual(0, 0))
	require.NoError(t, err)

	joined, err := iterator.Count(ec, join)
	require.NoError(t, err)
	require.Equal(t, 5, joined)

	w, err := NewWeedout(join, []iterator.RowIDSource{scan})
	require.NoError(t, err)

	assert.Equal(t, []int64{1, 3}, collectInts(t, ec, w))
	assert.Equal(t, []int64{1, 3}, collectInts(t, ec, w), "Init clears the seen set")
}

func TestNewWeedout_NoTables(t *testing.T) {
	_, err := NewWeedout(newCountingSource(intDesc, nil), nil)
	assert.Error(t, err)
}
