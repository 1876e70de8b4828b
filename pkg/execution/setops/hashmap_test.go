package setops

import (
	"strings"
	"testing"

	"setexec/pkg/primitives"
	"setexec/pkg/tuple"
	"setexec/pkg/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var pairDesc = tuple.MustNewTupleDesc([]types.Type{types.IntType, types.StringType}, nil)

func pair(id int64, name string) *tuple.Tuple {
	return tuple.NewBuilder(pairDesc).AddInt(id).AddString(name).MustBuild()
}

func entryCost(r *tuple.Tuple) int64 {
	return int64(tuple.EncodedSize(r)) + entryOverhead + bucketOverhead
}

func TestHashMap_InsertAndFind(t *testing.T) {
	m := NewHashMap(pairDesc, 1<<20)

	res, err := m.Lookup(pair(1, "a"), true)
	require.NoError(t, err)
	assert.True(t, res.Inserted)
	res.Entry.Counter = 7

	res, err = m.Lookup(pair(1, "a"), true)
	require.NoError(t, err)
	assert.True(t, res.Found)
	assert.False(t, res.Inserted)
	assert.Equal(t, uint64(7), res.Entry.Counter)
	assert.Equal(t, 1, m.Len())

	res, err = m.Lookup(pair(2, "b"), false)
	require.NoError(t, err)
	assert.False(t, res.Found)
	assert.Nil(t, res.Entry)
	assert.Equal(t, 1, m.Len(), "a read-only probe never inserts")
}

func TestHashMap_ForcedCollisions(t *testing.T) {
	m := NewHashMap(pairDesc, 1<<20)
	const shared = primitives.HashCode(42)

	rows := []*tuple.Tuple{pair(1, "a"), pair(1, "b"), pair(2, "a"), tuple.NewBuilder(pairDesc).AddNull().AddString("a").MustBuild()}
	for i, r := range rows {
		res, err := m.Probe(r, shared, true)
		require.NoError(t, err)
		require.True(t, res.Inserted, "row %d", i)
		res.Entry.Counter = uint64(i)
	}
	assert.Equal(t, len(rows), m.Len())

	for i, r := range rows {
		res, err := m.Probe(r, shared, false)
		require.NoError(t, err)
		require.True(t, res.Found)
		assert.Equal(t, uint64(i), res.Entry.Counter, "collision merged row %d with another", i)
	}

	res, err := m.Probe(pair(3, "c"), shared, false)
	require.NoError(t, err)
	assert.False(t, res.Found)
}

func TestHashMap_SpillNeededLeavesMapUnchanged(t *testing.T) {
	first := pair(1, "a")
	m := NewHashMap(pairDesc, entryCost(first)+entryCost(first)/2)

	res, err := m.Lookup(first, true)
	require.NoError(t, err)
	require.True(t, res.Inserted)
	used := m.Used()

	res, err = m.Lookup(pair(2, "b"), true)
	require.NoError(t, err)
	assert.True(t, res.SpillNeeded)
	assert.False(t, res.SingleRowTooLarge)
	assert.Nil(t, res.Entry)
	assert.Equal(t, 1, m.Len())
	assert.Equal(t, used, m.Used())

	res, err = m.Lookup(first, true)
	require.NoError(t, err)
	assert.True(t, res.Found, "existing rows are still found when full")
}

func TestHashMap_SingleRowTooLarge(t *testing.T) {
	m := NewHashMap(pairDesc, 256)

	res, err := m.Lookup(pair(1, strings.Repeat("x", 512)), true)
	require.NoError(t, err)
	assert.True(t, res.SingleRowTooLarge)
	assert.Equal(t, 0, m.Len())
	assert.Zero(t, m.Used())
}

func TestHashMap_Reset(t *testing.T) {
	m := NewHashMap(pairDesc, 1<<20)
	for i := int64(0); i < 100; i++ {
		_, err := m.Lookup(pair(i, "row"), true)
		require.NoError(t, err)
	}
	require.Equal(t, 100, m.Len())

	m.Reset()
	assert.Equal(t, 0, m.Len())
	assert.Zero(t, m.Used())
	assert.Empty(t, m.Entries())

	res, err := m.Lookup(pair(5, "row"), false)
	require.NoError(t, err)
	assert.False(t, res.Found)

	res, err = m.Lookup(pair(5, "row"), true)
	require.NoError(t, err)
	assert.True(t, res.Inserted)
}
