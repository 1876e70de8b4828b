package tuple

import (
	"setexec/pkg/types"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intStringDesc(t *testing.T) *TupleDescription {
	t.Helper()
	td, err := NewTupleDesc([]types.Type{types.IntType, types.StringType}, []string{"id", "name"})
	require.NoError(t, err)
	return td
}

func TestNewTupleDesc(t *testing.T) {
	tests := []struct {
		name      string
		types     []types.Type
		names     []string
		expectErr bool
	}{
		{"single field", []types.Type{types.IntType}, nil, false},
		{"named fields", []types.Type{types.IntType, types.StringType}, []string{"a", "b"}, false},
		{"no fields", nil, nil, true},
		{"name mismatch", []types.Type{types.IntType}, []string{"a", "b"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			td, err := NewTupleDesc(tt.types, tt.names)
			if tt.expectErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, len(tt.types), td.NumFields())
		})
	}
}

func TestCombine(t *testing.T) {
	left := MustNewTupleDesc([]types.Type{types.IntType}, []string{"a"})
	right := MustNewTupleDesc([]types.Type{types.StringType}, nil)

	combined := Combine(left, right)
	assert.Equal(t, 2, combined.NumFields())
	assert.Equal(t, []string{"a", ""}, combined.FieldNames)
}

func TestTuple_SetFieldTypeMismatch(t *testing.T) {
	tup := NewTuple(intStringDesc(t))
	assert.Error(t, tup.SetField(0, types.NewStringField("x")))
	assert.Error(t, tup.SetField(5, types.NewIntField(1)))
	assert.NoError(t, tup.SetField(0, nil))
}

func TestBuilder(t *testing.T) {
	td := intStringDesc(t)

	tup, err := NewBuilder(td).AddInt(7).AddNull().Build()
	require.NoError(t, err)
	assert.Equal(t, "7\tnull", tup.String())

	_, err = NewBuilder(td).AddInt(7).Build()
	assert.Error(t, err)

	_, err = NewBuilder(td).AddString("x").AddString("y").Build()
	assert.Error(t, err)
}

func TestCodec_RoundTrip(t *testing.T) {
	td := MustNewTupleDesc([]types.Type{types.IntType, types.StringType, types.FloatType, types.BoolType}, nil)

	rows := []*Tuple{
		NewBuilder(td).AddInt(1).AddString("hello").AddFloat(1.5).AddBool(true).MustBuild(),
		NewBuilder(td).AddNull().AddNull().AddNull().AddNull().MustBuild(),
		NewBuilder(td).AddInt(-3).AddString("").AddNull().AddBool(false).MustBuild(),
	}

	for _, row := range rows {
		encoded, err := Encode(nil, row)
		require.NoError(t, err)
		assert.Equal(t, EncodedSize(row), len(encoded))

		decoded, err := DecodeNew(td, encoded)
		require.NoError(t, err)
		assert.True(t, Equal(row, decoded), "row %s decoded as %s", row, decoded)

		h1, err := Hash(row)
		require.NoError(t, err)
		h2, err := Hash(decoded)
		require.NoError(t, err)
		assert.Equal(t, h1, h2)
	}
}

func TestDecode_Errors(t *testing.T) {
	td := intStringDesc(t)
	_, err := DecodeNew(td, nil)
	assert.Error(t, err)

	row := NewBuilder(td).AddInt(1).AddString("a").MustBuild()
	encoded, err := Encode(nil, row)
	require.NoError(t, err)
	_, err = DecodeNew(td, append(encoded, 0xFF))
	assert.Error(t, err)
}

func TestHash_EqualRowsEqualHashes(t *testing.T) {
	td := MustNewTupleDesc([]types.Type{types.FloatType}, nil)
	pos := NewBuilder(td).AddFloat(0).MustBuild()
	neg := NewBuilder(td).AddFloat(-1 * 0.0).MustBuild()
	negZero := NewTuple(td)
	require.NoError(t, negZero.SetField(0, types.NewFloat64Field(negativeZero())))

	assert.True(t, Equal(pos, negZero))
	h1, _ := Hash(pos)
	h2, _ := Hash(neg)
	h3, _ := Hash(negZero)
	assert.Equal(t, h1, h2)
	assert.Equal(t, h1, h3)
}

func negativeZero() float64 {
	z := 0.0
	return -z
}

func TestEqualAndCompare(t *testing.T) {
	td := intStringDesc(t)
	a := NewBuilder(td).AddInt(1).AddNull().MustBuild()
	b := NewBuilder(td).AddInt(1).AddNull().MustBuild()
	c := NewBuilder(td).AddInt(1).AddString("z").MustBuild()

	assert.True(t, Equal(a, b))
	assert.False(t, Equal(a, c))
	assert.Equal(t, 0, Compare(a, b))
	assert.Negative(t, Compare(a, c))
}

func TestEncodeColumns(t *testing.T) {
	td := intStringDesc(t)
	a := NewBuilder(td).AddInt(1).AddString("x").MustBuild()
	b := NewBuilder(td).AddInt(2).AddString("x").MustBuild()

	ka, err := EncodeColumns(nil, a, []int{1})
	require.NoError(t, err)
	kb, err := EncodeColumns(nil, b, []int{1})
	require.NoError(t, err)
	assert.Equal(t, ka, kb)

	_, err = EncodeColumns(nil, a, []int{3})
	assert.Error(t, err)
}

func TestClone_IsIndependent(t *testing.T) {
	td := intStringDesc(t)
	orig := NewBuilder(td).AddInt(1).AddString("x").MustBuild()
	clone := orig.Clone()
	require.NoError(t, orig.SetField(0, types.NewIntField(2)))

	f, err := clone.GetField(0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), f.(*types.IntField).Value)
}
