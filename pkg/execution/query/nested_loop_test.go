package query

import (
	"testing"

	"setexec/pkg/iterator"
	"setexec/pkg/tuple"
	"setexec/pkg/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func names(t *testing.T, rows []*tuple.Tuple, col int) []string {
	t.Helper()
	out := make([]string, 0, len(rows))
	for _, r := range rows {
		f, err := r.GetField(col)
		require.NoError(t, err)
		if f == nil {
			out = append(out, "NULL")
			continue
		}
		out = append(out, f.(*types.StringField).Value)
	}
	return out
}

func TestNestedLoop(t *testing.T) {
	tests := []struct {
		name      string
		joinType  JoinType
		wantOuter []int64
		wantNames []string
		wantWidth int
	}{
		{
			name:      "inner",
			joinType:  JoinInner,
			wantOuter: []int64{1, 1, 3},
			wantNames: []string{"a", "b", "c"},
			wantWidth: 3,
		},
		{
			name:      "outer",
			joinType:  JoinOuter,
			wantOuter: []int64{1, 1, 2, 3},
			wantNames: []string{"a", "b", "NULL", "c"},
			wantWidth: 3,
		},
		{name: "semi", joinType: JoinSemi, wantOuter: []int64{1, 3}, wantWidth: 1},
		{name: "anti", joinType: JoinAnti, wantOuter: []int64{2}, wantWidth: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ec := newContext()
			outer := newCountingSource(intDesc, intRows(1, 2, 3))
			inner := newCountingSource(pairDesc, []*tuple.Tuple{
				pairRow(1, "a"), pairRow(1, "b"), pairRow(3, "c"),
			})
			nl, err := NewNestedLoop(outer, inner, tt.joinType, ColumnsEqual(0, 0))
			require.NoError(t, err)
			assert.Equal(t, tt.wantWidth, nl.Schema().NumFields())

			rows, err := iterator.Collect(ec, nl)
			require.NoError(t, err)
			assert.Equal(t, tt.wantOuter, ints(t, rows, 0))
			if tt.wantNames != nil {
				assert.Equal(t, tt.wantNames, names(t, rows, 2))
			}
			assert.Equal(t, 3, inner.Inits, "inner side is re-initialized per outer row")
		})
	}
}

func TestNestedLoop_EmptyInner(t *testing.T) {
	ec := newContext()
	outer := newCountingSource(intDesc, intRows(1, 2))

	inner, err := NewNestedLoop(outer, newCountingSource(pairDesc, nil), JoinInner, nil)
	require.NoError(t, err)
	assert.Empty(t, collectInts(t, ec, inner))

	anti, err := NewNestedLoop(outer, newCountingSource(pairDesc, nil), JoinAnti, nil)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2}, collectInts(t, ec, anti))
}

func TestNestedLoop_CrossProduct(t *testing.T) {
	ec := newContext()
	nl, err := NewNestedLoop(
		newCountingSource(intDesc, intRows(1, 2)),
		newCountingSource(pairDesc, []*tuple.Tuple{pairRow(7, "x"), pairRow(8, "y")}),
		JoinInner, nil)
	require.NoError(t, err)

	rows, err := iterator.Collect(ec, nl)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 1, 2, 2}, ints(t, rows, 0))
	assert.Equal(t, []int64{7, 8, 7, 8}, ints(t, rows, 1))
}

func TestNewNestedLoop_NilChild(t *testing.T) {
	_, err := NewNestedLoop(nil, newCountingSource(intDesc, nil), JoinInner, nil)
	assert.Error(t, err)
}

func TestJoinType_String(t *testing.T) {
	assert.Equal(t, "SEMI", JoinSemi.String())
	assert.Equal(t, "JoinType(9)", JoinType(9).String())
}
