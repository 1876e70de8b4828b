package functools

import (
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMapWithError(t *testing.T) {
	tests := []struct {
		name    string
		input   []string
		want    []int
		wantErr string
	}{
		{name: "nil", input: nil, want: nil},
		{name: "empty", input: []string{}, want: []int{}},
		{name: "all parse", input: []string{"1", "2", "3"}, want: []int{1, 2, 3}},
		{name: "stops at failure", input: []string{"1", "x", "3"}, wantErr: "element 1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := MapWithError(tt.input, strconv.Atoi)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				assert.Nil(t, got)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
