package session

import (
	"context"
	"testing"

	"setexec/pkg/config"
	"setexec/pkg/dberror"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExecContext_Kill(t *testing.T) {
	e := New(context.Background(), nil)
	require.NoError(t, e.CheckKilled())

	e.Kill()
	assert.True(t, e.Killed())
	assert.ErrorIs(t, e.CheckKilled(), dberror.ErrQueryKilled)
}

func TestExecContext_Cancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	e := New(ctx, nil)
	assert.False(t, e.Killed())

	cancel()
	assert.ErrorIs(t, e.CheckKilled(), dberror.ErrQueryKilled)
}

func TestExecContext_Defaults(t *testing.T) {
	cfg := config.Default()
	cfg.TempDir = "/scratch"
	fs := afero.NewMemMapFs()

	e := New(context.Background(), cfg, WithFs(fs))
	assert.Same(t, fs, e.Fs())
	assert.Equal(t, "/scratch", e.TempDir())
	assert.NotNil(t, e.Logger())
	assert.NotNil(t, e.Metrics())
	assert.Equal(t, uint64(1), e.NextID())
	assert.Equal(t, uint64(2), e.NextID())
}
