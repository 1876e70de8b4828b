package logging

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   LogLevel
		want slog.Level
	}{
		{LevelDebug, slog.LevelDebug},
		{LevelInfo, slog.LevelInfo},
		{LevelWarn, slog.LevelWarn},
		{LevelError, slog.LevelError},
		{"bogus", slog.LevelInfo},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ParseLevel(tt.in), string(tt.in))
	}
}

func TestNewHandler_JSON(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewHandler(&buf, Config{Level: LevelDebug, Format: "json"}))
	logger.Debug("spill", Bytes("buffer", 16<<20))

	assert.Contains(t, buf.String(), `"buffer":"16 MiB"`)
}

func TestInit_FileOutput(t *testing.T) {
	require.NoError(t, Close())
	t.Cleanup(func() { _ = Close() })

	path := filepath.Join(t.TempDir(), "logs", "exec.log")
	require.NoError(t, Init(Config{Level: LevelInfo, OutputPath: path, MaxSizeMB: 1}))
	assert.Error(t, Init(Config{}), "second Init must fail")

	WithComponent("test").Info("hello")
	require.NoError(t, Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "component=test")
}

func TestGetLogger_LazyDefault(t *testing.T) {
	require.NoError(t, Close())
	assert.NotNil(t, GetLogger())
}

func TestClose_AllowsReinit(t *testing.T) {
	require.NoError(t, Close())
	t.Cleanup(func() { _ = Close() })

	lazy := GetLogger()
	assert.Same(t, lazy, GetLogger(), "lazy default is installed once")
	assert.Error(t, Init(Config{}), "lazy default counts as installed")

	require.NoError(t, Close())
	require.NoError(t, Init(Config{Format: "json"}))
	assert.NotSame(t, lazy, GetLogger())
	require.NoError(t, Close())
	require.NoError(t, Close())
}
