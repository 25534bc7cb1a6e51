package logging

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"WARN", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"bogus", slog.LevelInfo},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, LevelFromString(tt.in), tt.in)
	}
}

func TestRotatingWriter_WritesAndRotates(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.log")

	// 1MB max, keep 2 rotated files
	w, err := NewRotatingWriter(path, 1, 2)
	require.NoError(t, err)
	defer w.Close()

	line := strings.Repeat("x", 64*1024)
	for i := 0; i < 20; i++ {
		_, err := w.Write([]byte(line))
		require.NoError(t, err)
	}

	// Rotation must have produced test.log.1
	_, err = os.Stat(path + ".1")
	assert.NoError(t, err)

	// Current file must be under the size limit
	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Less(t, info.Size(), int64(1024*1024)+int64(len(line)))
}

func TestRotatingWriter_KeepsAtMostMaxFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.log")

	w, err := NewRotatingWriter(path, 1, 2)
	require.NoError(t, err)
	defer w.Close()

	line := strings.Repeat("y", 256*1024)
	for i := 0; i < 40; i++ {
		_, err := w.Write([]byte(line))
		require.NoError(t, err)
	}

	matches, err := filepath.Glob(path + ".*")
	require.NoError(t, err)
	assert.LessOrEqual(t, len(matches), 2)
}

func TestSetup_WritesJSON(t *testing.T) {
	dir := t.TempDir()
	cfg := Config{
		Level:         "debug",
		FilePath:      filepath.Join(dir, "searchcore.log"),
		MaxSizeMB:     1,
		MaxFiles:      1,
		WriteToStderr: false,
	}

	logger, cleanup, err := Setup(cfg)
	require.NoError(t, err)
	logger.Info("snapshot_loaded", slog.Int("products", 42))
	cleanup()

	data, err := os.ReadFile(cfg.FilePath)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"snapshot_loaded"`)
	assert.Contains(t, string(data), `"products":42`)
}
