// v0
// internal/logging/logging_test.go
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

func TestOpenWritesToBothSinks(t *testing.T) {
	var console bytes.Buffer
	path := filepath.Join(t.TempDir(), "logs", "greenhouse.log")

	logger, closer, err := open(&console, path, slog.LevelInfo)
	require.NoError(t, err)
	logger.With("component", "pipeline").Info("cycle_summary", "cycle", 1)
	logger.Debug("hidden")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	for _, out := range []string{console.String(), string(data)} {
		assert.Contains(t, out, "msg=cycle_summary")
		assert.Contains(t, out, "component=pipeline")
		assert.NotContains(t, out, "hidden")
	}
}

func TestOpenWithoutPathUsesConsoleOnly(t *testing.T) {
	var console bytes.Buffer
	logger, closer, err := open(&console, "  ", slog.LevelDebug)
	require.NoError(t, err)
	logger.Debug("probe")
	assert.NoError(t, closer.Close())
	assert.Contains(t, console.String(), "msg=probe")
}

func TestOpenFallsBackWhenFileUnavailable(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o644))

	var console bytes.Buffer
	logger, _, err := open(&console, filepath.Join(blocker, "nested", "out.log"), slog.LevelInfo)
	assert.Error(t, err)
	require.NotNil(t, logger)
	logger.Info("still_logging")
	assert.Contains(t, console.String(), "still_logging")
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("verbose"))
}
