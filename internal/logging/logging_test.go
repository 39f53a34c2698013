package logging

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewFileLoggerCreatesDirectoryAndWritesJSON(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "dispatcher.log")
	levelVar := new(slog.LevelVar)

	logger, closeFn, err := NewFileLogger(path, "dispatcher", levelVar, FileLoggerConfig{Rotation: RotationSize})
	require.NoError(t, err)
	require.NotNil(t, logger)
	t.Cleanup(func() { _ = closeFn() })

	logger.Info("hello")
	require.NoError(t, closeFn())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"hello"`)
	assert.Contains(t, string(data), `"component":"dispatcher"`)
}

func TestNewFileLoggerAcceptsDailyRotation(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "daily.log")
	logger, closeFn, err := NewFileLogger(path, "svc", new(slog.LevelVar), FileLoggerConfig{Rotation: RotationDaily})
	require.NoError(t, err)
	defer closeFn()
	assert.NotNil(t, logger)
}
