package app

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeLog(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func readLog(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

func TestRotateLogsShiftsArchives(t *testing.T) {
	dir := t.TempDir()
	logPath := filepath.Join(dir, "app.log")

	writeLog(t, logPath, "current")
	writeLog(t, logPath+".1", "older")
	writeLog(t, logPath+".2", "oldest")

	require.NoError(t, rotateLogs(logPath, 3, false))

	assert.NoFileExists(t, logPath)
	assert.Equal(t, "current", readLog(t, logPath+".1"))
	assert.Equal(t, "older", readLog(t, logPath+".2"))
	assert.Equal(t, "oldest", readLog(t, logPath+".3"))
}

func TestRotateLogsDropsOldestAtLimit(t *testing.T) {
	dir := t.TempDir()
	logPath := filepath.Join(dir, "app.log")

	writeLog(t, logPath, "current")
	writeLog(t, logPath+".1", "older")
	writeLog(t, logPath+".2", "oldest")

	require.NoError(t, rotateLogs(logPath, 2, false))

	assert.Equal(t, "current", readLog(t, logPath+".1"))
	assert.Equal(t, "older", readLog(t, logPath+".2"))
	assert.NoFileExists(t, logPath+".3")
}

func TestRotateLogsCleanupRemovesStale(t *testing.T) {
	dir := t.TempDir()
	logPath := filepath.Join(dir, "app.log")

	writeLog(t, logPath, "current")
	// Archives beyond the configured limit, left over from a larger setting.
	writeLog(t, logPath+".4", "stale")
	writeLog(t, logPath+".7", "staler")

	require.NoError(t, rotateLogs(logPath, 2, true))

	assert.Equal(t, "current", readLog(t, logPath+".1"))
	assert.NoFileExists(t, logPath+".4")
	assert.NoFileExists(t, logPath+".7")
}

func TestRotateLogsMissingFileIsNoop(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, rotateLogs(filepath.Join(dir, "absent.log"), 3, true))
}
