// ABOUTME: Tests for logger construction
// ABOUTME: Checks level parsing and file output
package logging

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWritesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ringfeed.log")
	logger, err := New(Options{Level: "info", File: path})
	require.NoError(t, err)

	logger.Debug("hidden")
	logger.Info("session opened")
	require.NoError(t, logger.Sync())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "session opened")
	assert.NotContains(t, string(data), "hidden")
}

func TestNewRejectsLevel(t *testing.T) {
	_, err := New(Options{Level: "loud"})
	assert.Error(t, err)
}

func TestNewBadFile(t *testing.T) {
	_, err := New(Options{Level: "info", File: filepath.Join(t.TempDir(), "missing", "x.log")})
	assert.Error(t, err)
}
