package store

import (
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRecordAndListActions(t *testing.T) {
	s := openTestStore(t)

	require.NoError(t, s.RecordAction("serial-1", "volume-up", nil))
	require.NoError(t, s.RecordAction("serial-1", "rotate", errors.New("control connection not available")))

	records, err := s.RecentActions(10)
	require.NoError(t, err)
	require.Len(t, records, 2)

	// Newest first.
	assert.Equal(t, "rotate", records[0].Action)
	assert.Equal(t, "control connection not available", records[0].Outcome)
	assert.Equal(t, "volume-up", records[1].Action)
	assert.Equal(t, "ok", records[1].Outcome)
}

func TestRecentActionsLimit(t *testing.T) {
	s := openTestStore(t)

	for i := 0; i < 5; i++ {
		require.NoError(t, s.RecordAction("serial-1", "home", nil))
	}

	records, err := s.RecentActions(3)
	require.NoError(t, err)
	assert.Len(t, records, 3)
}

func TestRecordScreenshot(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.RecordScreenshot("serial-1", "screenshot_device_20240305_080910.png", 1234))
}
