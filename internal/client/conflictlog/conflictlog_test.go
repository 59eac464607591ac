package conflictlog_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"todosync/internal/client/conflictlog"
)

func TestLog_LoadMissingFileReturnsNil(t *testing.T) {
	dir := t.TempDir()
	l := conflictlog.New(filepath.Join(dir, "conflicts.json"))

	entries, err := l.Load()
	require.NoError(t, err)
	assert.Nil(t, entries)
}

func TestLog_AppendThenLoadRoundTrips(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "conflicts.json")
	l := conflictlog.New(path)

	entry := conflictlog.Entry{
		RecordedAt: time.Now(),
		Kind:       conflictlog.KindServerReject,
		ServerID:   "server-1",
		Message:    "remote edit was newer",
	}
	require.NoError(t, l.Append(entry))

	entries, err := l.Load()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, conflictlog.KindServerReject, entries[0].Kind)
	assert.Equal(t, "server-1", entries[0].ServerID)
}

func TestLog_AppendAccumulatesAcrossCalls(t *testing.T) {
	dir := t.TempDir()
	l := conflictlog.New(filepath.Join(dir, "conflicts.json"))

	require.NoError(t, l.Append(conflictlog.Entry{Kind: conflictlog.KindOrphanCreate, LocalID: "a"}))
	require.NoError(t, l.Append(conflictlog.Entry{Kind: conflictlog.KindAmbiguousCreate, LocalID: "b"}))

	entries, err := l.Load()
	require.NoError(t, err)
	require.Len(t, entries, 2)
}

func TestLog_AppendWithNoEntriesIsNoop(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "conflicts.json")
	l := conflictlog.New(path)

	require.NoError(t, l.Append())
	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestLog_AppendReplacesCorruptExistingLog(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "conflicts.json")
	require.NoError(t, os.WriteFile(path, []byte("not json"), 0o644))

	l := conflictlog.New(path)
	require.NoError(t, l.Append(conflictlog.Entry{Kind: conflictlog.KindDeleteAcknowledged}))

	entries, err := l.Load()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, conflictlog.KindDeleteAcknowledged, entries[0].Kind)
}
