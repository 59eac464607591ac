package snapshot_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"todosync/internal/client/snapshot"
)

func TestStore_LoadMissingFileReturnsEmptyDocument(t *testing.T) {
	dir := t.TempDir()
	s := snapshot.New(filepath.Join(dir, "snapshot.json"))

	doc, err := s.Load()
	require.NoError(t, err)
	assert.Empty(t, doc.Todos)
	assert.Empty(t, doc.ServerIDToLocalID)
}

func TestStore_SaveThenLoadRoundTrips(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "snapshot.json")
	s := snapshot.New(path)

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	doc := &snapshot.Document{
		LastSyncedAt: now,
		Todos: map[string]snapshot.TodoRecord{
			"local-1": {Title: "Buy milk", Tags: []string{}, Status: "open", EditedAt: now},
		},
		ServerIDToLocalID: map[string]string{"server-1": "local-1"},
		Dirty: snapshot.Dirty{
			Upserted: []string{},
			Deleted:  map[string]time.Time{},
		},
	}
	require.NoError(t, s.Save(doc))

	loaded, err := s.Load()
	require.NoError(t, err)
	assert.Equal(t, now, loaded.LastSyncedAt)
	assert.Equal(t, "Buy milk", loaded.Todos["local-1"].Title)
	assert.Equal(t, "local-1", loaded.ServerIDToLocalID["server-1"])
}

func TestStore_LoadRejectsMissingRequiredFields(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "snapshot.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"todos": {}}`), 0o644))

	s := snapshot.New(path)
	_, err := s.Load()
	require.ErrorIs(t, err, snapshot.ErrCorruptState)
}

func TestStore_LoadRejectsUndecodableJSON(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "snapshot.json")
	require.NoError(t, os.WriteFile(path, []byte(`not json`), 0o644))

	s := snapshot.New(path)
	_, err := s.Load()
	require.ErrorIs(t, err, snapshot.ErrCorruptState)
}

func TestStore_BackupCopiesLiveFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "snapshot.json")
	s := snapshot.New(path)

	doc := &snapshot.Document{
		LastSyncedAt:      time.Now(),
		Todos:             map[string]snapshot.TodoRecord{},
		ServerIDToLocalID: map[string]string{},
	}
	require.NoError(t, s.Save(doc))
	require.NoError(t, s.Backup())

	_, err := os.Stat(path + ".bak")
	require.NoError(t, err)
}

func TestStore_LoadFillsMissingPositionAndEditedAtDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "snapshot.json")
	body := `{
		"lastSyncedAt": "2026-01-01T00:00:00Z",
		"todos": { "local-1": {"title": "Old record", "status": "open"} },
		"serverIdToLocalId": {}
	}`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	s := snapshot.New(path)
	doc, err := s.Load()
	require.NoError(t, err)

	rec := doc.Todos["local-1"]
	assert.Equal(t, 0, rec.Position)
	assert.Equal(t, []string{}, rec.Tags)
	assert.Equal(t, doc.LastSyncedAt, rec.EditedAt)
}
