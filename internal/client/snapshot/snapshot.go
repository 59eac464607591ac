// Package snapshot is the local snapshot store, C2: the single
// structured document holding a device's prior view of the todo list,
// persisted with the same atomic temp-file-then-rename discipline
// taskTracker's postgres migrations rely on the database for, done by
// hand here since there is no database on the client.
package snapshot

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// ErrCorruptState is returned when the document cannot be decoded or is
// missing a required field. Spec §4.2: no silent reset.
var ErrCorruptState = errors.New("corrupt snapshot state")

// TodoRecord is a device-local snapshot record, §3 "Client device state".
type TodoRecord struct {
	Title    string     `json:"title"`
	Notes    string     `json:"notes"`
	DueDate  *time.Time `json:"dueDate"`
	Tags     []string   `json:"tags"`
	Status   string     `json:"status"`
	Position int        `json:"position"`
	EditedAt time.Time  `json:"editedAt"`
}

// Dirty is the pending-change set not yet accepted by the server.
type Dirty struct {
	Upserted []string             `json:"upserted"`
	Deleted  map[string]time.Time `json:"deleted"`
}

// Document is the entire persisted device state, §3 / §6.
type Document struct {
	LastSyncedAt      time.Time             `json:"lastSyncedAt"`
	Todos             map[string]TodoRecord `json:"todos"`
	ServerIDToLocalID map[string]string     `json:"serverIdToLocalId"`
	Dirty             Dirty                 `json:"dirty"`
}

func empty() *Document {
	return &Document{
		Todos:             make(map[string]TodoRecord),
		ServerIDToLocalID: make(map[string]string),
		Dirty: Dirty{
			Upserted: []string{},
			Deleted:  make(map[string]time.Time),
		},
	}
}

// Store owns the on-disk document plus its sibling .bak and .tmp-<pid>
// files, per spec §6 "Persisted device state file".
type Store struct {
	path string
}

func New(path string) *Store {
	return &Store{path: path}
}

// Load reads the document. A missing file is a fresh device and
// returns an empty Document, not an error. Before returning a document
// that will be mutated this cycle, callers must call Backup.
func (s *Store) Load() (*Document, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return empty(), nil
		}
		return nil, fmt.Errorf("read snapshot: %w", err)
	}

	var raw struct {
		LastSyncedAt      *time.Time             `json:"lastSyncedAt"`
		Todos             map[string]TodoRecord  `json:"todos"`
		ServerIDToLocalID map[string]string      `json:"serverIdToLocalId"`
		Dirty             *Dirty                 `json:"dirty"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: decode: %v", ErrCorruptState, err)
	}
	if raw.LastSyncedAt == nil || raw.Todos == nil || raw.ServerIDToLocalID == nil {
		return nil, fmt.Errorf("%w: missing required field", ErrCorruptState)
	}

	doc := &Document{
		LastSyncedAt:      *raw.LastSyncedAt,
		Todos:             raw.Todos,
		ServerIDToLocalID: raw.ServerIDToLocalID,
	}
	if raw.Dirty != nil {
		doc.Dirty = *raw.Dirty
	}
	if doc.Dirty.Deleted == nil {
		doc.Dirty.Deleted = make(map[string]time.Time)
	}
	if doc.Dirty.Upserted == nil {
		doc.Dirty.Upserted = []string{}
	}

	// Schema tolerance, §4.2: records from before `position` existed get
	// defaults, and editedAt defaults to lastSyncedAt.
	for localID, rec := range doc.Todos {
		changed := false
		if rec.Tags == nil {
			rec.Tags = []string{}
			changed = true
		}
		if rec.EditedAt.IsZero() {
			rec.EditedAt = doc.LastSyncedAt
			changed = true
		}
		if changed {
			doc.Todos[localID] = rec
		}
	}

	return doc, nil
}

// Backup copies the live file to a .bak sidecar before any mutation of
// state begins in a cycle, per spec §4.2. A missing live file is fine
// (fresh device); any other error is fatal.
func (s *Store) Backup() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read snapshot for backup: %w", err)
	}
	return atomicWrite(s.path+".bak", data)
}

// Save persists doc atomically: write to a sibling temp file, fsync,
// then rename over the target.
func (s *Store) Save(doc *Document) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	return atomicWrite(s.path, data)
}

func atomicWrite(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() {
		_ = os.Remove(tmpPath)
	}()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("fsync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}
