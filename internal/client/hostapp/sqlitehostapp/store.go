// Package sqlitehostapp is a reference HostApp implementation backed by
// SQLite, grounded on LazyTask's internal/db (embed.FS schema +
// modernc.org/sqlite over database/sql). It stands in for "the host
// task application" spec §1 treats as an opaque external collaborator:
// a real deployment would adapt to whatever app the device actually
// runs (Todoist, Things, a calendar app); this adapter exists so the
// sync core has something concrete to drive in tests and demos.
package sqlitehostapp

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"todosync/internal/client/hostapp"
)

//go:embed schema.sql
var schemaFS embed.FS

type Store struct {
	db *sql.DB
}

// Open opens (creating if absent) the SQLite-backed host application at
// path and applies its schema.
func Open(path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite host app path is required")
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := applySchema(context.Background(), db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func applySchema(ctx context.Context, db *sql.DB) error {
	schemaSQL, err := schemaFS.ReadFile("schema.sql")
	if err != nil {
		return fmt.Errorf("read schema: %w", err)
	}
	if _, err := db.ExecContext(ctx, string(schemaSQL)); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) List(ctx context.Context) ([]hostapp.Todo, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT local_id, title, notes, due_date, tags, status, position
		FROM todos ORDER BY position ASC`)
	if err != nil {
		return nil, fmt.Errorf("list todos: %w", err)
	}
	defer rows.Close()

	var out []hostapp.Todo
	for rows.Next() {
		t, err := scanTodo(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *Store) Create(ctx context.Context, fields hostapp.Fields) error {
	localID := uuid.NewString()

	title := ""
	if fields.Title != nil {
		title = *fields.Title
	}
	notes := ""
	if fields.Notes != nil {
		notes = *fields.Notes
	}
	status := "open"
	if fields.Status != nil {
		status = *fields.Status
	}
	position := 0
	if fields.Position != nil {
		position = *fields.Position
	}
	var due *time.Time
	if fields.DueDate != nil {
		due = *fields.DueDate
	}
	tags := []string{}
	if fields.Tags != nil {
		tags = *fields.Tags
	}
	tagsJSON, err := json.Marshal(tags)
	if err != nil {
		return fmt.Errorf("marshal tags: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO todos (local_id, title, notes, due_date, tags, status, position)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		localID, title, notes, due, string(tagsJSON), status, position)
	if err != nil {
		return fmt.Errorf("create todo: %w", err)
	}
	return nil
}

func (s *Store) Update(ctx context.Context, localID string, fields hostapp.Fields) error {
	existing, err := s.get(ctx, localID)
	if err != nil {
		return err
	}

	if fields.Title != nil {
		existing.Title = *fields.Title
	}
	if fields.Notes != nil {
		existing.Notes = *fields.Notes
	}
	if fields.DueDate != nil {
		existing.DueDate = *fields.DueDate
	}
	if fields.Tags != nil {
		existing.Tags = *fields.Tags
	}
	if fields.Status != nil {
		existing.Status = *fields.Status
	}
	if fields.Position != nil {
		existing.Position = *fields.Position
	}

	tagsJSON, err := json.Marshal(existing.Tags)
	if err != nil {
		return fmt.Errorf("marshal tags: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		UPDATE todos SET title = ?, notes = ?, due_date = ?, tags = ?, status = ?, position = ?
		WHERE local_id = ?`,
		existing.Title, existing.Notes, existing.DueDate, string(tagsJSON), existing.Status, existing.Position, localID)
	if err != nil {
		return fmt.Errorf("update todo %s: %w", localID, err)
	}
	return nil
}

func (s *Store) get(ctx context.Context, localID string) (hostapp.Todo, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT local_id, title, notes, due_date, tags, status, position
		FROM todos WHERE local_id = ?`, localID)
	return scanTodo(row)
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTodo(row scanner) (hostapp.Todo, error) {
	var t hostapp.Todo
	var due sql.NullTime
	var tagsJSON string
	if err := row.Scan(&t.LocalID, &t.Title, &t.Notes, &due, &tagsJSON, &t.Status, &t.Position); err != nil {
		return t, fmt.Errorf("scan todo: %w", err)
	}
	if due.Valid {
		t.DueDate = &due.Time
	}
	if err := json.Unmarshal([]byte(tagsJSON), &t.Tags); err != nil {
		return t, fmt.Errorf("unmarshal tags: %w", err)
	}
	return t, nil
}
