// Package models holds the server's persisted record shapes, §3.
package models

import "time"

type Status string

const (
	StatusOpen      Status = "open"
	StatusCompleted Status = "completed"
	StatusCanceled  Status = "canceled"
)

// Todo is a server-side todo record.
type Todo struct {
	ID        string
	Title     string
	Notes     string
	DueDate   *time.Time
	Tags      []string
	Status    Status
	Position  int
	EditedAt  time.Time
	UpdatedAt time.Time
	CreatedBy string
	UpdatedBy string
}

// Tombstone records that a todo was deleted. At most one per ServerID
// is retained; the newest by DeletedAt wins (§3, B4).
type Tombstone struct {
	ServerID   string
	DeletedAt  time.Time
	RecordedAt time.Time
	DeletedBy  string
}

// User is an account with a bearer token the server can authenticate.
type User struct {
	ID        string
	Name      string
	TokenHash string
}

func (t Todo) Clone() Todo {
	clone := t
	if t.DueDate != nil {
		d := *t.DueDate
		clone.DueDate = &d
	}
	if t.Tags != nil {
		clone.Tags = append(make([]string, 0, len(t.Tags)), t.Tags...)
	}
	return clone
}
