// Package hostapp defines the capability set the sync core depends on,
// per spec §9 "Polymorphism": the host task application is an opaque
// provider of list/create/update, and the core never depends on more
// than that.
package hostapp

import (
	"context"
	"time"
)

// Todo is the host application's view of a task item, the shape
// returned by a list readout and accepted by create/update.
type Todo struct {
	LocalID  string
	Title    string
	Notes    string
	DueDate  *time.Time
	Tags     []string
	Status   string
	Position int
}

// Fields is a partial update: only non-nil pointers are applied. The
// host app "cannot programmatically delete" (spec §1), so there is no
// Delete capability.
type Fields struct {
	Title    *string
	Notes    *string
	DueDate  **time.Time
	Tags     *[]string
	Status   *string
	Position *int
}

// HostApp is the capability set C3/C6 depend on. Implementations may be
// eventually consistent on Create: a List immediately after a Create
// may not yet show the new item.
type HostApp interface {
	List(ctx context.Context) ([]Todo, error)
	Create(ctx context.Context, fields Fields) error
	Update(ctx context.Context, localID string, fields Fields) error
}
