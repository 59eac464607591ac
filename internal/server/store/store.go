// Package store defines the todo/tombstone store contract (S2) that the
// merge engine (S3) and delta service (S4) are built on. Postgres and
// in-memory implementations satisfy it identically so handlers and tests
// can swap one for the other, per spec §9 "Polymorphism".
package store

import (
	"context"
	"errors"
	"time"

	"todosync/internal/server/models"
)

var ErrNotFound = errors.New("not found")

// PushTx is the transactional handle a single /push request runs inside.
// Spec I5: all mutations within a push commit atomically or none do.
type PushTx interface {
	GetTodo(ctx context.Context, id string) (*models.Todo, error)
	GetTombstone(ctx context.Context, id string) (*models.Tombstone, error)
	UpsertTodo(ctx context.Context, t models.Todo) error
	DeleteTodo(ctx context.Context, id string) error
	PutTombstone(ctx context.Context, ts models.Tombstone) error
	ClearTombstone(ctx context.Context, id string) error
	// Now returns the server wall-clock instant to stamp into UpdatedAt/
	// RecordedAt for everything written during this transaction.
	Now() time.Time
}

// Store is the todo/tombstone store contract, S2.
type Store interface {
	HealthCheck(ctx context.Context) error

	// State returns every todo plus a fresh server-now cursor, for bootstrap.
	State(ctx context.Context) ([]models.Todo, time.Time, error)

	// Delta returns incremental changes since a cursor, S4.
	Delta(ctx context.Context, since time.Time) ([]models.Todo, []models.Tombstone, time.Time, error)

	// RunPush executes fn inside a single transaction spanning the whole push.
	RunPush(ctx context.Context, fn func(ctx context.Context, tx PushTx) error) error

	// Reset deletes all todos and tombstones, returning counts removed.
	Reset(ctx context.Context) (todos int, tombstones int, err error)

	// Users used by auth (S1).
	GetUserByID(ctx context.Context, id string) (*models.User, error)
	ListUsers(ctx context.Context) ([]models.User, error)
	PutUser(ctx context.Context, u models.User) error
}
