// Package memory is an in-memory Store (S2), grounded on taskTracker's
// internal/repository/inmemory: a mutex-guarded map, used by the tests.
// cmd/server always opens the Postgres store.
package memory

import (
	"context"
	"sync"
	"time"

	"todosync/internal/server/models"
	"todosync/internal/server/store"
)

type Store struct {
	mu         sync.Mutex
	todos      map[string]models.Todo
	tombstones map[string]models.Tombstone
	users      map[string]models.User
	clock      func() time.Time
}

func New() *Store {
	return &Store{
		todos:      make(map[string]models.Todo),
		tombstones: make(map[string]models.Tombstone),
		users:      make(map[string]models.User),
		clock:      time.Now,
	}
}

// WithClock overrides the server-now source, for deterministic tests.
func (s *Store) WithClock(clock func() time.Time) *Store {
	s.clock = clock
	return s
}

func (s *Store) HealthCheck(ctx context.Context) error { return nil }

func (s *Store) State(ctx context.Context) ([]models.Todo, time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]models.Todo, 0, len(s.todos))
	for _, t := range s.todos {
		out = append(out, t.Clone())
	}
	return out, s.clock(), nil
}

func (s *Store) Delta(ctx context.Context, since time.Time) ([]models.Todo, []models.Tombstone, time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var upserted []models.Todo
	for _, t := range s.todos {
		if t.UpdatedAt.After(since) {
			upserted = append(upserted, t.Clone())
		}
	}
	var deleted []models.Tombstone
	for _, ts := range s.tombstones {
		if ts.RecordedAt.After(since) {
			deleted = append(deleted, ts)
		}
	}
	return upserted, deleted, s.clock(), nil
}

func (s *Store) RunPush(ctx context.Context, fn func(ctx context.Context, tx store.PushTx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	todos := make(map[string]models.Todo, len(s.todos))
	for k, v := range s.todos {
		todos[k] = v
	}
	tombstones := make(map[string]models.Tombstone, len(s.tombstones))
	for k, v := range s.tombstones {
		tombstones[k] = v
	}

	tx := &memTx{s: s}
	if err := fn(ctx, tx); err != nil {
		s.todos = todos
		s.tombstones = tombstones
		return err
	}
	return nil
}

func (s *Store) Reset(ctx context.Context) (int, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	todos := len(s.todos)
	tombstones := len(s.tombstones)
	s.todos = make(map[string]models.Todo)
	s.tombstones = make(map[string]models.Tombstone)
	return todos, tombstones, nil
}

func (s *Store) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &u, nil
}

func (s *Store) ListUsers(ctx context.Context) ([]models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.User, 0, len(s.users))
	for _, u := range s.users {
		out = append(out, u)
	}
	return out, nil
}

func (s *Store) PutUser(ctx context.Context, u models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[u.ID] = u
	return nil
}

// memTx implements store.PushTx directly against the locked map, since
// the whole RunPush call already holds s.mu for its duration (I5).
type memTx struct {
	s *Store
}

func (tx *memTx) GetTodo(ctx context.Context, id string) (*models.Todo, error) {
	t, ok := tx.s.todos[id]
	if !ok {
		return nil, nil
	}
	clone := t.Clone()
	return &clone, nil
}

func (tx *memTx) GetTombstone(ctx context.Context, id string) (*models.Tombstone, error) {
	ts, ok := tx.s.tombstones[id]
	if !ok {
		return nil, nil
	}
	return &ts, nil
}

func (tx *memTx) UpsertTodo(ctx context.Context, t models.Todo) error {
	tx.s.todos[t.ID] = t
	return nil
}

func (tx *memTx) DeleteTodo(ctx context.Context, id string) error {
	delete(tx.s.todos, id)
	return nil
}

func (tx *memTx) PutTombstone(ctx context.Context, ts models.Tombstone) error {
	tx.s.tombstones[ts.ServerID] = ts
	return nil
}

func (tx *memTx) ClearTombstone(ctx context.Context, id string) error {
	delete(tx.s.tombstones, id)
	return nil
}

func (tx *memTx) Now() time.Time {
	return tx.s.clock()
}
