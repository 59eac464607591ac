// Package postgres is the Postgres-backed Store (S2), grounded on
// taskTracker/internal/repository/task/postgres: a pgxpool.Pool, query
// timing with a slow-query warning, and zap logging at each call site.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"todosync/internal/logging"
	"todosync/internal/server/models"
	"todosync/internal/server/store"
)

type Store struct {
	pool *pgxpool.Pool
}

type Config struct {
	MaxConns    int32
	MinConns    int32
	IdleTimeout time.Duration
}

func New(ctx context.Context, connString string, cfg Config) (*Store, error) {
	pgCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("parse postgres config: %w", err)
	}
	if cfg.MaxConns > 0 {
		pgCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		pgCfg.MinConns = cfg.MinConns
	}
	if cfg.IdleTimeout > 0 {
		pgCfg.MaxConnIdleTime = cfg.IdleTimeout
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgCfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	logging.Info("postgres: connected")
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	s.pool.Close()
}

func (s *Store) HealthCheck(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	return nil
}

func (s *Store) State(ctx context.Context) ([]models.Todo, time.Time, error) {
	start := time.Now()

	rows, err := s.pool.Query(ctx, `
		SELECT id, title, notes, due_date, tags, status, position,
		       edited_at, updated_at, created_by, updated_by
		FROM todos`)
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("select todos: %w", err)
	}
	defer rows.Close()

	todos, err := scanTodos(rows)
	if err != nil {
		return nil, time.Time{}, err
	}

	logSlow("State", start, 50*time.Millisecond)
	return todos, time.Now(), nil
}

func (s *Store) Delta(ctx context.Context, since time.Time) ([]models.Todo, []models.Tombstone, time.Time, error) {
	start := time.Now()

	rows, err := s.pool.Query(ctx, `
		SELECT id, title, notes, due_date, tags, status, position,
		       edited_at, updated_at, created_by, updated_by
		FROM todos WHERE updated_at > $1`, since)
	if err != nil {
		return nil, nil, time.Time{}, fmt.Errorf("select delta todos: %w", err)
	}
	upserted, err := scanTodos(rows)
	rows.Close()
	if err != nil {
		return nil, nil, time.Time{}, err
	}

	tombRows, err := s.pool.Query(ctx, `
		SELECT server_id, deleted_at, recorded_at, deleted_by
		FROM tombstones WHERE recorded_at > $1`, since)
	if err != nil {
		return nil, nil, time.Time{}, fmt.Errorf("select delta tombstones: %w", err)
	}
	defer tombRows.Close()

	var deleted []models.Tombstone
	for tombRows.Next() {
		var ts models.Tombstone
		if err := tombRows.Scan(&ts.ServerID, &ts.DeletedAt, &ts.RecordedAt, &ts.DeletedBy); err != nil {
			return nil, nil, time.Time{}, fmt.Errorf("scan tombstone: %w", err)
		}
		deleted = append(deleted, ts)
	}
	if err := tombRows.Err(); err != nil {
		return nil, nil, time.Time{}, fmt.Errorf("iterate tombstones: %w", err)
	}

	logSlow("Delta", start, 50*time.Millisecond)
	return upserted, deleted, time.Now(), nil
}

func (s *Store) Reset(ctx context.Context) (int, int, error) {
	var todos, tombstones int
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if err := tx.QueryRow(ctx, `WITH deleted AS (DELETE FROM todos RETURNING 1) SELECT count(*) FROM deleted`).Scan(&todos); err != nil {
			return fmt.Errorf("reset todos: %w", err)
		}
		if err := tx.QueryRow(ctx, `WITH deleted AS (DELETE FROM tombstones RETURNING 1) SELECT count(*) FROM deleted`).Scan(&tombstones); err != nil {
			return fmt.Errorf("reset tombstones: %w", err)
		}
		return nil
	})
	return todos, tombstones, err
}

func (s *Store) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	var u models.User
	err := s.pool.QueryRow(ctx, `SELECT id, name, token_hash FROM users WHERE id = $1`, id).
		Scan(&u.ID, &u.Name, &u.TokenHash)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	return &u, nil
}

func (s *Store) ListUsers(ctx context.Context) ([]models.User, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, name, token_hash FROM users`)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var users []models.User
	for rows.Next() {
		var u models.User
		if err := rows.Scan(&u.ID, &u.Name, &u.TokenHash); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func (s *Store) PutUser(ctx context.Context, u models.User) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO users (id, name, token_hash) VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET name = $2, token_hash = $3`,
		u.ID, u.Name, u.TokenHash)
	if err != nil {
		return fmt.Errorf("put user: %w", err)
	}
	return nil
}

func (s *Store) RunPush(ctx context.Context, fn func(ctx context.Context, tx store.PushTx) error) error {
	return pgx.BeginFunc(ctx, s.pool, func(pgtx pgx.Tx) error {
		return fn(ctx, &txn{tx: pgtx, now: time.Now()})
	})
}

func scanTodos(rows pgx.Rows) ([]models.Todo, error) {
	var todos []models.Todo
	for rows.Next() {
		t, err := scanTodoRow(rows)
		if err != nil {
			return nil, err
		}
		todos = append(todos, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate todos: %w", err)
	}
	return todos, nil
}

func scanTodoRow(row pgx.Row) (models.Todo, error) {
	var t models.Todo
	var status string
	if err := row.Scan(&t.ID, &t.Title, &t.Notes, &t.DueDate, &t.Tags, &status,
		&t.Position, &t.EditedAt, &t.UpdatedAt, &t.CreatedBy, &t.UpdatedBy); err != nil {
		return t, fmt.Errorf("scan todo: %w", err)
	}
	t.Status = models.Status(status)
	if t.Tags == nil {
		t.Tags = []string{}
	}
	return t, nil
}

func logSlow(op string, start time.Time, threshold time.Duration) {
	if d := time.Since(start); d > threshold {
		logging.Warn("postgres: slow query", zap.String("op", op), zap.Duration("ms", d))
	}
}

// txn implements store.PushTx against a single pgx.Tx.
type txn struct {
	tx  pgx.Tx
	now time.Time
}

func (t *txn) Now() time.Time { return t.now }

func (t *txn) GetTodo(ctx context.Context, id string) (*models.Todo, error) {
	row := t.tx.QueryRow(ctx, `
		SELECT id, title, notes, due_date, tags, status, position,
		       edited_at, updated_at, created_by, updated_by
		FROM todos WHERE id = $1`, id)
	todo, err := scanTodoRow(row)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, err
	}
	return &todo, nil
}

func (t *txn) GetTombstone(ctx context.Context, id string) (*models.Tombstone, error) {
	var ts models.Tombstone
	err := t.tx.QueryRow(ctx, `
		SELECT server_id, deleted_at, recorded_at, deleted_by
		FROM tombstones WHERE server_id = $1`, id).
		Scan(&ts.ServerID, &ts.DeletedAt, &ts.RecordedAt, &ts.DeletedBy)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get tombstone: %w", err)
	}
	return &ts, nil
}

func (t *txn) UpsertTodo(ctx context.Context, todo models.Todo) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO todos (id, title, notes, due_date, tags, status, position,
		                    edited_at, updated_at, created_by, updated_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO UPDATE SET
			title = $2, notes = $3, due_date = $4, tags = $5, status = $6,
			position = $7, edited_at = $8, updated_at = $9, updated_by = $11`,
		todo.ID, todo.Title, todo.Notes, todo.DueDate, todo.Tags, string(todo.Status),
		todo.Position, todo.EditedAt, todo.UpdatedAt, todo.CreatedBy, todo.UpdatedBy)
	if err != nil {
		return fmt.Errorf("upsert todo: %w", err)
	}
	return nil
}

func (t *txn) DeleteTodo(ctx context.Context, id string) error {
	_, err := t.tx.Exec(ctx, `DELETE FROM todos WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete todo: %w", err)
	}
	return nil
}

func (t *txn) PutTombstone(ctx context.Context, ts models.Tombstone) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO tombstones (server_id, deleted_at, recorded_at, deleted_by)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (server_id) DO UPDATE SET
			deleted_at = $2, recorded_at = $3, deleted_by = $4`,
		ts.ServerID, ts.DeletedAt, ts.RecordedAt, ts.DeletedBy)
	if err != nil {
		return fmt.Errorf("put tombstone: %w", err)
	}
	return nil
}

func (t *txn) ClearTombstone(ctx context.Context, id string) error {
	_, err := t.tx.Exec(ctx, `DELETE FROM tombstones WHERE server_id = $1`, id)
	if err != nil {
		return fmt.Errorf("clear tombstone: %w", err)
	}
	return nil
}

func isNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}
