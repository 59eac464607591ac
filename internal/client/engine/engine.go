// Package engine runs the client cycle algorithm, spec §4.9, in the
// exact order the spec lists: lock, load, read, detect, push, bind,
// bootstrap-or-delta, apply, persist, release.
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"todosync/internal/client/applier"
	"todosync/internal/client/conflictlog"
	"todosync/internal/client/detector"
	"todosync/internal/client/hostapp"
	"todosync/internal/client/lock"
	"todosync/internal/client/registry"
	"todosync/internal/client/snapshot"
	"todosync/internal/client/transport"
	"todosync/internal/logging"
	"todosync/internal/protocol"
)

// Outcome summarizes a completed cycle for the caller (CLI / daemon
// loop) to report to the user.
type Outcome struct {
	Skipped      bool
	Pushed       int
	Deleted      int
	Conflicts    int
	LastSyncedAt time.Time
}

type Engine struct {
	lockPath string
	snap     *snapshot.Store
	conflicts *conflictlog.Log
	host     hostapp.HostApp
	tport    *transport.Client
	applier  *applier.Applier
	now      func() time.Time
}

func New(lockPath, statePath, conflictLogPath string, host hostapp.HostApp, tport *transport.Client) *Engine {
	return &Engine{
		lockPath:  lockPath,
		snap:      snapshot.New(statePath),
		conflicts: conflictlog.New(conflictLogPath),
		host:      host,
		tport:     tport,
		applier:   applier.New(host),
		now:       time.Now,
	}
}

// Run executes a single cycle.
func (e *Engine) Run(ctx context.Context) (*Outcome, error) {
	l := lock.New(e.lockPath)
	if err := l.Acquire(); err != nil {
		if errors.Is(err, lock.ErrSkipped) {
			return &Outcome{Skipped: true}, nil
		}
		return nil, fmt.Errorf("acquire sync lock: %w", err)
	}
	defer l.Release()

	if err := e.snap.Backup(); err != nil {
		return nil, fmt.Errorf("backup snapshot: %w", err)
	}

	doc, err := e.snap.Load()
	if err != nil {
		return nil, fmt.Errorf("load snapshot: %w", err)
	}

	reg, err := registry.FromPairs(doc.ServerIDToLocalID)
	if err != nil {
		return nil, fmt.Errorf("rebuild registry: %w", err)
	}

	host, err := e.host.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("read host app: %w", err)
	}

	now := e.now()
	detector.Detect(host, doc, reg, now)

	outcome := &Outcome{}

	pushReq := buildPushRequest(doc, reg)
	if hasPendingChanges(pushReq) {
		resp, err := e.tport.Push(ctx, pushReq)
		if err != nil {
			return nil, fmt.Errorf("push: %w", err)
		}

		for _, m := range resp.Mappings {
			// A clientId is, by construction (§4.9 step 5), equal to the
			// local id it was minted from.
			if err := reg.Bind(m.ServerID, m.ClientID); err != nil {
				return nil, fmt.Errorf("bind mapping %s: %w", m.ServerID, err)
			}
		}

		var entries []conflictlog.Entry
		for _, c := range resp.Conflicts {
			entries = append(entries, conflictlog.Entry{
				RecordedAt: now,
				Kind:       conflictlog.KindServerReject,
				ServerID:   c.ServerID,
				Reason:     c.Reason,
			})
		}
		if err := e.conflicts.Append(entries...); err != nil {
			return nil, fmt.Errorf("append conflict log: %w", err)
		}

		outcome.Pushed = len(pushReq.Todos.Upserted)
		outcome.Deleted = len(pushReq.Todos.Deleted)
		outcome.Conflicts += len(resp.Conflicts)

		doc.Dirty.Upserted = []string{}
		doc.Dirty.Deleted = make(map[string]time.Time)
	}

	var upserted []protocol.Todo
	var deleted []protocol.TombstoneRef
	var syncedAt time.Time

	if isFirstSync(doc, host) {
		state, err := e.tport.State(ctx)
		if err != nil {
			return nil, fmt.Errorf("state: %w", err)
		}
		upserted = state.Todos
		syncedAt = state.SyncedAt
	} else {
		delta, err := e.tport.Delta(ctx, doc.LastSyncedAt)
		if err != nil {
			return nil, fmt.Errorf("delta: %w", err)
		}
		upserted = delta.Todos.Upserted
		deleted = delta.Todos.Deleted
		syncedAt = delta.SyncedAt
	}

	entries, err := e.applier.Apply(ctx, upserted, deleted, reg, doc)
	if err != nil {
		return nil, fmt.Errorf("apply delta: %w", err)
	}
	if err := e.conflicts.Append(entries...); err != nil {
		return nil, fmt.Errorf("append conflict log: %w", err)
	}
	outcome.Conflicts += len(entries)

	doc.LastSyncedAt = syncedAt
	doc.ServerIDToLocalID = reg.Pairs()
	outcome.LastSyncedAt = syncedAt

	if err := e.snap.Save(doc); err != nil {
		return nil, fmt.Errorf("persist snapshot: %w", err)
	}

	if outcome.Conflicts > 0 {
		logging.Warn("engine: cycle completed with conflicts", zap.Int("conflicts", outcome.Conflicts))
	} else {
		logging.Info("engine: cycle completed", zap.Int("pushed", outcome.Pushed), zap.Int("deleted", outcome.Deleted))
	}

	return outcome, nil
}

func buildPushRequest(doc *snapshot.Document, reg *registry.Registry) protocol.PushRequest {
	var req protocol.PushRequest
	req.LastSyncedAt = doc.LastSyncedAt

	for _, localID := range doc.Dirty.Upserted {
		rec, ok := doc.Todos[localID]
		if !ok {
			continue
		}
		todo := protocol.PushTodo{
			Title:    rec.Title,
			Notes:    rec.Notes,
			DueDate:  rec.DueDate,
			Tags:     rec.Tags,
			Status:   protocol.Status(rec.Status),
			Position: rec.Position,
			EditedAt: rec.EditedAt,
		}
		if serverID, known := reg.Reverse(localID); known {
			todo.ServerID = &serverID
		} else {
			clientID := localID
			todo.ClientID = &clientID
		}
		req.Todos.Upserted = append(req.Todos.Upserted, todo)
	}

	for serverID, deletedAt := range doc.Dirty.Deleted {
		req.Todos.Deleted = append(req.Todos.Deleted, protocol.PushDeletion{
			ServerID:  serverID,
			DeletedAt: deletedAt,
		})
	}

	return req
}

func hasPendingChanges(req protocol.PushRequest) bool {
	return len(req.Todos.Upserted) > 0 || len(req.Todos.Deleted) > 0
}

func isFirstSync(doc *snapshot.Document, host []hostapp.Todo) bool {
	return len(doc.Todos) == 0 && len(doc.ServerIDToLocalID) == 0 && len(host) == 0
}
