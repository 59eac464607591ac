// Package applier is the remote applier, C6: applies a pulled delta to
// the host app and records conflicts, per spec §4.6.
package applier

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"todosync/internal/client/conflictlog"
	"todosync/internal/client/hostapp"
	"todosync/internal/client/registry"
	"todosync/internal/client/snapshot"
	"todosync/internal/logging"
	"todosync/internal/protocol"
)

const (
	createRetries    = 3
	createRetryDelay = 500 * time.Millisecond
)

type Applier struct {
	host hostapp.HostApp
}

func New(host hostapp.HostApp) *Applier {
	return &Applier{host: host}
}

// Apply applies upserted/deleted entries from a delta or push response
// to the host app, updating reg and doc and returning conflict entries
// to append to the conflict log.
func (a *Applier) Apply(ctx context.Context, upserted []protocol.Todo, deleted []protocol.TombstoneRef, reg *registry.Registry, doc *snapshot.Document) ([]conflictlog.Entry, error) {
	var entries []conflictlog.Entry

	for _, remote := range upserted {
		entry, err := a.applyUpsert(ctx, remote, reg, doc)
		if err != nil {
			return entries, err
		}
		if entry != nil {
			entries = append(entries, *entry)
		}
	}

	for _, tomb := range deleted {
		entry := a.applyDelete(tomb, reg, doc)
		if entry != nil {
			entries = append(entries, *entry)
		}
	}

	return entries, nil
}

func (a *Applier) applyUpsert(ctx context.Context, remote protocol.Todo, reg *registry.Registry, doc *snapshot.Document) (*conflictlog.Entry, error) {
	localID, known := reg.Get(remote.ID)

	if !known {
		newLocalID, entry, err := a.createAndBind(ctx, remote, reg, doc)
		if err != nil {
			return nil, err
		}
		if entry != nil {
			return entry, nil
		}
		localID = newLocalID
	} else {
		fields := fieldsFromRemote(remote)
		if err := a.host.Update(ctx, localID, fields); err != nil {
			return nil, fmt.Errorf("update host app item %s: %w", localID, err)
		}
	}

	doc.Todos[localID] = snapshot.TodoRecord{
		Title:    remote.Title,
		Notes:    remote.Notes,
		DueDate:  remote.DueDate,
		Tags:     append([]string(nil), remote.Tags...),
		Status:   string(remote.Status),
		Position: remote.Position,
		EditedAt: remote.EditedAt,
	}
	return nil, nil
}

// createAndBind implements spec §4.6 step 2: create in the host app,
// then re-read and find the new entry by (not-in-before-set ∧ exact
// title match), retrying with backoff since the adapter may be
// eventually consistent.
func (a *Applier) createAndBind(ctx context.Context, remote protocol.Todo, reg *registry.Registry, doc *snapshot.Document) (string, *conflictlog.Entry, error) {
	before, err := a.host.List(ctx)
	if err != nil {
		return "", nil, fmt.Errorf("list host app before create: %w", err)
	}
	beforeSet := make(map[string]struct{}, len(before))
	for _, t := range before {
		beforeSet[t.LocalID] = struct{}{}
	}

	fields := fieldsFromRemote(remote)
	if err := a.host.Create(ctx, fields); err != nil {
		return "", nil, fmt.Errorf("create host app item for %s: %w", remote.ID, err)
	}

	var candidates []hostapp.Todo
	for attempt := 0; attempt < createRetries; attempt++ {
		if attempt > 0 {
			time.Sleep(createRetryDelay)
		}
		after, err := a.host.List(ctx)
		if err != nil {
			return "", nil, fmt.Errorf("list host app after create: %w", err)
		}
		candidates = nil
		for _, t := range after {
			if _, existed := beforeSet[t.LocalID]; existed {
				continue
			}
			if t.Title == remote.Title {
				candidates = append(candidates, t)
			}
		}
		if len(candidates) > 0 {
			break
		}
	}

	switch len(candidates) {
	case 0:
		logging.Warn("applier: created item not locatable after retries", zap.String("serverId", remote.ID))
		return "", &conflictlog.Entry{
			RecordedAt: time.Now(),
			Kind:       conflictlog.KindOrphanCreate,
			ServerID:   remote.ID,
			Message:    "created item not found after retries",
		}, nil
	case 1:
		newLocalID := candidates[0].LocalID
		if err := reg.Bind(remote.ID, newLocalID); err != nil {
			return "", nil, fmt.Errorf("bind %s -> %s: %w", remote.ID, newLocalID, err)
		}
		if remote.Status != protocol.StatusOpen {
			status := string(remote.Status)
			if err := a.host.Update(ctx, newLocalID, hostapp.Fields{Status: &status}); err != nil {
				return "", nil, fmt.Errorf("set status on created item %s: %w", newLocalID, err)
			}
		}
		return newLocalID, nil, nil
	default:
		logging.Warn("applier: multiple candidates for created item", zap.String("serverId", remote.ID), zap.Int("candidates", len(candidates)))
		return "", &conflictlog.Entry{
			RecordedAt: time.Now(),
			Kind:       conflictlog.KindAmbiguousCreate,
			ServerID:   remote.ID,
			Message:    fmt.Sprintf("%d candidates matched by title", len(candidates)),
		}, nil
	}
}

func (a *Applier) applyDelete(tomb protocol.TombstoneRef, reg *registry.Registry, doc *snapshot.Document) *conflictlog.Entry {
	localID, ok := reg.Get(tomb.ServerID)
	if !ok {
		return nil
	}
	record, stillPresent := doc.Todos[localID]
	if !stillPresent {
		reg.Unbind(tomb.ServerID)
		return nil
	}

	if record.EditedAt.After(tomb.DeletedAt) {
		return &conflictlog.Entry{
			RecordedAt: time.Now(),
			Kind:       conflictlog.KindDeleteVsLocalEdit,
			ServerID:   tomb.ServerID,
			LocalID:    localID,
			Message:    "local edit is newer than the remote delete; host app item left in place",
		}
	}

	reg.Unbind(tomb.ServerID)
	delete(doc.Todos, localID)
	return &conflictlog.Entry{
		RecordedAt: time.Now(),
		Kind:       conflictlog.KindDeleteAcknowledged,
		ServerID:   tomb.ServerID,
		LocalID:    localID,
	}
}

func fieldsFromRemote(remote protocol.Todo) hostapp.Fields {
	title := remote.Title
	notes := remote.Notes
	status := string(remote.Status)
	position := remote.Position
	tags := append([]string(nil), remote.Tags...)
	due := remote.DueDate
	return hostapp.Fields{
		Title:    &title,
		Notes:    &notes,
		DueDate:  &due,
		Tags:     &tags,
		Status:   &status,
		Position: &position,
	}
}
