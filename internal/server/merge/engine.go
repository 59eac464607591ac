// Package merge implements the server merge engine, S3: last-edit-wins
// with a userId tiebreak, delete-vs-edit resurrection, and tombstone
// lifecycle, per spec §4.7.
package merge

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"todosync/internal/logging"
	"todosync/internal/protocol"
	"todosync/internal/server/models"
	"todosync/internal/server/store"
)

type Engine struct {
	st store.Store
}

func New(st store.Store) *Engine {
	return &Engine{st: st}
}

// Result holds the conflicts and mappings a single /push produces; the
// handler combines it with a fresh State read to build the response.
type Result struct {
	Conflicts []protocol.Conflict
	Mappings  []protocol.Mapping
}

// ApplyPush runs the whole push request in one transaction (I5) and
// returns the conflicts/mappings to report back to the client.
func (e *Engine) ApplyPush(ctx context.Context, userID string, req protocol.PushRequest) (*Result, error) {
	result := &Result{}

	err := e.st.RunPush(ctx, func(ctx context.Context, tx store.PushTx) error {
		for _, upsert := range req.Todos.Upserted {
			conflict, mapping, err := e.applyUpsert(ctx, tx, userID, upsert)
			if err != nil {
				return err
			}
			if conflict != nil {
				result.Conflicts = append(result.Conflicts, *conflict)
			}
			if mapping != nil {
				result.Mappings = append(result.Mappings, *mapping)
			}
		}

		for _, del := range req.Todos.Deleted {
			conflict, err := e.applyDelete(ctx, tx, userID, del)
			if err != nil {
				return err
			}
			if conflict != nil {
				result.Conflicts = append(result.Conflicts, *conflict)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// decide implements the last-edit-wins + userId tiebreak rule, §4.7 step 3
// / §4.8 step 2, symmetric per P5.
func decide(incomingEditedAt time.Time, incomingUserID string, storedEditedAt time.Time, storedUserID string) bool {
	if incomingEditedAt.After(storedEditedAt) {
		return true
	}
	if incomingEditedAt.Before(storedEditedAt) {
		return false
	}
	return incomingUserID > storedUserID
}

func (e *Engine) applyUpsert(ctx context.Context, tx store.PushTx, userID string, in protocol.PushTodo) (*protocol.Conflict, *protocol.Mapping, error) {
	sid := ""
	if in.ServerID != nil && *in.ServerID != "" {
		sid = *in.ServerID
	} else {
		sid = uuid.NewString()
	}

	// Step 2: tombstone-vs-edit resurrection.
	tomb, err := tx.GetTombstone(ctx, sid)
	if err != nil {
		return nil, nil, fmt.Errorf("lookup tombstone %s: %w", sid, err)
	}
	if tomb != nil {
		if !decide(in.EditedAt, userID, tomb.DeletedAt, tomb.DeletedBy) {
			return &protocol.Conflict{
				ServerID:   sid,
				Reason:     protocol.ReasonRemoteDeleteNewer,
				ServerTodo: nil,
				ClientTodo: &in,
			}, nil, nil
		}
		if err := tx.ClearTombstone(ctx, sid); err != nil {
			return nil, nil, fmt.Errorf("clear tombstone %s: %w", sid, err)
		}
	}

	// Step 3: decision against any stored todo.
	stored, err := tx.GetTodo(ctx, sid)
	if err != nil {
		return nil, nil, fmt.Errorf("lookup todo %s: %w", sid, err)
	}
	if stored != nil {
		if !decide(in.EditedAt, userID, stored.EditedAt, stored.UpdatedBy) {
			logging.Info("merge: rejecting stale upsert",
				zap.String("serverId", sid), zap.String("userId", userID))
			snapshot := stored.Clone()
			return &protocol.Conflict{
				ServerID:   sid,
				Reason:     protocol.ReasonRemoteEditNewer,
				ServerTodo: toProtocolTodo(&snapshot),
				ClientTodo: &in,
			}, nil, nil
		}
	}

	accepted := models.Todo{
		ID:        sid,
		Title:     in.Title,
		Notes:     in.Notes,
		DueDate:   in.DueDate,
		Tags:      append([]string{}, in.Tags...),
		Status:    models.Status(in.Status),
		Position:  in.Position,
		EditedAt:  in.EditedAt,
		UpdatedAt: tx.Now(),
		UpdatedBy: userID,
	}
	if stored != nil {
		accepted.CreatedBy = stored.CreatedBy
	} else {
		accepted.CreatedBy = userID
	}

	if err := tx.UpsertTodo(ctx, accepted); err != nil {
		return nil, nil, fmt.Errorf("upsert todo %s: %w", sid, err)
	}

	var mapping *protocol.Mapping
	if (in.ServerID == nil || *in.ServerID == "") && in.ClientID != nil {
		mapping = &protocol.Mapping{ServerID: sid, ClientID: *in.ClientID}
	}

	return nil, mapping, nil
}

func (e *Engine) applyDelete(ctx context.Context, tx store.PushTx, userID string, in protocol.PushDeletion) (*protocol.Conflict, error) {
	stored, err := tx.GetTodo(ctx, in.ServerID)
	if err != nil {
		return nil, fmt.Errorf("lookup todo %s: %w", in.ServerID, err)
	}

	if stored == nil {
		// §4.7 step for deletions, case 1: no stored todo. Keep only the
		// newest tombstone by deletedAt, B4.
		existing, err := tx.GetTombstone(ctx, in.ServerID)
		if err != nil {
			return nil, fmt.Errorf("lookup tombstone %s: %w", in.ServerID, err)
		}
		if existing != nil && !in.DeletedAt.After(existing.DeletedAt) {
			return nil, nil
		}
		return nil, tx.PutTombstone(ctx, models.Tombstone{
			ServerID:   in.ServerID,
			DeletedAt:  in.DeletedAt,
			RecordedAt: tx.Now(),
			DeletedBy:  userID,
		})
	}

	if !decide(in.DeletedAt, userID, stored.EditedAt, stored.UpdatedBy) {
		snapshot := stored.Clone()
		deletedAt := in.DeletedAt
		return &protocol.Conflict{
			ServerID:        in.ServerID,
			Reason:          protocol.ReasonRemoteEditNewer,
			ServerTodo:      toProtocolTodo(&snapshot),
			ClientDeletedAt: &deletedAt,
		}, nil
	}

	if err := tx.DeleteTodo(ctx, in.ServerID); err != nil {
		return nil, fmt.Errorf("delete todo %s: %w", in.ServerID, err)
	}
	return nil, tx.PutTombstone(ctx, models.Tombstone{
		ServerID:   in.ServerID,
		DeletedAt:  in.DeletedAt,
		RecordedAt: tx.Now(),
		DeletedBy:  userID,
	})
}

func toProtocolTodo(t *models.Todo) *protocol.Todo {
	if t == nil {
		return nil
	}
	return &protocol.Todo{
		ID:        t.ID,
		Title:     t.Title,
		Notes:     t.Notes,
		DueDate:   t.DueDate,
		Tags:      t.Tags,
		Status:    protocol.Status(t.Status),
		Position:  t.Position,
		EditedAt:  t.EditedAt,
		UpdatedAt: t.UpdatedAt,
		CreatedBy: t.CreatedBy,
		UpdatedBy: t.UpdatedBy,
	}
}
