package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"

	"todosync/internal/logging"
	"todosync/internal/protocol"
	"todosync/internal/server/merge"
	"todosync/internal/server/middleware"
	"todosync/internal/server/store"
)

type TodoHandler struct {
	store store.Store
	merge *merge.Engine
}

func New(st store.Store) *TodoHandler {
	return &TodoHandler{store: st, merge: merge.New(st)}
}

func (h *TodoHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	if err := h.store.HealthCheck(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, "store unavailable", "STORE_UNAVAILABLE")
		return
	}
	writeJSON(w, http.StatusOK, protocol.HealthResponse{Status: "ok", Timestamp: time.Now()})
}

func (h *TodoHandler) State(w http.ResponseWriter, r *http.Request) {
	logging.HTTPRequestInfo(r, "http: state")

	todos, syncedAt, err := h.store.State(r.Context())
	if err != nil {
		logging.Error("state: store read failed", err)
		writeError(w, http.StatusInternalServerError, "failed to read state", "INTERNAL")
		return
	}
	writeJSON(w, http.StatusOK, protocol.StateResponse{Todos: toProtocolTodos(todos), SyncedAt: syncedAt})
}

func (h *TodoHandler) Delta(w http.ResponseWriter, r *http.Request) {
	logging.HTTPRequestInfo(r, "http: delta")

	sinceParam := r.URL.Query().Get("since")
	if sinceParam == "" {
		writeError(w, http.StatusBadRequest, "since is required", "BAD_REQUEST")
		return
	}
	since, err := time.Parse(time.RFC3339, sinceParam)
	if err != nil {
		writeError(w, http.StatusBadRequest, "since must be RFC3339", "BAD_REQUEST")
		return
	}

	upserted, deleted, syncedAt, err := h.store.Delta(r.Context(), since)
	if err != nil {
		logging.Error("delta: store read failed", err)
		writeError(w, http.StatusInternalServerError, "failed to read delta", "INTERNAL")
		return
	}

	writeJSON(w, http.StatusOK, protocol.DeltaResponse{
		Todos: protocol.DeltaPayload{
			Upserted: toProtocolTodos(upserted),
			Deleted:  toProtocolTombstoneRefs(deleted),
		},
		SyncedAt: syncedAt,
	})
}

func (h *TodoHandler) Push(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	logging.HTTPRequestInfo(r, "http: push")

	userID, ok := middleware.UserFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing bearer token", "UNAUTHORIZED")
		return
	}

	var req protocol.PushRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid push body: "+err.Error(), "BAD_REQUEST")
		return
	}

	result, err := h.merge.ApplyPush(r.Context(), userID, req)
	if err != nil {
		if handleBusinessError(w, err) {
			return
		}
		logging.Error("push: merge failed", err, zap.String("user_id", userID))
		writeError(w, http.StatusInternalServerError, "failed to apply push", "INTERNAL")
		return
	}

	todos, syncedAt, err := h.store.State(r.Context())
	if err != nil {
		logging.Error("push: post-merge state read failed", err)
		writeError(w, http.StatusInternalServerError, "failed to read post-merge state", "INTERNAL")
		return
	}

	resp := protocol.PushResponse{
		State:     protocol.StateResponse{Todos: toProtocolTodos(todos), SyncedAt: syncedAt},
		Conflicts: result.Conflicts,
		Mappings:  result.Mappings,
	}
	if resp.Conflicts == nil {
		resp.Conflicts = []protocol.Conflict{}
	}

	logging.Info("http: push completed",
		zap.Int("upserted", len(req.Todos.Upserted)),
		zap.Int("deleted", len(req.Todos.Deleted)),
		zap.Int("conflicts", len(resp.Conflicts)),
		zap.Duration("ms", time.Since(start)))

	writeJSON(w, http.StatusOK, resp)
}

func (h *TodoHandler) Reset(w http.ResponseWriter, r *http.Request) {
	logging.HTTPRequestInfo(r, "http: reset")

	todos, tombstones, err := h.store.Reset(r.Context())
	if err != nil {
		logging.Error("reset: store failed", err)
		writeError(w, http.StatusInternalServerError, "failed to reset store", "INTERNAL")
		return
	}

	resp := protocol.ResetResponse{Success: true}
	resp.Deleted.Todos = todos
	resp.Deleted.Tombstones = tombstones
	writeJSON(w, http.StatusOK, resp)
}
