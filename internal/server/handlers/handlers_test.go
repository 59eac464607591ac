package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"todosync/internal/protocol"
	"todosync/internal/server/auth"
	"todosync/internal/server/handlers"
	"todosync/internal/server/middleware"
	"todosync/internal/server/store/memory"
)

func newTestRouter(t *testing.T) (*chi.Mux, string) {
	t.Helper()
	st := memory.New()
	authn := auth.New(st, 4) // low bcrypt cost keeps tests fast
	_, token, err := authn.IssueToken(context.Background(), "test-user")
	require.NoError(t, err)

	h := handlers.New(st)
	r := chi.NewRouter()
	r.Get("/health", h.HealthCheck)
	r.Group(func(r chi.Router) {
		r.Use(middleware.Auth(authn))
		r.Get("/state", h.State)
		r.Get("/delta", h.Delta)
		r.Post("/push", h.Push)
		r.Delete("/reset", h.Reset)
	})
	return r, token
}

func TestHandlers_HealthCheckNeedsNoAuth(t *testing.T) {
	r, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHandlers_StateRequiresAuth(t *testing.T) {
	r, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/state", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHandlers_DeltaMissingSinceIsBadRequest(t *testing.T) {
	r, token := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/delta", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandlers_PushThenStateRoundTrips(t *testing.T) {
	r, token := newTestRouter(t)

	body := protocol.PushRequest{}
	body.Todos.Upserted = []protocol.PushTodo{{
		Title:    "Write tests",
		Notes:    "",
		Tags:     []string{},
		Status:   protocol.StatusOpen,
		EditedAt: time.Now().UTC(),
	}}
	payload, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/push", bytes.NewReader(payload))
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var pushResp protocol.PushResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &pushResp))
	require.Len(t, pushResp.State.Todos, 1)
	assert.Equal(t, "Write tests", pushResp.State.Todos[0].Title)
	assert.Empty(t, pushResp.Conflicts)

	req = httptest.NewRequest(http.MethodGet, "/state", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var stateResp protocol.StateResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stateResp))
	require.Len(t, stateResp.Todos, 1)
}

func TestHandlers_ResetClearsStore(t *testing.T) {
	r, token := newTestRouter(t)

	body := protocol.PushRequest{}
	body.Todos.Upserted = []protocol.PushTodo{{Title: "Temp", Tags: []string{}, Status: protocol.StatusOpen, EditedAt: time.Now().UTC()}}
	payload, _ := json.Marshal(body)
	req := httptest.NewRequest(http.MethodPost, "/push", bytes.NewReader(payload))
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	req = httptest.NewRequest(http.MethodDelete, "/reset", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var resetResp protocol.ResetResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resetResp))
	assert.True(t, resetResp.Success)
	assert.Equal(t, 1, resetResp.Deleted.Todos)
}
