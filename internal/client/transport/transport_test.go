package transport_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"todosync/internal/client/transport"
	"todosync/internal/protocol"
)

func TestClient_HealthNeedsNoAuthHeader(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		json.NewEncoder(w).Encode(protocol.HealthResponse{Status: "ok"})
	}))
	defer srv.Close()

	c := transport.New(srv.URL, "")
	resp, err := c.Health(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Status)
	assert.Empty(t, gotAuth)
}

func TestClient_StateSendsBearerToken(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		json.NewEncoder(w).Encode(protocol.StateResponse{Todos: []protocol.Todo{}})
	}))
	defer srv.Close()

	c := transport.New(srv.URL, "secret-token")
	_, err := c.State(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Bearer secret-token", gotAuth)
}

func TestClient_DeltaEncodesSinceAsRFC3339(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		json.NewEncoder(w).Encode(protocol.DeltaResponse{})
	}))
	defer srv.Close()

	since := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	c := transport.New(srv.URL, "t")
	_, err := c.Delta(context.Background(), since)
	require.NoError(t, err)
	assert.Contains(t, gotQuery, "2026-01-02T03%3A04%3A05Z")
}

func TestClient_UnauthorizedResponseMapsToSentinel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := transport.New(srv.URL, "bad-token")
	_, err := c.State(context.Background())
	assert.ErrorIs(t, err, transport.ErrUnauthorized)
}

func TestClient_NonTwoXXResponseWrapsTransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(protocol.ErrorResponse{Error: "boom"})
	}))
	defer srv.Close()

	c := transport.New(srv.URL, "t")
	_, err := c.State(context.Background())
	require.ErrorIs(t, err, transport.ErrTransport)
	assert.Contains(t, err.Error(), "boom")
}

func TestClient_PushSendsBodyAndDecodesResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req protocol.PushRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Len(t, req.Todos.Upserted, 1)
		json.NewEncoder(w).Encode(protocol.PushResponse{State: protocol.StateResponse{Todos: []protocol.Todo{}}})
	}))
	defer srv.Close()

	c := transport.New(srv.URL, "t")
	req := protocol.PushRequest{}
	req.Todos.Upserted = []protocol.PushTodo{{Title: "x", Tags: []string{}, Status: protocol.StatusOpen}}
	resp, err := c.Push(context.Background(), req)
	require.NoError(t, err)
	assert.NotNil(t, resp)
}
