package engine_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"todosync/internal/client/engine"
	"todosync/internal/client/hostapp"
	"todosync/internal/client/transport"
	"todosync/internal/protocol"
)

func writePID(path string) error {
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o644)
}

// fakeHost is a minimal in-memory HostApp shared across engine tests.
type fakeHost struct {
	items map[string]hostapp.Todo
}

func newFakeHost() *fakeHost { return &fakeHost{items: map[string]hostapp.Todo{}} }

func (f *fakeHost) List(ctx context.Context) ([]hostapp.Todo, error) {
	out := make([]hostapp.Todo, 0, len(f.items))
	for _, t := range f.items {
		out = append(out, t)
	}
	return out, nil
}

func (f *fakeHost) Create(ctx context.Context, fields hostapp.Fields) error {
	id := "local-created"
	t := hostapp.Todo{LocalID: id}
	if fields.Title != nil {
		t.Title = *fields.Title
	}
	if fields.Status != nil {
		t.Status = *fields.Status
	}
	if fields.Tags != nil {
		t.Tags = *fields.Tags
	}
	f.items[id] = t
	return nil
}

func (f *fakeHost) Update(ctx context.Context, localID string, fields hostapp.Fields) error {
	t := f.items[localID]
	if fields.Title != nil {
		t.Title = *fields.Title
	}
	if fields.Status != nil {
		t.Status = *fields.Status
	}
	if fields.Tags != nil {
		t.Tags = *fields.Tags
	}
	f.items[localID] = t
	return nil
}

func newEngine(t *testing.T, host hostapp.HostApp, mux *http.ServeMux) (*engine.Engine, string) {
	t.Helper()
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	dir := t.TempDir()
	tport := transport.New(srv.URL, "test-token")
	e := engine.New(
		filepath.Join(dir, "sync.lock"),
		filepath.Join(dir, "snapshot.json"),
		filepath.Join(dir, "conflicts.json"),
		host, tport,
	)
	return e, dir
}

func TestEngine_FirstSyncPullsServerStateIntoEmptyHost(t *testing.T) {
	host := newFakeHost()

	mux := http.NewServeMux()
	mux.HandleFunc("/state", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(protocol.StateResponse{
			Todos: []protocol.Todo{{
				ID: "server-1", Title: "From server", Tags: []string{}, Status: protocol.StatusOpen, EditedAt: time.Now(),
			}},
			SyncedAt: time.Now(),
		})
	})

	e, _ := newEngine(t, host, mux)
	outcome, err := e.Run(context.Background())
	require.NoError(t, err)
	assert.False(t, outcome.Skipped)
	assert.Equal(t, 0, outcome.Conflicts)

	assert.Len(t, host.items, 1)
}

func TestEngine_PushesLocalChangeAndBindsMapping(t *testing.T) {
	host := newFakeHost()
	host.items["local-1"] = hostapp.Todo{LocalID: "local-1", Title: "New locally", Status: "open", Tags: []string{}}

	var gotClientID string
	mux := http.NewServeMux()
	mux.HandleFunc("/push", func(w http.ResponseWriter, r *http.Request) {
		var req protocol.PushRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Len(t, req.Todos.Upserted, 1)
		require.NotNil(t, req.Todos.Upserted[0].ClientID)
		gotClientID = *req.Todos.Upserted[0].ClientID

		json.NewEncoder(w).Encode(protocol.PushResponse{
			State:     protocol.StateResponse{Todos: []protocol.Todo{}},
			Conflicts: []protocol.Conflict{},
			Mappings:  []protocol.Mapping{{ServerID: "server-9", ClientID: gotClientID}},
		})
	})
	mux.HandleFunc("/delta", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(protocol.DeltaResponse{SyncedAt: time.Now()})
	})

	e, _ := newEngine(t, host, mux)
	outcome, err := e.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, outcome.Pushed)
	assert.Equal(t, "local-1", gotClientID)
}

func TestEngine_SkipsWhenLockHeldByLiveProcess(t *testing.T) {
	host := newFakeHost()
	mux := http.NewServeMux()
	e, dir := newEngine(t, host, mux)

	// Simulate a concurrent holder by pre-writing this test process's own
	// PID into the lock file before Run acquires it.
	lockPath := filepath.Join(dir, "sync.lock")
	require.NoError(t, writePID(lockPath))

	outcome, err := e.Run(context.Background())
	require.NoError(t, err)
	assert.True(t, outcome.Skipped)
}
