package gateway

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wricardo/codequest/game/overrides"
)

// newBackendServer serves the backend routes from a MemoryStore.
func newBackendServer(t *testing.T, token string) (*httptest.Server, *MemoryStore) {
	t.Helper()
	store := NewMemoryStore()
	mux := http.NewServeMux()

	auth := func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Authorization") != "Bearer "+token {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			next(w, r)
		}
	}

	mux.HandleFunc("GET /backend/players/{player}/snapshot", auth(func(w http.ResponseWriter, r *http.Request) {
		snap, _ := store.LoadSnapshot(r.Context(), r.PathValue("player"))
		if snap == nil {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_ = json.NewEncoder(w).Encode(snap)
	}))
	mux.HandleFunc("PUT /backend/players/{player}/snapshot", auth(func(w http.ResponseWriter, r *http.Request) {
		var snap Snapshot
		if err := json.NewDecoder(r.Body).Decode(&snap); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		_ = store.SaveSnapshot(r.Context(), r.PathValue("player"), snap)
		w.WriteHeader(http.StatusNoContent)
	}))
	mux.HandleFunc("DELETE /backend/players/{player}/snapshot", auth(func(w http.ResponseWriter, r *http.Request) {
		_ = store.DeleteSnapshot(r.Context(), r.PathValue("player"))
		w.WriteHeader(http.StatusNoContent)
	}))
	mux.HandleFunc("GET /backend/worlds/{world}/overrides", auth(func(w http.ResponseWriter, r *http.Request) {
		m, _ := store.LoadOverrides(r.Context(), r.PathValue("world"))
		_ = json.NewEncoder(w).Encode(OverridesPayload{Overrides: EntriesFromMap(m)})
	}))
	mux.HandleFunc("PUT /backend/worlds/{world}/overrides", auth(func(w http.ResponseWriter, r *http.Request) {
		var p OverridesPayload
		_ = json.NewDecoder(r.Body).Decode(&p)
		_ = store.SaveOverrides(r.Context(), r.PathValue("world"), MapFromEntries(p.Overrides))
		w.WriteHeader(http.StatusNoContent)
	}))
	mux.HandleFunc("POST /backend/players/{player}/completions", auth(func(w http.ResponseWriter, r *http.Request) {
		var c Completion
		_ = json.NewDecoder(r.Body).Decode(&c)
		_ = store.RecordQuestCompletion(r.Context(), r.PathValue("player"), c)
		w.WriteHeader(http.StatusAccepted)
	}))

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, store
}

func TestHTTPGateway_RoundTrip(t *testing.T) {
	srv, store := newBackendServer(t, "secret")
	gw := NewHTTPGateway(srv.URL+"/", "secret", nil)
	ctx := context.Background()

	snap, err := gw.LoadSnapshot(ctx, "ada")
	require.NoError(t, err)
	assert.Nil(t, snap, "404 means no save")

	require.NoError(t, gw.SaveSnapshot(ctx, "ada", snapshotAt(2, 160, 20, "hello")))
	snap, err = gw.LoadSnapshot(ctx, "ada")
	require.NoError(t, err)
	require.NotNil(t, snap)
	assert.Equal(t, uint64(160), snap.Experience)

	entries := map[overrides.TileKey]bool{{X: 4, Y: 2, Layer: "Fences"}: false}
	require.NoError(t, gw.SaveOverrides(ctx, "meadow", entries))
	got, err := gw.LoadOverrides(ctx, "meadow")
	require.NoError(t, err)
	assert.Equal(t, entries, got)

	require.NoError(t, gw.RecordQuestCompletion(ctx, "ada", Completion{ID: "1", QuestID: "hello"}))
	require.NoError(t, gw.RecordQuestCompletion(ctx, "ada", Completion{ID: "2", QuestID: "hello"}), "duplicates are accepted")
	completions, _ := store.Completions(ctx, "ada")
	assert.Len(t, completions, 1)

	require.NoError(t, gw.DeleteSnapshot(ctx, "ada"))
	snap, err = gw.LoadSnapshot(ctx, "ada")
	require.NoError(t, err)
	assert.Nil(t, snap)
}

func TestHTTPGateway_Unauthorized(t *testing.T) {
	srv, _ := newBackendServer(t, "secret")
	gw := NewHTTPGateway(srv.URL, "expired", nil)

	_, err := gw.LoadSnapshot(context.Background(), "ada")
	assert.ErrorIs(t, err, ErrUnauthorized)
	err = gw.SaveSnapshot(context.Background(), "ada", snapshotAt(1, 0, 0))
	assert.ErrorIs(t, err, ErrUnauthorized)
	assert.True(t, Permanent(err))
}

func TestHTTPGateway_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = io.WriteString(w, "database is locked")
	}))
	defer srv.Close()

	gw := NewHTTPGateway(srv.URL, "", nil)
	err := gw.SaveSnapshot(context.Background(), "ada", snapshotAt(1, 0, 0))
	require.Error(t, err)
	assert.False(t, Permanent(err))
}

func TestHTTPGateway_MalformedSnapshot(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"position": {"x": "NaN", "y": 0}}`)
	}))
	defer srv.Close()

	snap, err := NewHTTPGateway(srv.URL, "", nil).LoadSnapshot(context.Background(), "ada")
	require.NoError(t, err)
	assert.Nil(t, snap)
}

func TestPermanent(t *testing.T) {
	assert.False(t, Permanent(nil))
	assert.True(t, Permanent(&StatusError{Code: 400}))
	assert.False(t, Permanent(&StatusError{Code: 429}))
	assert.False(t, Permanent(&StatusError{Code: 502}))
	assert.True(t, Permanent(ErrInvalidID))
}
