package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wricardo/codequest/game/gateway"
	"github.com/wricardo/codequest/game/ledger"
	"github.com/wricardo/codequest/game/overrides"
)

func startBackend(t *testing.T, token string) (*gateway.MemoryStore, *httptest.Server) {
	t.Helper()
	store := gateway.NewMemoryStore()
	server := httptest.NewServer(setupTestServer(&MockGameService{}, WithBackend(store, token)))
	t.Cleanup(server.Close)
	return store, server
}

func TestBackend_RoundTrip(t *testing.T) {
	ctx := context.Background()
	store, server := startBackend(t, "secret")
	client := gateway.NewHTTPGateway(server.URL, "secret", nil)

	snap, err := client.LoadSnapshot(ctx, "ada")
	require.NoError(t, err)
	assert.Nil(t, snap)

	first := gateway.Snapshot{
		Position: &gateway.Position{X: 32, Y: 48},
		State:    ledger.State{Experience: 200, Level: 2, Coins: 10, Badges: []string{"newcomer"}},
	}
	require.NoError(t, client.SaveSnapshot(ctx, "ada", first))

	// A lower level never rolls the ledger back but still moves the player.
	stale := gateway.Snapshot{
		Position: &gateway.Position{X: 64, Y: 48},
		State:    ledger.State{Experience: 10, Level: 1},
	}
	require.NoError(t, client.SaveSnapshot(ctx, "ada", stale))

	snap, err = client.LoadSnapshot(ctx, "ada")
	require.NoError(t, err)
	require.NotNil(t, snap)
	assert.Equal(t, uint64(2), snap.Level)
	assert.Equal(t, uint64(200), snap.Experience)
	assert.Equal(t, []string{"newcomer"}, snap.Badges)
	assert.Equal(t, 64.0, snap.Position.X)

	require.NoError(t, client.RecordQuestCompletion(ctx, "ada", gateway.Completion{QuestID: "hello", XP: 50}))
	require.NoError(t, client.RecordQuestCompletion(ctx, "ada", gateway.Completion{QuestID: "hello", XP: 50}))
	completions, err := store.Completions(ctx, "ada")
	require.NoError(t, err)
	require.Len(t, completions, 1)
	assert.NotEmpty(t, completions[0].ID)

	key := overrides.TileKey{X: 1, Y: 2, Layer: "Walls"}
	require.NoError(t, client.SaveOverrides(ctx, "meadow", map[overrides.TileKey]bool{key: false}))
	loaded, err := client.LoadOverrides(ctx, "meadow")
	require.NoError(t, err)
	assert.Equal(t, map[overrides.TileKey]bool{key: false}, loaded)

	require.NoError(t, client.DeleteSnapshot(ctx, "ada"))
	snap, err = client.LoadSnapshot(ctx, "ada")
	require.NoError(t, err)
	assert.Nil(t, snap)
}

func TestBackend_Token(t *testing.T) {
	ctx := context.Background()
	_, server := startBackend(t, "secret")

	_, err := gateway.NewHTTPGateway(server.URL, "wrong", nil).LoadSnapshot(ctx, "ada")
	assert.True(t, errors.Is(err, gateway.ErrUnauthorized), "got %v", err)

	resp, err := http.Get(server.URL + "/backend/players")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestBackend_Validation(t *testing.T) {
	_, server := startBackend(t, "")
	handler := server.Config.Handler

	w := serve(handler, makeRequest("PUT", "/backend/players/ada/snapshot", map[string]any{"experience": 5}))
	assert.Equal(t, http.StatusBadRequest, w.Code, "a snapshot without a position is malformed")

	w = serve(handler, makeRequest("POST", "/backend/players/ada/completions", map[string]any{}))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = serve(handler, makeRequest("GET", "/backend/players", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Players []string `json:"players"`
	}
	parseResponse(t, w, &resp)
	assert.Empty(t, resp.Players)
}
