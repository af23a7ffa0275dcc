package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/wricardo/codequest/game/config"
	"github.com/wricardo/codequest/game/engine"
	"github.com/wricardo/codequest/game/gateway"
	"github.com/wricardo/codequest/game/overrides"
	"github.com/wricardo/codequest/game/quest"
	"github.com/wricardo/codequest/game/service"
	"github.com/wricardo/codequest/game/sim"
)

// MockGameService implements service.GameService for testing. Calls to
// methods without a Func panic through the nil embedded interface.
type MockGameService struct {
	service.GameService

	CreateSessionFunc  func(ctx context.Context, req service.CreateSessionRequest) (*service.SessionInfo, error)
	GetSessionFunc     func(ctx context.Context, sessionID string) (*service.SessionInfo, error)
	ListSessionsFunc   func(ctx context.Context) ([]*service.SessionInfo, error)
	DeleteSessionFunc  func(ctx context.Context, sessionID string) error
	StepFunc           func(ctx context.Context, sessionID string, req service.StepRequest) (*service.StepResult, error)
	SetInputFunc       func(ctx context.Context, sessionID string, in sim.Input) error
	GetStateFunc       func(ctx context.Context, sessionID string) (*sim.View, error)
	InteractFunc       func(ctx context.Context, sessionID, npcID string) (*service.InteractResult, error)
	AnswerQuizFunc     func(ctx context.Context, sessionID string, choice int) (*service.ActionResult, error)
	HintFunc           func(ctx context.Context, sessionID string) (string, error)
	ToggleOverrideFunc func(ctx context.Context, sessionID string, key overrides.TileKey) (*service.OverrideResult, error)
	SaveFunc           func(ctx context.Context, sessionID string) error
	ListConfigsFunc    func(ctx context.Context) ([]*config.ConfigInfo, error)
	LoadConfigFunc     func(ctx context.Context, configName string) (*config.WorldConfig, error)
}

func (m *MockGameService) CreateSession(ctx context.Context, req service.CreateSessionRequest) (*service.SessionInfo, error) {
	if m.CreateSessionFunc != nil {
		return m.CreateSessionFunc(ctx, req)
	}
	return &service.SessionInfo{ID: "test-session", ConfigID: req.ConfigID, CreatedAt: time.Now()}, nil
}

func (m *MockGameService) GetSession(ctx context.Context, sessionID string) (*service.SessionInfo, error) {
	if m.GetSessionFunc != nil {
		return m.GetSessionFunc(ctx, sessionID)
	}
	return &service.SessionInfo{ID: sessionID, ConfigID: "meadow", CreatedAt: time.Now()}, nil
}

func (m *MockGameService) ListSessions(ctx context.Context) ([]*service.SessionInfo, error) {
	if m.ListSessionsFunc != nil {
		return m.ListSessionsFunc(ctx)
	}
	return []*service.SessionInfo{}, nil
}

func (m *MockGameService) DeleteSession(ctx context.Context, sessionID string) error {
	if m.DeleteSessionFunc != nil {
		return m.DeleteSessionFunc(ctx, sessionID)
	}
	return nil
}

func (m *MockGameService) Step(ctx context.Context, sessionID string, req service.StepRequest) (*service.StepResult, error) {
	return m.StepFunc(ctx, sessionID, req)
}

func (m *MockGameService) SetInput(ctx context.Context, sessionID string, in sim.Input) error {
	return m.SetInputFunc(ctx, sessionID, in)
}

func (m *MockGameService) GetState(ctx context.Context, sessionID string) (*sim.View, error) {
	return m.GetStateFunc(ctx, sessionID)
}

func (m *MockGameService) Interact(ctx context.Context, sessionID, npcID string) (*service.InteractResult, error) {
	return m.InteractFunc(ctx, sessionID, npcID)
}

func (m *MockGameService) AnswerQuiz(ctx context.Context, sessionID string, choice int) (*service.ActionResult, error) {
	return m.AnswerQuizFunc(ctx, sessionID, choice)
}

func (m *MockGameService) Hint(ctx context.Context, sessionID string) (string, error) {
	return m.HintFunc(ctx, sessionID)
}

func (m *MockGameService) ToggleOverride(ctx context.Context, sessionID string, key overrides.TileKey) (*service.OverrideResult, error) {
	return m.ToggleOverrideFunc(ctx, sessionID, key)
}

func (m *MockGameService) Save(ctx context.Context, sessionID string) error {
	return m.SaveFunc(ctx, sessionID)
}

func (m *MockGameService) ListConfigs(ctx context.Context) ([]*config.ConfigInfo, error) {
	return m.ListConfigsFunc(ctx)
}

func (m *MockGameService) LoadConfig(ctx context.Context, configName string) (*config.WorldConfig, error) {
	return m.LoadConfigFunc(ctx, configName)
}

// Helper functions
func setupTestServer(mockService *MockGameService, opts ...Option) *Server {
	return NewServer(mockService, nil, opts...)
}

func makeRequest(method, path string, body any) *http.Request {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	return req
}

func parseResponse(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.NewDecoder(w.Body).Decode(v); err != nil {
		t.Fatalf("Failed to parse response: %v", err)
	}
}

func serve(server http.Handler, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	server.ServeHTTP(w, req)
	return w
}

func TestCreateSession(t *testing.T) {
	tests := []struct {
		name           string
		requestBody    any
		setupMock      func(*MockGameService)
		expectedStatus int
		validateResp   func(*testing.T, *httptest.ResponseRecorder)
	}{
		{
			name:           "Create session with default world",
			expectedStatus: http.StatusCreated,
			validateResp: func(t *testing.T, w *httptest.ResponseRecorder) {
				var resp service.SessionInfo
				parseResponse(t, w, &resp)
				if resp.ID != "test-session" {
					t.Errorf("Expected session ID test-session, got %s", resp.ID)
				}
			},
		},
		{
			name:        "Create session for a player",
			requestBody: service.CreateSessionRequest{ConfigID: "cave", PlayerID: "ada"},
			setupMock: func(m *MockGameService) {
				m.CreateSessionFunc = func(ctx context.Context, req service.CreateSessionRequest) (*service.SessionInfo, error) {
					if req.ConfigID != "cave" || req.PlayerID != "ada" {
						t.Errorf("Unexpected request %+v", req)
					}
					return &service.SessionInfo{ID: "sess-456", ConfigID: req.ConfigID, PlayerID: req.PlayerID}, nil
				}
			},
			expectedStatus: http.StatusCreated,
			validateResp: func(t *testing.T, w *httptest.ResponseRecorder) {
				var resp service.SessionInfo
				parseResponse(t, w, &resp)
				if resp.ConfigID != "cave" || resp.PlayerID != "ada" {
					t.Errorf("Unexpected session %+v", resp)
				}
			},
		},
		{
			name:        "Unknown world",
			requestBody: service.CreateSessionRequest{ConfigID: "nowhere"},
			setupMock: func(m *MockGameService) {
				m.CreateSessionFunc = func(ctx context.Context, req service.CreateSessionRequest) (*service.SessionInfo, error) {
					return nil, fmt.Errorf("%w: nowhere", service.ErrConfigNotFound)
				}
			},
			expectedStatus: http.StatusNotFound,
		},
		{
			name:        "Rejected by the backend",
			requestBody: service.CreateSessionRequest{PlayerID: "ada"},
			setupMock: func(m *MockGameService) {
				m.CreateSessionFunc = func(ctx context.Context, req service.CreateSessionRequest) (*service.SessionInfo, error) {
					return nil, service.ErrReauthenticate
				}
			},
			expectedStatus: http.StatusUnauthorized,
			validateResp: func(t *testing.T, w *httptest.ResponseRecorder) {
				var resp map[string]any
				parseResponse(t, w, &resp)
				if resp["redirect"] != LoginPath {
					t.Errorf("Expected redirect to %s, got %v", LoginPath, resp["redirect"])
				}
			},
		},
		{
			name:        "Handle service error",
			requestBody: service.CreateSessionRequest{},
			setupMock: func(m *MockGameService) {
				m.CreateSessionFunc = func(ctx context.Context, req service.CreateSessionRequest) (*service.SessionInfo, error) {
					return nil, fmt.Errorf("service error")
				}
			},
			expectedStatus: http.StatusInternalServerError,
			validateResp: func(t *testing.T, w *httptest.ResponseRecorder) {
				var resp map[string]any
				parseResponse(t, w, &resp)
				if resp["error"] != "service error" {
					t.Errorf("Expected error message 'service error', got %v", resp["error"])
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockService := &MockGameService{}
			if tt.setupMock != nil {
				tt.setupMock(mockService)
			}

			w := serve(setupTestServer(mockService), makeRequest("POST", "/api/sessions", tt.requestBody))

			if w.Code != tt.expectedStatus {
				t.Errorf("Expected status %d, got %d", tt.expectedStatus, w.Code)
			}
			if tt.validateResp != nil {
				tt.validateResp(t, w)
			}
		})
	}
}

func TestListSessions(t *testing.T) {
	now := time.Now()
	mockService := &MockGameService{
		ListSessionsFunc: func(ctx context.Context) ([]*service.SessionInfo, error) {
			return []*service.SessionInfo{
				{ID: "old", ConfigID: "meadow", CreatedAt: now.Add(-time.Hour), LastAccessedAt: now.Add(-time.Hour)},
				{ID: "new", ConfigID: "meadow", CreatedAt: now, LastAccessedAt: now},
				{ID: "cave", ConfigID: "cave", CreatedAt: now.Add(-time.Minute), LastAccessedAt: now.Add(-time.Minute)},
			}, nil
		},
	}
	server := setupTestServer(mockService)

	t.Run("default order", func(t *testing.T) {
		w := serve(server, makeRequest("GET", "/api/sessions", nil))
		var resp struct {
			Count    int                    `json:"count"`
			Sessions []*service.SessionInfo `json:"sessions"`
		}
		parseResponse(t, w, &resp)
		if resp.Count != 3 || resp.Sessions[0].ID != "new" {
			t.Errorf("Expected newest first, got %+v", resp.Sessions)
		}
	})

	t.Run("world filter and limit", func(t *testing.T) {
		w := serve(server, makeRequest("GET", "/api/sessions?world=meadow&order=asc&limit=1", nil))
		var resp struct {
			Count    int                    `json:"count"`
			Total    int                    `json:"total"`
			Sessions []*service.SessionInfo `json:"sessions"`
		}
		parseResponse(t, w, &resp)
		if resp.Count != 1 || resp.Total != 3 || resp.Sessions[0].ID != "old" {
			t.Errorf("Unexpected response %+v", resp)
		}
	})
}

func TestGetAndDeleteSession(t *testing.T) {
	mockService := &MockGameService{
		GetSessionFunc: func(ctx context.Context, sessionID string) (*service.SessionInfo, error) {
			if sessionID != "abc" {
				return nil, service.ErrSessionNotFound
			}
			return &service.SessionInfo{ID: sessionID}, nil
		},
		DeleteSessionFunc: func(ctx context.Context, sessionID string) error {
			if sessionID != "abc" {
				return service.ErrSessionNotFound
			}
			return nil
		},
	}
	server := setupTestServer(mockService)

	if w := serve(server, makeRequest("GET", "/api/sessions/abc", nil)); w.Code != http.StatusOK {
		t.Errorf("Expected 200, got %d", w.Code)
	}
	if w := serve(server, makeRequest("GET", "/api/sessions/missing", nil)); w.Code != http.StatusNotFound {
		t.Errorf("Expected 404, got %d", w.Code)
	}
	if w := serve(server, makeRequest("DELETE", "/api/sessions/abc", nil)); w.Code != http.StatusOK {
		t.Errorf("Expected 200, got %d", w.Code)
	}
	if w := serve(server, makeRequest("DELETE", "/api/sessions/missing", nil)); w.Code != http.StatusNotFound {
		t.Errorf("Expected 404, got %d", w.Code)
	}
}

func TestStep(t *testing.T) {
	var got service.StepRequest
	mockService := &MockGameService{
		StepFunc: func(ctx context.Context, sessionID string, req service.StepRequest) (*service.StepResult, error) {
			got = req
			if req.DurationMs > 20000 {
				return nil, fmt.Errorf("%w: too long", service.ErrInvalidRequest)
			}
			return &service.StepResult{
				Ticks:     3,
				StartPos:  engine.Vec{X: 16, Y: 16},
				EndPos:    engine.Vec{X: 16, Y: 16},
				BlockedBy: []overrides.TileKey{{X: 2, Y: 1, Layer: "Walls"}},
			}, nil
		},
	}
	server := setupTestServer(mockService)

	w := serve(server, makeRequest("POST", "/api/sessions/abc/step", map[string]any{
		"input":       map[string]int{"dx": 1},
		"duration_ms": 100,
	}))
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if got.Input.DX != 1 || got.DurationMs != 100 {
		t.Errorf("Unexpected request %+v", got)
	}
	var resp service.StepResult
	parseResponse(t, w, &resp)
	if resp.Ticks != 3 || len(resp.BlockedBy) != 1 || resp.BlockedBy[0].Layer != "Walls" {
		t.Errorf("Unexpected result %+v", resp)
	}

	if w := serve(server, makeRequest("POST", "/api/sessions/abc/step", map[string]any{"duration_ms": 60000})); w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400, got %d", w.Code)
	}

	bad := httptest.NewRequest("POST", "/api/sessions/abc/step", bytes.NewBufferString("{"))
	if w := serve(server, bad); w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for malformed body, got %d", w.Code)
	}
}

func TestInputAndInteract(t *testing.T) {
	var latched sim.Input
	var npc string
	mockService := &MockGameService{
		SetInputFunc: func(ctx context.Context, sessionID string, in sim.Input) error {
			latched = in
			return nil
		},
		InteractFunc: func(ctx context.Context, sessionID, npcID string) (*service.InteractResult, error) {
			npc = npcID
			if npcID == "ghost" {
				return nil, fmt.Errorf("%w: ghost", sim.ErrUnknownNPC)
			}
			return &service.InteractResult{Dialogue: &sim.Dialogue{NPC: npcID, Text: "Hello"}}, nil
		},
	}
	server := setupTestServer(mockService)

	if w := serve(server, makeRequest("POST", "/api/sessions/abc/input", sim.Input{DY: -1, Attack: true})); w.Code != http.StatusAccepted {
		t.Errorf("Expected 202, got %d", w.Code)
	}
	if latched.DY != -1 || !latched.Attack {
		t.Errorf("Unexpected input %+v", latched)
	}

	w := serve(server, makeRequest("POST", "/api/sessions/abc/interact", map[string]string{"npc_id": "guide"}))
	if w.Code != http.StatusOK || npc != "guide" {
		t.Errorf("Expected to talk to guide, got %d %s", w.Code, npc)
	}
	if w := serve(server, makeRequest("POST", "/api/sessions/abc/interact", nil)); w.Code != http.StatusOK || npc != "" {
		t.Errorf("Expected a nearby interaction, got %d %q", w.Code, npc)
	}
	if w := serve(server, makeRequest("POST", "/api/sessions/abc/interact", map[string]string{"npc_id": "ghost"})); w.Code != http.StatusNotFound {
		t.Errorf("Expected 404, got %d", w.Code)
	}
}

func TestQuestErrors(t *testing.T) {
	mockService := &MockGameService{
		AnswerQuizFunc: func(ctx context.Context, sessionID string, choice int) (*service.ActionResult, error) {
			switch choice {
			case 9:
				return nil, quest.ErrInvalidChoice
			case 1:
				return nil, fmt.Errorf("%w: open stage is lesson", quest.ErrWrongStage)
			}
			correct := true
			return &service.ActionResult{Correct: &correct, QuestState: quest.StateCompleted}, nil
		},
		HintFunc: func(ctx context.Context, sessionID string) (string, error) {
			return "", quest.ErrHintUnavailable
		},
	}
	server := setupTestServer(mockService)

	tests := []struct {
		name   string
		body   any
		status int
	}{
		{"correct", map[string]int{"choice": 0}, http.StatusOK},
		{"wrong stage", map[string]int{"choice": 1}, http.StatusConflict},
		{"out of range", map[string]int{"choice": 9}, http.StatusBadRequest},
		{"missing choice", map[string]int{}, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := serve(server, makeRequest("POST", "/api/sessions/abc/quiz/answer", tt.body))
			if w.Code != tt.status {
				t.Errorf("Expected %d, got %d", tt.status, w.Code)
			}
		})
	}

	if w := serve(server, makeRequest("GET", "/api/sessions/abc/challenge/hint", nil)); w.Code != http.StatusConflict {
		t.Errorf("Expected 409 for an unavailable hint, got %d", w.Code)
	}
}

func TestToggleOverride(t *testing.T) {
	mockService := &MockGameService{
		ToggleOverrideFunc: func(ctx context.Context, sessionID string, key overrides.TileKey) (*service.OverrideResult, error) {
			if sessionID != "admin" {
				return nil, service.ErrPermissionDenied
			}
			return &service.OverrideResult{World: "meadow", Tile: key, Blocking: false}, nil
		},
	}
	server := setupTestServer(mockService)
	key := overrides.TileKey{X: 3, Y: 4, Layer: "Walls"}

	w := serve(server, makeRequest("POST", "/api/sessions/admin/overrides", key))
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	var resp service.OverrideResult
	parseResponse(t, w, &resp)
	if resp.Tile != key || resp.Blocking {
		t.Errorf("Unexpected result %+v", resp)
	}

	if w := serve(server, makeRequest("POST", "/api/sessions/player/overrides", key)); w.Code != http.StatusForbidden {
		t.Errorf("Expected 403, got %d", w.Code)
	}
	if w := serve(server, makeRequest("POST", "/api/sessions/admin/overrides", map[string]int{"x": 1})); w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 without a layer, got %d", w.Code)
	}
}

func TestSaveAndConfigs(t *testing.T) {
	mockService := &MockGameService{
		SaveFunc: func(ctx context.Context, sessionID string) error {
			return fmt.Errorf("%w: %v", service.ErrReauthenticate, gateway.ErrUnauthorized)
		},
		ListConfigsFunc: func(ctx context.Context) ([]*config.ConfigInfo, error) {
			return []*config.ConfigInfo{{ConfigID: "meadow", Name: "Meadow"}}, nil
		},
		LoadConfigFunc: func(ctx context.Context, name string) (*config.WorldConfig, error) {
			if name != "meadow" {
				return nil, config.ErrConfigNotFound
			}
			return &config.WorldConfig{Name: "Meadow"}, nil
		},
	}
	server := setupTestServer(mockService)

	if w := serve(server, makeRequest("POST", "/api/sessions/abc/save", nil)); w.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401, got %d", w.Code)
	}

	w := serve(server, makeRequest("GET", "/api/configs", nil))
	var infos []config.ConfigInfo
	parseResponse(t, w, &infos)
	if len(infos) != 1 || infos[0].ConfigID != "meadow" {
		t.Errorf("Unexpected configs %+v", infos)
	}

	if w := serve(server, makeRequest("GET", "/api/configs/meadow.json", nil)); w.Code != http.StatusOK {
		t.Errorf("Expected 200, got %d", w.Code)
	}
	if w := serve(server, makeRequest("GET", "/api/configs/cave", nil)); w.Code != http.StatusNotFound {
		t.Errorf("Expected 404, got %d", w.Code)
	}
}

func TestHealth(t *testing.T) {
	w := serve(setupTestServer(&MockGameService{}), makeRequest("GET", "/healthz", nil))
	if w.Code != http.StatusOK {
		t.Errorf("Expected 200, got %d", w.Code)
	}
}

func TestWebSocketRequiresSession(t *testing.T) {
	server := setupTestServer(&MockGameService{})
	if w := serve(server, makeRequest("GET", "/ws", nil)); w.Code != http.StatusNotFound {
		t.Errorf("Expected 404 without a hub, got %d", w.Code)
	}
}
