package api

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"

	"github.com/wricardo/codequest/game/gateway"
	"github.com/wricardo/codequest/game/overrides"
	"github.com/wricardo/codequest/game/quest"
	"github.com/wricardo/codequest/game/service"
	"github.com/wricardo/codequest/game/sim"
	"github.com/wricardo/codequest/transport/websocket"
)

// LoginPath is where a client whose session was rejected by the
// persistence backend signs in again.
const LoginPath = "/login"

// Server represents the REST API server
type Server struct {
	service service.GameService
	hub     *websocket.Hub
	router  *mux.Router

	backend      gateway.Backend
	backendToken string
	staticDir    string
}

// Option configures a Server.
type Option func(*Server)

// WithBackend serves the persistence routes over backend. When token is set
// every backend request must carry it as a bearer token.
func WithBackend(backend gateway.Backend, token string) Option {
	return func(s *Server) {
		s.backend = backend
		s.backendToken = token
	}
}

// WithStatic serves files from dir at the root.
func WithStatic(dir string) Option {
	return func(s *Server) { s.staticDir = dir }
}

// NewServer creates a new API server. hub may be nil.
func NewServer(gameService service.GameService, hub *websocket.Hub, opts ...Option) *Server {
	s := &Server{
		service: gameService,
		hub:     hub,
		router:  mux.NewRouter(),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.setupRoutes()
	return s
}

// setupRoutes configures all API routes
func (s *Server) setupRoutes() {
	s.router.HandleFunc("/healthz", s.handleHealth).Methods("GET")

	api := s.router.PathPrefix("/api").Subrouter()

	// Session management
	api.HandleFunc("/sessions", s.handleCreateSession).Methods("POST")
	api.HandleFunc("/sessions", s.handleListSessions).Methods("GET")
	api.HandleFunc("/sessions/{id}", s.handleGetSession).Methods("GET")
	api.HandleFunc("/sessions/{id}", s.handleDeleteSession).Methods("DELETE")

	// Simulation
	api.HandleFunc("/sessions/{id}/state", s.handleGetState).Methods("GET")
	api.HandleFunc("/sessions/{id}/step", s.handleStep).Methods("POST")
	api.HandleFunc("/sessions/{id}/input", s.handleInput).Methods("POST")
	api.HandleFunc("/sessions/{id}/interact", s.handleInteract).Methods("POST")

	// Quests
	api.HandleFunc("/sessions/{id}/quests/{quest}/start", s.handleStartQuest).Methods("POST")
	api.HandleFunc("/sessions/{id}/lesson/advance", s.handleAdvanceLesson).Methods("POST")
	api.HandleFunc("/sessions/{id}/quiz/answer", s.handleAnswerQuiz).Methods("POST")
	api.HandleFunc("/sessions/{id}/challenge/run", s.handleRunChallenge).Methods("POST")
	api.HandleFunc("/sessions/{id}/challenge/submit", s.handleSubmitChallenge).Methods("POST")
	api.HandleFunc("/sessions/{id}/challenge/hint", s.handleHint).Methods("GET")
	api.HandleFunc("/sessions/{id}/activity", s.handleRunFromQuest).Methods("DELETE")

	// World editing
	api.HandleFunc("/sessions/{id}/overrides", s.handleToggleOverride).Methods("POST")
	api.HandleFunc("/worlds/{world}/overrides", s.handleListOverrides).Methods("GET")

	// Saves
	api.HandleFunc("/sessions/{id}/save", s.handleSave).Methods("POST")
	api.HandleFunc("/sessions/{id}/save", s.handleDeleteSave).Methods("DELETE")

	// Configuration
	api.HandleFunc("/configs", s.handleListConfigs).Methods("GET")
	api.HandleFunc("/configs/{name}", s.handleGetConfig).Methods("GET")

	if s.backend != nil {
		s.setupBackendRoutes()
	}

	// WebSocket
	s.router.HandleFunc("/ws", s.handleWebSocket)

	if s.staticDir != "" {
		s.router.PathPrefix("/").Handler(http.FileServer(http.Dir(s.staticDir)))
	}
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Response helpers
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]any{"error": message, "code": status})
}

// respondServiceError maps service errors to status codes.
func respondServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrReauthenticate):
		respondJSON(w, http.StatusUnauthorized, map[string]any{
			"error":    err.Error(),
			"code":     http.StatusUnauthorized,
			"redirect": LoginPath,
		})
		return
	case errors.Is(err, service.ErrSessionNotFound),
		errors.Is(err, service.ErrConfigNotFound),
		errors.Is(err, quest.ErrUnknownQuest),
		errors.Is(err, sim.ErrUnknownNPC):
		respondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, service.ErrPermissionDenied):
		respondError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, quest.ErrQuestLocked),
		errors.Is(err, quest.ErrActivityInProgress),
		errors.Is(err, quest.ErrNoActivity),
		errors.Is(err, quest.ErrWrongStage),
		errors.Is(err, quest.ErrHintUnavailable),
		errors.Is(err, sim.ErrClosed):
		respondError(w, http.StatusConflict, err.Error())
	case service.IsScriptFailure(err):
		respondError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, service.ErrInvalidRequest),
		errors.Is(err, quest.ErrInvalidChoice),
		errors.Is(err, gateway.ErrInvalidID):
		respondError(w, http.StatusBadRequest, err.Error())
	default:
		log.WithError(err).Error("Request failed")
		respondError(w, http.StatusInternalServerError, err.Error())
	}
}

// decode reads an optional JSON body into v.
func decode(r *http.Request, v any) error {
	if r.Body == nil {
		return nil
	}
	if err := json.NewDecoder(r.Body).Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: %v", service.ErrInvalidRequest, err)
	}
	return nil
}

func (s *Server) pushState(sessionID string, state *sim.View) {
	if s.hub != nil && state != nil {
		s.hub.BroadcastToSession(sessionID, state)
	}
}

// Session Handlers

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req service.CreateSessionRequest
	if err := decode(r, &req); err != nil {
		respondServiceError(w, err)
		return
	}

	session, err := s.service.CreateSession(r.Context(), req)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, session)
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := s.service.ListSessions(r.Context())
	if err != nil {
		respondServiceError(w, err)
		return
	}
	total := len(sessions)

	query := r.URL.Query()
	sortBy := query.Get("sort")    // "created", "accessed" (default)
	order := query.Get("order")    // "asc", "desc" (default)
	limitStr := query.Get("limit") // number of sessions to return

	if sortBy == "" {
		sortBy = "accessed"
	}
	if order == "" {
		order = "desc"
	}
	if world := query.Get("world"); world != "" {
		filtered := sessions[:0]
		for _, session := range sessions {
			if session.ConfigID == world {
				filtered = append(filtered, session)
			}
		}
		sessions = filtered
	}

	sort.Slice(sessions, func(i, j int) bool {
		var ti, tj time.Time
		if sortBy == "created" {
			ti, tj = sessions[i].CreatedAt, sessions[j].CreatedAt
		} else {
			ti, tj = sessions[i].LastAccessedAt, sessions[j].LastAccessedAt
		}

		if order == "asc" {
			return ti.Before(tj)
		}
		return ti.After(tj)
	})

	if limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 && l < len(sessions) {
			sessions = sessions[:l]
		}
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"count":    len(sessions),
		"total":    total,
		"sessions": sessions,
		"sort":     sortBy,
		"order":    order,
	})
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	session, err := s.service.GetSession(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, session)
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["id"]

	if err := s.service.DeleteSession(r.Context(), sessionID); err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{
		"message": fmt.Sprintf("Session %s deleted", sessionID),
	})
}

// Simulation Handlers

func (s *Server) handleGetState(w http.ResponseWriter, r *http.Request) {
	state, err := s.service.GetState(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, state)
}

func (s *Server) handleStep(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["id"]

	var req service.StepRequest
	if err := decode(r, &req); err != nil {
		respondServiceError(w, err)
		return
	}

	result, err := s.service.Step(r.Context(), sessionID, req)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	s.pushState(sessionID, &result.State)
	log.WithFields(log.Fields{
		"session": sessionID,
		"ticks":   result.Ticks,
		"from":    fmt.Sprintf("(%.1f,%.1f)", result.StartPos.X, result.StartPos.Y),
		"to":      fmt.Sprintf("(%.1f,%.1f)", result.EndPos.X, result.EndPos.Y),
		"blocked": len(result.BlockedBy) > 0,
	}).Info("Step")

	respondJSON(w, http.StatusOK, result)
}

func (s *Server) handleInput(w http.ResponseWriter, r *http.Request) {
	var in sim.Input
	if err := decode(r, &in); err != nil {
		respondServiceError(w, err)
		return
	}

	if err := s.service.SetInput(r.Context(), mux.Vars(r)["id"], in); err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusAccepted, map[string]any{"input": in})
}

func (s *Server) handleInteract(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["id"]

	var req struct {
		NPCID string `json:"npc_id,omitempty"`
	}
	if err := decode(r, &req); err != nil {
		respondServiceError(w, err)
		return
	}

	result, err := s.service.Interact(r.Context(), sessionID, req.NPCID)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	s.pushState(sessionID, &result.State)
	respondJSON(w, http.StatusOK, result)
}

// Quest Handlers

func (s *Server) respondAction(w http.ResponseWriter, sessionID string, result *service.ActionResult, err error) {
	if err != nil {
		respondServiceError(w, err)
		return
	}
	s.pushState(sessionID, &result.State)
	respondJSON(w, http.StatusOK, result)
}

func (s *Server) handleStartQuest(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	result, err := s.service.StartQuest(r.Context(), vars["id"], vars["quest"])
	s.respondAction(w, vars["id"], result, err)
}

func (s *Server) handleAdvanceLesson(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["id"]
	result, err := s.service.AdvanceLesson(r.Context(), sessionID)
	s.respondAction(w, sessionID, result, err)
}

func (s *Server) handleAnswerQuiz(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["id"]

	var req struct {
		Choice *int `json:"choice"`
	}
	if err := decode(r, &req); err != nil {
		respondServiceError(w, err)
		return
	}
	if req.Choice == nil {
		respondError(w, http.StatusBadRequest, "choice is required")
		return
	}

	result, err := s.service.AnswerQuiz(r.Context(), sessionID, *req.Choice)
	s.respondAction(w, sessionID, result, err)
}

type codeRequest struct {
	Code string `json:"code"`
}

func (s *Server) handleRunChallenge(w http.ResponseWriter, r *http.Request) {
	var req codeRequest
	if err := decode(r, &req); err != nil {
		respondServiceError(w, err)
		return
	}

	result, err := s.service.RunChallenge(r.Context(), mux.Vars(r)["id"], req.Code)
	if err != nil && result != nil {
		respondJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"error":  err.Error(),
			"code":   http.StatusUnprocessableEntity,
			"output": result.Output,
			"lines":  result.Lines,
		})
		return
	}
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, result)
}

func (s *Server) handleSubmitChallenge(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["id"]

	var req codeRequest
	if err := decode(r, &req); err != nil {
		respondServiceError(w, err)
		return
	}

	result, err := s.service.SubmitChallenge(r.Context(), sessionID, req.Code)
	s.respondAction(w, sessionID, result, err)
}

func (s *Server) handleHint(w http.ResponseWriter, r *http.Request) {
	hint, err := s.service.Hint(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"hint": hint})
}

func (s *Server) handleRunFromQuest(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["id"]
	result, err := s.service.RunFromQuest(r.Context(), sessionID)
	s.respondAction(w, sessionID, result, err)
}

// World Handlers

func (s *Server) handleToggleOverride(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["id"]

	var key overrides.TileKey
	if err := decode(r, &key); err != nil {
		respondServiceError(w, err)
		return
	}
	if key.Layer == "" {
		respondError(w, http.StatusBadRequest, "layer is required")
		return
	}

	result, err := s.service.ToggleOverride(r.Context(), sessionID, key)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	if s.hub != nil {
		s.hub.BroadcastWorld(result.World, websocket.EventOverrides, result)
	}
	respondJSON(w, http.StatusOK, result)
}

func (s *Server) handleListOverrides(w http.ResponseWriter, r *http.Request) {
	entries, err := s.service.ListOverrides(r.Context(), mux.Vars(r)["world"])
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, gateway.OverridesPayload{Overrides: entries})
}

// Save Handlers

func (s *Server) handleSave(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["id"]

	if err := s.service.Save(r.Context(), sessionID); err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"message": "Game saved"})
}

func (s *Server) handleDeleteSave(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["id"]

	state, err := s.service.DeleteSave(r.Context(), sessionID)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	s.pushState(sessionID, state)
	respondJSON(w, http.StatusOK, map[string]any{
		"message": "Save deleted, starting over",
		"state":   state,
	})
}

// Configuration Handlers

func (s *Server) handleListConfigs(w http.ResponseWriter, r *http.Request) {
	configs, err := s.service.ListConfigs(r.Context())
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, configs)
}

func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	configName := strings.TrimSuffix(mux.Vars(r)["name"], ".json")

	config, err := s.service.LoadConfig(r.Context(), configName)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, config)
}

// WebSocket Handler

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if s.hub == nil {
		http.Error(w, "websocket disabled", http.StatusNotFound)
		return
	}
	sessionID := r.URL.Query().Get("session")
	if sessionID == "" {
		http.Error(w, "session parameter required", http.StatusBadRequest)
		return
	}

	session, err := s.service.GetSession(r.Context(), sessionID)
	if err != nil {
		http.Error(w, "Invalid session", http.StatusNotFound)
		return
	}

	s.hub.ServeWS(w, r, session.ID, session.ConfigID)
}

// Health check
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
	})
}

// bearer rejects requests without the backend token.
func bearer(token string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if token != "" {
			got := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
			if subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
				respondError(w, http.StatusUnauthorized, "invalid backend token")
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}
