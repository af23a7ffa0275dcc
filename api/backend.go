package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"

	"github.com/wricardo/codequest/game/gateway"
)

// maxSnapshotBytes bounds an uploaded snapshot.
const maxSnapshotBytes = 1 << 20

// setupBackendRoutes serves the persistence contract to remote game servers.
// Their HTTPGateway is the client of these routes.
func (s *Server) setupBackendRoutes() {
	backend := s.router.PathPrefix("/backend").Subrouter()
	backend.Use(func(next http.Handler) http.Handler { return bearer(s.backendToken, next) })

	backend.HandleFunc("/players", s.handleBackendPlayers).Methods("GET")
	backend.HandleFunc("/players/{player}/snapshot", s.handleBackendLoadSnapshot).Methods("GET")
	backend.HandleFunc("/players/{player}/snapshot", s.handleBackendSaveSnapshot).Methods("PUT")
	backend.HandleFunc("/players/{player}/snapshot", s.handleBackendDeleteSnapshot).Methods("DELETE")
	backend.HandleFunc("/players/{player}/completions", s.handleBackendCompletions).Methods("GET")
	backend.HandleFunc("/players/{player}/completions", s.handleBackendRecordCompletion).Methods("POST")
	backend.HandleFunc("/worlds/{world}/overrides", s.handleBackendLoadOverrides).Methods("GET")
	backend.HandleFunc("/worlds/{world}/overrides", s.handleBackendSaveOverrides).Methods("PUT")
}

func respondBackendError(w http.ResponseWriter, err error) {
	if errors.Is(err, gateway.ErrInvalidID) {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	log.WithError(err).Error("Backend request failed")
	respondError(w, http.StatusInternalServerError, err.Error())
}

func (s *Server) handleBackendPlayers(w http.ResponseWriter, r *http.Request) {
	players, err := s.backend.Players(r.Context())
	if err != nil {
		respondBackendError(w, err)
		return
	}
	if players == nil {
		players = []string{}
	}
	respondJSON(w, http.StatusOK, map[string]any{"players": players})
}

func (s *Server) handleBackendLoadSnapshot(w http.ResponseWriter, r *http.Request) {
	snap, err := s.backend.LoadSnapshot(r.Context(), mux.Vars(r)["player"])
	if err != nil {
		respondBackendError(w, err)
		return
	}
	if snap == nil {
		respondError(w, http.StatusNotFound, "no save")
		return
	}
	respondJSON(w, http.StatusOK, snap)
}

// handleBackendSaveSnapshot merges the upload into the stored snapshot and
// returns the result.
func (s *Server) handleBackendSaveSnapshot(w http.ResponseWriter, r *http.Request) {
	player := mux.Vars(r)["player"]

	raw, err := io.ReadAll(io.LimitReader(r.Body, maxSnapshotBytes))
	if err != nil {
		respondError(w, http.StatusBadRequest, "failed to read body")
		return
	}
	snap := gateway.Decode(raw)
	if snap == nil {
		respondError(w, http.StatusBadRequest, "malformed snapshot")
		return
	}

	if err := s.backend.SaveSnapshot(r.Context(), player, *snap); err != nil {
		respondBackendError(w, err)
		return
	}
	merged, err := s.backend.LoadSnapshot(r.Context(), player)
	if err != nil {
		respondBackendError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, merged)
}

func (s *Server) handleBackendDeleteSnapshot(w http.ResponseWriter, r *http.Request) {
	if err := s.backend.DeleteSnapshot(r.Context(), mux.Vars(r)["player"]); err != nil {
		respondBackendError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleBackendCompletions(w http.ResponseWriter, r *http.Request) {
	completions, err := s.backend.Completions(r.Context(), mux.Vars(r)["player"])
	if err != nil {
		respondBackendError(w, err)
		return
	}
	if completions == nil {
		completions = []gateway.Completion{}
	}
	respondJSON(w, http.StatusOK, map[string]any{"completions": completions})
}

func (s *Server) handleBackendRecordCompletion(w http.ResponseWriter, r *http.Request) {
	var rec gateway.Completion
	if err := json.NewDecoder(r.Body).Decode(&rec); err != nil || rec.QuestID == "" {
		respondError(w, http.StatusBadRequest, "invalid completion")
		return
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}

	if err := s.backend.RecordQuestCompletion(r.Context(), mux.Vars(r)["player"], rec); err != nil {
		respondBackendError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, rec)
}

func (s *Server) handleBackendLoadOverrides(w http.ResponseWriter, r *http.Request) {
	entries, err := s.backend.LoadOverrides(r.Context(), mux.Vars(r)["world"])
	if err != nil {
		respondBackendError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, gateway.OverridesPayload{Overrides: gateway.EntriesFromMap(entries)})
}

func (s *Server) handleBackendSaveOverrides(w http.ResponseWriter, r *http.Request) {
	var payload gateway.OverridesPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		respondError(w, http.StatusBadRequest, "invalid overrides")
		return
	}

	world := mux.Vars(r)["world"]
	if err := s.backend.SaveOverrides(r.Context(), world, gateway.MapFromEntries(payload.Overrides)); err != nil {
		respondBackendError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, payload)
}
