package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/sagars2004/Flowstate/core"
	"github.com/sagars2004/Flowstate/db"
	"github.com/sagars2004/Flowstate/inference"
)

// healthPayload is the /api/health response body.
type healthPayload struct {
	Status    string                   `json:"status"`
	Degraded  bool                     `json:"degraded"`
	RateLimit *inference.RateLimitStats `json:"rate_limit,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	payload := healthPayload{Status: "ok", Degraded: s.deps.Stats == nil}
	if s.deps.Stats != nil {
		stats := s.deps.Stats.Stats()
		payload.RateLimit = &stats
	}
	respondJSON(w, http.StatusOK, payload)
}

// handleIngestEvent accepts one activity event and hands it to the
// orchestrator's inbound channel. Accepted means queued, not yet
// analyzed; a full channel sheds load with 503 rather than blocking
// the extension's event loop.
func (s *Server) handleIngestEvent(w http.ResponseWriter, r *http.Request) {
	var event core.ActivityEvent
	if err := json.NewDecoder(r.Body).Decode(&event); err != nil {
		respondError(w, http.StatusBadRequest, "invalid event payload")
		return
	}
	if event.SessionID == "" {
		respondError(w, http.StatusBadRequest, "session_id is required")
		return
	}
	if event.Type == "" {
		respondError(w, http.StatusBadRequest, "event_type is required")
		return
	}

	select {
	case s.deps.Orchestrator.Events() <- event:
		respondJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
	default:
		s.deps.Logger.Warn("event channel full, shedding load",
			zap.String("session_id", event.SessionID))
		respondError(w, http.StatusServiceUnavailable, "ingestion backlogged, retry later")
	}
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	session, err := s.deps.Sessions.Get(r.Context(), chi.URLParam(r, "sessionID"))
	if errors.Is(err, db.ErrSessionNotFound) {
		respondError(w, http.StatusNotFound, "session not found")
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to load session")
		return
	}
	respondJSON(w, http.StatusOK, session)
}

// handleEndSession closes the session and returns the full analysis
// report. Idempotent at the store level; the report is recomputed on
// repeat calls.
func (s *Server) handleEndSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	report, err := s.deps.Orchestrator.EndSession(r.Context(), sessionID)
	if errors.Is(err, db.ErrSessionNotFound) {
		respondError(w, http.StatusNotFound, "session not found")
		return
	}
	if err != nil {
		s.deps.Logger.Errorw("failed to end session",
			zap.String("session_id", sessionID), zap.Error(err))
		respondError(w, http.StatusInternalServerError, "failed to end session")
		return
	}
	respondJSON(w, http.StatusOK, report)
}

func (s *Server) handleInterventionHistory(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	messages, err := s.deps.Interventions.FindBySessionID(r.Context(), sessionID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to load intervention history")
		return
	}
	if messages == nil {
		messages = []core.InterventionMessage{}
	}
	respondJSON(w, http.StatusOK, messages)
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	if sessionID == "" {
		respondError(w, http.StatusBadRequest, "session ID is required")
		return
	}
	s.deps.Hub.HandleConnection(w, r, sessionID)
}

func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
