package httpapi

import (
	"errors"
	"net/http"

	"github.com/gmarchetti/aria/internal/session"
	"github.com/gmarchetti/aria/internal/token"
)

func (s *Server) handleConnect(w http.ResponseWriter, r *http.Request) {
	if err := s.controller.Connect(r.Context()); err != nil {
		switch {
		case errors.Is(err, session.ErrAlreadyActive):
			respondError(w, http.StatusConflict, "already_active", err.Error())
		case errors.Is(err, session.ErrNotIdle):
			respondError(w, http.StatusConflict, "not_idle", "disconnect first to clear the error state")
		case errors.Is(err, session.ErrConnectAborted):
			respondError(w, http.StatusConflict, "connect_aborted", err.Error())
		case errors.Is(err, token.ErrTokenUnavailable):
			respondError(w, http.StatusBadGateway, "token_unavailable", err.Error())
		case errors.Is(err, session.ErrOpenFailed):
			respondError(w, http.StatusBadGateway, "open_failed", err.Error())
		default:
			respondError(w, http.StatusInternalServerError, "connect_failed", err.Error())
		}
		return
	}
	respondJSON(w, http.StatusOK, s.controller.Snapshot())
}

func (s *Server) handleDisconnect(w http.ResponseWriter, _ *http.Request) {
	s.controller.Disconnect()
	respondJSON(w, http.StatusOK, s.controller.Snapshot())
}

func (s *Server) handleState(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, s.controller.Snapshot())
}

func (s *Server) handleToggleMic(w http.ResponseWriter, r *http.Request) {
	muted := s.controller.ToggleMic(r.Context())
	respondJSON(w, http.StatusOK, map[string]any{
		"mic_muted": muted,
		"snapshot":  s.controller.Snapshot(),
	})
}

func (s *Server) handleToggleOutput(w http.ResponseWriter, r *http.Request) {
	muted := s.controller.ToggleOutputAudio(r.Context())
	respondJSON(w, http.StatusOK, map[string]any{
		"audio_muted": muted,
		"snapshot":    s.controller.Snapshot(),
	})
}

func (s *Server) handleTogglePause(w http.ResponseWriter, r *http.Request) {
	paused := s.controller.ToggleAssistantPause(r.Context())
	respondJSON(w, http.StatusOK, map[string]any{
		"assistant_paused": paused,
		"snapshot":         s.controller.Snapshot(),
	})
}

type volumeRequest struct {
	Volume float64 `json:"volume"`
}

func (s *Server) handleSetVolume(w http.ResponseWriter, r *http.Request) {
	var req volumeRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	applied := s.controller.SetVolume(r.Context(), req.Volume)
	respondJSON(w, http.StatusOK, map[string]any{
		"volume":   applied,
		"snapshot": s.controller.Snapshot(),
	})
}
