package httpapi

import (
	"errors"
	"net/http"

	"github.com/gmarchetti/aria/internal/settings"
)

func (s *Server) handleGetSettings(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, s.settings.Get())
}

func (s *Server) handlePatchSettings(w http.ResponseWriter, r *http.Request) {
	var patch settings.Patch
	if err := decodeJSON(r, &patch); err != nil && !errors.Is(err, errEmptyBody) {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	updated := s.settings.Set(patch)
	// Push prompt changes into the live session; the controller skips the
	// send when nothing changed or no session is connected.
	if err := s.controller.ApplySettingsPatch(r.Context(), updated); err != nil {
		respondError(w, http.StatusBadGateway, "apply_failed", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, updated)
}

func (s *Server) handleSaveSettings(w http.ResponseWriter, r *http.Request) {
	if err := s.settings.Persist(r.Context(), s.persistence, s.cfg.AccountKey); err != nil {
		respondError(w, http.StatusInternalServerError, "save_failed", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, s.settings.Get())
}

func (s *Server) handleRestoreSettings(w http.ResponseWriter, r *http.Request) {
	if err := s.settings.LoadDefaults(r.Context(), s.persistence, s.cfg.AccountKey); err != nil {
		respondError(w, http.StatusInternalServerError, "restore_failed", err.Error())
		return
	}
	restored := s.settings.Get()
	if err := s.controller.ApplySettingsPatch(r.Context(), restored); err != nil {
		respondError(w, http.StatusBadGateway, "apply_failed", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, restored)
}
