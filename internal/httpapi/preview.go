package httpapi

import (
	"net/http"
	"strings"
)

type previewRequest struct {
	VoiceID string `json:"voice_id"`
	Text    string `json:"text"`
}

func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	if s.previewer == nil {
		respondError(w, http.StatusNotImplemented, "unavailable", "preview synthesizer not configured")
		return
	}

	var req previewRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	text := strings.TrimSpace(req.Text)
	if text == "" {
		respondError(w, http.StatusBadRequest, "invalid_request", "text is required")
		return
	}
	voiceID := strings.TrimSpace(req.VoiceID)
	if voiceID == "" {
		voiceID = s.settings.Get().VoiceID
	}

	clip, err := s.previewer.Preview(r.Context(), text, voiceID)
	if err != nil {
		respondError(w, http.StatusBadGateway, "preview_failed", err.Error())
		return
	}

	w.Header().Set("Content-Type", clip.MIMEType)
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(clip.Audio)
}
