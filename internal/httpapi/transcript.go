package httpapi

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gmarchetti/aria/internal/protocol"
	"github.com/gmarchetti/aria/internal/transcript"
)

type transcriptResponse struct {
	Entries []transcript.Entry `json:"entries"`
}

func (s *Server) handleTranscript(w http.ResponseWriter, _ *http.Request) {
	entries := s.transcript.Snapshot()
	if entries == nil {
		entries = []transcript.Entry{}
	}
	respondJSON(w, http.StatusOK, transcriptResponse{Entries: entries})
}

type emotionsResponse struct {
	Emotions []protocol.EmotionScore `json:"emotions"`
}

func (s *Server) handleTopEmotions(w http.ResponseWriter, r *http.Request) {
	n := 0
	if raw := strings.TrimSpace(r.URL.Query().Get("n")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			respondError(w, http.StatusBadRequest, "invalid_request", "n must be a positive integer")
			return
		}
		n = parsed
	}
	scores := s.transcript.TopEmotions(n)
	if scores == nil {
		scores = []protocol.EmotionScore{}
	}
	respondJSON(w, http.StatusOK, emotionsResponse{Emotions: scores})
}
