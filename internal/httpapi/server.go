package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/gmarchetti/aria/internal/config"
	"github.com/gmarchetti/aria/internal/observability"
	"github.com/gmarchetti/aria/internal/preview"
	"github.com/gmarchetti/aria/internal/session"
	"github.com/gmarchetti/aria/internal/settings"
	"github.com/gmarchetti/aria/internal/transcript"
)

// Previewer synthesizes short voice samples outside the live session.
type Previewer interface {
	Preview(ctx context.Context, text, voiceID string) (preview.Clip, error)
}

type Server struct {
	cfg         config.Config
	controller  *session.Controller
	settings    *settings.Store
	persistence settings.Persistence
	transcript  *transcript.Aggregator
	previewer   Previewer
	metrics     *observability.Metrics
}

func New(cfg config.Config, controller *session.Controller, store *settings.Store, persistence settings.Persistence, transcript *transcript.Aggregator, previewer Previewer, metrics *observability.Metrics) *Server {
	return &Server{
		cfg:         cfg,
		controller:  controller,
		settings:    store,
		persistence: persistence,
		transcript:  transcript,
		previewer:   previewer,
		metrics:     metrics,
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", s.handleHealth)
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		observability.MetricsHandler().ServeHTTP(w, r)
	})

	r.Post("/v1/session/connect", s.handleConnect)
	r.Post("/v1/session/disconnect", s.handleDisconnect)
	r.Get("/v1/session/state", s.handleState)
	r.Post("/v1/session/mic", s.handleToggleMic)
	r.Post("/v1/session/output", s.handleToggleOutput)
	r.Post("/v1/session/pause", s.handleTogglePause)
	r.Post("/v1/session/volume", s.handleSetVolume)

	r.Get("/v1/settings", s.handleGetSettings)
	r.Patch("/v1/settings", s.handlePatchSettings)
	r.Post("/v1/settings/save", s.handleSaveSettings)
	r.Post("/v1/settings/restore", s.handleRestoreSettings)

	r.Get("/v1/transcript", s.handleTranscript)
	r.Get("/v1/transcript/emotions", s.handleTopEmotions)

	r.Post("/v1/preview", s.handlePreview)

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"session": s.controller.Snapshot().State,
	})
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

var errEmptyBody = errors.New("empty body")

func decodeJSON(r *http.Request, out any) error {
	if r.Body == nil {
		return errEmptyBody
	}
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(out); err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "eof") {
			return errEmptyBody
		}
		return err
	}
	return nil
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: message, Code: code})
}
