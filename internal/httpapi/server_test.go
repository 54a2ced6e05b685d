package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gmarchetti/aria/internal/config"
	"github.com/gmarchetti/aria/internal/observability"
	"github.com/gmarchetti/aria/internal/preview"
	"github.com/gmarchetti/aria/internal/protocol"
	"github.com/gmarchetti/aria/internal/session"
	"github.com/gmarchetti/aria/internal/settings"
	"github.com/gmarchetti/aria/internal/token"
	"github.com/gmarchetti/aria/internal/transcript"
	"github.com/gmarchetti/aria/internal/voice"
)

type stubTokens struct{ err error }

func (s stubTokens) FetchCredential(context.Context) (token.Credential, error) {
	if s.err != nil {
		return token.Credential{}, s.err
	}
	return token.Credential{Token: "tok-1", ExpiresAt: time.Now().Add(time.Hour)}, nil
}

type stubPreviewer struct {
	clip preview.Clip
	err  error
	text string
}

func (s *stubPreviewer) Preview(_ context.Context, text, voiceID string) (preview.Clip, error) {
	s.text = text
	if s.err != nil {
		return preview.Clip{}, s.err
	}
	return s.clip, nil
}

type testEnv struct {
	server     *httptest.Server
	transport  *voice.MockTransport
	controller *session.Controller
	settings   *settings.Store
	transcript *transcript.Aggregator
	previewer  *stubPreviewer
}

func newTestEnv(t *testing.T, tokens session.TokenSource) *testEnv {
	t.Helper()
	cfg := config.Config{AccountKey: "default", SettingsDir: t.TempDir()}
	store := settings.NewStore(settings.SessionSettings{VoiceID: "ito", SystemPrompt: "base"})
	transport := voice.NewMockTransport()
	metrics := observability.NewTestMetrics()
	controller := session.NewController(tokens, store, transport, metrics)
	agg := transcript.New()
	controller.RegisterSink(func(evt any, _ string) { agg.OnEvent(evt) })
	previewer := &stubPreviewer{clip: preview.Clip{Audio: []byte("RIFF"), MIMEType: "audio/wav"}}
	persistence := settings.NewFileStore(cfg.SettingsDir)

	srv := New(cfg, controller, store, persistence, agg, previewer, metrics)
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(func() {
		ts.Close()
		controller.Disconnect()
	})
	return &testEnv{
		server:     ts,
		transport:  transport,
		controller: controller,
		settings:   store,
		transcript: agg,
		previewer:  previewer,
	}
}

func (e *testEnv) post(t *testing.T, path string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	res, err := http.Post(e.server.URL+path, "application/json", &buf)
	if err != nil {
		t.Fatalf("POST %s error = %v", path, err)
	}
	return res
}

func (e *testEnv) get(t *testing.T, path string) *http.Response {
	t.Helper()
	res, err := http.Get(e.server.URL + path)
	if err != nil {
		t.Fatalf("GET %s error = %v", path, err)
	}
	return res
}

func decodeBody(t *testing.T, res *http.Response, out any) {
	t.Helper()
	defer res.Body.Close()
	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

func TestConnectLifecycle(t *testing.T) {
	env := newTestEnv(t, stubTokens{})

	res := env.post(t, "/v1/session/connect", nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("connect status = %d, want 200", res.StatusCode)
	}
	var snap session.Snapshot
	decodeBody(t, res, &snap)
	if snap.State != session.StateConnected {
		t.Fatalf("state = %q, want connected", snap.State)
	}

	res = env.post(t, "/v1/session/connect", nil)
	if res.StatusCode != http.StatusConflict {
		t.Fatalf("second connect status = %d, want 409", res.StatusCode)
	}
	var e errorResponse
	decodeBody(t, res, &e)
	if e.Code != "already_active" {
		t.Fatalf("error code = %q, want already_active", e.Code)
	}

	res = env.post(t, "/v1/session/disconnect", nil)
	decodeBody(t, res, &snap)
	if snap.State != session.StateIdle {
		t.Fatalf("state after disconnect = %q, want idle", snap.State)
	}

	// Disconnect is idempotent.
	res = env.post(t, "/v1/session/disconnect", nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("repeat disconnect status = %d, want 200", res.StatusCode)
	}
	res.Body.Close()
}

func TestConnectTokenFailure(t *testing.T) {
	env := newTestEnv(t, stubTokens{err: token.ErrTokenUnavailable})

	res := env.post(t, "/v1/session/connect", nil)
	if res.StatusCode != http.StatusBadGateway {
		t.Fatalf("connect status = %d, want 502", res.StatusCode)
	}
	var e errorResponse
	decodeBody(t, res, &e)
	if e.Code != "token_unavailable" {
		t.Fatalf("error code = %q, want token_unavailable", e.Code)
	}
	if env.transport.OpenCount() != 0 {
		t.Fatalf("transport opened %d times, want 0", env.transport.OpenCount())
	}
}

func TestTogglesRequireActiveSession(t *testing.T) {
	env := newTestEnv(t, stubTokens{})

	var out struct {
		MicMuted bool             `json:"mic_muted"`
		Snapshot session.Snapshot `json:"snapshot"`
	}
	res := env.post(t, "/v1/session/mic", nil)
	decodeBody(t, res, &out)
	if out.MicMuted {
		t.Fatalf("mic toggle while idle should stay unmuted")
	}

	env.post(t, "/v1/session/connect", nil).Body.Close()
	res = env.post(t, "/v1/session/mic", nil)
	decodeBody(t, res, &out)
	if !out.MicMuted {
		t.Fatalf("mic toggle while connected should mute")
	}
	conn := env.transport.LastConn()
	found := false
	for _, c := range conn.Controls {
		if mc, ok := c.(voice.MicControl); ok && mc.Muted {
			found = true
		}
	}
	if !found {
		t.Fatalf("mic mute was not signaled to the transport: %v", conn.Controls)
	}
}

func TestSetVolumeClampsAndValidates(t *testing.T) {
	env := newTestEnv(t, stubTokens{})
	env.post(t, "/v1/session/connect", nil).Body.Close()

	var out struct {
		Volume float64 `json:"volume"`
	}
	res := env.post(t, "/v1/session/volume", map[string]float64{"volume": 2.5})
	decodeBody(t, res, &out)
	if out.Volume != 1 {
		t.Fatalf("volume = %v, want clamp to 1", out.Volume)
	}

	res = env.post(t, "/v1/session/volume", nil)
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("empty volume body status = %d, want 400", res.StatusCode)
	}
	res.Body.Close()
}

func TestPatchSettingsHotPatchesPrompt(t *testing.T) {
	env := newTestEnv(t, stubTokens{})
	env.post(t, "/v1/session/connect", nil).Body.Close()

	prompt := "be brief"
	req, err := http.NewRequest(http.MethodPatch, env.server.URL+"/v1/settings", bytes.NewReader(mustJSON(t, map[string]string{"system_prompt": prompt})))
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	patchRes, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("PATCH error = %v", err)
	}
	var updated settings.SessionSettings
	decodeBody(t, patchRes, &updated)
	if updated.SystemPrompt != prompt {
		t.Fatalf("SystemPrompt = %q, want %q", updated.SystemPrompt, prompt)
	}

	conn := env.transport.LastConn()
	got := conn.SentSettingsUpdates()
	if len(got) != 1 || got[0] != prompt {
		t.Fatalf("settings updates = %v, want one %q", got, prompt)
	}
}

func TestSaveAndRestoreSettings(t *testing.T) {
	env := newTestEnv(t, stubTokens{})

	env.post(t, "/v1/settings/save", nil).Body.Close()

	voiceID := "kora"
	env.settings.Set(settings.Patch{VoiceID: &voiceID})

	res := env.post(t, "/v1/settings/restore", nil)
	var restored settings.SessionSettings
	decodeBody(t, res, &restored)
	if restored.VoiceID != "ito" {
		t.Fatalf("restored VoiceID = %q, want ito", restored.VoiceID)
	}
}

func TestTranscriptEndpoints(t *testing.T) {
	env := newTestEnv(t, stubTokens{})

	env.transcript.OnEvent(protocol.AssistantProsody{
		Type: protocol.TypeAssistantProsody,
		Scores: protocol.ProsodyScores{
			{Name: "joy", Score: 0.8},
			{Name: "calm", Score: 0.5},
		},
	})
	env.transcript.OnEvent(protocol.UserMessage{Type: protocol.TypeUserMessage, Text: "hi"})

	var tr transcriptResponse
	res := env.get(t, "/v1/transcript")
	decodeBody(t, res, &tr)
	if len(tr.Entries) != 1 || tr.Entries[0].Text != "hi" {
		t.Fatalf("transcript = %+v", tr.Entries)
	}

	var em emotionsResponse
	res = env.get(t, "/v1/transcript/emotions?n=1")
	decodeBody(t, res, &em)
	if len(em.Emotions) != 1 || em.Emotions[0].Name != "joy" {
		t.Fatalf("emotions = %+v", em.Emotions)
	}

	res = env.get(t, "/v1/transcript/emotions?n=zero")
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("bad n status = %d, want 400", res.StatusCode)
	}
	res.Body.Close()
}

func TestPreviewEndpoint(t *testing.T) {
	env := newTestEnv(t, stubTokens{})

	res := env.post(t, "/v1/preview", map[string]string{"text": "Hello"})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("preview status = %d, want 200", res.StatusCode)
	}
	if ct := res.Header.Get("Content-Type"); ct != "audio/wav" {
		t.Fatalf("Content-Type = %q, want audio/wav", ct)
	}
	res.Body.Close()
	if env.previewer.text != "Hello" {
		t.Fatalf("previewer received %q, want Hello", env.previewer.text)
	}

	res = env.post(t, "/v1/preview", map[string]string{"text": "  "})
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("empty text status = %d, want 400", res.StatusCode)
	}
	res.Body.Close()

	env.previewer.err = errors.New("voice service down")
	res = env.post(t, "/v1/preview", map[string]string{"text": "Hello"})
	if res.StatusCode != http.StatusBadGateway {
		t.Fatalf("failed preview status = %d, want 502", res.StatusCode)
	}
	res.Body.Close()
}

func mustJSON(t *testing.T, v any) []byte {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return data
}
