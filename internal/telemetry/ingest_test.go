package telemetry

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gmarchetti/aria/internal/observability"
	"github.com/gmarchetti/aria/internal/protocol"
	"github.com/gmarchetti/aria/internal/settings"
)

// captureSink delivers every envelope to a channel so tests can wait on
// the async worker.
type captureSink struct {
	envelopes chan Envelope
	err       error
}

func newCaptureSink() *captureSink {
	return &captureSink{envelopes: make(chan Envelope, 32)}
}

func (s *captureSink) Send(_ context.Context, env Envelope) error {
	if s.err != nil {
		return s.err
	}
	s.envelopes <- env
	return nil
}

func (s *captureSink) Close() error { return nil }

func (s *captureSink) next(t *testing.T) Envelope {
	t.Helper()
	select {
	case env := <-s.envelopes:
		return env
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for envelope")
		return Envelope{}
	}
}

func (s *captureSink) expectNone(t *testing.T) {
	t.Helper()
	select {
	case env := <-s.envelopes:
		t.Fatalf("unexpected envelope %q", env.Type)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestIngestForwardsMessages(t *testing.T) {
	sink := newCaptureSink()
	store := settings.NewStore(settings.SessionSettings{})
	ing := NewIngest(sink, store, observability.NewTestMetrics())
	defer ing.Close()

	ing.OnEvent(protocol.UserMessage{Type: protocol.TypeUserMessage, Text: "hi"}, "c1")

	env := sink.next(t)
	if env.Type != string(protocol.TypeUserMessage) {
		t.Fatalf("envelope type = %q, want user_message", env.Type)
	}
	if env.ChatID != "c1" {
		t.Fatalf("envelope chat id = %q, want c1", env.ChatID)
	}
	if env.ID == "" || env.Timestamp.IsZero() {
		t.Fatalf("envelope missing id/timestamp: %+v", env)
	}
	var payload protocol.UserMessage
	if err := json.Unmarshal(env.Payload, &payload); err != nil {
		t.Fatalf("payload decode error = %v", err)
	}
	if payload.Text != "hi" {
		t.Fatalf("payload text = %q, want hi", payload.Text)
	}
}

func TestIngestEmitsSessionStartOncePerChat(t *testing.T) {
	sink := newCaptureSink()
	store := settings.NewStore(settings.SessionSettings{VoiceID: "ito", SystemPrompt: "be kind"})
	ing := NewIngest(sink, store, observability.NewTestMetrics())
	defer ing.Close()

	meta := protocol.ChatMetadata{Type: protocol.TypeChatMetadata, ChatID: "c1", ChatGroupID: "g7"}
	ing.OnEvent(meta, "c1")
	ing.OnEvent(meta, "c1")

	env := sink.next(t)
	if env.Type != TypeSessionStart {
		t.Fatalf("envelope type = %q, want session_start", env.Type)
	}
	var payload SessionStart
	if err := json.Unmarshal(env.Payload, &payload); err != nil {
		t.Fatalf("payload decode error = %v", err)
	}
	if payload.ChatGroupID != "g7" || payload.VoiceID != "ito" || payload.SystemPrompt != "be kind" {
		t.Fatalf("session_start payload = %+v", payload)
	}
	sink.expectNone(t)
}

func TestIngestGatesAudioOnArchiveFlag(t *testing.T) {
	sink := newCaptureSink()
	store := settings.NewStore(settings.SessionSettings{ArchiveAudio: false})
	ing := NewIngest(sink, store, observability.NewTestMetrics())
	defer ing.Close()

	audio := protocol.AudioOutput{Type: protocol.TypeAudioOutput, Data: []byte{1, 2, 3}}
	ing.OnEvent(audio, "c1")
	sink.expectNone(t)

	archive := true
	store.Set(settings.Patch{ArchiveAudio: &archive})
	ing.OnEvent(audio, "c1")

	env := sink.next(t)
	if env.Type != string(protocol.TypeAudioOutput) {
		t.Fatalf("envelope type = %q, want audio_output", env.Type)
	}
}

func TestIngestSwallowsSendFailures(t *testing.T) {
	sink := newCaptureSink()
	sink.err = errors.New("collector down")
	store := settings.NewStore(settings.SessionSettings{})
	ing := NewIngest(sink, store, observability.NewTestMetrics())

	ing.OnEvent(protocol.UserMessage{Type: protocol.TypeUserMessage, Text: "hi"}, "c1")
	// Close drains the queue; a send failure must not panic or block.
	ing.Close()
}

func TestIngestIgnoresEventsAfterClose(t *testing.T) {
	sink := newCaptureSink()
	store := settings.NewStore(settings.SessionSettings{})
	ing := NewIngest(sink, store, observability.NewTestMetrics())
	ing.Close()

	ing.OnEvent(protocol.UserMessage{Type: protocol.TypeUserMessage, Text: "late"}, "c1")
	sink.expectNone(t)
}

func TestHTTPSinkPostsEnvelope(t *testing.T) {
	received := make(chan Envelope, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var env Envelope
		if err := json.NewDecoder(r.Body).Decode(&env); err != nil {
			t.Errorf("decode error = %v", err)
		}
		received <- env
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	s := NewHTTPSink(srv.URL)
	env, err := newEnvelope("c1", "user_message", map[string]string{"text": "hi"})
	if err != nil {
		t.Fatalf("newEnvelope() error = %v", err)
	}
	if err := s.Send(context.Background(), env); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	got := <-received
	if got.ChatID != "c1" || got.Type != "user_message" {
		t.Fatalf("received envelope = %+v", got)
	}
}

func TestHTTPSinkReportsCollectorErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	s := NewHTTPSink(srv.URL)
	env, _ := newEnvelope("c1", "user_message", nil)
	if err := s.Send(context.Background(), env); err == nil {
		t.Fatalf("Send() should surface non-2xx status")
	}
}

func TestNewSinkSelectsStrategy(t *testing.T) {
	ctx := context.Background()
	if _, err := NewSink(ctx, "http", "", ""); err == nil {
		t.Fatalf("http mode without url should fail")
	}
	if _, err := NewSink(ctx, "carrier-pigeon", "", ""); err == nil {
		t.Fatalf("unknown mode should fail")
	}
	s, err := NewSink(ctx, "off", "", "")
	if err != nil {
		t.Fatalf("NewSink(off) error = %v", err)
	}
	if _, ok := s.(NopSink); !ok {
		t.Fatalf("NewSink(off) = %T, want NopSink", s)
	}
}
