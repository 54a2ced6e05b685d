package telemetry

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/gmarchetti/aria/internal/observability"
	"github.com/gmarchetti/aria/internal/protocol"
	"github.com/gmarchetti/aria/internal/settings"
)

const (
	queueDepth  = 256
	sendTimeout = 15 * time.Second
)

// Ingest forwards inbound session events to the telemetry sink without
// ever touching the realtime path: OnEvent only enqueues, a single worker
// goroutine does the sending, and every failure is swallowed after a log
// line. Envelope order across sends is not guaranteed.
type Ingest struct {
	sink    Sink
	store   *settings.Store
	metrics *observability.Metrics

	queue chan Envelope
	done  chan struct{}

	mu        sync.Mutex
	closed    bool
	announced map[string]bool
}

func NewIngest(sink Sink, store *settings.Store, metrics *observability.Metrics) *Ingest {
	i := &Ingest{
		sink:      sink,
		store:     store,
		metrics:   metrics,
		queue:     make(chan Envelope, queueDepth),
		done:      make(chan struct{}),
		announced: make(map[string]bool),
	}
	go i.worker()
	return i
}

// OnEvent accepts one inbound event, fire-and-forget. chat_metadata is not
// forwarded itself; its first arrival per chat emits a synthetic
// session_start envelope instead.
func (i *Ingest) OnEvent(evt any, chatID string) {
	switch m := evt.(type) {
	case protocol.ChatMetadata:
		i.mu.Lock()
		seen := i.announced[m.ChatID]
		i.announced[m.ChatID] = true
		i.mu.Unlock()
		if seen {
			return
		}
		cfg := i.store.Get()
		i.enqueue(m.ChatID, TypeSessionStart, SessionStart{
			ChatGroupID:  m.ChatGroupID,
			VoiceID:      cfg.VoiceID,
			SystemPrompt: cfg.SystemPrompt,
		})
	case protocol.AudioOutput:
		// Audio is dropped before serialization when archiving is off.
		if !i.store.Get().ArchiveAudio {
			i.count("audio_skipped")
			return
		}
		i.enqueue(chatID, string(m.Type), m)
	case protocol.UserMessage:
		i.enqueue(chatID, string(m.Type), m)
	case protocol.AssistantMessage:
		i.enqueue(chatID, string(m.Type), m)
	case protocol.AssistantProsody:
		i.enqueue(chatID, string(m.Type), m)
	}
}

func (i *Ingest) enqueue(chatID, eventType string, payload any) {
	env, err := newEnvelope(chatID, eventType, payload)
	if err != nil {
		log.Printf("telemetry: encode %s envelope failed: %v", eventType, err)
		i.count("failed")
		return
	}

	i.mu.Lock()
	defer i.mu.Unlock()
	if i.closed {
		return
	}
	select {
	case i.queue <- env:
	default:
		// A saturated queue sheds load instead of stalling the session.
		i.count("dropped")
	}
}

func (i *Ingest) worker() {
	defer close(i.done)
	for env := range i.queue {
		ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
		err := i.sink.Send(ctx, env)
		cancel()
		if err != nil {
			log.Printf("telemetry: send %s envelope failed: %v", env.Type, err)
			i.count("failed")
			continue
		}
		i.count("sent")
	}
}

func (i *Ingest) count(outcome string) {
	if i.metrics != nil {
		i.metrics.TelemetryEnvelopes.WithLabelValues(outcome).Inc()
	}
}

// Close drains the queue and stops the worker.
func (i *Ingest) Close() {
	i.mu.Lock()
	if i.closed {
		i.mu.Unlock()
		return
	}
	i.closed = true
	close(i.queue)
	i.mu.Unlock()
	<-i.done
}
