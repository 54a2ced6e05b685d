package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gmarchetti/aria/internal/observability"
	"github.com/gmarchetti/aria/internal/protocol"
	"github.com/gmarchetti/aria/internal/settings"
	"github.com/gmarchetti/aria/internal/token"
	"github.com/gmarchetti/aria/internal/voice"
)

// State is the lifecycle position of the realtime session.
type State string

const (
	StateIdle       State = "idle"
	StateConnecting State = "connecting"
	StateConnected  State = "connected"
	StateError      State = "error"
)

var (
	// ErrAlreadyActive rejects a Connect issued while a session is
	// connecting or connected; two simultaneous sessions are never allowed.
	ErrAlreadyActive = errors.New("session already active")
	// ErrNotIdle rejects a Connect issued from the error state; callers
	// reset with Disconnect first.
	ErrNotIdle = errors.New("session not idle")
	// ErrConnectAborted reports a Connect cut short by a concurrent
	// Disconnect; the controller is back at idle.
	ErrConnectAborted = errors.New("connect aborted")
	// ErrOpenFailed wraps failures while establishing the realtime session.
	ErrOpenFailed = errors.New("transport open failed")
	// ErrTransportDropped records an established session lost unexpectedly.
	ErrTransportDropped = errors.New("transport dropped")
)

// Snapshot is an immutable view of controller state handed to observers.
type Snapshot struct {
	State           State   `json:"state"`
	MicMuted        bool    `json:"mic_muted"`
	AudioMuted      bool    `json:"audio_muted"`
	AssistantPaused bool    `json:"assistant_paused"`
	Volume          float64 `json:"volume"`
	ChatID          string  `json:"chat_id,omitempty"`
	LastError       string  `json:"last_error,omitempty"`
}

// TokenSource mints one credential per connection attempt.
type TokenSource interface {
	FetchCredential(ctx context.Context) (token.Credential, error)
}

// EventSink receives every inbound event of the active session, in arrival
// order. Sinks must not block: slow consumers buffer internally.
type EventSink func(evt any, chatID string)

// Controller owns the realtime connection lifecycle. It is a plain state
// machine with subscribe/notify semantics; no UI binding.
type Controller struct {
	tokens    TokenSource
	settings  *settings.Store
	transport voice.Transport
	metrics   *observability.Metrics

	mu                sync.Mutex
	state             State
	micMuted          bool
	audioMuted        bool
	assistantPaused   bool
	volume            float64
	chatID            string
	lastErr           error
	lastAppliedPrompt string
	conn              voice.Conn
	cancel            context.CancelFunc
	gen               uint64

	subMu   sync.Mutex
	subs    map[int]chan Snapshot
	nextSub int
	sinks   []EventSink
}

func NewController(tokens TokenSource, store *settings.Store, transport voice.Transport, metrics *observability.Metrics) *Controller {
	return &Controller{
		tokens:    tokens,
		settings:  store,
		transport: transport,
		metrics:   metrics,
		state:     StateIdle,
		volume:    1,
		subs:      make(map[int]chan Snapshot),
	}
}

// RegisterSink adds a consumer for inbound events. Register before the
// first Connect; sinks live for the controller's lifetime.
func (c *Controller) RegisterSink(sink EventSink) {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	c.sinks = append(c.sinks, sink)
}

// Subscribe returns a buffered channel of state snapshots and an
// unsubscribe function. Laggy subscribers miss intermediate snapshots
// rather than blocking the state machine.
func (c *Controller) Subscribe() (<-chan Snapshot, func()) {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	id := c.nextSub
	c.nextSub++
	ch := make(chan Snapshot, 16)
	c.subs[id] = ch
	return ch, func() {
		c.subMu.Lock()
		defer c.subMu.Unlock()
		delete(c.subs, id)
	}
}

// Snapshot returns the current state, sub-flags included.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

func (c *Controller) snapshotLocked() Snapshot {
	s := Snapshot{
		State:           c.state,
		MicMuted:        c.micMuted,
		AudioMuted:      c.audioMuted,
		AssistantPaused: c.assistantPaused,
		Volume:          c.volume,
		ChatID:          c.chatID,
	}
	if c.lastErr != nil {
		s.LastError = c.lastErr.Error()
	}
	return s
}

func (c *Controller) notify(s Snapshot) {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	for _, ch := range c.subs {
		select {
		case ch <- s:
		default:
		}
	}
}

func (c *Controller) setStateLocked(s State) {
	c.state = s
	if c.metrics != nil {
		c.metrics.StateTransitions.WithLabelValues(string(s)).Inc()
		if s == StateConnected {
			c.metrics.SessionActive.Set(1)
		} else {
			c.metrics.SessionActive.Set(0)
		}
	}
}

// Connect establishes a realtime session. Legal only from idle. A failed
// attempt is terminal for that attempt: the caller decides whether to
// Disconnect and call Connect again.
func (c *Controller) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.state == StateConnecting || c.state == StateConnected {
		c.mu.Unlock()
		return ErrAlreadyActive
	}
	if c.state != StateIdle {
		c.mu.Unlock()
		return ErrNotIdle
	}
	c.lastErr = nil
	c.chatID = ""
	c.setStateLocked(StateConnecting)
	c.gen++
	gen := c.gen
	snap := c.snapshotLocked()
	c.mu.Unlock()
	c.notify(snap)

	started := time.Now()
	cred, err := c.tokens.FetchCredential(ctx)
	if err != nil {
		return c.failConnect(gen, err)
	}

	cfg := c.settings.Get()
	conn, err := c.transport.Open(ctx, voice.OpenOptions{
		Token:        cred.Token,
		VoiceID:      cfg.VoiceID,
		Constraints:  voice.ConstraintsFor(cfg.LowLatency),
		SystemPrompt: cfg.SystemPrompt,
	})
	if err != nil {
		return c.failConnect(gen, fmt.Errorf("%w: %v", ErrOpenFailed, err))
	}

	c.mu.Lock()
	if c.gen != gen || c.state != StateConnecting {
		// A concurrent Disconnect won the race; release the session.
		c.mu.Unlock()
		_ = conn.Close()
		return ErrConnectAborted
	}
	runCtx, cancel := context.WithCancel(context.Background())
	c.conn = conn
	c.cancel = cancel
	c.micMuted = false
	c.audioMuted = false
	c.assistantPaused = false
	c.volume = 1
	c.lastAppliedPrompt = cfg.SystemPrompt
	c.setStateLocked(StateConnected)
	snap = c.snapshotLocked()
	c.mu.Unlock()
	c.notify(snap)

	if c.metrics != nil {
		c.metrics.ObserveConnectLatency(time.Since(started))
	}

	// Output audio starts unmuted regardless of previous session flags.
	_ = conn.SetOutputMuted(ctx, false)
	if cfg.AssistantStarts && cfg.IntroLine != "" {
		_ = conn.SendAssistantText(ctx, cfg.IntroLine)
	}

	go c.run(runCtx, conn, gen)
	return nil
}

func (c *Controller) failConnect(gen uint64, err error) error {
	c.mu.Lock()
	if c.gen != gen || c.state != StateConnecting {
		c.mu.Unlock()
		return ErrConnectAborted
	}
	c.lastErr = err
	c.setStateLocked(StateError)
	snap := c.snapshotLocked()
	c.mu.Unlock()
	c.notify(snap)
	return err
}

// run pumps inbound events until the connection ends. A closed event
// channel without a matching Disconnect means the transport dropped.
func (c *Controller) run(ctx context.Context, conn voice.Conn, gen uint64) {
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-conn.Events():
			if !ok {
				c.handleDrop(gen)
				return
			}
			c.dispatch(evt, gen)
		}
	}
}

func (c *Controller) dispatch(evt any, gen uint64) {
	c.mu.Lock()
	if c.gen != gen || c.state != StateConnected {
		// Stale generation: a Disconnect already completed.
		c.mu.Unlock()
		return
	}
	if meta, ok := evt.(protocol.ChatMetadata); ok {
		c.chatID = meta.ChatID
	}
	chatID := c.chatID
	c.mu.Unlock()

	if chatID == "" {
		chatID = "unknown"
	}
	if c.metrics != nil {
		if env, ok := typeOf(evt); ok {
			c.metrics.InboundEvents.WithLabelValues(string(env)).Inc()
		}
	}

	c.subMu.Lock()
	sinks := make([]EventSink, len(c.sinks))
	copy(sinks, c.sinks)
	c.subMu.Unlock()
	for _, sink := range sinks {
		sink(evt, chatID)
	}
}

func (c *Controller) handleDrop(gen uint64) {
	c.mu.Lock()
	if c.gen != gen || c.state != StateConnected {
		c.mu.Unlock()
		return
	}
	c.conn = nil
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	c.micMuted = false
	c.audioMuted = false
	c.assistantPaused = false
	c.volume = 1
	c.lastErr = ErrTransportDropped
	c.setStateLocked(StateError)
	snap := c.snapshotLocked()
	c.mu.Unlock()
	c.notify(snap)
}

// Disconnect tears the session down and returns to idle. Safe to call from
// any state, including mid-Connect; idempotent at idle.
func (c *Controller) Disconnect() {
	c.mu.Lock()
	if c.state == StateIdle {
		c.mu.Unlock()
		return
	}
	conn := c.conn
	cancel := c.cancel
	c.conn = nil
	c.cancel = nil
	c.gen++
	c.micMuted = false
	c.audioMuted = false
	c.assistantPaused = false
	c.volume = 1
	c.chatID = ""
	c.lastErr = nil
	c.lastAppliedPrompt = ""
	c.setStateLocked(StateIdle)
	snap := c.snapshotLocked()
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if conn != nil {
		_ = conn.Close()
	}
	c.notify(snap)
}

// ApplySettingsPatch re-sends the system prompt to the live session when it
// differs from the most recently applied value. Connect-time-only fields
// (voice, low-latency) are ignored here. No-op unless connected.
func (c *Controller) ApplySettingsPatch(ctx context.Context, cfg settings.SessionSettings) error {
	c.mu.Lock()
	if c.state != StateConnected || c.conn == nil {
		c.mu.Unlock()
		return nil
	}
	if cfg.SystemPrompt == c.lastAppliedPrompt {
		c.mu.Unlock()
		return nil
	}
	conn := c.conn
	c.lastAppliedPrompt = cfg.SystemPrompt
	c.mu.Unlock()

	return conn.UpdateSessionSettings(ctx, cfg.SystemPrompt)
}

// ToggleMic flips microphone mute. No-op unless connected, so UI wiring
// can call it unconditionally.
func (c *Controller) ToggleMic(ctx context.Context) bool {
	c.mu.Lock()
	if c.state != StateConnected || c.conn == nil {
		c.mu.Unlock()
		return false
	}
	c.micMuted = !c.micMuted
	muted := c.micMuted
	conn := c.conn
	snap := c.snapshotLocked()
	c.mu.Unlock()

	_ = conn.SetMicMuted(ctx, muted)
	c.notify(snap)
	return muted
}

// ToggleOutputAudio flips assistant audio output mute. No-op unless connected.
func (c *Controller) ToggleOutputAudio(ctx context.Context) bool {
	c.mu.Lock()
	if c.state != StateConnected || c.conn == nil {
		c.mu.Unlock()
		return false
	}
	c.audioMuted = !c.audioMuted
	muted := c.audioMuted
	conn := c.conn
	snap := c.snapshotLocked()
	c.mu.Unlock()

	_ = conn.SetOutputMuted(ctx, muted)
	c.notify(snap)
	return muted
}

// ToggleAssistantPause flips assistant pause. No-op unless connected.
func (c *Controller) ToggleAssistantPause(ctx context.Context) bool {
	c.mu.Lock()
	if c.state != StateConnected || c.conn == nil {
		c.mu.Unlock()
		return false
	}
	c.assistantPaused = !c.assistantPaused
	paused := c.assistantPaused
	conn := c.conn
	snap := c.snapshotLocked()
	c.mu.Unlock()

	_ = conn.SetAssistantPaused(ctx, paused)
	c.notify(snap)
	return paused
}

// SetVolume clamps v to [0,1] and applies it. No-op unless connected.
func (c *Controller) SetVolume(ctx context.Context, v float64) float64 {
	if v < 0 {
		v = 0
	} else if v > 1 {
		v = 1
	}

	c.mu.Lock()
	if c.state != StateConnected || c.conn == nil {
		vol := c.volume
		c.mu.Unlock()
		return vol
	}
	c.volume = v
	conn := c.conn
	snap := c.snapshotLocked()
	c.mu.Unlock()

	_ = conn.SetVolume(ctx, v)
	c.notify(snap)
	return v
}

func typeOf(evt any) (protocol.MessageType, bool) {
	switch m := evt.(type) {
	case protocol.ChatMetadata:
		return m.Type, true
	case protocol.UserMessage:
		return m.Type, true
	case protocol.AssistantMessage:
		return m.Type, true
	case protocol.AssistantProsody:
		return m.Type, true
	case protocol.AudioOutput:
		return m.Type, true
	default:
		return "", false
	}
}
