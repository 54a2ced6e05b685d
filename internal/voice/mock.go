package voice

import (
	"context"
	"sync"
)

// MockTransport is an in-process transport used by tests and by local runs
// without a backend configured.
type MockTransport struct {
	mu      sync.Mutex
	openErr error
	conns   []*MockConn
}

func NewMockTransport() *MockTransport { return &MockTransport{} }

// FailOpenWith makes subsequent Open calls fail with err.
func (t *MockTransport) FailOpenWith(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.openErr = err
}

func (t *MockTransport) Open(_ context.Context, opts OpenOptions) (Conn, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.openErr != nil {
		return nil, t.openErr
	}
	c := &MockConn{
		Opts:   opts,
		events: make(chan any, 64),
	}
	t.conns = append(t.conns, c)
	return c, nil
}

// LastConn returns the most recently opened connection, if any.
func (t *MockTransport) LastConn() *MockConn {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.conns) == 0 {
		return nil
	}
	return t.conns[len(t.conns)-1]
}

func (t *MockTransport) OpenCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.conns)
}

// MockConn records every outbound control message and lets tests inject
// inbound events or simulate a transport drop.
type MockConn struct {
	Opts OpenOptions

	mu       sync.Mutex
	events   chan any
	closed   bool
	Controls []any
}

func (c *MockConn) Events() <-chan any { return c.events }

// Deliver pushes an inbound event as if the backend had sent it.
func (c *MockConn) Deliver(evt any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.events <- evt
}

// Drop simulates an unexpected transport loss: the event channel closes
// without Close having been called.
func (c *MockConn) Drop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.events)
}

func (c *MockConn) record(msg any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.Controls = append(c.Controls, msg)
	return nil
}

type MicControl struct{ Muted bool }
type OutputControl struct{ Muted bool }
type PauseControl struct{ Paused bool }
type VolumeControl struct{ Volume float64 }
type AssistantText struct{ Text string }
type SettingsUpdate struct{ SystemPrompt string }

func (c *MockConn) SetMicMuted(_ context.Context, muted bool) error {
	return c.record(MicControl{Muted: muted})
}

func (c *MockConn) SetOutputMuted(_ context.Context, muted bool) error {
	return c.record(OutputControl{Muted: muted})
}

func (c *MockConn) SetAssistantPaused(_ context.Context, paused bool) error {
	return c.record(PauseControl{Paused: paused})
}

func (c *MockConn) SetVolume(_ context.Context, volume float64) error {
	return c.record(VolumeControl{Volume: volume})
}

func (c *MockConn) SendAssistantText(_ context.Context, text string) error {
	return c.record(AssistantText{Text: text})
}

func (c *MockConn) UpdateSessionSettings(_ context.Context, systemPrompt string) error {
	return c.record(SettingsUpdate{SystemPrompt: systemPrompt})
}

func (c *MockConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	close(c.events)
	return nil
}

// SentSettingsUpdates returns every hot-patch prompt in send order.
func (c *MockConn) SentSettingsUpdates() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []string
	for _, msg := range c.Controls {
		if u, ok := msg.(SettingsUpdate); ok {
			out = append(out, u.SystemPrompt)
		}
	}
	return out
}

// SentAssistantTexts returns every scripted utterance in send order.
func (c *MockConn) SentAssistantTexts() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []string
	for _, msg := range c.Controls {
		if u, ok := msg.(AssistantText); ok {
			out = append(out, u.Text)
		}
	}
	return out
}
