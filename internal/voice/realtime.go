package voice

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/gmarchetti/aria/internal/protocol"
)

type RealtimeConfig struct {
	WSBaseURL string
}

// RealtimeTransport speaks the backend's websocket protocol.
type RealtimeTransport struct {
	cfg RealtimeConfig
}

func NewRealtimeTransport(cfg RealtimeConfig) *RealtimeTransport {
	if strings.TrimSpace(cfg.WSBaseURL) == "" {
		cfg.WSBaseURL = "wss://api.aria.dev"
	}
	return &RealtimeTransport{cfg: cfg}
}

func (t *RealtimeTransport) Open(ctx context.Context, opts OpenOptions) (Conn, error) {
	if strings.TrimSpace(opts.Token) == "" {
		return nil, fmt.Errorf("access token is required")
	}

	u, err := url.Parse(strings.TrimRight(t.cfg.WSBaseURL, "/") + "/v1/conversation/stream")
	if err != nil {
		return nil, err
	}
	q := u.Query()
	q.Set("access_token", opts.Token)
	if strings.TrimSpace(opts.VoiceID) != "" {
		q.Set("voice_id", opts.VoiceID)
	}
	u.RawQuery = q.Encode()

	headers := http.Header{}
	headers.Set("Accept", "application/json")

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), headers)
	if err != nil {
		return nil, fmt.Errorf("dial conversation websocket: %w", err)
	}

	c := &realtimeConn{conn: conn, events: make(chan any, 256)}
	go c.readLoop()

	// The backend expects session setup as the first frame.
	if err := c.writeJSON(map[string]any{
		"type":              "session_setup",
		"system_prompt":     opts.SystemPrompt,
		"audio_constraints": opts.Constraints,
	}); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("send session setup: %w", err)
	}
	return c, nil
}

type realtimeConn struct {
	conn      *websocket.Conn
	writeMu   sync.Mutex
	closeOnce sync.Once
	events    chan any
}

func (c *realtimeConn) Events() <-chan any { return c.events }

// readLoop owns the events channel: it is the only closer, so Close can
// never race a pending delivery.
func (c *realtimeConn) readLoop() {
	defer close(c.events)
	defer c.closeConn()
	for {
		msgType, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}
		parsed, err := protocol.ParseServerMessage(data)
		if err != nil {
			// Unknown or malformed frames are skipped; the stream stays up.
			continue
		}
		c.events <- parsed
	}
}

func (c *realtimeConn) SetMicMuted(_ context.Context, muted bool) error {
	action := protocol.AudioActionUnmuteMic
	if muted {
		action = protocol.AudioActionMuteMic
	}
	return c.writeControl(action, 0)
}

func (c *realtimeConn) SetOutputMuted(_ context.Context, muted bool) error {
	action := protocol.AudioActionUnmuteOutput
	if muted {
		action = protocol.AudioActionMuteOutput
	}
	return c.writeControl(action, 0)
}

func (c *realtimeConn) SetVolume(_ context.Context, volume float64) error {
	return c.writeControl(protocol.AudioActionSetVolume, volume)
}

func (c *realtimeConn) SetAssistantPaused(_ context.Context, paused bool) error {
	if paused {
		return c.writeJSON(protocol.PauseAssistant{Type: protocol.TypePauseAssistant})
	}
	return c.writeJSON(protocol.ResumeAssistant{Type: protocol.TypeResumeAssistant})
}

func (c *realtimeConn) SendAssistantText(_ context.Context, text string) error {
	return c.writeJSON(protocol.AssistantInput{Type: protocol.TypeAssistantInput, Text: text})
}

func (c *realtimeConn) UpdateSessionSettings(_ context.Context, systemPrompt string) error {
	return c.writeJSON(protocol.SessionSettings{Type: protocol.TypeSessionSettings, SystemPrompt: systemPrompt})
}

func (c *realtimeConn) Close() error {
	var retErr error
	c.closeOnce.Do(func() {
		retErr = c.conn.Close()
	})
	return retErr
}

func (c *realtimeConn) closeConn() {
	c.closeOnce.Do(func() {
		_ = c.conn.Close()
	})
}

func (c *realtimeConn) writeControl(action string, volume float64) error {
	return c.writeJSON(protocol.AudioControl{Type: protocol.TypeAudioControl, Action: action, Volume: volume})
}

func (c *realtimeConn) writeJSON(payload any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteJSON(payload)
}
