package telemetry

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// TypeSessionStart tags the synthetic envelope emitted when chat metadata
// first arrives for a session.
const TypeSessionStart = "session_start"

// Envelope is the normalized wrapper around any session event sent to the
// archival sink. Envelopes may arrive out of order; consumers sort by
// timestamp on read.
type Envelope struct {
	ID        string          `json:"id"`
	ChatID    string          `json:"chat_id"`
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp time.Time       `json:"timestamp"`
}

// SessionStart is the payload of the synthetic session_start envelope.
type SessionStart struct {
	ChatGroupID  string `json:"chat_group_id"`
	VoiceID      string `json:"voice_id"`
	SystemPrompt string `json:"system_prompt"`
}

func newEnvelope(chatID, eventType string, payload any) (Envelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{
		ID:        uuid.NewString(),
		ChatID:    chatID,
		Type:      eventType,
		Payload:   raw,
		Timestamp: time.Now().UTC(),
	}, nil
}
