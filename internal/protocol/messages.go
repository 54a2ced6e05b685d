package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
)

// MessageType identifies realtime payload variants on the backend stream.
type MessageType string

const (
	// Inbound from the voice backend.
	TypeChatMetadata     MessageType = "chat_metadata"
	TypeUserMessage      MessageType = "user_message"
	TypeAssistantMessage MessageType = "assistant_message"
	TypeAssistantProsody MessageType = "assistant_prosody"
	TypeAudioOutput      MessageType = "audio_output"

	// Outbound control messages.
	TypeSessionSettings MessageType = "session_settings"
	TypeAssistantInput  MessageType = "assistant_input"
	TypePauseAssistant  MessageType = "pause_assistant"
	TypeResumeAssistant MessageType = "resume_assistant"
	TypeAudioControl    MessageType = "audio_control"
)

var ErrUnsupportedType = errors.New("unsupported message type")

type Envelope struct {
	Type MessageType `json:"type"`
}

// EmotionScore is one named prosody estimate for a speech segment.
type EmotionScore struct {
	Name  string  `json:"name"`
	Score float64 `json:"score"`
}

// ProsodyScores preserves the wire order of the emotion map so that
// tie-breaks between equal scores stay deterministic.
type ProsodyScores []EmotionScore

func (p *ProsodyScores) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		*p = nil
		return nil
	}

	dec := json.NewDecoder(bytes.NewReader(trimmed))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return errors.New("prosody scores must be a JSON object")
	}

	out := make(ProsodyScores, 0, 8)
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := keyTok.(string)
		if !ok {
			return errors.New("prosody score key must be a string")
		}
		var score float64
		if err := dec.Decode(&score); err != nil {
			return fmt.Errorf("prosody score %q: %w", key, err)
		}
		out = append(out, EmotionScore{Name: key, Score: score})
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	*p = out
	return nil
}

func (p ProsodyScores) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, e := range p {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(e.Name)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		val, err := json.Marshal(e.Score)
		if err != nil {
			return nil, err
		}
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Top returns the highest-scoring emotion. Ties keep the earlier entry.
func (p ProsodyScores) Top() (EmotionScore, bool) {
	if len(p) == 0 {
		return EmotionScore{}, false
	}
	best := p[0]
	for _, e := range p[1:] {
		if e.Score > best.Score {
			best = e
		}
	}
	return best, true
}

// TopN returns the n highest-scoring emotions in descending score order.
// Equal scores keep their original relative order.
func (p ProsodyScores) TopN(n int) []EmotionScore {
	if n <= 0 || len(p) == 0 {
		return nil
	}
	out := make([]EmotionScore, len(p))
	copy(out, p)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Score > out[j].Score
	})
	if n < len(out) {
		out = out[:n]
	}
	return out
}

type ChatMetadata struct {
	Type        MessageType `json:"type"`
	ChatID      string      `json:"chat_id"`
	ChatGroupID string      `json:"chat_group_id"`
}

type UserMessage struct {
	Type    MessageType   `json:"type"`
	Text    string        `json:"text"`
	Interim bool          `json:"interim"`
	Prosody ProsodyScores `json:"prosody,omitempty"`
}

type AssistantMessage struct {
	Type    MessageType   `json:"type"`
	Text    string        `json:"text"`
	Prosody ProsodyScores `json:"prosody,omitempty"`
}

type AssistantProsody struct {
	Type   MessageType   `json:"type"`
	Scores ProsodyScores `json:"scores"`
}

type AudioOutput struct {
	Type MessageType `json:"type"`
	Data []byte      `json:"data"`
}

// SessionSettings hot-patches the live session without a reconnect.
type SessionSettings struct {
	Type         MessageType `json:"type"`
	SystemPrompt string      `json:"system_prompt"`
}

// AssistantInput makes the assistant speak the given text verbatim.
type AssistantInput struct {
	Type MessageType `json:"type"`
	Text string      `json:"text"`
}

type PauseAssistant struct {
	Type MessageType `json:"type"`
}

type ResumeAssistant struct {
	Type MessageType `json:"type"`
}

// AudioControl carries mic/output mute state and playback volume changes.
type AudioControl struct {
	Type   MessageType `json:"type"`
	Action string      `json:"action"`
	Volume float64     `json:"volume,omitempty"`
}

const (
	AudioActionMuteMic      = "mute_mic"
	AudioActionUnmuteMic    = "unmute_mic"
	AudioActionMuteOutput   = "mute_output"
	AudioActionUnmuteOutput = "unmute_output"
	AudioActionSetVolume    = "set_volume"
)

// ParseServerMessage decodes one inbound frame from the voice backend.
func ParseServerMessage(raw []byte) (any, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("invalid envelope: %w", err)
	}

	switch env.Type {
	case TypeChatMetadata:
		var msg ChatMetadata
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		if msg.ChatID == "" {
			return nil, errors.New("invalid chat_metadata")
		}
		return msg, nil
	case TypeUserMessage:
		var msg UserMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		return msg, nil
	case TypeAssistantMessage:
		var msg AssistantMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		return msg, nil
	case TypeAssistantProsody:
		var msg AssistantProsody
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		return msg, nil
	case TypeAudioOutput:
		var msg AudioOutput
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		if len(msg.Data) == 0 {
			return nil, errors.New("invalid audio_output")
		}
		return msg, nil
	default:
		return nil, ErrUnsupportedType
	}
}
