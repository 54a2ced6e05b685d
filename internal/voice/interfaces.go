package voice

import "context"

// AudioConstraints describes the capture pipeline requested at session open.
type AudioConstraints struct {
	EchoCancellation bool `json:"echo_cancellation"`
	NoiseSuppression bool `json:"noise_suppression"`
	AutoGainControl  bool `json:"auto_gain_control"`
}

// ConstraintsFor derives capture constraints from the low-latency flag.
// Automatic gain control adds processing delay, so it is traded away when
// low latency is requested.
func ConstraintsFor(lowLatency bool) AudioConstraints {
	return AudioConstraints{
		EchoCancellation: true,
		NoiseSuppression: true,
		AutoGainControl:  !lowLatency,
	}
}

// OpenOptions parameterizes one realtime session. Token is single-use.
type OpenOptions struct {
	Token        string
	VoiceID      string
	Constraints  AudioConstraints
	SystemPrompt string
}

// Conn is an open realtime session. Events delivers inbound messages in
// arrival order; the channel closes when the session ends, whether by
// Close or by an unexpected transport drop.
type Conn interface {
	Events() <-chan any
	SetMicMuted(ctx context.Context, muted bool) error
	SetOutputMuted(ctx context.Context, muted bool) error
	SetAssistantPaused(ctx context.Context, paused bool) error
	SetVolume(ctx context.Context, volume float64) error
	SendAssistantText(ctx context.Context, text string) error
	UpdateSessionSettings(ctx context.Context, systemPrompt string) error
	Close() error
}

// Transport opens realtime sessions against the voice conversation backend.
type Transport interface {
	Open(ctx context.Context, opts OpenOptions) (Conn, error)
}
