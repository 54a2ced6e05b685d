package preview

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gmarchetti/aria/internal/audio"
)

// ErrSynthesisFailed wraps every upstream failure so callers can treat
// preview synthesis as a single recoverable error.
var ErrSynthesisFailed = errors.New("voice preview synthesis failed")

// Clip holds a short synthesized sample ready to hand to a player.
type Clip struct {
	Audio    []byte
	MIMEType string
}

// Synthesizer renders short text samples in a given voice. It is
// stateless and carries no session identity.
type Synthesizer struct {
	url    string
	apiKey string
	format string
	client *http.Client
}

func NewSynthesizer(url, apiKey, format string) *Synthesizer {
	if format == "" {
		format = "wav"
	}
	return &Synthesizer{
		url:    url,
		apiKey: apiKey,
		format: format,
		client: &http.Client{Timeout: 20 * time.Second},
	}
}

type previewRequest struct {
	Text    string `json:"text"`
	VoiceID string `json:"voice_id"`
	Format  string `json:"format"`
}

// Preview synthesizes text with voiceID and returns the raw clip.
// Empty text is rejected before any network call.
func (s *Synthesizer) Preview(ctx context.Context, text, voiceID string) (Clip, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Clip{}, fmt.Errorf("%w: empty text", ErrSynthesisFailed)
	}
	if voiceID == "" {
		return Clip{}, fmt.Errorf("%w: missing voice id", ErrSynthesisFailed)
	}

	body, err := json.Marshal(previewRequest{Text: text, VoiceID: voiceID, Format: s.format})
	if err != nil {
		return Clip{}, fmt.Errorf("%w: %v", ErrSynthesisFailed, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return Clip{}, fmt.Errorf("%w: %v", ErrSynthesisFailed, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.apiKey)
	}

	res, err := s.client.Do(req)
	if err != nil {
		return Clip{}, fmt.Errorf("%w: %v", ErrSynthesisFailed, err)
	}
	defer res.Body.Close()

	data, err := io.ReadAll(io.LimitReader(res.Body, 8<<20))
	if err != nil {
		return Clip{}, fmt.Errorf("%w: %v", ErrSynthesisFailed, err)
	}
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return Clip{}, fmt.Errorf("%w: status %d: %s", ErrSynthesisFailed, res.StatusCode, strings.TrimSpace(string(data)))
	}
	if len(data) == 0 {
		return Clip{}, fmt.Errorf("%w: empty audio response", ErrSynthesisFailed)
	}

	// Raw PCM responses get wrapped so browsers can play them directly.
	if rate, ok := audio.PCMSampleRate(s.format); ok {
		wav, err := audio.EncodeWAVPCM16LE(data, rate)
		if err != nil {
			return Clip{}, fmt.Errorf("%w: %v", ErrSynthesisFailed, err)
		}
		return Clip{Audio: wav, MIMEType: "audio/wav"}, nil
	}

	// Servers that omit the header get sniffed to application/octet-stream;
	// in both cases the configured format is more specific.
	mime := res.Header.Get("Content-Type")
	if mime == "" || strings.HasPrefix(mime, "application/") {
		mime = mimeForFormat(s.format)
	}
	return Clip{Audio: data, MIMEType: mime}, nil
}

func mimeForFormat(format string) string {
	f := strings.ToLower(strings.TrimSpace(format))
	switch {
	case strings.Contains(f, "wav"):
		return "audio/wav"
	case strings.Contains(f, "mp3"):
		return "audio/mpeg"
	case strings.Contains(f, "ogg"):
		return "audio/ogg"
	default:
		return "application/octet-stream"
	}
}
