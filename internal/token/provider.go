package token

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// ErrTokenUnavailable signals that no usable session credential could be
// minted; the connection attempt must abort.
var ErrTokenUnavailable = errors.New("token unavailable")

// Credential authorizes exactly one realtime session. It is never cached:
// every connection attempt fetches a fresh one.
type Credential struct {
	Token     string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Provider mints ephemeral credentials from the token service.
type Provider struct {
	url    string
	apiKey string
	client *http.Client
}

func NewProvider(url, apiKey string) *Provider {
	return &Provider{
		url:    strings.TrimSpace(url),
		apiKey: strings.TrimSpace(apiKey),
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// FetchCredential performs a single idempotent request against the token
// service. Callers retry by calling it again.
func (p *Provider) FetchCredential(ctx context.Context) (Credential, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, nil)
	if err != nil {
		return Credential{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if p.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	res, err := p.client.Do(req)
	if err != nil {
		return Credential{}, fmt.Errorf("%w: %v", ErrTokenUnavailable, err)
	}
	defer res.Body.Close()

	body, err := io.ReadAll(io.LimitReader(res.Body, 64<<10))
	if err != nil {
		return Credential{}, fmt.Errorf("%w: read response: %v", ErrTokenUnavailable, err)
	}

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		msg := serviceMessage(body)
		if msg == "" {
			msg = fmt.Sprintf("status %d", res.StatusCode)
		}
		return Credential{}, fmt.Errorf("%w: %s", ErrTokenUnavailable, msg)
	}

	var payload struct {
		Token     string `json:"token"`
		ExpiresIn int64  `json:"expires_in"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return Credential{}, fmt.Errorf("%w: malformed body: %v", ErrTokenUnavailable, err)
	}
	if strings.TrimSpace(payload.Token) == "" {
		return Credential{}, fmt.Errorf("%w: empty token", ErrTokenUnavailable)
	}

	cred := Credential{
		Token:    payload.Token,
		IssuedAt: time.Now().UTC(),
	}
	if payload.ExpiresIn > 0 {
		cred.ExpiresAt = cred.IssuedAt.Add(time.Duration(payload.ExpiresIn) * time.Second)
	}
	return cred, nil
}

func serviceMessage(body []byte) string {
	var payload struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return ""
	}
	if strings.TrimSpace(payload.Message) != "" {
		return strings.TrimSpace(payload.Message)
	}
	return strings.TrimSpace(payload.Error)
}
