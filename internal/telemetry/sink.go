package telemetry

import (
	"context"
	"fmt"
	"strings"
)

// Sink accepts envelopes one at a time, fire-and-forget. Implementations
// must treat Send failures as their caller's problem to swallow.
type Sink interface {
	Send(ctx context.Context, env Envelope) error
	Close() error
}

// NewSink selects a sink strategy: "http" posts to a collector URL,
// "journal" appends to a local SQLite file, "off" discards.
func NewSink(ctx context.Context, mode, url, journalPath string) (Sink, error) {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case "", "off":
		return NopSink{}, nil
	case "http":
		if strings.TrimSpace(url) == "" {
			return nil, fmt.Errorf("telemetry mode http requires a collector url")
		}
		return NewHTTPSink(url), nil
	case "journal":
		return OpenJournal(ctx, journalPath)
	default:
		return nil, fmt.Errorf("invalid telemetry mode: %q (expected http|journal|off)", mode)
	}
}

// NopSink discards everything; used when telemetry is disabled.
type NopSink struct{}

func (NopSink) Send(context.Context, Envelope) error { return nil }
func (NopSink) Close() error                         { return nil }
