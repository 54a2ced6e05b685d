package settings

import (
	"context"
	"sync"
)

// SessionSettings is the mutable configuration applied to voice sessions.
// VoiceID and LowLatency are connect-time-only; SystemPrompt may be
// hot-patched into a live session.
type SessionSettings struct {
	VoiceID         string `json:"voice_id"`
	SystemPrompt    string `json:"system_prompt"`
	AssistantStarts bool   `json:"assistant_starts"`
	ArchiveAudio    bool   `json:"archive_audio"`
	LowLatency      bool   `json:"low_latency"`
	IntroLine       string `json:"intro_line"`
}

// Patch is a shallow partial update; nil fields are left untouched.
type Patch struct {
	VoiceID         *string `json:"voice_id"`
	SystemPrompt    *string `json:"system_prompt"`
	AssistantStarts *bool   `json:"assistant_starts"`
	ArchiveAudio    *bool   `json:"archive_audio"`
	LowLatency      *bool   `json:"low_latency"`
	IntroLine       *string `json:"intro_line"`
}

// Store holds the current settings snapshot. Mutations are pure in-memory;
// persistence only happens through explicit LoadDefaults/Persist calls.
type Store struct {
	mu      sync.RWMutex
	current SessionSettings
}

func NewStore(defaults SessionSettings) *Store {
	return &Store{current: defaults}
}

func (s *Store) Get() SessionSettings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Set applies a shallow merge and returns the resulting snapshot.
func (s *Store) Set(p Patch) SessionSettings {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.VoiceID != nil {
		s.current.VoiceID = *p.VoiceID
	}
	if p.SystemPrompt != nil {
		s.current.SystemPrompt = *p.SystemPrompt
	}
	if p.AssistantStarts != nil {
		s.current.AssistantStarts = *p.AssistantStarts
	}
	if p.ArchiveAudio != nil {
		s.current.ArchiveAudio = *p.ArchiveAudio
	}
	if p.LowLatency != nil {
		s.current.LowLatency = *p.LowLatency
	}
	if p.IntroLine != nil {
		s.current.IntroLine = *p.IntroLine
	}
	return s.current
}

// LoadDefaults replaces the snapshot with a previously saved one when the
// source has it; a missing snapshot leaves the store unchanged.
func (s *Store) LoadDefaults(ctx context.Context, p Persistence, key string) error {
	loaded, ok, err := p.Load(ctx, key)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	s.mu.Lock()
	s.current = loaded
	s.mu.Unlock()
	return nil
}

// Persist writes the current snapshot to the given sink.
func (s *Store) Persist(ctx context.Context, p Persistence, key string) error {
	return p.Save(ctx, key, s.Get())
}
