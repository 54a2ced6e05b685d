package settings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// FileStore keeps one JSON snapshot per key under a local directory.
type FileStore struct {
	dir string
}

func NewFileStore(dir string) *FileStore {
	if strings.TrimSpace(dir) == "" {
		dir = ".aria"
	}
	return &FileStore{dir: dir}
}

func (f *FileStore) Load(_ context.Context, key string) (SessionSettings, bool, error) {
	data, err := os.ReadFile(f.path(key))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return SessionSettings{}, false, nil
		}
		return SessionSettings{}, false, fmt.Errorf("read settings: %w", err)
	}
	var snapshot SessionSettings
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return SessionSettings{}, false, fmt.Errorf("decode settings: %w", err)
	}
	return snapshot, true, nil
}

func (f *FileStore) Save(_ context.Context, key string, snapshot SessionSettings) error {
	if err := os.MkdirAll(f.dir, 0o755); err != nil {
		return fmt.Errorf("create settings dir: %w", err)
	}
	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}
	tmp := f.path(key) + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}
	if err := os.Rename(tmp, f.path(key)); err != nil {
		return fmt.Errorf("commit settings: %w", err)
	}
	return nil
}

func (f *FileStore) Close() error { return nil }

func (f *FileStore) path(key string) string {
	key = strings.TrimSpace(key)
	if key == "" {
		key = "default"
	}
	// Keys come from user ids; keep the filename flat.
	key = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, key)
	return filepath.Join(f.dir, key+".json")
}
