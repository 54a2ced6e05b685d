package settings

import (
	"context"
	"strings"
)

// Persistence stores serialized settings snapshots keyed by a caller
// identity (a user id for account-scoped stores, any stable key locally).
type Persistence interface {
	Load(ctx context.Context, key string) (SessionSettings, bool, error)
	Save(ctx context.Context, key string, snapshot SessionSettings) error
	Close() error
}

// NewPersistence creates an account-scoped postgres store when configured,
// otherwise a local file store.
func NewPersistence(ctx context.Context, databaseURL, dir string) (Persistence, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return NewFileStore(dir), nil
	}
	return NewPostgresStore(ctx, databaseURL)
}
