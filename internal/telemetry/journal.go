package telemetry

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"
)

// Journal appends envelopes to a local SQLite file, for deployments that
// archive on-box instead of shipping to a collector.
type Journal struct {
	db *sql.DB
}

func OpenJournal(ctx context.Context, path string) (*Journal, error) {
	if strings.TrimSpace(path) == "" {
		path = "aria-telemetry.db"
	}

	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create journal dir: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	j := &Journal{db: db}
	if err := j.initSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return j, nil
}

func (j *Journal) initSchema(ctx context.Context) error {
	ddl := `
CREATE TABLE IF NOT EXISTS envelopes (
    id TEXT PRIMARY KEY,
    chat_id TEXT NOT NULL,
    event_type TEXT NOT NULL,
    payload BLOB,
    created_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_envelopes_chat_created ON envelopes(chat_id, created_at);
`
	_, err := j.db.ExecContext(ctx, ddl)
	return err
}

func (j *Journal) Send(ctx context.Context, env Envelope) error {
	_, err := j.db.ExecContext(ctx,
		`INSERT INTO envelopes (id, chat_id, event_type, payload, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		env.ID, env.ChatID, env.Type, []byte(env.Payload), env.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("append envelope: %w", err)
	}
	return nil
}

// Count reports stored envelopes for a chat; ordering on read is by
// timestamp, matching the out-of-order delivery contract.
func (j *Journal) Count(ctx context.Context, chatID string) (int, error) {
	var n int
	err := j.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM envelopes WHERE chat_id = ?`, chatID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count envelopes: %w", err)
	}
	return n, nil
}

func (j *Journal) Close() error {
	return j.db.Close()
}
