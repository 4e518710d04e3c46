// Package store persists which verification emails have already been
// consumed, so a stale unread message never yields a code twice
// across runs.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"

	"github.com/mixelka/docsbot/pkg/models"
)

const schema = `
CREATE TABLE IF NOT EXISTS consumed_messages (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    mailbox TEXT NOT NULL,
    uid INTEGER NOT NULL,
    from_addr TEXT NOT NULL,
    kind TEXT NOT NULL,
    consumed_at DATETIME NOT NULL,
    UNIQUE(mailbox, uid)
);

CREATE INDEX IF NOT EXISTS idx_consumed_mailbox ON consumed_messages(mailbox);
`

// DB wraps sqlx.DB
type DB struct {
	*sqlx.DB
}

// New opens the ledger database, creating the parent directory if
// needed. Pass ":memory:" for an ephemeral ledger.
func New(path string) (*DB, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=5000", path)
	db, err := sqlx.Connect("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if path == ":memory:" {
		// Each pooled connection would otherwise see its own empty
		// in-memory database.
		db.SetMaxOpenConns(1)
	}

	return &DB{db}, nil
}

// Migrate creates the schema
func (db *DB) Migrate(ctx context.Context) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// MarkConsumed records that the code in (mailbox, uid) has been used.
// Recording the same message twice is not an error.
func (db *DB) MarkConsumed(ctx context.Context, mailbox string, uid uint32, fromAddr, kind string) error {
	query := `
		INSERT OR IGNORE INTO consumed_messages (mailbox, uid, from_addr, kind, consumed_at)
		VALUES (?, ?, ?, ?, ?)
	`
	if _, err := db.ExecContext(ctx, query, mailbox, uid, fromAddr, kind, time.Now()); err != nil {
		return fmt.Errorf("failed to record consumed message: %w", err)
	}
	return nil
}

// IsConsumed reports whether (mailbox, uid) has already yielded a code
func (db *DB) IsConsumed(ctx context.Context, mailbox string, uid uint32) (bool, error) {
	var entry models.ConsumedMessage
	query := `SELECT * FROM consumed_messages WHERE mailbox = ? AND uid = ?`
	err := db.GetContext(ctx, &entry, query, mailbox, uid)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to query consumed message: %w", err)
	}
	return true, nil
}
