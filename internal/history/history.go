// Package history stores per-conversation message history in SQLite. It
// backs the assistant's short-term context, the /memory and /clear commands
// and the pending image handoff between an image message and the follow-up
// folder choice.
package history

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS messages (
    id         INTEGER PRIMARY KEY AUTOINCREMENT,
    subscriber TEXT NOT NULL,
    role       TEXT NOT NULL,
    content    TEXT NOT NULL,
    created_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_messages_subscriber ON messages(subscriber, id);
`

// Roles stored in the history table.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// Message is one stored history line.
type Message struct {
	ID        int64     `db:"id"`
	Role      string    `db:"role"`
	Content   string    `db:"content"`
	CreatedAt time.Time `db:"created_at"`
}

// maxPerSubscriber caps stored history; the oldest rows are trimmed past it.
const maxPerSubscriber = 100

// Store is the SQLite-backed history store.
type Store struct {
	db *sqlx.DB
}

// Open opens the database at path and runs migrations.
func Open(path string) (*Store, error) {
	db, err := sqlx.Open("sqlite", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// Append stores one line and trims the subscriber's history to the cap.
func (s *Store) Append(ctx context.Context, subscriber, role, content string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO messages (subscriber, role, content, created_at)
		VALUES (?, ?, ?, ?)
	`, subscriber, role, content, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("append message: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		DELETE FROM messages WHERE subscriber = ? AND id NOT IN (
			SELECT id FROM messages WHERE subscriber = ? ORDER BY id DESC LIMIT ?
		)
	`, subscriber, subscriber, maxPerSubscriber)
	if err != nil {
		return fmt.Errorf("trim history: %w", err)
	}
	return nil
}

// Recent returns the subscriber's last n messages, oldest first.
func (s *Store) Recent(ctx context.Context, subscriber string, n int) ([]Message, error) {
	var msgs []Message
	err := s.db.SelectContext(ctx, &msgs, `
		SELECT id, role, content, created_at FROM (
			SELECT id, role, content, created_at FROM messages
			WHERE subscriber = ? ORDER BY id DESC LIMIT ?
		) ORDER BY id ASC
	`, subscriber, n)
	if err != nil {
		return nil, fmt.Errorf("recent messages: %w", err)
	}
	return msgs, nil
}

// Clear wipes the subscriber's history.
func (s *Store) Clear(ctx context.Context, subscriber string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM messages WHERE subscriber = ?", subscriber); err != nil {
		return fmt.Errorf("clear history: %w", err)
	}
	return nil
}

// pending image markers use a reserved system-role prefix.
const pendingPrefix = "pending_image:"

// SetPendingImage records that subscriber has an uploaded image waiting for
// a folder choice.
func (s *Store) SetPendingImage(ctx context.Context, subscriber, messageID string) error {
	return s.Append(ctx, subscriber, RoleSystem, pendingPrefix+messageID)
}

// PendingImage returns the most recent pending image message ID, or "" when
// none is waiting.
func (s *Store) PendingImage(ctx context.Context, subscriber string) (string, error) {
	var content string
	err := s.db.GetContext(ctx, &content, `
		SELECT content FROM messages
		WHERE subscriber = ? AND role = ? AND content LIKE ?
		ORDER BY id DESC LIMIT 1
	`, subscriber, RoleSystem, pendingPrefix+"%")
	if err != nil {
		return "", nil // no pending image
	}
	return content[len(pendingPrefix):], nil
}

// ClearPendingImage removes any pending image markers for the subscriber.
func (s *Store) ClearPendingImage(ctx context.Context, subscriber string) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM messages WHERE subscriber = ? AND role = ? AND content LIKE ?
	`, subscriber, RoleSystem, pendingPrefix+"%")
	if err != nil {
		return fmt.Errorf("clear pending image: %w", err)
	}
	return nil
}
