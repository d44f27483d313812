// Package store persists references to messages the bot has sent, keyed by
// chat and slot (one slot per command binding). The recorded media kind is
// what the edit path needs to decide between edit-text, edit-media and
// edit-caption.
package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"renderbot/internal/transport"
	"renderbot/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

// Record is the last message sent for a (chat, slot) pair.
type Record struct {
	ChatID    int64
	Slot      string
	MessageID int
	Media     transport.MediaKind
	UpdatedAt time.Time
}

// Ref returns the transport reference of the recorded message.
func (r *Record) Ref() transport.MessageRef {
	return transport.MessageRef{ChatID: r.ChatID, MessageID: r.MessageID}
}

type Store struct {
	db  *sql.DB
	log logx.Logger
}

// Open opens (or creates) the sqlite database at path and runs migrations.
func Open(path string, log logx.Logger) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("store path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")
	_, _ = db.Exec("PRAGMA busy_timeout = 5000")

	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Store{db: db, log: log}
	if err := s.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store migrate: %w", err)
	}
	return s, nil
}

func (s *Store) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Get returns the record for (chatID, slot), or nil when none exists.
func (s *Store) Get(ctx context.Context, chatID int64, slot string) (*Record, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT message_id, media_kind, updated_at FROM panel_messages WHERE chat_id = ? AND slot = ?`,
		chatID, slot)

	var rec Record
	var kind, updated string
	if err := row.Scan(&rec.MessageID, &kind, &updated); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	rec.ChatID = chatID
	rec.Slot = slot
	rec.Media = transport.MediaKind(kind)
	if t, err := time.Parse(time.RFC3339, updated); err == nil {
		rec.UpdatedAt = t
	}
	return &rec, nil
}

// Put inserts or replaces the record for its (chat, slot) pair.
func (s *Store) Put(ctx context.Context, rec Record) error {
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO panel_messages (chat_id, slot, message_id, media_kind, updated_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (chat_id, slot) DO UPDATE SET
		   message_id = excluded.message_id,
		   media_kind = excluded.media_kind,
		   updated_at = excluded.updated_at`,
		rec.ChatID, rec.Slot, rec.MessageID, string(rec.Media), rec.UpdatedAt.Format(time.RFC3339))
	return err
}

// Delete drops the record for (chatID, slot). Missing records are not an error.
func (s *Store) Delete(ctx context.Context, chatID int64, slot string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM panel_messages WHERE chat_id = ? AND slot = ?`, chatID, slot)
	return err
}
