package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"memobridge/internal/domain"

	_ "modernc.org/sqlite"
)

// SQLiteStore persists album state in a local SQLite file so that albums
// survive restarts.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
	now    func() time.Time
}

func NewSQLiteStore(dbPath string, logger *slog.Logger) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("cannot create database directory %s: %w", dir, err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("cannot open database: %w", err)
	}

	// Single connection for SQLite
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	store := &SQLiteStore{db: db, logger: logger, now: time.Now}

	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("database migration failed: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS album_state (
		album_id    TEXT PRIMARY KEY,
		note_id     TEXT NOT NULL,
		notified    INTEGER NOT NULL DEFAULT 0,
		expires_at  INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_album_state_expiry ON album_state(expires_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

func (s *SQLiteStore) Get(ctx context.Context, albumID string) (*domain.AlbumState, error) {
	var state domain.AlbumState
	err := s.db.QueryRowContext(ctx,
		`SELECT note_id, notified FROM album_state WHERE album_id = ? AND expires_at > ?`,
		albumID, s.now().UnixMilli(),
	).Scan(&state.NoteID, &state.Notified)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &state, nil
}

func (s *SQLiteStore) Put(ctx context.Context, albumID string, state domain.AlbumState, ttl time.Duration) error {
	now := s.now()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO album_state (album_id, note_id, notified, expires_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(album_id) DO UPDATE SET note_id = excluded.note_id,
		   notified = excluded.notified, expires_at = excluded.expires_at`,
		albumID, state.NoteID, state.Notified, now.Add(ttl).UnixMilli(),
	)
	if err != nil {
		return err
	}

	// Expired rows are unreachable; prune them opportunistically.
	if _, err := s.db.ExecContext(ctx, `DELETE FROM album_state WHERE expires_at <= ?`, now.UnixMilli()); err != nil {
		s.logger.Debug("album state prune failed", "err", err)
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
