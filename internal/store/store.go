package store

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"memobridge/internal/domain"
)

// Backend names accepted by Open.
const (
	BackendMemory = "memory"
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
)

// Options selects and configures a backend.
type Options struct {
	Backend  string
	DBPath   string
	RedisURL string
	Logger   *slog.Logger
}

// Open returns the AlbumStore named by opts.Backend.
func Open(ctx context.Context, opts Options) (domain.AlbumStore, error) {
	switch opts.Backend {
	case BackendMemory:
		return NewMemoryStore(), nil
	case "", BackendSQLite:
		return NewSQLiteStore(opts.DBPath, opts.Logger)
	case BackendRedis:
		return NewRedisStore(ctx, opts.RedisURL)
	}
	return nil, fmt.Errorf("unknown album store backend %q", opts.Backend)
}

const selfTestKey = "_selftest"

// SelfTest writes and reads back a short-lived entry to check the backend is
// reachable and writable.
func SelfTest(ctx context.Context, s domain.AlbumStore) error {
	want := domain.AlbumState{NoteID: "selftest"}
	if err := s.Put(ctx, selfTestKey, want, time.Second); err != nil {
		return fmt.Errorf("write: %w", err)
	}
	got, err := s.Get(ctx, selfTestKey)
	if err != nil {
		return fmt.Errorf("read: %w", err)
	}
	if got == nil || *got != want {
		return fmt.Errorf("read back %+v, want %+v", got, want)
	}
	return nil
}
