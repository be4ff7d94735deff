package domain

import (
	"context"
	"time"
)

// AlbumState links a media group to the note created for it.
type AlbumState struct {
	NoteID   string `json:"noteId"`
	Notified bool   `json:"notified"`
}

// AlbumStore is a key-value store with per-entry expiry. Get returns
// (nil, nil) when the album is absent or expired.
type AlbumStore interface {
	Get(ctx context.Context, albumID string) (*AlbumState, error)
	Put(ctx context.Context, albumID string, state AlbumState, ttl time.Duration) error
	Close() error
}
