// Package album collapses the messages of one media group into a single note
// and makes sure the "saved" notification is sent once per group.
//
// The store read and write are not atomic. Two messages of the same album
// processed concurrently may both see the album as absent and create two
// notes; this is accepted.
package album

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"memobridge/internal/domain"
)

// DefaultTTL is how long an album keeps pointing at its note.
const DefaultTTL = time.Hour

// Outcome describes how Resolve obtained the note.
type Outcome string

const (
	OutcomeSingle Outcome = "single" // not part of an album
	OutcomeNew    Outcome = "new"
	OutcomeReused Outcome = "reused"
	OutcomeStale  Outcome = "stale" // stored note could not be fetched, recreated
)

// Result is the note a message should attach to.
type Result struct {
	Note         *domain.Note
	ShouldNotify bool
	Outcome      Outcome
}

// NoteCreator is the part of the note service the tracker needs.
type NoteCreator interface {
	CreateNote(ctx context.Context, content string) (*domain.Note, error)
	GetNote(ctx context.Context, id string) (*domain.Note, error)
}

type Config struct {
	Store  domain.AlbumStore
	Notes  NoteCreator
	TTL    time.Duration
	Logger *slog.Logger
}

// Tracker implements the per-album state machine.
type Tracker struct {
	store  domain.AlbumStore
	notes  NoteCreator
	ttl    time.Duration
	logger *slog.Logger
}

func NewTracker(cfg Config) *Tracker {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Tracker{store: cfg.Store, notes: cfg.Notes, ttl: cfg.TTL, logger: cfg.Logger}
}

// Resolve returns the note for a message. Messages without an album id always
// get a new note and always notify.
func (t *Tracker) Resolve(ctx context.Context, albumID, content string) (*Result, error) {
	if albumID == "" {
		note, err := t.notes.CreateNote(ctx, content)
		if err != nil {
			return nil, fmt.Errorf("create note: %w", err)
		}
		return &Result{Note: note, ShouldNotify: true, Outcome: OutcomeSingle}, nil
	}

	state, err := t.store.Get(ctx, albumID)
	if err != nil {
		t.logger.Warn("album lookup failed, treating as new", "album_id", albumID, "err", err)
		state = nil
	}

	outcome := OutcomeNew
	if state != nil {
		note, err := t.notes.GetNote(ctx, state.NoteID)
		if err == nil {
			return &Result{Note: note, ShouldNotify: !state.Notified, Outcome: OutcomeReused}, nil
		}
		t.logger.Warn("album note unavailable, creating a new one",
			"album_id", albumID, "note_id", state.NoteID, "err", err)
		outcome = OutcomeStale
	}

	note, err := t.notes.CreateNote(ctx, content)
	if err != nil {
		return nil, fmt.Errorf("create note: %w", err)
	}
	if err := t.store.Put(ctx, albumID, domain.AlbumState{NoteID: note.ID}, t.ttl); err != nil {
		t.logger.Warn("album state not saved", "album_id", albumID, "err", err)
	}
	return &Result{Note: note, ShouldNotify: true, Outcome: outcome}, nil
}

// MarkNotified records that the chat was told about the album's note.
// It is a no-op for messages outside an album.
func (t *Tracker) MarkNotified(ctx context.Context, albumID, noteID string) {
	if albumID == "" {
		return
	}
	state := domain.AlbumState{NoteID: noteID, Notified: true}
	if err := t.store.Put(ctx, albumID, state, t.ttl); err != nil {
		t.logger.Warn("album notified flag not saved", "album_id", albumID, "err", err)
	}
}
