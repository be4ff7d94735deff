package domain

import (
	"context"
	"time"
)

type Visibility string

const (
	VisibilityPublic    Visibility = "PUBLIC"
	VisibilityProtected Visibility = "PROTECTED"
	VisibilityPrivate   Visibility = "PRIVATE"
)

// Visibilities lists the values in the order they are offered to the user.
var Visibilities = []Visibility{VisibilityPrivate, VisibilityProtected, VisibilityPublic}

// Valid reports whether v is one of the known visibility values.
func (v Visibility) Valid() bool {
	switch v {
	case VisibilityPublic, VisibilityProtected, VisibilityPrivate:
		return true
	}
	return false
}

// Note is a record owned by the note service.
type Note struct {
	ID          string // short id, without the "memos/" resource prefix
	Content     string
	Snippet     string
	Visibility  Visibility
	Pinned      bool
	Tags        []string
	Attachments []Attachment
	DisplayTime time.Time
	UpdateTime  time.Time
	CreateTime  time.Time
}

// Attachment as returned by the note service.
type Attachment struct {
	Name         string // resource name, e.g. "attachments/abc"
	Filename     string
	MimeType     string
	Size         int64
	ExternalLink string
}

// NewAttachment is an upload request.
type NewAttachment struct {
	Filename string
	MimeType string
	Content  []byte
}

// NotePatch names the fields of a partial update. Nil fields are left alone.
type NotePatch struct {
	Visibility *Visibility
	Pinned     *bool
}

// Page is one slice of a newest-first listing.
type Page struct {
	Notes     []Note
	NextToken string
}

// NoteService is the remote note store.
type NoteService interface {
	CreateNote(ctx context.Context, content string) (*Note, error)
	GetNote(ctx context.Context, id string) (*Note, error)
	PatchNote(ctx context.Context, id string, patch NotePatch) (*Note, error)
	CreateAttachment(ctx context.Context, noteID string, att NewAttachment) (*Attachment, error)
	ListNotes(ctx context.Context, pageSize int, pageToken string) (*Page, error)

	// NoteURL is the user-facing link to a note.
	NoteURL(id string) string
	// AttachmentURL is a fetchable link for an attachment.
	AttachmentURL(att Attachment) string
}
