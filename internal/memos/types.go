package memos

import (
	"encoding/json"
	"strings"
	"time"

	"memobridge/internal/domain"
)

const memoPrefix = "memos/"

// memo mirrors the v1 Memo resource.
type memo struct {
	Name        string       `json:"name,omitempty"`
	Content     string       `json:"content,omitempty"`
	Snippet     string       `json:"snippet,omitempty"`
	Visibility  string       `json:"visibility,omitempty"`
	Pinned      *bool        `json:"pinned,omitempty"`
	Tags        []string     `json:"tags,omitempty"`
	Attachments []attachment `json:"attachments,omitempty"`
	DisplayTime *time.Time   `json:"displayTime,omitempty"`
	UpdateTime  *time.Time   `json:"updateTime,omitempty"`
	CreateTime  *time.Time   `json:"createTime,omitempty"`
}

type attachment struct {
	Name         string      `json:"name,omitempty"`
	Filename     string      `json:"filename"`
	Type         string      `json:"type,omitempty"`
	Size         json.Number `json:"size,omitempty"` // proto3 int64, usually quoted
	ExternalLink string      `json:"externalLink,omitempty"`
	Content      []byte      `json:"content,omitempty"`
	Memo         string      `json:"memo,omitempty"`
}

type listResponse struct {
	Memos         []memo `json:"memos"`
	NextPageToken string `json:"nextPageToken"`
}

func memoName(id string) string {
	return memoPrefix + strings.TrimPrefix(id, memoPrefix)
}

func (m memo) toNote() *domain.Note {
	n := &domain.Note{
		ID:         strings.TrimPrefix(m.Name, memoPrefix),
		Content:    m.Content,
		Snippet:    m.Snippet,
		Visibility: domain.Visibility(m.Visibility),
		Tags:       m.Tags,
	}
	if m.Pinned != nil {
		n.Pinned = *m.Pinned
	}
	if m.DisplayTime != nil {
		n.DisplayTime = *m.DisplayTime
	}
	if m.UpdateTime != nil {
		n.UpdateTime = *m.UpdateTime
	}
	if m.CreateTime != nil {
		n.CreateTime = *m.CreateTime
	}
	for _, a := range m.Attachments {
		n.Attachments = append(n.Attachments, a.toDomain())
	}
	return n
}

func (a attachment) toDomain() domain.Attachment {
	size, _ := a.Size.Int64()
	return domain.Attachment{
		Name:         a.Name,
		Filename:     a.Filename,
		MimeType:     a.Type,
		Size:         size,
		ExternalLink: a.ExternalLink,
	}
}
