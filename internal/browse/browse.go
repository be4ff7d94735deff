// Package browse renders note listings and note details as chat messages
// with inline keyboards. Every button carries its own navigation state, so
// the controller keeps nothing between interactions.
package browse

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"memobridge/internal/callback"
	"memobridge/internal/domain"
)

const (
	DefaultPageSize = 10
	MaxPageSize     = 20

	excerptRunes  = 30
	detailRunes   = 3000
	emptyExcerpt  = "(empty)"
	noResultsText = "No notes found."
	listHeader    = "Your notes:"
)

// View is a rendered message body and its keyboard.
type View struct {
	Text     string
	Keyboard domain.Keyboard
}

type Config struct {
	Notes    domain.NoteService
	Bot      domain.BotPlatform
	PageSize int
	Logger   *slog.Logger
}

type Controller struct {
	notes    domain.NoteService
	bot      domain.BotPlatform
	pageSize int
	logger   *slog.Logger
}

func New(cfg Config) *Controller {
	if cfg.PageSize < 1 || cfg.PageSize > MaxPageSize {
		cfg.PageSize = DefaultPageSize
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Controller{
		notes:    cfg.Notes,
		bot:      cfg.Bot,
		pageSize: cfg.PageSize,
		logger:   cfg.Logger,
	}
}

// Page fetches the page at nav.PageToken. Pages are never cached; going
// back replays a token from the history.
func (c *Controller) Page(ctx context.Context, nav callback.Nav) (View, error) {
	page, err := c.notes.ListNotes(ctx, c.pageSize, nav.PageToken)
	if err != nil {
		return View{}, fmt.Errorf("list notes: %w", err)
	}
	return RenderPage(page, nav), nil
}

// RenderPage lays out one row per note plus a Prev/Next row.
func RenderPage(page *domain.Page, nav callback.Nav) View {
	var kb domain.Keyboard
	text := noResultsText
	if page != nil && len(page.Notes) > 0 {
		text = listHeader
		for _, n := range page.Notes {
			kb = append(kb, []domain.Button{{
				Text: Excerpt(n),
				Data: callback.Encode(callback.Detail{NoteID: n.ID, Nav: nav}),
			}})
		}
	}

	var navRow []domain.Button
	if prev, ok := nav.Prev(); ok {
		navRow = append(navRow, domain.Button{Text: "« Prev", Data: callback.Encode(prev.Back())})
	}
	if page != nil && page.NextToken != "" {
		navRow = append(navRow, domain.Button{Text: "Next »", Data: callback.Encode(nav.Next(page.NextToken).Back())})
	}
	if len(navRow) > 0 {
		kb = append(kb, navRow)
	}
	return View{Text: text, Keyboard: kb}
}

// Excerpt labels a note in the list: its snippet, else the first line of the
// content, cut to a short budget.
func Excerpt(n domain.Note) string {
	s := strings.TrimSpace(n.Snippet)
	if s == "" {
		s = strings.TrimSpace(n.Content)
	}
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = strings.TrimSpace(s[:i])
	}
	if s == "" {
		return emptyExcerpt
	}
	return cut(s, excerptRunes)
}

func cut(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	r := []rune(s)
	return string(r[:limit-1]) + "…"
}

// Detail fetches a note and renders it.
func (c *Controller) Detail(ctx context.Context, noteID string, nav callback.Nav) (View, *domain.Note, error) {
	note, err := c.notes.GetNote(ctx, noteID)
	if err != nil {
		return View{}, nil, fmt.Errorf("get note %s: %w", noteID, err)
	}
	return c.RenderDetail(note, nav), note, nil
}

// SetVisibility patches only the visibility field and re-renders.
func (c *Controller) SetVisibility(ctx context.Context, noteID string, vis domain.Visibility, nav callback.Nav) (View, error) {
	note, err := c.notes.PatchNote(ctx, noteID, domain.NotePatch{Visibility: &vis})
	if err != nil {
		return View{}, fmt.Errorf("set visibility of %s: %w", noteID, err)
	}
	return c.RenderDetail(note, nav), nil
}

// TogglePin reads the current flag, then patches only the pinned field.
func (c *Controller) TogglePin(ctx context.Context, noteID string, nav callback.Nav) (View, error) {
	current, err := c.notes.GetNote(ctx, noteID)
	if err != nil {
		return View{}, fmt.Errorf("get note %s: %w", noteID, err)
	}
	pinned := !current.Pinned
	note, err := c.notes.PatchNote(ctx, noteID, domain.NotePatch{Pinned: &pinned})
	if err != nil {
		return View{}, fmt.Errorf("toggle pin of %s: %w", noteID, err)
	}
	return c.RenderDetail(note, nav), nil
}

// RenderDetail shows the note with visibility, pin, open and back buttons.
func (c *Controller) RenderDetail(note *domain.Note, nav callback.Nav) View {
	var b strings.Builder
	content := strings.TrimSpace(note.Content)
	if content == "" {
		content = emptyExcerpt
	}
	b.WriteString(cut(content, detailRunes))
	b.WriteString("\n\n")
	fmt.Fprintf(&b, "Visibility: %s\n", visibilityLabel(note.Visibility))
	if note.Pinned {
		b.WriteString("Pinned: yes\n")
	} else {
		b.WriteString("Pinned: no\n")
	}
	if len(note.Tags) > 0 {
		b.WriteString("Tags: #" + strings.Join(note.Tags, " #") + "\n")
	}
	if !note.DisplayTime.IsZero() {
		fmt.Fprintf(&b, "Date: %s\n", note.DisplayTime.UTC().Format("2006-01-02 15:04"))
	}
	if !note.UpdateTime.IsZero() && !note.UpdateTime.Equal(note.DisplayTime) {
		fmt.Fprintf(&b, "Updated: %s\n", note.UpdateTime.UTC().Format("2006-01-02 15:04"))
	}
	if n := len(note.Attachments); n > 0 {
		fmt.Fprintf(&b, "Attachments: %d\n", n)
	}
	url := c.notes.NoteURL(note.ID)
	b.WriteString(url)

	visRow := make([]domain.Button, 0, len(domain.Visibilities))
	for _, v := range domain.Visibilities {
		label := visibilityLabel(v)
		if v == note.Visibility {
			label = "• " + label
		}
		visRow = append(visRow, domain.Button{
			Text: label,
			Data: callback.Encode(callback.SetVisibility{NoteID: note.ID, Visibility: v, Nav: nav}),
		})
	}
	pinLabel := "Pin"
	if note.Pinned {
		pinLabel = "Unpin"
	}
	kb := domain.Keyboard{
		visRow,
		{
			{Text: pinLabel, Data: callback.Encode(callback.TogglePin{NoteID: note.ID, Nav: nav})},
			{Text: "Open", URL: url},
		},
		{{Text: "« Back", Data: callback.Encode(nav.Back())}},
	}
	return View{Text: b.String(), Keyboard: kb}
}

func visibilityLabel(v domain.Visibility) string {
	switch v {
	case domain.VisibilityPublic:
		return "Public"
	case domain.VisibilityProtected:
		return "Workspace"
	case domain.VisibilityPrivate:
		return "Private"
	}
	return string(v)
}

// SendImages posts a note's image attachments to the chat: a single photo
// captioned with the note content, or media groups for several.
func (c *Controller) SendImages(ctx context.Context, chatID int64, note *domain.Note) error {
	var items []domain.MediaItem
	for _, a := range note.Attachments {
		if !strings.HasPrefix(a.MimeType, "image/") {
			continue
		}
		items = append(items, domain.MediaItem{URL: c.notes.AttachmentURL(a)})
	}
	caption := strings.TrimSpace(note.Content)
	switch len(items) {
	case 0:
		return nil
	case 1:
		return c.bot.SendPhoto(ctx, chatID, items[0].URL, caption)
	}
	items[0].Caption = caption
	return c.bot.SendMediaGroup(ctx, chatID, items)
}
