// Package pipeline turns inbound updates into note-service calls and chat
// replies. Every failure ends in a chat message or a log line; nothing
// escapes HandleUpdate.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"memobridge/internal/album"
	"memobridge/internal/browse"
	"memobridge/internal/callback"
	"memobridge/internal/domain"
	"memobridge/internal/format"
	"memobridge/internal/media"
	"memobridge/internal/memos"
	"memobridge/internal/metrics"
)

const helpText = `Send me text, photos, documents, voice messages or videos and I will save them as notes.

Commands:
/list - browse your notes
/help - show this message`

// Commands is the menu registered with the bot platform.
var Commands = []domain.BotCommand{
	{Command: "list", Description: "Browse your notes"},
	{Command: "help", Description: "How to use this bot"},
}

type Config struct {
	Bot     domain.BotPlatform
	Notes   domain.NoteService
	Albums  *album.Tracker
	Browse  *browse.Controller
	Metrics *metrics.Recorder

	// MaxMediaBytes caps both declared and downloaded attachment sizes.
	MaxMediaBytes int64
	Logger        *slog.Logger
}

type Pipeline struct {
	bot      domain.BotPlatform
	notes    domain.NoteService
	albums   *album.Tracker
	browse   *browse.Controller
	metrics  *metrics.Recorder
	maxBytes int64
	logger   *slog.Logger
	newStem  func() string
}

func New(cfg Config) *Pipeline {
	if cfg.MaxMediaBytes <= 0 {
		cfg.MaxMediaBytes = media.DefaultMaxBytes
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Pipeline{
		bot:      cfg.Bot,
		notes:    cfg.Notes,
		albums:   cfg.Albums,
		browse:   cfg.Browse,
		metrics:  cfg.Metrics,
		maxBytes: cfg.MaxMediaBytes,
		logger:   cfg.Logger,
		newStem:  newFileStem,
	}
}

// HandleUpdate processes one update to completion.
func (p *Pipeline) HandleUpdate(ctx context.Context, upd domain.Update) {
	start := time.Now()
	kind := "other"
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("update handler panic", "update_id", upd.ID, "panic", r)
		}
		p.metrics.Update(kind, time.Since(start))
	}()

	switch {
	case upd.Callback != nil:
		kind = "callback"
		p.handleCallback(ctx, upd.Callback)
	case upd.Message != nil && upd.Message.Command != "":
		kind = "command"
		p.handleCommand(ctx, upd.Message)
	case upd.Message != nil:
		kind = "message"
		p.handleContent(ctx, upd.Message)
	}
}

func (p *Pipeline) reply(ctx context.Context, chatID int64, text string, kb domain.Keyboard) {
	if err := p.bot.SendMessage(ctx, chatID, text, kb); err != nil {
		p.logger.Warn("send message failed", "chat_id", chatID, "err", err)
	}
}

func (p *Pipeline) handleCommand(ctx context.Context, msg *domain.IncomingMessage) {
	switch msg.Command {
	case "start", "help":
		p.reply(ctx, msg.ChatID, helpText, nil)
	case "list":
		view, err := p.browse.Page(ctx, callback.Nav{})
		if err != nil {
			p.logger.Error("list notes failed", "chat_id", msg.ChatID, "err", err)
			p.reply(ctx, msg.ChatID, "Could not load notes. "+describe(err), nil)
			return
		}
		p.reply(ctx, msg.ChatID, view.Text, view.Keyboard)
	default:
		// Unknown commands are saved like any other text.
		p.handleContent(ctx, msg)
	}
}

func (p *Pipeline) handleContent(ctx context.Context, msg *domain.IncomingMessage) {
	content := format.Message(msg.Text, msg.Entities, msg.Forward)
	if content == "" && len(msg.Media) == 0 {
		p.logger.Debug("nothing to save", "chat_id", msg.ChatID, "message_id", msg.MessageID)
		return
	}

	res, err := p.albums.Resolve(ctx, msg.AlbumID, content)
	if err != nil {
		p.logger.Error("create note failed", "chat_id", msg.ChatID, "err", err)
		p.reply(ctx, msg.ChatID, "Could not save the note. "+describe(err), nil)
		return
	}
	if msg.AlbumID != "" {
		p.metrics.AlbumLookup(string(res.Outcome))
	}
	if res.Outcome != album.OutcomeReused {
		p.metrics.NoteCreated()
	}
	p.logger.Info("note resolved",
		"chat_id", msg.ChatID,
		"note_id", res.Note.ID,
		"album_id", msg.AlbumID,
		"outcome", res.Outcome,
		"media", len(msg.Media),
	)

	for _, ref := range msg.Media {
		if err := p.attach(ctx, msg.ChatID, res.Note.ID, ref); err != nil {
			p.logger.Error("attachment failed", "chat_id", msg.ChatID, "note_id", res.Note.ID, "kind", ref.Kind, "err", err)
			p.reply(ctx, msg.ChatID, "Could not attach a file. "+describe(err), nil)
			return
		}
	}

	if !res.ShouldNotify {
		return
	}
	link := p.notes.NoteURL(res.Note.ID)
	kb := domain.Keyboard{{{
		Text: "Details",
		Data: callback.Encode(callback.Detail{NoteID: res.Note.ID}),
	}}}
	if err := p.bot.SendMessage(ctx, msg.ChatID, "Saved: "+link, kb); err != nil {
		p.logger.Warn("saved notification failed", "chat_id", msg.ChatID, "err", err)
		return
	}
	p.albums.MarkNotified(ctx, msg.AlbumID, res.Note.ID)
}

// attach uploads one media reference. Oversized files are skipped with a
// warning and a nil error; any other failure is returned.
func (p *Pipeline) attach(ctx context.Context, chatID int64, noteID string, ref domain.MediaRef) error {
	if ref.Size > p.maxBytes {
		p.skipTooLarge(ctx, chatID, ref)
		return nil
	}
	filePath, err := p.bot.GetFilePath(ctx, ref.FileID)
	if err != nil {
		p.metrics.Attachment("failed")
		return err
	}
	file, err := p.bot.DownloadFile(ctx, filePath, p.maxBytes)
	if errors.Is(err, domain.ErrFileTooLarge) {
		p.skipTooLarge(ctx, chatID, ref)
		return nil
	}
	if err != nil {
		p.metrics.Attachment("failed")
		return err
	}

	mimeType := media.ResolveType(file.ContentType, ref.MimeType, file.Data)
	name := media.FileName(ref, filePath, mimeType, p.newStem())
	if _, err := p.notes.CreateAttachment(ctx, noteID, domain.NewAttachment{
		Filename: name,
		MimeType: mimeType,
		Content:  file.Data,
	}); err != nil {
		p.metrics.Attachment("failed")
		return err
	}
	p.metrics.Attachment("stored")
	p.logger.Debug("attachment stored", "note_id", noteID, "filename", name, "type", mimeType, "bytes", len(file.Data))
	return nil
}

func (p *Pipeline) skipTooLarge(ctx context.Context, chatID int64, ref domain.MediaRef) {
	p.metrics.Attachment("too_large")
	p.logger.Warn("attachment too large, skipped", "chat_id", chatID, "kind", ref.Kind, "size", ref.Size, "limit", p.maxBytes)
	p.reply(ctx, chatID, fmt.Sprintf("Skipped a %s: files larger than %d MB cannot be saved.", ref.Kind, p.maxBytes>>20), nil)
}

func (p *Pipeline) handleCallback(ctx context.Context, cb *domain.CallbackInteraction) {
	answer := func(text string) {
		if err := p.bot.AnswerCallback(ctx, cb.ID, text); err != nil {
			p.logger.Warn("answer callback failed", "callback_id", cb.ID, "err", err)
		}
	}
	action, ok := callback.Decode(cb.Data)
	if !ok {
		p.metrics.Callback("unknown", "invalid")
		answer("Invalid action.")
		return
	}
	name := actionName(action)
	if action.Expired() {
		p.metrics.Callback(name, "expired")
		answer("This button has expired. Send /list to start over.")
		return
	}

	var (
		view   browse.View
		note   *domain.Note
		err    error
		notice string
	)
	switch a := action.(type) {
	case callback.List:
		view, err = p.browse.Page(ctx, a.Nav)
	case callback.Detail:
		view, note, err = p.browse.Detail(ctx, a.NoteID, a.Nav)
	case callback.SetVisibility:
		view, err = p.browse.SetVisibility(ctx, a.NoteID, a.Visibility, a.Nav)
		notice = "Visibility updated."
	case callback.TogglePin:
		view, err = p.browse.TogglePin(ctx, a.NoteID, a.Nav)
		notice = "Pin updated."
	}
	if err != nil {
		p.metrics.Callback(name, "failed")
		p.logger.Error("callback action failed", "action", name, "chat_id", cb.ChatID, "err", err)
		answer(describe(err))
		return
	}

	if err := p.bot.EditMessageText(ctx, cb.ChatID, cb.MessageID, view.Text, view.Keyboard); err != nil {
		p.metrics.Callback(name, "failed")
		p.logger.Warn("edit message failed", "chat_id", cb.ChatID, "message_id", cb.MessageID, "err", err)
		answer("Could not update the message.")
		return
	}
	p.metrics.Callback(name, "ok")
	answer(notice)

	if note != nil {
		if err := p.browse.SendImages(ctx, cb.ChatID, note); err != nil {
			p.logger.Warn("sending note images failed", "chat_id", cb.ChatID, "note_id", note.ID, "err", err)
		}
	}
}

func actionName(a callback.Action) string {
	switch a.Tag() {
	case callback.TagList:
		return "list"
	case callback.TagDetail:
		return "detail"
	case callback.TagVisibility:
		return "visibility"
	case callback.TagPin:
		return "pin"
	}
	return "unknown"
}

// describe turns an error into a short chat-facing sentence.
func describe(err error) string {
	var apiErr *memos.APIError
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return "The note no longer exists."
	case errors.As(err, &apiErr):
		return fmt.Sprintf("The note service answered HTTP %d.", apiErr.StatusCode)
	case errors.Is(err, context.DeadlineExceeded):
		return "The request timed out."
	}
	return "An unexpected error occurred."
}
