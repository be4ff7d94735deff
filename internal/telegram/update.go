package telegram

import (
	"encoding/json"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"memobridge/internal/domain"
	"memobridge/internal/media"
)

// ParseUpdate decodes a webhook body. Newer Bot API payloads describe
// forwards with forward_origin, which tgbotapi does not model, so it is read
// separately and takes precedence over the legacy forward fields.
func ParseUpdate(raw []byte, maxPhotoBytes int64) (domain.Update, error) {
	var upd tgbotapi.Update
	if err := json.Unmarshal(raw, &upd); err != nil {
		return domain.Update{}, fmt.Errorf("decode update: %w", err)
	}
	out := fromAPIUpdate(upd, maxPhotoBytes)

	if out.Message != nil {
		var overlay struct {
			Message *struct {
				ForwardOrigin *forwardOrigin `json:"forward_origin"`
			} `json:"message"`
		}
		if err := json.Unmarshal(raw, &overlay); err == nil && overlay.Message != nil {
			if fo := overlay.Message.ForwardOrigin.toDomain(); fo != nil {
				out.Message.Forward = fo
			}
		}
	}
	return out, nil
}

type forwardOrigin struct {
	Type           string         `json:"type"`
	SenderUser     *tgbotapi.User `json:"sender_user"`
	SenderUserName string         `json:"sender_user_name"`
	SenderChat     *tgbotapi.Chat `json:"sender_chat"`
	Chat           *tgbotapi.Chat `json:"chat"`
}

func (f *forwardOrigin) toDomain() *domain.ForwardOrigin {
	if f == nil {
		return nil
	}
	switch f.Type {
	case "user":
		if f.SenderUser == nil {
			return nil
		}
		return userOrigin(f.SenderUser)
	case "hidden_user":
		return &domain.ForwardOrigin{Kind: domain.ForwardHiddenUser, Name: f.SenderUserName}
	case "chat":
		if f.SenderChat == nil {
			return nil
		}
		return chatOrigin(domain.ForwardChat, f.SenderChat)
	case "channel":
		if f.Chat == nil {
			return nil
		}
		return chatOrigin(domain.ForwardChannel, f.Chat)
	}
	return nil
}

// fromAPIUpdate converts a tgbotapi update. Updates that are neither a
// message nor a callback query come back with both fields nil.
func fromAPIUpdate(upd tgbotapi.Update, maxPhotoBytes int64) domain.Update {
	out := domain.Update{ID: upd.UpdateID}
	switch {
	case upd.Message != nil:
		out.Message = fromMessage(upd.Message, maxPhotoBytes)
	case upd.CallbackQuery != nil:
		cq := upd.CallbackQuery
		cb := &domain.CallbackInteraction{ID: cq.ID, Data: cq.Data}
		if cq.Message != nil {
			cb.MessageID = cq.Message.MessageID
			if cq.Message.Chat != nil {
				cb.ChatID = cq.Message.Chat.ID
			}
		}
		if cb.ChatID == 0 && cq.From != nil {
			cb.ChatID = cq.From.ID
		}
		out.Callback = cb
	}
	return out
}

func fromMessage(m *tgbotapi.Message, maxPhotoBytes int64) *domain.IncomingMessage {
	msg := &domain.IncomingMessage{
		MessageID: m.MessageID,
		AlbumID:   m.MediaGroupID,
	}
	if m.Chat != nil {
		msg.ChatID = m.Chat.ID
	}

	if m.Text != "" {
		msg.Text = m.Text
		msg.Entities = spans(m.Entities)
	} else {
		msg.Text = m.Caption
		msg.Entities = spans(m.CaptionEntities)
	}

	if m.IsCommand() {
		msg.Command = strings.ToLower(m.Command())
		msg.CommandArgs = m.CommandArguments()
	}

	msg.Forward = legacyForward(m)
	msg.Media = collectMedia(m, maxPhotoBytes)
	return msg
}

func spans(entities []tgbotapi.MessageEntity) []domain.EntitySpan {
	if len(entities) == 0 {
		return nil
	}
	out := make([]domain.EntitySpan, 0, len(entities))
	for _, e := range entities {
		out = append(out, domain.EntitySpan{
			Kind:   domain.EntityKind(e.Type),
			Offset: e.Offset,
			Length: e.Length,
			URL:    e.URL,
		})
	}
	return out
}

func legacyForward(m *tgbotapi.Message) *domain.ForwardOrigin {
	switch {
	case m.ForwardFrom != nil:
		return userOrigin(m.ForwardFrom)
	case m.ForwardFromChat != nil:
		kind := domain.ForwardChat
		if m.ForwardFromChat.IsChannel() {
			kind = domain.ForwardChannel
		}
		return chatOrigin(kind, m.ForwardFromChat)
	case m.ForwardSenderName != "":
		return &domain.ForwardOrigin{Kind: domain.ForwardHiddenUser, Name: m.ForwardSenderName}
	}
	return nil
}

func userOrigin(u *tgbotapi.User) *domain.ForwardOrigin {
	name := strings.TrimSpace(u.FirstName + " " + u.LastName)
	return &domain.ForwardOrigin{Kind: domain.ForwardUser, Name: name, Username: u.UserName}
}

func chatOrigin(kind domain.ForwardKind, c *tgbotapi.Chat) *domain.ForwardOrigin {
	return &domain.ForwardOrigin{Kind: kind, Title: c.Title, Username: c.UserName}
}

// collectMedia lists attachments in a fixed order: document, voice, video,
// then the chosen photo size.
func collectMedia(m *tgbotapi.Message, maxPhotoBytes int64) []domain.MediaRef {
	var refs []domain.MediaRef
	if d := m.Document; d != nil {
		refs = append(refs, domain.MediaRef{
			Kind: domain.MediaDocument, FileID: d.FileID, FileName: d.FileName,
			MimeType: d.MimeType, Size: int64(d.FileSize),
		})
	}
	if v := m.Voice; v != nil {
		refs = append(refs, domain.MediaRef{
			Kind: domain.MediaVoice, FileID: v.FileID, MimeType: v.MimeType, Size: int64(v.FileSize),
		})
	}
	if v := m.Video; v != nil {
		refs = append(refs, domain.MediaRef{
			Kind: domain.MediaVideo, FileID: v.FileID, FileName: v.FileName,
			MimeType: v.MimeType, Size: int64(v.FileSize),
		})
	}
	if len(m.Photo) > 0 {
		sizes := make([]media.PhotoSize, 0, len(m.Photo))
		for _, p := range m.Photo {
			sizes = append(sizes, media.PhotoSize{FileID: p.FileID, Width: p.Width, Height: p.Height, Size: int64(p.FileSize)})
		}
		if best, ok := media.PickPhoto(sizes, maxPhotoBytes); ok {
			refs = append(refs, domain.MediaRef{
				Kind: domain.MediaPhoto, FileID: best.FileID, MimeType: "image/jpeg", Size: best.Size,
			})
		}
	}
	return refs
}
