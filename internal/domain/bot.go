package domain

import "context"

// Button is an inline keyboard button. Exactly one of Data or URL is set.
type Button struct {
	Text string
	Data string
	URL  string
}

// Keyboard is a list of button rows.
type Keyboard [][]Button

// MediaItem is one photo of an outbound media group.
type MediaItem struct {
	URL     string
	Caption string
}

// BotCommand is an entry of the bot's command menu.
type BotCommand struct {
	Command     string
	Description string
}

// DownloadedFile is the result of fetching a platform-hosted file.
type DownloadedFile struct {
	Data        []byte
	ContentType string
	Path        string
}

// BotPlatform is the subset of the chat platform API the pipeline uses.
// Errors are non-fatal to the caller: they are logged or turned into chat text.
type BotPlatform interface {
	SendMessage(ctx context.Context, chatID int64, text string, kb Keyboard) error
	EditMessageText(ctx context.Context, chatID int64, messageID int, text string, kb Keyboard) error
	SendMediaGroup(ctx context.Context, chatID int64, items []MediaItem) error
	SendPhoto(ctx context.Context, chatID int64, url, caption string) error
	AnswerCallback(ctx context.Context, callbackID, text string) error
	GetFilePath(ctx context.Context, fileID string) (string, error)
	// DownloadFile fetches at most limit bytes and returns ErrFileTooLarge
	// when the file is bigger.
	DownloadFile(ctx context.Context, path string, limit int64) (*DownloadedFile, error)
	SetWebhook(ctx context.Context, url, secret string) error
	SetCommands(ctx context.Context, cmds []BotCommand) error
}
