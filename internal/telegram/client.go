// Package telegram adapts the Telegram Bot API to the bridge's BotPlatform
// interface and normalizes inbound updates.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"memobridge/internal/domain"
)

const (
	// DefaultAPIURL is the public Bot API server.
	DefaultAPIURL = "https://api.telegram.org"

	mediaGroupMax = 10
)

type ClientConfig struct {
	Token      string
	APIURL     string // base URL, e.g. https://api.telegram.org
	HTTPClient *http.Client
	// DownloadClient fetches file contents. It defaults to HTTPClient.
	DownloadClient *http.Client
	Logger         *slog.Logger
}

var _ domain.BotPlatform = (*Client)(nil)

// Client implements domain.BotPlatform on top of tgbotapi.
type Client struct {
	bot          *tgbotapi.BotAPI
	download     *http.Client
	fileEndpoint string
	logger       *slog.Logger
}

// NewClient connects to the Bot API and verifies the token with getMe.
func NewClient(cfg ClientConfig) (*Client, error) {
	if cfg.APIURL == "" {
		cfg.APIURL = DefaultAPIURL
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = http.DefaultClient
	}
	if cfg.DownloadClient == nil {
		cfg.DownloadClient = cfg.HTTPClient
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	base := strings.TrimRight(cfg.APIURL, "/")

	bot, err := tgbotapi.NewBotAPIWithClient(cfg.Token, base+"/bot%s/%s", cfg.HTTPClient)
	if err != nil {
		return nil, fmt.Errorf("telegram bot init: %w", err)
	}
	cfg.Logger.Info("telegram bot connected", "username", bot.Self.UserName, "id", bot.Self.ID)

	return &Client{
		bot:          bot,
		download:     cfg.DownloadClient,
		fileEndpoint: base + "/file/bot%s/%s",
		logger:       cfg.Logger,
	}, nil
}

// API exposes the underlying bot for long polling.
func (c *Client) API() *tgbotapi.BotAPI { return c.bot }

func (c *Client) SendMessage(_ context.Context, chatID int64, text string, kb domain.Keyboard) error {
	msg := tgbotapi.NewMessage(chatID, TruncateText(text))
	msg.DisableWebPagePreview = true
	if markup, ok := inlineMarkup(kb); ok {
		msg.ReplyMarkup = markup
	}
	if _, err := c.bot.Send(msg); err != nil {
		return fmt.Errorf("sendMessage: %w", err)
	}
	return nil
}

func (c *Client) EditMessageText(_ context.Context, chatID int64, messageID int, text string, kb domain.Keyboard) error {
	edit := tgbotapi.NewEditMessageText(chatID, messageID, TruncateText(text))
	edit.DisableWebPagePreview = true
	if markup, ok := inlineMarkup(kb); ok {
		edit.ReplyMarkup = &markup
	}
	if _, err := c.bot.Send(edit); err != nil {
		if isNotModified(err) {
			return nil
		}
		return fmt.Errorf("editMessageText: %w", err)
	}
	return nil
}

// SendMediaGroup sends photos in groups of at most ten.
func (c *Client) SendMediaGroup(_ context.Context, chatID int64, items []domain.MediaItem) error {
	for start := 0; start < len(items); start += mediaGroupMax {
		end := min(start+mediaGroupMax, len(items))
		files := make([]interface{}, 0, end-start)
		for _, it := range items[start:end] {
			photo := tgbotapi.NewInputMediaPhoto(tgbotapi.FileURL(it.URL))
			photo.Caption = TruncateCaption(it.Caption)
			files = append(files, photo)
		}
		if _, err := c.bot.SendMediaGroup(tgbotapi.NewMediaGroup(chatID, files)); err != nil {
			return fmt.Errorf("sendMediaGroup: %w", err)
		}
	}
	return nil
}

func (c *Client) SendPhoto(_ context.Context, chatID int64, url, caption string) error {
	photo := tgbotapi.NewPhoto(chatID, tgbotapi.FileURL(url))
	photo.Caption = TruncateCaption(caption)
	if _, err := c.bot.Send(photo); err != nil {
		return fmt.Errorf("sendPhoto: %w", err)
	}
	return nil
}

func (c *Client) AnswerCallback(_ context.Context, callbackID, text string) error {
	if _, err := c.bot.Request(tgbotapi.NewCallback(callbackID, text)); err != nil {
		return fmt.Errorf("answerCallbackQuery: %w", err)
	}
	return nil
}

func (c *Client) GetFilePath(_ context.Context, fileID string) (string, error) {
	file, err := c.bot.GetFile(tgbotapi.FileConfig{FileID: fileID})
	if err != nil {
		return "", fmt.Errorf("getFile: %w", err)
	}
	if file.FilePath == "" {
		return "", fmt.Errorf("getFile: no path for %s", fileID)
	}
	return file.FilePath, nil
}

// DownloadFile reads at most limit bytes of the file at path.
func (c *Client) DownloadFile(ctx context.Context, path string, limit int64) (*domain.DownloadedFile, error) {
	url := fmt.Sprintf(c.fileEndpoint, c.bot.Token, path)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build download request: %w", err)
	}
	resp, err := c.download.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download file: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("download file: HTTP %d", resp.StatusCode)
	}
	if limit > 0 && resp.ContentLength > limit {
		return nil, fmt.Errorf("download %s (%d bytes): %w", path, resp.ContentLength, domain.ErrFileTooLarge)
	}

	reader := resp.Body
	if limit > 0 {
		reader = io.NopCloser(io.LimitReader(resp.Body, limit+1))
	}
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	if limit > 0 && int64(len(data)) > limit {
		return nil, fmt.Errorf("download %s: %w", path, domain.ErrFileTooLarge)
	}
	return &domain.DownloadedFile{
		Data:        data,
		ContentType: resp.Header.Get("Content-Type"),
		Path:        path,
	}, nil
}

// SetWebhook registers url. tgbotapi's WebhookConfig has no secret token
// field, so the raw endpoint is called.
func (c *Client) SetWebhook(_ context.Context, url, secret string) error {
	params := tgbotapi.Params{}
	params["url"] = url
	params.AddNonEmpty("secret_token", secret)
	params["allowed_updates"] = `["message","callback_query"]`
	if _, err := c.bot.MakeRequest("setWebhook", params); err != nil {
		return fmt.Errorf("setWebhook: %w", err)
	}
	return nil
}

func (c *Client) SetCommands(_ context.Context, cmds []domain.BotCommand) error {
	list := make([]tgbotapi.BotCommand, 0, len(cmds))
	for _, cmd := range cmds {
		list = append(list, tgbotapi.BotCommand{Command: cmd.Command, Description: cmd.Description})
	}
	if _, err := c.bot.Request(tgbotapi.NewSetMyCommands(list...)); err != nil {
		return fmt.Errorf("setMyCommands: %w", err)
	}
	return nil
}

func inlineMarkup(kb domain.Keyboard) (tgbotapi.InlineKeyboardMarkup, bool) {
	if len(kb) == 0 {
		return tgbotapi.InlineKeyboardMarkup{}, false
	}
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(kb))
	for _, row := range kb {
		if len(row) == 0 {
			continue
		}
		buttons := make([]tgbotapi.InlineKeyboardButton, 0, len(row))
		for _, b := range row {
			if b.URL != "" {
				buttons = append(buttons, tgbotapi.NewInlineKeyboardButtonURL(b.Text, b.URL))
				continue
			}
			buttons = append(buttons, tgbotapi.NewInlineKeyboardButtonData(b.Text, b.Data))
		}
		rows = append(rows, buttons)
	}
	if len(rows) == 0 {
		return tgbotapi.InlineKeyboardMarkup{}, false
	}
	return tgbotapi.NewInlineKeyboardMarkup(rows...), true
}

// isNotModified reports the error returned when an edit changes nothing.
func isNotModified(err error) bool {
	var apiErr *tgbotapi.Error
	if errors.As(err, &apiErr) {
		return strings.Contains(apiErr.Message, "message is not modified")
	}
	return strings.Contains(err.Error(), "message is not modified")
}
