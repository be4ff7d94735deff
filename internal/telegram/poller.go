package telegram

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"memobridge/internal/domain"
)

// Handler processes one normalized update.
type Handler func(ctx context.Context, upd domain.Update)

const (
	pollTimeoutSeconds = 30
	pollRetryDelay     = 3 * time.Second
)

// Poll long-polls getUpdates and hands each update to handle in order until
// ctx is cancelled. Any registered webhook is removed first since the Bot API
// refuses getUpdates while one is active.
//
// Updates are fetched raw and decoded with ParseUpdate so polling and the
// webhook share one normaliser, including forward_origin.
func Poll(ctx context.Context, c *Client, maxPhotoBytes int64, handle Handler) error {
	bot := c.API()
	if _, err := bot.Request(tgbotapi.DeleteWebhookConfig{}); err != nil {
		return fmt.Errorf("deleteWebhook: %w", err)
	}

	c.logger.Info("telegram polling started")

	offset := 0
	for {
		if ctx.Err() != nil {
			c.logger.Info("telegram polling stopping")
			return nil
		}
		batch, err := c.getUpdates(offset)
		if err != nil {
			c.logger.Warn("getUpdates failed, retrying", "err", err, "retry_in", pollRetryDelay)
			select {
			case <-ctx.Done():
				c.logger.Info("telegram polling stopping")
				return nil
			case <-time.After(pollRetryDelay):
			}
			continue
		}
		for _, raw := range batch {
			var head struct {
				UpdateID int `json:"update_id"`
			}
			if err := json.Unmarshal(raw, &head); err != nil {
				c.logger.Warn("skipping undecodable update", "err", err)
				continue
			}
			if head.UpdateID >= offset {
				offset = head.UpdateID + 1
			}
			upd, err := ParseUpdate(raw, maxPhotoBytes)
			if err != nil {
				c.logger.Warn("skipping malformed update", "update_id", head.UpdateID, "err", err)
				continue
			}
			if upd.Message == nil && upd.Callback == nil {
				c.logger.Debug("ignoring update", "update_id", head.UpdateID)
				continue
			}
			handle(ctx, upd)
		}
	}
}

// getUpdates returns the raw update objects after offset.
func (c *Client) getUpdates(offset int) ([]json.RawMessage, error) {
	params := tgbotapi.Params{
		"offset":  strconv.Itoa(offset),
		"timeout": strconv.Itoa(pollTimeoutSeconds),
	}
	if err := params.AddInterface("allowed_updates", []string{"message", "callback_query"}); err != nil {
		return nil, err
	}
	resp, err := c.bot.MakeRequest("getUpdates", params)
	if err != nil {
		return nil, err
	}
	var batch []json.RawMessage
	if err := json.Unmarshal(resp.Result, &batch); err != nil {
		return nil, fmt.Errorf("decode getUpdates: %w", err)
	}
	return batch, nil
}
