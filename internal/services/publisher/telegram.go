// Package publisher delivers assembled offers to Telegram and WhatsApp.
package publisher

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/promolink/internal/common"
	"github.com/ternarybob/promolink/internal/httpclient"
	"github.com/ternarybob/promolink/internal/models"
)

// BotAPI is the subset of *tgbotapi.BotAPI used for publishing
type BotAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

// Telegram publishes offers to the destination channel and talks to the admin
type Telegram struct {
	bot     BotAPI
	config  common.TelegramConfig
	adminID func(ctx context.Context) string
	retry   *httpclient.RetryPolicy
	logger  arbor.ILogger
}

// TelegramOption configures a Telegram publisher
type TelegramOption func(*Telegram)

// WithAdminResolver sets where previews and error notices go
func WithAdminResolver(resolve func(ctx context.Context) string) TelegramOption {
	return func(t *Telegram) {
		t.adminID = resolve
	}
}

// WithTelegramRetry replaces the flood-wait retry policy
func WithTelegramRetry(policy *httpclient.RetryPolicy) TelegramOption {
	return func(t *Telegram) {
		t.retry = policy
	}
}

// NewTelegram creates a Telegram publisher
func NewTelegram(bot BotAPI, config common.TelegramConfig, logger arbor.ILogger, opts ...TelegramOption) *Telegram {
	t := &Telegram{
		bot:     bot,
		config:  config,
		adminID: func(context.Context) string { return "" },
		retry:   httpclient.NewRetryPolicy(),
		logger:  logger,
	}
	if t.config.CaptionLimit <= 0 {
		t.config.CaptionLimit = 1024
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Name returns the publisher name used in logs and metrics
func (t *Telegram) Name() string {
	return "telegram"
}

// chatFor maps "-100123" / "123" to a chat id and "@name" to a channel username
func chatFor(target string) tgbotapi.BaseChat {
	target = strings.TrimSpace(target)
	if id, err := strconv.ParseInt(target, 10, 64); err == nil {
		return tgbotapi.BaseChat{ChatID: id}
	}
	if !strings.HasPrefix(target, "@") {
		target = "@" + target
	}
	return tgbotapi.BaseChat{ChannelUsername: target}
}

// PostURL builds the public link of a message in target
func PostURL(target string, messageID int) string {
	target = strings.TrimSpace(target)
	switch {
	case strings.HasPrefix(target, "-100"):
		return fmt.Sprintf("https://t.me/c/%s/%d", strings.TrimPrefix(target, "-100"), messageID)
	case strings.HasPrefix(target, "@"):
		return fmt.Sprintf("https://t.me/%s/%d", strings.TrimPrefix(target, "@"), messageID)
	default:
		return fmt.Sprintf("https://t.me/%s/%d", target, messageID)
	}
}

func keyboard(markup *models.ReplyMarkup) interface{} {
	if markup == nil || len(markup.Rows) == 0 {
		return nil
	}
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(markup.Rows))
	for _, row := range markup.Rows {
		buttons := make([]tgbotapi.InlineKeyboardButton, 0, len(row))
		for _, b := range row {
			if b.URL != "" {
				buttons = append(buttons, tgbotapi.NewInlineKeyboardButtonURL(b.Text, b.URL))
			} else {
				buttons = append(buttons, tgbotapi.NewInlineKeyboardButtonData(b.Text, b.CallbackData))
			}
		}
		rows = append(rows, buttons)
	}
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func fileExists(path string) bool {
	if path == "" {
		return false
	}
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// Publish sends the offer to the target channel and returns the post URL
func (t *Telegram) Publish(ctx context.Context, offer models.QueuedOffer) (string, error) {
	target := t.config.TargetChannel
	if target == "" {
		return "", &httpclient.PermanentError{Endpoint: "telegram", Message: "target channel not configured"}
	}

	msg, err := t.deliver(ctx, chatFor(target), offer.Text, offer.MediaPath, keyboard(offer.ReplyMarkup))
	if err != nil {
		return "", err
	}

	postURL := PostURL(target, msg.MessageID)
	t.logger.Info().Str("channel", target).Str("post_url", postURL).Msg("Offer published to Telegram")
	return postURL, nil
}

// deliver sends a captioned photo when the text fits, else an optional photo
// followed by the text. A photo left without its text is deleted.
func (t *Telegram) deliver(ctx context.Context, chat tgbotapi.BaseChat, text, mediaPath string, markup interface{}) (tgbotapi.Message, error) {
	hasMedia := fileExists(mediaPath)

	if hasMedia && utf8.RuneCountInString(text) <= t.config.CaptionLimit {
		return t.sendFormatted(ctx, func(parseMode string) tgbotapi.Chattable {
			photo := tgbotapi.PhotoConfig{BaseFile: tgbotapi.BaseFile{BaseChat: chat, File: tgbotapi.FilePath(mediaPath)}}
			photo.Caption = text
			photo.ParseMode = parseMode
			photo.ReplyMarkup = markup
			return photo
		})
	}

	var photoMsg *tgbotapi.Message
	if hasMedia {
		sent, err := t.send(ctx, tgbotapi.PhotoConfig{BaseFile: tgbotapi.BaseFile{BaseChat: chat, File: tgbotapi.FilePath(mediaPath)}})
		if err != nil {
			t.logger.Warn().Err(err).Msg("Failed to send offer photo, sending text only")
		} else {
			photoMsg = &sent
		}
	}

	msg, err := t.sendFormatted(ctx, func(parseMode string) tgbotapi.Chattable {
		m := tgbotapi.MessageConfig{BaseChat: chat, Text: text, DisableWebPagePreview: true}
		m.ParseMode = parseMode
		m.ReplyMarkup = markup
		return m
	})
	if err != nil {
		if photoMsg != nil {
			t.deletePhoto(chat, photoMsg.MessageID)
		}
		return tgbotapi.Message{}, err
	}
	return msg, nil
}

func (t *Telegram) deletePhoto(chat tgbotapi.BaseChat, messageID int) {
	del := tgbotapi.DeleteMessageConfig{ChatID: chat.ChatID, ChannelUsername: chat.ChannelUsername, MessageID: messageID}
	if _, err := t.bot.Request(del); err != nil {
		t.logger.Warn().Int("message_id", messageID).Err(err).Msg("Failed to delete orphan photo")
	}
}

// sendFormatted sends with HTML parse mode and retries once as plain text
// when Telegram rejects the markup
func (t *Telegram) sendFormatted(ctx context.Context, build func(parseMode string) tgbotapi.Chattable) (tgbotapi.Message, error) {
	msg, err := t.send(ctx, build(tgbotapi.ModeHTML))
	if err == nil || !isBadRequest(err) {
		return msg, err
	}

	t.logger.Warn().Err(err).Msg("Telegram rejected HTML, resending as plain text")
	return t.send(ctx, build(""))
}

func (t *Telegram) send(ctx context.Context, c tgbotapi.Chattable) (tgbotapi.Message, error) {
	var msg tgbotapi.Message
	err := t.retry.Do(ctx, t.logger, func() error {
		sent, err := t.bot.Send(c)
		if err != nil {
			return classifyTelegramError(err)
		}
		msg = sent
		return nil
	})
	return msg, err
}

func telegramAPIError(err error) (*tgbotapi.Error, bool) {
	var ptr *tgbotapi.Error
	if errors.As(err, &ptr) && ptr != nil {
		return ptr, true
	}
	var val tgbotapi.Error
	if errors.As(err, &val) {
		return &val, true
	}
	return nil, false
}

// classifyTelegramError maps Bot API failures to the typed categories.
// Flood waits carry retry_after in the response parameters.
func classifyTelegramError(err error) error {
	apiErr, ok := telegramAPIError(err)
	if !ok {
		return httpclient.Classify("telegram", 0, err)
	}

	if apiErr.RetryAfter > 0 || apiErr.Code == http.StatusTooManyRequests {
		return &httpclient.RateLimitedError{Endpoint: "telegram", RetryAfter: secondsDuration(apiErr.RetryAfter)}
	}
	if classified := httpclient.Classify("telegram", apiErr.Code, nil); classified != nil {
		if permanent, ok := classified.(*httpclient.PermanentError); ok {
			permanent.Message = apiErr.Message
		}
		return classified
	}
	return &httpclient.PermanentError{Endpoint: "telegram", Message: apiErr.Message}
}

func secondsDuration(seconds int) time.Duration {
	return time.Duration(seconds) * time.Second
}

func isBadRequest(err error) bool {
	var permanent *httpclient.PermanentError
	return errors.As(err, &permanent) && permanent.StatusCode == http.StatusBadRequest
}

// Notify sends an operator message to the admin chat, if one is configured
func (t *Telegram) Notify(ctx context.Context, text string) error {
	admin := t.adminID(ctx)
	if admin == "" {
		t.logger.Debug().Msg("No admin chat configured, skipping notification")
		return nil
	}
	_, err := t.send(ctx, tgbotapi.MessageConfig{BaseChat: chatFor(admin), Text: text, DisableWebPagePreview: true})
	return err
}

// PreviewMarkup is the approve / edit / reject keyboard of a pending offer
func PreviewMarkup(offerID string) *models.ReplyMarkup {
	return &models.ReplyMarkup{Rows: [][]models.InlineButton{{
		{Text: "✅ Aprovar", CallbackData: "approve_" + offerID},
		{Text: "✏️ Editar", CallbackData: "edit_" + offerID},
		{Text: "❌ Rejeitar", CallbackData: "reject_" + offerID},
	}}}
}

// SendPreview shows a pending offer to the admin with approval buttons
func (t *Telegram) SendPreview(ctx context.Context, offerID string, offer models.QueuedOffer) error {
	admin := t.adminID(ctx)
	if admin == "" {
		return &httpclient.PermanentError{Endpoint: "telegram", Message: "admin chat not configured"}
	}

	_, err := t.deliver(ctx, chatFor(admin), offer.Text, offer.MediaPath, keyboard(PreviewMarkup(offerID)))
	if err != nil {
		return fmt.Errorf("failed to send preview for %s: %w", offerID, err)
	}
	t.logger.Info().Str("offer_id", offerID).Msg("Approval preview sent")
	return nil
}
