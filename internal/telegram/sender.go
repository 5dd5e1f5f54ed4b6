package telegram

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/set-night/acueducto/internal/config"
	"github.com/set-night/acueducto/internal/domain"
)

// MessageSender is the part of the bot API used for outgoing messages.
type MessageSender interface {
	SendMessage(ctx context.Context, params *bot.SendMessageParams) (*models.Message, error)
	EditMessageText(ctx context.Context, params *bot.EditMessageTextParams) (*models.Message, error)
}

// SendLongMessage sends a potentially long message, splitting it into parts if needed.
// Falls back to plain text if Markdown parsing fails. The keyboard goes on the last part.
func SendLongMessage(ctx context.Context, b MessageSender, chatID int64, text string, markup models.ReplyMarkup) error {
	text = FixMarkdown(text)
	parts := SplitMessage(text, config.MaxTelegramMessageLen)

	for i, part := range parts {
		params := &bot.SendMessageParams{
			ChatID:    chatID,
			Text:      part,
			ParseMode: models.ParseModeMarkdownV1,
		}
		if markup != nil && i == len(parts)-1 {
			params.ReplyMarkup = markup
		}

		_, err := b.SendMessage(ctx, params)
		if err != nil {
			// Fallback to plain text
			slog.Warn("markdown send failed, falling back to plain text", "error", err)
			params.ParseMode = ""
			_, err = b.SendMessage(ctx, params)
			if err != nil {
				return fmt.Errorf("send message: %w", err)
			}
		}
	}

	return nil
}

// EditLongMessage edits a message with potentially long text.
func EditLongMessage(ctx context.Context, b MessageSender, chatID int64, messageID int, text string, markup models.ReplyMarkup) error {
	text = FixMarkdown(text)
	if len([]rune(text)) > config.MaxTelegramMessageLen {
		text = string([]rune(text)[:config.MaxTelegramMessageLen-3]) + "..."
	}

	params := &bot.EditMessageTextParams{
		ChatID:      chatID,
		MessageID:   messageID,
		Text:        text,
		ParseMode:   models.ParseModeMarkdownV1,
		ReplyMarkup: markup,
	}
	_, err := b.EditMessageText(ctx, params)
	if err != nil {
		// Fallback to plain text
		params.ParseMode = ""
		_, err = b.EditMessageText(ctx, params)
	}
	return err
}

// Notifier delivers stored customer notifications as chat messages.
type Notifier struct {
	bot MessageSender
}

func NewNotifier(b MessageSender) *Notifier {
	return &Notifier{bot: b}
}

func (n *Notifier) Deliver(ctx context.Context, chatID int64, note domain.Notification) error {
	return SendLongMessage(ctx, n.bot, chatID, FormatNotification(note), nil)
}
