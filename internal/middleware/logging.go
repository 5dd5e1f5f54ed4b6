package middleware

import (
	"context"
	"log/slog"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

// source describes where an update came from.
type source struct {
	kind   string
	chatID int64
	from   *models.User
}

func sourceOf(update *models.Update) source {
	switch {
	case update.Message != nil:
		return source{kind: "message", chatID: update.Message.Chat.ID, from: update.Message.From}
	case update.CallbackQuery != nil:
		s := source{kind: "callback_query", from: &update.CallbackQuery.From}
		if update.CallbackQuery.Message.Message != nil {
			s.chatID = update.CallbackQuery.Message.Message.Chat.ID
		}
		return s
	}
	return source{kind: "unknown"}
}

func (s source) userID() int64 {
	if s.from == nil {
		return 0
	}
	return s.from.ID
}

// Logging returns middleware that logs update processing time.
func Logging() bot.Middleware {
	return func(next bot.HandlerFunc) bot.HandlerFunc {
		return func(ctx context.Context, b *bot.Bot, update *models.Update) {
			start := time.Now()
			src := sourceOf(update)

			next(ctx, b, update)

			slog.Debug("update processed",
				"type", src.kind,
				"chat_id", src.chatID,
				"user_id", src.userID(),
				"duration", time.Since(start),
			)
		}
	}
}
