package middleware

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/set-night/acueducto/internal/config"
)

// Limiter counts requests per key in fixed one minute windows.
type Limiter interface {
	Allow(ctx context.Context, key string, limit int) (bool, error)
}

// RateLimit returns middleware that enforces per-minute rate limits per chat.
// Administrators get a higher ceiling. A limiter failure lets the update through.
func RateLimit(limiter Limiter, admins interface{ IsAdmin(int64) bool }) bot.Middleware {
	return func(next bot.HandlerFunc) bot.HandlerFunc {
		return func(ctx context.Context, b *bot.Bot, update *models.Update) {
			// Only rate limit messages (not callbacks or other updates)
			if update.Message == nil {
				next(ctx, b, update)
				return
			}

			src := sourceOf(update)
			limit := config.RateLimitCustomer
			if admins != nil && admins.IsAdmin(src.userID()) {
				limit = config.RateLimitAdmin
			}

			ok, err := limiter.Allow(ctx, fmt.Sprintf("chat:%d", src.chatID), limit)
			if err != nil {
				slog.Error("rate limit check failed", "error", err, "chat_id", src.chatID)
				next(ctx, b, update)
				return
			}

			if !ok {
				slog.Debug("rate limited", "chat_id", src.chatID, "limit", limit)
				if _, err := b.SendMessage(ctx, &bot.SendMessageParams{
					ChatID: src.chatID,
					Text:   "⏳ Too many requests. Please wait a moment.",
				}); err != nil {
					slog.Warn("failed to send rate limit notice", "chat_id", src.chatID, "error", err)
				}
				return
			}

			next(ctx, b, update)
		}
	}
}
