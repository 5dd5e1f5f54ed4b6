package middleware

import (
	"context"
	"log/slog"
	"strings"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/set-night/acueducto/internal/domain"
)

type ctxKey string

const (
	CustomerKey ctxKey = "customer"
	AdminKey    ctxKey = "admin"
)

// GetCustomer extracts the customer from context.
func GetCustomer(ctx context.Context) *domain.Customer {
	c, ok := ctx.Value(CustomerKey).(*domain.Customer)
	if !ok {
		return nil
	}
	return c
}

func IsAdmin(ctx context.Context) bool {
	admin, _ := ctx.Value(AdminKey).(bool)
	return admin
}

// CustomerStore links Telegram chats to customers.
type CustomerStore interface {
	UpsertTelegramCustomer(ctx context.Context, chatID int64, name string) (domain.Customer, error)
}

// CustomerLoader returns middleware that loads the customer behind a private
// chat into context, registering the chat on first contact.
func CustomerLoader(store CustomerStore, admins interface{ IsAdmin(int64) bool }) bot.Middleware {
	return func(next bot.HandlerFunc) bot.HandlerFunc {
		return func(ctx context.Context, b *bot.Bot, update *models.Update) {
			src := sourceOf(update)
			if src.from == nil || src.chatID == 0 {
				next(ctx, b, update)
				return
			}

			ctx = context.WithValue(ctx, AdminKey, admins != nil && admins.IsAdmin(src.from.ID))

			name := strings.TrimSpace(src.from.FirstName + " " + src.from.LastName)
			if name == "" {
				name = src.from.Username
			}
			customer, err := store.UpsertTelegramCustomer(ctx, src.chatID, name)
			if err != nil {
				slog.Error("failed to load customer", "chat_id", src.chatID, "error", err)
			} else {
				ctx = context.WithValue(ctx, CustomerKey, &customer)
			}

			next(ctx, b, update)
		}
	}
}
