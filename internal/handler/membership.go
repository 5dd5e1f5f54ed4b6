package handler

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/set-night/acueducto/internal/domain"
	"github.com/set-night/acueducto/internal/middleware"
	tg "github.com/set-night/acueducto/internal/telegram"
)

func (h *Handler) handleMembership(ctx context.Context, b *bot.Bot, update *models.Update) {
	if update.Message == nil {
		return
	}
	customer := middleware.GetCustomer(ctx)
	if customer == nil {
		return
	}
	chatID := update.Message.Chat.ID

	summary, err := h.invoices.LoyaltySummary(ctx, customer.ID)
	if err != nil {
		slog.Error("loyalty summary failed", "customer_id", customer.ID, "error", err)
		h.reply(ctx, b, chatID, userError(err), nil)
		return
	}

	var window *domain.MembershipWindow
	w, err := h.memberships.Current(ctx, customer.ID)
	switch {
	case err == nil:
		window = &w
	case !errors.Is(err, domain.ErrNotFound):
		slog.Error("membership lookup failed", "customer_id", customer.ID, "error", err)
	}

	h.reply(ctx, b, chatID, formatLoyalty(summary, window, time.Now(), h.loc), tg.PlanKeyboard())
}
