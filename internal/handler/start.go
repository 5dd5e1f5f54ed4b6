package handler

import (
	"context"
	"fmt"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/set-night/acueducto/internal/middleware"
	tg "github.com/set-night/acueducto/internal/telegram"
)

func (h *Handler) handleStart(ctx context.Context, b *bot.Bot, update *models.Update) {
	if update.Message == nil || update.Message.Chat.Type != models.ChatTypePrivate {
		return
	}

	customer := middleware.GetCustomer(ctx)
	if customer == nil {
		return
	}

	text := fmt.Sprintf(
		"👋 Hello, *%s*!\n\n"+
			"I help you keep track of your water bills and rewards.\n\n"+
			"📋 *Commands:*\n"+
			"/invoice — Your invoices\n"+
			"/invoice <number> — Invoice details\n"+
			"/pay <number> — Pay an invoice\n"+
			"/membership — Loyalty tier and benefits\n"+
			"/subscribe <plan> — Buy a membership plan\n"+
			"/donate <amount> [monthly] — Support the aqueduct\n"+
			"/status <reference> — Check a payment\n"+
			"/consumption — Usage trend and alerts\n"+
			"/report [YYYY-MM] — Monthly summary\n\n"+
			"Your customer number is `%d`.",
		tg.EscapeMarkdown(customer.Name), customer.ID,
	)
	if middleware.IsAdmin(ctx) {
		text += "\n\n🛠 *Admin:* /policy, /setpolicy, /sweep, /issue, /amend, /markpaid"
	}

	h.reply(ctx, b, update.Message.Chat.ID, text, nil)
}

func (h *Handler) handleNoop(ctx context.Context, b *bot.Bot, update *models.Update) {
	callbackChat(ctx, b, update)
}
