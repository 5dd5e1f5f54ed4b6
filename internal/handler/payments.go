package handler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/set-night/acueducto/internal/config"
	"github.com/set-night/acueducto/internal/domain"
	"github.com/set-night/acueducto/internal/gateway"
	"github.com/set-night/acueducto/internal/middleware"
	"github.com/set-night/acueducto/internal/service"
	tg "github.com/set-night/acueducto/internal/telegram"
	"github.com/shopspring/decimal"
)

// sendCheckout replies with a payment link, or explains why there is none.
func (h *Handler) sendCheckout(ctx context.Context, b *bot.Bot, chatID int64, out service.Checkout, err error) {
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrTransientIO) && out.Transaction.ReferenceCode != "":
		h.reply(ctx, b, chatID, fmt.Sprintf(
			"⚠️ The payment gateway did not answer. Your reference `%s` is saved; please try again in a few minutes.",
			out.Transaction.ReferenceCode), nil)
		return
	default:
		h.reply(ctx, b, chatID, userError(err), nil)
		return
	}

	tx := out.Transaction
	text := fmt.Sprintf("💳 *%s*\n\nAmount: *%s %s*\nReference: `%s`\n\nTap the button to pay. Check progress with /status %s",
		tg.EscapeMarkdown(out.Form.Description), gateway.FormatAmount(tx.Amount), tx.Currency,
		tx.ReferenceCode, tx.ReferenceCode)
	h.reply(ctx, b, chatID, text, tg.CheckoutKeyboard(out.Form.Link()))
}

func (h *Handler) handlePay(ctx context.Context, b *bot.Bot, update *models.Update) {
	if update.Message == nil {
		return
	}
	customer := middleware.GetCustomer(ctx)
	if customer == nil {
		return
	}
	chatID := update.Message.Chat.ID

	args := commandArgs(update.Message.Text)
	if len(args) == 0 {
		h.reply(ctx, b, chatID, "Usage: /pay <invoice number>", nil)
		return
	}
	out, err := h.checkouts.StartInvoicePayment(ctx, customer.ID, args[0])
	h.sendCheckout(ctx, b, chatID, out, err)
}

func (h *Handler) handlePayInvoiceCallback(ctx context.Context, b *bot.Bot, update *models.Update) {
	chatID, ok := callbackChat(ctx, b, update)
	if !ok {
		return
	}
	customer := middleware.GetCustomer(ctx)
	if customer == nil {
		return
	}
	number := strings.TrimPrefix(update.CallbackQuery.Data, "payinv_")
	out, err := h.checkouts.StartInvoicePayment(ctx, customer.ID, number)
	h.sendCheckout(ctx, b, chatID, out, err)
}

func (h *Handler) handleSubscribe(ctx context.Context, b *bot.Bot, update *models.Update) {
	if update.Message == nil {
		return
	}
	customer := middleware.GetCustomer(ctx)
	if customer == nil {
		return
	}
	chatID := update.Message.Chat.ID

	args := commandArgs(update.Message.Text)
	if len(args) == 0 {
		h.reply(ctx, b, chatID, "💧 *Membership plans*\n\nPick a plan to buy one month:", tg.PlanKeyboard())
		return
	}
	out, err := h.checkouts.StartMembership(ctx, customer.ID, domain.Plan(strings.ToLower(args[0])))
	h.sendCheckout(ctx, b, chatID, out, err)
}

func (h *Handler) handlePlanCallback(ctx context.Context, b *bot.Bot, update *models.Update) {
	chatID, ok := callbackChat(ctx, b, update)
	if !ok {
		return
	}
	customer := middleware.GetCustomer(ctx)
	if customer == nil {
		return
	}
	plan := domain.Plan(strings.TrimPrefix(update.CallbackQuery.Data, "plan_"))
	out, err := h.checkouts.StartMembership(ctx, customer.ID, plan)
	h.sendCheckout(ctx, b, chatID, out, err)
}

var thousands = strings.NewReplacer(".", "", ",", "")

// parseDonation reads "/donate <amount> [monthly]". Amounts are whole pesos,
// thousands separators allowed.
func parseDonation(args []string) (decimal.Decimal, domain.Recurrence, error) {
	amount, err := decimal.NewFromString(thousands.Replace(args[0]))
	if err != nil {
		return decimal.Zero, "", domain.NewValidationError("amount", "must be a whole number of pesos")
	}
	recurrence := domain.RecurrenceOnce
	if len(args) > 1 {
		switch strings.ToLower(args[1]) {
		case "monthly", "mensual":
			recurrence = domain.RecurrenceMonthly
		case "once":
		default:
			return decimal.Zero, "", domain.NewValidationError("recurrence", "must be once or monthly")
		}
	}
	return amount, recurrence, nil
}

func (h *Handler) handleDonate(ctx context.Context, b *bot.Bot, update *models.Update) {
	if update.Message == nil {
		return
	}
	chatID := update.Message.Chat.ID

	args := commandArgs(update.Message.Text)
	if len(args) == 0 {
		text := fmt.Sprintf("🤝 *Support the aqueduct*\n\nChoose an amount or send /donate <amount> [monthly]. Minimum %d COP.",
			config.MinDonationAmount)
		h.reply(ctx, b, chatID, text, tg.DonationKeyboard(config.DonationPresets))
		return
	}

	amount, recurrence, err := parseDonation(args)
	if err != nil {
		h.reply(ctx, b, chatID, userError(err), nil)
		return
	}
	h.startDonation(ctx, b, chatID, amount, recurrence)
}

func (h *Handler) handleDonateCallback(ctx context.Context, b *bot.Bot, update *models.Update) {
	chatID, ok := callbackChat(ctx, b, update)
	if !ok {
		return
	}
	amount, err := strconv.ParseInt(strings.TrimPrefix(update.CallbackQuery.Data, "donate_"), 10, 64)
	if err != nil {
		return
	}
	h.startDonation(ctx, b, chatID, decimal.NewFromInt(amount), domain.RecurrenceOnce)
}

func (h *Handler) startDonation(ctx context.Context, b *bot.Bot, chatID int64, amount decimal.Decimal, recurrence domain.Recurrence) {
	var customerID *int64
	if c := middleware.GetCustomer(ctx); c != nil {
		customerID = &c.ID
	}
	out, err := h.checkouts.StartDonation(ctx, customerID, amount, recurrence)
	h.sendCheckout(ctx, b, chatID, out, err)
}

func (h *Handler) handleStatus(ctx context.Context, b *bot.Bot, update *models.Update) {
	if update.Message == nil {
		return
	}
	customer := middleware.GetCustomer(ctx)
	if customer == nil {
		return
	}
	chatID := update.Message.Chat.ID

	args := commandArgs(update.Message.Text)
	if len(args) == 0 {
		h.reply(ctx, b, chatID, "Usage: /status <reference>", nil)
		return
	}

	tx, err := h.checkouts.Status(ctx, args[0])
	if err == nil && (tx.CustomerID == nil || *tx.CustomerID != customer.ID) {
		err = domain.ErrTransactionNotFound
	}
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			slog.Error("checkout status failed", "reference", args[0], "error", err)
		}
		h.reply(ctx, b, chatID, userError(err), nil)
		return
	}

	icon := map[domain.TxStatus]string{
		domain.TxStatusPending:   "🕒",
		domain.TxStatusCompleted: "✅",
		domain.TxStatusFailed:    "❌",
	}[tx.Status]
	h.reply(ctx, b, chatID, fmt.Sprintf("%s Payment `%s` is *%s* (%s %s).",
		icon, tx.ReferenceCode, tx.Status, gateway.FormatAmount(tx.Amount), tx.Currency), nil)
}
