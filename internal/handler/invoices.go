package handler

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/set-night/acueducto/internal/config"
	"github.com/set-night/acueducto/internal/domain"
	"github.com/set-night/acueducto/internal/middleware"
	tg "github.com/set-night/acueducto/internal/telegram"
)

// invoiceHistory bounds how far back the invoice list pages.
const invoiceHistory = 60

func (h *Handler) handleInvoice(ctx context.Context, b *bot.Bot, update *models.Update) {
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
		text, markup, err := h.invoicePage(ctx, customer.ID, 0)
		if err != nil {
			h.reply(ctx, b, chatID, userError(err), nil)
			return
		}
		h.reply(ctx, b, chatID, text, markup)
		return
	}

	inv, err := h.ownInvoice(ctx, customer.ID, args[0])
	if err != nil {
		h.reply(ctx, b, chatID, userError(err), nil)
		return
	}
	h.reply(ctx, b, chatID, formatInvoice(inv, h.loc), tg.InvoiceKeyboard(inv))
}

// ownInvoice loads an invoice and hides other customers' invoices behind not found.
func (h *Handler) ownInvoice(ctx context.Context, customerID int64, number string) (domain.Invoice, error) {
	inv, err := h.invoices.Get(ctx, number)
	if err != nil {
		return domain.Invoice{}, err
	}
	if inv.CustomerID != customerID {
		return domain.Invoice{}, domain.ErrInvoiceNotFound
	}
	return inv, nil
}

func (h *Handler) invoicePage(ctx context.Context, customerID int64, page int) (string, models.ReplyMarkup, error) {
	all, err := h.invoices.ListForCustomer(ctx, customerID, invoiceHistory)
	if err != nil {
		return "", nil, err
	}
	if len(all) == 0 {
		return "📭 You have no invoices yet.", nil, nil
	}

	totalPages := (len(all) + config.InvoicesPerPage - 1) / config.InvoicesPerPage
	page = max(0, min(page, totalPages-1))
	start := page * config.InvoicesPerPage
	end := min(start+config.InvoicesPerPage, len(all))

	var sb strings.Builder
	sb.WriteString("🧾 *Your invoices*\n\n")
	var rows [][]models.InlineKeyboardButton
	for _, inv := range all[start:end] {
		sb.WriteString(formatInvoiceLine(inv))
		sb.WriteString("\n")
		if !inv.IsPaid() {
			rows = append(rows, []models.InlineKeyboardButton{
				tg.InlineButton("💳 Pay "+inv.Number, "payinv_"+inv.Number),
			})
		}
	}
	if totalPages > 1 {
		rows = append(rows, tg.PaginationRow(page, totalPages, "inv"))
	}
	if len(rows) == 0 {
		return sb.String(), nil, nil
	}
	return sb.String(), tg.InlineKeyboard(rows...), nil
}

func (h *Handler) handleInvoicePage(ctx context.Context, b *bot.Bot, update *models.Update) {
	chatID, ok := callbackChat(ctx, b, update)
	if !ok {
		return
	}
	customer := middleware.GetCustomer(ctx)
	if customer == nil {
		return
	}

	page, err := strconv.Atoi(strings.TrimPrefix(update.CallbackQuery.Data, "inv_"))
	if err != nil {
		return
	}

	text, markup, err := h.invoicePage(ctx, customer.ID, page)
	if err != nil {
		h.reply(ctx, b, chatID, userError(err), nil)
		return
	}
	messageID := update.CallbackQuery.Message.Message.ID
	if err := tg.EditLongMessage(ctx, b, chatID, messageID, text, markup); err != nil {
		slog.Warn("failed to edit invoice page", "chat_id", chatID, "error", err)
	}
}

func formatInvoiceLine(inv domain.Invoice) string {
	return fmt.Sprintf("%s `%s` · %s COP · due %s · %s",
		statusIcon(inv.Status), inv.Number, inv.Amount.StringFixed(0),
		inv.DueDate.Format("2006-01-02"), inv.Status)
}
