package handler

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/set-night/acueducto/internal/domain"
	"github.com/set-night/acueducto/internal/middleware"
	"github.com/set-night/acueducto/internal/service"
	tg "github.com/set-night/acueducto/internal/telegram"
	"github.com/shopspring/decimal"
)

// adminChat returns the chat of an admin command, or false for everyone else.
func adminChat(ctx context.Context, update *models.Update) (int64, bool) {
	if update.Message == nil || !middleware.IsAdmin(ctx) {
		return 0, false
	}
	return update.Message.Chat.ID, true
}

func actor(update *models.Update) string {
	if from := update.Message.From; from != nil {
		if from.Username != "" {
			return "@" + from.Username
		}
		return strconv.FormatInt(from.ID, 10)
	}
	return "unknown"
}

func (h *Handler) handlePolicy(ctx context.Context, b *bot.Bot, update *models.Update) {
	chatID, ok := adminChat(ctx, update)
	if !ok {
		return
	}

	p, err := h.policies.Current(ctx)
	if err != nil {
		h.reply(ctx, b, chatID, userError(err), nil)
		return
	}
	h.reply(ctx, b, chatID, formatPolicy(p)+"\n\nChange with /setpolicy <field> <value>", nil)
}

func (h *Handler) handleSetPolicy(ctx context.Context, b *bot.Bot, update *models.Update) {
	chatID, ok := adminChat(ctx, update)
	if !ok {
		return
	}

	args := commandArgs(update.Message.Text)
	if len(args) != 2 {
		h.reply(ctx, b, chatID, "Usage: /setpolicy <field> <value>\nFields: "+strings.Join(service.PolicyFields, ", "), nil)
		return
	}

	p, err := h.policies.SetField(ctx, args[0], args[1], actor(update))
	if err != nil {
		h.reply(ctx, b, chatID, userError(err), nil)
		return
	}
	h.ops.LogPolicy(p)
	h.reply(ctx, b, chatID, "✅ Saved.\n\n"+formatPolicy(p), nil)
}

func (h *Handler) handleSweep(ctx context.Context, b *bot.Bot, update *models.Update) {
	chatID, ok := adminChat(ctx, update)
	if !ok {
		return
	}

	report, err := h.invoices.Sweep(ctx)
	if err != nil {
		slog.Error("manual sweep failed", "error", err)
		h.ops.LogError(err, "manual sweep")
		h.reply(ctx, b, chatID, userError(err), nil)
		return
	}
	h.ops.LogSweep(report.Summary())
	h.reply(ctx, b, chatID, formatSweep(report), nil)
}

const issueUsage = "Usage: /issue <customer> <number> <previous> <current> <fixed> <usage> <due YYYY-MM-DD> [other]"

// parseIssue reads the arguments of /issue. The billing period is the
// calendar month before the due date's month.
func parseIssue(args []string, loc *time.Location) (domain.NewInvoice, error) {
	if len(args) < 7 || len(args) > 8 {
		return domain.NewInvoice{}, domain.NewValidationError("arguments", "expected 7 or 8 values")
	}
	customerID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return domain.NewInvoice{}, domain.NewValidationError("customer", "must be a number")
	}

	names := []string{"previous_reading", "current_reading", "fixed_charge", "usage_charge", "other_charge"}
	raw := []string{args[2], args[3], args[4], args[5], "0"}
	if len(args) == 8 {
		raw[4] = args[7]
	}
	values := make([]decimal.Decimal, len(names))
	for i, name := range names {
		values[i], err = decimal.NewFromString(raw[i])
		if err != nil {
			return domain.NewInvoice{}, domain.NewValidationError(name, "must be a number")
		}
	}

	due, err := time.ParseInLocation(time.DateOnly, args[6], loc)
	if err != nil {
		return domain.NewInvoice{}, domain.NewValidationError("due_date", "must look like 2006-01-02")
	}
	periodStart := time.Date(due.Year(), due.Month()-1, 1, 0, 0, 0, 0, time.UTC)

	return domain.NewInvoice{
		Number:          args[1],
		CustomerID:      customerID,
		PeriodStart:     periodStart,
		PeriodEnd:       periodStart.AddDate(0, 1, -1),
		PreviousReading: values[0],
		CurrentReading:  values[1],
		FixedCharge:     values[2],
		UsageCharge:     values[3],
		OtherCharge:     values[4],
		DueDate:         time.Date(due.Year(), due.Month(), due.Day(), 0, 0, 0, 0, time.UTC),
	}, nil
}

func (h *Handler) handleIssue(ctx context.Context, b *bot.Bot, update *models.Update) {
	chatID, ok := adminChat(ctx, update)
	if !ok {
		return
	}

	in, err := parseIssue(commandArgs(update.Message.Text), h.loc)
	if err != nil {
		h.reply(ctx, b, chatID, userError(err)+"\n"+issueUsage, nil)
		return
	}
	inv, err := h.invoices.Create(ctx, in)
	if err != nil {
		h.reply(ctx, b, chatID, userError(err), nil)
		return
	}
	h.reply(ctx, b, chatID, "✅ Issued.\n\n"+formatInvoice(inv, h.loc), nil)
}

func (h *Handler) handleMarkPaid(ctx context.Context, b *bot.Bot, update *models.Update) {
	chatID, ok := adminChat(ctx, update)
	if !ok {
		return
	}

	args := commandArgs(update.Message.Text)
	if len(args) != 1 {
		h.reply(ctx, b, chatID, "Usage: /markpaid <invoice number>", nil)
		return
	}
	inv, err := h.invoices.Pay(ctx, args[0])
	if err != nil {
		h.reply(ctx, b, chatID, userError(err), nil)
		return
	}
	h.ops.Log(tg.LogTypePayment, fmt.Sprintf("💵 *Invoice %s paid at the office* by %s", inv.Number, actor(update)))
	h.reply(ctx, b, chatID, "✅ Recorded.\n\n"+formatInvoice(inv, h.loc), nil)
}

const amendUsage = "Usage: /amend <number> <field>=<value> ...\nFields: previous_reading, current_reading, fixed_charge, usage_charge, other_charge"

// parseAmendment reads the arguments of /amend: an invoice number followed by
// field=value pairs.
func parseAmendment(args []string) (string, domain.InvoiceAmendment, error) {
	var a domain.InvoiceAmendment
	if len(args) < 2 {
		return "", a, domain.NewValidationError("arguments", "expected a number and at least one field")
	}
	targets := map[string]**decimal.Decimal{
		"previous_reading": &a.PreviousReading,
		"current_reading":  &a.CurrentReading,
		"fixed_charge":     &a.FixedCharge,
		"usage_charge":     &a.UsageCharge,
		"other_charge":     &a.OtherCharge,
	}
	for _, arg := range args[1:] {
		field, raw, ok := strings.Cut(arg, "=")
		target, known := targets[field]
		if !ok || !known {
			return "", a, domain.NewValidationError(field, "is not an amendable field")
		}
		v, err := decimal.NewFromString(raw)
		if err != nil {
			return "", a, domain.NewValidationError(field, "must be a number")
		}
		*target = &v
	}
	return args[0], a, nil
}

func (h *Handler) handleAmend(ctx context.Context, b *bot.Bot, update *models.Update) {
	chatID, ok := adminChat(ctx, update)
	if !ok {
		return
	}

	number, a, err := parseAmendment(commandArgs(update.Message.Text))
	if err != nil {
		h.reply(ctx, b, chatID, userError(err)+"\n"+amendUsage, nil)
		return
	}
	inv, err := h.invoices.Amend(ctx, number, a)
	if err != nil {
		h.reply(ctx, b, chatID, userError(err), nil)
		return
	}
	h.ops.Log(tg.LogTypePayment, fmt.Sprintf("✏️ *Invoice %s amended* by %s, now %s COP",
		inv.Number, actor(update), inv.Amount.StringFixed(0)))
	h.reply(ctx, b, chatID, "✅ Amended.\n\n"+formatInvoice(inv, h.loc), nil)
}
