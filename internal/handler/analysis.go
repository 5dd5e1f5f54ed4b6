package handler

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/set-night/acueducto/internal/billing"
	"github.com/set-night/acueducto/internal/domain"
	"github.com/set-night/acueducto/internal/middleware"
	"github.com/set-night/acueducto/internal/service"
)

func (h *Handler) handleConsumption(ctx context.Context, b *bot.Bot, update *models.Update) {
	if update.Message == nil {
		return
	}
	customer := middleware.GetCustomer(ctx)
	if customer == nil {
		return
	}
	chatID := update.Message.Chat.ID

	a, err := h.analysis.Consumption(ctx, customer.ID)
	if err != nil {
		slog.Error("consumption analysis failed", "customer_id", customer.ID, "error", err)
		h.reply(ctx, b, chatID, userError(err), nil)
		return
	}
	h.reply(ctx, b, chatID, formatConsumption(a), nil)
}

// parseReportMonth reads an optional YYYY-MM argument. Without one the report
// covers the current month in loc.
func parseReportMonth(args []string, now time.Time, loc *time.Location) (int, time.Month, error) {
	if len(args) == 0 {
		local := now.In(loc)
		return local.Year(), local.Month(), nil
	}
	t, err := time.Parse("2006-01", args[0])
	if err != nil || len(args) > 1 {
		return 0, 0, domain.NewValidationError("month", "must look like 2006-01")
	}
	return t.Year(), t.Month(), nil
}

func (h *Handler) handleReport(ctx context.Context, b *bot.Bot, update *models.Update) {
	if update.Message == nil {
		return
	}
	customer := middleware.GetCustomer(ctx)
	if customer == nil {
		return
	}
	chatID := update.Message.Chat.ID

	year, month, err := parseReportMonth(commandArgs(update.Message.Text), time.Now(), h.loc)
	if err != nil {
		h.reply(ctx, b, chatID, userError(err)+"\nUsage: /report [YYYY-MM]", nil)
		return
	}
	r, err := h.analysis.MonthlyReport(ctx, customer.ID, year, month)
	if err != nil {
		h.reply(ctx, b, chatID, userError(err), nil)
		return
	}
	h.reply(ctx, b, chatID, formatReport(r), nil)
}

func formatConsumption(a billing.ConsumptionAnalysis) string {
	if a.Samples == 0 {
		return "📭 You have no invoices yet."
	}
	var sb strings.Builder
	sb.WriteString("💧 *Your consumption*\n\n")
	fmt.Fprintf(&sb, "Current: %s m³\n", a.Current.String())
	fmt.Fprintf(&sb, "Average: %s m³ (last %d invoices)\n", a.Average.Round(1).String(), a.Samples)
	trend := make([]string, len(a.Trend))
	for i, v := range a.Trend {
		trend[i] = v.String()
	}
	fmt.Fprintf(&sb, "Trend: %s\n", strings.Join(trend, " ← "))
	fmt.Fprintf(&sb, "Next month: about %s m³", a.Prediction.Round(1).String())
	if a.Alert {
		fmt.Fprintf(&sb, "\n\n⚠️ *%s%% above your average.* Check for leaks.", a.ExcessPercent.String())
	}
	return sb.String()
}

func formatReport(r service.MonthlyReport) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "📊 *Report %04d-%02d*\n\n", r.Year, int(r.Month))
	if r.Count == 0 {
		sb.WriteString("No invoices were issued this month.")
		return sb.String()
	}
	for _, inv := range r.Invoices {
		sb.WriteString(formatInvoiceLine(inv))
		sb.WriteString("\n")
	}
	fmt.Fprintf(&sb, "\nInvoices: %d\n", r.Count)
	fmt.Fprintf(&sb, "Consumption: %s m³\n", r.TotalConsumption.String())
	fmt.Fprintf(&sb, "*Total: %s COP*", r.TotalAmount.StringFixed(0))
	return sb.String()
}
