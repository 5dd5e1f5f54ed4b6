package handler

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/set-night/acueducto/internal/config"
	"github.com/set-night/acueducto/internal/domain"
	"github.com/set-night/acueducto/internal/service"
	tg "github.com/set-night/acueducto/internal/telegram"
)

// Handler holds all dependencies needed by command and callback handlers.
type Handler struct {
	bot         *bot.Bot
	cfg         *config.Config
	loc         *time.Location
	invoices    *service.InvoiceService
	analysis    *service.AnalysisService
	checkouts   *service.CheckoutService
	memberships *service.MembershipService
	policies    *service.PolicyStore
	ops         *tg.OpsLogger
}

// Deps contains all dependencies required to construct a Handler.
type Deps struct {
	Bot         *bot.Bot
	Cfg         *config.Config
	Location    *time.Location
	Invoices    *service.InvoiceService
	Analysis    *service.AnalysisService
	Checkouts   *service.CheckoutService
	Memberships *service.MembershipService
	Policies    *service.PolicyStore
	Ops         *tg.OpsLogger
}

// New creates a new Handler from the provided dependencies.
func New(deps Deps) *Handler {
	loc := deps.Location
	if loc == nil {
		loc = time.UTC
	}
	return &Handler{
		bot:         deps.Bot,
		cfg:         deps.Cfg,
		loc:         loc,
		invoices:    deps.Invoices,
		analysis:    deps.Analysis,
		checkouts:   deps.Checkouts,
		memberships: deps.Memberships,
		policies:    deps.Policies,
		ops:         deps.Ops,
	}
}

func (h *Handler) reply(ctx context.Context, b *bot.Bot, chatID int64, text string, markup models.ReplyMarkup) {
	if err := tg.SendLongMessage(ctx, b, chatID, text, markup); err != nil {
		slog.Error("failed to send reply", "chat_id", chatID, "error", err)
	}
}

// callbackChat acknowledges a callback query and returns the chat it came from.
func callbackChat(ctx context.Context, b *bot.Bot, update *models.Update) (int64, bool) {
	if update.CallbackQuery == nil {
		return 0, false
	}
	b.AnswerCallbackQuery(ctx, &bot.AnswerCallbackQueryParams{CallbackQueryID: update.CallbackQuery.ID})
	msg := update.CallbackQuery.Message.Message
	if msg == nil {
		return 0, false
	}
	return msg.Chat.ID, true
}

// commandArgs returns the words after the command itself.
func commandArgs(text string) []string {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return nil
	}
	return fields[1:]
}

// userError turns a service error into a message safe to show a customer.
func userError(err error) string {
	var verr *domain.ValidationError
	switch {
	case errors.As(err, &verr):
		return "❌ " + verr.Field + " " + verr.Message + "."
	case errors.Is(err, domain.ErrInvoiceAlreadyPaid):
		return "✅ This invoice is already paid."
	case errors.Is(err, domain.ErrNotFound):
		return "❌ Not found."
	case errors.Is(err, domain.ErrStateConflict):
		return "⚠️ That action is not allowed right now."
	case errors.Is(err, domain.ErrTransientIO):
		return "⚠️ The service is temporarily unavailable. Please try again shortly."
	default:
		return "❌ Something went wrong. Please try again later."
	}
}
