package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/set-night/acueducto/internal/billing"
	"github.com/set-night/acueducto/internal/domain"
	"github.com/set-night/acueducto/internal/repository"
)

// Deduper reports whether key is seen for the first time.
type Deduper interface {
	First(ctx context.Context, key string) (bool, error)
}

type ReminderService struct {
	store    repository.Querier
	policies PolicySource
	notifier Dispatcher
	dedupe   Deduper
	loc      *time.Location
	now      func() time.Time
}

func NewReminderService(store repository.Querier, policies PolicySource, notifier Dispatcher, dedupe Deduper, loc *time.Location) *ReminderService {
	if loc == nil {
		loc = time.UTC
	}
	return &ReminderService{
		store:    store,
		policies: policies,
		notifier: notifier,
		dedupe:   dedupe,
		loc:      loc,
		now:      time.Now,
	}
}

// Run sends one reminder per pending invoice due within the policy's lead
// window, at most once per invoice per day. It returns how many were sent.
func (s *ReminderService) Run(ctx context.Context) (int, error) {
	p, err := s.policies.Current(ctx)
	if err != nil {
		return 0, err
	}
	if !p.Notifies(domain.NotificationReminder) {
		slog.Info("payment reminders muted by policy", "policy_version", p.Version)
		return 0, nil
	}
	today := billing.CivilDate(s.now(), s.loc)
	until := today.AddDate(0, 0, p.ReminderDaysBefore)

	due, err := s.store.ListDueBetween(ctx, today, until)
	if err != nil {
		return 0, fmt.Errorf("list due invoices: %w", err)
	}

	sent := 0
	for _, inv := range due {
		key := inv.Number + ":" + today.Format(time.DateOnly)
		first, err := s.dedupe.First(ctx, key)
		if err != nil {
			slog.Error("reminder dedupe failed, skipping", "number", inv.Number, "error", err)
			continue
		}
		if !first {
			continue
		}

		days := billing.DaysBetween(today, inv.DueDate)
		s.notifier.Send(context.WithoutCancel(ctx), inv.CustomerID, domain.NotificationReminder, reminderPayload(inv, days))
		sent++
	}

	slog.Info("payment reminders sent", "candidates", len(due), "sent", sent)
	return sent, nil
}

func reminderPayload(inv domain.Invoice, days int) domain.NotificationPayload {
	var when string
	switch days {
	case 0:
		when = "today"
	case 1:
		when = "tomorrow"
	default:
		when = fmt.Sprintf("in %d days", days)
	}
	return domain.NotificationPayload{
		Title: "Payment reminder",
		Message: fmt.Sprintf("Invoice %s for %s is due %s (%s). Paying on time keeps your streak of %d going.",
			inv.Number, inv.Amount.StringFixed(0), when, inv.DueDate.Format(time.DateOnly), inv.Loyalty.PaymentStreak),
		Data: map[string]string{
			"invoice":  inv.Number,
			"due_date": inv.DueDate.Format(time.DateOnly),
			"days":     fmt.Sprintf("%d", days),
		},
	}
}
