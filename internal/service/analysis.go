package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/set-night/acueducto/internal/billing"
	"github.com/set-night/acueducto/internal/config"
	"github.com/set-night/acueducto/internal/domain"
	"github.com/set-night/acueducto/internal/repository"
	"github.com/shopspring/decimal"
)

// AnalysisService answers read-only questions about a customer's usage and
// raises high-consumption alerts.
type AnalysisService struct {
	store    repository.Querier
	policies PolicySource
	notifier Dispatcher
	dedupe   Deduper
}

func NewAnalysisService(store repository.Querier, policies PolicySource, notifier Dispatcher, dedupe Deduper) *AnalysisService {
	return &AnalysisService{
		store:    store,
		policies: policies,
		notifier: notifier,
		dedupe:   dedupe,
	}
}

// Consumption analyzes the customer's most recent invoices. An alert is sent
// at most once per latest invoice, unless the policy mutes reminders.
func (s *AnalysisService) Consumption(ctx context.Context, customerID int64) (billing.ConsumptionAnalysis, error) {
	history, err := s.store.ListCustomerInvoices(ctx, customerID, config.ConsumptionHistory)
	if err != nil {
		return billing.ConsumptionAnalysis{}, fmt.Errorf("list invoices: %w", err)
	}
	a := billing.AnalyzeConsumption(history)
	if !a.Alert {
		return a, nil
	}

	p, err := s.policies.Current(ctx)
	if err != nil {
		return a, err
	}
	if !p.Notifies(domain.NotificationConsumption) {
		return a, nil
	}

	latest := history[0].Number
	first, err := s.dedupe.First(ctx, latest)
	if err != nil {
		slog.Error("consumption alert dedupe failed, skipping", "number", latest, "error", err)
		return a, nil
	}
	if first {
		s.notifier.Send(context.WithoutCancel(ctx), customerID, domain.NotificationConsumption, consumptionPayload(latest, a))
	}
	return a, nil
}

func consumptionPayload(number string, a billing.ConsumptionAnalysis) domain.NotificationPayload {
	return domain.NotificationPayload{
		Title: "High water consumption",
		Message: fmt.Sprintf("Your current consumption (%s m³) is %s%% above your average (%s m³).",
			a.Current.String(), a.ExcessPercent.String(), a.Average.Round(0).String()),
		Data: map[string]string{
			"invoice":    number,
			"current":    a.Current.String(),
			"average":    a.Average.String(),
			"difference": a.Current.Sub(a.Average).String(),
			"prediction": a.Prediction.String(),
		},
	}
}

// MonthlyReport totals the invoices issued to a customer in one calendar month.
type MonthlyReport struct {
	Year             int
	Month            time.Month
	Count            int
	TotalConsumption decimal.Decimal
	TotalAmount      decimal.Decimal
	Invoices         []domain.Invoice
}

func (s *AnalysisService) MonthlyReport(ctx context.Context, customerID int64, year int, month time.Month) (MonthlyReport, error) {
	if month < time.January || month > time.December {
		return MonthlyReport{}, domain.NewValidationError("month", "must be between 1 and 12")
	}
	if year < 2000 || year > 9999 {
		return MonthlyReport{}, domain.NewValidationError("year", "is out of range")
	}

	from := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 1, -1)
	invoices, err := s.store.ListCustomerInvoicesIssuedBetween(ctx, customerID, from, to)
	if err != nil {
		return MonthlyReport{}, fmt.Errorf("list invoices: %w", err)
	}

	r := MonthlyReport{
		Year:             year,
		Month:            month,
		Count:            len(invoices),
		TotalConsumption: decimal.Zero,
		TotalAmount:      decimal.Zero,
		Invoices:         invoices,
	}
	for _, inv := range invoices {
		r.TotalConsumption = r.TotalConsumption.Add(inv.Readings.Consumption)
		r.TotalAmount = r.TotalAmount.Add(inv.Amount)
	}
	return r, nil
}
