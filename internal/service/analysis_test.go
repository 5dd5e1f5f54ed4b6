package service

import (
	"context"
	"testing"
	"time"

	"github.com/set-night/acueducto/internal/config"
	"github.com/set-night/acueducto/internal/domain"
	"github.com/set-night/acueducto/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type analysisFixture struct {
	store    *memStore
	notes    *recordingDispatcher
	svc      *AnalysisService
	customer domain.Customer
}

func newAnalysisFixture(t *testing.T, p domain.Policy) *analysisFixture {
	t.Helper()
	store := newMemStore()
	notes := &recordingDispatcher{}
	_, rdb := newTestRedis(t)
	return &analysisFixture{
		store:    store,
		notes:    notes,
		svc:      NewAnalysisService(store, StaticPolicy(p), notes, repository.NewDedupe(rdb, "consumption", config.ConsumptionAlertDedupeTTL)),
		customer: store.addCustomer("Ana", nil),
	}
}

// monthly stores one invoice per month ending with the given month, oldest first.
func (f *analysisFixture) monthly(last time.Month, usage ...string) {
	first := last - time.Month(len(usage)-1)
	for i, u := range usage {
		m := first + time.Month(i)
		f.store.putInvoice(domain.Invoice{
			Number:      "F-" + day(2026, m, 1).Format("2006-01"),
			CustomerID:  f.customer.ID,
			PeriodStart: day(2026, m, 1),
			PeriodEnd:   day(2026, m, 28),
			IssuedAt:    day(2026, m+1, 1),
			Readings:    domain.Readings{Consumption: dec(u)},
			Amount:      dec(u).Mul(dec("1000")),
			Status:      domain.InvoiceStatusPending,
		})
	}
}

func TestAnalysisService_ConsumptionAlertsOncePerInvoice(t *testing.T) {
	f := newAnalysisFixture(t, domain.DefaultPolicy())
	ctx := context.Background()
	f.monthly(time.May, "20", "30", "50", "40", "60")

	a, err := f.svc.Consumption(ctx, f.customer.ID)
	require.NoError(t, err)
	assert.True(t, a.Alert)
	assert.True(t, dec("60").Equal(a.Current))
	assert.True(t, dec("40").Equal(a.Average))
	assert.True(t, dec("50").Equal(a.Prediction))

	sent := f.notes.all()
	require.Len(t, sent, 1)
	assert.Equal(t, domain.NotificationConsumption, sent[0].Kind)
	assert.Equal(t, "F-2026-05", sent[0].Payload.Data["invoice"])
	assert.Contains(t, sent[0].Payload.Message, "50% above your average (40 m³)")

	_, err = f.svc.Consumption(ctx, f.customer.ID)
	require.NoError(t, err)
	assert.Len(t, f.notes.all(), 1, "same invoice alerts once")
}

func TestAnalysisService_ConsumptionQuiet(t *testing.T) {
	t.Run("normal usage", func(t *testing.T) {
		f := newAnalysisFixture(t, domain.DefaultPolicy())
		f.monthly(time.March, "45", "40", "50")

		a, err := f.svc.Consumption(context.Background(), f.customer.ID)
		require.NoError(t, err)
		assert.False(t, a.Alert)
		assert.Empty(t, f.notes.all())
	})

	t.Run("muted by policy", func(t *testing.T) {
		p := domain.DefaultPolicy()
		p.MuteReminders = true
		f := newAnalysisFixture(t, p)
		f.monthly(time.May, "20", "30", "50", "40", "60")

		a, err := f.svc.Consumption(context.Background(), f.customer.ID)
		require.NoError(t, err)
		assert.True(t, a.Alert, "analysis still reports the spike")
		assert.Empty(t, f.notes.all())
	})

	t.Run("no invoices", func(t *testing.T) {
		f := newAnalysisFixture(t, domain.DefaultPolicy())

		a, err := f.svc.Consumption(context.Background(), f.customer.ID)
		require.NoError(t, err)
		assert.Zero(t, a.Samples)
		assert.Empty(t, f.notes.all())
	})
}

func TestAnalysisService_ConsumptionWindow(t *testing.T) {
	f := newAnalysisFixture(t, domain.DefaultPolicy())
	// the oldest invoice falls outside the analysis window
	f.store.putInvoice(domain.Invoice{
		Number:     "F-old",
		CustomerID: f.customer.ID,
		PeriodEnd:  day(2024, 1, 31),
		Readings:   domain.Readings{Consumption: dec("1000")},
	})
	usage := make([]string, config.ConsumptionHistory)
	for i := range usage {
		usage[i] = "10"
	}
	f.monthly(time.December, usage...)

	a, err := f.svc.Consumption(context.Background(), f.customer.ID)
	require.NoError(t, err)
	assert.Equal(t, config.ConsumptionHistory, a.Samples)
	assert.True(t, dec("10").Equal(a.Average))
}

func TestAnalysisService_MonthlyReport(t *testing.T) {
	f := newAnalysisFixture(t, domain.DefaultPolicy())
	f.monthly(time.March, "45", "40", "50")
	// a second invoice issued in April, for a meter reading correction
	f.store.putInvoice(domain.Invoice{
		Number:     "F-extra",
		CustomerID: f.customer.ID,
		PeriodEnd:  day(2026, 3, 31),
		IssuedAt:   day(2026, 4, 30),
		Readings:   domain.Readings{Consumption: dec("2.5")},
		Amount:     dec("2500"),
	})
	other := f.store.addCustomer("Luis", nil)
	f.store.putInvoice(domain.Invoice{Number: "F-luis", CustomerID: other.ID, IssuedAt: day(2026, 4, 1), Amount: dec("1")})

	r, err := f.svc.MonthlyReport(context.Background(), f.customer.ID, 2026, time.April)
	require.NoError(t, err)
	assert.Equal(t, 2, r.Count)
	assert.True(t, dec("52.5").Equal(r.TotalConsumption), "got %s", r.TotalConsumption)
	assert.True(t, dec("52500").Equal(r.TotalAmount), "got %s", r.TotalAmount)
	require.Len(t, r.Invoices, 2)
	assert.Equal(t, "F-2026-03", r.Invoices[0].Number)
	assert.Equal(t, "F-extra", r.Invoices[1].Number)

	r, err = f.svc.MonthlyReport(context.Background(), f.customer.ID, 2025, time.April)
	require.NoError(t, err)
	assert.Zero(t, r.Count)
	assert.True(t, r.TotalAmount.IsZero())
}

func TestAnalysisService_MonthlyReportRejectsBadMonth(t *testing.T) {
	f := newAnalysisFixture(t, domain.DefaultPolicy())

	_, err := f.svc.MonthlyReport(context.Background(), f.customer.ID, 2026, 13)
	var verr *domain.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "month", verr.Field)

	_, err = f.svc.MonthlyReport(context.Background(), f.customer.ID, 12, time.March)
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "year", verr.Field)
}
