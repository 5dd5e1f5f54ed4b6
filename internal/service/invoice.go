package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/set-night/acueducto/internal/billing"
	"github.com/set-night/acueducto/internal/config"
	"github.com/set-night/acueducto/internal/domain"
	"github.com/set-night/acueducto/internal/metrics"
	"github.com/set-night/acueducto/internal/repository"
	"golang.org/x/sync/errgroup"
)

type InvoiceService struct {
	store    repository.Store
	policies PolicySource
	machine  *billing.Machine
	notifier Dispatcher
	metrics  *metrics.Metrics
	loc      *time.Location
	workers  int
	now      func() time.Time

	benefits *expirable.LRU[string, []domain.Benefit]
}

type InvoiceOptions struct {
	Location *time.Location
	Workers  int
}

func NewInvoiceService(store repository.Store, policies PolicySource, notifier Dispatcher, m *metrics.Metrics, opts InvoiceOptions) *InvoiceService {
	loc := opts.Location
	if loc == nil {
		loc = time.UTC
	}
	workers := opts.Workers
	if workers < 1 {
		workers = 4
	}
	return &InvoiceService{
		store:    store,
		policies: policies,
		machine:  billing.NewMachine(billing.NewLoyaltyEngine()),
		notifier: notifier,
		metrics:  m,
		loc:      loc,
		workers:  workers,
		now:      time.Now,
		benefits: expirable.NewLRU[string, []domain.Benefit](1, nil, config.BenefitCacheTTL),
	}
}

func (s *InvoiceService) today() time.Time {
	return billing.CivilDate(s.now(), s.loc)
}

// Create validates and stores a new invoice. The payment streak of the
// customer's latest invoice is carried into the new one.
func (s *InvoiceService) Create(ctx context.Context, in domain.NewInvoice) (domain.Invoice, error) {
	if in.Number == "" {
		return domain.Invoice{}, domain.NewValidationError("number", "is required")
	}
	if in.DueDate.IsZero() {
		return domain.Invoice{}, domain.NewValidationError("due_date", "is required")
	}
	if in.PeriodStart.IsZero() {
		return domain.Invoice{}, domain.NewValidationError("period_start", "is required")
	}
	if in.PeriodEnd.IsZero() {
		return domain.Invoice{}, domain.NewValidationError("period_end", "is required")
	}
	if in.PeriodEnd.Before(in.PeriodStart) {
		return domain.Invoice{}, domain.NewValidationError("period_end", "must not be before period_start")
	}

	inv := domain.Invoice{
		Number:      in.Number,
		CustomerID:  in.CustomerID,
		PeriodStart: billing.DateOnly(in.PeriodStart),
		PeriodEnd:   billing.DateOnly(in.PeriodEnd),
		IssuedAt:    billing.DateOnly(in.IssuedAt),
		Readings:    domain.Readings{Previous: in.PreviousReading, Current: in.CurrentReading},
		Charges: domain.Charges{
			Fixed:       in.FixedCharge,
			Consumption: in.UsageCharge,
			Other:       in.OtherCharge,
		},
		DueDate: billing.DateOnly(in.DueDate),
		Status:  domain.InvoiceStatusPending,
	}
	if inv.IssuedAt.IsZero() {
		inv.IssuedAt = s.today()
	}
	if err := billing.Recompute(&inv); err != nil {
		return domain.Invoice{}, err
	}

	p, err := s.policies.Current(ctx)
	if err != nil {
		return domain.Invoice{}, err
	}

	var created domain.Invoice
	err = s.store.ExecTx(ctx, func(q repository.Querier) error {
		if err := q.LockCustomer(ctx, in.CustomerID); err != nil {
			return err
		}
		prev, err := q.LatestCustomerInvoice(ctx, in.CustomerID)
		switch {
		case err == nil:
			inv.Loyalty.PaymentStreak = prev.Loyalty.PaymentStreak
		case !errors.Is(err, domain.ErrNotFound):
			return fmt.Errorf("load previous invoice: %w", err)
		}
		inv.Membership = billing.MembershipFor(inv.Loyalty.PaymentStreak)

		aged, _, err := s.machine.Transition(inv, billing.Age{Today: s.today()}, p)
		if err != nil {
			return err
		}
		created, err = q.CreateInvoice(ctx, aged)
		if err != nil {
			return fmt.Errorf("create invoice: %w", err)
		}
		return nil
	})
	if err != nil {
		return domain.Invoice{}, err
	}

	slog.Info("invoice created", "number", created.Number, "customer_id", created.CustomerID, "amount", created.Amount.String())
	return created, nil
}

func (s *InvoiceService) Get(ctx context.Context, number string) (domain.Invoice, error) {
	return s.store.GetInvoiceByNumber(ctx, number)
}

func (s *InvoiceService) ListForCustomer(ctx context.Context, customerID int64, limit int) ([]domain.Invoice, error) {
	if limit <= 0 {
		limit = config.InvoicesPerPage
	}
	return s.store.ListCustomerInvoices(ctx, customerID, limit)
}

// Amend corrects readings or charges of an unpaid invoice and recomputes its
// totals. The write is conditional on the version that was read, so a payment
// or sweep that lands in between wins and the amendment fails.
func (s *InvoiceService) Amend(ctx context.Context, number string, a domain.InvoiceAmendment) (domain.Invoice, error) {
	if a.IsEmpty() {
		return domain.Invoice{}, domain.NewValidationError("amendment", "nothing to change")
	}
	p, err := s.policies.Current(ctx)
	if err != nil {
		return domain.Invoice{}, err
	}

	inv, err := s.store.GetInvoiceByNumber(ctx, number)
	if err != nil {
		return domain.Invoice{}, err
	}
	if inv.IsPaid() {
		return domain.Invoice{}, domain.ErrInvoiceAlreadyPaid
	}

	next := inv.Clone()
	a.Apply(&next)
	if err := billing.Recompute(&next); err != nil {
		return domain.Invoice{}, err
	}
	aged, _, err := s.machine.Transition(next, billing.Age{Today: s.today()}, p)
	if err != nil {
		return domain.Invoice{}, err
	}

	written, err := s.store.UpdateInvoiceIfUnchanged(ctx, aged)
	if err != nil {
		return domain.Invoice{}, fmt.Errorf("amend invoice: %w", err)
	}
	if !written {
		return domain.Invoice{}, domain.ErrInvoiceChanged
	}

	slog.Info("invoice amended", "number", number,
		"previous_amount", inv.Amount.String(), "amount", aged.Amount.String())
	return s.store.GetInvoiceByNumber(ctx, number)
}

// Pay settles an invoice from inside the application. It is trusted and does
// not go through gateway signature checks.
func (s *InvoiceService) Pay(ctx context.Context, number string) (domain.Invoice, error) {
	p, err := s.policies.Current(ctx)
	if err != nil {
		return domain.Invoice{}, err
	}

	var (
		paid    domain.Invoice
		effects []billing.Effect
	)
	err = s.store.ExecTx(ctx, func(q repository.Querier) error {
		paid, effects, err = s.payInTx(ctx, q, number, p, s.now())
		return err
	})
	if err != nil {
		return domain.Invoice{}, err
	}

	s.afterPaid(ctx, paid, effects, p, "direct")
	return paid, nil
}

// payInTx locks and pays one invoice. The caller commits and then calls
// afterPaid with the returned effects.
func (s *InvoiceService) payInTx(ctx context.Context, q repository.Querier, number string, p domain.Policy, at time.Time) (domain.Invoice, []billing.Effect, error) {
	inv, err := q.GetInvoiceByNumberForUpdate(ctx, number)
	if err != nil {
		return domain.Invoice{}, nil, err
	}
	if inv.IsPaid() {
		return inv, nil, domain.ErrInvoiceAlreadyPaid
	}

	// Payments of different invoices of one customer must not read the same
	// prior streak. Lock order is invoice, then customer.
	if err := q.LockCustomer(ctx, inv.CustomerID); err != nil {
		return domain.Invoice{}, nil, fmt.Errorf("lock customer: %w", err)
	}
	prior, err := q.LatestPaidStreak(ctx, inv.CustomerID, inv.Number)
	if err != nil {
		return domain.Invoice{}, nil, fmt.Errorf("load payment streak: %w", err)
	}

	next, effects, err := s.machine.Transition(inv, billing.Pay{
		At:          at,
		Today:       billing.CivilDate(at, s.loc),
		PriorStreak: prior,
	}, p)
	if err != nil {
		return domain.Invoice{}, nil, err
	}

	updated, err := q.UpdateInvoice(ctx, next)
	if err != nil {
		return domain.Invoice{}, nil, fmt.Errorf("update invoice: %w", err)
	}
	return updated, effects, nil
}

func (s *InvoiceService) afterPaid(ctx context.Context, inv domain.Invoice, effects []billing.Effect, p domain.Policy, channel string) {
	onTime := billing.IsOnTime(*inv.PaymentDate, inv.DueDate)
	if s.metrics != nil {
		s.metrics.InvoicePaid(channel, onTime)
		for _, e := range effects {
			if e.Kind == domain.NotificationAchievement {
				s.metrics.TierPromotionsTotal.WithLabelValues(string(inv.Membership.Tier)).Inc()
			}
		}
	}
	slog.Info("invoice paid",
		"number", inv.Number,
		"channel", channel,
		"on_time", onTime,
		"streak", inv.Loyalty.PaymentStreak,
		"points", inv.Loyalty.PointsEarned,
		"tier", inv.Membership.Tier,
	)
	dispatchEffects(context.WithoutCancel(ctx), s.notifier, p, effects)
}

type SweepError struct {
	Number string
	Err    error
}

type SweepReport struct {
	Scanned      int
	Transitioned int
	Refreshed    int
	Unchanged    int
	Conflicts    int
	Failed       int
	Errors       []SweepError
}

// Summary flattens the report for operator messages.
func (r SweepReport) Summary() (map[string]string, []string) {
	counts := map[string]string{
		"scanned":      strconv.Itoa(r.Scanned),
		"transitioned": strconv.Itoa(r.Transitioned),
		"refreshed":    strconv.Itoa(r.Refreshed),
		"unchanged":    strconv.Itoa(r.Unchanged),
		"conflicts":    strconv.Itoa(r.Conflicts),
		"failed":       strconv.Itoa(r.Failed),
	}
	failures := make([]string, 0, len(r.Errors))
	for _, e := range r.Errors {
		failures = append(failures, e.Number+": "+e.Err.Error())
	}
	return counts, failures
}

// Sweep ages every unpaid invoice past its due date. Each invoice is read,
// recomputed and written back only if nobody changed it meanwhile, so a
// payment that lands during the sweep is never overwritten.
func (s *InvoiceService) Sweep(ctx context.Context) (SweepReport, error) {
	start := time.Now()
	p, err := s.policies.Current(ctx)
	if err != nil {
		return SweepReport{}, err
	}
	today := s.today()

	candidates, err := s.store.ListAgingCandidates(ctx, today)
	if err != nil {
		return SweepReport{}, fmt.Errorf("list aging candidates: %w", err)
	}

	var (
		transitioned, refreshed, unchanged, conflicts atomic.Int64
		mu                                            sync.Mutex
		failures                                      []SweepError
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for _, inv := range candidates {
		g.Go(func() error {
			res, err := s.ageOne(gctx, inv, p, today)
			if err != nil {
				slog.Error("sweep invoice failed", "number", inv.Number, "error", err)
				mu.Lock()
				failures = append(failures, SweepError{Number: inv.Number, Err: err})
				mu.Unlock()
				return nil
			}
			switch res {
			case ageTransitioned:
				transitioned.Add(1)
			case ageRefreshed:
				refreshed.Add(1)
			case ageConflict:
				conflicts.Add(1)
			default:
				unchanged.Add(1)
			}
			return nil
		})
	}
	_ = g.Wait()

	report := SweepReport{
		Scanned:      len(candidates),
		Transitioned: int(transitioned.Load()),
		Refreshed:    int(refreshed.Load()),
		Unchanged:    int(unchanged.Load()),
		Conflicts:    int(conflicts.Load()),
		Failed:       len(failures),
		Errors:       failures,
	}
	if s.metrics != nil {
		s.metrics.SweepDuration.Observe(time.Since(start).Seconds())
		s.metrics.SweepTransitions.WithLabelValues("transitioned").Add(float64(report.Transitioned))
		s.metrics.SweepTransitions.WithLabelValues("refreshed").Add(float64(report.Refreshed))
		s.metrics.SweepTransitions.WithLabelValues("unchanged").Add(float64(report.Unchanged))
		s.metrics.SweepTransitions.WithLabelValues("conflict").Add(float64(report.Conflicts))
		s.metrics.SweepTransitions.WithLabelValues("failed").Add(float64(report.Failed))
	}
	slog.Info("sweep finished",
		"scanned", report.Scanned,
		"transitioned", report.Transitioned,
		"refreshed", report.Refreshed,
		"unchanged", report.Unchanged,
		"conflicts", report.Conflicts,
		"failed", report.Failed,
		"duration", time.Since(start),
	)
	return report, nil
}

type ageResult int

const (
	ageUnchanged ageResult = iota
	ageTransitioned
	ageRefreshed
	ageConflict
)

func (s *InvoiceService) ageOne(ctx context.Context, inv domain.Invoice, p domain.Policy, today time.Time) (ageResult, error) {
	if err := ctx.Err(); err != nil {
		return ageUnchanged, err
	}
	next, _, err := s.machine.Transition(inv, billing.Age{Today: today}, p)
	if err != nil {
		return ageUnchanged, err
	}
	if next.Status == inv.Status && next.DaysDelinquent == inv.DaysDelinquent &&
		next.Amount.Equal(inv.Amount) && next.Readings.Consumption.Equal(inv.Readings.Consumption) {
		return ageUnchanged, nil
	}

	written, err := s.store.UpdateInvoiceIfUnchanged(ctx, next)
	if err != nil {
		return ageUnchanged, err
	}
	if !written {
		return ageConflict, nil
	}
	if next.Status != inv.Status {
		slog.Info("invoice aged", "number", inv.Number, "from", inv.Status, "to", next.Status, "days", next.DaysDelinquent)
		return ageTransitioned, nil
	}
	return ageRefreshed, nil
}

type LoyaltySummary struct {
	CustomerID       int64
	Tier             domain.Tier
	Streak           int
	TotalPoints      int64
	Discount         string
	TierBenefits     []string
	EligibleBenefits []domain.Benefit
}

// LoyaltySummary reports the customer's standing. The tier is always derived
// from the streak with billing.TierFor.
func (s *InvoiceService) LoyaltySummary(ctx context.Context, customerID int64) (LoyaltySummary, error) {
	out := LoyaltySummary{CustomerID: customerID}

	latest, err := s.store.LatestCustomerInvoice(ctx, customerID)
	switch {
	case err == nil:
		out.Streak = latest.Loyalty.PaymentStreak
		out.Discount = latest.Loyalty.DiscountApplied.String()
	case errors.Is(err, domain.ErrNotFound):
	default:
		return LoyaltySummary{}, err
	}
	streak, err := s.store.LatestPaidStreak(ctx, customerID, "")
	if err != nil {
		return LoyaltySummary{}, err
	}
	out.Streak = max(out.Streak, streak)

	out.TotalPoints, err = s.store.CustomerPointsTotal(ctx, customerID)
	if err != nil {
		return LoyaltySummary{}, err
	}

	out.Tier = billing.TierFor(out.Streak)
	out.TierBenefits = billing.BenefitsFor(out.Tier)

	defs, err := s.activeBenefits(ctx)
	if err != nil {
		return LoyaltySummary{}, err
	}
	out.EligibleBenefits = billing.EligibleBenefits(defs, billing.Standing{Streak: out.Streak, TotalPoints: out.TotalPoints})
	return out, nil
}

func (s *InvoiceService) activeBenefits(ctx context.Context) ([]domain.Benefit, error) {
	if defs, ok := s.benefits.Get("active"); ok {
		return defs, nil
	}
	defs, err := s.store.ListActiveBenefits(ctx)
	if err != nil {
		return nil, fmt.Errorf("list benefits: %w", err)
	}
	s.benefits.Add("active", defs)
	return defs, nil
}
