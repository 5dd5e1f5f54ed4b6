package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/set-night/acueducto/internal/config"
	"github.com/set-night/acueducto/internal/domain"
	"github.com/set-night/acueducto/internal/gateway"
	"github.com/set-night/acueducto/internal/metrics"
	"github.com/set-night/acueducto/internal/repository"
	"github.com/shopspring/decimal"
)

// OrderCreator registers a checkout with the gateway before redirecting.
type OrderCreator interface {
	CreateOrder(ctx context.Context, g *gateway.Gateway, form gateway.CheckoutForm) error
}

// URLBuilder produces the customer facing and gateway facing URLs.
type URLBuilder interface {
	ResponseURL(reference string) string
	WebhookURL(gateway string) string
}

type CheckoutService struct {
	store    repository.Store
	gateways *gateway.Registry
	orders   OrderCreator
	urls     URLBuilder
	metrics  *metrics.Metrics
	now      func() time.Time
}

func NewCheckoutService(store repository.Store, gateways *gateway.Registry, orders OrderCreator, urls URLBuilder, m *metrics.Metrics) *CheckoutService {
	return &CheckoutService{
		store:    store,
		gateways: gateways,
		orders:   orders,
		urls:     urls,
		metrics:  m,
		now:      time.Now,
	}
}

// Checkout is a pending transaction together with the form that starts it.
type Checkout struct {
	Transaction domain.PaymentTransaction
	Form        gateway.CheckoutForm
}

func (s *CheckoutService) reference(prefix string) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
	return fmt.Sprintf("%s-%d-%s", prefix, s.now().UnixMilli(), suffix)
}

func (s *CheckoutService) StartDonation(ctx context.Context, customerID *int64, amount decimal.Decimal, recurrence domain.Recurrence) (Checkout, error) {
	if amount.LessThan(decimal.NewFromInt(config.MinDonationAmount)) {
		return Checkout{}, domain.NewValidationError("amount", fmt.Sprintf("minimum donation is %d", config.MinDonationAmount))
	}
	if recurrence == "" {
		recurrence = domain.RecurrenceOnce
	}
	if recurrence != domain.RecurrenceOnce && recurrence != domain.RecurrenceMonthly {
		return Checkout{}, domain.NewValidationError("recurrence", "must be once or monthly")
	}

	desc := "Donation"
	if recurrence == domain.RecurrenceMonthly {
		desc = "Monthly donation"
	}
	return s.start(ctx, domain.PaymentTransaction{
		ReferenceCode: s.reference("DON"),
		Kind:          domain.TxKindDonation,
		CustomerID:    customerID,
		Recurrence:    recurrence,
		Amount:        amount,
	}, desc)
}

func (s *CheckoutService) StartMembership(ctx context.Context, customerID int64, plan domain.Plan) (Checkout, error) {
	if !plan.Valid() {
		return Checkout{}, domain.NewValidationError("plan", "must be basic, pro or enterprise")
	}
	return s.start(ctx, domain.PaymentTransaction{
		ReferenceCode: s.reference("MEM"),
		Kind:          domain.TxKindMembership,
		CustomerID:    &customerID,
		Plan:          &plan,
		Recurrence:    domain.RecurrenceOnce,
		Amount:        plan.Price(),
	}, fmt.Sprintf("Membership %s", plan))
}

func (s *CheckoutService) StartInvoicePayment(ctx context.Context, customerID int64, number string) (Checkout, error) {
	inv, err := s.store.GetInvoiceByNumber(ctx, number)
	if err != nil {
		return Checkout{}, err
	}
	if inv.CustomerID != customerID {
		return Checkout{}, domain.ErrInvoiceNotFound
	}
	if inv.IsPaid() {
		return Checkout{}, domain.ErrInvoiceAlreadyPaid
	}
	return s.start(ctx, domain.PaymentTransaction{
		ReferenceCode: s.reference("INV"),
		Kind:          domain.TxKindInvoice,
		CustomerID:    &customerID,
		InvoiceNumber: &inv.Number,
		Recurrence:    domain.RecurrenceOnce,
		Amount:        inv.Amount,
	}, fmt.Sprintf("Invoice %s", inv.Number))
}

func (s *CheckoutService) start(ctx context.Context, tx domain.PaymentTransaction, description string) (Checkout, error) {
	g, err := s.gateways.Primary()
	if err != nil {
		return Checkout{}, err
	}
	tx.Gateway = g.Name
	tx.Currency = g.Currency

	created, err := s.store.CreateTransaction(ctx, tx)
	if err != nil {
		s.count(tx.Kind, "store_failed")
		return Checkout{}, fmt.Errorf("create transaction: %w", err)
	}

	out := Checkout{
		Transaction: created,
		Form: g.Form(created, description,
			s.urls.ResponseURL(created.ReferenceCode),
			s.urls.WebhookURL(g.Name)),
	}

	if s.orders != nil {
		if err := s.orders.CreateOrder(ctx, g, out.Form); err != nil {
			slog.Warn("gateway order creation failed, transaction left pending",
				"reference", created.ReferenceCode, "gateway", g.Name, "error", err)
			s.count(tx.Kind, "order_failed")
			return out, err
		}
	}

	s.count(tx.Kind, "created")
	slog.Info("checkout started", "reference", created.ReferenceCode, "kind", created.Kind, "amount", created.Amount.String())
	return out, nil
}

func (s *CheckoutService) count(kind domain.TxKind, result string) {
	if s.metrics != nil {
		s.metrics.CheckoutsTotal.WithLabelValues(string(kind), result).Inc()
	}
}

// Status returns the stored state of a checkout.
func (s *CheckoutService) Status(ctx context.Context, reference string) (domain.PaymentTransaction, error) {
	return s.store.GetTransactionByReference(ctx, reference)
}
