package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/set-night/acueducto/internal/billing"
	"github.com/set-night/acueducto/internal/config"
	"github.com/set-night/acueducto/internal/domain"
	"github.com/set-night/acueducto/internal/gateway"
	"github.com/set-night/acueducto/internal/metrics"
	"github.com/set-night/acueducto/internal/repository"
	"golang.org/x/sync/singleflight"
)

// Reconciler applies gateway notifications. Deliveries are at least once, so
// every notification after the first for a reference is a no-op.
type Reconciler struct {
	store       repository.Store
	gateways    *gateway.Registry
	invoices    *InvoiceService
	memberships *MembershipService
	policies    PolicySource
	notifier    Dispatcher
	metrics     *metrics.Metrics
	now         func() time.Time

	sf      singleflight.Group
	settled *lru.Cache[string, domain.PaymentTransaction]
	audit   PaymentAuditor
}

// PaymentAuditor is told about every transaction a notification settles.
type PaymentAuditor interface {
	LogPayment(tx domain.PaymentTransaction)
}

func NewReconciler(
	store repository.Store,
	gateways *gateway.Registry,
	invoices *InvoiceService,
	memberships *MembershipService,
	policies PolicySource,
	notifier Dispatcher,
	m *metrics.Metrics,
) *Reconciler {
	settled, _ := lru.New[string, domain.PaymentTransaction](config.SettledCacheSize)
	return &Reconciler{
		store:       store,
		gateways:    gateways,
		invoices:    invoices,
		memberships: memberships,
		policies:    policies,
		notifier:    notifier,
		metrics:     m,
		now:         time.Now,
		settled:     settled,
	}
}

// SetAuditor installs an auditor for settled transactions. Call before serving.
func (r *Reconciler) SetAuditor(a PaymentAuditor) {
	r.audit = a
}

type ReconcileResult struct {
	Reference string
	Kind      domain.TxKind
	Status    domain.TxStatus
	Duplicate bool
}

type applied struct {
	result  ReconcileResult
	tx      domain.PaymentTransaction
	effects []billing.Effect
	invoice *domain.Invoice
}

// HandleNotification verifies and applies one notification from gatewayName.
func (r *Reconciler) HandleNotification(ctx context.Context, gatewayName string, n gateway.Notification) (ReconcileResult, error) {
	g, err := r.gateways.Get(gatewayName)
	if err != nil {
		r.count(gatewayName, "unknown_gateway")
		return ReconcileResult{}, err
	}

	if tx, ok := r.settled.Get(n.ReferenceCode); ok {
		if err := r.verify(g, n, tx); err != nil {
			r.count(g.Name, "rejected")
			return ReconcileResult{}, err
		}
		r.count(g.Name, "duplicate")
		return ReconcileResult{Reference: tx.ReferenceCode, Kind: tx.Kind, Status: tx.Status, Duplicate: true}, nil
	}

	// the token is part of the key so a forged delivery never shares the
	// outcome of a genuine one
	key := n.ReferenceCode + "|" + n.Status + "|" + n.Token
	v, err, _ := r.sf.Do(key, func() (any, error) {
		return r.apply(ctx, g, n)
	})
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrSignature), errors.Is(err, domain.ErrNotFound):
			r.count(g.Name, "rejected")
			slog.Warn("gateway notification rejected", "gateway", g.Name, "reference", n.ReferenceCode, "error", err)
		default:
			r.count(g.Name, "error")
			slog.Error("gateway notification failed", "gateway", g.Name, "reference", n.ReferenceCode, "error", err)
		}
		return ReconcileResult{}, err
	}

	res := v.(*applied)
	if res.result.Duplicate {
		r.count(g.Name, "duplicate")
		return res.result, nil
	}
	r.count(g.Name, string(res.result.Status))
	return res.result, nil
}

func (r *Reconciler) verify(g *gateway.Gateway, n gateway.Notification, tx domain.PaymentTransaction) error {
	if tx.Gateway != g.Name {
		return fmt.Errorf("transaction belongs to %s: %w", tx.Gateway, domain.ErrSignature)
	}
	return g.Verify(n, tx)
}

func (r *Reconciler) apply(ctx context.Context, g *gateway.Gateway, n gateway.Notification) (*applied, error) {
	p, err := r.policies.Current(ctx)
	if err != nil {
		return nil, err
	}

	out := &applied{}
	at := r.now()
	err = r.store.ExecTx(ctx, func(q repository.Querier) error {
		tx, err := q.GetTransactionByReferenceForUpdate(ctx, n.ReferenceCode)
		if err != nil {
			return err
		}
		if err := r.verify(g, n, tx); err != nil {
			return err
		}

		out.tx = tx
		out.result = ReconcileResult{Reference: tx.ReferenceCode, Kind: tx.Kind, Status: tx.Status}
		if tx.Status.IsTerminal() {
			out.result.Duplicate = true
			return nil
		}

		status := domain.TxStatusFailed
		if n.Approved() {
			status = domain.TxStatusCompleted
		}
		if err := q.SettleTransaction(ctx, tx.ReferenceCode, status, at); err != nil {
			return fmt.Errorf("settle transaction: %w", err)
		}
		out.tx.Status = status
		out.tx.SettledAt = &at
		out.result.Status = status

		if status != domain.TxStatusCompleted {
			return nil
		}
		return r.fulfil(ctx, q, out, p, at)
	})
	if err != nil {
		return nil, err
	}

	r.settled.Add(out.tx.ReferenceCode, out.tx)
	if out.result.Duplicate {
		return out, nil
	}

	slog.Info("payment reconciled", "gateway", g.Name, "reference", out.tx.ReferenceCode,
		"kind", out.tx.Kind, "status", out.tx.Status, "amount", out.tx.Amount.String())
	if r.audit != nil {
		r.audit.LogPayment(out.tx)
	}

	if out.invoice != nil {
		r.invoices.afterPaid(ctx, *out.invoice, out.effects, p, "gateway")
	} else {
		dispatchEffects(context.WithoutCancel(ctx), r.notifier, p, out.effects)
	}
	return out, nil
}

// fulfil runs the kind specific side of a completed payment inside the
// settling transaction.
func (r *Reconciler) fulfil(ctx context.Context, q repository.Querier, out *applied, p domain.Policy, at time.Time) error {
	tx := out.tx
	switch tx.Kind {
	case domain.TxKindMembership:
		w, err := r.memberships.activateInTx(ctx, q, tx, at)
		if err != nil {
			return fmt.Errorf("activate membership: %w", err)
		}
		out.effects = append(out.effects, billing.Effect{
			CustomerID: w.CustomerID,
			Kind:       domain.NotificationPayment,
			Payload: domain.NotificationPayload{
				Title:   "Membership activated",
				Message: fmt.Sprintf("Your %s membership is active until %s.", w.Plan, w.EndsAt.Format("2006-01-02")),
				Data:    map[string]string{"reference": tx.ReferenceCode, "plan": string(w.Plan)},
			},
		})

	case domain.TxKindInvoice:
		if tx.InvoiceNumber == nil {
			return fmt.Errorf("invoice transaction %s without invoice: %w", tx.ReferenceCode, domain.ErrValidation)
		}
		inv, effects, err := r.invoices.payInTx(ctx, q, *tx.InvoiceNumber, p, at)
		if errors.Is(err, domain.ErrInvoiceAlreadyPaid) {
			slog.Warn("gateway payment for an invoice that is already paid",
				"reference", tx.ReferenceCode, "invoice", *tx.InvoiceNumber)
			return nil
		}
		if err != nil {
			return fmt.Errorf("pay invoice: %w", err)
		}
		out.invoice = &inv
		out.effects = effects

	case domain.TxKindDonation:
		if tx.CustomerID == nil {
			return nil
		}
		msg := fmt.Sprintf("Thank you for your donation of %s %s.", tx.Amount.String(), tx.Currency)
		if tx.Recurrence == domain.RecurrenceMonthly {
			msg = fmt.Sprintf("Thank you for your monthly donation of %s %s.", tx.Amount.String(), tx.Currency)
		}
		out.effects = append(out.effects, billing.Effect{
			CustomerID: *tx.CustomerID,
			Kind:       domain.NotificationPayment,
			Payload: domain.NotificationPayload{
				Title:   "Donation received",
				Message: msg,
				Data:    map[string]string{"reference": tx.ReferenceCode},
			},
		})
	}
	return nil
}

func (r *Reconciler) count(gatewayName, outcome string) {
	if r.metrics != nil {
		r.metrics.WebhooksTotal.WithLabelValues(gatewayName, outcome).Inc()
	}
}
