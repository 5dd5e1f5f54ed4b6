package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/set-night/acueducto/internal/config"
	"github.com/set-night/acueducto/internal/domain"
	"github.com/set-night/acueducto/internal/gateway"
	"github.com/set-night/acueducto/internal/metrics"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type reconcileFixture struct {
	*invoiceFixture
	payu  *gateway.Gateway
	wompi *gateway.Gateway
	rec   *Reconciler
}

func newGateway(t *testing.T, name, hash string) *gateway.Gateway {
	t.Helper()
	g, err := gateway.New(config.Gateway{
		Name: name, MerchantID: "508029", APIKey: name + "-secret", HashAlgorithm: hash, Currency: "COP",
	})
	require.NoError(t, err)
	return g
}

func newReconcileFixture(t *testing.T) *reconcileFixture {
	t.Helper()
	f := newInvoiceFixture(t)
	payu := newGateway(t, "payu", "sha256")
	wompi := newGateway(t, "wompi", "md5")
	rec := NewReconciler(f.store, gateway.NewRegistry(payu, wompi), f.svc, NewMembershipService(f.store),
		StaticPolicy(domain.DefaultPolicy()), f.notes, metrics.New())
	rec.now = f.svc.now
	return &reconcileFixture{invoiceFixture: f, payu: payu, wompi: wompi, rec: rec}
}

func (f *reconcileFixture) notification(g *gateway.Gateway, tx domain.PaymentTransaction, status string) gateway.Notification {
	return gateway.Notification{
		ReferenceCode: tx.ReferenceCode,
		Status:        status,
		Token:         g.Token(tx.ReferenceCode, tx.Amount, tx.Currency),
		Kind:          tx.Kind,
		Amount:        tx.Amount,
		Currency:      tx.Currency,
	}
}

func (f *reconcileFixture) donation(ref string) domain.PaymentTransaction {
	tx := domain.PaymentTransaction{
		ReferenceCode: ref,
		Kind:          domain.TxKindDonation,
		Gateway:       "payu",
		CustomerID:    &f.customer.ID,
		Recurrence:    domain.RecurrenceOnce,
		Amount:        decimal.NewFromInt(5000),
		Currency:      "COP",
	}
	f.store.putTransaction(tx)
	return tx
}

func TestReconciler_DonationApproved(t *testing.T) {
	f := newReconcileFixture(t)
	ctx := context.Background()
	tx := f.donation("DON-123")
	n := f.notification(f.payu, tx, gateway.StatusApproved)

	res, err := f.rec.HandleNotification(ctx, "payu", n)
	require.NoError(t, err)
	assert.Equal(t, domain.TxStatusCompleted, res.Status)
	assert.False(t, res.Duplicate)
	assert.Equal(t, domain.TxStatusCompleted, f.store.transaction("DON-123").Status)
	assert.Len(t, f.notes.all(), 1)

	again, err := f.rec.HandleNotification(ctx, "payu", n)
	require.NoError(t, err)
	assert.True(t, again.Duplicate)
	assert.Len(t, f.notes.all(), 1, "duplicate delivery sends nothing")
}

func TestReconciler_DuplicateAfterRestart(t *testing.T) {
	f := newReconcileFixture(t)
	ctx := context.Background()
	tx := f.donation("DON-123")
	n := f.notification(f.payu, tx, gateway.StatusApproved)

	_, err := f.rec.HandleNotification(ctx, "payu", n)
	require.NoError(t, err)

	// a fresh reconciler has an empty settled cache and must rely on storage
	fresh := NewReconciler(f.store, gateway.NewRegistry(f.payu), f.svc, NewMembershipService(f.store),
		StaticPolicy(domain.DefaultPolicy()), f.notes, nil)
	res, err := fresh.HandleNotification(ctx, "payu", n)
	require.NoError(t, err)
	assert.True(t, res.Duplicate)
	assert.Len(t, f.notes.all(), 1)
}

func TestReconciler_ConcurrentDuplicates(t *testing.T) {
	f := newReconcileFixture(t)
	tx := f.donation("DON-123")
	n := f.notification(f.payu, tx, gateway.StatusApproved)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.rec.HandleNotification(context.Background(), "payu", n)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, domain.TxStatusCompleted, f.store.transaction("DON-123").Status)
	assert.Len(t, f.notes.all(), 1)
}

func TestReconciler_RejectsWithoutStateChange(t *testing.T) {
	f := newReconcileFixture(t)
	ctx := context.Background()
	tx := f.donation("DON-123")
	good := f.notification(f.payu, tx, gateway.StatusApproved)

	tests := []struct {
		name    string
		gateway string
		n       gateway.Notification
		want    error
	}{
		{"forged token", "payu", func() gateway.Notification { n := good; n.Token = "00"; return n }(), domain.ErrSignature},
		{"tampered amount", "payu", func() gateway.Notification { n := good; n.Amount = decimal.NewFromInt(50); return n }(), domain.ErrSignature},
		{"other gateway's token", "wompi", f.notification(f.wompi, tx, gateway.StatusApproved), domain.ErrSignature},
		{"unknown reference", "payu", func() gateway.Notification { n := good; n.ReferenceCode = "DON-404"; return n }(), domain.ErrNotFound},
		{"unknown gateway", "stripe", good, domain.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.rec.HandleNotification(ctx, tt.gateway, tt.n)
			require.ErrorIs(t, err, tt.want)
			assert.Equal(t, domain.TxStatusPending, f.store.transaction("DON-123").Status)
			assert.Empty(t, f.notes.all())
		})
	}

	// the genuine delivery still works afterwards
	res, err := f.rec.HandleNotification(ctx, "payu", good)
	require.NoError(t, err)
	assert.Equal(t, domain.TxStatusCompleted, res.Status)
}

func TestReconciler_ForgedDuplicateOfSettledIsRejected(t *testing.T) {
	f := newReconcileFixture(t)
	ctx := context.Background()
	tx := f.donation("DON-123")
	good := f.notification(f.payu, tx, gateway.StatusApproved)
	_, err := f.rec.HandleNotification(ctx, "payu", good)
	require.NoError(t, err)

	forged := good
	forged.Token = "abc"
	_, err = f.rec.HandleNotification(ctx, "payu", forged)
	assert.ErrorIs(t, err, domain.ErrSignature)
}

func TestReconciler_Declined(t *testing.T) {
	f := newReconcileFixture(t)
	ctx := context.Background()
	tx := f.donation("DON-9")

	res, err := f.rec.HandleNotification(ctx, "payu", f.notification(f.payu, tx, "DECLINED"))
	require.NoError(t, err)
	assert.Equal(t, domain.TxStatusFailed, res.Status)
	assert.Empty(t, f.notes.all())

	// a late approval cannot revive a failed transaction
	res, err = f.rec.HandleNotification(ctx, "payu", f.notification(f.payu, tx, gateway.StatusApproved))
	require.NoError(t, err)
	assert.True(t, res.Duplicate)
	assert.Equal(t, domain.TxStatusFailed, f.store.transaction("DON-9").Status)
}

func TestReconciler_MembershipActivation(t *testing.T) {
	f := newReconcileFixture(t)
	ctx := context.Background()
	plan := domain.PlanPro
	tx := domain.PaymentTransaction{
		ReferenceCode: "MEM-1", Kind: domain.TxKindMembership, Gateway: "payu",
		CustomerID: &f.customer.ID, Plan: &plan, Amount: plan.Price(), Currency: "COP",
	}
	f.store.putTransaction(tx)

	_, err := f.rec.HandleNotification(ctx, "payu", f.notification(f.payu, tx, gateway.StatusApproved))
	require.NoError(t, err)

	w, err := f.store.GetMembershipWindow(ctx, f.customer.ID)
	require.NoError(t, err)
	now := f.svc.now()
	assert.Equal(t, domain.WindowStatusActive, w.Status)
	assert.Equal(t, domain.PlanPro, w.Plan)
	assert.True(t, w.EndsAt.Equal(now.AddDate(0, 1, 0)))
	assert.Equal(t, 1, f.notes.count(domain.NotificationPayment))

	// a second purchase while active extends the window
	tx2 := tx
	tx2.ReferenceCode = "MEM-2"
	f.store.putTransaction(tx2)
	_, err = f.rec.HandleNotification(ctx, "payu", f.notification(f.payu, tx2, gateway.StatusApproved))
	require.NoError(t, err)
	w, err = f.store.GetMembershipWindow(ctx, f.customer.ID)
	require.NoError(t, err)
	assert.True(t, w.EndsAt.Equal(now.AddDate(0, 2, 0)))
}

func TestReconciler_InvoicePaymentRunsLoyaltyOnce(t *testing.T) {
	f := newReconcileFixture(t)
	ctx := context.Background()
	_, err := f.svc.Create(ctx, f.newInvoice("F-1", day(2026, 3, 10)))
	require.NoError(t, err)

	number := "F-1"
	tx := domain.PaymentTransaction{
		ReferenceCode: "INV-1", Kind: domain.TxKindInvoice, Gateway: "payu",
		CustomerID: &f.customer.ID, InvoiceNumber: &number, Amount: dec("30000"), Currency: "COP",
	}
	f.store.putTransaction(tx)
	n := f.notification(f.payu, tx, gateway.StatusApproved)

	for i := 0; i < 3; i++ {
		_, err := f.rec.HandleNotification(ctx, "payu", n)
		require.NoError(t, err)
	}

	inv := f.store.invoice("F-1")
	assert.Equal(t, domain.InvoiceStatusPaid, inv.Status)
	assert.Equal(t, 1, inv.Loyalty.PaymentStreak)
	assert.Equal(t, int64(3000), inv.Loyalty.PointsEarned)
	assert.Equal(t, 1, f.notes.count(domain.NotificationBenefit))
}

func TestReconciler_InvoiceAlreadyPaidDirectly(t *testing.T) {
	f := newReconcileFixture(t)
	ctx := context.Background()
	_, err := f.svc.Create(ctx, f.newInvoice("F-1", day(2026, 3, 10)))
	require.NoError(t, err)
	_, err = f.svc.Pay(ctx, "F-1")
	require.NoError(t, err)

	number := "F-1"
	tx := domain.PaymentTransaction{
		ReferenceCode: "INV-1", Kind: domain.TxKindInvoice, Gateway: "payu",
		CustomerID: &f.customer.ID, InvoiceNumber: &number, Amount: dec("30000"), Currency: "COP",
	}
	f.store.putTransaction(tx)

	res, err := f.rec.HandleNotification(ctx, "payu", f.notification(f.payu, tx, gateway.StatusApproved))
	require.NoError(t, err)
	assert.Equal(t, domain.TxStatusCompleted, res.Status)
	assert.Equal(t, 1, f.store.invoice("F-1").Loyalty.PaymentStreak, "loyalty ran only for the first payment")
}

func TestReconciler_SettledAtUsesClock(t *testing.T) {
	f := newReconcileFixture(t)
	tx := f.donation("DON-1")
	_, err := f.rec.HandleNotification(context.Background(), "payu", f.notification(f.payu, tx, gateway.StatusApproved))
	require.NoError(t, err)

	settled := f.store.transaction("DON-1").SettledAt
	require.NotNil(t, settled)
	assert.WithinDuration(t, f.svc.now(), *settled, time.Second)
}

type auditLog struct {
	mu  sync.Mutex
	txs []domain.PaymentTransaction
}

func (a *auditLog) LogPayment(tx domain.PaymentTransaction) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.txs = append(a.txs, tx)
}

func TestReconciler_AuditsSettlementsOnce(t *testing.T) {
	f := newReconcileFixture(t)
	audit := &auditLog{}
	f.rec.SetAuditor(audit)
	tx := f.donation("DON-1")
	n := f.notification(f.payu, tx, gateway.StatusApproved)

	for i := 0; i < 2; i++ {
		_, err := f.rec.HandleNotification(context.Background(), "payu", n)
		require.NoError(t, err)
	}
	require.Len(t, audit.txs, 1)
	assert.Equal(t, domain.TxStatusCompleted, audit.txs[0].Status)
}
