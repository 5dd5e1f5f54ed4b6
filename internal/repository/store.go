package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/set-night/acueducto/internal/domain"
)

// Querier lists every query the services run.
type Querier interface {
	CreateCustomer(ctx context.Context, c domain.Customer) (domain.Customer, error)
	GetCustomer(ctx context.Context, id int64) (domain.Customer, error)
	GetCustomerByTelegram(ctx context.Context, chatID int64) (domain.Customer, error)
	UpsertTelegramCustomer(ctx context.Context, chatID int64, name string) (domain.Customer, error)
	LockCustomer(ctx context.Context, id int64) error

	CreateInvoice(ctx context.Context, inv domain.Invoice) (domain.Invoice, error)
	GetInvoiceByNumber(ctx context.Context, number string) (domain.Invoice, error)
	GetInvoiceByNumberForUpdate(ctx context.Context, number string) (domain.Invoice, error)
	ListCustomerInvoices(ctx context.Context, customerID int64, limit int) ([]domain.Invoice, error)
	ListCustomerInvoicesIssuedBetween(ctx context.Context, customerID int64, from, to time.Time) ([]domain.Invoice, error)
	LatestCustomerInvoice(ctx context.Context, customerID int64) (domain.Invoice, error)
	LatestPaidStreak(ctx context.Context, customerID int64, excludeNumber string) (int, error)
	ListAgingCandidates(ctx context.Context, today time.Time) ([]domain.Invoice, error)
	ListDueBetween(ctx context.Context, from, to time.Time) ([]domain.Invoice, error)
	UpdateInvoice(ctx context.Context, inv domain.Invoice) (domain.Invoice, error)
	UpdateInvoiceIfUnchanged(ctx context.Context, inv domain.Invoice) (bool, error)
	CustomerPointsTotal(ctx context.Context, customerID int64) (int64, error)

	CreateTransaction(ctx context.Context, tx domain.PaymentTransaction) (domain.PaymentTransaction, error)
	GetTransactionByReference(ctx context.Context, reference string) (domain.PaymentTransaction, error)
	GetTransactionByReferenceForUpdate(ctx context.Context, reference string) (domain.PaymentTransaction, error)
	SettleTransaction(ctx context.Context, reference string, status domain.TxStatus, at time.Time) error

	GetMembershipWindow(ctx context.Context, customerID int64) (domain.MembershipWindow, error)
	GetMembershipWindowForUpdate(ctx context.Context, customerID int64) (domain.MembershipWindow, error)
	UpsertMembershipWindow(ctx context.Context, w domain.MembershipWindow) (domain.MembershipWindow, error)
	ExpireMembershipWindows(ctx context.Context, now time.Time) (int64, error)

	LatestPolicy(ctx context.Context) (domain.Policy, error)
	InsertPolicy(ctx context.Context, p domain.Policy) (domain.Policy, error)

	InsertNotification(ctx context.Context, n domain.Notification) error
	MarkNotificationDelivered(ctx context.Context, id string, at time.Time) error

	ListActiveBenefits(ctx context.Context) ([]domain.Benefit, error)
}

// Store runs queries directly or inside one database transaction.
type Store interface {
	Querier
	ExecTx(ctx context.Context, fn func(q Querier) error) error
}

var _ Querier = (*Queries)(nil)

type PgStore struct {
	*Queries
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *PgStore {
	return &PgStore{Queries: New(pool), pool: pool}
}

func (s *PgStore) ExecTx(ctx context.Context, fn func(q Querier) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return &domain.TransientError{Op: "begin tx", Err: err}
	}
	defer tx.Rollback(ctx)

	if err := fn(s.Queries.WithTx(tx)); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return &domain.TransientError{Op: "commit tx", Err: err}
	}
	return nil
}

func (s *PgStore) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping database: %w", err)
	}
	return nil
}
