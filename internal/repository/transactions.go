package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/set-night/acueducto/internal/domain"
)

const transactionColumns = `id, reference_code, kind, gateway, customer_id, invoice_number, plan,
	recurrence, amount, currency, status, created_at, settled_at`

func scanTransaction(row pgx.Row) (domain.PaymentTransaction, error) {
	var (
		t                        domain.PaymentTransaction
		customerID               pgtype.Int8
		invoiceNumber, plan      pgtype.Text
		kind, recurrence, status string
		settledAt                pgtype.Timestamptz
	)
	err := row.Scan(&t.ID, &t.ReferenceCode, &kind, &t.Gateway, &customerID, &invoiceNumber, &plan,
		&recurrence, &t.Amount, &t.Currency, &status, &t.CreatedAt, &settledAt)
	if err != nil {
		return domain.PaymentTransaction{}, err
	}
	t.Kind = domain.TxKind(kind)
	t.Recurrence = domain.Recurrence(recurrence)
	t.Status = domain.TxStatus(status)
	t.CustomerID = pgInt8ToPtr(customerID)
	t.InvoiceNumber = pgTextToPtr(invoiceNumber)
	t.SettledAt = pgTimestamptzToTimePtr(settledAt)
	if p := pgTextToPtr(plan); p != nil {
		pl := domain.Plan(*p)
		t.Plan = &pl
	}
	return t, nil
}

func (q *Queries) CreateTransaction(ctx context.Context, t domain.PaymentTransaction) (domain.PaymentTransaction, error) {
	var plan *string
	if t.Plan != nil {
		s := string(*t.Plan)
		plan = &s
	}
	recurrence := t.Recurrence
	if recurrence == "" {
		recurrence = domain.RecurrenceOnce
	}
	row := q.db.QueryRow(ctx, `
		INSERT INTO payment_transactions (
			reference_code, kind, gateway, customer_id, invoice_number, plan,
			recurrence, amount, currency, status
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, 'pending')
		RETURNING `+transactionColumns,
		t.ReferenceCode, string(t.Kind), t.Gateway, ptrToPgInt8(t.CustomerID), ptrToPgText(t.InvoiceNumber), ptrToPgText(plan),
		string(recurrence), t.Amount, t.Currency)
	out, err := scanTransaction(row)
	return out, dbError("create transaction", err, nil)
}

func (q *Queries) GetTransactionByReference(ctx context.Context, reference string) (domain.PaymentTransaction, error) {
	row := q.db.QueryRow(ctx, `SELECT `+transactionColumns+` FROM payment_transactions WHERE reference_code = $1`, reference)
	t, err := scanTransaction(row)
	return t, dbError("get transaction", err, domain.ErrTransactionNotFound)
}

func (q *Queries) GetTransactionByReferenceForUpdate(ctx context.Context, reference string) (domain.PaymentTransaction, error) {
	row := q.db.QueryRow(ctx, `SELECT `+transactionColumns+` FROM payment_transactions WHERE reference_code = $1 FOR UPDATE`, reference)
	t, err := scanTransaction(row)
	return t, dbError("lock transaction", err, domain.ErrTransactionNotFound)
}

// SettleTransaction moves a pending transaction to a terminal status. A
// transaction that is already terminal is left as it is.
func (q *Queries) SettleTransaction(ctx context.Context, reference string, status domain.TxStatus, at time.Time) error {
	tag, err := q.db.Exec(ctx, `
		UPDATE payment_transactions SET status = $2, settled_at = $3
		WHERE reference_code = $1 AND status = 'pending'`, reference, string(status), at)
	if err != nil {
		return dbError("settle transaction", err, nil)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrStateConflict
	}
	return nil
}
