package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/set-night/acueducto/internal/domain"
)

const invoiceColumns = `id, number, customer_id, period_start, period_end, issued_at,
	previous_reading, current_reading, consumption,
	fixed_charge, consumption_charge, other_charge, total, amount,
	due_date, payment_date, status, days_delinquent,
	points_earned, discount_applied, payment_streak, tier, active_benefits,
	version, created_at, updated_at`

func scanInvoice(row pgx.Row) (domain.Invoice, error) {
	var (
		inv                            domain.Invoice
		periodStart, periodEnd, issued pgtype.Date
		due                            pgtype.Date
		paidAt                         pgtype.Timestamptz
		status, tier                   string
	)
	err := row.Scan(
		&inv.ID, &inv.Number, &inv.CustomerID, &periodStart, &periodEnd, &issued,
		&inv.Readings.Previous, &inv.Readings.Current, &inv.Readings.Consumption,
		&inv.Charges.Fixed, &inv.Charges.Consumption, &inv.Charges.Other, &inv.Charges.Total, &inv.Amount,
		&due, &paidAt, &status, &inv.DaysDelinquent,
		&inv.Loyalty.PointsEarned, &inv.Loyalty.DiscountApplied, &inv.Loyalty.PaymentStreak, &tier, &inv.Membership.ActiveBenefits,
		&inv.Version, &inv.CreatedAt, &inv.UpdatedAt,
	)
	if err != nil {
		return domain.Invoice{}, err
	}
	inv.PeriodStart = pgDateToTime(periodStart)
	inv.PeriodEnd = pgDateToTime(periodEnd)
	inv.IssuedAt = pgDateToTime(issued)
	inv.DueDate = pgDateToTime(due)
	inv.PaymentDate = pgTimestamptzToTimePtr(paidAt)
	inv.Status = domain.InvoiceStatus(status)
	inv.Membership.Tier = domain.Tier(tier)
	return inv, nil
}

func collectInvoices(rows pgx.Rows) ([]domain.Invoice, error) {
	defer rows.Close()
	var out []domain.Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, inv)
	}
	return out, rows.Err()
}

func benefitsOrEmpty(b []string) []string {
	if b == nil {
		return []string{}
	}
	return b
}

func (q *Queries) CreateInvoice(ctx context.Context, inv domain.Invoice) (domain.Invoice, error) {
	row := q.db.QueryRow(ctx, `
		INSERT INTO invoices (
			number, customer_id, period_start, period_end, issued_at,
			previous_reading, current_reading, consumption,
			fixed_charge, consumption_charge, other_charge, total, amount,
			due_date, status, days_delinquent,
			points_earned, discount_applied, payment_streak, tier, active_benefits
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21)
		RETURNING `+invoiceColumns,
		inv.Number, inv.CustomerID, timeToPgDate(inv.PeriodStart), timeToPgDate(inv.PeriodEnd), timeToPgDate(inv.IssuedAt),
		inv.Readings.Previous, inv.Readings.Current, inv.Readings.Consumption,
		inv.Charges.Fixed, inv.Charges.Consumption, inv.Charges.Other, inv.Charges.Total, inv.Amount,
		timeToPgDate(inv.DueDate), string(inv.Status), inv.DaysDelinquent,
		inv.Loyalty.PointsEarned, inv.Loyalty.DiscountApplied, inv.Loyalty.PaymentStreak,
		string(inv.Membership.Tier), benefitsOrEmpty(inv.Membership.ActiveBenefits),
	)
	out, err := scanInvoice(row)
	return out, dbError("create invoice", err, nil)
}

func (q *Queries) GetInvoiceByNumber(ctx context.Context, number string) (domain.Invoice, error) {
	row := q.db.QueryRow(ctx, `SELECT `+invoiceColumns+` FROM invoices WHERE number = $1`, number)
	inv, err := scanInvoice(row)
	return inv, dbError("get invoice", err, domain.ErrInvoiceNotFound)
}

func (q *Queries) GetInvoiceByNumberForUpdate(ctx context.Context, number string) (domain.Invoice, error) {
	row := q.db.QueryRow(ctx, `SELECT `+invoiceColumns+` FROM invoices WHERE number = $1 FOR UPDATE`, number)
	inv, err := scanInvoice(row)
	return inv, dbError("lock invoice", err, domain.ErrInvoiceNotFound)
}

func (q *Queries) ListCustomerInvoices(ctx context.Context, customerID int64, limit int) ([]domain.Invoice, error) {
	rows, err := q.db.Query(ctx, `
		SELECT `+invoiceColumns+` FROM invoices
		WHERE customer_id = $1
		ORDER BY period_end DESC, id DESC
		LIMIT $2`, customerID, limit)
	if err != nil {
		return nil, dbError("list customer invoices", err, nil)
	}
	out, err := collectInvoices(rows)
	return out, dbError("list customer invoices", err, nil)
}

// ListCustomerInvoicesIssuedBetween returns the invoices issued on civil dates
// from..to inclusive, oldest first.
func (q *Queries) ListCustomerInvoicesIssuedBetween(ctx context.Context, customerID int64, from, to time.Time) ([]domain.Invoice, error) {
	rows, err := q.db.Query(ctx, `
		SELECT `+invoiceColumns+` FROM invoices
		WHERE customer_id = $1 AND issued_at BETWEEN $2 AND $3
		ORDER BY issued_at, id`, customerID, timeToPgDate(from), timeToPgDate(to))
	if err != nil {
		return nil, dbError("list invoices issued between", err, nil)
	}
	out, err := collectInvoices(rows)
	return out, dbError("list invoices issued between", err, nil)
}

func (q *Queries) LatestCustomerInvoice(ctx context.Context, customerID int64) (domain.Invoice, error) {
	row := q.db.QueryRow(ctx, `
		SELECT `+invoiceColumns+` FROM invoices
		WHERE customer_id = $1
		ORDER BY period_end DESC, id DESC
		LIMIT 1`, customerID)
	inv, err := scanInvoice(row)
	return inv, dbError("latest customer invoice", err, domain.ErrInvoiceNotFound)
}

// LatestPaidStreak is the streak recorded on the customer's most recently
// paid invoice, or 0.
func (q *Queries) LatestPaidStreak(ctx context.Context, customerID int64, excludeNumber string) (int, error) {
	var streak int
	err := q.db.QueryRow(ctx, `
		SELECT COALESCE((
			SELECT payment_streak FROM invoices
			WHERE customer_id = $1 AND status = 'paid' AND number <> $2
			ORDER BY payment_date DESC, id DESC
			LIMIT 1
		), 0)`, customerID, excludeNumber).Scan(&streak)
	return streak, dbError("latest paid streak", err, nil)
}

func (q *Queries) ListAgingCandidates(ctx context.Context, today time.Time) ([]domain.Invoice, error) {
	rows, err := q.db.Query(ctx, `
		SELECT `+invoiceColumns+` FROM invoices
		WHERE status <> 'paid' AND due_date < $1
		ORDER BY due_date, id`, timeToPgDate(today))
	if err != nil {
		return nil, dbError("list aging candidates", err, nil)
	}
	out, err := collectInvoices(rows)
	return out, dbError("list aging candidates", err, nil)
}

func (q *Queries) ListDueBetween(ctx context.Context, from, to time.Time) ([]domain.Invoice, error) {
	rows, err := q.db.Query(ctx, `
		SELECT `+invoiceColumns+` FROM invoices
		WHERE status = 'pending' AND due_date BETWEEN $1 AND $2
		ORDER BY due_date, id`, timeToPgDate(from), timeToPgDate(to))
	if err != nil {
		return nil, dbError("list due invoices", err, nil)
	}
	out, err := collectInvoices(rows)
	return out, dbError("list due invoices", err, nil)
}

const invoiceMutableSet = `
	previous_reading = $2, current_reading = $3, consumption = $4,
	fixed_charge = $5, consumption_charge = $6, other_charge = $7, total = $8, amount = $9,
	payment_date = $10, status = $11, days_delinquent = $12,
	points_earned = $13, discount_applied = $14, payment_streak = $15,
	tier = $16, active_benefits = $17,
	version = version + 1, updated_at = NOW()`

func invoiceMutableArgs(inv domain.Invoice) []any {
	return []any{
		inv.ID,
		inv.Readings.Previous, inv.Readings.Current, inv.Readings.Consumption,
		inv.Charges.Fixed, inv.Charges.Consumption, inv.Charges.Other, inv.Charges.Total, inv.Amount,
		timePtrToPgTimestamptz(inv.PaymentDate), string(inv.Status), inv.DaysDelinquent,
		inv.Loyalty.PointsEarned, inv.Loyalty.DiscountApplied, inv.Loyalty.PaymentStreak,
		string(inv.Membership.Tier), benefitsOrEmpty(inv.Membership.ActiveBenefits),
	}
}

// UpdateInvoice writes a row previously locked with FOR UPDATE.
func (q *Queries) UpdateInvoice(ctx context.Context, inv domain.Invoice) (domain.Invoice, error) {
	row := q.db.QueryRow(ctx, `
		UPDATE invoices SET `+invoiceMutableSet+`
		WHERE id = $1
		RETURNING `+invoiceColumns, invoiceMutableArgs(inv)...)
	out, err := scanInvoice(row)
	return out, dbError("update invoice", err, domain.ErrInvoiceNotFound)
}

// UpdateInvoiceIfUnchanged writes inv only while the stored row is still
// unpaid and at inv.Version. It reports whether the row was written.
func (q *Queries) UpdateInvoiceIfUnchanged(ctx context.Context, inv domain.Invoice) (bool, error) {
	args := append(invoiceMutableArgs(inv), inv.Version)
	tag, err := q.db.Exec(ctx, `
		UPDATE invoices SET `+invoiceMutableSet+`
		WHERE id = $1 AND status <> 'paid' AND version = $18`, args...)
	if err != nil {
		return false, dbError("conditional update invoice", err, nil)
	}
	return tag.RowsAffected() == 1, nil
}

func (q *Queries) CustomerPointsTotal(ctx context.Context, customerID int64) (int64, error) {
	var total int64
	err := q.db.QueryRow(ctx, `
		SELECT COALESCE(SUM(points_earned), 0)::BIGINT FROM invoices
		WHERE customer_id = $1 AND status = 'paid'`, customerID).Scan(&total)
	return total, dbError("customer points total", err, nil)
}
