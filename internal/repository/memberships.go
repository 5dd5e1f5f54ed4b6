package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/set-night/acueducto/internal/domain"
)

const membershipColumns = `id, customer_id, plan, price, status, starts_at, ends_at, auto_renew, reference_code`

func scanMembership(row pgx.Row) (domain.MembershipWindow, error) {
	var (
		w            domain.MembershipWindow
		plan, status string
	)
	err := row.Scan(&w.ID, &w.CustomerID, &plan, &w.Price, &status, &w.StartsAt, &w.EndsAt, &w.AutoRenew, &w.ReferenceCode)
	w.Plan = domain.Plan(plan)
	w.Status = domain.WindowStatus(status)
	return w, err
}

func (q *Queries) GetMembershipWindow(ctx context.Context, customerID int64) (domain.MembershipWindow, error) {
	row := q.db.QueryRow(ctx, `SELECT `+membershipColumns+` FROM membership_windows WHERE customer_id = $1`, customerID)
	w, err := scanMembership(row)
	return w, dbError("get membership", err, domain.ErrNotFound)
}

func (q *Queries) GetMembershipWindowForUpdate(ctx context.Context, customerID int64) (domain.MembershipWindow, error) {
	row := q.db.QueryRow(ctx, `SELECT `+membershipColumns+` FROM membership_windows WHERE customer_id = $1 FOR UPDATE`, customerID)
	w, err := scanMembership(row)
	return w, dbError("lock membership", err, domain.ErrNotFound)
}

func (q *Queries) UpsertMembershipWindow(ctx context.Context, w domain.MembershipWindow) (domain.MembershipWindow, error) {
	row := q.db.QueryRow(ctx, `
		INSERT INTO membership_windows (customer_id, plan, price, status, starts_at, ends_at, auto_renew, reference_code)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (customer_id) DO UPDATE SET
			plan = EXCLUDED.plan, price = EXCLUDED.price, status = EXCLUDED.status,
			starts_at = EXCLUDED.starts_at, ends_at = EXCLUDED.ends_at,
			auto_renew = EXCLUDED.auto_renew, reference_code = EXCLUDED.reference_code
		RETURNING `+membershipColumns,
		w.CustomerID, string(w.Plan), w.Price, string(w.Status), w.StartsAt, w.EndsAt, w.AutoRenew, w.ReferenceCode)
	out, err := scanMembership(row)
	return out, dbError("upsert membership", err, nil)
}

func (q *Queries) ExpireMembershipWindows(ctx context.Context, now time.Time) (int64, error) {
	tag, err := q.db.Exec(ctx, `
		UPDATE membership_windows SET status = 'expired'
		WHERE status = 'active' AND ends_at <= $1`, now)
	if err != nil {
		return 0, dbError("expire memberships", err, nil)
	}
	return tag.RowsAffected(), nil
}
