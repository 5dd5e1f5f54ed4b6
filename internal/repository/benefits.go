package repository

import (
	"context"

	"github.com/set-night/acueducto/internal/domain"
)

func (q *Queries) ListActiveBenefits(ctx context.Context) ([]domain.Benefit, error) {
	rows, err := q.db.Query(ctx, `
		SELECT id, name, description, kind, value, active, min_tier, points_required, streak_required
		FROM benefits WHERE active ORDER BY id`)
	if err != nil {
		return nil, dbError("list benefits", err, nil)
	}
	defer rows.Close()

	var out []domain.Benefit
	for rows.Next() {
		var (
			b             domain.Benefit
			kind, minTier string
		)
		if err := rows.Scan(&b.ID, &b.Name, &b.Description, &kind, &b.Value, &b.Active, &minTier, &b.PointsRequired, &b.StreakRequired); err != nil {
			return nil, dbError("scan benefit", err, nil)
		}
		b.Kind = domain.BenefitKind(kind)
		b.MinTier = domain.Tier(minTier)
		out = append(out, b)
	}
	return out, dbError("list benefits", rows.Err(), nil)
}
