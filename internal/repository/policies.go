package repository

import (
	"context"

	"github.com/set-night/acueducto/internal/domain"
)

func (q *Queries) LatestPolicy(ctx context.Context) (domain.Policy, error) {
	var p domain.Policy
	err := q.db.QueryRow(ctx, `
		SELECT version, points_rate, streak_discount_threshold, streak_discount_rate,
			grace_days, delinquency_days, penalty_rate, reminder_days_before,
			mute_reminders, mute_achievements, mute_benefits, updated_at, updated_by
		FROM policies ORDER BY version DESC LIMIT 1`).Scan(
		&p.Version, &p.PointsRate, &p.StreakDiscountThreshold, &p.StreakDiscountRate,
		&p.GraceDays, &p.DelinquencyDays, &p.PenaltyRate, &p.ReminderDaysBefore,
		&p.MuteReminders, &p.MuteAchievements, &p.MuteBenefits, &p.UpdatedAt, &p.UpdatedBy)
	return p, dbError("latest policy", err, domain.ErrPolicyNotFound)
}

// InsertPolicy stores p as a new version. Existing versions are never updated.
func (q *Queries) InsertPolicy(ctx context.Context, p domain.Policy) (domain.Policy, error) {
	err := q.db.QueryRow(ctx, `
		INSERT INTO policies (points_rate, streak_discount_threshold, streak_discount_rate,
			grace_days, delinquency_days, penalty_rate, reminder_days_before,
			mute_reminders, mute_achievements, mute_benefits, updated_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING version, updated_at`,
		p.PointsRate, p.StreakDiscountThreshold, p.StreakDiscountRate,
		p.GraceDays, p.DelinquencyDays, p.PenaltyRate, p.ReminderDaysBefore,
		p.MuteReminders, p.MuteAchievements, p.MuteBenefits, p.UpdatedBy,
	).Scan(&p.Version, &p.UpdatedAt)
	return p, dbError("insert policy", err, nil)
}
