package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Policy holds the tunable billing and loyalty parameters. Each admin change
// produces a new Version; consumers only ever read it.
type Policy struct {
	Version                 int64
	PointsRate              decimal.Decimal
	StreakDiscountThreshold int
	StreakDiscountRate      decimal.Decimal
	GraceDays               int
	DelinquencyDays         int
	// PenaltyRate is stored and exposed but not applied to any total.
	PenaltyRate        decimal.Decimal
	ReminderDaysBefore int
	// Muted notification kinds are neither stored nor delivered. Consumption
	// alerts follow the reminder switch.
	MuteReminders    bool
	MuteAchievements bool
	MuteBenefits     bool
	UpdatedAt        time.Time
	UpdatedBy        string
}

// DefaultPolicy is used until an administrator stores the first version.
func DefaultPolicy() Policy {
	return Policy{
		PointsRate:              decimal.RequireFromString("0.1"),
		StreakDiscountThreshold: 3,
		StreakDiscountRate:      decimal.RequireFromString("0.05"),
		GraceDays:               0,
		DelinquencyDays:         30,
		PenaltyRate:             decimal.RequireFromString("0.02"),
		ReminderDaysBefore:      3,
	}
}

// Notifies reports whether notifications of kind are sent under p.
func (p Policy) Notifies(kind NotificationKind) bool {
	switch kind {
	case NotificationReminder, NotificationConsumption:
		return !p.MuteReminders
	case NotificationAchievement:
		return !p.MuteAchievements
	case NotificationBenefit:
		return !p.MuteBenefits
	}
	return true
}

func (p Policy) Validate() error {
	one := decimal.NewFromInt(1)
	switch {
	case p.PointsRate.IsNegative() || p.PointsRate.GreaterThan(one):
		return NewValidationError("points_rate", "must be between 0 and 1")
	case p.StreakDiscountThreshold < 1:
		return NewValidationError("streak_discount_threshold", "must be at least 1")
	case p.StreakDiscountRate.IsNegative() || p.StreakDiscountRate.GreaterThan(one):
		return NewValidationError("streak_discount_rate", "must be between 0 and 1")
	case p.GraceDays < 0:
		return NewValidationError("grace_days", "must not be negative")
	case p.DelinquencyDays <= p.GraceDays:
		return NewValidationError("delinquency_days", "must be greater than grace_days")
	case p.PenaltyRate.IsNegative() || p.PenaltyRate.GreaterThan(one):
		return NewValidationError("penalty_rate", "must be between 0 and 1")
	case p.ReminderDaysBefore < 0:
		return NewValidationError("reminder_days_before", "must not be negative")
	}
	return nil
}
