package billing

import (
	"github.com/set-night/acueducto/internal/domain"
	"github.com/shopspring/decimal"
)

// RewardRule updates the loyalty state of an on-time payment. Rules run after
// the streak has been incremented.
type RewardRule interface {
	Name() string
	Apply(state *domain.LoyaltyState, amount decimal.Decimal, p domain.Policy)
}

func DefaultRules() []RewardRule {
	return []RewardRule{PointsAccrual{}, StreakDiscount{}}
}

// PointsAccrual awards floor(amount * rate) points.
type PointsAccrual struct{}

func (PointsAccrual) Name() string { return "points_accrual" }

func (PointsAccrual) Apply(state *domain.LoyaltyState, amount decimal.Decimal, p domain.Policy) {
	state.PointsEarned = amount.Mul(p.PointsRate).Floor().IntPart()
}

// StreakDiscount grants one flat rate once the streak reaches the threshold.
type StreakDiscount struct{}

func (StreakDiscount) Name() string { return "streak_discount" }

func (StreakDiscount) Apply(state *domain.LoyaltyState, _ decimal.Decimal, p domain.Policy) {
	if state.PaymentStreak >= p.StreakDiscountThreshold {
		state.DiscountApplied = p.StreakDiscountRate
	}
}

// Standing is what discretionary benefits are checked against.
type Standing struct {
	Streak      int
	TotalPoints int64
}

func (s Standing) Tier() domain.Tier {
	return TierFor(s.Streak)
}

// EligibleBenefits filters active benefit definitions the standing qualifies
// for. The tier always comes from TierFor.
func EligibleBenefits(defs []domain.Benefit, s Standing) []domain.Benefit {
	tier := s.Tier()
	var out []domain.Benefit
	for _, b := range defs {
		if !b.Active {
			continue
		}
		if b.MinTier != "" && tier.Rank() < b.MinTier.Rank() {
			continue
		}
		if s.TotalPoints < b.PointsRequired || s.Streak < b.StreakRequired {
			continue
		}
		out = append(out, b)
	}
	return out
}
