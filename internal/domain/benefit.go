package domain

import "github.com/shopspring/decimal"

type BenefitKind string

const (
	BenefitDiscount BenefitKind = "discount"
	BenefitPoints   BenefitKind = "points"
	BenefitService  BenefitKind = "service"
)

// Benefit is an admin-defined perk. Eligibility is evaluated against the
// loyalty tier, points and streak; definitions are managed outside this service.
type Benefit struct {
	ID             int64
	Name           string
	Description    string
	Kind           BenefitKind
	Value          decimal.Decimal
	Active         bool
	MinTier        Tier
	PointsRequired int64
	StreakRequired int
}
