package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Plan is a purchasable membership, unrelated to the loyalty Tier earned by paying on time.
type Plan string

const (
	PlanBasic      Plan = "basic"
	PlanPro        Plan = "pro"
	PlanEnterprise Plan = "enterprise"
)

func (p Plan) Valid() bool {
	switch p {
	case PlanBasic, PlanPro, PlanEnterprise:
		return true
	}
	return false
}

type WindowStatus string

const (
	WindowStatusActive   WindowStatus = "active"
	WindowStatusInactive WindowStatus = "inactive"
	WindowStatusExpired  WindowStatus = "expired"
)

type MembershipWindow struct {
	ID            int64
	CustomerID    int64
	Plan          Plan
	Price         decimal.Decimal
	Status        WindowStatus
	StartsAt      time.Time
	EndsAt        time.Time
	AutoRenew     bool
	ReferenceCode string
}

func (w *MembershipWindow) IsActive(now time.Time) bool {
	return w.Status == WindowStatusActive && now.Before(w.EndsAt)
}

var planPrices = map[Plan]int64{
	PlanBasic:      5000,
	PlanPro:        10000,
	PlanEnterprise: 25000,
}

// Price is the monthly price of the plan in COP.
func (p Plan) Price() decimal.Decimal {
	return decimal.NewFromInt(planPrices[p])
}

// Extend returns the window end after buying one month of plan at now. Only a
// running window of the same plan is extended from its current end; any other
// purchase starts a fresh month at now.
func (w *MembershipWindow) Extend(plan Plan, now time.Time) time.Time {
	from := now
	if w.IsActive(now) && w.Plan == plan {
		from = w.EndsAt
	}
	return from.AddDate(0, 1, 0)
}
