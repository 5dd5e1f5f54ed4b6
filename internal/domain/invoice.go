package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type InvoiceStatus string

const (
	InvoiceStatusPending    InvoiceStatus = "pending"
	InvoiceStatusOverdue    InvoiceStatus = "overdue"
	InvoiceStatusDelinquent InvoiceStatus = "delinquent"
	InvoiceStatusPaid       InvoiceStatus = "paid"
)

// IsTerminal reports whether no further transition is allowed.
func (s InvoiceStatus) IsTerminal() bool {
	return s == InvoiceStatusPaid
}

func (s InvoiceStatus) Valid() bool {
	switch s {
	case InvoiceStatusPending, InvoiceStatusOverdue, InvoiceStatusDelinquent, InvoiceStatusPaid:
		return true
	}
	return false
}

// rank orders the aging states; paid sits outside the forward chain.
func (s InvoiceStatus) rank() int {
	switch s {
	case InvoiceStatusPending:
		return 0
	case InvoiceStatusOverdue:
		return 1
	case InvoiceStatusDelinquent:
		return 2
	}
	return -1
}

// Precedes reports whether s comes strictly before next in the aging chain.
func (s InvoiceStatus) Precedes(next InvoiceStatus) bool {
	return s.rank() >= 0 && next.rank() > s.rank()
}

type Tier string

const (
	TierBasic   Tier = "basic"
	TierPremium Tier = "premium"
	TierVIP     Tier = "vip"
)

func (t Tier) Rank() int {
	switch t {
	case TierPremium:
		return 1
	case TierVIP:
		return 2
	}
	return 0
}

type Readings struct {
	Previous    decimal.Decimal
	Current     decimal.Decimal
	Consumption decimal.Decimal // cubic meters, derived
}

type Charges struct {
	Fixed       decimal.Decimal
	Consumption decimal.Decimal
	Other       decimal.Decimal
	Total       decimal.Decimal // derived
}

type LoyaltyState struct {
	PointsEarned    int64
	DiscountApplied decimal.Decimal // rate, e.g. 0.05
	PaymentStreak   int
}

type Membership struct {
	Tier           Tier
	ActiveBenefits []string
}

type Invoice struct {
	ID             int64
	Number         string
	CustomerID     int64
	PeriodStart    time.Time
	PeriodEnd      time.Time
	IssuedAt       time.Time
	Readings       Readings
	Charges        Charges
	Amount         decimal.Decimal // mirrors Charges.Total
	DueDate        time.Time       // civil date, UTC midnight
	PaymentDate    *time.Time
	Status         InvoiceStatus
	DaysDelinquent int
	Loyalty        LoyaltyState
	Membership     Membership
	Version        int64
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func (inv *Invoice) IsPaid() bool {
	return inv.Status == InvoiceStatusPaid
}

// Clone returns a deep copy so pure transitions never alias the caller's slices.
func (inv Invoice) Clone() Invoice {
	out := inv
	if inv.PaymentDate != nil {
		t := *inv.PaymentDate
		out.PaymentDate = &t
	}
	if inv.Membership.ActiveBenefits != nil {
		out.Membership.ActiveBenefits = append([]string(nil), inv.Membership.ActiveBenefits...)
	}
	return out
}

// NewInvoice carries the input accepted by InvoiceService.Create.
type NewInvoice struct {
	Number          string
	CustomerID      int64
	PeriodStart     time.Time
	PeriodEnd       time.Time
	IssuedAt        time.Time
	PreviousReading decimal.Decimal
	CurrentReading  decimal.Decimal
	FixedCharge     decimal.Decimal
	UsageCharge     decimal.Decimal
	OtherCharge     decimal.Decimal
	DueDate         time.Time
}

// InvoiceAmendment corrects the readings or charges of an unpaid invoice. Nil
// fields keep their stored value.
type InvoiceAmendment struct {
	PreviousReading *decimal.Decimal
	CurrentReading  *decimal.Decimal
	FixedCharge     *decimal.Decimal
	UsageCharge     *decimal.Decimal
	OtherCharge     *decimal.Decimal
}

func (a InvoiceAmendment) IsEmpty() bool {
	return a.PreviousReading == nil && a.CurrentReading == nil &&
		a.FixedCharge == nil && a.UsageCharge == nil && a.OtherCharge == nil
}

// Apply copies the set fields onto inv. Derived fields are left stale until
// the caller recomputes them.
func (a InvoiceAmendment) Apply(inv *Invoice) {
	set := func(dst *decimal.Decimal, src *decimal.Decimal) {
		if src != nil {
			*dst = *src
		}
	}
	set(&inv.Readings.Previous, a.PreviousReading)
	set(&inv.Readings.Current, a.CurrentReading)
	set(&inv.Charges.Fixed, a.FixedCharge)
	set(&inv.Charges.Consumption, a.UsageCharge)
	set(&inv.Charges.Other, a.OtherCharge)
}
