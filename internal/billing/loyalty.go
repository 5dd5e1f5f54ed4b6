package billing

import (
	"fmt"
	"strings"
	"time"

	"github.com/set-night/acueducto/internal/domain"
	"github.com/shopspring/decimal"
)

const (
	premiumStreak = 6
	vipStreak     = 12
)

var tierBenefits = map[domain.Tier][]string{
	domain.TierBasic: {
		"Consumption history",
		"Payment reminders",
	},
	domain.TierPremium: {
		"10% discount on invoices",
		"Priority support",
		"Consumption history",
	},
	domain.TierVIP: {
		"15% discount on invoices",
		"VIP support",
		"Free additional services",
		"Consumption history",
	},
}

// TierFor maps a payment streak to its membership tier. It is the only place
// the tier is derived.
func TierFor(streak int) domain.Tier {
	switch {
	case streak >= vipStreak:
		return domain.TierVIP
	case streak >= premiumStreak:
		return domain.TierPremium
	default:
		return domain.TierBasic
	}
}

// BenefitsFor returns a fresh copy of the fixed benefit list of a tier.
func BenefitsFor(tier domain.Tier) []string {
	return append([]string(nil), tierBenefits[tier]...)
}

// MembershipFor builds the embedded membership for a streak.
func MembershipFor(streak int) domain.Membership {
	tier := TierFor(streak)
	return domain.Membership{Tier: tier, ActiveBenefits: BenefitsFor(tier)}
}

// IsOnTime reports whether a payment made on paidOn settles a bill due on
// dueDate. Both are calendar dates; the due date itself counts as on time.
func IsOnTime(paidOn, dueDate time.Time) bool {
	return !DateOnly(paidOn).After(DateOnly(dueDate))
}

type LoyaltyOutcome struct {
	State        domain.LoyaltyState
	Membership   domain.Membership
	OnTime       bool
	PreviousTier domain.Tier
}

func (o LoyaltyOutcome) Promoted() bool {
	return o.Membership.Tier.Rank() > o.PreviousTier.Rank()
}

// LoyaltyEngine runs the reward rules for a payment.
type LoyaltyEngine struct {
	rules []RewardRule
}

func NewLoyaltyEngine(rules ...RewardRule) *LoyaltyEngine {
	if len(rules) == 0 {
		rules = DefaultRules()
	}
	return &LoyaltyEngine{rules: rules}
}

var defaultEngine = NewLoyaltyEngine()

// ApplyLoyalty runs the default reward rules.
func ApplyLoyalty(prior domain.LoyaltyState, amount decimal.Decimal, paidOn, dueDate time.Time, p domain.Policy) LoyaltyOutcome {
	return defaultEngine.Apply(prior, amount, paidOn, dueDate, p)
}

// Apply computes the loyalty state after a payment of amount made on paidOn.
// A late payment leaves every field at its prior value.
func (e *LoyaltyEngine) Apply(prior domain.LoyaltyState, amount decimal.Decimal, paidOn, dueDate time.Time, p domain.Policy) LoyaltyOutcome {
	out := LoyaltyOutcome{
		State:        prior,
		PreviousTier: TierFor(prior.PaymentStreak),
		OnTime:       IsOnTime(paidOn, dueDate),
	}
	if out.OnTime {
		out.State.PaymentStreak++
		for _, rule := range e.rules {
			rule.Apply(&out.State, amount, p)
		}
	}
	out.Membership = MembershipFor(out.State.PaymentStreak)
	return out
}

// Effects returns the notifications that follow a loyalty outcome.
func (o LoyaltyOutcome) Effects(inv *domain.Invoice) []Effect {
	var msg string
	if o.OnTime {
		msg = fmt.Sprintf("You earned %d points for paying invoice %s on time. Payment streak: %d.",
			o.State.PointsEarned, inv.Number, o.State.PaymentStreak)
		if o.State.DiscountApplied.IsPositive() {
			msg += fmt.Sprintf(" You also get a %s%% discount on your next invoice.",
				o.State.DiscountApplied.Mul(decimal.NewFromInt(100)).String())
		}
	} else {
		msg = fmt.Sprintf("Invoice %s was paid after its due date. No points were earned this time; your streak stays at %d.",
			inv.Number, o.State.PaymentStreak)
	}

	effects := []Effect{{
		CustomerID: inv.CustomerID,
		Kind:       domain.NotificationBenefit,
		Payload: domain.NotificationPayload{
			Title:   "Payment benefits",
			Message: msg,
			Data: map[string]string{
				"invoice": inv.Number,
				"points":  fmt.Sprintf("%d", o.State.PointsEarned),
				"streak":  fmt.Sprintf("%d", o.State.PaymentStreak),
				"tier":    string(o.Membership.Tier),
			},
		},
	}}

	if o.Promoted() {
		effects = append(effects, Effect{
			CustomerID: inv.CustomerID,
			Kind:       domain.NotificationAchievement,
			Payload: domain.NotificationPayload{
				Title:   fmt.Sprintf("Congratulations! You reached %s membership", o.Membership.Tier),
				Message: "Your new benefits: " + strings.Join(o.Membership.ActiveBenefits, ", "),
				Data:    map[string]string{"tier": string(o.Membership.Tier)},
			},
		})
	}
	return effects
}
