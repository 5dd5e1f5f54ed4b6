package billing

import (
	"fmt"
	"time"

	"github.com/set-night/acueducto/internal/domain"
)

// Action is an input to the invoice state machine.
type Action interface {
	action()
}

// Age re-evaluates the delinquency of an unpaid invoice as of Today.
type Age struct {
	Today time.Time
}

// Pay settles the invoice. At is the payment instant, Today its calendar day
// in the billing timezone. PriorStreak carries the streak of the customer's
// previous invoices; the larger of it and the invoice's own streak is used.
type Pay struct {
	At          time.Time
	Today       time.Time
	PriorStreak int
}

func (Age) action() {}
func (Pay) action() {}

// Machine is the invoice lifecycle. Transitions are pure: the input invoice is
// never modified and side effects come back as a list.
type Machine struct {
	loyalty *LoyaltyEngine
}

func NewMachine(loyalty *LoyaltyEngine) *Machine {
	if loyalty == nil {
		loyalty = defaultEngine
	}
	return &Machine{loyalty: loyalty}
}

var defaultMachine = NewMachine(nil)

// Transition applies action with the default loyalty engine.
func Transition(inv domain.Invoice, action Action, p domain.Policy) (domain.Invoice, []Effect, error) {
	return defaultMachine.Transition(inv, action, p)
}

func (m *Machine) Transition(inv domain.Invoice, action Action, p domain.Policy) (domain.Invoice, []Effect, error) {
	next := inv.Clone()
	if err := Recompute(&next); err != nil {
		return inv, nil, err
	}

	switch a := action.(type) {
	case Age:
		return m.age(next, a, p), nil, nil
	case Pay:
		return m.pay(next, a, p)
	default:
		return inv, nil, fmt.Errorf("unknown action %T: %w", action, domain.ErrStateConflict)
	}
}

func (m *Machine) age(inv domain.Invoice, a Age, p domain.Policy) domain.Invoice {
	if inv.IsPaid() {
		return inv
	}
	inv.DaysDelinquent = DaysDelinquent(inv.DueDate, a.Today)
	if target := AgedStatus(inv.DaysDelinquent, p); inv.Status.Precedes(target) {
		inv.Status = target
	}
	return inv
}

func (m *Machine) pay(inv domain.Invoice, a Pay, p domain.Policy) (domain.Invoice, []Effect, error) {
	if inv.IsPaid() {
		return inv, nil, domain.ErrInvoiceAlreadyPaid
	}

	prior := inv.Loyalty
	prior.PaymentStreak = max(prior.PaymentStreak, a.PriorStreak)

	outcome := m.loyalty.Apply(prior, inv.Amount, a.Today, inv.DueDate, p)

	paidAt := a.At
	inv.PaymentDate = &paidAt
	inv.Status = domain.InvoiceStatusPaid
	inv.DaysDelinquent = DaysDelinquent(inv.DueDate, a.Today)
	inv.Loyalty = outcome.State
	inv.Membership = outcome.Membership

	return inv, outcome.Effects(&inv), nil
}

// AgedStatus is the status an unpaid invoice should hold after days past due.
func AgedStatus(days int, p domain.Policy) domain.InvoiceStatus {
	switch {
	case days > p.DelinquencyDays:
		return domain.InvoiceStatusDelinquent
	case days > p.GraceDays:
		return domain.InvoiceStatusOverdue
	default:
		return domain.InvoiceStatusPending
	}
}
