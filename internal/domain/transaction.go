package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type TxKind string

const (
	TxKindDonation   TxKind = "donation"
	TxKindMembership TxKind = "membership"
	TxKindInvoice    TxKind = "invoice"
)

func (k TxKind) Valid() bool {
	switch k {
	case TxKindDonation, TxKindMembership, TxKindInvoice:
		return true
	}
	return false
}

type TxStatus string

const (
	TxStatusPending   TxStatus = "pending"
	TxStatusCompleted TxStatus = "completed"
	TxStatusFailed    TxStatus = "failed"
)

func (s TxStatus) IsTerminal() bool {
	return s == TxStatusCompleted || s == TxStatusFailed
}

type Recurrence string

const (
	RecurrenceOnce    Recurrence = "once"
	RecurrenceMonthly Recurrence = "monthly"
)

// PaymentTransaction is one gateway checkout. ReferenceCode doubles as the
// idempotency key for gateway notifications.
type PaymentTransaction struct {
	ID            int64
	ReferenceCode string
	Kind          TxKind
	Gateway       string
	CustomerID    *int64
	InvoiceNumber *string
	Plan          *Plan
	Recurrence    Recurrence
	Amount        decimal.Decimal
	Currency      string
	Status        TxStatus
	CreatedAt     time.Time
	SettledAt     *time.Time
}
