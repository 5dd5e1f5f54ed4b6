package billing

import (
	"fmt"

	"github.com/set-night/acueducto/internal/domain"
	"github.com/shopspring/decimal"
)

// Consumption returns current - previous. Readings must be non-negative and
// must not run backwards.
func Consumption(previous, current decimal.Decimal) (decimal.Decimal, error) {
	if previous.IsNegative() {
		return decimal.Zero, domain.NewValidationError("previous_reading", "must not be negative")
	}
	if current.IsNegative() {
		return decimal.Zero, domain.NewValidationError("current_reading", "must not be negative")
	}
	if current.LessThan(previous) {
		return decimal.Zero, domain.NewValidationError("current_reading", "must be greater than or equal to previous_reading")
	}
	return current.Sub(previous), nil
}

const (
	readingPlaces = 3
	chargePlaces  = 2
)

// checkScale rejects values the storage columns would round.
func checkScale(field string, d decimal.Decimal, places int32) error {
	if !d.Round(places).Equal(d) {
		return domain.NewValidationError(field, fmt.Sprintf("must have at most %d decimal places", places))
	}
	return nil
}

// Total sums the three charge components.
func Total(fixed, usage, other decimal.Decimal) decimal.Decimal {
	return fixed.Add(usage).Add(other)
}

// Recompute refreshes every derived field of inv. Call it at each mutation
// boundary; nothing else keeps these fields in sync.
func Recompute(inv *domain.Invoice) error {
	scaled := []struct {
		field  string
		value  decimal.Decimal
		places int32
	}{
		{"previous_reading", inv.Readings.Previous, readingPlaces},
		{"current_reading", inv.Readings.Current, readingPlaces},
		{"fixed_charge", inv.Charges.Fixed, chargePlaces},
		{"consumption_charge", inv.Charges.Consumption, chargePlaces},
		{"other_charge", inv.Charges.Other, chargePlaces},
	}
	for _, v := range scaled {
		if err := checkScale(v.field, v.value, v.places); err != nil {
			return err
		}
	}

	consumption, err := Consumption(inv.Readings.Previous, inv.Readings.Current)
	if err != nil {
		return err
	}
	if inv.Charges.Fixed.IsNegative() {
		return domain.NewValidationError("fixed_charge", "must not be negative")
	}
	if inv.Charges.Consumption.IsNegative() {
		return domain.NewValidationError("consumption_charge", "must not be negative")
	}
	total := Total(inv.Charges.Fixed, inv.Charges.Consumption, inv.Charges.Other)
	if total.IsNegative() {
		return domain.NewValidationError("other_charge", "credit exceeds the invoice total")
	}
	inv.Readings.Consumption = consumption
	inv.Charges.Total = total
	inv.Amount = inv.Charges.Total
	return nil
}
