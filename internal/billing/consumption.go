package billing

import (
	"github.com/set-night/acueducto/internal/domain"
	"github.com/shopspring/decimal"
)

const (
	trendLength = 3
	// analysisPrecision is the number of decimal places kept on averages.
	analysisPrecision = 3
)

// alertFactor is how far above the average the current reading must be to
// raise an alert.
var alertFactor = decimal.RequireFromString("1.2")

// ConsumptionAnalysis summarizes a customer's metered usage in cubic meters.
type ConsumptionAnalysis struct {
	Current    decimal.Decimal
	Average    decimal.Decimal
	Trend      []decimal.Decimal // newest first, at most three
	Prediction decimal.Decimal
	Alert      bool
	// ExcessPercent is how far Current is above Average, rounded to a whole
	// percent. Zero unless Alert is set.
	ExcessPercent decimal.Decimal
	Samples       int
}

// AnalyzeConsumption reads history newest first. The current reading is the
// newest invoice, the prediction is the mean of the trend, and an alert is
// raised when the current reading exceeds the average by more than 20%.
func AnalyzeConsumption(history []domain.Invoice) ConsumptionAnalysis {
	if len(history) == 0 {
		return ConsumptionAnalysis{}
	}

	sum := decimal.Zero
	for _, inv := range history {
		sum = sum.Add(inv.Readings.Consumption)
	}
	a := ConsumptionAnalysis{
		Current: history[0].Readings.Consumption,
		Average: sum.DivRound(decimal.NewFromInt(int64(len(history))), analysisPrecision),
		Samples: len(history),
	}

	trendSum := decimal.Zero
	for _, inv := range history[:min(trendLength, len(history))] {
		a.Trend = append(a.Trend, inv.Readings.Consumption)
		trendSum = trendSum.Add(inv.Readings.Consumption)
	}
	a.Prediction = trendSum.DivRound(decimal.NewFromInt(int64(len(a.Trend))), analysisPrecision)

	if a.Current.GreaterThan(a.Average.Mul(alertFactor)) {
		a.Alert = true
		a.ExcessPercent = a.Current.Div(a.Average).Sub(decimal.NewFromInt(1)).Mul(decimal.NewFromInt(100)).Round(0)
	}
	return a
}
