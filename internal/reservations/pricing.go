package reservations

import "github.com/shopspring/decimal"

const (
	// MinDurationHours is the shortest rental the ledger accepts.
	MinDurationHours = 1
	// MaxDurationHours caps rentals at one week.
	MaxDurationHours = 168

	hoursPerDay = 24
)

// ComputeTotalPrice converts a daily rate into the charge for a rental measured
// in hours. Partial cents always round up so short rentals are never free.
func ComputeTotalPrice(pricePerDay decimal.Decimal, durationHours int64) decimal.Decimal {
	return pricePerDay.
		Mul(decimal.NewFromInt(durationHours)).
		Div(decimal.NewFromInt(hoursPerDay)).
		RoundCeil(2)
}
