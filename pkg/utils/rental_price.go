package utils

import (
	"github.com/chachabrian/rentcar-backend/internal/models"
	"github.com/shopspring/decimal"
)

// RentalDays counts the calendar days of the inclusive range [start, end].
func RentalDays(start, end models.Date) int {
	return start.DaysUntil(end) + 1
}

// RentalPrice is the total charged for days at pricePerDay.
func RentalPrice(days int, pricePerDay decimal.Decimal) decimal.Decimal {
	if days < 1 {
		return decimal.Zero
	}
	return pricePerDay.Mul(decimal.NewFromInt(int64(days)))
}
