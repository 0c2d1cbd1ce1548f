// Package points holds the pure fee/points arithmetic. All math runs on
// exact decimals so total == requested + fee holds to the cent.
package points

import (
	"github.com/shopspring/decimal"

	"points-service/internal/models"
)

// Calculator computes fees, totals and points for a purchase amount.
// Stateless; bounds and fee rate are fixed at construction.
type Calculator struct {
	feePercentage decimal.Decimal
	minAmount     decimal.Decimal
	maxAmount     decimal.Decimal
}

// NewCalculator creates a calculator with the given fee rate and bounds.
func NewCalculator(feePercentage, minAmount, maxAmount decimal.Decimal) *Calculator {
	return &Calculator{
		feePercentage: feePercentage,
		minAmount:     minAmount,
		maxAmount:     maxAmount,
	}
}

// NewDefaultCalculator uses the standard 5% fee and 1..10000 bounds.
func NewDefaultCalculator() *Calculator {
	return NewCalculator(
		decimal.NewFromFloat(0.05),
		decimal.NewFromInt(1),
		decimal.NewFromInt(10000),
	)
}

// Fee returns the gateway fee for amount, rounded to 2 decimal places.
func (c *Calculator) Fee(amount decimal.Decimal) decimal.Decimal {
	return amount.Mul(c.feePercentage).Round(2)
}

// Total returns amount plus fee.
func (c *Calculator) Total(amount decimal.Decimal) decimal.Decimal {
	return amount.Add(c.Fee(amount))
}

// Points returns the points granted for amount. Conversion is 1:1.
func (c *Calculator) Points(amount decimal.Decimal) decimal.Decimal {
	return amount
}

// ValidatePurchaseAmount rejects non-positive or out-of-bounds amounts.
func (c *Calculator) ValidatePurchaseAmount(amount decimal.Decimal) error {
	if amount.LessThanOrEqual(decimal.Zero) ||
		amount.LessThan(c.minAmount) ||
		amount.GreaterThan(c.maxAmount) {
		return &models.OutOfRangeError{Amount: amount, Min: c.minAmount, Max: c.maxAmount}
	}
	return nil
}
