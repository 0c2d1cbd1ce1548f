package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Validate enforces the conservation invariant on a balance snapshot.
func (b *UserBalance) Validate() error {
	if b.AvailablePoints.IsNegative() || b.PendingPoints.IsNegative() || b.TotalPoints.IsNegative() {
		return ErrValidation
	}
	if !b.TotalPoints.Equal(b.AvailablePoints.Add(b.PendingPoints)) {
		return ErrValidation
	}
	return nil
}

// AddPending returns a new snapshot with amount added to pending and total.
// Used at order creation.
func (b *UserBalance) AddPending(amount decimal.Decimal) (*UserBalance, error) {
	if amount.LessThanOrEqual(decimal.Zero) {
		return nil, ErrValidation
	}
	next := *b
	next.PendingPoints = b.PendingPoints.Add(amount)
	next.TotalPoints = b.TotalPoints.Add(amount)
	next.UpdatedAt = time.Now()
	if err := next.Validate(); err != nil {
		return nil, err
	}
	return &next, nil
}

// ConvertPendingToAvailable moves amount from pending to available. Total
// is unchanged. This is the only legal path from pending to spendable.
func (b *UserBalance) ConvertPendingToAvailable(amount decimal.Decimal) (*UserBalance, error) {
	if amount.LessThanOrEqual(decimal.Zero) {
		return nil, ErrValidation
	}
	if amount.GreaterThan(b.PendingPoints) {
		return nil, &InsufficientPendingError{Requested: amount, Pending: b.PendingPoints}
	}
	next := *b
	next.PendingPoints = b.PendingPoints.Sub(amount)
	next.AvailablePoints = b.AvailablePoints.Add(amount)
	next.UpdatedAt = time.Now()
	if err := next.Validate(); err != nil {
		return nil, err
	}
	return &next, nil
}

// ReleasePending removes amount from pending and total, reversing an
// AddPending. Used by the terminal-failure release policy.
func (b *UserBalance) ReleasePending(amount decimal.Decimal) (*UserBalance, error) {
	if amount.LessThanOrEqual(decimal.Zero) {
		return nil, ErrValidation
	}
	if amount.GreaterThan(b.PendingPoints) {
		return nil, &InsufficientPendingError{Requested: amount, Pending: b.PendingPoints}
	}
	next := *b
	next.PendingPoints = b.PendingPoints.Sub(amount)
	next.TotalPoints = b.TotalPoints.Sub(amount)
	next.UpdatedAt = time.Now()
	if err := next.Validate(); err != nil {
		return nil, err
	}
	return &next, nil
}

// CreditPoints adds amount directly to available points. Kept for flows
// outside the purchase reconciliation core.
func (b *UserBalance) CreditPoints(amount decimal.Decimal) (*UserBalance, error) {
	if amount.LessThanOrEqual(decimal.Zero) {
		return nil, ErrValidation
	}
	next := *b
	next.AvailablePoints = b.AvailablePoints.Add(amount)
	next.TotalPoints = b.TotalPoints.Add(amount)
	next.UpdatedAt = time.Now()
	if err := next.Validate(); err != nil {
		return nil, err
	}
	return &next, nil
}

// DebitPoints removes amount from available points.
func (b *UserBalance) DebitPoints(amount decimal.Decimal) (*UserBalance, error) {
	if amount.LessThanOrEqual(decimal.Zero) {
		return nil, ErrValidation
	}
	if amount.GreaterThan(b.AvailablePoints) {
		return nil, ErrStateConflict
	}
	next := *b
	next.AvailablePoints = b.AvailablePoints.Sub(amount)
	next.TotalPoints = b.TotalPoints.Sub(amount)
	next.UpdatedAt = time.Now()
	if err := next.Validate(); err != nil {
		return nil, err
	}
	return &next, nil
}
