package models

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// Sentinel errors matched with errors.Is at the API boundary.
var (
	ErrNotFound      = errors.New("not found")
	ErrValidation    = errors.New("validation failed")
	ErrStateConflict = errors.New("state conflict")
	ErrIntegration   = errors.New("gateway integration failed")
)

// OutOfRangeError reports a purchase amount outside the allowed bounds.
type OutOfRangeError struct {
	Amount decimal.Decimal
	Min    decimal.Decimal
	Max    decimal.Decimal
}

func (e *OutOfRangeError) Error() string {
	return fmt.Sprintf("amount %s out of range [%s, %s]", e.Amount, e.Min, e.Max)
}

func (e *OutOfRangeError) Unwrap() error { return ErrValidation }

// InsufficientPendingError reports an attempt to convert more pending
// points than the balance holds.
type InsufficientPendingError struct {
	Requested decimal.Decimal
	Pending   decimal.Decimal
}

func (e *InsufficientPendingError) Error() string {
	return fmt.Sprintf("insufficient pending points: requested %s, have %s", e.Requested, e.Pending)
}

func (e *InsufficientPendingError) Unwrap() error { return ErrStateConflict }

// InvalidTransitionError reports a transition attempted out of a state
// that does not allow it. It is a signaled no-op, never silently applied.
type InvalidTransitionError struct {
	OrderID string
	From    string
	To      string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("order %s: invalid transition %s -> %s", e.OrderID, e.From, e.To)
}

func (e *InvalidTransitionError) Unwrap() error { return ErrStateConflict }
