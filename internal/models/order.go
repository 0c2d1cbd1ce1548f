package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Validate checks the order's monetary invariants.
func (o *Order) Validate() error {
	if o.RequestedAmount.LessThanOrEqual(decimal.Zero) {
		return &OutOfRangeError{Amount: o.RequestedAmount}
	}
	if o.FeeAmount.IsNegative() {
		return &OutOfRangeError{Amount: o.FeeAmount}
	}
	if !o.TotalAmount.Equal(o.RequestedAmount.Add(o.FeeAmount)) {
		return ErrValidation
	}
	if !o.PointsAmount.Equal(o.RequestedAmount) {
		return ErrValidation
	}
	return nil
}

// IsExpired reports whether the payment window has elapsed. Orders without
// gateway data have no ExpiresAt and never expire.
func (o *Order) IsExpired() bool {
	return o.ExpiresAt != nil && time.Now().After(*o.ExpiresAt)
}

// CanBeProcessed reports whether the order may move to PROCESSING.
func (o *Order) CanBeProcessed() bool {
	return o.Status == OrderStatusPending && !o.IsExpired()
}

// CanBeCompleted reports whether points may still be credited.
func (o *Order) CanBeCompleted() bool {
	if o.IsExpired() {
		return false
	}
	return o.Status == OrderStatusPending || o.Status == OrderStatusProcessing
}

// CanBeCancelled reports whether the order may be cancelled.
func (o *Order) CanBeCancelled() bool {
	return o.Status == OrderStatusPending || o.Status == OrderStatusProcessing
}

// CanTransitionTo validates a transition against the state machine.
// Terminal states admit nothing; same-status moves are rejected too, the
// reconciliation paths treat those as no-ops before getting here.
func (o *Order) CanTransitionTo(status string) bool {
	if IsTerminalStatus(o.Status) || status == o.Status {
		return false
	}
	switch status {
	case OrderStatusProcessing:
		return o.Status == OrderStatusPending
	case OrderStatusCompleted:
		return o.Status == OrderStatusPending || o.Status == OrderStatusProcessing
	case OrderStatusFailed, OrderStatusCancelled, OrderStatusExpired:
		return o.Status == OrderStatusPending || o.Status == OrderStatusProcessing
	}
	return false
}

// WithStatus returns a new snapshot with the given status. The receiver is
// never mutated. Callers must check CanTransitionTo first; this enforces it.
func (o *Order) WithStatus(status string) (*Order, error) {
	if !o.CanTransitionTo(status) {
		return nil, &InvalidTransitionError{OrderID: o.ID, From: o.Status, To: status}
	}
	next := *o
	next.Status = status
	next.UpdatedAt = time.Now()
	return &next, nil
}

// WithGatewayData returns a new snapshot carrying the gateway transaction
// reference and the QR payload. The expiry window starts here, not at
// order creation.
func (o *Order) WithGatewayData(transactionID, qrCode, qrImageURL string, expiry time.Duration) *Order {
	next := *o
	next.GatewayTransactionID = transactionID
	next.QRCode = qrCode
	next.QRImageURL = qrImageURL
	expiresAt := time.Now().Add(expiry)
	next.ExpiresAt = &expiresAt
	next.UpdatedAt = time.Now()
	return &next
}
