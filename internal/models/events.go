package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Event types
const (
	EventTypeOrderCreated   = "ORDER_CREATED"
	EventTypeOrderCompleted = "ORDER_COMPLETED"
	EventTypeOrderFailed    = "ORDER_FAILED"
	EventTypeOrderExpired   = "ORDER_EXPIRED"
	EventTypePointsCredited = "POINTS_CREDITED"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// OrderCreatedEvent published when an order is created
type OrderCreatedEvent struct {
	BaseEvent
	OrderID         string          `json:"order_id"`
	UserID          string          `json:"user_id"`
	RequestedAmount decimal.Decimal `json:"requested_amount"`
	TotalAmount     decimal.Decimal `json:"total_amount"`
	PointsAmount    decimal.Decimal `json:"points_amount"`
	PaymentMethod   string          `json:"payment_method"`
}

// OrderCompletedEvent published when payment is confirmed and points credited
type OrderCompletedEvent struct {
	BaseEvent
	OrderID       string          `json:"order_id"`
	UserID        string          `json:"user_id"`
	PointsAmount  decimal.Decimal `json:"points_amount"`
	TransactionID string          `json:"transaction_id"`
	ChangedBy     string          `json:"changed_by"`
}

// OrderFailedEvent published on a terminal failure status
type OrderFailedEvent struct {
	BaseEvent
	OrderID   string `json:"order_id"`
	UserID    string `json:"user_id"`
	Status    string `json:"status"`
	Reason    string `json:"reason"`
	ChangedBy string `json:"changed_by"`
}

// OrderExpiredEvent published when the payment window elapses
type OrderExpiredEvent struct {
	BaseEvent
	OrderID string `json:"order_id"`
	UserID  string `json:"user_id"`
}

// PointsCreditedEvent published when the ledger conversion lands
type PointsCreditedEvent struct {
	BaseEvent
	OrderID         string          `json:"order_id"`
	UserID          string          `json:"user_id"`
	Amount          decimal.Decimal `json:"amount"`
	AvailablePoints decimal.Decimal `json:"available_points"`
	PendingPoints   decimal.Decimal `json:"pending_points"`
}
