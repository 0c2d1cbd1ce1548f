package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Order statuses
const (
	OrderStatusPending    = "PENDING"
	OrderStatusProcessing = "PROCESSING"
	OrderStatusCompleted  = "COMPLETED"
	OrderStatusFailed     = "FAILED"
	OrderStatusCancelled  = "CANCELLED"
	OrderStatusExpired    = "EXPIRED"
)

// Points transaction types
const (
	TransactionTypePending = "PENDING"
	TransactionTypeCredit  = "CREDIT"
	TransactionTypeDebit   = "DEBIT"
	TransactionTypeRefund  = "REFUND"
)

// Actors recorded on status history rows
const (
	ChangedBySystem        = "SYSTEM"
	ChangedByUser          = "USER"
	ChangedByAdmin         = "ADMIN"
	ChangedByAlfredWebhook = "ALFRED_WEBHOOK"
	ChangedByPolling       = "POLLING_SERVICE"
)

// Payment methods
const (
	PaymentMethodPix = "PIX"
)

// Order represents a single points purchase. Orders are never deleted;
// every state change produces a new snapshot via WithStatus/WithGatewayData.
type Order struct {
	ID                   string            `db:"id" json:"id"`
	UserID               string            `db:"user_id" json:"user_id"`
	RequestedAmount      decimal.Decimal   `db:"requested_amount" json:"requested_amount"`
	FeeAmount            decimal.Decimal   `db:"fee_amount" json:"fee_amount"`
	TotalAmount          decimal.Decimal   `db:"total_amount" json:"total_amount"`
	PointsAmount         decimal.Decimal   `db:"points_amount" json:"points_amount"`
	Status               string            `db:"status" json:"status"`
	PaymentMethod        string            `db:"payment_method" json:"payment_method"`
	GatewayTransactionID string            `db:"gateway_transaction_id" json:"gateway_transaction_id,omitempty"`
	QRCode               string            `db:"qr_code" json:"qr_code,omitempty"`
	QRImageURL           string            `db:"qr_image_url" json:"qr_image_url,omitempty"`
	ExpiresAt            *time.Time        `db:"expires_at" json:"expires_at,omitempty"`
	Metadata             map[string]string `db:"-" json:"metadata,omitempty"`
	CreatedAt            time.Time         `db:"created_at" json:"created_at"`
	UpdatedAt            time.Time         `db:"updated_at" json:"updated_at"`
}

// UserBalance is the per-user points ledger head. The conservation
// invariant TotalPoints == AvailablePoints + PendingPoints holds on every
// snapshot; mutators return a new validated copy.
type UserBalance struct {
	ID              string          `db:"id" json:"id"`
	UserID          string          `db:"user_id" json:"user_id"`
	AvailablePoints decimal.Decimal `db:"available_points" json:"available_points"`
	PendingPoints   decimal.Decimal `db:"pending_points" json:"pending_points"`
	TotalPoints     decimal.Decimal `db:"total_points" json:"total_points"`
	CreatedAt       time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time       `db:"updated_at" json:"updated_at"`
}

// PointsTransaction is a single ledger-affecting event tied to an order.
type PointsTransaction struct {
	ID          string            `db:"id" json:"id"`
	UserID      string            `db:"user_id" json:"user_id"`
	OrderID     *string           `db:"order_id" json:"order_id,omitempty"`
	Type        string            `db:"type" json:"type"`
	Amount      decimal.Decimal   `db:"amount" json:"amount"`
	Description string            `db:"description" json:"description"`
	Metadata    map[string]string `db:"-" json:"metadata,omitempty"`
	CreatedAt   time.Time         `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time         `db:"updated_at" json:"updated_at"`
}

// OrderStatusHistory is an append-only audit row, one per transition or
// reconciliation attempt. PreviousStatus == nil marks order genesis.
type OrderStatusHistory struct {
	ID             string            `db:"id" json:"id"`
	OrderID        string            `db:"order_id" json:"order_id"`
	PreviousStatus *string           `db:"previous_status" json:"previous_status,omitempty"`
	NewStatus      string            `db:"new_status" json:"new_status"`
	ChangedBy      string            `db:"changed_by" json:"changed_by"`
	Reason         string            `db:"reason" json:"reason"`
	Metadata       map[string]string `db:"-" json:"metadata,omitempty"`
	CreatedAt      time.Time         `db:"created_at" json:"created_at"`
}

// WebhookLog records every inbound webhook delivery attempt, valid or not.
// It is the idempotency anchor for the push path.
type WebhookLog struct {
	ID               string     `db:"id" json:"id"`
	WebhookID        *string    `db:"webhook_id" json:"webhook_id,omitempty"`
	TransactionID    string     `db:"transaction_id" json:"transaction_id"`
	ExternalID       string     `db:"external_id" json:"external_id"`
	Status           string     `db:"status" json:"status"`
	Payload          string     `db:"payload" json:"payload"`
	Signature        string     `db:"signature" json:"signature"`
	IsValid          bool       `db:"is_valid" json:"is_valid"`
	ErrorMessage     string     `db:"error_message" json:"error_message,omitempty"`
	ProcessingTimeMs int64      `db:"processing_time_ms" json:"processing_time_ms"`
	ProcessedAt      *time.Time `db:"processed_at" json:"processed_at,omitempty"`
	CreatedAt        time.Time  `db:"created_at" json:"created_at"`
}

// CommitCreditParams identifies the three rows the credit unit mutates:
// the user's balance, the order's PENDING ledger entry, and the order row.
type CommitCreditParams struct {
	OrderID       string
	UserID        string
	TransactionID string
	Amount        decimal.Decimal
	FromStatus    string
}

// IsTerminal reports whether a status admits no further transitions.
func IsTerminalStatus(status string) bool {
	switch status {
	case OrderStatusCompleted, OrderStatusFailed, OrderStatusCancelled, OrderStatusExpired:
		return true
	}
	return false
}
