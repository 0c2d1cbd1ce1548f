package service

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"points-service/internal/gateway"
	"points-service/internal/models"
)

// Repository contracts consumed by the services. The sqlx store implements
// all of them; tests substitute in-memory fakes.

type OrderRepository interface {
	CreateOrder(ctx context.Context, order *models.Order) error
	GetOrderByID(ctx context.Context, id string) (*models.Order, error)
	GetOrdersByUserID(ctx context.Context, userID string, limit, offset int) ([]models.Order, error)
	FindExpiredOrders(ctx context.Context, limit int) ([]models.Order, error)
	UpdateOrderStatus(ctx context.Context, orderID, from, to string) error
	SetGatewayData(ctx context.Context, order *models.Order) error
}

type BalanceRepository interface {
	GetBalanceByUserID(ctx context.Context, userID string) (*models.UserBalance, error)
	CreateBalance(ctx context.Context, balance *models.UserBalance) error
	AddPending(ctx context.Context, userID string, amount decimal.Decimal) (*models.UserBalance, error)
	ConvertPendingToAvailable(ctx context.Context, userID string, amount decimal.Decimal) (*models.UserBalance, error)
	ReleasePending(ctx context.Context, userID string, amount decimal.Decimal) (*models.UserBalance, error)
}

type TransactionRepository interface {
	CreateTransaction(ctx context.Context, txn *models.PointsTransaction) error
	GetTransactionsByUserID(ctx context.Context, userID string, limit, offset int) ([]models.PointsTransaction, error)
	GetTransactionsByOrderID(ctx context.Context, orderID, txnType string) ([]models.PointsTransaction, error)
	UpdateTransactionType(ctx context.Context, id, from, to string) error
}

type HistoryRepository interface {
	CreateHistory(ctx context.Context, entry *models.OrderStatusHistory) error
	GetHistoryByOrderID(ctx context.Context, orderID string) ([]models.OrderStatusHistory, error)
}

type WebhookLogRepository interface {
	CreateWebhookLog(ctx context.Context, log *models.WebhookLog) error
	ExistsByWebhookID(ctx context.Context, webhookID string) (bool, error)
	HasRecentValidLog(ctx context.Context, transactionID, status string, since time.Time) (bool, error)
	FinishWebhookLog(ctx context.Context, id string, isValid bool, errorMessage string, processingTimeMs int64) error
}

// LedgerCommitter executes the credit unit as a single database
// transaction: balance conversion, transaction type flip and order
// completion land together or not at all.
type LedgerCommitter interface {
	CommitCredit(ctx context.Context, params models.CommitCreditParams) (*models.UserBalance, error)
}

// GatewayClient is the payment gateway collaborator.
type GatewayClient interface {
	CreateTransaction(ctx context.Context, req *gateway.CreateTransactionRequest) (*gateway.CreateTransactionResponse, error)
	GetTransactionStatus(ctx context.Context, transactionID string) (*gateway.TransactionStatus, error)
}

// BalanceLocker serializes ledger conversions per user, above the
// database row lock. The redis client implements it.
type BalanceLocker interface {
	AcquireUserLock(ctx context.Context, userID string, ttl time.Duration) (bool, error)
	ReleaseUserLock(ctx context.Context, userID string) error
}

// WebhookDeduper is the fast-path duplicate check in front of the
// webhook_logs table.
type WebhookDeduper interface {
	SetWebhookSeen(ctx context.Context, webhookID string, ttl time.Duration) error
	IsWebhookSeen(ctx context.Context, webhookID string) (bool, error)
}

// EventPublisher publishes domain events. Publish failures are logged,
// never surfaced to callers.
type EventPublisher interface {
	PublishOrderCreated(ctx context.Context, event *models.OrderCreatedEvent) error
	PublishOrderCompleted(ctx context.Context, event *models.OrderCompletedEvent) error
	PublishOrderFailed(ctx context.Context, event *models.OrderFailedEvent) error
	PublishOrderExpired(ctx context.Context, event *models.OrderExpiredEvent) error
	PublishPointsCredited(ctx context.Context, event *models.PointsCreditedEvent) error
}
