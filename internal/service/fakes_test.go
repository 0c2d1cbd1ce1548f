package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"points-service/internal/gateway"
	"points-service/internal/models"
)

// fakeStore is an in-memory implementation of the repository ports and the
// ledger committer, good enough for exercising the reconciliation logic.
type fakeStore struct {
	mu           sync.Mutex
	orders       map[string]*models.Order
	balances     map[string]*models.UserBalance
	transactions map[string]*models.PointsTransaction
	history      []models.OrderStatusHistory
	webhookLogs  map[string]*models.WebhookLog
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		orders:       make(map[string]*models.Order),
		balances:     make(map[string]*models.UserBalance),
		transactions: make(map[string]*models.PointsTransaction),
		webhookLogs:  make(map[string]*models.WebhookLog),
	}
}

func (f *fakeStore) CreateOrder(_ context.Context, order *models.Order) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	now := time.Now()
	order.CreatedAt = now
	order.UpdatedAt = now
	copied := *order
	f.orders[order.ID] = &copied
	return nil
}

func (f *fakeStore) GetOrderByID(_ context.Context, id string) (*models.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	order, ok := f.orders[id]
	if !ok {
		return nil, fmt.Errorf("order %s: %w", id, models.ErrNotFound)
	}
	copied := *order
	return &copied, nil
}

func (f *fakeStore) GetOrdersByUserID(_ context.Context, userID string, limit, offset int) ([]models.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var orders []models.Order
	for _, o := range f.orders {
		if o.UserID == userID {
			orders = append(orders, *o)
		}
	}
	return orders, nil
}

func (f *fakeStore) FindExpiredOrders(_ context.Context, limit int) ([]models.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var orders []models.Order
	for _, o := range f.orders {
		if o.Status == models.OrderStatusPending && o.ExpiresAt != nil && time.Now().After(*o.ExpiresAt) {
			orders = append(orders, *o)
			if len(orders) == limit {
				break
			}
		}
	}
	return orders, nil
}

func (f *fakeStore) UpdateOrderStatus(_ context.Context, orderID, from, to string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	order, ok := f.orders[orderID]
	if !ok {
		return fmt.Errorf("order %s: %w", orderID, models.ErrNotFound)
	}
	if order.Status != from {
		return fmt.Errorf("order %s not in status %s: %w", orderID, from, models.ErrStateConflict)
	}
	order.Status = to
	order.UpdatedAt = time.Now()
	return nil
}

func (f *fakeStore) SetGatewayData(_ context.Context, order *models.Order) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	stored, ok := f.orders[order.ID]
	if !ok {
		return fmt.Errorf("order %s: %w", order.ID, models.ErrNotFound)
	}
	stored.GatewayTransactionID = order.GatewayTransactionID
	stored.QRCode = order.QRCode
	stored.QRImageURL = order.QRImageURL
	stored.ExpiresAt = order.ExpiresAt
	stored.UpdatedAt = time.Now()
	return nil
}

func (f *fakeStore) GetBalanceByUserID(_ context.Context, userID string) (*models.UserBalance, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	balance, ok := f.balances[userID]
	if !ok {
		return nil, fmt.Errorf("balance for user %s: %w", userID, models.ErrNotFound)
	}
	copied := *balance
	return &copied, nil
}

func (f *fakeStore) CreateBalance(_ context.Context, balance *models.UserBalance) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	now := time.Now()
	balance.CreatedAt = now
	balance.UpdatedAt = now
	copied := *balance
	f.balances[balance.UserID] = &copied
	return nil
}

func (f *fakeStore) AddPending(_ context.Context, userID string, amount decimal.Decimal) (*models.UserBalance, error) {
	return f.mutateBalance(userID, func(b *models.UserBalance) (*models.UserBalance, error) {
		return b.AddPending(amount)
	})
}

func (f *fakeStore) ConvertPendingToAvailable(_ context.Context, userID string, amount decimal.Decimal) (*models.UserBalance, error) {
	return f.mutateBalance(userID, func(b *models.UserBalance) (*models.UserBalance, error) {
		return b.ConvertPendingToAvailable(amount)
	})
}

func (f *fakeStore) ReleasePending(_ context.Context, userID string, amount decimal.Decimal) (*models.UserBalance, error) {
	return f.mutateBalance(userID, func(b *models.UserBalance) (*models.UserBalance, error) {
		return b.ReleasePending(amount)
	})
}

func (f *fakeStore) mutateBalance(userID string, mutate func(*models.UserBalance) (*models.UserBalance, error)) (*models.UserBalance, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	balance, ok := f.balances[userID]
	if !ok {
		return nil, fmt.Errorf("balance for user %s: %w", userID, models.ErrNotFound)
	}
	next, err := mutate(balance)
	if err != nil {
		return nil, err
	}
	f.balances[userID] = next
	copied := *next
	return &copied, nil
}

func (f *fakeStore) CreateTransaction(_ context.Context, txn *models.PointsTransaction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	now := time.Now()
	txn.CreatedAt = now
	txn.UpdatedAt = now
	copied := *txn
	f.transactions[txn.ID] = &copied
	return nil
}

func (f *fakeStore) GetTransactionsByUserID(_ context.Context, userID string, limit, offset int) ([]models.PointsTransaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var txns []models.PointsTransaction
	for _, t := range f.transactions {
		if t.UserID == userID {
			txns = append(txns, *t)
		}
	}
	return txns, nil
}

func (f *fakeStore) GetTransactionsByOrderID(_ context.Context, orderID, txnType string) ([]models.PointsTransaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var txns []models.PointsTransaction
	for _, t := range f.transactions {
		if t.OrderID != nil && *t.OrderID == orderID && (txnType == "" || t.Type == txnType) {
			txns = append(txns, *t)
		}
	}
	return txns, nil
}

func (f *fakeStore) UpdateTransactionType(_ context.Context, id, from, to string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	txn, ok := f.transactions[id]
	if !ok {
		return fmt.Errorf("transaction %s: %w", id, models.ErrNotFound)
	}
	if txn.Type != from {
		return fmt.Errorf("transaction %s not in type %s: %w", id, from, models.ErrStateConflict)
	}
	txn.Type = to
	txn.UpdatedAt = time.Now()
	return nil
}

func (f *fakeStore) CreateHistory(_ context.Context, entry *models.OrderStatusHistory) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	entry.CreatedAt = time.Now()
	f.history = append(f.history, *entry)
	return nil
}

func (f *fakeStore) GetHistoryByOrderID(_ context.Context, orderID string) ([]models.OrderStatusHistory, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var entries []models.OrderStatusHistory
	for _, e := range f.history {
		if e.OrderID == orderID {
			entries = append(entries, e)
		}
	}
	return entries, nil
}

func (f *fakeStore) CreateWebhookLog(_ context.Context, log *models.WebhookLog) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	log.CreatedAt = time.Now()
	copied := *log
	f.webhookLogs[log.ID] = &copied
	return nil
}

func (f *fakeStore) ExistsByWebhookID(_ context.Context, webhookID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, l := range f.webhookLogs {
		if l.WebhookID != nil && *l.WebhookID == webhookID {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeStore) HasRecentValidLog(_ context.Context, transactionID, status string, since time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, l := range f.webhookLogs {
		if l.TransactionID == transactionID && l.Status == status && l.IsValid && !l.CreatedAt.Before(since) {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeStore) FinishWebhookLog(_ context.Context, id string, isValid bool, errorMessage string, processingTimeMs int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	log, ok := f.webhookLogs[id]
	if !ok {
		return fmt.Errorf("webhook log %s: %w", id, models.ErrNotFound)
	}
	log.IsValid = isValid
	log.ErrorMessage = errorMessage
	log.ProcessingTimeMs = processingTimeMs
	now := time.Now()
	log.ProcessedAt = &now
	return nil
}

// CommitCredit mirrors the store's transactional unit: checks run first,
// then all three mutations apply under the same lock.
func (f *fakeStore) CommitCredit(_ context.Context, params models.CommitCreditParams) (*models.UserBalance, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	balance, ok := f.balances[params.UserID]
	if !ok {
		return nil, fmt.Errorf("balance for user %s: %w", params.UserID, models.ErrNotFound)
	}
	txn, ok := f.transactions[params.TransactionID]
	if !ok || txn.Type != models.TransactionTypePending {
		return nil, fmt.Errorf("transaction %s already credited: %w", params.TransactionID, models.ErrStateConflict)
	}
	order, ok := f.orders[params.OrderID]
	if !ok || order.Status != params.FromStatus {
		return nil, fmt.Errorf("order %s not in status %s: %w", params.OrderID, params.FromStatus, models.ErrStateConflict)
	}

	next, err := balance.ConvertPendingToAvailable(params.Amount)
	if err != nil {
		return nil, err
	}

	f.balances[params.UserID] = next
	txn.Type = models.TransactionTypeCredit
	order.Status = models.OrderStatusCompleted
	order.UpdatedAt = time.Now()

	copied := *next
	return &copied, nil
}

// fakeGateway returns scripted responses.
type fakeGateway struct {
	mu             sync.Mutex
	createResp     *gateway.CreateTransactionResponse
	createErr      error
	statusResp     *gateway.TransactionStatus
	statusErr      error
	statusCalls    int
	createdReqs    []*gateway.CreateTransactionRequest
}

func (f *fakeGateway) CreateTransaction(_ context.Context, req *gateway.CreateTransactionRequest) (*gateway.CreateTransactionResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.createdReqs = append(f.createdReqs, req)
	if f.createErr != nil {
		return nil, f.createErr
	}
	return f.createResp, nil
}

func (f *fakeGateway) GetTransactionStatus(_ context.Context, transactionID string) (*gateway.TransactionStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statusCalls++
	if f.statusErr != nil {
		return nil, f.statusErr
	}
	return f.statusResp, nil
}

// fakeLocker always grants the lock and counts acquisitions.
type fakeLocker struct {
	mu       sync.Mutex
	acquired int
	released int
}

func (f *fakeLocker) AcquireUserLock(_ context.Context, userID string, ttl time.Duration) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.acquired++
	return true, nil
}

func (f *fakeLocker) ReleaseUserLock(_ context.Context, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.released++
	return nil
}

// fakeDeduper is an in-memory webhook-id cache.
type fakeDeduper struct {
	mu   sync.Mutex
	seen map[string]bool
}

func newFakeDeduper() *fakeDeduper {
	return &fakeDeduper{seen: make(map[string]bool)}
}

func (f *fakeDeduper) SetWebhookSeen(_ context.Context, webhookID string, ttl time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seen[webhookID] = true
	return nil
}

func (f *fakeDeduper) IsWebhookSeen(_ context.Context, webhookID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.seen[webhookID], nil
}

// fakePublisher records published events.
type fakePublisher struct {
	mu        sync.Mutex
	created   []*models.OrderCreatedEvent
	completed []*models.OrderCompletedEvent
	failed    []*models.OrderFailedEvent
	expired   []*models.OrderExpiredEvent
	credited  []*models.PointsCreditedEvent
}

func (f *fakePublisher) PublishOrderCreated(_ context.Context, event *models.OrderCreatedEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created = append(f.created, event)
	return nil
}

func (f *fakePublisher) PublishOrderCompleted(_ context.Context, event *models.OrderCompletedEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.completed = append(f.completed, event)
	return nil
}

func (f *fakePublisher) PublishOrderFailed(_ context.Context, event *models.OrderFailedEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failed = append(f.failed, event)
	return nil
}

func (f *fakePublisher) PublishOrderExpired(_ context.Context, event *models.OrderExpiredEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.expired = append(f.expired, event)
	return nil
}

func (f *fakePublisher) PublishPointsCredited(_ context.Context, event *models.PointsCreditedEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.credited = append(f.credited, event)
	return nil
}
