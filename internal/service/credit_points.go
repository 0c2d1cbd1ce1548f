package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"points-service/internal/models"
	"points-service/internal/util"
)

const userLockTTL = 10 * time.Second

// CreditPointsService is the only component allowed to move points from
// pending to available and mark an order COMPLETED. Both reconciliation
// paths funnel completions through here.
type CreditPointsService struct {
	orders       OrderRepository
	balances     BalanceRepository
	transactions TransactionRepository
	history      HistoryRepository
	committer    LedgerCommitter
	locker       BalanceLocker
	events       EventPublisher
	logger       *zap.Logger
}

// NewCreditPointsService creates the ledger-commit service.
func NewCreditPointsService(
	orders OrderRepository,
	balances BalanceRepository,
	transactions TransactionRepository,
	history HistoryRepository,
	committer LedgerCommitter,
	locker BalanceLocker,
	events EventPublisher,
) *CreditPointsService {
	return &CreditPointsService{
		orders:       orders,
		balances:     balances,
		transactions: transactions,
		history:      history,
		committer:    committer,
		locker:       locker,
		events:       events,
		logger:       util.GetLogger(),
	}
}

// CreditResult reports the outcome of a successful credit.
type CreditResult struct {
	Order         *models.Order       `json:"order"`
	Balance       *models.UserBalance `json:"balance"`
	TransactionID string              `json:"transaction_id"`
}

// Credit converts the order's pending points to available, flips the
// PENDING ledger entry to CREDIT, and completes the order, atomically.
// gatewayTransactionID, when non-empty, must match the order's.
func (s *CreditPointsService) Credit(ctx context.Context, orderID, gatewayTransactionID, changedBy string) (*CreditResult, error) {
	ctx, span := util.StartSpan(ctx, "CreditPointsService.Credit")
	defer span.End()

	start := time.Now()
	defer func() {
		util.CreditLatency.Observe(time.Since(start).Seconds())
	}()

	order, err := s.orders.GetOrderByID(ctx, orderID)
	if err != nil {
		return nil, err
	}

	if gatewayTransactionID != "" && order.GatewayTransactionID != gatewayTransactionID {
		return nil, fmt.Errorf("order %s: gateway transaction id mismatch: %w", orderID, models.ErrStateConflict)
	}

	if !order.CanBeCompleted() {
		return nil, &models.InvalidTransitionError{
			OrderID: order.ID,
			From:    order.Status,
			To:      models.OrderStatusCompleted,
		}
	}

	pending, err := s.transactions.GetTransactionsByOrderID(ctx, order.ID, models.TransactionTypePending)
	if err != nil {
		return nil, fmt.Errorf("failed to load pending transactions: %w", err)
	}
	if len(pending) != 1 {
		return nil, fmt.Errorf("order %s has %d pending ledger entries, want exactly 1: %w",
			order.ID, len(pending), models.ErrStateConflict)
	}
	entry := pending[0]

	acquired, err := s.locker.AcquireUserLock(ctx, order.UserID, userLockTTL)
	if err != nil {
		s.logger.Warn("Balance lock unavailable, relying on row lock",
			zap.String("user_id", order.UserID), zap.Error(err))
	} else if !acquired {
		return nil, fmt.Errorf("ledger busy for user %s: %w", order.UserID, models.ErrStateConflict)
	} else {
		defer func() {
			if err := s.locker.ReleaseUserLock(context.Background(), order.UserID); err != nil {
				s.logger.Warn("Failed to release balance lock",
					zap.String("user_id", order.UserID), zap.Error(err))
			}
		}()
	}

	balanceBefore, err := s.balances.GetBalanceByUserID(ctx, order.UserID)
	if err != nil {
		return nil, err
	}

	balanceAfter, err := s.committer.CommitCredit(ctx, models.CommitCreditParams{
		OrderID:       order.ID,
		UserID:        order.UserID,
		TransactionID: entry.ID,
		Amount:        order.PointsAmount,
		FromStatus:    order.Status,
	})
	if err != nil {
		s.recordCreditFailure(ctx, order, changedBy, err)
		return nil, err
	}

	previous := order.Status
	completed := *order
	completed.Status = models.OrderStatusCompleted
	completed.UpdatedAt = time.Now()

	historyEntry := &models.OrderStatusHistory{
		ID:             uuid.New().String(),
		OrderID:        order.ID,
		PreviousStatus: &previous,
		NewStatus:      models.OrderStatusCompleted,
		ChangedBy:      changedBy,
		Reason:         "points credited",
		Metadata: map[string]string{
			"transaction_id":   entry.ID,
			"available_before": balanceBefore.AvailablePoints.String(),
			"available_after":  balanceAfter.AvailablePoints.String(),
			"pending_before":   balanceBefore.PendingPoints.String(),
			"pending_after":    balanceAfter.PendingPoints.String(),
		},
	}
	if err := s.history.CreateHistory(ctx, historyEntry); err != nil {
		// The credit already landed; the missing audit row is logged, not
		// surfaced as a failure.
		s.logger.Error("Failed to append completion history",
			zap.String("order_id", order.ID), zap.Error(err))
	}

	util.PointsCreditedTotal.Inc()
	util.OrdersCompletedTotal.Inc()
	s.logger.Info("Points credited",
		zap.String("order_id", order.ID),
		zap.String("user_id", order.UserID),
		zap.String("amount", order.PointsAmount.String()),
		zap.String("changed_by", changedBy))

	s.publishCompleted(ctx, &completed, entry.ID, balanceAfter, changedBy)

	return &CreditResult{
		Order:         &completed,
		Balance:       balanceAfter,
		TransactionID: entry.ID,
	}, nil
}

// recordCreditFailure audits a failed credit unit and moves the order to
// FAILED. The failure itself is an audited event; the caller still gets
// the original error.
func (s *CreditPointsService) recordCreditFailure(ctx context.Context, order *models.Order, changedBy string, cause error) {
	previous := order.Status
	entry := &models.OrderStatusHistory{
		ID:             uuid.New().String(),
		OrderID:        order.ID,
		PreviousStatus: &previous,
		NewStatus:      models.OrderStatusFailed,
		ChangedBy:      changedBy,
		Reason:         fmt.Sprintf("credit failed: %v", cause),
	}
	if err := s.history.CreateHistory(ctx, entry); err != nil {
		s.logger.Error("Failed to append failure history",
			zap.String("order_id", order.ID), zap.Error(err))
	}

	if err := s.orders.UpdateOrderStatus(ctx, order.ID, order.Status, models.OrderStatusFailed); err != nil {
		s.logger.Error("Failed to mark order failed",
			zap.String("order_id", order.ID), zap.Error(err))
	}
	util.OrdersFailedTotal.WithLabelValues("credit_failed").Inc()
}

func (s *CreditPointsService) publishCompleted(ctx context.Context, order *models.Order, transactionID string, balance *models.UserBalance, changedBy string) {
	completedEvent := &models.OrderCompletedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypeOrderCompleted,
			Timestamp: time.Now(),
		},
		OrderID:       order.ID,
		UserID:        order.UserID,
		PointsAmount:  order.PointsAmount,
		TransactionID: transactionID,
		ChangedBy:     changedBy,
	}
	if err := s.events.PublishOrderCompleted(ctx, completedEvent); err != nil {
		s.logger.Error("Failed to publish OrderCompleted event", zap.Error(err))
	}

	creditedEvent := &models.PointsCreditedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypePointsCredited,
			Timestamp: time.Now(),
		},
		OrderID:         order.ID,
		UserID:          order.UserID,
		Amount:          order.PointsAmount,
		AvailablePoints: balance.AvailablePoints,
		PendingPoints:   balance.PendingPoints,
	}
	if err := s.events.PublishPointsCredited(ctx, creditedEvent); err != nil {
		s.logger.Error("Failed to publish PointsCredited event", zap.Error(err))
	}
}
