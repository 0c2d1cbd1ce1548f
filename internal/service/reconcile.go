package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"points-service/internal/models"
	"points-service/internal/util"
)

// statusApplier applies an externally-reported status to an order. The
// webhook and poll paths share one applier instance, so a given external
// status always produces the same transition regardless of which channel
// delivered it.
type statusApplier struct {
	orders         OrderRepository
	balances       BalanceRepository
	transactions   TransactionRepository
	history        HistoryRepository
	credit         *CreditPointsService
	events         EventPublisher
	releasePending bool
	logger         *zap.Logger
}

// apply transitions order to mapped status. Returns whether a transition
// was applied. Completions are delegated to the credit service; terminal
// failures only touch the order (plus the optional pending release).
func (a *statusApplier) apply(ctx context.Context, order *models.Order, mapped, gatewayTransactionID, changedBy, reason string, metadata map[string]string) (bool, error) {
	if mapped == order.Status {
		return false, nil
	}

	if mapped == models.OrderStatusCompleted {
		a.appendHistory(ctx, order, mapped, changedBy, reason, metadata)
		if _, err := a.credit.Credit(ctx, order.ID, gatewayTransactionID, changedBy); err != nil {
			return false, err
		}
		return true, nil
	}

	if !order.CanTransitionTo(mapped) {
		// Reported status cannot be applied from the current state; the
		// attempt is a signaled no-op, not an error worth retrying.
		a.logger.Warn("Skipping inapplicable status transition",
			zap.String("order_id", order.ID),
			zap.String("from", order.Status),
			zap.String("to", mapped),
			zap.String("changed_by", changedBy))
		return false, nil
	}

	a.appendHistory(ctx, order, mapped, changedBy, reason, metadata)

	if err := a.orders.UpdateOrderStatus(ctx, order.ID, order.Status, mapped); err != nil {
		return false, err
	}

	if models.IsTerminalStatus(mapped) {
		a.handleTerminalFailure(ctx, order, mapped, changedBy, reason)
	}
	return true, nil
}

// expireIfDue lazily transitions a PENDING order whose payment window has
// elapsed. Every read path calls this before trusting the status field.
func (a *statusApplier) expireIfDue(ctx context.Context, order *models.Order) (*models.Order, error) {
	if order.Status != models.OrderStatusPending || !order.IsExpired() {
		return order, nil
	}

	a.appendHistory(ctx, order, models.OrderStatusExpired, models.ChangedBySystem, "payment window elapsed", nil)

	if err := a.orders.UpdateOrderStatus(ctx, order.ID, order.Status, models.OrderStatusExpired); err != nil {
		return nil, err
	}
	util.OrdersExpiredTotal.Inc()

	a.handleTerminalFailure(ctx, order, models.OrderStatusExpired, models.ChangedBySystem, "payment window elapsed")

	expired := *order
	expired.Status = models.OrderStatusExpired
	expired.UpdatedAt = time.Now()
	return &expired, nil
}

// handleTerminalFailure runs the post-transition work for FAILED,
// CANCELLED and EXPIRED: the configurable pending release and the domain
// event. Failures here are logged, the transition already landed.
func (a *statusApplier) handleTerminalFailure(ctx context.Context, order *models.Order, status, changedBy, reason string) {
	if a.releasePending {
		a.releasePendingPoints(ctx, order)
	}

	var err error
	if status == models.OrderStatusExpired {
		err = a.events.PublishOrderExpired(ctx, &models.OrderExpiredEvent{
			BaseEvent: models.BaseEvent{
				EventID:   uuid.New().String(),
				EventType: models.EventTypeOrderExpired,
				Timestamp: time.Now(),
			},
			OrderID: order.ID,
			UserID:  order.UserID,
		})
	} else {
		err = a.events.PublishOrderFailed(ctx, &models.OrderFailedEvent{
			BaseEvent: models.BaseEvent{
				EventID:   uuid.New().String(),
				EventType: models.EventTypeOrderFailed,
				Timestamp: time.Now(),
			},
			OrderID:   order.ID,
			UserID:    order.UserID,
			Status:    status,
			Reason:    reason,
			ChangedBy: changedBy,
		})
	}
	if err != nil {
		a.logger.Error("Failed to publish terminal status event",
			zap.String("order_id", order.ID), zap.Error(err))
	}
}

// releasePendingPoints reverses the reservation made at order creation and
// flips the PENDING ledger entry to REFUND.
func (a *statusApplier) releasePendingPoints(ctx context.Context, order *models.Order) {
	pending, err := a.transactions.GetTransactionsByOrderID(ctx, order.ID, models.TransactionTypePending)
	if err != nil {
		a.logger.Error("Failed to load pending entry for release",
			zap.String("order_id", order.ID), zap.Error(err))
		return
	}
	if len(pending) != 1 {
		a.logger.Warn("Pending release skipped, unexpected ledger shape",
			zap.String("order_id", order.ID), zap.Int("entries", len(pending)))
		return
	}

	if _, err := a.balances.ReleasePending(ctx, order.UserID, order.PointsAmount); err != nil {
		a.logger.Error("Failed to release pending points",
			zap.String("order_id", order.ID), zap.Error(err))
		return
	}
	if err := a.transactions.UpdateTransactionType(ctx, pending[0].ID, models.TransactionTypePending, models.TransactionTypeRefund); err != nil {
		a.logger.Error("Failed to mark transaction refunded",
			zap.String("order_id", order.ID), zap.Error(err))
	}
}

func (a *statusApplier) appendHistory(ctx context.Context, order *models.Order, newStatus, changedBy, reason string, metadata map[string]string) {
	previous := order.Status
	entry := &models.OrderStatusHistory{
		ID:             uuid.New().String(),
		OrderID:        order.ID,
		PreviousStatus: &previous,
		NewStatus:      newStatus,
		ChangedBy:      changedBy,
		Reason:         reason,
		Metadata:       metadata,
	}
	if err := a.history.CreateHistory(ctx, entry); err != nil {
		a.logger.Error("Failed to append status history",
			zap.String("order_id", order.ID), zap.Error(err))
	}
}

// errorHistory appends an audit row for a reconciliation attempt that
// failed without a transition.
func (a *statusApplier) errorHistory(ctx context.Context, order *models.Order, changedBy, reason string) {
	entry := &models.OrderStatusHistory{
		ID:        uuid.New().String(),
		OrderID:   order.ID,
		NewStatus: order.Status,
		ChangedBy: changedBy,
		Reason:    reason,
	}
	previous := order.Status
	entry.PreviousStatus = &previous
	if err := a.history.CreateHistory(ctx, entry); err != nil {
		a.logger.Error("Failed to append reconciliation history",
			zap.String("order_id", order.ID), zap.Error(err))
	}
}
