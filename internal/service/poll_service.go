package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"points-service/internal/models"
	"points-service/internal/util"
)

// PollService reconciles order state by actively querying the gateway.
// It shares the status applier with the webhook path, so both channels
// apply identical transitions for the same external status.
type PollService struct {
	orders  OrderRepository
	gateway GatewayClient
	applier *statusApplier
	logger  *zap.Logger
}

// NewPollService creates the pull-path reconciler.
func NewPollService(orders OrderRepository, gw GatewayClient, applier *statusApplier) *PollService {
	return &PollService{
		orders:  orders,
		gateway: gw,
		applier: applier,
		logger:  util.GetLogger(),
	}
}

// CheckOrder reconciles one order against the gateway and returns its
// latest state. Gateway failures are recorded in the audit trail but do
// not fail the call; the caller still gets the last known state.
func (s *PollService) CheckOrder(ctx context.Context, orderID string) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "PollService.CheckOrder")
	defer span.End()

	order, err := s.orders.GetOrderByID(ctx, orderID)
	if err != nil {
		return nil, err
	}

	if order.GatewayTransactionID != "" && !models.IsTerminalStatus(order.Status) {
		status, err := s.gateway.GetTransactionStatus(ctx, order.GatewayTransactionID)
		if err != nil {
			// Status unknown this round. Audit the failed attempt and keep
			// the last known state.
			util.PollReconciliationsTotal.WithLabelValues("gateway_error").Inc()
			s.logger.Warn("Gateway status check failed",
				zap.String("order_id", order.ID),
				zap.Error(err))
			s.applier.errorHistory(ctx, order, models.ChangedByPolling,
				fmt.Sprintf("gateway status check failed: %v", err))
		} else {
			mapped := MapGatewayStatus(status.Status, s.logger)
			if mapped != order.Status {
				processed, err := s.applier.apply(ctx, order, mapped, order.GatewayTransactionID,
					models.ChangedByPolling, fmt.Sprintf("poll observed gateway status %s", status.Status), nil)
				if err != nil {
					util.PollReconciliationsTotal.WithLabelValues("apply_error").Inc()
					s.logger.Error("Poll transition failed",
						zap.String("order_id", order.ID),
						zap.String("mapped_status", mapped),
						zap.Error(err))
				} else if processed {
					util.PollReconciliationsTotal.WithLabelValues("updated").Inc()
				}
			} else {
				util.PollReconciliationsTotal.WithLabelValues("unchanged").Inc()
			}
		}
	}

	// Expiry is evaluated independently of the gateway round trip.
	order, err = s.orders.GetOrderByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	order, err = s.applier.expireIfDue(ctx, order)
	if err != nil {
		s.logger.Error("Lazy expiry failed",
			zap.String("order_id", order.ID), zap.Error(err))
	}

	return order, nil
}

// SweepExpired pages through overdue PENDING orders and expires them.
// Used by the background sweeper; lazy read-path expiry remains the
// primary mechanism.
func (s *PollService) SweepExpired(ctx context.Context, limit int) (int, error) {
	orders, err := s.orders.FindExpiredOrders(ctx, limit)
	if err != nil {
		return 0, fmt.Errorf("failed to list expired orders: %w", err)
	}

	expired := 0
	for i := range orders {
		order := orders[i]
		if _, err := s.applier.expireIfDue(ctx, &order); err != nil {
			s.logger.Error("Failed to expire order",
				zap.String("order_id", order.ID), zap.Error(err))
			continue
		}
		expired++
	}
	return expired, nil
}
