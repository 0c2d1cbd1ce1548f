package worker

import (
	"context"
	"time"

	"go.uber.org/zap"

	"points-service/internal/broker"
	"points-service/internal/models"
	"points-service/internal/service"
	"points-service/internal/util"
)

const expirySweepBatch = 100

// ExpiryWorker periodically expires overdue PENDING orders. Lazy expiry on
// the read paths remains the primary mechanism; the sweeper converges
// orders nobody is reading.
type ExpiryWorker struct {
	poll     *service.PollService
	interval time.Duration
	logger   *zap.Logger
}

// NewExpiryWorker creates the background expiry sweeper.
func NewExpiryWorker(poll *service.PollService, interval time.Duration) *ExpiryWorker {
	return &ExpiryWorker{
		poll:     poll,
		interval: interval,
		logger:   util.GetLogger(),
	}
}

// Start runs the sweep loop until the context is cancelled.
func (w *ExpiryWorker) Start(ctx context.Context) error {
	w.logger.Info("Starting expiry worker", zap.Duration("interval", w.interval))

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Expiry worker stopped")
			return ctx.Err()
		case <-ticker.C:
			expired, err := w.poll.SweepExpired(ctx, expirySweepBatch)
			if err != nil {
				w.logger.Error("Expiry sweep failed", zap.Error(err))
				continue
			}
			if expired > 0 {
				w.logger.Info("Expired stale orders", zap.Int("count", expired))
			}
		}
	}
}

// BalanceCacheWorker consumes order events and keeps the Redis balance
// cache in step with the ledger.
type BalanceCacheWorker struct {
	consumer     *broker.Consumer
	eventHandler *broker.EventHandler
	logger       *zap.Logger
}

// NewBalanceCacheWorker creates the cache-refresh worker.
func NewBalanceCacheWorker(consumer *broker.Consumer, balance *service.BalanceService) *BalanceCacheWorker {
	logger := util.GetLogger()
	eventHandler := broker.NewEventHandler()

	eventHandler.OnPointsCredited(func(ctx context.Context, event *models.PointsCreditedEvent) error {
		if err := balance.RefreshCache(ctx, event.UserID); err != nil {
			logger.Warn("Balance cache refresh failed",
				zap.String("user_id", event.UserID), zap.Error(err))
		}
		return nil
	})

	return &BalanceCacheWorker{
		consumer:     consumer,
		eventHandler: eventHandler,
		logger:       logger,
	}
}

// Start starts the worker
func (w *BalanceCacheWorker) Start(ctx context.Context) error {
	w.logger.Info("Starting balance cache worker")
	return w.consumer.StartConsuming(ctx, w.eventHandler.HandleMessage)
}

// Stop stops the worker
func (w *BalanceCacheWorker) Stop() error {
	w.logger.Info("Stopping balance cache worker")
	return w.consumer.Close()
}
