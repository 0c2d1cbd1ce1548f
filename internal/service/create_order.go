package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"points-service/internal/gateway"
	"points-service/internal/models"
	"points-service/internal/points"
	"points-service/internal/util"
)

// CreateOrderService builds a new purchase order: the order row, the
// pending ledger entry, the balance reservation, and the gateway charge.
type CreateOrderService struct {
	orders       OrderRepository
	balances     BalanceRepository
	transactions TransactionRepository
	history      HistoryRepository
	gateway      GatewayClient
	events       EventPublisher
	calculator   *points.Calculator
	orderExpiry  time.Duration
	logger       *zap.Logger
}

// NewCreateOrderService creates the order orchestrator.
func NewCreateOrderService(
	orders OrderRepository,
	balances BalanceRepository,
	transactions TransactionRepository,
	history HistoryRepository,
	gw GatewayClient,
	events EventPublisher,
	calculator *points.Calculator,
	orderExpiry time.Duration,
) *CreateOrderService {
	return &CreateOrderService{
		orders:       orders,
		balances:     balances,
		transactions: transactions,
		history:      history,
		gateway:      gw,
		events:       events,
		calculator:   calculator,
		orderExpiry:  orderExpiry,
		logger:       util.GetLogger(),
	}
}

// CreateOrderRequest is the inbound purchase request.
type CreateOrderRequest struct {
	UserID        string            `json:"user_id" binding:"required"`
	Amount        decimal.Decimal   `json:"amount" binding:"required"`
	PaymentMethod string            `json:"payment_method"`
	Metadata      map[string]string `json:"metadata,omitempty"`
}

// CreateOrderResponse is returned after order creation.
type CreateOrderResponse struct {
	Order      *models.Order `json:"order"`
	QRCode     string        `json:"qr_code,omitempty"`
	QRImageURL string        `json:"qr_image_url,omitempty"`
}

// CreateOrder validates the amount, persists the order with its pending
// ledger entry, and registers the PIX charge with the gateway.
func (s *CreateOrderService) CreateOrder(ctx context.Context, req *CreateOrderRequest) (*CreateOrderResponse, error) {
	ctx, span := util.StartSpan(ctx, "CreateOrderService.CreateOrder")
	defer span.End()

	if err := s.calculator.ValidatePurchaseAmount(req.Amount); err != nil {
		util.OrdersFailedTotal.WithLabelValues("invalid_amount").Inc()
		return nil, err
	}

	if req.PaymentMethod == "" {
		req.PaymentMethod = models.PaymentMethodPix
	}

	fee := s.calculator.Fee(req.Amount)
	order := &models.Order{
		ID:              uuid.New().String(),
		UserID:          req.UserID,
		RequestedAmount: req.Amount,
		FeeAmount:       fee,
		TotalAmount:     req.Amount.Add(fee),
		PointsAmount:    s.calculator.Points(req.Amount),
		Status:          models.OrderStatusPending,
		PaymentMethod:   req.PaymentMethod,
		Metadata:        req.Metadata,
	}
	if err := order.Validate(); err != nil {
		return nil, err
	}

	if err := s.orders.CreateOrder(ctx, order); err != nil {
		util.OrdersFailedTotal.WithLabelValues("db_error").Inc()
		return nil, fmt.Errorf("failed to create order: %w", err)
	}
	util.OrdersCreatedTotal.Inc()

	if err := s.reservePoints(ctx, order); err != nil {
		s.failOrder(ctx, order, "points reservation failed", err)
		return nil, err
	}

	// Genesis row: previous status nil.
	genesis := &models.OrderStatusHistory{
		ID:        uuid.New().String(),
		OrderID:   order.ID,
		NewStatus: models.OrderStatusPending,
		ChangedBy: models.ChangedBySystem,
		Reason:    "order created",
	}
	if err := s.history.CreateHistory(ctx, genesis); err != nil {
		s.logger.Error("Failed to append genesis history",
			zap.String("order_id", order.ID), zap.Error(err))
	}

	var qrCode, qrImageURL string
	if req.PaymentMethod == models.PaymentMethodPix {
		gwResp, err := s.gateway.CreateTransaction(ctx, &gateway.CreateTransactionRequest{
			Amount:        order.TotalAmount,
			AmountType:    "FIAT",
			PaymentMethod: models.PaymentMethodPix,
			Type:          "DEPOSIT",
			ExternalID:    order.ID,
		})
		if err != nil {
			// Money movement has not started; order creation fails loudly.
			util.OrdersFailedTotal.WithLabelValues("gateway_error").Inc()
			s.failOrder(ctx, order, "gateway transaction creation failed", err)
			return nil, fmt.Errorf("failed to create gateway transaction: %w", err)
		}

		order = order.WithGatewayData(gwResp.TransactionID, gwResp.QRCopyPaste, gwResp.QRImageURL, s.orderExpiry)
		if err := s.orders.SetGatewayData(ctx, order); err != nil {
			util.OrdersFailedTotal.WithLabelValues("db_error").Inc()
			s.failOrder(ctx, order, "failed to persist gateway data", err)
			return nil, fmt.Errorf("failed to persist gateway data: %w", err)
		}
		qrCode = gwResp.QRCopyPaste
		qrImageURL = gwResp.QRImageURL
	}

	event := &models.OrderCreatedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypeOrderCreated,
			Timestamp: time.Now(),
		},
		OrderID:         order.ID,
		UserID:          order.UserID,
		RequestedAmount: order.RequestedAmount,
		TotalAmount:     order.TotalAmount,
		PointsAmount:    order.PointsAmount,
		PaymentMethod:   order.PaymentMethod,
	}
	if err := s.events.PublishOrderCreated(ctx, event); err != nil {
		s.logger.Error("Failed to publish OrderCreated event", zap.Error(err))
	}

	s.logger.Info("Order created",
		zap.String("order_id", order.ID),
		zap.String("user_id", order.UserID),
		zap.String("amount", order.RequestedAmount.String()),
		zap.String("total", order.TotalAmount.String()))

	return &CreateOrderResponse{
		Order:      order,
		QRCode:     qrCode,
		QRImageURL: qrImageURL,
	}, nil
}

// reservePoints lazily creates the user balance, adds the pending points
// and writes the PENDING ledger entry.
func (s *CreateOrderService) reservePoints(ctx context.Context, order *models.Order) error {
	_, err := s.balances.GetBalanceByUserID(ctx, order.UserID)
	if errors.Is(err, models.ErrNotFound) {
		balance := &models.UserBalance{
			ID:              uuid.New().String(),
			UserID:          order.UserID,
			AvailablePoints: decimal.Zero,
			PendingPoints:   decimal.Zero,
			TotalPoints:     decimal.Zero,
		}
		if err := s.balances.CreateBalance(ctx, balance); err != nil {
			return fmt.Errorf("failed to create balance: %w", err)
		}
	} else if err != nil {
		return fmt.Errorf("failed to load balance: %w", err)
	}

	if _, err := s.balances.AddPending(ctx, order.UserID, order.PointsAmount); err != nil {
		return fmt.Errorf("failed to add pending points: %w", err)
	}

	orderID := order.ID
	txn := &models.PointsTransaction{
		ID:          uuid.New().String(),
		UserID:      order.UserID,
		OrderID:     &orderID,
		Type:        models.TransactionTypePending,
		Amount:      order.PointsAmount,
		Description: fmt.Sprintf("points purchase, order %s", order.ID),
	}
	if err := s.transactions.CreateTransaction(ctx, txn); err != nil {
		return fmt.Errorf("failed to create pending transaction: %w", err)
	}
	return nil
}

// failOrder marks an order FAILED with an audited reason. Pending points
// stay pending, consistent with the terminal-failure policy default.
func (s *CreateOrderService) failOrder(ctx context.Context, order *models.Order, reason string, cause error) {
	previous := order.Status
	entry := &models.OrderStatusHistory{
		ID:             uuid.New().String(),
		OrderID:        order.ID,
		PreviousStatus: &previous,
		NewStatus:      models.OrderStatusFailed,
		ChangedBy:      models.ChangedBySystem,
		Reason:         fmt.Sprintf("%s: %v", reason, cause),
	}
	if err := s.history.CreateHistory(ctx, entry); err != nil {
		s.logger.Error("Failed to append failure history",
			zap.String("order_id", order.ID), zap.Error(err))
	}
	if err := s.orders.UpdateOrderStatus(ctx, order.ID, order.Status, models.OrderStatusFailed); err != nil {
		s.logger.Error("Failed to mark order failed",
			zap.String("order_id", order.ID), zap.Error(err))
	}
}

// GetOrdersByUser lists a user's orders.
func (s *CreateOrderService) GetOrdersByUser(ctx context.Context, userID string, limit, offset int) ([]models.Order, error) {
	return s.orders.GetOrdersByUserID(ctx, userID, limit, offset)
}
