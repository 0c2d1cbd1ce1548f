package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"points-service/internal/models"
	"points-service/internal/util"
)

// WebhookPayload is the inbound gateway notification. Only the consumed
// fields are modeled.
type WebhookPayload struct {
	WebhookID      string            `json:"webhookId,omitempty"`
	TransactionID  string            `json:"transactionId" binding:"required"`
	Status         string            `json:"status" binding:"required"`
	PreviousStatus string            `json:"previousStatus,omitempty"`
	ExternalID     string            `json:"externalId" binding:"required"`
	Amount         decimal.Decimal   `json:"amount"`
	AmountType     string            `json:"amountType,omitempty"`
	PaymentMethod  string            `json:"paymentMethod,omitempty"`
	TxHash         string            `json:"txHash,omitempty"`
	UpdatedAt      time.Time         `json:"updatedAt"`
	Metadata       map[string]string `json:"metadata,omitempty"`
	Signature      string            `json:"signature,omitempty"`
}

// WebhookResult is the structured outcome returned to the delivery sender.
// Code carries the HTTP-equivalent status; 500 invites a retry.
type WebhookResult struct {
	Success          bool   `json:"success"`
	Message          string `json:"message"`
	OrderID          string `json:"order_id,omitempty"`
	Processed        bool   `json:"processed"`
	ProcessingTimeMs int64  `json:"processing_time_ms"`
	WebhookLogID     string `json:"webhook_log_id,omitempty"`
	Code             int    `json:"-"`
}

// WebhookConfig is resolved once at startup and injected, never read from
// ambient state at call time.
type WebhookServiceConfig struct {
	Enabled      bool
	DedupeWindow time.Duration
}

// WebhookService reconciles gateway push notifications into order state.
type WebhookService struct {
	cfg        WebhookServiceConfig
	validator  *SignatureValidator
	orders     OrderRepository
	webhookLog WebhookLogRepository
	deduper    WebhookDeduper
	applier    *statusApplier
	logger     *zap.Logger
}

// NewWebhookService creates the push-path reconciler.
func NewWebhookService(
	cfg WebhookServiceConfig,
	validator *SignatureValidator,
	orders OrderRepository,
	balances BalanceRepository,
	transactions TransactionRepository,
	history HistoryRepository,
	webhookLog WebhookLogRepository,
	deduper WebhookDeduper,
	credit *CreditPointsService,
	events EventPublisher,
	releasePendingOnFailure bool,
) *WebhookService {
	logger := util.GetLogger()
	return &WebhookService{
		cfg:        cfg,
		validator:  validator,
		orders:     orders,
		webhookLog: webhookLog,
		deduper:    deduper,
		applier: &statusApplier{
			orders:         orders,
			balances:       balances,
			transactions:   transactions,
			history:        history,
			credit:         credit,
			events:         events,
			releasePending: releasePendingOnFailure,
			logger:         logger,
		},
		logger: logger,
	}
}

// Applier exposes the shared status applier so the poll path uses the
// exact same transition logic.
func (s *WebhookService) Applier() *statusApplier {
	return s.applier
}

// Process runs the push-path reconciliation over one delivery attempt.
func (s *WebhookService) Process(ctx context.Context, payload *WebhookPayload, rawBody []byte, signature string) *WebhookResult {
	ctx, span := util.StartSpan(ctx, "WebhookService.Process")
	defer span.End()

	start := time.Now()
	defer func() {
		util.WebhookProcessingLatency.Observe(time.Since(start).Seconds())
	}()
	util.WebhooksReceivedTotal.Inc()

	if !s.cfg.Enabled {
		return &WebhookResult{
			Success:   true,
			Message:   "webhooks disabled",
			Processed: false,
			Code:      http.StatusOK,
		}
	}

	if signature == "" {
		signature = payload.Signature
	}

	// Duplicate detection runs before any signature work; replays are the
	// common case under gateway retries.
	if dup, err := s.isDuplicate(ctx, payload); err != nil {
		s.logger.Error("Duplicate check failed", zap.Error(err))
		return s.internalError(start, "", err)
	} else if dup {
		util.WebhooksDuplicateTotal.Inc()
		s.logger.Info("Duplicate webhook ignored",
			zap.String("webhook_id", payload.WebhookID),
			zap.String("transaction_id", payload.TransactionID),
			zap.String("status", payload.Status))
		return &WebhookResult{
			Success:          true,
			Message:          "already processed",
			Processed:        false,
			ProcessingTimeMs: time.Since(start).Milliseconds(),
			Code:             http.StatusOK,
		}
	}

	sigResult := s.validator.Validate(rawBody, signature)

	// Every delivery attempt gets a log row, valid or not, before any
	// branching; this row is the idempotency anchor and the audit trail.
	logRow := &models.WebhookLog{
		ID:            uuid.New().String(),
		TransactionID: payload.TransactionID,
		ExternalID:    payload.ExternalID,
		Status:        payload.Status,
		Payload:       string(rawBody),
		Signature:     signature,
		IsValid:       sigResult.IsValid,
		ErrorMessage:  sigResult.Reason,
	}
	if payload.WebhookID != "" {
		webhookID := payload.WebhookID
		logRow.WebhookID = &webhookID
	}
	if err := s.webhookLog.CreateWebhookLog(ctx, logRow); err != nil {
		s.logger.Error("Failed to persist webhook log", zap.Error(err))
		return s.internalError(start, "", err)
	}

	if !sigResult.IsValid {
		util.WebhooksRejectedTotal.WithLabelValues("invalid_signature").Inc()
		s.logger.Warn("Webhook rejected: invalid signature",
			zap.String("transaction_id", payload.TransactionID),
			zap.String("reason", sigResult.Reason))
		return s.reject(ctx, logRow, start, http.StatusUnauthorized, "invalid signature: "+sigResult.Reason)
	}

	order, err := s.orders.GetOrderByID(ctx, payload.ExternalID)
	if errors.Is(err, models.ErrNotFound) {
		util.WebhooksRejectedTotal.WithLabelValues("order_not_found").Inc()
		return s.reject(ctx, logRow, start, http.StatusNotFound, "order not found")
	}
	if err != nil {
		s.logger.Error("Failed to load order", zap.Error(err))
		return s.internalError(start, logRow.ID, err)
	}

	// Guards against a webhook for one order being replayed against another.
	if order.GatewayTransactionID != payload.TransactionID {
		util.WebhooksRejectedTotal.WithLabelValues("transaction_mismatch").Inc()
		return s.reject(ctx, logRow, start, http.StatusBadRequest, "transaction id mismatch")
	}

	order, err = s.applier.expireIfDue(ctx, order)
	if err != nil {
		s.logger.Error("Lazy expiry failed", zap.String("order_id", order.ID), zap.Error(err))
		return s.internalError(start, logRow.ID, err)
	}

	mapped := MapGatewayStatus(payload.Status, s.logger)

	if mapped == order.Status {
		s.finish(ctx, logRow.ID, payload.WebhookID, true, "", start)
		return &WebhookResult{
			Success:          true,
			Message:          "status unchanged",
			OrderID:          order.ID,
			Processed:        false,
			ProcessingTimeMs: time.Since(start).Milliseconds(),
			WebhookLogID:     logRow.ID,
			Code:             http.StatusOK,
		}
	}

	meta := map[string]string{"webhook_log_id": logRow.ID}
	if payload.TxHash != "" {
		meta["tx_hash"] = payload.TxHash
	}

	processed, err := s.applier.apply(ctx, order, mapped, payload.TransactionID,
		models.ChangedByAlfredWebhook, fmt.Sprintf("webhook status %s", payload.Status), meta)
	if err != nil {
		// The history row written before dispatch stays; the failure is an
		// audited event. A 500 invites the gateway to retry delivery.
		s.logger.Error("Webhook transition failed",
			zap.String("order_id", order.ID),
			zap.String("mapped_status", mapped),
			zap.Error(err))
		s.finish(ctx, logRow.ID, payload.WebhookID, true, err.Error(), start)
		return &WebhookResult{
			Success:          false,
			Message:          "failed to apply status update",
			OrderID:          order.ID,
			Processed:        false,
			ProcessingTimeMs: time.Since(start).Milliseconds(),
			WebhookLogID:     logRow.ID,
			Code:             http.StatusInternalServerError,
		}
	}

	s.finish(ctx, logRow.ID, payload.WebhookID, true, "", start)
	s.logger.Info("Webhook processed",
		zap.String("order_id", order.ID),
		zap.String("from", order.Status),
		zap.String("to", mapped),
		zap.Bool("processed", processed))

	return &WebhookResult{
		Success:          true,
		Message:          "webhook processed",
		OrderID:          order.ID,
		Processed:        processed,
		ProcessingTimeMs: time.Since(start).Milliseconds(),
		WebhookLogID:     logRow.ID,
		Code:             http.StatusOK,
	}
}

// isDuplicate applies the two idempotency checks: a known webhookId, or a
// valid log for the same transactionId+status inside the dedupe window.
func (s *WebhookService) isDuplicate(ctx context.Context, payload *WebhookPayload) (bool, error) {
	if payload.WebhookID != "" {
		if seen, err := s.deduper.IsWebhookSeen(ctx, payload.WebhookID); err == nil && seen {
			return true, nil
		}
		exists, err := s.webhookLog.ExistsByWebhookID(ctx, payload.WebhookID)
		if err != nil {
			return false, fmt.Errorf("webhook id lookup: %w", err)
		}
		if exists {
			return true, nil
		}
	}

	since := time.Now().Add(-s.cfg.DedupeWindow)
	recent, err := s.webhookLog.HasRecentValidLog(ctx, payload.TransactionID, payload.Status, since)
	if err != nil {
		return false, fmt.Errorf("recent log lookup: %w", err)
	}
	return recent, nil
}

func (s *WebhookService) reject(ctx context.Context, logRow *models.WebhookLog, start time.Time, code int, message string) *WebhookResult {
	if err := s.webhookLog.FinishWebhookLog(ctx, logRow.ID, false, message, time.Since(start).Milliseconds()); err != nil {
		s.logger.Error("Failed to finalize webhook log", zap.String("webhook_log_id", logRow.ID), zap.Error(err))
	}
	return &WebhookResult{
		Success:          false,
		Message:          message,
		Processed:        false,
		ProcessingTimeMs: time.Since(start).Milliseconds(),
		WebhookLogID:     logRow.ID,
		Code:             code,
	}
}

func (s *WebhookService) finish(ctx context.Context, logID, webhookID string, isValid bool, errorMessage string, start time.Time) {
	if err := s.webhookLog.FinishWebhookLog(ctx, logID, isValid, errorMessage, time.Since(start).Milliseconds()); err != nil {
		s.logger.Error("Failed to finalize webhook log", zap.String("webhook_log_id", logID), zap.Error(err))
	}
	if webhookID != "" {
		if err := s.deduper.SetWebhookSeen(ctx, webhookID, s.cfg.DedupeWindow); err != nil {
			s.logger.Warn("Failed to cache webhook id", zap.String("webhook_id", webhookID), zap.Error(err))
		}
	}
}

func (s *WebhookService) internalError(start time.Time, logID string, err error) *WebhookResult {
	return &WebhookResult{
		Success:          false,
		Message:          "internal error",
		Processed:        false,
		ProcessingTimeMs: time.Since(start).Milliseconds(),
		WebhookLogID:     logID,
		Code:             http.StatusInternalServerError,
	}
}
