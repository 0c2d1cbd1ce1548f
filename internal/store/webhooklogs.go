package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"points-service/internal/models"
)

// CreateWebhookLog inserts a delivery-attempt row. One row is written for
// every inbound delivery, valid or not, before any further processing.
func (s *Store) CreateWebhookLog(ctx context.Context, log *models.WebhookLog) error {
	query := `
		INSERT INTO webhook_logs (
			id, webhook_id, transaction_id, external_id, status, payload,
			signature, is_valid, error_message, processing_time_ms, processed_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING created_at`

	row := s.db.QueryRowxContext(ctx, query,
		log.ID, log.WebhookID, log.TransactionID, log.ExternalID, log.Status,
		log.Payload, log.Signature, log.IsValid, log.ErrorMessage,
		log.ProcessingTimeMs, log.ProcessedAt)
	return row.Scan(&log.CreatedAt)
}

// GetWebhookLogByID retrieves a delivery row by ID.
func (s *Store) GetWebhookLogByID(ctx context.Context, id string) (*models.WebhookLog, error) {
	var log models.WebhookLog
	err := s.db.GetContext(ctx, &log, "SELECT * FROM webhook_logs WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("webhook log %s: %w", id, models.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &log, nil
}

// ExistsByWebhookID reports whether a delivery with the given provider
// webhook id was already recorded.
func (s *Store) ExistsByWebhookID(ctx context.Context, webhookID string) (bool, error) {
	var exists bool
	err := s.db.GetContext(ctx, &exists,
		"SELECT EXISTS(SELECT 1 FROM webhook_logs WHERE webhook_id = $1)", webhookID)
	return exists, err
}

// HasRecentValidLog reports whether a valid delivery for the same
// transaction and status landed after the given instant.
func (s *Store) HasRecentValidLog(ctx context.Context, transactionID, status string, since time.Time) (bool, error) {
	var exists bool
	err := s.db.GetContext(ctx, &exists,
		`SELECT EXISTS(
			SELECT 1 FROM webhook_logs
			WHERE transaction_id = $1 AND status = $2 AND is_valid = TRUE AND created_at >= $3
		)`,
		transactionID, status, since)
	return exists, err
}

// FinishWebhookLog records the final outcome of a delivery attempt.
func (s *Store) FinishWebhookLog(ctx context.Context, id string, isValid bool, errorMessage string, processingTimeMs int64) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE webhook_logs
		 SET is_valid = $1, error_message = $2, processing_time_ms = $3, processed_at = NOW()
		 WHERE id = $4`,
		isValid, errorMessage, processingTimeMs, id)
	return err
}

// GetWebhookLogsByOrderID retrieves delivery rows for an order.
func (s *Store) GetWebhookLogsByOrderID(ctx context.Context, orderID string, limit, offset int) ([]models.WebhookLog, error) {
	var logs []models.WebhookLog
	err := s.db.SelectContext(ctx, &logs,
		"SELECT * FROM webhook_logs WHERE external_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3",
		orderID, limit, offset)
	return logs, err
}
