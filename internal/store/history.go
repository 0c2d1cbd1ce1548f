package store

import (
	"context"
	"fmt"
	"time"

	"points-service/internal/models"
)

type historyRow struct {
	models.OrderStatusHistory
	MetadataRaw []byte `db:"metadata"`
}

func (r *historyRow) toModel() (*models.OrderStatusHistory, error) {
	entry := r.OrderStatusHistory
	meta, err := unmarshalMetadata(r.MetadataRaw)
	if err != nil {
		return nil, fmt.Errorf("failed to decode history metadata: %w", err)
	}
	entry.Metadata = meta
	return &entry, nil
}

// CreateHistory appends a status-history row. History is append-only.
func (s *Store) CreateHistory(ctx context.Context, entry *models.OrderStatusHistory) error {
	meta, err := marshalMetadata(entry.Metadata)
	if err != nil {
		return fmt.Errorf("failed to encode history metadata: %w", err)
	}

	query := `
		INSERT INTO order_status_history (id, order_id, previous_status, new_status, changed_by, reason, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at`

	row := s.db.QueryRowxContext(ctx, query,
		entry.ID, entry.OrderID, entry.PreviousStatus, entry.NewStatus,
		entry.ChangedBy, entry.Reason, meta)
	return row.Scan(&entry.CreatedAt)
}

// GetHistoryByOrderID retrieves the audit trail for an order, oldest first.
func (s *Store) GetHistoryByOrderID(ctx context.Context, orderID string) ([]models.OrderStatusHistory, error) {
	var rows []historyRow
	err := s.db.SelectContext(ctx, &rows,
		"SELECT * FROM order_status_history WHERE order_id = $1 ORDER BY created_at", orderID)
	if err != nil {
		return nil, err
	}
	entries := make([]models.OrderStatusHistory, 0, len(rows))
	for i := range rows {
		entry, err := rows[i].toModel()
		if err != nil {
			return nil, err
		}
		entries = append(entries, *entry)
	}
	return entries, nil
}

// GetHistoryByDateRange retrieves audit rows in a window, for operational
// review queries.
func (s *Store) GetHistoryByDateRange(ctx context.Context, from, to time.Time, limit, offset int) ([]models.OrderStatusHistory, error) {
	var rows []historyRow
	err := s.db.SelectContext(ctx, &rows,
		`SELECT * FROM order_status_history
		 WHERE created_at >= $1 AND created_at < $2
		 ORDER BY created_at LIMIT $3 OFFSET $4`,
		from, to, limit, offset)
	if err != nil {
		return nil, err
	}
	entries := make([]models.OrderStatusHistory, 0, len(rows))
	for i := range rows {
		entry, err := rows[i].toModel()
		if err != nil {
			return nil, err
		}
		entries = append(entries, *entry)
	}
	return entries, nil
}
