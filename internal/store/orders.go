package store

import (
	"context"
	"database/sql"
	"fmt"

	"points-service/internal/models"
)

type orderRow struct {
	models.Order
	MetadataRaw []byte `db:"metadata"`
}

func (r *orderRow) toModel() (*models.Order, error) {
	order := r.Order
	meta, err := unmarshalMetadata(r.MetadataRaw)
	if err != nil {
		return nil, fmt.Errorf("failed to decode order metadata: %w", err)
	}
	order.Metadata = meta
	return &order, nil
}

// CreateOrder inserts a new order snapshot.
func (s *Store) CreateOrder(ctx context.Context, order *models.Order) error {
	meta, err := marshalMetadata(order.Metadata)
	if err != nil {
		return fmt.Errorf("failed to encode order metadata: %w", err)
	}

	query := `
		INSERT INTO orders (
			id, user_id, requested_amount, fee_amount, total_amount, points_amount,
			status, payment_method, gateway_transaction_id, qr_code, qr_image_url,
			expires_at, metadata
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING created_at, updated_at`

	row := s.db.QueryRowxContext(ctx, query,
		order.ID, order.UserID, order.RequestedAmount, order.FeeAmount,
		order.TotalAmount, order.PointsAmount, order.Status, order.PaymentMethod,
		order.GatewayTransactionID, order.QRCode, order.QRImageURL,
		order.ExpiresAt, meta)
	return row.Scan(&order.CreatedAt, &order.UpdatedAt)
}

// GetOrderByID retrieves an order by ID.
func (s *Store) GetOrderByID(ctx context.Context, id string) (*models.Order, error) {
	var row orderRow
	err := s.db.GetContext(ctx, &row, "SELECT * FROM orders WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("order %s: %w", id, models.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return row.toModel()
}

// GetOrdersByUserID retrieves orders for a user, newest first.
func (s *Store) GetOrdersByUserID(ctx context.Context, userID string, limit, offset int) ([]models.Order, error) {
	var rows []orderRow
	err := s.db.SelectContext(ctx, &rows,
		"SELECT * FROM orders WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3",
		userID, limit, offset)
	if err != nil {
		return nil, err
	}
	return rowsToOrders(rows)
}

// GetOrdersByStatus retrieves orders in the given status.
func (s *Store) GetOrdersByStatus(ctx context.Context, status string, limit int) ([]models.Order, error) {
	var rows []orderRow
	err := s.db.SelectContext(ctx, &rows,
		"SELECT * FROM orders WHERE status = $1 ORDER BY created_at LIMIT $2",
		status, limit)
	if err != nil {
		return nil, err
	}
	return rowsToOrders(rows)
}

// FindExpiredOrders retrieves PENDING orders whose payment window elapsed.
func (s *Store) FindExpiredOrders(ctx context.Context, limit int) ([]models.Order, error) {
	var rows []orderRow
	err := s.db.SelectContext(ctx, &rows,
		`SELECT * FROM orders
		 WHERE status = $1 AND expires_at IS NOT NULL AND expires_at < NOW()
		 ORDER BY expires_at LIMIT $2`,
		models.OrderStatusPending, limit)
	if err != nil {
		return nil, err
	}
	return rowsToOrders(rows)
}

// UpdateOrderStatus moves an order from one status to another. The WHERE
// clause on the previous status is the storage-layer guard against two
// reconciliation paths racing on the same transition.
func (s *Store) UpdateOrderStatus(ctx context.Context, orderID, from, to string) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE orders SET status = $1, updated_at = NOW() WHERE id = $2 AND status = $3",
		to, orderID, from)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("order %s not in status %s: %w", orderID, from, models.ErrStateConflict)
	}
	return nil
}

// SetGatewayData attaches the gateway transaction reference, QR payload and
// payment deadline to an order.
func (s *Store) SetGatewayData(ctx context.Context, order *models.Order) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE orders
		 SET gateway_transaction_id = $1, qr_code = $2, qr_image_url = $3,
		     expires_at = $4, updated_at = NOW()
		 WHERE id = $5`,
		order.GatewayTransactionID, order.QRCode, order.QRImageURL,
		order.ExpiresAt, order.ID)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("order %s: %w", order.ID, models.ErrNotFound)
	}
	return nil
}

func rowsToOrders(rows []orderRow) ([]models.Order, error) {
	orders := make([]models.Order, 0, len(rows))
	for i := range rows {
		order, err := rows[i].toModel()
		if err != nil {
			return nil, err
		}
		orders = append(orders, *order)
	}
	return orders, nil
}
