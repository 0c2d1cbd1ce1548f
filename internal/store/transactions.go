package store

import (
	"context"
	"database/sql"
	"fmt"

	"points-service/internal/models"
)

type transactionRow struct {
	models.PointsTransaction
	MetadataRaw []byte `db:"metadata"`
}

func (r *transactionRow) toModel() (*models.PointsTransaction, error) {
	txn := r.PointsTransaction
	meta, err := unmarshalMetadata(r.MetadataRaw)
	if err != nil {
		return nil, fmt.Errorf("failed to decode transaction metadata: %w", err)
	}
	txn.Metadata = meta
	return &txn, nil
}

// CreateTransaction inserts a new ledger entry.
func (s *Store) CreateTransaction(ctx context.Context, txn *models.PointsTransaction) error {
	meta, err := marshalMetadata(txn.Metadata)
	if err != nil {
		return fmt.Errorf("failed to encode transaction metadata: %w", err)
	}

	query := `
		INSERT INTO points_transactions (id, user_id, order_id, type, amount, description, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at, updated_at`

	row := s.db.QueryRowxContext(ctx, query,
		txn.ID, txn.UserID, txn.OrderID, txn.Type, txn.Amount, txn.Description, meta)
	return row.Scan(&txn.CreatedAt, &txn.UpdatedAt)
}

// GetTransactionByID retrieves a ledger entry by ID.
func (s *Store) GetTransactionByID(ctx context.Context, id string) (*models.PointsTransaction, error) {
	var row transactionRow
	err := s.db.GetContext(ctx, &row, "SELECT * FROM points_transactions WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("transaction %s: %w", id, models.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return row.toModel()
}

// GetTransactionsByUserID retrieves a user's ledger entries, newest first.
func (s *Store) GetTransactionsByUserID(ctx context.Context, userID string, limit, offset int) ([]models.PointsTransaction, error) {
	var rows []transactionRow
	err := s.db.SelectContext(ctx, &rows,
		"SELECT * FROM points_transactions WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3",
		userID, limit, offset)
	if err != nil {
		return nil, err
	}
	txns := make([]models.PointsTransaction, 0, len(rows))
	for i := range rows {
		txn, err := rows[i].toModel()
		if err != nil {
			return nil, err
		}
		txns = append(txns, *txn)
	}
	return txns, nil
}

// GetTransactionsByOrderID retrieves ledger entries tied to an order,
// optionally filtered by type. An empty txnType matches all.
func (s *Store) GetTransactionsByOrderID(ctx context.Context, orderID, txnType string) ([]models.PointsTransaction, error) {
	var rows []transactionRow
	var err error
	if txnType == "" {
		err = s.db.SelectContext(ctx, &rows,
			"SELECT * FROM points_transactions WHERE order_id = $1 ORDER BY created_at", orderID)
	} else {
		err = s.db.SelectContext(ctx, &rows,
			"SELECT * FROM points_transactions WHERE order_id = $1 AND type = $2 ORDER BY created_at",
			orderID, txnType)
	}
	if err != nil {
		return nil, err
	}
	txns := make([]models.PointsTransaction, 0, len(rows))
	for i := range rows {
		txn, err := rows[i].toModel()
		if err != nil {
			return nil, err
		}
		txns = append(txns, *txn)
	}
	return txns, nil
}

// UpdateTransactionType moves a ledger entry from one type to another. The
// previous-type guard makes a second CREDIT of the same entry impossible.
func (s *Store) UpdateTransactionType(ctx context.Context, id, from, to string) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE points_transactions SET type = $1, updated_at = NOW() WHERE id = $2 AND type = $3",
		to, id, from)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("transaction %s not in type %s: %w", id, from, models.ErrStateConflict)
	}
	return nil
}
