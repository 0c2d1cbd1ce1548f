package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/shopspring/decimal"

	"points-service/internal/models"
)

// GetBalanceByUserID retrieves the ledger head for a user.
func (s *Store) GetBalanceByUserID(ctx context.Context, userID string) (*models.UserBalance, error) {
	var balance models.UserBalance
	err := s.db.GetContext(ctx, &balance,
		"SELECT * FROM user_balances WHERE user_id = $1", userID)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("balance for user %s: %w", userID, models.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &balance, nil
}

// CreateBalance inserts a fresh zeroed balance. Balances are created lazily
// on a user's first order.
func (s *Store) CreateBalance(ctx context.Context, balance *models.UserBalance) error {
	query := `
		INSERT INTO user_balances (id, user_id, available_points, pending_points, total_points)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at, updated_at`

	row := s.db.QueryRowxContext(ctx, query,
		balance.ID, balance.UserID, balance.AvailablePoints,
		balance.PendingPoints, balance.TotalPoints)
	return row.Scan(&balance.CreatedAt, &balance.UpdatedAt)
}

// AddPending adds amount to a user's pending and total points under a row
// lock, returning the updated snapshot.
func (s *Store) AddPending(ctx context.Context, userID string, amount decimal.Decimal) (*models.UserBalance, error) {
	return s.mutateBalanceTx(ctx, userID, func(b *models.UserBalance) (*models.UserBalance, error) {
		return b.AddPending(amount)
	})
}

// ConvertPendingToAvailable atomically moves amount from pending to
// available for a user. Concurrent completions of the same order serialize
// on the row lock, so a double conversion fails the pending check.
func (s *Store) ConvertPendingToAvailable(ctx context.Context, userID string, amount decimal.Decimal) (*models.UserBalance, error) {
	return s.mutateBalanceTx(ctx, userID, func(b *models.UserBalance) (*models.UserBalance, error) {
		return b.ConvertPendingToAvailable(amount)
	})
}

// ReleasePending atomically removes amount from pending and total,
// reversing the reservation made at order creation.
func (s *Store) ReleasePending(ctx context.Context, userID string, amount decimal.Decimal) (*models.UserBalance, error) {
	return s.mutateBalanceTx(ctx, userID, func(b *models.UserBalance) (*models.UserBalance, error) {
		return b.ReleasePending(amount)
	})
}

// mutateBalanceTx applies an entity mutator to the persisted balance under
// SELECT ... FOR UPDATE, writing back the validated snapshot.
func (s *Store) mutateBalanceTx(
	ctx context.Context,
	userID string,
	mutate func(*models.UserBalance) (*models.UserBalance, error),
) (*models.UserBalance, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var balance models.UserBalance
	err = tx.GetContext(ctx, &balance,
		"SELECT * FROM user_balances WHERE user_id = $1 FOR UPDATE", userID)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("balance for user %s: %w", userID, models.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock balance: %w", err)
	}

	next, err := mutate(&balance)
	if err != nil {
		return nil, err
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE user_balances
		 SET available_points = $1, pending_points = $2, total_points = $3, updated_at = NOW()
		 WHERE user_id = $4`,
		next.AvailablePoints, next.PendingPoints, next.TotalPoints, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to update balance: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return next, nil
}
