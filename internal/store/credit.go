package store

import (
	"context"
	"database/sql"
	"fmt"

	"points-service/internal/models"
)

// CommitCredit executes the credit unit in one database transaction: the
// user's pending points convert to available, the PENDING ledger entry
// flips to CREDIT, and the order moves to COMPLETED. Either all three land
// or none do. The balance row lock serializes concurrent completions; the
// type and status guards make a second commit of the same order fail.
func (s *Store) CommitCredit(ctx context.Context, params models.CommitCreditParams) (*models.UserBalance, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var balance models.UserBalance
	err = tx.GetContext(ctx, &balance,
		"SELECT * FROM user_balances WHERE user_id = $1 FOR UPDATE", params.UserID)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("balance for user %s: %w", params.UserID, models.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock balance: %w", err)
	}

	next, err := balance.ConvertPendingToAvailable(params.Amount)
	if err != nil {
		return nil, err
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE user_balances
		 SET available_points = $1, pending_points = $2, total_points = $3, updated_at = NOW()
		 WHERE user_id = $4`,
		next.AvailablePoints, next.PendingPoints, next.TotalPoints, params.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to update balance: %w", err)
	}

	res, err := tx.ExecContext(ctx,
		"UPDATE points_transactions SET type = $1, updated_at = NOW() WHERE id = $2 AND type = $3",
		models.TransactionTypeCredit, params.TransactionID, models.TransactionTypePending)
	if err != nil {
		return nil, err
	}
	if affected, err := res.RowsAffected(); err != nil {
		return nil, err
	} else if affected == 0 {
		return nil, fmt.Errorf("transaction %s already credited: %w", params.TransactionID, models.ErrStateConflict)
	}

	res, err = tx.ExecContext(ctx,
		"UPDATE orders SET status = $1, updated_at = NOW() WHERE id = $2 AND status = $3",
		models.OrderStatusCompleted, params.OrderID, params.FromStatus)
	if err != nil {
		return nil, err
	}
	if affected, err := res.RowsAffected(); err != nil {
		return nil, err
	} else if affected == 0 {
		return nil, fmt.Errorf("order %s not in status %s: %w", params.OrderID, params.FromStatus, models.ErrStateConflict)
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return next, nil
}
