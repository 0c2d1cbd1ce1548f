package service

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"points-service/internal/models"
)

func TestCreditPointsService_Credit(t *testing.T) {
	env := newTestEnv(t, envOptions{webhookEnabled: true})
	order := env.createOrder(t, "user-1", "100.00").Order

	result, err := env.credit.Credit(context.Background(), order.ID, order.GatewayTransactionID, models.ChangedByAlfredWebhook)
	require.NoError(t, err)

	assert.Equal(t, models.OrderStatusCompleted, result.Order.Status)
	assert.True(t, result.Balance.AvailablePoints.Equal(decimal.RequireFromString("100.00")))
	assert.True(t, result.Balance.PendingPoints.IsZero())
	assert.NotEmpty(t, result.TransactionID)

	stored, err := env.store.GetOrderByID(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusCompleted, stored.Status)

	txns, err := env.store.GetTransactionsByOrderID(context.Background(), order.ID, "")
	require.NoError(t, err)
	require.Len(t, txns, 1)
	assert.Equal(t, models.TransactionTypeCredit, txns[0].Type)

	// Completion history carries the before/after balances.
	history, err := env.store.GetHistoryByOrderID(context.Background(), order.ID)
	require.NoError(t, err)
	var completion *models.OrderStatusHistory
	for i := range history {
		if history[i].NewStatus == models.OrderStatusCompleted {
			completion = &history[i]
		}
	}
	require.NotNil(t, completion)
	assert.Equal(t, "0", completion.Metadata["available_before"])
	assert.Equal(t, "100", completion.Metadata["available_after"])

	assert.Equal(t, 1, env.locker.acquired)
	assert.Equal(t, 1, env.locker.released)
	assert.Len(t, env.events.completed, 1)
	assert.Len(t, env.events.credited, 1)
}

func TestCreditPointsService_SecondCreditRejected(t *testing.T) {
	env := newTestEnv(t, envOptions{webhookEnabled: true})
	order := env.createOrder(t, "user-1", "100.00").Order

	_, err := env.credit.Credit(context.Background(), order.ID, "", models.ChangedByAlfredWebhook)
	require.NoError(t, err)

	_, err = env.credit.Credit(context.Background(), order.ID, "", models.ChangedByPolling)
	require.Error(t, err)

	var ite *models.InvalidTransitionError
	assert.True(t, errors.As(err, &ite), "want InvalidTransitionError, got %T", err)
	assert.True(t, errors.Is(err, models.ErrStateConflict))

	balance, err := env.store.GetBalanceByUserID(context.Background(), "user-1")
	require.NoError(t, err)
	assert.True(t, balance.AvailablePoints.Equal(decimal.RequireFromString("100.00")),
		"second credit attempt must not double points")
}

func TestCreditPointsService_TransactionIDMismatch(t *testing.T) {
	env := newTestEnv(t, envOptions{webhookEnabled: true})
	order := env.createOrder(t, "user-1", "100.00").Order

	_, err := env.credit.Credit(context.Background(), order.ID, "some-other-txn", models.ChangedByAlfredWebhook)
	assert.ErrorIs(t, err, models.ErrStateConflict)

	stored, err := env.store.GetOrderByID(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusPending, stored.Status)
}

func TestCreditPointsService_NoPendingLedgerEntry(t *testing.T) {
	env := newTestEnv(t, envOptions{webhookEnabled: true})
	order := env.createOrder(t, "user-1", "100.00").Order

	env.store.mu.Lock()
	for _, txn := range env.store.transactions {
		txn.Type = models.TransactionTypeCredit
	}
	env.store.mu.Unlock()

	_, err := env.credit.Credit(context.Background(), order.ID, "", models.ChangedByAlfredWebhook)
	assert.ErrorIs(t, err, models.ErrStateConflict)
}

func TestCreditPointsService_CommitFailureMarksOrderFailed(t *testing.T) {
	env := newTestEnv(t, envOptions{webhookEnabled: true})
	order := env.createOrder(t, "user-1", "100.00").Order

	// Drain the pending points so the conversion inside the commit unit fails.
	env.store.mu.Lock()
	balance := env.store.balances["user-1"]
	balance.PendingPoints = decimal.Zero
	balance.TotalPoints = balance.AvailablePoints
	env.store.mu.Unlock()

	_, err := env.credit.Credit(context.Background(), order.ID, "", models.ChangedByAlfredWebhook)
	require.Error(t, err)

	var ipe *models.InsufficientPendingError
	assert.True(t, errors.As(err, &ipe))

	// The failed unit left no partial state and the order is failed.
	stored, err := env.store.GetOrderByID(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusFailed, stored.Status)

	txns, err := env.store.GetTransactionsByOrderID(context.Background(), order.ID, "")
	require.NoError(t, err)
	require.Len(t, txns, 1)
	assert.Equal(t, models.TransactionTypePending, txns[0].Type, "ledger entry untouched by the failed unit")

	history, err := env.store.GetHistoryByOrderID(context.Background(), order.ID)
	require.NoError(t, err)
	var failureAudited bool
	for _, entry := range history {
		if entry.NewStatus == models.OrderStatusFailed {
			failureAudited = true
		}
	}
	assert.True(t, failureAudited)
}

func TestCreditPointsService_OrderNotFound(t *testing.T) {
	env := newTestEnv(t, envOptions{webhookEnabled: true})

	_, err := env.credit.Credit(context.Background(), "no-such-order", "", models.ChangedByAlfredWebhook)
	assert.ErrorIs(t, err, models.ErrNotFound)
}
