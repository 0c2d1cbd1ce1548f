package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"points-service/internal/models"
	"points-service/internal/util"
)

const balanceCacheTTL = 30 * time.Second

// BalanceCache is the read cache for ledger heads.
type BalanceCache interface {
	CacheBalance(ctx context.Context, balance *models.UserBalance, ttl time.Duration) error
	GetCachedBalance(ctx context.Context, userID string) (*models.UserBalance, error)
	InvalidateBalance(ctx context.Context, userID string) error
}

// BalanceService serves ledger reads, cache-aside over the store.
type BalanceService struct {
	balances     BalanceRepository
	transactions TransactionRepository
	cache        BalanceCache
	logger       *zap.Logger
}

// NewBalanceService creates the ledger read service.
func NewBalanceService(balances BalanceRepository, transactions TransactionRepository, cache BalanceCache) *BalanceService {
	return &BalanceService{
		balances:     balances,
		transactions: transactions,
		cache:        cache,
		logger:       util.GetLogger(),
	}
}

// GetBalance returns a user's ledger head, preferring the cache.
func (s *BalanceService) GetBalance(ctx context.Context, userID string) (*models.UserBalance, error) {
	if cached, err := s.cache.GetCachedBalance(ctx, userID); err == nil && cached != nil {
		return cached, nil
	} else if err != nil {
		s.logger.Warn("Balance cache read failed", zap.String("user_id", userID), zap.Error(err))
	}

	balance, err := s.balances.GetBalanceByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}

	if err := s.cache.CacheBalance(ctx, balance, balanceCacheTTL); err != nil {
		s.logger.Warn("Balance cache write failed", zap.String("user_id", userID), zap.Error(err))
	}
	return balance, nil
}

// RefreshCache reloads a user's balance into the cache. Called by the
// event worker when a PointsCredited event lands.
func (s *BalanceService) RefreshCache(ctx context.Context, userID string) error {
	balance, err := s.balances.GetBalanceByUserID(ctx, userID)
	if err != nil {
		return err
	}
	return s.cache.CacheBalance(ctx, balance, balanceCacheTTL)
}

// GetTransactions lists a user's ledger entries.
func (s *BalanceService) GetTransactions(ctx context.Context, userID string, limit, offset int) ([]models.PointsTransaction, error) {
	return s.transactions.GetTransactionsByUserID(ctx, userID, limit, offset)
}
