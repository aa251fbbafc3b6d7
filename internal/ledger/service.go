// Package ledger implements the wallet ledger: account balances plus the
// append-only transaction log that produced them.
package ledger

import (
	"context"
	"time"

	"walletbridge/internal/domain"
	"walletbridge/pkg/errors"
	"walletbridge/pkg/logger"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Service struct {
	repo   Repository
	logger logger.Logger
}

func NewService(repo Repository, log logger.Logger) *Service {
	return &Service{
		repo:   repo,
		logger: log,
	}
}

// Credit adds amount to the user's wallet. The account is created lazily on
// first credit. Exactly one transaction row is written per successful call.
func (s *Service) Credit(ctx context.Context, userID int64, amount decimal.Decimal, currency string, source domain.TransactionSource, sourceRef, note string) (*domain.Transaction, error) {
	if !amount.IsPositive() {
		return nil, errors.ErrInvalidAmount
	}

	t := &domain.Transaction{
		ID:        uuid.New(),
		UserID:    userID,
		Type:      domain.TransactionTypeCredit,
		Amount:    amount,
		Currency:  currency,
		Source:    source,
		SourceRef: sourceRef,
		Note:      note,
		CreatedAt: time.Now().UTC(),
	}

	balance, err := s.repo.Credit(ctx, t)
	if err != nil {
		return nil, err
	}
	t.BalanceAfter = balance

	s.logger.Info("Wallet credited", map[string]interface{}{
		"user_id": userID,
		"amount":  amount.String(),
		"balance": balance.String(),
		"source":  source,
	})

	return t, nil
}

// Debit subtracts amount from the user's wallet only when the balance covers
// it. A rejected debit leaves the balance untouched.
func (s *Service) Debit(ctx context.Context, userID int64, amount decimal.Decimal, currency string, source domain.TransactionSource, sourceRef, note string) (*domain.Transaction, error) {
	if !amount.IsPositive() {
		return nil, errors.ErrInvalidAmount
	}

	t := &domain.Transaction{
		ID:        uuid.New(),
		UserID:    userID,
		Type:      domain.TransactionTypeDebit,
		Amount:    amount,
		Currency:  currency,
		Source:    source,
		SourceRef: sourceRef,
		Note:      note,
		CreatedAt: time.Now().UTC(),
	}

	balance, err := s.repo.Debit(ctx, t)
	if err != nil {
		return nil, err
	}
	t.BalanceAfter = balance

	s.logger.Info("Wallet debited", map[string]interface{}{
		"user_id": userID,
		"amount":  amount.String(),
		"balance": balance.String(),
		"source":  source,
	})

	return t, nil
}

// Balance returns the current balance, zero for unknown users.
func (s *Service) Balance(ctx context.Context, userID int64) (decimal.Decimal, error) {
	return s.repo.Balance(ctx, userID)
}

// Transactions lists ledger rows newest first, optionally filtered by user.
func (s *Service) Transactions(ctx context.Context, userID *int64, limit, offset int) ([]*domain.Transaction, int, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return s.repo.Transactions(ctx, userID, limit, offset)
}

type Repository interface {
	Credit(ctx context.Context, t *domain.Transaction) (decimal.Decimal, error)
	Debit(ctx context.Context, t *domain.Transaction) (decimal.Decimal, error)
	Balance(ctx context.Context, userID int64) (decimal.Decimal, error)
	Transactions(ctx context.Context, userID *int64, limit, offset int) ([]*domain.Transaction, int, error)
}
