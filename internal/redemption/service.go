// Package redemption orchestrates converting a valid, unused wallet code
// into a wallet credit for a specific user.
package redemption

import (
	"context"
	"strings"

	"walletbridge/internal/domain"
	"walletbridge/pkg/errors"
	"walletbridge/pkg/logger"

	"github.com/shopspring/decimal"
)

type Service struct {
	registry Registry
	ledger   Ledger
	limiter  RateLimiter
	logger   logger.Logger
}

func NewService(registry Registry, ledger Ledger, limiter RateLimiter, log logger.Logger) *Service {
	return &Service{
		registry: registry,
		ledger:   ledger,
		limiter:  limiter,
		logger:   log,
	}
}

// Result is the successful outcome of a redemption.
type Result struct {
	Code    string          `json:"code"`
	Amount  decimal.Decimal `json:"amount"`
	Balance decimal.Decimal `json:"balance"`
}

// Redeem runs one redemption attempt. On success exactly one code transition
// and one ledger credit happen; every failure path leaves the registry and
// ledger unwritten (lazy expiry of an overdue code being the one legitimate
// transition a failed attempt may cause).
func (s *Service) Redeem(ctx context.Context, code string, userID int64, email string) (*Result, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, errors.ErrInvalidCode
	}

	// Rate limit first; an exhausted window never touches the registry.
	allowed, err := s.limiter.Allow(ctx, userID)
	if err != nil {
		return nil, errors.Wrap(err, "rate limit check failed")
	}
	if !allowed {
		return nil, errors.ErrRateLimited
	}

	row, err := s.registry.FindByCode(ctx, code)
	if err != nil {
		return nil, err
	}

	if row.RestrictedEmail != nil && !strings.EqualFold(*row.RestrictedEmail, strings.TrimSpace(email)) {
		return nil, errors.ErrRestrictionMismatch
	}

	switch row.Status {
	case domain.CodeStatusNew:
	case domain.CodeStatusExpired:
		return nil, errors.ErrCodeExpired
	case domain.CodeStatusBlocked:
		return nil, errors.ErrCodeBlocked
	default:
		return nil, errors.ErrCodeAlreadyUsed
	}

	// The conditional transition is the sole arbiter of this redemption;
	// losing the race here means another request already owns the code.
	redeemed, err := s.registry.MarkRedeemed(ctx, code, userID)
	if err != nil {
		return nil, err
	}

	tx, err := s.ledger.Credit(ctx, userID, redeemed.Amount, redeemed.Currency,
		domain.SourceCode, redeemed.Code, "wallet code redemption")
	if err != nil {
		// The code is redeemed but the wallet was not credited. Never roll
		// the transition back and never swallow this: record everything an
		// operator needs to reconcile by hand.
		s.logger.Error("Reconciliation required: code redeemed without credit", map[string]interface{}{
			"code":    redeemed.Code,
			"user_id": userID,
			"amount":  redeemed.Amount.String(),
			"cause":   err.Error(),
		})
		return nil, errors.Wrap(errors.ErrReconciliationRequired, err.Error())
	}

	s.logger.Info("Wallet code redeemed", map[string]interface{}{
		"code":    redeemed.Code,
		"user_id": userID,
		"amount":  redeemed.Amount.String(),
		"balance": tx.BalanceAfter.String(),
	})

	return &Result{
		Code:    redeemed.Code,
		Amount:  redeemed.Amount,
		Balance: tx.BalanceAfter,
	}, nil
}

// Registry is the slice of the code registry the engine needs.
type Registry interface {
	FindByCode(ctx context.Context, code string) (*domain.WalletCode, error)
	MarkRedeemed(ctx context.Context, code string, userID int64) (*domain.WalletCode, error)
}

// Ledger is the slice of the wallet ledger the engine needs.
type Ledger interface {
	Credit(ctx context.Context, userID int64, amount decimal.Decimal, currency string, source domain.TransactionSource, sourceRef, note string) (*domain.Transaction, error)
}

// RateLimiter bounds redemption attempts per user per window.
type RateLimiter interface {
	Allow(ctx context.Context, userID int64) (bool, error)
}
