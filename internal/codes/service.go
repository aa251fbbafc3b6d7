// Package codes implements the registry of redeemable wallet codes.
package codes

import (
	"context"
	"strings"
	"time"

	"walletbridge/internal/domain"
	"walletbridge/pkg/errors"
	"walletbridge/pkg/logger"

	"github.com/shopspring/decimal"
)

type Service struct {
	repo              Repository
	defaultExpiryDays int
	defaultCurrency   string
	logger            logger.Logger
	now               func() time.Time
}

func NewService(repo Repository, defaultExpiryDays int, defaultCurrency string, log logger.Logger) *Service {
	return &Service{
		repo:              repo,
		defaultExpiryDays: defaultExpiryDays,
		defaultCurrency:   defaultCurrency,
		logger:            log,
		now:               func() time.Time { return time.Now().UTC() },
	}
}

type UpsertRequest struct {
	Code            string          `json:"code" validate:"required"`
	Amount          decimal.Decimal `json:"amount" validate:"required"`
	Currency        string          `json:"currency"`
	Status          string          `json:"status"`
	ExpiresAt       *time.Time      `json:"expires_at"`
	RestrictedEmail *string         `json:"restricted_email"`
	Meta            domain.Meta     `json:"meta"`
}

// Upsert inserts or updates a code. Re-submitting an existing code updates
// its mutable fields, but a redeemed code is never resurrected: the registry
// returns ErrCodeAlreadyUsed instead.
func (s *Service) Upsert(ctx context.Context, req *UpsertRequest) (*domain.WalletCode, error) {
	code := strings.TrimSpace(req.Code)
	if code == "" {
		return nil, errors.ErrInvalidCode
	}
	if !req.Amount.IsPositive() {
		return nil, errors.ErrInvalidAmount
	}

	status := domain.CodeStatus(strings.ToLower(strings.TrimSpace(req.Status)))
	switch status {
	case domain.CodeStatusNew, domain.CodeStatusExpired, domain.CodeStatusBlocked:
	case "":
		status = domain.CodeStatusNew
	default:
		// Redeemed (or unknown) cannot be set through the bridge.
		status = domain.CodeStatusNew
	}

	currency := strings.TrimSpace(req.Currency)
	if currency == "" {
		currency = s.defaultCurrency
	}

	expiresAt := req.ExpiresAt
	if expiresAt == nil && s.defaultExpiryDays > 0 {
		due := s.now().AddDate(0, 0, s.defaultExpiryDays)
		expiresAt = &due
	}

	var restricted *string
	if req.RestrictedEmail != nil {
		email := strings.ToLower(strings.TrimSpace(*req.RestrictedEmail))
		if email != "" {
			restricted = &email
		}
	}

	stored, err := s.repo.Upsert(ctx, &domain.WalletCode{
		Code:            code,
		Amount:          req.Amount,
		Currency:        currency,
		Status:          status,
		IssuedAt:        s.now(),
		ExpiresAt:       expiresAt,
		RestrictedEmail: restricted,
		Meta:            req.Meta,
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Wallet code stored", map[string]interface{}{
		"code":   stored.Code,
		"amount": stored.Amount.String(),
		"status": stored.Status,
	})

	return stored, nil
}

// FindByCode looks a code up, lazily expiring it first so an overdue code
// can never pass validation on status alone.
func (s *Service) FindByCode(ctx context.Context, code string) (*domain.WalletCode, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, errors.ErrInvalidCode
	}

	if _, err := s.repo.ExpireIfDue(ctx, code, s.now()); err != nil {
		return nil, err
	}

	return s.repo.FindByCode(ctx, code)
}

// MarkRedeemed atomically transitions the code new -> redeemed for userID.
func (s *Service) MarkRedeemed(ctx context.Context, code string, userID int64) (*domain.WalletCode, error) {
	return s.repo.MarkRedeemed(ctx, code, userID)
}

// ExpireDue batch-expires overdue codes; used by the background sweep.
func (s *Service) ExpireDue(ctx context.Context) (int64, error) {
	expired, err := s.repo.ExpireDue(ctx, s.now())
	if err != nil {
		return 0, err
	}
	if expired > 0 {
		s.logger.Info("Expired overdue wallet codes", map[string]interface{}{
			"count": expired,
		})
	}
	return expired, nil
}

// List returns codes for the operator surface.
func (s *Service) List(ctx context.Context, status domain.CodeStatus, limit, offset int) ([]*domain.WalletCode, int, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return s.repo.List(ctx, status, limit, offset)
}

type Repository interface {
	Upsert(ctx context.Context, code *domain.WalletCode) (*domain.WalletCode, error)
	FindByCode(ctx context.Context, code string) (*domain.WalletCode, error)
	MarkRedeemed(ctx context.Context, code string, userID int64) (*domain.WalletCode, error)
	ExpireIfDue(ctx context.Context, code string, now time.Time) (bool, error)
	ExpireDue(ctx context.Context, now time.Time) (int64, error)
	List(ctx context.Context, status domain.CodeStatus, limit, offset int) ([]*domain.WalletCode, int, error)
}
