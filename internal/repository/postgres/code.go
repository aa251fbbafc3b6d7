package postgres

import (
	"context"
	"database/sql"
	"time"

	"walletbridge/internal/domain"
	"walletbridge/pkg/errors"

	"github.com/jmoiron/sqlx"
)

// CodeRepository persists redeemable wallet codes. All status transitions are
// single conditional statements; a transition that raced and lost affects
// zero rows, which callers map to the appropriate typed error.
type CodeRepository struct {
	db *sqlx.DB
}

func NewCodeRepository(db *sqlx.DB) *CodeRepository {
	return &CodeRepository{db: db}
}

// Upsert inserts or updates a code. The conflict branch refuses to touch an
// already-redeemed row, so a re-submitted code can never be resurrected.
func (r *CodeRepository) Upsert(ctx context.Context, code *domain.WalletCode) (*domain.WalletCode, error) {
	stored := &domain.WalletCode{}
	err := r.db.QueryRowxContext(ctx, `
		INSERT INTO wallet_codes (
			code, amount, currency, status, issued_at, expires_at, restricted_email, meta
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (code) DO UPDATE SET
			amount = EXCLUDED.amount,
			currency = EXCLUDED.currency,
			status = EXCLUDED.status,
			expires_at = EXCLUDED.expires_at,
			restricted_email = EXCLUDED.restricted_email,
			meta = EXCLUDED.meta
		WHERE wallet_codes.status <> 'redeemed'
		RETURNING *
	`, code.Code, code.Amount, code.Currency, code.Status,
		code.IssuedAt, code.ExpiresAt, code.RestrictedEmail, code.Meta,
	).StructScan(stored)
	if err == sql.ErrNoRows {
		// Conflict row exists but is redeemed; the upsert was refused.
		return nil, errors.ErrCodeAlreadyUsed
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to upsert wallet code")
	}
	return stored, nil
}

func (r *CodeRepository) FindByCode(ctx context.Context, code string) (*domain.WalletCode, error) {
	stored := &domain.WalletCode{}
	err := r.db.GetContext(ctx, stored,
		`SELECT * FROM wallet_codes WHERE code = $1`, code)
	if err == sql.ErrNoRows {
		return nil, errors.ErrCodeNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to find wallet code")
	}
	return stored, nil
}

// MarkRedeemed transitions new -> redeemed bound to the given user. The
// status guard is part of the UPDATE, so of two concurrent redemptions
// exactly one wins; the loser gets ErrCodeAlreadyUsed.
func (r *CodeRepository) MarkRedeemed(ctx context.Context, code string, userID int64) (*domain.WalletCode, error) {
	stored := &domain.WalletCode{}
	err := r.db.QueryRowxContext(ctx, `
		UPDATE wallet_codes
		SET status = 'redeemed', redeemed_by = $2, redeemed_at = now()
		WHERE code = $1 AND status = 'new'
		RETURNING *
	`, code, userID).StructScan(stored)
	if err == sql.ErrNoRows {
		return nil, errors.ErrCodeAlreadyUsed
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to mark code redeemed")
	}
	return stored, nil
}

// ExpireIfDue transitions new -> expired when the code's expiry has passed.
// Returns true when this call performed the transition.
func (r *CodeRepository) ExpireIfDue(ctx context.Context, code string, now time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE wallet_codes
		SET status = 'expired'
		WHERE code = $1 AND status = 'new'
		  AND expires_at IS NOT NULL AND expires_at < $2
	`, code, now)
	if err != nil {
		return false, errors.Wrap(err, "failed to expire wallet code")
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, errors.Wrap(err, "failed to read affected rows")
	}
	return affected > 0, nil
}

// ExpireDue batch-expires every overdue unredeemed code. Used by the sweep.
func (r *CodeRepository) ExpireDue(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE wallet_codes
		SET status = 'expired'
		WHERE status = 'new'
		  AND expires_at IS NOT NULL AND expires_at < $1
	`, now)
	if err != nil {
		return 0, errors.Wrap(err, "failed to expire due codes")
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, "failed to read affected rows")
	}
	return affected, nil
}

// List returns codes newest first with an optional status filter.
func (r *CodeRepository) List(ctx context.Context, status domain.CodeStatus, limit, offset int) ([]*domain.WalletCode, int, error) {
	var (
		rows  []*domain.WalletCode
		total int
		err   error
	)

	if status != "" {
		err = r.db.SelectContext(ctx, &rows, `
			SELECT * FROM wallet_codes
			WHERE status = $1
			ORDER BY id DESC
			LIMIT $2 OFFSET $3
		`, status, limit, offset)
		if err == nil {
			err = r.db.GetContext(ctx, &total,
				`SELECT COUNT(*) FROM wallet_codes WHERE status = $1`, status)
		}
	} else {
		err = r.db.SelectContext(ctx, &rows, `
			SELECT * FROM wallet_codes
			ORDER BY id DESC
			LIMIT $1 OFFSET $2
		`, limit, offset)
		if err == nil {
			err = r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM wallet_codes`)
		}
	}

	if err != nil {
		return nil, 0, errors.Wrap(err, "failed to list wallet codes")
	}
	return rows, total, nil
}
