package postgres

import (
	"context"
	"database/sql"

	"walletbridge/internal/domain"
	"walletbridge/pkg/errors"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
)

// LedgerRepository persists accounts and their append-only transaction log.
// Balance mutations are single conditional statements so concurrent requests
// serialize at the database without application-level locking.
type LedgerRepository struct {
	db *sqlx.DB
}

func NewLedgerRepository(db *sqlx.DB) *LedgerRepository {
	return &LedgerRepository{db: db}
}

// Credit increments the account balance and records the ledger row in one
// database transaction. The account row is created on first credit.
func (r *LedgerRepository) Credit(ctx context.Context, t *domain.Transaction) (decimal.Decimal, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return decimal.Zero, errors.Wrap(err, "failed to begin credit transaction")
	}
	defer tx.Rollback()

	var balance decimal.Decimal
	err = tx.QueryRowxContext(ctx, `
		INSERT INTO accounts (user_id, balance, currency, created_at, updated_at)
		VALUES ($1, $2, $3, now(), now())
		ON CONFLICT (user_id) DO UPDATE
		SET balance = accounts.balance + EXCLUDED.balance, updated_at = now()
		RETURNING balance
	`, t.UserID, t.Amount, t.Currency).Scan(&balance)
	if err != nil {
		return decimal.Zero, errors.Wrap(err, "failed to credit account")
	}

	t.BalanceAfter = balance
	if err := insertTransaction(ctx, tx, t); err != nil {
		return decimal.Zero, err
	}

	if err := tx.Commit(); err != nil {
		return decimal.Zero, errors.Wrap(err, "failed to commit credit")
	}

	return balance, nil
}

// Debit decrements the balance only when it covers the amount. The guard
// lives in the UPDATE itself; zero affected rows means insufficient balance
// (or no account, which is the same thing: an unknown user has balance 0).
func (r *LedgerRepository) Debit(ctx context.Context, t *domain.Transaction) (decimal.Decimal, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return decimal.Zero, errors.Wrap(err, "failed to begin debit transaction")
	}
	defer tx.Rollback()

	var balance decimal.Decimal
	err = tx.QueryRowxContext(ctx, `
		UPDATE accounts
		SET balance = balance - $1, updated_at = now()
		WHERE user_id = $2 AND balance >= $1
		RETURNING balance
	`, t.Amount, t.UserID).Scan(&balance)
	if err == sql.ErrNoRows {
		return decimal.Zero, errors.ErrInsufficientBalance
	}
	if err != nil {
		return decimal.Zero, errors.Wrap(err, "failed to debit account")
	}

	t.BalanceAfter = balance
	if err := insertTransaction(ctx, tx, t); err != nil {
		return decimal.Zero, err
	}

	if err := tx.Commit(); err != nil {
		return decimal.Zero, errors.Wrap(err, "failed to commit debit")
	}

	return balance, nil
}

func insertTransaction(ctx context.Context, tx *sqlx.Tx, t *domain.Transaction) error {
	_, err := tx.NamedExecContext(ctx, `
		INSERT INTO wallet_transactions (
			id, user_id, type, amount, currency, balance_after,
			source, source_ref, note, created_at
		) VALUES (
			:id, :user_id, :type, :amount, :currency, :balance_after,
			:source, :source_ref, :note, :created_at
		)
	`, t)
	return errors.Wrap(err, "failed to record transaction")
}

// Balance returns the account balance, defaulting to zero for unknown users.
func (r *LedgerRepository) Balance(ctx context.Context, userID int64) (decimal.Decimal, error) {
	var balance decimal.Decimal
	err := r.db.GetContext(ctx, &balance,
		`SELECT balance FROM accounts WHERE user_id = $1`, userID)
	if err == sql.ErrNoRows {
		return decimal.Zero, nil
	}
	if err != nil {
		return decimal.Zero, errors.Wrap(err, "failed to read balance")
	}
	return balance, nil
}

// FindAccount returns the account row, or ErrAccountNotFound.
func (r *LedgerRepository) FindAccount(ctx context.Context, userID int64) (*domain.Account, error) {
	account := &domain.Account{}
	err := r.db.GetContext(ctx, account,
		`SELECT * FROM accounts WHERE user_id = $1`, userID)
	if err == sql.ErrNoRows {
		return nil, errors.ErrAccountNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to find account")
	}
	return account, nil
}

// Transactions lists ledger rows newest first, optionally filtered by user.
func (r *LedgerRepository) Transactions(ctx context.Context, userID *int64, limit, offset int) ([]*domain.Transaction, int, error) {
	var (
		rows  []*domain.Transaction
		total int
		err   error
	)

	if userID != nil {
		err = r.db.SelectContext(ctx, &rows, `
			SELECT * FROM wallet_transactions
			WHERE user_id = $1
			ORDER BY created_at DESC, id DESC
			LIMIT $2 OFFSET $3
		`, *userID, limit, offset)
		if err == nil {
			err = r.db.GetContext(ctx, &total,
				`SELECT COUNT(*) FROM wallet_transactions WHERE user_id = $1`, *userID)
		}
	} else {
		err = r.db.SelectContext(ctx, &rows, `
			SELECT * FROM wallet_transactions
			ORDER BY created_at DESC, id DESC
			LIMIT $1 OFFSET $2
		`, limit, offset)
		if err == nil {
			err = r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM wallet_transactions`)
		}
	}

	if err != nil {
		return nil, 0, errors.Wrap(err, "failed to list transactions")
	}
	return rows, total, nil
}
