// Package domain holds the core wallet and bridge types shared across
// services and repositories.
package domain

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Account is one user's wallet balance. Accounts are created lazily on first
// credit and never deleted; a zero balance persists.
type Account struct {
	UserID    int64           `json:"user_id" db:"user_id"`
	Balance   decimal.Decimal `json:"balance" db:"balance"`
	Currency  string          `json:"currency" db:"currency"`
	CreatedAt time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt time.Time       `json:"updated_at" db:"updated_at"`
}

type TransactionType string

const (
	TransactionTypeCredit TransactionType = "credit"
	TransactionTypeDebit  TransactionType = "debit"
)

// TransactionSource identifies what produced a ledger transaction.
type TransactionSource string

const (
	SourceCode   TransactionSource = "code"
	SourceOrder  TransactionSource = "order"
	SourceTopup  TransactionSource = "topup"
	SourceManual TransactionSource = "manual"
)

// Transaction is one append-only ledger row. BalanceAfter snapshots the
// account balance immediately after the mutation committed.
type Transaction struct {
	ID           uuid.UUID         `json:"id" db:"id"`
	UserID       int64             `json:"user_id" db:"user_id"`
	Type         TransactionType   `json:"type" db:"type"`
	Amount       decimal.Decimal   `json:"amount" db:"amount"`
	Currency     string            `json:"currency" db:"currency"`
	BalanceAfter decimal.Decimal   `json:"balance_after" db:"balance_after"`
	Source       TransactionSource `json:"source" db:"source"`
	SourceRef    string            `json:"source_ref" db:"source_ref"`
	Note         string            `json:"note" db:"note"`
	CreatedAt    time.Time         `json:"created_at" db:"created_at"`
}

// Signed returns the amount with debit rows negated, so that the sum of
// signed amounts for a user equals the current balance.
func (t *Transaction) Signed() decimal.Decimal {
	if t.Type == TransactionTypeDebit {
		return t.Amount.Neg()
	}
	return t.Amount
}

type CodeStatus string

const (
	CodeStatusNew      CodeStatus = "new"
	CodeStatusRedeemed CodeStatus = "redeemed"
	CodeStatusExpired  CodeStatus = "expired"
	CodeStatusBlocked  CodeStatus = "blocked"
)

// WalletCode is a redeemable token entitling the redeemer to a fixed wallet
// credit. Status is monotonic: new -> redeemed exactly once, or
// new -> expired when past ExpiresAt while still unredeemed.
type WalletCode struct {
	ID              int64           `json:"id" db:"id"`
	Code            string          `json:"code" db:"code"`
	Amount          decimal.Decimal `json:"amount" db:"amount"`
	Currency        string          `json:"currency" db:"currency"`
	Status          CodeStatus      `json:"status" db:"status"`
	IssuedAt        time.Time       `json:"issued_at" db:"issued_at"`
	ExpiresAt       *time.Time      `json:"expires_at,omitempty" db:"expires_at"`
	RestrictedEmail *string         `json:"restricted_email,omitempty" db:"restricted_email"`
	RedeemedBy      *int64          `json:"redeemed_by,omitempty" db:"redeemed_by"`
	RedeemedAt      *time.Time      `json:"redeemed_at,omitempty" db:"redeemed_at"`
	Meta            Meta            `json:"meta,omitempty" db:"meta"`
}

// Expired reports whether the code's expiry has passed at the given instant.
func (c *WalletCode) Expired(now time.Time) bool {
	return c.ExpiresAt != nil && c.ExpiresAt.Before(now)
}

type DispatchStatus string

const (
	DispatchStatusPending DispatchStatus = "pending"
	DispatchStatusSuccess DispatchStatus = "success"
	DispatchStatusFailed  DispatchStatus = "failed"
)

type PayloadType string

const (
	PayloadTypeWallet PayloadType = "wallet"
	PayloadTypeCoupon PayloadType = "coupon"
)

// Dispatch is one recorded attempt chain to deliver a bridge event to a
// remote store. Failed dispatches stay retryable until they succeed or an
// operator cancels them.
type Dispatch struct {
	ID               int64           `json:"-" db:"id"`
	UUID             uuid.UUID       `json:"uuid" db:"dispatch_uuid"`
	DestinationURL   string          `json:"destination_url" db:"destination_url"`
	PayloadType      PayloadType     `json:"payload_type" db:"payload_type"`
	Code             string          `json:"code" db:"code"`
	Amount           decimal.Decimal `json:"amount" db:"amount"`
	Currency         string          `json:"currency" db:"currency"`
	UserRef          string          `json:"user_ref" db:"user_ref"`
	Payload          Meta            `json:"payload" db:"payload"`
	Status           DispatchStatus  `json:"status" db:"status"`
	Attempts         int             `json:"attempts" db:"attempts"`
	LastResponseCode *int            `json:"last_response_code,omitempty" db:"last_response_code"`
	LastError        *string         `json:"last_error,omitempty" db:"last_error"`
	IdempotencyKey   string          `json:"idempotency_key,omitempty" db:"idempotency_key"`
	CreatedAt        time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at" db:"updated_at"`
}

// Meta holds arbitrary key-value metadata. The core passes it through
// unmodified; it is stored as JSONB.
type Meta map[string]interface{}

func (m Meta) Value() (driver.Value, error) {
	if m == nil {
		return nil, nil
	}
	return json.Marshal(m)
}

func (m *Meta) Scan(value interface{}) error {
	if value == nil {
		*m = nil
		return nil
	}
	b, ok := value.([]byte)
	if !ok {
		return errors.New("type assertion to []byte failed")
	}
	return json.Unmarshal(b, m)
}
