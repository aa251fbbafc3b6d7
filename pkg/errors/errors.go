// Package errors provides common, reusable error values and helpers.
package errors

import (
	"errors"
	"fmt"
)

// Ledger errors
var (
	ErrInvalidAmount       = errors.New("amount must be positive")
	ErrInsufficientBalance = errors.New("insufficient wallet balance")
	ErrAccountNotFound     = errors.New("wallet account not found")
	ErrTransactionNotFound = errors.New("transaction not found")
)

// Code registry errors
var (
	ErrInvalidCode         = errors.New("wallet code is required")
	ErrCodeNotFound        = errors.New("wallet code not found")
	ErrCodeAlreadyUsed     = errors.New("wallet code has already been used")
	ErrCodeExpired         = errors.New("wallet code has expired")
	ErrCodeBlocked         = errors.New("wallet code is blocked")
	ErrRestrictionMismatch = errors.New("wallet code is restricted to another user")
)

// Redemption errors
var (
	ErrRateLimited            = errors.New("too many redemption attempts")
	ErrReconciliationRequired = errors.New("code redeemed but wallet credit failed; manual reconciliation required")
)

// Bridge authentication errors
var (
	ErrUnauthorized      = errors.New("request authentication failed")
	ErrMissingAuthHeader = errors.New("missing authentication headers")
	ErrInvalidTimestamp  = errors.New("invalid timestamp header")
	ErrTimestampSkew     = errors.New("timestamp is outside of the accepted window")
	ErrUnknownAPIKey     = errors.New("unknown api key")
	ErrSignatureMismatch = errors.New("invalid request signature")
	ErrTooManyRequests   = errors.New("too many requests")
)

// Forwarder errors
var (
	ErrDispatchNotFound    = errors.New("dispatch record not found")
	ErrInvalidDestination  = errors.New("destination store is not configured")
	ErrUpstreamUnavailable = errors.New("remote store is unavailable")
)

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// Wrap wraps an error with additional context
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}
