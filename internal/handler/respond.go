// Package handler provides HTTP handlers for the wallet bridge services.
package handler

import (
	"encoding/json"
	"net/http"

	"walletbridge/pkg/errors"
)

// ErrorBody is the error half of the response envelope.
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"status"`
}

// Envelope is the uniform bridge response shape.
type Envelope struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *ErrorBody  `json:"error,omitempty"`
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(Envelope{Success: true, Data: data})
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(Envelope{
		Success: false,
		Error:   &ErrorBody{Code: code, Message: message, Status: status},
	})
}

type errorMapping struct {
	sentinel error
	status   int
	code     string
}

var errorMappings = []errorMapping{
	{errors.ErrInvalidAmount, http.StatusBadRequest, "invalid_amount"},
	{errors.ErrInvalidCode, http.StatusBadRequest, "invalid_code"},
	{errors.ErrInvalidDestination, http.StatusBadRequest, "invalid_destination"},
	{errors.ErrUnauthorized, http.StatusUnauthorized, "unauthorized"},
	{errors.ErrMissingAuthHeader, http.StatusUnauthorized, "unauthorized"},
	{errors.ErrInvalidTimestamp, http.StatusUnauthorized, "unauthorized"},
	{errors.ErrTimestampSkew, http.StatusUnauthorized, "unauthorized"},
	{errors.ErrUnknownAPIKey, http.StatusUnauthorized, "unauthorized"},
	{errors.ErrSignatureMismatch, http.StatusUnauthorized, "unauthorized"},
	{errors.ErrRestrictionMismatch, http.StatusForbidden, "restriction_mismatch"},
	{errors.ErrCodeBlocked, http.StatusForbidden, "code_blocked"},
	{errors.ErrCodeNotFound, http.StatusNotFound, "code_not_found"},
	{errors.ErrAccountNotFound, http.StatusNotFound, "account_not_found"},
	{errors.ErrTransactionNotFound, http.StatusNotFound, "transaction_not_found"},
	{errors.ErrDispatchNotFound, http.StatusNotFound, "dispatch_not_found"},
	{errors.ErrCodeAlreadyUsed, http.StatusConflict, "code_already_used"},
	{errors.ErrCodeExpired, http.StatusGone, "code_expired"},
	{errors.ErrInsufficientBalance, http.StatusUnprocessableEntity, "insufficient_balance"},
	{errors.ErrRateLimited, http.StatusTooManyRequests, "rate_limited"},
	{errors.ErrTooManyRequests, http.StatusTooManyRequests, "rate_limited"},
	{errors.ErrUpstreamUnavailable, http.StatusBadGateway, "upstream_unavailable"},
	{errors.ErrReconciliationRequired, http.StatusInternalServerError, "reconciliation_required"},
}

// respondServiceError translates a service error into the envelope using the
// sentinel taxonomy. Unknown errors become an opaque 500.
func respondServiceError(w http.ResponseWriter, err error) {
	for _, m := range errorMappings {
		if errors.Is(err, m.sentinel) {
			respondError(w, m.status, m.code, m.sentinel.Error())
			return
		}
	}
	respondError(w, http.StatusInternalServerError, "internal_error", "internal server error")
}
