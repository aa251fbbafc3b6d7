package handler

import (
	"encoding/json"
	"io"
	"net/http"

	"walletbridge/internal/redemption"
	"walletbridge/pkg/logger"
	"walletbridge/pkg/validator"
)

// RedeemHandler manages the inbound redemption bridge endpoint.
type RedeemHandler struct {
	service   *redemption.Service
	validator *validator.Validator
	logger    logger.Logger
}

// NewRedeemHandler creates a RedeemHandler.
func NewRedeemHandler(service *redemption.Service, val *validator.Validator, log logger.Logger) *RedeemHandler {
	return &RedeemHandler{
		service:   service,
		validator: val,
		logger:    log,
	}
}

// RedeemRequest is the bridge redemption payload.
type RedeemRequest struct {
	Code   string `json:"code" validate:"required"`
	UserID int64  `json:"user_id" validate:"required,gt=0"`
	Email  string `json:"email" validate:"omitempty,email"`
}

// Redeem burns a code and credits the caller's wallet.
func (h *RedeemHandler) Redeem(w http.ResponseWriter, r *http.Request) {
	var req RedeemRequest

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(&req); err != nil {
		if err == io.EOF {
			respondError(w, http.StatusBadRequest, "invalid_request", "Request body is required")
			return
		}
		respondError(w, http.StatusBadRequest, "invalid_request", "Invalid request body")
		return
	}

	if err := h.validator.Validate(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	result, err := h.service.Redeem(r.Context(), req.Code, req.UserID, req.Email)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"code":    result.Code,
		"amount":  result.Amount,
		"balance": result.Balance,
	})
}
