package handler

import (
	"encoding/json"
	"io"
	"net/http"

	"walletbridge/internal/codes"
	"walletbridge/internal/middleware"
	"walletbridge/pkg/logger"
	"walletbridge/pkg/validator"
)

// CodesHandler manages the inbound wallet code bridge endpoint.
type CodesHandler struct {
	service   *codes.Service
	validator *validator.Validator
	logger    logger.Logger
}

// NewCodesHandler creates a CodesHandler.
func NewCodesHandler(service *codes.Service, val *validator.Validator, log logger.Logger) *CodesHandler {
	return &CodesHandler{
		service:   service,
		validator: val,
		logger:    log,
	}
}

// Upsert registers or updates a wallet code pushed by a partner store.
func (h *CodesHandler) Upsert(w http.ResponseWriter, r *http.Request) {
	var req codes.UpsertRequest

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

	stored, err := h.service.Upsert(r.Context(), &req)
	if err != nil {
		fields := map[string]interface{}{
			"code":  req.Code,
			"error": err.Error(),
		}
		if key, ok := middleware.APIKeyFromContext(r.Context()); ok {
			fields["api_key"] = key.Key
		}
		h.logger.Warn("wallet code upsert rejected", fields)
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, stored)
}
