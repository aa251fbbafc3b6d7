package handler

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"

	"walletbridge/internal/domain"
	"walletbridge/internal/forwarder"
	"walletbridge/internal/middleware"
	"walletbridge/pkg/logger"
	"walletbridge/pkg/validator"
)

// DispatchHandler exposes the outbound dispatch log and forwarding trigger
// to operators.
type DispatchHandler struct {
	service   *forwarder.Service
	validator *validator.Validator
	logger    logger.Logger
}

// NewDispatchHandler creates a DispatchHandler.
func NewDispatchHandler(service *forwarder.Service, val *validator.Validator, log logger.Logger) *DispatchHandler {
	return &DispatchHandler{
		service:   service,
		validator: val,
		logger:    log,
	}
}

// List returns dispatches, optionally filtered by status.
func (h *DispatchHandler) List(w http.ResponseWriter, r *http.Request) {
	status := domain.DispatchStatus(r.URL.Query().Get("status"))
	switch status {
	case "", domain.DispatchStatusPending, domain.DispatchStatusSuccess, domain.DispatchStatusFailed:
	default:
		respondError(w, http.StatusBadRequest, "invalid_request", "Unknown dispatch status")
		return
	}

	limit, offset := paging(r)
	dispatches, total, err := h.service.List(r.Context(), status, limit, offset)
	if err != nil {
		h.logger.Error("failed to list dispatches", map[string]interface{}{
			"status": string(status),
			"error":  err.Error(),
		})
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"dispatches": dispatches,
		"total":      total,
		"limit":      limit,
		"offset":     offset,
	})
}

// Retry re-runs a failed dispatch from its stored payload.
func (h *DispatchHandler) Retry(w http.ResponseWriter, r *http.Request) {
	dispatchUUID, err := uuid.Parse(mux.Vars(r)["uuid"])
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "Invalid dispatch UUID")
		return
	}

	dispatch, err := h.service.Retry(r.Context(), dispatchUUID)
	if err != nil {
		operator, _ := middleware.OperatorFromContext(r.Context())
		h.logger.Warn("dispatch retry failed", map[string]interface{}{
			"dispatch_uuid": dispatchUUID.String(),
			"operator":      operator,
			"error":         err.Error(),
		})
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, dispatch)
}

// ForwardBody is the operator payload for triggering an outbound dispatch.
type ForwardBody struct {
	Destination    string          `json:"destination" validate:"required"`
	PayloadType    string          `json:"payload_type" validate:"required,oneof=wallet coupon"`
	Code           string          `json:"code" validate:"required"`
	Amount         decimal.Decimal `json:"amount" validate:"required"`
	Currency       string          `json:"currency"`
	UserRef        string          `json:"user_ref"`
	Payload        domain.Meta     `json:"payload"`
	IdempotencyKey string          `json:"idempotency_key"`
}

// Forward triggers an outbound dispatch to a configured partner store.
func (h *DispatchHandler) Forward(w http.ResponseWriter, r *http.Request) {
	var body ForwardBody

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(&body); err != nil {
		if err == io.EOF {
			respondError(w, http.StatusBadRequest, "invalid_request", "Request body is required")
			return
		}
		respondError(w, http.StatusBadRequest, "invalid_request", "Invalid request body")
		return
	}

	if err := h.validator.Validate(&body); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	dispatch, err := h.service.Forward(r.Context(), forwarder.ForwardRequest{
		Destination:    body.Destination,
		PayloadType:    domain.PayloadType(body.PayloadType),
		Code:           body.Code,
		Amount:         body.Amount,
		Currency:       body.Currency,
		UserRef:        body.UserRef,
		Payload:        body.Payload,
		IdempotencyKey: body.IdempotencyKey,
	})
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, dispatch)
}
