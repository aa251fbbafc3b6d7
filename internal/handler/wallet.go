package handler

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"walletbridge/internal/ledger"
	"walletbridge/pkg/logger"
)

// WalletHandler exposes operator read access to the wallet ledger.
type WalletHandler struct {
	service *ledger.Service
	logger  logger.Logger
}

// NewWalletHandler creates a WalletHandler.
func NewWalletHandler(service *ledger.Service, log logger.Logger) *WalletHandler {
	return &WalletHandler{
		service: service,
		logger:  log,
	}
}

// GetBalance returns a user's current wallet balance.
func (h *WalletHandler) GetBalance(w http.ResponseWriter, r *http.Request) {
	userID, err := pathUserID(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "Invalid user ID")
		return
	}

	balance, err := h.service.Balance(r.Context(), userID)
	if err != nil {
		h.logger.Error("failed to read wallet balance", map[string]interface{}{
			"user_id": userID,
			"error":   err.Error(),
		})
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"user_id": userID,
		"balance": balance,
	})
}

// GetTransactions lists a user's ledger entries, newest first.
func (h *WalletHandler) GetTransactions(w http.ResponseWriter, r *http.Request) {
	userID, err := pathUserID(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "Invalid user ID")
		return
	}

	limit, offset := paging(r)
	transactions, total, err := h.service.Transactions(r.Context(), &userID, limit, offset)
	if err != nil {
		h.logger.Error("failed to list wallet transactions", map[string]interface{}{
			"user_id": userID,
			"error":   err.Error(),
		})
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"transactions": transactions,
		"total":        total,
		"limit":        limit,
		"offset":       offset,
	})
}

func pathUserID(r *http.Request) (int64, error) {
	return strconv.ParseInt(mux.Vars(r)["user_id"], 10, 64)
}

func paging(r *http.Request) (limit, offset int) {
	limit, _ = strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ = strconv.Atoi(r.URL.Query().Get("offset"))
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
