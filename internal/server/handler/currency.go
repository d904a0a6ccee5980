package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
)

// CurrencyService defines the methods that the currency handler requires
// from the service layer.
type CurrencyService interface {
	SetCurrencyStatus(ctx context.Context, caller, currency common.Address, allowed bool) error
}

// CurrencyHandler serves the currency allow-list endpoint.
type CurrencyHandler struct {
	currencies CurrencyService
	logger     *slog.Logger
}

// NewCurrencyHandler creates a CurrencyHandler with the given service and
// logger.
func NewCurrencyHandler(currencies CurrencyService, logger *slog.Logger) *CurrencyHandler {
	return &CurrencyHandler{
		currencies: currencies,
		logger:     logger,
	}
}

// setCurrencyRequest is the body of PUT /api/currencies/{address}.
type setCurrencyRequest struct {
	Caller  string `json:"caller"`
	Allowed bool   `json:"allowed"`
}

// SetCurrencyStatus flips a currency's allow-list entry. Admin only.
// PUT /api/currencies/{address}
func (h *CurrencyHandler) SetCurrencyStatus(w http.ResponseWriter, r *http.Request) {
	currency, err := parseAddress("address", pathParam(r, "address"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var body setCurrencyRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	caller, err := parseAddress("caller", body.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.currencies.SetCurrencyStatus(r.Context(), caller, currency, body.Allowed); err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"currency": currency.Hex(),
		"allowed":  body.Allowed,
	})
}
