package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"net/http"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/veilcraft/settlehouse/internal/domain"
)

// writeJSON marshals v as JSON and writes it to the response with the given
// HTTP status code. If marshaling fails, it falls back to a plain-text 500.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	w.Write(data)
}

// writeError sends a JSON-formatted error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeDomainError maps settlement errors to HTTP status codes. Unknown
// errors are logged and surfaced as a generic 500.
func writeDomainError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrNotAdmin),
		errors.Is(err, domain.ErrUnauthorizedAccount):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, domain.ErrDeadlineExpired),
		errors.Is(err, domain.ErrUnauthorizedAction),
		errors.Is(err, domain.ErrUnauthorizedOrder):
		writeError(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, domain.ErrOrderInvalidated),
		errors.Is(err, domain.ErrAuctionCompleted),
		errors.Is(err, domain.ErrBuyerExists),
		errors.Is(err, domain.ErrLockHeld):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, domain.ErrInvalidOrderSide),
		errors.Is(err, domain.ErrOrderOutsideTimeRange),
		errors.Is(err, domain.ErrCurrencyNotAllowed),
		errors.Is(err, domain.ErrInvalidAskSideFee),
		errors.Is(err, domain.ErrInvalidBidSideFee),
		errors.Is(err, domain.ErrInvalidOrderHash),
		errors.Is(err, domain.ErrParticipantsSharesMismatch),
		errors.Is(err, domain.ErrInvalidSharesCount),
		errors.Is(err, domain.ErrInvalidSharesSum),
		errors.Is(err, domain.ErrIncorrectNativeValue),
		errors.Is(err, domain.ErrUnexpectedNativeValue),
		errors.Is(err, domain.ErrIncorrectTotalAmount),
		errors.Is(err, domain.ErrInvalidStartTime),
		errors.Is(err, domain.ErrInvalidEndTime),
		errors.Is(err, domain.ErrWrongDepositData),
		errors.Is(err, domain.ErrAuctionNotStarted),
		errors.Is(err, domain.ErrAuctionEnded),
		errors.Is(err, domain.ErrAuctionNotEnded),
		errors.Is(err, domain.ErrBuyerNotExists),
		errors.Is(err, domain.ErrRaiseTooSmall),
		errors.Is(err, domain.ErrWrongPayment),
		errors.Is(err, domain.ErrInsufficient):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		logger.ErrorContext(r.Context(), "handler: internal error",
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

// parseListOpts extracts standard pagination parameters from the query string.
// Defaults: limit=50 (max 500), offset=0.
func parseListOpts(r *http.Request) domain.ListOpts {
	q := r.URL.Query()

	limit := 50
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	if limit > 500 {
		limit = 500
	}

	offset := 0
	if v := q.Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = n
		}
	}

	return domain.ListOpts{
		Limit:  limit,
		Offset: offset,
	}
}

// pathParam extracts a named path parameter from the request using Go 1.22+
// built-in routing (http.Request.PathValue).
func pathParam(r *http.Request, name string) string {
	return r.PathValue(name)
}

// parseAddress validates and decodes a 0x-prefixed hex address.
func parseAddress(field, s string) (common.Address, error) {
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("%s: not a valid address: %q", field, s)
	}
	return common.HexToAddress(s), nil
}

// parseHash decodes a 0x-prefixed 32-byte hex hash.
func parseHash(field, s string) (common.Hash, error) {
	b, err := hexutil.Decode(s)
	if err != nil || len(b) != common.HashLength {
		return common.Hash{}, fmt.Errorf("%s: not a valid 32-byte hash: %q", field, s)
	}
	return common.BytesToHash(b), nil
}

// parseAmount decodes a non-negative decimal amount string. Empty means zero.
func parseAmount(field, s string) (*big.Int, error) {
	if s == "" {
		return new(big.Int), nil
	}
	n, ok := new(big.Int).SetString(s, 10)
	if !ok || n.Sign() < 0 {
		return nil, fmt.Errorf("%s: not a valid amount: %q", field, s)
	}
	return n, nil
}

// parseSignature decodes a 0x-prefixed 65-byte hex signature.
func parseSignature(field, s string) ([]byte, error) {
	b, err := hexutil.Decode(s)
	if err != nil || len(b) != 65 {
		return nil, fmt.Errorf("%s: not a valid 65-byte signature: %q", field, s)
	}
	return b, nil
}
