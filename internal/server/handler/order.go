package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"math/big"
	"net/http"

	"github.com/ethereum/go-ethereum/common"

	"github.com/veilcraft/settlehouse/internal/domain"
	"github.com/veilcraft/settlehouse/internal/market"
)

// OrderService defines the methods that the order handler requires from the
// service layer.
type OrderService interface {
	ExecuteAsk(ctx context.Context, req market.ExecuteRequest) (market.Receipt, error)
	ExecuteBid(ctx context.Context, req market.ExecuteRequest) (market.Receipt, error)
	InvalidateOrder(ctx context.Context, caller, maker common.Address, orderHash common.Hash) error
	IsInvalidated(ctx context.Context, maker common.Address, orderHash common.Hash) (bool, error)
}

// OrderHandler serves order execution HTTP endpoints.
type OrderHandler struct {
	orders OrderService
	logger *slog.Logger
}

// NewOrderHandler creates an OrderHandler with the given service and logger.
func NewOrderHandler(orders OrderService, logger *slog.Logger) *OrderHandler {
	return &OrderHandler{
		orders: orders,
		logger: logger,
	}
}

// orderPayload is the wire form of a signed order. Amounts are decimal
// strings so uint256 values survive JSON.
type orderPayload struct {
	Side       uint8  `json:"side"`
	Collection string `json:"collection"`
	Currency   string `json:"currency"`
	Maker      string `json:"maker"`
	TokenID    string `json:"tokenId"`
	Price      string `json:"price"`
	MakerFee   string `json:"makerFee"`
	StartTime  uint64 `json:"startTime"`
	EndTime    uint64 `json:"endTime"`
}

// permitPayload is the wire form of an execution permit.
type permitPayload struct {
	OrderHash    string   `json:"orderHash"`
	Taker        string   `json:"taker"`
	TakerFee     string   `json:"takerFee"`
	Participants []string `json:"participants"`
	Rewards      []string `json:"rewards"`
	Deadline     uint64   `json:"deadline"`
}

// executeOrderRequest is the body of POST /api/orders/{ask,bid}.
type executeOrderRequest struct {
	Order           orderPayload  `json:"order"`
	Permit          permitPayload `json:"permit"`
	OrderSignature  string        `json:"orderSignature"`
	PermitSignature string        `json:"permitSignature"`
	Caller          string        `json:"caller"`
	Value           string        `json:"value"`
}

// receiptResponse is the JSON form of a market receipt.
type receiptResponse struct {
	OrderHash  string `json:"orderHash"`
	Maker      string `json:"maker"`
	Taker      string `json:"taker"`
	Collection string `json:"collection"`
	Currency   string `json:"currency"`
	TokenID    string `json:"tokenId"`
	Price      string `json:"price"`
}

// ExecuteAsk settles an ask order.
// POST /api/orders/ask
func (h *OrderHandler) ExecuteAsk(w http.ResponseWriter, r *http.Request) {
	h.execute(w, r, h.orders.ExecuteAsk)
}

// ExecuteBid settles a bid order.
// POST /api/orders/bid
func (h *OrderHandler) ExecuteBid(w http.ResponseWriter, r *http.Request) {
	h.execute(w, r, h.orders.ExecuteBid)
}

func (h *OrderHandler) execute(
	w http.ResponseWriter,
	r *http.Request,
	fn func(context.Context, market.ExecuteRequest) (market.Receipt, error),
) {
	var body executeOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	req, err := body.toExecuteRequest()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	receipt, err := fn(r.Context(), req)
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, receiptResponse{
		OrderHash:  receipt.OrderHash.Hex(),
		Maker:      receipt.Maker.Hex(),
		Taker:      receipt.Taker.Hex(),
		Collection: receipt.Collection.Hex(),
		Currency:   receipt.Currency.Hex(),
		TokenID:    receipt.TokenID.String(),
		Price:      receipt.Price.String(),
	})
}

// invalidateOrderRequest is the body of POST /api/orders/invalidate.
type invalidateOrderRequest struct {
	Caller    string `json:"caller"`
	Maker     string `json:"maker"`
	OrderHash string `json:"orderHash"`
}

// InvalidateOrder permanently consumes an order hash for its maker.
// POST /api/orders/invalidate
func (h *OrderHandler) InvalidateOrder(w http.ResponseWriter, r *http.Request) {
	var body invalidateOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	caller, err := parseAddress("caller", body.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	maker, err := parseAddress("maker", body.Maker)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	orderHash, err := parseHash("orderHash", body.OrderHash)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.orders.InvalidateOrder(r.Context(), caller, maker, orderHash); err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"maker":       maker.Hex(),
		"orderHash":   orderHash.Hex(),
		"invalidated": true,
	})
}

// OrderStatus reports whether a maker's order hash has been consumed.
// GET /api/orders/{maker}/{hash}
func (h *OrderHandler) OrderStatus(w http.ResponseWriter, r *http.Request) {
	maker, err := parseAddress("maker", pathParam(r, "maker"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	orderHash, err := parseHash("hash", pathParam(r, "hash"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	invalidated, err := h.orders.IsInvalidated(r.Context(), maker, orderHash)
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"maker":       maker.Hex(),
		"orderHash":   orderHash.Hex(),
		"invalidated": invalidated,
	})
}

func (b executeOrderRequest) toExecuteRequest() (market.ExecuteRequest, error) {
	var req market.ExecuteRequest
	var err error

	o := b.Order
	order := domain.Order{
		Side:      domain.OrderSide(o.Side),
		StartTime: o.StartTime,
		EndTime:   o.EndTime,
	}
	if order.Collection, err = parseAddress("order.collection", o.Collection); err != nil {
		return req, err
	}
	if order.Currency, err = parseAddress("order.currency", o.Currency); err != nil {
		return req, err
	}
	if order.Maker, err = parseAddress("order.maker", o.Maker); err != nil {
		return req, err
	}
	if order.TokenID, err = parseAmount("order.tokenId", o.TokenID); err != nil {
		return req, err
	}
	if order.Price, err = parseAmount("order.price", o.Price); err != nil {
		return req, err
	}
	if order.MakerFee, err = parseAmount("order.makerFee", o.MakerFee); err != nil {
		return req, err
	}

	p := b.Permit
	permit := domain.ExecutionPermit{Deadline: p.Deadline}
	if permit.OrderHash, err = parseHash("permit.orderHash", p.OrderHash); err != nil {
		return req, err
	}
	if permit.Taker, err = parseAddress("permit.taker", p.Taker); err != nil {
		return req, err
	}
	if permit.TakerFee, err = parseAmount("permit.takerFee", p.TakerFee); err != nil {
		return req, err
	}
	permit.Participants = make([]common.Address, len(p.Participants))
	for i, s := range p.Participants {
		if permit.Participants[i], err = parseAddress("permit.participants", s); err != nil {
			return req, err
		}
	}
	permit.Rewards = make([]*big.Int, len(p.Rewards))
	for i, s := range p.Rewards {
		if permit.Rewards[i], err = parseAmount("permit.rewards", s); err != nil {
			return req, err
		}
	}

	req.Order = order
	req.Permit = permit

	if req.OrderSignature, err = parseSignature("orderSignature", b.OrderSignature); err != nil {
		return req, err
	}
	if req.PermitSignature, err = parseSignature("permitSignature", b.PermitSignature); err != nil {
		return req, err
	}
	if req.Caller, err = parseAddress("caller", b.Caller); err != nil {
		return req, err
	}
	if req.ValueReceived, err = parseAmount("value", b.Value); err != nil {
		return req, err
	}
	return req, nil
}
