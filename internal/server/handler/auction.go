package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"math/big"
	"net/http"
	"strconv"

	"github.com/ethereum/go-ethereum/common"

	"github.com/veilcraft/settlehouse/internal/auction"
	"github.com/veilcraft/settlehouse/internal/domain"
)

// AuctionService defines the methods that the auction handler requires from
// the service layer.
type AuctionService interface {
	CreateAuction(ctx context.Context, req auction.CreateRequest) (domain.Auction, error)
	RaiseAuction(ctx context.Context, req auction.RaiseRequest) (domain.Auction, error)
	TakeAuction(ctx context.Context, req auction.ResolveRequest) (domain.Auction, error)
	BuyAuction(ctx context.Context, req auction.ResolveRequest) (domain.Auction, error)
	UnlockAuction(ctx context.Context, req auction.ResolveRequest) (domain.Auction, error)
	GetAuction(ctx context.Context, id uint64) (domain.Auction, error)
	ListAuctions(ctx context.Context, opts domain.ListOpts) ([]domain.Auction, error)
}

// AuctionHandler serves auction HTTP endpoints.
type AuctionHandler struct {
	auctions AuctionService
	logger   *slog.Logger
}

// NewAuctionHandler creates an AuctionHandler with the given service and
// logger.
func NewAuctionHandler(auctions AuctionService, logger *slog.Logger) *AuctionHandler {
	return &AuctionHandler{
		auctions: auctions,
		logger:   logger,
	}
}

// auctionPermitPayload is the wire form of a seller's auction permit.
type auctionPermitPayload struct {
	TokenID      string   `json:"tokenId"`
	Seller       string   `json:"seller"`
	Price        string   `json:"price"`
	Step         string   `json:"step"`
	Penalty      string   `json:"penalty"`
	StartTime    uint64   `json:"startTime"`
	EndTime      uint64   `json:"endTime"`
	Participants []string `json:"participants"`
	Shares       []string `json:"shares"`
	Deadline     uint64   `json:"deadline"`
}

// createAuctionRequest is the body of POST /api/auctions.
type createAuctionRequest struct {
	Permit          auctionPermitPayload `json:"permit"`
	SellerSignature string               `json:"sellerSignature"`
	SignerSignature string               `json:"signerSignature"`
	DepositTokenID  string               `json:"depositTokenId"`
}

// raiseAuctionRequest is the body of POST /api/auctions/{id}/raise.
type raiseAuctionRequest struct {
	Price     string `json:"price"`
	Fee       string `json:"fee"`
	Deadline  uint64 `json:"deadline"`
	Signature string `json:"signature"`
	Caller    string `json:"caller"`
	Value     string `json:"value"`
}

// resolveAuctionRequest is the body of the take/buy/unlock endpoints.
type resolveAuctionRequest struct {
	Caller string `json:"caller"`
	Value  string `json:"value"`
}

// auctionResponse is the JSON form of an auction.
type auctionResponse struct {
	ID           uint64   `json:"id"`
	TokenID      string   `json:"tokenId"`
	Seller       string   `json:"seller"`
	Buyer        *string  `json:"buyer,omitempty"`
	Price        string   `json:"price"`
	Step         string   `json:"step"`
	Penalty      string   `json:"penalty"`
	Fee          string   `json:"fee"`
	StartTime    uint64   `json:"startTime"`
	EndTime      uint64   `json:"endTime"`
	Completed    bool     `json:"completed"`
	Participants []string `json:"participants"`
	Shares       []string `json:"shares"`
}

// CreateAuction opens an auction from a co-signed permit.
// POST /api/auctions
func (h *AuctionHandler) CreateAuction(w http.ResponseWriter, r *http.Request) {
	var body createAuctionRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	req, err := body.toCreateRequest()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	a, err := h.auctions.CreateAuction(r.Context(), req)
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusCreated, toAuctionResponse(a))
}

// RaiseAuction places a bid on an auction.
// POST /api/auctions/{id}/raise
func (h *AuctionHandler) RaiseAuction(w http.ResponseWriter, r *http.Request) {
	id, err := auctionID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var body raiseAuctionRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	req := auction.RaiseRequest{
		AuctionID: id,
		Permit:    domain.AuctionRaisePermit{AuctionID: id, Deadline: body.Deadline},
	}
	if req.Permit.Price, err = parseAmount("price", body.Price); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Permit.Fee, err = parseAmount("fee", body.Fee); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Signature, err = parseSignature("signature", body.Signature); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Caller, err = parseAddress("caller", body.Caller); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.ValueReceived, err = parseAmount("value", body.Value); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	a, err := h.auctions.RaiseAuction(r.Context(), req)
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, toAuctionResponse(a))
}

// TakeAuction settles an ended auction for its highest bidder.
// POST /api/auctions/{id}/take
func (h *AuctionHandler) TakeAuction(w http.ResponseWriter, r *http.Request) {
	h.resolve(w, r, h.auctions.TakeAuction)
}

// BuyAuction sells an expired, bidless auction to the caller.
// POST /api/auctions/{id}/buy
func (h *AuctionHandler) BuyAuction(w http.ResponseWriter, r *http.Request) {
	h.resolve(w, r, h.auctions.BuyAuction)
}

// UnlockAuction returns an expired, bidless auction's asset to its seller.
// POST /api/auctions/{id}/unlock
func (h *AuctionHandler) UnlockAuction(w http.ResponseWriter, r *http.Request) {
	h.resolve(w, r, h.auctions.UnlockAuction)
}

// GetAuction returns one auction by id.
// GET /api/auctions/{id}
func (h *AuctionHandler) GetAuction(w http.ResponseWriter, r *http.Request) {
	id, err := auctionID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	a, err := h.auctions.GetAuction(r.Context(), id)
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, toAuctionResponse(a))
}

// listAuctionsResponse wraps the list auctions response.
type listAuctionsResponse struct {
	Auctions []auctionResponse `json:"auctions"`
}

// ListAuctions returns auctions ordered by id.
// GET /api/auctions?limit=50&offset=0
func (h *AuctionHandler) ListAuctions(w http.ResponseWriter, r *http.Request) {
	auctions, err := h.auctions.ListAuctions(r.Context(), parseListOpts(r))
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}

	out := make([]auctionResponse, len(auctions))
	for i, a := range auctions {
		out[i] = toAuctionResponse(a)
	}
	writeJSON(w, http.StatusOK, listAuctionsResponse{Auctions: out})
}

func (h *AuctionHandler) resolve(
	w http.ResponseWriter,
	r *http.Request,
	fn func(context.Context, auction.ResolveRequest) (domain.Auction, error),
) {
	id, err := auctionID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var body resolveAuctionRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	req := auction.ResolveRequest{AuctionID: id}
	if req.Caller, err = parseAddress("caller", body.Caller); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.ValueReceived, err = parseAmount("value", body.Value); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	a, err := fn(r.Context(), req)
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, toAuctionResponse(a))
}

func auctionID(r *http.Request) (uint64, error) {
	return strconv.ParseUint(pathParam(r, "id"), 10, 64)
}

func (b createAuctionRequest) toCreateRequest() (auction.CreateRequest, error) {
	var req auction.CreateRequest
	var err error

	p := b.Permit
	permit := domain.AuctionPermit{
		StartTime: p.StartTime,
		EndTime:   p.EndTime,
		Deadline:  p.Deadline,
	}
	if permit.TokenID, err = parseAmount("permit.tokenId", p.TokenID); err != nil {
		return req, err
	}
	if permit.Seller, err = parseAddress("permit.seller", p.Seller); err != nil {
		return req, err
	}
	if permit.Price, err = parseAmount("permit.price", p.Price); err != nil {
		return req, err
	}
	if permit.Step, err = parseAmount("permit.step", p.Step); err != nil {
		return req, err
	}
	if permit.Penalty, err = parseAmount("permit.penalty", p.Penalty); err != nil {
		return req, err
	}
	permit.Participants = make([]common.Address, len(p.Participants))
	for i, s := range p.Participants {
		if permit.Participants[i], err = parseAddress("permit.participants", s); err != nil {
			return req, err
		}
	}
	permit.Shares = make([]*big.Int, len(p.Shares))
	for i, s := range p.Shares {
		if permit.Shares[i], err = parseAmount("permit.shares", s); err != nil {
			return req, err
		}
	}

	req.Permit = permit
	if req.SellerSignature, err = parseSignature("sellerSignature", b.SellerSignature); err != nil {
		return req, err
	}
	if req.SignerSignature, err = parseSignature("signerSignature", b.SignerSignature); err != nil {
		return req, err
	}
	if req.DepositTokenID, err = parseAmount("depositTokenId", b.DepositTokenID); err != nil {
		return req, err
	}
	return req, nil
}

func toAuctionResponse(a domain.Auction) auctionResponse {
	resp := auctionResponse{
		ID:        a.ID,
		TokenID:   a.TokenID.String(),
		Seller:    a.Seller.Hex(),
		Price:     a.Price.String(),
		Step:      a.Step.String(),
		Penalty:   a.Penalty.String(),
		Fee:       a.Fee.String(),
		StartTime: a.StartTime,
		EndTime:   a.EndTime,
		Completed: a.Completed,
	}
	if a.Buyer != nil {
		buyer := a.Buyer.Hex()
		resp.Buyer = &buyer
	}
	resp.Participants = make([]string, len(a.Participants))
	for i, p := range a.Participants {
		resp.Participants[i] = p.Hex()
	}
	resp.Shares = make([]string, len(a.Shares))
	for i, s := range a.Shares {
		resp.Shares[i] = s.String()
	}
	return resp
}
