// Package auction implements the English-auction state machine: permit-
// authorized creation at asset-deposit time, competitive raising, and the
// three terminal resolutions (take, buy after expiry, unlock with penalty).
// Auctions are denominated in the native asset; raise payments sit in escrow
// until resolution.
package auction

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/veilcraft/settlehouse/internal/crypto"
	"github.com/veilcraft/settlehouse/internal/currency"
	"github.com/veilcraft/settlehouse/internal/distribution"
	"github.com/veilcraft/settlehouse/internal/domain"
)

// Config carries the house's fixed identities.
type Config struct {
	// Domain is the EIP-712 domain auction permits are bound to.
	Domain crypto.Domain
	// TrustedSigner co-signs auction creation and issues raise permits.
	TrustedSigner common.Address
	// Collection is the asset collection this house settles.
	Collection common.Address
	// Platform receives unlock penalties.
	Platform common.Address
}

// House runs auctions over a single collection.
type House struct {
	domainSep     []byte
	trustedSigner common.Address
	collection    common.Address
	platform      common.Address
	house         common.Address

	auctions domain.AuctionStore
	assets   domain.AssetRegistry
	engine   *currency.Engine
	clock    domain.TimeSource
	logger   *slog.Logger
}

// New creates an auction House. The escrow address is where deposited assets
// are parked between creation and resolution.
func New(
	cfg Config,
	escrow common.Address,
	auctions domain.AuctionStore,
	assets domain.AssetRegistry,
	engine *currency.Engine,
	clock domain.TimeSource,
	logger *slog.Logger,
) *House {
	return &House{
		domainSep:     cfg.Domain.Separator(),
		trustedSigner: cfg.TrustedSigner,
		collection:    cfg.Collection,
		platform:      cfg.Platform,
		house:         escrow,
		auctions:      auctions,
		assets:        assets,
		engine:        engine,
		clock:         clock,
		logger:        logger.With(slog.String("component", "auction_house")),
	}
}

// CreateRequest opens an auction: the seller-signed permit, the trusted
// signer's co-signature, and the tokenId from the accompanying asset deposit.
type CreateRequest struct {
	Permit          domain.AuctionPermit
	SellerSignature []byte
	SignerSignature []byte
	DepositTokenID  *big.Int
}

// Create validates the permit and both signatures, escrows the asset, and
// stores the new auction with no buyer and a zero fee.
func (h *House) Create(ctx context.Context, req CreateRequest) (domain.Auction, error) {
	p := req.Permit
	now := h.clock.Now()

	if p.StartTime >= p.EndTime {
		return domain.Auction{}, domain.ErrInvalidStartTime
	}
	if p.EndTime <= now {
		return domain.Auction{}, domain.ErrInvalidEndTime
	}
	if req.DepositTokenID == nil || p.TokenID == nil || req.DepositTokenID.Cmp(p.TokenID) != 0 {
		return domain.Auction{}, domain.ErrWrongDepositData
	}
	if err := distribution.ValidateShares(p.Participants, p.Shares); err != nil {
		return domain.Auction{}, err
	}

	permitHash := crypto.HashAuctionPermit(p)
	if err := crypto.VerifyPermit(h.domainSep, permitHash, req.SellerSignature, p.Seller, p.Deadline, now); err != nil {
		return domain.Auction{}, err
	}
	if err := crypto.VerifyPermit(h.domainSep, permitHash, req.SignerSignature, h.trustedSigner, p.Deadline, now); err != nil {
		return domain.Auction{}, err
	}

	// Escrow the asset. This is the fallible deposit; the row is only
	// written once the asset is held.
	if err := h.assets.TransferAsset(ctx, h.collection, p.Seller, h.house, p.TokenID); err != nil {
		return domain.Auction{}, fmt.Errorf("auction: depositing asset: %w", err)
	}

	a := domain.Auction{
		TokenID:      p.TokenID,
		Seller:       p.Seller,
		Price:        p.Price,
		Step:         p.Step,
		Penalty:      p.Penalty,
		Fee:          new(big.Int),
		StartTime:    p.StartTime,
		EndTime:      p.EndTime,
		Participants: p.Participants,
		Shares:       p.Shares,
	}
	id, err := h.auctions.Create(ctx, a)
	if err != nil {
		return domain.Auction{}, fmt.Errorf("auction: storing auction: %w", err)
	}
	a.ID = id

	h.logger.InfoContext(ctx, "auction created",
		slog.Uint64("auction_id", id),
		slog.String("seller", p.Seller.Hex()),
		slog.String("token_id", p.TokenID.String()),
		slog.String("price", p.Price.String()),
	)
	return a, nil
}

// RaiseRequest is a competitive bid: the signer-issued raise permit, its
// signature, the bidding account, and the native value attached.
type RaiseRequest struct {
	AuctionID     uint64
	Permit        domain.AuctionRaisePermit
	Signature     []byte
	Caller        common.Address
	ValueReceived *big.Int
}

// Raise places the first bid on an auction with no buyer yet. The proposed
// price must be at least the current asking price, and the payment must be
// exactly price + fee.
func (h *House) Raise(ctx context.Context, req RaiseRequest) (domain.Auction, error) {
	a, err := h.raisable(ctx, req)
	if err != nil {
		return domain.Auction{}, err
	}
	if a.HasBuyer() {
		return domain.Auction{}, domain.ErrBuyerExists
	}
	if req.Permit.Price.Cmp(a.Price) < 0 {
		return domain.Auction{}, fmt.Errorf("%w: %s below asking price %s", domain.ErrRaiseTooSmall, req.Permit.Price, a.Price)
	}
	return h.acceptBid(ctx, a, req)
}

// Outbid replaces the current buyer. The new price must exceed the standing
// one by at least the step, the payment must again be exact, and the
// previous buyer is refunded their full price + fee.
func (h *House) Outbid(ctx context.Context, req RaiseRequest) (domain.Auction, error) {
	a, err := h.raisable(ctx, req)
	if err != nil {
		return domain.Auction{}, err
	}
	if !a.HasBuyer() {
		return domain.Auction{}, domain.ErrBuyerNotExists
	}
	floor := new(big.Int).Add(a.Price, amountOrZero(a.Step))
	if req.Permit.Price.Cmp(floor) < 0 {
		return domain.Auction{}, fmt.Errorf("%w: %s below %s", domain.ErrRaiseTooSmall, req.Permit.Price, floor)
	}

	refundTo := *a.Buyer
	refund := new(big.Int).Add(a.Price, amountOrZero(a.Fee))

	a, err = h.acceptBid(ctx, a, req)
	if err != nil {
		return domain.Auction{}, err
	}

	// Refund after the new bid is committed, so a reentrant call from the
	// refunded buyer sees the replacement already in place.
	if err := h.engine.Disperse(ctx, currency.Native, []currency.Leg{{To: refundTo, Amount: refund}}); err != nil {
		return domain.Auction{}, fmt.Errorf("auction: refunding previous buyer: %w", err)
	}
	return a, nil
}

// ResolveRequest addresses a terminal transition.
type ResolveRequest struct {
	AuctionID     uint64
	Caller        common.Address
	ValueReceived *big.Int
}

// Take settles an ended auction for its highest bidder: the price is split
// among the participants (the platform participant also collects the fee)
// and the asset goes to the buyer.
func (h *House) Take(ctx context.Context, req ResolveRequest) (domain.Auction, error) {
	a, err := h.auctions.Get(ctx, req.AuctionID)
	if err != nil {
		return domain.Auction{}, err
	}
	now := h.clock.Now()
	if now <= a.EndTime {
		return domain.Auction{}, domain.ErrAuctionNotEnded
	}
	if !a.HasBuyer() {
		return domain.Auction{}, domain.ErrBuyerNotExists
	}
	if a.Completed {
		return domain.Auction{}, domain.ErrAuctionCompleted
	}
	if received := amountOrZero(req.ValueReceived); received.Sign() != 0 {
		return domain.Auction{}, fmt.Errorf("%w: take accepts no payment", domain.ErrWrongPayment)
	}

	legs, err := h.payoutLegs(a.Price, a.Fee, a.Participants, a.Shares)
	if err != nil {
		return domain.Auction{}, err
	}

	buyer := *a.Buyer
	return h.complete(ctx, a, domain.ResolutionTake, legs, buyer)
}

// Buy sells an expired, bidless auction directly to the caller at the asking
// price. No fee applies since no competitive raise occurred.
func (h *House) Buy(ctx context.Context, req ResolveRequest) (domain.Auction, error) {
	a, err := h.auctions.Get(ctx, req.AuctionID)
	if err != nil {
		return domain.Auction{}, err
	}
	now := h.clock.Now()
	if now <= a.EndTime {
		return domain.Auction{}, domain.ErrAuctionNotEnded
	}
	if a.HasBuyer() {
		return domain.Auction{}, domain.ErrBuyerExists
	}
	if a.Completed {
		return domain.Auction{}, domain.ErrAuctionCompleted
	}
	if amountOrZero(req.ValueReceived).Cmp(a.Price) != 0 {
		return domain.Auction{}, fmt.Errorf("%w: got %s, want %s", domain.ErrWrongPayment, amountOrZero(req.ValueReceived), a.Price)
	}

	legs, err := h.payoutLegs(a.Price, nil, a.Participants, a.Shares)
	if err != nil {
		return domain.Auction{}, err
	}

	buyer := req.Caller
	a.Buyer = &buyer
	return h.complete(ctx, a, domain.ResolutionBuy, legs, buyer)
}

// Unlock returns the asset of an expired, bidless auction to its seller
// against the penalty, which is paid to the platform.
func (h *House) Unlock(ctx context.Context, req ResolveRequest) (domain.Auction, error) {
	a, err := h.auctions.Get(ctx, req.AuctionID)
	if err != nil {
		return domain.Auction{}, err
	}
	now := h.clock.Now()
	if now <= a.EndTime {
		return domain.Auction{}, domain.ErrAuctionNotEnded
	}
	if a.HasBuyer() {
		return domain.Auction{}, domain.ErrBuyerExists
	}
	if a.Completed {
		return domain.Auction{}, domain.ErrAuctionCompleted
	}
	if amountOrZero(req.ValueReceived).Cmp(amountOrZero(a.Penalty)) != 0 {
		return domain.Auction{}, fmt.Errorf("%w: got %s, want penalty %s", domain.ErrWrongPayment, amountOrZero(req.ValueReceived), amountOrZero(a.Penalty))
	}

	legs := []currency.Leg{{To: h.platform, Amount: amountOrZero(a.Penalty)}}
	return h.complete(ctx, a, domain.ResolutionUnlock, legs, a.Seller)
}

// Get returns an auction by id.
func (h *House) Get(ctx context.Context, id uint64) (domain.Auction, error) {
	return h.auctions.Get(ctx, id)
}

// List returns auctions ordered by id.
func (h *House) List(ctx context.Context, opts domain.ListOpts) ([]domain.Auction, error) {
	return h.auctions.List(ctx, opts)
}

// raisable loads the auction and runs the raise-time validations shared by
// Raise and Outbid, in protocol order: not started, ended, permit binding,
// signer authorization.
func (h *House) raisable(ctx context.Context, req RaiseRequest) (domain.Auction, error) {
	a, err := h.auctions.Get(ctx, req.AuctionID)
	if err != nil {
		return domain.Auction{}, err
	}
	now := h.clock.Now()
	if now < a.StartTime {
		return domain.Auction{}, domain.ErrAuctionNotStarted
	}
	if now > a.EndTime {
		return domain.Auction{}, domain.ErrAuctionEnded
	}
	if req.Permit.AuctionID != a.ID {
		return domain.Auction{}, fmt.Errorf("%w: permit is for auction %d", domain.ErrUnauthorizedAction, req.Permit.AuctionID)
	}
	permitHash := crypto.HashAuctionRaisePermit(req.Permit)
	if err := crypto.VerifyPermit(h.domainSep, permitHash, req.Signature, h.trustedSigner, req.Permit.Deadline, now); err != nil {
		return domain.Auction{}, err
	}
	return a, nil
}

// acceptBid checks the exact payment and commits the new buyer/price/fee.
func (h *House) acceptBid(ctx context.Context, a domain.Auction, req RaiseRequest) (domain.Auction, error) {
	fee := amountOrZero(req.Permit.Fee)
	due := new(big.Int).Add(req.Permit.Price, fee)
	if amountOrZero(req.ValueReceived).Cmp(due) != 0 {
		return domain.Auction{}, fmt.Errorf("%w: got %s, want %s", domain.ErrWrongPayment, amountOrZero(req.ValueReceived), due)
	}

	buyer := req.Caller
	a.Buyer = &buyer
	a.Price = req.Permit.Price
	a.Fee = fee
	if err := h.auctions.Update(ctx, a); err != nil {
		return domain.Auction{}, fmt.Errorf("auction: updating auction: %w", err)
	}

	h.logger.InfoContext(ctx, "auction raised",
		slog.Uint64("auction_id", a.ID),
		slog.String("buyer", buyer.Hex()),
		slog.String("price", a.Price.String()),
		slog.String("fee", a.Fee.String()),
	)
	return a, nil
}

// payoutLegs splits total per the strict share law and folds fee into the
// platform participant's leg (the first participant by convention).
func (h *House) payoutLegs(total, fee *big.Int, participants []common.Address, shares []*big.Int) ([]currency.Leg, error) {
	payouts, err := distribution.Split(total, participants, shares)
	if err != nil {
		return nil, err
	}
	legs := make([]currency.Leg, len(participants))
	for i, p := range participants {
		legs[i] = currency.Leg{To: p, Amount: payouts[i]}
	}
	if fee != nil && fee.Sign() > 0 {
		legs[0] = currency.Leg{To: legs[0].To, Amount: new(big.Int).Add(legs[0].Amount, fee)}
	}
	return legs, nil
}

// complete marks the auction resolved, then dispatches the payouts and moves
// the asset. The completed flag is committed before any outgoing transfer so
// the resolution cannot be re-triggered reentrantly.
func (h *House) complete(ctx context.Context, a domain.Auction, kind domain.ResolutionKind, legs []currency.Leg, assetTo common.Address) (domain.Auction, error) {
	a.Completed = true
	if err := h.auctions.Update(ctx, a); err != nil {
		return domain.Auction{}, fmt.Errorf("auction: updating auction: %w", err)
	}
	if err := h.engine.Disperse(ctx, currency.Native, legs); err != nil {
		return domain.Auction{}, fmt.Errorf("auction: dispersing payouts: %w", err)
	}
	if err := h.assets.TransferAsset(ctx, h.collection, h.house, assetTo, a.TokenID); err != nil {
		return domain.Auction{}, fmt.Errorf("auction: releasing asset: %w", err)
	}

	h.logger.InfoContext(ctx, "auction completed",
		slog.Uint64("auction_id", a.ID),
		slog.String("resolution", string(kind)),
	)
	return a, nil
}

func amountOrZero(n *big.Int) *big.Int {
	if n == nil {
		return new(big.Int)
	}
	return n
}
