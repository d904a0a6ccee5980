// Package market validates and settles two-sided signed orders. An order is
// never stored: it exists as a maker signature over its EIP-712 hash, and is
// consumed by marking the (maker, orderHash) pair invalidated.
package market

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/veilcraft/settlehouse/internal/crypto"
	"github.com/veilcraft/settlehouse/internal/currency"
	"github.com/veilcraft/settlehouse/internal/domain"
)

// Config carries the market's fixed identities.
type Config struct {
	// Domain is the EIP-712 domain all market permits are bound to.
	Domain crypto.Domain
	// TrustedSigner issues execution permits.
	TrustedSigner common.Address
	// FeeRecipient receives taker-side fees.
	FeeRecipient common.Address
}

// Market executes ask/bid orders and tracks invalidated order hashes.
type Market struct {
	domainSep     []byte
	trustedSigner common.Address
	feeRecipient  common.Address

	invalidated domain.InvalidatedOrderStore
	currencies  domain.CurrencyRegistry
	assets      domain.AssetRegistry
	roles       domain.RoleRegistry
	engine      *currency.Engine
	clock       domain.TimeSource
	logger      *slog.Logger
}

// New creates a Market.
func New(
	cfg Config,
	invalidated domain.InvalidatedOrderStore,
	currencies domain.CurrencyRegistry,
	assets domain.AssetRegistry,
	roles domain.RoleRegistry,
	engine *currency.Engine,
	clock domain.TimeSource,
	logger *slog.Logger,
) *Market {
	return &Market{
		domainSep:     cfg.Domain.Separator(),
		trustedSigner: cfg.TrustedSigner,
		feeRecipient:  cfg.FeeRecipient,
		invalidated:   invalidated,
		currencies:    currencies,
		assets:        assets,
		roles:         roles,
		engine:        engine,
		clock:         clock,
		logger:        logger.With(slog.String("component", "market")),
	}
}

// ExecuteRequest is one settlement submission: the maker-signed order, the
// trusted-signer execution permit, both signatures, the submitting account,
// and any native value attached to the call.
type ExecuteRequest struct {
	Order           domain.Order
	Permit          domain.ExecutionPermit
	OrderSignature  []byte
	PermitSignature []byte
	Caller          common.Address
	ValueReceived   *big.Int
}

// Receipt describes a completed order execution.
type Receipt struct {
	OrderHash  common.Hash
	Maker      common.Address
	Taker      common.Address
	Collection common.Address
	Currency   common.Address
	TokenID    *big.Int
	Price      *big.Int
}

// ExecuteAsk settles an ask order: the maker sells the asset, the permitted
// taker pays price plus the taker fee. Reward legs are carved out of the
// maker fee; whatever the permit leaves unallocated stays with the maker.
func (m *Market) ExecuteAsk(ctx context.Context, req ExecuteRequest) (Receipt, error) {
	order, permit := req.Order, req.Permit

	if order.Side != domain.OrderSideAsk {
		return Receipt{}, domain.ErrInvalidOrderSide
	}
	orderHash, err := m.validateCommon(ctx, req)
	if err != nil {
		return Receipt{}, err
	}

	rewardsTotal, err := m.rewardsBudget(permit, order.MakerFee, domain.ErrInvalidAskSideFee)
	if err != nil {
		return Receipt{}, err
	}

	// The taker funds price + takerFee; the maker keeps everything the
	// permit does not route to reward participants or the fee bucket.
	expectedTotal := new(big.Int).Add(order.Price, amountOrZero(permit.TakerFee))
	makerProceeds := new(big.Int).Sub(order.Price, rewardsTotal)

	legs := make([]currency.Leg, 0, len(permit.Participants)+2)
	legs = append(legs,
		currency.Leg{To: order.Maker, Amount: makerProceeds},
		currency.Leg{To: m.feeRecipient, Amount: amountOrZero(permit.TakerFee)},
	)
	for i, p := range permit.Participants {
		legs = append(legs, currency.Leg{To: p, Amount: permit.Rewards[i]})
	}

	settlement := currency.Settlement{
		Currency:      order.Currency,
		Payer:         permit.Taker,
		ExpectedTotal: expectedTotal,
		ValueReceived: req.ValueReceived,
		Legs:          legs,
	}
	if err := m.settle(ctx, orderHash, order, settlement, order.Maker, permit.Taker); err != nil {
		return Receipt{}, err
	}

	m.logger.InfoContext(ctx, "ask order executed",
		slog.String("order_hash", orderHash.Hex()),
		slog.String("maker", order.Maker.Hex()),
		slog.String("taker", permit.Taker.Hex()),
		slog.String("price", order.Price.String()),
	)
	return m.receipt(orderHash, order, permit), nil
}

// ExecuteBid settles a bid order: the maker buys the asset from the taker,
// who must currently own it. The price is pulled from the maker's token
// balance; the taker fee and reward legs are deducted from the seller's
// proceeds. Bids settle in token currencies only, since a pre-signed bid
// cannot attach native value.
func (m *Market) ExecuteBid(ctx context.Context, req ExecuteRequest) (Receipt, error) {
	order, permit := req.Order, req.Permit

	if order.Side != domain.OrderSideBid {
		return Receipt{}, domain.ErrInvalidOrderSide
	}
	if currency.IsNative(order.Currency) {
		return Receipt{}, fmt.Errorf("%w: bid orders require a token currency", domain.ErrCurrencyNotAllowed)
	}
	orderHash, err := m.validateCommon(ctx, req)
	if err != nil {
		return Receipt{}, err
	}

	rewardsTotal, err := m.rewardsBudget(permit, order.MakerFee, domain.ErrInvalidBidSideFee)
	if err != nil {
		return Receipt{}, err
	}

	deductions := new(big.Int).Add(rewardsTotal, amountOrZero(permit.TakerFee))
	sellerProceeds := new(big.Int).Sub(order.Price, deductions)
	if sellerProceeds.Sign() < 0 {
		return Receipt{}, fmt.Errorf("%w: fees %s exceed price %s", domain.ErrInvalidBidSideFee, deductions, order.Price)
	}

	legs := make([]currency.Leg, 0, len(permit.Participants)+2)
	legs = append(legs,
		currency.Leg{To: permit.Taker, Amount: sellerProceeds},
		currency.Leg{To: m.feeRecipient, Amount: amountOrZero(permit.TakerFee)},
	)
	for i, p := range permit.Participants {
		legs = append(legs, currency.Leg{To: p, Amount: permit.Rewards[i]})
	}

	settlement := currency.Settlement{
		Currency:      order.Currency,
		Payer:         order.Maker,
		ExpectedTotal: order.Price,
		ValueReceived: req.ValueReceived,
		Legs:          legs,
	}
	// Asset moves taker -> maker on the bid side.
	if err := m.settle(ctx, orderHash, order, settlement, permit.Taker, order.Maker); err != nil {
		return Receipt{}, err
	}

	m.logger.InfoContext(ctx, "bid order executed",
		slog.String("order_hash", orderHash.Hex()),
		slog.String("maker", order.Maker.Hex()),
		slog.String("taker", permit.Taker.Hex()),
		slog.String("price", order.Price.String()),
	)
	return m.receipt(orderHash, order, permit), nil
}

// InvalidateOrder permanently marks an order hash unusable for its maker.
// Only the maker or an admin may cancel. Executed orders are invalidated the
// same way, so the flag doubles as replay protection.
func (m *Market) InvalidateOrder(ctx context.Context, caller, maker common.Address, orderHash common.Hash) error {
	if caller != maker {
		admin, err := m.roles.IsAdmin(ctx, caller)
		if err != nil {
			return fmt.Errorf("market: admin check: %w", err)
		}
		if !admin {
			return domain.ErrUnauthorizedAccount
		}
	}

	set, err := m.invalidated.IsInvalidated(ctx, maker, orderHash)
	if err != nil {
		return fmt.Errorf("market: invalidation lookup: %w", err)
	}
	if set {
		return domain.ErrOrderInvalidated
	}
	if err := m.invalidated.Invalidate(ctx, maker, orderHash); err != nil {
		return fmt.Errorf("market: invalidating order: %w", err)
	}

	m.logger.InfoContext(ctx, "order invalidated",
		slog.String("maker", maker.Hex()),
		slog.String("order_hash", orderHash.Hex()),
	)
	return nil
}

// SetCurrencyStatus updates the settlement currency allow-list. Admin only.
func (m *Market) SetCurrencyStatus(ctx context.Context, caller, currencyAddr common.Address, allowed bool) error {
	admin, err := m.roles.IsAdmin(ctx, caller)
	if err != nil {
		return fmt.Errorf("market: admin check: %w", err)
	}
	if !admin {
		return domain.ErrNotAdmin
	}
	if err := m.currencies.SetCurrencyAllowed(ctx, currencyAddr, allowed); err != nil {
		return fmt.Errorf("market: updating currency status: %w", err)
	}
	return nil
}

// IsInvalidated reports the replay flag for (maker, orderHash).
func (m *Market) IsInvalidated(ctx context.Context, maker common.Address, orderHash common.Hash) (bool, error) {
	return m.invalidated.IsInvalidated(ctx, maker, orderHash)
}

// validateCommon runs the side-independent validation sequence and returns
// the order hash. The check order is part of the protocol: clients depend on
// which condition is reported first.
func (m *Market) validateCommon(ctx context.Context, req ExecuteRequest) (common.Hash, error) {
	order, permit := req.Order, req.Permit
	now := m.clock.Now()

	if now < order.StartTime || now > order.EndTime {
		return common.Hash{}, domain.ErrOrderOutsideTimeRange
	}

	allowed, err := m.currencies.CurrencyAllowed(ctx, order.Currency)
	if err != nil {
		return common.Hash{}, fmt.Errorf("market: currency lookup: %w", err)
	}
	if !allowed {
		return common.Hash{}, domain.ErrCurrencyNotAllowed
	}

	feeErr := domain.ErrInvalidAskSideFee
	if order.Side == domain.OrderSideBid {
		feeErr = domain.ErrInvalidBidSideFee
	}
	if amountOrZero(order.MakerFee).Cmp(amountOrZero(order.Price)) >= 0 {
		return common.Hash{}, feeErr
	}

	orderHash := crypto.HashOrder(order)
	recovered, err := crypto.RecoverSigner(m.domainSep, orderHash, req.OrderSignature)
	if err != nil || recovered != order.Maker {
		return common.Hash{}, domain.ErrUnauthorizedOrder
	}

	if permit.OrderHash != orderHash {
		return common.Hash{}, domain.ErrInvalidOrderHash
	}
	if req.Caller != permit.Taker {
		return common.Hash{}, domain.ErrUnauthorizedAccount
	}

	set, err := m.invalidated.IsInvalidated(ctx, order.Maker, orderHash)
	if err != nil {
		return common.Hash{}, fmt.Errorf("market: invalidation lookup: %w", err)
	}
	if set {
		return common.Hash{}, domain.ErrOrderInvalidated
	}

	permitHash := crypto.HashExecutionPermit(permit)
	if err := crypto.VerifyPermit(m.domainSep, permitHash, req.PermitSignature, m.trustedSigner, permit.Deadline, now); err != nil {
		return common.Hash{}, err
	}
	return orderHash, nil
}

// rewardsBudget validates the permit's reward legs against the maker fee
// budget and returns their total. The reward legs follow the relaxed
// distribution policy: only their sum is constrained, not a share law.
func (m *Market) rewardsBudget(permit domain.ExecutionPermit, makerFee *big.Int, feeErr error) (*big.Int, error) {
	if len(permit.Participants) != len(permit.Rewards) {
		return nil, domain.ErrParticipantsSharesMismatch
	}
	total := new(big.Int)
	for _, r := range permit.Rewards {
		if r != nil {
			total.Add(total, r)
		}
	}
	if total.Cmp(amountOrZero(makerFee)) > 0 {
		return nil, fmt.Errorf("%w: rewards %s exceed maker fee %s", feeErr, total, makerFee)
	}
	return total, nil
}

// settle runs the value movement around the state commit: verify amounts,
// pull the incoming total, set the invalidated flag, then dispatch the
// outgoing legs and the asset transfer. The flag is set before any outgoing
// transfer so a reentrant call observes the order as consumed.
func (m *Market) settle(ctx context.Context, orderHash common.Hash, order domain.Order, s currency.Settlement, assetFrom, assetTo common.Address) error {
	owner, err := m.assets.OwnerOf(ctx, order.Collection, order.TokenID)
	if err != nil {
		return fmt.Errorf("market: asset lookup: %w", err)
	}
	if owner != assetFrom {
		return fmt.Errorf("market: asset %s/%s not owned by seller %s", order.Collection, order.TokenID, assetFrom)
	}
	if err := m.engine.Verify(s); err != nil {
		return err
	}
	if err := m.engine.Collect(ctx, s); err != nil {
		return err
	}
	if err := m.invalidated.Invalidate(ctx, order.Maker, orderHash); err != nil {
		return fmt.Errorf("market: invalidating order: %w", err)
	}
	if err := m.engine.Disperse(ctx, s.Currency, s.Legs); err != nil {
		return fmt.Errorf("market: dispersing legs: %w", err)
	}
	if err := m.assets.TransferAsset(ctx, order.Collection, assetFrom, assetTo, order.TokenID); err != nil {
		return fmt.Errorf("market: transferring asset: %w", err)
	}
	return nil
}

func (m *Market) receipt(orderHash common.Hash, order domain.Order, permit domain.ExecutionPermit) Receipt {
	return Receipt{
		OrderHash:  orderHash,
		Maker:      order.Maker,
		Taker:      permit.Taker,
		Collection: order.Collection,
		Currency:   order.Currency,
		TokenID:    order.TokenID,
		Price:      order.Price,
	}
}

func amountOrZero(n *big.Int) *big.Int {
	if n == nil {
		return new(big.Int)
	}
	return n
}
