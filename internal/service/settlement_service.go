// Package service orchestrates the settlement engines: it moves attached
// native value into escrow, invokes the market or auction house, and emits
// settlement events for every successful state transition.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"github.com/veilcraft/settlehouse/internal/auction"
	"github.com/veilcraft/settlehouse/internal/crypto"
	"github.com/veilcraft/settlehouse/internal/domain"
	"github.com/veilcraft/settlehouse/internal/market"
)

const (
	// EventChannel is the pub/sub channel live subscribers listen on.
	EventChannel = "settlement"
	// EventStreamName is the durable stream drained by the archiver.
	EventStreamName = "stream:settlement"

	// mutationLockTTL bounds how long a crashed instance can hold an
	// order's or auction's mutation lock.
	mutationLockTTL = 10 * time.Second
)

// NativeFunding moves attached native value from a caller's balance into the
// house escrow before an operation runs.
type NativeFunding interface {
	PayNativeIn(from common.Address, amount *big.Int) error
}

// AuctionCache is a read cache in front of the auction store.
type AuctionCache interface {
	Get(ctx context.Context, id uint64) (domain.Auction, error)
	Set(ctx context.Context, a domain.Auction) error
	Invalidate(ctx context.Context, id uint64) error
}

// SettlementService is the application-facing facade over the market and the
// auction house. Every mutating call that succeeds produces exactly one
// settlement event; event emission failures are logged, never fatal.
type SettlementService struct {
	market  *market.Market
	house   *auction.House
	funding NativeFunding
	ledger  domain.ValueLedger
	events  domain.EventStore
	bus     domain.EventBus
	stream  domain.EventStream
	clock   domain.TimeSource
	logger  *slog.Logger

	locks domain.LockManager
	local *keyedLocks
	cache AuctionCache
}

// NewSettlementService creates a SettlementService with its required
// dependencies. Locking and caching are optional attachments.
func NewSettlementService(
	mkt *market.Market,
	house *auction.House,
	funding NativeFunding,
	ledger domain.ValueLedger,
	events domain.EventStore,
	bus domain.EventBus,
	stream domain.EventStream,
	clock domain.TimeSource,
	logger *slog.Logger,
) *SettlementService {
	return &SettlementService{
		market:  mkt,
		house:   house,
		funding: funding,
		ledger:  ledger,
		events:  events,
		bus:     bus,
		stream:  stream,
		clock:   clock,
		logger:  logger.With(slog.String("component", "settlement_service")),
		local:   newKeyedLocks(),
	}
}

// WithLockManager serializes per-order and per-auction mutations across
// instances.
func (s *SettlementService) WithLockManager(lm domain.LockManager) *SettlementService {
	s.locks = lm
	return s
}

// WithAuctionCache attaches a read cache for auction lookups.
func (s *SettlementService) WithAuctionCache(c AuctionCache) *SettlementService {
	s.cache = c
	return s
}

// ExecuteAsk settles an ask order, escrowing any attached native value first.
// The order's replay lock is held across the whole settlement.
func (s *SettlementService) ExecuteAsk(ctx context.Context, req market.ExecuteRequest) (market.Receipt, error) {
	unlock, err := s.lockOrder(ctx, req.Order.Maker, crypto.HashOrder(req.Order))
	if err != nil {
		return market.Receipt{}, err
	}
	defer unlock()

	if err := s.deposit(req.Caller, req.ValueReceived); err != nil {
		return market.Receipt{}, err
	}

	receipt, err := s.market.ExecuteAsk(ctx, req)
	if err != nil {
		s.refund(ctx, req.Caller, req.ValueReceived)
		return market.Receipt{}, err
	}

	s.emit(ctx, s.orderEvent(domain.EventAskOrderExecuted, receipt))
	return receipt, nil
}

// ExecuteBid settles a bid order. Bids are token-denominated, so no native
// escrow is involved.
func (s *SettlementService) ExecuteBid(ctx context.Context, req market.ExecuteRequest) (market.Receipt, error) {
	unlock, err := s.lockOrder(ctx, req.Order.Maker, crypto.HashOrder(req.Order))
	if err != nil {
		return market.Receipt{}, err
	}
	defer unlock()

	receipt, err := s.market.ExecuteBid(ctx, req)
	if err != nil {
		return market.Receipt{}, err
	}

	s.emit(ctx, s.orderEvent(domain.EventBidOrderExecuted, receipt))
	return receipt, nil
}

// InvalidateOrder permanently consumes an order hash for its maker. It takes
// the same replay lock as execution so an invalidation cannot slip between an
// in-flight settlement's check and its commit.
func (s *SettlementService) InvalidateOrder(ctx context.Context, caller, maker common.Address, orderHash common.Hash) error {
	unlock, err := s.lockOrder(ctx, maker, orderHash)
	if err != nil {
		return err
	}
	defer unlock()

	if err := s.market.InvalidateOrder(ctx, caller, maker, orderHash); err != nil {
		return err
	}

	ev := s.newEvent(domain.EventOrderInvalidated)
	ev.Maker = &maker
	ev.OrderHash = &orderHash
	s.emit(ctx, ev)
	return nil
}

// IsInvalidated reports whether the maker's order hash has been consumed.
func (s *SettlementService) IsInvalidated(ctx context.Context, maker common.Address, orderHash common.Hash) (bool, error) {
	return s.market.IsInvalidated(ctx, maker, orderHash)
}

// SetCurrencyStatus flips a currency's allow-list entry. Admin only.
func (s *SettlementService) SetCurrencyStatus(ctx context.Context, caller, currency common.Address, allowed bool) error {
	if err := s.market.SetCurrencyStatus(ctx, caller, currency, allowed); err != nil {
		return err
	}

	ev := s.newEvent(domain.EventCurrencyStatusUpdated)
	ev.Currency = &currency
	ev.Allowed = &allowed
	s.emit(ctx, ev)
	return nil
}

// CreateAuction opens a new auction from a co-signed permit.
func (s *SettlementService) CreateAuction(ctx context.Context, req auction.CreateRequest) (domain.Auction, error) {
	a, err := s.house.Create(ctx, req)
	if err != nil {
		return domain.Auction{}, err
	}
	s.cacheSet(ctx, a)

	ev := s.newEvent(domain.EventAuctionCreated)
	ev.AuctionID = a.ID
	ev.Seller = &a.Seller
	ev.TokenID = a.TokenID
	ev.Price = a.Price
	s.emit(ctx, ev)
	return a, nil
}

// RaiseAuction places a bid, dispatching to the initial-raise or outbid path
// depending on whether the auction already has a buyer. The attached payment
// is escrowed before the house runs and returned if the bid is rejected.
func (s *SettlementService) RaiseAuction(ctx context.Context, req auction.RaiseRequest) (domain.Auction, error) {
	unlock, err := s.lockAuction(ctx, req.AuctionID)
	if err != nil {
		return domain.Auction{}, err
	}
	defer unlock()

	current, err := s.house.Get(ctx, req.AuctionID)
	if err != nil {
		return domain.Auction{}, err
	}

	if err := s.deposit(req.Caller, req.ValueReceived); err != nil {
		return domain.Auction{}, err
	}

	var a domain.Auction
	if current.HasBuyer() {
		a, err = s.house.Outbid(ctx, req)
	} else {
		a, err = s.house.Raise(ctx, req)
	}
	if err != nil {
		s.refund(ctx, req.Caller, req.ValueReceived)
		return domain.Auction{}, err
	}
	s.cacheSet(ctx, a)

	ev := s.newEvent(domain.EventAuctionRaised)
	ev.AuctionID = a.ID
	ev.Buyer = a.Buyer
	ev.Price = a.Price
	ev.Fee = a.Fee
	s.emit(ctx, ev)
	return a, nil
}

// TakeAuction settles an ended auction for its highest bidder.
func (s *SettlementService) TakeAuction(ctx context.Context, req auction.ResolveRequest) (domain.Auction, error) {
	return s.resolve(ctx, req, domain.ResolutionTake, s.house.Take)
}

// BuyAuction sells an expired, bidless auction to the caller at asking price.
func (s *SettlementService) BuyAuction(ctx context.Context, req auction.ResolveRequest) (domain.Auction, error) {
	return s.resolve(ctx, req, domain.ResolutionBuy, s.house.Buy)
}

// UnlockAuction returns an expired, bidless auction's asset to its seller
// against the penalty.
func (s *SettlementService) UnlockAuction(ctx context.Context, req auction.ResolveRequest) (domain.Auction, error) {
	return s.resolve(ctx, req, domain.ResolutionUnlock, s.house.Unlock)
}

// GetAuction reads one auction, via the cache when attached.
func (s *SettlementService) GetAuction(ctx context.Context, id uint64) (domain.Auction, error) {
	if s.cache != nil {
		if a, err := s.cache.Get(ctx, id); err == nil {
			return a, nil
		} else if !errors.Is(err, domain.ErrNotFound) {
			s.logger.WarnContext(ctx, "auction cache read failed",
				slog.Uint64("auction_id", id),
				slog.String("error", err.Error()),
			)
		}
	}

	a, err := s.house.Get(ctx, id)
	if err != nil {
		return domain.Auction{}, err
	}
	s.cacheSet(ctx, a)
	return a, nil
}

// ListAuctions returns auctions ordered by id.
func (s *SettlementService) ListAuctions(ctx context.Context, opts domain.ListOpts) ([]domain.Auction, error) {
	return s.house.List(ctx, opts)
}

// ListEvents returns settlement events, newest first.
func (s *SettlementService) ListEvents(ctx context.Context, opts domain.ListOpts) ([]domain.SettlementEvent, error) {
	return s.events.List(ctx, opts)
}

// resolve runs one terminal auction transition under the auction lock,
// escrowing the attached payment for the buy and unlock paths.
func (s *SettlementService) resolve(
	ctx context.Context,
	req auction.ResolveRequest,
	kind domain.ResolutionKind,
	fn func(context.Context, auction.ResolveRequest) (domain.Auction, error),
) (domain.Auction, error) {
	unlock, err := s.lockAuction(ctx, req.AuctionID)
	if err != nil {
		return domain.Auction{}, err
	}
	defer unlock()

	if err := s.deposit(req.Caller, req.ValueReceived); err != nil {
		return domain.Auction{}, err
	}

	a, err := fn(ctx, req)
	if err != nil {
		s.refund(ctx, req.Caller, req.ValueReceived)
		return domain.Auction{}, err
	}
	s.cacheInvalidate(ctx, a.ID)

	ev := s.newEvent(domain.EventAuctionCompleted)
	ev.AuctionID = a.ID
	ev.Seller = &a.Seller
	ev.Buyer = a.Buyer
	ev.Price = a.Price
	ev.Fee = a.Fee
	ev.Resolution = kind
	s.emit(ctx, ev)
	return a, nil
}

// deposit escrows attached native value. A nil or zero amount is a no-op.
func (s *SettlementService) deposit(from common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() == 0 {
		return nil
	}
	if err := s.funding.PayNativeIn(from, amount); err != nil {
		return fmt.Errorf("settlement: escrowing payment: %w", err)
	}
	return nil
}

// refund returns escrowed native value after a failed operation.
func (s *SettlementService) refund(ctx context.Context, to common.Address, amount *big.Int) {
	if amount == nil || amount.Sign() == 0 {
		return
	}
	if err := s.ledger.TransferNative(ctx, to, amount); err != nil {
		s.logger.ErrorContext(ctx, "refund failed",
			slog.String("to", to.Hex()),
			slog.String("amount", amount.String()),
			slog.String("error", err.Error()),
		)
	}
}

// lock serializes mutations of one key. With a LockManager attached the lock
// holds across instances; otherwise an in-process mutex guards this instance,
// so concurrent HTTP requests still settle one at a time per key.
func (s *SettlementService) lock(ctx context.Context, key string) (func(), error) {
	if s.locks == nil {
		return s.local.acquire(key), nil
	}
	unlock, err := s.locks.Acquire(ctx, key, mutationLockTTL)
	if err != nil {
		return nil, fmt.Errorf("settlement: locking %s: %w", key, err)
	}
	return unlock, nil
}

func (s *SettlementService) lockAuction(ctx context.Context, id uint64) (func(), error) {
	return s.lock(ctx, fmt.Sprintf("auction:%d", id))
}

// lockOrder guards the replay check-then-consume window: the market reads the
// invalidated flag before moving funds and sets it after, so two settlements
// of the same signed order must never overlap.
func (s *SettlementService) lockOrder(ctx context.Context, maker common.Address, orderHash common.Hash) (func(), error) {
	return s.lock(ctx, fmt.Sprintf("order:%s:%s", maker.Hex(), orderHash.Hex()))
}

func (s *SettlementService) cacheSet(ctx context.Context, a domain.Auction) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Set(ctx, a); err != nil {
		s.logger.WarnContext(ctx, "auction cache write failed",
			slog.Uint64("auction_id", a.ID),
			slog.String("error", err.Error()),
		)
	}
}

func (s *SettlementService) cacheInvalidate(ctx context.Context, id uint64) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, id); err != nil {
		s.logger.WarnContext(ctx, "auction cache invalidate failed",
			slog.Uint64("auction_id", id),
			slog.String("error", err.Error()),
		)
	}
}

func (s *SettlementService) newEvent(kind domain.EventKind) domain.SettlementEvent {
	return domain.SettlementEvent{
		ID:         uuid.New().String(),
		Kind:       kind,
		LedgerTime: s.clock.Now(),
		CreatedAt:  time.Now().UTC(),
	}
}

func (s *SettlementService) orderEvent(kind domain.EventKind, r market.Receipt) domain.SettlementEvent {
	ev := s.newEvent(kind)
	ev.Maker = &r.Maker
	ev.Taker = &r.Taker
	ev.OrderHash = &r.OrderHash
	ev.Collection = &r.Collection
	ev.Currency = &r.Currency
	ev.TokenID = r.TokenID
	ev.Price = r.Price
	return ev
}

// emit appends the event to the log, publishes it on the pub/sub channel,
// and appends it to the durable stream. Failures are logged and swallowed;
// the settlement itself already committed.
func (s *SettlementService) emit(ctx context.Context, ev domain.SettlementEvent) {
	if err := s.events.Append(ctx, ev); err != nil {
		s.logger.WarnContext(ctx, "event append failed",
			slog.String("event_id", ev.ID),
			slog.String("kind", string(ev.Kind)),
			slog.String("error", err.Error()),
		)
	}

	payload, err := json.Marshal(ev)
	if err != nil {
		s.logger.WarnContext(ctx, "event marshal failed",
			slog.String("event_id", ev.ID),
			slog.String("error", err.Error()),
		)
		return
	}

	if s.bus != nil {
		if err := s.bus.Publish(ctx, EventChannel, payload); err != nil {
			s.logger.WarnContext(ctx, "event publish failed",
				slog.String("event_id", ev.ID),
				slog.String("error", err.Error()),
			)
		}
	}
	if s.stream != nil {
		if err := s.stream.StreamAppend(ctx, EventStreamName, payload); err != nil {
			s.logger.WarnContext(ctx, "event stream append failed",
				slog.String("event_id", ev.ID),
				slog.String("error", err.Error()),
			)
		}
	}

	s.logger.InfoContext(ctx, "settlement event",
		slog.String("event_id", ev.ID),
		slog.String("kind", string(ev.Kind)),
	)
}
