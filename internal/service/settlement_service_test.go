package service

import (
	"context"
	"errors"
	"log/slog"
	"math/big"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veilcraft/settlehouse/internal/auction"
	"github.com/veilcraft/settlehouse/internal/crypto"
	"github.com/veilcraft/settlehouse/internal/currency"
	"github.com/veilcraft/settlehouse/internal/domain"
	ledgermem "github.com/veilcraft/settlehouse/internal/ledger/memory"
	"github.com/veilcraft/settlehouse/internal/market"
	storemem "github.com/veilcraft/settlehouse/internal/store/memory"
)

const (
	sellerKey = "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"
	signerKey = "8da4ef21b864d2cc526dbdb2a120bd2874c36c9d0a1fb7f8c63d7f7a8b41de8f"
)

var (
	house      = common.HexToAddress("0x1000")
	platform   = common.HexToAddress("0x1002")
	bidder     = common.HexToAddress("0x2000")
	collection = common.HexToAddress("0x5000")
)

// busSpy records published payloads.
type busSpy struct {
	published [][]byte
}

func (b *busSpy) Publish(_ context.Context, _ string, payload []byte) error {
	b.published = append(b.published, payload)
	return nil
}

func (b *busSpy) Subscribe(context.Context, string) (<-chan []byte, error) {
	return nil, nil
}

type fixture struct {
	ctx     context.Context
	ledger  *ledgermem.Ledger
	svc     *SettlementService
	events  *storemem.EventStore
	bus     *busSpy
	seller  *crypto.Signer
	trusted *crypto.Signer
	domain  crypto.Domain
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	seller, err := crypto.NewSigner(sellerKey)
	require.NoError(t, err)
	trusted, err := crypto.NewSigner(signerKey)
	require.NoError(t, err)

	ledger := ledgermem.New(house)
	ledger.SetNow(1_000_000)

	dom := crypto.Domain{Name: "SettleHouse", Version: "1", ChainID: 1337, VerifyingContract: house}
	engine := currency.NewEngine(ledger)
	logger := slog.Default()

	mkt := market.New(
		market.Config{Domain: dom, TrustedSigner: trusted.Address(), FeeRecipient: platform},
		storemem.NewInvalidatedOrderStore(),
		ledger, ledger, ledger,
		engine, ledger, logger,
	)
	h := auction.New(
		auction.Config{Domain: dom, TrustedSigner: trusted.Address(), Collection: collection, Platform: platform},
		house,
		storemem.NewAuctionStore(),
		ledger, engine, ledger, logger,
	)

	events := storemem.NewEventStore()
	bus := &busSpy{}
	svc := NewSettlementService(mkt, h, ledger, ledger, events, bus, nil, ledger, logger)

	return &fixture{
		ctx:     context.Background(),
		ledger:  ledger,
		svc:     svc,
		events:  events,
		bus:     bus,
		seller:  seller,
		trusted: trusted,
		domain:  dom,
	}
}

func (f *fixture) createAuction(t *testing.T) domain.Auction {
	t.Helper()
	p := domain.AuctionPermit{
		TokenID:      big.NewInt(7),
		Seller:       f.seller.Address(),
		Price:        big.NewInt(1_000),
		Step:         big.NewInt(100),
		Penalty:      big.NewInt(50),
		StartTime:    1_000_100,
		EndTime:      1_000_900,
		Participants: []common.Address{platform, f.seller.Address()},
		Shares:       []*big.Int{big.NewInt(1_000), big.NewInt(9_000)},
		Deadline:     1_000_050,
	}
	f.ledger.MintAsset(collection, p.TokenID, f.seller.Address())

	sep := f.domain.Separator()
	hash := crypto.HashAuctionPermit(p)
	sellerSig, err := f.seller.SignHash(sep, hash)
	require.NoError(t, err)
	signerSig, err := f.trusted.SignHash(sep, hash)
	require.NoError(t, err)

	a, err := f.svc.CreateAuction(f.ctx, auction.CreateRequest{
		Permit:          p,
		SellerSignature: sellerSig,
		SignerSignature: signerSig,
		DepositTokenID:  p.TokenID,
	})
	require.NoError(t, err)
	return a
}

func (f *fixture) raiseRequest(t *testing.T, auctionID uint64, price, fee int64) auction.RaiseRequest {
	t.Helper()
	permit := domain.AuctionRaisePermit{
		AuctionID: auctionID,
		Price:     big.NewInt(price),
		Fee:       big.NewInt(fee),
		Deadline:  1_000_800,
	}
	sig, err := f.trusted.SignHash(f.domain.Separator(), crypto.HashAuctionRaisePermit(permit))
	require.NoError(t, err)
	return auction.RaiseRequest{
		AuctionID:     auctionID,
		Permit:        permit,
		Signature:     sig,
		Caller:        bidder,
		ValueReceived: big.NewInt(price + fee),
	}
}

// signedAsk builds a maker-signed ask order with a matching trusted permit,
// payable in the given currency by the bidder.
func (f *fixture) signedAsk(t *testing.T, cur common.Address) market.ExecuteRequest {
	t.Helper()
	order := domain.Order{
		Side:       domain.OrderSideAsk,
		Collection: collection,
		Currency:   cur,
		Maker:      f.seller.Address(),
		TokenID:    big.NewInt(42),
		Price:      big.NewInt(10_000_000_000),
		MakerFee:   big.NewInt(100_000_000),
		StartTime:  999_000,
		EndTime:    1_001_000,
	}
	permit := domain.ExecutionPermit{
		OrderHash: crypto.HashOrder(order),
		Taker:     bidder,
		TakerFee:  big.NewInt(100_000_000),
		Deadline:  1_000_500,
	}
	sep := f.domain.Separator()
	orderSig, err := f.seller.SignHash(sep, crypto.HashOrder(order))
	require.NoError(t, err)
	permitSig, err := f.trusted.SignHash(sep, crypto.HashExecutionPermit(permit))
	require.NoError(t, err)
	return market.ExecuteRequest{
		Order:           order,
		Permit:          permit,
		OrderSignature:  orderSig,
		PermitSignature: permitSig,
		Caller:          bidder,
	}
}

func TestConcurrentExecuteAskSettlesOnce(t *testing.T) {
	f := newFixture(t)
	token := common.HexToAddress("0x4000")
	require.NoError(t, f.ledger.SetCurrencyAllowed(f.ctx, token, true))

	req := f.signedAsk(t, token)
	f.ledger.MintAsset(collection, req.Order.TokenID, f.seller.Address())

	// Fund the taker for two settlements so a replayed execution would not
	// fail on balance alone.
	cost := big.NewInt(10_100_000_000) // price + takerFee
	f.ledger.MintToken(token, bidder, new(big.Int).Mul(cost, big.NewInt(2)))
	f.ledger.Approve(token, bidder, new(big.Int).Mul(cost, big.NewInt(2)))

	errs := make(chan error, 2)
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.ExecuteAsk(f.ctx, req)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	var settled, replayed int
	for err := range errs {
		switch {
		case err == nil:
			settled++
		case errors.Is(err, domain.ErrOrderInvalidated):
			replayed++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, settled)
	assert.Equal(t, 1, replayed)

	// Funds moved exactly once: the taker paid price + takerFee once, the
	// maker was paid once, the fee bucket was credited once.
	assert.Equal(t, cost, f.ledger.TokenBalanceOf(token, bidder))
	assert.Equal(t, big.NewInt(10_000_000_000), f.ledger.TokenBalanceOf(token, f.seller.Address()))
	assert.Equal(t, big.NewInt(100_000_000), f.ledger.TokenBalanceOf(token, platform))
}

func TestAuctionLifecycleEmitsEvents(t *testing.T) {
	f := newFixture(t)

	a := f.createAuction(t)
	f.ledger.SetNow(1_000_100)

	f.ledger.Mint(bidder, big.NewInt(1_025))
	_, err := f.svc.RaiseAuction(f.ctx, f.raiseRequest(t, a.ID, 1_000, 25))
	require.NoError(t, err)

	f.ledger.SetNow(1_000_901)
	resolved, err := f.svc.TakeAuction(f.ctx, auction.ResolveRequest{AuctionID: a.ID, Caller: bidder})
	require.NoError(t, err)
	assert.True(t, resolved.Completed)

	events, err := f.events.List(f.ctx, domain.ListOpts{})
	require.NoError(t, err)
	require.Len(t, events, 3)

	kinds := make([]domain.EventKind, len(events))
	for i, ev := range events {
		kinds[i] = ev.Kind
		assert.NotEmpty(t, ev.ID)
		assert.NotZero(t, ev.LedgerTime)
	}
	assert.Contains(t, kinds, domain.EventAuctionCreated)
	assert.Contains(t, kinds, domain.EventAuctionRaised)
	assert.Contains(t, kinds, domain.EventAuctionCompleted)

	// One bus publish per event.
	assert.Len(t, f.bus.published, 3)
}

func TestRaiseEscrowsAndRefundsOnRejection(t *testing.T) {
	f := newFixture(t)
	a := f.createAuction(t)
	f.ledger.SetNow(1_000_100)

	// Below asking price: the payment must come back to the bidder.
	f.ledger.Mint(bidder, big.NewInt(1_024))
	req := f.raiseRequest(t, a.ID, 999, 25)
	_, err := f.svc.RaiseAuction(f.ctx, req)
	require.ErrorIs(t, err, domain.ErrRaiseTooSmall)
	assert.Equal(t, big.NewInt(1_024), f.ledger.BalanceOf(bidder))

	// No event was emitted for the failed raise.
	events, err := f.events.List(f.ctx, domain.ListOpts{})
	require.NoError(t, err)
	assert.Len(t, events, 1) // only auction_created
}

func TestRaiseDispatchesToOutbid(t *testing.T) {
	f := newFixture(t)
	a := f.createAuction(t)
	f.ledger.SetNow(1_000_100)

	f.ledger.Mint(bidder, big.NewInt(1_025))
	_, err := f.svc.RaiseAuction(f.ctx, f.raiseRequest(t, a.ID, 1_000, 25))
	require.NoError(t, err)

	// Same entry point, now with a standing buyer: the step applies.
	other := common.HexToAddress("0x2001")
	req := f.raiseRequest(t, a.ID, 1_099, 25)
	req.Caller = other
	f.ledger.Mint(other, big.NewInt(1_124))
	_, err = f.svc.RaiseAuction(f.ctx, req)
	assert.ErrorIs(t, err, domain.ErrRaiseTooSmall)

	req = f.raiseRequest(t, a.ID, 1_100, 25)
	req.Caller = other
	f.ledger.Mint(other, big.NewInt(1))
	updated, err := f.svc.RaiseAuction(f.ctx, req)
	require.NoError(t, err)
	assert.Equal(t, other, *updated.Buyer)

	// Previous bidder refunded in full.
	assert.Equal(t, big.NewInt(1_025), f.ledger.BalanceOf(bidder))
}

func TestInvalidateOrderEmitsEvent(t *testing.T) {
	f := newFixture(t)
	maker := f.seller.Address()
	orderHash := common.HexToHash("0xabc123")

	require.NoError(t, f.svc.InvalidateOrder(f.ctx, maker, maker, orderHash))

	invalidated, err := f.svc.IsInvalidated(f.ctx, maker, orderHash)
	require.NoError(t, err)
	assert.True(t, invalidated)

	events, err := f.events.List(f.ctx, domain.ListOpts{})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, domain.EventOrderInvalidated, events[0].Kind)
	require.NotNil(t, events[0].OrderHash)
	assert.Equal(t, orderHash, *events[0].OrderHash)
}

func TestSetCurrencyStatus(t *testing.T) {
	f := newFixture(t)
	admin := common.HexToAddress("0x9000")
	token := common.HexToAddress("0x6000")

	_, err := f.events.List(f.ctx, domain.ListOpts{})
	require.NoError(t, err)

	err = f.svc.SetCurrencyStatus(f.ctx, bidder, token, true)
	assert.ErrorIs(t, err, domain.ErrNotAdmin)

	f.ledger.SetAdmin(admin, true)
	require.NoError(t, f.svc.SetCurrencyStatus(f.ctx, admin, token, true))

	allowed, err := f.ledger.CurrencyAllowed(f.ctx, token)
	require.NoError(t, err)
	assert.True(t, allowed)

	events, err := f.events.List(f.ctx, domain.ListOpts{})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, domain.EventCurrencyStatusUpdated, events[0].Kind)
}
