package auction

import (
	"context"
	"log/slog"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veilcraft/settlehouse/internal/crypto"
	"github.com/veilcraft/settlehouse/internal/currency"
	"github.com/veilcraft/settlehouse/internal/domain"
	ledgermem "github.com/veilcraft/settlehouse/internal/ledger/memory"
	storemem "github.com/veilcraft/settlehouse/internal/store/memory"
)

const (
	sellerKey = "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"
	signerKey = "8da4ef21b864d2cc526dbdb2a120bd2874c36c9d0a1fb7f8c63d7f7a8b41de8f"
)

var (
	escrow     = common.HexToAddress("0x1000")
	platform   = common.HexToAddress("0x1002")
	charity    = common.HexToAddress("0x1003")
	bidder1    = common.HexToAddress("0x2000")
	bidder2    = common.HexToAddress("0x2001")
	outsider   = common.HexToAddress("0x2002")
	collection = common.HexToAddress("0x5000")
)

type fixture struct {
	ctx     context.Context
	ledger  *ledgermem.Ledger
	house   *House
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

	ledger := ledgermem.New(escrow)
	ledger.SetNow(1_000_000)

	dom := crypto.Domain{Name: "SettleHouse", Version: "1", ChainID: 1337, VerifyingContract: escrow}
	h := New(
		Config{Domain: dom, TrustedSigner: trusted.Address(), Collection: collection, Platform: platform},
		escrow,
		storemem.NewAuctionStore(),
		ledger,
		currency.NewEngine(ledger),
		ledger,
		slog.Default(),
	)

	return &fixture{
		ctx:     context.Background(),
		ledger:  ledger,
		house:   h,
		seller:  seller,
		trusted: trusted,
		domain:  dom,
	}
}

func (f *fixture) permit() domain.AuctionPermit {
	return domain.AuctionPermit{
		TokenID:      big.NewInt(7),
		Seller:       f.seller.Address(),
		Price:        big.NewInt(1_000),
		Step:         big.NewInt(100),
		Penalty:      big.NewInt(50),
		StartTime:    1_000_100,
		EndTime:      1_000_900,
		Participants: []common.Address{platform, f.seller.Address(), charity},
		Shares:       []*big.Int{big.NewInt(500), big.NewInt(9_000), big.NewInt(500)},
		Deadline:     1_000_050,
	}
}

func (f *fixture) createRequest(t *testing.T, p domain.AuctionPermit) CreateRequest {
	t.Helper()
	sep := f.domain.Separator()
	hash := crypto.HashAuctionPermit(p)
	sellerSig, err := f.seller.SignHash(sep, hash)
	require.NoError(t, err)
	signerSig, err := f.trusted.SignHash(sep, hash)
	require.NoError(t, err)
	return CreateRequest{
		Permit:          p,
		SellerSignature: sellerSig,
		SignerSignature: signerSig,
		DepositTokenID:  p.TokenID,
	}
}

// create mints the asset to the seller and opens the auction.
func (f *fixture) create(t *testing.T) domain.Auction {
	t.Helper()
	p := f.permit()
	f.ledger.MintAsset(collection, p.TokenID, f.seller.Address())
	a, err := f.house.Create(f.ctx, f.createRequest(t, p))
	require.NoError(t, err)
	return a
}

// bid signs a raise permit and funds escrow with the payment, the way the
// service layer moves attached value before invoking the house.
func (f *fixture) bid(t *testing.T, auctionID uint64, caller common.Address, price, fee int64) RaiseRequest {
	t.Helper()
	permit := domain.AuctionRaisePermit{
		AuctionID: auctionID,
		Price:     big.NewInt(price),
		Fee:       big.NewInt(fee),
		Deadline:  1_000_800,
	}
	sig, err := f.trusted.SignHash(f.domain.Separator(), crypto.HashAuctionRaisePermit(permit))
	require.NoError(t, err)

	payment := big.NewInt(price + fee)
	f.ledger.Mint(caller, payment)
	require.NoError(t, f.ledger.PayNativeIn(caller, payment))

	return RaiseRequest{
		AuctionID:     auctionID,
		Permit:        permit,
		Signature:     sig,
		Caller:        caller,
		ValueReceived: payment,
	}
}

func TestCreate(t *testing.T) {
	f := newFixture(t)
	a := f.create(t)

	assert.Equal(t, uint64(1), a.ID)
	assert.False(t, a.HasBuyer())
	assert.False(t, a.Completed)
	assert.Equal(t, big.NewInt(0), a.Fee)

	// Asset is escrowed at creation.
	owner, err := f.ledger.OwnerOf(f.ctx, collection, a.TokenID)
	require.NoError(t, err)
	assert.Equal(t, escrow, owner)

	// Ids increase monotonically.
	p := f.permit()
	p.TokenID = big.NewInt(8)
	f.ledger.MintAsset(collection, p.TokenID, f.seller.Address())
	b, err := f.house.Create(f.ctx, f.createRequest(t, p))
	require.NoError(t, err)
	assert.Equal(t, uint64(2), b.ID)
}

func TestCreateValidation(t *testing.T) {
	f := newFixture(t)

	t.Run("start not before end", func(t *testing.T) {
		p := f.permit()
		p.StartTime = p.EndTime
		_, err := f.house.Create(f.ctx, f.createRequest(t, p))
		assert.ErrorIs(t, err, domain.ErrInvalidStartTime)
	})

	t.Run("end not in the future", func(t *testing.T) {
		p := f.permit()
		p.StartTime = 900_000
		p.EndTime = 1_000_000
		_, err := f.house.Create(f.ctx, f.createRequest(t, p))
		assert.ErrorIs(t, err, domain.ErrInvalidEndTime)
	})

	t.Run("deposit token mismatch", func(t *testing.T) {
		p := f.permit()
		req := f.createRequest(t, p)
		req.DepositTokenID = big.NewInt(8)
		_, err := f.house.Create(f.ctx, req)
		assert.ErrorIs(t, err, domain.ErrWrongDepositData)
	})

	t.Run("bad share sum", func(t *testing.T) {
		p := f.permit()
		p.Shares = []*big.Int{big.NewInt(500), big.NewInt(9_000), big.NewInt(499)}
		_, err := f.house.Create(f.ctx, f.createRequest(t, p))
		assert.ErrorIs(t, err, domain.ErrInvalidSharesSum)
	})

	t.Run("share count mismatch", func(t *testing.T) {
		p := f.permit()
		p.Shares = p.Shares[:2]
		_, err := f.house.Create(f.ctx, f.createRequest(t, p))
		assert.ErrorIs(t, err, domain.ErrInvalidSharesCount)
	})

	t.Run("seller signature from someone else", func(t *testing.T) {
		p := f.permit()
		req := f.createRequest(t, p)
		req.SellerSignature = req.SignerSignature
		_, err := f.house.Create(f.ctx, req)
		assert.ErrorIs(t, err, domain.ErrUnauthorizedAction)
	})

	t.Run("expired permit", func(t *testing.T) {
		p := f.permit()
		p.Deadline = 999_999
		_, err := f.house.Create(f.ctx, f.createRequest(t, p))
		assert.ErrorIs(t, err, domain.ErrDeadlineExpired)
	})

	t.Run("seller does not own the asset", func(t *testing.T) {
		p := f.permit()
		p.TokenID = big.NewInt(99)
		req := f.createRequest(t, p)
		_, err := f.house.Create(f.ctx, req)
		assert.Error(t, err)
	})
}

func TestRaiseLifecycle(t *testing.T) {
	f := newFixture(t)
	a := f.create(t)

	t.Run("before start", func(t *testing.T) {
		_, err := f.house.Raise(f.ctx, f.bid(t, a.ID, bidder1, 1_000, 25))
		assert.ErrorIs(t, err, domain.ErrAuctionNotStarted)
	})

	f.ledger.SetNow(1_000_100)

	t.Run("below asking price", func(t *testing.T) {
		req := f.bid(t, a.ID, bidder1, 999, 25)
		_, err := f.house.Raise(f.ctx, req)
		assert.ErrorIs(t, err, domain.ErrRaiseTooSmall)
	})

	t.Run("payment short by one", func(t *testing.T) {
		req := f.bid(t, a.ID, bidder1, 1_000, 25)
		req.ValueReceived = big.NewInt(1_024)
		_, err := f.house.Raise(f.ctx, req)
		assert.ErrorIs(t, err, domain.ErrWrongPayment)
	})

	t.Run("initial raise at exactly the asking price", func(t *testing.T) {
		updated, err := f.house.Raise(f.ctx, f.bid(t, a.ID, bidder1, 1_000, 25))
		require.NoError(t, err)
		require.True(t, updated.HasBuyer())
		assert.Equal(t, bidder1, *updated.Buyer)
		assert.Equal(t, big.NewInt(1_000), updated.Price)
		assert.Equal(t, big.NewInt(25), updated.Fee)
	})

	t.Run("second initial raise rejected", func(t *testing.T) {
		_, err := f.house.Raise(f.ctx, f.bid(t, a.ID, bidder2, 1_200, 30))
		assert.ErrorIs(t, err, domain.ErrBuyerExists)
	})

	t.Run("outbid below price plus step", func(t *testing.T) {
		_, err := f.house.Outbid(f.ctx, f.bid(t, a.ID, bidder2, 1_099, 30))
		assert.ErrorIs(t, err, domain.ErrRaiseTooSmall)
	})

	t.Run("outbid refunds previous buyer in full", func(t *testing.T) {
		before := f.ledger.BalanceOf(bidder1)

		updated, err := f.house.Outbid(f.ctx, f.bid(t, a.ID, bidder2, 1_100, 30))
		require.NoError(t, err)
		assert.Equal(t, bidder2, *updated.Buyer)
		assert.Equal(t, big.NewInt(1_100), updated.Price)

		// bidder1 got back exactly oldPrice + oldFee.
		refund := new(big.Int).Sub(f.ledger.BalanceOf(bidder1), before)
		assert.Equal(t, big.NewInt(1_025), refund)
	})

	t.Run("raise after end", func(t *testing.T) {
		f.ledger.SetNow(1_000_901)
		_, err := f.house.Outbid(f.ctx, f.bid(t, a.ID, bidder1, 1_300, 30))
		assert.ErrorIs(t, err, domain.ErrAuctionEnded)
	})
}

func TestRaisePermitChecks(t *testing.T) {
	f := newFixture(t)
	a := f.create(t)
	f.ledger.SetNow(1_000_100)

	t.Run("permit bound to another auction", func(t *testing.T) {
		req := f.bid(t, a.ID, bidder1, 1_000, 25)
		req.AuctionID = a.ID
		req.Permit.AuctionID = a.ID + 1
		_, err := f.house.Raise(f.ctx, req)
		assert.ErrorIs(t, err, domain.ErrUnauthorizedAction)
	})

	t.Run("expired raise permit", func(t *testing.T) {
		f.ledger.SetNow(1_000_850)
		req := f.bid(t, a.ID, bidder1, 1_000, 25)
		_, err := f.house.Raise(f.ctx, req)
		assert.ErrorIs(t, err, domain.ErrDeadlineExpired)
	})

	t.Run("permit signed by an impostor", func(t *testing.T) {
		f.ledger.SetNow(1_000_100)
		req := f.bid(t, a.ID, bidder1, 1_000, 25)
		sig, err := f.seller.SignHash(f.domain.Separator(), crypto.HashAuctionRaisePermit(req.Permit))
		require.NoError(t, err)
		req.Signature = sig
		_, err = f.house.Raise(f.ctx, req)
		assert.ErrorIs(t, err, domain.ErrUnauthorizedAction)
	})

	t.Run("unknown auction", func(t *testing.T) {
		req := f.bid(t, 99, bidder1, 1_000, 25)
		_, err := f.house.Raise(f.ctx, req)
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})
}

func TestTake(t *testing.T) {
	f := newFixture(t)
	a := f.create(t)
	f.ledger.SetNow(1_000_100)

	_, err := f.house.Raise(f.ctx, f.bid(t, a.ID, bidder1, 10_001, 500))
	require.NoError(t, err)

	t.Run("before end", func(t *testing.T) {
		_, err := f.house.Take(f.ctx, ResolveRequest{AuctionID: a.ID, Caller: bidder1})
		assert.ErrorIs(t, err, domain.ErrAuctionNotEnded)
	})

	f.ledger.SetNow(1_000_901)

	t.Run("settles price, fee, and asset", func(t *testing.T) {
		updated, err := f.house.Take(f.ctx, ResolveRequest{AuctionID: a.ID, Caller: bidder1})
		require.NoError(t, err)
		assert.True(t, updated.Completed)

		// price 10,001 split 500/9000/500: platform floor(500.05)=500 plus
		// the 500 fee; seller floor(9000.9)=9000; charity (last) absorbs
		// the remainder 501. Escrow drains to zero.
		assert.Equal(t, big.NewInt(1_000), f.ledger.BalanceOf(platform))
		assert.Equal(t, big.NewInt(9_000), f.ledger.BalanceOf(f.seller.Address()))
		assert.Equal(t, big.NewInt(501), f.ledger.BalanceOf(charity))
		assert.Equal(t, big.NewInt(0), f.ledger.BalanceOf(escrow))

		owner, err := f.ledger.OwnerOf(f.ctx, collection, a.TokenID)
		require.NoError(t, err)
		assert.Equal(t, bidder1, owner)
	})

	t.Run("second take fails", func(t *testing.T) {
		_, err := f.house.Take(f.ctx, ResolveRequest{AuctionID: a.ID, Caller: bidder1})
		assert.ErrorIs(t, err, domain.ErrAuctionCompleted)
	})
}

func TestTakeWithoutBuyer(t *testing.T) {
	f := newFixture(t)
	a := f.create(t)
	f.ledger.SetNow(1_000_901)

	_, err := f.house.Take(f.ctx, ResolveRequest{AuctionID: a.ID, Caller: outsider})
	assert.ErrorIs(t, err, domain.ErrBuyerNotExists)
}

func TestBuy(t *testing.T) {
	f := newFixture(t)
	a := f.create(t)

	t.Run("before end", func(t *testing.T) {
		_, err := f.house.Buy(f.ctx, ResolveRequest{AuctionID: a.ID, Caller: bidder1, ValueReceived: big.NewInt(1_000)})
		assert.ErrorIs(t, err, domain.ErrAuctionNotEnded)
	})

	f.ledger.SetNow(1_000_901)

	t.Run("wrong payment", func(t *testing.T) {
		_, err := f.house.Buy(f.ctx, ResolveRequest{AuctionID: a.ID, Caller: bidder1, ValueReceived: big.NewInt(999)})
		assert.ErrorIs(t, err, domain.ErrWrongPayment)
	})

	t.Run("buys at asking price with no fee", func(t *testing.T) {
		payment := big.NewInt(1_000)
		f.ledger.Mint(bidder1, payment)
		require.NoError(t, f.ledger.PayNativeIn(bidder1, payment))

		updated, err := f.house.Buy(f.ctx, ResolveRequest{AuctionID: a.ID, Caller: bidder1, ValueReceived: payment})
		require.NoError(t, err)
		assert.True(t, updated.Completed)
		require.True(t, updated.HasBuyer())
		assert.Equal(t, bidder1, *updated.Buyer)

		// 1,000 split 500/9000/500 with remainder to the last participant.
		assert.Equal(t, big.NewInt(50), f.ledger.BalanceOf(platform))
		assert.Equal(t, big.NewInt(900), f.ledger.BalanceOf(f.seller.Address()))
		assert.Equal(t, big.NewInt(50), f.ledger.BalanceOf(charity))

		owner, err := f.ledger.OwnerOf(f.ctx, collection, a.TokenID)
		require.NoError(t, err)
		assert.Equal(t, bidder1, owner)
	})
}

func TestBuyWithBuyerSet(t *testing.T) {
	f := newFixture(t)
	a := f.create(t)
	f.ledger.SetNow(1_000_100)
	_, err := f.house.Raise(f.ctx, f.bid(t, a.ID, bidder1, 1_000, 0))
	require.NoError(t, err)

	f.ledger.SetNow(1_000_901)
	_, err = f.house.Buy(f.ctx, ResolveRequest{AuctionID: a.ID, Caller: bidder2, ValueReceived: big.NewInt(1_000)})
	assert.ErrorIs(t, err, domain.ErrBuyerExists)
}

func TestUnlock(t *testing.T) {
	f := newFixture(t)
	a := f.create(t)

	t.Run("before end", func(t *testing.T) {
		_, err := f.house.Unlock(f.ctx, ResolveRequest{AuctionID: a.ID, Caller: f.seller.Address(), ValueReceived: big.NewInt(50)})
		assert.ErrorIs(t, err, domain.ErrAuctionNotEnded)
	})

	f.ledger.SetNow(1_000_901)

	t.Run("wrong penalty payment", func(t *testing.T) {
		_, err := f.house.Unlock(f.ctx, ResolveRequest{AuctionID: a.ID, Caller: f.seller.Address(), ValueReceived: big.NewInt(49)})
		assert.ErrorIs(t, err, domain.ErrWrongPayment)
	})

	t.Run("returns asset against the penalty", func(t *testing.T) {
		penalty := big.NewInt(50)
		f.ledger.Mint(f.seller.Address(), penalty)
		require.NoError(t, f.ledger.PayNativeIn(f.seller.Address(), penalty))

		updated, err := f.house.Unlock(f.ctx, ResolveRequest{AuctionID: a.ID, Caller: f.seller.Address(), ValueReceived: penalty})
		require.NoError(t, err)
		assert.True(t, updated.Completed)
		assert.False(t, updated.HasBuyer())

		assert.Equal(t, big.NewInt(50), f.ledger.BalanceOf(platform))

		owner, err := f.ledger.OwnerOf(f.ctx, collection, a.TokenID)
		require.NoError(t, err)
		assert.Equal(t, f.seller.Address(), owner)
	})

	t.Run("unlock after completion fails", func(t *testing.T) {
		_, err := f.house.Unlock(f.ctx, ResolveRequest{AuctionID: a.ID, Caller: f.seller.Address(), ValueReceived: big.NewInt(50)})
		assert.ErrorIs(t, err, domain.ErrAuctionCompleted)
	})
}

func TestUnlockWithBuyerSet(t *testing.T) {
	f := newFixture(t)
	a := f.create(t)
	f.ledger.SetNow(1_000_100)
	_, err := f.house.Raise(f.ctx, f.bid(t, a.ID, bidder1, 1_000, 0))
	require.NoError(t, err)

	f.ledger.SetNow(1_000_901)
	_, err = f.house.Unlock(f.ctx, ResolveRequest{AuctionID: a.ID, Caller: f.seller.Address(), ValueReceived: big.NewInt(50)})
	assert.ErrorIs(t, err, domain.ErrBuyerExists)
}
