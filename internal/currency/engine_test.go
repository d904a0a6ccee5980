package currency

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veilcraft/settlehouse/internal/domain"
	"github.com/veilcraft/settlehouse/internal/ledger/memory"
)

var (
	house = common.HexToAddress("0x1000")
	payer = common.HexToAddress("0x2000")
	alice = common.HexToAddress("0x3000")
	bob   = common.HexToAddress("0x4000")
	token = common.HexToAddress("0x5000")
)

func TestVerifyNativeValue(t *testing.T) {
	e := NewEngine(memory.New(house))

	s := Settlement{
		Currency:      Native,
		Payer:         payer,
		ExpectedTotal: big.NewInt(100),
		ValueReceived: big.NewInt(100),
		Legs:          []Leg{{To: alice, Amount: big.NewInt(100)}},
	}
	assert.NoError(t, e.Verify(s))

	s.ValueReceived = big.NewInt(99)
	assert.ErrorIs(t, e.Verify(s), domain.ErrIncorrectNativeValue)

	s.ValueReceived = big.NewInt(101)
	assert.ErrorIs(t, e.Verify(s), domain.ErrIncorrectNativeValue)
}

func TestVerifyTokenRejectsAttachedValue(t *testing.T) {
	e := NewEngine(memory.New(house))

	s := Settlement{
		Currency:      token,
		Payer:         payer,
		ExpectedTotal: big.NewInt(100),
		ValueReceived: big.NewInt(1),
		Legs:          []Leg{{To: alice, Amount: big.NewInt(100)}},
	}
	assert.ErrorIs(t, e.Verify(s), domain.ErrUnexpectedNativeValue)

	s.ValueReceived = nil
	assert.NoError(t, e.Verify(s))
}

func TestVerifyLegsTotal(t *testing.T) {
	e := NewEngine(memory.New(house))

	s := Settlement{
		Currency:      Native,
		ExpectedTotal: big.NewInt(100),
		ValueReceived: big.NewInt(100),
		Legs: []Leg{
			{To: alice, Amount: big.NewInt(60)},
			{To: bob, Amount: big.NewInt(39)},
		},
	}
	assert.ErrorIs(t, e.Verify(s), domain.ErrIncorrectTotalAmount)

	s.Legs = append(s.Legs, Leg{To: bob, Amount: big.NewInt(1)})
	assert.NoError(t, e.Verify(s))
}

func TestSettleNative(t *testing.T) {
	ctx := context.Background()
	l := memory.New(house)
	e := NewEngine(l)

	// Attached value is already in escrow by the time the engine runs.
	l.Mint(house, big.NewInt(100))

	err := e.Settle(ctx, Settlement{
		Currency:      Native,
		Payer:         payer,
		ExpectedTotal: big.NewInt(100),
		ValueReceived: big.NewInt(100),
		Legs: []Leg{
			{To: alice, Amount: big.NewInt(70)},
			{To: bob, Amount: big.NewInt(0)}, // zero leg is a no-op
			{To: bob, Amount: big.NewInt(30)},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, big.NewInt(70), l.BalanceOf(alice))
	assert.Equal(t, big.NewInt(30), l.BalanceOf(bob))
	assert.Equal(t, big.NewInt(0), l.BalanceOf(house))
}

func TestSettleTokenPullsFromPayer(t *testing.T) {
	ctx := context.Background()
	l := memory.New(house)
	e := NewEngine(l)

	l.MintToken(token, payer, big.NewInt(500))
	l.Approve(token, payer, big.NewInt(500))

	err := e.Settle(ctx, Settlement{
		Currency:      token,
		Payer:         payer,
		ExpectedTotal: big.NewInt(120),
		Legs: []Leg{
			{To: alice, Amount: big.NewInt(100)},
			{To: bob, Amount: big.NewInt(20)},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, big.NewInt(380), l.TokenBalanceOf(token, payer))
	assert.Equal(t, big.NewInt(100), l.TokenBalanceOf(token, alice))
	assert.Equal(t, big.NewInt(20), l.TokenBalanceOf(token, bob))
	assert.Equal(t, big.NewInt(0), l.TokenBalanceOf(token, house))
}

func TestDisperseRejectsNegativeLeg(t *testing.T) {
	ctx := context.Background()
	l := memory.New(house)
	e := NewEngine(l)

	// A negative leg would credit the house bucket instead of paying out.
	err := e.Disperse(ctx, token, []Leg{
		{To: alice, Amount: big.NewInt(100)},
		{To: bob, Amount: big.NewInt(-40)},
	})
	assert.ErrorIs(t, err, domain.ErrNegativeAmount)
}

func TestSettleTokenInsufficientAllowance(t *testing.T) {
	ctx := context.Background()
	l := memory.New(house)
	e := NewEngine(l)

	l.MintToken(token, payer, big.NewInt(500))
	l.Approve(token, payer, big.NewInt(50))

	err := e.Settle(ctx, Settlement{
		Currency:      token,
		Payer:         payer,
		ExpectedTotal: big.NewInt(120),
		Legs:          []Leg{{To: alice, Amount: big.NewInt(120)}},
	})
	require.ErrorIs(t, err, domain.ErrInsufficient)

	// Nothing moved.
	assert.Equal(t, big.NewInt(500), l.TokenBalanceOf(token, payer))
	assert.Equal(t, big.NewInt(0), l.TokenBalanceOf(token, alice))
}
