// Package currency moves settlement value denominated either in the native
// asset or in a fungible-token currency, enforcing exact-amount invariants
// before any funds move.
package currency

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/veilcraft/settlehouse/internal/domain"
)

// Native is the currency address denoting the chain's base asset, which is
// transferred by value rather than by balance-table entry.
var Native = common.Address{}

// IsNative reports whether currency denotes the native asset.
func IsNative(currency common.Address) bool {
	return currency == Native
}

// Leg is a single outgoing transfer of a settlement.
type Leg struct {
	To     common.Address
	Amount *big.Int
}

// Settlement describes one complete value movement: the expected incoming
// total from the payer and the outgoing legs it funds.
type Settlement struct {
	Currency      common.Address
	Payer         common.Address
	ExpectedTotal *big.Int
	// ValueReceived is the native value attached to the call. It must equal
	// ExpectedTotal for native settlements and be zero for token ones.
	ValueReceived *big.Int
	Legs          []Leg
}

// Engine executes settlements against the value ledger.
type Engine struct {
	ledger domain.ValueLedger
}

// NewEngine creates a currency transfer engine on top of the given ledger.
func NewEngine(ledger domain.ValueLedger) *Engine {
	return &Engine{ledger: ledger}
}

// Verify checks every value invariant of s without moving funds: the
// received-value rule for the currency kind and that the legs sum to the
// expected total. Components call it before committing any state.
func (e *Engine) Verify(s Settlement) error {
	received := amountOrZero(s.ValueReceived)
	expected := amountOrZero(s.ExpectedTotal)

	if IsNative(s.Currency) {
		if received.Cmp(expected) != 0 {
			return fmt.Errorf("%w: got %s, want %s", domain.ErrIncorrectNativeValue, received, expected)
		}
	} else if received.Sign() != 0 {
		return fmt.Errorf("%w: got %s", domain.ErrUnexpectedNativeValue, received)
	}

	if total := LegsTotal(s.Legs); total.Cmp(expected) != 0 {
		return fmt.Errorf("%w: legs sum %s, want %s", domain.ErrIncorrectTotalAmount, total, expected)
	}
	return nil
}

// Collect pulls the expected total from the payer for token settlements via
// the allowance mechanism. Native value arrived with the call, so collecting
// it is a no-op. Collect is the last fallible transfer in a settlement; after
// it succeeds the caller commits state and disperses.
func (e *Engine) Collect(ctx context.Context, s Settlement) error {
	if IsNative(s.Currency) {
		return nil
	}
	expected := amountOrZero(s.ExpectedTotal)
	if expected.Sign() == 0 {
		return nil
	}
	if err := e.ledger.PullToken(ctx, s.Currency, s.Payer, expected); err != nil {
		return fmt.Errorf("currency: pulling %s from %s: %w", expected, s.Payer, err)
	}
	return nil
}

// Disperse pays each leg to its recipient. A zero-amount leg is a no-op, not
// an error; a negative leg is rejected, since paying it would pull value from
// the recipient instead. Callers must have verified and collected first.
func (e *Engine) Disperse(ctx context.Context, currency common.Address, legs []Leg) error {
	// Reject before paying anything, so a bad leg never leaves a partial
	// payout behind.
	for _, leg := range legs {
		if leg.Amount != nil && leg.Amount.Sign() < 0 {
			return fmt.Errorf("%w: %s to %s", domain.ErrNegativeAmount, leg.Amount, leg.To)
		}
	}
	for _, leg := range legs {
		amount := amountOrZero(leg.Amount)
		if amount.Sign() == 0 {
			continue
		}
		var err error
		if IsNative(currency) {
			err = e.ledger.TransferNative(ctx, leg.To, amount)
		} else {
			err = e.ledger.PayToken(ctx, currency, leg.To, amount)
		}
		if err != nil {
			return fmt.Errorf("currency: paying %s to %s: %w", amount, leg.To, err)
		}
	}
	return nil
}

// Settle runs the full sequence for callers with no state to commit between
// the pull and the payouts: Verify, Collect, Disperse.
func (e *Engine) Settle(ctx context.Context, s Settlement) error {
	if err := e.Verify(s); err != nil {
		return err
	}
	if err := e.Collect(ctx, s); err != nil {
		return err
	}
	return e.Disperse(ctx, s.Currency, s.Legs)
}

// LegsTotal sums the leg amounts.
func LegsTotal(legs []Leg) *big.Int {
	total := new(big.Int)
	for _, leg := range legs {
		if leg.Amount != nil {
			total.Add(total, leg.Amount)
		}
	}
	return total
}

func amountOrZero(n *big.Int) *big.Int {
	if n == nil {
		return new(big.Int)
	}
	return n
}
