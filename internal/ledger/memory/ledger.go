// Package memory implements the executing-ledger collaborators in process:
// native and token balances, allowances, asset ownership, the currency
// allow-list, roles, and a controllable clock. Calls are serialized under one
// mutex, matching the single-writer execution model the settlement components
// assume.
package memory

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/veilcraft/settlehouse/internal/domain"
)

// Ledger holds all collaborator state. The house address is the settlement
// service's own account: pulled tokens and attached native value accrue to
// it, and payouts draw from it.
type Ledger struct {
	mu    sync.Mutex
	now   uint64
	house common.Address

	native     map[common.Address]*big.Int
	tokens     map[common.Address]map[common.Address]*big.Int // token -> holder -> balance
	allowances map[common.Address]map[common.Address]*big.Int // token -> owner -> amount approved to house
	assets     map[common.Address]map[string]common.Address   // collection -> tokenID -> owner
	currencies map[common.Address]bool
	admins     map[common.Address]bool
}

// New creates an empty ledger whose escrow account is house.
func New(house common.Address) *Ledger {
	return &Ledger{
		house:      house,
		native:     make(map[common.Address]*big.Int),
		tokens:     make(map[common.Address]map[common.Address]*big.Int),
		allowances: make(map[common.Address]map[common.Address]*big.Int),
		assets:     make(map[common.Address]map[string]common.Address),
		currencies: make(map[common.Address]bool),
		admins:     make(map[common.Address]bool),
	}
}

// House returns the escrow account address.
func (l *Ledger) House() common.Address {
	return l.house
}

// --------------------------------------------------------------------------
// Clock (domain.TimeSource)
// --------------------------------------------------------------------------

// Now returns the current ledger time in unix seconds.
func (l *Ledger) Now() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.now
}

// SetNow sets ledger time. Time never runs backwards in a real ledger, but
// tests may set it freely.
func (l *Ledger) SetNow(t uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.now = t
}

// --------------------------------------------------------------------------
// Native balances (domain.ValueLedger, incoming side)
// --------------------------------------------------------------------------

// Mint credits native balance out of thin air. Test and seed helper.
func (l *Ledger) Mint(addr common.Address, amount *big.Int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.credit(l.native, addr, amount)
}

// BalanceOf returns the native balance of addr.
func (l *Ledger) BalanceOf(addr common.Address) *big.Int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return cloneAmount(l.native[addr])
}

// PayNativeIn moves attached call value from the caller to the house. It is
// how "msg.value" reaches escrow before a settlement component runs.
func (l *Ledger) PayNativeIn(from common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() == 0 {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.debit(l.native, from, amount); err != nil {
		return fmt.Errorf("ledger: native deposit from %s: %w", from, err)
	}
	l.credit(l.native, l.house, amount)
	return nil
}

// TransferNative pays out native value held by the house.
func (l *Ledger) TransferNative(ctx context.Context, to common.Address, amount *big.Int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.debit(l.native, l.house, amount); err != nil {
		return fmt.Errorf("ledger: native payout to %s: %w", to, err)
	}
	l.credit(l.native, to, amount)
	return nil
}

// --------------------------------------------------------------------------
// Token balances (domain.ValueLedger, token side)
// --------------------------------------------------------------------------

// MintToken credits a token balance. Test and seed helper.
func (l *Ledger) MintToken(token, addr common.Address, amount *big.Int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.credit(l.tokenBalances(token), addr, amount)
}

// TokenBalanceOf returns addr's balance of token.
func (l *Ledger) TokenBalanceOf(token, addr common.Address) *big.Int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return cloneAmount(l.tokens[token][addr])
}

// Approve grants the house an allowance over owner's token balance.
func (l *Ledger) Approve(token, owner common.Address, amount *big.Int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	byOwner, ok := l.allowances[token]
	if !ok {
		byOwner = make(map[common.Address]*big.Int)
		l.allowances[token] = byOwner
	}
	byOwner[owner] = cloneAmount(amount)
}

// PullToken consumes allowance and moves amount from the owner to the house.
func (l *Ledger) PullToken(ctx context.Context, token, from common.Address, amount *big.Int) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	allowance := l.allowances[token][from]
	if allowance == nil || allowance.Cmp(amount) < 0 {
		return fmt.Errorf("ledger: allowance of %s for token %s: %w", from, token, domain.ErrInsufficient)
	}
	if err := l.debit(l.tokenBalances(token), from, amount); err != nil {
		return fmt.Errorf("ledger: token pull from %s: %w", from, err)
	}
	allowance.Sub(allowance, amount)
	l.credit(l.tokenBalances(token), l.house, amount)
	return nil
}

// PayToken pays out tokens held by the house.
func (l *Ledger) PayToken(ctx context.Context, token, to common.Address, amount *big.Int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.debit(l.tokenBalances(token), l.house, amount); err != nil {
		return fmt.Errorf("ledger: token payout to %s: %w", to, err)
	}
	l.credit(l.tokenBalances(token), to, amount)
	return nil
}

// --------------------------------------------------------------------------
// Asset ownership (domain.AssetRegistry)
// --------------------------------------------------------------------------

// MintAsset assigns a fresh asset to owner. Test and seed helper.
func (l *Ledger) MintAsset(collection common.Address, tokenID *big.Int, owner common.Address) {
	l.mu.Lock()
	defer l.mu.Unlock()
	byID, ok := l.assets[collection]
	if !ok {
		byID = make(map[string]common.Address)
		l.assets[collection] = byID
	}
	byID[tokenID.String()] = owner
}

// OwnerOf returns the current owner of the asset.
func (l *Ledger) OwnerOf(ctx context.Context, collection common.Address, tokenID *big.Int) (common.Address, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	owner, ok := l.assets[collection][tokenID.String()]
	if !ok {
		return common.Address{}, fmt.Errorf("ledger: asset %s/%s: %w", collection, tokenID, domain.ErrNotFound)
	}
	return owner, nil
}

// TransferAsset moves the asset from its current owner, which must be from.
func (l *Ledger) TransferAsset(ctx context.Context, collection common.Address, from, to common.Address, tokenID *big.Int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	byID := l.assets[collection]
	owner, ok := byID[tokenID.String()]
	if !ok {
		return fmt.Errorf("ledger: asset %s/%s: %w", collection, tokenID, domain.ErrNotFound)
	}
	if owner != from {
		return fmt.Errorf("ledger: asset %s/%s owned by %s, not %s", collection, tokenID, owner, from)
	}
	byID[tokenID.String()] = to
	return nil
}

// --------------------------------------------------------------------------
// Currency allow-list (domain.CurrencyRegistry)
// --------------------------------------------------------------------------

// CurrencyAllowed reports whether currency is on the allow-list.
func (l *Ledger) CurrencyAllowed(ctx context.Context, currency common.Address) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.currencies[currency], nil
}

// SetCurrencyAllowed updates the allow-list.
func (l *Ledger) SetCurrencyAllowed(ctx context.Context, currency common.Address, allowed bool) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.currencies[currency] = allowed
	return nil
}

// --------------------------------------------------------------------------
// Roles (domain.RoleRegistry)
// --------------------------------------------------------------------------

// IsAdmin reports whether account holds the admin role.
func (l *Ledger) IsAdmin(ctx context.Context, account common.Address) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.admins[account], nil
}

// SetAdmin grants or revokes the admin role.
func (l *Ledger) SetAdmin(account common.Address, admin bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.admins[account] = admin
}

// --------------------------------------------------------------------------
// Internal helpers (callers hold l.mu)
// --------------------------------------------------------------------------

func (l *Ledger) tokenBalances(token common.Address) map[common.Address]*big.Int {
	byHolder, ok := l.tokens[token]
	if !ok {
		byHolder = make(map[common.Address]*big.Int)
		l.tokens[token] = byHolder
	}
	return byHolder
}

func (l *Ledger) credit(balances map[common.Address]*big.Int, addr common.Address, amount *big.Int) {
	if amount == nil || amount.Sign() == 0 {
		return
	}
	bal, ok := balances[addr]
	if !ok {
		bal = new(big.Int)
		balances[addr] = bal
	}
	bal.Add(bal, amount)
}

func (l *Ledger) debit(balances map[common.Address]*big.Int, addr common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() == 0 {
		return nil
	}
	bal := balances[addr]
	if bal == nil || bal.Cmp(amount) < 0 {
		return domain.ErrInsufficient
	}
	bal.Sub(bal, amount)
	return nil
}

func cloneAmount(n *big.Int) *big.Int {
	if n == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(n)
}
