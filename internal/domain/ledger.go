package domain

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// The interfaces below are the boundary to the executing ledger. The ledger
// guarantees atomic execution of each settlement call and total ordering
// across calls; the settlement components never lock.

// ValueLedger moves value on behalf of the settlement contract. Native
// transfers pay out value the contract already holds; token transfers are
// pull-based (allowance) into the contract and push-based out of it.
type ValueLedger interface {
	TransferNative(ctx context.Context, to common.Address, amount *big.Int) error
	PullToken(ctx context.Context, token, from common.Address, amount *big.Int) error
	PayToken(ctx context.Context, token, to common.Address, amount *big.Int) error
}

// AssetRegistry tracks ownership of the unique assets being settled.
type AssetRegistry interface {
	OwnerOf(ctx context.Context, collection common.Address, tokenID *big.Int) (common.Address, error)
	TransferAsset(ctx context.Context, collection common.Address, from, to common.Address, tokenID *big.Int) error
}

// CurrencyRegistry is the settlement currency allow-list.
type CurrencyRegistry interface {
	CurrencyAllowed(ctx context.Context, currency common.Address) (bool, error)
	SetCurrencyAllowed(ctx context.Context, currency common.Address, allowed bool) error
}

// RoleRegistry answers admin checks for privileged operations
// (invalidateOrder on behalf of a maker, currency status updates).
type RoleRegistry interface {
	IsAdmin(ctx context.Context, account common.Address) (bool, error)
}

// TimeSource supplies ledger/consensus time as unix seconds. Deadline checks
// compare against this, never against wall-clock time at signing.
type TimeSource interface {
	Now() uint64
}
