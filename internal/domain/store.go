package domain

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
)

// ListOpts provides pagination for list queries.
type ListOpts struct {
	Limit  int
	Offset int
}

// InvalidatedOrderStore persists the (maker, orderHash) replay-protection
// map. The flag is monotonic: it only ever moves from clear to set, and it
// persists for the lifetime of the deployment.
type InvalidatedOrderStore interface {
	IsInvalidated(ctx context.Context, maker common.Address, orderHash common.Hash) (bool, error)
	Invalidate(ctx context.Context, maker common.Address, orderHash common.Hash) error
}

// AuctionStore persists auctions. Create assigns the next monotonically
// increasing id; ids are never reused.
type AuctionStore interface {
	Create(ctx context.Context, a Auction) (uint64, error)
	Get(ctx context.Context, id uint64) (Auction, error)
	Update(ctx context.Context, a Auction) error
	List(ctx context.Context, opts ListOpts) ([]Auction, error)
}

// EventStore is the append-only settlement event log.
type EventStore interface {
	Append(ctx context.Context, ev SettlementEvent) error
	List(ctx context.Context, opts ListOpts) ([]SettlementEvent, error)
}
