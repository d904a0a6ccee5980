package domain

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// EventKind names a settlement event.
type EventKind string

const (
	EventAskOrderExecuted      EventKind = "ask_order_executed"
	EventBidOrderExecuted      EventKind = "bid_order_executed"
	EventOrderInvalidated      EventKind = "order_invalidated"
	EventAuctionCreated        EventKind = "auction_created"
	EventAuctionRaised         EventKind = "auction_raised"
	EventAuctionCompleted      EventKind = "auction_completed"
	EventCurrencyStatusUpdated EventKind = "currency_status_updated"
)

// SettlementEvent is the observability record emitted after every successful
// state transition. It is appended to the event store, published on the event
// bus, and archived. Fields not relevant to a given kind are left zero.
type SettlementEvent struct {
	ID         string    `json:"id"`
	Kind       EventKind `json:"kind"`
	LedgerTime uint64    `json:"ledgerTime"`
	CreatedAt  time.Time `json:"createdAt"`

	Maker      *common.Address `json:"maker,omitempty"`
	Taker      *common.Address `json:"taker,omitempty"`
	OrderHash  *common.Hash    `json:"orderHash,omitempty"`
	Collection *common.Address `json:"collection,omitempty"`
	Currency   *common.Address `json:"currency,omitempty"`
	TokenID    *big.Int        `json:"tokenId,omitempty"`
	Price      *big.Int        `json:"price,omitempty"`

	AuctionID  uint64          `json:"auctionId,omitempty"`
	Seller     *common.Address `json:"seller,omitempty"`
	Buyer      *common.Address `json:"buyer,omitempty"`
	Fee        *big.Int        `json:"fee,omitempty"`
	Resolution ResolutionKind  `json:"resolution,omitempty"`

	Allowed *bool `json:"allowed,omitempty"`
}

// EventBus carries raw event payloads between the settlement service and its
// subscribers (websocket hub, archiver).
type EventBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
}

// StreamMessage is a single entry read back from the durable event stream.
type StreamMessage struct {
	ID      string
	Payload []byte
}

// EventStream is the durable, ordered event feed. Unlike the pub/sub bus it
// survives consumer restarts; the archiver reads it by last-seen id.
type EventStream interface {
	StreamAppend(ctx context.Context, stream string, payload []byte) error
	StreamRead(ctx context.Context, stream string, lastID string, count int) ([]StreamMessage, error)
}
