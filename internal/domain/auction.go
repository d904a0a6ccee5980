package domain

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Auction is the persisted state of a single ascending-price auction.
// Lifecycle: created with no buyer, mutated by successive raises, immutable
// once past EndTime, and resolved exactly once by take, buy, or unlock.
// Auction ids are assigned monotonically and never reused.
type Auction struct {
	ID           uint64           `json:"id"`
	TokenID      *big.Int         `json:"tokenId"`
	Seller       common.Address   `json:"seller"`
	Buyer        *common.Address  `json:"buyer,omitempty"` // nil until the first raise
	Price        *big.Int         `json:"price"`
	Step         *big.Int         `json:"step"`
	Penalty      *big.Int         `json:"penalty"`
	Fee          *big.Int         `json:"fee"`
	StartTime    uint64           `json:"startTime"`
	EndTime      uint64           `json:"endTime"`
	Completed    bool             `json:"completed"`
	Participants []common.Address `json:"participants"`
	Shares       []*big.Int       `json:"shares"`
}

// HasBuyer reports whether any raise has been accepted.
func (a Auction) HasBuyer() bool {
	return a.Buyer != nil
}

// AuctionPermit is the seller-signed intent to open an auction, co-signed by
// the trusted auction signer. It accompanies the asset deposit.
type AuctionPermit struct {
	TokenID      *big.Int         `json:"tokenId"`
	Seller       common.Address   `json:"seller"`
	Price        *big.Int         `json:"price"`
	Step         *big.Int         `json:"step"`
	Penalty      *big.Int         `json:"penalty"`
	StartTime    uint64           `json:"startTime"`
	EndTime      uint64           `json:"endTime"`
	Participants []common.Address `json:"participants"`
	Shares       []*big.Int       `json:"shares"`
	Deadline     uint64           `json:"deadline"`
}

// AuctionRaisePermit authorizes a single raise: the trusted auction signer
// fixes the proposed price and the fee charged on top of it.
type AuctionRaisePermit struct {
	AuctionID uint64   `json:"auctionId"`
	Price     *big.Int `json:"price"`
	Fee       *big.Int `json:"fee"`
	Deadline  uint64   `json:"deadline"`
}

// ResolutionKind names the terminal transition that completed an auction.
type ResolutionKind string

const (
	ResolutionTake   ResolutionKind = "take"   // highest bidder claims the asset
	ResolutionBuy    ResolutionKind = "buy"    // direct purchase after expiry with no bids
	ResolutionUnlock ResolutionKind = "unlock" // seller reclaims the asset against the penalty
)
