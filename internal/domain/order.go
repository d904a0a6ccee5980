// Package domain defines the core types of the settlement protocol: signed
// orders and permits, auctions, settlement events, the error taxonomy, and
// the interfaces implemented by stores and by the executing ledger.
package domain

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// OrderSide indicates which side of the trade the maker signed.
type OrderSide uint8

const (
	OrderSideAsk OrderSide = 0 // maker sells the asset
	OrderSideBid OrderSide = 1 // maker buys the asset
)

// String returns the lowercase side name.
func (s OrderSide) String() string {
	switch s {
	case OrderSideAsk:
		return "ask"
	case OrderSideBid:
		return "bid"
	default:
		return "unknown"
	}
}

// Order is a maker-signed trading intent. It is never stored; its identity is
// the EIP-712 structural hash, and its existence is proven by a valid maker
// signature plus a clear invalidated flag.
type Order struct {
	Side       OrderSide      `json:"side"`
	Collection common.Address `json:"collection"`
	Currency   common.Address `json:"currency"`
	Maker      common.Address `json:"maker"`
	TokenID    *big.Int       `json:"tokenId"`
	Price      *big.Int       `json:"price"`
	MakerFee   *big.Int       `json:"makerFee"`
	StartTime  uint64         `json:"startTime"`
	EndTime    uint64         `json:"endTime"`
}

// ExecutionPermit is issued by the trusted market signer for a single order
// hash. It names the taker allowed to settle, the taker-side fee, and the
// reward legs carved out of the maker-side fee. One-time use: settling an
// order invalidates its hash.
type ExecutionPermit struct {
	OrderHash    common.Hash      `json:"orderHash"`
	Taker        common.Address   `json:"taker"`
	TakerFee     *big.Int         `json:"takerFee"`
	Participants []common.Address `json:"participants"`
	Rewards      []*big.Int       `json:"rewards"`
	Deadline     uint64           `json:"deadline"`
}
