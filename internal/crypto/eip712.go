// Package crypto implements the EIP-712 typed-data encoding for the
// settlement permits, permit verification (signer recovery plus deadline
// enforcement), a signing helper for permit issuers, and encrypted key
// storage.
//
// The struct hashes computed here must match, bit for bit, the encoding used
// by external signers. Field order follows the canonical type strings below;
// dynamic arrays are hashed as keccak256 of the concatenation of their
// 32-byte-encoded elements.
package crypto

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"github.com/veilcraft/settlehouse/internal/domain"
)

// --------------------------------------------------------------------------
// EIP-712 type hashes (pre-computed keccak256 of the canonical type strings).
// --------------------------------------------------------------------------

var (
	// EIP712Domain(string name,string version,uint256 chainId,address verifyingContract)
	eip712DomainTypeHash = ethcrypto.Keccak256(
		[]byte("EIP712Domain(string name,string version,uint256 chainId,address verifyingContract)"),
	)

	// Order(uint8 side,address collection,address currency,address maker,uint256 tokenId,uint256 price,uint256 makerFee,uint256 startTime,uint256 endTime)
	orderTypeHash = ethcrypto.Keccak256(
		[]byte("Order(uint8 side,address collection,address currency,address maker,uint256 tokenId,uint256 price,uint256 makerFee,uint256 startTime,uint256 endTime)"),
	)

	// ExecutionPermit(bytes32 orderHash,address taker,uint256 takerFee,address[] participants,uint256[] rewards,uint256 deadline)
	executionPermitTypeHash = ethcrypto.Keccak256(
		[]byte("ExecutionPermit(bytes32 orderHash,address taker,uint256 takerFee,address[] participants,uint256[] rewards,uint256 deadline)"),
	)

	// AuctionPermit(uint256 tokenId,address seller,uint256 price,uint256 step,uint256 penalty,uint256 startTime,uint256 endTime,address[] participants,uint256[] shares,uint256 deadline)
	auctionPermitTypeHash = ethcrypto.Keccak256(
		[]byte("AuctionPermit(uint256 tokenId,address seller,uint256 price,uint256 step,uint256 penalty,uint256 startTime,uint256 endTime,address[] participants,uint256[] shares,uint256 deadline)"),
	)

	// AuctionRaisePermit(uint256 auctionId,uint256 price,uint256 fee,uint256 deadline)
	auctionRaisePermitTypeHash = ethcrypto.Keccak256(
		[]byte("AuctionRaisePermit(uint256 auctionId,uint256 price,uint256 fee,uint256 deadline)"),
	)
)

// Domain binds permit hashes to a deployment: same struct signed for a
// different market or chain recovers to a different digest.
type Domain struct {
	Name              string
	Version           string
	ChainID           int64
	VerifyingContract common.Address
}

// Separator returns the EIP-712 domain separator hash.
func (d Domain) Separator() []byte {
	return ethcrypto.Keccak256(
		concatBytes(
			eip712DomainTypeHash,
			ethcrypto.Keccak256([]byte(d.Name)),
			ethcrypto.Keccak256([]byte(d.Version)),
			bigIntTo32Bytes(big.NewInt(d.ChainID)),
			common.LeftPadBytes(d.VerifyingContract.Bytes(), 32),
		),
	)
}

// HashOrder returns the EIP-712 struct hash of a maker order. This hash is
// the order's identity everywhere: in the execution permit, in the
// invalidated-order map, and in events.
func HashOrder(o domain.Order) common.Hash {
	return common.BytesToHash(ethcrypto.Keccak256(
		concatBytes(
			orderTypeHash,
			bigIntTo32Bytes(big.NewInt(int64(o.Side))),
			common.LeftPadBytes(o.Collection.Bytes(), 32),
			common.LeftPadBytes(o.Currency.Bytes(), 32),
			common.LeftPadBytes(o.Maker.Bytes(), 32),
			bigIntTo32Bytes(o.TokenID),
			bigIntTo32Bytes(o.Price),
			bigIntTo32Bytes(o.MakerFee),
			uint64To32Bytes(o.StartTime),
			uint64To32Bytes(o.EndTime),
		),
	))
}

// HashExecutionPermit returns the EIP-712 struct hash of an execution permit.
func HashExecutionPermit(p domain.ExecutionPermit) common.Hash {
	return common.BytesToHash(ethcrypto.Keccak256(
		concatBytes(
			executionPermitTypeHash,
			p.OrderHash.Bytes(),
			common.LeftPadBytes(p.Taker.Bytes(), 32),
			bigIntTo32Bytes(p.TakerFee),
			hashAddressArray(p.Participants),
			hashUintArray(p.Rewards),
			uint64To32Bytes(p.Deadline),
		),
	))
}

// HashAuctionPermit returns the EIP-712 struct hash of an auction-creation
// permit.
func HashAuctionPermit(p domain.AuctionPermit) common.Hash {
	return common.BytesToHash(ethcrypto.Keccak256(
		concatBytes(
			auctionPermitTypeHash,
			bigIntTo32Bytes(p.TokenID),
			common.LeftPadBytes(p.Seller.Bytes(), 32),
			bigIntTo32Bytes(p.Price),
			bigIntTo32Bytes(p.Step),
			bigIntTo32Bytes(p.Penalty),
			uint64To32Bytes(p.StartTime),
			uint64To32Bytes(p.EndTime),
			hashAddressArray(p.Participants),
			hashUintArray(p.Shares),
			uint64To32Bytes(p.Deadline),
		),
	))
}

// HashAuctionRaisePermit returns the EIP-712 struct hash of a raise permit.
func HashAuctionRaisePermit(p domain.AuctionRaisePermit) common.Hash {
	return common.BytesToHash(ethcrypto.Keccak256(
		concatBytes(
			auctionRaisePermitTypeHash,
			uint64To32Bytes(p.AuctionID),
			bigIntTo32Bytes(p.Price),
			bigIntTo32Bytes(p.Fee),
			uint64To32Bytes(p.Deadline),
		),
	))
}

// Digest computes the final EIP-712 signing digest:
//
//	keccak256("\x19\x01" || domainSeparator || structHash)
func Digest(domainSep []byte, structHash common.Hash) []byte {
	return ethcrypto.Keccak256(
		concatBytes(
			[]byte{0x19, 0x01},
			domainSep,
			structHash.Bytes(),
		),
	)
}

// --------------------------------------------------------------------------
// Internal helpers
// --------------------------------------------------------------------------

// hashAddressArray encodes address[] per EIP-712: keccak256 of the
// concatenated left-padded elements. An empty array hashes to keccak256("").
func hashAddressArray(addrs []common.Address) []byte {
	buf := make([]byte, 0, len(addrs)*32)
	for _, a := range addrs {
		buf = append(buf, common.LeftPadBytes(a.Bytes(), 32)...)
	}
	return ethcrypto.Keccak256(buf)
}

// hashUintArray encodes uint256[] per EIP-712.
func hashUintArray(vals []*big.Int) []byte {
	buf := make([]byte, 0, len(vals)*32)
	for _, v := range vals {
		buf = append(buf, bigIntTo32Bytes(v)...)
	}
	return ethcrypto.Keccak256(buf)
}

// bigIntTo32Bytes returns a 32-byte big-endian representation of n.
// A nil value encodes as zero; a value wider than 256 bits wraps to its
// low-order 32 bytes, matching uint256 truncation.
func bigIntTo32Bytes(n *big.Int) []byte {
	if n == nil {
		return make([]byte, 32)
	}
	b := n.Bytes()
	if len(b) >= 32 {
		return b[len(b)-32:]
	}
	padded := make([]byte, 32)
	copy(padded[32-len(b):], b)
	return padded
}

// uint64To32Bytes returns a 32-byte big-endian representation of n.
func uint64To32Bytes(n uint64) []byte {
	return bigIntTo32Bytes(new(big.Int).SetUint64(n))
}

// concatBytes concatenates multiple byte slices into one.
func concatBytes(slices ...[]byte) []byte {
	total := 0
	for _, s := range slices {
		total += len(s)
	}
	buf := make([]byte, 0, total)
	for _, s := range slices {
		buf = append(buf, s...)
	}
	return buf
}
