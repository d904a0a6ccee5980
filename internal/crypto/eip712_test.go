package crypto

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veilcraft/settlehouse/internal/domain"
)

var testDomain = Domain{
	Name:              "SettleHouse",
	Version:           "1",
	ChainID:           1337,
	VerifyingContract: common.HexToAddress("0x00000000000000000000000000000000000000aa"),
}

func testOrder() domain.Order {
	return domain.Order{
		Side:       domain.OrderSideAsk,
		Collection: common.HexToAddress("0x01"),
		Currency:   common.HexToAddress("0x02"),
		Maker:      common.HexToAddress("0x03"),
		TokenID:    big.NewInt(7),
		Price:      big.NewInt(1_000_000),
		MakerFee:   big.NewInt(10_000),
		StartTime:  100,
		EndTime:    200,
	}
}

func TestHashOrderDeterministic(t *testing.T) {
	a := HashOrder(testOrder())
	b := HashOrder(testOrder())
	assert.Equal(t, a, b)
}

func TestHashOrderSensitiveToEveryField(t *testing.T) {
	base := HashOrder(testOrder())

	mutations := map[string]func(*domain.Order){
		"side":       func(o *domain.Order) { o.Side = domain.OrderSideBid },
		"collection": func(o *domain.Order) { o.Collection = common.HexToAddress("0xff") },
		"currency":   func(o *domain.Order) { o.Currency = common.HexToAddress("0xff") },
		"maker":      func(o *domain.Order) { o.Maker = common.HexToAddress("0xff") },
		"tokenId":    func(o *domain.Order) { o.TokenID = big.NewInt(8) },
		"price":      func(o *domain.Order) { o.Price = big.NewInt(1_000_001) },
		"makerFee":   func(o *domain.Order) { o.MakerFee = big.NewInt(10_001) },
		"startTime":  func(o *domain.Order) { o.StartTime = 101 },
		"endTime":    func(o *domain.Order) { o.EndTime = 201 },
	}

	for name, mutate := range mutations {
		t.Run(name, func(t *testing.T) {
			o := testOrder()
			mutate(&o)
			assert.NotEqual(t, base, HashOrder(o))
		})
	}
}

func TestHashExecutionPermitArrays(t *testing.T) {
	p := domain.ExecutionPermit{
		OrderHash:    HashOrder(testOrder()),
		Taker:        common.HexToAddress("0x04"),
		TakerFee:     big.NewInt(500),
		Participants: []common.Address{common.HexToAddress("0x05"), common.HexToAddress("0x06")},
		Rewards:      []*big.Int{big.NewInt(30), big.NewInt(70)},
		Deadline:     999,
	}
	base := HashExecutionPermit(p)

	// Reordering array elements must change the hash; participant order is
	// part of the data model.
	swapped := p
	swapped.Participants = []common.Address{p.Participants[1], p.Participants[0]}
	assert.NotEqual(t, base, HashExecutionPermit(swapped))

	// Empty arrays hash, they do not panic.
	empty := p
	empty.Participants = nil
	empty.Rewards = nil
	assert.NotEqual(t, base, HashExecutionPermit(empty))
}

func TestNilAmountHashesAsZero(t *testing.T) {
	a := domain.AuctionRaisePermit{AuctionID: 1, Price: big.NewInt(10), Fee: nil, Deadline: 5}
	b := domain.AuctionRaisePermit{AuctionID: 1, Price: big.NewInt(10), Fee: big.NewInt(0), Deadline: 5}
	assert.Equal(t, HashAuctionRaisePermit(a), HashAuctionRaisePermit(b))
}

func TestBigIntTo32Bytes(t *testing.T) {
	assert.Equal(t, make([]byte, 32), bigIntTo32Bytes(nil))

	small := bigIntTo32Bytes(big.NewInt(0x0102))
	assert.Equal(t, byte(0x01), small[30])
	assert.Equal(t, byte(0x02), small[31])

	// 33-byte value: uint256 wrap keeps the low-order 32 bytes.
	wide := new(big.Int).Lsh(big.NewInt(1), 256) // 2^256
	wide.Add(wide, big.NewInt(5))                // 2^256 + 5
	assert.Equal(t, bigIntTo32Bytes(big.NewInt(5)), bigIntTo32Bytes(wide))
}

func TestDomainSeparatorBindsDeployment(t *testing.T) {
	other := testDomain
	other.ChainID = 1
	assert.NotEqual(t, testDomain.Separator(), other.Separator())

	other = testDomain
	other.VerifyingContract = common.HexToAddress("0xbb")
	assert.NotEqual(t, testDomain.Separator(), other.Separator())
}

func TestSignAndRecover(t *testing.T) {
	signer, err := NewSigner("4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318")
	require.NoError(t, err)

	sep := testDomain.Separator()
	structHash := HashOrder(testOrder())

	sig, err := signer.SignHash(sep, structHash)
	require.NoError(t, err)
	require.Len(t, sig, 65)

	recovered, err := RecoverSigner(sep, structHash, sig)
	require.NoError(t, err)
	assert.Equal(t, signer.Address(), recovered)

	// Recovery must also accept v in {0,1}.
	raw := make([]byte, 65)
	copy(raw, sig)
	raw[64] -= 27
	recovered, err = RecoverSigner(sep, structHash, raw)
	require.NoError(t, err)
	assert.Equal(t, signer.Address(), recovered)

	// A different domain separator recovers a different (wrong) address.
	otherSep := Domain{Name: "Other", Version: "1", ChainID: 1337}.Separator()
	recovered, err = RecoverSigner(otherSep, structHash, sig)
	require.NoError(t, err)
	assert.NotEqual(t, signer.Address(), recovered)
}
