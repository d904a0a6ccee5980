package distribution

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veilcraft/settlehouse/internal/domain"
)

func addrs(n int) []common.Address {
	out := make([]common.Address, n)
	for i := range out {
		out[i] = common.BytesToAddress([]byte{byte(i + 1)})
	}
	return out
}

func bigs(vals ...int64) []*big.Int {
	out := make([]*big.Int, len(vals))
	for i, v := range vals {
		out[i] = big.NewInt(v)
	}
	return out
}

func TestSplitEven(t *testing.T) {
	payouts, err := Split(big.NewInt(100_000), addrs(2), bigs(5000, 5000))
	require.NoError(t, err)
	assert.Equal(t, bigs(50_000, 50_000), payouts)
}

func TestSplitRemainderToLast(t *testing.T) {
	// 100,000,001 * 8000 / 10000 floors to 80,000,000; the last participant
	// absorbs the leftover unit.
	payouts, err := Split(big.NewInt(100_000_001), addrs(2), bigs(8000, 2000))
	require.NoError(t, err)
	assert.Equal(t, bigs(80_000_000, 20_000_001), payouts)
}

func TestSplitSingleParticipant(t *testing.T) {
	payouts, err := Split(big.NewInt(999), addrs(1), bigs(10_000))
	require.NoError(t, err)
	assert.Equal(t, bigs(999), payouts)
}

func TestSplitConservation(t *testing.T) {
	cases := []struct {
		total  int64
		shares []int64
	}{
		{1, []int64{3333, 3333, 3334}},
		{7, []int64{1, 9999}},
		{1_000_000_007, []int64{2500, 2500, 2500, 2500}},
		{982_451_653, []int64{1, 2, 3, 9994}},
		{0, []int64{5000, 5000}},
	}
	for _, tc := range cases {
		payouts, err := Split(big.NewInt(tc.total), addrs(len(tc.shares)), bigs(tc.shares...))
		require.NoError(t, err)

		sum := new(big.Int)
		for i, p := range payouts {
			sum.Add(sum, p)
			if i < len(payouts)-1 {
				want := new(big.Int).Mul(big.NewInt(tc.total), big.NewInt(tc.shares[i]))
				want.Quo(want, big.NewInt(TotalShare))
				assert.Equal(t, want, p, "payout %d of total %d", i, tc.total)
			}
		}
		assert.Equal(t, big.NewInt(tc.total), sum, "conservation for total %d", tc.total)
	}
}

func TestSplitValidation(t *testing.T) {
	t.Run("length mismatch", func(t *testing.T) {
		_, err := Split(big.NewInt(100), addrs(2), bigs(10_000))
		assert.ErrorIs(t, err, domain.ErrParticipantsSharesMismatch)
	})

	t.Run("sum too big", func(t *testing.T) {
		_, err := Split(big.NewInt(100), addrs(2), bigs(9000, 1001))
		assert.ErrorIs(t, err, domain.ErrSharesSumTooBig)
	})

	t.Run("sum too low", func(t *testing.T) {
		_, err := Split(big.NewInt(100), addrs(2), bigs(9000, 999))
		assert.ErrorIs(t, err, domain.ErrSharesSumTooLow)
	})

	t.Run("empty lists sum to zero", func(t *testing.T) {
		_, err := Split(big.NewInt(100), nil, nil)
		assert.ErrorIs(t, err, domain.ErrSharesSumTooLow)
	})

	t.Run("negative share", func(t *testing.T) {
		// Sums to 10_000 but would produce a negative payout leg.
		_, err := Split(big.NewInt(100), addrs(2), bigs(-500, 10_500))
		assert.ErrorIs(t, err, domain.ErrNegativeShare)
	})
}

func TestValidateShares(t *testing.T) {
	assert.NoError(t, ValidateShares(addrs(3), bigs(5000, 3000, 2000)))
	assert.ErrorIs(t, ValidateShares(nil, nil), domain.ErrInvalidSharesCount)
	assert.ErrorIs(t, ValidateShares(addrs(2), bigs(10_000)), domain.ErrInvalidSharesCount)
	assert.ErrorIs(t, ValidateShares(addrs(2), bigs(5000, 5001)), domain.ErrInvalidSharesSum)
	assert.ErrorIs(t, ValidateShares(addrs(2), bigs(-500, 10_500)), domain.ErrNegativeShare)
}
