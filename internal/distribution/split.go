// Package distribution computes proportional payout splits with exact
// remainder accounting. Participant order matters: the last participant
// absorbs the integer-division remainder, so reordering changes payouts.
package distribution

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/veilcraft/settlehouse/internal/domain"
)

// TotalShare is the fixed share denominator. A share of 10_000 is 100%.
const TotalShare = 10_000

var totalShareBig = big.NewInt(TotalShare)

// Split divides total among participants by their shares. Every non-last
// payout is floor(total * share / TotalShare); the last payout is whatever
// remains, so the payouts always sum to total exactly.
func Split(total *big.Int, participants []common.Address, shares []*big.Int) ([]*big.Int, error) {
	if len(participants) != len(shares) {
		return nil, domain.ErrParticipantsSharesMismatch
	}
	if err := checkNonNegative(shares); err != nil {
		return nil, err
	}

	sum := sumShares(shares)
	switch sum.Cmp(totalShareBig) {
	case 1:
		return nil, fmt.Errorf("%w: sum %s", domain.ErrSharesSumTooBig, sum)
	case -1:
		// Covers the empty-participant case, whose sum is 0.
		return nil, fmt.Errorf("%w: sum %s", domain.ErrSharesSumTooLow, sum)
	}

	payouts := make([]*big.Int, len(shares))
	paid := new(big.Int)
	for i, share := range shares {
		if i == len(shares)-1 {
			payouts[i] = new(big.Int).Sub(total, paid)
			break
		}
		p := new(big.Int).Mul(total, share)
		p.Quo(p, totalShareBig)
		payouts[i] = p
		paid.Add(paid, p)
	}
	return payouts, nil
}

// ValidateShares checks a distribution tuple without computing payouts. It is
// the creation-time validation for auctions, whose shares are stored and
// split only at resolution.
func ValidateShares(participants []common.Address, shares []*big.Int) error {
	if len(participants) == 0 || len(participants) != len(shares) {
		return domain.ErrInvalidSharesCount
	}
	if err := checkNonNegative(shares); err != nil {
		return err
	}
	if sum := sumShares(shares); sum.Cmp(totalShareBig) != 0 {
		return fmt.Errorf("%w: sum %s", domain.ErrInvalidSharesSum, sum)
	}
	return nil
}

// checkNonNegative rejects negative shares. A negative share would pass the
// sum check by inflating another participant's slice and turn into a negative
// payout leg downstream.
func checkNonNegative(shares []*big.Int) error {
	for _, s := range shares {
		if s != nil && s.Sign() < 0 {
			return fmt.Errorf("%w: %s", domain.ErrNegativeShare, s)
		}
	}
	return nil
}

func sumShares(shares []*big.Int) *big.Int {
	sum := new(big.Int)
	for _, s := range shares {
		if s != nil {
			sum.Add(sum, s)
		}
	}
	return sum
}
