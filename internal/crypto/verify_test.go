package crypto

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veilcraft/settlehouse/internal/domain"
)

func TestVerifyPermit(t *testing.T) {
	signer, err := NewSigner("4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318")
	require.NoError(t, err)
	stranger, err := NewSigner("8da4ef21b864d2cc526dbdb2a120bd2874c36c9d0a1fb7f8c63d7f7a8b41de8f")
	require.NoError(t, err)

	sep := testDomain.Separator()
	structHash := HashAuctionRaisePermit(domain.AuctionRaisePermit{
		AuctionID: 3,
		Price:     big.NewInt(500),
		Fee:       big.NewInt(25),
		Deadline:  1000,
	})
	sig, err := signer.SignHash(sep, structHash)
	require.NoError(t, err)

	t.Run("valid", func(t *testing.T) {
		assert.NoError(t, VerifyPermit(sep, structHash, sig, signer.Address(), 1000, 1000))
	})

	t.Run("deadline expired", func(t *testing.T) {
		err := VerifyPermit(sep, structHash, sig, signer.Address(), 1000, 1001)
		assert.ErrorIs(t, err, domain.ErrDeadlineExpired)
	})

	t.Run("wrong expected signer", func(t *testing.T) {
		err := VerifyPermit(sep, structHash, sig, stranger.Address(), 1000, 500)
		assert.ErrorIs(t, err, domain.ErrUnauthorizedAction)
	})

	t.Run("tampered struct hash", func(t *testing.T) {
		other := HashAuctionRaisePermit(domain.AuctionRaisePermit{
			AuctionID: 3,
			Price:     big.NewInt(501),
			Fee:       big.NewInt(25),
			Deadline:  1000,
		})
		err := VerifyPermit(sep, other, sig, signer.Address(), 1000, 500)
		assert.ErrorIs(t, err, domain.ErrUnauthorizedAction)
	})

	t.Run("malformed signature", func(t *testing.T) {
		err := VerifyPermit(sep, structHash, []byte{0x01, 0x02}, signer.Address(), 1000, 500)
		assert.ErrorIs(t, err, domain.ErrUnauthorizedAction)
	})
}
