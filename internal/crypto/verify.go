package crypto

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"github.com/veilcraft/settlehouse/internal/domain"
)

// VerifyPermit checks a signed permit: the deadline against ledger time, then
// that the signature over the struct hash (bound to the domain separator)
// recovers to the expected signer. Pure function, no side effects.
//
// It returns domain.ErrDeadlineExpired or domain.ErrUnauthorizedAction; a
// malformed signature counts as unauthorized, not as a distinct condition.
func VerifyPermit(domainSep []byte, structHash common.Hash, signature []byte, expectedSigner common.Address, deadline, now uint64) error {
	if now > deadline {
		return domain.ErrDeadlineExpired
	}
	recovered, err := RecoverSigner(domainSep, structHash, signature)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrUnauthorizedAction, err)
	}
	if recovered != expectedSigner {
		return domain.ErrUnauthorizedAction
	}
	return nil
}

// RecoverSigner recovers the address that produced signature over the EIP-712
// digest of structHash under domainSep. It accepts the recovery byte in
// either the {0,1} or the {27,28} convention.
func RecoverSigner(domainSep []byte, structHash common.Hash, signature []byte) (common.Address, error) {
	if len(signature) != 65 {
		return common.Address{}, fmt.Errorf("crypto: signature must be 65 bytes, got %d", len(signature))
	}

	sig := make([]byte, 65)
	copy(sig, signature)
	if sig[64] >= 27 {
		sig[64] -= 27
	}

	digest := Digest(domainSep, structHash)
	pub, err := ethcrypto.SigToPub(digest, sig)
	if err != nil {
		return common.Address{}, fmt.Errorf("crypto: recovering public key: %w", err)
	}
	return ethcrypto.PubkeyToAddress(*pub), nil
}
