package crypto

import (
	"crypto/ecdsa"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// Signer produces EIP-712 permit signatures. The settlement service holds one
// for the trusted market/auction signer identity; clients and tests use it to
// sign maker orders and seller permits.
type Signer struct {
	privateKey *ecdsa.PrivateKey
	address    common.Address
}

// NewSigner creates a Signer from a hex-encoded secp256k1 private key.
func NewSigner(privateKeyHex string) (*Signer, error) {
	keyHex := strings.TrimPrefix(privateKeyHex, "0x")
	pk, err := ethcrypto.HexToECDSA(keyHex)
	if err != nil {
		return nil, fmt.Errorf("crypto: invalid private key: %w", err)
	}
	return &Signer{
		privateKey: pk,
		address:    ethcrypto.PubkeyToAddress(pk.PublicKey),
	}, nil
}

// Address returns the address derived from the signer's private key.
func (s *Signer) Address() common.Address {
	return s.address
}

// SignHash signs the EIP-712 digest of structHash under domainSep and returns
// the 65-byte signature (r || s || v) with v in {27,28}.
func (s *Signer) SignHash(domainSep []byte, structHash common.Hash) ([]byte, error) {
	sig, err := ethcrypto.Sign(Digest(domainSep, structHash), s.privateKey)
	if err != nil {
		return nil, fmt.Errorf("crypto: signing: %w", err)
	}
	if sig[64] < 27 {
		sig[64] += 27
	}
	return sig, nil
}
