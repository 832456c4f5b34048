package ethutil

import (
	"fmt"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

// CryptoProvider supplies the primitives used to check wallet signatures.
type CryptoProvider interface {
	// RecoverPubKey returns the uncompressed public key that produced signature over hash.
	RecoverPubKey(signature, hash []byte) ([]byte, error)
	Keccak256(data []byte) []byte
}

type DefaultCryptoProvider struct{}

var _ CryptoProvider = DefaultCryptoProvider{}

func (DefaultCryptoProvider) RecoverPubKey(signature, hash []byte) ([]byte, error) {
	if len(signature) != crypto.SignatureLength {
		return nil, fmt.Errorf("signature length %d", len(signature))
	}
	sig := make([]byte, len(signature))
	copy(sig, signature)
	if sig[crypto.RecoveryIDOffset] >= 27 {
		sig[crypto.RecoveryIDOffset] -= 27
	}
	return crypto.Ecrecover(hash, sig)
}

func (DefaultCryptoProvider) Keccak256(data []byte) []byte {
	return crypto.Keccak256(data)
}

// VerifyWith checks a personal_sign signature using p.
func VerifyWith(p CryptoProvider, address, message, signature string) bool {
	sig, err := hexutil.Decode(signature)
	if err != nil {
		return false
	}
	pub, err := p.RecoverPubKey(sig, accounts.TextHash(DecodeMessage(message)))
	if err != nil || len(pub) != 65 {
		return false
	}
	signer := common.BytesToAddress(p.Keccak256(pub[1:])[12:])
	return SameAddress(signer.Hex(), address)
}
