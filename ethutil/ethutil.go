// Package ethutil holds the few EVM helpers the transports need: address checks,
// hex chain id conversion and personal_sign verification.
package ethutil

import (
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

func IsAddress(s string) bool {
	return common.IsHexAddress(s)
}

// Checksum returns the EIP-55 form of s.
func Checksum(s string) (string, error) {
	if !common.IsHexAddress(s) {
		return "", fmt.Errorf("invalid address %q", s)
	}
	return common.HexToAddress(s).Hex(), nil
}

func SameAddress(a, b string) bool {
	return strings.EqualFold(strings.TrimPrefix(a, "0x"), strings.TrimPrefix(b, "0x"))
}

// ChainReferenceFromHex turns a wallet reported "0x89" into the decimal CAIP-2 reference "137".
// Decimal input is accepted unchanged.
func ChainReferenceFromHex(s string) (string, error) {
	if !strings.HasPrefix(s, "0x") && !strings.HasPrefix(s, "0X") {
		if _, ok := new(big.Int).SetString(s, 10); !ok {
			return "", fmt.Errorf("invalid chain id %q", s)
		}
		return s, nil
	}
	n, err := hexutil.DecodeBig(strings.ToLower(s))
	if err != nil {
		return "", fmt.Errorf("invalid chain id %q: %w", s, err)
	}
	return n.String(), nil
}

// HexChainID encodes a decimal reference as the 0x-prefixed quantity wallets expect.
func HexChainID(reference string) (string, error) {
	n, ok := new(big.Int).SetString(reference, 10)
	if !ok {
		return "", fmt.Errorf("invalid chain reference %q", reference)
	}
	return hexutil.EncodeBig(n), nil
}

// DecodeMessage returns the bytes a personal_sign message stands for. Hex input is
// decoded, everything else is taken as utf8 text.
func DecodeMessage(message string) []byte {
	if b, err := hexutil.Decode(message); err == nil {
		return b
	}
	return []byte(message)
}

// SignPersonal produces a 65 byte personal_sign signature with v in {27, 28}.
func SignPersonal(key *ecdsa.PrivateKey, message string) (string, error) {
	sig, err := crypto.Sign(accounts.TextHash(DecodeMessage(message)), key)
	if err != nil {
		return "", err
	}
	sig[crypto.RecoveryIDOffset] += 27
	return hexutil.Encode(sig), nil
}

// RecoverPersonal returns the signer of a personal_sign signature.
func RecoverPersonal(message, signature string) (string, error) {
	sig, err := hexutil.Decode(signature)
	if err != nil {
		return "", fmt.Errorf("decode signature: %w", err)
	}
	if len(sig) != crypto.SignatureLength {
		return "", fmt.Errorf("signature length %d", len(sig))
	}
	if sig[crypto.RecoveryIDOffset] >= 27 {
		sig[crypto.RecoveryIDOffset] -= 27
	}
	pub, err := crypto.SigToPub(accounts.TextHash(DecodeMessage(message)), sig)
	if err != nil {
		return "", err
	}
	return crypto.PubkeyToAddress(*pub).Hex(), nil
}

// VerifyPersonal checks signature was produced by address over message.
func VerifyPersonal(address, message, signature string) bool {
	signer, err := RecoverPersonal(message, signature)
	if err != nil {
		return false
	}
	return SameAddress(signer, address)
}
