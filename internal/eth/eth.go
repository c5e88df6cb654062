// Package eth wraps the go-ethereum primitives used for wallet
// authentication: address validation and EIP-191 personal_sign recovery.
package eth

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

// SignatureLength is the byte length of a secp256k1 signature with recovery id.
const SignatureLength = 65

// NormalizeAddress validates s as an Ethereum address and returns its
// lowercase hex form.
func NormalizeAddress(s string) (string, error) {
	if !common.IsHexAddress(s) {
		return "", fmt.Errorf("not a hex address: %q", s)
	}
	return strings.ToLower(common.HexToAddress(s).Hex()), nil
}

// personalHash computes the EIP-191 digest signed by personal_sign:
// keccak256("\x19Ethereum Signed Message:\n" + len(message) + message).
func personalHash(message string) []byte {
	prefixed := fmt.Sprintf("\x19Ethereum Signed Message:\n%d%s", len(message), message)
	return crypto.Keccak256([]byte(prefixed))
}

// RecoverAddress recovers the address that produced a personal_sign signature
// over message. Wallets emit the recovery id as 27/28; go-ethereum expects 0/1.
func RecoverAddress(message string, signature []byte) (common.Address, error) {
	if len(signature) != SignatureLength {
		return common.Address{}, fmt.Errorf("signature must be %d bytes, got %d", SignatureLength, len(signature))
	}

	sig := make([]byte, SignatureLength)
	copy(sig, signature)
	if sig[64] >= 27 {
		sig[64] -= 27
	}
	if sig[64] != 0 && sig[64] != 1 {
		return common.Address{}, fmt.Errorf("invalid recovery id %d", sig[64])
	}

	pub, err := crypto.SigToPub(personalHash(message), sig)
	if err != nil {
		return common.Address{}, fmt.Errorf("recover public key: %w", err)
	}

	return crypto.PubkeyToAddress(*pub), nil
}

// VerifyPersonalSign reports whether sigHex is a valid personal_sign signature
// over message by claimedAddress. The comparison is case-insensitive. A
// malformed signature yields false rather than an error escaping to callers.
func VerifyPersonalSign(claimedAddress, message, sigHex string) (bool, error) {
	sig, err := hexutil.Decode(sigHex)
	if err != nil {
		return false, fmt.Errorf("decode signature: %w", err)
	}

	recovered, err := RecoverAddress(message, sig)
	if err != nil {
		return false, err
	}

	return strings.EqualFold(recovered.Hex(), claimedAddress), nil
}
