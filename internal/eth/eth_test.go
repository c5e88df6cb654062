package eth

import (
	"crypto/ecdsa"
	"fmt"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signPersonal(t *testing.T, key *ecdsa.PrivateKey, message string) []byte {
	t.Helper()
	prefixed := fmt.Sprintf("\x19Ethereum Signed Message:\n%d%s", len(message), message)
	sig, err := crypto.Sign(crypto.Keccak256([]byte(prefixed)), key)
	require.NoError(t, err)
	return sig
}

func TestNormalizeAddress(t *testing.T) {
	checksummed := "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed"

	got, err := NormalizeAddress(checksummed)
	require.NoError(t, err)
	assert.Equal(t, strings.ToLower(checksummed), got)

	// already lowercase round-trips unchanged
	got2, err := NormalizeAddress(strings.ToLower(checksummed))
	require.NoError(t, err)
	assert.Equal(t, got, got2)

	for _, bad := range []string{"", "0x123", "not-an-address", "5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAedff"} {
		_, err := NormalizeAddress(bad)
		assert.Error(t, err, "address %q", bad)
	}
}

func TestRecoverAddress(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	address := crypto.PubkeyToAddress(key.PublicKey)

	message := "example.com wants you to sign in with your Ethereum account:\n" + address.Hex()
	sig := signPersonal(t, key, message)

	recovered, err := RecoverAddress(message, sig)
	require.NoError(t, err)
	assert.Equal(t, address, recovered)

	// wallet-style recovery id (27/28) must recover identically
	walletSig := make([]byte, len(sig))
	copy(walletSig, sig)
	walletSig[64] += 27
	recovered, err = RecoverAddress(message, walletSig)
	require.NoError(t, err)
	assert.Equal(t, address, recovered)
}

func TestRecoverAddressMalformed(t *testing.T) {
	_, err := RecoverAddress("msg", []byte{0x01, 0x02})
	assert.Error(t, err)

	bad := make([]byte, SignatureLength)
	bad[64] = 5 // invalid recovery id
	_, err = RecoverAddress("msg", bad)
	assert.Error(t, err)
}

func TestVerifyPersonalSign(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	address := crypto.PubkeyToAddress(key.PublicKey).Hex()

	message := "Nonce: abc123"
	sigHex := hexutil.Encode(signPersonal(t, key, message))

	ok, err := VerifyPersonalSign(address, message, sigHex)
	require.NoError(t, err)
	assert.True(t, ok)

	// case-insensitive address comparison
	ok, err = VerifyPersonalSign(strings.ToLower(address), message, sigHex)
	require.NoError(t, err)
	assert.True(t, ok)

	// a single changed character in the message recovers a different signer
	ok, err = VerifyPersonalSign(address, "Nonce: abc124", sigHex)
	require.NoError(t, err)
	assert.False(t, ok)

	// signature from another key does not match
	otherKey, err := crypto.GenerateKey()
	require.NoError(t, err)
	otherSig := hexutil.Encode(signPersonal(t, otherKey, message))
	ok, err = VerifyPersonalSign(address, message, otherSig)
	require.NoError(t, err)
	assert.False(t, ok)

	// malformed signatures report an error, never panic
	_, err = VerifyPersonalSign(address, message, "0x1234")
	assert.Error(t, err)
	_, err = VerifyPersonalSign(address, message, "not-hex")
	assert.Error(t, err)
}
