package cryptoutils

import (
	"bytes"
	"crypto/ed25519"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublicKeyRoundTrip(t *testing.T) {
	pub := ed25519.NewKeyFromSeed(bytes.Repeat([]byte{7}, 32)).Public().(ed25519.PublicKey)

	encoded := EncodePublicKey(pub)
	assert.True(t, strings.HasPrefix(encoded, "ed25519:"))

	decoded, err := DecodePublicKey(encoded)
	require.NoError(t, err)
	assert.Equal(t, pub, decoded)

	accountID := ImplicitAccountID(pub)
	assert.Len(t, accountID, 64)
	assert.Equal(t, strings.ToLower(accountID), accountID)
}

func TestDecodePublicKeyErrors(t *testing.T) {
	_, err := DecodePublicKey("secp256k1:abc")
	assert.ErrorIs(t, err, ErrInvalidPublicKey)

	_, err = DecodePublicKey("ed25519:" + EncodeBase58([]byte{1, 2, 3}))
	assert.ErrorIs(t, err, ErrInvalidPublicKey)
}

func TestDecodeBase58Hash(t *testing.T) {
	want := [32]byte{1, 2, 3, 4}
	got, err := DecodeBase58Hash(EncodeBase58(want[:]))
	require.NoError(t, err)
	assert.Equal(t, want, got)

	_, err = DecodeBase58Hash("0OIl")
	assert.Error(t, err)
}
