package cryptoutils

import (
	"bytes"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// SLIP-0010 test vector 1 for ed25519, chain m/0'.
func TestDeriveSLIP10Ed25519Vector(t *testing.T) {
	seed, _ := hex.DecodeString("000102030405060708090a0b0c0d0e0f")

	key, err := DeriveSLIP10Ed25519(seed, "m/0'")
	require.NoError(t, err)
	assert.Equal(t, "68e0fe46dfb67e368c75379acec591dad19df3cde26e63b93a8e704f1dade7a3", hex.EncodeToString(key))
}

func TestDeriveSLIP10RejectsNonHardened(t *testing.T) {
	_, err := DeriveSLIP10Ed25519([]byte("0123456789abcdef"), "m/44'/1")
	assert.Error(t, err)
}

func TestSeedPhraseKeyDeterministic(t *testing.T) {
	entropy := bytes.Repeat([]byte{0x42}, 32)

	a, err := SeedPhraseKey(entropy)
	require.NoError(t, err)
	b, err := SeedPhraseKey(entropy)
	require.NoError(t, err)
	assert.Equal(t, a, b)

	other, err := SeedPhraseKey(bytes.Repeat([]byte{0x43}, 32))
	require.NoError(t, err)
	assert.NotEqual(t, a, other)
}

func TestSeedPhraseKeyRejectsBadEntropy(t *testing.T) {
	_, err := SeedPhraseKey([]byte{1, 2, 3})
	assert.Error(t, err)
}
