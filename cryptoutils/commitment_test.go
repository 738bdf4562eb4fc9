package cryptoutils

import (
	"bytes"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/sha3"
)

func TestCommitmentHashSumKnownVectors(t *testing.T) {
	tests := []struct {
		name string
		hash CommitmentHash
		want string
	}{
		{"sha3-256 empty", SHA3_256, "a7ffc6f8bf1ed76651c14756a061d662f580ff4de43b49fa82d80a4b80f8434a"},
		{"keccak256 empty", Keccak256, "c5d2460186f7233c927e7db2dcc703c0e500b653ca82273b7bfad8045d85a470"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sum, err := tt.hash.Sum()
			require.NoError(t, err)
			assert.Equal(t, tt.want, hex.EncodeToString(sum[:]))
		})
	}
}

func TestParseCommitmentHash(t *testing.T) {
	h, err := ParseCommitmentHash("")
	require.NoError(t, err)
	assert.Equal(t, SHA3_256, h)

	h, err = ParseCommitmentHash("keccak256")
	require.NoError(t, err)
	assert.Equal(t, Keccak256, h)

	_, err = ParseCommitmentHash("md5")
	assert.Error(t, err)
}

func TestCommitmentPreimageLayout(t *testing.T) {
	seed := bytes.Repeat([]byte{0xaa}, SeedSize)
	random := bytes.Repeat([]byte{0xbb}, RandomSize)

	preimage, err := CommitmentPreimage(1, seed, random)
	require.NoError(t, err)
	require.Len(t, preimage, 72)

	assert.Equal(t, []byte{0, 0, 0, 0, 0, 0, 0, 1}, preimage[:8])
	assert.Equal(t, seed, preimage[8:40])
	assert.Equal(t, random, preimage[40:])
}

func TestCommitmentPreimageRejectsBadLengths(t *testing.T) {
	_, err := CommitmentPreimage(1, make([]byte, 31), make([]byte, RandomSize))
	assert.Error(t, err)
	_, err = CommitmentPreimage(1, make([]byte, SeedSize), make([]byte, 33))
	assert.Error(t, err)
}

func TestCommitmentIsTwoStage(t *testing.T) {
	seed := bytes.Repeat([]byte{0x01}, SeedSize)
	random := bytes.Repeat([]byte{0x02}, RandomSize)

	first, second, err := Commitment(SHA3_256, 42, seed, random)
	require.NoError(t, err)

	preimage, _ := CommitmentPreimage(42, seed, random)
	expectedFirst := sha3.Sum256(preimage)
	expectedSecond := sha3.Sum256(expectedFirst[:])
	assert.Equal(t, expectedFirst, first)
	assert.Equal(t, expectedSecond, second)

	_, otherSecond, err := Commitment(SHA3_256, 43, seed, random)
	require.NoError(t, err)
	assert.NotEqual(t, second, otherSecond)

	_, keccakSecond, err := Commitment(Keccak256, 42, seed, random)
	require.NoError(t, err)
	assert.NotEqual(t, second, keccakSecond)
}
