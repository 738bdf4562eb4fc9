package cryptoutils

import (
	"encoding/binary"
	"fmt"

	"github.com/ethereum/go-ethereum/crypto"
	"golang.org/x/crypto/sha3"
)

// CommitmentHash names the hash function used for the two-stage commitment
// that binds a random value to its request.
type CommitmentHash string

const (
	SHA3_256  CommitmentHash = "sha3-256"
	Keccak256 CommitmentHash = "keccak256"

	SeedSize   = 32
	RandomSize = 32
)

func ParseCommitmentHash(name string) (CommitmentHash, error) {
	switch h := CommitmentHash(name); h {
	case SHA3_256, Keccak256:
		return h, nil
	case "":
		return SHA3_256, nil
	default:
		return "", fmt.Errorf("unsupported commitment hash %q", name)
	}
}

// Sum hashes the concatenation of parts.
func (h CommitmentHash) Sum(parts ...[]byte) ([32]byte, error) {
	var out [32]byte
	switch h {
	case SHA3_256, "":
		hasher := sha3.New256()
		for _, p := range parts {
			hasher.Write(p)
		}
		copy(out[:], hasher.Sum(nil))
	case Keccak256:
		copy(out[:], crypto.Keccak256(parts...))
	default:
		return out, fmt.Errorf("unsupported commitment hash %q", string(h))
	}
	return out, nil
}

// CommitmentPreimage lays out requestID (8 bytes, big-endian), seed and the
// random value.
func CommitmentPreimage(requestID uint64, seed, random []byte) ([]byte, error) {
	if len(seed) != SeedSize {
		return nil, fmt.Errorf("seed must be %d bytes, got %d", SeedSize, len(seed))
	}
	if len(random) != RandomSize {
		return nil, fmt.Errorf("random value must be %d bytes, got %d", RandomSize, len(random))
	}

	preimage := make([]byte, 8, 8+SeedSize+RandomSize)
	binary.BigEndian.PutUint64(preimage, requestID)
	preimage = append(preimage, seed...)
	preimage = append(preimage, random...)
	return preimage, nil
}

// Commitment returns H(preimage) and H(H(preimage)). The second stage is the
// message the worker signs.
func Commitment(h CommitmentHash, requestID uint64, seed, random []byte) (first, second [32]byte, err error) {
	preimage, err := CommitmentPreimage(requestID, seed, random)
	if err != nil {
		return first, second, err
	}
	if first, err = h.Sum(preimage); err != nil {
		return first, second, err
	}
	second, err = h.Sum(first[:])
	return first, second, err
}
