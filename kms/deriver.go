package kms

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/ruteri/tee-rng-worker/cryptoutils"
	"github.com/ruteri/tee-rng-worker/interfaces"
)

// EntropySource records where the identity seed came from.
type EntropySource int

const (
	// EntropyHardware: local randomness combined with enclave-bound key material.
	EntropyHardware EntropySource = iota
	// EntropySoftware: local randomness only. The identity is not bound to
	// any enclave.
	EntropySoftware
	// EntropyExternal: a seed supplied by the operator.
	EntropyExternal
)

func (s EntropySource) String() string {
	switch s {
	case EntropyHardware:
		return "hardware"
	case EntropySoftware:
		return "software"
	case EntropyExternal:
		return "external"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// Derivation is the result of deriving the worker identity.
type Derivation struct {
	Identity *interfaces.Identity
	Entropy  EntropySource
	// Reason is set when Entropy is EntropySoftware.
	Reason error
}

// Attested reports whether the identity seed includes enclave key material.
func (d *Derivation) Attested() bool { return d.Entropy == EntropyHardware }

// IdentityDeriver creates the worker's ledger identity at startup. Every run
// produces a fresh identity unless an external seed is supplied.
type IdentityDeriver struct {
	attestation interfaces.AttestationClient
	random      io.Reader
	log         *slog.Logger
}

// NewIdentityDeriver accepts a nil attestation client, in which case every
// derivation runs in software mode.
func NewIdentityDeriver(attestation interfaces.AttestationClient, log *slog.Logger) *IdentityDeriver {
	return &IdentityDeriver{
		attestation: attestation,
		random:      rand.Reader,
		log:         log.With("module", "kms"),
	}
}

// WithRandom replaces the local randomness source.
func (d *IdentityDeriver) WithRandom(r io.Reader) *IdentityDeriver {
	d.random = r
	return d
}

// Derive produces the worker identity. With a non-empty externalSeed (exactly
// 32 bytes) it is used directly as the final seed. Otherwise 32 local random
// bytes are combined with key material derived inside the enclave for that
// randomness: seed = sha256(local || hw[:32]). If the enclave is unreachable
// the seed is sha256(local) and the result is flagged as software entropy.
func (d *IdentityDeriver) Derive(ctx context.Context, externalSeed []byte) (*Derivation, error) {
	if len(externalSeed) > 0 {
		if len(externalSeed) != 32 {
			return nil, fmt.Errorf("entropy seed must be 32 bytes, got %d", len(externalSeed))
		}
		var seed [32]byte
		copy(seed[:], externalSeed)
		identity, err := IdentityFromSeed(seed)
		if err != nil {
			return nil, err
		}
		d.log.Warn("using externally supplied entropy seed", "identity", identity)
		return &Derivation{Identity: identity, Entropy: EntropyExternal}, nil
	}

	local := make([]byte, 32)
	if _, err := io.ReadFull(d.random, local); err != nil {
		return nil, fmt.Errorf("could not read local entropy: %w", err)
	}

	hwKey, hwErr := d.hardwareKey(ctx, local)

	h := sha256.New()
	h.Write(local)
	if hwErr == nil {
		h.Write(hwKey)
	}
	var seed [32]byte
	copy(seed[:], h.Sum(nil))

	identity, err := IdentityFromSeed(seed)
	if err != nil {
		return nil, err
	}

	if hwErr != nil {
		d.log.Warn("TEE key derivation unavailable, identity derived from local randomness only",
			"attested", false, "err", hwErr, "identity", identity)
		return &Derivation{Identity: identity, Entropy: EntropySoftware, Reason: hwErr}, nil
	}

	d.log.Info("derived worker identity", "attested", true, "identity", identity)
	return &Derivation{Identity: identity, Entropy: EntropyHardware}, nil
}

func (d *IdentityDeriver) hardwareKey(ctx context.Context, local []byte) ([]byte, error) {
	if d.attestation == nil {
		return nil, interfaces.ErrAttestationUnavailable
	}
	localHex := hex.EncodeToString(local)
	key, err := d.attestation.DeriveKey(ctx, localHex, localHex)
	if err != nil {
		return nil, err
	}
	if len(key) < 32 {
		return nil, errors.New("derived key material shorter than 32 bytes")
	}
	return key[:32], nil
}

// IdentityFromSeed deterministically expands a 32-byte seed into an identity.
func IdentityFromSeed(seed [32]byte) (*interfaces.Identity, error) {
	private, err := cryptoutils.SeedPhraseKey(seed[:])
	if err != nil {
		return nil, fmt.Errorf("could not derive key from seed: %w", err)
	}
	return interfaces.NewIdentity(private)
}
