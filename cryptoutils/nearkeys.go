package cryptoutils

import (
	"crypto/ed25519"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/btcsuite/btcutil/base58"
)

const ed25519Prefix = "ed25519:"

var ErrInvalidPublicKey = errors.New("invalid public key")

// EncodePublicKey returns the ledger string form of an ed25519 key.
func EncodePublicKey(pub ed25519.PublicKey) string {
	return ed25519Prefix + base58.Encode(pub)
}

func DecodePublicKey(s string) (ed25519.PublicKey, error) {
	if !strings.HasPrefix(s, ed25519Prefix) {
		return nil, fmt.Errorf("%w: missing %q prefix", ErrInvalidPublicKey, ed25519Prefix)
	}
	raw := base58.Decode(strings.TrimPrefix(s, ed25519Prefix))
	if len(raw) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("%w: decoded %d bytes", ErrInvalidPublicKey, len(raw))
	}
	return ed25519.PublicKey(raw), nil
}

// ImplicitAccountID is the account id controlled by pub without any on-ledger
// creation step.
func ImplicitAccountID(pub ed25519.PublicKey) string {
	return hex.EncodeToString(pub)
}

func DecodeBase58Hash(s string) ([32]byte, error) {
	var out [32]byte
	raw := base58.Decode(s)
	if len(raw) != len(out) {
		return out, fmt.Errorf("invalid base58 hash %q", s)
	}
	copy(out[:], raw)
	return out, nil
}

func EncodeBase58(b []byte) string {
	return base58.Encode(b)
}
