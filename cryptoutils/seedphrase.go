package cryptoutils

import (
	"crypto/ed25519"
	"fmt"

	"github.com/anyproto/go-slip10"
	"github.com/tyler-smith/go-bip39"
)

// NEARDerivationPath is the ledger wallet path for NEAR keys.
const NEARDerivationPath = "m/44'/397'/0'"

// SeedPhraseKey expands entropy into an ed25519 key the way ledger wallets do:
// the entropy becomes a BIP-39 mnemonic, the mnemonic a BIP-39 seed, and the
// seed is walked down NEARDerivationPath with SLIP-10.
func SeedPhraseKey(entropy []byte) (ed25519.PrivateKey, error) {
	mnemonic, err := bip39.NewMnemonic(entropy)
	if err != nil {
		return nil, fmt.Errorf("could not build mnemonic: %w", err)
	}
	seed := bip39.NewSeed(mnemonic, "")

	key, err := DeriveSLIP10Ed25519(seed, NEARDerivationPath)
	if err != nil {
		return nil, err
	}
	return ed25519.NewKeyFromSeed(key), nil
}

// DeriveSLIP10Ed25519 returns the 32-byte ed25519 private key seed at path.
// Only hardened indices exist for ed25519.
func DeriveSLIP10Ed25519(seed []byte, path string) ([]byte, error) {
	node, err := slip10.DeriveForPath(path, seed)
	if err != nil {
		return nil, fmt.Errorf("slip10 derivation of %s: %w", path, err)
	}
	return node.RawSeed(), nil
}
