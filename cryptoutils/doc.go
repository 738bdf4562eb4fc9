// Package cryptoutils collects the hashing, key encoding and TDX quote
// helpers used by the worker.
//
// # Commitments
//
// Commitment binds a random value to the request it answers. The preimage is
//
//	requestID (8 bytes, big-endian) || seed (32 bytes) || random (32 bytes)
//
// and the result is H(preimage) followed by H(H(preimage)). H is SHA3-256 by
// default; Keccak256 is available for contracts that recompute with it. The
// second stage is what gets signed.
//
// # Keys
//
// SeedPhraseKey turns 32 bytes of entropy into the worker's ed25519 key via a
// BIP-39 mnemonic and SLIP-10 derivation along m/44'/397'/0'. Public keys are
// rendered as "ed25519:<base58>" and the implicit account id is the hex of
// the raw key.
//
// # Quotes
//
// PublicKeyReportData computes the report data that ties a TDX quote to a
// public key, and InspectQuote checks a quote against it before the quote is
// sent anywhere.
package cryptoutils
