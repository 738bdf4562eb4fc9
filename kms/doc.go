// Package kms derives the worker's ledger identity.
//
// The identity is generated fresh at every start and only lives in memory.
// Inside a TEE the seed mixes local randomness with key material that the
// attestation agent derives for that randomness, so the resulting key can
// only exist inside the measured enclave. Outside a TEE the deriver degrades
// to local randomness and says so through Derivation.Entropy.
//
// The seed is expanded with the same BIP-39/SLIP-10 pipeline wallets use, so
// IdentityFromSeed is deterministic for a given seed.
package kms
