// Package interfaces defines the types and collaborator contracts shared by
// the worker's components, separating them from their implementations.
//
// # Ledger
//
// Viewer is a single ledger endpoint able to run read-only contract calls and
// report account balances. ContractReader and BalanceReader are the
// cross-checked views built on top of several Viewers, and Transactor submits
// signed function-call transactions.
//
// # Attestation
//
// AttestationClient is the in-enclave attestation agent (key derivation,
// platform info, quotes). It returns ErrAttestationUnavailable whenever the
// worker is not running inside a TEE, which callers treat as a degraded mode
// rather than a fatal error. CollateralService turns a quote into the
// verification collateral the contract needs.
//
// # Identity
//
// Identity is the worker's ed25519 keypair plus its ledger account id. The
// private key never leaves the struct; it is only reachable through Sign.
package interfaces
