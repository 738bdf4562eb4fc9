// Package nearrpc is a minimal NEAR JSON-RPC client for a single endpoint.
//
// It covers what the worker needs: read-only contract calls, account balance
// lookups and single-action function call transactions. Transactions are
// borsh encoded and signed locally with the worker's ed25519 identity, then
// submitted with broadcast_tx_commit so that the returned outcome is final.
//
// A Client never compares its answers with other endpoints; see package
// crosscheck for that.
package nearrpc
