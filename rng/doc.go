// Package rng is the randomness fulfillment pipeline.
//
// Each polling pass reads one page of pending requests from the contract and
// walks every distinct request through four stages:
//
//	generating  random = sha256(hw[:32] || seed), hw derived in the enclave
//	committing  c = H(H(requestID_be8 || seed || random))
//	signing     sig = ed25519(identity, c)
//	submitting  respond {request_id, random_number, signature}
//
// Stages are strictly sequential within a request and requests are handled
// one after another. Any stage failing abandons that request only.
package rng
