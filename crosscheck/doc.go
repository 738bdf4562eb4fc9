// Package crosscheck turns several independent ledger endpoints into one
// reader that refuses to answer unless they all agree.
//
// Every read is sent to all endpoints concurrently. If any endpoint errors,
// or any two canonicalised answers differ, the read fails with
// ErrReadInconsistency and no value is returned. There is no majority vote
// and no fallback to a single endpoint. Callers treat the failure as
// transient and retry on their next pass.
package crosscheck
