// Package tappd is a client for the dstack tappd attestation agent, reached
// over its unix socket inside a CVM or over HTTP when pointed at the
// simulator.
package tappd
