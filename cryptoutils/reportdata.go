package cryptoutils

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// PublicKeyReportData binds a quote to the worker's public key. The hex of
// the key string is left-padded with '0' to 128 characters, which is exactly
// what the contract recomputes when verifying the quote.
func PublicKeyReportData(publicKey string) ([64]byte, error) {
	var out [64]byte
	encoded := hex.EncodeToString([]byte(publicKey))
	if len(encoded) > 2*len(out) {
		return out, fmt.Errorf("public key %q does not fit in report data", publicKey)
	}
	padded := strings.Repeat("0", 2*len(out)-len(encoded)) + encoded
	if _, err := hex.Decode(out[:], []byte(padded)); err != nil {
		return out, err
	}
	return out, nil
}
