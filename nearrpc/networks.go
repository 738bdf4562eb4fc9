package nearrpc

import (
	"fmt"
	"math/big"
	"strings"
)

var networkEndpoints = map[string][]string{
	"mainnet": {"https://near.lava.build", "https://free.rpc.fastnear.com"},
	"testnet": {"https://neart.lava.build", "https://test.rpc.fastnear.com"},
}

// DefaultEndpoints returns the preset RPC endpoints for a network.
func DefaultEndpoints(network string) ([]string, error) {
	endpoints, ok := networkEndpoints[network]
	if !ok {
		return nil, fmt.Errorf("unknown network %q", network)
	}
	return append([]string(nil), endpoints...), nil
}

var yoctoPerNEAR = new(big.Int).Exp(big.NewInt(10), big.NewInt(24), nil)

// FormatNEAR renders a yoctoNEAR amount in NEAR with up to five decimals.
func FormatNEAR(yocto *big.Int) string {
	if yocto == nil {
		return "0"
	}
	whole, frac := new(big.Int).QuoRem(yocto, yoctoPerNEAR, new(big.Int))
	digits := frac.String()
	fracStr := strings.Repeat("0", 24-len(digits)) + digits
	fracStr = strings.TrimRight(fracStr[:5], "0")
	if fracStr == "" {
		return whole.String()
	}
	return whole.String() + "." + fracStr
}
