package interfaces

import "context"

// TappdInfo is the platform information reported by the attestation agent.
type TappdInfo struct {
	AppID      string
	InstanceID string
	AppName    string
	// TCBInfo is always a string; structured values are compacted JSON.
	TCBInfo string
}

// TdxQuote is a raw TDX quote together with the agent's event log.
type TdxQuote struct {
	Quote    []byte
	EventLog string
}

// AttestationClient is the in-enclave attestation agent. Every method
// returns an error wrapping ErrAttestationUnavailable when no agent is
// reachable.
type AttestationClient interface {
	// DeriveKey returns 32 bytes of key material bound to the enclave
	// measurement, the derivation path and the subject.
	DeriveKey(ctx context.Context, path, subject string) ([]byte, error)

	Info(ctx context.Context) (*TappdInfo, error)

	// TdxQuote returns a quote over reportData. With hashAlgorithm "raw"
	// reportData is embedded as is and must not exceed 64 bytes.
	TdxQuote(ctx context.Context, reportData []byte, hashAlgorithm string) (*TdxQuote, error)
}

// QuoteCollateral is the verification material issued for a quote.
type QuoteCollateral struct {
	Checksum string
	// Collateral is compact JSON.
	Collateral string
}

type CollateralService interface {
	Upload(ctx context.Context, quoteHex string) (*QuoteCollateral, error)
}
