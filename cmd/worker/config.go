package main

import (
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/ruteri/tee-rng-worker/crosscheck"
	"github.com/ruteri/tee-rng-worker/cryptoutils"
	"github.com/ruteri/tee-rng-worker/nearrpc"
	"github.com/ruteri/tee-rng-worker/registry"
)

var ErrInvalidConfig = errors.New("invalid configuration")

const (
	quoteSourceTappd    = "tappd"
	quoteSourceConfigfs = "configfs"
	quoteSourceRemote   = "remote"
)

type workerConfig struct {
	ContractID    string
	Network       string
	RPCURLs       []string
	TappdEndpoint string
	ReadFinality  string

	CollateralURL    string
	CollateralAPIKey string
	QuoteSource      string
	QuoteProviderURL string

	PollInterval        time.Duration
	PageSize            uint64
	RespondTGas         uint64
	RegisterTGas        uint64
	FundingPollInterval time.Duration

	CommitmentHash          string
	AllowSoftwareRandomness bool
	EntropySeedHex          string

	// Filled in by validate.
	endpoints   []string
	hash        cryptoutils.CommitmentHash
	entropySeed []byte
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidConfig, fmt.Sprintf(format, args...))
}

// validate checks the configuration and resolves derived values. It runs
// before any component is built.
func (c *workerConfig) validate() error {
	if c.ContractID == "" {
		return invalid("contract id is required")
	}

	if len(c.RPCURLs) > 0 {
		endpoints, err := distinctEndpoints(c.RPCURLs)
		if err != nil {
			return invalid("%v", err)
		}
		c.endpoints = endpoints
	} else {
		endpoints, err := nearrpc.DefaultEndpoints(c.Network)
		if err != nil {
			return invalid("%v", err)
		}
		c.endpoints = endpoints
	}
	if len(c.endpoints) < crosscheck.MinEndpoints {
		return invalid("at least %d distinct rpc endpoints are required, got %d", crosscheck.MinEndpoints, len(c.endpoints))
	}

	switch c.ReadFinality {
	case nearrpc.FinalityOptimistic, nearrpc.FinalityFinal:
	default:
		return invalid("unknown read finality %q", c.ReadFinality)
	}

	switch c.QuoteSource {
	case quoteSourceTappd, quoteSourceConfigfs:
	case quoteSourceRemote:
		if c.QuoteProviderURL == "" {
			return invalid("quote provider url is required for the remote quote source")
		}
	default:
		return invalid("unknown quote source %q", c.QuoteSource)
	}

	if c.PollInterval <= 0 {
		return invalid("poll interval must be positive")
	}
	if c.FundingPollInterval <= 0 {
		return invalid("funding poll interval must be positive")
	}
	if c.PageSize == 0 {
		return invalid("page size must be positive")
	}
	if c.RespondTGas == 0 || c.RegisterTGas == 0 {
		return invalid("gas limits must be positive")
	}
	if c.RespondTGas > 300 || c.RegisterTGas > 300 {
		return invalid("gas limits cannot exceed 300 Tgas")
	}

	hash, err := cryptoutils.ParseCommitmentHash(c.CommitmentHash)
	if err != nil {
		return invalid("%v", err)
	}
	c.hash = hash

	if c.EntropySeedHex != "" {
		seed, err := hex.DecodeString(c.EntropySeedHex)
		if err != nil || len(seed) != 32 {
			return invalid("entropy seed must be 64 hex characters")
		}
		c.entropySeed = seed
	}
	return nil
}

// distinctEndpoints normalises the configured URLs (lowercase scheme and
// host, no trailing slash) and drops repeats, keeping the first occurrence.
func distinctEndpoints(urls []string) ([]string, error) {
	seen := make(map[string]struct{}, len(urls))
	out := make([]string, 0, len(urls))
	for _, raw := range urls {
		u, err := url.Parse(strings.TrimSpace(raw))
		if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
			return nil, fmt.Errorf("invalid rpc url %q", raw)
		}
		u.Scheme = strings.ToLower(u.Scheme)
		u.Host = strings.ToLower(u.Host)
		u.Path = strings.TrimRight(u.Path, "/")
		normalised := u.String()

		if _, dup := seen[normalised]; dup {
			continue
		}
		seen[normalised] = struct{}{}
		out = append(out, normalised)
	}
	return out, nil
}

func (c *workerConfig) registrarConfig() registry.RegistrarConfig {
	cfg := registry.DefaultRegistrarConfig()
	cfg.FundingPollInterval = c.FundingPollInterval
	cfg.RegisterGas = c.RegisterTGas * registry.TGas
	return cfg
}
