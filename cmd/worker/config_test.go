package main

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ruteri/tee-rng-worker/cryptoutils"
	"github.com/ruteri/tee-rng-worker/registry"
)

func validConfig() *workerConfig {
	return &workerConfig{
		ContractID:          "rng.testnet",
		Network:             "testnet",
		ReadFinality:        "optimistic",
		QuoteSource:         quoteSourceTappd,
		PollInterval:        500 * time.Millisecond,
		PageSize:            10,
		RespondTGas:         200,
		RegisterTGas:        200,
		FundingPollInterval: time.Minute,
		CommitmentHash:      "sha3-256",
	}
}

func TestValidateResolvesDefaults(t *testing.T) {
	cfg := validConfig()
	require.NoError(t, cfg.validate())

	assert.Equal(t, []string{"https://neart.lava.build", "https://test.rpc.fastnear.com"}, cfg.endpoints)
	assert.Equal(t, cryptoutils.SHA3_256, cfg.hash)
	assert.Nil(t, cfg.entropySeed)

	rc := cfg.registrarConfig()
	assert.Equal(t, registry.DefaultRegisterGas, rc.RegisterGas)
	assert.Equal(t, time.Minute, rc.FundingPollInterval)
}

func TestValidateExplicitEndpointsAndSeed(t *testing.T) {
	cfg := validConfig()
	cfg.RPCURLs = []string{"http://a", "http://b", "http://c"}
	cfg.EntropySeedHex = strings.Repeat("ab", 32)
	cfg.CommitmentHash = "keccak256"
	require.NoError(t, cfg.validate())

	assert.Equal(t, cfg.RPCURLs, cfg.endpoints)

	cfg.RPCURLs = []string{"https://rpc.a", "https://rpc.a/", "https://rpc.b"}
	require.NoError(t, cfg.validate())
	assert.Equal(t, []string{"https://rpc.a", "https://rpc.b"}, cfg.endpoints)
	assert.Len(t, cfg.entropySeed, 32)
	assert.Equal(t, cryptoutils.Keccak256, cfg.hash)
}

func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*workerConfig)
	}{
		{"missing contract", func(c *workerConfig) { c.ContractID = "" }},
		{"unknown network", func(c *workerConfig) { c.Network = "betanet" }},
		{"single endpoint", func(c *workerConfig) { c.RPCURLs = []string{"http://a"} }},
		{"repeated endpoint", func(c *workerConfig) { c.RPCURLs = []string{"https://rpc.a", "https://rpc.a"} }},
		{"same endpoint spelled twice", func(c *workerConfig) { c.RPCURLs = []string{"https://RPC.a/", "https://rpc.a"} }},
		{"malformed endpoint", func(c *workerConfig) { c.RPCURLs = []string{"rpc.a", "https://rpc.b"} }},
		{"unknown finality", func(c *workerConfig) { c.ReadFinality = "final-ish" }},
		{"bad quote source", func(c *workerConfig) { c.QuoteSource = "sgx" }},
		{"remote without url", func(c *workerConfig) { c.QuoteSource = quoteSourceRemote }},
		{"zero poll interval", func(c *workerConfig) { c.PollInterval = 0 }},
		{"zero funding interval", func(c *workerConfig) { c.FundingPollInterval = 0 }},
		{"zero page size", func(c *workerConfig) { c.PageSize = 0 }},
		{"zero gas", func(c *workerConfig) { c.RespondTGas = 0 }},
		{"too much gas", func(c *workerConfig) { c.RegisterTGas = 301 }},
		{"bad hash", func(c *workerConfig) { c.CommitmentHash = "md5" }},
		{"short seed", func(c *workerConfig) { c.EntropySeedHex = "abcd" }},
		{"non-hex seed", func(c *workerConfig) { c.EntropySeedHex = strings.Repeat("zz", 32) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.validate()
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidConfig)
		})
	}
}
