package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/urfave/cli/v2"

	"github.com/ruteri/tee-rng-worker/clock"
	"github.com/ruteri/tee-rng-worker/cmd/flags"
	"github.com/ruteri/tee-rng-worker/collateral"
	"github.com/ruteri/tee-rng-worker/common"
	"github.com/ruteri/tee-rng-worker/crosscheck"
	"github.com/ruteri/tee-rng-worker/cryptoutils"
	"github.com/ruteri/tee-rng-worker/httpserver"
	"github.com/ruteri/tee-rng-worker/interfaces"
	"github.com/ruteri/tee-rng-worker/kms"
	"github.com/ruteri/tee-rng-worker/metrics"
	"github.com/ruteri/tee-rng-worker/nearrpc"
	"github.com/ruteri/tee-rng-worker/registry"
	"github.com/ruteri/tee-rng-worker/rng"
	"github.com/ruteri/tee-rng-worker/tappd"
)

var workerFlags = []cli.Flag{
	&cli.StringFlag{
		Name:     "contract",
		EnvVars:  []string{"TEE_RNG_CONTRACT"},
		Required: true,
		Usage:    "account id of the tee-rng contract",
	},
	&cli.StringFlag{
		Name:    "network",
		EnvVars: []string{"NEAR_NETWORK_ID"},
		Value:   "mainnet",
		Usage:   "NEAR network whose preset RPC endpoints are used: 'mainnet' or 'testnet'",
	},
	&cli.StringSliceFlag{
		Name:    "rpc-url",
		EnvVars: []string{"NEAR_NODE_URL"},
		Usage:   "NEAR RPC endpoint, repeatable. Overrides the network presets; at least two are required",
	},
	&cli.StringFlag{
		Name:  "read-finality",
		Value: nearrpc.FinalityOptimistic,
		Usage: "finality of ledger reads: 'optimistic' or 'final'",
	},
	&cli.StringFlag{
		Name:    "tappd-endpoint",
		EnvVars: []string{"DSTACK_SIMULATOR_ENDPOINT"},
		Usage:   "tappd endpoint: http(s) URL of a simulator or unix socket path (default " + tappd.DefaultSocketPath + ")",
	},
	&cli.StringFlag{
		Name:  "collateral-url",
		Value: collateral.DefaultURL,
		Usage: "quote collateral upload service",
	},
	&cli.StringFlag{
		Name:    "collateral-api-key",
		EnvVars: []string{"COLLATERAL_API_KEY"},
		Usage:   "bearer token for the collateral service",
	},
	&cli.StringFlag{
		Name:  "quote-source",
		Value: quoteSourceTappd,
		Usage: "where TDX quotes come from: 'tappd', 'configfs' or 'remote'",
	},
	&cli.StringFlag{
		Name:    "quote-provider-url",
		EnvVars: []string{"QUOTE_PROVIDER_URL"},
		Usage:   "base URL of the quote provider used with --quote-source=remote",
	},
	&cli.DurationFlag{
		Name:  "poll-interval",
		Value: rng.DefaultConfig().PollInterval,
		Usage: "delay between polling passes",
	},
	&cli.Uint64Flag{
		Name:  "page-size",
		Value: rng.DefaultConfig().PageSize,
		Usage: "pending requests fetched per pass",
	},
	&cli.Uint64Flag{
		Name:  "respond-gas",
		Value: registry.DefaultRespondGas / registry.TGas,
		Usage: "gas attached to respond, in Tgas",
	},
	&cli.Uint64Flag{
		Name:  "register-gas",
		Value: registry.DefaultRegisterGas / registry.TGas,
		Usage: "gas attached to register_worker, in Tgas",
	},
	&cli.DurationFlag{
		Name:  "funding-poll-interval",
		Value: registry.DefaultRegistrarConfig().FundingPollInterval,
		Usage: "delay between balance checks while waiting for funding",
	},
	&cli.StringFlag{
		Name:  "commitment-hash",
		Value: string(cryptoutils.SHA3_256),
		Usage: "commitment hash: 'sha3-256' or 'keccak256'",
	},
	&cli.BoolFlag{
		Name:  "allow-software-randomness",
		Value: true,
		Usage: "answer requests with local randomness when hardware key derivation is unavailable",
	},
	&cli.StringFlag{
		Name:  "entropy-seed",
		Usage: "hex-encoded 32-byte identity seed, for testing only",
	},
}

func main() {
	app := &cli.App{
		Name:  "tee-rng-worker",
		Usage: "Fulfill NEAR randomness requests from inside a TDX enclave",
		Flags: append(workerFlags, flags.CommonFlags...),
		Action: func(cCtx *cli.Context) error {
			cfg := &workerConfig{
				ContractID:              cCtx.String("contract"),
				Network:                 cCtx.String("network"),
				RPCURLs:                 cCtx.StringSlice("rpc-url"),
				TappdEndpoint:           cCtx.String("tappd-endpoint"),
				ReadFinality:            cCtx.String("read-finality"),
				CollateralURL:           cCtx.String("collateral-url"),
				CollateralAPIKey:        cCtx.String("collateral-api-key"),
				QuoteSource:             cCtx.String("quote-source"),
				QuoteProviderURL:        cCtx.String("quote-provider-url"),
				PollInterval:            cCtx.Duration("poll-interval"),
				PageSize:                cCtx.Uint64("page-size"),
				RespondTGas:             cCtx.Uint64("respond-gas"),
				RegisterTGas:            cCtx.Uint64("register-gas"),
				FundingPollInterval:     cCtx.Duration("funding-poll-interval"),
				CommitmentHash:          cCtx.String("commitment-hash"),
				AllowSoftwareRandomness: cCtx.Bool("allow-software-randomness"),
				EntropySeedHex:          cCtx.String("entropy-seed"),
			}

			logger := flags.SetupLogger(cCtx)

			if err := cfg.validate(); err != nil {
				logger.Error("Invalid configuration", "err", err)
				return err
			}

			// Signals cancel startup (funding wait, registration). Once the
			// pipeline runs they stop it cooperatively instead.
			signalCtx, stopSignals := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stopSignals()

			attestation := tappd.New(cfg.TappdEndpoint)
			switch cfg.QuoteSource {
			case quoteSourceConfigfs:
				attestation = attestation.WithQuoteProvider(cryptoutils.DCAPAttestationProvider{})
			case quoteSourceRemote:
				attestation = attestation.WithQuoteProvider(&cryptoutils.RemoteAttestationProvider{Address: cfg.QuoteProviderURL})
			}

			derivation, err := kms.NewIdentityDeriver(attestation, logger).Derive(signalCtx, cfg.entropySeed)
			if err != nil {
				logger.Error("Failed to derive worker identity", "err", err)
				return err
			}
			identity := derivation.Identity

			promRegistry := prometheus.NewRegistry()
			promRegistry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
			m := metrics.NewMetrics(promRegistry)

			viewers := make([]interfaces.Viewer, 0, len(cfg.endpoints))
			for _, url := range cfg.endpoints {
				viewers = append(viewers, nearrpc.NewClient(url, logger).WithFinality(cfg.ReadFinality))
			}
			reader, err := crosscheck.NewReader(viewers, logger)
			if err != nil {
				logger.Error("Failed to create read oracle", "err", err)
				return err
			}
			reader = reader.WithMetrics(m)

			// Writes go through the first endpoint only.
			transactor := nearrpc.NewClient(cfg.endpoints[0], logger).WithFinality(cfg.ReadFinality).WithSigner(identity)
			contract := registry.NewContract(cfg.ContractID, reader, transactor)

			rngCfg := rng.DefaultConfig()
			rngCfg.PollInterval = cfg.PollInterval
			rngCfg.ErrorBackoff = 2 * cfg.PollInterval
			rngCfg.PageSize = cfg.PageSize
			rngCfg.RespondGas = cfg.RespondTGas * registry.TGas
			rngCfg.CommitmentHash = cfg.hash
			rngCfg.AllowSoftwareRandomness = cfg.AllowSoftwareRandomness
			service := rng.NewService(rngCfg, contract, attestation, identity, clock.Real(), m, logger)

			server, err := httpserver.New(flags.ConfigureServer(cCtx, logger), identity, service, promRegistry)
			if err != nil {
				logger.Error("Failed to create server", "err", err)
				return err
			}
			server.RunInBackground()
			defer server.Shutdown()

			collateralSvc := collateral.NewClient(cfg.CollateralURL, cfg.CollateralAPIKey, logger)
			registrar := registry.NewRegistrar(cfg.registrarConfig(), contract, reader, attestation, collateralSvc, clock.Real(), logger).
				WithMetrics(m)

			logger.Info("Fund the worker account to register it",
				"account", identity.SignerID(),
				"contract", cfg.ContractID,
				"endpoints", cfg.endpoints)
			record, err := registrar.EnsureRegisteredWithRetry(signalCtx, identity)
			if err != nil && signalCtx.Err() != nil {
				logger.Info("Shutdown signal received before registration completed")
				return nil
			}
			if err != nil {
				logger.Error("Worker registration failed", "err", err)
				return err
			}
			logger.Info("Worker registered", "checksum", record.Checksum, "codehash", record.Codehash)
			server.SetReady(true)

			done := make(chan error, 1)
			go func() {
				done <- service.Start(context.Background())
			}()

			select {
			case <-signalCtx.Done():
				logger.Info("Shutdown signal received")
				server.SetReady(false)
				service.Stop()
				select {
				case err = <-done:
				case <-time.After(time.Minute):
					logger.Warn("rng service did not stop in time")
				}
			case err = <-done:
			}
			if err != nil {
				logger.Error("rng service exited with error", "err", err)
				return err
			}

			logger.Info("Worker shutdown complete")
			return nil
		},
	}

	app.Version = common.Version

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
