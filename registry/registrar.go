package registry

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/ruteri/tee-rng-worker/clock"
	"github.com/ruteri/tee-rng-worker/cryptoutils"
	"github.com/ruteri/tee-rng-worker/interfaces"
	"github.com/ruteri/tee-rng-worker/metrics"
	"github.com/ruteri/tee-rng-worker/nearrpc"
)

var ErrRegistrationInconsistent = errors.New("worker not found after successful registration")

const tdxHashRaw = "raw"

type RegistrarConfig struct {
	FundingPollInterval time.Duration
	// RetryInterval separates attempts in EnsureRegisteredWithRetry.
	RetryInterval time.Duration
	// ConfirmAttempts bounds how often the record is read back after
	// register_worker, ConfirmInterval apart, before the registration is
	// declared inconsistent.
	ConfirmAttempts int
	ConfirmInterval time.Duration
	RegisterGas     uint64
	RegisterDeposit *big.Int
}

func DefaultRegistrarConfig() RegistrarConfig {
	return RegistrarConfig{
		FundingPollInterval: time.Minute,
		RetryInterval:       10 * time.Second,
		ConfirmAttempts:     5,
		ConfirmInterval:     time.Second,
		RegisterGas:         DefaultRegisterGas,
		RegisterDeposit:     DefaultRegisterDeposit(),
	}
}

// AttestationKind tells a genuine registration apart from a mock one.
type AttestationKind int

const (
	Unattested AttestationKind = iota
	Attested
)

func (k AttestationKind) String() string {
	if k == Attested {
		return "attested"
	}
	return "unattested"
}

// AttestationOutcome carries the register_worker arguments together with how
// they were obtained.
type AttestationOutcome struct {
	Kind AttestationKind
	Args RegisterWorkerArgs
	// Reason is why the attestation path failed, for Unattested outcomes.
	Reason       error
	Measurements map[int]string
}

// MockRegistrationArgs are the placeholder arguments of an unattested
// registration.
func MockRegistrationArgs() RegisterWorkerArgs {
	return RegisterWorkerArgs{QuoteHex: "", Collateral: "", Checksum: "", TCBInfo: "{}"}
}

// Registrar makes sure the worker identity is registered with the contract.
type Registrar struct {
	cfg         RegistrarConfig
	contract    *Contract
	balances    interfaces.BalanceReader
	attestation interfaces.AttestationClient
	collateral  interfaces.CollateralService
	clock       clock.Clock
	metrics     *metrics.Metrics
	log         *slog.Logger
}

// NewRegistrar accepts a nil attestation client; registrations are then
// always unattested.
func NewRegistrar(cfg RegistrarConfig, contract *Contract, balances interfaces.BalanceReader, attestation interfaces.AttestationClient, collateral interfaces.CollateralService, clk clock.Clock, log *slog.Logger) *Registrar {
	if cfg.RegisterDeposit == nil {
		cfg.RegisterDeposit = DefaultRegisterDeposit()
	}
	return &Registrar{
		cfg:         cfg,
		contract:    contract,
		balances:    balances,
		attestation: attestation,
		collateral:  collateral,
		clock:       clk,
		log:         log.With("module", "registrar", "contract", contract.ID()),
	}
}

func (r *Registrar) WithMetrics(m *metrics.Metrics) *Registrar {
	r.metrics = m
	return r
}

// EnsureRegistered returns the worker's registration record, registering it
// first if needed. It blocks until the account is funded.
func (r *Registrar) EnsureRegistered(ctx context.Context, identity interfaces.Signer) (*interfaces.WorkerRecord, error) {
	accountID := identity.SignerID()
	log := r.log.With("account_id", accountID)

	record, err := r.contract.GetWorker(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if record != nil {
		log.Info("worker already registered", "checksum", record.Checksum, "codehash", record.Codehash)
		return record, nil
	}

	if _, err := r.WaitForFunding(ctx, accountID); err != nil {
		return nil, err
	}

	outcome := r.Attest(ctx, identity.PublicKey())
	if outcome.Kind == Attested {
		log.Info("registering worker with TDX attestation", "checksum", outcome.Args.Checksum)
	} else {
		log.Warn("NOT RUNNING IN A TEE: registering worker with MOCK attestation data, this registration is unattested",
			"reason", outcome.Reason)
	}

	tx, err := r.contract.RegisterWorker(ctx, outcome.Args, r.cfg.RegisterDeposit, r.cfg.RegisterGas)
	if err != nil {
		return nil, err
	}
	r.metrics.Registration(outcome.Kind == Attested)
	log.Info("register_worker committed", "tx_hash", tx.TransactionHash, "attestation", outcome.Kind.String())

	return r.confirmRegistration(ctx, accountID)
}

// confirmRegistration reads the record back until the endpoints have caught
// up with the registration block. Read errors and a missing record are both
// retried; running out of attempts is ErrRegistrationInconsistent.
func (r *Registrar) confirmRegistration(ctx context.Context, accountID string) (*interfaces.WorkerRecord, error) {
	attempts := max(r.cfg.ConfirmAttempts, 1)

	var lastErr error
	for i := 0; i < attempts; i++ {
		if i > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-r.clock.After(r.cfg.ConfirmInterval):
			}
		}

		record, err := r.contract.GetWorker(ctx, accountID)
		if err == nil && record != nil {
			return record, nil
		}
		lastErr = err
		r.log.Debug("registration not visible yet", "account_id", accountID, "attempt", i+1, "err", err)
	}

	if lastErr != nil {
		return nil, fmt.Errorf("%w: %s after %d reads: %w", ErrRegistrationInconsistent, accountID, attempts, lastErr)
	}
	return nil, fmt.Errorf("%w: %s after %d reads", ErrRegistrationInconsistent, accountID, attempts)
}

// EnsureRegisteredWithRetry repeats EnsureRegistered until it succeeds or ctx
// is done. ErrRegistrationInconsistent is not retried.
func (r *Registrar) EnsureRegisteredWithRetry(ctx context.Context, identity interfaces.Signer) (*interfaces.WorkerRecord, error) {
	for {
		record, err := r.EnsureRegistered(ctx, identity)
		if err == nil || errors.Is(err, ErrRegistrationInconsistent) || ctx.Err() != nil {
			return record, err
		}
		r.log.Error("registration attempt failed, retrying", "err", err, "retry_in", r.cfg.RetryInterval)

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-r.clock.After(r.cfg.RetryInterval):
		}
	}
}

// WaitForFunding polls the account balance until it is non-zero. Read errors
// count as not funded yet.
func (r *Registrar) WaitForFunding(ctx context.Context, accountID string) (*big.Int, error) {
	for {
		balance, err := r.balances.AccountBalance(ctx, accountID)
		switch {
		case err != nil:
			r.log.Warn("could not read worker balance", "account_id", accountID, "err", err)
		case balance.Sign() > 0:
			r.log.Info("worker account funded", "account_id", accountID, "balance_near", nearrpc.FormatNEAR(balance))
			return balance, nil
		default:
			r.log.Info("worker account has no balance, waiting to be funded", "account_id", accountID,
				"poll_interval", r.cfg.FundingPollInterval)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-r.clock.After(r.cfg.FundingPollInterval):
		}
	}
}

// Attest runs the attestation path for publicKey. It never fails: any error
// yields an Unattested outcome with mock arguments and the reason.
func (r *Registrar) Attest(ctx context.Context, publicKey string) AttestationOutcome {
	outcome, err := r.attest(ctx, publicKey)
	if err != nil {
		return AttestationOutcome{Kind: Unattested, Args: MockRegistrationArgs(), Reason: err}
	}
	return *outcome
}

func (r *Registrar) attest(ctx context.Context, publicKey string) (*AttestationOutcome, error) {
	if r.attestation == nil {
		return nil, interfaces.ErrAttestationUnavailable
	}
	if r.collateral == nil {
		return nil, errors.New("no collateral service configured")
	}

	info, err := r.attestation.Info(ctx)
	if err != nil {
		return nil, fmt.Errorf("tcb info: %w", err)
	}

	reportData, err := cryptoutils.PublicKeyReportData(publicKey)
	if err != nil {
		return nil, err
	}

	quote, err := r.attestation.TdxQuote(ctx, reportData[:], tdxHashRaw)
	if err != nil {
		return nil, fmt.Errorf("tdx quote: %w", err)
	}

	measurements, err := cryptoutils.InspectQuote(quote.Quote, reportData)
	switch {
	case errors.Is(err, cryptoutils.ErrUnsupportedQuote):
		r.log.Warn("could not inspect quote locally, submitting it unchecked", "err", err)
	case err != nil:
		return nil, err
	default:
		r.log.Debug("quote matches worker public key", "mrtd", measurements[0])
	}

	quoteHex := hex.EncodeToString(quote.Quote)
	coll, err := r.collateral.Upload(ctx, quoteHex)
	if err != nil {
		return nil, fmt.Errorf("collateral: %w", err)
	}

	return &AttestationOutcome{
		Kind: Attested,
		Args: RegisterWorkerArgs{
			QuoteHex:   quoteHex,
			Collateral: coll.Collateral,
			Checksum:   coll.Checksum,
			TCBInfo:    info.TCBInfo,
		},
		Measurements: measurements,
	}, nil
}
