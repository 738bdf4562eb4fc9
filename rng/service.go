package rng

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/atomic"

	"github.com/ruteri/tee-rng-worker/clock"
	"github.com/ruteri/tee-rng-worker/cryptoutils"
	"github.com/ruteri/tee-rng-worker/interfaces"
	"github.com/ruteri/tee-rng-worker/metrics"
	"github.com/ruteri/tee-rng-worker/registry"
)

var (
	ErrAlreadyRunning                = errors.New("rng service already running")
	ErrHardwareRandomnessUnavailable = errors.New("hardware randomness unavailable")
	ErrPassPanicked                  = errors.New("polling pass panicked")
)

// State is the pipeline's current position.
type State string

const (
	StateIdle            State = "idle"
	StatePolling         State = "polling"
	StateProcessingBatch State = "processing_batch"
	StateGenerating      State = "generating"
	StateCommitting      State = "committing"
	StateSigning         State = "signing"
	StateSubmitting      State = "submitting"
	StateStopped         State = "stopped"
)

// RequestSource is the contract surface the pipeline consumes.
type RequestSource interface {
	ID() string
	GetPendingRequests(ctx context.Context, fromIndex, limit uint64) ([]interfaces.PendingRequest, error)
	Respond(ctx context.Context, resp interfaces.Response, gas uint64) (*interfaces.TxOutcome, error)
}

var _ RequestSource = (*registry.Contract)(nil)

type Config struct {
	PollInterval time.Duration
	// ErrorBackoff replaces PollInterval after a pass that panicked.
	ErrorBackoff   time.Duration
	PageSize       uint64
	RespondGas     uint64
	CommitmentHash cryptoutils.CommitmentHash
	// AllowSoftwareRandomness lets requests be answered with local
	// randomness when the enclave cannot derive keys. The values stay
	// unpredictable but are no longer rooted in the hardware.
	AllowSoftwareRandomness bool
}

func DefaultConfig() Config {
	return Config{
		PollInterval:            500 * time.Millisecond,
		ErrorBackoff:            time.Second,
		PageSize:                10,
		RespondGas:              registry.DefaultRespondGas,
		CommitmentHash:          cryptoutils.SHA3_256,
		AllowSoftwareRandomness: true,
	}
}

// PassResult describes one polling pass.
type PassResult struct {
	ID        string
	Fetched   int
	Fulfilled []uint64
	Failed    map[uint64]error
	// Duplicates are request ids that appeared more than once in the page.
	Duplicates []uint64
}

func (p *PassResult) summary() *interfaces.PassSummary {
	s := &interfaces.PassSummary{
		ID:        p.ID,
		Fetched:   p.Fetched,
		Fulfilled: append([]uint64{}, p.Fulfilled...),
		Failed:    []uint64{},
	}
	for id := range p.Failed {
		s.Failed = append(s.Failed, id)
	}
	sort.Slice(s.Failed, func(i, j int) bool { return s.Failed[i] < s.Failed[j] })
	return s
}

// Service answers pending randomness requests. Requests in a batch are
// processed one at a time; a failure on one request is logged and leaves it
// pending for the next pass.
type Service struct {
	cfg         Config
	contract    RequestSource
	attestation interfaces.AttestationClient
	signer      interfaces.Signer
	clock       clock.Clock
	metrics     *metrics.Metrics
	random      io.Reader
	log         *slog.Logger

	running  atomic.Bool
	state    atomic.String
	stopCh   chan struct{}
	stopOnce sync.Once

	mu       sync.Mutex
	lastPass *interfaces.PassSummary
}

func NewService(cfg Config, contract RequestSource, attestation interfaces.AttestationClient, signer interfaces.Signer, clk clock.Clock, m *metrics.Metrics, log *slog.Logger) *Service {
	if cfg.ErrorBackoff <= 0 {
		cfg.ErrorBackoff = 2 * cfg.PollInterval
	}
	if cfg.PageSize == 0 {
		cfg.PageSize = DefaultConfig().PageSize
	}
	if cfg.CommitmentHash == "" {
		cfg.CommitmentHash = cryptoutils.SHA3_256
	}

	s := &Service{
		cfg:         cfg,
		contract:    contract,
		attestation: attestation,
		signer:      signer,
		clock:       clk,
		metrics:     m,
		random:      rand.Reader,
		log:         log.With("module", "rng", "contract", contract.ID()),
		stopCh:      make(chan struct{}),
	}
	s.state.Store(string(StateIdle))
	return s
}

// WithRandom replaces the software randomness source.
func (s *Service) WithRandom(r io.Reader) *Service {
	s.random = r
	return s
}

func (s *Service) setState(st State) { s.state.Store(string(st)) }

func (s *Service) State() State { return State(s.state.Load()) }

// Start runs the polling loop until Stop is called or ctx is done. Stop is
// observed between passes; a pass in progress always completes.
func (s *Service) Start(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		s.log.Warn("rng service is already running")
		return ErrAlreadyRunning
	}
	defer func() {
		s.running.Store(false)
		s.setState(StateStopped)
	}()

	s.log.Info("starting rng service",
		"poll_interval", s.cfg.PollInterval,
		"page_size", s.cfg.PageSize,
		"commitment_hash", string(s.cfg.CommitmentHash),
		"allow_software_randomness", s.cfg.AllowSoftwareRandomness)

	for {
		select {
		case <-s.stopCh:
			s.log.Info("rng service stopped")
			return nil
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		delay := s.cfg.PollInterval
		if err := s.runPass(ctx); err != nil {
			s.log.Error("error in rng service loop", "err", err, "backoff", s.cfg.ErrorBackoff)
			delay = s.cfg.ErrorBackoff
		}
		s.setState(StateIdle)

		select {
		case <-s.stopCh:
			s.log.Info("rng service stopped")
			return nil
		case <-ctx.Done():
			return ctx.Err()
		case <-s.clock.After(delay):
		}
	}
}

// Stop asks the loop to exit after the current pass. It does not wait.
func (s *Service) Stop() {
	s.stopOnce.Do(func() {
		s.log.Info("stopping rng service")
		close(s.stopCh)
	})
	if !s.running.Load() {
		s.setState(StateStopped)
	}
}

func (s *Service) Status() interfaces.WorkerStatus {
	s.mu.Lock()
	last := s.lastPass
	s.mu.Unlock()

	return interfaces.WorkerStatus{
		Running:    s.running.Load(),
		ContractID: s.contract.ID(),
		State:      string(s.State()),
		LastPass:   last,
	}
}

// runPass runs one pass. Fetch failures are handled inside; only a panic
// escapes as an error.
func (s *Service) runPass(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrPassPanicked, r)
		}
	}()

	if _, err := s.RunOnce(ctx); err != nil {
		s.log.Error("polling pass failed", "err", err)
	}
	return nil
}

// RunOnce fetches one page of pending requests and processes each distinct
// request once.
func (s *Service) RunOnce(ctx context.Context) (*PassResult, error) {
	result := &PassResult{ID: uuid.NewString(), Failed: make(map[uint64]error)}
	log := s.log.With("pass_id", result.ID)
	start := s.clock.Now()

	s.setState(StatePolling)
	requests, err := s.contract.GetPendingRequests(ctx, 0, s.cfg.PageSize)
	if err != nil {
		s.recordPass(result, err)
		return nil, fmt.Errorf("fetching pending requests: %w", err)
	}
	result.Fetched = len(requests)
	s.metrics.PollPass(len(requests))

	if len(requests) == 0 {
		s.recordPass(result, nil)
		return result, nil
	}

	log.Info("found pending requests", "count", len(requests))
	s.setState(StateProcessingBatch)

	seen := make(map[uint64]struct{}, len(requests))
	for _, req := range requests {
		if _, dup := seen[req.RequestID]; dup {
			log.Warn("duplicate request in page, skipping", "request_id", req.RequestID)
			result.Duplicates = append(result.Duplicates, req.RequestID)
			continue
		}
		seen[req.RequestID] = struct{}{}

		reqLog := log.With("request_id", req.RequestID)
		if err := s.processRequest(ctx, req, reqLog); err != nil {
			reqLog.Error("error processing request", "err", err)
			result.Failed[req.RequestID] = err
			continue
		}
		result.Fulfilled = append(result.Fulfilled, req.RequestID)
	}

	log.Info("polling pass complete",
		"fulfilled", len(result.Fulfilled),
		"failed", len(result.Failed),
		"duration", s.clock.Now().Sub(start))
	s.recordPass(result, nil)
	return result, nil
}

func (s *Service) recordPass(result *PassResult, err error) {
	summary := result.summary()
	if err != nil {
		summary.Error = err.Error()
	}
	s.mu.Lock()
	s.lastPass = summary
	s.mu.Unlock()
}

func (s *Service) processRequest(ctx context.Context, req interfaces.PendingRequest, log *slog.Logger) error {
	fail := func(stage State, err error) error {
		s.metrics.RequestFailed(string(stage))
		return fmt.Errorf("%s: %w", stage, err)
	}

	if len(req.RandomSeed) != cryptoutils.SeedSize {
		return fail(StateGenerating, fmt.Errorf("seed must be %d bytes, got %d", cryptoutils.SeedSize, len(req.RandomSeed)))
	}

	s.setState(StateGenerating)
	random, err := s.GenerateRandomNumber(ctx, req.RandomSeed, log)
	if err != nil {
		return fail(StateGenerating, err)
	}

	s.setState(StateCommitting)
	_, commitment, err := cryptoutils.Commitment(s.cfg.CommitmentHash, req.RequestID, req.RandomSeed, random)
	if err != nil {
		return fail(StateCommitting, err)
	}

	s.setState(StateSigning)
	signature, err := s.signer.Sign(commitment[:])
	if err != nil {
		return fail(StateSigning, err)
	}
	if len(signature) == 0 {
		return fail(StateSigning, errors.New("empty signature"))
	}

	s.setState(StateSubmitting)
	outcome, err := s.contract.Respond(ctx, interfaces.Response{
		RequestID:    req.RequestID,
		RandomNumber: random,
		Signature:    signature,
	}, s.cfg.RespondGas)
	if err != nil {
		return fail(StateSubmitting, err)
	}

	s.metrics.RequestFulfilled()
	log.Info("request fulfilled", "tx_hash", outcome.TransactionHash)
	return nil
}

// GenerateRandomNumber returns sha256(hw[:32] || seed), where hw is key
// material the enclave derives for the hex-encoded seed. Without an enclave
// it returns 32 bytes of local randomness if allowed.
func (s *Service) GenerateRandomNumber(ctx context.Context, seed []byte, log *slog.Logger) ([]byte, error) {
	hwErr := interfaces.ErrAttestationUnavailable
	if s.attestation != nil {
		seedHex := hex.EncodeToString(seed)
		key, err := s.attestation.DeriveKey(ctx, seedHex, seedHex)
		if err == nil && len(key) < 32 {
			err = errors.New("derived key material shorter than 32 bytes")
		}
		if err == nil {
			h := sha256.New()
			h.Write(key[:32])
			h.Write(seed)
			return h.Sum(nil), nil
		}
		hwErr = err
	}

	if !s.cfg.AllowSoftwareRandomness {
		return nil, fmt.Errorf("%w: %w", ErrHardwareRandomnessUnavailable, hwErr)
	}

	log.Warn("TEE key derivation unavailable, using software randomness", "err", hwErr)
	s.metrics.SoftwareRandomness()

	random := make([]byte, cryptoutils.RandomSize)
	if _, err := io.ReadFull(s.random, random); err != nil {
		return nil, fmt.Errorf("software randomness: %w", err)
	}
	return random, nil
}
