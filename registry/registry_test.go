package registry

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"math/big"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/ruteri/tee-rng-worker/clock"
	"github.com/ruteri/tee-rng-worker/crosscheck"
	"github.com/ruteri/tee-rng-worker/cryptoutils"
	"github.com/ruteri/tee-rng-worker/interfaces"
	"github.com/ruteri/tee-rng-worker/kms"
)

const contractID = "rng.testnet"

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testIdentity(t *testing.T) *interfaces.Identity {
	t.Helper()
	id, err := kms.IdentityFromSeed([32]byte{0xaa})
	require.NoError(t, err)
	return id
}

func setup(t *testing.T, ledger *MockLedger, id *interfaces.Identity) (*Contract, *crosscheck.Reader) {
	t.Helper()
	reader, err := crosscheck.NewReader([]interfaces.Viewer{ledger.Viewer("a"), ledger.Viewer("b")}, testLogger())
	require.NoError(t, err)
	return NewContract(contractID, reader, ledger.Transactor(id.SignerID())), reader
}

func TestContractGetPendingRequests(t *testing.T) {
	ledger := NewMockLedger(contractID)
	ledger.AddPending(
		interfaces.PendingRequest{RequestID: 1, RandomSeed: make([]byte, 32)},
		interfaces.PendingRequest{RequestID: 2, RandomSeed: make([]byte, 32)},
	)
	contract, _ := setup(t, ledger, testIdentity(t))

	reqs, err := contract.GetPendingRequests(context.Background(), 0, 10)
	require.NoError(t, err)
	require.Len(t, reqs, 2)
	assert.Equal(t, uint64(2), reqs[1].RequestID)

	reqs, err = contract.GetPendingRequests(context.Background(), 0, 1)
	require.NoError(t, err)
	assert.Len(t, reqs, 1)
}

func TestEnsureRegisteredAlreadyRegistered(t *testing.T) {
	id := testIdentity(t)
	ledger := NewMockLedger(contractID)
	ledger.Workers[id.SignerID()] = &interfaces.WorkerRecord{Checksum: "existing", Codehash: "h"}
	contract, reader := setup(t, ledger, id)

	att := &MockAttestationClient{}
	registrar := NewRegistrar(DefaultRegistrarConfig(), contract, reader, att, nil, clock.Fake(time.Unix(0, 0)), testLogger())

	record, err := registrar.EnsureRegistered(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "existing", record.Checksum)
	assert.Empty(t, ledger.RegistrationsSnapshot())
	att.AssertNotCalled(t, "Info")
}

func TestEnsureRegisteredMockFallbackWaitsForFunding(t *testing.T) {
	id := testIdentity(t)
	ledger := NewMockLedger(contractID)
	contract, reader := setup(t, ledger, id)

	clk := clock.Fake(time.Unix(0, 0))
	cfg := DefaultRegistrarConfig()
	registrar := NewRegistrar(cfg, contract, reader, nil, nil, clk, testLogger())

	type result struct {
		record *interfaces.WorkerRecord
		err    error
	}
	done := make(chan result, 1)
	go func() {
		record, err := registrar.EnsureRegistered(context.Background(), id)
		done <- result{record, err}
	}()

	clk.WaitForTimers(1)
	assert.Empty(t, ledger.RegistrationsSnapshot())

	ledger.SetBalance(id.SignerID(), big.NewInt(1))
	clk.Advance(cfg.FundingPollInterval)

	select {
	case res := <-done:
		require.NoError(t, res.err)
		require.NotNil(t, res.record)
	case <-time.After(5 * time.Second):
		t.Fatal("registration did not complete")
	}

	regs := ledger.RegistrationsSnapshot()
	require.Len(t, regs, 1)
	assert.Equal(t, MockRegistrationArgs(), regs[0])

	encoded, err := json.Marshal(regs[0])
	require.NoError(t, err)
	assert.JSONEq(t, `{"quote_hex":"","collateral":"","checksum":"","tcb_info":"{}"}`, string(encoded))
}

func TestEnsureRegisteredAttested(t *testing.T) {
	id := testIdentity(t)
	ledger := NewMockLedger(contractID)
	ledger.SetBalance(id.SignerID(), big.NewInt(5))
	contract, reader := setup(t, ledger, id)

	expectedReportData, err := cryptoutils.PublicKeyReportData(id.PublicKey())
	require.NoError(t, err)
	quote := []byte{0xde, 0xad, 0xbe, 0xef}

	att := &MockAttestationClient{}
	att.On("Info").Return(&interfaces.TappdInfo{TCBInfo: `{"rtmr0":"aa"}`}, nil)
	att.On("TdxQuote", expectedReportData[:], "raw").Return(&interfaces.TdxQuote{Quote: quote}, nil)

	coll := &MockCollateralService{}
	coll.On("Upload", "deadbeef").Return(&interfaces.QuoteCollateral{Checksum: "sum", Collateral: `{"a":1}`}, nil)

	registrar := NewRegistrar(DefaultRegistrarConfig(), contract, reader, att, coll, clock.Fake(time.Unix(0, 0)), testLogger())
	record, err := registrar.EnsureRegistered(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "sum", record.Checksum)

	att.AssertExpectations(t)
	coll.AssertExpectations(t)
	assert.Equal(t, []RegisterWorkerArgs{{
		QuoteHex:   hex.EncodeToString(quote),
		Collateral: `{"a":1}`,
		Checksum:   "sum",
		TCBInfo:    `{"rtmr0":"aa"}`,
	}}, ledger.RegistrationsSnapshot())
}

func TestAttestFallsBackOnAnyFailure(t *testing.T) {
	id := testIdentity(t)
	ledger := NewMockLedger(contractID)
	contract, reader := setup(t, ledger, id)

	tests := []struct {
		name  string
		setup func(att *MockAttestationClient, coll *MockCollateralService)
	}{
		{"no agent", func(att *MockAttestationClient, coll *MockCollateralService) {
			att.On("Info").Return(nil, interfaces.ErrAttestationUnavailable)
		}},
		{"quote fails", func(att *MockAttestationClient, coll *MockCollateralService) {
			att.On("Info").Return(&interfaces.TappdInfo{TCBInfo: "{}"}, nil)
			att.On("TdxQuote", mock.Anything, "raw").Return(nil, errors.New("no tdx"))
		}},
		{"collateral offline", func(att *MockAttestationClient, coll *MockCollateralService) {
			att.On("Info").Return(&interfaces.TappdInfo{TCBInfo: "{}"}, nil)
			att.On("TdxQuote", mock.Anything, "raw").Return(&interfaces.TdxQuote{Quote: []byte{1}}, nil)
			coll.On("Upload", "01").Return(nil, errors.New("connection refused"))
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			att := &MockAttestationClient{}
			coll := &MockCollateralService{}
			tt.setup(att, coll)

			registrar := NewRegistrar(DefaultRegistrarConfig(), contract, reader, att, coll, clock.Real(), testLogger())
			outcome := registrar.Attest(context.Background(), id.PublicKey())
			assert.Equal(t, Unattested, outcome.Kind)
			assert.Equal(t, MockRegistrationArgs(), outcome.Args)
			assert.Error(t, outcome.Reason)
		})
	}
}

func TestEnsureRegisteredInconsistency(t *testing.T) {
	id := testIdentity(t)
	ledger := NewMockLedger(contractID)
	ledger.DropRegistrations = true
	ledger.SetBalance(id.SignerID(), big.NewInt(1))
	contract, reader := setup(t, ledger, id)

	cfg := DefaultRegistrarConfig()
	cfg.ConfirmInterval = time.Millisecond
	registrar := NewRegistrar(cfg, contract, reader, nil, nil, clock.Real(), testLogger())
	_, err := registrar.EnsureRegistered(context.Background(), id)
	assert.ErrorIs(t, err, ErrRegistrationInconsistent)

	_, err = registrar.EnsureRegisteredWithRetry(context.Background(), id)
	assert.ErrorIs(t, err, ErrRegistrationInconsistent)
}

func TestEnsureRegisteredWaitsForLaggingRecord(t *testing.T) {
	id := testIdentity(t)
	ledger := NewMockLedger(contractID)
	// Both endpoints return null for the first read after the transaction.
	ledger.RegistrationLag = 2
	ledger.SetBalance(id.SignerID(), big.NewInt(1))
	contract, reader := setup(t, ledger, id)

	clk := clock.Fake(time.Unix(0, 0))
	cfg := DefaultRegistrarConfig()
	registrar := NewRegistrar(cfg, contract, reader, nil, nil, clk, testLogger())

	done := make(chan error, 1)
	go func() {
		_, err := registrar.EnsureRegisteredWithRetry(context.Background(), id)
		done <- err
	}()

	clk.WaitForTimers(1)
	clk.Advance(cfg.ConfirmInterval)

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("registration was not confirmed")
	}
	assert.Len(t, ledger.RegistrationsSnapshot(), 1)
}

type flakyReader struct {
	interfaces.ContractReader
	failures atomic.Int32
}

func (f *flakyReader) ViewFunction(ctx context.Context, contractID, method string, args any) (json.RawMessage, error) {
	if f.failures.Add(-1) >= 0 {
		return nil, crosscheck.ErrReadInconsistency
	}
	return f.ContractReader.ViewFunction(ctx, contractID, method, args)
}

func TestEnsureRegisteredWithRetryRecoversFromReadFailure(t *testing.T) {
	id := testIdentity(t)
	ledger := NewMockLedger(contractID)
	ledger.SetBalance(id.SignerID(), big.NewInt(1))
	_, reader := setup(t, ledger, id)

	flaky := &flakyReader{ContractReader: reader}
	flaky.failures.Store(1)
	contract := NewContract(contractID, flaky, ledger.Transactor(id.SignerID()))

	clk := clock.Fake(time.Unix(0, 0))
	cfg := DefaultRegistrarConfig()
	registrar := NewRegistrar(cfg, contract, reader, nil, nil, clk, testLogger())

	done := make(chan error, 1)
	go func() {
		_, err := registrar.EnsureRegisteredWithRetry(context.Background(), id)
		done <- err
	}()

	clk.WaitForTimers(1)
	clk.Advance(cfg.RetryInterval)

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("retry did not complete")
	}
	assert.Len(t, ledger.RegistrationsSnapshot(), 1)
}

func TestWaitForFundingCancelled(t *testing.T) {
	id := testIdentity(t)
	ledger := NewMockLedger(contractID)
	contract, reader := setup(t, ledger, id)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	registrar := NewRegistrar(DefaultRegistrarConfig(), contract, reader, nil, nil, clock.Fake(time.Unix(0, 0)), testLogger())
	_, err := registrar.WaitForFunding(ctx, id.SignerID())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRespondEncodesByteArrays(t *testing.T) {
	id := testIdentity(t)
	ledger := NewMockLedger(contractID)
	contract, _ := setup(t, ledger, id)

	_, err := contract.Respond(context.Background(), interfaces.Response{
		RequestID:    9,
		RandomNumber: bytes.Repeat([]byte{1}, 32),
		Signature:    bytes.Repeat([]byte{2}, 64),
	}, DefaultRespondGas)
	require.NoError(t, err)

	responses := ledger.ResponsesSnapshot()
	require.Len(t, responses, 1)
	assert.Equal(t, uint64(9), responses[0].RequestID)
	assert.Len(t, responses[0].RandomNumber, 32)
}
