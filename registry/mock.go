package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"sync"

	"github.com/stretchr/testify/mock"

	"github.com/ruteri/tee-rng-worker/interfaces"
)

// MockLedger is an in-memory tee-rng contract. Its viewers and transactors
// serialise arguments to JSON exactly like the RPC client does.
type MockLedger struct {
	mu sync.Mutex

	ContractID    string
	Workers       map[string]*interfaces.WorkerRecord
	Pending       []interfaces.PendingRequest
	Balances      map[string]*big.Int
	Registrations []RegisterWorkerArgs
	Responses     []interfaces.Response

	// DropRegistrations accepts register_worker without storing the worker.
	DropRegistrations bool
	// FailRespond, when set, can reject individual respond calls.
	FailRespond func(interfaces.Response) error
	// RegistrationLag is the number of get_worker views after a registration
	// that still return null, like a node that has not seen the block yet.
	RegistrationLag int

	lagRemaining int
}

func NewMockLedger(contractID string) *MockLedger {
	return &MockLedger{
		ContractID: contractID,
		Workers:    make(map[string]*interfaces.WorkerRecord),
		Balances:   make(map[string]*big.Int),
	}
}

func (l *MockLedger) AddPending(reqs ...interfaces.PendingRequest) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Pending = append(l.Pending, reqs...)
}

func (l *MockLedger) SetBalance(accountID string, balance *big.Int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Balances[accountID] = balance
}

func (l *MockLedger) ResponsesSnapshot() []interfaces.Response {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]interfaces.Response(nil), l.Responses...)
}

func (l *MockLedger) RegistrationsSnapshot() []RegisterWorkerArgs {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]RegisterWorkerArgs(nil), l.Registrations...)
}

func (l *MockLedger) Viewer(name string) interfaces.Viewer {
	return &mockViewer{ledger: l, name: name}
}

func (l *MockLedger) Transactor(signerID string) interfaces.Transactor {
	return &mockTransactor{ledger: l, signerID: signerID}
}

type mockViewer struct {
	ledger *MockLedger
	name   string
}

func (v *mockViewer) Name() string { return v.name }

func (v *mockViewer) ViewFunction(ctx context.Context, contractID, method string, args any) (json.RawMessage, error) {
	l := v.ledger
	if contractID != l.ContractID {
		return nil, fmt.Errorf("unknown contract %s", contractID)
	}

	raw, err := json.Marshal(args)
	if err != nil {
		return nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	switch method {
	case "get_worker":
		var a struct {
			AccountID string `json:"account_id"`
		}
		if err := json.Unmarshal(raw, &a); err != nil {
			return nil, err
		}
		if l.lagRemaining > 0 {
			l.lagRemaining--
			return json.RawMessage("null"), nil
		}
		return json.Marshal(l.Workers[a.AccountID])
	case "get_pending_requests":
		var a struct {
			FromIndex uint64 `json:"from_index"`
			Limit     uint64 `json:"limit"`
		}
		if err := json.Unmarshal(raw, &a); err != nil {
			return nil, err
		}
		page := []interfaces.PendingRequest{}
		for i := a.FromIndex; i < uint64(len(l.Pending)) && uint64(len(page)) < a.Limit; i++ {
			page = append(page, l.Pending[i])
		}
		return json.Marshal(page)
	default:
		return nil, fmt.Errorf("unknown view method %s", method)
	}
}

func (v *mockViewer) AccountBalance(ctx context.Context, accountID string) (*big.Int, error) {
	v.ledger.mu.Lock()
	defer v.ledger.mu.Unlock()
	if b, ok := v.ledger.Balances[accountID]; ok {
		return new(big.Int).Set(b), nil
	}
	return new(big.Int), nil
}

type mockTransactor struct {
	ledger   *MockLedger
	signerID string
}

func (t *mockTransactor) FunctionCall(ctx context.Context, contractID, method string, args any, deposit *big.Int, gas uint64) (*interfaces.TxOutcome, error) {
	l := t.ledger
	if contractID != l.ContractID {
		return nil, fmt.Errorf("unknown contract %s", contractID)
	}

	raw, err := json.Marshal(args)
	if err != nil {
		return nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	switch method {
	case "register_worker":
		var a RegisterWorkerArgs
		if err := json.Unmarshal(raw, &a); err != nil {
			return nil, err
		}
		if deposit == nil || deposit.Sign() <= 0 {
			return nil, fmt.Errorf("register_worker requires a deposit")
		}
		l.Registrations = append(l.Registrations, a)
		l.lagRemaining = l.RegistrationLag
		if !l.DropRegistrations {
			l.Workers[t.signerID] = &interfaces.WorkerRecord{Checksum: a.Checksum, Codehash: "mock-codehash"}
		}
	case "respond":
		var resp interfaces.Response
		if err := json.Unmarshal(raw, &resp); err != nil {
			return nil, err
		}
		if l.FailRespond != nil {
			if err := l.FailRespond(resp); err != nil {
				return nil, err
			}
		}
		l.Responses = append(l.Responses, resp)
		remaining := l.Pending[:0]
		for _, p := range l.Pending {
			if p.RequestID != resp.RequestID {
				remaining = append(remaining, p)
			}
		}
		l.Pending = remaining
	default:
		return nil, fmt.Errorf("unknown method %s", method)
	}

	return &interfaces.TxOutcome{TransactionHash: fmt.Sprintf("tx-%s-%d", method, len(l.Responses)+len(l.Registrations))}, nil
}

// MockAttestationClient mocks interfaces.AttestationClient.
type MockAttestationClient struct {
	mock.Mock
}

func (m *MockAttestationClient) DeriveKey(ctx context.Context, path, subject string) ([]byte, error) {
	args := m.Called(path, subject)
	key, _ := args.Get(0).([]byte)
	return key, args.Error(1)
}

func (m *MockAttestationClient) Info(ctx context.Context) (*interfaces.TappdInfo, error) {
	args := m.Called()
	info, _ := args.Get(0).(*interfaces.TappdInfo)
	return info, args.Error(1)
}

func (m *MockAttestationClient) TdxQuote(ctx context.Context, reportData []byte, hashAlgorithm string) (*interfaces.TdxQuote, error) {
	args := m.Called(reportData, hashAlgorithm)
	quote, _ := args.Get(0).(*interfaces.TdxQuote)
	return quote, args.Error(1)
}

// MockCollateralService mocks interfaces.CollateralService.
type MockCollateralService struct {
	mock.Mock
}

func (m *MockCollateralService) Upload(ctx context.Context, quoteHex string) (*interfaces.QuoteCollateral, error) {
	args := m.Called(quoteHex)
	coll, _ := args.Get(0).(*interfaces.QuoteCollateral)
	return coll, args.Error(1)
}
