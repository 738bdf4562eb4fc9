// Package registry binds the tee-rng contract and registers the worker with it.
package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/ruteri/tee-rng-worker/interfaces"
)

const (
	// TGas is 10^12 gas units.
	TGas uint64 = 1_000_000_000_000

	DefaultRegisterGas = 200 * TGas
	DefaultRespondGas  = 200 * TGas
)

// DefaultRegisterDeposit is one yoctoNEAR, the minimum the contract accepts.
func DefaultRegisterDeposit() *big.Int { return big.NewInt(1) }

// RegisterWorkerArgs are the arguments of register_worker. All fields are
// strings; an unattested registration leaves the first three empty and sets
// TCBInfo to "{}".
type RegisterWorkerArgs struct {
	QuoteHex   string `json:"quote_hex"`
	Collateral string `json:"collateral"`
	Checksum   string `json:"checksum"`
	TCBInfo    string `json:"tcb_info"`
}

// Contract is a typed client for the tee-rng contract. Reads go through the
// cross-checked reader; writes through the transactor.
type Contract struct {
	id         string
	reader     interfaces.ContractReader
	transactor interfaces.Transactor
}

func NewContract(contractID string, reader interfaces.ContractReader, transactor interfaces.Transactor) *Contract {
	return &Contract{
		id:         contractID,
		reader:     reader,
		transactor: transactor,
	}
}

func (c *Contract) ID() string { return c.id }

// GetWorker returns the registration record for accountID, or nil if the
// account is not registered.
func (c *Contract) GetWorker(ctx context.Context, accountID string) (*interfaces.WorkerRecord, error) {
	res, err := c.reader.ViewFunction(ctx, c.id, "get_worker", map[string]string{"account_id": accountID})
	if err != nil {
		return nil, fmt.Errorf("get_worker: %w", err)
	}

	var record *interfaces.WorkerRecord
	if err := json.Unmarshal(res, &record); err != nil {
		return nil, fmt.Errorf("get_worker: invalid response: %w", err)
	}
	return record, nil
}

// GetPendingRequests returns up to limit pending requests starting at fromIndex.
func (c *Contract) GetPendingRequests(ctx context.Context, fromIndex, limit uint64) ([]interfaces.PendingRequest, error) {
	res, err := c.reader.ViewFunction(ctx, c.id, "get_pending_requests", map[string]uint64{
		"from_index": fromIndex,
		"limit":      limit,
	})
	if err != nil {
		return nil, fmt.Errorf("get_pending_requests: %w", err)
	}

	var requests []interfaces.PendingRequest
	if err := json.Unmarshal(res, &requests); err != nil {
		return nil, fmt.Errorf("get_pending_requests: invalid response: %w", err)
	}
	return requests, nil
}

func (c *Contract) RegisterWorker(ctx context.Context, args RegisterWorkerArgs, deposit *big.Int, gas uint64) (*interfaces.TxOutcome, error) {
	outcome, err := c.transactor.FunctionCall(ctx, c.id, "register_worker", args, deposit, gas)
	if err != nil {
		return nil, fmt.Errorf("register_worker: %w", err)
	}
	return outcome, nil
}

// Respond submits a fulfilled request. No deposit is attached.
func (c *Contract) Respond(ctx context.Context, resp interfaces.Response, gas uint64) (*interfaces.TxOutcome, error) {
	outcome, err := c.transactor.FunctionCall(ctx, c.id, "respond", resp, new(big.Int), gas)
	if err != nil {
		return nil, fmt.Errorf("respond %d: %w", resp.RequestID, err)
	}
	return outcome, nil
}
