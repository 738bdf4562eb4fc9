package interfaces

import (
	"context"
	"encoding/json"
	"math/big"
)

// ContractReader runs read-only contract methods.
type ContractReader interface {
	ViewFunction(ctx context.Context, contractID, method string, args any) (json.RawMessage, error)
}

// BalanceReader reports an account's spendable balance in yoctoNEAR.
type BalanceReader interface {
	AccountBalance(ctx context.Context, accountID string) (*big.Int, error)
}

// Viewer is a single ledger endpoint.
type Viewer interface {
	ContractReader
	BalanceReader

	// Name identifies the endpoint in logs and errors.
	Name() string
}

// Transactor submits signed function calls and waits for their final outcome.
type Transactor interface {
	FunctionCall(ctx context.Context, contractID, method string, args any, deposit *big.Int, gas uint64) (*TxOutcome, error)
}
