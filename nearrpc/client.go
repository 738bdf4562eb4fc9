package nearrpc

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"

	"github.com/flashbots/go-utils/rpcclient"

	"github.com/ruteri/tee-rng-worker/cryptoutils"
	"github.com/ruteri/tee-rng-worker/interfaces"
)

var (
	ErrUnknownAccount    = errors.New("unknown account")
	ErrNoSigner          = errors.New("no signer configured")
	ErrTransactionFailed = errors.New("transaction failed")
)

// storageBytePrice is the yoctoNEAR cost of one byte of account storage
// (10^19).
var storageBytePrice = new(big.Int).Exp(big.NewInt(10), big.NewInt(19), nil)

// Finality values accepted by query.
const (
	FinalityOptimistic = "optimistic"
	FinalityFinal      = "final"
)

var (
	_ interfaces.Viewer     = (*Client)(nil)
	_ interfaces.Transactor = (*Client)(nil)
)

// Client is a single ledger RPC endpoint. Reads use optimistic finality by
// default so that they observe transactions broadcast_tx_commit has just
// returned for.
type Client struct {
	url      string
	rpc      rpcclient.RPCClient
	signer   interfaces.Signer
	finality string
	log      *slog.Logger
}

func NewClient(url string, log *slog.Logger) *Client {
	return &Client{
		url:      url,
		rpc:      rpcclient.NewClient(url),
		finality: FinalityOptimistic,
		log:      log.With("module", "nearrpc", "endpoint", url),
	}
}

// WithFinality sets the finality of reads, FinalityOptimistic or
// FinalityFinal.
func (c *Client) WithFinality(finality string) *Client {
	c.finality = finality
	return c
}

// WithSigner enables FunctionCall, signing transactions as signer.
func (c *Client) WithSigner(signer interfaces.Signer) *Client {
	c.signer = signer
	return c
}

func (c *Client) Name() string { return c.url }

type queryResult struct {
	Result      interfaces.ByteArray `json:"result"`
	Logs        []string             `json:"logs"`
	BlockHeight uint64               `json:"block_height"`
	BlockHash   string               `json:"block_hash"`
	Error       string               `json:"error"`
}

type accountView struct {
	Amount       string `json:"amount"`
	Locked       string `json:"locked"`
	StorageUsage uint64 `json:"storage_usage"`
	CodeHash     string `json:"code_hash"`
}

type accessKeyView struct {
	Nonce     uint64 `json:"nonce"`
	BlockHash string `json:"block_hash"`
	Error     string `json:"error"`
}

// query sends params as a by-name JSON object; the node rejects positional
// params for this method.
func (c *Client) query(ctx context.Context, params map[string]any, out any) error {
	params["finality"] = c.finality
	resp, err := c.rpc.CallRaw(ctx, rpcclient.NewRequestWithObjectParam(0, "query", params))
	if err != nil {
		return fmt.Errorf("%s %v: %w", c.url, params["request_type"], err)
	}
	if resp.Error != nil {
		if isUnknownAccount(resp.Error) {
			return fmt.Errorf("%w: %s", ErrUnknownAccount, resp.Error.Message)
		}
		return fmt.Errorf("%s %v: %w", c.url, params["request_type"], resp.Error)
	}
	if err := resp.GetObject(out); err != nil {
		return fmt.Errorf("%s %v: decoding result: %w", c.url, params["request_type"], err)
	}
	return nil
}

func isUnknownAccount(rpcErr *rpcclient.RPCError) bool {
	detail := strings.ToLower(fmt.Sprint(rpcErr.Message, " ", rpcErr.Data))
	return strings.Contains(detail, "unknown_account") || strings.Contains(detail, "does not exist")
}

// ViewFunction runs a read-only contract method and returns its JSON result.
func (c *Client) ViewFunction(ctx context.Context, contractID, method string, args any) (json.RawMessage, error) {
	argsJSON, err := json.Marshal(args)
	if err != nil {
		return nil, fmt.Errorf("could not encode %s args: %w", method, err)
	}

	var res queryResult
	err = c.query(ctx, map[string]any{
		"request_type": "call_function",
		"account_id":   contractID,
		"method_name":  method,
		"args_base64":  base64.StdEncoding.EncodeToString(argsJSON),
	}, &res)
	if err != nil {
		return nil, err
	}
	if res.Error != "" {
		return nil, fmt.Errorf("%s view %s failed: %s", c.url, method, res.Error)
	}
	if len(res.Result) == 0 {
		return json.RawMessage("null"), nil
	}
	if !json.Valid(res.Result) {
		return nil, fmt.Errorf("%s view %s returned non-JSON result", c.url, method)
	}

	c.log.Debug("view call", "method", method, "block_height", res.BlockHeight)
	return json.RawMessage(res.Result), nil
}

// AccountBalance returns the available balance in yoctoNEAR: total minus the
// part locked for storage. Accounts that do not exist have zero balance.
func (c *Client) AccountBalance(ctx context.Context, accountID string) (*big.Int, error) {
	var view accountView
	err := c.query(ctx, map[string]any{
		"request_type": "view_account",
		"account_id":   accountID,
	}, &view)
	if errors.Is(err, ErrUnknownAccount) {
		return new(big.Int), nil
	}
	if err != nil {
		return nil, err
	}
	return AvailableBalance(view.Amount, view.Locked, view.StorageUsage)
}

// AvailableBalance computes amount + locked - max(locked, storage cost).
func AvailableBalance(amount, locked string, storageUsage uint64) (*big.Int, error) {
	total, ok := new(big.Int).SetString(amount, 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount %q", amount)
	}
	staked, ok := new(big.Int).SetString(locked, 10)
	if !ok {
		return nil, fmt.Errorf("invalid locked amount %q", locked)
	}

	reserved := new(big.Int).Mul(new(big.Int).SetUint64(storageUsage), storageBytePrice)
	if staked.Cmp(reserved) > 0 {
		reserved = staked
	}

	available := new(big.Int).Add(total, staked)
	available.Sub(available, reserved)
	if available.Sign() < 0 {
		available.SetInt64(0)
	}
	return available, nil
}

// FunctionCall signs and submits a single function call and waits for its
// final execution outcome.
func (c *Client) FunctionCall(ctx context.Context, contractID, method string, args any, deposit *big.Int, gas uint64) (*interfaces.TxOutcome, error) {
	if c.signer == nil {
		return nil, ErrNoSigner
	}

	argsJSON, err := json.Marshal(args)
	if err != nil {
		return nil, fmt.Errorf("could not encode %s args: %w", method, err)
	}

	publicKey, err := cryptoutils.DecodePublicKey(c.signer.PublicKey())
	if err != nil {
		return nil, err
	}

	var key accessKeyView
	err = c.query(ctx, map[string]any{
		"request_type": "view_access_key",
		"account_id":   c.signer.SignerID(),
		"public_key":   c.signer.PublicKey(),
	}, &key)
	if err != nil {
		return nil, fmt.Errorf("could not read access key: %w", err)
	}
	if key.Error != "" {
		return nil, fmt.Errorf("could not read access key: %s", key.Error)
	}

	blockHash, err := cryptoutils.DecodeBase58Hash(key.BlockHash)
	if err != nil {
		return nil, err
	}

	tx := &Transaction{
		SignerID:   c.signer.SignerID(),
		PublicKey:  publicKey,
		Nonce:      key.Nonce + 1,
		ReceiverID: contractID,
		BlockHash:  blockHash,
		Actions: []FunctionCallAction{{
			MethodName: method,
			Args:       argsJSON,
			Gas:        gas,
			Deposit:    deposit,
		}},
	}

	hash, serialized, err := tx.Hash()
	if err != nil {
		return nil, err
	}
	signature, err := c.signer.Sign(hash[:])
	if err != nil {
		return nil, fmt.Errorf("could not sign transaction: %w", err)
	}
	signed, err := SignedTransactionBytes(serialized, signature)
	if err != nil {
		return nil, err
	}

	txHash := cryptoutils.EncodeBase58(hash[:])
	log := c.log.With("method", method, "tx_hash", txHash, "nonce", tx.Nonce)
	log.Debug("submitting transaction")

	var outcome txResult
	if err := c.rpc.CallFor(ctx, &outcome, "broadcast_tx_commit", base64.StdEncoding.EncodeToString(signed)); err != nil {
		return nil, fmt.Errorf("%s broadcast %s: %w", c.url, method, err)
	}

	return outcome.toOutcome(txHash)
}

type txResult struct {
	Status struct {
		SuccessValue *string         `json:"SuccessValue"`
		Failure      json.RawMessage `json:"Failure"`
	} `json:"status"`
	Transaction struct {
		Hash string `json:"hash"`
	} `json:"transaction"`
}

func (r *txResult) toOutcome(fallbackHash string) (*interfaces.TxOutcome, error) {
	hash := r.Transaction.Hash
	if hash == "" {
		hash = fallbackHash
	}

	if len(r.Status.Failure) > 0 && !bytes.Equal(r.Status.Failure, []byte("null")) {
		return nil, fmt.Errorf("%w: %s: %s", ErrTransactionFailed, hash, string(r.Status.Failure))
	}
	if r.Status.SuccessValue == nil {
		return nil, fmt.Errorf("%w: %s: no success value", ErrTransactionFailed, hash)
	}

	value, err := base64.StdEncoding.DecodeString(*r.Status.SuccessValue)
	if err != nil {
		return nil, fmt.Errorf("invalid success value: %w", err)
	}
	return &interfaces.TxOutcome{TransactionHash: hash, SuccessValue: value}, nil
}
