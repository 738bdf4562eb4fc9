package nearrpc

import (
	"crypto/ed25519"
	"crypto/sha256"
	"errors"
	"fmt"
	"math/big"

	"github.com/near/borsh-go"
)

const keyTypeED25519 uint8 = 0

// FunctionCallAction invokes a contract method.
type FunctionCallAction struct {
	MethodName string
	Args       []byte
	Gas        uint64
	Deposit    *big.Int
}

// Transaction is a function call transaction.
type Transaction struct {
	SignerID   string
	PublicKey  ed25519.PublicKey
	Nonce      uint64
	ReceiverID string
	BlockHash  [32]byte
	Actions    []FunctionCallAction
}

// Wire layouts. Field order is the encoding order.
type (
	wirePublicKey struct {
		KeyType uint8
		Data    [ed25519.PublicKeySize]byte
	}

	wireSignature struct {
		KeyType uint8
		Data    [ed25519.SignatureSize]byte
	}

	wireFunctionCall struct {
		MethodName string
		Args       []byte
		Gas        uint64
		Deposit    big.Int
	}

	// wireAction lists the action variants up to FunctionCall (index 2);
	// only the selected variant is encoded.
	wireAction struct {
		Enum           borsh.Enum `borsh_enum:"true"`
		CreateAccount  struct{}
		DeployContract struct{ Code []byte }
		FunctionCall   wireFunctionCall
	}

	wireTransaction struct {
		SignerID   string
		PublicKey  wirePublicKey
		Nonce      uint64
		ReceiverID string
		BlockHash  [32]byte
		Actions    []wireAction
	}
)

const actionFunctionCall borsh.Enum = 2

var maxU128 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 128), big.NewInt(1))

func (t *Transaction) wire() (*wireTransaction, error) {
	if len(t.PublicKey) != ed25519.PublicKeySize {
		return nil, errors.New("transaction public key must be 32 bytes")
	}

	w := &wireTransaction{
		SignerID:   t.SignerID,
		PublicKey:  wirePublicKey{KeyType: keyTypeED25519},
		Nonce:      t.Nonce,
		ReceiverID: t.ReceiverID,
		BlockHash:  t.BlockHash,
		Actions:    make([]wireAction, 0, len(t.Actions)),
	}
	copy(w.PublicKey.Data[:], t.PublicKey)

	for _, a := range t.Actions {
		call := wireFunctionCall{MethodName: a.MethodName, Args: a.Args, Gas: a.Gas}
		if a.Args == nil {
			call.Args = []byte{}
		}
		if a.Deposit != nil {
			if a.Deposit.Sign() < 0 || a.Deposit.Cmp(maxU128) > 0 {
				return nil, fmt.Errorf("deposit %s does not fit in u128", a.Deposit)
			}
			call.Deposit.Set(a.Deposit)
		}
		w.Actions = append(w.Actions, wireAction{Enum: actionFunctionCall, FunctionCall: call})
	}
	return w, nil
}

// Serialize returns the borsh encoding of t.
func (t *Transaction) Serialize() ([]byte, error) {
	w, err := t.wire()
	if err != nil {
		return nil, err
	}
	out, err := borsh.Serialize(*w)
	if err != nil {
		return nil, fmt.Errorf("could not encode transaction: %w", err)
	}
	return out, nil
}

// Hash is the value that gets signed and the transaction id.
func (t *Transaction) Hash() ([32]byte, []byte, error) {
	serialized, err := t.Serialize()
	if err != nil {
		return [32]byte{}, nil, err
	}
	return sha256.Sum256(serialized), serialized, nil
}

// SignedTransactionBytes appends the ed25519 signature to a serialized
// transaction.
func SignedTransactionBytes(serializedTx, signature []byte) ([]byte, error) {
	if len(signature) != ed25519.SignatureSize {
		return nil, errors.New("signature must be 64 bytes")
	}
	sig := wireSignature{KeyType: keyTypeED25519}
	copy(sig.Data[:], signature)

	encoded, err := borsh.Serialize(sig)
	if err != nil {
		return nil, fmt.Errorf("could not encode signature: %w", err)
	}
	return append(append([]byte{}, serializedTx...), encoded...), nil
}
