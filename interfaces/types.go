package interfaces

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
)

// ByteArray is a byte slice that travels as a JSON array of numbers, which is
// how the contract encodes fixed-size byte fields.
type ByteArray []byte

func (b ByteArray) MarshalJSON() ([]byte, error) {
	ints := make([]uint16, len(b))
	for i, v := range b {
		ints[i] = uint16(v)
	}
	return json.Marshal(ints)
}

// UnmarshalJSON accepts either an array of numbers or a base64 string.
func (b *ByteArray) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		decoded, err := base64.StdEncoding.DecodeString(s)
		if err != nil {
			return fmt.Errorf("invalid base64 byte array: %w", err)
		}
		*b = decoded
		return nil
	}

	var ints []int
	if err := json.Unmarshal(data, &ints); err != nil {
		return err
	}
	out := make([]byte, len(ints))
	for i, v := range ints {
		if v < 0 || v > 255 {
			return fmt.Errorf("byte array element %d out of range: %d", i, v)
		}
		out[i] = byte(v)
	}
	*b = out
	return nil
}

// YieldIndex is the contract's handle on a suspended request.
type YieldIndex struct {
	DataID string `json:"data_id"`
}

// PendingRequest is a randomness request the contract is waiting on.
type PendingRequest struct {
	RequestID  uint64      `json:"request_id"`
	RandomSeed ByteArray   `json:"random_seed"`
	YieldIndex *YieldIndex `json:"yield_index,omitempty"`
}

// Response is the payload of a respond call.
type Response struct {
	RequestID    uint64    `json:"request_id"`
	RandomNumber ByteArray `json:"random_number"`
	Signature    ByteArray `json:"signature"`
}

// WorkerRecord is the contract's view of a registered worker.
type WorkerRecord struct {
	PoolID   *uint64 `json:"pool_id,omitempty"`
	Checksum string  `json:"checksum"`
	Codehash string  `json:"codehash"`
}

// TxOutcome is the final result of a committed transaction.
type TxOutcome struct {
	TransactionHash string
	SuccessValue    []byte
}

// PassSummary describes the most recent polling pass.
type PassSummary struct {
	ID        string   `json:"id"`
	Fetched   int      `json:"fetched"`
	Fulfilled []uint64 `json:"fulfilled"`
	Failed    []uint64 `json:"failed"`
	Error     string   `json:"error,omitempty"`
}

// WorkerStatus is the pipeline status reported on the health surface.
type WorkerStatus struct {
	Running    bool         `json:"isRunning"`
	ContractID string       `json:"contractId"`
	State      string       `json:"state"`
	LastPass   *PassSummary `json:"lastPass,omitempty"`
}

var ErrAttestationUnavailable = errors.New("attestation unavailable")
