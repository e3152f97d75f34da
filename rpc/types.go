package rpc

import (
	"encoding/json"
	"fmt"

	"github.com/hoffmabc/arch-deploy/program"
)

// RuntimeTransaction is the submit form of a signed message: the signatures
// aligned one-to-one with the leading signer slice of the message's account
// keys.
type RuntimeTransaction struct {
	Version    uint32              `json:"version"`
	Signatures []program.Signature `json:"signatures"`
	Message    program.Message     `json:"message"`
}

// AccountInfo is the node's view of one account.
type AccountInfo struct {
	Lamports     uint64         `json:"lamports"`
	Owner        program.Pubkey `json:"owner"`
	Data         program.Bytes  `json:"data"`
	IsExecutable bool           `json:"is_executable"`
	UTXO         string         `json:"utxo"`
}

// ProcessedTransaction is the node's record of a submitted transaction. The
// node encodes status either as a bare string ("Processed") or as an object
// keyed by the failed variant, so Status keeps both forms flattened.
type ProcessedTransaction struct {
	RuntimeTransaction RuntimeTransaction `json:"runtime_transaction"`
	Status             TxStatus           `json:"status"`
}

// TxStatus is the processing status of a transaction.
type TxStatus struct {
	Kind   string // "Processed", "Failed", ...
	Reason string // populated for Failed
}

func (s *TxStatus) UnmarshalJSON(data []byte) error {
	var plain string
	if err := json.Unmarshal(data, &plain); err == nil {
		s.Kind = plain
		return nil
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("tx status: %w", err)
	}
	for k, v := range obj {
		s.Kind = k
		// Failed carries a reason string; other variants may carry
		// structures we don't need, keep them raw.
		var reason string
		if err := json.Unmarshal(v, &reason); err == nil {
			s.Reason = reason
		} else {
			s.Reason = string(v)
		}
		return nil
	}
	return fmt.Errorf("tx status: empty object")
}

func (s TxStatus) MarshalJSON() ([]byte, error) {
	if s.Reason == "" {
		return json.Marshal(s.Kind)
	}
	return json.Marshal(map[string]string{s.Kind: s.Reason})
}

// Processed reports whether the transaction reached a final processed state.
func (s TxStatus) Processed() bool {
	return s.Kind == "Processed"
}

// Failed reports whether the node rejected the transaction during execution.
func (s TxStatus) Failed() bool {
	return s.Kind == "Failed"
}
