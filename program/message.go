package program

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrUnresolvableAccount is returned when an instruction references a key
// that never made it into the compiled account list. It indicates a bug in
// instruction construction, not a recoverable runtime condition.
var ErrUnresolvableAccount = errors.New("instruction references unresolvable account")

// ErrProgramIsFeePayer is returned when an instruction's program ID compiles
// to index 0. The fee payer can never be the invoked program.
var ErrProgramIsFeePayer = errors.New("program ID resolves to fee payer index")

// MessageHeader carries the signer/readonly counts the validator uses to
// partition the account key list.
type MessageHeader struct {
	NumRequiredSignatures       uint8 `json:"num_required_signatures"`
	NumReadonlySignedAccounts   uint8 `json:"num_readonly_signed_accounts"`
	NumReadonlyUnsignedAccounts uint8 `json:"num_readonly_unsigned_accounts"`
}

// SanitizedInstruction is an instruction with every account reference
// resolved to an index into the message's account key list.
type SanitizedInstruction struct {
	ProgramIDIndex uint8   `json:"program_id_index"`
	Accounts       []uint8 `json:"accounts"`
	Data           []byte  `json:"data"`
}

// MarshalJSON encodes the account indices and data as number arrays to
// match the node's serde layout.
func (si SanitizedInstruction) MarshalJSON() ([]byte, error) {
	type alias struct {
		ProgramIDIndex uint8 `json:"program_id_index"`
		Accounts       []int `json:"accounts"`
		Data           Bytes `json:"data"`
	}
	accounts := make([]int, len(si.Accounts))
	for i, v := range si.Accounts {
		accounts[i] = int(v)
	}
	return json.Marshal(alias{
		ProgramIDIndex: si.ProgramIDIndex,
		Accounts:       accounts,
		Data:           Bytes(si.Data),
	})
}

func (si *SanitizedInstruction) UnmarshalJSON(data []byte) error {
	type alias struct {
		ProgramIDIndex uint8 `json:"program_id_index"`
		Accounts       []int `json:"accounts"`
		Data           Bytes `json:"data"`
	}
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	si.ProgramIDIndex = a.ProgramIDIndex
	si.Accounts = make([]uint8, len(a.Accounts))
	for i, v := range a.Accounts {
		if v < 0 || v > 255 {
			return fmt.Errorf("account index %d out of range: %d", i, v)
		}
		si.Accounts[i] = uint8(v)
	}
	si.Data = a.Data
	return nil
}

// Message is the compiled, index-based form of a transaction message: the
// deduplicated key list, the header partition counts, the anchoring
// blockhash and the sanitized instructions. Its canonical serialization is
// what gets hashed and signed, so compilation must be deterministic.
type Message struct {
	Header          MessageHeader          `json:"header"`
	AccountKeys     []Pubkey               `json:"account_keys"`
	RecentBlockhash Hash                   `json:"recent_blockhash"`
	Instructions    []SanitizedInstruction `json:"instructions"`
}

// Compile turns instructions plus the required signer set into a Message.
// The fee payer always occupies index 0; remaining signers follow in input
// order; instruction accounts and then program IDs are appended on first
// occurrence. Identical inputs always produce an identical key ordering.
func Compile(instructions []Instruction, signers []Pubkey, feePayer Pubkey, recentBlockhash Hash) (*Message, error) {
	keys := []Pubkey{feePayer}
	seen := map[Pubkey]uint8{feePayer: 0}

	appendKey := func(pk Pubkey) uint8 {
		if idx, ok := seen[pk]; ok {
			return idx
		}
		idx := uint8(len(keys))
		seen[pk] = idx
		keys = append(keys, pk)
		return idx
	}

	for _, s := range signers {
		appendKey(s)
	}
	numSigners := len(keys)

	for _, ix := range instructions {
		for _, meta := range ix.Accounts {
			appendKey(meta.Pubkey)
		}
		appendKey(ix.ProgramID)
	}

	// Per-key flag merge across all instructions. The fee payer is writable
	// no matter what any instruction claims.
	writable := make(map[Pubkey]bool, len(keys))
	writable[feePayer] = true
	programs := make(map[Pubkey]bool)
	for _, ix := range instructions {
		programs[ix.ProgramID] = true
		for _, meta := range ix.Accounts {
			if meta.IsWritable {
				writable[meta.Pubkey] = true
			}
		}
	}

	readonlySigned := 0
	for _, pk := range keys[1:numSigners] {
		if !writable[pk] {
			readonlySigned++
		}
	}

	header := MessageHeader{
		NumRequiredSignatures:       uint8(numSigners),
		NumReadonlySignedAccounts:   uint8(readonlySigned),
		NumReadonlyUnsignedAccounts: uint8(len(programs)),
	}

	sanitized := make([]SanitizedInstruction, 0, len(instructions))
	for i, ix := range instructions {
		progIdx, ok := seen[ix.ProgramID]
		if !ok {
			return nil, fmt.Errorf("instruction %d: %w", i, ErrUnresolvableAccount)
		}
		if progIdx == 0 {
			return nil, fmt.Errorf("instruction %d: %w", i, ErrProgramIsFeePayer)
		}
		accounts := make([]uint8, 0, len(ix.Accounts))
		for _, meta := range ix.Accounts {
			idx, ok := seen[meta.Pubkey]
			if !ok {
				return nil, fmt.Errorf("instruction %d account %s: %w", i, meta.Pubkey, ErrUnresolvableAccount)
			}
			accounts = append(accounts, idx)
		}
		sanitized = append(sanitized, SanitizedInstruction{
			ProgramIDIndex: progIdx,
			Accounts:       accounts,
			Data:           ix.Data,
		})
	}

	return &Message{
		Header:          header,
		AccountKeys:     keys,
		RecentBlockhash: recentBlockhash,
		Instructions:    sanitized,
	}, nil
}

// Serialize produces the canonical byte layout the validator hashes:
// header (3 raw bytes), key count (u32 LE), keys, blockhash, instruction
// count (u32 LE), then per instruction the program index (1 byte), account
// index count (u32 LE), indices (1 byte each), data length (u32 LE), data.
func (m *Message) Serialize() []byte {
	size := 3 + 4 + 32*len(m.AccountKeys) + 32 + 4
	for _, ix := range m.Instructions {
		size += 1 + 4 + len(ix.Accounts) + 4 + len(ix.Data)
	}
	out := make([]byte, 0, size)

	out = append(out, m.Header.NumRequiredSignatures,
		m.Header.NumReadonlySignedAccounts,
		m.Header.NumReadonlyUnsignedAccounts)
	out = binary.LittleEndian.AppendUint32(out, uint32(len(m.AccountKeys)))
	for _, pk := range m.AccountKeys {
		out = append(out, pk[:]...)
	}
	out = append(out, m.RecentBlockhash[:]...)
	out = binary.LittleEndian.AppendUint32(out, uint32(len(m.Instructions)))
	for _, ix := range m.Instructions {
		out = append(out, ix.ProgramIDIndex)
		out = binary.LittleEndian.AppendUint32(out, uint32(len(ix.Accounts)))
		out = append(out, ix.Accounts...)
		out = binary.LittleEndian.AppendUint32(out, uint32(len(ix.Data)))
		out = append(out, ix.Data...)
	}
	return out
}

// SigningPayload derives the 64 ASCII bytes that get signed. The scheme is a
// double SHA-256 where the intermediate digest is round-tripped through its
// lowercase hex rendering: hash the serialized message, hex it, hash those 64
// ASCII characters, hex again, and sign that final 64-character string's raw
// bytes. Feeding raw digest bytes into the second hash produces a payload
// the network will never accept.
func (m *Message) SigningPayload() []byte {
	return SigningPayload(m.Serialize())
}

// SigningPayload applies the double-hash-through-hex scheme to an already
// serialized message.
func SigningPayload(serialized []byte) []byte {
	first := sha256.Sum256(serialized)
	firstHex := hex.EncodeToString(first[:])
	second := sha256.Sum256([]byte(firstHex))
	secondHex := hex.EncodeToString(second[:])
	return []byte(secondHex)
}

// IsSigner reports whether the key at index is in the signing slice.
func (m *Message) IsSigner(index int) bool {
	return index < int(m.Header.NumRequiredSignatures)
}

// SignerIndex locates pk within the signing slice of the key list, or -1.
func (m *Message) SignerIndex(pk Pubkey) int {
	for i := 0; i < int(m.Header.NumRequiredSignatures) && i < len(m.AccountKeys); i++ {
		if m.AccountKeys[i] == pk {
			return i
		}
	}
	return -1
}
