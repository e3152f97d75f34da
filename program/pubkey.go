package program

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// Pubkey is the 32-byte account identifier used by the ledger. Program
// accounts, signers and on-chain programs all share this key space.
type Pubkey [32]byte

// SystemProgram returns the identifier of the native system program:
// 32 zero bytes with a trailing 1.
func SystemProgram() Pubkey {
	var pk Pubkey
	pk[31] = 1
	return pk
}

// LoaderProgram returns the identifier of the on-chain loader that owns
// executable accounts. The ID is the leading 32 bytes of a fixed ASCII
// literal, mirroring the validator's constant.
func LoaderProgram() Pubkey {
	var pk Pubkey
	copy(pk[:], "BpfLoader111111111111111111111111")
	return pk
}

// PubkeyFromSlice copies up to 32 bytes of data into a Pubkey, zero padding
// on the right when data is shorter.
func PubkeyFromSlice(data []byte) Pubkey {
	var pk Pubkey
	copy(pk[:], data)
	return pk
}

// PubkeyFromHex parses a 64-character hex string into a Pubkey.
func PubkeyFromHex(s string) (Pubkey, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return Pubkey{}, fmt.Errorf("bad pubkey hex: %w", err)
	}
	if len(b) != 32 {
		return Pubkey{}, fmt.Errorf("bad pubkey length %d: want 32", len(b))
	}
	return PubkeyFromSlice(b), nil
}

func (pk Pubkey) IsSystemProgram() bool {
	return pk == SystemProgram()
}

func (pk Pubkey) Bytes() []byte {
	return pk[:]
}

func (pk Pubkey) String() string {
	return hex.EncodeToString(pk[:])
}

// MarshalJSON renders the key as an array of byte values, matching the
// node's serde encoding of [u8; 32].
func (pk Pubkey) MarshalJSON() ([]byte, error) {
	return marshalByteArray(pk[:])
}

func (pk *Pubkey) UnmarshalJSON(data []byte) error {
	b, err := unmarshalByteArray(data, 32)
	if err != nil {
		return fmt.Errorf("pubkey: %w", err)
	}
	copy(pk[:], b)
	return nil
}

// Hash is a 32-byte block hash.
type Hash [32]byte

func HashFromSlice(data []byte) Hash {
	var h Hash
	copy(h[:], data)
	return h
}

func HashFromHex(s string) (Hash, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return Hash{}, fmt.Errorf("bad hash hex: %w", err)
	}
	if len(b) != 32 {
		return Hash{}, fmt.Errorf("bad hash length %d: want 32", len(b))
	}
	return HashFromSlice(b), nil
}

func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

func (h Hash) MarshalJSON() ([]byte, error) {
	return marshalByteArray(h[:])
}

func (h *Hash) UnmarshalJSON(data []byte) error {
	b, err := unmarshalByteArray(data, 32)
	if err != nil {
		return fmt.Errorf("hash: %w", err)
	}
	copy(h[:], b)
	return nil
}

// Signature is a 64-byte Schnorr signature.
type Signature [64]byte

func (s Signature) MarshalJSON() ([]byte, error) {
	return marshalByteArray(s[:])
}

func (s *Signature) UnmarshalJSON(data []byte) error {
	b, err := unmarshalByteArray(data, 64)
	if err != nil {
		return fmt.Errorf("signature: %w", err)
	}
	copy(s[:], b)
	return nil
}

// marshalByteArray encodes bytes as a JSON array of numbers. The node's RPC
// layer deserializes fixed-size byte fields from number arrays, not base64
// or hex strings, so the verbose form is required on the wire.
func marshalByteArray(b []byte) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('[')
	for i, v := range b {
		if i > 0 {
			buf.WriteByte(',')
		}
		fmt.Fprintf(&buf, "%d", v)
	}
	buf.WriteByte(']')
	return buf.Bytes(), nil
}

// unmarshalByteArray decodes a JSON number array into bytes. Stock
// encoding/json refuses to decode arrays into []byte (it wants base64), so
// the elements go through ints.
func unmarshalByteArray(data []byte, want int) ([]byte, error) {
	var nums []int
	if err := json.Unmarshal(data, &nums); err != nil {
		return nil, err
	}
	if want >= 0 && len(nums) != want {
		return nil, fmt.Errorf("got %d bytes, want %d", len(nums), want)
	}
	out := make([]byte, len(nums))
	for i, v := range nums {
		if v < 0 || v > 255 {
			return nil, fmt.Errorf("element %d out of byte range: %d", i, v)
		}
		out[i] = byte(v)
	}
	return out, nil
}

// Bytes is a byte vector that serializes as a JSON number array, the way the
// node's serde layer encodes Vec<u8>.
type Bytes []byte

func (b Bytes) MarshalJSON() ([]byte, error) {
	return marshalByteArray(b)
}

func (b *Bytes) UnmarshalJSON(data []byte) error {
	out, err := unmarshalByteArray(data, -1)
	if err != nil {
		return err
	}
	*b = out
	return nil
}
