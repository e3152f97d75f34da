package program

import "encoding/binary"

// LoaderHeaderSize is the fixed prefix the loader keeps in front of the
// program bytes of every account it owns: a 32-byte authority (or
// next-version) key followed by an 8-byte status word.
const LoaderHeaderSize = 40

// Loader program instruction discriminants, 4-byte little-endian like the
// system program's.
const (
	loaderWrite    uint32 = 0
	loaderTruncate uint32 = 1
	loaderDeploy   uint32 = 2
	loaderRetract  uint32 = 3
)

// WriteFixedOverhead is the encoded size of a Write instruction's fields
// before the payload bytes: discriminant, offset and the vector length
// prefix. The chunk planner budgets against it.
const WriteFixedOverhead = 4 + 4 + 8

// loaderAccounts is the account list shared by all loader operations: the
// program account is written, the authority signs.
func loaderAccounts(account, authority Pubkey) []AccountMeta {
	return []AccountMeta{
		{Pubkey: account, IsWritable: true},
		{Pubkey: authority, IsSigner: true},
	}
}

// NewWrite stores bytes at offset within the program data region of account.
// Byte vectors carry an 8-byte little-endian length prefix on the wire.
func NewWrite(account, authority Pubkey, offset uint32, chunk []byte) Instruction {
	data := make([]byte, 0, WriteFixedOverhead+len(chunk))
	data = binary.LittleEndian.AppendUint32(data, loaderWrite)
	data = binary.LittleEndian.AppendUint32(data, offset)
	data = binary.LittleEndian.AppendUint64(data, uint64(len(chunk)))
	data = append(data, chunk...)
	return Instruction{
		ProgramID: LoaderProgram(),
		Accounts:  loaderAccounts(account, authority),
		Data:      data,
	}
}

// NewTruncate resizes account's data to newSize bytes (header included).
func NewTruncate(account, authority Pubkey, newSize uint32) Instruction {
	data := make([]byte, 0, 4+4)
	data = binary.LittleEndian.AppendUint32(data, loaderTruncate)
	data = binary.LittleEndian.AppendUint32(data, newSize)
	return Instruction{
		ProgramID: LoaderProgram(),
		Accounts:  loaderAccounts(account, authority),
		Data:      data,
	}
}

// NewDeploy marks account executable.
func NewDeploy(account, authority Pubkey) Instruction {
	data := make([]byte, 0, 4)
	data = binary.LittleEndian.AppendUint32(data, loaderDeploy)
	return Instruction{
		ProgramID: LoaderProgram(),
		Accounts:  loaderAccounts(account, authority),
		Data:      data,
	}
}

// NewRetract takes a deployed account back to writable, non-executable state.
func NewRetract(account, authority Pubkey) Instruction {
	data := make([]byte, 0, 4)
	data = binary.LittleEndian.AppendUint32(data, loaderRetract)
	return Instruction{
		ProgramID: LoaderProgram(),
		Accounts:  loaderAccounts(account, authority),
		Data:      data,
	}
}

// MinimumRent is the balance an account of the given data size must hold to
// stay alive: a fixed 128-lamport overhead plus the size, at two lamports
// per byte.
func MinimumRent(dataSize int) uint64 {
	return uint64(128+dataSize) * 2
}
