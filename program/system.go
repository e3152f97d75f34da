package program

import "encoding/binary"

// System program instruction discriminants. Encoded as 4-byte little-endian
// words on the wire, matching the validator's bincode enum layout.
const (
	sysCreateAccount uint32 = 0
	sysAssign        uint32 = 1
	sysTransfer      uint32 = 2
)

// NewCreateAccount funds and creates a fresh account owned by owner. The
// funding account and the new account both sign.
func NewCreateAccount(from, newAccount Pubkey, lamports, space uint64, owner Pubkey) Instruction {
	data := make([]byte, 0, 4+8+8+32)
	data = binary.LittleEndian.AppendUint32(data, sysCreateAccount)
	data = binary.LittleEndian.AppendUint64(data, lamports)
	data = binary.LittleEndian.AppendUint64(data, space)
	data = append(data, owner[:]...)
	return Instruction{
		ProgramID: SystemProgram(),
		Accounts: []AccountMeta{
			{Pubkey: from, IsSigner: true, IsWritable: true},
			{Pubkey: newAccount, IsSigner: true, IsWritable: true},
		},
		Data: data,
	}
}

// NewAssign changes the owner of account. The account itself must sign.
func NewAssign(account, owner Pubkey) Instruction {
	data := make([]byte, 0, 4+32)
	data = binary.LittleEndian.AppendUint32(data, sysAssign)
	data = append(data, owner[:]...)
	return Instruction{
		ProgramID: SystemProgram(),
		Accounts: []AccountMeta{
			{Pubkey: account, IsSigner: true, IsWritable: true},
		},
		Data: data,
	}
}

// NewTransfer moves lamports between accounts.
func NewTransfer(from, to Pubkey, lamports uint64) Instruction {
	data := make([]byte, 0, 4+8)
	data = binary.LittleEndian.AppendUint32(data, sysTransfer)
	data = binary.LittleEndian.AppendUint64(data, lamports)
	return Instruction{
		ProgramID: SystemProgram(),
		Accounts: []AccountMeta{
			{Pubkey: from, IsSigner: true, IsWritable: true},
			{Pubkey: to, IsWritable: true},
		},
		Data: data,
	}
}
