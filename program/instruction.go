package program

// AccountMeta describes how a single instruction touches an account. The
// signer/writable flags are per instruction; the compiler merges them across
// the whole message when deriving the header.
type AccountMeta struct {
	Pubkey     Pubkey
	IsSigner   bool
	IsWritable bool
}

// Instruction is one program invocation before compilation: a program ID, an
// ordered account list, and opaque encoded data.
type Instruction struct {
	ProgramID Pubkey
	Accounts  []AccountMeta
	Data      []byte
}
