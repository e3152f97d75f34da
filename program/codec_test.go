package program

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCreateAccountEncoding(t *testing.T) {
	from := testKey(1)
	newAcct := testKey(2)
	owner := LoaderProgram()

	ix := NewCreateAccount(from, newAcct, 300, 0, owner)
	require.Equal(t, SystemProgram(), ix.ProgramID)
	require.Len(t, ix.Data, 4+8+8+32)

	require.Equal(t, uint32(0), binary.LittleEndian.Uint32(ix.Data[0:4]))
	require.Equal(t, uint64(300), binary.LittleEndian.Uint64(ix.Data[4:12]))
	require.Equal(t, uint64(0), binary.LittleEndian.Uint64(ix.Data[12:20]))
	require.Equal(t, owner[:], ix.Data[20:52])

	// Funder and new account both sign.
	require.Len(t, ix.Accounts, 2)
	require.True(t, ix.Accounts[0].IsSigner)
	require.True(t, ix.Accounts[1].IsSigner)
}

func TestAssignEncoding(t *testing.T) {
	owner := LoaderProgram()
	ix := NewAssign(testKey(1), owner)
	require.Equal(t, uint32(1), binary.LittleEndian.Uint32(ix.Data[0:4]))
	require.Equal(t, owner[:], ix.Data[4:36])
	require.True(t, ix.Accounts[0].IsSigner)
}

func TestTransferEncoding(t *testing.T) {
	ix := NewTransfer(testKey(1), testKey(2), 0x1_0000_0001)
	require.Equal(t, uint32(2), binary.LittleEndian.Uint32(ix.Data[0:4]))
	// Full 64-bit little-endian value, beyond 32-bit range.
	require.Equal(t, uint64(0x1_0000_0001), binary.LittleEndian.Uint64(ix.Data[4:12]))
	require.True(t, ix.Accounts[0].IsSigner)
	require.False(t, ix.Accounts[1].IsSigner)
	require.True(t, ix.Accounts[1].IsWritable)
}

func TestWriteEncoding(t *testing.T) {
	chunk := []byte{0xde, 0xad, 0xbe, 0xef}
	ix := NewWrite(testKey(1), testKey(2), 1024, chunk)
	require.Equal(t, LoaderProgram(), ix.ProgramID)
	require.Len(t, ix.Data, WriteFixedOverhead+len(chunk))

	require.Equal(t, uint32(0), binary.LittleEndian.Uint32(ix.Data[0:4]))
	require.Equal(t, uint32(1024), binary.LittleEndian.Uint32(ix.Data[4:8]))
	// Byte vectors carry an 8-byte little-endian length prefix.
	require.Equal(t, uint64(4), binary.LittleEndian.Uint64(ix.Data[8:16]))
	require.Equal(t, chunk, ix.Data[16:])

	// Program account is written, authority signs.
	require.True(t, ix.Accounts[0].IsWritable)
	require.False(t, ix.Accounts[0].IsSigner)
	require.True(t, ix.Accounts[1].IsSigner)
}

func TestTruncateDeployRetractEncoding(t *testing.T) {
	trunc := NewTruncate(testKey(1), testKey(2), 50040)
	require.Equal(t, uint32(1), binary.LittleEndian.Uint32(trunc.Data[0:4]))
	require.Equal(t, uint32(50040), binary.LittleEndian.Uint32(trunc.Data[4:8]))

	dep := NewDeploy(testKey(1), testKey(2))
	require.Equal(t, []byte{2, 0, 0, 0}, dep.Data)

	ret := NewRetract(testKey(1), testKey(2))
	require.Equal(t, []byte{3, 0, 0, 0}, ret.Data)
}

func TestMinimumRent(t *testing.T) {
	require.Equal(t, uint64(256), MinimumRent(0))
	require.Equal(t, uint64((128+50040)*2), MinimumRent(50040))
}
