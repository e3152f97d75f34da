package program

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSystemProgramConstant(t *testing.T) {
	pk := SystemProgram()
	for i := 0; i < 31; i++ {
		require.Zero(t, pk[i])
	}
	require.Equal(t, byte(1), pk[31])
	require.True(t, pk.IsSystemProgram())
	require.False(t, LoaderProgram().IsSystemProgram())
}

func TestLoaderProgramConstant(t *testing.T) {
	pk := LoaderProgram()
	// Leading 32 bytes of the ASCII loader literal.
	require.Equal(t, "BpfLoader111111111111111111111111"[:32], string(pk[:]))
}

func TestPubkeyFromSlicePads(t *testing.T) {
	pk := PubkeyFromSlice([]byte{0xab, 0xcd})
	require.Equal(t, byte(0xab), pk[0])
	require.Equal(t, byte(0xcd), pk[1])
	require.Zero(t, pk[2])
}

func TestPubkeyJSONNumberArray(t *testing.T) {
	pk := testKey(7)
	raw, err := json.Marshal(pk)
	require.NoError(t, err)
	// serde-style number array, not base64.
	require.Equal(t, byte('['), raw[0])

	var back Pubkey
	require.NoError(t, json.Unmarshal(raw, &back))
	require.Equal(t, pk, back)

	require.Error(t, json.Unmarshal([]byte("[1,2,3]"), &back))
	require.Error(t, json.Unmarshal([]byte(`"abc"`), &back))
}

func TestBytesJSON(t *testing.T) {
	b := Bytes{0, 1, 255}
	raw, err := json.Marshal(b)
	require.NoError(t, err)
	require.JSONEq(t, "[0,1,255]", string(raw))

	var back Bytes
	require.NoError(t, json.Unmarshal([]byte("[4,5,6]"), &back))
	require.Equal(t, Bytes{4, 5, 6}, back)

	require.Error(t, json.Unmarshal([]byte("[300]"), &back))
}

func TestSanitizedInstructionJSON(t *testing.T) {
	si := SanitizedInstruction{
		ProgramIDIndex: 2,
		Accounts:       []uint8{0, 1},
		Data:           []byte{9, 8},
	}
	raw, err := json.Marshal(si)
	require.NoError(t, err)
	require.JSONEq(t, `{"program_id_index":2,"accounts":[0,1],"data":[9,8]}`, string(raw))

	var back SanitizedInstruction
	require.NoError(t, json.Unmarshal(raw, &back))
	require.Equal(t, si, back)
}
