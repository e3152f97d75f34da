package signer

import (
	"bytes"
	"strings"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/require"

	"github.com/hoffmabc/arch-deploy/program"
)

func testKeypair(t *testing.T) *Keypair {
	t.Helper()
	kp, err := NewKeypair()
	require.NoError(t, err)
	return kp
}

func TestSignMessageProducesValidSchnorrSig(t *testing.T) {
	kp := testKeypair(t)
	payload := []byte(strings.Repeat("ab12", 16)) // 64 ASCII bytes, like a hex digest

	sig, err := SignMessage(kp, payload)
	require.NoError(t, err)
	require.NotEqual(t, program.Signature{}, sig)

	// Rebuild the virtual transactions and check the extracted signature
	// against the taproot key-spend sighash.
	pkScript, err := payToTaprootScript(kp.priv.PubKey())
	require.NoError(t, err)
	toSpend := buildToSpend(payload, pkScript)
	toSign := buildToSign(toSpend)

	fetcher := txscript.NewCannedPrevOutputFetcher(pkScript, 0)
	sigHashes := txscript.NewTxSigHashes(toSign, fetcher)
	digest, err := txscript.CalcTaprootSignatureHash(
		sigHashes, txscript.SigHashAll, toSign, 0, fetcher)
	require.NoError(t, err)

	parsed, err := schnorr.ParseSignature(sig[:])
	require.NoError(t, err)
	tweaked := txscript.ComputeTaprootKeyNoScript(kp.priv.PubKey())
	require.True(t, parsed.Verify(digest, tweaked))
}

func TestSignMessageBindsPayload(t *testing.T) {
	kp := testKeypair(t)

	a, err := SignMessage(kp, []byte("payload one"))
	require.NoError(t, err)
	b, err := SignMessage(kp, []byte("payload two"))
	require.NoError(t, err)
	require.NotEqual(t, a, b)
}

func TestExtractSchnorrSig(t *testing.T) {
	sig64 := bytes.Repeat([]byte{0x11}, schnorr.SignatureSize)
	sig65 := append(append([]byte{}, sig64...), byte(txscript.SigHashAll))

	got, err := extractSchnorrSig(wire.TxWitness{sig64})
	require.NoError(t, err)
	require.Equal(t, sig64, got)

	got, err = extractSchnorrSig(wire.TxWitness{sig65})
	require.NoError(t, err)
	require.Equal(t, sig64, got)

	_, err = extractSchnorrSig(wire.TxWitness{sig64[:63]})
	require.ErrorIs(t, err, ErrBadSignatureLength)

	_, err = extractSchnorrSig(wire.TxWitness{})
	require.ErrorIs(t, err, ErrBadSignatureLength)
}

func TestToSpendCommitsToMessage(t *testing.T) {
	kp := testKeypair(t)
	pkScript, err := payToTaprootScript(kp.priv.PubKey())
	require.NoError(t, err)

	a := buildToSpend([]byte("msg a"), pkScript)
	b := buildToSpend([]byte("msg b"), pkScript)
	require.NotEqual(t, a.TxHash(), b.TxHash())

	// The to_sign input must reference to_spend's output so the signature
	// transitively commits to the message.
	ts := buildToSign(a)
	require.Equal(t, a.TxHash(), ts.TxIn[0].PreviousOutPoint.Hash)
	require.Equal(t, uint32(0), ts.TxIn[0].PreviousOutPoint.Index)
}

func TestTaprootAddress(t *testing.T) {
	kp := testKeypair(t)

	addr, err := TaprootAddress(kp.Pubkey(), &chaincfg.RegressionNetParams)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(addr, "bcrt1p"), "got %s", addr)

	addr, err = TaprootAddress(kp.Pubkey(), &chaincfg.MainNetParams)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(addr, "bc1p"), "got %s", addr)

	_, err = TaprootAddress(program.Pubkey{}, &chaincfg.RegressionNetParams)
	require.Error(t, err)
}

func TestKeypairRoundTrip(t *testing.T) {
	kp := testKeypair(t)
	raw := kp.PrivKey().Serialize()

	back, err := KeypairFromBytes(raw)
	require.NoError(t, err)
	require.Equal(t, kp.Pubkey(), back.Pubkey())

	_, err = KeypairFromBytes(raw[:31])
	require.Error(t, err)
	_, err = KeypairFromBytes(make([]byte, 32))
	require.Error(t, err)
	_, err = KeypairFromHex("zz")
	require.Error(t, err)
}
