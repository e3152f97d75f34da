package signer

import (
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"

	"github.com/hoffmabc/arch-deploy/program"
)

// ErrBadSignatureLength is returned when the witness element is neither 64
// nor 65 bytes. That means the signing library or the sighash mode changed
// underneath us; it is never recoverable by retrying.
var ErrBadSignatureLength = errors.New("schnorr signature has unexpected length")

// bip322Tag is the BIP-340 tag for hashing the message into the virtual
// to_spend transaction.
var bip322Tag = []byte("BIP0322-signed-message")

// SignMessage produces a BIP-322 "simple" signature over payload with the
// key's single-key-path Taproot output, returning the raw 64-byte Schnorr
// signature from the witness stack. The two virtual transactions are never
// broadcast; they exist only to bind the signature to the message and key.
func SignMessage(kp *Keypair, payload []byte) (program.Signature, error) {
	var sig program.Signature

	pkScript, err := payToTaprootScript(kp.priv.PubKey())
	if err != nil {
		return sig, fmt.Errorf("taproot script: %w", err)
	}

	toSpend := buildToSpend(payload, pkScript)
	toSign := buildToSign(toSpend)

	fetcher := txscript.NewCannedPrevOutputFetcher(pkScript, 0)
	sigHashes := txscript.NewTxSigHashes(toSign, fetcher)
	witnessSig, err := txscript.RawTxInTaprootSignature(
		toSign, sigHashes, 0, 0, pkScript, nil, txscript.SigHashAll, kp.priv)
	if err != nil {
		return sig, fmt.Errorf("taproot sign: %w", err)
	}
	toSign.TxIn[0].Witness = wire.TxWitness{witnessSig}

	raw, err := extractSchnorrSig(toSign.TxIn[0].Witness)
	if err != nil {
		return sig, err
	}
	copy(sig[:], raw)
	return sig, nil
}

// extractSchnorrSig takes the first witness-stack element and normalizes it
// to 64 bytes, stripping a trailing sighash byte when present. Anything else
// fails loudly rather than truncating further.
func extractSchnorrSig(witness wire.TxWitness) ([]byte, error) {
	if len(witness) == 0 {
		return nil, fmt.Errorf("%w: empty witness stack", ErrBadSignatureLength)
	}
	el := witness[0]
	switch len(el) {
	case schnorr.SignatureSize:
		return el, nil
	case schnorr.SignatureSize + 1:
		return el[:schnorr.SignatureSize], nil
	default:
		return nil, fmt.Errorf("%w: %d bytes", ErrBadSignatureLength, len(el))
	}
}

// buildToSpend constructs the virtual transaction committing to the message:
// a coinbase-like input whose scriptSig is OP_0 <tagged message hash> and a
// zero-value output paying the signer's Taproot script.
func buildToSpend(payload, pkScript []byte) *wire.MsgTx {
	msgHash := chainhash.TaggedHash(bip322Tag, payload)
	sigScript, _ := txscript.NewScriptBuilder().
		AddOp(txscript.OP_0).
		AddData(msgHash[:]).
		Script()

	tx := wire.NewMsgTx(0)
	tx.AddTxIn(&wire.TxIn{
		PreviousOutPoint: wire.OutPoint{Index: wire.MaxPrevOutIndex},
		SignatureScript:  sigScript,
		Sequence:         0,
	})
	tx.AddTxOut(&wire.TxOut{Value: 0, PkScript: pkScript})
	return tx
}

// buildToSign constructs the transaction actually signed: it spends
// to_spend's only output into an unspendable OP_RETURN.
func buildToSign(toSpend *wire.MsgTx) *wire.MsgTx {
	opReturn, _ := txscript.NewScriptBuilder().
		AddOp(txscript.OP_RETURN).
		Script()

	tx := wire.NewMsgTx(0)
	tx.AddTxIn(&wire.TxIn{
		PreviousOutPoint: wire.OutPoint{Hash: toSpend.TxHash(), Index: 0},
		Sequence:         0,
	})
	tx.AddTxOut(&wire.TxOut{Value: 0, PkScript: opReturn})
	return tx
}

// payToTaprootScript builds the v1 witness program for the key's
// single-key-path (no script tree) Taproot output.
func payToTaprootScript(internal *btcec.PublicKey) ([]byte, error) {
	return txscript.PayToTaprootScript(txscript.ComputeTaprootKeyNoScript(internal))
}

// TaprootAddress renders the bech32m address of an account key so it can be
// funded with a plain on-chain payment. The 32-byte ledger key is the x-only
// internal key of the Taproot output.
func TaprootAddress(pk program.Pubkey, params *chaincfg.Params) (string, error) {
	internal, err := schnorr.ParsePubKey(pk[:])
	if err != nil {
		return "", fmt.Errorf("parse account key: %w", err)
	}
	tweaked := txscript.ComputeTaprootKeyNoScript(internal)
	addr, err := btcutil.NewAddressTaproot(schnorr.SerializePubKey(tweaked), params)
	if err != nil {
		return "", fmt.Errorf("taproot address: %w", err)
	}
	return addr.EncodeAddress(), nil
}
