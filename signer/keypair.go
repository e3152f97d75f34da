package signer

import (
	"encoding/hex"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"

	"github.com/hoffmabc/arch-deploy/program"
)

// Keypair holds the secp256k1 private key used to sign deployment messages.
// The ledger-side identity is the 32-byte x-only public key. Keys live only
// in caller memory; nothing in this package persists them.
type Keypair struct {
	priv *btcec.PrivateKey
}

// NewKeypair generates a fresh random keypair.
func NewKeypair() (*Keypair, error) {
	priv, err := btcec.NewPrivateKey()
	if err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}
	return &Keypair{priv: priv}, nil
}

// KeypairFromBytes wraps a 32-byte private key.
func KeypairFromBytes(b []byte) (*Keypair, error) {
	if len(b) != 32 {
		return nil, fmt.Errorf("bad private key length %d: want 32", len(b))
	}
	priv, _ := btcec.PrivKeyFromBytes(b)
	if priv.Key.IsZero() {
		return nil, fmt.Errorf("private key is zero")
	}
	return &Keypair{priv: priv}, nil
}

// KeypairFromHex parses a 64-character hex private key.
func KeypairFromHex(s string) (*Keypair, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("bad private key hex: %w", err)
	}
	return KeypairFromBytes(b)
}

// Pubkey returns the x-only public key as a ledger account identifier.
func (kp *Keypair) Pubkey() program.Pubkey {
	return program.PubkeyFromSlice(schnorr.SerializePubKey(kp.priv.PubKey()))
}

// PrivKey exposes the underlying key for signing.
func (kp *Keypair) PrivKey() *btcec.PrivateKey {
	return kp.priv
}
