// Package wallet models the payment capability a deployment needs before it
// can pay fees: something that can put funds on the fee payer's Taproot
// address. Backends are interchangeable variants behind one interface and
// are selected by probing at runtime, not by configuration flags.
package wallet

import (
	"context"
	"errors"
	"fmt"

	"github.com/decred/slog"

	"github.com/hoffmabc/arch-deploy/program"
	"github.com/hoffmabc/arch-deploy/rpc"
	"github.com/hoffmabc/arch-deploy/signer"
)

// ErrNoWallet is returned when no candidate backend connects.
var ErrNoWallet = errors.New("no usable wallet backend")

// Wallet is the single payment capability the deployer depends on. Connect
// probes availability; SendPayment routes funds toward the given account
// key and returns a backend-specific payment reference.
type Wallet interface {
	Connect(ctx context.Context) error
	SendPayment(ctx context.Context, to program.Pubkey, lamports uint64) (string, error)
}

// Probe connects candidates in order and returns the first one that
// answers. The caller lists backends from most to least preferred.
func Probe(ctx context.Context, log slog.Logger, candidates ...Wallet) (Wallet, error) {
	for _, w := range candidates {
		if err := w.Connect(ctx); err != nil {
			log.Debugf("wallet: backend %T unavailable: %v", w, err)
			continue
		}
		log.Infof("wallet: using backend %T", w)
		return w, nil
	}
	return nil, ErrNoWallet
}

// AccountFunder is an optional capability discovered by type assertion:
// backends that can mint and fund an account in one step return a partially
// signed transaction for the caller to countersign and submit.
type AccountFunder interface {
	FundAccount(ctx context.Context, to program.Pubkey) (*rpc.RuntimeTransaction, error)
}

// Faucet pays from the node's built-in faucet. Available on regtest and
// testnet style networks only; Connect fails where the node does not expose
// the airdrop method.
type Faucet struct {
	Client *rpc.Client
}

func (f *Faucet) Connect(ctx context.Context) error {
	// The faucet has no handshake of its own; a node that answers
	// get_best_block_hash and runs a faucet will accept airdrops.
	if _, err := f.Client.GetBestBlockHash(ctx); err != nil {
		return fmt.Errorf("faucet probe: %w", err)
	}
	return nil
}

func (f *Faucet) SendPayment(ctx context.Context, to program.Pubkey, lamports uint64) (string, error) {
	if err := f.Client.RequestAirdrop(ctx, to); err != nil {
		return "", err
	}
	return "airdrop:" + to.String(), nil
}

// FundAccount implements AccountFunder using the node's
// create_account_with_faucet method.
func (f *Faucet) FundAccount(ctx context.Context, to program.Pubkey) (*rpc.RuntimeTransaction, error) {
	return f.Client.CreateAccountWithFaucet(ctx, to)
}

// Prompt is the payment-network fallback: it cannot move funds itself and
// instead surfaces the Taproot address a human (or an external wallet flow)
// must pay, then leaves the deployer polling until the balance appears.
type Prompt struct {
	Log     slog.Logger
	Network Network
}

func (p *Prompt) Connect(ctx context.Context) error {
	return nil
}

func (p *Prompt) SendPayment(ctx context.Context, to program.Pubkey, lamports uint64) (string, error) {
	addr, err := signer.TaprootAddress(to, p.Network.Params())
	if err != nil {
		return "", err
	}
	p.Log.Infof("wallet: send at least %d lamports to %s to continue", lamports, addr)
	return "manual:" + addr, nil
}
