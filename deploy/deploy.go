// Package deploy drives an already-compiled program binary to confirmed
// executable state on the ledger: funding, account lifecycle, chunked
// upload, activation and byte-for-byte verification.
package deploy

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/decred/slog"

	"github.com/hoffmabc/arch-deploy/program"
	"github.com/hoffmabc/arch-deploy/rpc"
	"github.com/hoffmabc/arch-deploy/signer"
	"github.com/hoffmabc/arch-deploy/wallet"
)

var (
	// ErrEmptyBinary rejects a deployment with nothing to deploy.
	ErrEmptyBinary = errors.New("program binary is empty")

	// ErrFeePayerMisowned means the fee payer account exists but is not
	// owned by the system program. No transaction can repair that; the
	// caller must generate a different key.
	ErrFeePayerMisowned = errors.New("fee payer account not owned by system program")

	// ErrVerifyMismatch means the final read-back of the program account
	// did not match the uploaded binary. The deployment failed, with no
	// partial-success result.
	ErrVerifyMismatch = errors.New("on-chain program data does not match binary")

	// ErrConfirmationStalled is the strict-mode escalation after repeated
	// consecutive confirmation timeouts.
	ErrConfirmationStalled = errors.New("confirmations stalled")

	// errConfirmTimeout is the per-transaction poll giving up. Non-fatal by
	// default: the orchestrator proceeds optimistically and the final
	// verification is the source of truth.
	errConfirmTimeout = errors.New("confirmation timed out")
)

// Node is the RPC surface the orchestrator drives. *rpc.Client implements
// it; tests substitute an in-memory ledger.
type Node interface {
	ReadAccountInfo(ctx context.Context, pubkey program.Pubkey) (*rpc.AccountInfo, error)
	GetBestBlockHash(ctx context.Context) (program.Hash, error)
	SendTransaction(ctx context.Context, tx *rpc.RuntimeTransaction) (string, error)
	SendTransactions(ctx context.Context, txs []*rpc.RuntimeTransaction) ([]string, error)
	GetProcessedTransaction(ctx context.Context, txid string) (*rpc.ProcessedTransaction, error)
}

var _ Node = (*rpc.Client)(nil)

// Deployer is the deployment state machine for one program account. It is
// not safe for concurrent use with the same keys: competing writers would
// race on the account's sequencing.
type Deployer struct {
	cfg    *Config
	node   Node
	wallet wallet.Wallet
	log    slog.Logger
	ntfns  *NotificationManager

	// authority pays fees and rent and authorizes loader operations; the
	// program keypair owns the account being deployed. They may be equal.
	authority  *signer.Keypair
	programKey *signer.Keypair
}

// New returns a deployer. ntfns may be nil, in which case a fresh manager
// is created.
func New(cfg *Config, node Node, w wallet.Wallet, log slog.Logger,
	authority, programKey *signer.Keypair, ntfns *NotificationManager) *Deployer {

	if ntfns == nil {
		ntfns = NewNotificationManager()
	}
	return &Deployer{
		cfg:        cfg,
		node:       node,
		wallet:     w,
		log:        log,
		ntfns:      ntfns,
		authority:  authority,
		programKey: programKey,
	}
}

// Notifications exposes the progress fan-out for subscribers.
func (d *Deployer) Notifications() *NotificationManager {
	return d.ntfns
}

// Deploy runs the whole state machine. Every phase re-reads on-chain state
// before acting, so a run interrupted mid-way can simply be retried: work
// already confirmed is detected and skipped.
func (d *Deployer) Deploy(ctx context.Context, binary []byte) error {
	if len(binary) == 0 {
		return ErrEmptyBinary
	}
	var timeouts int

	if err := d.ensureFunded(ctx, len(binary), &timeouts); err != nil {
		d.fail("funding", err)
		return err
	}
	if err := d.ensureAccount(ctx, &timeouts); err != nil {
		d.fail("account", err)
		return err
	}

	info, err := d.node.ReadAccountInfo(ctx, d.programKey.Pubkey())
	if err != nil {
		d.fail("account", err)
		return fmt.Errorf("read program account: %w", err)
	}

	if deployedMatches(info, binary) {
		d.ntfns.notify(LevelSuccess, "verify", "program already deployed with identical binary")
		d.log.Infof("deploy: account %s already holds this binary, nothing to do",
			d.programKey.Pubkey())
		return nil
	}

	if err := d.prepareAccount(ctx, info, binary, &timeouts); err != nil {
		return err
	}
	if err := d.upload(ctx, binary, &timeouts); err != nil {
		d.fail("upload", err)
		return err
	}
	if err := d.finalize(ctx, binary, &timeouts); err != nil {
		d.fail("deploy", err)
		return err
	}
	return nil
}

func (d *Deployer) fail(phase string, err error) {
	d.ntfns.notify(LevelError, phase, "%v", err)
}

// deployedMatches reports whether the account already is executable and
// holds exactly the target binary after the loader header.
func deployedMatches(info *rpc.AccountInfo, binary []byte) bool {
	return info.IsExecutable &&
		len(info.Data) >= program.LoaderHeaderSize &&
		bytes.Equal(info.Data[program.LoaderHeaderSize:], binary)
}

// ensureFunded makes sure the fee payer can pay. A pre-existing account
// owned by anything but the system program is a configuration error and
// fails fast.
func (d *Deployer) ensureFunded(ctx context.Context, binaryLen int, timeouts *int) error {
	pk := d.authority.Pubkey()
	info, err := d.node.ReadAccountInfo(ctx, pk)
	switch {
	case err == nil:
		if !info.Owner.IsSystemProgram() {
			return fmt.Errorf("fee payer %s owned by %s: %w", pk, info.Owner, ErrFeePayerMisowned)
		}
		if info.Lamports > 0 {
			d.log.Debugf("deploy: fee payer funded with %d lamports", info.Lamports)
			return nil
		}
	case errors.Is(err, rpc.ErrNotFound):
		info = nil
	default:
		return fmt.Errorf("read fee payer: %w", err)
	}

	d.ntfns.notify(LevelInfo, "funding", "requesting funds for fee payer %s", pk)

	// Backends that can mint the account in one partially signed
	// transaction short-circuit the payment flow.
	if af, ok := d.wallet.(wallet.AccountFunder); ok && info == nil {
		if err := d.fundViaAccountFunder(ctx, af, pk, timeouts); err == nil {
			d.ntfns.notify(LevelSuccess, "funding", "fee payer account created and funded")
			return nil
		} else {
			d.log.Warnf("deploy: account funder failed, falling back to payment: %v", err)
		}
	}

	// Rough budget: rent for the final account size plus the same again
	// for fees and slack.
	amount := 2 * program.MinimumRent(program.LoaderHeaderSize+binaryLen)
	ref, err := d.wallet.SendPayment(ctx, pk, amount)
	if err != nil {
		return fmt.Errorf("request funds: %w", err)
	}
	d.log.Infof("deploy: funding requested (%s), waiting for balance", ref)

	if err := d.awaitBalance(ctx, pk); err != nil {
		return err
	}
	d.ntfns.notify(LevelSuccess, "funding", "fee payer funded")
	return nil
}

func (d *Deployer) fundViaAccountFunder(ctx context.Context, af wallet.AccountFunder,
	pk program.Pubkey, timeouts *int) error {

	tx, err := af.FundAccount(ctx, pk)
	if err != nil {
		return err
	}
	if err := d.countersign(tx, d.authority); err != nil {
		return err
	}
	txid, err := d.submit(ctx, tx)
	if err != nil {
		return err
	}
	if err := d.confirm(ctx, txid, timeouts); err != nil {
		return err
	}
	return d.awaitBalance(ctx, pk)
}

// awaitBalance polls until the account holds any lamports at all.
func (d *Deployer) awaitBalance(ctx context.Context, pk program.Pubkey) error {
	deadline := time.Now().Add(d.cfg.FundingTimeout)
	for {
		info, err := d.node.ReadAccountInfo(ctx, pk)
		if err != nil && !errors.Is(err, rpc.ErrNotFound) {
			return fmt.Errorf("read fee payer: %w", err)
		}
		if err == nil && info.Lamports > 0 {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("fee payer %s still unfunded after %v", pk, d.cfg.FundingTimeout)
		}
		if err := sleepCtx(ctx, d.cfg.ConfirmInterval); err != nil {
			return err
		}
	}
}

// ensureAccount creates the program account when absent: minimum rent for
// an empty account, zero space (size is established later by Truncate),
// owned by the loader.
func (d *Deployer) ensureAccount(ctx context.Context, timeouts *int) error {
	progPk := d.programKey.Pubkey()
	_, err := d.node.ReadAccountInfo(ctx, progPk)
	if err == nil {
		return nil
	}
	if !errors.Is(err, rpc.ErrNotFound) {
		return fmt.Errorf("read program account: %w", err)
	}

	d.ntfns.notify(LevelInfo, "account", "creating program account %s", progPk)
	ix := program.NewCreateAccount(d.authority.Pubkey(), progPk,
		program.MinimumRent(0), 0, program.LoaderProgram())
	txid, err := d.sendInstructions(ctx, []program.Instruction{ix}, d.authority, d.programKey)
	if err != nil {
		return fmt.Errorf("create account: %w", err)
	}
	if err := d.confirm(ctx, txid, timeouts); err != nil {
		return err
	}
	d.ntfns.notify(LevelSuccess, "account", "program account created")
	return nil
}

// prepareAccount walks the redeploy path: ownership repair, retraction of a
// live program, rent top-up and truncation to the target size.
func (d *Deployer) prepareAccount(ctx context.Context, info *rpc.AccountInfo,
	binary []byte, timeouts *int) error {

	progPk := d.programKey.Pubkey()
	authPk := d.authority.Pubkey()

	if info.Owner != program.LoaderProgram() {
		d.ntfns.notify(LevelInfo, "account", "repairing ownership of %s", progPk)
		ix := program.NewAssign(progPk, program.LoaderProgram())
		txid, err := d.sendInstructions(ctx, []program.Instruction{ix}, d.authority, d.programKey)
		if err != nil {
			d.fail("account", err)
			return fmt.Errorf("assign ownership: %w", err)
		}
		if err := d.confirm(ctx, txid, timeouts); err != nil {
			d.fail("account", err)
			return err
		}
	}

	if info.IsExecutable {
		d.ntfns.notify(LevelInfo, "retract", "retracting live program %s", progPk)
		ix := program.NewRetract(progPk, authPk)
		txid, err := d.sendInstructions(ctx, []program.Instruction{ix}, d.authority)
		if err != nil {
			d.fail("retract", err)
			return fmt.Errorf("retract: %w", err)
		}
		if err := d.confirm(ctx, txid, timeouts); err != nil {
			d.fail("retract", err)
			return err
		}
		d.ntfns.notify(LevelSuccess, "retract", "program retracted")
	}

	wantSize := program.LoaderHeaderSize + len(binary)
	if len(info.Data) != wantSize {
		needed := program.MinimumRent(wantSize)
		if info.Lamports < needed {
			shortfall := needed - info.Lamports
			d.ntfns.notify(LevelInfo, "resize", "topping up rent by %d lamports", shortfall)
			ix := program.NewTransfer(authPk, progPk, shortfall)
			txid, err := d.sendInstructions(ctx, []program.Instruction{ix}, d.authority)
			if err != nil {
				d.fail("resize", err)
				return fmt.Errorf("rent top-up: %w", err)
			}
			if err := d.confirm(ctx, txid, timeouts); err != nil {
				d.fail("resize", err)
				return err
			}
		}

		d.ntfns.notify(LevelInfo, "resize", "truncating account to %d bytes", wantSize)
		ix := program.NewTruncate(progPk, authPk, uint32(wantSize))
		txid, err := d.sendInstructions(ctx, []program.Instruction{ix}, d.authority)
		if err != nil {
			d.fail("resize", err)
			return fmt.Errorf("truncate: %w", err)
		}
		if err := d.confirm(ctx, txid, timeouts); err != nil {
			d.fail("resize", err)
			return err
		}
		d.ntfns.notify(LevelSuccess, "resize", "account resized")
	}
	return nil
}

// upload splits the binary into planned chunks and submits Write
// transactions in sequential batches. A later batch never begins before
// every transaction of the prior batch is confirmed or timed out.
func (d *Deployer) upload(ctx context.Context, binary []byte, timeouts *int) error {
	chunkSize := d.cfg.MaxChunkSize()
	chunks := PlanChunks(binary, chunkSize)
	batches := (len(chunks) + d.cfg.BatchSize - 1) / d.cfg.BatchSize
	d.ntfns.notify(LevelInfo, "upload", "uploading %d bytes in %d chunks (%d batches)",
		len(binary), len(chunks), batches)

	authPk := d.authority.Pubkey()
	progPk := d.programKey.Pubkey()

	for start := 0; start < len(chunks); start += d.cfg.BatchSize {
		end := start + d.cfg.BatchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		batch := chunks[start:end]

		var blockhash program.Hash
		txs := make([]*rpc.RuntimeTransaction, 0, len(batch))
		for i, ch := range batch {
			// Refresh the blockhash periodically so later transactions in
			// a large batch don't go stale before submission.
			if i%d.cfg.BlockhashEvery == 0 {
				var err error
				blockhash, err = d.node.GetBestBlockHash(ctx)
				if err != nil {
					return fmt.Errorf("refresh blockhash: %w", err)
				}
			}
			ix := program.NewWrite(progPk, authPk, ch.Offset, ch.Data)
			msg, err := program.Compile([]program.Instruction{ix},
				[]program.Pubkey{authPk}, authPk, blockhash)
			if err != nil {
				return fmt.Errorf("compile write at offset %d: %w", ch.Offset, err)
			}
			tx, err := d.signedTx(msg, d.authority)
			if err != nil {
				return err
			}
			txs = append(txs, tx)
		}

		txids, err := d.node.SendTransactions(ctx, txs)
		if err != nil {
			return fmt.Errorf("submit batch of %d: %w", len(txs), err)
		}
		d.log.Infof("deploy: batch %d/%d submitted (%d txs)",
			start/d.cfg.BatchSize+1, batches, len(txids))

		for _, txid := range txids {
			if err := d.confirm(ctx, txid, timeouts); err != nil {
				return err
			}
		}
		d.ntfns.notify(LevelInfo, "upload", "batch %d/%d confirmed",
			start/d.cfg.BatchSize+1, batches)

		if end < len(chunks) {
			if err := sleepCtx(ctx, d.cfg.BatchDelay); err != nil {
				return err
			}
		}
	}
	d.ntfns.notify(LevelSuccess, "upload", "upload complete")
	return nil
}

// finalize marks the account executable and verifies the stored bytes
// against the binary. The byte comparison is the deployment's single source
// of truth for success.
func (d *Deployer) finalize(ctx context.Context, binary []byte, timeouts *int) error {
	progPk := d.programKey.Pubkey()

	d.ntfns.notify(LevelInfo, "deploy", "marking %s executable", progPk)
	ix := program.NewDeploy(progPk, d.authority.Pubkey())
	txid, err := d.sendInstructions(ctx, []program.Instruction{ix}, d.authority)
	if err != nil {
		return fmt.Errorf("deploy: %w", err)
	}
	if err := d.confirm(ctx, txid, timeouts); err != nil {
		return err
	}

	info, err := d.node.ReadAccountInfo(ctx, progPk)
	if err != nil {
		return fmt.Errorf("verify read: %w", err)
	}
	if !deployedMatches(info, binary) {
		return fmt.Errorf("account %s (executable=%t, %d data bytes): %w",
			progPk, info.IsExecutable, len(info.Data), ErrVerifyMismatch)
	}
	d.ntfns.notify(LevelSuccess, "verify", "program deployed and verified (%d bytes)", len(binary))
	d.log.Infof("deploy: %s executable, %d program bytes verified", progPk, len(binary))
	return nil
}

// sendInstructions compiles, signs and submits a single transaction built
// from instructions, anchored to a fresh blockhash. The first signer is the
// fee payer.
func (d *Deployer) sendInstructions(ctx context.Context, instructions []program.Instruction,
	signers ...*signer.Keypair) (string, error) {

	blockhash, err := d.node.GetBestBlockHash(ctx)
	if err != nil {
		return "", fmt.Errorf("get blockhash: %w", err)
	}
	pubs := make([]program.Pubkey, len(signers))
	for i, kp := range signers {
		pubs[i] = kp.Pubkey()
	}
	msg, err := program.Compile(instructions, pubs, d.authority.Pubkey(), blockhash)
	if err != nil {
		return "", err
	}
	tx, err := d.signedTx(msg, signers...)
	if err != nil {
		return "", err
	}
	return d.submit(ctx, tx)
}

// signedTx signs the message once per keypair, placing each signature at
// the signer's index in the leading slice of the account keys.
func (d *Deployer) signedTx(msg *program.Message, signers ...*signer.Keypair) (*rpc.RuntimeTransaction, error) {
	payload := msg.SigningPayload()
	sigs := make([]program.Signature, msg.Header.NumRequiredSignatures)
	for _, kp := range signers {
		idx := msg.SignerIndex(kp.Pubkey())
		if idx < 0 {
			return nil, fmt.Errorf("key %s is not a required signer", kp.Pubkey())
		}
		sig, err := signer.SignMessage(kp, payload)
		if err != nil {
			return nil, fmt.Errorf("sign as %s: %w", kp.Pubkey(), err)
		}
		sigs[idx] = sig
	}
	return &rpc.RuntimeTransaction{Signatures: sigs, Message: *msg}, nil
}

// countersign fills this key's slot in a partially signed transaction.
func (d *Deployer) countersign(tx *rpc.RuntimeTransaction, kp *signer.Keypair) error {
	idx := tx.Message.SignerIndex(kp.Pubkey())
	if idx < 0 {
		return fmt.Errorf("key %s is not a required signer of faucet transaction", kp.Pubkey())
	}
	for len(tx.Signatures) < int(tx.Message.Header.NumRequiredSignatures) {
		tx.Signatures = append(tx.Signatures, program.Signature{})
	}
	sig, err := signer.SignMessage(kp, tx.Message.SigningPayload())
	if err != nil {
		return fmt.Errorf("countersign: %w", err)
	}
	tx.Signatures[idx] = sig
	return nil
}

// submit sends one transaction, decorating transport errors with the
// message shape for diagnosis.
func (d *Deployer) submit(ctx context.Context, tx *rpc.RuntimeTransaction) (string, error) {
	txid, err := d.node.SendTransaction(ctx, tx)
	if err != nil {
		h := tx.Message.Header
		return "", fmt.Errorf("submit (header=%d/%d/%d, %d keys, %d sigs): %w",
			h.NumRequiredSignatures, h.NumReadonlySignedAccounts,
			h.NumReadonlyUnsignedAccounts, len(tx.Message.AccountKeys),
			len(tx.Signatures), err)
	}
	return txid, nil
}

// confirm polls one transaction to a terminal state. Timeouts are logged
// and tolerated unless strict mode's consecutive budget runs out; any
// confirmed transaction resets the budget.
func (d *Deployer) confirm(ctx context.Context, txid string, timeouts *int) error {
	err := d.waitProcessed(ctx, txid)
	if err == nil {
		*timeouts = 0
		return nil
	}
	if !errors.Is(err, errConfirmTimeout) {
		return err
	}

	*timeouts++
	d.log.Warnf("deploy: tx %s unconfirmed after %v (consecutive timeouts: %d)",
		txid, d.cfg.ConfirmTimeout, *timeouts)
	if d.cfg.StrictConfirmations > 0 && *timeouts >= d.cfg.StrictConfirmations {
		return fmt.Errorf("%d consecutive timeouts: %w", *timeouts, ErrConfirmationStalled)
	}
	return nil
}

// waitProcessed polls get_processed_transaction until the node reports a
// terminal status or the timeout elapses.
func (d *Deployer) waitProcessed(ctx context.Context, txid string) error {
	deadline := time.Now().Add(d.cfg.ConfirmTimeout)
	for {
		ptx, err := d.node.GetProcessedTransaction(ctx, txid)
		switch {
		case err == nil:
			if ptx.Status.Failed() {
				return fmt.Errorf("tx %s failed on chain: %s", txid, ptx.Status.Reason)
			}
			if ptx.Status.Processed() {
				return nil
			}
		case !errors.Is(err, rpc.ErrNotFound):
			return err
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("tx %s: %w", txid, errConfirmTimeout)
		}
		if err := sleepCtx(ctx, d.cfg.ConfirmInterval); err != nil {
			return err
		}
	}
}

func sleepCtx(ctx context.Context, dur time.Duration) error {
	t := time.NewTimer(dur)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
