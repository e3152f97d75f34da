package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/decred/slog"

	"github.com/hoffmabc/arch-deploy/program"
)

// ErrNotFound is returned when the node has no record of the requested
// entity (unknown account, transaction not yet processed).
var ErrNotFound = errors.New("not found")

// RPCError is a JSON-RPC 2.0 error object returned by the node. Transport
// and node errors are fatal for the transaction that triggered them; the
// orchestrator decides whether the run can continue.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// Client speaks JSON-RPC 2.0 over HTTP to a ledger node. Methods are safe
// for concurrent use; the deployment orchestrator nevertheless drives them
// sequentially (see deploy).
type Client struct {
	url  string
	http *http.Client
	log  slog.Logger
	id   atomic.Uint64
}

// NewClient returns a client for the node at url. A nil-safe logger must be
// supplied; cmd wires a real backend.
func NewClient(url string, log slog.Logger) *Client {
	return &Client{
		url:  url,
		http: &http.Client{Timeout: 30 * time.Second},
		log:  log,
	}
}

type request struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      uint64      `json:"id"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params"`
}

type response struct {
	Result json.RawMessage `json:"result"`
	Error  *RPCError       `json:"error"`
}

// call performs one JSON-RPC round trip. result may be nil when the caller
// only cares about success.
func (c *Client) call(ctx context.Context, method string, params, result interface{}) error {
	body, err := json.Marshal(request{
		JSONRPC: "2.0",
		ID:      c.id.Add(1),
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return fmt.Errorf("%s: encode request: %w", method, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%s: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json")

	c.log.Tracef("rpc: -> %s (%d bytes)", method, len(body))
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", method, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%s: read response: %w", method, err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s: http %d: %s", method, resp.StatusCode, truncate(raw, 256))
	}

	var r response
	if err := json.Unmarshal(raw, &r); err != nil {
		return fmt.Errorf("%s: decode response: %w", method, err)
	}
	if r.Error != nil {
		return fmt.Errorf("%s: %w", method, r.Error)
	}
	if result == nil {
		return nil
	}
	if len(r.Result) == 0 || bytes.Equal(r.Result, []byte("null")) {
		return fmt.Errorf("%s: %w", method, ErrNotFound)
	}
	if err := json.Unmarshal(r.Result, result); err != nil {
		return fmt.Errorf("%s: decode result: %w", method, err)
	}
	return nil
}

func truncate(b []byte, n int) string {
	if len(b) > n {
		return string(b[:n]) + "..."
	}
	return string(b)
}

// ReadAccountInfo fetches the account for pubkey. Returns ErrNotFound when
// the node has never seen the account.
func (c *Client) ReadAccountInfo(ctx context.Context, pubkey program.Pubkey) (*AccountInfo, error) {
	var info AccountInfo
	if err := c.call(ctx, "read_account_info", pubkey, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// GetBestBlockHash returns the current tip hash used as a message's recent
// blockhash.
func (c *Client) GetBestBlockHash(ctx context.Context) (program.Hash, error) {
	var hexStr string
	if err := c.call(ctx, "get_best_block_hash", []interface{}{}, &hexStr); err != nil {
		return program.Hash{}, err
	}
	h, err := program.HashFromHex(hexStr)
	if err != nil {
		return program.Hash{}, fmt.Errorf("get_best_block_hash: %w", err)
	}
	return h, nil
}

// RequestAirdrop asks the node's faucet to fund pubkey. Only available on
// networks that run a faucet.
func (c *Client) RequestAirdrop(ctx context.Context, pubkey program.Pubkey) error {
	return c.call(ctx, "request_airdrop", pubkey, nil)
}

// CreateAccountWithFaucet asks the node to build a faucet-funded account
// creation transaction, partially signed by the faucet. The caller adds its
// own signature and submits the result.
func (c *Client) CreateAccountWithFaucet(ctx context.Context, pubkey program.Pubkey) (*RuntimeTransaction, error) {
	var tx RuntimeTransaction
	if err := c.call(ctx, "create_account_with_faucet", pubkey, &tx); err != nil {
		return nil, err
	}
	return &tx, nil
}

// SendTransaction submits one signed transaction and returns its txid.
func (c *Client) SendTransaction(ctx context.Context, tx *RuntimeTransaction) (string, error) {
	var txid string
	if err := c.call(ctx, "send_transaction", tx, &txid); err != nil {
		return "", err
	}
	return txid, nil
}

// SendTransactions submits a batch in one call and returns the txids in
// submission order.
func (c *Client) SendTransactions(ctx context.Context, txs []*RuntimeTransaction) ([]string, error) {
	var txids []string
	if err := c.call(ctx, "send_transactions", txs, &txids); err != nil {
		return nil, err
	}
	return txids, nil
}

// GetProcessedTransaction fetches the processing record for txid. Returns
// ErrNotFound while the node has not yet processed it.
func (c *Client) GetProcessedTransaction(ctx context.Context, txid string) (*ProcessedTransaction, error) {
	var tx ProcessedTransaction
	if err := c.call(ctx, "get_processed_transaction", txid, &tx); err != nil {
		return nil, err
	}
	return &tx, nil
}
