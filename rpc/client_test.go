package rpc

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/decred/slog"
	"github.com/stretchr/testify/require"

	"github.com/hoffmabc/arch-deploy/program"
)

func testLogger() slog.Logger {
	bknd := slog.NewBackend(io.Discard)
	log := bknd.Logger("TEST")
	if os.Getenv("RPC_TEST_TRACE") != "" {
		log.SetLevel(slog.LevelTrace)
	}
	return log
}

// rpcHandler answers each request by method name, recording the decoded
// envelopes it sees.
type rpcHandler struct {
	t        *testing.T
	requests []map[string]json.RawMessage
	reply    func(method string, params json.RawMessage) (interface{}, *RPCError)
}

func (h *rpcHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var env map[string]json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&env); err != nil {
		h.t.Errorf("decode request: %v", err)
		return
	}
	h.requests = append(h.requests, env)

	var method string
	if err := json.Unmarshal(env["method"], &method); err != nil {
		h.t.Errorf("decode method: %v", err)
		return
	}

	result, rpcErr := h.reply(method, env["params"])
	out := map[string]interface{}{"jsonrpc": "2.0", "id": json.RawMessage(env["id"])}
	if rpcErr != nil {
		out["error"] = rpcErr
	} else {
		out["result"] = result
	}
	json.NewEncoder(w).Encode(out)
}

func newTestClient(t *testing.T, reply func(method string, params json.RawMessage) (interface{}, *RPCError)) (*Client, *rpcHandler) {
	h := &rpcHandler{t: t, reply: reply}
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL, testLogger()), h
}

func TestCallEnvelope(t *testing.T) {
	c, h := newTestClient(t, func(method string, params json.RawMessage) (interface{}, *RPCError) {
		return "txid", nil
	})

	// Two calls; ids must be distinct and the envelope well-formed.
	_, err := c.SendTransaction(context.Background(), &RuntimeTransaction{})
	require.NoError(t, err)
	_, err = c.SendTransaction(context.Background(), &RuntimeTransaction{})
	require.NoError(t, err)

	require.Len(t, h.requests, 2)
	var ver string
	require.NoError(t, json.Unmarshal(h.requests[0]["jsonrpc"], &ver))
	require.Equal(t, "2.0", ver)

	var id1, id2 uint64
	require.NoError(t, json.Unmarshal(h.requests[0]["id"], &id1))
	require.NoError(t, json.Unmarshal(h.requests[1]["id"], &id2))
	require.NotEqual(t, id1, id2)
}

func TestReadAccountInfo(t *testing.T) {
	owner := program.LoaderProgram()
	c, _ := newTestClient(t, func(method string, params json.RawMessage) (interface{}, *RPCError) {
		require.Equal(t, "read_account_info", method)

		// Pubkey params travel as a JSON number array.
		var key []int
		require.NoError(t, json.Unmarshal(params, &key))
		require.Len(t, key, 32)

		return AccountInfo{
			Lamports:     1234,
			Owner:        owner,
			Data:         program.Bytes{1, 2, 3},
			IsExecutable: true,
		}, nil
	})

	info, err := c.ReadAccountInfo(context.Background(), program.SystemProgram())
	require.NoError(t, err)
	require.Equal(t, uint64(1234), info.Lamports)
	require.Equal(t, owner, info.Owner)
	require.Equal(t, program.Bytes{1, 2, 3}, info.Data)
	require.True(t, info.IsExecutable)
}

func TestNullResultIsNotFound(t *testing.T) {
	c, _ := newTestClient(t, func(method string, params json.RawMessage) (interface{}, *RPCError) {
		return nil, nil
	})

	_, err := c.GetProcessedTransaction(context.Background(), "txid")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestRPCErrorSurfaced(t *testing.T) {
	c, _ := newTestClient(t, func(method string, params json.RawMessage) (interface{}, *RPCError) {
		return nil, &RPCError{Code: -32000, Message: "account in use"}
	})

	_, err := c.ReadAccountInfo(context.Background(), program.SystemProgram())
	var rpcErr *RPCError
	require.ErrorAs(t, err, &rpcErr)
	require.Equal(t, -32000, rpcErr.Code)
	require.Contains(t, err.Error(), "account in use")
}

func TestGetBestBlockHash(t *testing.T) {
	c, _ := newTestClient(t, func(method string, params json.RawMessage) (interface{}, *RPCError) {
		require.Equal(t, "get_best_block_hash", method)
		return "0a0b0c0d0a0b0c0d0a0b0c0d0a0b0c0d0a0b0c0d0a0b0c0d0a0b0c0d0a0b0c0d", nil
	})

	h, err := c.GetBestBlockHash(context.Background())
	require.NoError(t, err)
	require.Equal(t, byte(0x0a), h[0])
	require.Equal(t, byte(0x0d), h[31])
}

func TestSendTransactionsBatch(t *testing.T) {
	c, _ := newTestClient(t, func(method string, params json.RawMessage) (interface{}, *RPCError) {
		require.Equal(t, "send_transactions", method)

		var txs []RuntimeTransaction
		require.NoError(t, json.Unmarshal(params, &txs))
		require.Len(t, txs, 2)
		return []string{"tx1", "tx2"}, nil
	})

	txids, err := c.SendTransactions(context.Background(), []*RuntimeTransaction{{}, {}})
	require.NoError(t, err)
	require.Equal(t, []string{"tx1", "tx2"}, txids)
}

func TestHTTPErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "node overloaded", http.StatusServiceUnavailable)
	}))
	t.Cleanup(srv.Close)

	c := NewClient(srv.URL, testLogger())
	_, err := c.ReadAccountInfo(context.Background(), program.SystemProgram())
	require.Error(t, err)
	require.NotErrorIs(t, err, ErrNotFound)
	require.Contains(t, err.Error(), "503")
}

func TestTxStatusForms(t *testing.T) {
	var s TxStatus
	require.NoError(t, json.Unmarshal([]byte(`"Processed"`), &s))
	require.True(t, s.Processed())
	require.False(t, s.Failed())

	require.NoError(t, json.Unmarshal([]byte(`{"Failed":"program error: custom 3"}`), &s))
	require.True(t, s.Failed())
	require.Equal(t, "program error: custom 3", s.Reason)

	var bad TxStatus
	require.Error(t, bad.UnmarshalJSON([]byte(`{}`)))
}
