package rpcchain

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dmitrijs2005/happypaisa/internal/common"
	"github.com/dmitrijs2005/happypaisa/internal/logging"
	"github.com/dmitrijs2005/happypaisa/internal/money"
	"github.com/dmitrijs2005/happypaisa/internal/server/gateway"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var _ gateway.Gateway = (*Client)(nil)

type rpcRequest struct {
	JSONRPC string            `json:"jsonrpc"`
	ID      int64             `json:"id"`
	Method  string            `json:"method"`
	Params  []json.RawMessage `json:"params"`
}

// node answers every call with handle's result, or its *RPCError.
func node(t *testing.T, handle func(req rpcRequest) (any, *RPCError)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		if !assert.NoError(t, json.NewDecoder(r.Body).Decode(&req)) {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		result, rpcErr := handle(req)
		resp := map[string]any{"jsonrpc": "2.0", "id": req.ID}
		if rpcErr != nil {
			resp["error"] = rpcErr
		} else {
			resp["result"] = result
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestSubmitTransfer(t *testing.T) {
	var auth string
	var got transferParams
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		var req rpcRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "2.0", req.JSONRPC)
		assert.Equal(t, MethodSubmitTransfer, req.Method)
		if assert.Len(t, req.Params, 1) {
			assert.NoError(t, json.Unmarshal(req.Params[0], &got))
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"jsonrpc": "2.0", "id": req.ID,
			"result": map[string]string{"txHash": "0xabc"},
		})
	}))
	defer srv.Close()

	c := New(Options{Endpoint: srv.URL, AuthToken: "secret"})
	sub, err := c.SubmitTransfer(context.Background(), gateway.Transfer{
		From: "HPa", To: "HPb", Amount: money.FromMilli(2500), Memo: "rent", Reference: "corr-1",
	})
	require.NoError(t, err)

	assert.Equal(t, "0xabc", sub.Hash)
	assert.Equal(t, "Bearer secret", auth)
	assert.Equal(t, transferParams{From: "HPa", To: "HPb", Amount: money.FromMilli(2500), Memo: "rent", Reference: "corr-1"}, got)
}

func TestTransactions(t *testing.T) {
	ts := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	srv := node(t, func(req rpcRequest) (any, *RPCError) {
		var user string
		var limit int
		_ = json.Unmarshal(req.Params[0], &user)
		_ = json.Unmarshal(req.Params[1], &limit)
		assert.Equal(t, "alice", user)
		assert.Equal(t, 20, limit)
		return []map[string]any{
			{"hash": "0x2", "from": "HPt", "to": "HPa", "amount": "1.500", "block": 7, "state": "included", "timestamp": ts},
			{"hash": "0x1", "from": "HPa", "to": "HPt", "amount": "0.250", "block": 0, "state": "pending", "timestamp": ts},
		}, nil
	})

	txs, err := New(Options{Endpoint: srv.URL}).Transactions(context.Background(), "alice", 20)
	require.NoError(t, err)
	require.Len(t, txs, 2)
	assert.Equal(t, gateway.ChainTx{Hash: "0x2", From: "HPt", To: "HPa", Amount: 1500, Block: 7, State: gateway.TxIncluded, Timestamp: ts}, txs[0])
	assert.Equal(t, gateway.TxPending, txs[1].State)
	assert.Equal(t, money.HP(-250), txs[1].DeltaFor("HPa"))
}

func TestStatusAndAddresses(t *testing.T) {
	srv := node(t, func(req rpcRequest) (any, *RPCError) {
		switch req.Method {
		case MethodChainStatus:
			return map[string]any{"network": "hp-test", "currentBlock": 42}, nil
		case MethodAddress:
			var user string
			_ = json.Unmarshal(req.Params[0], &user)
			return map[string]string{"address": "HP-" + user}, nil
		case MethodTreasuryAddress:
			return map[string]string{"address": "HP-treasury"}, nil
		}
		return nil, &RPCError{Code: -32601, Message: "method not found"}
	})
	c := New(Options{Endpoint: srv.URL})
	ctx := context.Background()

	st, err := c.ChainStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, gateway.Status{Network: "hp-test", CurrentBlock: 42}, st)

	addr, err := c.GetOrCreateAddress(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, "HP-bob", addr)

	tr, err := c.TreasuryAddress(ctx)
	require.NoError(t, err)
	assert.Equal(t, "HP-treasury", tr)
}

func TestErrorClassification(t *testing.T) {
	tests := []struct {
		name      string
		code      int
		want      error
		transient bool
	}{
		{"rejected", CodeRejected, common.ErrSubmissionRejected, false},
		{"not found", CodeNotFound, common.ErrorNotFound, false},
		{"bad address", CodeInvalidAddress, gateway.ErrInvalidAddress, false},
		{"busy", CodeBusy, gateway.ErrTransient, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := node(t, func(rpcRequest) (any, *RPCError) {
				return nil, &RPCError{Code: tt.code, Message: tt.name}
			})
			_, err := New(Options{Endpoint: srv.URL}).Transaction(context.Background(), "0x1")
			require.ErrorIs(t, err, tt.want)
			assert.Equal(t, tt.transient, gateway.IsTransient(err))
		})
	}
}

func TestHTTPFailuresAreTransient(t *testing.T) {
	for _, code := range []int{http.StatusServiceUnavailable, http.StatusTooManyRequests} {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(code)
		}))
		_, err := New(Options{Endpoint: srv.URL}).ChainStatus(context.Background())
		srv.Close()
		require.ErrorIs(t, err, gateway.ErrTransient, code)
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()
	_, err := New(Options{Endpoint: srv.URL}).ChainStatus(context.Background())
	require.Error(t, err)
	assert.False(t, gateway.IsTransient(err))
}

func TestConnectionRefusedIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := New(Options{Endpoint: url}).ChainStatus(context.Background())
	require.ErrorIs(t, err, gateway.ErrTransient)
}

func TestRetriedThroughPolicy(t *testing.T) {
	var calls atomic.Int32
	srv := node(t, func(rpcRequest) (any, *RPCError) {
		if calls.Add(1) < 3 {
			return nil, &RPCError{Code: CodeBusy, Message: "busy"}
		}
		return map[string]any{"network": "hp-test", "currentBlock": 1}, nil
	})

	p := gateway.RetryPolicy{MaxAttempts: 5, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}
	g := gateway.WithRetry(New(Options{Endpoint: srv.URL}), p, logging.Discard())

	st, err := g.ChainStatus(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), st.CurrentBlock)
	assert.Equal(t, int32(3), calls.Load())
}

func TestRateLimitHonoursContext(t *testing.T) {
	srv := node(t, func(rpcRequest) (any, *RPCError) {
		return map[string]any{"network": "hp-test", "currentBlock": 1}, nil
	})
	c := New(Options{Endpoint: srv.URL, RateLimit: 0.001, Burst: 1})

	_, err := c.ChainStatus(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = c.ChainStatus(ctx)
	require.Error(t, err)
}
