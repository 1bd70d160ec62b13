// Package rpcchain talks to an HP node over JSON-RPC 2.0.
package rpcchain

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/dmitrijs2005/happypaisa/internal/common"
	"github.com/dmitrijs2005/happypaisa/internal/money"
	"github.com/dmitrijs2005/happypaisa/internal/server/gateway"
	"golang.org/x/time/rate"
)

// Error codes the node uses besides the JSON-RPC reserved range.
const (
	CodeRejected       = -32001
	CodeNotFound       = -32002
	CodeInvalidAddress = -32003
	CodeBusy           = -32005
	CodeInternal       = -32603
)

const (
	MethodSubmitTransfer  = "hp_submitTransfer"
	MethodChainStatus     = "hp_chainStatus"
	MethodAddress         = "hp_getOrCreateAddress"
	MethodTransactions    = "hp_getTransactions"
	MethodTransaction     = "hp_getTransaction"
	MethodTreasuryAddress = "hp_treasuryAddress"
)

// RPCError is an error object returned by the node.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("node rpc error %d: %s", e.Code, e.Message)
}

// Unwrap maps node error codes onto the errors callers match on.
func (e *RPCError) Unwrap() error {
	switch e.Code {
	case CodeRejected:
		return common.ErrSubmissionRejected
	case CodeNotFound:
		return common.ErrorNotFound
	case CodeInvalidAddress:
		return gateway.ErrInvalidAddress
	case CodeBusy, CodeInternal:
		return gateway.ErrTransient
	}
	return nil
}

type Options struct {
	Endpoint  string
	AuthToken string
	// RateLimit is requests per second; zero disables limiting.
	RateLimit float64
	Burst     int
	Timeout   time.Duration
}

type Client struct {
	baseURL   string
	authToken string
	http      *http.Client
	limiter   *rate.Limiter
	nextID    atomic.Int64
}

func New(o Options) *Client {
	timeout := o.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	c := &Client{
		baseURL:   o.Endpoint,
		authToken: o.AuthToken,
		http:      &http.Client{Timeout: timeout},
	}
	if o.RateLimit > 0 {
		burst := o.Burst
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(o.RateLimit), burst)
	}
	return c
}

type transferParams struct {
	From      string   `json:"from"`
	To        string   `json:"to"`
	Amount    money.HP `json:"amount"`
	Memo      string   `json:"memo,omitempty"`
	Reference string   `json:"reference"`
}

type chainTx struct {
	Hash      string          `json:"hash"`
	From      string          `json:"from"`
	To        string          `json:"to"`
	Amount    money.HP        `json:"amount"`
	Memo      string          `json:"memo,omitempty"`
	Reference string          `json:"reference,omitempty"`
	Block     int64           `json:"block"`
	State     gateway.TxState `json:"state"`
	Timestamp time.Time       `json:"timestamp"`
}

func (t chainTx) toGateway() gateway.ChainTx {
	return gateway.ChainTx{
		Hash:      t.Hash,
		From:      t.From,
		To:        t.To,
		Amount:    t.Amount,
		Memo:      t.Memo,
		Reference: t.Reference,
		Block:     t.Block,
		State:     t.State,
		Timestamp: t.Timestamp,
	}
}

func (c *Client) SubmitTransfer(ctx context.Context, t gateway.Transfer) (gateway.Submission, error) {
	params := transferParams{From: t.From, To: t.To, Amount: t.Amount, Memo: t.Memo, Reference: t.Reference}
	var result struct {
		TxHash string `json:"txHash"`
	}
	if err := c.call(ctx, MethodSubmitTransfer, []any{params}, &result); err != nil {
		return gateway.Submission{}, err
	}
	return gateway.Submission{Hash: result.TxHash}, nil
}

func (c *Client) ChainStatus(ctx context.Context) (gateway.Status, error) {
	var result struct {
		Network      string `json:"network"`
		CurrentBlock int64  `json:"currentBlock"`
	}
	if err := c.call(ctx, MethodChainStatus, []any{}, &result); err != nil {
		return gateway.Status{}, err
	}
	return gateway.Status{Network: result.Network, CurrentBlock: result.CurrentBlock}, nil
}

func (c *Client) GetOrCreateAddress(ctx context.Context, userID string) (string, error) {
	var result struct {
		Address string `json:"address"`
	}
	if err := c.call(ctx, MethodAddress, []any{userID}, &result); err != nil {
		return "", err
	}
	return result.Address, nil
}

func (c *Client) TreasuryAddress(ctx context.Context) (string, error) {
	var result struct {
		Address string `json:"address"`
	}
	if err := c.call(ctx, MethodTreasuryAddress, []any{}, &result); err != nil {
		return "", err
	}
	return result.Address, nil
}

func (c *Client) Transactions(ctx context.Context, userID string, limit int) ([]gateway.ChainTx, error) {
	var result []chainTx
	if err := c.call(ctx, MethodTransactions, []any{userID, limit}, &result); err != nil {
		return nil, err
	}
	txs := make([]gateway.ChainTx, 0, len(result))
	for _, t := range result {
		txs = append(txs, t.toGateway())
	}
	return txs, nil
}

func (c *Client) Transaction(ctx context.Context, hash string) (gateway.ChainTx, error) {
	var result chainTx
	if err := c.call(ctx, MethodTransaction, []any{hash}, &result); err != nil {
		return gateway.ChainTx{}, err
	}
	return result.toGateway(), nil
}

func (c *Client) call(ctx context.Context, method string, params any, out any) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
	}

	id := c.nextID.Add(1)
	buf, err := json.Marshal(map[string]any{
		"jsonrpc": "2.0",
		"id":      id,
		"method":  method,
		"params":  params,
	})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(buf))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if strings.TrimSpace(c.authToken) != "" {
		req.Header.Set("Authorization", "Bearer "+c.authToken)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return fmt.Errorf("%w: node rpc %s: %v", gateway.ErrTransient, method, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests, resp.StatusCode >= 500:
		_, _ = io.Copy(io.Discard, resp.Body)
		return fmt.Errorf("%w: node rpc %s failed: status=%d", gateway.ErrTransient, method, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return fmt.Errorf("node rpc %s failed: status=%d", method, resp.StatusCode)
	}

	var rpcResp struct {
		JSONRPC string          `json:"jsonrpc"`
		ID      json.RawMessage `json:"id"`
		Result  json.RawMessage `json:"result"`
		Error   *RPCError       `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return fmt.Errorf("%w: node rpc %s: truncated response", gateway.ErrTransient, method)
		}
		return fmt.Errorf("node rpc %s: decode response: %w", method, err)
	}
	if rpcResp.Error != nil {
		return rpcResp.Error
	}
	if out == nil {
		return nil
	}
	if len(rpcResp.Result) == 0 || string(rpcResp.Result) == "null" {
		return fmt.Errorf("node rpc %s returned empty result", method)
	}
	return json.Unmarshal(rpcResp.Result, out)
}
