// Package mockchain is an in-process stand-in for the HP blockchain. It keeps
// balances per address, assigns block heights, deduplicates submissions by
// reference and signs every transfer with the sender's custodial key.
//
// Faults can be injected per operation so callers can exercise their retry
// and compensation paths.
package mockchain

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
	"github.com/dmitrijs2005/happypaisa/internal/common"
	"github.com/dmitrijs2005/happypaisa/internal/money"
	"github.com/dmitrijs2005/happypaisa/internal/server/gateway"
	"lukechampine.com/blake3"
)

// Operation names accepted by Fail.
const (
	OpSubmit       = "submit_transfer"
	OpStatus       = "chain_status"
	OpAddress      = "get_or_create_address"
	OpTransactions = "get_transactions"
	OpTransaction  = "get_transaction"
)

type fault struct {
	err   error
	times int
}

type record struct {
	tx  gateway.ChainTx
	sig *ecdsa.Signature
	seq int
}

type Chain struct {
	mu        sync.Mutex
	network   string
	block     int64
	autoMine  bool
	treasury  string
	keys      map[string]*secp256k1.PrivateKey // address -> key
	addresses map[string]string                // user -> address
	balances  map[string]money.HP
	records   []*record
	byHash    map[string]*record
	byRef     map[string]*record
	faults    map[string]*fault
	now       func() time.Time
}

type Option func(*Chain)

// WithManualMining leaves submissions pending until Mine is called.
func WithManualMining() Option {
	return func(c *Chain) { c.autoMine = false }
}

func WithNetwork(name string) Option {
	return func(c *Chain) { c.network = name }
}

func WithClock(now func() time.Time) Option {
	return func(c *Chain) { c.now = now }
}

// New builds a chain whose treasury can mint without limit.
func New(opts ...Option) *Chain {
	c := &Chain{
		network:   "happypaisa-mock",
		autoMine:  true,
		keys:      make(map[string]*secp256k1.PrivateKey),
		addresses: make(map[string]string),
		balances:  make(map[string]money.HP),
		byHash:    make(map[string]*record),
		byRef:     make(map[string]*record),
		faults:    make(map[string]*fault),
		now:       func() time.Time { return time.Now().UTC() },
	}
	for _, o := range opts {
		o(c)
	}
	c.treasury = c.addressLocked(common.TreasuryUserID)
	return c
}

// Fail makes the next times calls of op return err; a negative times fails
// until Heal.
func (c *Chain) Fail(op string, err error, times int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.faults[op] = &fault{err: err, times: times}
}

// Heal clears every injected fault.
func (c *Chain) Heal() {
	c.mu.Lock()
	defer c.mu.Unlock()
	clear(c.faults)
}

func (c *Chain) faultLocked(op string) error {
	f, ok := c.faults[op]
	if !ok {
		return nil
	}
	if f.times > 0 {
		f.times--
		if f.times == 0 {
			delete(c.faults, op)
		}
	}
	return f.err
}

func (c *Chain) addressLocked(userID string) string {
	if a, ok := c.addresses[userID]; ok {
		return a
	}
	key := deriveKey(c.network, userID)
	a := EncodeAddress(key.PubKey())
	c.addresses[userID] = a
	c.keys[a] = key
	return a
}

func (c *Chain) GetOrCreateAddress(ctx context.Context, userID string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.faultLocked(OpAddress); err != nil {
		return "", err
	}
	return c.addressLocked(userID), nil
}

func (c *Chain) TreasuryAddress(ctx context.Context) (string, error) {
	return c.treasury, ctx.Err()
}

func (c *Chain) ChainStatus(ctx context.Context) (gateway.Status, error) {
	if err := ctx.Err(); err != nil {
		return gateway.Status{}, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.faultLocked(OpStatus); err != nil {
		return gateway.Status{}, err
	}
	return gateway.Status{Network: c.network, CurrentBlock: c.block}, nil
}

func digest(t gateway.Transfer, seq int) [32]byte {
	h := blake3.New(32, nil)
	_, _ = h.Write([]byte(t.From + "|" + t.To + "|" + t.Reference + "|" + t.Memo + "|"))
	var buf [16]byte
	binary.BigEndian.PutUint64(buf[:8], uint64(t.Amount.Milli()))
	binary.BigEndian.PutUint64(buf[8:], uint64(seq))
	_, _ = h.Write(buf[:])
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

func (c *Chain) SubmitTransfer(ctx context.Context, t gateway.Transfer) (gateway.Submission, error) {
	if err := ctx.Err(); err != nil {
		return gateway.Submission{}, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.faultLocked(OpSubmit); err != nil {
		return gateway.Submission{}, err
	}
	if t.Reference != "" {
		if r, ok := c.byRef[t.Reference]; ok {
			return gateway.Submission{Hash: r.tx.Hash}, nil
		}
	}
	if !t.Amount.IsPositive() {
		return gateway.Submission{}, fmt.Errorf("%w: non-positive amount %s", common.ErrSubmissionRejected, t.Amount)
	}
	key, ok := c.keys[t.From]
	if !ok {
		return gateway.Submission{}, fmt.Errorf("%w: unknown sender %q", gateway.ErrInvalidAddress, t.From)
	}
	if err := ValidateAddress(t.To); err != nil {
		return gateway.Submission{}, err
	}
	if t.From != c.treasury && c.balances[t.From] < t.Amount {
		return gateway.Submission{}, fmt.Errorf("%w: sender %s holds %s, needs %s",
			common.ErrSubmissionRejected, t.From, c.balances[t.From], t.Amount)
	}

	seq := len(c.records) + 1
	d := digest(t, seq)
	r := &record{
		seq: seq,
		sig: ecdsa.Sign(key, d[:]),
		tx: gateway.ChainTx{
			Hash:      "0x" + hex.EncodeToString(d[:]),
			From:      t.From,
			To:        t.To,
			Amount:    t.Amount,
			Memo:      t.Memo,
			Reference: t.Reference,
			State:     gateway.TxPending,
			Timestamp: c.now(),
		},
	}
	c.records = append(c.records, r)
	c.byHash[r.tx.Hash] = r
	if t.Reference != "" {
		c.byRef[t.Reference] = r
	}

	if c.autoMine {
		c.mineLocked()
	}
	return gateway.Submission{Hash: r.tx.Hash}, nil
}

// Mine includes every pending transfer in one new block and returns its
// height. Transfers whose sender can no longer cover them are rejected.
func (c *Chain) Mine() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mineLocked()
}

func (c *Chain) mineLocked() int64 {
	c.block++
	for _, r := range c.records {
		if r.tx.State != gateway.TxPending {
			continue
		}
		d := digest(gateway.Transfer{From: r.tx.From, To: r.tx.To, Amount: r.tx.Amount, Memo: r.tx.Memo, Reference: r.tx.Reference}, r.seq)
		if !r.sig.Verify(d[:], c.keys[r.tx.From].PubKey()) {
			r.tx.State = gateway.TxRejected
			continue
		}
		if r.tx.From != c.treasury && c.balances[r.tx.From] < r.tx.Amount {
			r.tx.State = gateway.TxRejected
			continue
		}
		c.balances[r.tx.From] -= r.tx.Amount
		c.balances[r.tx.To] += r.tx.Amount
		r.tx.State = gateway.TxIncluded
		r.tx.Block = c.block
	}
	return c.block
}

// Reject marks a pending transfer as rejected by the network.
func (c *Chain) Reject(hash string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.byHash[hash]
	if !ok {
		return common.ErrorNotFound
	}
	if r.tx.State != gateway.TxPending {
		return fmt.Errorf("transfer %s is %s", hash, r.tx.State)
	}
	r.tx.State = gateway.TxRejected
	return nil
}

func (c *Chain) Transaction(ctx context.Context, hash string) (gateway.ChainTx, error) {
	if err := ctx.Err(); err != nil {
		return gateway.ChainTx{}, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.faultLocked(OpTransaction); err != nil {
		return gateway.ChainTx{}, err
	}
	r, ok := c.byHash[hash]
	if !ok {
		return gateway.ChainTx{}, common.ErrorNotFound
	}
	return r.tx, nil
}

func (c *Chain) Transactions(ctx context.Context, userID string, limit int) ([]gateway.ChainTx, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.faultLocked(OpTransactions); err != nil {
		return nil, err
	}

	addr, ok := c.addresses[userID]
	if !ok {
		return nil, nil
	}
	var res []gateway.ChainTx
	for _, r := range slices.Backward(c.records) {
		if r.tx.From == addr || r.tx.To == addr {
			res = append(res, r.tx)
			if limit > 0 && len(res) == limit {
				break
			}
		}
	}
	return res, nil
}

// Balance returns the included balance held by address.
func (c *Chain) Balance(address string) money.HP {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.balances[address]
}
