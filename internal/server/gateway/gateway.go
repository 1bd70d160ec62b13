// Package gateway defines the boundary to the external HP blockchain and the
// retry policy applied to every call across it.
//
// Two implementations exist: mockchain, an in-process simulated ledger, and
// rpcchain, a JSON-RPC client for a real node. Which one runs is decided when
// the server is built.
package gateway

import (
	"context"
	"errors"
	"time"

	"github.com/dmitrijs2005/happypaisa/internal/money"
)

var (
	// ErrTransient marks failures worth retrying: timeouts, dropped
	// connections, overloaded nodes.
	ErrTransient = errors.New("transient gateway error")
	// ErrInvalidAddress is returned for malformed or unknown chain addresses.
	ErrInvalidAddress = errors.New("invalid chain address")
)

// Transfer is a value movement to be written on chain. Reference is an
// idempotency key: submitting the same reference twice yields the original
// submission.
type Transfer struct {
	From      string
	To        string
	Amount    money.HP
	Memo      string
	Reference string
}

// Submission is the chain's handle for an accepted transfer.
type Submission struct {
	Hash string
}

type TxState string

const (
	TxPending  TxState = "pending"
	TxIncluded TxState = "included"
	TxRejected TxState = "rejected"
)

// ChainTx is a transfer as the chain reports it. Block is zero until the
// transfer is included.
type ChainTx struct {
	Hash      string
	From      string
	To        string
	Amount    money.HP
	Memo      string
	Reference string
	Block     int64
	State     TxState
	Timestamp time.Time
}

// DeltaFor is the signed effect of tx on the holder of address.
func (tx ChainTx) DeltaFor(address string) money.HP {
	var d money.HP
	if tx.To == address {
		d += tx.Amount
	}
	if tx.From == address {
		d -= tx.Amount
	}
	return d
}

type Status struct {
	Network      string
	CurrentBlock int64
}

type Gateway interface {
	SubmitTransfer(ctx context.Context, t Transfer) (Submission, error)
	ChainStatus(ctx context.Context) (Status, error)
	GetOrCreateAddress(ctx context.Context, userID string) (string, error)
	// Transactions returns at most limit transfers touching the user's
	// address, newest first.
	Transactions(ctx context.Context, userID string, limit int) ([]ChainTx, error)
	// Transaction looks a transfer up by hash; unknown hashes yield
	// common.ErrorNotFound.
	Transaction(ctx context.Context, hash string) (ChainTx, error)
	// TreasuryAddress is the mint/burn counterparty for credits and debits.
	TreasuryAddress(ctx context.Context) (string, error)
}
