// Package memory implements the repositories on process memory. It backs the
// "memory" storage mode and the service tests.
//
// Transactions are serialised by one store mutex and write to the live state
// through a journal of prior values. A failed transaction replays the journal
// backwards, so it leaves nothing behind and costs only what it touched.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/dmitrijs2005/happypaisa/internal/server/models"
	"github.com/dmitrijs2005/happypaisa/internal/server/repositories/checkpoints"
	"github.com/dmitrijs2005/happypaisa/internal/server/repositories/transactions"
	"github.com/dmitrijs2005/happypaisa/internal/server/repositories/wallets"
)

type state struct {
	wallets     map[string]models.Wallet
	txs         map[string]models.Transaction
	seq         map[string]int64
	nextSeq     int64
	checkpoints map[string]models.SyncCheckpoint

	// journal holds undo steps while a transaction runs; nil otherwise.
	journal []func()
}

func newState() *state {
	return &state{
		wallets:     make(map[string]models.Wallet),
		txs:         make(map[string]models.Transaction),
		seq:         make(map[string]int64),
		checkpoints: make(map[string]models.SyncCheckpoint),
	}
}

// put stores v under k, journaling the previous entry while a transaction
// runs.
func put[K comparable, V any](st *state, m map[K]V, k K, v V) {
	if st.journal != nil {
		old, ok := m[k]
		st.journal = append(st.journal, func() {
			if ok {
				m[k] = old
			} else {
				delete(m, k)
			}
		})
	}
	m[k] = v
}

func (st *state) bumpSeq() int64 {
	if st.journal != nil {
		prev := st.nextSeq
		st.journal = append(st.journal, func() { st.nextSeq = prev })
	}
	st.nextSeq++
	return st.nextSeq
}

func (st *state) begin() { st.journal = make([]func(), 0, 8) }

func (st *state) end(commit bool) {
	if !commit {
		for i := len(st.journal) - 1; i >= 0; i-- {
			st.journal[i]()
		}
	}
	st.journal = nil
}

type Store struct {
	mu  sync.Mutex
	st  *state
	now func() time.Time
}

func NewStore() *Store {
	return &Store{st: newState(), now: func() time.Time { return time.Now().UTC() }}
}

// exec runs f against the live state under the store mutex.
type exec func(f func(st *state) error) error

// Tx groups repositories bound to one in-flight transaction.
type Tx struct {
	st  *state
	now func() time.Time
}

func (t *Tx) run(f func(st *state) error) error { return f(t.st) }

func (t *Tx) Wallets() wallets.Repository {
	return &walletRepo{exec: t.run, now: t.now}
}

func (t *Tx) Transactions() transactions.Repository {
	return &txRepo{exec: t.run, now: t.now}
}

func (t *Tx) Checkpoints() checkpoints.Repository {
	return &checkpointRepo{exec: t.run}
}

// InTx runs fn with repositories bound to the store. Its writes stay when fn
// returns nil and are undone otherwise, including on panic.
func (s *Store) InTx(ctx context.Context, fn func(tx *Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	committed := false
	s.st.begin()
	defer func() { s.st.end(committed) }()

	if err := fn(&Tx{st: s.st, now: s.now}); err != nil {
		return err
	}
	committed = true
	return nil
}

func (s *Store) run(f func(st *state) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return f(s.st)
}

// Wallets returns a repository whose calls each run atomically on their own.
func (s *Store) Wallets() wallets.Repository {
	return &walletRepo{exec: s.run, now: s.now}
}

func (s *Store) Transactions() transactions.Repository {
	return &txRepo{exec: s.run, now: s.now}
}

func (s *Store) Checkpoints() checkpoints.Repository {
	return &checkpointRepo{exec: s.run}
}
