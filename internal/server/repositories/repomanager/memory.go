package repomanager

import (
	"context"

	"github.com/dmitrijs2005/happypaisa/internal/server/repositories/memory"
)

// MemoryRepositoryManager keeps all state in process memory.
type MemoryRepositoryManager struct {
	store *memory.Store
}

func NewMemoryRepositoryManager() *MemoryRepositoryManager {
	return &MemoryRepositoryManager{store: memory.NewStore()}
}

func (m *MemoryRepositoryManager) RunMigrations(context.Context) error { return nil }

func (m *MemoryRepositoryManager) Repositories() Repositories {
	return Repositories{
		Wallets:      m.store.Wallets(),
		Transactions: m.store.Transactions(),
		Checkpoints:  m.store.Checkpoints(),
	}
}

func (m *MemoryRepositoryManager) InTx(ctx context.Context, fn func(ctx context.Context, r Repositories) error) error {
	return m.store.InTx(ctx, func(tx *memory.Tx) error {
		return fn(ctx, Repositories{
			Wallets:      tx.Wallets(),
			Transactions: tx.Transactions(),
			Checkpoints:  tx.Checkpoints(),
		})
	})
}

func (m *MemoryRepositoryManager) Close() error { return nil }
