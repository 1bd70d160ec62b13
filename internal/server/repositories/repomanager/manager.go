// Package repomanager hands out repository sets and runs storage
// transactions for them, independently of the backing store.
package repomanager

import (
	"context"

	"github.com/dmitrijs2005/happypaisa/internal/server/repositories/checkpoints"
	"github.com/dmitrijs2005/happypaisa/internal/server/repositories/transactions"
	"github.com/dmitrijs2005/happypaisa/internal/server/repositories/wallets"
)

// Repositories is one consistent view of the store: either autocommit or
// bound to a single transaction.
type Repositories struct {
	Wallets      wallets.Repository
	Transactions transactions.Repository
	Checkpoints  checkpoints.Repository
}

type RepositoryManager interface {
	RunMigrations(ctx context.Context) error
	// Repositories returns autocommit repositories.
	Repositories() Repositories
	// InTx runs fn inside one transaction: everything fn writes is committed
	// together when it returns nil and discarded otherwise.
	InTx(ctx context.Context, fn func(ctx context.Context, r Repositories) error) error
	Close() error
}
