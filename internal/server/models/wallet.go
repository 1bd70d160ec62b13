// Package models holds the persistent records of the wallet server: wallets,
// ledger transactions and per-user sync checkpoints.
package models

import (
	"time"

	"github.com/dmitrijs2005/happypaisa/internal/money"
)

// Wallet is the local, fast view of one user's HP holdings.
//
// Owed records compensation the user could not repay when a failed incoming
// transfer was reversed after they had already spent it. Future credits pay
// it down before increasing Balance.
type Wallet struct {
	UserID       string
	Balance      money.HP
	Owed         money.HP
	ChainAddress string
	Archived     bool
	LastSyncedAt *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// CategorySpending is the total debited in one category.
type CategorySpending struct {
	Category string
	Total    money.HP
}
