package models

import (
	"time"

	"github.com/dmitrijs2005/happypaisa/internal/money"
)

// SyncCheckpoint is the last chain position fully merged into the local
// ledger for a user. ChainBalance is the chain-derived balance at LastBlock.
type SyncCheckpoint struct {
	UserID       string
	LastBlock    int64
	LastHash     string
	ChainBalance money.HP
	ReconciledAt time.Time
}
