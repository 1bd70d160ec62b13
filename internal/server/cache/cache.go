// Package cache keeps recently read balances close to the API. Entries may
// be stale; the ledger stays authoritative and every committed change
// refreshes the entry.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dmitrijs2005/happypaisa/internal/money"
)

// Entry is the cached view of one wallet.
type Entry struct {
	Balance      money.HP   `json:"balance"`
	Owed         money.HP   `json:"owed"`
	ChainAddress string     `json:"chain_address,omitempty"`
	LastSyncedAt *time.Time `json:"last_synced_at,omitempty"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

type BalanceCache interface {
	// Get reports ok=false on a miss.
	Get(ctx context.Context, userID string) (e Entry, ok bool, err error)
	Set(ctx context.Context, userID string, e Entry) error
	Delete(ctx context.Context, userID string) error
	Close() error
}

const keyPrefix = "hp:balance:"

func key(userID string) string { return keyPrefix + userID }

func encode(e Entry) ([]byte, error) {
	b, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("encode balance entry: %w", err)
	}
	return b, nil
}

func decode(b []byte) (Entry, error) {
	var e Entry
	if err := json.Unmarshal(b, &e); err != nil {
		return Entry{}, fmt.Errorf("decode balance entry: %w", err)
	}
	return e, nil
}

// Nop never stores anything.
type Nop struct{}

func (Nop) Get(context.Context, string) (Entry, bool, error) { return Entry{}, false, nil }
func (Nop) Set(context.Context, string, Entry) error         { return nil }
func (Nop) Delete(context.Context, string) error             { return nil }
func (Nop) Close() error                                     { return nil }

type Options struct {
	// Mode is one of "none", "memory" or "redis".
	Mode      string
	TTL       time.Duration
	RedisAddr string
	RedisDB   int
}

// New builds the cache selected by o.Mode.
func New(ctx context.Context, o Options) (BalanceCache, error) {
	switch o.Mode {
	case "", "none":
		return Nop{}, nil
	case "memory":
		return NewMemory(ctx, o.TTL)
	case "redis":
		return NewRedis(ctx, o.RedisAddr, o.RedisDB, o.TTL)
	}
	return nil, fmt.Errorf("unknown cache mode %q", o.Mode)
}
