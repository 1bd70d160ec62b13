package cache

import (
	"context"
	"errors"
	"time"

	"github.com/allegro/bigcache/v3"
)

type Memory struct {
	cache *bigcache.BigCache
}

func NewMemory(ctx context.Context, ttl time.Duration) (*Memory, error) {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	cfg := bigcache.DefaultConfig(ttl)
	cfg.Shards = 64
	cfg.CleanWindow = ttl
	cfg.Verbose = false

	c, err := bigcache.New(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return &Memory{cache: c}, nil
}

func (m *Memory) Get(_ context.Context, userID string) (Entry, bool, error) {
	b, err := m.cache.Get(key(userID))
	if errors.Is(err, bigcache.ErrEntryNotFound) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, err
	}
	e, err := decode(b)
	if err != nil {
		return Entry{}, false, err
	}
	return e, true, nil
}

func (m *Memory) Set(_ context.Context, userID string, e Entry) error {
	b, err := encode(e)
	if err != nil {
		return err
	}
	return m.cache.Set(key(userID), b)
}

func (m *Memory) Delete(_ context.Context, userID string) error {
	err := m.cache.Delete(key(userID))
	if errors.Is(err, bigcache.ErrEntryNotFound) {
		return nil
	}
	return err
}

func (m *Memory) Close() error {
	return m.cache.Close()
}
