package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/happypaisa/internal/common"
	"github.com/dmitrijs2005/happypaisa/internal/logging"
	"github.com/dmitrijs2005/happypaisa/internal/money"
	"github.com/dmitrijs2005/happypaisa/internal/server/cache"
	"github.com/dmitrijs2005/happypaisa/internal/server/events"
	"github.com/dmitrijs2005/happypaisa/internal/server/gateway"
	"github.com/dmitrijs2005/happypaisa/internal/server/models"
	"github.com/dmitrijs2005/happypaisa/internal/server/repositories/repomanager"
)

// Balance is what callers see of a wallet.
type Balance struct {
	UserID       string
	Balance      money.HP
	Owed         money.HP
	ChainAddress string
	LastSyncedAt *time.Time
	UpdatedAt    time.Time
	// Cached is set when the figures come from the balance cache.
	Cached bool
}

func balanceOf(w *models.Wallet) *Balance {
	return &Balance{
		UserID:       w.UserID,
		Balance:      w.Balance,
		Owed:         w.Owed,
		ChainAddress: w.ChainAddress,
		LastSyncedAt: w.LastSyncedAt,
		UpdatedAt:    w.UpdatedAt,
	}
}

// BalanceService owns the wallet rows. Mutations run inside a caller's
// storage transaction while the caller holds the user's lock.
type BalanceService struct {
	repomanager repomanager.RepositoryManager
	gateway     gateway.Gateway
	cache       cache.BalanceCache
	bus         *events.Bus
	lowBalance  money.HP
	logger      logging.Logger
	now         func() time.Time
}

func NewBalanceService(m repomanager.RepositoryManager, g gateway.Gateway, c cache.BalanceCache, bus *events.Bus, lowBalance money.HP, l logging.Logger) *BalanceService {
	if c == nil {
		c = cache.Nop{}
	}
	return &BalanceService{
		repomanager: m,
		gateway:     g,
		cache:       c,
		bus:         bus,
		lowBalance:  lowBalance,
		logger:      l.With("module", "balances"),
		now:         func() time.Time { return time.Now().UTC() },
	}
}

func validUser(userID string) error {
	switch userID {
	case "":
		return fmt.Errorf("%w: user id is required", common.ErrInvalidRequest)
	case common.TreasuryUserID:
		return fmt.Errorf("%w: %q is reserved", common.ErrInvalidRequest, userID)
	}
	return nil
}

// GetBalance returns the user's balance, creating an empty wallet on first
// use. A cached figure may be served.
func (s *BalanceService) GetBalance(ctx context.Context, userID string) (*Balance, error) {
	if err := validUser(userID); err != nil {
		return nil, err
	}

	if e, ok, err := s.cache.Get(ctx, userID); err != nil {
		s.logger.Warn(ctx, "balance cache read failed", "user_id", userID, "error", err)
	} else if ok {
		return &Balance{
			UserID:       userID,
			Balance:      e.Balance,
			Owed:         e.Owed,
			ChainAddress: e.ChainAddress,
			LastSyncedAt: e.LastSyncedAt,
			UpdatedAt:    e.UpdatedAt,
			Cached:       true,
		}, nil
	}

	r := s.repomanager.Repositories()
	w, err := r.Wallets.Get(ctx, userID)
	if errors.Is(err, common.ErrorNotFound) {
		w, err = r.Wallets.Create(ctx, &models.Wallet{UserID: userID})
	}
	if err != nil {
		return nil, fmt.Errorf("error reading wallet: %w", err)
	}

	s.remember(ctx, w)
	return balanceOf(w), nil
}

// Lookup returns the stored balance of an existing wallet.
func (s *BalanceService) Lookup(ctx context.Context, userID string) (*Balance, error) {
	if err := validUser(userID); err != nil {
		return nil, err
	}
	w, err := s.repomanager.Repositories().Wallets.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	return balanceOf(w), nil
}

// ChainAddress returns the user's chain address, asking the gateway for one
// the first time and storing it on the wallet.
func (s *BalanceService) ChainAddress(ctx context.Context, userID string) (string, error) {
	if err := validUser(userID); err != nil {
		return "", err
	}

	addr, err := s.gateway.GetOrCreateAddress(ctx, userID)
	if err != nil {
		return "", err
	}

	var w *models.Wallet
	err = s.repomanager.InTx(ctx, func(ctx context.Context, r repomanager.Repositories) error {
		var err error
		if w, err = s.load(ctx, r, userID); err != nil {
			return err
		}
		if w.ChainAddress == addr {
			return nil
		}
		w.ChainAddress = addr
		return r.Wallets.Update(ctx, w)
	})
	if err != nil {
		return "", fmt.Errorf("error storing chain address: %w", err)
	}
	s.remember(ctx, w)
	return addr, nil
}

// ChainEntry is a chain transfer seen from one wallet. Delta is signed.
type ChainEntry struct {
	gateway.ChainTx
	Delta money.HP
}

// ChainHistory lists the transfers touching the user's chain address,
// newest first, as the chain reports them. limit is clamped like List.
func (s *BalanceService) ChainHistory(ctx context.Context, userID string, limit int) (string, []ChainEntry, error) {
	addr, err := s.ChainAddress(ctx, userID)
	if err != nil {
		return "", nil, err
	}
	txs, err := s.gateway.Transactions(ctx, userID, clampLimit(limit))
	if err != nil {
		return "", nil, fmt.Errorf("error reading chain history: %w", err)
	}
	out := make([]ChainEntry, 0, len(txs))
	for _, tx := range txs {
		out = append(out, ChainEntry{ChainTx: tx, Delta: tx.DeltaFor(addr)})
	}
	return addr, out, nil
}

// Archive stops the wallet from taking part in new operations. Pending chain
// work and reconciliation still reach it.
func (s *BalanceService) Archive(ctx context.Context, userID string) error {
	if err := validUser(userID); err != nil {
		return err
	}
	return s.repomanager.InTx(ctx, func(ctx context.Context, r repomanager.Repositories) error {
		w, err := s.load(ctx, r, userID)
		if err != nil {
			return err
		}
		w.Archived = true
		return r.Wallets.Update(ctx, w)
	})
}

// load returns the user's wallet locked for update, creating it if needed.
func (s *BalanceService) load(ctx context.Context, r repomanager.Repositories, userID string) (*models.Wallet, error) {
	w, err := r.Wallets.GetForUpdate(ctx, userID)
	if errors.Is(err, common.ErrorNotFound) {
		if _, err = r.Wallets.Create(ctx, &models.Wallet{UserID: userID}); err != nil {
			return nil, err
		}
		w, err = r.Wallets.GetForUpdate(ctx, userID)
	}
	return w, err
}

// active is load for operations a user starts: archived wallets refuse them.
func (s *BalanceService) active(ctx context.Context, r repomanager.Repositories, userID string) (*models.Wallet, error) {
	w, err := s.load(ctx, r, userID)
	if err != nil {
		return nil, err
	}
	if w.Archived {
		return nil, fmt.Errorf("%w: %s", common.ErrWalletArchived, userID)
	}
	return w, nil
}

// apply adds delta to w and stores it. Incoming value settles any debt
// first; outgoing value may not exceed the balance.
func (s *BalanceService) apply(ctx context.Context, r repomanager.Repositories, w *models.Wallet, delta money.HP) error {
	switch {
	case delta > 0:
		repay := min(delta, w.Owed)
		w.Owed -= repay
		w.Balance += delta - repay
	case delta < 0:
		if w.Balance < -delta {
			return common.NewBalanceError(common.ErrInsufficientBalance, w.UserID, w.Balance.Milli())
		}
		w.Balance += delta
	}
	return r.Wallets.Update(ctx, w)
}

// reverse undoes a committed delta. Taking back value the user no longer
// holds leaves the rest as debt, which is returned.
func (s *BalanceService) reverse(ctx context.Context, r repomanager.Repositories, w *models.Wallet, delta money.HP) (money.HP, error) {
	if delta <= 0 {
		return 0, s.apply(ctx, r, w, -delta)
	}
	take := min(delta, w.Balance)
	w.Balance -= take
	w.Owed += delta - take
	return delta - take, r.Wallets.Update(ctx, w)
}

// overwrite sets the balance outright and clears any debt.
func (s *BalanceService) overwrite(ctx context.Context, r repomanager.Repositories, w *models.Wallet, balance money.HP) error {
	w.Balance = balance
	w.Owed = 0
	return r.Wallets.Update(ctx, w)
}

// committed refreshes the cache after a transaction that changed w and
// raises a low-balance alert when value left the wallet.
func (s *BalanceService) committed(ctx context.Context, w *models.Wallet, delta money.HP) {
	s.remember(ctx, w)
	if delta < 0 && s.lowBalance > 0 && w.Balance < s.lowBalance {
		s.bus.Publish(events.TopicLowBalance, events.LowBalance{
			UserID:    w.UserID,
			Balance:   w.Balance,
			Threshold: s.lowBalance,
			At:        s.now(),
		})
	}
}

func (s *BalanceService) remember(ctx context.Context, w *models.Wallet) {
	e := cache.Entry{
		Balance:      w.Balance,
		Owed:         w.Owed,
		ChainAddress: w.ChainAddress,
		LastSyncedAt: w.LastSyncedAt,
		UpdatedAt:    w.UpdatedAt,
	}
	if e.UpdatedAt.IsZero() {
		e.UpdatedAt = s.now()
	}
	if err := s.cache.Set(ctx, w.UserID, e); err != nil {
		s.logger.Warn(ctx, "balance cache write failed", "user_id", w.UserID, "error", err)
	}
}
