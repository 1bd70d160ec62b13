package services

import (
	"context"
	"fmt"
	"time"

	"github.com/dmitrijs2005/happypaisa/internal/common"
	"github.com/dmitrijs2005/happypaisa/internal/keylock"
	"github.com/dmitrijs2005/happypaisa/internal/logging"
	"github.com/dmitrijs2005/happypaisa/internal/money"
	"github.com/dmitrijs2005/happypaisa/internal/server/events"
	"github.com/dmitrijs2005/happypaisa/internal/server/models"
	"github.com/dmitrijs2005/happypaisa/internal/server/repositories/repomanager"
	"github.com/google/uuid"
)

// Options tune how committed movements reach the chain.
type Options struct {
	MaxInFlightPerUser int
	SubmitTimeout      time.Duration
	ConfirmTimeout     time.Duration
	ConfirmPoll        time.Duration
}

func DefaultOptions() Options {
	return Options{
		MaxInFlightPerUser: 1,
		SubmitTimeout:      30 * time.Second,
		ConfirmTimeout:     2 * time.Minute,
		ConfirmPoll:        500 * time.Millisecond,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.MaxInFlightPerUser < 1 {
		o.MaxInFlightPerUser = d.MaxInFlightPerUser
	}
	if o.SubmitTimeout <= 0 {
		o.SubmitTimeout = d.SubmitTimeout
	}
	if o.ConfirmTimeout <= 0 {
		o.ConfirmTimeout = d.ConfirmTimeout
	}
	if o.ConfirmPoll <= 0 {
		o.ConfirmPoll = d.ConfirmPoll
	}
	return o
}

type TransferRequest struct {
	// CorrelationID makes the request idempotent; empty means a fresh one.
	CorrelationID string
	From          string
	To            string
	Amount        money.HP
	Description   string
}

type TransferResult struct {
	Out      *models.Transaction
	In       *models.Transaction
	Replayed bool
	Pending  *Pending
}

type CreateRequest struct {
	// ID makes the request idempotent; empty means a fresh one.
	ID          string
	UserID      string
	Kind        models.TxKind
	Amount      money.HP
	Category    string
	Description string
	// Counterparty turns a transfer_out into a transfer to that user.
	Counterparty string
}

type EntryResult struct {
	Transaction *models.Transaction
	Replayed    bool
	Pending     *Pending
}

// Coordinator commits value movements locally, all or nothing, and hands
// them to the submitter for the chain.
type Coordinator struct {
	repomanager repomanager.RepositoryManager
	ledger      *Ledger
	balances    *BalanceService
	locks       *keylock.Locker
	submitter   *Submitter
	bus         *events.Bus
	logger      logging.Logger
	newID       func() string
}

func NewCoordinator(m repomanager.RepositoryManager, ledger *Ledger, balances *BalanceService, locks *keylock.Locker, submitter *Submitter, bus *events.Bus, l logging.Logger) *Coordinator {
	return &Coordinator{
		repomanager: m,
		ledger:      ledger,
		balances:    balances,
		locks:       locks,
		submitter:   submitter,
		bus:         bus,
		logger:      l.With("module", "coordinator"),
		newID:       func() string { return uuid.NewString() },
	}
}

// Transfer moves amount between two wallets. Both legs and both balance
// changes commit together; the chain transfer follows asynchronously and is
// reported through the returned Pending.
func (c *Coordinator) Transfer(ctx context.Context, req TransferRequest) (*TransferResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := validUser(req.From); err != nil {
		return nil, err
	}
	if err := validUser(req.To); err != nil {
		return nil, err
	}
	if req.CorrelationID == "" {
		req.CorrelationID = c.newID()
	}

	out, in, err := models.NewTransferPair(req.CorrelationID, req.From, req.To, req.Amount, req.Description)
	if err != nil {
		return nil, err
	}

	unlock, err := c.locks.Lock(ctx, req.From, req.To)
	if err != nil {
		return nil, err
	}
	defer unlock()

	var (
		res      TransferResult
		from, to *models.Wallet
	)
	err = c.repomanager.InTx(ctx, func(ctx context.Context, r repomanager.Repositories) error {
		res = TransferResult{}
		var err error
		if from, err = c.balances.active(ctx, r, req.From); err != nil {
			return err
		}
		if to, err = c.balances.active(ctx, r, req.To); err != nil {
			return err
		}

		storedOut, created, err := c.ledger.Append(ctx, r, out)
		if err != nil {
			return err
		}
		if !created {
			storedIn, err := r.Transactions.Get(ctx, in.ID)
			if err != nil {
				return err
			}
			res.Out, res.In, res.Replayed = storedOut, storedIn, true
			return nil
		}
		storedIn, created, err := c.ledger.Append(ctx, r, in)
		if err != nil {
			return err
		}
		if !created {
			return fmt.Errorf("%w: %s", common.ErrDuplicateTransaction, in.ID)
		}

		if err := c.balances.apply(ctx, r, from, -req.Amount); err != nil {
			return err
		}
		if err := c.balances.apply(ctx, r, to, req.Amount); err != nil {
			return err
		}
		res.Out, res.In = storedOut, storedIn
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("transfer %s: %w", req.CorrelationID, err)
	}

	if res.Replayed {
		res.Pending = c.submitter.pendingFor(req.CorrelationID, res.Out.Status)
		return &res, nil
	}

	c.balances.committed(ctx, from, -req.Amount)
	c.balances.committed(ctx, to, req.Amount)
	c.publishCommitted(res.Out, res.In)
	res.Pending = c.submitter.enqueue(transferJob(res.Out))

	c.logger.Info(ctx, "transfer committed",
		"correlation_id", req.CorrelationID, "from", req.From, "to", req.To, "amount", req.Amount.String())
	return &res, nil
}

// CreateTransaction records a credit or a debit, or a transfer_out to
// Counterparty. A transfer uses ID as its correlation id and the result
// carries the outgoing leg. Other kinds have their own entry points.
func (c *Coordinator) CreateTransaction(ctx context.Context, req CreateRequest) (*EntryResult, error) {
	if err := validUser(req.UserID); err != nil {
		return nil, err
	}
	if req.ID == "" {
		req.ID = c.newID()
	}
	if req.Kind == models.KindTransferOut {
		if req.Counterparty == "" {
			return nil, fmt.Errorf("%w: transfer_out needs a counterparty", common.ErrInvalidRequest)
		}
		tr, err := c.Transfer(ctx, TransferRequest{
			CorrelationID: req.ID,
			From:          req.UserID,
			To:            req.Counterparty,
			Amount:        req.Amount,
			Description:   req.Description,
		})
		if err != nil {
			return nil, err
		}
		return &EntryResult{Transaction: tr.Out, Replayed: tr.Replayed, Pending: tr.Pending}, nil
	}
	if req.Counterparty != "" {
		return nil, fmt.Errorf("%w: %s takes no counterparty", common.ErrInvalidRequest, req.Kind)
	}

	var (
		t   *models.Transaction
		err error
	)
	switch req.Kind {
	case models.KindCredit:
		t, err = models.NewCredit(req.ID, req.UserID, req.Amount, req.Category, req.Description)
	case models.KindDebit:
		t, err = models.NewDebit(req.ID, req.UserID, req.Amount, req.Category, req.Description)
	default:
		return nil, fmt.Errorf("%w: kind %q cannot be created directly", common.ErrInvalidRequest, req.Kind)
	}
	if err != nil {
		return nil, err
	}
	return c.commit(ctx, t)
}

// commit applies a single chain-backed entry to its wallet.
func (c *Coordinator) commit(ctx context.Context, t *models.Transaction) (*EntryResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	unlock, err := c.locks.Lock(ctx, t.UserID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	var (
		res EntryResult
		w   *models.Wallet
	)
	err = c.repomanager.InTx(ctx, func(ctx context.Context, r repomanager.Repositories) error {
		res = EntryResult{}
		var err error
		if w, err = c.balances.active(ctx, r, t.UserID); err != nil {
			return err
		}
		stored, created, err := c.ledger.Append(ctx, r, t)
		if err != nil {
			return err
		}
		res.Transaction = stored
		if !created {
			res.Replayed = true
			return nil
		}
		return c.balances.apply(ctx, r, w, t.SignedDelta())
	})
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", t.Kind, t.ID, err)
	}

	if res.Replayed {
		res.Pending = c.submitter.pendingFor(t.ID, res.Transaction.Status)
		return &res, nil
	}

	c.balances.committed(ctx, w, t.SignedDelta())
	c.publishCommitted(res.Transaction)
	res.Pending = c.submitter.enqueue(entryJob(res.Transaction))

	c.logger.Info(ctx, "transaction committed",
		"id", t.ID, "user_id", t.UserID, "kind", string(t.Kind), "amount", t.Amount.String())
	return &res, nil
}

func (c *Coordinator) publishCommitted(txs ...*models.Transaction) {
	for _, t := range txs {
		c.bus.Publish(events.TopicCommitted, events.Committed{Transaction: *t})
	}
}
