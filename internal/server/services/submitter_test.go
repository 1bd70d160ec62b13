package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/dmitrijs2005/happypaisa/internal/common"
	"github.com/dmitrijs2005/happypaisa/internal/logging"
	"github.com/dmitrijs2005/happypaisa/internal/money"
	"github.com/dmitrijs2005/happypaisa/internal/server/events"
	"github.com/dmitrijs2005/happypaisa/internal/server/gateway"
	"github.com/dmitrijs2005/happypaisa/internal/server/gateway/mockchain"
	"github.com/dmitrijs2005/happypaisa/internal/server/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubmitter_RejectedTransferIsCompensated(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.fund(t, "alice", money.FromWhole(10))

	e.chain.Fail(mockchain.OpSubmit, common.ErrSubmissionRejected, 1)
	res, err := e.Coordinator.Transfer(ctx, TransferRequest{CorrelationID: "doomed", From: "alice", To: "bob", Amount: money.FromWhole(4)})
	require.NoError(t, err)

	status, err := settle(t, res.Pending)
	assert.Equal(t, models.StatusFailed, status)
	require.ErrorIs(t, err, common.ErrSubmissionRejected)

	assert.Equal(t, money.FromWhole(10), e.balance(t, "alice"))
	assert.Equal(t, money.HP(0), e.balance(t, "bob"))
	assert.Equal(t, models.StatusFailed, e.entry(t, "doomed-out").Status)
	assert.Equal(t, models.StatusFailed, e.entry(t, "doomed-in").Status)
	assert.Equal(t, money.FromWhole(10), e.chainBalance(t, "alice"))
	assert.Equal(t, 0, e.InFlight.Count("alice"))
}

func TestSubmitter_NetworkRejectionAfterSubmit(t *testing.T) {
	e := newEnv(t, withChain(mockchain.WithManualMining()))
	ctx := context.Background()

	credit, err := e.Coordinator.CreateTransaction(ctx, CreateRequest{ID: "c1", UserID: "alice", Kind: models.KindCredit, Amount: money.FromWhole(10)})
	require.NoError(t, err)
	eventually(t, func() bool { return e.entry(t, "c1").Status == models.StatusSubmitted }, "credit never submitted")
	e.chain.Mine()
	_, err = settle(t, credit.Pending)
	require.NoError(t, err)

	res, err := e.Coordinator.Transfer(ctx, TransferRequest{CorrelationID: "t1", From: "alice", To: "bob", Amount: money.FromWhole(4)})
	require.NoError(t, err)
	eventually(t, func() bool { return e.entry(t, "t1-out").Status == models.StatusSubmitted }, "transfer never submitted")

	require.NoError(t, e.chain.Reject(e.entry(t, "t1-out").ChainHash))

	status, err := settle(t, res.Pending)
	assert.Equal(t, models.StatusFailed, status)
	require.ErrorIs(t, err, common.ErrSubmissionRejected)
	assert.Equal(t, money.FromWhole(10), e.balance(t, "alice"))
	assert.Equal(t, money.HP(0), e.balance(t, "bob"))

	// a retry under the same correlation id is a fresh chain transfer
	retry, err := e.Coordinator.Transfer(ctx, TransferRequest{CorrelationID: "t1", From: "alice", To: "bob", Amount: money.FromWhole(4)})
	require.NoError(t, err)
	assert.False(t, retry.Replayed)
	assert.Equal(t, 2, retry.Out.Attempt)
	eventually(t, func() bool { return e.entry(t, "t1-out").Status == models.StatusSubmitted }, "retry never submitted")
	e.chain.Mine()
	status, err = settle(t, retry.Pending)
	require.NoError(t, err)
	assert.Equal(t, models.StatusConfirmed, status)
	assert.Equal(t, money.FromWhole(4), e.chainBalance(t, "bob"))
}

func TestSubmitter_CompensationRecordsDebt(t *testing.T) {
	var hold, holdSpend *holdGateway
	e := newEnv(t, withGateway(func(g gateway.Gateway) gateway.Gateway {
		hold = newHoldGateway(g, "gift")
		holdSpend = newHoldGateway(hold, "coffee")
		return holdSpend
	}))
	ctx := context.Background()
	e.fund(t, "alice", money.FromWhole(10))

	var mu sync.Mutex
	var comps []events.Compensated
	require.NoError(t, e.bus.Subscribe(events.TopicCompensated, func(ev events.Compensated) {
		mu.Lock()
		defer mu.Unlock()
		comps = append(comps, ev)
	}))

	gift, err := e.Coordinator.Transfer(ctx, TransferRequest{CorrelationID: "gift", From: "alice", To: "bob", Amount: money.FromWhole(4)})
	require.NoError(t, err)
	<-hold.reached

	// bob spends the gift before the chain has answered
	spend, err := e.Coordinator.CreateTransaction(ctx, CreateRequest{ID: "coffee", UserID: "bob", Kind: models.KindDebit, Amount: money.FromWhole(3), Category: "food"})
	require.NoError(t, err)
	assert.Equal(t, money.FromWhole(1), e.balance(t, "bob"))

	hold.answer <- common.ErrSubmissionRejected
	status, err := settle(t, gift.Pending)
	assert.Equal(t, models.StatusFailed, status)
	require.ErrorIs(t, err, common.ErrSubmissionRejected)

	bob := e.wallet(t, "bob")
	assert.Equal(t, money.HP(0), bob.Balance)
	assert.Equal(t, money.FromWhole(3), bob.Owed)

	// the burn of the spent funds cannot go through on chain either
	<-holdSpend.reached
	holdSpend.answer <- nil
	status, _ = settle(t, spend.Pending)
	assert.Equal(t, models.StatusFailed, status)

	assert.Equal(t, money.FromWhole(10), e.balance(t, "alice"))
	bob = e.wallet(t, "bob")
	assert.Equal(t, money.HP(0), bob.Balance)
	assert.Equal(t, money.HP(0), bob.Owed)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, comps, 2)
	assert.Equal(t, "gift", comps[0].Reference)
	assert.Equal(t, money.FromWhole(3), comps[0].Owed["bob"])
	assert.Equal(t, "coffee", comps[1].Reference)
}

func TestSubmitter_DebitWaitsForFundingCredit(t *testing.T) {
	e := newEnv(t, withChain(mockchain.WithManualMining()))
	ctx := context.Background()

	credit, err := e.Coordinator.CreateTransaction(ctx, CreateRequest{ID: "c1", UserID: "alice", Kind: models.KindCredit, Amount: money.FromWhole(5)})
	require.NoError(t, err)
	eventually(t, func() bool { return e.entry(t, "c1").Status == models.StatusSubmitted }, "credit never submitted")

	debit, err := e.Coordinator.CreateTransaction(ctx, CreateRequest{ID: "d1", UserID: "alice", Kind: models.KindDebit, Amount: money.FromWhole(3)})
	require.NoError(t, err)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, models.StatusPending, e.entry(t, "d1").Status, "debit reached the chain before its funding")

	e.chain.Mine()
	status, err := settle(t, credit.Pending)
	require.NoError(t, err)
	assert.Equal(t, models.StatusConfirmed, status)

	eventually(t, func() bool { return e.entry(t, "d1").Status == models.StatusSubmitted }, "debit never submitted")
	e.chain.Mine()
	status, err = settle(t, debit.Pending)
	require.NoError(t, err)
	assert.Equal(t, models.StatusConfirmed, status)
	assert.Equal(t, money.FromWhole(2), e.balance(t, "alice"))
	assert.Equal(t, money.FromWhole(2), e.chainBalance(t, "alice"))
}

func TestSubmitter_CreditsRunConcurrently(t *testing.T) {
	e := newEnv(t,
		withChain(mockchain.WithManualMining()),
		withOptions(Options{MaxInFlightPerUser: 2, SubmitTimeout: time.Second, ConfirmTimeout: 2 * time.Second, ConfirmPoll: 2 * time.Millisecond}),
	)
	ctx := context.Background()

	var pending []*Pending
	for _, id := range []string{"c1", "c2", "c3"} {
		res, err := e.Coordinator.CreateTransaction(ctx, CreateRequest{ID: id, UserID: "alice", Kind: models.KindCredit, Amount: money.FromWhole(1)})
		require.NoError(t, err)
		pending = append(pending, res.Pending)
	}
	eventually(t, func() bool {
		return e.entry(t, "c1").Status == models.StatusSubmitted && e.entry(t, "c2").Status == models.StatusSubmitted
	}, "credits not submitted together")
	assert.Equal(t, models.StatusPending, e.entry(t, "c3").Status, "slot limit exceeded")

	e.chain.Mine()
	eventually(t, func() bool { return e.entry(t, "c3").Status == models.StatusSubmitted }, "third credit never submitted")
	e.chain.Mine()
	for _, p := range pending {
		status, err := settle(t, p)
		require.NoError(t, err)
		assert.Equal(t, models.StatusConfirmed, status)
	}
	assert.Equal(t, money.FromWhole(3), e.chainBalance(t, "alice"))
}

func TestSubmitter_ExhaustedRetriesAreCompensated(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.fund(t, "alice", money.FromWhole(5))

	e.chain.Fail(mockchain.OpSubmit, gateway.ErrTransient, -1)
	res, err := e.Coordinator.CreateTransaction(ctx, CreateRequest{ID: "d1", UserID: "alice", Kind: models.KindDebit, Amount: money.FromWhole(2)})
	require.NoError(t, err)

	status, err := settle(t, res.Pending)
	assert.Equal(t, models.StatusFailed, status)
	require.ErrorIs(t, err, common.ErrGatewayUnavailable)
	assert.Equal(t, money.FromWhole(5), e.balance(t, "alice"))
	assert.Equal(t, models.StatusFailed, e.entry(t, "d1").Status)

	e.chain.Heal()
	retry, err := e.Coordinator.CreateTransaction(ctx, CreateRequest{ID: "d1", UserID: "alice", Kind: models.KindDebit, Amount: money.FromWhole(2)})
	require.NoError(t, err)
	assert.False(t, retry.Replayed)
	assert.Equal(t, 2, retry.Transaction.Attempt)
	status, err = settle(t, retry.Pending)
	require.NoError(t, err)
	assert.Equal(t, models.StatusConfirmed, status)
	assert.Equal(t, money.FromWhole(3), e.balance(t, "alice"))
}

func TestSubmitter_ConfirmationTimeout(t *testing.T) {
	e := newEnv(t,
		withChain(mockchain.WithManualMining()),
		withOptions(Options{MaxInFlightPerUser: 1, SubmitTimeout: time.Second, ConfirmTimeout: 30 * time.Millisecond, ConfirmPoll: 5 * time.Millisecond}),
	)
	ctx := context.Background()

	res, err := e.Coordinator.CreateTransaction(ctx, CreateRequest{ID: "c1", UserID: "alice", Kind: models.KindCredit, Amount: money.FromWhole(1)})
	require.NoError(t, err)

	status, err := settle(t, res.Pending)
	assert.Equal(t, models.StatusFailed, status)
	require.ErrorIs(t, err, common.ErrGatewayUnavailable)
	assert.Equal(t, money.HP(0), e.balance(t, "alice"))
}

func TestSubmitter_ShutdownLeavesEntriesOpen(t *testing.T) {
	e := newEnv(t, withChain(mockchain.WithManualMining()))
	ctx := context.Background()

	res, err := e.Coordinator.CreateTransaction(ctx, CreateRequest{ID: "c1", UserID: "alice", Kind: models.KindCredit, Amount: money.FromWhole(3)})
	require.NoError(t, err)
	eventually(t, func() bool { return e.entry(t, "c1").Status == models.StatusSubmitted }, "credit never submitted")

	e.stop()
	_, err = settle(t, res.Pending)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, models.StatusSubmitted, e.entry(t, "c1").Status)
	assert.Equal(t, money.FromWhole(3), e.balance(t, "alice"))
	assert.Equal(t, 0, e.InFlight.Count("alice"))
}

func TestSubmitter_RecoverAfterRestart(t *testing.T) {
	e := newEnv(t, withoutSubmitter())
	ctx := context.Background()

	_, err := e.Coordinator.CreateTransaction(ctx, CreateRequest{ID: "c1", UserID: "alice", Kind: models.KindCredit, Amount: money.FromWhole(10)})
	require.NoError(t, err)
	_, err = e.Coordinator.Transfer(ctx, TransferRequest{CorrelationID: "t1", From: "alice", To: "bob", Amount: money.FromWhole(4)})
	require.NoError(t, err)
	assert.Equal(t, 2, e.Submitter.Queued())

	// a new process over the same store and chain
	restarted := New(Deps{
		Repositories: e.repos,
		Gateway:      e.gateway,
		Bus:          e.bus,
		Logger:       logging.Discard(),
		Options:      Options{ConfirmPoll: 2 * time.Millisecond},
	})
	n, err := restarted.Submitter.Recover(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, 1, restarted.InFlight.Count("bob"))

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = restarted.Submitter.Run(runCtx)
	}()
	defer func() {
		cancel()
		<-done
	}()

	eventually(t, func() bool {
		return e.entry(t, "t1-out").Status == models.StatusConfirmed && e.entry(t, "t1-in").Status == models.StatusConfirmed
	}, "recovered transfer never confirmed")
	assert.Equal(t, models.StatusConfirmed, e.entry(t, "c1").Status)
	assert.Equal(t, money.FromWhole(6), e.chainBalance(t, "alice"))
	assert.Equal(t, money.FromWhole(4), e.chainBalance(t, "bob"))
}

func TestPending_Wait(t *testing.T) {
	p := newPending("r")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
	defer cancel()
	_, err := p.Wait(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	p.resolve(models.StatusConfirmed, nil)
	p.resolve(models.StatusFailed, common.ErrSubmissionRejected)
	status, err := p.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, models.StatusConfirmed, status)

	select {
	case <-p.Done():
	default:
		t.Fatal("Done not closed")
	}
}

func TestEntryJob_Direction(t *testing.T) {
	credit, err := models.NewCredit("c", "alice", 5, "", "")
	require.NoError(t, err)
	j := entryJob(credit)
	assert.Equal(t, common.TreasuryUserID, j.fromUser)
	assert.Equal(t, "alice", j.toUser)
	assert.Equal(t, "credit", j.memo)

	debit, err := models.NewDebit("d", "alice", 5, "", "lunch")
	require.NoError(t, err)
	j = entryJob(debit)
	assert.Equal(t, "alice", j.fromUser)
	assert.Equal(t, common.TreasuryUserID, j.toUser)
	assert.Equal(t, "lunch", j.memo)

	_, in, err := models.NewTransferPair("x", "alice", "bob", 5, "")
	require.NoError(t, err)
	j = transferJob(in)
	assert.Equal(t, "alice", j.fromUser)
	assert.Equal(t, "bob", j.toUser)
	assert.Equal(t, []string{"x-out", "x-in"}, j.entries)
}
