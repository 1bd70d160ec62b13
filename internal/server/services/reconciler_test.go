package services

import (
	"context"
	"testing"
	"time"

	"github.com/dmitrijs2005/happypaisa/internal/common"
	"github.com/dmitrijs2005/happypaisa/internal/money"
	"github.com/dmitrijs2005/happypaisa/internal/server/gateway"
	"github.com/dmitrijs2005/happypaisa/internal/server/gateway/mockchain"
	"github.com/dmitrijs2005/happypaisa/internal/server/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// spendOnChain moves value out of userID's address behind the wallet's back.
func (e *env) spendOnChain(t *testing.T, userID string, amount money.HP, ref string) string {
	t.Helper()
	ctx := context.Background()
	from, err := e.chain.GetOrCreateAddress(ctx, userID)
	require.NoError(t, err)
	to, err := e.chain.TreasuryAddress(ctx)
	require.NoError(t, err)
	sub, err := e.chain.SubmitTransfer(ctx, gateway.Transfer{From: from, To: to, Amount: amount, Memo: "fee", Reference: ref})
	require.NoError(t, err)
	return sub.Hash
}

func TestReconcile_ChainIsAuthoritative(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.fund(t, "alice", money.FromWhole(50))
	hash := e.spendOnChain(t, "alice", money.FromWhole(2), "fee-1")

	rep, err := e.Reconciler.Reconcile(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, money.FromWhole(50), rep.PriorBalance)
	assert.Equal(t, money.FromWhole(48), rep.NewBalance)
	assert.Equal(t, money.FromWhole(48), rep.ChainBalance)
	assert.Equal(t, 1, rep.Imported)
	assert.Equal(t, int64(2), rep.LastBlock)
	require.NotNil(t, rep.Adjustment)
	assert.Equal(t, money.FromWhole(-2), rep.Adjustment.Amount)
	assert.Equal(t, models.KindAdjustment, rep.Adjustment.Kind)

	assert.Equal(t, money.FromWhole(48), e.balance(t, "alice"))
	imp := e.entry(t, models.ChainImportID("alice", hash))
	assert.Equal(t, models.KindChainImport, imp.Kind)
	assert.Equal(t, money.FromWhole(-2), imp.Amount)
	w := e.wallet(t, "alice")
	require.NotNil(t, w.LastSyncedAt)
	assert.NotEmpty(t, w.ChainAddress)

	cp, err := e.repos.Repositories().Checkpoints.Get(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(2), cp.LastBlock)
	assert.Equal(t, hash, cp.LastHash)
	assert.Equal(t, money.FromWhole(48), cp.ChainBalance)

	again, err := e.Reconciler.Reconcile(ctx, "alice")
	require.NoError(t, err)
	assert.Zero(t, again.Imported)
	assert.Nil(t, again.Adjustment)
	assert.Equal(t, money.FromWhole(48), again.NewBalance)
}

func TestReconcile_PagesPastCheckpoint(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.fund(t, "alice", money.FromWhole(20))
	_, err := e.Reconciler.Reconcile(ctx, "alice")
	require.NoError(t, err)

	// more new transfers than one page holds
	for i, ref := range []string{"f1", "f2", "f3", "f4", "f5"} {
		e.spendOnChain(t, "alice", money.FromWhole(int64(i+1)), ref)
	}

	rep, err := e.Reconciler.Reconcile(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 5, rep.Imported)
	assert.Equal(t, money.FromWhole(5), rep.NewBalance)
	assert.Equal(t, int64(6), rep.LastBlock)
}

func TestReconcile_ConfirmsSubmittedEntries(t *testing.T) {
	e := newEnv(t, withChain(mockchain.WithManualMining()))
	ctx := context.Background()

	_, err := e.Coordinator.CreateTransaction(ctx, CreateRequest{ID: "c1", UserID: "alice", Kind: models.KindCredit, Amount: money.FromWhole(3)})
	require.NoError(t, err)
	eventually(t, func() bool { return e.entry(t, "c1").Status == models.StatusSubmitted }, "credit never submitted")
	// the process stops before it sees the confirmation
	e.stop()
	e.chain.Mine()

	rep, err := e.Reconciler.Reconcile(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Confirmed)
	assert.Zero(t, rep.Imported)
	assert.Nil(t, rep.Adjustment)
	assert.Equal(t, models.StatusConfirmed, e.entry(t, "c1").Status)
	assert.Equal(t, money.FromWhole(3), e.balance(t, "alice"))
}

func TestReconcile_ConflictsWithInFlightWork(t *testing.T) {
	e := newEnv(t, withSync(SyncOptions{PageSize: 2, WaitTimeout: 20 * time.Millisecond}))
	ctx := context.Background()

	e.InFlight.Add("alice")
	_, err := e.Reconciler.Reconcile(ctx, "alice")
	require.ErrorIs(t, err, common.ErrSyncConflict)
	_, err = e.repos.Repositories().Checkpoints.Get(ctx, "alice")
	require.ErrorIs(t, err, common.ErrorNotFound)

	done := make(chan error, 1)
	e.InFlight.Add("bob")
	go func() {
		_, err := e.Reconciler.Reconcile(ctx, "bob")
		done <- err
	}()
	e.InFlight.Done("bob")
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("reconcile did not resume after work settled")
	}
}

func TestReconcile_Validation(t *testing.T) {
	e := newEnv(t)
	_, err := e.Reconciler.Reconcile(context.Background(), "")
	require.ErrorIs(t, err, common.ErrInvalidRequest)
}

func TestReconcile_GatewayFailureKeepsCheckpoint(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.fund(t, "alice", money.FromWhole(5))

	e.chain.Fail(mockchain.OpTransactions, common.ErrSubmissionRejected, 1)
	_, err := e.Reconciler.Reconcile(ctx, "alice")
	require.Error(t, err)
	_, err = e.repos.Repositories().Checkpoints.Get(ctx, "alice")
	require.ErrorIs(t, err, common.ErrorNotFound)
	assert.Nil(t, e.wallet(t, "alice").LastSyncedAt)
}

func TestReconcileAll(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.fund(t, "bob", money.FromWhole(7))
	e.fund(t, "alice", money.FromWhole(4))
	e.spendOnChain(t, "bob", money.FromWhole(1), "fee-bob")

	reports, err := e.Reconciler.ReconcileAll(ctx)
	require.NoError(t, err)
	require.Len(t, reports, 2)
	assert.Equal(t, "alice", reports[0].UserID)
	assert.Nil(t, reports[0].Adjustment)
	assert.Equal(t, "bob", reports[1].UserID)
	require.NotNil(t, reports[1].Adjustment)
	assert.Equal(t, money.FromWhole(6), e.balance(t, "bob"))
}
