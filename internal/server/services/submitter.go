package services

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/dmitrijs2005/happypaisa/internal/common"
	"github.com/dmitrijs2005/happypaisa/internal/keylock"
	"github.com/dmitrijs2005/happypaisa/internal/logging"
	"github.com/dmitrijs2005/happypaisa/internal/money"
	"github.com/dmitrijs2005/happypaisa/internal/server/events"
	"github.com/dmitrijs2005/happypaisa/internal/server/gateway"
	"github.com/dmitrijs2005/happypaisa/internal/server/metrics"
	"github.com/dmitrijs2005/happypaisa/internal/server/models"
	"github.com/dmitrijs2005/happypaisa/internal/server/repositories/repomanager"
	"golang.org/x/sync/semaphore"
)

// recoverLimit bounds how many open entries one Recover call picks up.
const recoverLimit = 10000

// Pending is the chain outcome of a committed movement.
type Pending struct {
	Reference string

	once   sync.Once
	done   chan struct{}
	status models.TxStatus
	err    error
}

func newPending(ref string) *Pending {
	return &Pending{Reference: ref, done: make(chan struct{})}
}

func settledPending(ref string, status models.TxStatus, err error) *Pending {
	p := newPending(ref)
	p.resolve(status, err)
	return p
}

func (p *Pending) resolve(status models.TxStatus, err error) {
	p.once.Do(func() {
		p.status, p.err = status, err
		close(p.done)
	})
}

func (p *Pending) Done() <-chan struct{} { return p.done }

// Wait blocks until the movement is settled and returns its final status.
// A failed movement comes back as StatusFailed together with the cause. If
// the server stops first, the entries remain open and the error says why.
func (p *Pending) Wait(ctx context.Context) (models.TxStatus, error) {
	select {
	case <-p.done:
		return p.status, p.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// job is one chain transfer and the ledger entries it settles.
type job struct {
	ref string
	// chainRef is what the chain deduplicates on; it changes per attempt.
	chainRef string
	fromUser string
	toUser   string
	amount   money.HP
	memo     string
	entries  []string
	users    []string
	// hash is known when a previous process already submitted the job.
	hash    string
	pending *Pending

	// deps are the earlier jobs that must settle before this one starts.
	deps       []*job
	settled    chan struct{}
	settleOnce sync.Once
}

// pays reports whether userID is the sending side of j.
func (j *job) pays(userID string) bool {
	return userID == j.fromUser && userID != common.TreasuryUserID
}

func (j *job) markSettled() {
	j.settleOnce.Do(func() { close(j.settled) })
}

// transferJob builds the job settling both legs of a transfer from either leg.
func transferJob(leg *models.Transaction) *job {
	from, to := leg.UserID, leg.Counterparty
	if leg.Kind == models.KindTransferIn {
		from, to = to, from
	}
	out, in := models.TransferLegIDs(leg.CorrelationID)
	return &job{
		ref:      leg.CorrelationID,
		chainRef: attemptRef(leg.CorrelationID, leg.Attempt),
		fromUser: from,
		toUser:   to,
		amount:   leg.Amount,
		memo:     leg.Description,
		entries:  []string{out, in},
		users:    []string{from, to},
	}
}

// attemptRef keeps a retried entry from being deduplicated against the
// chain transfer of its failed attempt.
func attemptRef(ref string, attempt int) string {
	if attempt <= 1 {
		return ref
	}
	return fmt.Sprintf("%s#%d", ref, attempt)
}

// entryJob mints value into, or burns it from, a single wallet.
func entryJob(t *models.Transaction) *job {
	j := &job{
		ref:      t.ID,
		chainRef: attemptRef(t.ID, t.Attempt),
		amount:   t.Amount,
		memo:     t.Description,
		entries:  []string{t.ID},
		users:    []string{t.UserID},
	}
	if j.memo == "" {
		j.memo = string(t.Kind)
	}
	if t.SignedDelta() > 0 {
		j.fromUser, j.toUser = common.TreasuryUserID, t.UserID
	} else {
		j.fromUser, j.toUser = t.UserID, common.TreasuryUserID
	}
	return j
}

// Submitter writes committed movements to the chain. Jobs are dispatched in
// commit order. A job that spends a user's value starts only after every
// earlier job of that user has settled, so a debit never reaches the chain
// ahead of the credit that funds it. Jobs that only add value run
// concurrently, at most MaxInFlightPerUser per user from submission to
// inclusion. Terminal failures are compensated locally.
type Submitter struct {
	gateway     gateway.Gateway
	repomanager repomanager.RepositoryManager
	ledger      *Ledger
	balances    *BalanceService
	locks       *keylock.Locker
	inflight    *InFlight
	bus         *events.Bus
	metrics     *metrics.WalletMetrics
	logger      logging.Logger
	opts        Options

	mu    sync.Mutex
	queue []*job
	jobs  map[string]*job
	// lanes holds each user's unsettled dispatched jobs in commit order.
	lanes map[string][]*job
	sems  map[string]*semaphore.Weighted
	wake  chan struct{}

	wg sync.WaitGroup
}

func NewSubmitter(g gateway.Gateway, m repomanager.RepositoryManager, ledger *Ledger, balances *BalanceService,
	locks *keylock.Locker, inflight *InFlight, bus *events.Bus, mt *metrics.WalletMetrics, opts Options, l logging.Logger) *Submitter {
	return &Submitter{
		gateway:     g,
		repomanager: m,
		ledger:      ledger,
		balances:    balances,
		locks:       locks,
		inflight:    inflight,
		bus:         bus,
		metrics:     mt,
		logger:      l.With("module", "submitter"),
		opts:        opts.withDefaults(),
		jobs:        make(map[string]*job),
		lanes:       make(map[string][]*job),
		sems:        make(map[string]*semaphore.Weighted),
		wake:        make(chan struct{}, 1),
	}
}

// enqueue schedules j unless a job with the same reference is already open,
// in which case that job's Pending is returned. Callers hold the locks of
// j's users so queue order matches commit order.
func (s *Submitter) enqueue(j *job) *Pending {
	s.mu.Lock()
	if open, ok := s.jobs[j.ref]; ok {
		s.mu.Unlock()
		return open.pending
	}
	j.pending = newPending(j.ref)
	j.settled = make(chan struct{})
	s.jobs[j.ref] = j
	s.inflight.Add(j.users...)
	s.queue = append(s.queue, j)
	s.mu.Unlock()

	s.metrics.InFlight(1)
	select {
	case s.wake <- struct{}{}:
	default:
	}
	return j.pending
}

// pendingFor returns the open job's Pending for ref, or a settled one
// carrying status.
func (s *Submitter) pendingFor(ref string, status models.TxStatus) *Pending {
	s.mu.Lock()
	defer s.mu.Unlock()
	if j, ok := s.jobs[ref]; ok {
		return j.pending
	}
	return settledPending(ref, status, nil)
}

// Queued is the number of jobs waiting for dispatch.
func (s *Submitter) Queued() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

// Run dispatches jobs until ctx ends, then waits for the jobs it started.
// Jobs still queued at that point keep their entries open for Recover.
func (s *Submitter) Run(ctx context.Context) error {
	defer s.wg.Wait()
	for {
		j, ok := s.next(ctx)
		if !ok {
			s.drain(ctx.Err())
			return nil
		}
		s.order(j)
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.process(ctx, j)
		}()
	}
}

func (s *Submitter) next(ctx context.Context) (*job, bool) {
	for {
		s.mu.Lock()
		if len(s.queue) > 0 {
			j := s.queue[0]
			s.queue[0] = nil
			s.queue = s.queue[1:]
			s.mu.Unlock()
			return j, true
		}
		s.mu.Unlock()

		select {
		case <-s.wake:
		case <-ctx.Done():
			return nil, false
		}
	}
}

// order records j in its users' lanes and makes it wait for the earlier
// jobs a spending user has open.
func (s *Submitter) order(j *job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range distinct(j.users) {
		if j.pays(u) {
			j.deps = append(j.deps, s.lanes[u]...)
		}
		s.lanes[u] = append(s.lanes[u], j)
	}
}

func distinct(users []string) []string {
	users = slices.Clone(users)
	slices.Sort(users)
	return slices.Compact(users)
}

// waitDeps blocks until every job j depends on has settled.
func (s *Submitter) waitDeps(ctx context.Context, j *job) error {
	for _, d := range j.deps {
		select {
		case <-d.settled:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (s *Submitter) drain(cause error) {
	s.mu.Lock()
	queued := s.queue
	s.queue = nil
	s.mu.Unlock()
	for _, j := range queued {
		s.leave(j, cause)
	}
}

func (s *Submitter) sem(userID string) *semaphore.Weighted {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.sems[userID]
	if !ok {
		w = semaphore.NewWeighted(int64(s.opts.MaxInFlightPerUser))
		s.sems[userID] = w
	}
	return w
}

// acquire takes a submission slot for every user of j. Slots are taken in
// user order and a holder never waits on another job, so acquiring cannot
// deadlock.
func (s *Submitter) acquire(ctx context.Context, j *job) (func(), error) {
	users := distinct(j.users)

	held := make([]*semaphore.Weighted, 0, len(users))
	release := func() {
		for _, w := range held {
			w.Release(1)
		}
	}
	for _, u := range users {
		w := s.sem(u)
		if err := w.Acquire(ctx, 1); err != nil {
			release()
			return nil, err
		}
		held = append(held, w)
	}
	var once sync.Once
	return func() { once.Do(release) }, nil
}

// process settles j. Its slots stay taken until the chain has decided.
func (s *Submitter) process(ctx context.Context, j *job) {
	if err := s.waitDeps(ctx, j); err != nil {
		s.leave(j, err)
		return
	}
	release, err := s.acquire(ctx, j)
	if err != nil {
		s.leave(j, err)
		return
	}
	defer release()
	start := time.Now()

	hash := j.hash
	if hash == "" {
		sub, err := s.submit(ctx, j)
		if err != nil {
			if ctx.Err() != nil {
				s.leave(j, ctx.Err())
				return
			}
			s.fail(ctx, j, err, start)
			return
		}
		hash = sub.Hash
		if err := s.markSubmitted(ctx, j, hash); err != nil {
			s.logger.Error(ctx, "recording submission failed", "reference", j.ref, "hash", hash, "error", err)
		}
	}

	state, err := s.await(ctx, hash)
	switch {
	case ctx.Err() != nil:
		s.leave(j, ctx.Err())
	case state == gateway.TxIncluded:
		s.confirm(ctx, j, hash, start)
	default:
		s.fail(ctx, j, err, start)
	}
}

func (s *Submitter) address(ctx context.Context, userID string) (string, error) {
	if userID == common.TreasuryUserID {
		return s.gateway.TreasuryAddress(ctx)
	}
	return s.gateway.GetOrCreateAddress(ctx, userID)
}

func (s *Submitter) submit(ctx context.Context, j *job) (gateway.Submission, error) {
	ctx, cancel := context.WithTimeout(ctx, s.opts.SubmitTimeout)
	defer cancel()

	from, err := s.address(ctx, j.fromUser)
	if err != nil {
		return gateway.Submission{}, s.timedOut(err)
	}
	to, err := s.address(ctx, j.toUser)
	if err != nil {
		return gateway.Submission{}, s.timedOut(err)
	}
	sub, err := s.gateway.SubmitTransfer(ctx, gateway.Transfer{
		From:      from,
		To:        to,
		Amount:    j.amount,
		Memo:      j.memo,
		Reference: j.chainRef,
	})
	return sub, s.timedOut(err)
}

func (s *Submitter) timedOut(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: no answer within %s: %v", common.ErrGatewayUnavailable, s.opts.SubmitTimeout, err)
	}
	return err
}

// await polls the chain until hash is included or rejected, or the
// confirmation timeout passes.
func (s *Submitter) await(ctx context.Context, hash string) (gateway.TxState, error) {
	cctx, cancel := context.WithTimeout(ctx, s.opts.ConfirmTimeout)
	defer cancel()
	ticker := time.NewTicker(s.opts.ConfirmPoll)
	defer ticker.Stop()

	for {
		tx, err := s.gateway.Transaction(cctx, hash)
		switch {
		case err == nil && tx.State == gateway.TxIncluded:
			return gateway.TxIncluded, nil
		case err == nil && tx.State == gateway.TxRejected:
			return gateway.TxRejected, fmt.Errorf("%w: %s rejected by the network", common.ErrSubmissionRejected, hash)
		case err != nil && cctx.Err() == nil && !errors.Is(err, common.ErrorNotFound):
			s.logger.Warn(ctx, "confirmation poll failed", "hash", hash, "error", err)
		}

		select {
		case <-cctx.Done():
			if err := ctx.Err(); err != nil {
				return "", err
			}
			return gateway.TxPending, fmt.Errorf("%w: %s not confirmed within %s",
				common.ErrGatewayUnavailable, hash, s.opts.ConfirmTimeout)
		case <-ticker.C:
		}
	}
}

// advance moves every open entry of j to status, passing through submitted
// where needed.
func (s *Submitter) advance(ctx context.Context, r repomanager.Repositories, j *job, to models.TxStatus, hash string) error {
	for _, id := range j.entries {
		t, err := r.Transactions.Get(ctx, id)
		if err != nil {
			return err
		}
		if t.Status.Terminal() || t.Status == to {
			continue
		}
		if t.Status == models.StatusPending && to == models.StatusConfirmed {
			if err := s.ledger.Transition(ctx, r, id, models.StatusPending, models.StatusSubmitted, hash); err != nil {
				return err
			}
			t.Status = models.StatusSubmitted
		}
		if err := s.ledger.Transition(ctx, r, id, t.Status, to, hash); err != nil {
			return err
		}
	}
	return nil
}

func (s *Submitter) markSubmitted(ctx context.Context, j *job, hash string) error {
	return s.repomanager.InTx(ctx, func(ctx context.Context, r repomanager.Repositories) error {
		return s.advance(ctx, r, j, models.StatusSubmitted, hash)
	})
}

func (s *Submitter) confirm(ctx context.Context, j *job, hash string, start time.Time) {
	err := s.repomanager.InTx(ctx, func(ctx context.Context, r repomanager.Repositories) error {
		return s.advance(ctx, r, j, models.StatusConfirmed, hash)
	})
	if err != nil {
		s.logger.Error(ctx, "recording confirmation failed", "reference", j.ref, "hash", hash, "error", err)
		s.leave(j, err)
		return
	}
	s.finish(j, models.StatusConfirmed, hash, nil, start)
}

func (s *Submitter) fail(ctx context.Context, j *job, cause error, start time.Time) {
	s.logger.Warn(ctx, "chain submission failed", "reference", j.ref, "error", cause)
	if err := s.compensate(ctx, j, cause); err != nil {
		s.logger.Error(ctx, "compensation failed, entries left open", "reference", j.ref, "error", err)
		s.leave(j, errors.Join(cause, err))
		return
	}
	s.finish(j, models.StatusFailed, "", cause, start)
}

// compensate fails every open entry of j and reverses its balance effect.
// Value a user already spent is recorded as owed.
func (s *Submitter) compensate(ctx context.Context, j *job, cause error) error {
	unlock, err := s.locks.Lock(ctx, j.users...)
	if err != nil {
		return err
	}
	defer unlock()

	var (
		owed    map[string]money.HP
		touched []*models.Wallet
	)
	err = s.repomanager.InTx(ctx, func(ctx context.Context, r repomanager.Repositories) error {
		owed = make(map[string]money.HP)
		touched = touched[:0]
		for _, id := range j.entries {
			t, err := r.Transactions.Get(ctx, id)
			if err != nil {
				return err
			}
			if t.Status.Terminal() {
				continue
			}
			if err := s.ledger.Transition(ctx, r, id, t.Status, models.StatusFailed, ""); err != nil {
				return err
			}
			w, err := s.balances.load(ctx, r, t.UserID)
			if err != nil {
				return err
			}
			debt, err := s.balances.reverse(ctx, r, w, t.SignedDelta())
			if err != nil {
				return err
			}
			if debt > 0 {
				owed[t.UserID] += debt
			}
			touched = append(touched, w)
		}
		return nil
	})
	if err != nil {
		return err
	}

	for _, w := range touched {
		s.balances.remember(ctx, w)
	}
	s.metrics.Compensated()
	s.bus.Publish(events.TopicCompensated, events.Compensated{
		Reference: j.ref,
		Entries:   j.entries,
		Reason:    cause.Error(),
		Owed:      owed,
	})
	return nil
}

func (s *Submitter) untrack(j *job) {
	s.mu.Lock()
	if s.jobs[j.ref] == j {
		delete(s.jobs, j.ref)
	}
	for _, u := range distinct(j.users) {
		lane := slices.DeleteFunc(s.lanes[u], func(k *job) bool { return k == j })
		if len(lane) == 0 {
			delete(s.lanes, u)
		} else {
			s.lanes[u] = lane
		}
	}
	s.mu.Unlock()
	j.markSettled()
	s.inflight.Done(j.users...)
	s.metrics.InFlight(-1)
}

func (s *Submitter) finish(j *job, status models.TxStatus, hash string, cause error, start time.Time) {
	s.untrack(j)
	s.metrics.Settled(string(status), time.Since(start))
	for _, id := range j.entries {
		s.bus.Publish(events.TopicSettled, events.Settled{TransactionID: id, Status: status, ChainHash: hash})
	}
	j.pending.resolve(status, cause)
}

// leave stops tracking j without settling it; its entries stay open.
func (s *Submitter) leave(j *job, cause error) {
	s.untrack(j)
	j.pending.resolve("", cause)
}

// Recover re-queues chain work left open by a previous process, oldest
// first. Submissions carry their reference, so re-sending one the chain
// already has is harmless.
func (s *Submitter) Recover(ctx context.Context) (int, error) {
	r := s.repomanager.Repositories()
	var open []*models.Transaction
	for _, st := range []models.TxStatus{models.StatusPending, models.StatusSubmitted} {
		txs, err := r.Transactions.ListByStatus(ctx, st, recoverLimit)
		if err != nil {
			return 0, fmt.Errorf("error listing %s entries: %w", st, err)
		}
		open = append(open, txs...)
	}
	slices.SortStableFunc(open, func(a, b *models.Transaction) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})

	byRef := make(map[string]*job)
	var order []*job
	for _, t := range open {
		if !t.NeedsChain() {
			continue
		}
		ref := t.ID
		if t.CorrelationID != "" {
			ref = t.CorrelationID
		}
		j, ok := byRef[ref]
		if !ok {
			if t.CorrelationID != "" {
				j = transferJob(t)
			} else {
				j = entryJob(t)
			}
			byRef[ref] = j
			order = append(order, j)
		}
		if t.Status == models.StatusSubmitted && t.ChainHash != "" {
			j.hash = t.ChainHash
		}
	}

	for _, j := range order {
		unlock, err := s.locks.Lock(ctx, j.users...)
		if err != nil {
			return 0, err
		}
		s.enqueue(j)
		unlock()
	}
	if len(order) > 0 {
		s.logger.Info(ctx, "recovered open chain work", "jobs", len(order))
	}
	return len(order), nil
}
