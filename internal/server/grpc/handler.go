package grpc

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/happypaisa/internal/api"
	"github.com/dmitrijs2005/happypaisa/internal/common"
	"github.com/dmitrijs2005/happypaisa/internal/logging"
	"github.com/dmitrijs2005/happypaisa/internal/money"
	"github.com/dmitrijs2005/happypaisa/internal/server/models"
	"github.com/dmitrijs2005/happypaisa/internal/server/services"
)

type handler struct {
	wallet *services.Wallet
	logger logging.Logger
}

var _ api.WalletServer = (*handler)(nil)

// fail converts err into a status error, attaching the user's stored
// balance when the error does not carry one already.
func (h *handler) fail(ctx context.Context, err error, userID string) error {
	var balance *money.HP
	if _, ok := common.BalanceOf(err); !ok && userID != "" {
		if b, lerr := h.wallet.Balances.Lookup(context.WithoutCancel(ctx), userID); lerr == nil {
			balance = &b.Balance
		}
	}
	return api.Status(err, userID, balance).Err()
}

// settle waits for p when asked to and reports why the chain refused it.
// Running out of time is not a failure: the entry keeps its current status.
func settle(ctx context.Context, wait bool, p *services.Pending) string {
	if !wait || p == nil {
		return ""
	}
	status, err := p.Wait(ctx)
	if status == models.StatusFailed && err != nil {
		return err.Error()
	}
	return ""
}

// reread returns the stored state of the given entries after a wait.
func (h *handler) reread(ctx context.Context, ids ...string) ([]*models.Transaction, error) {
	ctx = context.WithoutCancel(ctx)
	out := make([]*models.Transaction, 0, len(ids))
	for _, id := range ids {
		t, err := h.wallet.Ledger.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

func (h *handler) GetBalance(ctx context.Context, req *api.GetBalanceRequest) (*api.BalanceResponse, error) {
	b, err := h.wallet.Balances.GetBalance(ctx, req.UserID)
	if err != nil {
		return nil, api.Status(err, req.UserID, nil).Err()
	}
	resp := fromBalance(b)
	return &resp, nil
}

func (h *handler) CreateTransaction(ctx context.Context, req *api.CreateTransactionRequest) (*api.TransactionResponse, error) {
	res, err := h.wallet.Coordinator.CreateTransaction(ctx, services.CreateRequest{
		ID:           req.ID,
		UserID:       req.UserID,
		Kind:         models.TxKind(req.Kind),
		Amount:       req.Amount,
		Category:     req.Category,
		Description:  req.Description,
		Counterparty: req.Counterparty,
	})
	if err != nil {
		return nil, h.fail(ctx, err, req.UserID)
	}
	return h.entryResponse(ctx, res.Transaction, res.Replayed, settle(ctx, req.Wait, res.Pending), req.Wait)
}

func (h *handler) entryResponse(ctx context.Context, t *models.Transaction, replayed bool, failure string, waited bool) (*api.TransactionResponse, error) {
	if waited {
		txs, err := h.reread(ctx, t.ID)
		if err != nil {
			return nil, h.fail(ctx, err, t.UserID)
		}
		t = txs[0]
	}
	return &api.TransactionResponse{Transaction: fromTransaction(t), Replayed: replayed, Failure: failure}, nil
}

func (h *handler) GetTransaction(ctx context.Context, req *api.GetTransactionRequest) (*api.TransactionResponse, error) {
	t, err := h.wallet.Ledger.Get(ctx, req.ID)
	if err != nil {
		return nil, api.Status(err, "", nil).Err()
	}
	return &api.TransactionResponse{Transaction: fromTransaction(t)}, nil
}

func (h *handler) ListTransactions(ctx context.Context, req *api.ListTransactionsRequest) (*api.ListTransactionsResponse, error) {
	txs, err := h.wallet.Ledger.List(ctx, req.UserID, req.Limit, req.Offset)
	if err != nil {
		return nil, api.Status(err, req.UserID, nil).Err()
	}
	return &api.ListTransactionsResponse{Transactions: fromTransactions(txs)}, nil
}

func (h *handler) ListChainTransactions(ctx context.Context, req *api.ListChainTransactionsRequest) (*api.ListChainTransactionsResponse, error) {
	addr, entries, err := h.wallet.Balances.ChainHistory(ctx, req.UserID, req.Limit)
	if err != nil {
		return nil, api.Status(err, req.UserID, nil).Err()
	}
	return &api.ListChainTransactionsResponse{Address: addr, Transactions: fromChainEntries(entries)}, nil
}

func (h *handler) Transfer(ctx context.Context, req *api.TransferRequest) (*api.TransferResponse, error) {
	res, err := h.wallet.Coordinator.Transfer(ctx, services.TransferRequest{
		CorrelationID: req.CorrelationID,
		From:          req.From,
		To:            req.To,
		Amount:        req.Amount,
		Description:   req.Description,
	})
	if err != nil {
		return nil, h.fail(ctx, err, req.From)
	}

	failure := settle(ctx, req.Wait, res.Pending)
	out, in := res.Out, res.In
	if req.Wait {
		txs, err := h.reread(ctx, out.ID, in.ID)
		if err != nil {
			return nil, h.fail(ctx, err, req.From)
		}
		out, in = txs[0], txs[1]
	}
	return &api.TransferResponse{
		Out:      fromTransaction(out),
		In:       fromTransaction(in),
		Replayed: res.Replayed,
		Failure:  failure,
	}, nil
}

func (h *handler) Convert(ctx context.Context, req *api.ConvertRequest) (*api.ConvertResponse, error) {
	var (
		res *services.ConversionResult
		err error
	)
	switch req.Direction {
	case api.INRToHP:
		res, err = h.wallet.Converter.INRToHP(ctx, req.ID, req.UserID, req.Amount)
	case api.HPToINR:
		var hp money.HP
		if hp, err = money.FromDecimal(req.Amount); err != nil {
			err = fmt.Errorf("%w: %v", common.ErrInvalidAmount, err)
			break
		}
		res, err = h.wallet.Converter.HPToINR(ctx, req.ID, req.UserID, hp)
	default:
		err = fmt.Errorf("%w: unknown direction %q", common.ErrInvalidRequest, req.Direction)
	}
	if err != nil {
		return nil, h.fail(ctx, err, req.UserID)
	}

	entry, err := h.entryResponse(ctx, res.Transaction, res.Replayed, settle(ctx, req.Wait, res.Pending), req.Wait)
	if err != nil {
		return nil, err
	}
	return &api.ConvertResponse{
		Transaction: entry.Transaction,
		HP:          res.HP,
		INR:         res.INR,
		Replayed:    entry.Replayed,
		Failure:     entry.Failure,
	}, nil
}

func (h *handler) GetChainAddress(ctx context.Context, req *api.GetChainAddressRequest) (*api.ChainAddressResponse, error) {
	addr, err := h.wallet.Balances.ChainAddress(ctx, req.UserID)
	if err != nil {
		return nil, api.Status(err, req.UserID, nil).Err()
	}
	return &api.ChainAddressResponse{UserID: req.UserID, Address: addr}, nil
}

func (h *handler) Sync(ctx context.Context, req *api.SyncRequest) (*api.SyncResponse, error) {
	if req.UserID != "" {
		rep, err := h.wallet.Reconciler.Reconcile(ctx, req.UserID)
		if err != nil {
			return nil, h.fail(ctx, err, req.UserID)
		}
		return &api.SyncResponse{Reports: []api.SyncReport{fromReport(rep)}}, nil
	}

	reports, err := h.wallet.Reconciler.ReconcileAll(ctx)
	resp := &api.SyncResponse{Reports: make([]api.SyncReport, 0, len(reports))}
	for _, r := range reports {
		resp.Reports = append(resp.Reports, fromReport(r))
	}
	if err != nil {
		if len(reports) == 0 && !isJoined(err) {
			return nil, api.Status(err, "", nil).Err()
		}
		h.logger.Warn(ctx, "sync pass incomplete", "error", err)
		for _, e := range unjoin(err) {
			resp.Errors = append(resp.Errors, e.Error())
		}
	}
	return resp, nil
}

func isJoined(err error) bool {
	_, ok := err.(interface{ Unwrap() []error })
	return ok
}

func unjoin(err error) []error {
	if j, ok := err.(interface{ Unwrap() []error }); ok {
		return j.Unwrap()
	}
	return []error{err}
}

func (h *handler) Health(ctx context.Context, _ *api.HealthRequest) (*api.HealthResponse, error) {
	hs := h.wallet.Health.Check(ctx)
	return &api.HealthResponse{
		Network:      hs.Network,
		CurrentBlock: hs.CurrentBlock,
		ChainOK:      hs.ChainOK,
		ChainError:   hs.ChainError,
		Queued:       hs.Queued,
		CheckedAt:    hs.CheckedAt,
	}, nil
}

func (h *handler) GetSummary(ctx context.Context, req *api.GetSummaryRequest) (*api.SummaryResponse, error) {
	s, err := h.wallet.Summary.Summary(ctx, req.UserID)
	if err != nil {
		return nil, api.Status(err, req.UserID, nil).Err()
	}
	return fromSummary(s), nil
}
