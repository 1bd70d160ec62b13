package grpc

import (
	"github.com/dmitrijs2005/happypaisa/internal/api"
	"github.com/dmitrijs2005/happypaisa/internal/server/models"
	"github.com/dmitrijs2005/happypaisa/internal/server/services"
)

func fromTransaction(t *models.Transaction) api.Transaction {
	out := api.Transaction{
		ID:            t.ID,
		UserID:        t.UserID,
		Kind:          string(t.Kind),
		Amount:        t.Amount,
		Counterparty:  t.Counterparty,
		CorrelationID: t.CorrelationID,
		Status:        string(t.Status),
		ChainHash:     t.ChainHash,
		Category:      t.Category,
		Description:   t.Description,
		Attempt:       t.Attempt,
		CreatedAt:     t.CreatedAt,
		UpdatedAt:     t.UpdatedAt,
	}
	if t.AmountINR.Valid {
		inr := t.AmountINR.Decimal
		out.AmountINR = &inr
	}
	return out
}

func fromTransactions(txs []*models.Transaction) []api.Transaction {
	out := make([]api.Transaction, 0, len(txs))
	for _, t := range txs {
		out = append(out, fromTransaction(t))
	}
	return out
}

func fromChainEntries(entries []services.ChainEntry) []api.ChainTransaction {
	out := make([]api.ChainTransaction, 0, len(entries))
	for _, e := range entries {
		out = append(out, api.ChainTransaction{
			Hash:      e.Hash,
			From:      e.From,
			To:        e.To,
			Amount:    e.Amount,
			Delta:     e.Delta,
			Memo:      e.Memo,
			Reference: e.Reference,
			Block:     e.Block,
			State:     string(e.State),
			Timestamp: e.Timestamp,
		})
	}
	return out
}

func fromBalance(b *services.Balance) api.BalanceResponse {
	return api.BalanceResponse{
		UserID:       b.UserID,
		Balance:      b.Balance,
		Owed:         b.Owed,
		ChainAddress: b.ChainAddress,
		LastSyncedAt: b.LastSyncedAt,
		UpdatedAt:    b.UpdatedAt,
		Cached:       b.Cached,
	}
}

func fromReport(r *services.SyncReport) api.SyncReport {
	out := api.SyncReport{
		UserID:       r.UserID,
		PriorBalance: r.PriorBalance,
		NewBalance:   r.NewBalance,
		ChainBalance: r.ChainBalance,
		Imported:     r.Imported,
		Confirmed:    r.Confirmed,
		LastBlock:    r.LastBlock,
	}
	if r.Adjustment != nil {
		out.AdjustmentID = r.Adjustment.ID
		out.Adjustment = r.Adjustment.Amount
	}
	return out
}

func fromSummary(s *services.Summary) *api.SummaryResponse {
	out := &api.SummaryResponse{
		Balance:  fromBalance(s.Balance),
		Since:    s.Since,
		Spent:    s.Spent,
		Spending: make([]api.CategorySpending, 0, len(s.Spending)),
		Recent:   fromTransactions(s.Recent),
	}
	for _, c := range s.Spending {
		out.Spending = append(out.Spending, api.CategorySpending{Category: c.Category, Total: c.Total})
	}
	return out
}
