package services

import (
	"context"
	"fmt"
	"time"

	"github.com/dmitrijs2005/happypaisa/internal/money"
	"github.com/dmitrijs2005/happypaisa/internal/server/models"
	"github.com/dmitrijs2005/happypaisa/internal/server/repositories/repomanager"
)

const (
	SummaryWindow = 30 * 24 * time.Hour
	SummaryRecent = 10
)

type Summary struct {
	Balance  *Balance
	Since    time.Time
	Spending []models.CategorySpending
	Spent    money.HP
	Recent   []*models.Transaction
}

// SummaryService builds the wallet overview: balance, spending per category
// over the last 30 days and the latest entries.
type SummaryService struct {
	repomanager repomanager.RepositoryManager
	balances    *BalanceService
	ledger      *Ledger
	now         func() time.Time
}

func NewSummaryService(m repomanager.RepositoryManager, balances *BalanceService, ledger *Ledger) *SummaryService {
	return &SummaryService{
		repomanager: m,
		balances:    balances,
		ledger:      ledger,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

func (s *SummaryService) Summary(ctx context.Context, userID string) (*Summary, error) {
	b, err := s.balances.GetBalance(ctx, userID)
	if err != nil {
		return nil, err
	}

	since := s.now().Add(-SummaryWindow)
	spending, err := s.repomanager.Repositories().Transactions.SpendingByCategory(ctx, userID, since)
	if err != nil {
		return nil, fmt.Errorf("error summing spending: %w", err)
	}
	recent, err := s.ledger.List(ctx, userID, SummaryRecent, 0)
	if err != nil {
		return nil, fmt.Errorf("error listing recent entries: %w", err)
	}

	sum := &Summary{Balance: b, Since: since, Spending: spending, Recent: recent}
	for _, c := range spending {
		sum.Spent += c.Total
	}
	return sum, nil
}
