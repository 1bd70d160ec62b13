// Package client talks to the wallet server over gRPC and maps its status
// errors back onto the domain sentinels in internal/common.
package client

import (
	"context"
	"errors"

	"github.com/dmitrijs2005/happypaisa/internal/api"
)

var ErrUnavailable = errors.New("server unavailable")

type Client interface {
	Close() error
	Ping(ctx context.Context) error
	Balance(ctx context.Context, userID string) (*api.BalanceResponse, error)
	CreateTransaction(ctx context.Context, req *api.CreateTransactionRequest) (*api.TransactionResponse, error)
	Transaction(ctx context.Context, id string) (*api.TransactionResponse, error)
	History(ctx context.Context, userID string, limit, offset int) ([]api.Transaction, error)
	ChainHistory(ctx context.Context, userID string, limit int) (*api.ListChainTransactionsResponse, error)
	Transfer(ctx context.Context, req *api.TransferRequest) (*api.TransferResponse, error)
	Convert(ctx context.Context, req *api.ConvertRequest) (*api.ConvertResponse, error)
	ChainAddress(ctx context.Context, userID string) (string, error)
	Sync(ctx context.Context, userID string) (*api.SyncResponse, error)
	Health(ctx context.Context) (*api.HealthResponse, error)
	Summary(ctx context.Context, userID string) (*api.SummaryResponse, error)
}
