package api

import (
	"time"

	"github.com/dmitrijs2005/happypaisa/internal/money"
	"github.com/shopspring/decimal"
)

// Conversion directions.
const (
	INRToHP = "inr_to_hp"
	HPToINR = "hp_to_inr"
)

type Transaction struct {
	ID            string           `json:"id"`
	UserID        string           `json:"user_id"`
	Kind          string           `json:"kind"`
	Amount        money.HP         `json:"amount"`
	AmountINR     *decimal.Decimal `json:"amount_inr,omitempty"`
	Counterparty  string           `json:"counterparty,omitempty"`
	CorrelationID string           `json:"correlation_id,omitempty"`
	Status        string           `json:"status"`
	ChainHash     string           `json:"chain_hash,omitempty"`
	Category      string           `json:"category,omitempty"`
	Description   string           `json:"description,omitempty"`
	Attempt       int              `json:"attempt"`
	CreatedAt     time.Time        `json:"created_at"`
	UpdatedAt     time.Time        `json:"updated_at"`
}

type GetBalanceRequest struct {
	UserID string `json:"user_id"`
}

type BalanceResponse struct {
	UserID       string     `json:"user_id"`
	Balance      money.HP   `json:"balance"`
	Owed         money.HP   `json:"owed"`
	ChainAddress string     `json:"chain_address,omitempty"`
	LastSyncedAt *time.Time `json:"last_synced_at,omitempty"`
	UpdatedAt    time.Time  `json:"updated_at"`
	// Cached is set when the figure came from the balance cache and may lag
	// the store slightly.
	Cached bool `json:"cached"`
}

// CreateTransactionRequest records a credit or debit, or a transfer_out to
// Counterparty. With Wait the call returns once the chain has settled the
// entry or the deadline passes.
type CreateTransactionRequest struct {
	ID           string   `json:"id,omitempty"`
	UserID       string   `json:"user_id"`
	Kind         string   `json:"kind"`
	Amount       money.HP `json:"amount"`
	Category     string   `json:"category,omitempty"`
	Description  string   `json:"description,omitempty"`
	Counterparty string   `json:"counterparty,omitempty"`
	Wait         bool     `json:"wait,omitempty"`
}

type TransactionResponse struct {
	Transaction Transaction `json:"transaction"`
	Replayed    bool        `json:"replayed,omitempty"`
	// Failure explains why the chain refused a waited-for entry.
	Failure string `json:"failure,omitempty"`
}

type GetTransactionRequest struct {
	ID string `json:"id"`
}

type ListTransactionsRequest struct {
	UserID string `json:"user_id"`
	Limit  int    `json:"limit,omitempty"`
	Offset int    `json:"offset,omitempty"`
}

type ListTransactionsResponse struct {
	Transactions []Transaction `json:"transactions"`
}

type ListChainTransactionsRequest struct {
	UserID string `json:"user_id"`
	Limit  int    `json:"limit,omitempty"`
}

// ChainTransaction is a transfer as the chain reports it. Delta is its
// signed effect on the requesting wallet.
type ChainTransaction struct {
	Hash      string    `json:"hash"`
	From      string    `json:"from"`
	To        string    `json:"to"`
	Amount    money.HP  `json:"amount"`
	Delta     money.HP  `json:"delta"`
	Memo      string    `json:"memo,omitempty"`
	Reference string    `json:"reference,omitempty"`
	Block     int64     `json:"block"`
	State     string    `json:"state"`
	Timestamp time.Time `json:"timestamp"`
}

type ListChainTransactionsResponse struct {
	Address      string             `json:"address"`
	Transactions []ChainTransaction `json:"transactions"`
}

type TransferRequest struct {
	CorrelationID string   `json:"correlation_id,omitempty"`
	From          string   `json:"from"`
	To            string   `json:"to"`
	Amount        money.HP `json:"amount"`
	Description   string   `json:"description,omitempty"`
	Wait          bool     `json:"wait,omitempty"`
}

type TransferResponse struct {
	Out      Transaction `json:"out"`
	In       Transaction `json:"in"`
	Replayed bool        `json:"replayed,omitempty"`
	Failure  string      `json:"failure,omitempty"`
}

// ConvertRequest exchanges Amount in the currency Direction starts from.
type ConvertRequest struct {
	ID        string          `json:"id,omitempty"`
	UserID    string          `json:"user_id"`
	Direction string          `json:"direction"`
	Amount    decimal.Decimal `json:"amount"`
	Wait      bool            `json:"wait,omitempty"`
}

type ConvertResponse struct {
	Transaction Transaction     `json:"transaction"`
	HP          money.HP        `json:"hp"`
	INR         decimal.Decimal `json:"inr"`
	Replayed    bool            `json:"replayed,omitempty"`
	Failure     string          `json:"failure,omitempty"`
}

type GetChainAddressRequest struct {
	UserID string `json:"user_id"`
}

type ChainAddressResponse struct {
	UserID  string `json:"user_id"`
	Address string `json:"address"`
}

// SyncRequest reconciles one user, or every active wallet when UserID is
// empty.
type SyncRequest struct {
	UserID string `json:"user_id,omitempty"`
}

type SyncReport struct {
	UserID       string   `json:"user_id"`
	PriorBalance money.HP `json:"prior_balance"`
	NewBalance   money.HP `json:"new_balance"`
	ChainBalance money.HP `json:"chain_balance"`
	Imported     int      `json:"imported"`
	Confirmed    int      `json:"confirmed"`
	LastBlock    int64    `json:"last_block"`
	AdjustmentID string   `json:"adjustment_id,omitempty"`
	Adjustment   money.HP `json:"adjustment"`
}

type SyncResponse struct {
	Reports []SyncReport `json:"reports"`
	// Errors lists users that could not be reconciled in a full pass.
	Errors []string `json:"errors,omitempty"`
}

type HealthRequest struct{}

type HealthResponse struct {
	Network      string    `json:"network,omitempty"`
	CurrentBlock int64     `json:"current_block"`
	ChainOK      bool      `json:"chain_ok"`
	ChainError   string    `json:"chain_error,omitempty"`
	Queued       int       `json:"queued"`
	CheckedAt    time.Time `json:"checked_at"`
}

type GetSummaryRequest struct {
	UserID string `json:"user_id"`
}

type CategorySpending struct {
	Category string   `json:"category"`
	Total    money.HP `json:"total"`
}

type SummaryResponse struct {
	Balance  BalanceResponse    `json:"balance"`
	Since    time.Time          `json:"since"`
	Spent    money.HP           `json:"spent"`
	Spending []CategorySpending `json:"spending"`
	Recent   []Transaction      `json:"recent"`
}
