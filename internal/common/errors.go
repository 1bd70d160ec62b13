// Package common defines shared constants and sentinel errors used across
// the wallet server, its storage layer and the hpctl client. Callers should
// use errors.Is to match these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound = errors.New("not found")

	// Service-level errors (generic/internal flow control).
	ErrorInternal = errors.New("internal error")

	// Validation errors.
	ErrInvalidAmount  = errors.New("invalid amount")
	ErrInvalidRequest = errors.New("invalid request")
	ErrWalletArchived = errors.New("wallet archived")

	// Balance and ledger errors.
	ErrInsufficientBalance  = errors.New("insufficient balance")
	ErrDuplicateTransaction = errors.New("duplicate transaction")
	ErrInvalidTransition    = errors.New("invalid status transition")

	// Chain errors.
	ErrGatewayUnavailable = errors.New("gateway unavailable")
	ErrSubmissionRejected = errors.New("submission rejected")

	// Reconciliation errors.
	ErrSyncConflict = errors.New("sync conflict")
)
