package common

import (
	"errors"
	"fmt"
)

// BalanceError decorates a sentinel with the balance that was authoritative
// when the operation was rejected. Balance is expressed in milli-HP.
type BalanceError struct {
	Kind    error
	UserID  string
	Balance int64
}

func (e *BalanceError) Error() string {
	return fmt.Sprintf("%v (user %s, balance %d)", e.Kind, e.UserID, e.Balance)
}

func (e *BalanceError) Unwrap() error {
	return e.Kind
}

// NewBalanceError wraps kind with the current balance of userID.
func NewBalanceError(kind error, userID string, balance int64) error {
	return &BalanceError{Kind: kind, UserID: userID, Balance: balance}
}

// BalanceOf extracts the balance carried by err, if any.
func BalanceOf(err error) (int64, bool) {
	var be *BalanceError
	if errors.As(err, &be) {
		return be.Balance, true
	}
	return 0, false
}
