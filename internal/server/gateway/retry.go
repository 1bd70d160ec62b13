package gateway

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/dmitrijs2005/happypaisa/internal/common"
	"github.com/dmitrijs2005/happypaisa/internal/logging"
	"github.com/sethvargo/go-retry"
)

// RetryPolicy bounds how gateway calls are retried.
type RetryPolicy struct {
	// MaxAttempts counts the first call; 1 disables retries.
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	// AttemptTimeout bounds a single call; zero leaves it to the caller's ctx.
	AttemptTimeout time.Duration
	// Retryable classifies failures; nil means IsTransient.
	Retryable func(error) bool
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:    5,
		BaseDelay:      100 * time.Millisecond,
		MaxDelay:       2 * time.Second,
		AttemptTimeout: 5 * time.Second,
	}
}

// IsTransient reports whether err is worth another attempt. Rejections,
// missing records and bad addresses are final.
func IsTransient(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, common.ErrSubmissionRejected),
		errors.Is(err, common.ErrorNotFound),
		errors.Is(err, ErrInvalidAddress),
		errors.Is(err, context.Canceled):
		return false
	case errors.Is(err, ErrTransient),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, io.ErrUnexpectedEOF),
		errors.Is(err, io.EOF):
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

func (p RetryPolicy) backoff() retry.Backoff {
	base := p.BaseDelay
	if base <= 0 {
		base = time.Millisecond
	}
	b := retry.NewExponential(base)
	if p.MaxDelay > 0 {
		b = retry.WithCappedDuration(p.MaxDelay, b)
	}
	b = retry.WithJitterPercent(10, b)
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	return retry.WithMaxRetries(uint64(attempts-1), b)
}

// Do runs fn under the policy. A transient failure that survives every
// attempt surfaces as common.ErrGatewayUnavailable; anything final is
// returned as is. If ctx ends first its error is returned, wrapped.
func (p RetryPolicy) Do(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	classify := p.Retryable
	if classify == nil {
		classify = IsTransient
	}

	attempts := 0
	var lastErr error
	err := retry.Do(ctx, p.backoff(), func(ctx context.Context) error {
		attempts++
		callCtx := ctx
		if p.AttemptTimeout > 0 {
			var cancel context.CancelFunc
			callCtx, cancel = context.WithTimeout(ctx, p.AttemptTimeout)
			defer cancel()
		}

		err := fn(callCtx)
		if err == nil {
			return nil
		}
		lastErr = err
		if ctx.Err() == nil && classify(err) {
			return retry.RetryableError(err)
		}
		return err
	})
	if err == nil {
		return nil
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("%s: %w (last error: %v)", op, ctxErr, lastErr)
	}
	if classify(err) {
		return fmt.Errorf("%w: %s failed after %d attempts: %v", common.ErrGatewayUnavailable, op, attempts, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

type retrying struct {
	next   Gateway
	policy RetryPolicy
	logger logging.Logger
}

// WithRetry decorates g so every call runs under p. Submissions are safe to
// repeat because the chain deduplicates them by Reference.
func WithRetry(g Gateway, p RetryPolicy, l logging.Logger) Gateway {
	return &retrying{next: g, policy: p, logger: l.With("module", "gateway_retry")}
}

func (r *retrying) do(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	err := r.policy.Do(ctx, op, fn)
	if err != nil && errors.Is(err, common.ErrGatewayUnavailable) {
		r.logger.Warn(ctx, "gateway retries exhausted", "op", op, "error", err)
	}
	return err
}

func (r *retrying) SubmitTransfer(ctx context.Context, t Transfer) (Submission, error) {
	var s Submission
	err := r.do(ctx, "submit_transfer", func(ctx context.Context) error {
		var err error
		s, err = r.next.SubmitTransfer(ctx, t)
		return err
	})
	return s, err
}

func (r *retrying) ChainStatus(ctx context.Context) (Status, error) {
	var s Status
	err := r.do(ctx, "chain_status", func(ctx context.Context) error {
		var err error
		s, err = r.next.ChainStatus(ctx)
		return err
	})
	return s, err
}

func (r *retrying) GetOrCreateAddress(ctx context.Context, userID string) (string, error) {
	var a string
	err := r.do(ctx, "get_or_create_address", func(ctx context.Context) error {
		var err error
		a, err = r.next.GetOrCreateAddress(ctx, userID)
		return err
	})
	return a, err
}

func (r *retrying) Transactions(ctx context.Context, userID string, limit int) ([]ChainTx, error) {
	var txs []ChainTx
	err := r.do(ctx, "get_transactions", func(ctx context.Context) error {
		var err error
		txs, err = r.next.Transactions(ctx, userID, limit)
		return err
	})
	return txs, err
}

func (r *retrying) Transaction(ctx context.Context, hash string) (ChainTx, error) {
	var tx ChainTx
	err := r.do(ctx, "get_transaction", func(ctx context.Context) error {
		var err error
		tx, err = r.next.Transaction(ctx, hash)
		return err
	})
	return tx, err
}

func (r *retrying) TreasuryAddress(ctx context.Context) (string, error) {
	var a string
	err := r.do(ctx, "treasury_address", func(ctx context.Context) error {
		var err error
		a, err = r.next.TreasuryAddress(ctx)
		return err
	})
	return a, err
}
