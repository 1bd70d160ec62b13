package events

import (
	"context"

	"github.com/dmitrijs2005/happypaisa/internal/logging"
)

// Notifier turns events into log records. It stands in for user-facing
// notifications such as low-balance alerts.
type Notifier struct {
	logger logging.Logger
}

// NewNotifier subscribes a notifier to b.
func NewNotifier(b *Bus, l logging.Logger) (*Notifier, error) {
	n := &Notifier{logger: l.With("module", "notifier")}

	subs := map[string]any{
		TopicLowBalance:  n.onLowBalance,
		TopicCompensated: n.onCompensated,
		TopicReconciled:  n.onReconciled,
	}
	for topic, fn := range subs {
		if err := b.SubscribeAsync(topic, fn); err != nil {
			return nil, err
		}
	}
	return n, nil
}

func (n *Notifier) onLowBalance(e LowBalance) {
	n.logger.Warn(context.Background(), "low balance",
		"user_id", e.UserID, "balance", e.Balance.String(), "threshold", e.Threshold.String())
}

func (n *Notifier) onCompensated(e Compensated) {
	n.logger.Warn(context.Background(), "submission compensated",
		"reference", e.Reference, "entries", e.Entries, "reason", e.Reason)
	for user, owed := range e.Owed {
		n.logger.Warn(context.Background(), "compensation left a debt",
			"user_id", user, "owed", owed.String())
	}
}

func (n *Notifier) onReconciled(e Reconciled) {
	if !e.Adjusted {
		return
	}
	n.logger.Info(context.Background(), "balance corrected from chain",
		"user_id", e.UserID, "prior", e.PriorBalance.String(), "new", e.NewBalance.String())
}
