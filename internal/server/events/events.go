// Package events carries wallet domain events from the services to
// whoever listens: the notifier, metrics, tests.
package events

import (
	"time"

	evbus "github.com/asaskevich/EventBus"
	"github.com/dmitrijs2005/happypaisa/internal/money"
	"github.com/dmitrijs2005/happypaisa/internal/server/models"
)

const (
	TopicCommitted   = "wallet.tx.committed"
	TopicSettled     = "wallet.tx.settled"
	TopicCompensated = "wallet.tx.compensated"
	TopicLowBalance  = "wallet.balance.low"
	TopicReconciled  = "wallet.sync.reconciled"
)

// Committed is published once per locally committed entry.
type Committed struct {
	Transaction models.Transaction
}

// Settled is published when a chain-backed entry reaches a terminal status.
type Settled struct {
	TransactionID string
	Status        models.TxStatus
	ChainHash     string
}

// Compensated is published after a failed submission was reversed locally.
type Compensated struct {
	Reference string
	Entries   []string
	Reason    string
	// Owed is what the reversal could not take back, per user.
	Owed map[string]money.HP
}

type LowBalance struct {
	UserID    string
	Balance   money.HP
	Threshold money.HP
	At        time.Time
}

type Reconciled struct {
	UserID       string
	PriorBalance money.HP
	NewBalance   money.HP
	Imported     int
	Confirmed    int
	Adjusted     bool
}

// Bus wraps an EventBus. Handlers are plain funcs taking the event struct of
// their topic.
type Bus struct {
	bus evbus.Bus
}

func NewBus() *Bus {
	return &Bus{bus: evbus.New()}
}

func (b *Bus) Publish(topic string, event any) {
	if b == nil {
		return
	}
	b.bus.Publish(topic, event)
}

// Subscribe runs fn on the publisher's goroutine.
func (b *Bus) Subscribe(topic string, fn any) error {
	return b.bus.Subscribe(topic, fn)
}

// SubscribeAsync runs fn on its own goroutine, one event at a time.
func (b *Bus) SubscribeAsync(topic string, fn any) error {
	return b.bus.SubscribeAsync(topic, fn, true)
}

// Wait blocks until every async handler has finished.
func (b *Bus) Wait() {
	b.bus.WaitAsync()
}
