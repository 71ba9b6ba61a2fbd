package msafe

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type EventKind string

const (
	EventDeposit       EventKind = "deposit"
	EventSubmit        EventKind = "submit"
	EventConfirm       EventKind = "confirm"
	EventRevoke        EventKind = "revoke"
	EventExecute       EventKind = "execute"
	EventWalletCreated EventKind = "wallet_created"
)

// Event is emitted once per successful state transition.
type Event struct {
	Kind      EventKind       `json:"kind"`
	Wallet    uuid.UUID       `json:"wallet"`
	Index     uint64          `json:"index"`
	Actor     string          `json:"actor"`
	Recipient string          `json:"recipient,omitempty"`
	Amount    decimal.Decimal `json:"amount"`
	Payload   Payload         `json:"payload,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

type Notifier interface {
	Notify(ctx context.Context, e *Event)
}

type NotifierFunc func(ctx context.Context, e *Event)

func (f NotifierFunc) Notify(ctx context.Context, e *Event) {
	f(ctx, e)
}

// LogNotifier writes every event to the default slog logger.
type LogNotifier struct{}

func (LogNotifier) Notify(ctx context.Context, e *Event) {
	slog.InfoContext(
		ctx,
		"event",
		"kind", e.Kind,
		"wallet", e.Wallet,
		"index", e.Index,
		"actor", e.Actor,
		"amount", e.Amount,
	)
}

// Recorder keeps every event it receives in order.
type Recorder struct {
	mu     sync.RWMutex
	events []*Event
}

func (r *Recorder) Notify(_ context.Context, e *Event) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
}

// Events returns the recorded events, optionally filtered by wallet.
func (r *Recorder) Events(wallet uuid.UUID) []*Event {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var events []*Event
	for _, e := range r.events {
		if wallet == uuid.Nil || e.Wallet == wallet {
			events = append(events, e)
		}
	}

	return events
}

func (r *Recorder) ListEvents(_ context.Context, wallet uuid.UUID) ([]*Event, error) {
	return r.Events(wallet), nil
}

// Kinds lists the kinds of the events recorded for wallet.
func (r *Recorder) Kinds(wallet uuid.UUID) []EventKind {
	var kinds []EventKind
	for _, e := range r.Events(wallet) {
		kinds = append(kinds, e.Kind)
	}

	return kinds
}

type multiNotifier []Notifier

func (m multiNotifier) Notify(ctx context.Context, e *Event) {
	for _, n := range m {
		n.Notify(ctx, e)
	}
}

// MultiNotifier fans every event out to all notifiers in order.
func MultiNotifier(notifiers ...Notifier) Notifier {
	return multiNotifier(notifiers)
}
