package msafe

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Ledger is an in-process settlement primitive that credits recipients in
// memory. It remembers settled trace ids and refuses to pay one twice.
type Ledger struct {
	mu       sync.Mutex
	balances map[string]decimal.Decimal
	settled  map[uuid.UUID]bool
}

func NewLedger() *Ledger {
	return &Ledger{
		balances: map[string]decimal.Decimal{},
		settled:  map[uuid.UUID]bool{},
	}
}

func (l *Ledger) Transfer(_ context.Context, t *Transfer) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.settled[t.TraceID] {
		return nil
	}

	l.balances[t.Recipient] = l.balances[t.Recipient].Add(t.Amount)
	l.settled[t.TraceID] = true
	return nil
}

// BalanceOf returns the value credited to id so far.
func (l *Ledger) BalanceOf(id string) decimal.Decimal {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.balances[id]
}
