package msafe

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Registry creates wallets on behalf of callers and remembers who created
// which. It takes no part in wallet operations after creation.
type Registry struct {
	opts     []Option
	store    Store
	notifier Notifier

	mu      sync.RWMutex
	entries []*Entry
	wallets map[uuid.UUID]*Wallet
}

// NewRegistry returns an empty registry. opts are applied to every wallet it
// creates; the registry itself uses the store and notifier among them.
func NewRegistry(opts ...Option) *Registry {
	base := Wallet{
		store:    memoryStore{},
		notifier: NotifierFunc(func(context.Context, *Event) {}),
	}

	for _, opt := range opts {
		opt(&base)
	}

	return &Registry{
		opts:     opts,
		store:    base.store,
		notifier: base.notifier,
		wallets:  map[uuid.UUID]*Wallet{},
	}
}

// CreateWallet creates a new wallet and records caller as its creator.
func (r *Registry) CreateWallet(ctx context.Context, caller string, owners []string, threshold int) (*Wallet, error) {
	if caller == "" {
		return nil, fmt.Errorf("%w: empty caller", ErrInvalidArgument)
	}

	w, err := NewWallet(owners, threshold, r.opts...)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	e := &Entry{
		Index:     uint64(len(r.entries)),
		Creator:   caller,
		Wallet:    w.ID(),
		CreatedAt: time.Now(),
	}

	if err := r.store.Update(func(b Batch) error {
		if err := b.SaveWallet(w.Info()); err != nil {
			return err
		}

		return b.SaveEntry(e)
	}); err != nil {
		return nil, fmt.Errorf("save wallet failed: %w", err)
	}

	r.entries = append(r.entries, e)
	r.wallets[w.ID()] = w

	r.notifier.Notify(ctx, &Event{
		Kind:      EventWalletCreated,
		Wallet:    w.ID(),
		Index:     e.Index,
		Actor:     caller,
		CreatedAt: e.CreatedAt,
	})

	return w, nil
}

func (r *Registry) DeployedCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.entries)
}

func (r *Registry) entry(index uint64) (*Entry, error) {
	if index >= uint64(len(r.entries)) {
		return nil, fmt.Errorf("registry entry %d: %w", index, ErrNotFound)
	}

	return r.entries[index], nil
}

// Entry returns a copy of the entry at index.
func (r *Registry) Entry(index uint64) (*Entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, err := r.entry(index)
	if err != nil {
		return nil, err
	}

	c := *e
	return &c, nil
}

func (r *Registry) CreatorOf(index uint64) (string, error) {
	e, err := r.Entry(index)
	if err != nil {
		return "", err
	}

	return e.Creator, nil
}

func (r *Registry) WalletAt(index uint64) (uuid.UUID, error) {
	e, err := r.Entry(index)
	if err != nil {
		return uuid.Nil, err
	}

	return e.Wallet, nil
}

// Entries returns copies of all entries in creation order.
func (r *Registry) Entries() []*Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entries := make([]*Entry, 0, len(r.entries))
	for _, e := range r.entries {
		c := *e
		entries = append(entries, &c)
	}

	return entries
}

// Wallet looks up a wallet created by this registry by its handle.
func (r *Registry) Wallet(handle uuid.UUID) (*Wallet, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	w, ok := r.wallets[handle]
	if !ok {
		return nil, fmt.Errorf("wallet %s: %w", handle, ErrNotFound)
	}

	return w, nil
}

// WalletsOf lists the handles of the wallets owner belongs to.
func (r *Registry) WalletsOf(owner string) []uuid.UUID {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var handles []uuid.UUID
	for _, e := range r.entries {
		if slices.Contains(r.wallets[e.Wallet].owners, owner) {
			handles = append(handles, e.Wallet)
		}
	}

	return handles
}
