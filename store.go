package msafe

import (
	"github.com/google/uuid"
)

// Batch stages writes that become durable together.
type Batch interface {
	SaveWallet(info *WalletInfo) error
	SaveTransaction(wallet uuid.UUID, tx *Transaction) error
	SaveEntry(e *Entry) error
	SaveProperty(key string, v any) error
}

// Store persists wallet state. Update commits the batch only if fn returns
// nil; otherwise every staged write is dropped.
type Store interface {
	Update(fn func(b Batch) error) error
}

// memoryStore keeps nothing beyond the in-memory wallet state.
type memoryStore struct{}

func (memoryStore) Update(fn func(b Batch) error) error {
	return fn(memoryStore{})
}

func (memoryStore) SaveWallet(*WalletInfo) error { return nil }

func (memoryStore) SaveTransaction(uuid.UUID, *Transaction) error { return nil }

func (memoryStore) SaveEntry(*Entry) error { return nil }

func (memoryStore) SaveProperty(string, any) error { return nil }
