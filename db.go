package msafe

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	g "github.com/pandodao/generic"
)

// BadgerStore persists wallets, transaction logs and registry entries in badger.
//
// Layout:
//
//	w:{wallet}          wallet header
//	t:{wallet}{index}   transaction record
//	r:{index}           registry entry
//	p:{name}            service property (deposit offset, seen snapshots)
//	e:{wallet}{seq}     event, see EventLog
type BadgerStore struct {
	db *badger.DB
}

func NewBadgerStore(db *badger.DB) *BadgerStore {
	return &BadgerStore{db: db}
}

func (s *BadgerStore) Update(fn func(b Batch) error) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return fn(badgerBatch{txn: txn})
	})
}

type badgerBatch struct {
	txn *badger.Txn
}

func (b badgerBatch) SaveWallet(info *WalletInfo) error {
	return saveWallet(b.txn, info)
}

func (b badgerBatch) SaveTransaction(wallet uuid.UUID, tx *Transaction) error {
	return saveTransaction(b.txn, wallet, tx)
}

func (b badgerBatch) SaveEntry(e *Entry) error {
	return saveEntry(b.txn, e)
}

func (b badgerBatch) SaveProperty(key string, v any) error {
	return saveProperty(b.txn, key, v)
}

func saveWallet(txn *badger.Txn, info *WalletInfo) error {
	pk := buildIndexKey(walletPrefix, info.ID)
	return txn.Set(pk, g.Must(json.Marshal(info)))
}

func findWallet(txn *badger.Txn, id uuid.UUID) (*WalletInfo, error) {
	item, err := txn.Get(buildIndexKey(walletPrefix, id))
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, fmt.Errorf("wallet %s: %w", id, ErrNotFound)
		}

		return nil, err
	}

	var info WalletInfo
	if err := item.Value(func(val []byte) error {
		return json.Unmarshal(val, &info)
	}); err != nil {
		return nil, err
	}

	return &info, nil
}

func saveTransaction(txn *badger.Txn, wallet uuid.UUID, tx *Transaction) error {
	pk := buildIndexKey(transactionPrefix, wallet, int64(tx.Index))
	return txn.Set(pk, g.Must(json.Marshal(tx)))
}

func listTransactions(txn *badger.Txn, wallet uuid.UUID) ([]*Transaction, error) {
	prefix := buildIndexKey(transactionPrefix, wallet)

	it := txn.NewIterator(badger.DefaultIteratorOptions)
	defer it.Close()

	var txs []*Transaction
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		var tx Transaction
		if err := it.Item().Value(func(val []byte) error {
			return json.Unmarshal(val, &tx)
		}); err != nil {
			return nil, err
		}

		txs = append(txs, &tx)
	}

	sort.Slice(txs, func(i, j int) bool {
		return txs[i].Index < txs[j].Index
	})

	for i, tx := range txs {
		if tx.Index != uint64(i) {
			return nil, fmt.Errorf("wallet %s: transaction log has a gap at %d", wallet, i)
		}
	}

	return txs, nil
}

func saveEntry(txn *badger.Txn, e *Entry) error {
	pk := buildIndexKey(entryPrefix, int64(e.Index))
	return txn.Set(pk, g.Must(json.Marshal(e)))
}

func listEntries(txn *badger.Txn) ([]*Entry, error) {
	it := txn.NewIterator(badger.DefaultIteratorOptions)
	defer it.Close()

	var entries []*Entry
	for it.Seek(entryPrefix); it.ValidForPrefix(entryPrefix); it.Next() {
		item := it.Item()

		var index int64
		if err := decodeIndexKey(item.Key(), entryPrefix, &index); err != nil {
			return nil, err
		}

		var e Entry
		if err := item.Value(func(val []byte) error {
			return json.Unmarshal(val, &e)
		}); err != nil {
			return nil, err
		}

		if e.Index != uint64(index) {
			return nil, fmt.Errorf("registry entry %d stored under key %d", e.Index, index)
		}

		entries = append(entries, &e)
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Index < entries[j].Index
	})

	return entries, nil
}

func saveProperty(txn *badger.Txn, key string, v any) error {
	pk := append(append([]byte{}, propertyPrefix...), key...)
	return txn.Set(pk, g.Must(json.Marshal(v)))
}

// readProperty leaves v untouched when the property was never saved.
func readProperty(txn *badger.Txn, key string, v any) error {
	pk := append(append([]byte{}, propertyPrefix...), key...)
	item, err := txn.Get(pk)
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}

		return err
	}

	return item.Value(func(val []byte) error {
		return json.Unmarshal(val, v)
	})
}

func (s *BadgerStore) ReadProperty(key string, v any) error {
	return s.db.View(func(txn *badger.Txn) error {
		return readProperty(txn, key, v)
	})
}

func (s *BadgerStore) SaveProperty(key string, v any) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return saveProperty(txn, key, v)
	})
}
