package msafe

import (
	"fmt"

	"github.com/dgraph-io/badger/v4"
)

// Restore rebuilds a registry and every wallet it created from store. Indices,
// confirmations and executed flags come back exactly as they were committed.
func Restore(store *BadgerStore, opts ...Option) (*Registry, error) {
	opts = append([]Option{WithStore(store)}, opts...)
	r := NewRegistry(opts...)

	if err := store.db.View(func(txn *badger.Txn) error {
		entries, err := listEntries(txn)
		if err != nil {
			return err
		}

		for i, e := range entries {
			if e.Index != uint64(i) {
				return fmt.Errorf("registry has a gap at %d", i)
			}

			info, err := findWallet(txn, e.Wallet)
			if err != nil {
				return err
			}

			txs, err := listTransactions(txn, e.Wallet)
			if err != nil {
				return err
			}

			w, err := restoreWallet(info, txs, opts...)
			if err != nil {
				return err
			}

			r.entries = append(r.entries, e)
			r.wallets[w.ID()] = w
		}

		return nil
	}); err != nil {
		return nil, fmt.Errorf("restore registry failed: %w", err)
	}

	return r, nil
}

func restoreWallet(info *WalletInfo, txs []*Transaction, opts ...Option) (*Wallet, error) {
	w, err := NewWallet(info.Owners, info.Threshold, opts...)
	if err != nil {
		return nil, fmt.Errorf("wallet %s: %w", info.ID, err)
	}

	w.id = info.ID
	w.createdAt = info.CreatedAt
	w.balance = info.Balance
	w.txs = txs
	return w, nil
}
