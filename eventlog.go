package msafe

import (
	"context"
	"encoding/json"
	"log/slog"
	"sort"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	g "github.com/pandodao/generic"
)

// EventLog keeps the events of every wallet in badger, so the history
// survives restarts.
type EventLog struct {
	db  *badger.DB
	seq *badger.Sequence
}

func NewEventLog(store *BadgerStore) (*EventLog, error) {
	seq, err := store.db.GetSequence(eventSequenceKey, 1000)
	if err != nil {
		return nil, err
	}

	return &EventLog{
		db:  store.db,
		seq: seq,
	}, nil
}

// Close returns the unused part of the sequence lease.
func (l *EventLog) Close() error {
	return l.seq.Release()
}

func (l *EventLog) Notify(ctx context.Context, e *Event) {
	if err := l.save(e); err != nil {
		slog.ErrorContext(
			ctx,
			"save event failed",
			"kind", e.Kind,
			"wallet", e.Wallet,
			slog.Any("err", err),
		)
	}
}

func (l *EventLog) save(e *Event) error {
	seq, err := l.seq.Next()
	if err != nil {
		return err
	}

	pk := buildIndexKey(eventPrefix, e.Wallet, seq)
	return l.db.Update(func(txn *badger.Txn) error {
		return txn.Set(pk, g.Must(json.Marshal(e)))
	})
}

func (l *EventLog) ListEvents(_ context.Context, wallet uuid.UUID) ([]*Event, error) {
	prefix := buildIndexKey(eventPrefix, wallet)

	type record struct {
		seq   uint64
		event *Event
	}

	var records []record
	if err := l.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()

			var (
				id  uuid.UUID
				seq uint64
			)
			if err := decodeIndexKey(item.Key(), eventPrefix, &id, &seq); err != nil {
				return err
			}

			var e Event
			if err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &e)
			}); err != nil {
				return err
			}

			records = append(records, record{seq: seq, event: &e})
		}

		return nil
	}); err != nil {
		return nil, err
	}

	sort.Slice(records, func(i, j int) bool {
		return records[i].seq < records[j].seq
	})

	events := make([]*Event, len(records))
	for i, r := range records {
		events[i] = r.event
	}

	return events, nil
}
