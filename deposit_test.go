package msafe

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/fox-one/mixin-sdk-go"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testAsset = "31d2ea9c-95eb-3355-b65b-ba096853bc18"

type fakeSnapshots struct {
	snapshots []*mixin.Snapshot
	offsets   []time.Time
}

func (f *fakeSnapshots) ReadSnapshots(_ context.Context, assetID string, offset time.Time, _ string, limit int) ([]*mixin.Snapshot, error) {
	f.offsets = append(f.offsets, offset)

	var out []*mixin.Snapshot
	for _, s := range f.snapshots {
		if s.AssetID == assetID && !s.CreatedAt.Before(offset) && len(out) < limit {
			out = append(out, s)
		}
	}

	return out, nil
}

func TestLoopDeposits(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)
	registry := NewRegistry(WithStore(store))

	w, err := registry.CreateWallet(ctx, alice, []string{alice, bob}, 2)
	require.NoError(t, err)

	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	source := &fakeSnapshots{
		snapshots: []*mixin.Snapshot{
			{
				SnapshotID: uuid.NewString(),
				CreatedAt:  base,
				AssetID:    testAsset,
				OpponentID: paul,
				Amount:     decimal.NewFromInt(2),
				Memo:       w.ID().String(),
			},
			{
				// outgoing transfer
				SnapshotID: uuid.NewString(),
				CreatedAt:  base.Add(time.Second),
				AssetID:    testAsset,
				OpponentID: paul,
				Amount:     decimal.NewFromInt(-1),
				Memo:       w.ID().String(),
			},
			{
				SnapshotID: uuid.NewString(),
				CreatedAt:  base.Add(2 * time.Second),
				AssetID:    testAsset,
				OpponentID: paul,
				Amount:     decimal.NewFromInt(5),
				Memo:       "not a wallet",
			},
			{
				SnapshotID: uuid.NewString(),
				CreatedAt:  base.Add(3 * time.Second),
				AssetID:    testAsset,
				Amount:     decimal.NewFromFloat(0.5),
				Memo:       w.ID().String(),
			},
		},
	}

	s := NewServer(store, registry, &Recorder{}, nil, source, Config{AssetID: testAsset})

	require.NoError(t, s.loopDeposits(ctx))
	assert.True(t, w.Balance().Equal(decimal.NewFromFloat(2.5)))

	// the last snapshot is read again from the saved offset but credited once
	require.NoError(t, s.loopDeposits(ctx))
	assert.True(t, w.Balance().Equal(decimal.NewFromFloat(2.5)))

	require.Len(t, source.offsets, 2)
	assert.True(t, source.offsets[0].IsZero())
	assert.True(t, source.offsets[1].Equal(base.Add(3*time.Second)))
}

// failingStore drops every batch that writes a property while fail is set.
type failingStore struct {
	*BadgerStore
	fail bool
}

func (s *failingStore) Update(fn func(b Batch) error) error {
	return s.BadgerStore.Update(func(b Batch) error {
		return fn(failingBatch{Batch: b, fail: s.fail})
	})
}

type failingBatch struct {
	Batch
	fail bool
}

func (b failingBatch) SaveProperty(key string, v any) error {
	if b.fail {
		return errors.New("disk full")
	}

	return b.Batch.SaveProperty(key, v)
}

func TestDepositCreditedOnce(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)
	flaky := &failingStore{BadgerStore: store, fail: true}

	registry := NewRegistry(WithStore(flaky))
	w, err := registry.CreateWallet(ctx, alice, []string{alice, bob}, 2)
	require.NoError(t, err)

	created := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	source := &fakeSnapshots{
		snapshots: []*mixin.Snapshot{
			{
				SnapshotID: uuid.NewString(),
				CreatedAt:  created,
				AssetID:    testAsset,
				OpponentID: paul,
				Amount:     decimal.NewFromInt(1),
				Memo:       w.ID().String(),
			},
		},
	}

	restart := func(t *testing.T) *Wallet {
		t.Helper()

		restored, err := Restore(store)
		require.NoError(t, err)
		rw, err := restored.Wallet(w.ID())
		require.NoError(t, err)

		s := NewServer(store, restored, &Recorder{}, nil, source, Config{AssetID: testAsset})
		require.NoError(t, s.loopDeposits(ctx))
		return rw
	}

	s := NewServer(store, registry, &Recorder{}, nil, source, Config{AssetID: testAsset})

	t.Run("should not credit without the seen marker", func(t *testing.T) {
		assert.Error(t, s.loopDeposits(ctx))
		assert.True(t, w.Balance().IsZero())

		var offset time.Time
		require.NoError(t, store.ReadProperty(depositOffsetProperty, &offset))
		assert.True(t, offset.IsZero())
	})

	t.Run("should credit once across restarts", func(t *testing.T) {
		rw := restart(t)
		assert.True(t, rw.Balance().Equal(decimal.NewFromInt(1)))

		rw = restart(t)
		assert.True(t, rw.Balance().Equal(decimal.NewFromInt(1)))

		var offset time.Time
		require.NoError(t, store.ReadProperty(depositOffsetProperty, &offset))
		assert.True(t, offset.Equal(created))
	})
}
