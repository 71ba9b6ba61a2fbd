package msafe

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry(t *testing.T) {
	ctx := context.Background()

	t.Run("should start empty", func(t *testing.T) {
		r := NewRegistry()

		assert.Equal(t, 0, r.DeployedCount())
		_, err := r.CreatorOf(0)
		assert.ErrorIs(t, err, ErrNotFound)
		_, err = r.WalletAt(0)
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("should track created wallets", func(t *testing.T) {
		events := &Recorder{}
		r := NewRegistry(WithNotifier(events))

		w0, err := r.CreateWallet(ctx, alice, []string{alice, bob}, 2)
		require.NoError(t, err)
		w1, err := r.CreateWallet(ctx, alice, []string{alice, bob}, 2)
		require.NoError(t, err)

		assert.Equal(t, 2, r.DeployedCount())

		for i := uint64(0); i < 2; i++ {
			creator, err := r.CreatorOf(i)
			require.NoError(t, err)
			assert.Equal(t, alice, creator)
		}

		h0, err := r.WalletAt(0)
		require.NoError(t, err)
		h1, err := r.WalletAt(1)
		require.NoError(t, err)

		assert.NotEqual(t, uuid.Nil, h0)
		assert.NotEqual(t, uuid.Nil, h1)
		assert.NotEqual(t, h0, h1)
		assert.Equal(t, w0.ID(), h0)
		assert.Equal(t, w1.ID(), h1)

		_, err = r.CreatorOf(2)
		assert.ErrorIs(t, err, ErrNotFound)

		created := events.Events(uuid.Nil)
		require.Len(t, created, 2)
		assert.Equal(t, EventWalletCreated, created[0].Kind)
		assert.Equal(t, uint64(1), created[1].Index)
		assert.Equal(t, h1, created[1].Wallet)
	})

	t.Run("should propagate invalid configuration", func(t *testing.T) {
		r := NewRegistry()

		_, err := r.CreateWallet(ctx, alice, []string{alice, bob}, 3)
		assert.ErrorIs(t, err, ErrInvalidConfiguration)
		assert.Equal(t, 0, r.DeployedCount())
	})

	t.Run("should keep wallets independent", func(t *testing.T) {
		r := NewRegistry(WithSettler(NewLedger()))

		w0, err := r.CreateWallet(ctx, alice, []string{alice}, 1)
		require.NoError(t, err)
		w1, err := r.CreateWallet(ctx, bob, []string{bob}, 1)
		require.NoError(t, err)

		require.NoError(t, w0.Deposit(ctx, paul, decimal.NewFromInt(1)))
		_, err = w0.Propose(ctx, alice, paul, decimal.NewFromInt(1), nil)
		require.NoError(t, err)

		assert.True(t, w1.Balance().IsZero())
		assert.Equal(t, 0, w1.TransactionCount())

		_, err = w1.Propose(ctx, alice, paul, decimal.NewFromInt(1), nil)
		assert.ErrorIs(t, err, ErrUnauthorized)

		found, err := r.Wallet(w1.ID())
		require.NoError(t, err)
		assert.Same(t, w1, found)

		_, err = r.Wallet(uuid.New())
		assert.ErrorIs(t, err, ErrNotFound)

		assert.Equal(t, []uuid.UUID{w0.ID()}, r.WalletsOf(alice))
		assert.Empty(t, r.WalletsOf(paul))
	})

	t.Run("should assign gap-free indices under concurrency", func(t *testing.T) {
		r := NewRegistry()

		const n = 32
		var wg sync.WaitGroup
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := r.CreateWallet(ctx, paul, []string{alice, bob}, 1)
				assert.NoError(t, err)
			}()
		}
		wg.Wait()

		entries := r.Entries()
		require.Len(t, entries, n)

		seen := map[uuid.UUID]bool{}
		for i, e := range entries {
			assert.Equal(t, uint64(i), e.Index)
			assert.False(t, seen[e.Wallet])
			seen[e.Wallet] = true
		}
	})
}
