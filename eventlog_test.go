package msafe

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventLog(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	eventLog, err := NewEventLog(store)
	require.NoError(t, err)

	r := NewRegistry(WithStore(store), WithSettler(NewLedger()), WithNotifier(eventLog))
	w0, err := r.CreateWallet(ctx, alice, []string{alice}, 1)
	require.NoError(t, err)
	w1, err := r.CreateWallet(ctx, bob, []string{bob}, 1)
	require.NoError(t, err)

	require.NoError(t, w0.Deposit(ctx, paul, decimal.NewFromInt(1)))
	_, err = w0.Propose(ctx, alice, paul, decimal.NewFromInt(1), testPayload)
	require.NoError(t, err)
	require.NoError(t, w1.Deposit(ctx, paul, decimal.NewFromInt(2)))
	require.NoError(t, w0.Confirm(ctx, alice, 0))
	require.NoError(t, w0.Execute(ctx, alice, 0))
	require.NoError(t, eventLog.Close())

	// a fresh log over the same database sees the whole history
	reopened, err := NewEventLog(store)
	require.NoError(t, err)
	defer reopened.Close()

	events, err := reopened.ListEvents(ctx, w0.ID())
	require.NoError(t, err)

	var kinds []EventKind
	for _, e := range events {
		assert.Equal(t, w0.ID(), e.Wallet)
		kinds = append(kinds, e.Kind)
	}

	assert.Equal(t, []EventKind{
		EventWalletCreated,
		EventDeposit,
		EventSubmit,
		EventConfirm,
		EventExecute,
	}, kinds)
	assert.Equal(t, testPayload, events[2].Payload)

	events, err = reopened.ListEvents(ctx, w1.ID())
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, EventDeposit, events[1].Kind)
	assert.True(t, events[1].Amount.Equal(decimal.NewFromInt(2)))
}
