package ports

import (
	"context"
	"testing"

	"github.com/aretw0/relay/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunBalanceStoreContract runs a suite of tests to verify that a BalanceStore
// implementation adheres to the defined interface contract.
// The store must be empty.
func RunBalanceStoreContract(t *testing.T, store BalanceStore) {
	ctx := context.Background()
	alice := domain.MustParseAddress("0x00000000000000000000000000000000000a11ce")
	bob := domain.MustParseAddress("0x0000000000000000000000000000000000000b0b")
	carol := domain.MustParseAddress("0x00000000000000000000000000000000000ca201")

	t.Run("Unknown Account Is Zero", func(t *testing.T) {
		bal, err := store.Balance(ctx, carol)
		require.NoError(t, err)
		assert.Zero(t, bal)
	})

	t.Run("Credit", func(t *testing.T) {
		err := store.Commit(ctx, []domain.Posting{{Account: alice, Credit: 100}})
		require.NoError(t, err)

		bal, err := store.Balance(ctx, alice)
		require.NoError(t, err)
		assert.Equal(t, domain.Amount(100), bal)
	})

	t.Run("Transfer Conserves Total", func(t *testing.T) {
		err := store.Commit(ctx, []domain.Posting{
			{Account: alice, Debit: 40},
			{Account: bob, Credit: 40},
		})
		require.NoError(t, err)

		a, err := store.Balance(ctx, alice)
		require.NoError(t, err)
		b, err := store.Balance(ctx, bob)
		require.NoError(t, err)
		assert.Equal(t, domain.Amount(60), a)
		assert.Equal(t, domain.Amount(40), b)
	})

	t.Run("Overdraft Applies Nothing", func(t *testing.T) {
		err := store.Commit(ctx, []domain.Posting{
			{Account: bob, Credit: 5},
			{Account: alice, Debit: 1000},
		})
		assert.ErrorIs(t, err, domain.ErrInsufficientFunds)

		a, err := store.Balance(ctx, alice)
		require.NoError(t, err)
		b, err := store.Balance(ctx, bob)
		require.NoError(t, err)
		assert.Equal(t, domain.Amount(60), a, "debit side must be untouched")
		assert.Equal(t, domain.Amount(40), b, "credit side must be untouched")
	})

	t.Run("Debit And Credit On Same Posting", func(t *testing.T) {
		err := store.Commit(ctx, []domain.Posting{{Account: bob, Debit: 50, Credit: 20}})
		require.NoError(t, err)

		b, err := store.Balance(ctx, bob)
		require.NoError(t, err)
		assert.Equal(t, domain.Amount(10), b)
	})

	t.Run("Accounts", func(t *testing.T) {
		accounts, err := store.Accounts(ctx)
		require.NoError(t, err)
		assert.Contains(t, accounts, alice)
		assert.Contains(t, accounts, bob)
		assert.NotContains(t, accounts, carol)
	})

	t.Run("Empty Commit", func(t *testing.T) {
		assert.NoError(t, store.Commit(ctx, nil))
	})
}
