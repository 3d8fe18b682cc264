// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authgate Contributors

package memory_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cabfleet/authgate/internal/auth"
	"github.com/cabfleet/authgate/internal/auth/memory"
)

func newAccount(t *testing.T, handle string) *auth.Account {
	t.Helper()
	account, err := auth.NewAccount(handle, "$argon2id$fake", "")
	require.NoError(t, err)
	return account
}

func TestStoreCreateAndGet(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()

	account := newAccount(t, "alice")
	require.NoError(t, store.Create(ctx, account))

	t.Run("get returns the stored account", func(t *testing.T) {
		got, err := store.GetByHandle(ctx, "alice")
		require.NoError(t, err)
		assert.Equal(t, account.ID, got.ID)
		assert.Equal(t, account.PasswordHash, got.PasswordHash)
	})

	t.Run("returned account is a copy", func(t *testing.T) {
		got, err := store.GetByHandle(ctx, "alice")
		require.NoError(t, err)
		got.PasswordHash = "mutated"

		again, err := store.GetByHandle(ctx, "alice")
		require.NoError(t, err)
		assert.Equal(t, account.PasswordHash, again.PasswordHash)
	})

	t.Run("unknown handle is not found", func(t *testing.T) {
		_, err := store.GetByHandle(ctx, "nobody")
		assert.ErrorIs(t, err, auth.ErrNotFound)
	})

	t.Run("exists reflects stored state", func(t *testing.T) {
		exists, err := store.Exists(ctx, "alice")
		require.NoError(t, err)
		assert.True(t, exists)

		exists, err = store.Exists(ctx, "nobody")
		require.NoError(t, err)
		assert.False(t, exists)
	})
}

func TestStoreDuplicateHandle(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()

	require.NoError(t, store.Create(ctx, newAccount(t, "alice")))

	err := store.Create(ctx, newAccount(t, "alice"))
	assert.ErrorIs(t, err, auth.ErrDuplicateHandle)
}

func TestStoreConcurrentCreate(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()

	const racers = 16
	accounts := make([]*auth.Account, racers)
	for i := range accounts {
		accounts[i] = newAccount(t, "contended")
	}

	var wg sync.WaitGroup
	errs := make([]error, racers)

	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			errs[n] = store.Create(ctx, accounts[n])
		}(i)
	}
	wg.Wait()

	created := 0
	for _, err := range errs {
		if err == nil {
			created++
		} else {
			assert.ErrorIs(t, err, auth.ErrDuplicateHandle)
		}
	}
	assert.Equal(t, 1, created, "exactly one racer wins the handle")
}

func TestStoreCancelledContext(t *testing.T) {
	store := memory.NewStore()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := store.Create(ctx, newAccount(t, "alice"))
	assert.ErrorIs(t, err, auth.ErrStoreUnavailable)

	_, err = store.GetByHandle(ctx, "alice")
	assert.ErrorIs(t, err, auth.ErrStoreUnavailable)

	_, err = store.Exists(ctx, "alice")
	assert.ErrorIs(t, err, auth.ErrStoreUnavailable)
}

func TestStoreLifecycle(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()

	assert.NoError(t, store.Ping(ctx))
	assert.NoError(t, store.Close(ctx))
}
