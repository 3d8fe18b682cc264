// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authgate Contributors

//go:build integration

package mongo_test

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cabfleet/authgate/internal/auth"
	"github.com/cabfleet/authgate/internal/auth/mongo"
)

// newTestStore connects to the MongoDB instance named by
// AUTHGATE_TEST_MONGO_URI, or skips the test when unset.
func newTestStore(t *testing.T) *mongo.Store {
	t.Helper()

	uri := os.Getenv("AUTHGATE_TEST_MONGO_URI")
	if uri == "" {
		t.Skip("AUTHGATE_TEST_MONGO_URI not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	store, err := mongo.Connect(ctx, uri, "authgate_test")
	require.NoError(t, err)
	t.Cleanup(func() {
		closeCtx, closeCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer closeCancel()
		_ = store.Close(closeCtx)
	})

	return store
}

// testHandle returns a unique valid handle so test runs never collide.
func testHandle(t *testing.T) string {
	t.Helper()
	return "it_" + strings.ToLower(ulid.Make().String())
}

func TestStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	handle := testHandle(t)
	account, err := auth.NewAccount(handle, "$argon2id$fake", "Integration")
	require.NoError(t, err)

	require.NoError(t, store.Create(ctx, account))

	got, err := store.GetByHandle(ctx, handle)
	require.NoError(t, err)
	assert.Equal(t, account.ID, got.ID)
	assert.Equal(t, account.PasswordHash, got.PasswordHash)
	assert.Equal(t, account.DisplayName, got.DisplayName)

	exists, err := store.Exists(ctx, handle)
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestStoreDuplicateHandle(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	handle := testHandle(t)
	first, err := auth.NewAccount(handle, "$argon2id$fake", "")
	require.NoError(t, err)
	require.NoError(t, store.Create(ctx, first))

	second, err := auth.NewAccount(handle, "$argon2id$other", "")
	require.NoError(t, err)
	assert.ErrorIs(t, store.Create(ctx, second), auth.ErrDuplicateHandle)
}

func TestStoreNotFound(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	_, err := store.GetByHandle(ctx, testHandle(t))
	assert.ErrorIs(t, err, auth.ErrNotFound)

	exists, err := store.Exists(ctx, testHandle(t))
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestStorePing(t *testing.T) {
	store := newTestStore(t)
	assert.NoError(t, store.Ping(context.Background()))
}
