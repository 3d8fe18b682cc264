// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authgate Contributors

// Package memory implements auth.CredentialStore with a guarded in-process
// map. Process lifetime only; used for tests and early deployments.
package memory

import (
	"context"
	"sync"

	"github.com/samber/oops"

	"github.com/cabfleet/authgate/internal/auth"
)

// Store is an in-memory credential store. Unlike the networked backends,
// which rely on backend-side uniqueness, it serializes writes with an
// exclusive lock to provide the same atomic duplicate rejection.
type Store struct {
	mu       sync.RWMutex
	byHandle map[string]auth.Account
}

// NewStore creates an empty in-memory store.
func NewStore() *Store {
	return &Store{byHandle: make(map[string]auth.Account)}
}

// Create stores a new account, rejecting duplicate handles atomically
// under the write lock.
func (s *Store) Create(ctx context.Context, account *auth.Account) error {
	if err := ctx.Err(); err != nil {
		return oops.Code("STORE_UNAVAILABLE").Wrap(auth.ErrStoreUnavailable)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byHandle[account.Handle]; exists {
		return oops.Code("ACCOUNT_DUPLICATE_HANDLE").
			With("handle", account.Handle).
			Wrap(auth.ErrDuplicateHandle)
	}

	// Store a copy so later caller mutations cannot alias stored state.
	s.byHandle[account.Handle] = *account
	return nil
}

// GetByHandle retrieves an account by its normalized handle.
func (s *Store) GetByHandle(ctx context.Context, handle string) (*auth.Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, oops.Code("STORE_UNAVAILABLE").Wrap(auth.ErrStoreUnavailable)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	account, exists := s.byHandle[handle]
	if !exists {
		return nil, oops.Code("ACCOUNT_NOT_FOUND").
			With("handle", handle).
			Wrap(auth.ErrNotFound)
	}

	out := account
	return &out, nil
}

// Exists reports whether the handle is taken.
func (s *Store) Exists(ctx context.Context, handle string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, oops.Code("STORE_UNAVAILABLE").Wrap(auth.ErrStoreUnavailable)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	_, exists := s.byHandle[handle]
	return exists, nil
}

// Ping always succeeds; there is no backend to reach.
func (s *Store) Ping(context.Context) error { return nil }

// Close is a no-op.
func (s *Store) Close(context.Context) error { return nil }

// Compile-time interface check.
var _ auth.CredentialStore = (*Store)(nil)
