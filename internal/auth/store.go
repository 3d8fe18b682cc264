// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authgate Contributors

package auth

import "context"

// CredentialStore manages account persistence. Implementations exist for
// in-memory, PostgreSQL, MongoDB, and Cassandra backends; the choice is a
// deployment-time configuration decision and no backend type leaks into the
// authentication logic.
//
// All implementations must honor the caller's context deadline and map
// connectivity failures to ErrStoreUnavailable.
type CredentialStore interface {
	// Create stores a new account. The duplicate-handle check is atomic
	// inside the backend (unique index, lightweight transaction, or guarded
	// map), never a read-then-write in the caller.
	// Returns ErrDuplicateHandle if the handle is already taken.
	Create(ctx context.Context, account *Account) error

	// GetByHandle retrieves an account by its normalized handle.
	// Returns ErrNotFound if no account has the handle; absence is not an
	// exceptional condition.
	GetByHandle(ctx context.Context, handle string) (*Account, error)

	// Exists reports whether an account with the normalized handle exists.
	// Pre-flight convenience only; uniqueness is enforced inside Create.
	Exists(ctx context.Context, handle string) (bool, error)

	// Ping verifies backend connectivity. Used by readiness probes.
	Ping(ctx context.Context) error

	// Close releases backend resources.
	Close(ctx context.Context) error
}
