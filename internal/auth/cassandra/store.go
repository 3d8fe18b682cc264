// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authgate Contributors

// Package cassandra implements auth.CredentialStore on Cassandra/Scylla.
// The handle is the partition key and creation uses a lightweight
// transaction (INSERT ... IF NOT EXISTS), which is the only way to get
// atomic duplicate rejection on a wide-column store.
//
// Expected schema:
//
//	CREATE TABLE accounts (
//	    handle        text PRIMARY KEY,
//	    id            text,
//	    password_hash text,
//	    display_name  text,
//	    created_at    timestamp
//	);
package cassandra

import (
	"context"
	"errors"
	"time"

	"github.com/gocql/gocql"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/cabfleet/authgate/internal/auth"
)

// Store implements auth.CredentialStore using Cassandra.
type Store struct {
	session *gocql.Session
}

// Connect creates a session against the cluster and verifies connectivity.
func Connect(hosts []string, keyspace string, timeout time.Duration) (*Store, error) {
	cluster := gocql.NewCluster(hosts...)
	cluster.Keyspace = keyspace
	if timeout > 0 {
		cluster.Timeout = timeout
		cluster.ConnectTimeout = timeout
	}
	cluster.Consistency = gocql.Quorum

	session, err := cluster.CreateSession()
	if err != nil {
		return nil, oops.Code("STORE_CONNECT_FAILED").
			With("backend", "cassandra").
			With("keyspace", keyspace).
			Wrapf(auth.ErrStoreUnavailable, "create session: %v", err)
	}
	return &Store{session: session}, nil
}

// Create stores a new account via a lightweight transaction. An unapplied
// LWT means the handle row already existed.
func (s *Store) Create(ctx context.Context, account *auth.Account) error {
	applied, err := s.session.Query(`
		INSERT INTO accounts (handle, id, password_hash, display_name, created_at)
		VALUES (?, ?, ?, ?, ?) IF NOT EXISTS`,
		account.Handle,
		account.ID.String(),
		account.PasswordHash,
		account.DisplayName,
		account.CreatedAt,
	).WithContext(ctx).MapScanCAS(map[string]interface{}{})
	if err != nil {
		return storeErr("insert account", err)
	}
	if !applied {
		return oops.Code("ACCOUNT_DUPLICATE_HANDLE").
			With("handle", account.Handle).
			Wrap(auth.ErrDuplicateHandle)
	}
	return nil
}

// GetByHandle retrieves an account by its normalized handle (the
// partition key).
func (s *Store) GetByHandle(ctx context.Context, handle string) (*auth.Account, error) {
	var (
		idStr        string
		passwordHash string
		displayName  string
		createdAt    time.Time
	)

	err := s.session.Query(`
		SELECT id, password_hash, display_name, created_at
		FROM accounts WHERE handle = ?`, handle,
	).WithContext(ctx).Scan(&idStr, &passwordHash, &displayName, &createdAt)
	if err != nil {
		if errors.Is(err, gocql.ErrNotFound) {
			return nil, oops.Code("ACCOUNT_NOT_FOUND").
				With("handle", handle).
				Wrap(auth.ErrNotFound)
		}
		return nil, storeErr("get account by handle", err)
	}

	id, err := ulid.Parse(idStr)
	if err != nil {
		return nil, oops.Code("ACCOUNT_INVALID_ID").
			With("id", idStr).
			Wrap(err)
	}

	return &auth.Account{
		ID:           id,
		Handle:       handle,
		PasswordHash: passwordHash,
		DisplayName:  displayName,
		CreatedAt:    createdAt,
	}, nil
}

// Exists reports whether the handle is taken.
func (s *Store) Exists(ctx context.Context, handle string) (bool, error) {
	var found string
	err := s.session.Query(`SELECT handle FROM accounts WHERE handle = ?`, handle).
		WithContext(ctx).Scan(&found)
	if err != nil {
		if errors.Is(err, gocql.ErrNotFound) {
			return false, nil
		}
		return false, storeErr("check handle exists", err)
	}
	return true, nil
}

// Ping verifies cluster connectivity with a trivial local read.
func (s *Store) Ping(ctx context.Context) error {
	err := s.session.Query(`SELECT release_version FROM system.local`).
		WithContext(ctx).Exec()
	if err != nil {
		return storeErr("ping", err)
	}
	return nil
}

// Close closes the session.
func (s *Store) Close(context.Context) error {
	s.session.Close()
	return nil
}

// storeErr maps driver failures to the retryable unavailable class.
func storeErr(operation string, err error) error {
	return oops.Code("STORE_UNAVAILABLE").
		With("backend", "cassandra").
		With("operation", operation).
		Wrapf(auth.ErrStoreUnavailable, "%s: %v", operation, err)
}

// Compile-time interface check.
var _ auth.CredentialStore = (*Store)(nil)
