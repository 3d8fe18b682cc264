// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authgate Contributors

// Package postgres implements auth.CredentialStore on PostgreSQL.
// Handle uniqueness is enforced by a unique index so duplicate rejection
// stays atomic across process instances sharing one database.
package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/cabfleet/authgate/internal/auth"
)

// db is the subset of pgxpool.Pool the store uses. pgxmock satisfies it
// for unit tests.
type db interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
	Close()
}

// Store implements auth.CredentialStore using PostgreSQL.
type Store struct {
	pool db
}

// NewStore creates a Store on an existing pool.
func NewStore(pool db) *Store {
	return &Store{pool: pool}
}

// Connect opens a connection pool for the DSN and verifies connectivity.
func Connect(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, oops.Code("STORE_CONNECT_FAILED").
			With("backend", "postgres").
			Wrapf(auth.ErrStoreUnavailable, "create pool: %v", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, oops.Code("STORE_CONNECT_FAILED").
			With("backend", "postgres").
			Wrapf(auth.ErrStoreUnavailable, "ping: %v", err)
	}
	return &Store{pool: pool}, nil
}

// Create stores a new account. The accounts_handle_key unique index makes
// the duplicate check atomic; a unique violation maps to
// auth.ErrDuplicateHandle.
func (s *Store) Create(ctx context.Context, account *auth.Account) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO accounts (id, handle, password_hash, display_name, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`,
		account.ID.String(),
		account.Handle,
		account.PasswordHash,
		account.DisplayName,
		account.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return oops.Code("ACCOUNT_DUPLICATE_HANDLE").
				With("handle", account.Handle).
				Wrap(auth.ErrDuplicateHandle)
		}
		return storeErr("insert account", err)
	}
	return nil
}

// GetByHandle retrieves an account by its normalized handle.
func (s *Store) GetByHandle(ctx context.Context, handle string) (*auth.Account, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, handle, password_hash, display_name, created_at
		FROM accounts
		WHERE handle = $1
	`, handle)

	account, err := scanAccount(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("ACCOUNT_NOT_FOUND").
			With("handle", handle).
			Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, storeErr("get account by handle", err)
	}
	return account, nil
}

// Exists reports whether the handle is taken.
func (s *Store) Exists(ctx context.Context, handle string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM accounts WHERE handle = $1)
	`, handle).Scan(&exists)
	if err != nil {
		return false, storeErr("check handle exists", err)
	}
	return exists, nil
}

// Ping verifies database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return storeErr("ping", err)
	}
	return nil
}

// Close closes the connection pool.
func (s *Store) Close(context.Context) error {
	s.pool.Close()
	return nil
}

// scanAccount scans a single row into an Account.
// Callers are responsible for handling pgx.ErrNoRows.
func scanAccount(row pgx.Row) (*auth.Account, error) {
	var (
		idStr        string
		handle       string
		passwordHash string
		displayName  string
		createdAt    time.Time
	)

	if err := row.Scan(&idStr, &handle, &passwordHash, &displayName, &createdAt); err != nil {
		// Propagate pgx.ErrNoRows unchanged for callers to handle with context.
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err //nolint:wrapcheck // Callers wrap with context-specific info
		}
		return nil, oops.Code("ACCOUNT_SCAN_FAILED").Wrap(err)
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

// storeErr maps driver failures to the retryable unavailable class.
func storeErr(operation string, err error) error {
	return oops.Code("STORE_UNAVAILABLE").
		With("backend", "postgres").
		With("operation", operation).
		Wrapf(auth.ErrStoreUnavailable, "%s: %v", operation, err)
}

// Compile-time interface check.
var _ auth.CredentialStore = (*Store)(nil)
