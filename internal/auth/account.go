// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authgate Contributors

package auth

import (
	"regexp"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// Handle validation constraints.
const (
	MinHandleLength = 3
	MaxHandleLength = 30

	// MinPasswordLength is the minimum accepted password length. There is
	// no upper bound; argon2id handles arbitrary-length input.
	MinPasswordLength = 8
)

// handleRegex matches handles that:
// - Start with a letter (a-z)
// - Contain only lowercase letters, numbers, and underscores
// Handles are normalized before validation, so uppercase never reaches it.
var handleRegex = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// Account represents one operator identity.
// The ID is generated server-side and immutable once assigned.
type Account struct {
	ID           ulid.ULID
	Handle       string
	PasswordHash string
	DisplayName  string
	CreatedAt    time.Time
}

// NewAccount creates a validated Account with a fresh ID.
// The handle must already be normalized (see NormalizeHandle) and the
// password hash must come from a PasswordHasher, never the plaintext.
func NewAccount(handle, passwordHash, displayName string) (*Account, error) {
	if err := ValidateHandle(handle); err != nil {
		return nil, err
	}
	if passwordHash == "" {
		return nil, oops.Code("AUTH_EMPTY_HASH").Errorf("password hash cannot be empty")
	}

	return &Account{
		ID:           ulid.Make(),
		Handle:       handle,
		PasswordHash: passwordHash,
		DisplayName:  displayName,
		CreatedAt:    time.Now().UTC(),
	}, nil
}

// NormalizeHandle lower-cases and trims a login handle. Every store backend
// receives handles in this form, so uniqueness and lookup are
// case-insensitive without backend-specific collation tricks.
func NormalizeHandle(handle string) string {
	return strings.ToLower(strings.TrimSpace(handle))
}

// ValidateHandle validates a normalized handle against rules.
// Handle requirements:
// - Length: MinHandleLength to MaxHandleLength characters
// - Must start with a letter
// - Can contain only lowercase letters (a-z), numbers (0-9), and underscores (_)
func ValidateHandle(handle string) error {
	if handle == "" {
		return oops.Code("AUTH_INVALID_HANDLE").Wrapf(ErrInvalidInput, "handle cannot be empty")
	}
	if len(handle) < MinHandleLength {
		return oops.Code("AUTH_INVALID_HANDLE").
			With("min", MinHandleLength).
			Wrapf(ErrInvalidInput, "handle must be at least %d characters", MinHandleLength)
	}
	if len(handle) > MaxHandleLength {
		return oops.Code("AUTH_INVALID_HANDLE").
			With("max", MaxHandleLength).
			Wrapf(ErrInvalidInput, "handle must be at most %d characters", MaxHandleLength)
	}
	if !handleRegex.MatchString(handle) {
		return oops.Code("AUTH_INVALID_HANDLE").
			Wrapf(ErrInvalidInput, "handle must start with a letter and contain only letters, numbers, and underscores")
	}
	return nil
}

// ValidatePassword checks minimum password requirements. The plaintext is
// never stored or logged; this only guards against trivially weak input.
func ValidatePassword(password string) error {
	if password == "" {
		return oops.Code("AUTH_INVALID_PASSWORD").Wrapf(ErrInvalidInput, "password cannot be empty")
	}
	if len(password) < MinPasswordLength {
		return oops.Code("AUTH_INVALID_PASSWORD").
			With("min", MinPasswordLength).
			Wrapf(ErrInvalidInput, "password must be at least %d characters", MinPasswordLength)
	}
	return nil
}
