// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authgate Contributors

package auth

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for the authentication core. Call sites wrap these with
// oops codes and context; the transport layer classifies with errors.Is.
var (
	// ErrNotFound is returned when a requested account does not exist.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateHandle is returned when creating an account whose handle
	// is already taken. The check is atomic inside each store backend.
	ErrDuplicateHandle = errors.New("handle already exists")

	// ErrStoreUnavailable is returned when the credential store cannot be
	// reached or a store call exceeds its timeout.
	ErrStoreUnavailable = errors.New("credential store unavailable")

	// ErrInvalidInput is returned for malformed handles or passwords.
	ErrInvalidInput = errors.New("invalid input")

	// ErrInvalidCredentials is returned for both unknown handles and wrong
	// passwords. The two cases must stay externally indistinguishable.
	ErrInvalidCredentials = errors.New("invalid handle or password")

	// ErrAdmissionRejected is returned when the rate limiter rejects a
	// request before it reaches the authentication logic.
	ErrAdmissionRejected = errors.New("too many attempts")

	// ErrMasterKeyRejected is returned when the presented bootstrap secret
	// does not match the configured one.
	ErrMasterKeyRejected = errors.New("master key rejected")
)

// AdmissionError is the concrete rejection returned by the rate-limited
// flows. It matches ErrAdmissionRejected under errors.Is and carries the
// retry-after hint for the boundary to surface.
type AdmissionError struct {
	Flow       string
	RetryAfter time.Duration
}

func (e *AdmissionError) Error() string {
	return fmt.Sprintf("too many %s attempts, retry after %s", e.Flow, e.RetryAfter.Round(time.Second))
}

// Is makes errors.Is(err, ErrAdmissionRejected) hold for AdmissionError.
func (e *AdmissionError) Is(target error) bool {
	return target == ErrAdmissionRejected
}

// Token verification failures.
var (
	// ErrTokenExpired is returned when a token's expiry is in the past.
	ErrTokenExpired = errors.New("token expired")

	// ErrTokenKind is returned when a token of one kind is presented where
	// the other kind is required.
	ErrTokenKind = errors.New("unexpected token kind")

	// ErrTokenSignature is returned when a token's signature does not verify.
	ErrTokenSignature = errors.New("invalid token signature")

	// ErrTokenMalformed is returned when a token cannot be parsed at all.
	ErrTokenMalformed = errors.New("malformed token")
)
