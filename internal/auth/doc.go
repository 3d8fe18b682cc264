// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authgate Contributors

// Package auth is the authentication and token core of the gateway.
//
// # Components
//
//   - PasswordHasher / Argon2idHasher - salted one-way hashing with a
//     configurable work factor and constant-time verification
//   - CredentialStore - backend-agnostic account persistence, implemented
//     by the memory, postgres, mongo, and cassandra subpackages
//   - TokenService - stateless HS256 access/refresh token pairs
//   - Limiter - fixed-window admission control keyed by client identity
//   - MasterKeyGate - bootstrap secret gating account creation, behind the
//     CreationGate interface so a service-identity verifier can replace it
//   - Service - the orchestrated login / create-account / refresh flows
//
// Construct components with their New* constructors and inject
// configuration explicitly; nothing in this package reads ambient state.
//
// # Failure classes
//
// Operations return sentinel errors (ErrInvalidCredentials,
// ErrDuplicateHandle, ErrStoreUnavailable, ...) wrapped with oops codes.
// Unknown handles and wrong passwords are deliberately indistinguishable
// from outside this package.
package auth
