// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authgate Contributors

package auth

import (
	"context"
	"errors"
	"time"

	"github.com/samber/oops"
)

// DefaultStoreTimeout bounds every credential-store call so a hung backend
// cannot hang the request.
const DefaultStoreTimeout = 5 * time.Second

// Service composes the credential store, password hasher, token service,
// rate limiters, and creation gate into the user-facing authentication
// flows: login, account creation, and token refresh.
//
// It holds no long-lived account state; accounts are owned by the store.
type Service struct {
	store         CredentialStore
	hasher        PasswordHasher
	tokens        *TokenService
	gate          CreationGate
	loginLimiter  *Limiter
	createLimiter *Limiter
	storeTimeout  time.Duration

	// dummyHash is verified against when a handle does not exist, so absent
	// accounts and wrong passwords cost the same and respond the same.
	dummyHash string
}

// NewService creates the authentication flow. The limiters are separate
// because login and creation have different abuse profiles. A zero
// storeTimeout falls back to DefaultStoreTimeout.
func NewService(
	store CredentialStore,
	hasher PasswordHasher,
	tokens *TokenService,
	gate CreationGate,
	loginLimiter, createLimiter *Limiter,
	storeTimeout time.Duration,
) (*Service, error) {
	if store == nil || hasher == nil || tokens == nil || gate == nil {
		return nil, oops.Code("AUTH_SERVICE_INVALID").Errorf("store, hasher, tokens, and gate are required")
	}
	if loginLimiter == nil || createLimiter == nil {
		return nil, oops.Code("AUTH_SERVICE_INVALID").Errorf("both rate limiters are required")
	}
	if storeTimeout <= 0 {
		storeTimeout = DefaultStoreTimeout
	}

	// Hash a throwaway value with the live work factor so dummy
	// verification costs the same as a real one.
	dummyHash, err := hasher.Hash("authgate-dummy-credential")
	if err != nil {
		return nil, oops.Code("AUTH_SERVICE_INVALID").
			With("operation", "precompute dummy hash").
			Wrap(err)
	}

	return &Service{
		store:         store,
		hasher:        hasher,
		tokens:        tokens,
		gate:          gate,
		loginLimiter:  loginLimiter,
		createLimiter: createLimiter,
		storeTimeout:  storeTimeout,
		dummyHash:     dummyHash,
	}, nil
}

// Login authenticates a handle/password pair and mints a token pair.
// Unknown handles and wrong passwords produce identical errors and
// comparable latency; the distinction never leaves this method.
func (s *Service) Login(ctx context.Context, handle, password, clientKey string) (*TokenPair, error) {
	if d := s.loginLimiter.CheckAndRecord(clientKey); !d.Admit {
		return nil, admissionRejected("login", d)
	}

	handle = NormalizeHandle(handle)
	if handle == "" || password == "" {
		return nil, oops.Code("AUTH_INVALID_INPUT").Wrapf(ErrInvalidInput, "handle and password are required")
	}

	storeCtx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()

	account, lookupErr := s.store.GetByHandle(storeCtx, handle)

	targetHash := s.dummyHash
	accountExists := false

	if lookupErr != nil {
		if !errors.Is(lookupErr, ErrNotFound) {
			return nil, storeUnavailable("get account by handle", lookupErr)
		}
		// Fall through with the dummy hash to keep timing flat.
	} else {
		targetHash = account.PasswordHash
		accountExists = true
	}

	valid, verifyErr := s.hasher.Verify(password, targetHash)
	if verifyErr != nil {
		if !accountExists {
			return nil, invalidCredentials()
		}
		return nil, oops.Code("AUTH_LOGIN_FAILED").
			With("operation", "verify password").
			Wrap(verifyErr)
	}

	if !accountExists || !valid {
		return nil, invalidCredentials()
	}

	pair, err := s.tokens.Issue(account.ID.String())
	if err != nil {
		return nil, oops.Code("AUTH_LOGIN_FAILED").
			With("operation", "issue token pair").
			Wrap(err)
	}
	return pair, nil
}

// CreateAccount creates a new account. Only reachable with the bootstrap
// master key; the duplicate-handle check happens atomically in the store.
func (s *Service) CreateAccount(ctx context.Context, handle, password, displayName, presentedMasterKey, clientKey string) (*Account, error) {
	if d := s.createLimiter.CheckAndRecord(clientKey); !d.Admit {
		return nil, admissionRejected("create_account", d)
	}

	if !s.gate.Authorize(presentedMasterKey) {
		return nil, oops.Code("AUTH_MASTER_KEY_REJECTED").Wrap(ErrMasterKeyRejected)
	}

	handle = NormalizeHandle(handle)
	if err := ValidateHandle(handle); err != nil {
		return nil, err
	}
	if err := ValidatePassword(password); err != nil {
		return nil, err
	}

	passwordHash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, oops.Code("AUTH_CREATE_FAILED").
			With("operation", "hash password").
			Wrap(err)
	}

	account, err := NewAccount(handle, passwordHash, displayName)
	if err != nil {
		return nil, err
	}

	storeCtx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()

	if err := s.store.Create(storeCtx, account); err != nil {
		if errors.Is(err, ErrDuplicateHandle) {
			return nil, oops.Code("AUTH_HANDLE_TAKEN").
				With("handle", handle).
				Wrap(err)
		}
		return nil, storeUnavailable("create account", err)
	}

	return account, nil
}

// Refresh verifies a refresh token and issues a new pair. No rate limit
// and no store lookup: possession of a valid refresh token is the
// credential here.
func (s *Service) Refresh(_ context.Context, refreshToken string) (*TokenPair, error) {
	return s.tokens.Refresh(refreshToken)
}

func invalidCredentials() error {
	return oops.Code("AUTH_INVALID_CREDENTIALS").Wrap(ErrInvalidCredentials)
}

func admissionRejected(flow string, d Decision) error {
	return &AdmissionError{Flow: flow, RetryAfter: d.RetryAfter}
}

// storeUnavailable maps any unexpected store failure, including context
// deadline expiry, to the retryable ErrStoreUnavailable class.
func storeUnavailable(operation string, err error) error {
	return oops.Code("STORE_UNAVAILABLE").
		With("operation", operation).
		Wrapf(ErrStoreUnavailable, "%s: %v", operation, err)
}
