// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authgate Contributors

package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/samber/oops"
)

// TokenKind discriminates access tokens from refresh tokens so one can
// never be replayed as the other.
type TokenKind string

// Token kinds.
const (
	TokenKindAccess  TokenKind = "access"
	TokenKindRefresh TokenKind = "refresh"
)

// Claims are the signed statements carried by every token.
type Claims struct {
	jwt.RegisteredClaims
	Kind TokenKind `json:"tkn"`
}

// TokenPair is an access/refresh token pair issued together. Both tokens
// share one issuance timestamp but carry distinct kinds and TTLs.
type TokenPair struct {
	AccessToken      string
	RefreshToken     string
	IssuedAt         time.Time
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
}

// TokenService mints and verifies signed token pairs. It is stateless:
// purely a function of the signing key and current time, safe for
// concurrent use without locking.
//
// Refresh is deliberately store-free; identity is carried in the refresh
// token's claims. The trade-off is that a compromised refresh token stays
// valid until natural expiry — there is no revocation list in this core.
type TokenService struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

// NewTokenService creates a TokenService signing with the given symmetric
// key. The key must be non-empty; its absence is a startup-fatal condition
// checked by config validation before this constructor runs.
func NewTokenService(secret []byte, accessTTL, refreshTTL time.Duration) *TokenService {
	return &TokenService{
		secret:     secret,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		now:        time.Now,
	}
}

// Issue mints a token pair for the given account ID.
func (s *TokenService) Issue(accountID string) (*TokenPair, error) {
	issuedAt := s.now().UTC()
	accessExpiry := issuedAt.Add(s.accessTTL)
	refreshExpiry := issuedAt.Add(s.refreshTTL)

	access, err := s.sign(accountID, issuedAt, accessExpiry, TokenKindAccess)
	if err != nil {
		return nil, oops.Code("TOKEN_ISSUE_FAILED").With("kind", TokenKindAccess).Wrap(err)
	}

	refresh, err := s.sign(accountID, issuedAt, refreshExpiry, TokenKindRefresh)
	if err != nil {
		return nil, oops.Code("TOKEN_ISSUE_FAILED").With("kind", TokenKindRefresh).Wrap(err)
	}

	return &TokenPair{
		AccessToken:      access,
		RefreshToken:     refresh,
		IssuedAt:         issuedAt,
		AccessExpiresAt:  accessExpiry,
		RefreshExpiresAt: refreshExpiry,
	}, nil
}

// Verify parses and validates a token, requiring the given kind.
// Returns ErrTokenExpired, ErrTokenKind, ErrTokenSignature, or
// ErrTokenMalformed wrapped with context.
func (s *TokenService) Verify(token string, expected TokenKind) (*Claims, error) {
	claims := &Claims{}

	parsed, err := jwt.ParseWithClaims(token, claims,
		func(*jwt.Token) (any, error) { return s.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, oops.Code("TOKEN_EXPIRED").Wrap(ErrTokenExpired)
		case errors.Is(err, jwt.ErrTokenSignatureInvalid):
			return nil, oops.Code("TOKEN_SIGNATURE_INVALID").Wrap(ErrTokenSignature)
		default:
			return nil, oops.Code("TOKEN_MALFORMED").Wrap(ErrTokenMalformed)
		}
	}
	if !parsed.Valid {
		return nil, oops.Code("TOKEN_MALFORMED").Wrap(ErrTokenMalformed)
	}

	if claims.Kind != expected {
		return nil, oops.Code("TOKEN_KIND_MISMATCH").
			With("expected", expected).
			With("got", claims.Kind).
			Wrap(ErrTokenKind)
	}

	return claims, nil
}

// Refresh verifies a refresh token and issues a brand-new pair. No store
// lookup happens here; the subject comes from the verified claims.
func (s *TokenService) Refresh(refreshToken string) (*TokenPair, error) {
	claims, err := s.Verify(refreshToken, TokenKindRefresh)
	if err != nil {
		return nil, err
	}
	return s.Issue(claims.Subject)
}

func (s *TokenService) sign(accountID string, issuedAt, expiresAt time.Time, kind TokenKind) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   accountID,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		Kind: kind,
	})
	return token.SignedString(s.secret)
}
