// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authgate Contributors

package auth

import (
	"crypto/sha256"
	"crypto/subtle"

	"github.com/samber/oops"
)

// CreationGate authorizes the account-creation path. The bootstrap
// master-key gate is the only implementation today; a per-service identity
// verifier can replace it behind this interface without touching the
// authentication flow.
type CreationGate interface {
	// Authorize reports whether the presented secret grants account
	// creation. Implementations must not log the presented value.
	Authorize(presented string) bool
}

// MasterKeyGate gates account creation behind a single shared bootstrap
// secret. It stores only a digest of the secret and compares digests, so
// the comparison cost is independent of both content and length of the
// presented value.
type MasterKeyGate struct {
	digest [sha256.Size]byte
}

// NewMasterKeyGate creates a gate for the configured secret.
func NewMasterKeyGate(secret string) (*MasterKeyGate, error) {
	if secret == "" {
		return nil, oops.Code("CONFIG_INVALID").Errorf("master key cannot be empty")
	}
	return &MasterKeyGate{digest: sha256.Sum256([]byte(secret))}, nil
}

// Authorize compares the presented secret against the configured one in
// constant time.
func (g *MasterKeyGate) Authorize(presented string) bool {
	sum := sha256.Sum256([]byte(presented))
	return subtle.ConstantTimeCompare(sum[:], g.digest[:]) == 1
}

// Compile-time interface check.
var _ CreationGate = (*MasterKeyGate)(nil)
