// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authgate Contributors

// Package mongo implements auth.CredentialStore on MongoDB. A unique index
// on the handle field makes duplicate rejection atomic server-side.
package mongo

import (
	"context"
	"errors"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/cabfleet/authgate/internal/auth"
)

const collectionName = "accounts"

// accountDoc is the stored document shape. The auth.Account type never
// carries bson tags; mapping stays inside this package.
type accountDoc struct {
	ID           string    `bson:"_id"`
	Handle       string    `bson:"handle"`
	PasswordHash string    `bson:"password_hash"`
	DisplayName  string    `bson:"display_name,omitempty"`
	CreatedAt    time.Time `bson:"created_at"`
}

// Store implements auth.CredentialStore using MongoDB.
type Store struct {
	client   *mongo.Client
	accounts *mongo.Collection
}

// Connect opens a client for the URI and ensures the unique handle index.
func Connect(ctx context.Context, uri, database string) (*Store, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, oops.Code("STORE_CONNECT_FAILED").
			With("backend", "mongo").
			Wrapf(auth.ErrStoreUnavailable, "connect: %v", err)
	}

	s := &Store{
		client:   client,
		accounts: client.Database(database).Collection(collectionName),
	}

	if err := s.ensureIndexes(ctx); err != nil {
		_ = client.Disconnect(ctx) //nolint:errcheck // best effort on failed startup
		return nil, err
	}
	return s, nil
}

// ensureIndexes creates the unique index backing atomic duplicate
// rejection. Idempotent; safe across concurrent process instances.
func (s *Store) ensureIndexes(ctx context.Context) error {
	_, err := s.accounts.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "handle", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return oops.Code("STORE_CONNECT_FAILED").
			With("backend", "mongo").
			With("operation", "ensure handle index").
			Wrapf(auth.ErrStoreUnavailable, "ensure indexes: %v", err)
	}
	return nil
}

// Create stores a new account. A duplicate-key error from the unique
// handle index maps to auth.ErrDuplicateHandle.
func (s *Store) Create(ctx context.Context, account *auth.Account) error {
	_, err := s.accounts.InsertOne(ctx, accountDoc{
		ID:           account.ID.String(),
		Handle:       account.Handle,
		PasswordHash: account.PasswordHash,
		DisplayName:  account.DisplayName,
		CreatedAt:    account.CreatedAt,
	})
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
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
	var doc accountDoc
	err := s.accounts.FindOne(ctx, bson.D{{Key: "handle", Value: handle}}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, oops.Code("ACCOUNT_NOT_FOUND").
				With("handle", handle).
				Wrap(auth.ErrNotFound)
		}
		return nil, storeErr("get account by handle", err)
	}

	id, err := ulid.Parse(doc.ID)
	if err != nil {
		return nil, oops.Code("ACCOUNT_INVALID_ID").
			With("id", doc.ID).
			Wrap(err)
	}

	return &auth.Account{
		ID:           id,
		Handle:       doc.Handle,
		PasswordHash: doc.PasswordHash,
		DisplayName:  doc.DisplayName,
		CreatedAt:    doc.CreatedAt,
	}, nil
}

// Exists reports whether the handle is taken.
func (s *Store) Exists(ctx context.Context, handle string) (bool, error) {
	count, err := s.accounts.CountDocuments(ctx,
		bson.D{{Key: "handle", Value: handle}},
		options.Count().SetLimit(1),
	)
	if err != nil {
		return false, storeErr("check handle exists", err)
	}
	return count > 0, nil
}

// Ping verifies connectivity to the primary.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx, readpref.Primary()); err != nil {
		return storeErr("ping", err)
	}
	return nil
}

// Close disconnects the client.
func (s *Store) Close(ctx context.Context) error {
	if err := s.client.Disconnect(ctx); err != nil {
		return storeErr("disconnect", err)
	}
	return nil
}

// storeErr maps driver failures to the retryable unavailable class.
func storeErr(operation string, err error) error {
	return oops.Code("STORE_UNAVAILABLE").
		With("backend", "mongo").
		With("operation", operation).
		Wrapf(auth.ErrStoreUnavailable, "%s: %v", operation, err)
}

// Compile-time interface check.
var _ auth.CredentialStore = (*Store)(nil)
