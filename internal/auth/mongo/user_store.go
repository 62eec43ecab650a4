// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 FaceGate Contributors

// Package mongo implements auth.UserStore on MongoDB. Users live in one
// collection with a unique index on email.
package mongo

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/samber/oops"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/facegate/facegate/internal/auth"
	"github.com/facegate/facegate/internal/face"
	"github.com/facegate/facegate/internal/store"
	"github.com/facegate/facegate/pkg/errutil"
)

// CollectionName is the collection holding user documents.
const CollectionName = "users"

type userDoc struct {
	ID              primitive.ObjectID `bson:"_id,omitempty"`
	Email           string             `bson:"email"`
	PasswordHash    string             `bson:"password_hash,omitempty"`
	FaceEncoding    []float64          `bson:"face_encoding,omitempty"`
	ResetSecretHash string             `bson:"reset_secret_hash,omitempty"`
	ResetExpiresAt  *time.Time         `bson:"reset_expires_at,omitempty"`
	CreatedAt       time.Time          `bson:"created_at"`
	UpdatedAt       time.Time          `bson:"updated_at"`
}

func (d *userDoc) toUser() *auth.User {
	user := &auth.User{
		ID:           d.ID.Hex(),
		Email:        d.Email,
		PasswordHash: d.PasswordHash,
		CreatedAt:    d.CreatedAt,
		UpdatedAt:    d.UpdatedAt,
	}
	if len(d.FaceEncoding) > 0 {
		user.FaceEncoding = face.Vector(d.FaceEncoding)
	}
	if d.ResetSecretHash != "" && d.ResetExpiresAt != nil {
		user.Reset = &auth.ResetChallenge{SecretHash: d.ResetSecretHash, ExpiresAt: *d.ResetExpiresAt}
	}
	return user
}

// UserStore implements auth.UserStore using a MongoDB collection.
type UserStore struct {
	coll *mongo.Collection
}

var _ auth.UserStore = (*UserStore)(nil)

// NewUserStore creates a UserStore over coll.
func NewUserStore(coll *mongo.Collection) *UserStore {
	return &UserStore{coll: coll}
}

// Connect dials uri, waits for the server and returns the client.
func Connect(ctx context.Context, logger *slog.Logger, policy store.RetryPolicy, uri string) (*mongo.Client, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, oops.Code("MONGO_CONFIG_INVALID").Wrap(err)
	}
	ping := func(ctx context.Context) error { return client.Ping(ctx, nil) }
	if err := store.WithRetry(ctx, logger, policy, "mongo ping", ping); err != nil {
		if derr := client.Disconnect(context.WithoutCancel(ctx)); derr != nil {
			errutil.LogWarn(logger, "mongo disconnect after failed connect", derr)
		}
		return nil, err
	}
	return client, nil
}

// EnsureIndexes creates the unique email index.
func (s *UserStore) EnsureIndexes(ctx context.Context) error {
	_, err := s.coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "email", Value: 1}},
		Options: options.Index().SetUnique(true).SetName("users_email_key"),
	})
	if err != nil {
		return oops.Code("USER_STORE_FAILED").With("operation", "create email index").Wrap(err)
	}
	return nil
}

// FindByEmail retrieves a user by normalized email.
func (s *UserStore) FindByEmail(ctx context.Context, email string) (*auth.User, error) {
	return s.findOne(ctx, bson.D{{Key: "email", Value: email}}, "email", email)
}

// FindByID retrieves a user by its hex ObjectID. Malformed ids are not found.
func (s *UserStore) FindByID(ctx context.Context, id string) (*auth.User, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, oops.Code("USER_STORE_NOT_FOUND").With("id", id).Wrap(auth.ErrNotFound)
	}
	return s.findOne(ctx, bson.D{{Key: "_id", Value: oid}}, "id", id)
}

func (s *UserStore) findOne(ctx context.Context, filter bson.D, key, value string) (*auth.User, error) {
	var doc userDoc
	err := s.coll.FindOne(ctx, filter).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, oops.Code("USER_STORE_NOT_FOUND").With(key, value).Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("USER_STORE_FAILED").
			With("operation", "find user by "+key).
			With(key, value).
			Wrap(err)
	}
	return doc.toUser(), nil
}

// Insert stores a new user under a fresh ObjectID.
func (s *UserStore) Insert(ctx context.Context, user *auth.User) (string, error) {
	doc := userDoc{
		ID:           primitive.NewObjectID(),
		Email:        user.Email,
		PasswordHash: user.PasswordHash,
		FaceEncoding: user.FaceEncoding,
		CreatedAt:    user.CreatedAt,
		UpdatedAt:    user.UpdatedAt,
	}
	if _, err := s.coll.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return "", oops.Code("USER_STORE_DUPLICATE").With("email", user.Email).Wrap(auth.ErrDuplicateEmail)
		}
		return "", oops.Code("USER_STORE_FAILED").
			With("operation", "insert user").
			With("email", user.Email).
			Wrap(err)
	}
	user.ID = doc.ID.Hex()
	return user.ID, nil
}

// UpdateFields applies patch with $set and bumps updated_at.
func (s *UserStore) UpdateFields(ctx context.Context, id string, patch auth.Patch) error {
	if patch.IsEmpty() {
		return oops.Code("USER_STORE_INVALID_PATCH").With("id", id).Errorf("patch changes nothing")
	}

	set := bson.D{}
	if patch.PasswordHash != nil {
		set = append(set, bson.E{Key: "password_hash", Value: *patch.PasswordHash})
	}
	if patch.FaceEncoding != nil {
		set = append(set, bson.E{Key: "face_encoding", Value: []float64(patch.FaceEncoding)})
	}
	if patch.Reset != nil {
		set = append(set,
			bson.E{Key: "reset_secret_hash", Value: patch.Reset.SecretHash},
			bson.E{Key: "reset_expires_at", Value: patch.Reset.ExpiresAt},
		)
	}
	set = append(set, bson.E{Key: "updated_at", Value: time.Now().UTC()})

	return s.updateByID(ctx, "update user fields", id, bson.D{{Key: "$set", Value: set}})
}

// UnsetFields removes the named fields with $unset. A user is never left
// without a factor: the filter only matches when the other one remains.
func (s *UserStore) UnsetFields(ctx context.Context, id string, fields ...auth.Field) error {
	if err := auth.ValidateFields(fields); err != nil {
		return err
	}

	unset := bson.D{}
	var clearsPassword, clearsFace bool
	for _, f := range fields {
		switch f {
		case auth.FieldPasswordHash:
			unset = append(unset, bson.E{Key: "password_hash", Value: ""})
			clearsPassword = true
		case auth.FieldFaceEncoding:
			unset = append(unset, bson.E{Key: "face_encoding", Value: ""})
			clearsFace = true
		case auth.FieldResetChallenge:
			unset = append(unset,
				bson.E{Key: "reset_secret_hash", Value: ""},
				bson.E{Key: "reset_expires_at", Value: ""},
			)
		}
	}

	update := bson.D{
		{Key: "$unset", Value: unset},
		{Key: "$set", Value: bson.D{{Key: "updated_at", Value: time.Now().UTC()}}},
	}
	filter, err := idFilter(id)
	if err != nil {
		return err
	}
	switch {
	case clearsPassword && clearsFace:
		return oops.Code("USER_STORE_INVALID_FIELDS").With("id", id).Errorf("cannot remove every factor")
	case clearsPassword:
		filter = append(filter, bson.E{Key: "face_encoding.0", Value: bson.D{{Key: "$exists", Value: true}}})
	case clearsFace:
		filter = append(filter, bson.E{Key: "password_hash", Value: bson.D{{Key: "$exists", Value: true}}})
	}
	return s.update(ctx, "unset user fields", id, filter, update)
}

// ConsumeResetChallenge sets the password and removes the challenge with a
// single filtered UpdateOne.
func (s *UserStore) ConsumeResetChallenge(ctx context.Context, email, secretHash, passwordHash string, now time.Time) error {
	filter := bson.D{
		{Key: "email", Value: email},
		{Key: "reset_secret_hash", Value: secretHash},
		{Key: "reset_expires_at", Value: bson.D{{Key: "$gt", Value: now}}},
	}
	update := bson.D{
		{Key: "$set", Value: bson.D{
			{Key: "password_hash", Value: passwordHash},
			{Key: "updated_at", Value: now},
		}},
		{Key: "$unset", Value: bson.D{
			{Key: "reset_secret_hash", Value: ""},
			{Key: "reset_expires_at", Value: ""},
		}},
	}

	res, err := s.coll.UpdateOne(ctx, filter, update)
	if err != nil {
		return oops.Code("USER_STORE_FAILED").
			With("operation", "consume reset challenge").
			With("email", email).
			Wrap(err)
	}
	if res.MatchedCount == 0 {
		return oops.Code("USER_STORE_NOT_FOUND").With("email", email).Wrap(auth.ErrNotFound)
	}
	return nil
}

func (s *UserStore) updateByID(ctx context.Context, operation, id string, update bson.D) error {
	filter, err := idFilter(id)
	if err != nil {
		return err
	}
	return s.update(ctx, operation, id, filter, update)
}

func (s *UserStore) update(ctx context.Context, operation, id string, filter, update bson.D) error {
	res, err := s.coll.UpdateOne(ctx, filter, update)
	if err != nil {
		return oops.Code("USER_STORE_FAILED").
			With("operation", operation).
			With("id", id).
			Wrap(err)
	}
	if res.MatchedCount == 0 {
		return oops.Code("USER_STORE_NOT_FOUND").With("id", id).Wrap(auth.ErrNotFound)
	}
	return nil
}

func idFilter(id string) (bson.D, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, oops.Code("USER_STORE_NOT_FOUND").With("id", id).Wrap(auth.ErrNotFound)
	}
	return bson.D{{Key: "_id", Value: oid}}, nil
}
