// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 GymCRM Contributors

// Package redis implements auth.UserRepository on Redis. Each user is a hash
// under KeyPrefix+username.
package redis

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/oklog/ulid/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"

	"github.com/gymcrm/gymcrm/internal/auth"
)

// KeyPrefix namespaces user hashes.
const KeyPrefix = "gymcrm:user:"

// DefaultModifyRetries bounds optimistic retries of Modify under contention.
const DefaultModifyRetries = 100

// createScript inserts the hash only if the key is absent.
var createScript = goredis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 1 then
  return 0
end
redis.call('HSET', KEYS[1], unpack(ARGV))
return 1
`)

// updateScript overwrites the hash only if the key exists.
var updateScript = goredis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
  return 0
end
redis.call('HSET', KEYS[1], unpack(ARGV))
return 1
`)

// NewClient returns a client for redisURL (redis://host:port/db) after a
// successful ping.
func NewClient(ctx context.Context, redisURL string) (*goredis.Client, error) {
	if redisURL == "" {
		return nil, oops.Code("REDIS_URL_MISSING").Errorf("redis URL is required")
	}
	opts, err := goredis.ParseURL(redisURL)
	if err != nil {
		return nil, oops.Code("REDIS_URL_INVALID").Wrap(err)
	}

	client := goredis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, oops.Code("REDIS_CONNECT_FAILED").With("addr", opts.Addr).Wrap(err)
	}
	return client, nil
}

// UserRepository implements auth.UserRepository on a go-redis client.
type UserRepository struct {
	client  goredis.UniversalClient
	retries uint64
}

// NewUserRepository creates a new UserRepository.
func NewUserRepository(client goredis.UniversalClient) *UserRepository {
	return &UserRepository{client: client, retries: DefaultModifyRetries}
}

func key(username string) string {
	return KeyPrefix + username
}

// GetByUsername retrieves a user by exact username.
func (r *UserRepository) GetByUsername(ctx context.Context, username string) (*auth.User, error) {
	fields, err := r.client.HGetAll(ctx, key(username)).Result()
	if err != nil {
		return nil, oops.Code("USER_GET_FAILED").With("username", username).Wrap(err)
	}
	if len(fields) == 0 {
		return nil, notFound(username)
	}
	return decode(fields)
}

// Create stores a new user.
func (r *UserRepository) Create(ctx context.Context, user *auth.User) error {
	created, err := createScript.Run(ctx, r.client, []string{key(user.Username)}, encode(user)...).Int()
	if err != nil {
		return oops.Code("USER_CREATE_FAILED").With("username", user.Username).Wrap(err)
	}
	if created == 0 {
		return oops.Code("USER_CREATE_CONFLICT").
			With("username", user.Username).
			Wrap(auth.ErrUsernameTaken)
	}
	return nil
}

// Update overwrites an existing user.
func (r *UserRepository) Update(ctx context.Context, user *auth.User) error {
	updated, err := updateScript.Run(ctx, r.client, []string{key(user.Username)}, encode(user)...).Int()
	if err != nil {
		return oops.Code("USER_UPDATE_FAILED").With("username", user.Username).Wrap(err)
	}
	if updated == 0 {
		return notFound(user.Username)
	}
	return nil
}

// Modify runs fn under WATCH on the user's key. If another writer touches
// the key before EXEC the transaction aborts and fn runs again on fresh data.
func (r *UserRepository) Modify(ctx context.Context, username string, fn auth.ModifyFunc) error {
	k := key(username)
	txn := func(tx *goredis.Tx) error {
		fields, err := tx.HGetAll(ctx, k).Result()
		if err != nil {
			return oops.Code("USER_MODIFY_FAILED").With("username", username).Wrap(err)
		}
		if len(fields) == 0 {
			return notFound(username)
		}
		user, err := decode(fields)
		if err != nil {
			return err
		}

		changed, err := fn(user)
		if err != nil || !changed {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
			pipe.HSet(ctx, k, encode(user)...)
			return nil
		})
		return err //nolint:wrapcheck // TxFailedErr is inspected by the retry loop
	}

	backoff := retry.WithMaxRetries(r.retries, retry.WithJitterPercent(50, retry.NewConstant(time.Millisecond)))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := r.client.Watch(ctx, txn, k)
		if errors.Is(err, goredis.TxFailedErr) {
			return retry.RetryableError(err)
		}
		return err
	})
	if errors.Is(err, goredis.TxFailedErr) {
		return oops.Code("USER_MODIFY_CONFLICT").
			With("username", username).
			With("retries", r.retries).
			Wrap(err)
	}
	return err //nolint:wrapcheck // fn errors are returned unchanged
}

func notFound(username string) error {
	return oops.Code("USER_NOT_FOUND").
		With("username", username).
		Wrap(auth.ErrNotFound)
}

const (
	fieldID        = "id"
	fieldUsername  = "username"
	fieldFirstName = "first_name"
	fieldLastName  = "last_name"
	fieldHash      = "password_hash"
	fieldActive    = "is_active"
	fieldAttempts  = "failed_login_attempts"
	fieldLockUntil = "lock_until"
	fieldCreatedAt = "created_at"
	fieldUpdatedAt = "updated_at"
)

// encode flattens a user into HSET field/value pairs. An absent lock is
// stored as an empty string.
func encode(u *auth.User) []any {
	lock := ""
	if u.LockUntil != nil {
		lock = u.LockUntil.UTC().Format(time.RFC3339Nano)
	}
	return []any{
		fieldID, u.ID.String(),
		fieldUsername, u.Username,
		fieldFirstName, u.FirstName,
		fieldLastName, u.LastName,
		fieldHash, u.PasswordHash,
		fieldActive, strconv.FormatBool(u.IsActive),
		fieldAttempts, strconv.Itoa(u.FailedLoginAttempts),
		fieldLockUntil, lock,
		fieldCreatedAt, u.CreatedAt.UTC().Format(time.RFC3339Nano),
		fieldUpdatedAt, u.UpdatedAt.UTC().Format(time.RFC3339Nano),
	}
}

func decode(f map[string]string) (*auth.User, error) {
	corrupt := func(field string, err error) error {
		return oops.Code("USER_DECODE_FAILED").
			With("username", f[fieldUsername]).
			With("field", field).
			Wrap(err)
	}

	id, err := ulid.Parse(f[fieldID])
	if err != nil {
		return nil, corrupt(fieldID, err)
	}
	active, err := strconv.ParseBool(f[fieldActive])
	if err != nil {
		return nil, corrupt(fieldActive, err)
	}
	attempts, err := strconv.Atoi(f[fieldAttempts])
	if err != nil {
		return nil, corrupt(fieldAttempts, err)
	}
	createdAt, err := time.Parse(time.RFC3339Nano, f[fieldCreatedAt])
	if err != nil {
		return nil, corrupt(fieldCreatedAt, err)
	}
	updatedAt, err := time.Parse(time.RFC3339Nano, f[fieldUpdatedAt])
	if err != nil {
		return nil, corrupt(fieldUpdatedAt, err)
	}

	u := &auth.User{
		ID:                  id,
		Username:            f[fieldUsername],
		FirstName:           f[fieldFirstName],
		LastName:            f[fieldLastName],
		PasswordHash:        f[fieldHash],
		IsActive:            active,
		FailedLoginAttempts: attempts,
		CreatedAt:           createdAt,
		UpdatedAt:           updatedAt,
	}
	if raw := f[fieldLockUntil]; raw != "" {
		lock, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			return nil, corrupt(fieldLockUntil, err)
		}
		u.LockUntil = &lock
	}
	return u, nil
}

var _ auth.UserRepository = (*UserRepository)(nil)
