// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 GymCRM Contributors

// Package postgres implements auth.UserRepository on PostgreSQL.
package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/gymcrm/gymcrm/internal/auth"
)

// querier is satisfied by both the pool and a transaction.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Pool is the subset of *pgxpool.Pool the repository uses. pgxmock's pool
// satisfies it in tests.
type Pool interface {
	querier
	Begin(ctx context.Context) (pgx.Tx, error)
}

const selectUser = `
	SELECT id, username, first_name, last_name, password_hash, is_active,
	       failed_login_attempts, lock_until, created_at, updated_at
	FROM users
	WHERE username = $1`

// UserRepository implements auth.UserRepository using PostgreSQL.
type UserRepository struct {
	pool Pool
}

// NewUserRepository creates a new UserRepository.
func NewUserRepository(pool Pool) *UserRepository {
	return &UserRepository{pool: pool}
}

// GetByUsername retrieves a user by exact username.
func (r *UserRepository) GetByUsername(ctx context.Context, username string) (*auth.User, error) {
	user, err := scanUser(r.pool.QueryRow(ctx, selectUser, username))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, notFound(username)
	}
	if err != nil {
		return nil, oops.Code("USER_GET_FAILED").
			With("operation", "get user by username").
			With("username", username).
			Wrap(err)
	}
	return user, nil
}

// Create stores a new user.
func (r *UserRepository) Create(ctx context.Context, user *auth.User) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO users (
			id, username, first_name, last_name, password_hash, is_active,
			failed_login_attempts, lock_until, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`,
		user.ID.String(),
		user.Username,
		user.FirstName,
		user.LastName,
		user.PasswordHash,
		user.IsActive,
		user.FailedLoginAttempts,
		user.LockUntil,
		user.CreatedAt,
		user.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return oops.Code("USER_CREATE_CONFLICT").
				With("username", user.Username).
				Wrap(auth.ErrUsernameTaken)
		}
		return oops.Code("USER_CREATE_FAILED").
			With("operation", "insert user").
			With("username", user.Username).
			Wrap(err)
	}
	return nil
}

// Update overwrites an existing user.
func (r *UserRepository) Update(ctx context.Context, user *auth.User) error {
	return update(ctx, r.pool, user)
}

// Modify loads the row with SELECT ... FOR UPDATE inside a transaction, so
// concurrent modifications of one username queue on the row lock.
func (r *UserRepository) Modify(ctx context.Context, username string, fn auth.ModifyFunc) (err error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return oops.Code("USER_MODIFY_FAILED").
			With("operation", "begin transaction").
			With("username", username).
			Wrap(err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback(ctx) //nolint:errcheck // panic takes precedence
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback(ctx) //nolint:errcheck // original error takes precedence
		}
	}()

	user, err := scanUser(tx.QueryRow(ctx, selectUser+" FOR UPDATE", username))
	if errors.Is(err, pgx.ErrNoRows) {
		return notFound(username)
	}
	if err != nil {
		return oops.Code("USER_MODIFY_FAILED").
			With("operation", "lock user row").
			With("username", username).
			Wrap(err)
	}

	changed, err := fn(user)
	if err != nil {
		return err
	}
	if changed {
		if err = update(ctx, tx, user); err != nil {
			return err
		}
	}

	if err = tx.Commit(ctx); err != nil {
		return oops.Code("USER_MODIFY_FAILED").
			With("operation", "commit").
			With("username", username).
			Wrap(err)
	}
	return nil
}

func update(ctx context.Context, q querier, user *auth.User) error {
	result, err := q.Exec(ctx, `
		UPDATE users SET
			first_name = $2, last_name = $3, password_hash = $4, is_active = $5,
			failed_login_attempts = $6, lock_until = $7, updated_at = $8
		WHERE username = $1
	`,
		user.Username,
		user.FirstName,
		user.LastName,
		user.PasswordHash,
		user.IsActive,
		user.FailedLoginAttempts,
		user.LockUntil,
		user.UpdatedAt,
	)
	if err != nil {
		return oops.Code("USER_UPDATE_FAILED").
			With("operation", "update user").
			With("username", user.Username).
			Wrap(err)
	}
	if result.RowsAffected() == 0 {
		return notFound(user.Username)
	}
	return nil
}

func notFound(username string) error {
	return oops.Code("USER_NOT_FOUND").
		With("username", username).
		Wrap(auth.ErrNotFound)
}

func scanUser(row pgx.Row) (*auth.User, error) {
	var (
		u         auth.User
		idStr     string
		lockUntil *time.Time
	)
	if err := row.Scan(
		&idStr,
		&u.Username,
		&u.FirstName,
		&u.LastName,
		&u.PasswordHash,
		&u.IsActive,
		&u.FailedLoginAttempts,
		&lockUntil,
		&u.CreatedAt,
		&u.UpdatedAt,
	); err != nil {
		return nil, err //nolint:wrapcheck // callers wrap with operation context
	}

	id, err := ulid.Parse(idStr)
	if err != nil {
		return nil, oops.Code("USER_INVALID_ID").With("id", idStr).Wrap(err)
	}
	u.ID = id
	u.LockUntil = lockUntil
	return &u, nil
}

var _ auth.UserRepository = (*UserRepository)(nil)
