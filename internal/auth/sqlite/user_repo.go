// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 GymCRM Contributors

// Package sqlite implements auth.UserRepository on an embedded SQLite
// database. All access goes through a single connection.
package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/gymcrm/gymcrm/internal/auth"
)

//go:embed schema.sql
var schema string

// Open opens (creating if needed) the database at path and applies the
// schema. Use ":memory:" for a throwaway database. Transactions start with
// BEGIN IMMEDIATE so writers in other processes queue on the busy timeout
// instead of failing on lock upgrade.
func Open(ctx context.Context, path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)&_txlock=immediate")
	if err != nil {
		return nil, oops.Code("SQLITE_OPEN_FAILED").With("path", path).Wrap(err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, oops.Code("SQLITE_SCHEMA_FAILED").With("path", path).Wrap(err)
	}
	return db, nil
}

const selectUser = `
	SELECT id, username, first_name, last_name, password_hash, is_active,
	       failed_login_attempts, lock_until, created_at, updated_at
	FROM users
	WHERE username = ?`

type execQuerier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// UserRepository implements auth.UserRepository on database/sql.
type UserRepository struct {
	db *sql.DB
}

// NewUserRepository creates a new UserRepository over a database returned
// by Open.
func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db: db}
}

// GetByUsername retrieves a user by exact username.
func (r *UserRepository) GetByUsername(ctx context.Context, username string) (*auth.User, error) {
	u, err := scanUser(r.db.QueryRowContext(ctx, selectUser, username))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound(username)
	}
	if err != nil {
		return nil, oops.Code("USER_GET_FAILED").With("username", username).Wrap(err)
	}
	return u, nil
}

// Create stores a new user.
func (r *UserRepository) Create(ctx context.Context, user *auth.User) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO users (
			id, username, first_name, last_name, password_hash, is_active,
			failed_login_attempts, lock_until, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		user.ID.String(),
		user.Username,
		user.FirstName,
		user.LastName,
		user.PasswordHash,
		user.IsActive,
		user.FailedLoginAttempts,
		formatLock(user.LockUntil),
		formatTime(user.CreatedAt),
		formatTime(user.UpdatedAt),
	)
	if err != nil {
		var sqliteErr *sqlite.Error
		if errors.As(err, &sqliteErr) && isUniqueViolation(sqliteErr.Code()) {
			return oops.Code("USER_CREATE_CONFLICT").
				With("username", user.Username).
				Wrap(auth.ErrUsernameTaken)
		}
		return oops.Code("USER_CREATE_FAILED").With("username", user.Username).Wrap(err)
	}
	return nil
}

// Update overwrites an existing user.
func (r *UserRepository) Update(ctx context.Context, user *auth.User) error {
	return update(ctx, r.db, user)
}

// Modify reads, applies fn and writes back inside one immediate
// transaction, which holds the database write lock from the first read.
func (r *UserRepository) Modify(ctx context.Context, username string, fn auth.ModifyFunc) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return oops.Code("USER_MODIFY_FAILED").With("username", username).Wrap(err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback() //nolint:errcheck // original error takes precedence
		}
	}()

	user, err := scanUser(tx.QueryRowContext(ctx, selectUser, username))
	if errors.Is(err, sql.ErrNoRows) {
		return notFound(username)
	}
	if err != nil {
		return oops.Code("USER_MODIFY_FAILED").With("username", username).Wrap(err)
	}

	changed, err := fn(user)
	if err != nil {
		return err
	}
	if changed {
		if err := update(ctx, tx, user); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return oops.Code("USER_MODIFY_FAILED").
			With("operation", "commit").
			With("username", username).
			Wrap(err)
	}
	committed = true
	return nil
}

func update(ctx context.Context, q execQuerier, user *auth.User) error {
	res, err := q.ExecContext(ctx, `
		UPDATE users SET
			first_name = ?, last_name = ?, password_hash = ?, is_active = ?,
			failed_login_attempts = ?, lock_until = ?, updated_at = ?
		WHERE username = ?`,
		user.FirstName,
		user.LastName,
		user.PasswordHash,
		user.IsActive,
		user.FailedLoginAttempts,
		formatLock(user.LockUntil),
		formatTime(user.UpdatedAt),
		user.Username,
	)
	if err != nil {
		return oops.Code("USER_UPDATE_FAILED").With("username", user.Username).Wrap(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return oops.Code("USER_UPDATE_FAILED").With("username", user.Username).Wrap(err)
	}
	if n == 0 {
		return notFound(user.Username)
	}
	return nil
}

// isUniqueViolation accepts the primary code too, for connections without
// extended result codes.
func isUniqueViolation(code int) bool {
	return code == sqlite3.SQLITE_CONSTRAINT_UNIQUE || code == sqlite3.SQLITE_CONSTRAINT
}

func notFound(username string) error {
	return oops.Code("USER_NOT_FOUND").
		With("username", username).
		Wrap(auth.ErrNotFound)
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func formatLock(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}

func scanUser(row *sql.Row) (*auth.User, error) {
	var (
		u                    auth.User
		id, created, updated string
		lock                 sql.NullString
	)
	if err := row.Scan(
		&id,
		&u.Username,
		&u.FirstName,
		&u.LastName,
		&u.PasswordHash,
		&u.IsActive,
		&u.FailedLoginAttempts,
		&lock,
		&created,
		&updated,
	); err != nil {
		return nil, err //nolint:wrapcheck // callers wrap with operation context
	}

	var err error
	if u.ID, err = ulid.Parse(id); err != nil {
		return nil, oops.Code("USER_DECODE_FAILED").With("field", "id").Wrap(err)
	}
	if u.CreatedAt, err = time.Parse(time.RFC3339Nano, created); err != nil {
		return nil, oops.Code("USER_DECODE_FAILED").With("field", "created_at").Wrap(err)
	}
	if u.UpdatedAt, err = time.Parse(time.RFC3339Nano, updated); err != nil {
		return nil, oops.Code("USER_DECODE_FAILED").With("field", "updated_at").Wrap(err)
	}
	if lock.Valid {
		t, err := time.Parse(time.RFC3339Nano, lock.String)
		if err != nil {
			return nil, oops.Code("USER_DECODE_FAILED").With("field", "lock_until").Wrap(err)
		}
		u.LockUntil = &t
	}
	return &u, nil
}

var _ auth.UserRepository = (*UserRepository)(nil)
