// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 GymCRM Contributors

// Package memory provides an in-process auth.UserRepository for tests and
// single-node development.
package memory

import (
	"context"
	"sync"

	"github.com/samber/oops"

	"github.com/gymcrm/gymcrm/internal/auth"
)

// UserRepository implements auth.UserRepository in memory.
type UserRepository struct {
	mu    sync.RWMutex
	users map[string]*auth.User
	locks map[string]*userLock
}

// userLock is a per-username mutex. refs counts the callers holding or
// waiting on it; the entry is dropped when it reaches zero.
type userLock struct {
	sync.Mutex
	refs int
}

// NewUserRepository creates an empty UserRepository.
func NewUserRepository() *UserRepository {
	return &UserRepository{
		users: make(map[string]*auth.User),
		locks: make(map[string]*userLock),
	}
}

// lock acquires the per-username mutex, creating it on first use.
func (r *UserRepository) lock(username string) *userLock {
	r.mu.Lock()
	l, ok := r.locks[username]
	if !ok {
		l = &userLock{}
		r.locks[username] = l
	}
	l.refs++
	r.mu.Unlock()

	l.Lock()
	return l
}

// unlock releases l and forgets it once no caller references it.
func (r *UserRepository) unlock(username string, l *userLock) {
	l.Unlock()

	r.mu.Lock()
	defer r.mu.Unlock()
	l.refs--
	if l.refs == 0 {
		delete(r.locks, username)
	}
}

func (r *UserRepository) load(username string) (*auth.User, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.users[username]
	if !ok {
		return nil, false
	}
	return u.Clone(), true
}

func (r *UserRepository) store(u *auth.User) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.users[u.Username] = u.Clone()
}

func notFound(username string) error {
	return oops.Code("USER_NOT_FOUND").
		With("username", username).
		Wrap(auth.ErrNotFound)
}

// GetByUsername retrieves a user by exact username.
func (r *UserRepository) GetByUsername(ctx context.Context, username string) (*auth.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, oops.Code("USER_GET_FAILED").With("username", username).Wrap(err)
	}
	u, ok := r.load(username)
	if !ok {
		return nil, notFound(username)
	}
	return u, nil
}

// Create stores a new user.
func (r *UserRepository) Create(ctx context.Context, user *auth.User) error {
	if err := ctx.Err(); err != nil {
		return oops.Code("USER_CREATE_FAILED").With("username", user.Username).Wrap(err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.users[user.Username]; exists {
		return oops.Code("USER_CREATE_CONFLICT").
			With("username", user.Username).
			Wrap(auth.ErrUsernameTaken)
	}
	r.users[user.Username] = user.Clone()
	return nil
}

// Update overwrites an existing user.
func (r *UserRepository) Update(ctx context.Context, user *auth.User) error {
	if err := ctx.Err(); err != nil {
		return oops.Code("USER_UPDATE_FAILED").With("username", user.Username).Wrap(err)
	}
	l := r.lock(user.Username)
	defer r.unlock(user.Username, l)

	if _, ok := r.load(user.Username); !ok {
		return notFound(user.Username)
	}
	r.store(user)
	return nil
}

// Modify applies fn under the username's mutex.
func (r *UserRepository) Modify(ctx context.Context, username string, fn auth.ModifyFunc) error {
	l := r.lock(username)
	defer r.unlock(username, l)

	if err := ctx.Err(); err != nil {
		return oops.Code("USER_MODIFY_FAILED").With("username", username).Wrap(err)
	}

	u, ok := r.load(username)
	if !ok {
		return notFound(username)
	}
	changed, err := fn(u)
	if err != nil {
		return err
	}
	if changed {
		r.store(u)
	}
	return nil
}

// Len returns the number of stored users.
func (r *UserRepository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.users)
}

var _ auth.UserRepository = (*UserRepository)(nil)
