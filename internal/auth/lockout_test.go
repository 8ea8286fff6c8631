// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 GymCRM Contributors

package auth_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gymcrm/gymcrm/internal/auth"
	"github.com/gymcrm/gymcrm/pkg/errutil"
)

var t0 = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

func TestDefaultLockoutPolicy(t *testing.T) {
	p := auth.DefaultLockoutPolicy()
	assert.Equal(t, 3, p.Threshold)
	assert.Equal(t, 5*time.Minute, p.Duration)
	assert.NoError(t, p.Validate())
}

func TestLockoutPolicy_Validate(t *testing.T) {
	tests := []struct {
		name   string
		policy auth.LockoutPolicy
	}{
		{"zero threshold", auth.LockoutPolicy{Threshold: 0, Duration: time.Minute}},
		{"zero duration", auth.LockoutPolicy{Threshold: 3, Duration: 0}},
		{"negative duration", auth.LockoutPolicy{Threshold: 3, Duration: -time.Second}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.policy.Validate()
			require.Error(t, err)
			errutil.AssertErrorCode(t, err, "AUTH_INVALID_POLICY")
		})
	}
}

func TestLockoutPolicy_RecordFailure(t *testing.T) {
	p := auth.DefaultLockoutPolicy()
	u := &auth.User{IsActive: true}

	assert.False(t, p.RecordFailure(u, t0))
	assert.Equal(t, 1, u.FailedLoginAttempts)
	assert.Nil(t, u.LockUntil)

	assert.False(t, p.RecordFailure(u, t0.Add(time.Second)))
	assert.Nil(t, u.LockUntil)

	failAt := t0.Add(2 * time.Second)
	assert.True(t, p.RecordFailure(u, failAt))
	assert.Equal(t, 3, u.FailedLoginAttempts)
	require.NotNil(t, u.LockUntil)
	assert.Equal(t, failAt.Add(5*time.Minute), *u.LockUntil)
	assert.Equal(t, auth.StateActiveLocked, u.State(failAt))
}

func TestLockoutPolicy_ClearExpired(t *testing.T) {
	p := auth.DefaultLockoutPolicy()

	t.Run("no lock", func(t *testing.T) {
		u := &auth.User{FailedLoginAttempts: 2}
		assert.False(t, p.ClearExpired(u, t0))
		assert.Equal(t, 2, u.FailedLoginAttempts)
	})

	t.Run("lock still active", func(t *testing.T) {
		until := t0.Add(time.Minute)
		u := &auth.User{FailedLoginAttempts: 3, LockUntil: &until}
		assert.False(t, p.ClearExpired(u, t0))
		assert.NotNil(t, u.LockUntil)
	})

	t.Run("lock expired exactly now", func(t *testing.T) {
		until := t0
		u := &auth.User{FailedLoginAttempts: 3, LockUntil: &until}
		assert.True(t, p.ClearExpired(u, t0))
		assert.Nil(t, u.LockUntil)
		assert.Zero(t, u.FailedLoginAttempts)
	})
}

func TestLockoutPolicy_RecordSuccess(t *testing.T) {
	p := auth.DefaultLockoutPolicy()

	t.Run("clean user is unchanged", func(t *testing.T) {
		u := &auth.User{}
		assert.False(t, p.RecordSuccess(u))
	})

	t.Run("resets counter", func(t *testing.T) {
		u := &auth.User{FailedLoginAttempts: 2}
		assert.True(t, p.RecordSuccess(u))
		assert.Zero(t, u.FailedLoginAttempts)
	})
}

func TestIsLockedAt(t *testing.T) {
	past := t0.Add(-time.Second)
	future := t0.Add(time.Second)

	assert.False(t, auth.IsLockedAt(nil, t0))
	assert.False(t, auth.IsLockedAt(&past, t0))
	assert.False(t, auth.IsLockedAt(&t0, t0))
	assert.True(t, auth.IsLockedAt(&future, t0))
}
