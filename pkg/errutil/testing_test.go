// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 GymCRM Contributors

package errutil_test

import (
	"testing"

	"github.com/samber/oops"

	"github.com/gymcrm/gymcrm/pkg/errutil"
)

func TestAssertErrorCode_MatchingCode(t *testing.T) {
	err := oops.Code("AUTH_ACCOUNT_LOCKED").Errorf("account locked")
	errutil.AssertErrorCode(t, err, "AUTH_ACCOUNT_LOCKED")
}

func TestAssertErrorContext_MatchingKeyValue(t *testing.T) {
	err := oops.With("username", "jdoe").Errorf("test error")
	errutil.AssertErrorContext(t, err, "username", "jdoe")
}
