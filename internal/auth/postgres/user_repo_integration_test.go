// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 GymCRM Contributors

//go:build integration

package postgres_test

import (
	"context"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention

	"github.com/gymcrm/gymcrm/internal/auth"
	"github.com/gymcrm/gymcrm/internal/auth/postgres"
)

var _ = Describe("UserRepository", func() {
	var (
		ctx  context.Context
		repo *postgres.UserRepository
		now  time.Time
	)

	BeforeEach(func() {
		ctx = context.Background()
		repo = postgres.NewUserRepository(testPool)
		now = time.Now().UTC().Truncate(time.Microsecond)
		_, err := testPool.Exec(ctx, `DELETE FROM users`)
		Expect(err).NotTo(HaveOccurred())
	})

	create := func(username string) *auth.User {
		u, err := auth.NewUser(username, "John", "Doe", "$argon2id$hash", now)
		Expect(err).NotTo(HaveOccurred())
		Expect(repo.Create(ctx, u)).To(Succeed())
		return u
	}

	It("round-trips a user", func() {
		u := create("jdoe")

		got, err := repo.GetByUsername(ctx, "jdoe")
		Expect(err).NotTo(HaveOccurred())
		Expect(got.ID).To(Equal(u.ID))
		Expect(got.FirstName).To(Equal("John"))
		Expect(got.IsActive).To(BeTrue())
		Expect(got.LockUntil).To(BeNil())
		Expect(got.CreatedAt).To(BeTemporally("==", now))
	})

	It("rejects a duplicate username", func() {
		create("jdoe")
		u, err := auth.NewUser("jdoe", "Jane", "Doe", "$argon2id$other", now)
		Expect(err).NotTo(HaveOccurred())
		Expect(repo.Create(ctx, u)).To(MatchError(auth.ErrUsernameTaken))
	})

	It("reports missing users", func() {
		_, err := repo.GetByUsername(ctx, "ghost")
		Expect(err).To(MatchError(auth.ErrNotFound))
	})

	It("persists a lock through Modify", func() {
		create("jdoe")
		until := now.Add(5 * time.Minute)

		Expect(repo.Modify(ctx, "jdoe", func(u *auth.User) (bool, error) {
			u.FailedLoginAttempts = 3
			u.LockUntil = &until
			return true, nil
		})).To(Succeed())

		got, err := repo.GetByUsername(ctx, "jdoe")
		Expect(err).NotTo(HaveOccurred())
		Expect(got.FailedLoginAttempts).To(Equal(3))
		Expect(got.LockUntil).NotTo(BeNil())
		Expect(*got.LockUntil).To(BeTemporally("==", until))
	})

	It("serializes concurrent Modify calls on the row lock", func() {
		create("jdoe")

		const n = 20
		var wg sync.WaitGroup
		for range n {
			wg.Add(1)
			go func() {
				defer GinkgoRecover()
				defer wg.Done()
				Expect(repo.Modify(ctx, "jdoe", func(u *auth.User) (bool, error) {
					u.FailedLoginAttempts++
					return true, nil
				})).To(Succeed())
			}()
		}
		wg.Wait()

		got, err := repo.GetByUsername(ctx, "jdoe")
		Expect(err).NotTo(HaveOccurred())
		Expect(got.FailedLoginAttempts).To(Equal(n))
	})
})
