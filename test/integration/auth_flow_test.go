// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 GymCRM Contributors

//go:build integration

package integration

import (
	"context"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	authgrpc "github.com/gymcrm/gymcrm/internal/grpc"
)

func codeOf(err error) codes.Code {
	return status.Code(err)
}

var _ = Describe("Auth service over PostgreSQL", func() {
	var ctx context.Context

	BeforeEach(func() {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(context.Background(), 30*time.Second)
		DeferCleanup(cancel)
	})

	register := func(first, last string) *authgrpc.RegisterResponse {
		resp, err := env.client.Register(ctx, &authgrpc.RegisterRequest{FirstName: first, LastName: last})
		Expect(err).NotTo(HaveOccurred())
		return resp
	}

	login := func(username, password string) (*authgrpc.LoginResponse, error) {
		return env.client.Login(ctx, &authgrpc.LoginRequest{Username: username, Password: password})
	}

	It("registers, logs in and identifies the caller", func() {
		creds := register("Ada", "Lovelace")
		Expect(creds.Username).To(HavePrefix("alovelace"))

		resp, err := login(creds.Username, creds.Password)
		Expect(err).NotTo(HaveOccurred())
		Expect(resp.ExpiresAt).To(BeTemporally(">", time.Now()))

		who, err := env.client.WhoAmI(authgrpc.WithBearer(ctx, resp.Token))
		Expect(err).NotTo(HaveOccurred())
		Expect(who).To(Equal(creds.Username))
		Expect(env.client.Logout(authgrpc.WithBearer(ctx, resp.Token))).To(Succeed())
	})

	It("gives colliding names distinct usernames", func() {
		first := register("Grace", "Hopper")
		second := register("Grace", "Hopper")
		Expect(second.Username).NotTo(Equal(first.Username))
		Expect(second.Username).To(HavePrefix(first.Username))
	})

	It("issues unique usernames under concurrent registration", func() {
		const n = 8
		names := make(chan string, n)
		var wg sync.WaitGroup
		for range n {
			wg.Add(1)
			go func() {
				defer GinkgoRecover()
				defer wg.Done()
				resp, err := env.client.Register(ctx, &authgrpc.RegisterRequest{FirstName: "Alan", LastName: "Turing"})
				Expect(err).NotTo(HaveOccurred())
				names <- resp.Username
			}()
		}
		wg.Wait()
		close(names)

		seen := map[string]bool{}
		for name := range names {
			Expect(seen).NotTo(HaveKey(name))
			seen[name] = true
		}
		Expect(seen).To(HaveLen(n))
	})

	It("locks the account after repeated failures", func() {
		creds := register("Edsger", "Dijkstra")

		for range 3 {
			_, err := login(creds.Username, "wrong")
			Expect(codeOf(err)).To(Equal(codes.Unauthenticated))
		}

		_, err := login(creds.Username, creds.Password)
		Expect(codeOf(err)).To(Equal(codes.FailedPrecondition))
		Expect(status.Convert(err).Message()).To(Equal("account locked"))
	})

	It("changes the caller's own password", func() {
		creds := register("Barbara", "Liskov")
		resp, err := login(creds.Username, creds.Password)
		Expect(err).NotTo(HaveOccurred())
		authed := authgrpc.WithBearer(ctx, resp.Token)

		Expect(env.client.ChangePassword(authed, &authgrpc.ChangePasswordRequest{
			Username: creds.Username, OldPassword: creds.Password, NewPassword: "Substitut10n!",
		})).To(Succeed())

		_, err = login(creds.Username, creds.Password)
		Expect(codeOf(err)).To(Equal(codes.Unauthenticated))
		_, err = login(creds.Username, "Substitut10n!")
		Expect(err).NotTo(HaveOccurred())

		other := register("Donald", "Knuth")
		err = env.client.ChangePassword(authed, &authgrpc.ChangePasswordRequest{
			Username: other.Username, OldPassword: other.Password, NewPassword: "nope",
		})
		Expect(codeOf(err)).To(Equal(codes.PermissionDenied))
	})
})
