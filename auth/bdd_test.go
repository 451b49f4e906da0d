package auth

import (
	"context"
	"testing"

	"github.com/smartystreets/goconvey/convey"
)

func TestRegisterNewAccount(t *testing.T) {
	convey.Convey("Given a new user alice with email and password", t, func() {
		accounts := NewAccountRepository()
		svc := newTestService(t, accounts)
		ctx := context.Background()

		convey.Convey("When alice registers", func() {
			g, err := svc.Register(ctx, aliceRequest())
			convey.So(err, convey.ShouldBeNil)

			convey.Convey("Then she receives a token and a well-formed id", func() {
				convey.So(g.Token, convey.ShouldNotBeEmpty)
				convey.So(isValidID(string(g.ID)), convey.ShouldBeTrue)
			})

			convey.Convey("Then her account is stored with a derived public id", func() {
				acc, err := accounts.FindByName(ctx, "alice")
				convey.So(err, convey.ShouldBeNil)
				convey.So(acc.ID, convey.ShouldEqual, g.ID)
				convey.So(acc.PublicID, convey.ShouldEqual, DerivePublicID(g.ID))
				convey.So(acc.Credentials.Password, convey.ShouldNotEqual, "s3cret")
			})

			convey.Convey("And someone registers the same email again", func() {
				_, err := svc.Register(ctx, RegisterRequest{Username: "mallory", Email: "a@x.io", Password: "pw"})

				convey.Convey("Then the registration is refused", func() {
					convey.So(err, convey.ShouldEqual, ErrAccountExists)
				})
			})
		})
	})
}

func TestLoginAccount(t *testing.T) {
	convey.Convey("Given an existing account alice", t, func() {
		svc := newTestService(t, NewAccountRepository())
		ctx := context.Background()
		registered, err := svc.Register(ctx, aliceRequest())
		convey.So(err, convey.ShouldBeNil)

		convey.Convey("When alice logs in with the correct password", func() {
			g, err := svc.Login(ctx, LoginRequest{Username: "alice", Password: "s3cret"})

			convey.Convey("Then she gets back the token issued at registration", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(g, convey.ShouldResemble, registered)
			})
		})

		convey.Convey("When alice logs in with the wrong password", func() {
			g, err := svc.Login(ctx, LoginRequest{Username: "alice", Password: "wrong"})

			convey.Convey("Then she is refused without a token", func() {
				convey.So(err, convey.ShouldEqual, ErrInvalidCredentials)
				convey.So(g.Token, convey.ShouldBeEmpty)
			})
		})
	})
}
