package services_test

import (
	"context"
	"errors"
	"testing"

	"brewbar/internal/domain"
	"brewbar/internal/repos"
	"brewbar/internal/services"
)

func TestAuth_RegisterLoginLogout(t *testing.T) {
	db := memdb(t)
	ctx := context.Background()
	auth := services.NewAuthService(repos.NewUserRepo(db))

	u, err := auth.Register(ctx, "sid-1", " New@Brewbar.test ", "secret1", "New Person")
	if err != nil {
		t.Fatal(err)
	}
	if u.Email != "new@brewbar.test" || u.Role != domain.RoleCustomer || u.Hash == "secret1" {
		t.Fatalf("unexpected user %+v", u)
	}
	cur, err := auth.CurrentUser(ctx, "sid-1")
	if err != nil || cur == nil || cur.ID != u.ID {
		t.Fatalf("register should sign in: %+v %v", cur, err)
	}

	if err := auth.Logout(ctx, "sid-1"); err != nil {
		t.Fatal(err)
	}
	if cur, _ := auth.CurrentUser(ctx, "sid-1"); cur != nil {
		t.Fatal("still signed in after logout")
	}

	if _, err := auth.Login(ctx, "sid-2", "new@brewbar.test", "wrong"); !errors.Is(err, services.ErrBadCreds) {
		t.Fatalf("want ErrBadCreds, got %v", err)
	}
	if _, err := auth.Login(ctx, "sid-2", "NEW@brewbar.test", "secret1"); err != nil {
		t.Fatal(err)
	}
	if cur, _ := auth.CurrentUser(ctx, "sid-2"); cur == nil || cur.ID != u.ID {
		t.Fatal("login did not bind session")
	}
}

func TestAuth_RegisterValidation(t *testing.T) {
	db := memdb(t)
	ctx := context.Background()
	auth := services.NewAuthService(repos.NewUserRepo(db))

	cases := []struct {
		email, password, name string
		want                  error
	}{
		{"bad", "secret1", "Valid Name", services.ErrBadEmail},
		{"x@brewbar.test", "secret1", "A", services.ErrBadFullName},
		{"x@brewbar.test", "12345", "Valid Name", services.ErrBadPassword},
		{"ada@brewbar.test", "secret1", "Ada Again", services.ErrEmailTaken},
	}
	for _, tc := range cases {
		_, err := auth.Register(ctx, "sid", tc.email, tc.password, tc.name)
		if !errors.Is(err, tc.want) {
			t.Errorf("%s/%s: want %v, got %v", tc.email, tc.name, tc.want, err)
		}
		if !domain.IsValidation(err) {
			t.Errorf("registration errors are validation errors, got %T", err)
		}
	}
}

func TestAuth_SeededUserAndAnonymous(t *testing.T) {
	db := memdb(t)
	ctx := context.Background()
	auth := services.NewAuthService(repos.NewUserRepo(db))

	if u, err := auth.CurrentUser(ctx, ""); u != nil || err != nil {
		t.Fatalf("anonymous should be nil, nil: %v %v", u, err)
	}
	u, err := auth.Login(ctx, "sid", "admin@brewbar.test", "Passw0rd!")
	if err != nil {
		t.Fatal(err)
	}
	if !u.IsAdmin() {
		t.Fatal("seeded admin lacks admin role")
	}
}
