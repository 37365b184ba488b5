package httpapi

import (
	"context"
	"testing"
	"time"

	"qayd/backend/internal/domain"
	"qayd/backend/internal/store/memory"
)

func newTestAuthManager(t *testing.T, pin string) *AuthManager {
	t.Helper()
	return NewAuthManager("test-secret", time.Hour, pin, memory.NewSeeded())
}

func TestLoginIssuesParsableToken(t *testing.T) {
	auth := newTestAuthManager(t, "4321")

	resp, err := auth.Login(domain.LoginRequest{Username: "Admin", Password: "admin123"})
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if resp.Role != "admin" {
		t.Fatalf("role = %q, want admin", resp.Role)
	}

	actor, err := auth.ParseToken(resp.AccessToken)
	if err != nil {
		t.Fatalf("parse token: %v", err)
	}
	if actor.Username != "admin" || actor.Role != "admin" {
		t.Fatalf("actor = %+v", actor)
	}
}

func TestParseTokenRejectsForeignSecret(t *testing.T) {
	auth := newTestAuthManager(t, "4321")
	other := NewAuthManager("different-secret", time.Hour, "4321", memory.NewSeeded())

	resp, err := other.Login(domain.LoginRequest{Username: "admin", Password: "admin123"})
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if _, err := auth.ParseToken(resp.AccessToken); err == nil {
		t.Fatal("expected token signed with another secret to be rejected")
	}
}

func TestManagerPINValidation(t *testing.T) {
	auth := newTestAuthManager(t, "4321")

	if !auth.ValidateManagerPIN("4321") {
		t.Fatal("correct pin rejected")
	}
	if auth.ValidateManagerPIN("1234") {
		t.Fatal("wrong pin accepted")
	}
	if auth.ValidateManagerPIN("") {
		t.Fatal("empty pin accepted")
	}
}

func TestEmptyManagerPINDisablesGate(t *testing.T) {
	auth := newTestAuthManager(t, "")

	for _, pin := range []string{"", "disabled", "0000"} {
		if auth.ValidateManagerPIN(pin) {
			t.Fatalf("pin %q accepted while gate disabled", pin)
		}
	}
}

func TestCreateCashierValidation(t *testing.T) {
	auth := newTestAuthManager(t, "4321")

	if _, err := auth.CreateCashier(domain.CashierCreateRequest{Username: "ab", Password: "secret99"}); err == nil {
		t.Fatal("short username accepted")
	}
	if _, err := auth.CreateCashier(domain.CashierCreateRequest{Username: "new cashier", Password: "secret99"}); err == nil {
		t.Fatal("username with space accepted")
	}
	if _, err := auth.CreateCashier(domain.CashierCreateRequest{Username: "nadia", Password: "123"}); err == nil {
		t.Fatal("short password accepted")
	}
	if _, err := auth.CreateCashier(domain.CashierCreateRequest{Username: "cashier", Password: "secret99"}); err == nil {
		t.Fatal("duplicate username accepted")
	}

	created, err := auth.CreateCashier(domain.CashierCreateRequest{Username: "Nadia", Password: "secret99"})
	if err != nil {
		t.Fatalf("create cashier: %v", err)
	}
	if created.Username != "nadia" || created.Role != "cashier" || !created.Active {
		t.Fatalf("created = %+v", created)
	}

	if _, err := auth.Login(domain.LoginRequest{Username: "nadia", Password: "secret99"}); err != nil {
		t.Fatalf("new cashier login failed: %v", err)
	}
}

func TestListCashiersExcludesAdmins(t *testing.T) {
	auth := newTestAuthManager(t, "4321")

	for _, cashier := range auth.ListCashiers() {
		if cashier.Role != "cashier" {
			t.Fatalf("non-cashier %q in cashier list", cashier.Username)
		}
	}
}

func TestPlaintextPasswordUpgradedOnReload(t *testing.T) {
	repo := memory.NewSeeded()
	now := time.Now().UTC()
	if err := repo.CreateUser(context.Background(), domain.UserAccount{
		Username:  "legacy",
		Password:  "plainpass",
		Role:      "cashier",
		Active:    true,
		CreatedAt: now,
	}); err != nil {
		t.Fatalf("seed legacy user: %v", err)
	}

	auth := NewAuthManager("test-secret", time.Hour, "4321", repo)
	if _, err := auth.Login(domain.LoginRequest{Username: "legacy", Password: "plainpass"}); err != nil {
		t.Fatalf("legacy login failed: %v", err)
	}

	users, err := repo.ListUsers(context.Background())
	if err != nil {
		t.Fatalf("list users: %v", err)
	}
	for _, user := range users {
		if user.Username == "legacy" && !isPasswordHash(user.Password) {
			t.Fatal("legacy password was not upgraded to a hash")
		}
	}
}

func TestInactiveAccountCannotLogin(t *testing.T) {
	repo := memory.NewSeeded()
	if err := repo.CreateUser(context.Background(), domain.UserAccount{
		Username:  "parked",
		Password:  "secret99",
		Role:      "cashier",
		Active:    false,
		CreatedAt: time.Now().UTC(),
	}); err != nil {
		t.Fatalf("seed user: %v", err)
	}

	auth := NewAuthManager("test-secret", time.Hour, "4321", repo)
	if _, err := auth.Login(domain.LoginRequest{Username: "parked", Password: "secret99"}); err == nil {
		t.Fatal("inactive account logged in")
	}
}
