package identity

import (
	"context"
	"errors"
	"testing"
	"time"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	tokens, err := NewTokens("test-secret", time.Hour)
	if err != nil {
		t.Fatalf("NewTokens: %v", err)
	}
	svc, err := NewService(NewMemoryAccounts(), tokens)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return svc
}

func TestCreateSignInSignOut(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	c := svc.NewContext("secondary")

	uid, err := c.CreateAccount(ctx, "Staff@Example.com", "hunter22")
	if err != nil {
		t.Fatalf("CreateAccount: %v", err)
	}
	if got, ok := c.CurrentUser(); !ok || got != uid {
		t.Fatalf("expected session for %s, got %q ok=%v", uid, got, ok)
	}
	if err := c.SignOut(ctx); err != nil {
		t.Fatal(err)
	}
	if _, ok := c.CurrentUser(); ok {
		t.Fatal("expected signed out")
	}

	again, err := c.SignIn(ctx, "staff@example.com", "hunter22")
	if err != nil {
		t.Fatalf("SignIn: %v", err)
	}
	if again != uid {
		t.Fatalf("sign-in resolved %s, want %s", again, uid)
	}
}

func TestErrorCodes(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	c := svc.NewContext("")

	if _, err := c.CreateAccount(ctx, "a@example.com", "secret1"); err != nil {
		t.Fatal(err)
	}

	cases := []struct {
		name string
		call func() error
		want Code
	}{
		{"duplicate", func() error { _, err := c.CreateAccount(ctx, "a@example.com", "secret1"); return err }, CodeEmailExists},
		{"wrong secret", func() error { _, err := c.SignIn(ctx, "a@example.com", "other-secret"); return err }, CodeCredentialMismatch},
		{"unknown user", func() error { _, err := c.SignIn(ctx, "b@example.com", "secret1"); return err }, CodeUserNotFound},
		{"weak secret", func() error { _, err := c.CreateAccount(ctx, "c@example.com", "123"); return err }, CodeWeakSecret},
		{"invalid email", func() error { _, err := c.CreateAccount(ctx, "not-an-email", "secret1"); return err }, CodeInvalidEmail},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.call()
			if err == nil {
				t.Fatal("expected error")
			}
			if got := CodeOf(err); got != tc.want {
				t.Fatalf("CodeOf(%v) = %s, want %s", err, got, tc.want)
			}
			var ie *Error
			if !errors.As(err, &ie) {
				t.Fatalf("expected *Error, got %T", err)
			}
		})
	}
}

func TestContextsAreIsolated(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	primary := svc.Primary()
	operator, err := primary.CreateAccount(ctx, "operator@example.com", "operator-secret")
	if err != nil {
		t.Fatal(err)
	}

	secondary := svc.NewContext("seed")
	if _, err := secondary.CreateAccount(ctx, "demo@example.com", "demo-secret"); err != nil {
		t.Fatal(err)
	}
	if err := secondary.SignOut(ctx); err != nil {
		t.Fatal(err)
	}

	if got, ok := primary.CurrentUser(); !ok || got != operator {
		t.Fatalf("primary session disturbed: %q ok=%v", got, ok)
	}
	if svc.Primary() != primary {
		t.Fatal("Primary must be stable")
	}
}

func TestAuthenticate(t *testing.T) {
	svc := newTestService(t)
	c := svc.NewContext("x")
	uid, err := c.CreateAccount(context.Background(), "x@example.com", "secret-x")
	if err != nil {
		t.Fatal(err)
	}
	sub, err := svc.Authenticate(c.Token())
	if err != nil || sub != uid {
		t.Fatalf("Authenticate = %q, %v", sub, err)
	}
	if _, err := svc.Authenticate("garbage"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestExpiredSessionIsSignedOut(t *testing.T) {
	tokens, err := NewTokens("test-secret", time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	now := time.Now()
	tokens.now = func() time.Time { return now }
	svc, err := NewService(NewMemoryAccounts(), tokens)
	if err != nil {
		t.Fatal(err)
	}
	c := svc.NewContext("x")
	if _, err := c.CreateAccount(context.Background(), "x@example.com", "secret-x"); err != nil {
		t.Fatal(err)
	}
	tokens.now = func() time.Time { return now.Add(2 * time.Minute) }
	if _, ok := c.CurrentUser(); ok {
		t.Fatal("expired session must not count as signed in")
	}
}
