package identity

import (
	"context"
	"sync"
)

// AuthContext holds at most one signed-in session. Contexts are independent:
// signing in or out of one never changes another.
type AuthContext struct {
	svc  *Service
	name string

	mu    sync.Mutex
	token string
}

// Name identifies the context in logs.
func (c *AuthContext) Name() string { return c.name }

// CreateAccount registers a new account and signs this context in as it.
func (c *AuthContext) CreateAccount(ctx context.Context, email, secret string) (string, error) {
	return c.CreateAccountWithName(ctx, email, secret, "")
}

// CreateAccountWithName is CreateAccount with a display name stored on the account.
func (c *AuthContext) CreateAccountWithName(ctx context.Context, email, secret, displayName string) (string, error) {
	acc, err := c.svc.register(ctx, email, secret, displayName)
	if err != nil {
		return "", err
	}
	if err := c.startSession(acc); err != nil {
		return "", &Error{Op: "create", Code: CodeInternal, Err: err}
	}
	return acc.UID, nil
}

// SignIn verifies credentials and replaces this context's session.
func (c *AuthContext) SignIn(ctx context.Context, email, secret string) (string, error) {
	acc, err := c.svc.verify(ctx, email, secret)
	if err != nil {
		return "", err
	}
	if err := c.startSession(acc); err != nil {
		return "", &Error{Op: "sign-in", Code: CodeInternal, Err: err}
	}
	return acc.UID, nil
}

// SignOut clears the session. Signing out a signed-out context is a no-op.
func (c *AuthContext) SignOut(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = ""
	return nil
}

// CurrentUser returns the UID of the live session, if any.
func (c *AuthContext) CurrentUser() (string, bool) {
	c.mu.Lock()
	token := c.token
	c.mu.Unlock()
	if token == "" {
		return "", false
	}
	claims, err := c.svc.tokens.Parse(token)
	if err != nil {
		return "", false
	}
	return claims.Subject, true
}

// Token returns the raw session token, empty when signed out.
func (c *AuthContext) Token() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.token
}

func (c *AuthContext) startSession(acc *Account) error {
	token, err := c.svc.tokens.Issue(acc.UID, acc.Email)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
	return nil
}
