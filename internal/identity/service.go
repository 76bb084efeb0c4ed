package identity

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"brandhub.dev/demodata/internal/ids"
)

// PrimaryContext names the operator's own authentication context.
const PrimaryContext = "primary"

// Service registers accounts and authenticates them into AuthContexts.
type Service struct {
	store   AccountStore
	tokens  *Tokens
	limiter *rate.Limiter
	now     func() time.Time

	mu      sync.Mutex
	primary *AuthContext
}

// ServiceOption configures Service behavior.
type ServiceOption func(*Service)

// WithRateLimit paces account operations across all contexts.
func WithRateLimit(perSecond float64, burst int) ServiceOption {
	return func(s *Service) {
		if perSecond > 0 && burst > 0 {
			s.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
		}
	}
}

// WithClock overrides time source (useful for tests).
func WithClock(fn func() time.Time) ServiceOption {
	return func(s *Service) {
		if fn != nil {
			s.now = fn
		}
	}
}

// NewService constructs Service with optional configuration.
func NewService(store AccountStore, tokens *Tokens, opts ...ServiceOption) (*Service, error) {
	if store == nil {
		return nil, errors.New("identity: account store is required")
	}
	if tokens == nil {
		return nil, errors.New("identity: token codec is required")
	}
	svc := &Service{
		store:   store,
		tokens:  tokens,
		limiter: rate.NewLimiter(rate.Inf, 1),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// Primary returns the process-wide operator context.
func (s *Service) Primary() *AuthContext {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.primary == nil {
		s.primary = &AuthContext{svc: s, name: PrimaryContext}
	}
	return s.primary
}

// NewContext opens an isolated context whose sessions never affect any other context.
func (s *Service) NewContext(name string) *AuthContext {
	if strings.TrimSpace(name) == "" {
		name = "secondary-" + ids.New()
	}
	return &AuthContext{svc: s, name: name}
}

// Authenticate validates a bearer session token and returns its subject.
func (s *Service) Authenticate(token string) (string, error) {
	claims, err := s.tokens.Parse(token)
	if err != nil {
		return "", err
	}
	return claims.Subject, nil
}

func (s *Service) register(ctx context.Context, email, secret, displayName string) (*Account, error) {
	email = normalizeEmail(email)
	if !validEmail(email) {
		return nil, &Error{Op: "create", Code: CodeInvalidEmail}
	}
	if len(secret) < MinSecretLength {
		return nil, &Error{Op: "create", Code: CodeWeakSecret}
	}
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, &Error{Op: "create", Code: CodeUnavailable, Err: err}
	}
	hash, err := HashSecret(secret)
	if err != nil {
		return nil, &Error{Op: "create", Code: CodeInternal, Err: err}
	}
	acc := &Account{
		UID:         ids.New(),
		Email:       email,
		SecretHash:  hash,
		DisplayName: displayName,
		CreatedAt:   s.now().UTC(),
	}
	if err := s.store.Create(ctx, acc); err != nil {
		if errors.Is(err, ErrAccountExists) {
			return nil, &Error{Op: "create", Code: CodeEmailExists, Err: err}
		}
		return nil, &Error{Op: "create", Code: CodeUnavailable, Err: err}
	}
	return acc, nil
}

func (s *Service) verify(ctx context.Context, email, secret string) (*Account, error) {
	email = normalizeEmail(email)
	if !validEmail(email) {
		return nil, &Error{Op: "sign-in", Code: CodeInvalidEmail}
	}
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, &Error{Op: "sign-in", Code: CodeUnavailable, Err: err}
	}
	acc, err := s.store.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return nil, &Error{Op: "sign-in", Code: CodeUserNotFound, Err: err}
		}
		return nil, &Error{Op: "sign-in", Code: CodeUnavailable, Err: err}
	}
	if err := VerifySecret(acc.SecretHash, secret); err != nil {
		return nil, &Error{Op: "sign-in", Code: CodeCredentialMismatch}
	}
	return acc, nil
}

func validEmail(email string) bool {
	at := strings.IndexByte(email, '@')
	return at > 0 && at < len(email)-1 && !strings.ContainsAny(email, " \t")
}
