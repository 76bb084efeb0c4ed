package identity

import (
	"context"
	"strings"
	"sync"
	"time"
)

// AccountStore persists accounts keyed by UID with unique emails.
type AccountStore interface {
	Create(ctx context.Context, acc *Account) error
	FindByEmail(ctx context.Context, email string) (*Account, error)
}

// MemoryAccounts implements AccountStore in process memory.
type MemoryAccounts struct {
	mu      sync.RWMutex
	byEmail map[string]*Account
}

var _ AccountStore = (*MemoryAccounts)(nil)

func NewMemoryAccounts() *MemoryAccounts {
	return &MemoryAccounts{byEmail: make(map[string]*Account)}
}

func (m *MemoryAccounts) Create(ctx context.Context, acc *Account) error {
	key := normalizeEmail(acc.Email)
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byEmail[key]; ok {
		return ErrAccountExists
	}
	if acc.CreatedAt.IsZero() {
		acc.CreatedAt = time.Now().UTC()
	}
	cp := *acc
	m.byEmail[key] = &cp
	return nil
}

func (m *MemoryAccounts) FindByEmail(ctx context.Context, email string) (*Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	acc, ok := m.byEmail[normalizeEmail(email)]
	if !ok {
		return nil, ErrAccountNotFound
	}
	cp := *acc
	return &cp, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
