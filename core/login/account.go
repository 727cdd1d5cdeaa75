package login

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/srmgate/srmgate/core/principal"
)

// ErrAccountNotFound is returned by an AccountStore when no account is
// mapped to a principal.
var ErrAccountNotFound = errors.New("account not found")

// Account is a local user account.
type Account struct {
	Username string
	UID      int64
	GID      int64
	GIDs     []int64
	Root     string
	Home     string
	ReadOnly bool
	Disabled bool
}

// AccountStore resolves principals to accounts. A user name principal
// resolves to the account of that name; any other principal must have been
// mapped explicitly.
type AccountStore interface {
	FindAccount(ctx context.Context, p principal.Principal) (*Account, error)
}

// MemoryAccounts is an in-memory AccountStore.
type MemoryAccounts struct {
	mu       sync.RWMutex
	accounts map[string]*Account
	mappings map[principal.Principal]string
}

func NewMemoryAccounts() *MemoryAccounts {
	return &MemoryAccounts{
		accounts: make(map[string]*Account),
		mappings: make(map[principal.Principal]string),
	}
}

func (m *MemoryAccounts) SaveAccount(_ context.Context, a *Account) error {
	if a.Username == "" {
		return errors.New("login: account needs a user name")
	}
	cp := *a
	cp.GIDs = slices.Clone(a.GIDs)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.accounts[a.Username] = &cp
	return nil
}

func (m *MemoryAccounts) MapPrincipal(_ context.Context, p principal.Principal, username string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.accounts[username]; !ok {
		return fmt.Errorf("login: map %s: %w", p, ErrAccountNotFound)
	}
	m.mappings[p] = username
	return nil
}

func (m *MemoryAccounts) FindAccount(_ context.Context, p principal.Principal) (*Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	username := p.Name
	if p.Kind != principal.KindUserName {
		var ok bool
		if username, ok = m.mappings[p]; !ok {
			return nil, ErrAccountNotFound
		}
	}
	a, ok := m.accounts[username]
	if !ok {
		return nil, ErrAccountNotFound
	}
	cp := *a
	cp.GIDs = slices.Clone(a.GIDs)
	return &cp, nil
}
