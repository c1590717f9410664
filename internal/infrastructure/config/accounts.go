package config

import (
	"fmt"
	"sync"

	"github.com/erp/manufacture/internal/domain/marketplace"
)

// AccountRegistry serves the configured seller accounts
type AccountRegistry struct {
	mu       sync.RWMutex
	order    []marketplace.AccountID
	accounts map[marketplace.AccountID]marketplace.Account
}

// NewAccountRegistry validates the configured accounts and indexes them by id
func NewAccountRegistry(entries []AccountConfig) (*AccountRegistry, error) {
	r := &AccountRegistry{
		accounts: make(map[marketplace.AccountID]marketplace.Account, len(entries)),
	}
	for i, entry := range entries {
		id, err := marketplace.NewAccountID(entry.ID)
		if err != nil {
			return nil, fmt.Errorf("marketplace.accounts[%d]: %w", i, err)
		}
		if _, dup := r.accounts[id]; dup {
			return nil, fmt.Errorf("marketplace.accounts[%d]: account %s is duplicated", i, id)
		}
		r.order = append(r.order, id)
		r.accounts[id] = marketplace.Account{
			ID:      id,
			Token:   entry.Token,
			Enabled: entry.Enabled,
		}
	}
	return r, nil
}

// ActiveAccounts returns enabled accounts that carry a token, in configuration order
func (r *AccountRegistry) ActiveAccounts() []marketplace.Account {
	r.mu.RLock()
	defer r.mu.RUnlock()

	active := make([]marketplace.Account, 0, len(r.order))
	for _, id := range r.order {
		if a := r.accounts[id]; a.Active() {
			active = append(active, a)
		}
	}
	return active
}

// Account returns one account; unknown ids yield ErrAccountNotConfigured
func (r *AccountRegistry) Account(id marketplace.AccountID) (marketplace.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.accounts[id]
	if !ok {
		return marketplace.Account{}, fmt.Errorf("%w: %s", marketplace.ErrAccountNotConfigured, id)
	}
	return a, nil
}

// All returns every configured account in configuration order
func (r *AccountRegistry) All() []marketplace.Account {
	r.mu.RLock()
	defer r.mu.RUnlock()

	all := make([]marketplace.Account, 0, len(r.order))
	for _, id := range r.order {
		all = append(all, r.accounts[id])
	}
	return all
}

// SetEnabled toggles an account at runtime
func (r *AccountRegistry) SetEnabled(id marketplace.AccountID, enabled bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.accounts[id]
	if !ok {
		return fmt.Errorf("%w: %s", marketplace.ErrAccountNotConfigured, id)
	}
	a.Enabled = enabled
	r.accounts[id] = a
	return nil
}

var _ marketplace.AccountProvider = (*AccountRegistry)(nil)
