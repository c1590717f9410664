package marketplace

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// AccountID identifies a seller account (profile) at the marketplace
type AccountID string

// NewAccountID validates s and returns it as an AccountID.
// Accounts are profile UUIDs; the canonical lower-case form is kept.
func NewAccountID(s string) (AccountID, error) {
	s = strings.TrimSpace(s)
	id, err := uuid.Parse(s)
	if err != nil || id == uuid.Nil {
		return "", fmt.Errorf("%w: %q", ErrInvalidAccountID, s)
	}
	return AccountID(id.String()), nil
}

// MustAccountID is NewAccountID for constants and tests
func MustAccountID(s string) AccountID {
	id, err := NewAccountID(s)
	if err != nil {
		panic(err)
	}
	return id
}

// String returns the string representation of AccountID
func (a AccountID) String() string {
	return string(a)
}

// Account is a configured seller account with its API token
type Account struct {
	ID      AccountID
	Token   string
	Enabled bool
}

// Active returns true if the account can be synced
func (a Account) Active() bool {
	return a.Enabled && a.Token != ""
}

// AccountProvider lists the accounts that take part in sync runs
type AccountProvider interface {
	ActiveAccounts() []Account
	Account(id AccountID) (Account, error)
}
