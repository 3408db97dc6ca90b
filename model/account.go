package model

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	AccountTypeSavings  = "SAVINGS"
	AccountTypeChecking = "CHECKING"
	AccountTypeBusiness = "BUSINESS"
)

const (
	AccountStatusActive = "ACTIVE"
	AccountStatusFrozen = "FROZEN"
	AccountStatusClosed = "CLOSED"
)

// Account is a customer ledger account. Balance is a scale-2 decimal and is
// never negative after a committed operation. Version guards concurrent
// balance updates; it is bumped by the datasource on every mutating commit.
type Account struct {
	ID        int64           `json:"-"`
	AccountID string          `json:"account_id"`
	Number    string          `json:"number"`
	Balance   decimal.Decimal `json:"balance"`
	Type      string          `json:"account_type"`
	Status    string          `json:"status"`
	UserID    string          `json:"user_id"`
	Version   int64           `json:"-"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
	Owner     *User           `json:"owner,omitempty"`
}

// IsActive reports whether the account accepts balance mutations.
func (a *Account) IsActive() bool {
	return a.Status == AccountStatusActive
}

// ValidAccountType reports whether t is one of the supported account types.
func ValidAccountType(t string) bool {
	switch t {
	case AccountTypeSavings, AccountTypeChecking, AccountTypeBusiness:
		return true
	}
	return false
}
