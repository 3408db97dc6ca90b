package model

import (
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// AccountNumberLength is the fixed width of the customer-facing account number.
const AccountNumberLength = 10

var (
	// ErrAmountNotPositive is returned when a ledger operation carries a zero
	// or negative amount.
	ErrAmountNotPositive = errors.New("amount must be greater than zero")

	// ErrAmountPrecision is returned when an amount carries more than two
	// decimal places.
	ErrAmountPrecision = errors.New("amount must have at most two decimal places")

	// ErrInsufficientFunds is returned when a debit would drive the balance
	// below zero.
	ErrInsufficientFunds = errors.New("insufficient funds")
)

// GenerateUUIDWithSuffix generates a UUID with a given module name as a prefix.
// This is useful for creating unique identifiers with context-specific prefixes.
func GenerateUUIDWithSuffix(module string) string {
	id := uuid.New()
	uuidStr := id.String()
	idWithSuffix := fmt.Sprintf("%s_%s", module, uuidStr)
	return idWithSuffix
}

// NewAccountNumber draws a random candidate account number of
// AccountNumberLength digits. Uniqueness is not guaranteed here; the
// datasource's unique index is the authority and callers re-draw on conflict.
func NewAccountNumber() string {
	digits := make([]byte, AccountNumberLength)
	for i := range digits {
		n, err := rand.Int(rand.Reader, big.NewInt(10))
		if err != nil {
			// crypto/rand only fails when the OS entropy source is broken
			panic(err)
		}
		digits[i] = byte('0' + n.Int64())
	}
	return string(digits)
}

// ValidateAmount checks that amount is strictly positive and representable at
// scale 2. The API layer rejects bad amounts first; the engine re-checks as a
// last line of defense.
func ValidateAmount(amount decimal.Decimal) error {
	if amount.Cmp(decimal.Zero) <= 0 {
		return ErrAmountNotPositive
	}
	if amount.Exponent() < -2 {
		return ErrAmountPrecision
	}
	return nil
}

// ApplyCredit adds amount to the account balance and returns the resulting
// ledger entry skeleton's balance-after value.
func (a *Account) ApplyCredit(amount decimal.Decimal) decimal.Decimal {
	a.Balance = a.Balance.Add(amount)
	return a.Balance
}

// ApplyDebit subtracts amount from the account balance, refusing to overdraw.
func (a *Account) ApplyDebit(amount decimal.Decimal) (decimal.Decimal, error) {
	if a.Balance.Cmp(amount) < 0 {
		return a.Balance, ErrInsufficientFunds
	}
	a.Balance = a.Balance.Sub(amount)
	return a.Balance, nil
}
