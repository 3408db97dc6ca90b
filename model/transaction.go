package model

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

const (
	TransactionTypeDeposit     = "DEPOSIT"
	TransactionTypeWithdrawal  = "WITHDRAWAL"
	TransactionTypeTransferOut = "TRANSFER_OUT"
	TransactionTypeTransferIn  = "TRANSFER_IN"
)

// Transaction is a single immutable ledger entry. BalanceAfter snapshots the
// owning account's balance at the same commit that applied Amount; the two
// are written together and can never drift apart.
type Transaction struct {
	ID            int64           `json:"-"`
	TransactionID string          `json:"transaction_id"`
	AccountID     string          `json:"account_id"`
	Amount        decimal.Decimal `json:"amount"`
	Type          string          `json:"type"`
	Description   string          `json:"description"`
	BalanceAfter  decimal.Decimal `json:"balance_after"`
	// Counterparty account numbers, set on transfer legs only.
	ToAccountNumber   string    `json:"to_account_number,omitempty"`
	FromAccountNumber string    `json:"from_account_number,omitempty"`
	TransactionDate   time.Time `json:"transaction_date"`
}

func (transaction *Transaction) ToJSON() ([]byte, error) {
	return json.Marshal(transaction)
}

// IsCredit reports whether this entry increased the account balance.
func (transaction *Transaction) IsCredit() bool {
	return transaction.Type == TransactionTypeDeposit || transaction.Type == TransactionTypeTransferIn
}
