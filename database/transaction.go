/*
Copyright 2025 Kobo Ledger Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package database

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	"go.opentelemetry.io/otel"

	"github.com/koboledger/kobo/internal/apierror"
	"github.com/koboledger/kobo/model"
)

// CommitLedgerEntries applies the given balance updates and inserts the
// given ledger entries in a single database transaction. Each account must
// carry the version it was read at; if any account was modified since, the
// whole commit fails with a Conflict and nothing is written.
//
// Callers pass accounts sorted by account number so concurrent transfers
// touching the same pair always lock rows in the same order.
func (d Datasource) CommitLedgerEntries(ctx context.Context, accounts []*model.Account, entries []*model.Transaction) error {
	ctx, span := otel.Tracer("database.transaction").Start(ctx, "Committing ledger entries")
	defer span.End()

	tx, err := d.Conn.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelDefault})
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to begin transaction", err)
	}

	defer func(tx *sql.Tx) {
		_ = tx.Rollback()
	}(tx)

	for _, account := range accounts {
		if err := applyBalanceUpdate(ctx, tx, account); err != nil {
			return err
		}
	}

	for _, entry := range entries {
		if err := insertLedgerEntry(ctx, tx, entry); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to commit transaction", err)
	}

	return nil
}

// applyBalanceUpdate writes an account's new balance guarded by its version.
// Zero rows affected means another transaction got there first.
func applyBalanceUpdate(ctx context.Context, tx *sql.Tx, account *model.Account) error {
	result, err := tx.ExecContext(ctx, `
		UPDATE kobo.accounts
		SET balance = $2, updated_at = $3, version = version + 1
		WHERE account_id = $1 AND version = $4
	`, account.AccountID, account.Balance.StringFixed(2), time.Now(), account.Version)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to update account balance", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to get rows affected", err)
	}
	if rowsAffected == 0 {
		return apierror.NewAPIError(apierror.ErrConflict, fmt.Sprintf("Optimistic locking failure: account with ID '%s' may have been updated by another transaction", account.AccountID), nil)
	}

	account.Version++
	return nil
}

func insertLedgerEntry(ctx context.Context, tx *sql.Tx, entry *model.Transaction) error {
	entry.TransactionID = model.GenerateUUIDWithSuffix("txn")
	entry.TransactionDate = time.Now()

	_, err := tx.ExecContext(ctx, `
		INSERT INTO kobo.transactions (transaction_id, account_id, amount, type, description, balance_after, to_account_number, from_account_number, transaction_date)
		VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''), NULLIF($8, ''), $9)
	`, entry.TransactionID, entry.AccountID, entry.Amount.StringFixed(2), entry.Type, entry.Description,
		entry.BalanceAfter.StringFixed(2), entry.ToAccountNumber, entry.FromAccountNumber, entry.TransactionDate)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to record ledger entry", err)
	}

	return nil
}

// GetTransaction retrieves a single ledger entry by its transaction ID.
func (d Datasource) GetTransaction(ctx context.Context, id string) (*model.Transaction, error) {
	row := d.Conn.QueryRowContext(ctx, `
		SELECT id, transaction_id, account_id, amount, type, description, balance_after,
		       COALESCE(to_account_number, ''), COALESCE(from_account_number, ''), transaction_date
		FROM kobo.transactions
		WHERE transaction_id = $1
	`, id)

	transaction := model.Transaction{}
	var amount, balanceAfter string
	err := row.Scan(&transaction.ID, &transaction.TransactionID, &transaction.AccountID, &amount,
		&transaction.Type, &transaction.Description, &balanceAfter,
		&transaction.ToAccountNumber, &transaction.FromAccountNumber, &transaction.TransactionDate)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apierror.NewAPIError(apierror.ErrNotFound, fmt.Sprintf("Transaction with ID '%s' not found", id), err)
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to scan transaction data", err)
	}

	if transaction.Amount, err = parseBalance(amount); err != nil {
		return nil, err
	}
	if transaction.BalanceAfter, err = parseBalance(balanceAfter); err != nil {
		return nil, err
	}

	return &transaction, nil
}

// GetTransactionsByAccount retrieves an account's ledger entries within the
// given date range, newest first. Zero times leave the range unbounded.
// Pages are cached briefly since statements are read far more often than new
// entries land.
func (d Datasource) GetTransactionsByAccount(ctx context.Context, accountID string, from, to time.Time, limit, offset int) ([]model.Transaction, error) {
	ctx, span := otel.Tracer("database.transaction").Start(ctx, "Fetching transactions by account with pagination")
	defer span.End()

	if to.IsZero() {
		to = time.Now()
	}

	cacheKey := fmt.Sprintf("transactions:account:%s:%d:%d:%d:%d", accountID, from.Unix(), to.Unix(), limit, offset)

	var transactions []model.Transaction
	if d.Cache != nil {
		err := d.Cache.Get(ctx, cacheKey, &transactions)
		if err == nil && len(transactions) > 0 {
			return transactions, nil
		}
	}

	rows, err := d.Conn.QueryContext(ctx, `
		SELECT id, transaction_id, account_id, amount, type, description, balance_after,
		       COALESCE(to_account_number, ''), COALESCE(from_account_number, ''), transaction_date
		FROM kobo.transactions
		WHERE account_id = $1 AND transaction_date >= $2 AND transaction_date <= $3
		ORDER BY transaction_date DESC, id DESC
		LIMIT $4 OFFSET $5
	`, accountID, from, to, limit, offset)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve transactions", err)
	}
	defer rows.Close()

	transactions = []model.Transaction{}

	for rows.Next() {
		transaction := model.Transaction{}
		var amount, balanceAfter string
		err = rows.Scan(&transaction.ID, &transaction.TransactionID, &transaction.AccountID, &amount,
			&transaction.Type, &transaction.Description, &balanceAfter,
			&transaction.ToAccountNumber, &transaction.FromAccountNumber, &transaction.TransactionDate)
		if err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to scan transaction data", err)
		}

		if transaction.Amount, err = parseBalance(amount); err != nil {
			return nil, err
		}
		if transaction.BalanceAfter, err = parseBalance(balanceAfter); err != nil {
			return nil, err
		}

		transactions = append(transactions, transaction)
	}

	if err = rows.Err(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Error occurred while iterating over transactions", err)
	}

	if d.Cache != nil && len(transactions) > 0 {
		err = d.Cache.Set(ctx, cacheKey, transactions, 1*time.Minute)
		if err != nil {
			// Log the error, but don't return it as the main operation succeeded
			log.Printf("Failed to cache transactions: %v", err)
		}
	}

	return transactions, nil
}
