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
	"time"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/koboledger/kobo/internal/apierror"
	"github.com/koboledger/kobo/model"
)

// CreateAccount inserts a new Account into the database.
// A unique violation on the account number is surfaced as DuplicateNumber so
// the provisioning loop can retry with a fresh number.
func (d Datasource) CreateAccount(ctx context.Context, account model.Account) (model.Account, error) {
	return insertAccount(ctx, d.Conn, account)
}

func insertAccount(ctx context.Context, run execer, account model.Account) (model.Account, error) {
	account.AccountID = model.GenerateUUIDWithSuffix("acc")
	account.CreatedAt = time.Now()
	account.UpdatedAt = account.CreatedAt
	account.Version = 0

	_, err := run.ExecContext(ctx, `
		INSERT INTO kobo.accounts (account_id, number, balance, account_type, status, user_id, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, account.AccountID, account.Number, account.Balance.String(), account.Type, account.Status, account.UserID, account.Version, account.CreatedAt, account.UpdatedAt)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok {
			switch pqErr.Code {
			case "23505":
				return model.Account{}, apierror.NewAPIError(apierror.ErrDuplicateNumber, "Account with this number already exists", err)
			case "23503":
				return model.Account{}, apierror.NewAPIError(apierror.ErrBadRequest, "Invalid user ID", err)
			}
		}
		return model.Account{}, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to create account", err)
	}

	return account, nil
}

// GetAccountByNumber retrieves an account by its account number along with
// the owning user's identity fields.
func (d Datasource) GetAccountByNumber(ctx context.Context, number string) (*model.Account, error) {
	row := d.Conn.QueryRowContext(ctx, `
		SELECT a.id, a.account_id, a.number, a.balance, a.account_type, a.status, a.user_id, a.version, a.created_at, a.updated_at,
		       u.user_id, u.username, u.email, u.first_name, u.last_name, u.role
		FROM kobo.accounts a
		JOIN kobo.users u ON u.user_id = a.user_id
		WHERE a.number = $1
	`, number)

	account := model.Account{Owner: &model.User{}}
	var balance string
	err := row.Scan(&account.ID, &account.AccountID, &account.Number, &balance, &account.Type,
		&account.Status, &account.UserID, &account.Version, &account.CreatedAt, &account.UpdatedAt,
		&account.Owner.UserID, &account.Owner.Username, &account.Owner.Email,
		&account.Owner.FirstName, &account.Owner.LastName, &account.Owner.Role)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apierror.NewAPIError(apierror.ErrNotFound, fmt.Sprintf("Account with number '%s' not found", number), err)
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to scan account data", err)
	}

	if account.Balance, err = parseBalance(balance); err != nil {
		return nil, err
	}

	return &account, nil
}

// GetAccountsByUserID retrieves all accounts owned by the given user.
func (d Datasource) GetAccountsByUserID(ctx context.Context, userID string) ([]model.Account, error) {
	rows, err := d.Conn.QueryContext(ctx, `
		SELECT id, account_id, number, balance, account_type, status, user_id, version, created_at, updated_at
		FROM kobo.accounts
		WHERE user_id = $1
		ORDER BY created_at ASC
	`, userID)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve accounts", err)
	}
	defer rows.Close()

	return scanAccountRows(rows)
}

// GetAllAccounts retrieves accounts across all users, paginated.
func (d Datasource) GetAllAccounts(ctx context.Context, limit, offset int) ([]model.Account, error) {
	rows, err := d.Conn.QueryContext(ctx, `
		SELECT id, account_id, number, balance, account_type, status, user_id, version, created_at, updated_at
		FROM kobo.accounts
		ORDER BY created_at ASC
		LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve accounts", err)
	}
	defer rows.Close()

	return scanAccountRows(rows)
}

// UpdateAccountStatus changes an account's status, for example to freeze or
// close it.
func (d Datasource) UpdateAccountStatus(ctx context.Context, accountID string, status string) error {
	result, err := d.Conn.ExecContext(ctx, `
		UPDATE kobo.accounts
		SET status = $2, updated_at = NOW()
		WHERE account_id = $1
	`, accountID, status)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to update account status", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to get rows affected", err)
	}
	if rowsAffected == 0 {
		return apierror.NewAPIError(apierror.ErrNotFound, fmt.Sprintf("Account with ID '%s' not found", accountID), nil)
	}

	return nil
}

func scanAccountRows(rows *sql.Rows) ([]model.Account, error) {
	accounts := []model.Account{}
	for rows.Next() {
		account := model.Account{}
		var balance string
		err := rows.Scan(&account.ID, &account.AccountID, &account.Number, &balance, &account.Type,
			&account.Status, &account.UserID, &account.Version, &account.CreatedAt, &account.UpdatedAt)
		if err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to scan account data", err)
		}
		if account.Balance, err = parseBalance(balance); err != nil {
			return nil, err
		}
		accounts = append(accounts, account)
	}

	if err := rows.Err(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Error occurred while iterating over accounts", err)
	}

	return accounts, nil
}

func parseBalance(s string) (decimal.Decimal, error) {
	balance, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to parse account balance", err)
	}
	return balance, nil
}
