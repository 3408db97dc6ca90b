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
	"time"

	"github.com/koboledger/kobo/model"
)

// IDataSource defines the interface for data source operations, grouping related functionalities.
type IDataSource interface {
	identity    // Interface for user identity operations
	account     // Interface for account-related operations
	transaction // Interface for ledger entry operations
}

// identity defines methods for handling users.
type identity interface {
	// CreateUser inserts a new user.
	CreateUser(ctx context.Context, user model.User) (model.User, error)
	// CreateUserWithAccount inserts a user and their first account atomically.
	CreateUserWithAccount(ctx context.Context, user model.User, account model.Account) (model.User, model.Account, error)
	// GetUserByUsername retrieves a user by username.
	GetUserByUsername(ctx context.Context, username string) (*model.User, error)
	// GetUserByID retrieves a user by ID.
	GetUserByID(ctx context.Context, userID string) (*model.User, error)
}

// account defines methods for handling accounts.
type account interface {
	// CreateAccount inserts a new account.
	CreateAccount(ctx context.Context, account model.Account) (model.Account, error)
	// GetAccountByNumber retrieves an account by its account number.
	GetAccountByNumber(ctx context.Context, number string) (*model.Account, error)
	// GetAccountsByUserID retrieves all accounts owned by a user.
	GetAccountsByUserID(ctx context.Context, userID string) ([]model.Account, error)
	// GetAllAccounts retrieves accounts across all users, paginated.
	GetAllAccounts(ctx context.Context, limit, offset int) ([]model.Account, error)
	// UpdateAccountStatus changes an account's status.
	UpdateAccountStatus(ctx context.Context, accountID string, status string) error
}

// transaction defines methods for handling ledger entries.
type transaction interface {
	// CommitLedgerEntries applies the given balance updates and records the
	// given entries in one database transaction. Accounts must carry the
	// version they were read at; a stale version fails the whole commit.
	CommitLedgerEntries(ctx context.Context, accounts []*model.Account, entries []*model.Transaction) error
	// GetTransaction retrieves a ledger entry by ID.
	GetTransaction(ctx context.Context, id string) (*model.Transaction, error)
	// GetTransactionsByAccount retrieves entries for an account within the
	// given date range, newest first. Zero times leave the range unbounded.
	GetTransactionsByAccount(ctx context.Context, accountID string, from, to time.Time, limit, offset int) ([]model.Transaction, error)
}
