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

package kobo

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/koboledger/kobo/config"
	"github.com/koboledger/kobo/database"
	"github.com/koboledger/kobo/internal/apierror"
	"github.com/koboledger/kobo/model"
)

func newTestKobo(t *testing.T) (*Kobo, sqlmock.Sqlmock) {
	t.Helper()
	mr := miniredis.RunT(t)
	config.MockConfig(&config.Configuration{
		Redis: config.RedisConfig{Dns: mr.Addr()},
	})

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	k, err := NewKobo(&database.Datasource{Conn: db, Cache: nil})
	require.NoError(t, err)
	return k, mock
}

func expectAccountLookup(mock sqlmock.Sqlmock, number, accountID, balance, status string, version int64, ownerID string) {
	rows := sqlmock.NewRows([]string{
		"id", "account_id", "number", "balance", "account_type", "status", "user_id", "version", "created_at", "updated_at",
		"user_id", "username", "email", "first_name", "last_name", "role",
	}).AddRow(1, accountID, number, balance, model.AccountTypeSavings, status, ownerID, version, time.Now(), time.Now(),
		ownerID, "customer1", "customer1@example.com", "Jane", "Doe", model.RoleCustomer)

	mock.ExpectQuery("SELECT a.id, a.account_id, a.number, a.balance").
		WithArgs(number).
		WillReturnRows(rows)
}

var customer = CallerIdentity{UserID: "usr_1", Role: model.RoleCustomer}
var admin = CallerIdentity{UserID: "usr_admin", Role: model.RoleAdmin}

func TestDeposit_CreditsBalanceAndRecordsEntry(t *testing.T) {
	k, mock := newTestKobo(t)

	expectAccountLookup(mock, "2000000001", "acc_1", "5000.00", model.AccountStatusActive, 1, "usr_1")
	mock.ExpectBegin()
	mock.ExpectExec("UPDATE kobo.accounts").
		WithArgs("acc_1", "5500.00", sqlmock.AnyArg(), int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO kobo.transactions").
		WithArgs(sqlmock.AnyArg(), "acc_1", "500.00", model.TransactionTypeDeposit, "Deposit", "5500.00", "", "", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	entry, err := k.Deposit(context.Background(), customer, "2000000001", decimal.RequireFromString("500.00"), "")
	require.NoError(t, err)
	assert.Equal(t, model.TransactionTypeDeposit, entry.Type)
	assert.Equal(t, "Deposit", entry.Description)
	assert.True(t, entry.BalanceAfter.Equal(decimal.RequireFromString("5500.00")))

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeposit_RejectsNonPositiveAmount(t *testing.T) {
	k, mock := newTestKobo(t)

	_, err := k.Deposit(context.Background(), customer, "2000000001", decimal.Zero, "")
	assert.Error(t, err)
	assert.Equal(t, apierror.ErrInvalidInput, apierror.CodeOf(err))

	_, err = k.Deposit(context.Background(), customer, "2000000001", decimal.RequireFromString("-5"), "")
	assert.Error(t, err)
	assert.Equal(t, apierror.ErrInvalidInput, apierror.CodeOf(err))

	// No database work may happen for rejected amounts.
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeposit_RejectsSubCentPrecision(t *testing.T) {
	k, _ := newTestKobo(t)

	_, err := k.Deposit(context.Background(), customer, "2000000001", decimal.RequireFromString("10.001"), "")
	assert.Error(t, err)
	assert.Equal(t, apierror.ErrInvalidInput, apierror.CodeOf(err))
}

func TestDeposit_FrozenAccount(t *testing.T) {
	k, mock := newTestKobo(t)

	expectAccountLookup(mock, "2000000001", "acc_1", "5000.00", model.AccountStatusFrozen, 1, "usr_1")

	_, err := k.Deposit(context.Background(), customer, "2000000001", decimal.RequireFromString("500.00"), "")
	assert.Error(t, err)
	assert.Equal(t, apierror.ErrInvalidState, apierror.CodeOf(err))
}

func TestDeposit_ForbiddenForNonOwner(t *testing.T) {
	k, mock := newTestKobo(t)

	stranger := CallerIdentity{UserID: "usr_2", Role: model.RoleCustomer}
	expectAccountLookup(mock, "2000000001", "acc_1", "5000.00", model.AccountStatusActive, 1, "usr_1")

	_, err := k.Deposit(context.Background(), stranger, "2000000001", decimal.RequireFromString("500.00"), "")
	assert.Error(t, err)
	assert.Equal(t, apierror.ErrForbidden, apierror.CodeOf(err))
}

func TestDeposit_AdminMayActOnAnyAccount(t *testing.T) {
	k, mock := newTestKobo(t)

	expectAccountLookup(mock, "2000000001", "acc_1", "5000.00", model.AccountStatusActive, 1, "usr_1")
	mock.ExpectBegin()
	mock.ExpectExec("UPDATE kobo.accounts").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO kobo.transactions").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	_, err := k.Deposit(context.Background(), admin, "2000000001", decimal.RequireFromString("500.00"), "")
	assert.NoError(t, err)
}

func TestDeposit_RetriesOnOptimisticConflict(t *testing.T) {
	k, mock := newTestKobo(t)

	// First cycle loses the version race and rolls back.
	expectAccountLookup(mock, "2000000001", "acc_1", "5000.00", model.AccountStatusActive, 1, "usr_1")
	mock.ExpectBegin()
	mock.ExpectExec("UPDATE kobo.accounts").
		WithArgs("acc_1", "5500.00", sqlmock.AnyArg(), int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	// Second cycle re-reads the bumped version and succeeds.
	expectAccountLookup(mock, "2000000001", "acc_1", "5200.00", model.AccountStatusActive, 2, "usr_1")
	mock.ExpectBegin()
	mock.ExpectExec("UPDATE kobo.accounts").
		WithArgs("acc_1", "5700.00", sqlmock.AnyArg(), int64(2)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO kobo.transactions").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	entry, err := k.Deposit(context.Background(), customer, "2000000001", decimal.RequireFromString("500.00"), "")
	require.NoError(t, err)
	assert.True(t, entry.BalanceAfter.Equal(decimal.RequireFromString("5700.00")))

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeposit_SurfacesConflictWhenRetriesExhausted(t *testing.T) {
	k, mock := newTestKobo(t)

	// DefaultCommitRetries retries plus the initial attempt.
	for i := 0; i < config.DefaultCommitRetries+1; i++ {
		expectAccountLookup(mock, "2000000001", "acc_1", "5000.00", model.AccountStatusActive, 1, "usr_1")
		mock.ExpectBegin()
		mock.ExpectExec("UPDATE kobo.accounts").
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectRollback()
	}

	_, err := k.Deposit(context.Background(), customer, "2000000001", decimal.RequireFromString("500.00"), "")
	assert.Error(t, err)
	assert.Equal(t, apierror.ErrConflict, apierror.CodeOf(err))

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWithdraw_DebitsBalanceAndRecordsEntry(t *testing.T) {
	k, mock := newTestKobo(t)

	expectAccountLookup(mock, "2000000001", "acc_1", "5000.00", model.AccountStatusActive, 3, "usr_1")
	mock.ExpectBegin()
	mock.ExpectExec("UPDATE kobo.accounts").
		WithArgs("acc_1", "4000.00", sqlmock.AnyArg(), int64(3)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO kobo.transactions").
		WithArgs(sqlmock.AnyArg(), "acc_1", "1000.00", model.TransactionTypeWithdrawal, "Withdrawal", "4000.00", "", "", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	entry, err := k.Withdraw(context.Background(), customer, "2000000001", decimal.RequireFromString("1000.00"), "")
	require.NoError(t, err)
	assert.Equal(t, "Withdrawal", entry.Description)
	assert.True(t, entry.BalanceAfter.Equal(decimal.RequireFromString("4000.00")))

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWithdraw_InsufficientFunds(t *testing.T) {
	k, mock := newTestKobo(t)

	expectAccountLookup(mock, "2000000001", "acc_1", "100.00", model.AccountStatusActive, 1, "usr_1")

	_, err := k.Withdraw(context.Background(), customer, "2000000001", decimal.RequireFromString("100.01"), "")
	assert.Error(t, err)
	assert.Equal(t, apierror.ErrInsufficientFunds, apierror.CodeOf(err))

	// The failed withdrawal must not have opened a database transaction.
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWithdraw_ExactBalanceIsAllowed(t *testing.T) {
	k, mock := newTestKobo(t)

	expectAccountLookup(mock, "2000000001", "acc_1", "100.00", model.AccountStatusActive, 1, "usr_1")
	mock.ExpectBegin()
	mock.ExpectExec("UPDATE kobo.accounts").
		WithArgs("acc_1", "0.00", sqlmock.AnyArg(), int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO kobo.transactions").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	entry, err := k.Withdraw(context.Background(), customer, "2000000001", decimal.RequireFromString("100.00"), "")
	require.NoError(t, err)
	assert.True(t, entry.BalanceAfter.IsZero())
}

func TestTransfer_CommitsBothLegsTogether(t *testing.T) {
	k, mock := newTestKobo(t)

	expectAccountLookup(mock, "2000000002", "acc_2", "5000.00", model.AccountStatusActive, 1, "usr_1")
	expectAccountLookup(mock, "2000000001", "acc_1", "3000.00", model.AccountStatusActive, 4, "usr_2")

	mock.ExpectBegin()
	// Updates land in ascending account-number order regardless of
	// direction, so the destination (2000000001) goes first here.
	mock.ExpectExec("UPDATE kobo.accounts").
		WithArgs("acc_1", "4000.00", sqlmock.AnyArg(), int64(4)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE kobo.accounts").
		WithArgs("acc_2", "4000.00", sqlmock.AnyArg(), int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO kobo.transactions").
		WithArgs(sqlmock.AnyArg(), "acc_2", "1000.00", model.TransactionTypeTransferOut, "Transfer to 2000000001", "4000.00", "2000000001", "", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO kobo.transactions").
		WithArgs(sqlmock.AnyArg(), "acc_1", "1000.00", model.TransactionTypeTransferIn, "Transfer from 2000000002", "4000.00", "", "2000000002", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(2, 1))
	mock.ExpectCommit()

	receipt, err := k.Transfer(context.Background(), customer, "2000000002", "2000000001", decimal.RequireFromString("1000.00"), "")
	require.NoError(t, err)
	assert.Equal(t, model.TransactionTypeTransferOut, receipt.DebitEntry.Type)
	assert.Equal(t, model.TransactionTypeTransferIn, receipt.CreditEntry.Type)
	assert.Equal(t, "Transfer to 2000000001", receipt.DebitEntry.Description)
	assert.Equal(t, "Transfer from 2000000002", receipt.CreditEntry.Description)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransfer_SelfTransferRejected(t *testing.T) {
	k, mock := newTestKobo(t)

	expectAccountLookup(mock, "2000000001", "acc_1", "5000.00", model.AccountStatusActive, 1, "usr_1")
	expectAccountLookup(mock, "2000000001", "acc_1", "5000.00", model.AccountStatusActive, 1, "usr_1")

	_, err := k.Transfer(context.Background(), customer, "2000000001", "2000000001", decimal.RequireFromString("10.00"), "")
	assert.Error(t, err)
	assert.Equal(t, apierror.ErrSelfTransfer, apierror.CodeOf(err))

	// No transaction was opened, so nothing could have been written.
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransfer_SelfTransferOnUnknownAccountIsNotFound(t *testing.T) {
	k, mock := newTestKobo(t)

	mock.ExpectQuery("SELECT a.id, a.account_id, a.number, a.balance").
		WithArgs("9999999999").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := k.Transfer(context.Background(), customer, "9999999999", "9999999999", decimal.RequireFromString("10.00"), "")
	assert.Error(t, err)
	assert.Equal(t, apierror.ErrNotFound, apierror.CodeOf(err))
}

func TestTransfer_SelfTransferOnFrozenAccountReportsState(t *testing.T) {
	k, mock := newTestKobo(t)

	expectAccountLookup(mock, "2000000001", "acc_1", "5000.00", model.AccountStatusFrozen, 1, "usr_1")
	expectAccountLookup(mock, "2000000001", "acc_1", "5000.00", model.AccountStatusFrozen, 1, "usr_1")

	_, err := k.Transfer(context.Background(), customer, "2000000001", "2000000001", decimal.RequireFromString("10.00"), "")
	assert.Error(t, err)
	assert.Equal(t, apierror.ErrInvalidState, apierror.CodeOf(err))
}

func TestTransfer_InsufficientFundsLeavesNothingWritten(t *testing.T) {
	k, mock := newTestKobo(t)

	expectAccountLookup(mock, "2000000001", "acc_1", "100.00", model.AccountStatusActive, 1, "usr_1")
	expectAccountLookup(mock, "2000000002", "acc_2", "3000.00", model.AccountStatusActive, 1, "usr_2")

	_, err := k.Transfer(context.Background(), customer, "2000000001", "2000000002", decimal.RequireFromString("500.00"), "")
	assert.Error(t, err)
	assert.Equal(t, apierror.ErrInsufficientFunds, apierror.CodeOf(err))

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransfer_ForbiddenWhenCallerDoesNotOwnSource(t *testing.T) {
	k, mock := newTestKobo(t)

	expectAccountLookup(mock, "2000000002", "acc_2", "3000.00", model.AccountStatusActive, 1, "usr_2")
	expectAccountLookup(mock, "2000000001", "acc_1", "5000.00", model.AccountStatusActive, 1, "usr_1")

	_, err := k.Transfer(context.Background(), customer, "2000000002", "2000000001", decimal.RequireFromString("10.00"), "")
	assert.Error(t, err)
	assert.Equal(t, apierror.ErrForbidden, apierror.CodeOf(err))
}

func TestTransfer_FrozenDestinationRejected(t *testing.T) {
	k, mock := newTestKobo(t)

	expectAccountLookup(mock, "2000000001", "acc_1", "5000.00", model.AccountStatusActive, 1, "usr_1")
	expectAccountLookup(mock, "2000000002", "acc_2", "3000.00", model.AccountStatusFrozen, 1, "usr_2")

	_, err := k.Transfer(context.Background(), customer, "2000000001", "2000000002", decimal.RequireFromString("10.00"), "")
	assert.Error(t, err)
	assert.Equal(t, apierror.ErrInvalidState, apierror.CodeOf(err))
}

func TestGetTransactionHistory(t *testing.T) {
	k, mock := newTestKobo(t)

	expectAccountLookup(mock, "2000000001", "acc_1", "5000.00", model.AccountStatusActive, 1, "usr_1")

	rows := sqlmock.NewRows([]string{"id", "transaction_id", "account_id", "amount", "type", "description", "balance_after", "to_account_number", "from_account_number", "transaction_date"}).
		AddRow(2, "txn_2", "acc_1", "1000.00", model.TransactionTypeWithdrawal, "Withdrawal", "4000.00", "", "", time.Now()).
		AddRow(1, "txn_1", "acc_1", "500.00", model.TransactionTypeDeposit, "Deposit", "5000.00", "", "", time.Now().Add(-time.Hour))

	mock.ExpectQuery("SELECT id, transaction_id, account_id, amount").
		WithArgs("acc_1", sqlmock.AnyArg(), sqlmock.AnyArg(), 50, 0).
		WillReturnRows(rows)

	history, err := k.GetTransactionHistory(context.Background(), customer, "2000000001", time.Time{}, time.Time{}, 0, 0)
	require.NoError(t, err)
	assert.Len(t, history, 2)
	assert.Equal(t, "txn_2", history[0].TransactionID)
}

func TestGetBalance(t *testing.T) {
	k, mock := newTestKobo(t)

	expectAccountLookup(mock, "2000000001", "acc_1", "5000.00", model.AccountStatusActive, 1, "usr_1")

	balance, err := k.GetBalance(context.Background(), customer, "2000000001")
	require.NoError(t, err)
	assert.True(t, balance.Equal(decimal.RequireFromString("5000.00")))

	// Second read is served from the cache without touching the database.
	balance, err = k.GetBalance(context.Background(), customer, "2000000001")
	require.NoError(t, err)
	assert.True(t, balance.Equal(decimal.RequireFromString("5000.00")))

	assert.NoError(t, mock.ExpectationsWereMet())
}

// fakeAccountStore is an in-memory datasource applying the same per-account
// version check as the SQL layer, so concurrent commits from real goroutines
// race the way they would against Postgres.
type fakeAccountStore struct {
	mu      sync.Mutex
	account model.Account
	entries []model.Transaction
}

func (f *fakeAccountStore) GetAccountByNumber(ctx context.Context, number string) (*model.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if number != f.account.Number {
		return nil, apierror.NewAPIError(apierror.ErrNotFound, fmt.Sprintf("Account with number '%s' not found", number), nil)
	}
	account := f.account
	return &account, nil
}

func (f *fakeAccountStore) CommitLedgerEntries(ctx context.Context, accounts []*model.Account, entries []*model.Transaction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, account := range accounts {
		if account.AccountID != f.account.AccountID || account.Version != f.account.Version {
			return apierror.NewAPIError(apierror.ErrConflict, fmt.Sprintf("Optimistic locking failure: account with ID '%s' was modified concurrently", account.AccountID), nil)
		}
	}
	for _, account := range accounts {
		account.Version++
		f.account = *account
	}
	for _, entry := range entries {
		f.entries = append(f.entries, *entry)
	}
	return nil
}

func (f *fakeAccountStore) CreateUser(ctx context.Context, user model.User) (model.User, error) {
	return user, nil
}

func (f *fakeAccountStore) CreateUserWithAccount(ctx context.Context, user model.User, account model.Account) (model.User, model.Account, error) {
	return user, account, nil
}

func (f *fakeAccountStore) GetUserByUsername(ctx context.Context, username string) (*model.User, error) {
	return nil, apierror.NewAPIError(apierror.ErrNotFound, "not found", nil)
}

func (f *fakeAccountStore) GetUserByID(ctx context.Context, userID string) (*model.User, error) {
	return nil, apierror.NewAPIError(apierror.ErrNotFound, "not found", nil)
}

func (f *fakeAccountStore) CreateAccount(ctx context.Context, account model.Account) (model.Account, error) {
	return account, nil
}

func (f *fakeAccountStore) GetAccountsByUserID(ctx context.Context, userID string) ([]model.Account, error) {
	return nil, nil
}

func (f *fakeAccountStore) GetAllAccounts(ctx context.Context, limit, offset int) ([]model.Account, error) {
	return nil, nil
}

func (f *fakeAccountStore) UpdateAccountStatus(ctx context.Context, accountID string, status string) error {
	return nil
}

func (f *fakeAccountStore) GetTransaction(ctx context.Context, transactionID string) (*model.Transaction, error) {
	return nil, apierror.NewAPIError(apierror.ErrNotFound, "not found", nil)
}

func (f *fakeAccountStore) GetTransactionsByAccount(ctx context.Context, accountID string, from, to time.Time, limit, offset int) ([]model.Transaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]model.Transaction(nil), f.entries...), nil
}

func TestWithdraw_ConcurrentWithdrawalsNeverOverdraw(t *testing.T) {
	config.MockConfig(&config.Configuration{
		// Contention between ten goroutines can exceed the default retry
		// bound; the property under test is about funds, not retries.
		Ledger: config.LedgerConfig{CommitRetries: 100},
	})

	store := &fakeAccountStore{account: model.Account{
		AccountID: "acc_1",
		Number:    "2000000001",
		Balance:   decimal.RequireFromString("100.00"),
		Type:      model.AccountTypeSavings,
		Status:    model.AccountStatusActive,
		UserID:    "usr_1",
		Version:   1,
	}}
	k := &Kobo{datasource: store}

	const workers = 10
	amount := decimal.RequireFromString("30.00")

	var wg sync.WaitGroup
	results := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := k.Withdraw(context.Background(), customer, "2000000001", amount, "")
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	succeeded, insufficient := 0, 0
	for err := range results {
		if err == nil {
			succeeded++
			continue
		}
		require.Equal(t, apierror.ErrInsufficientFunds, apierror.CodeOf(err))
		insufficient++
	}

	// 100.00 covers exactly three 30.00 withdrawals, whatever the interleaving.
	assert.Equal(t, 3, succeeded)
	assert.Equal(t, workers-3, insufficient)

	store.mu.Lock()
	defer store.mu.Unlock()
	assert.True(t, store.account.Balance.Equal(decimal.RequireFromString("10.00")))
	assert.Len(t, store.entries, 3)
	for _, entry := range store.entries {
		assert.False(t, entry.BalanceAfter.IsNegative())
	}
}
