package kobo

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/trace"

	"github.com/koboledger/kobo/config"
	"github.com/koboledger/kobo/internal/apierror"
	"github.com/koboledger/kobo/model"
)

// commitRetryDelay is the pause between optimistic-lock retry attempts.
const commitRetryDelay = 50 * time.Millisecond

// TransferReceipt pairs the two ledger entries a transfer produces, one per
// leg, committed in the same database transaction.
type TransferReceipt struct {
	DebitEntry  *model.Transaction `json:"debit_entry"`
	CreditEntry *model.Transaction `json:"credit_entry"`
}

func logAndRecordError(span trace.Span, msg string, err error) error {
	span.RecordError(err)
	logrus.Error(msg, err)
	return err
}

// Deposit credits amount to the given account and records a DEPOSIT entry.
// The caller must own the account or be an admin. An empty description
// defaults to "Deposit".
func (l *Kobo) Deposit(ctx context.Context, caller CallerIdentity, accountNumber string, amount decimal.Decimal, description string) (*model.Transaction, error) {
	ctx, span := tracer.Start(ctx, "Depositing funds")
	defer span.End()

	if err := validateAmount(amount); err != nil {
		return nil, logAndRecordError(span, "deposit rejected: ", err)
	}
	if description == "" {
		description = "Deposit"
	}

	var entry *model.Transaction
	err := l.retryOnConflict(ctx, func() error {
		account, err := l.datasource.GetAccountByNumber(ctx, accountNumber)
		if err != nil {
			return err
		}
		if err := authorizeAccountAccess(caller, account.UserID); err != nil {
			return err
		}
		if err := ensureActive(account); err != nil {
			return err
		}

		account.ApplyCredit(amount)
		e := &model.Transaction{
			AccountID:    account.AccountID,
			Amount:       amount,
			Type:         model.TransactionTypeDeposit,
			Description:  description,
			BalanceAfter: account.Balance,
		}
		if err := l.datasource.CommitLedgerEntries(ctx, []*model.Account{account}, []*model.Transaction{e}); err != nil {
			return err
		}
		entry = e
		return nil
	})
	if err != nil {
		return nil, logAndRecordError(span, "deposit failed: ", err)
	}

	l.invalidateAccountCache(ctx, accountNumber)
	return entry, nil
}

// Withdraw debits amount from the given account and records a WITHDRAWAL
// entry. Fails with InsufficientFunds when the balance cannot cover the
// amount. An empty description defaults to "Withdrawal".
func (l *Kobo) Withdraw(ctx context.Context, caller CallerIdentity, accountNumber string, amount decimal.Decimal, description string) (*model.Transaction, error) {
	ctx, span := tracer.Start(ctx, "Withdrawing funds")
	defer span.End()

	if err := validateAmount(amount); err != nil {
		return nil, logAndRecordError(span, "withdrawal rejected: ", err)
	}
	if description == "" {
		description = "Withdrawal"
	}

	var entry *model.Transaction
	err := l.retryOnConflict(ctx, func() error {
		account, err := l.datasource.GetAccountByNumber(ctx, accountNumber)
		if err != nil {
			return err
		}
		if err := authorizeAccountAccess(caller, account.UserID); err != nil {
			return err
		}
		if err := ensureActive(account); err != nil {
			return err
		}

		if _, err := account.ApplyDebit(amount); err != nil {
			return apierror.NewAPIError(apierror.ErrInsufficientFunds, fmt.Sprintf("Account '%s' has insufficient funds", account.Number), err)
		}
		e := &model.Transaction{
			AccountID:    account.AccountID,
			Amount:       amount,
			Type:         model.TransactionTypeWithdrawal,
			Description:  description,
			BalanceAfter: account.Balance,
		}
		if err := l.datasource.CommitLedgerEntries(ctx, []*model.Account{account}, []*model.Transaction{e}); err != nil {
			return err
		}
		entry = e
		return nil
	})
	if err != nil {
		return nil, logAndRecordError(span, "withdrawal failed: ", err)
	}

	l.invalidateAccountCache(ctx, accountNumber)
	return entry, nil
}

// Transfer moves amount from one account to another, recording a
// TRANSFER_OUT entry on the source and a TRANSFER_IN entry on the
// destination in the same commit. The caller must own the source account or
// be an admin; no authorization is required against the destination.
func (l *Kobo) Transfer(ctx context.Context, caller CallerIdentity, fromNumber, toNumber string, amount decimal.Decimal, description string) (*TransferReceipt, error) {
	ctx, span := tracer.Start(ctx, "Transferring funds")
	defer span.End()

	if err := validateAmount(amount); err != nil {
		return nil, logAndRecordError(span, "transfer rejected: ", err)
	}

	var receipt *TransferReceipt
	err := l.retryOnConflict(ctx, func() error {
		source, err := l.datasource.GetAccountByNumber(ctx, fromNumber)
		if err != nil {
			return err
		}
		destination, err := l.datasource.GetAccountByNumber(ctx, toNumber)
		if err != nil {
			return err
		}
		if err := authorizeAccountAccess(caller, source.UserID); err != nil {
			return err
		}
		if err := ensureActive(source); err != nil {
			return err
		}
		if err := ensureActive(destination); err != nil {
			return err
		}

		if _, err := source.ApplyDebit(amount); err != nil {
			return apierror.NewAPIError(apierror.ErrInsufficientFunds, fmt.Sprintf("Account '%s' has insufficient funds", source.Number), err)
		}
		if source.Number == destination.Number {
			return apierror.NewAPIError(apierror.ErrSelfTransfer, "Cannot transfer to the same account", nil)
		}
		destination.ApplyCredit(amount)

		debitDescription := description
		creditDescription := description
		if description == "" {
			debitDescription = fmt.Sprintf("Transfer to %s", destination.Number)
			creditDescription = fmt.Sprintf("Transfer from %s", source.Number)
		}

		debitEntry := &model.Transaction{
			AccountID:       source.AccountID,
			Amount:          amount,
			Type:            model.TransactionTypeTransferOut,
			Description:     debitDescription,
			BalanceAfter:    source.Balance,
			ToAccountNumber: destination.Number,
		}
		creditEntry := &model.Transaction{
			AccountID:         destination.AccountID,
			Amount:            amount,
			Type:              model.TransactionTypeTransferIn,
			Description:       creditDescription,
			BalanceAfter:      destination.Balance,
			FromAccountNumber: source.Number,
		}

		// Apply balance updates in ascending account-number order so
		// concurrent transfers over the same pair never deadlock.
		accounts := []*model.Account{source, destination}
		sort.Slice(accounts, func(i, j int) bool { return accounts[i].Number < accounts[j].Number })

		if err := l.datasource.CommitLedgerEntries(ctx, accounts, []*model.Transaction{debitEntry, creditEntry}); err != nil {
			return err
		}
		receipt = &TransferReceipt{DebitEntry: debitEntry, CreditEntry: creditEntry}
		return nil
	})
	if err != nil {
		return nil, logAndRecordError(span, "transfer failed: ", err)
	}

	l.invalidateAccountCache(ctx, fromNumber, toNumber)
	return receipt, nil
}

// GetBalance returns the current balance of the given account.
func (l *Kobo) GetBalance(ctx context.Context, caller CallerIdentity, accountNumber string) (decimal.Decimal, error) {
	account, err := l.GetAccountDetails(ctx, caller, accountNumber)
	if err != nil {
		return decimal.Zero, err
	}
	return account.Balance, nil
}

// GetTransactionHistory returns the account's ledger entries within the
// given date range, newest first. Zero times leave the range unbounded.
func (l *Kobo) GetTransactionHistory(ctx context.Context, caller CallerIdentity, accountNumber string, from, to time.Time, limit, offset int) ([]model.Transaction, error) {
	ctx, span := tracer.Start(ctx, "Fetching transaction history")
	defer span.End()

	account, err := l.fetchAccount(ctx, accountNumber)
	if err != nil {
		return nil, logAndRecordError(span, "history fetch failed: ", err)
	}
	if err := authorizeAccountAccess(caller, account.UserID); err != nil {
		return nil, logAndRecordError(span, "history fetch rejected: ", err)
	}

	if limit <= 0 || limit > 100 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	return l.datasource.GetTransactionsByAccount(ctx, account.AccountID, from, to, limit, offset)
}

// GetLedgerEntry returns a single ledger entry by its transaction ID.
// Admin only; entries carry no owner reference of their own.
func (l *Kobo) GetLedgerEntry(ctx context.Context, caller CallerIdentity, transactionID string) (*model.Transaction, error) {
	if err := requireAdmin(caller); err != nil {
		return nil, err
	}
	return l.datasource.GetTransaction(ctx, transactionID)
}

// retryOnConflict runs op, retrying the whole read-validate-commit cycle a
// bounded number of times when the commit loses an optimistic-lock race.
// Any other failure aborts immediately.
func (l *Kobo) retryOnConflict(ctx context.Context, op func() error) error {
	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewConstantBackOff(commitRetryDelay), l.commitRetries()), ctx)
	return backoff.Retry(func() error {
		err := op()
		if err != nil && !apierror.IsConflict(err) {
			return backoff.Permanent(err)
		}
		return err
	}, policy)
}

func (l *Kobo) commitRetries() uint64 {
	cnf, err := config.Fetch()
	if err != nil {
		return config.DefaultCommitRetries
	}
	return uint64(cnf.Ledger.CommitRetries)
}

func validateAmount(amount decimal.Decimal) error {
	if err := model.ValidateAmount(amount); err != nil {
		return apierror.NewAPIError(apierror.ErrInvalidInput, err.Error(), err)
	}
	return nil
}

func ensureActive(account *model.Account) error {
	if !account.IsActive() {
		return apierror.NewAPIError(apierror.ErrInvalidState, fmt.Sprintf("Account '%s' is %s and cannot transact", account.Number, account.Status), nil)
	}
	return nil
}
