package kobo

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/koboledger/kobo/config"
	"github.com/koboledger/kobo/internal/apierror"
	"github.com/koboledger/kobo/model"
)

// accountCacheTTL bounds how stale a cached account read can be.
const accountCacheTTL = 5 * time.Minute

// CreateAccount provisions a new account for the given user. Account numbers
// are drawn at random; when a draw collides with an existing number the loop
// re-draws, up to the configured number of attempts.
func (l *Kobo) CreateAccount(ctx context.Context, userID, accountType string, openingBalance decimal.Decimal) (*model.Account, error) {
	ctx, span := tracer.Start(ctx, "Provisioning account")
	defer span.End()

	if !model.ValidAccountType(accountType) {
		err := apierror.NewAPIError(apierror.ErrInvalidInput, fmt.Sprintf("'%s' is not a valid account type", accountType), nil)
		return nil, logAndRecordError(span, "account provisioning rejected: ", err)
	}
	if openingBalance.IsNegative() {
		err := apierror.NewAPIError(apierror.ErrInvalidInput, "Opening balance cannot be negative", nil)
		return nil, logAndRecordError(span, "account provisioning rejected: ", err)
	}

	attempts := l.provisionAttempts()
	for i := 0; i < attempts; i++ {
		account, err := l.datasource.CreateAccount(ctx, model.Account{
			Number:  model.NewAccountNumber(),
			Balance: openingBalance,
			Type:    accountType,
			Status:  model.AccountStatusActive,
			UserID:  userID,
		})
		if err != nil {
			if apierror.CodeOf(err) == apierror.ErrDuplicateNumber {
				logrus.Warnf("account number collision on attempt %d of %d, redrawing", i+1, attempts)
				continue
			}
			return nil, logAndRecordError(span, "account provisioning failed: ", err)
		}
		return &account, nil
	}

	err := apierror.NewAPIError(apierror.ErrProvisioningExhausted, fmt.Sprintf("Could not find a free account number after %d attempts", attempts), nil)
	return nil, logAndRecordError(span, "account provisioning exhausted: ", err)
}

// GetAccountDetails returns the account with the given number, including its
// owner's identity. The caller must own the account or be an admin.
func (l *Kobo) GetAccountDetails(ctx context.Context, caller CallerIdentity, accountNumber string) (*model.Account, error) {
	account, err := l.fetchAccount(ctx, accountNumber)
	if err != nil {
		return nil, err
	}
	if err := authorizeAccountAccess(caller, account.UserID); err != nil {
		return nil, err
	}
	return account, nil
}

// GetMyAccounts returns every account owned by the caller.
func (l *Kobo) GetMyAccounts(ctx context.Context, caller CallerIdentity) ([]model.Account, error) {
	return l.datasource.GetAccountsByUserID(ctx, caller.UserID)
}

// ListAllAccounts returns accounts across all users, paginated. Admin only.
func (l *Kobo) ListAllAccounts(ctx context.Context, caller CallerIdentity, limit, offset int) ([]model.Account, error) {
	if err := requireAdmin(caller); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return l.datasource.GetAllAccounts(ctx, limit, offset)
}

// SetAccountStatus freezes, closes, or reactivates an account. Admin only.
func (l *Kobo) SetAccountStatus(ctx context.Context, caller CallerIdentity, accountNumber, status string) (*model.Account, error) {
	if err := requireAdmin(caller); err != nil {
		return nil, err
	}
	switch status {
	case model.AccountStatusActive, model.AccountStatusFrozen, model.AccountStatusClosed:
	default:
		return nil, apierror.NewAPIError(apierror.ErrInvalidInput, fmt.Sprintf("'%s' is not a valid account status", status), nil)
	}

	account, err := l.datasource.GetAccountByNumber(ctx, accountNumber)
	if err != nil {
		return nil, err
	}
	if err := l.datasource.UpdateAccountStatus(ctx, account.AccountID, status); err != nil {
		return nil, err
	}
	account.Status = status

	l.invalidateAccountCache(ctx, accountNumber)
	return account, nil
}

// fetchAccount resolves an account by number through the cache. Mutating
// operations bypass this and read the datasource directly so they always see
// the current version.
func (l *Kobo) fetchAccount(ctx context.Context, accountNumber string) (*model.Account, error) {
	cacheKey := accountCacheKey(accountNumber)
	if l.cache != nil {
		var cached model.Account
		if err := l.cache.Get(ctx, cacheKey, &cached); err == nil && cached.AccountID != "" {
			return &cached, nil
		}
	}

	account, err := l.datasource.GetAccountByNumber(ctx, accountNumber)
	if err != nil {
		return nil, err
	}

	if l.cache != nil {
		if err := l.cache.Set(ctx, cacheKey, account, accountCacheTTL); err != nil {
			logrus.Warnf("failed to cache account %s: %v", accountNumber, err)
		}
	}
	return account, nil
}

func (l *Kobo) invalidateAccountCache(ctx context.Context, accountNumbers ...string) {
	if l.cache == nil {
		return
	}
	for _, number := range accountNumbers {
		if err := l.cache.Delete(ctx, accountCacheKey(number)); err != nil {
			logrus.Warnf("failed to invalidate account cache for %s: %v", number, err)
		}
	}
}

func accountCacheKey(accountNumber string) string {
	return fmt.Sprintf("account:%s", accountNumber)
}

func (l *Kobo) provisionAttempts() int {
	cnf, err := config.Fetch()
	if err != nil {
		return config.DefaultProvisionAttempts
	}
	return cnf.Ledger.ProvisionAttempts
}
