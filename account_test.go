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
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/koboledger/kobo/config"
	"github.com/koboledger/kobo/database/mocks"
	"github.com/koboledger/kobo/internal/apierror"
	"github.com/koboledger/kobo/model"
)

func newMockedKobo(_ *testing.T) (*Kobo, *mocks.MockDataSource) {
	config.MockConfig(&config.Configuration{})
	ds := &mocks.MockDataSource{}
	return &Kobo{datasource: ds}, ds
}

func TestCreateAccount_Success(t *testing.T) {
	k, ds := newMockedKobo(t)

	ds.On("CreateAccount", mock.Anything, mock.MatchedBy(func(a model.Account) bool {
		return len(a.Number) == model.AccountNumberLength &&
			a.Type == model.AccountTypeSavings &&
			a.Status == model.AccountStatusActive &&
			a.UserID == "usr_1" &&
			a.Balance.IsZero()
	})).Return(model.Account{AccountID: "acc_1", Number: "2000000001", Status: model.AccountStatusActive}, nil).Once()

	account, err := k.CreateAccount(context.Background(), "usr_1", model.AccountTypeSavings, decimal.Zero)
	require.NoError(t, err)
	assert.Equal(t, "acc_1", account.AccountID)

	ds.AssertExpectations(t)
}

func TestCreateAccount_RedrawsOnNumberCollision(t *testing.T) {
	k, ds := newMockedKobo(t)

	conflict := apierror.NewAPIError(apierror.ErrDuplicateNumber, "Account with this number already exists", nil)
	ds.On("CreateAccount", mock.Anything, mock.Anything).Return(model.Account{}, conflict).Twice()
	ds.On("CreateAccount", mock.Anything, mock.Anything).Return(model.Account{AccountID: "acc_1"}, nil).Once()

	account, err := k.CreateAccount(context.Background(), "usr_1", model.AccountTypeChecking, decimal.Zero)
	require.NoError(t, err)
	assert.Equal(t, "acc_1", account.AccountID)

	ds.AssertNumberOfCalls(t, "CreateAccount", 3)
}

func TestCreateAccount_ExhaustsProvisionAttempts(t *testing.T) {
	k, ds := newMockedKobo(t)

	conflict := apierror.NewAPIError(apierror.ErrDuplicateNumber, "Account with this number already exists", nil)
	ds.On("CreateAccount", mock.Anything, mock.Anything).Return(model.Account{}, conflict)

	_, err := k.CreateAccount(context.Background(), "usr_1", model.AccountTypeSavings, decimal.Zero)
	assert.Error(t, err)
	assert.Equal(t, apierror.ErrProvisioningExhausted, apierror.CodeOf(err))

	ds.AssertNumberOfCalls(t, "CreateAccount", config.DefaultProvisionAttempts)
}

func TestCreateAccount_InvalidType(t *testing.T) {
	k, ds := newMockedKobo(t)

	_, err := k.CreateAccount(context.Background(), "usr_1", "GOLD", decimal.Zero)
	assert.Error(t, err)
	assert.Equal(t, apierror.ErrInvalidInput, apierror.CodeOf(err))

	ds.AssertNotCalled(t, "CreateAccount")
}

func TestCreateAccount_NegativeOpeningBalance(t *testing.T) {
	k, ds := newMockedKobo(t)

	_, err := k.CreateAccount(context.Background(), "usr_1", model.AccountTypeSavings, decimal.RequireFromString("-1"))
	assert.Error(t, err)
	assert.Equal(t, apierror.ErrInvalidInput, apierror.CodeOf(err))

	ds.AssertNotCalled(t, "CreateAccount")
}

func TestCreateAccount_NonConflictErrorStopsLoop(t *testing.T) {
	k, ds := newMockedKobo(t)

	boom := apierror.NewAPIError(apierror.ErrInternalServer, "Failed to create account", nil)
	ds.On("CreateAccount", mock.Anything, mock.Anything).Return(model.Account{}, boom).Once()

	_, err := k.CreateAccount(context.Background(), "usr_1", model.AccountTypeSavings, decimal.Zero)
	assert.Error(t, err)
	assert.Equal(t, apierror.ErrInternalServer, apierror.CodeOf(err))

	ds.AssertNumberOfCalls(t, "CreateAccount", 1)
}

func TestGetMyAccounts(t *testing.T) {
	k, ds := newMockedKobo(t)

	ds.On("GetAccountsByUserID", mock.Anything, "usr_1").
		Return([]model.Account{{AccountID: "acc_1"}, {AccountID: "acc_2"}}, nil).Once()

	accounts, err := k.GetMyAccounts(context.Background(), customer)
	require.NoError(t, err)
	assert.Len(t, accounts, 2)
}

func TestListAllAccounts_AdminOnly(t *testing.T) {
	k, ds := newMockedKobo(t)

	_, err := k.ListAllAccounts(context.Background(), customer, 50, 0)
	assert.Error(t, err)
	assert.Equal(t, apierror.ErrForbidden, apierror.CodeOf(err))
	ds.AssertNotCalled(t, "GetAllAccounts")

	ds.On("GetAllAccounts", mock.Anything, 50, 0).Return([]model.Account{{AccountID: "acc_1"}}, nil).Once()
	accounts, err := k.ListAllAccounts(context.Background(), admin, 0, 0)
	require.NoError(t, err)
	assert.Len(t, accounts, 1)
}

func TestSetAccountStatus(t *testing.T) {
	k, ds := newMockedKobo(t)

	ds.On("GetAccountByNumber", mock.Anything, "2000000001").
		Return(&model.Account{AccountID: "acc_1", Number: "2000000001", Status: model.AccountStatusActive}, nil).Once()
	ds.On("UpdateAccountStatus", mock.Anything, "acc_1", model.AccountStatusFrozen).Return(nil).Once()

	account, err := k.SetAccountStatus(context.Background(), admin, "2000000001", model.AccountStatusFrozen)
	require.NoError(t, err)
	assert.Equal(t, model.AccountStatusFrozen, account.Status)

	ds.AssertExpectations(t)
}

func TestSetAccountStatus_RejectsCustomerAndBadStatus(t *testing.T) {
	k, ds := newMockedKobo(t)

	_, err := k.SetAccountStatus(context.Background(), customer, "2000000001", model.AccountStatusFrozen)
	assert.Equal(t, apierror.ErrForbidden, apierror.CodeOf(err))

	_, err = k.SetAccountStatus(context.Background(), admin, "2000000001", "SUSPENDED")
	assert.Equal(t, apierror.ErrInvalidInput, apierror.CodeOf(err))

	ds.AssertNotCalled(t, "UpdateAccountStatus")
}
