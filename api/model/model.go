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
package model

import (
	"errors"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	"github.com/shopspring/decimal"

	"github.com/koboledger/kobo/model"
)

// RegisterUser is the payload for POST /auth/register.
type RegisterUser struct {
	Username    string `json:"username"`
	Email       string `json:"email"`
	Password    string `json:"password"`
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	AccountType string `json:"account_type"`
}

// LoginUser is the payload for POST /auth/login.
type LoginUser struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LedgerOperation is the payload for deposits and withdrawals.
type LedgerOperation struct {
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description"`
}

// CreateTransfer is the payload for POST /transfers.
type CreateTransfer struct {
	FromAccountNumber string          `json:"from_account_number"`
	ToAccountNumber   string          `json:"to_account_number"`
	Amount            decimal.Decimal `json:"amount"`
	Description       string          `json:"description"`
}

// CreateAccount is the payload for provisioning an additional account.
type CreateAccount struct {
	AccountType string `json:"account_type"`
}

// UpdateAccountStatus is the payload for the admin status endpoint.
type UpdateAccountStatus struct {
	Status string `json:"status"`
}

func amountValidation(value interface{}) error {
	amount, ok := value.(decimal.Decimal)
	if !ok {
		return errors.New("invalid amount")
	}
	return model.ValidateAmount(amount)
}

func (r *RegisterUser) ValidateRegisterUser() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.Username, validation.Required, validation.Length(3, 64)),
		validation.Field(&r.Email, validation.Required, is.Email),
		validation.Field(&r.Password, validation.Required, validation.Length(8, 128)),
		validation.Field(&r.FirstName, validation.Required),
		validation.Field(&r.LastName, validation.Required),
		validation.Field(&r.AccountType, validation.Required, validation.In(model.AccountTypeSavings, model.AccountTypeChecking, model.AccountTypeBusiness)),
	)
}

func (l *LoginUser) ValidateLoginUser() error {
	return validation.ValidateStruct(l,
		validation.Field(&l.Username, validation.Required),
		validation.Field(&l.Password, validation.Required),
	)
}

func (o *LedgerOperation) ValidateLedgerOperation() error {
	return validation.ValidateStruct(o,
		validation.Field(&o.Amount, validation.Required, validation.By(amountValidation)),
	)
}

func (t *CreateTransfer) ValidateCreateTransfer() error {
	return validation.ValidateStruct(t,
		validation.Field(&t.FromAccountNumber, validation.Required, validation.Length(model.AccountNumberLength, model.AccountNumberLength), is.Digit),
		validation.Field(&t.ToAccountNumber, validation.Required, validation.Length(model.AccountNumberLength, model.AccountNumberLength), is.Digit),
		validation.Field(&t.Amount, validation.Required, validation.By(amountValidation)),
	)
}

func (a *CreateAccount) ValidateCreateAccount() error {
	return validation.ValidateStruct(a,
		validation.Field(&a.AccountType, validation.Required, validation.In(model.AccountTypeSavings, model.AccountTypeChecking, model.AccountTypeBusiness)),
	)
}

func (u *UpdateAccountStatus) ValidateUpdateAccountStatus() error {
	return validation.ValidateStruct(u,
		validation.Field(&u.Status, validation.Required, validation.In(model.AccountStatusActive, model.AccountStatusFrozen, model.AccountStatusClosed)),
	)
}
