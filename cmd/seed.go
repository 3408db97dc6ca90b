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

package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"

	"github.com/koboledger/kobo/config"
	"github.com/koboledger/kobo/database"
	"github.com/koboledger/kobo/internal/apierror"
	"github.com/koboledger/kobo/model"
)

type seedUser struct {
	Username      string
	Email         string
	Password      string
	FirstName     string
	LastName      string
	Role          string
	AccountNumber string
	AccountType   string
	Balance       string
}

var seedUsers = []seedUser{
	{
		Username: "admin", Email: "admin@kobo.local", Password: "admin-password",
		FirstName: "Ada", LastName: "Okafor", Role: model.RoleAdmin,
		AccountNumber: "1000000001", AccountType: model.AccountTypeChecking, Balance: "1000000.00",
	},
	{
		Username: "customer1", Email: "customer1@kobo.local", Password: "customer1-password",
		FirstName: "Jane", LastName: "Doe", Role: model.RoleCustomer,
		AccountNumber: "2000000001", AccountType: model.AccountTypeSavings, Balance: "5000.00",
	},
	{
		Username: "customer2", Email: "customer2@kobo.local", Password: "customer2-password",
		FirstName: "John", LastName: "Mark", Role: model.RoleCustomer,
		AccountNumber: "2000000002", AccountType: model.AccountTypeSavings, Balance: "3000.00",
	},
}

// seedCommands creates the command that loads a small set of demo users and
// accounts. Running it more than once is safe; rows that already exist are
// left untouched.
func seedCommands(_ *koboInstance) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "load demo users and accounts",
		Run: func(cmd *cobra.Command, args []string) {
			ctx := context.Background()

			cnf, err := config.Fetch()
			if err != nil {
				log.Printf("Error fetching config: %v", err)
				return
			}

			ds, err := database.NewDataSource(cnf)
			if err != nil {
				log.Printf("Error getting datasource: %v", err)
				return
			}

			for _, s := range seedUsers {
				if err := seedOne(ctx, ds, s); err != nil {
					log.Printf("Error seeding %s: %v", s.Username, err)
					return
				}
			}
			fmt.Println("Seed complete!")
		},
	}

	return cmd
}

func seedOne(ctx context.Context, ds database.IDataSource, s seedUser) error {
	user, err := ds.GetUserByUsername(ctx, s.Username)
	if err != nil {
		if apierror.CodeOf(err) != apierror.ErrNotFound {
			return err
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(s.Password), bcrypt.DefaultCost)
		if err != nil {
			return err
		}
		created, err := ds.CreateUser(ctx, model.User{
			Username:  s.Username,
			Email:     s.Email,
			Password:  string(hash),
			FirstName: s.FirstName,
			LastName:  s.LastName,
			Role:      s.Role,
			CreatedAt: time.Now(),
		})
		if err != nil {
			return err
		}
		user = &created
	}

	accounts, err := ds.GetAccountsByUserID(ctx, user.UserID)
	if err != nil {
		return err
	}
	if len(accounts) > 0 {
		return nil
	}

	balance, err := decimal.NewFromString(s.Balance)
	if err != nil {
		return err
	}
	_, err = ds.CreateAccount(ctx, model.Account{
		Number:    s.AccountNumber,
		Balance:   balance,
		Type:      s.AccountType,
		Status:    model.AccountStatusActive,
		UserID:    user.UserID,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	})
	if err != nil && apierror.CodeOf(err) != apierror.ErrDuplicateNumber {
		return err
	}
	return nil
}
