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

	"github.com/koboledger/kobo/internal/apierror"
	"github.com/koboledger/kobo/model"
)

// CreateUser inserts a new user record. The caller is expected to have
// hashed the password already; this layer never sees plaintext credentials.
func (d Datasource) CreateUser(ctx context.Context, user model.User) (model.User, error) {
	return insertUser(ctx, d.Conn, user)
}

func insertUser(ctx context.Context, run execer, user model.User) (model.User, error) {
	user.UserID = model.GenerateUUIDWithSuffix("usr")
	user.CreatedAt = time.Now()

	_, err := run.ExecContext(ctx, `
		INSERT INTO kobo.users (user_id, username, email, password, first_name, last_name, role, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, user.UserID, user.Username, user.Email, user.Password, user.FirstName, user.LastName, user.Role, user.CreatedAt)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return model.User{}, apierror.NewAPIError(apierror.ErrConflict, "User with this username or email already exists", err)
		}
		return model.User{}, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to create user", err)
	}

	return user, nil
}

// CreateUserWithAccount inserts a user and their first account in a single
// database transaction. Either both rows commit or neither does; a failed
// account insert never leaves an orphaned user able to log in.
func (d Datasource) CreateUserWithAccount(ctx context.Context, user model.User, account model.Account) (model.User, model.Account, error) {
	tx, err := d.Conn.BeginTx(ctx, nil)
	if err != nil {
		return model.User{}, model.Account{}, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to begin registration transaction", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	user, err = insertUser(ctx, tx, user)
	if err != nil {
		return model.User{}, model.Account{}, err
	}

	account.UserID = user.UserID
	account, err = insertAccount(ctx, tx, account)
	if err != nil {
		return model.User{}, model.Account{}, err
	}

	if err := tx.Commit(); err != nil {
		return model.User{}, model.Account{}, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to commit registration", err)
	}

	return user, account, nil
}

// GetUserByUsername retrieves a user by their unique username.
func (d Datasource) GetUserByUsername(ctx context.Context, username string) (*model.User, error) {
	row := d.Conn.QueryRowContext(ctx, `
		SELECT id, user_id, username, email, password, first_name, last_name, role, created_at
		FROM kobo.users
		WHERE username = $1
	`, username)

	return scanUserRow(row, fmt.Sprintf("User with username '%s' not found", username))
}

// GetUserByID retrieves a user by their user ID.
func (d Datasource) GetUserByID(ctx context.Context, userID string) (*model.User, error) {
	row := d.Conn.QueryRowContext(ctx, `
		SELECT id, user_id, username, email, password, first_name, last_name, role, created_at
		FROM kobo.users
		WHERE user_id = $1
	`, userID)

	return scanUserRow(row, fmt.Sprintf("User with ID '%s' not found", userID))
}

func scanUserRow(row *sql.Row, notFoundMsg string) (*model.User, error) {
	user := model.User{}
	err := row.Scan(&user.ID, &user.UserID, &user.Username, &user.Email, &user.Password,
		&user.FirstName, &user.LastName, &user.Role, &user.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apierror.NewAPIError(apierror.ErrNotFound, notFoundMsg, err)
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to scan user data", err)
	}
	return &user, nil
}
