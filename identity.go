package kobo

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"github.com/koboledger/kobo/config"
	"github.com/koboledger/kobo/internal/apierror"
	"github.com/koboledger/kobo/model"
)

// TokenClaims is the JWT payload issued on login and resolved back into a
// CallerIdentity by the API middleware.
type TokenClaims struct {
	Username string `json:"username"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}

// RegisterUser creates a new customer with a hashed password and provisions
// their first account in the same database transaction, so a failed
// provisioning attempt leaves no user behind. The account opens empty;
// funds arrive through deposits.
func (l *Kobo) RegisterUser(ctx context.Context, username, email, password, firstName, lastName, accountType string) (*model.User, *model.Account, error) {
	ctx, span := tracer.Start(ctx, "Registering user")
	defer span.End()

	if !model.ValidAccountType(accountType) {
		err := apierror.NewAPIError(apierror.ErrInvalidInput, fmt.Sprintf("'%s' is not a valid account type", accountType), nil)
		return nil, nil, logAndRecordError(span, "registration rejected: ", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, nil, logAndRecordError(span, "password hashing failed: ", apierror.NewAPIError(apierror.ErrInternalServer, "Failed to hash password", err))
	}

	newUser := model.User{
		Username:  username,
		Email:     email,
		Password:  string(hash),
		FirstName: firstName,
		LastName:  lastName,
		Role:      model.RoleCustomer,
	}

	attempts := l.provisionAttempts()
	for i := 0; i < attempts; i++ {
		user, account, err := l.datasource.CreateUserWithAccount(ctx, newUser, model.Account{
			Number:  model.NewAccountNumber(),
			Balance: decimal.Zero,
			Type:    accountType,
			Status:  model.AccountStatusActive,
		})
		if err != nil {
			if apierror.CodeOf(err) == apierror.ErrDuplicateNumber {
				logrus.Warnf("account number collision on attempt %d of %d, redrawing", i+1, attempts)
				continue
			}
			return nil, nil, logAndRecordError(span, "user registration failed: ", err)
		}
		return &user, &account, nil
	}

	err = apierror.NewAPIError(apierror.ErrProvisioningExhausted, fmt.Sprintf("Could not find a free account number after %d attempts", attempts), nil)
	return nil, nil, logAndRecordError(span, "registration exhausted: ", err)
}

// AuthenticateUser verifies credentials and issues a signed bearer token
// carrying the user's ID and role. Unknown usernames and wrong passwords are
// indistinguishable to the caller.
func (l *Kobo) AuthenticateUser(ctx context.Context, username, password string) (string, *model.User, error) {
	ctx, span := tracer.Start(ctx, "Authenticating user")
	defer span.End()

	invalidCredentials := apierror.NewAPIError(apierror.ErrUnauthorized, "Invalid username or password", nil)

	user, err := l.datasource.GetUserByUsername(ctx, username)
	if err != nil {
		if apierror.CodeOf(err) == apierror.ErrNotFound {
			return "", nil, invalidCredentials
		}
		return "", nil, logAndRecordError(span, "authentication failed: ", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)); err != nil {
		return "", nil, invalidCredentials
	}

	token, err := l.issueToken(user)
	if err != nil {
		return "", nil, logAndRecordError(span, "token issuance failed: ", err)
	}

	return token, user, nil
}

// VerifyToken parses and validates a bearer token, returning the
// CallerIdentity it carries.
func VerifyToken(tokenString string) (CallerIdentity, error) {
	cnf, err := config.Fetch()
	if err != nil {
		return CallerIdentity{}, err
	}

	claims := &TokenClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(cnf.Server.SecretKey), nil
	})
	if err != nil || !token.Valid {
		return CallerIdentity{}, apierror.NewAPIError(apierror.ErrUnauthorized, "Invalid or expired token", err)
	}

	return CallerIdentity{UserID: claims.Subject, Role: claims.Role}, nil
}

func (l *Kobo) issueToken(user *model.User) (string, error) {
	cnf, err := config.Fetch()
	if err != nil {
		return "", err
	}

	now := time.Now()
	claims := TokenClaims{
		Username: user.Username,
		Role:     user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Duration(cnf.Server.TokenExpiryHours) * time.Hour)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(cnf.Server.SecretKey))
}
