package identity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	domainauth "github.com/parlorchat/parlor/internal/domain/auth"
	"github.com/parlorchat/parlor/internal/ports"
)

const defaultMinPasswordLength = 6

var _ ports.Authenticator = (*AccountAuthenticator)(nil)

// AccountAuthenticatorOptions groups dependencies for AccountAuthenticator.
type AccountAuthenticatorOptions struct {
	Accounts          ports.AccountStore
	MinPasswordLength int // default 6
	BcryptCost        int // default bcrypt.DefaultCost
}

// AccountAuthenticator verifies e-mail/password pairs against an AccountStore.
type AccountAuthenticator struct {
	accounts  ports.AccountStore
	minLength int
	cost      int
	now       func() time.Time
}

// NewAccountAuthenticator constructs an AccountAuthenticator.
func NewAccountAuthenticator(opts AccountAuthenticatorOptions) (*AccountAuthenticator, error) {
	if opts.Accounts == nil {
		return nil, errors.New("account store is required")
	}
	minLength := opts.MinPasswordLength
	if minLength <= 0 {
		minLength = defaultMinPasswordLength
	}
	return &AccountAuthenticator{
		accounts:  opts.Accounts,
		minLength: minLength,
		cost:      opts.BcryptCost,
		now:       time.Now,
	}, nil
}

// Authenticate returns the identity for a matching e-mail/password pair.
// Unknown e-mail and wrong password are deliberately indistinguishable.
func (a *AccountAuthenticator) Authenticate(ctx context.Context, email, password string) (domainauth.Identity, error) {
	acct, err := a.accounts.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ports.ErrAccountNotFound) {
			return domainauth.Identity{}, errInvalidCredential()
		}
		return domainauth.Identity{}, domainauth.WrapBackendError(domainauth.CodeInternal, "account lookup failed", err)
	}
	if verifyErr := VerifyPassword(acct.PasswordHash, password); verifyErr != nil {
		return domainauth.Identity{}, errInvalidCredential()
	}
	return accountIdentity(acct), nil
}

// Register creates a new account for email.
func (a *AccountAuthenticator) Register(ctx context.Context, email, password string) (domainauth.Identity, error) {
	if len(password) < a.minLength {
		return domainauth.Identity{}, domainauth.NewBackendError(domainauth.CodeWeakPassword,
			fmt.Sprintf("password should be at least %d characters", a.minLength))
	}
	hash, err := HashPassword(password, a.cost)
	if err != nil {
		return domainauth.Identity{}, domainauth.WrapBackendError(domainauth.CodeWeakPassword, "password cannot be used", err)
	}

	acct, err := a.accounts.Create(ctx, ports.Account{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: hash,
		CreatedAt:    a.now().UTC(),
	})
	if err != nil {
		if errors.Is(err, ports.ErrAccountExists) {
			return domainauth.Identity{}, domainauth.NewBackendError(domainauth.CodeEmailAlreadyInUse,
				"the e-mail address is already in use by another account")
		}
		return domainauth.Identity{}, domainauth.WrapBackendError(domainauth.CodeInternal, "create account failed", err)
	}
	return accountIdentity(acct), nil
}

// Delete removes the account with the given ID.
func (a *AccountAuthenticator) Delete(ctx context.Context, userID string) error {
	if err := a.accounts.Delete(ctx, userID); err != nil {
		if errors.Is(err, ports.ErrAccountNotFound) {
			return domainauth.NewBackendError(domainauth.CodeUserNotFound, "no account for this user")
		}
		return domainauth.WrapBackendError(domainauth.CodeInternal, "delete account failed", err)
	}
	return nil
}

func accountIdentity(acct ports.Account) domainauth.Identity {
	return domainauth.Identity{
		UserID:        acct.ID,
		Email:         acct.Email,
		EmailVerified: acct.EmailVerified,
		CreatedAt:     acct.CreatedAt,
	}
}

func errInvalidCredential() error {
	return domainauth.NewBackendError(domainauth.CodeInvalidCredential, "the supplied credentials are incorrect")
}
