package identity

import (
	"context"
	"testing"

	"github.com/parlorchat/parlor/internal/adapters/memory"
	domainauth "github.com/parlorchat/parlor/internal/domain/auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func newTestAuthenticator(t *testing.T) *AccountAuthenticator {
	t.Helper()
	a, err := NewAccountAuthenticator(AccountAuthenticatorOptions{
		Accounts:   memory.NewAccountStore(),
		BcryptCost: bcrypt.MinCost,
	})
	require.NoError(t, err)
	return a
}

func TestAccountAuthenticator_RegisterAndAuthenticate(t *testing.T) {
	ctx := context.Background()
	a := newTestAuthenticator(t)

	created, err := a.Register(ctx, "alice@example.com", "hunter22")
	require.NoError(t, err)
	assert.NotEmpty(t, created.UserID)
	assert.Equal(t, "alice@example.com", created.Email)

	got, err := a.Authenticate(ctx, "alice@example.com", "hunter22")
	require.NoError(t, err)
	assert.Equal(t, created.UserID, got.UserID)
}

func TestAccountAuthenticator_Failures(t *testing.T) {
	ctx := context.Background()
	a := newTestAuthenticator(t)
	_, err := a.Register(ctx, "alice@example.com", "hunter22")
	require.NoError(t, err)

	_, err = a.Register(ctx, "alice@example.com", "another1")
	assert.Equal(t, domainauth.CodeEmailAlreadyInUse, domainauth.CodeOf(err))

	_, err = a.Register(ctx, "bob@example.com", "123")
	assert.Equal(t, domainauth.CodeWeakPassword, domainauth.CodeOf(err))

	_, err = a.Authenticate(ctx, "alice@example.com", "wrong-pass")
	assert.Equal(t, domainauth.CodeInvalidCredential, domainauth.CodeOf(err))

	_, err = a.Authenticate(ctx, "nobody@example.com", "hunter22")
	assert.Equal(t, domainauth.CodeInvalidCredential, domainauth.CodeOf(err))
}

func TestAccountAuthenticator_Delete(t *testing.T) {
	ctx := context.Background()
	a := newTestAuthenticator(t)
	created, err := a.Register(ctx, "alice@example.com", "hunter22")
	require.NoError(t, err)

	require.NoError(t, a.Delete(ctx, created.UserID))
	err = a.Delete(ctx, created.UserID)
	assert.Equal(t, domainauth.CodeUserNotFound, domainauth.CodeOf(err))

	_, err = a.Authenticate(ctx, "alice@example.com", "hunter22")
	assert.Equal(t, domainauth.CodeInvalidCredential, domainauth.CodeOf(err))
}
