package ports

// Package ports defines interfaces (hexagonal ports) for identity and document behavior.
// Implementations live in internal/adapters and internal/data; orchestration in internal/service.

import (
	"context"
	"errors"
	"time"

	domainauth "github.com/parlorchat/parlor/internal/domain/auth"
)

// IdentityListener receives identity change events. A nil identity means signed out.
type IdentityListener func(id *domainauth.Identity)

// Unsubscribe releases a listener registration. Calling it more than once is a no-op.
type Unsubscribe func()

// IdentityBackend is the external identity service contract.
type IdentityBackend interface {
	// Subscribe registers listener for identity changes. The current identity is
	// delivered as the first event.
	Subscribe(listener IdentityListener) (Unsubscribe, error)

	// SignIn authenticates and makes the identity current.
	SignIn(ctx context.Context, email, password string) (domainauth.Identity, error)

	// SignUp creates an identity and makes it current.
	SignUp(ctx context.Context, email, password string) (domainauth.Identity, error)

	// SignOut clears the current identity. Signing out while signed out is a no-op.
	SignOut(ctx context.Context) error

	// DeleteUser removes the identity with userID from the backend. It signs out
	// only when that identity is the current one.
	DeleteUser(ctx context.Context, userID string) error
}

// DocumentStore is the keyed document persistence contract.
type DocumentStore interface {
	// Get decodes the document into dst and reports whether it exists.
	Get(ctx context.Context, collection, key string, dst any) (bool, error)
	// Set creates or replaces the document.
	Set(ctx context.Context, collection, key string, value any) error
	// Delete removes the document; deleting a missing document is not an error.
	Delete(ctx context.Context, collection, key string) error
}

// Authenticator verifies and provisions credentials on behalf of an identity backend.
type Authenticator interface {
	Authenticate(ctx context.Context, email, password string) (domainauth.Identity, error)
	Register(ctx context.Context, email, password string) (domainauth.Identity, error)
	Delete(ctx context.Context, userID string) error
}

// Account is a stored credential record.
type Account struct {
	ID            string
	Email         string
	PasswordHash  string
	EmailVerified bool
	CreatedAt     time.Time
}

// AccountStore persists accounts keyed by normalized e-mail.
type AccountStore interface {
	Create(ctx context.Context, acct Account) (Account, error)
	GetByEmail(ctx context.Context, email string) (Account, error)
	GetByID(ctx context.Context, id string) (Account, error)
	Delete(ctx context.Context, id string) error
}

// Credential is a persisted sign-in that survives restarts.
type Credential struct {
	Key       string    `json:"key"`
	UserID    string    `json:"user_id"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// CredentialStore persists the backend's current credential.
type CredentialStore interface {
	Save(ctx context.Context, cred Credential) error
	Get(ctx context.Context, key string) (Credential, error)
	Delete(ctx context.Context, key string) error
}

var (
	// ErrAccountExists is returned when creating an account whose e-mail is taken.
	ErrAccountExists = errors.New("account already exists")
	// ErrAccountNotFound is returned when no account matches.
	ErrAccountNotFound = errors.New("account not found")
	// ErrCredentialNotFound is returned when no credential is stored under a key.
	ErrCredentialNotFound = errors.New("credential not found")
)
