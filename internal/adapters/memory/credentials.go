package memory

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/parlorchat/parlor/internal/ports"
)

var _ ports.CredentialStore = (*CredentialStore)(nil)

// CredentialStore holds credentials for the lifetime of the process.
type CredentialStore struct {
	mu    sync.Mutex
	creds map[string]ports.Credential
	now   func() time.Time
}

// NewCredentialStore creates an empty CredentialStore.
func NewCredentialStore() *CredentialStore {
	return &CredentialStore{creds: make(map[string]ports.Credential), now: time.Now}
}

func (s *CredentialStore) Save(_ context.Context, cred ports.Credential) error {
	if cred.Key == "" {
		return errors.New("credential key cannot be empty")
	}
	if !cred.ExpiresAt.After(s.now()) {
		return errors.New("credential is expired")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.creds[cred.Key] = cred
	return nil
}

func (s *CredentialStore) Get(_ context.Context, key string) (ports.Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cred, ok := s.creds[key]
	if !ok {
		return ports.Credential{}, ports.ErrCredentialNotFound
	}
	if s.now().After(cred.ExpiresAt) {
		delete(s.creds, key)
		return ports.Credential{}, ports.ErrCredentialNotFound
	}
	return cred, nil
}

func (s *CredentialStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.creds, key)
	return nil
}
