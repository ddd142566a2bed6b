package memory

// Package memory provides in-process adapters for local development and tests.

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/parlorchat/parlor/internal/ports"
)

var _ ports.AccountStore = (*AccountStore)(nil)

// AccountStore keeps accounts in a map keyed by ID with an e-mail index.
type AccountStore struct {
	mu      sync.RWMutex
	byID    map[string]ports.Account
	byEmail map[string]string
}

// NewAccountStore creates an empty AccountStore.
func NewAccountStore() *AccountStore {
	return &AccountStore{
		byID:    make(map[string]ports.Account),
		byEmail: make(map[string]string),
	}
}

func (s *AccountStore) Create(_ context.Context, acct ports.Account) (ports.Account, error) {
	if acct.ID == "" {
		return ports.Account{}, errors.New("account ID cannot be empty")
	}
	email := strings.ToLower(acct.Email)

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, taken := s.byEmail[email]; taken {
		return ports.Account{}, ports.ErrAccountExists
	}
	if _, taken := s.byID[acct.ID]; taken {
		return ports.Account{}, ports.ErrAccountExists
	}
	acct.Email = email
	s.byID[acct.ID] = acct
	s.byEmail[email] = acct.ID
	return acct, nil
}

func (s *AccountStore) GetByEmail(_ context.Context, email string) (ports.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byEmail[strings.ToLower(email)]
	if !ok {
		return ports.Account{}, ports.ErrAccountNotFound
	}
	return s.byID[id], nil
}

func (s *AccountStore) GetByID(_ context.Context, id string) (ports.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	acct, ok := s.byID[id]
	if !ok {
		return ports.Account{}, ports.ErrAccountNotFound
	}
	return acct, nil
}

func (s *AccountStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	acct, ok := s.byID[id]
	if !ok {
		return ports.ErrAccountNotFound
	}
	delete(s.byID, id)
	delete(s.byEmail, acct.Email)
	return nil
}
