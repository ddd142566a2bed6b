package redis

// Package redis provides Redis-based adapters for credentials and documents.

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/parlorchat/parlor/internal/ports"
	"github.com/redis/go-redis/v9"
)

var _ ports.CredentialStore = (*CredentialStore)(nil)

// CredentialStore is a Redis-based credential store.
// TTL follows the credential's ExpiresAt.
type CredentialStore struct {
	client redis.UniversalClient
	prefix string
}

// NewCredentialStore creates a Redis credential store with the default key prefix.
func NewCredentialStore(client redis.UniversalClient) *CredentialStore {
	return NewCredentialStoreWithPrefix(client, "credential:")
}

// NewCredentialStoreWithPrefix creates a Redis credential store with a custom key prefix.
func NewCredentialStoreWithPrefix(client redis.UniversalClient, prefix string) *CredentialStore {
	return &CredentialStore{
		client: client,
		prefix: prefix,
	}
}

func (s *CredentialStore) Save(ctx context.Context, cred ports.Credential) error {
	if cred.Key == "" {
		return errors.New("credential key cannot be empty")
	}

	ttl := time.Until(cred.ExpiresAt)
	if ttl <= 0 {
		return errors.New("credential is expired")
	}

	data, err := json.Marshal(cred)
	if err != nil {
		return fmt.Errorf("marshal credential: %w", err)
	}

	if err := s.client.Set(ctx, s.prefix+cred.Key, data, ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

func (s *CredentialStore) Get(ctx context.Context, key string) (ports.Credential, error) {
	if key == "" {
		return ports.Credential{}, ports.ErrCredentialNotFound
	}

	data, err := s.client.Get(ctx, s.prefix+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return ports.Credential{}, ports.ErrCredentialNotFound
		}
		return ports.Credential{}, fmt.Errorf("redis get: %w", err)
	}

	var cred ports.Credential
	if unmarshalErr := json.Unmarshal(data, &cred); unmarshalErr != nil {
		return ports.Credential{}, fmt.Errorf("unmarshal credential: %w", unmarshalErr)
	}

	// Redis TTL has second granularity; honour the exact expiry as well.
	if time.Now().After(cred.ExpiresAt) {
		if deleteErr := s.Delete(ctx, key); deleteErr != nil {
			return ports.Credential{}, fmt.Errorf("cleanup expired credential: %w", deleteErr)
		}
		return ports.Credential{}, ports.ErrCredentialNotFound
	}

	return cred, nil
}

func (s *CredentialStore) Delete(ctx context.Context, key string) error {
	if key == "" {
		return nil
	}
	if err := s.client.Del(ctx, s.prefix+key).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}
