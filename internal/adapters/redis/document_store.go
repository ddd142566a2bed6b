package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/parlorchat/parlor/internal/ports"
	"github.com/redis/go-redis/v9"
)

var _ ports.DocumentStore = (*DocumentStore)(nil)

// DocumentStore keeps JSON documents under "<prefix><collection>:<key>".
type DocumentStore struct {
	client redis.UniversalClient
	prefix string
}

// NewDocumentStore creates a Redis document store with the default "doc:" prefix.
func NewDocumentStore(client redis.UniversalClient) *DocumentStore {
	return &DocumentStore{client: client, prefix: "doc:"}
}

func (s *DocumentStore) key(collection, key string) string {
	return s.prefix + collection + ":" + key
}

func (s *DocumentStore) Get(ctx context.Context, collection, key string, dst any) (bool, error) {
	if collection == "" || key == "" {
		return false, errors.New("collection and key are required")
	}
	data, err := s.client.Get(ctx, s.key(collection, key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, fmt.Errorf("redis get: %w", err)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return true, fmt.Errorf("unmarshal document %s/%s: %w", collection, key, err)
	}
	return true, nil
}

func (s *DocumentStore) Set(ctx context.Context, collection, key string, value any) error {
	if collection == "" || key == "" {
		return errors.New("collection and key are required")
	}
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal document: %w", err)
	}
	if err := s.client.Set(ctx, s.key(collection, key), data, 0).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

func (s *DocumentStore) Delete(ctx context.Context, collection, key string) error {
	if collection == "" || key == "" {
		return nil
	}
	if err := s.client.Del(ctx, s.key(collection, key)).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}
