package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/parlorchat/parlor/internal/ports"
)

var _ ports.DocumentStore = (*DocumentStore)(nil)

// DocumentStore keeps JSON-encoded documents per collection.
// Values round-trip through JSON so callers observe the same decoding rules as remote stores.
type DocumentStore struct {
	mu   sync.RWMutex
	docs map[string]map[string][]byte
}

// NewDocumentStore creates an empty DocumentStore.
func NewDocumentStore() *DocumentStore {
	return &DocumentStore{docs: make(map[string]map[string][]byte)}
}

func (s *DocumentStore) Get(_ context.Context, collection, key string, dst any) (bool, error) {
	if collection == "" || key == "" {
		return false, errors.New("collection and key are required")
	}
	s.mu.RLock()
	raw, ok := s.docs[collection][key]
	s.mu.RUnlock()
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return false, fmt.Errorf("unmarshal document %s/%s: %w", collection, key, err)
	}
	return true, nil
}

func (s *DocumentStore) Set(_ context.Context, collection, key string, value any) error {
	if collection == "" || key == "" {
		return errors.New("collection and key are required")
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal document %s/%s: %w", collection, key, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	coll, ok := s.docs[collection]
	if !ok {
		coll = make(map[string][]byte)
		s.docs[collection] = coll
	}
	coll[key] = raw
	return nil
}

func (s *DocumentStore) Delete(_ context.Context, collection, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.docs[collection], key)
	return nil
}

// Len returns the number of documents in collection.
func (s *DocumentStore) Len(collection string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.docs[collection])
}
