package auth

// Package auth contains simple hand-written test doubles for identity and document ports.
// These are lightweight and suitable for unit tests without codegen.

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	domainauth "github.com/parlorchat/parlor/internal/domain/auth"
	"github.com/parlorchat/parlor/internal/ports"
)

// Ensure compile-time conformance to ports.
var (
	_ ports.IdentityBackend = (*FakeIdentityBackend)(nil)
	_ ports.DocumentStore   = (*MemoryDocumentStore)(nil)
)

// FakeIdentityBackend simulates an identity service. Listener delivery is synchronous:
// Subscribe replays the current identity before returning and Emit calls every
// listener on the caller's goroutine.
type FakeIdentityBackend struct {
	SignInFunc            func(ctx context.Context, email, password string) (domainauth.Identity, error)
	SignUpFunc            func(ctx context.Context, email, password string) (domainauth.Identity, error)
	SignOutFunc           func(ctx context.Context) error
	DeleteUserFunc        func(ctx context.Context, userID string) error
	SubscribeErr          error

	// ManualEvents disables automatic events from SignIn/SignUp/SignOut; tests call Emit.
	ManualEvents bool

	mu          sync.Mutex
	current     *domainauth.Identity
	listeners   map[int]ports.IdentityListener
	nextID      int
	signIns     int
	signUps     int
	signOuts    int
	deletes     int
	unsubscribe int
}

// NewFakeIdentityBackend creates a signed-out FakeIdentityBackend.
func NewFakeIdentityBackend() *FakeIdentityBackend {
	return &FakeIdentityBackend{listeners: make(map[int]ports.IdentityListener)}
}

func (f *FakeIdentityBackend) Subscribe(listener ports.IdentityListener) (ports.Unsubscribe, error) {
	if f.SubscribeErr != nil {
		return nil, f.SubscribeErr
	}
	f.mu.Lock()
	if f.listeners == nil {
		f.listeners = make(map[int]ports.IdentityListener)
	}
	f.nextID++
	id := f.nextID
	f.listeners[id] = listener
	cur := copyIdentity(f.current)
	f.mu.Unlock()

	listener(cur)

	var once sync.Once
	return func() {
		once.Do(func() {
			f.mu.Lock()
			delete(f.listeners, id)
			f.unsubscribe++
			f.mu.Unlock()
		})
	}, nil
}

// Emit sets the current identity and notifies every listener.
func (f *FakeIdentityBackend) Emit(id *domainauth.Identity) {
	f.mu.Lock()
	f.current = copyIdentity(id)
	targets := make([]ports.IdentityListener, 0, len(f.listeners))
	for i := 1; i <= f.nextID; i++ {
		if l, ok := f.listeners[i]; ok {
			targets = append(targets, l)
		}
	}
	f.mu.Unlock()

	for _, l := range targets {
		l(copyIdentity(id))
	}
}

func (f *FakeIdentityBackend) SignIn(ctx context.Context, email, password string) (domainauth.Identity, error) {
	f.mu.Lock()
	f.signIns++
	n := f.signIns
	f.mu.Unlock()

	if f.SignInFunc != nil {
		id, err := f.SignInFunc(ctx, email, password)
		if err != nil {
			return domainauth.Identity{}, err
		}
		f.autoEmit(&id)
		return id, nil
	}
	id := domainauth.Identity{UserID: fmt.Sprintf("user-%d", n), Email: email}
	f.autoEmit(&id)
	return id, nil
}

func (f *FakeIdentityBackend) SignUp(ctx context.Context, email, password string) (domainauth.Identity, error) {
	f.mu.Lock()
	f.signUps++
	n := f.signUps
	f.mu.Unlock()

	if f.SignUpFunc != nil {
		id, err := f.SignUpFunc(ctx, email, password)
		if err != nil {
			return domainauth.Identity{}, err
		}
		f.autoEmit(&id)
		return id, nil
	}
	id := domainauth.Identity{UserID: fmt.Sprintf("new-user-%d", n), Email: email}
	f.autoEmit(&id)
	return id, nil
}

func (f *FakeIdentityBackend) SignOut(ctx context.Context) error {
	f.mu.Lock()
	f.signOuts++
	signedIn := f.current != nil
	f.mu.Unlock()

	if f.SignOutFunc != nil {
		if err := f.SignOutFunc(ctx); err != nil {
			return err
		}
	}
	if signedIn {
		f.autoEmit(nil)
	}
	return nil
}

func (f *FakeIdentityBackend) DeleteUser(ctx context.Context, userID string) error {
	f.mu.Lock()
	f.deletes++
	isCurrent := f.current != nil && f.current.UserID == userID
	f.mu.Unlock()

	if f.DeleteUserFunc != nil {
		if err := f.DeleteUserFunc(ctx, userID); err != nil {
			return err
		}
	}
	if isCurrent {
		f.autoEmit(nil)
	}
	return nil
}

func (f *FakeIdentityBackend) autoEmit(id *domainauth.Identity) {
	if f.ManualEvents {
		return
	}
	f.Emit(id)
}

// ListenerCount returns the number of live subscriptions.
func (f *FakeIdentityBackend) ListenerCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.listeners)
}

// Calls reports how many times each operation was invoked.
func (f *FakeIdentityBackend) Calls() (signIns, signUps, signOuts, deletes int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.signIns, f.signUps, f.signOuts, f.deletes
}

// Unsubscribes reports how many subscriptions were released.
func (f *FakeIdentityBackend) Unsubscribes() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.unsubscribe
}

// MemoryDocumentStore is an in-memory document store for unit tests with
// optional per-method overrides.
type MemoryDocumentStore struct {
	GetFunc    func(ctx context.Context, collection, key string, dst any) (bool, error)
	SetFunc    func(ctx context.Context, collection, key string, value any) error
	DeleteFunc func(ctx context.Context, collection, key string) error

	mu   sync.Mutex
	docs map[string][]byte
	gets int
	sets int
}

// NewMemoryDocumentStore creates an empty MemoryDocumentStore.
func NewMemoryDocumentStore() *MemoryDocumentStore {
	return &MemoryDocumentStore{docs: make(map[string][]byte)}
}

func (m *MemoryDocumentStore) Get(ctx context.Context, collection, key string, dst any) (bool, error) {
	m.mu.Lock()
	m.gets++
	m.mu.Unlock()
	if m.GetFunc != nil {
		return m.GetFunc(ctx, collection, key, dst)
	}
	return m.GetDirect(collection, key, dst)
}

// GetDirect reads a document without counting the call or applying overrides.
func (m *MemoryDocumentStore) GetDirect(collection, key string, dst any) (bool, error) {
	m.mu.Lock()
	raw, ok := m.docs[collection+"/"+key]
	m.mu.Unlock()
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(raw, dst)
}

func (m *MemoryDocumentStore) Set(ctx context.Context, collection, key string, value any) error {
	m.mu.Lock()
	m.sets++
	m.mu.Unlock()
	if m.SetFunc != nil {
		return m.SetFunc(ctx, collection, key, value)
	}
	return m.Put(collection, key, value)
}

// Put stores a document without counting the call or applying overrides.
func (m *MemoryDocumentStore) Put(collection, key string, value any) error {
	if key == "" {
		return errors.New("document key cannot be empty")
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.docs == nil {
		m.docs = make(map[string][]byte)
	}
	m.docs[collection+"/"+key] = raw
	return nil
}

func (m *MemoryDocumentStore) Delete(ctx context.Context, collection, key string) error {
	if m.DeleteFunc != nil {
		return m.DeleteFunc(ctx, collection, key)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.docs, collection+"/"+key)
	return nil
}

// Counts reports Get and Set invocations.
func (m *MemoryDocumentStore) Counts() (gets, sets int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.gets, m.sets
}

func copyIdentity(id *domainauth.Identity) *domainauth.Identity {
	if id == nil {
		return nil
	}
	cp := *id
	return &cp
}
