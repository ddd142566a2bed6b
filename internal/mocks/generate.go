// Package mocks provides gomock implementations of the ports used by the session coordinator.
//
// To regenerate mocks after interface changes, run:
//
//	go generate ./internal/mocks
//
// Usage in tests:
//
//	ctrl := gomock.NewController(t)
//	backend := mocks.NewMockIdentityBackend(ctrl)
//	backend.EXPECT().SignIn(gomock.Any(), "a@example.com", "pw").Return(identity, nil)
package mocks

// Generate mock for IdentityBackend interface from internal/ports package.
// This creates MockIdentityBackend with methods for all IdentityBackend interface methods:
// Subscribe, SignIn, SignUp, SignOut, DeleteUser
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=identity_backend_mock.go github.com/parlorchat/parlor/internal/ports IdentityBackend

// Generate mock for DocumentStore interface from internal/ports package.
// This creates MockDocumentStore with methods for all DocumentStore interface methods:
// Get, Set, Delete
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=document_store_mock.go github.com/parlorchat/parlor/internal/ports DocumentStore

// Generate mock for AccountStore interface from internal/ports package.
// This creates MockAccountStore with methods for all AccountStore interface methods:
// Create, GetByEmail, GetByID, Delete
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=account_store_mock.go github.com/parlorchat/parlor/internal/ports AccountStore
