package bootstrap

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/parlorchat/parlor/config"
	"github.com/parlorchat/parlor/internal/adapters/memory"
	"github.com/parlorchat/parlor/internal/adapters/sqlite"
	"github.com/parlorchat/parlor/internal/ports"
)

func TestBuildDocumentStore(t *testing.T) {
	store, err := BuildDocumentStore(config.DocumentsConfig{Store: config.DocumentStoreMemory}, Infrastructure{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := store.(*memory.DocumentStore); !ok {
		t.Fatalf("expected memory store, got %T", store)
	}

	for _, kind := range []config.DocumentStoreKind{config.DocumentStorePostgres, config.DocumentStoreRedis} {
		if _, err := BuildDocumentStore(config.DocumentsConfig{Store: kind}, Infrastructure{}); err == nil {
			t.Fatalf("expected error for %s without connection", kind)
		}
	}
}

func TestBuildCredentialStore_SQLite(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "session.db")

	store, closeFn, err := BuildCredentialStore(ctx, CredentialStoreConfig{
		Session: config.SessionConfig{Persistence: config.PersistenceSQLite, SQLitePath: path},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	t.Cleanup(func() { _ = closeFn() })

	if _, ok := store.(*sqlite.CredentialStore); !ok {
		t.Fatalf("expected sqlite store, got %T", store)
	}
	cred := ports.Credential{Key: "current", UserID: "u1", Token: "t", ExpiresAt: time.Now().Add(time.Hour)}
	if err := store.Save(ctx, cred); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := store.Get(ctx, "current")
	if err != nil || got.UserID != "u1" {
		t.Fatalf("get = %+v, %v", got, err)
	}
}

func TestBuildCredentialStore_Errors(t *testing.T) {
	ctx := context.Background()
	_, closeFn, err := BuildCredentialStore(ctx, CredentialStoreConfig{
		Session: config.SessionConfig{Persistence: config.PersistenceRedis},
	})
	if err == nil {
		t.Fatal("expected error for redis without connection")
	}
	if closeFn() != nil {
		t.Fatal("expected noop close on error")
	}

	store, _, err := BuildCredentialStore(ctx, CredentialStoreConfig{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := store.(*memory.CredentialStore); !ok {
		t.Fatalf("expected memory store by default, got %T", store)
	}
}
