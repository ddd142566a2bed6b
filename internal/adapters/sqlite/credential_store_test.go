package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parlorchat/parlor/internal/ports"
)

func openTestStore(t *testing.T) (*CredentialStore, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "session.db")
	store, err := Open(context.Background(), path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store, path
}

func TestCredentialStore_RoundTrip(t *testing.T) {
	store, _ := openTestStore(t)
	ctx := context.Background()
	exp := time.Now().Add(time.Hour).Truncate(time.Millisecond).UTC()

	_, err := store.Get(ctx, "current")
	require.ErrorIs(t, err, ports.ErrCredentialNotFound)

	require.NoError(t, store.Save(ctx, ports.Credential{Key: "current", UserID: "u1", Token: "t1", ExpiresAt: exp}))
	require.NoError(t, store.Save(ctx, ports.Credential{Key: "current", UserID: "u2", Token: "t2", ExpiresAt: exp}))

	got, err := store.Get(ctx, "current")
	require.NoError(t, err)
	assert.Equal(t, ports.Credential{Key: "current", UserID: "u2", Token: "t2", ExpiresAt: exp}, got)

	require.NoError(t, store.Delete(ctx, "current"))
	require.NoError(t, store.Delete(ctx, "current"))
	_, err = store.Get(ctx, "current")
	require.ErrorIs(t, err, ports.ErrCredentialNotFound)
}

func TestCredentialStore_SurvivesReopen(t *testing.T) {
	store, path := openTestStore(t)
	ctx := context.Background()
	exp := time.Now().Add(time.Hour)
	require.NoError(t, store.Save(ctx, ports.Credential{Key: "current", UserID: "u1", Token: "t", ExpiresAt: exp}))
	require.NoError(t, store.Close())

	reopened, err := Open(ctx, path)
	require.NoError(t, err)
	defer reopened.Close()

	got, err := reopened.Get(ctx, "current")
	require.NoError(t, err)
	assert.Equal(t, "u1", got.UserID)
}

func TestCredentialStore_Expiry(t *testing.T) {
	store, _ := openTestStore(t)
	ctx := context.Background()
	now := time.Now()
	store.now = func() time.Time { return now }

	err := store.Save(ctx, ports.Credential{Key: "k", UserID: "u", Token: "t", ExpiresAt: now})
	require.Error(t, err)

	require.NoError(t, store.Save(ctx, ports.Credential{Key: "k", UserID: "u", Token: "t", ExpiresAt: now.Add(time.Minute)}))
	store.now = func() time.Time { return now.Add(2 * time.Minute) }

	_, err = store.Get(ctx, "k")
	require.ErrorIs(t, err, ports.ErrCredentialNotFound)

	var n int
	require.NoError(t, store.sqlDB.QueryRow(`SELECT COUNT(*) FROM credentials`).Scan(&n))
	assert.Zero(t, n)
}

func TestCredentialStore_Validation(t *testing.T) {
	store, _ := openTestStore(t)
	err := store.Save(context.Background(), ports.Credential{UserID: "u", ExpiresAt: time.Now().Add(time.Hour)})
	require.Error(t, err)

	_, err = Open(context.Background(), "  ")
	require.Error(t, err)
}
