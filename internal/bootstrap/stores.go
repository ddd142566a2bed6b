package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
	"github.com/parlorchat/parlor/config"
	"github.com/parlorchat/parlor/internal/adapters/memory"
	redisadapter "github.com/parlorchat/parlor/internal/adapters/redis"
	"github.com/parlorchat/parlor/internal/adapters/sqlite"
	"github.com/parlorchat/parlor/internal/data"
	"github.com/parlorchat/parlor/internal/ports"
)

// Infrastructure groups shared connections. Either field may be nil when no
// configured component needs it.
type Infrastructure struct {
	DB    *sql.DB
	Redis redis.UniversalClient
}

// BuildDocumentStore selects the profile document store.
//
//nolint:ireturn // the store kind is chosen at runtime.
func BuildDocumentStore(cfg config.DocumentsConfig, infra Infrastructure) (ports.DocumentStore, error) {
	switch cfg.Store {
	case config.DocumentStorePostgres:
		if infra.DB == nil {
			return nil, errors.New("DOCUMENT_STORE=postgres requires a database connection")
		}
		return data.NewDocumentRepo(infra.DB), nil
	case config.DocumentStoreRedis:
		if infra.Redis == nil {
			return nil, errors.New("DOCUMENT_STORE=redis requires a redis connection")
		}
		return redisadapter.NewDocumentStore(infra.Redis), nil
	case config.DocumentStoreMemory, "":
		return memory.NewDocumentStore(), nil
	default:
		return nil, fmt.Errorf("unsupported document store %q", cfg.Store)
	}
}

// CredentialStoreConfig contains configuration for the credential store.
type CredentialStoreConfig struct {
	Session   config.SessionConfig
	KeyPrefix string
	Infra     Infrastructure
	Logger    *slog.Logger
}

// BuildCredentialStore selects where the identity client persists its sign-in.
// The returned close function releases resources owned by the store.
//
//nolint:ireturn // the store kind is chosen at runtime.
func BuildCredentialStore(
	ctx context.Context,
	cfg CredentialStoreConfig,
) (ports.CredentialStore, func() error, error) {
	noop := func() error { return nil }

	switch cfg.Session.Persistence {
	case config.PersistenceRedis:
		if cfg.Infra.Redis == nil {
			return nil, noop, errors.New("SESSION_PERSISTENCE=redis requires a redis connection")
		}
		if cfg.KeyPrefix == "" {
			return redisadapter.NewCredentialStore(cfg.Infra.Redis), noop, nil
		}
		return redisadapter.NewCredentialStoreWithPrefix(cfg.Infra.Redis, cfg.KeyPrefix), noop, nil
	case config.PersistenceSQLite:
		store, err := sqlite.Open(ctx, cfg.Session.SQLitePath)
		if err != nil {
			return nil, noop, fmt.Errorf("open credential database: %w", err)
		}
		if cfg.Logger != nil {
			cfg.Logger.InfoContext(ctx, "credential database opened", "path", cfg.Session.SQLitePath)
		}
		return store, store.Close, nil
	case config.PersistenceMemory, "":
		return memory.NewCredentialStore(), noop, nil
	default:
		return nil, noop, fmt.Errorf("unsupported session persistence %q", cfg.Session.Persistence)
	}
}
