package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/parlorchat/parlor/config"
	"github.com/parlorchat/parlor/internal/bootstrap"
	"github.com/parlorchat/parlor/internal/ports"
)

type connectInfraOptions struct {
	Logger    *slog.Logger
	Config    *config.AppConfig
	WantDB    bool
	WantRedis bool
}

// adminDeps bundles what profile and account commands operate on.
type adminDeps struct {
	Infra     bootstrap.Infrastructure
	Documents ports.DocumentStore
}

// Close releases every open connection.
func (d adminDeps) Close() error {
	var errs []error
	if d.Infra.DB != nil {
		if err := d.Infra.DB.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close database: %w", err))
		}
	}
	if d.Infra.Redis != nil {
		if err := d.Infra.Redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close redis: %w", err))
		}
	}
	return errors.Join(errs...)
}

// connectInfra opens the connections the configured stores need, plus any the
// command asks for explicitly.
func connectInfra(ctx context.Context, opts *connectInfraOptions) (adminDeps, error) {
	var deps adminDeps
	cfg := opts.Config

	if opts.WantDB || cfg.NeedsPostgres() {
		db, err := bootstrap.ConnectDB(ctx, bootstrap.DatabaseConfig{DBConfig: cfg.Postgres, Logger: opts.Logger})
		if err != nil {
			return deps, fmt.Errorf("connect db: %w", err)
		}
		deps.Infra.DB = db
	}

	if opts.WantRedis || cfg.NeedsRedis() {
		client, err := bootstrap.ConnectRedis(ctx, bootstrap.DatabaseConfig{RedisConfig: cfg.Redis, Logger: opts.Logger})
		if err != nil {
			if cerr := deps.Close(); cerr != nil {
				err = errors.Join(err, cerr)
			}
			return adminDeps{}, fmt.Errorf("connect redis: %w", err)
		}
		deps.Infra.Redis = client
	}

	docs, err := bootstrap.BuildDocumentStore(cfg.Documents, deps.Infra)
	if err != nil {
		if cerr := deps.Close(); cerr != nil {
			err = errors.Join(err, cerr)
		}
		return adminDeps{}, err
	}
	if cfg.Documents.Store == config.DocumentStoreMemory || cfg.Documents.Store == "" {
		opts.Logger.Warn("DOCUMENT_STORE=memory: profile commands operate on an empty in-process store")
	}
	deps.Documents = docs
	return deps, nil
}
