package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/parlorchat/parlor/config"
	"github.com/parlorchat/parlor/internal/bootstrap"
)

func main() {
	ctx := context.Background()
	logger := bootstrap.InitLogger()
	if err := run(ctx, logger); err != nil {
		logger.ErrorContext(ctx, "fatal error", "error", err)
		os.Exit(1) //nolint:forbidigo // Main entrypoint should exit with non-zero status on fatal errors.
	}
}

func run(ctx context.Context, logger *slog.Logger) error {
	cfg, err := bootstrap.LoadConfig()
	if err != nil {
		return err
	}
	if levelErr := bootstrap.SetLogLevel(cfg.LogLevel); levelErr != nil {
		logger.WarnContext(ctx, "ignoring log level", "error", levelErr)
	}

	logStartupInfo(ctx, logger, &cfg)

	if err = bootstrap.ValidateServiceConfig(&cfg); err != nil {
		return err
	}

	infra, err := initInfrastructure(ctx, &cfg, logger)
	if err != nil {
		return err
	}
	defer closeInfrastructure(ctx, infra, logger)

	if infra.DB != nil {
		if cfg.Postgres.RunMigrationsOnStart {
			if err = bootstrap.RunMigrations(ctx, infra.DB, logger); err != nil {
				return err
			}
		} else {
			logger.InfoContext(ctx, "skipping database migrations on startup", "reason", "disabled via config")
		}
	}

	services, err := bootstrap.NewServices(ctx, &bootstrap.ServiceDeps{
		Config: &cfg,
		Infra:  infra,
		Logger: logger,
	})
	if err != nil {
		return err
	}

	return bootstrap.RunServicesWithShutdown(ctx, &bootstrap.ServiceOrchestrationConfig{
		Config:   &cfg,
		Services: services,
		Logger:   logger,
	})
}

func logStartupInfo(ctx context.Context, logger *slog.Logger, cfg *config.AppConfig) {
	logger.InfoContext(ctx, "starting parlor service",
		"auth_backend", cfg.Auth.Backend,
		"session_persistence", cfg.Session.Persistence,
		"document_store", cfg.Documents.Store,
		"dev", cfg.IsDev,
		"enabled_services", bootstrap.GetEnabledServices(cfg))
}

// initInfrastructure connects only the shared dependencies the configured stores use.
func initInfrastructure(
	ctx context.Context,
	cfg *config.AppConfig,
	logger *slog.Logger,
) (bootstrap.Infrastructure, error) {
	var infra bootstrap.Infrastructure

	if cfg.NeedsPostgres() {
		db, err := bootstrap.ConnectDB(ctx, bootstrap.DatabaseConfig{
			DBConfig: cfg.Postgres,
			Logger:   logger,
		})
		if err != nil {
			return infra, fmt.Errorf("connect db: %w", err)
		}
		infra.DB = db
	}

	if cfg.NeedsRedis() {
		redisClient, err := bootstrap.ConnectRedis(ctx, bootstrap.DatabaseConfig{
			RedisConfig: cfg.Redis,
			Logger:      logger,
		})
		if err != nil {
			if infra.DB != nil {
				if cerr := infra.DB.Close(); cerr != nil {
					logger.ErrorContext(ctx, "close database after redis connect failure", "error", cerr)
					return bootstrap.Infrastructure{}, fmt.Errorf("connect redis: %w",
						errors.Join(err, fmt.Errorf("close database: %w", cerr)))
				}
			}
			return bootstrap.Infrastructure{}, fmt.Errorf("connect redis: %w", err)
		}
		infra.Redis = redisClient
	}

	return infra, nil
}

func closeInfrastructure(ctx context.Context, infra bootstrap.Infrastructure, logger *slog.Logger) {
	if infra.Redis != nil {
		if cerr := infra.Redis.Close(); cerr != nil {
			logger.ErrorContext(ctx, "close redis failed", "error", cerr)
		}
	}
	if infra.DB != nil {
		if cerr := infra.DB.Close(); cerr != nil {
			logger.ErrorContext(ctx, "close database failed", "error", cerr)
		}
	}
}
