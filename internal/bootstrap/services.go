package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/parlorchat/parlor/config"
	"github.com/parlorchat/parlor/internal/adapters/identity"
	"github.com/parlorchat/parlor/internal/ports"
	"github.com/parlorchat/parlor/internal/service"
)

const shutdownWaitTimeout = 10 * time.Second

// ServiceContainer holds all application services.
type ServiceContainer struct {
	Identity      *identity.Client
	Session       *service.SessionCoordinator
	Documents     ports.DocumentStore
	Observability ObservabilityContainer

	closers []func() error
}

// ServiceDeps groups dependencies for service initialization.
type ServiceDeps struct {
	Config *config.AppConfig
	Infra  Infrastructure
	Logger *slog.Logger
}

// NewServices builds and starts the identity client and the session coordinator.
// On error every resource acquired so far is released.
func NewServices(ctx context.Context, deps *ServiceDeps) (_ *ServiceContainer, err error) {
	if deps == nil || deps.Config == nil {
		return nil, errors.New("service deps missing AppConfig")
	}
	cfg := deps.Config
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	c := &ServiceContainer{}
	defer func() {
		if err != nil {
			if cerr := c.Close(context.WithoutCancel(ctx)); cerr != nil {
				err = errors.Join(err, cerr)
			}
		}
	}()

	c.Observability, err = BuildObservability(ctx, logger, cfg.Observability)
	if err != nil {
		return nil, err
	}
	c.closers = append(c.closers, func() error {
		closeCtx, cancel := context.WithTimeout(context.Background(), shutdownWaitTimeout)
		defer cancel()
		return c.Observability.Close(closeCtx)
	})

	c.Documents, err = BuildDocumentStore(cfg.Documents, deps.Infra)
	if err != nil {
		return nil, err
	}

	creds, closeCreds, err := BuildCredentialStore(ctx, CredentialStoreConfig{
		Session:   cfg.Session,
		KeyPrefix: cfg.Redis.KeyPrefix,
		Infra:     deps.Infra,
		Logger:    logger,
	})
	if err != nil {
		return nil, err
	}
	c.closers = append(c.closers, closeCreds)

	c.Identity, err = BuildIdentityClient(ctx, AuthConfig{
		Auth:        cfg.Auth,
		Session:     cfg.Session,
		IsDev:       cfg.IsDev,
		Infra:       deps.Infra,
		Credentials: creds,
		Logger:      logger.With("component", "identity"),
	})
	if err != nil {
		return nil, fmt.Errorf("build identity client: %w", err)
	}
	if err = c.Identity.Start(ctx); err != nil {
		return nil, fmt.Errorf("start identity client: %w", err)
	}
	c.closers = append(c.closers, c.Identity.Close)

	c.Session, err = service.NewSessionCoordinator(service.SessionCoordinatorOptions{
		Backend:              c.Identity,
		Documents:            c.Documents,
		Logger:               logger.With("component", "session"),
		Recorder:             c.Observability.Recorder,
		ProfileWriteAttempts: cfg.Session.ProfileWriteAttempts,
		ProfileRetryDelay:    cfg.Session.ProfileRetryDelay,
		EnrichTimeout:        cfg.Session.EnrichTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("build session coordinator: %w", err)
	}
	if err = c.Session.Start(ctx); err != nil {
		return nil, fmt.Errorf("start session coordinator: %w", err)
	}
	c.closers = append(c.closers, c.Session.Close)

	logger.InfoContext(ctx, "session services ready",
		"auth_backend", cfg.Auth.Backend,
		"session_persistence", cfg.Session.Persistence,
		"document_store", cfg.Documents.Store,
	)
	return c, nil
}

// Close releases services in reverse order of construction.
func (c *ServiceContainer) Close(context.Context) error {
	if c == nil {
		return nil
	}
	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	c.closers = nil
	return errors.Join(errs...)
}

// ServiceOrchestrationConfig groups what RunServicesWithShutdown runs.
type ServiceOrchestrationConfig struct {
	Config   *config.AppConfig
	Services *ServiceContainer
	Logger   *slog.Logger
}

// RunServicesWithShutdown runs every enabled service until SIGINT/SIGTERM or
// until one of them fails, then stops the rest and releases the container.
func RunServicesWithShutdown(ctx context.Context, cfg *ServiceOrchestrationConfig) error {
	if cfg == nil {
		return errors.New("service orchestration config is required")
	}
	if cfg.Config == nil {
		return errors.New("service orchestration config missing AppConfig")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	enabledServices, err := cfg.Config.GetEnabledServices()
	if err != nil {
		return fmt.Errorf("determine enabled services: %w", err)
	}

	sigCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	group, gctx := errgroup.WithContext(sigCtx)
	if enabledServices[config.ServiceModeHTTP] {
		server := NewHTTPServer(&HTTPServerConfig{
			Config:   cfg.Config,
			Services: cfg.Services,
			Logger:   logger,
		})
		group.Go(func() error {
			return ServeHTTP(gctx, server, cfg.Config.HTTP.ShutdownTimeout, logger)
		})
	}

	runErr := group.Wait()
	if runErr != nil {
		logger.Error("service error", "error", runErr)
	} else {
		logger.Info("shutting down services...")
	}

	if closeErr := cfg.Services.Close(context.WithoutCancel(ctx)); closeErr != nil {
		logger.Error("close services failed", "error", closeErr)
		runErr = errors.Join(runErr, closeErr)
	}
	return runErr
}
