package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/parlorchat/parlor/config"
	"github.com/parlorchat/parlor/internal/adapters/identity"
	"github.com/parlorchat/parlor/internal/adapters/memory"
	"github.com/parlorchat/parlor/internal/adapters/oidc"
	"github.com/parlorchat/parlor/internal/data"
	"github.com/parlorchat/parlor/internal/ports"
)

// AuthConfig contains configuration for the authenticator and identity client.
type AuthConfig struct {
	Auth        config.AuthConfig
	Session     config.SessionConfig
	IsDev       bool
	Infra       Infrastructure
	Credentials ports.CredentialStore
	Logger      *slog.Logger
}

// BuildAuthenticator creates the authenticator selected by AUTH_BACKEND.
//
//nolint:ireturn // the authenticator kind is chosen at runtime.
func BuildAuthenticator(ctx context.Context, cfg AuthConfig) (ports.Authenticator, error) {
	switch cfg.Auth.Backend {
	case config.AuthBackendMemory, "":
		if cfg.Logger != nil && !cfg.IsDev {
			cfg.Logger.WarnContext(ctx, "in-memory accounts are lost on restart", "backend", config.AuthBackendMemory)
		}
		return newAccountAuthenticator(cfg.Auth, memory.NewAccountStore())

	case config.AuthBackendPostgres:
		if cfg.Infra.DB == nil {
			return nil, errors.New("AUTH_BACKEND=postgres requires a database connection")
		}
		return newAccountAuthenticator(cfg.Auth, data.NewAccountRepo(cfg.Infra.DB))

	case config.AuthBackendOIDC:
		return buildOIDCProvider(ctx, cfg)

	default:
		return nil, fmt.Errorf("unsupported auth backend %q", cfg.Auth.Backend)
	}
}

func newAccountAuthenticator(cfg config.AuthConfig, accounts ports.AccountStore) (*identity.AccountAuthenticator, error) {
	return identity.NewAccountAuthenticator(identity.AccountAuthenticatorOptions{
		Accounts:          accounts,
		MinPasswordLength: cfg.MinPasswordLength,
	})
}

func buildOIDCProvider(ctx context.Context, cfg AuthConfig) (*oidc.Provider, error) {
	o := cfg.Auth.OIDC
	if o.DiscoveryURL == "" || o.ClientID == "" {
		if cfg.Logger != nil {
			cfg.Logger.ErrorContext(ctx, "AUTH_BACKEND=oidc selected but required config missing",
				"discovery_url_empty", o.DiscoveryURL == "",
				"client_id_empty", o.ClientID == "",
			)
		}
		return nil, errors.New("oidc backend requires OIDC_DISCOVERY_URL and OIDC_CLIENT_ID")
	}

	prov, err := oidc.NewProvider(ctx, oidc.ProviderConfig{
		ClientID:     o.ClientID,
		ClientSecret: o.ClientSecret,
		Scope:        o.Scope,
		DiscoveryURL: o.DiscoveryURL,
		Claims: oidc.ClaimMapping{
			UserID:        o.UserIDClaim,
			Email:         o.EmailClaim,
			EmailVerified: o.EmailVerifiedClaim,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("create oidc provider: %w", err)
	}
	return prov, nil
}

// BuildIdentityClient wires the identity client over the configured authenticator,
// credential store, token issuer, and throttle. The client is not started.
func BuildIdentityClient(ctx context.Context, cfg AuthConfig) (*identity.Client, error) {
	authn, err := BuildAuthenticator(ctx, cfg)
	if err != nil {
		return nil, err
	}

	var tokens *identity.TokenIssuer
	if cfg.Credentials != nil {
		secret, err := ResolveTokenSecret(cfg.Auth.Token.Secret, cfg.IsDev, cfg.Logger)
		if err != nil {
			return nil, err
		}
		tokens, err = identity.NewTokenIssuer(identity.TokenConfig{
			Secret: secret,
			Issuer: cfg.Auth.Token.Issuer,
			TTL:    cfg.Auth.Token.TTL,
		})
		if err != nil {
			return nil, fmt.Errorf("create token issuer: %w", err)
		}
	}

	return identity.NewClient(identity.ClientOptions{
		Authenticator: authn,
		Credentials:   cfg.Credentials,
		Tokens:        tokens,
		Throttle:      identity.NewThrottle(cfg.Auth.Throttle.PerSecond, cfg.Auth.Throttle.Burst),
		Logger:        cfg.Logger,
		CredentialKey: cfg.Session.CredentialKey,
	})
}
