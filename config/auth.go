package config

import (
	"fmt"
	"strings"
	"time"
)

// AuthBackend selects which authenticator verifies e-mail/password credentials.
type AuthBackend string

const (
	// AuthBackendMemory keeps accounts in process memory (development and tests).
	AuthBackendMemory AuthBackend = "memory"
	// AuthBackendPostgres keeps accounts in the PostgreSQL accounts table.
	AuthBackendPostgres AuthBackend = "postgres"
	// AuthBackendOIDC delegates to an OIDC issuer using the password grant.
	AuthBackendOIDC AuthBackend = "oidc"
)

// UnmarshalText implements encoding.TextUnmarshaler for AuthBackend.
func (a *AuthBackend) UnmarshalText(text []byte) error {
	v := strings.ToLower(strings.TrimSpace(string(text)))
	switch AuthBackend(v) {
	case AuthBackendMemory, AuthBackendPostgres, AuthBackendOIDC:
		*a = AuthBackend(v)
		return nil
	default:
		return fmt.Errorf("invalid AuthBackend: %q (valid options: memory, postgres, oidc)", v)
	}
}

// OIDCConfig contains OAuth/OIDC configuration for AUTH_BACKEND=oidc.
type OIDCConfig struct {
	ClientID     string `env:"CLIENT_ID"     envDefault:"parlor"`
	ClientSecret string `env:"CLIENT_SECRET"`
	Scope        string `env:"SCOPE"         envDefault:"openid email profile"`
	DiscoveryURL string `env:"DISCOVERY_URL"`

	// JMESPath expressions evaluated against the ID token claims.
	UserIDClaim        string `env:"USER_ID_CLAIM"        envDefault:"sub"`
	EmailClaim         string `env:"EMAIL_CLAIM"          envDefault:"email"`
	EmailVerifiedClaim string `env:"EMAIL_VERIFIED_CLAIM" envDefault:"email_verified"`
}

// TokenConfig controls the signed credential persisted between restarts.
type TokenConfig struct {
	// Secret signs credential tokens. Must be at least 32 bytes; a random
	// secret is generated in dev mode when empty.
	Secret string        `env:"SECRET"`
	Issuer string        `env:"ISSUER" envDefault:"parlor"`
	TTL    time.Duration `env:"TTL"    envDefault:"720h"`
}

// ThrottleConfig bounds sign-in and sign-up attempts per e-mail address.
type ThrottleConfig struct {
	PerSecond float64 `env:"PER_SECOND" envDefault:"0.2"`
	Burst     int     `env:"BURST"      envDefault:"5"`
}

// AuthConfig groups all authentication-related configuration.
type AuthConfig struct {
	// Backend determines which authenticator the identity client uses.
	Backend AuthBackend `env:"AUTH_BACKEND" envDefault:"memory"`

	// MinPasswordLength applies to account-backed registration.
	MinPasswordLength int `env:"AUTH_MIN_PASSWORD_LENGTH" envDefault:"6"`

	OIDC     OIDCConfig     `envPrefix:"OIDC_"`
	Token    TokenConfig    `envPrefix:"AUTH_TOKEN_"`
	Throttle ThrottleConfig `envPrefix:"AUTH_THROTTLE_"`
}

// Sanitize applies guardrails to auth configuration values.
func (a *AuthConfig) Sanitize() {
	if a.Backend == "" {
		a.Backend = AuthBackendMemory
	}
	if a.MinPasswordLength < 1 {
		a.MinPasswordLength = 6
	}
	a.OIDC.DiscoveryURL = strings.TrimSpace(a.OIDC.DiscoveryURL)
	if a.Token.TTL <= 0 {
		a.Token.TTL = 720 * time.Hour
	}
	if a.Throttle.PerSecond < 0 {
		a.Throttle.PerSecond = 0
	}
	if a.Throttle.Burst < 0 {
		a.Throttle.Burst = 0
	}
}
