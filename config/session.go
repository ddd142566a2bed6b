package config

import (
	"fmt"
	"strings"
	"time"
)

// Persistence selects where the identity client keeps its current credential.
type Persistence string

const (
	// PersistenceMemory forgets the credential on restart.
	PersistenceMemory Persistence = "memory"
	// PersistenceRedis stores the credential in Redis with a TTL.
	PersistenceRedis Persistence = "redis"
	// PersistenceSQLite stores the credential in a local SQLite file.
	PersistenceSQLite Persistence = "sqlite"
)

// UnmarshalText implements encoding.TextUnmarshaler for Persistence.
func (p *Persistence) UnmarshalText(text []byte) error {
	v := strings.ToLower(strings.TrimSpace(string(text)))
	switch Persistence(v) {
	case PersistenceMemory, PersistenceRedis, PersistenceSQLite:
		*p = Persistence(v)
		return nil
	default:
		return fmt.Errorf("invalid Persistence: %q (valid options: memory, redis, sqlite)", v)
	}
}

// DocumentStoreKind selects the profile document store.
type DocumentStoreKind string

const (
	DocumentStoreMemory   DocumentStoreKind = "memory"
	DocumentStorePostgres DocumentStoreKind = "postgres"
	DocumentStoreRedis    DocumentStoreKind = "redis"
)

// UnmarshalText implements encoding.TextUnmarshaler for DocumentStoreKind.
func (d *DocumentStoreKind) UnmarshalText(text []byte) error {
	v := strings.ToLower(strings.TrimSpace(string(text)))
	switch DocumentStoreKind(v) {
	case DocumentStoreMemory, DocumentStorePostgres, DocumentStoreRedis:
		*d = DocumentStoreKind(v)
		return nil
	default:
		return fmt.Errorf("invalid DocumentStore: %q (valid options: memory, postgres, redis)", v)
	}
}

// SessionConfig contains session coordinator configuration.
type SessionConfig struct {
	// Persistence selects the credential store used to resume a sign-in after restart.
	Persistence Persistence `env:"SESSION_PERSISTENCE" envDefault:"memory"`

	// SQLitePath is the credential database file when Persistence=sqlite.
	SQLitePath string `env:"SESSION_SQLITE_PATH" envDefault:"parlor-session.db"`

	// CredentialKey names the stored credential.
	CredentialKey string `env:"SESSION_CREDENTIAL_KEY" envDefault:"current"`

	// EnrichTimeout bounds a single profile fetch.
	EnrichTimeout time.Duration `env:"SESSION_ENRICH_TIMEOUT" envDefault:"10s"`

	// ProfileWriteAttempts bounds profile persistence attempts at registration.
	ProfileWriteAttempts int `env:"SESSION_PROFILE_WRITE_ATTEMPTS" envDefault:"3"`

	// ProfileRetryDelay is the pause between profile persistence attempts.
	ProfileRetryDelay time.Duration `env:"SESSION_PROFILE_RETRY_DELAY" envDefault:"200ms"`
}

// Sanitize applies guardrails to session configuration values.
func (s *SessionConfig) Sanitize() {
	if s.Persistence == "" {
		s.Persistence = PersistenceMemory
	}
	s.SQLitePath = strings.TrimSpace(s.SQLitePath)
	if s.Persistence == PersistenceSQLite && s.SQLitePath == "" {
		s.SQLitePath = "parlor-session.db"
	}
	if strings.TrimSpace(s.CredentialKey) == "" {
		s.CredentialKey = "current"
	}
	if s.EnrichTimeout < time.Second {
		s.EnrichTimeout = time.Second
	}
	if s.ProfileWriteAttempts < 1 {
		s.ProfileWriteAttempts = 1
	}
	if s.ProfileWriteAttempts > 10 {
		s.ProfileWriteAttempts = 10
	}
	if s.ProfileRetryDelay < 0 {
		s.ProfileRetryDelay = 0
	}
}

// DocumentsConfig selects the document store holding user profiles.
type DocumentsConfig struct {
	Store DocumentStoreKind `env:"DOCUMENT_STORE" envDefault:"memory"`
}
