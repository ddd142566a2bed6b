package testutil

import (
	"strings"
	"testing"
)

func TestDefaultTestDBConfig(t *testing.T) {
	t.Run("defaults to local test database port 55432", func(t *testing.T) {
		for _, k := range []string{"TEST_DB_HOST", "TEST_DB_PORT", "TEST_DB_USER", "TEST_DB_PASSWORD", "TEST_DB_NAME"} {
			t.Setenv(k, "")
		}
		cfg := DefaultTestDBConfig()
		if cfg.Host != "localhost" || cfg.Port != "55432" {
			t.Fatalf("unexpected address %s:%s", cfg.Host, cfg.Port)
		}
		if cfg.User != "parlor" || cfg.Password != "parlor" || cfg.DBName != "parlor" {
			t.Fatalf("unexpected credentials %+v", cfg)
		}
	})

	t.Run("respects TEST_DB_PORT environment variable", func(t *testing.T) {
		t.Setenv("TEST_DB_PORT", "5432")
		t.Setenv("TEST_DB_HOST", "postgres")
		cfg := DefaultTestDBConfig()
		if cfg.Port != "5432" || cfg.Host != "postgres" {
			t.Fatalf("env override ignored: %+v", cfg)
		}
	})
}

func TestTestDBConfig_DSN(t *testing.T) {
	t.Setenv("DB_SSL_MODE", "")
	dsn := TestDBConfig{Host: "db", Port: "5432", User: "u", Password: "p@ss", DBName: "parlor"}.DSN()
	if !strings.HasPrefix(dsn, "postgres://u:p%40ss@db:5432/parlor") {
		t.Fatalf("unexpected DSN %s", dsn)
	}
	if !strings.HasSuffix(dsn, "sslmode=disable") {
		t.Fatalf("missing sslmode in %s", dsn)
	}
}
