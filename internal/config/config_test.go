package config

import (
	"strings"
	"testing"
	"time"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("DB_DSN", "postgres://localhost/agenda")
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("JWT_SECRET", strings.Repeat("s", 32))
}

func TestLoadDefaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Port != 8080 {
		t.Fatalf("expected default port 8080, got %d", cfg.Port)
	}
	if cfg.JWTAccessTTL != 24*time.Hour {
		t.Fatalf("expected 24h token ttl, got %s", cfg.JWTAccessTTL)
	}
	if cfg.Audit.Queue != "rbac.audit" {
		t.Fatalf("unexpected audit queue %q", cfg.Audit.Queue)
	}
	if cfg.Login.MaxAttempts != 5 || cfg.Login.LockWindow != 15*time.Minute {
		t.Fatalf("unexpected login config %+v", cfg.Login)
	}
}

func TestLoadRejectsShortSecret(t *testing.T) {
	setRequired(t)
	t.Setenv("JWT_SECRET", "curto")

	if _, err := Load(); err == nil {
		t.Fatal("expected error for short JWT_SECRET")
	}
}

func TestLoadParsesOrigins(t *testing.T) {
	setRequired(t)
	t.Setenv("ALLOW_ORIGINS", " https://painel.agendasaude.com , ,*.agendasaude.com")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(cfg.AllowOrigins) != 2 {
		t.Fatalf("expected 2 origins, got %v", cfg.AllowOrigins)
	}
}
