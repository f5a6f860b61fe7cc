package config

import (
	"testing"
	"time"
)

func TestLoadRequiresDSNAndSecret(t *testing.T) {
	t.Setenv("POSTGRES_DSN", "")
	t.Setenv("JWT_SECRET", "s3cret")
	if _, err := Load(); err == nil {
		t.Fatal("expected error without POSTGRES_DSN")
	}

	t.Setenv("POSTGRES_DSN", "postgres://localhost/clinic")
	t.Setenv("JWT_SECRET", "")
	if _, err := Load(); err == nil {
		t.Fatal("expected error without JWT_SECRET")
	}
}

func TestLoadDefaultsAndOverrides(t *testing.T) {
	t.Setenv("POSTGRES_DSN", "postgres://localhost/clinic")
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("REDIS_URL", "redis://worker:pw@cache:6380")
	t.Setenv("LOCK_TTL", "3")
	t.Setenv("TOKEN_TTL", "2h")
	t.Setenv("MAX_SESSIONS_PER_COURSE", "nope")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.RedisAddr != "cache:6380" || cfg.RedisUsername != "worker" || cfg.RedisPassword != "pw" {
		t.Errorf("redis url not parsed: %+v", cfg)
	}
	if cfg.LockTTL != 3*time.Second {
		t.Errorf("LockTTL = %s, want 3s", cfg.LockTTL)
	}
	if cfg.TokenTTL != 2*time.Hour {
		t.Errorf("TokenTTL = %s, want 2h", cfg.TokenTTL)
	}
	if cfg.MaxSessions != 100 {
		t.Errorf("MaxSessions = %d, want default 100", cfg.MaxSessions)
	}
	if cfg.Location() != time.UTC {
		t.Errorf("default location should be UTC, got %s", cfg.Location())
	}
}

func TestLoadRejectsUnknownTimezone(t *testing.T) {
	t.Setenv("POSTGRES_DSN", "postgres://localhost/clinic")
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("DISPLAY_TIMEZONE", "Mars/Olympus_Mons")
	if _, err := Load(); err == nil {
		t.Fatal("expected error for unknown timezone")
	}
}
