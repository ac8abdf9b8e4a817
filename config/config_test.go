package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != ":8080" {
		t.Errorf("expected :8080, got %s", cfg.Port)
	}
	if cfg.DBType != "sqlite" {
		t.Errorf("expected sqlite, got %s", cfg.DBType)
	}
	if cfg.AccessTokenTTL != time.Hour {
		t.Errorf("expected 1h access TTL, got %s", cfg.AccessTokenTTL)
	}
	if cfg.RefreshTokenTTL != 720*time.Hour {
		t.Errorf("expected 720h refresh TTL, got %s", cfg.RefreshTokenTTL)
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("PORT", "9000")
	t.Setenv("SECRET_KEY", "s3cret")
	t.Setenv("ACCESS_TOKEN_TTL", "3600")
	t.Setenv("DB_TYPE", "Postgres")
	t.Setenv("CORS_ORIGINS", "https://a.example, https://b.example")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != ":9000" {
		t.Errorf("expected :9000, got %s", cfg.Port)
	}
	if cfg.AccessTokenTTL != time.Hour {
		t.Errorf("expected seconds to parse as 1h, got %s", cfg.AccessTokenTTL)
	}
	if cfg.DBType != "postgres" {
		t.Errorf("expected postgres, got %s", cfg.DBType)
	}
	if len(cfg.CORSOrigins) != 2 || cfg.CORSOrigins[1] != "https://b.example" {
		t.Errorf("unexpected origins %v", cfg.CORSOrigins)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestLoadEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(path, []byte("RATE_LIMIT_BURST=3\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	// godotenv does not override variables that are already set.
	t.Setenv("RATE_LIMIT_BURST", "")
	os.Unsetenv("RATE_LIMIT_BURST")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	defer os.Unsetenv("RATE_LIMIT_BURST")
	if cfg.RateLimitBurst != 3 {
		t.Errorf("expected burst 3 from env file, got %d", cfg.RateLimitBurst)
	}
}

func TestLoadMissingEnvFileIsFine(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.env")); err != nil {
		t.Fatalf("expected missing env file to be ignored, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	cfg, _ := Load("")
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected missing SECRET_KEY to fail validation")
	}
	cfg.SecretKey = "k"
	cfg.DBType = "oracle"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected unsupported DB_TYPE to fail validation")
	}
}
