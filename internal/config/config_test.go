package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	for k := range defaults {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Port != "8080" {
		t.Fatalf("expected default port, got %q", cfg.Port)
	}
	if cfg.MatchBudgetTolerance != 200 {
		t.Fatalf("expected tolerance 200, got %v", cfg.MatchBudgetTolerance)
	}
	if cfg.RequestDefaultHorizon != 24*time.Hour {
		t.Fatalf("expected 24h horizon, got %v", cfg.RequestDefaultHorizon)
	}
	if cfg.WSTicketTTL != time.Minute {
		t.Fatalf("expected 60s ticket ttl, got %v", cfg.WSTicketTTL)
	}
}

func TestLoadEnvOverridesAndDotenv(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	if err := os.WriteFile(envFile, []byte("DB_DRIVER=sqlite\nSWEEP_INTERVAL=5s\nPORT=9999\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("PORT", "7070")
	t.Setenv("MATCH_BUDGET_TOLERANCE", "50")
	t.Setenv("DB_DRIVER", "")
	os.Unsetenv("DB_DRIVER")
	t.Setenv("SWEEP_INTERVAL", "")
	os.Unsetenv("SWEEP_INTERVAL")

	cfg, err := Load(envFile)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Port != "7070" {
		t.Fatalf("environment should win over .env, got %q", cfg.Port)
	}
	if cfg.DBDriver != "sqlite" {
		t.Fatalf("expected sqlite from .env, got %q", cfg.DBDriver)
	}
	if cfg.SweepInterval != 5*time.Second {
		t.Fatalf("expected 5s sweep interval, got %v", cfg.SweepInterval)
	}
	if cfg.MatchBudgetTolerance != 50 {
		t.Fatalf("expected tolerance 50, got %v", cfg.MatchBudgetTolerance)
	}
}

func TestValidateRejectsUnknownDriver(t *testing.T) {
	cfg := Config{DBDriver: "mysql", RequestDefaultHorizon: time.Hour, SweepInterval: time.Minute, WSTicketTTL: time.Minute}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected validation error")
	}
}

func TestPostgresDSN(t *testing.T) {
	cfg := Config{DBUser: "app", DBPassword: "s3cret", DBHost: "db", DBPort: "5432", DBName: "handyhub"}
	if got, want := cfg.PostgresDSN(), "postgres://app:s3cret@db:5432/handyhub"; got != want {
		t.Fatalf("dsn = %q, want %q", got, want)
	}
	cfg.DatabaseURL = "postgres://other"
	if cfg.PostgresDSN() != "postgres://other" {
		t.Fatal("DATABASE_URL should take precedence")
	}
}
