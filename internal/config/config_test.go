package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Port != 8080 {
		t.Errorf("expected port 8080, got %d", cfg.Port)
	}
	if cfg.DatabaseDriver != "sqlite" {
		t.Errorf("expected sqlite driver, got %s", cfg.DatabaseDriver)
	}
	if cfg.MatchDateToleranceDays != 5 {
		t.Errorf("expected 5 days tolerance, got %d", cfg.MatchDateToleranceDays)
	}
	if cfg.MatchAmountTolerancePct != 0.10 {
		t.Errorf("expected 10%% tolerance, got %v", cfg.MatchAmountTolerancePct)
	}
	if cfg.CacheTTL != 5*time.Minute {
		t.Errorf("expected 5m cache ttl, got %s", cfg.CacheTTL)
	}
	if cfg.BankFeedURL != "" {
		t.Errorf("expected bank feed disabled by default")
	}
	if cfg.WebhookMaxBodyBytes != 256*1024 {
		t.Errorf("expected 256KB webhook body limit, got %d", cfg.WebhookMaxBodyBytes)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("DATABASE_DRIVER", "Postgres")
	t.Setenv("DATABASE_URL", "postgres://pfm@localhost/pfm")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("BANKFEED_URL", "https://feed.example/")
	t.Setenv("MATCH_DATE_TOLERANCE_DAYS", "3")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Port != 9090 {
		t.Errorf("expected port 9090, got %d", cfg.Port)
	}
	if cfg.DatabaseDriver != "postgres" {
		t.Errorf("expected postgres, got %s", cfg.DatabaseDriver)
	}
	if len(cfg.CORSAllowedOrigins) != 2 || cfg.CORSAllowedOrigins[1] != "https://b.example" {
		t.Errorf("unexpected origins: %v", cfg.CORSAllowedOrigins)
	}
	if cfg.BankFeedURL != "https://feed.example" {
		t.Errorf("expected trailing slash trimmed, got %s", cfg.BankFeedURL)
	}
	if cfg.MatchDateToleranceDays != 3 {
		t.Errorf("expected 3, got %d", cfg.MatchDateToleranceDays)
	}
}

func TestLoad_RejectsUnknownDriver(t *testing.T) {
	t.Setenv("DATABASE_DRIVER", "mysql")
	if _, err := Load(); err == nil {
		t.Fatal("expected error for unsupported driver")
	}
}

func TestLoadDotEnv_DoesNotOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	content := "# comment\nPFM_TEST_A=from-file\nPFM_TEST_B=\"quoted\"\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("PFM_TEST_A", "from-env")
	t.Setenv("PFM_TEST_B", "")

	if err := LoadDotEnv(path); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := os.Getenv("PFM_TEST_A"); got != "from-env" {
		t.Errorf("expected env to win, got %s", got)
	}
	if got := os.Getenv("PFM_TEST_B"); got != "quoted" {
		t.Errorf("expected value from file, got %s", got)
	}
}

func TestLoadDotEnv_MissingFile(t *testing.T) {
	if err := LoadDotEnv(filepath.Join(t.TempDir(), "nope.env")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
