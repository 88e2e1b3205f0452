package config

import (
	"os"
	"testing"
	"time"
)

func clearEnv(t *testing.T, keys ...string) {
	t.Helper()
	for _, k := range keys {
		old, had := os.LookupEnv(k)
		os.Unsetenv(k)
		t.Cleanup(func() {
			if had {
				os.Setenv(k, old)
			}
		})
	}
}

func TestLoadRequiresDatabaseURL(t *testing.T) {
	clearEnv(t, "DATABASE_URL", "HOOKBIN_URL")
	os.Setenv("HOOKBIN_URL", "http://example.invalid/hook")

	_, err := Load()
	if err == nil {
		t.Fatal("expected error when DATABASE_URL is unset")
	}
}

func TestLoadRequiresHookbinURL(t *testing.T) {
	clearEnv(t, "DATABASE_URL", "HOOKBIN_URL")
	os.Setenv("DATABASE_URL", "postgres://localhost/test")

	_, err := Load()
	if err == nil {
		t.Fatal("expected error when HOOKBIN_URL is unset")
	}
}

func TestLoadAppliesDefaults(t *testing.T) {
	clearEnv(t, "DATABASE_URL", "HOOKBIN_URL", "NATS_URL", "LOG_LEVEL")
	os.Setenv("DATABASE_URL", "postgres://localhost/test")
	os.Setenv("HOOKBIN_URL", "http://example.invalid/hook")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.NATS.URL != "nats://localhost:4222" {
		t.Fatalf("unexpected NATS URL default: %q", cfg.NATS.URL)
	}
	if cfg.Log.Level != "INFO" {
		t.Fatalf("unexpected log level default: %q", cfg.Log.Level)
	}
}

func TestParseDurationDaySuffix(t *testing.T) {
	t.Parallel()

	got, err := parseDuration("2d")
	if err != nil {
		t.Fatalf("parseDuration() error = %v", err)
	}
	if want := 48 * time.Hour; got != want {
		t.Fatalf("parseDuration(2d) = %v, want %v", got, want)
	}
}

func TestParseDurationWeekSuffix(t *testing.T) {
	t.Parallel()

	got, err := parseDuration("1w")
	if err != nil {
		t.Fatalf("parseDuration() error = %v", err)
	}
	if want := 7 * 24 * time.Hour; got != want {
		t.Fatalf("parseDuration(1w) = %v, want %v", got, want)
	}
}

func TestParseDurationStdlib(t *testing.T) {
	t.Parallel()

	got, err := parseDuration("90s")
	if err != nil {
		t.Fatalf("parseDuration() error = %v", err)
	}
	if want := 90 * time.Second; got != want {
		t.Fatalf("parseDuration(90s) = %v, want %v", got, want)
	}
}
