package config

import (
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	// Clear env vars that could interfere with default values. Empty is
	// equivalent to unset for the overrides, which all check != "".
	for _, key := range []string{
		"MOSAIC_PORT",
		"MOSAIC_BIND",
		"MOSAIC_DATA_DIR",
		"MOSAIC_DEV",
		"MOSAIC_JWT_SECRET",
		"MOSAIC_ENCRYPTION_KEY",
		"GOOGLE_AI_API_KEY",
	} {
		t.Setenv(key, "")
	}

	cfg := Load()

	if cfg.Port != 8749 {
		t.Errorf("expected default port 8749, got %d", cfg.Port)
	}
	if cfg.BindAddress != "127.0.0.1" {
		t.Errorf("expected default bind address 127.0.0.1, got %s", cfg.BindAddress)
	}
	if cfg.DevMode != false {
		t.Errorf("expected default dev mode false, got %v", cfg.DevMode)
	}
	if cfg.DataDir == "" {
		t.Error("expected DataDir to be non-empty")
	}
}

func TestLoadPortOverride(t *testing.T) {
	t.Setenv("MOSAIC_PORT", "9090")

	cfg := Load()

	if cfg.Port != 9090 {
		t.Errorf("expected port 9090, got %d", cfg.Port)
	}
}

func TestLoadInvalidPortFallsBackToDefault(t *testing.T) {
	t.Setenv("MOSAIC_PORT", "not-a-number")

	cfg := Load()

	if cfg.Port != 8749 {
		t.Errorf("expected default port 8749 for invalid port, got %d", cfg.Port)
	}
}

func TestLoadBindOverride(t *testing.T) {
	t.Setenv("MOSAIC_BIND", "0.0.0.0")

	cfg := Load()

	if cfg.BindAddress != "0.0.0.0" {
		t.Errorf("expected bind address 0.0.0.0, got %s", cfg.BindAddress)
	}
}

func TestLoadDataDirOverride(t *testing.T) {
	t.Setenv("MOSAIC_DATA_DIR", "/tmp/mosaic-test-data")

	cfg := Load()

	if cfg.DataDir != "/tmp/mosaic-test-data" {
		t.Errorf("expected data dir /tmp/mosaic-test-data, got %s", cfg.DataDir)
	}
}

func TestLoadAPIKeyFromEnv(t *testing.T) {
	t.Setenv("GOOGLE_AI_API_KEY", "test-key")

	cfg := Load()

	if cfg.APIKey != "test-key" {
		t.Errorf("expected API key from env, got %q", cfg.APIKey)
	}
}

func TestLoadDevMode(t *testing.T) {
	t.Setenv("MOSAIC_DEV", "true")

	cfg := Load()

	if !cfg.DevMode {
		t.Error("expected dev mode true")
	}
}
