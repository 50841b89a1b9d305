package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{EnvVaultDir, EnvServerURL, EnvAccessToken, EnvLogLevel, EnvHTTPRetries} {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}
}

func TestDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.VaultDir != DefaultVaultDir || cfg.ServerURL != DefaultServerURL {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.LogLevel != zerolog.WarnLevel || cfg.HTTPRetries != 2 {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.DBPath() != filepath.Join(DefaultVaultDir, "state.db") {
		t.Fatalf("DBPath = %s", cfg.DBPath())
	}
}

func TestEnvFileDoesNotOverrideEnvironment(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	content := "PM_VAULT_DIR=/from/file\nPM_LOG_LEVEL=debug\nPM_HTTP_RETRIES=0\n"
	if err := os.WriteFile(envFile, []byte(content), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}
	t.Setenv(EnvVaultDir, "/from/env")
	t.Cleanup(func() {
		os.Unsetenv(EnvLogLevel)
		os.Unsetenv(EnvHTTPRetries)
	})

	cfg, err := Load(envFile)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.VaultDir != "/from/env" {
		t.Fatalf("VaultDir = %s", cfg.VaultDir)
	}
	if cfg.LogLevel != zerolog.DebugLevel || cfg.HTTPRetries != 0 {
		t.Fatalf("file values not applied: %+v", cfg)
	}
}

func TestInvalidValues(t *testing.T) {
	clearEnv(t)
	t.Setenv(EnvHTTPRetries, "-1")
	if _, err := FromEnv(); err == nil {
		t.Fatal("expected error for negative retries")
	}

	t.Setenv(EnvHTTPRetries, "")
	t.Setenv(EnvLogLevel, "loud")
	if _, err := FromEnv(); err == nil {
		t.Fatal("expected error for unknown log level")
	}
}
