// Package config loads runtime settings from an optional .env file and the
// process environment.
package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
)

const (
	EnvVaultDir    = "PM_VAULT_DIR"
	EnvServerURL   = "PM_SERVER_URL"
	EnvAccessToken = "PM_ACCESS_TOKEN"
	EnvLogLevel    = "PM_LOG_LEVEL"
	EnvHTTPRetries = "PM_HTTP_RETRIES"

	DefaultVaultDir  = "./dev-vault"
	DefaultServerURL = "http://localhost:4000/api"
)

// Config holds the settings shared by the binaries.
type Config struct {
	VaultDir    string
	ServerURL   string
	AccessToken string
	LogLevel    zerolog.Level
	// HTTPRetries is the retry budget for server requests; 0 disables retries.
	HTTPRetries int
}

// Load reads envFile (if it exists) into the environment without overriding
// variables that are already set, then builds a Config. An empty envFile
// means ".env" in the working directory.
func Load(envFile string) (Config, error) {
	if envFile == "" {
		envFile = ".env"
	}
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load %s: %w", envFile, err)
	}
	return FromEnv()
}

// FromEnv builds a Config from the environment alone.
func FromEnv() (Config, error) {
	cfg := Config{
		VaultDir:    envOr(EnvVaultDir, DefaultVaultDir),
		ServerURL:   envOr(EnvServerURL, DefaultServerURL),
		AccessToken: os.Getenv(EnvAccessToken),
		LogLevel:    zerolog.WarnLevel,
		HTTPRetries: 2,
	}
	if v := strings.TrimSpace(os.Getenv(EnvLogLevel)); v != "" {
		lvl, err := zerolog.ParseLevel(strings.ToLower(v))
		if err != nil {
			return Config{}, fmt.Errorf("%s: %w", EnvLogLevel, err)
		}
		cfg.LogLevel = lvl
	}
	if v := strings.TrimSpace(os.Getenv(EnvHTTPRetries)); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return Config{}, fmt.Errorf("%s: must be a non-negative integer, got %q", EnvHTTPRetries, v)
		}
		cfg.HTTPRetries = n
	}
	return cfg, nil
}

func envOr(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

// DBPath is the state database inside the vault directory.
func (c Config) DBPath() string {
	return filepath.Join(c.VaultDir, "state.db")
}

// Logger returns a console logger writing to w at the configured level.
func (c Config) Logger(w io.Writer) zerolog.Logger {
	return zerolog.New(zerolog.ConsoleWriter{Out: w, NoColor: true}).
		Level(c.LogLevel).
		With().Timestamp().Logger()
}
