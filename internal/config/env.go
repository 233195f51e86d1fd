package config

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	EnvCertPath       = "DROPZONE_CERT_PATH"
	EnvCertKeyPath    = "DROPZONE_CERT_KEY_PATH"
	EnvMaxBodySize    = "DROPZONE_MAX_BODY_SIZE"
	EnvMaxMessageSize = "DROPZONE_MAX_MESSAGE_SIZE"
	EnvIdleTimeout    = "DROPZONE_IDLE_TIMEOUT"
	EnvMaxConnections = "DROPZONE_MAX_CONNECTIONS"
	EnvLogLevel       = "DROPZONE_LOG_LEVEL"
)

// LoadDotEnv loads dir/.env into the process environment. Variables that
// are already set win. A missing file is not an error.
func LoadDotEnv(dir string) error {
	err := godotenv.Load(filepath.Join(dir, ".env"))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load .env: %w", err)
	}
	return nil
}

func parseEnv(cfg *Config, getenv func(string) string) error {
	if v := strings.TrimSpace(getenv(EnvCertPath)); v != "" {
		cfg.CertPath = v
	}
	if v := strings.TrimSpace(getenv(EnvCertKeyPath)); v != "" {
		cfg.KeyPath = v
	}
	if v := strings.TrimSpace(getenv(EnvLogLevel)); v != "" {
		cfg.LogLevel = v
	}

	var err error
	if cfg.MaxBodySize, err = parseInt64Env(getenv, EnvMaxBodySize, cfg.MaxBodySize); err != nil {
		return err
	}
	if cfg.MaxMessageSize, err = parseInt64Env(getenv, EnvMaxMessageSize, cfg.MaxMessageSize); err != nil {
		return err
	}

	if v := strings.TrimSpace(getenv(EnvIdleTimeout)); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%w: %s=%q: %w", ErrInvalidValue, EnvIdleTimeout, v, err)
		}
		cfg.IdleTimeout = d
	}

	if v := strings.TrimSpace(getenv(EnvMaxConnections)); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: %s=%q: %w", ErrInvalidValue, EnvMaxConnections, v, err)
		}
		cfg.MaxConnections = n
	}
	return nil
}

func parseInt64Env(getenv func(string) string, key string, def int64) (int64, error) {
	v := strings.TrimSpace(getenv(key))
	if v == "" {
		return def, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s=%q: %w", ErrInvalidValue, key, v, err)
	}
	return n, nil
}
