// Package config builds the immutable runtime configuration of the
// receiver: defaults first, then an optional .env file and the process
// environment, then the command line.
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"time"
)

const (
	DefaultPort           = 8080
	UploadDirName         = "dropzone-uploads"
	DefaultMaxMessageSize = 64 << 10
	DefaultIdleTimeout    = 2 * time.Minute
	DefaultMaxConnections = 256
	DefaultSweepInterval  = 10 * time.Minute
	DefaultStagingMaxAge  = 24 * time.Hour
)

var (
	ErrInvalidPort  = errors.New("invalid port")
	ErrInvalidValue = errors.New("invalid configuration value")
)

// Config holds runtime settings. It is built once at startup and never
// mutated afterwards.
//
// Fields:
//   - Port: TCP port to listen on (0 picks an ephemeral port).
//   - TLSEnabled: serve HTTPS using CertPath/KeyPath.
//   - UploadDir: absolute upload root.
//   - Flat: UploadDir is the working directory itself.
//   - MaxBodySize: cap on a whole upload request body in bytes, 0 = unlimited.
//   - MaxMessageSize: cap on a text message in bytes.
//   - IdleTimeout: how long a request body may stall before the upload is dropped.
//   - MaxConnections: cap on concurrently open client connections.
//   - SweepInterval / StagingMaxAge: orphaned staging file cleanup.
type Config struct {
	Port           int
	TLSEnabled     bool
	CertPath       string
	KeyPath        string
	UploadDir      string
	Flat           bool
	MaxBodySize    int64
	MaxMessageSize int64
	IdleTimeout    time.Duration
	MaxConnections int
	SweepInterval  time.Duration
	StagingMaxAge  time.Duration
	LogLevel       string
}

// LoadDefaults populates Config relative to the working directory cwd.
func (c *Config) LoadDefaults(cwd string) {
	c.Port = DefaultPort
	c.TLSEnabled = true
	c.CertPath = filepath.Join(cwd, "cert.crt")
	c.KeyPath = filepath.Join(cwd, "cert.key")
	c.UploadDir = filepath.Join(cwd, UploadDirName)
	c.Flat = false
	c.MaxBodySize = 0
	c.MaxMessageSize = DefaultMaxMessageSize
	c.IdleTimeout = DefaultIdleTimeout
	c.MaxConnections = DefaultMaxConnections
	c.SweepInterval = DefaultSweepInterval
	c.StagingMaxAge = DefaultStagingMaxAge
	c.LogLevel = "info"
}

// Load builds a Config from defaults, the environment (looked up through
// getenv) and the command-line arguments without the program name.
func Load(args []string, getenv func(string) string, cwd string) (*Config, error) {
	cfg := &Config{}
	cfg.LoadDefaults(cwd)

	if err := parseEnv(cfg, getenv); err != nil {
		return nil, err
	}
	if err := parseArgs(cfg, args); err != nil {
		return nil, err
	}
	if cfg.Flat {
		cfg.UploadDir = cwd
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports the first setting that cannot work.
func (c *Config) Validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("%w: %d", ErrInvalidPort, c.Port)
	}
	if c.UploadDir == "" {
		return fmt.Errorf("%w: upload dir must not be empty", ErrInvalidValue)
	}
	if c.MaxBodySize < 0 {
		return fmt.Errorf("%w: max body size must be >= 0", ErrInvalidValue)
	}
	if c.MaxMessageSize <= 0 {
		return fmt.Errorf("%w: max message size must be > 0", ErrInvalidValue)
	}
	if c.IdleTimeout <= 0 {
		return fmt.Errorf("%w: idle timeout must be > 0", ErrInvalidValue)
	}
	if c.MaxConnections <= 0 {
		return fmt.Errorf("%w: max connections must be > 0", ErrInvalidValue)
	}
	if c.TLSEnabled && (c.CertPath == "" || c.KeyPath == "") {
		return fmt.Errorf("%w: TLS needs both a certificate and a key path", ErrInvalidValue)
	}
	return nil
}

// Scheme is "https" when TLS is enabled, "http" otherwise.
func (c *Config) Scheme() string {
	if c.TLSEnabled {
		return "https"
	}
	return "http"
}

// ListenAddr is the address handed to net.Listen.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf(":%d", c.Port)
}
