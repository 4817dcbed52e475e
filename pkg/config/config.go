// Package config loads the gateway's YAML configuration file into a
// typed struct, the same shape the rest of the system depends on for
// vendor identity, listen addresses, operator credentials, and timeouts.
package config

import (
	"fmt"
	"os"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the complete gateway configuration.
type Config struct {
	Vendor      VendorConfig      `yaml:"vendor"`
	Gateway     GatewayConfig     `yaml:"gateway"`
	API         APIConfig         `yaml:"api"`
	Operator    OperatorConfig    `yaml:"operator"`
	Telemetry   TelemetryConfig   `yaml:"telemetry"`
	Audit       AuditConfig       `yaml:"audit"`
	Logging     LogConfig         `yaml:"logging"`
	Workflow    WorkflowConfig    `yaml:"workflow"`
}

// VendorConfig identifies the device vendor tag this deployment speaks
// for; frames whose vendor field doesn't match are rejected.
type VendorConfig struct {
	Tag string `yaml:"tag"`
}

// GatewayConfig holds the device-facing TCP listener settings.
type GatewayConfig struct {
	ListenAddr      string        `yaml:"listen_addr"`
	HandshakeWindow time.Duration `yaml:"handshake_window"`
	ReadBufferBytes int           `yaml:"read_buffer_bytes"`
}

// APIConfig holds the operator-facing HTTP listener settings.
type APIConfig struct {
	ListenAddr   string        `yaml:"listen_addr"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// OperatorConfig holds JWT bearer auth settings for operator endpoints.
type OperatorConfig struct {
	JWTSecret    string        `yaml:"jwt_secret"`
	TokenTTL     time.Duration `yaml:"token_ttl"`
	PasswordHash string        `yaml:"password_hash"`
	Username     string        `yaml:"username"`
	// UserID stamps the user-id field of outbound unlock/lock challenge
	// frames; the wire protocol has no notion of distinct riders, only
	// the single operator account issuing commands.
	UserID string `yaml:"user_id"`
}

// TelemetryConfig controls the websocket telemetry broadcast hub.
type TelemetryConfig struct {
	Enabled      bool `yaml:"enabled"`
	BufferPerConn int `yaml:"buffer_per_conn"`
}

// AuditConfig controls the Postgres-backed operator command log.
type AuditConfig struct {
	Enabled bool   `yaml:"enabled"`
	DSN     string `yaml:"dsn"`
}

// LogConfig mirrors internal/logger.Config for YAML loading.
type LogConfig struct {
	Path       string `yaml:"path"`
	Level      string `yaml:"level"`
	Format     string `yaml:"format"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

// WorkflowConfig holds per-step timeouts for operator workflows.
type WorkflowConfig struct {
	StepTimeout time.Duration `yaml:"step_timeout"`
}

var (
	global   *Config
	globalMu sync.RWMutex
)

// Load reads and parses the YAML configuration file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	cfg := defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: invalid: %w", err)
	}

	globalMu.Lock()
	global = cfg
	globalMu.Unlock()

	return cfg, nil
}

// Get returns the most recently loaded global configuration, or nil if
// Load has never been called.
func Get() *Config {
	globalMu.RLock()
	defer globalMu.RUnlock()
	return global
}

func defaults() *Config {
	return &Config{
		Gateway: GatewayConfig{
			ListenAddr:      ":9000",
			HandshakeWindow: 5 * time.Second,
			ReadBufferBytes: 1024,
		},
		API: APIConfig{
			ListenAddr:   ":8080",
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
		},
		Operator: OperatorConfig{
			TokenTTL: time.Hour,
			UserID:   "operator",
		},
		Workflow: WorkflowConfig{
			StepTimeout: 8 * time.Second,
		},
		Logging: LogConfig{
			Level:      "info",
			Format:     "json",
			MaxSizeMB:  100,
			MaxBackups: 5,
			MaxAgeDays: 28,
			Compress:   true,
		},
	}
}

// Validate checks the configuration for values that would make the
// gateway misbehave at runtime rather than fail fast at startup.
func (c *Config) Validate() error {
	if c.Vendor.Tag == "" {
		return fmt.Errorf("vendor.tag is required")
	}
	if c.Gateway.ListenAddr == "" {
		return fmt.Errorf("gateway.listen_addr is required")
	}
	if c.API.ListenAddr == "" {
		return fmt.Errorf("api.listen_addr is required")
	}
	if c.Operator.JWTSecret == "" {
		return fmt.Errorf("operator.jwt_secret is required")
	}
	if c.Workflow.StepTimeout <= 0 {
		return fmt.Errorf("workflow.step_timeout must be positive")
	}
	return nil
}
