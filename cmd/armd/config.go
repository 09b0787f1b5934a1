// config.go - Configuration management for the resource machine daemon
package main

import (
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"

	"resourcemachine/internal/arm"
	"resourcemachine/internal/transactions/transfer"
)

// Config represents the daemon configuration
type Config struct {
	// File paths
	LedgerPath string `json:"ledger_path" yaml:"ledger_path"`
	KeyDir     string `json:"key_dir" yaml:"key_dir"`

	// Logging
	LogLevel     string `json:"log_level" yaml:"log_level"`
	LogFile      string `json:"log_file" yaml:"log_file"`
	EnableAudit  bool   `json:"enable_audit" yaml:"enable_audit"`
	AuditLogPath string `json:"audit_log_path" yaml:"audit_log_path"`

	// Performance
	MaxConcurrency int `json:"max_concurrency" yaml:"max_concurrency"`
	TimeoutSeconds int `json:"timeout_seconds" yaml:"timeout_seconds"`

	// Protocol
	CommitmentTreeDepth int       `json:"commitment_tree_depth" yaml:"commitment_tree_depth"`
	Groth16             bool      `json:"groth16" yaml:"groth16"`
	DevMode             bool      `json:"dev_mode" yaml:"dev_mode"`
	Keys                *arm.Keys `json:"keys,omitempty" yaml:"keys,omitempty"`

	// Token used by the demo scenario, as hex addresses
	TokenForwarder string `json:"token_forwarder" yaml:"token_forwarder"`
	TokenAddress   string `json:"token_address" yaml:"token_address"`

	// Server
	ListenAddr     string `json:"listen_addr" yaml:"listen_addr"`
	RequestsPerSec int    `json:"requests_per_sec" yaml:"requests_per_sec"`
	BurstRequests  int    `json:"burst_requests" yaml:"burst_requests"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		LedgerPath:          "ledger.json",
		KeyDir:              "keys",
		LogLevel:            "info",
		LogFile:             "armd.log",
		EnableAudit:         true,
		AuditLogPath:        "audit.log",
		MaxConcurrency:      4,
		TimeoutSeconds:      60,
		CommitmentTreeDepth: arm.DefaultCommitmentTreeDepth,
		TokenForwarder:      "0xf000000000000000000000000000000000000000",
		TokenAddress:        "0x7000000000000000000000000000000000000000",
		ListenAddr:          "127.0.0.1:9464",
		RequestsPerSec:      10,
		BurstRequests:       20,
	}
}

func isYAML(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yml" || ext == ".yaml"
}

// LoadConfig loads configuration from file or creates default. Files ending in
// .yml or .yaml are YAML, anything else JSON.
func LoadConfig(configPath string) (*Config, error) {
	if _, err := os.Stat(configPath); err == nil {
		b, err := os.ReadFile(configPath)
		if err != nil {
			return nil, errors.Wrap(err, "failed to read config file")
		}
		config := DefaultConfig()
		if isYAML(configPath) {
			err = yaml.Unmarshal(b, config)
		} else {
			err = json.Unmarshal(b, config)
		}
		if err != nil {
			return nil, errors.Wrap(err, "failed to decode config file")
		}
		return config, nil
	}

	config := DefaultConfig()
	if err := SaveConfig(config, configPath); err != nil {
		return nil, errors.Wrap(err, "failed to save default config")
	}
	return config, nil
}

// SaveConfig saves configuration to file
func SaveConfig(config *Config, configPath string) error {
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return errors.Wrap(err, "failed to create config directory")
	}

	var b []byte
	var err error
	if isYAML(configPath) {
		b, err = yaml.Marshal(config)
	} else {
		b, err = json.MarshalIndent(config, "", "  ")
	}
	if err != nil {
		return errors.Wrap(err, "failed to encode config")
	}
	return errors.Wrap(os.WriteFile(configPath, b, 0644), "failed to write config file")
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.LedgerPath == "" {
		return errors.New("ledger_path must be set")
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return errors.Errorf("log_level %q must be one of debug, info, warn, error", c.LogLevel)
	}
	if c.MaxConcurrency <= 0 {
		return errors.New("max_concurrency must be positive")
	}
	if c.TimeoutSeconds <= 0 {
		return errors.New("timeout_seconds must be positive")
	}
	if c.CommitmentTreeDepth < 1 || c.CommitmentTreeDepth > 62 {
		return errors.New("commitment_tree_depth must be between 1 and 62")
	}
	if c.Groth16 && c.KeyDir == "" {
		return errors.New("key_dir must be set when groth16 is enabled")
	}
	if c.EnableAudit && c.AuditLogPath == "" {
		return errors.New("audit_log_path must be set when audit is enabled")
	}
	if _, err := c.Token(); err != nil {
		return err
	}
	if c.RequestsPerSec <= 0 || c.BurstRequests <= 0 {
		return errors.New("requests_per_sec and burst_requests must be positive")
	}
	return nil
}

// devModeEnv turns dev mode on regardless of the config file.
const devModeEnv = "ARMD_DEV_MODE"

// DevModeEnabled reports whether dev engine receipts are accepted on verification.
func (c *Config) DevModeEnabled() bool {
	if on, err := strconv.ParseBool(os.Getenv(devModeEnv)); err == nil && on {
		return true
	}
	return c.DevMode
}

// ProtocolKeys returns the configured verifying keys, or the defaults.
func (c *Config) ProtocolKeys() arm.Keys {
	if c.Keys != nil {
		return *c.Keys
	}
	return arm.DefaultKeys()
}

func parseAddress(name, s string) (transfer.Address20, error) {
	var a transfer.Address20
	b, err := hex.DecodeString(strings.TrimPrefix(s, "0x"))
	if err != nil || len(b) != len(a) {
		return a, errors.Errorf("%s %q must be a 20-byte hex address", name, s)
	}
	copy(a[:], b)
	return a, nil
}

// Token returns the configured demo token.
func (c *Config) Token() (transfer.Token, error) {
	forwarder, err := parseAddress("token_forwarder", c.TokenForwarder)
	if err != nil {
		return transfer.Token{}, err
	}
	address, err := parseAddress("token_address", c.TokenAddress)
	if err != nil {
		return transfer.Token{}, err
	}
	return transfer.Token{Forwarder: forwarder, Address: address}, nil
}
