package main

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"resourcemachine/internal/arm"
)

func TestLoadConfigCreatesDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "armd.json")
	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
	require.NoError(t, cfg.Validate())

	again, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, again)
}

func TestConfigYAMLRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "armd.yaml")
	cfg := DefaultConfig()
	cfg.LogLevel = "debug"
	cfg.Groth16 = true
	cfg.CommitmentTreeDepth = 16
	require.NoError(t, SaveConfig(cfg, path))

	loaded, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "debug", loaded.LogLevel)
	assert.True(t, loaded.Groth16)
	assert.Equal(t, 16, loaded.CommitmentTreeDepth)
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"no ledger", func(c *Config) { c.LedgerPath = "" }},
		{"bad level", func(c *Config) { c.LogLevel = "trace" }},
		{"zero concurrency", func(c *Config) { c.MaxConcurrency = 0 }},
		{"zero timeout", func(c *Config) { c.TimeoutSeconds = 0 }},
		{"depth too large", func(c *Config) { c.CommitmentTreeDepth = 63 }},
		{"groth16 without keys", func(c *Config) { c.Groth16 = true; c.KeyDir = "" }},
		{"audit without path", func(c *Config) { c.AuditLogPath = "" }},
		{"short forwarder", func(c *Config) { c.TokenForwarder = "0x1234" }},
		{"bad token hex", func(c *Config) { c.TokenAddress = "zz" }},
		{"no rate", func(c *Config) { c.RequestsPerSec = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestConfigToken(t *testing.T) {
	cfg := DefaultConfig()
	token, err := cfg.Token()
	require.NoError(t, err)
	assert.Equal(t, byte(0xf0), token.Forwarder[0])
	assert.Equal(t, byte(0x70), token.Address[0])
}

func TestProtocolKeys(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, arm.DefaultKeys(), cfg.ProtocolKeys())

	custom := arm.DefaultKeys()
	custom.Compliance[0] ^= 1
	cfg.Keys = &custom
	assert.Equal(t, custom, cfg.ProtocolKeys())
}
