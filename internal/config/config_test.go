package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultsValidateLocal(t *testing.T) {
	cfg := Defaults()
	cfg.Signer.PrivateKey = "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"
	cfg.Domain.VerifyingContract = "0x0000000000000000000000000000000000000001"
	cfg.Settlement.Admin = "0x0000000000000000000000000000000000000002"
	cfg.Settlement.FeeRecipient = "0x0000000000000000000000000000000000000003"
	cfg.Settlement.Platform = "0x0000000000000000000000000000000000000003"
	cfg.Settlement.Collection = "0x0000000000000000000000000000000000000004"

	require.NoError(t, cfg.Validate())
}

func TestValidateRejectsMissingSigner(t *testing.T) {
	cfg := Defaults()
	cfg.Domain.VerifyingContract = "0x0000000000000000000000000000000000000001"
	cfg.Settlement.Admin = "0x0000000000000000000000000000000000000002"
	cfg.Settlement.FeeRecipient = "0x0000000000000000000000000000000000000003"
	cfg.Settlement.Platform = "0x0000000000000000000000000000000000000003"
	cfg.Settlement.Collection = "0x0000000000000000000000000000000000000004"

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "signer")
}

func TestValidateArchiveSkipsSettlement(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "archive"

	// Archive mode needs no signer or settlement addresses, only Redis,
	// S3, and the stream settings already present in Defaults.
	require.NoError(t, cfg.Validate())
}

func TestValidateCollectsAllProblems(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "nonsense"
	cfg.LogLevel = "loud"
	cfg.Settlement.Admin = "not-an-address"

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
	assert.Contains(t, err.Error(), "unknown log_level")
	assert.Contains(t, err.Error(), "not a valid address")
}

func TestLoadMergesFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	data := `
mode = "serve"

[server]
port = 9100

[redis]
addr = "redis.internal:6379"
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o600))

	t.Setenv("SETTLEHOUSE_SERVER_PORT", "9200")
	t.Setenv("SETTLEHOUSE_SIGNER_PRIVATE_KEY", "abc123")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "serve", cfg.Mode)
	assert.Equal(t, "redis.internal:6379", cfg.Redis.Addr)
	// Env override wins over the file value.
	assert.Equal(t, 9200, cfg.Server.Port)
	assert.Equal(t, "abc123", cfg.Signer.PrivateKey)
	// Untouched fields keep their defaults.
	assert.Equal(t, 5432, cfg.Postgres.Port)
}

func TestRedactedConfig(t *testing.T) {
	cfg := Defaults()
	cfg.Signer.PrivateKey = "secret-key"
	cfg.Postgres.Password = "pg-pass"
	cfg.Redis.Password = "redis-pass"
	cfg.S3.SecretKey = "s3-secret"
	cfg.Server.APIKey = "api-key"

	red := RedactedConfig(&cfg)

	assert.Equal(t, "***", red.Signer.PrivateKey)
	assert.Equal(t, "***", red.Postgres.Password)
	assert.Equal(t, "***", red.Redis.Password)
	assert.Equal(t, "***", red.S3.SecretKey)
	assert.Equal(t, "***", red.Server.APIKey)

	// The original is untouched.
	assert.Equal(t, "secret-key", cfg.Signer.PrivateKey)

	// Slices are copied, not shared.
	red.Server.CORSOrigins[0] = "mutated"
	assert.NotEqual(t, "mutated", cfg.Server.CORSOrigins[0])
}
