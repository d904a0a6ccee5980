package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies SETTLEHOUSE_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known SETTLEHOUSE_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Signer ──
	setStr(&cfg.Signer.PrivateKey, "SETTLEHOUSE_SIGNER_PRIVATE_KEY")
	setStr(&cfg.Signer.EncryptedKeyPath, "SETTLEHOUSE_SIGNER_ENCRYPTED_KEY_PATH")
	setStr(&cfg.Signer.KeyPassword, "SETTLEHOUSE_SIGNER_KEY_PASSWORD")

	// ── Domain ──
	setStr(&cfg.Domain.Name, "SETTLEHOUSE_DOMAIN_NAME")
	setStr(&cfg.Domain.Version, "SETTLEHOUSE_DOMAIN_VERSION")
	setInt64(&cfg.Domain.ChainID, "SETTLEHOUSE_DOMAIN_CHAIN_ID")
	setStr(&cfg.Domain.VerifyingContract, "SETTLEHOUSE_DOMAIN_VERIFYING_CONTRACT")

	// ── Settlement ──
	setStr(&cfg.Settlement.Admin, "SETTLEHOUSE_SETTLEMENT_ADMIN")
	setStr(&cfg.Settlement.FeeRecipient, "SETTLEHOUSE_SETTLEMENT_FEE_RECIPIENT")
	setStr(&cfg.Settlement.Platform, "SETTLEHOUSE_SETTLEMENT_PLATFORM")
	setStr(&cfg.Settlement.Collection, "SETTLEHOUSE_SETTLEMENT_COLLECTION")

	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "SETTLEHOUSE_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "SETTLEHOUSE_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "SETTLEHOUSE_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "SETTLEHOUSE_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "SETTLEHOUSE_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "SETTLEHOUSE_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "SETTLEHOUSE_POSTGRES_SSLMODE")
	setInt(&cfg.Postgres.PoolMaxConns, "SETTLEHOUSE_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "SETTLEHOUSE_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "SETTLEHOUSE_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "SETTLEHOUSE_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "SETTLEHOUSE_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "SETTLEHOUSE_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "SETTLEHOUSE_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "SETTLEHOUSE_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "SETTLEHOUSE_REDIS_TLS_ENABLED")

	// ── S3 ──
	setStr(&cfg.S3.Endpoint, "SETTLEHOUSE_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "SETTLEHOUSE_S3_REGION")
	setStr(&cfg.S3.Bucket, "SETTLEHOUSE_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "SETTLEHOUSE_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "SETTLEHOUSE_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "SETTLEHOUSE_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "SETTLEHOUSE_S3_FORCE_PATH_STYLE")

	// ── Archive ──
	setStr(&cfg.Archive.Stream, "SETTLEHOUSE_ARCHIVE_STREAM")
	setDuration(&cfg.Archive.Interval, "SETTLEHOUSE_ARCHIVE_INTERVAL")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "SETTLEHOUSE_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "SETTLEHOUSE_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "SETTLEHOUSE_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "SETTLEHOUSE_SERVER_API_KEY")
	setInt(&cfg.Server.RateLimit, "SETTLEHOUSE_SERVER_RATE_LIMIT")
	setDuration(&cfg.Server.RateWindow, "SETTLEHOUSE_SERVER_RATE_WINDOW")

	// ── Top-level ──
	setStr(&cfg.Mode, "SETTLEHOUSE_MODE")
	setStr(&cfg.LogLevel, "SETTLEHOUSE_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
