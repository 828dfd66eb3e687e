package config

import (
	"errors"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies MKTIDX_* environment variable overrides, and
// returns the final Config. A missing file is not an error: defaults plus
// environment are enough to run against the public VeryChain RPC. The
// returned Config has NOT been validated.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known MKTIDX_* environment variables and
// overwrites the corresponding Config fields when a variable is set.
func applyEnvOverrides(cfg *Config) {
	// ── Chain ──
	setStr(&cfg.Chain.RPCURL, "MKTIDX_CHAIN_RPC_URL")
	setInt64(&cfg.Chain.ChainID, "MKTIDX_CHAIN_ID")
	setStr(&cfg.Chain.FactoryAddress, "MKTIDX_CHAIN_FACTORY_ADDRESS")
	setUint64(&cfg.Chain.StartBlock, "MKTIDX_CHAIN_START_BLOCK")
	setUint64(&cfg.Chain.Confirmations, "MKTIDX_CHAIN_CONFIRMATIONS")
	setUint64(&cfg.Chain.BatchSize, "MKTIDX_CHAIN_BATCH_SIZE")
	setInt(&cfg.Chain.MaxAddresses, "MKTIDX_CHAIN_MAX_ADDRESSES")
	setDuration(&cfg.Chain.PollInterval, "MKTIDX_CHAIN_POLL_INTERVAL")
	setDuration(&cfg.Chain.RPCTimeout, "MKTIDX_CHAIN_RPC_TIMEOUT")
	setInt(&cfg.Chain.MaxRetries, "MKTIDX_CHAIN_MAX_RETRIES")

	// ── Wallet ──
	setStr(&cfg.Wallet.PrivateKey, "MKTIDX_WALLET_PRIVATE_KEY")
	setStr(&cfg.Wallet.EncryptedKeyPath, "MKTIDX_WALLET_ENCRYPTED_KEY_PATH")
	setStr(&cfg.Wallet.KeyPassword, "MKTIDX_WALLET_KEY_PASSWORD")

	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "MKTIDX_POSTGRES_DSN")
	setStr(&cfg.Postgres.DSN, "DATABASE_URL") // compatibility alias
	setStr(&cfg.Postgres.Host, "MKTIDX_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "MKTIDX_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "MKTIDX_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "MKTIDX_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "MKTIDX_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "MKTIDX_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "MKTIDX_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "MKTIDX_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "MKTIDX_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "MKTIDX_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "MKTIDX_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "MKTIDX_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "MKTIDX_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "MKTIDX_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "MKTIDX_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "MKTIDX_REDIS_TLS_ENABLED")
	setStr(&cfg.Redis.KeyNamespace, "MKTIDX_REDIS_KEY_NAMESPACE")
	setInt(&cfg.Redis.CacheTTLMinutes, "MKTIDX_REDIS_CACHE_TTL_MINUTES")
	setInt64(&cfg.Redis.StreamMaxLen, "MKTIDX_REDIS_STREAM_MAX_LEN")
	setInt(&cfg.Redis.RateLimitPerMin, "MKTIDX_REDIS_RATE_LIMIT_PER_MIN")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "MKTIDX_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "MKTIDX_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "MKTIDX_S3_REGION")
	setStr(&cfg.S3.Bucket, "MKTIDX_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "MKTIDX_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "MKTIDX_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "MKTIDX_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "MKTIDX_S3_FORCE_PATH_STYLE")
	setStr(&cfg.S3.Prefix, "MKTIDX_S3_PREFIX")

	// ── Indexer ──
	setBool(&cfg.Indexer.Strict, "MKTIDX_INDEXER_STRICT")
	setStr(&cfg.Indexer.LockKey, "MKTIDX_INDEXER_LOCK_KEY")
	setDuration(&cfg.Indexer.LockTTL, "MKTIDX_INDEXER_LOCK_TTL")
	setInt(&cfg.Indexer.HeaderCache, "MKTIDX_INDEXER_HEADER_CACHE")

	// ── Archive ──
	setBool(&cfg.Archive.Events, "MKTIDX_ARCHIVE_EVENTS")
	setStr(&cfg.Archive.SnapshotCron, "MKTIDX_ARCHIVE_SNAPSHOT_CRON")
	setInt(&cfg.Archive.SnapshotRetentionDays, "MKTIDX_ARCHIVE_SNAPSHOT_RETENTION_DAYS")
	setBool(&cfg.Archive.ReplayVerify, "MKTIDX_ARCHIVE_REPLAY_VERIFY")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "MKTIDX_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "MKTIDX_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "MKTIDX_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "MKTIDX_SERVER_API_KEY")
	setBool(&cfg.Server.TrustProxy, "MKTIDX_SERVER_TRUST_PROXY")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "MKTIDX_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "MKTIDX_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "MKTIDX_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "MKTIDX_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "MKTIDX_MODE")
	setStr(&cfg.LogLevel, "MKTIDX_LOG_LEVEL")
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

func setUint64(dst *uint64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
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
