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
// built-in defaults, applies SAPPHIRE_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, err
		}
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known SAPPHIRE_* environment variables and
// overwrites the corresponding Config fields when a variable is set. This
// lets operators inject secrets at deploy time without touching the TOML
// file.
func applyEnvOverrides(cfg *Config) {
	// ── Wallet ──
	setStr(&cfg.Wallet.MasterSeed, "SAPPHIRE_WALLET_MASTER_SEED")
	setStr(&cfg.Wallet.KeyPassword, "SAPPHIRE_WALLET_KEY_PASSWORD")

	// ── Content ──
	setStr(&cfg.Content.GatewayURL, "SAPPHIRE_CONTENT_GATEWAY_URL")
	setStr(&cfg.Content.Account, "SAPPHIRE_CONTENT_ACCOUNT")
	setFloat64(&cfg.Content.MinBalance, "SAPPHIRE_CONTENT_MIN_BALANCE")
	setDuration(&cfg.Content.Timeout, "SAPPHIRE_CONTENT_TIMEOUT")

	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "SAPPHIRE_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "SAPPHIRE_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "SAPPHIRE_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "SAPPHIRE_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "SAPPHIRE_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "SAPPHIRE_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "SAPPHIRE_POSTGRES_SSLMODE")
	setInt(&cfg.Postgres.PoolMaxConns, "SAPPHIRE_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "SAPPHIRE_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "SAPPHIRE_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "SAPPHIRE_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "SAPPHIRE_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "SAPPHIRE_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "SAPPHIRE_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "SAPPHIRE_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "SAPPHIRE_REDIS_TLS_ENABLED")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "SAPPHIRE_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "SAPPHIRE_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "SAPPHIRE_S3_REGION")
	setStr(&cfg.S3.Bucket, "SAPPHIRE_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "SAPPHIRE_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "SAPPHIRE_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "SAPPHIRE_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "SAPPHIRE_S3_FORCE_PATH_STYLE")

	// ── Auction ──
	setStr(&cfg.Auction.PostedBy, "SAPPHIRE_AUCTION_POSTED_BY")
	setStr(&cfg.Auction.Currency, "SAPPHIRE_AUCTION_CURRENCY")
	setStr(&cfg.Auction.SequenceWallet, "SAPPHIRE_AUCTION_SEQUENCE_WALLET")
	setStr(&cfg.Auction.FundingWallet, "SAPPHIRE_AUCTION_FUNDING_WALLET")
	setStr(&cfg.Auction.ClaimAmount, "SAPPHIRE_AUCTION_CLAIM_AMOUNT")
	setDuration(&cfg.Auction.SettleInterval, "SAPPHIRE_AUCTION_SETTLE_INTERVAL")

	// ── Verify ──
	setBool(&cfg.Verify.Enabled, "SAPPHIRE_VERIFY_ENABLED")
	setDuration(&cfg.Verify.Interval, "SAPPHIRE_VERIFY_INTERVAL")
	setDuration(&cfg.Verify.Lookback, "SAPPHIRE_VERIFY_LOOKBACK")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "SAPPHIRE_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "SAPPHIRE_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "SAPPHIRE_SERVER_CORS_ORIGINS")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "SAPPHIRE_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "SAPPHIRE_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "SAPPHIRE_NOTIFY_DISCORD_WEBHOOK_URL")

	// ── Top-level ──
	setStr(&cfg.Mode, "SAPPHIRE_MODE")
	setStr(&cfg.LogLevel, "SAPPHIRE_LOG_LEVEL")
}

// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.

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

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
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
