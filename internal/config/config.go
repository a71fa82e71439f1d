// Package config defines the top-level configuration for the exchange daemon
// and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a
// TOML file and then optionally overridden by SAPPHIRE_* environment
// variables.
type Config struct {
	Wallet   WalletConfig   `toml:"wallet"`
	Chain    ChainConfig    `toml:"chain"`
	Content  ContentConfig  `toml:"content"`
	Postgres PostgresConfig `toml:"postgres"`
	Redis    RedisConfig    `toml:"redis"`
	S3       S3Config       `toml:"s3"`
	Auction  AuctionConfig  `toml:"auction"`
	Verify   VerifyConfig   `toml:"verify"`
	Server   ServerConfig   `toml:"server"`
	Notify   NotifyConfig   `toml:"notify"`
	Mode     string         `toml:"mode"`
	LogLevel string         `toml:"log_level"`
}

// WalletConfig holds the master seed and keystore credentials.
type WalletConfig struct {
	// MasterSeed is the hex-encoded 32-byte seed auction wallets derive from.
	MasterSeed  string `toml:"master_seed"`
	KeyPassword string `toml:"key_password"`
}

// ChainConfig holds per-currency value-transfer node endpoints.
type ChainConfig struct {
	Nodes map[string]ChainNodeConfig `toml:"nodes"`
	// Timeout bounds every node RPC call.
	Timeout duration `toml:"timeout"`
}

// ChainNodeConfig is one currency's node endpoint.
type ChainNodeConfig struct {
	URL     string `toml:"url"`
	APIKey  string `toml:"api_key"`
	Account string `toml:"account"`
}

// ContentConfig holds the content-store gateway parameters.
type ContentConfig struct {
	GatewayURL string   `toml:"gateway_url"`
	Account    string   `toml:"account"`
	MinBalance float64  `toml:"min_balance"`
	Timeout    duration `toml:"timeout"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// S3Config holds S3-compatible object storage parameters for the content
// mirror.
type S3Config struct {
	Enabled        bool   `toml:"enabled"`
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// AuctionConfig holds marketplace identity and sequencing parameters.
type AuctionConfig struct {
	PostedBy       string `toml:"posted_by"`
	Currency       string `toml:"currency"`
	SequenceWallet string `toml:"sequence_wallet"`
	FundingWallet  string `toml:"funding_wallet"`
	ClaimAmount    string `toml:"claim_amount"`
	// SettleInterval is how often due auctions are swept for settlement.
	SettleInterval duration `toml:"settle_interval"`
}

// VerifyConfig holds winner-verification cadence.
type VerifyConfig struct {
	Enabled  bool     `toml:"enabled"`
	Interval duration `toml:"interval"`
	Lookback duration `toml:"lookback"`
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string `toml:"telegram_token"`
	TelegramChatID    string `toml:"telegram_chat_id"`
	DiscordWebhookURL string `toml:"discord_webhook_url"`
}

// duration is a wrapper around time.Duration that supports TOML string
// decoding (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with reasonable default values.
func Defaults() Config {
	return Config{
		Chain: ChainConfig{
			Nodes:   map[string]ChainNodeConfig{},
			Timeout: duration{10 * time.Second},
		},
		Content: ContentConfig{
			GatewayURL: "https://arweave.net",
			MinBalance: 0.05,
			Timeout:    duration{30 * time.Second},
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "sapphire",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			DB:         0,
			PoolSize:   20,
			MaxRetries: 3,
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "sapphire-content",
			ForcePathStyle: true,
		},
		Auction: AuctionConfig{
			PostedBy:       "sapphire-exchange",
			Currency:       "NANO",
			ClaimAmount:    "0.000001",
			SettleInterval: duration{time.Minute},
		},
		Verify: VerifyConfig{
			Enabled:  true,
			Interval: duration{5 * time.Minute},
			Lookback: duration{24 * time.Hour},
		},
		Server: ServerConfig{
			Enabled: true,
			Port:    8080,
		},
		Mode:     "serve",
		LogLevel: "info",
	}
}

// Operating modes.
const (
	// ModeServe runs the full marketplace against Postgres and Redis.
	ModeServe = "serve"
	// ModeVerify runs only the background winner verification loop.
	ModeVerify = "verify"
	// ModeStandalone runs the marketplace on in-memory backends.
	ModeStandalone = "standalone"
)

var validModes = map[string]bool{
	ModeServe:      true,
	ModeVerify:     true,
	ModeStandalone: true,
}

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks the configuration for internal consistency and collects
// every problem found into a single error.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: serve, verify, standalone)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	if c.Wallet.MasterSeed == "" {
		errs = append(errs, "wallet: master_seed must be set")
	}
	if c.Wallet.KeyPassword == "" {
		errs = append(errs, "wallet: key_password must be set")
	}

	if c.Content.GatewayURL == "" {
		errs = append(errs, "content: gateway_url must not be empty")
	}
	if c.Content.MinBalance < 0 {
		errs = append(errs, "content: min_balance must not be negative")
	}

	if strings.ToLower(c.Mode) != ModeStandalone {
		if c.Postgres.DSN == "" && c.Postgres.Host == "" {
			errs = append(errs, "postgres: either dsn or host must be set")
		}
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty")
		}
	}
	if c.Postgres.PoolMaxConns < c.Postgres.PoolMinConns {
		errs = append(errs, "postgres: pool_max_conns must be >= pool_min_conns")
	}

	if c.Auction.Currency == "" {
		errs = append(errs, "auction: currency must not be empty")
	}
	if c.Auction.SequenceWallet == "" {
		errs = append(errs, "auction: sequence_wallet must be set")
	}

	if c.Server.Enabled && (c.Server.Port <= 0 || c.Server.Port > 65535) {
		errs = append(errs, fmt.Sprintf("server: port %d out of range", c.Server.Port))
	}

	// Telegram credentials must come as a pair.
	tt := c.Notify.TelegramToken != ""
	tc := c.Notify.TelegramChatID != ""
	if tt != tc {
		errs = append(errs, "notify: telegram_token and telegram_chat_id must be set together")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}

// ConnString assembles the PostgreSQL connection string, preferring the
// explicit dsn field.
func (p *PostgresConfig) ConnString() string {
	if p.DSN != "" {
		return p.DSN
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		p.User, p.Password, p.Host, p.Port, p.Database, p.SSLMode)
}
