package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads configuration from the given TOML file and applies environment
// variable overrides on top of it. Missing file is allowed; defaults plus
// environment variables must then supply everything.
func Load(path string) (Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if _, err := toml.DecodeFile(path, &cfg); err != nil {
				return cfg, fmt.Errorf("config: decode %s: %w", path, err)
			}
		} else if !os.IsNotExist(err) {
			return cfg, fmt.Errorf("config: stat %s: %w", path, err)
		}
	}

	// A .env file next to the binary is convenient in development and
	// harmless in production when absent.
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)
	return cfg, nil
}

// applyEnvOverrides mutates cfg with values from TRADEFLOW_* environment
// variables. Only non-empty variables take effect.
func applyEnvOverrides(cfg *Config) {
	setStr(&cfg.Wallet.PrivateKey, "TRADEFLOW_WALLET_PRIVATE_KEY")
	setStr(&cfg.Wallet.EncryptedKeyPath, "TRADEFLOW_WALLET_ENCRYPTED_KEY_PATH")
	setStr(&cfg.Wallet.KeyPassword, "TRADEFLOW_WALLET_KEY_PASSWORD")
	setBool(&cfg.Wallet.AutoApprove, "TRADEFLOW_WALLET_AUTO_APPROVE")

	setStr(&cfg.Chain.RPCURL, "TRADEFLOW_CHAIN_RPC_URL")
	setInt64(&cfg.Chain.ChainID, "TRADEFLOW_CHAIN_ID")
	setStr(&cfg.Chain.CollateralToken, "TRADEFLOW_CHAIN_COLLATERAL_TOKEN")
	setStr(&cfg.Chain.ConditionalTokens, "TRADEFLOW_CHAIN_CONDITIONAL_TOKENS")
	setStr(&cfg.Chain.Exchange, "TRADEFLOW_CHAIN_EXCHANGE")
	setInt(&cfg.Chain.CollateralDecimals, "TRADEFLOW_CHAIN_COLLATERAL_DECIMALS")

	setStr(&cfg.Venue.BaseURL, "TRADEFLOW_VENUE_BASE_URL")
	setStr(&cfg.Venue.ApiKey, "TRADEFLOW_VENUE_API_KEY")
	setStr(&cfg.Venue.ApiSecret, "TRADEFLOW_VENUE_API_SECRET")
	setStr(&cfg.Venue.ApiPassphrase, "TRADEFLOW_VENUE_API_PASSPHRASE")
	setDuration(&cfg.Venue.Timeout, "TRADEFLOW_VENUE_TIMEOUT")

	setStr(&cfg.Postgres.DSN, "TRADEFLOW_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "TRADEFLOW_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "TRADEFLOW_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "TRADEFLOW_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "TRADEFLOW_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "TRADEFLOW_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "TRADEFLOW_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "TRADEFLOW_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "TRADEFLOW_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "TRADEFLOW_POSTGRES_RUN_MIGRATIONS")

	setStr(&cfg.Redis.Addr, "TRADEFLOW_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "TRADEFLOW_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "TRADEFLOW_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "TRADEFLOW_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "TRADEFLOW_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "TRADEFLOW_REDIS_TLS_ENABLED")

	setStr(&cfg.S3.Endpoint, "TRADEFLOW_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "TRADEFLOW_S3_REGION")
	setStr(&cfg.S3.Bucket, "TRADEFLOW_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "TRADEFLOW_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "TRADEFLOW_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "TRADEFLOW_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "TRADEFLOW_S3_FORCE_PATH_STYLE")

	setBool(&cfg.Server.Enabled, "TRADEFLOW_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "TRADEFLOW_SERVER_PORT")
	setStr(&cfg.Server.APIKey, "TRADEFLOW_SERVER_API_KEY")
	setStringSlice(&cfg.Server.CORSOrigins, "TRADEFLOW_SERVER_CORS_ORIGINS")

	setStr(&cfg.Notify.TelegramToken, "TRADEFLOW_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "TRADEFLOW_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "TRADEFLOW_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "TRADEFLOW_NOTIFY_EVENTS")

	setStr(&cfg.Mode, "TRADEFLOW_MODE")
	setStr(&cfg.LogLevel, "TRADEFLOW_LOG_LEVEL")
}

// ---- Typed override helpers ----

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
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if s := strings.TrimSpace(p); s != "" {
				out = append(out, s)
			}
		}
		if len(out) > 0 {
			*dst = out
		}
	}
}
