// Package config provides configuration management for the portfolio tracker.
// It loads configuration from environment variables and .env files.
package config

import (
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Koios     KoiosConfig
	Kraken    KrakenConfig
	CoinGecko CoinGeckoConfig
	Webhook   WebhookConfig
	Pricing   PricingConfig
	Snapshot  SnapshotConfig
	RateLimit RateLimitConfig
	Logging   LoggingConfig
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port string
	Host string
	// APIToken guards the pipeline endpoints. Empty disables the check.
	APIToken string
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Postgres   PostgresConfig
	ClickHouse ClickHouseConfig
	Redis      RedisConfig
}

// PostgresConfig holds Postgres configuration
type PostgresConfig struct {
	Host           string
	Port           string
	Database       string
	User           string
	Password       string
	MaxConnections int
}

// ClickHouseConfig holds ClickHouse configuration
type ClickHouseConfig struct {
	Host     string
	Port     string
	Database string
	User     string
	Password string
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host           string
	Port           string
	Password       string
	DB             int
	MaxConnections int
}

// KoiosConfig holds the chain indexer configuration
type KoiosConfig struct {
	PrimaryURL        string
	SecondaryURL      string
	APIKey            string
	RequestsPerSecond float64
	Timeout           time.Duration
}

// KrakenConfig holds the exchange ticker configuration
type KrakenConfig struct {
	BaseURL           string
	RequestsPerSecond float64
	Timeout           time.Duration
}

// CoinGeckoConfig holds the aggregator configuration
type CoinGeckoConfig struct {
	BaseURL           string
	APIKey            string
	RequestsPerSecond float64
	Timeout           time.Duration
}

// WebhookConfig holds the notification sink configuration
type WebhookConfig struct {
	URL     string
	Timeout time.Duration
}

// PricingConfig holds price resolution settings
type PricingConfig struct {
	NativeTickerPair      string
	NativeAggregatorID    string
	ReferenceTickerPair   string
	ReferenceAggregatorID string
	CacheTTL              time.Duration
	ManualPrices          []ManualPrice
}

// ManualPrice is a fixed USD price override loaded once into the token definition store
type ManualPrice struct {
	Unit     string
	PriceUSD float64
}

// SnapshotConfig holds snapshot worker settings
type SnapshotConfig struct {
	PageSize   int
	PageDelay  time.Duration
	Interval   time.Duration
	MaxRetries int
	RetryDelay time.Duration
}

// RateLimitConfig holds API rate limiting configuration
type RateLimitConfig struct {
	RequestsPerMinute int
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string
	Format string
}

// LoadConfig loads configuration from .env file and environment variables
func LoadConfig() (*Config, error) {
	// Load .env file (optional in production)
	if err := godotenv.Load(); err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("error loading .env file: %w", err)
		}
	}

	manual, err := parseManualPrices(getEnv("TOKEN_MANUAL_PRICES", ""))
	if err != nil {
		return nil, err
	}

	config := &Config{
		Server: ServerConfig{
			Port:     getEnv("SERVER_PORT", "8080"),
			Host:     getEnv("SERVER_HOST", "0.0.0.0"),
			APIToken: getEnv("API_TOKEN", ""),
		},
		Database: DatabaseConfig{
			Postgres: PostgresConfig{
				Host:           getEnv("POSTGRES_HOST", "localhost"),
				Port:           getEnv("POSTGRES_PORT", "5432"),
				Database:       getEnv("POSTGRES_DB", "cardano_portfolio"),
				User:           getEnv("POSTGRES_USER", "portfolio"),
				Password:       getEnv("POSTGRES_PASSWORD", ""),
				MaxConnections: getEnvAsInt("POSTGRES_MAX_CONNECTIONS", 20),
			},
			ClickHouse: ClickHouseConfig{
				Host:     getEnv("CLICKHOUSE_HOST", "localhost"),
				Port:     getEnv("CLICKHOUSE_PORT", "9000"),
				Database: getEnv("CLICKHOUSE_DB", "cardano_portfolio"),
				User:     getEnv("CLICKHOUSE_USER", "default"),
				Password: getEnv("CLICKHOUSE_PASSWORD", ""),
			},
			Redis: RedisConfig{
				Host:           getEnv("REDIS_HOST", "localhost"),
				Port:           getEnv("REDIS_PORT", "6379"),
				Password:       getEnv("REDIS_PASSWORD", ""),
				DB:             getEnvAsInt("REDIS_DB", 0),
				MaxConnections: getEnvAsInt("REDIS_MAX_CONNECTIONS", 20),
			},
		},
		Koios: KoiosConfig{
			PrimaryURL:        getEnv("KOIOS_PRIMARY_URL", "https://api.koios.rest/api/v1"),
			SecondaryURL:      getEnv("KOIOS_SECONDARY_URL", ""),
			APIKey:            getEnv("KOIOS_API_KEY", ""),
			RequestsPerSecond: getEnvAsFloat("KOIOS_RPS", 5),
			Timeout:           getEnvAsDuration("KOIOS_TIMEOUT", 30*time.Second),
		},
		Kraken: KrakenConfig{
			BaseURL:           getEnv("KRAKEN_BASE_URL", "https://api.kraken.com"),
			RequestsPerSecond: getEnvAsFloat("KRAKEN_RPS", 1),
			Timeout:           getEnvAsDuration("KRAKEN_TIMEOUT", 15*time.Second),
		},
		CoinGecko: CoinGeckoConfig{
			BaseURL:           getEnv("COINGECKO_BASE_URL", "https://api.coingecko.com"),
			APIKey:            getEnv("COINGECKO_API_KEY", ""),
			RequestsPerSecond: getEnvAsFloat("COINGECKO_RPS", 0.5),
			Timeout:           getEnvAsDuration("COINGECKO_TIMEOUT", 15*time.Second),
		},
		Webhook: WebhookConfig{
			URL:     getEnv("ALERT_WEBHOOK_URL", ""),
			Timeout: getEnvAsDuration("ALERT_WEBHOOK_TIMEOUT", 10*time.Second),
		},
		Pricing: PricingConfig{
			NativeTickerPair:      getEnv("PRICING_NATIVE_PAIR", "ADAUSD"),
			NativeAggregatorID:    getEnv("PRICING_NATIVE_AGGREGATOR_ID", "cardano"),
			ReferenceTickerPair:   getEnv("PRICING_REFERENCE_PAIR", "XBTUSD"),
			ReferenceAggregatorID: getEnv("PRICING_REFERENCE_AGGREGATOR_ID", "bitcoin"),
			CacheTTL:              getEnvAsDuration("PRICE_CACHE_TTL", 5*time.Minute),
			ManualPrices:          manual,
		},
		Snapshot: SnapshotConfig{
			PageSize:   getEnvAsInt("SNAPSHOT_PAGE_SIZE", 50),
			PageDelay:  getEnvAsDuration("SNAPSHOT_PAGE_DELAY", 2*time.Second),
			Interval:   getEnvAsDuration("SNAPSHOT_INTERVAL", time.Hour),
			MaxRetries: getEnvAsInt("SNAPSHOT_MAX_RETRIES", 3),
			RetryDelay: getEnvAsDuration("SNAPSHOT_RETRY_DELAY", 2*time.Second),
		},
		RateLimit: RateLimitConfig{
			RequestsPerMinute: getEnvAsInt("RATE_LIMIT_PER_MINUTE", 120),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}

	return config, nil
}

// parseManualPrices parses "unit=price,unit=price"
func parseManualPrices(raw string) ([]ManualPrice, error) {
	var out []ManualPrice
	for _, entry := range strings.Split(raw, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}

		unit, priceStr, ok := strings.Cut(entry, "=")
		unit = strings.TrimSpace(unit)
		if !ok || unit == "" {
			return nil, fmt.Errorf("invalid TOKEN_MANUAL_PRICES entry %q: expected unit=price", entry)
		}

		price, err := strconv.ParseFloat(strings.TrimSpace(priceStr), 64)
		if err != nil || price <= 0 || math.IsInf(price, 0) {
			return nil, fmt.Errorf("invalid TOKEN_MANUAL_PRICES price for %s: %q", unit, priceStr)
		}
		out = append(out, ManualPrice{Unit: unit, PriceUSD: price})
	}
	return out, nil
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt gets an environment variable as an integer with a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsFloat gets an environment variable as a float with a default value
func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsDuration gets an environment variable as a duration with a default value
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
