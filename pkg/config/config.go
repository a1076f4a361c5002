package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application.
// Every environment variable is read here and nowhere else.
type Config struct {
	// Server
	Port string
	Env  string // development, staging, production

	// Database
	Database DatabaseConfig

	// Redis
	Redis RedisConfig

	// External APIs
	Reddit    RedditConfig
	Anthropic AnthropicConfig
	Alpaca    AlpacaConfig

	// Trading policy
	Trading TradingConfig

	// Logging
	LogLevel  string
	LogFormat string
}

// DatabaseConfig holds PostgreSQL configuration
type DatabaseConfig struct {
	URL string

	// Connection Pool
	MaxConns        int
	MinConns        int
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
	Enabled  bool
}

// RedditConfig holds Reddit polling configuration
type RedditConfig struct {
	BaseURL    string
	OldBaseURL string // old.reddit.com, used for the HTML fallback
	UserAgent  string
}

// AnthropicConfig holds the signal interpreter API configuration
type AnthropicConfig struct {
	APIKey    string
	BaseURL   string
	Model     string
	MaxTokens int
	Timeout   time.Duration
}

// AlpacaConfig holds the paper-trading venue configuration
type AlpacaConfig struct {
	APIKey    string
	SecretKey string
	BaseURL   string
	DataURL   string
	StreamURL string
	Timeout   time.Duration
}

// TradingConfig holds the signal-to-position policy knobs
type TradingConfig struct {
	Mode               string // "with" or "against"
	Subreddits         []string
	MarketsEnabled     []string // subset of stock, crypto, option
	MinConfidence      float64
	MaxPositionSizeUSD float64
	MaxOpenPositions   int
	PollInterval       time.Duration
	HoldingPeriodDays  int
	MinAuthorKarma     int
	PostsPerPoll       int
}

// Load reads configuration from environment variables.
// This is the only function that calls os.Getenv().
func Load() (*Config, error) {
	loadEnvFile()

	cfg := &Config{
		Port: getEnv("PORT", "8099"),
		Env:  getEnv("ENV", "development"),

		Database: DatabaseConfig{
			URL:             getEnv("DATABASE_URL", ""),
			MaxConns:        getEnvAsInt("DB_MAX_CONNS", 10),
			MinConns:        getEnvAsInt("DB_MIN_CONNS", 2),
			MaxConnLifetime: getEnvAsDuration("DB_MAX_CONN_LIFETIME", "1h"),
			MaxConnIdleTime: getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", "30m"),
		},

		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
			Enabled:  getEnvAsBool("REDIS_ENABLED", false),
		},

		Reddit: RedditConfig{
			BaseURL:    getEnv("REDDIT_BASE_URL", "https://www.reddit.com"),
			OldBaseURL: getEnv("REDDIT_OLD_BASE_URL", "https://old.reddit.com"),
			UserAgent:  getEnv("REDDIT_USER_AGENT", "ContraBot/1.0"),
		},

		Anthropic: AnthropicConfig{
			APIKey:    getEnv("ANTHROPIC_API_KEY", ""),
			BaseURL:   getEnv("ANTHROPIC_BASE_URL", "https://api.anthropic.com"),
			Model:     getEnv("ANTHROPIC_MODEL", "claude-sonnet-4-5"),
			MaxTokens: getEnvAsInt("ANTHROPIC_MAX_TOKENS", 512),
			Timeout:   getEnvAsDuration("ANTHROPIC_TIMEOUT", "30s"),
		},

		Alpaca: AlpacaConfig{
			APIKey:    getEnv("ALPACA_API_KEY", ""),
			SecretKey: getEnv("ALPACA_SECRET_KEY", ""),
			BaseURL:   getEnv("ALPACA_BASE_URL", "https://paper-api.alpaca.markets"),
			DataURL:   getEnv("ALPACA_DATA_URL", "https://data.alpaca.markets"),
			StreamURL: getEnv("ALPACA_STREAM_URL", "wss://stream.data.alpaca.markets/v2/iex"),
			Timeout:   getEnvAsDuration("ALPACA_TIMEOUT", "15s"),
		},

		Trading: TradingConfig{
			Mode:               getEnv("TRADING_MODE", "against"),
			Subreddits:         getEnvAsSlice("SUBREDDITS", "wallstreetbets"),
			MarketsEnabled:     getEnvAsSlice("MARKETS_ENABLED", "stock,crypto"),
			MinConfidence:      getEnvAsFloat("MIN_CONFIDENCE", 0.7),
			MaxPositionSizeUSD: getEnvAsFloat("MAX_POSITION_SIZE_USD", 500),
			MaxOpenPositions:   getEnvAsInt("MAX_OPEN_POSITIONS", 10),
			PollInterval:       getEnvAsDuration("POLL_INTERVAL", "60s"),
			HoldingPeriodDays:  getEnvAsInt("HOLDING_PERIOD_DAYS", 7),
			MinAuthorKarma:     getEnvAsInt("MIN_AUTHOR_KARMA", 100),
			PostsPerPoll:       getEnvAsInt("POSTS_PER_POLL", 25),
		},

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "console"),
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// validate checks required values and enum fields. A failure here is fatal:
// the process must not start with an unusable configuration.
func (c *Config) validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.Env != "development" && c.Env != "staging" && c.Env != "production" {
		return fmt.Errorf("ENV must be one of: development, staging, production")
	}

	if c.Trading.Mode != "with" && c.Trading.Mode != "against" {
		return fmt.Errorf("TRADING_MODE must be 'with' or 'against', got %q", c.Trading.Mode)
	}

	if len(c.Trading.Subreddits) == 0 {
		return fmt.Errorf("SUBREDDITS must list at least one subreddit")
	}

	validMarkets := map[string]bool{"stock": true, "crypto": true, "option": true}
	if len(c.Trading.MarketsEnabled) == 0 {
		return fmt.Errorf("MARKETS_ENABLED must list at least one market")
	}
	for _, m := range c.Trading.MarketsEnabled {
		if !validMarkets[m] {
			return fmt.Errorf("MARKETS_ENABLED contains unknown market %q", m)
		}
	}

	if c.Trading.MinConfidence < 0 || c.Trading.MinConfidence > 1 {
		return fmt.Errorf("MIN_CONFIDENCE must be in [0,1], got %v", c.Trading.MinConfidence)
	}
	if c.Trading.MaxPositionSizeUSD <= 0 {
		return fmt.Errorf("MAX_POSITION_SIZE_USD must be positive")
	}
	if c.Trading.MaxOpenPositions <= 0 {
		return fmt.Errorf("MAX_OPEN_POSITIONS must be positive")
	}
	if c.Trading.HoldingPeriodDays <= 0 {
		return fmt.Errorf("HOLDING_PERIOD_DAYS must be positive")
	}
	if c.Trading.PostsPerPoll <= 0 {
		return fmt.Errorf("POSTS_PER_POLL must be positive")
	}

	return nil
}

// Helper functions (private, only used within this file)

// loadEnvFile tries to load .env from multiple locations
func loadEnvFile() {
	paths := []string{
		".env",
	}

	if exe, err := os.Executable(); err == nil {
		exeDir := filepath.Dir(exe)
		paths = append(paths,
			filepath.Join(exeDir, ".env"),
			filepath.Join(exeDir, "..", ".env"),
		)
	}

	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			_ = godotenv.Load(path)
			return
		}
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsDuration(key string, defaultValue string) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		valueStr = defaultValue
	}

	duration, err := time.ParseDuration(valueStr)
	if err != nil {
		duration, _ = time.ParseDuration(defaultValue)
	}

	return duration
}

func getEnvAsSlice(key string, defaultValue string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		valueStr = defaultValue
	}

	parts := strings.Split(valueStr, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}
