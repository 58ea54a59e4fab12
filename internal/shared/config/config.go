package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	KurrentDB KurrentDBConfig
	Auth      AuthConfig
	ML        MLConfig
	Scoring   ScoringConfig
	Insights  InsightsConfig
	RateLimit RateLimitConfig
	Log       LogConfig
}

type ServerConfig struct {
	Port           int
	Env            string
	RequestTimeout time.Duration
	AllowedOrigins []string
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
	MaxConns int
	MinConns int
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Database, d.SSLMode,
	)
}

// RedisConfig configures the insight report cache.
type RedisConfig struct {
	Enabled  bool
	Addr     string
	Password string
	DB       int
}

// KurrentDBConfig holds configuration for KurrentDB (EventStoreDB).
type KurrentDBConfig struct {
	Enabled bool
	// Host is the KurrentDB server hostname
	Host string
	// Port is the gRPC/HTTP port (default 2113)
	Port int
	// Insecure disables TLS (for development)
	Insecure bool
	Username string
	Password string
}

type AuthConfig struct {
	JWTSecret string
}

// MLConfig points at the external vulnerability scoring service.
type MLConfig struct {
	URL     string
	Enabled bool
	Timeout time.Duration
}

// ScoringConfig tunes the local scoring pipeline.
type ScoringConfig struct {
	// BatchConcurrency bounds the per-record fan-out used when a batch
	// call to the ML service fails.
	BatchConcurrency int
	// FallbackConfidence is reported on locally computed scores.
	FallbackConfidence float64
}

type InsightsConfig struct {
	CacheTTL    time.Duration
	Concurrency int
}

type RateLimitConfig struct {
	RPS   int
	Burst int
}

type LogConfig struct {
	// Mode is "development" (console) or "production" (JSON).
	Mode  string
	Level string
}

// Load reads configuration from the environment. A .env file in the working
// directory is applied first when present; real environment variables win.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Server: ServerConfig{
			Port:           getEnvInt("SERVER_PORT", 8080),
			Env:            getEnv("ENV", "development"),
			RequestTimeout: getEnvDuration("REQUEST_TIMEOUT", 60*time.Second),
			AllowedOrigins: getEnvSlice("CORS_ALLOWED_ORIGINS", []string{"*"}),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvInt("DB_PORT", 5432),
			User:     getEnv("DB_USER", "omnia"),
			Password: getEnv("DB_PASSWORD", "omnia"),
			Database: getEnv("DB_NAME", "omnia"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
			MaxConns: getEnvInt("DB_MAX_CONNS", 20),
			MinConns: getEnvInt("DB_MIN_CONNS", 2),
		},
		Redis: RedisConfig{
			Enabled:  getEnvBool("REDIS_ENABLED", false),
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		KurrentDB: KurrentDBConfig{
			Enabled:  getEnvBool("KURRENTDB_ENABLED", true),
			Host:     getEnv("KURRENTDB_HOST", "localhost"),
			Port:     getEnvInt("KURRENTDB_PORT", 2113),
			Insecure: getEnvBool("KURRENTDB_INSECURE", true),
			Username: getEnv("KURRENTDB_USERNAME", ""),
			Password: getEnv("KURRENTDB_PASSWORD", ""),
		},
		Auth: AuthConfig{
			JWTSecret: getEnv("JWT_SECRET", "dev-secret-change-in-prod"),
		},
		ML: MLConfig{
			URL:     getEnv("ML_SERVICE_URL", "http://localhost:8001"),
			Enabled: getEnvBool("ML_ENABLED", true),
			Timeout: getEnvDuration("ML_TIMEOUT", 30*time.Second),
		},
		Scoring: ScoringConfig{
			BatchConcurrency:   getEnvInt("SCORING_BATCH_CONCURRENCY", 8),
			FallbackConfidence: getEnvFloat("SCORING_FALLBACK_CONFIDENCE", 0.85),
		},
		Insights: InsightsConfig{
			CacheTTL:    getEnvDuration("INSIGHTS_CACHE_TTL", 5*time.Minute),
			Concurrency: getEnvInt("INSIGHTS_CONCURRENCY", 16),
		},
		RateLimit: RateLimitConfig{
			RPS:   getEnvInt("RATE_LIMIT_RPS", 20),
			Burst: getEnvInt("RATE_LIMIT_BURST", 40),
		},
		Log: LogConfig{
			Mode:  getEnv("LOG_MODE", "development"),
			Level: getEnv("LOG_LEVEL", "info"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the services cannot run with.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid SERVER_PORT %d", c.Server.Port)
	}
	if c.ML.Timeout <= 0 {
		return fmt.Errorf("ML_TIMEOUT must be positive")
	}
	if c.Scoring.BatchConcurrency < 1 {
		return fmt.Errorf("SCORING_BATCH_CONCURRENCY must be at least 1")
	}
	if c.Scoring.FallbackConfidence < 0 || c.Scoring.FallbackConfidence > 1 {
		return fmt.Errorf("SCORING_FALLBACK_CONFIDENCE must be within [0,1]")
	}
	if c.Insights.Concurrency < 1 {
		return fmt.Errorf("INSIGHTS_CONCURRENCY must be at least 1")
	}
	if c.Server.Env == "production" && c.Auth.JWTSecret == "dev-secret-change-in-prod" {
		return fmt.Errorf("JWT_SECRET must be set in production")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvSlice(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var result []string
	for _, v := range strings.Split(value, ",") {
		if v = strings.TrimSpace(v); v != "" {
			result = append(result, v)
		}
	}
	if len(result) == 0 {
		return defaultValue
	}
	return result
}
