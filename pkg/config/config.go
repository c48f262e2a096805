package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Membership backends
const (
	BackendParquet  = "parquet"
	BackendPostgres = "postgres"
)

// Config holds all configuration for the application
// ⭐ SSOT: 모든 환경변수는 여기서만 읽음
type Config struct {
	// Server
	Port string
	Env  string // development, staging, production

	// Membership store
	Membership MembershipConfig

	// Database (price store, optional postgres membership mirror)
	Database DatabaseConfig

	// Redis
	Redis RedisConfig

	// Constituents source (current snapshot scraper)
	Constituents ConstituentsConfig

	// Completeness batch checks
	Completeness CompletenessConfig

	// Research config (YAML)
	ResearchConfigPath string

	// Logging
	LogLevel  string
	LogFormat string

	// Monitoring
	MetricsEnabled bool
}

// MembershipConfig holds membership store configuration
type MembershipConfig struct {
	DataRoot           string
	Universe           string
	Backend            string // parquet | postgres
	HistoricalFallback bool   // opt-in: 저장소가 없을 때 현재 구성종목으로 대체
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
	Enabled  bool
}

// DatabaseConfig holds PostgreSQL configuration
type DatabaseConfig struct {
	URL string

	// Connection Pool
	MaxConns        int
	MinConns        int
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
	ConnectTimeout  time.Duration
}

// ConstituentsConfig holds the current-constituents page configuration
type ConstituentsConfig struct {
	URL          string
	TableID      string
	RequestsPerS int
}

// CompletenessConfig holds batch checker settings
type CompletenessConfig struct {
	Workers int
}

// Load reads configuration from environment variables
// ⭐ SSOT: 이 함수만 os.Getenv()를 호출함
func Load() (*Config, error) {
	// Try multiple paths for .env file
	loadEnvFile()

	cfg := &Config{
		// Server
		Port: getEnv("PORT", "8089"),
		Env:  getEnv("ENV", "development"),

		Membership: MembershipConfig{
			DataRoot:           getEnv("DATA_ROOT", "./data"),
			Universe:           getEnv("UNIVERSE", "sp500"),
			Backend:            getEnv("MEMBERSHIP_BACKEND", BackendParquet),
			HistoricalFallback: getEnvAsBool("HISTORICAL_FALLBACK", false),
		},

		// Database
		Database: DatabaseConfig{
			URL:             getEnv("DATABASE_URL", ""),
			MaxConns:        getEnvAsInt("DB_MAX_CONNS", 10),
			MinConns:        getEnvAsInt("DB_MIN_CONNS", 1),
			MaxConnLifetime: getEnvAsDuration("DB_MAX_CONN_LIFETIME", "1h"),
			MaxConnIdleTime: getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", "30m"),
			ConnectTimeout:  getEnvAsDuration("DB_CONNECT_TIMEOUT", "5s"),
		},

		// Redis
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
			Enabled:  getEnvAsBool("REDIS_ENABLED", false),
		},

		Constituents: ConstituentsConfig{
			URL:          getEnv("CONSTITUENTS_URL", "https://en.wikipedia.org/wiki/List_of_S%26P_500_companies"),
			TableID:      getEnv("CONSTITUENTS_TABLE_ID", "constituents"),
			RequestsPerS: getEnvAsInt("CONSTITUENTS_RPS", 1),
		},

		Completeness: CompletenessConfig{
			Workers: getEnvAsInt("COMPLETENESS_WORKERS", 8),
		},

		ResearchConfigPath: getEnv("RESEARCH_CONFIG", ""),

		// Logging
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "json"),

		// Monitoring
		MetricsEnabled: getEnvAsBool("METRICS_ENABLED", true),
	}

	// Validate configuration
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// validate checks if required configuration values are set
func (c *Config) validate() error {
	// Validate environment
	if c.Env != "development" && c.Env != "staging" && c.Env != "production" {
		return fmt.Errorf("ENV must be one of: development, staging, production")
	}

	switch c.Membership.Backend {
	case BackendParquet:
	case BackendPostgres:
		// postgres 백엔드는 DB 필수
		if c.Database.URL == "" {
			return fmt.Errorf("DATABASE_URL is required for MEMBERSHIP_BACKEND=postgres")
		}
	default:
		return fmt.Errorf("MEMBERSHIP_BACKEND must be one of: parquet, postgres")
	}

	if c.Membership.Universe == "" {
		return fmt.Errorf("UNIVERSE must not be empty")
	}

	if c.Completeness.Workers < 1 {
		return fmt.Errorf("COMPLETENESS_WORKERS must be >= 1")
	}

	return nil
}

// HasDatabase reports whether a price/membership database is configured
func (c *Config) HasDatabase() bool {
	return c.Database.URL != ""
}

// Helper functions (private, only used within this file)

// loadEnvFile tries to load .env from multiple locations
func loadEnvFile() {
	// Try paths in order of priority
	paths := []string{
		".env", // Current directory
	}

	// Also try relative to executable
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
		// Fallback to default
		duration, _ = time.ParseDuration(defaultValue)
	}

	return duration
}
