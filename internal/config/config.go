// Package config provides configuration management for the street atlas
// application. It loads configuration from environment variables and .env files.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Lookup   LookupConfig
	Budget   BudgetConfig
	Ingest   IngestConfig
	Worker   WorkerConfig
	Output   OutputConfig
	Logging  LoggingConfig
}

// ServerConfig holds status server configuration
type ServerConfig struct {
	Port string
	Host string
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Postgres PostgresConfig
	Redis    RedisConfig
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

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host           string
	Port           string
	Password       string
	DB             int
	MaxConnections int
}

// LookupConfig holds getaddress.io API configuration. APIKey authenticates
// autocomplete calls; AdminKey, when set, authenticates the usage endpoint.
type LookupConfig struct {
	BaseURL  string
	APIKey   string
	AdminKey string
	Timeout  time.Duration
	CacheTTL time.Duration
}

// BudgetConfig holds request budgeting configuration. MaxRequestsPer5Min is
// the rolling-window ceiling shared by all workers through the usage log.
type BudgetConfig struct {
	MaxRequestsPer5Min int
	Headroom           int
	WaitInterval       time.Duration
	MaxWaits           int
	LockTimeout        time.Duration
}

// IngestConfig holds reference CSV locations
type IngestConfig struct {
	ConstituenciesCSV   string
	PostcodesCSV        string
	LocalAuthoritiesCSV string
	MSOACSV             string
	CensusAgeCSV        string
	OpenNamesDir        string
	BatchSize           int
}

// WorkerConfig holds batch orchestration configuration. Parallelism of zero
// means one worker per available CPU.
type WorkerConfig struct {
	Parallelism int
}

// OutputConfig holds export configuration
type OutputConfig struct {
	Dir string
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
		// .env file is optional - environment variables can be set directly
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("error loading .env file: %w", err)
		}
	}

	config := &Config{
		Server: ServerConfig{
			Port: getEnv("SERVER_PORT", "8080"),
			Host: getEnv("SERVER_HOST", "0.0.0.0"),
		},
		Database: DatabaseConfig{
			Postgres: PostgresConfig{
				Host:           getEnv("POSTGRES_HOST", "localhost"),
				Port:           getEnv("POSTGRES_PORT", "5432"),
				Database:       getEnv("POSTGRES_DB", "street_atlas"),
				User:           getEnv("POSTGRES_USER", "atlas"),
				Password:       getEnv("POSTGRES_PASSWORD", ""),
				MaxConnections: getEnvAsInt("POSTGRES_MAX_CONNECTIONS", 50),
			},
			Redis: RedisConfig{
				Host:           getEnv("REDIS_HOST", "localhost"),
				Port:           getEnv("REDIS_PORT", "6379"),
				Password:       getEnv("REDIS_PASSWORD", ""),
				DB:             getEnvAsInt("REDIS_DB", 0),
				MaxConnections: getEnvAsInt("REDIS_MAX_CONNECTIONS", 20),
			},
		},
		Lookup: LookupConfig{
			BaseURL:  getEnv("GETADDRESS_BASE_URL", "https://api.getAddress.io"),
			APIKey:   getEnv("GETADDRESS_API_KEY", ""),
			AdminKey: getEnv("GETADDRESS_ADMIN_KEY", ""),
			Timeout:  getEnvAsDuration("GETADDRESS_TIMEOUT", 30*time.Second),
			CacheTTL: getEnvAsDuration("GETADDRESS_CACHE_TTL", 24*time.Hour),
		},
		Budget: BudgetConfig{
			MaxRequestsPer5Min: getEnvAsInt("MAX_REQUESTS_PER_5_MINS", 2000),
			Headroom:           getEnvAsInt("BUDGET_HEADROOM", 50),
			WaitInterval:       getEnvAsDuration("BUDGET_WAIT_INTERVAL", 60*time.Second),
			MaxWaits:           getEnvAsInt("BUDGET_MAX_WAITS", 5),
			LockTimeout:        getEnvAsDuration("BUDGET_LOCK_TIMEOUT", 5*time.Second),
		},
		Ingest: IngestConfig{
			ConstituenciesCSV:   getEnv("ONS_CONSTITUENCIES_CSV", "data/constituencies.csv"),
			PostcodesCSV:        getEnv("ONS_POSTCODES_CSV", "data/postcodes.csv"),
			LocalAuthoritiesCSV: getEnv("ONS_LOCAL_AUTHORITIES_CSV", "data/local_authorities.csv"),
			MSOACSV:             getEnv("ONS_MSOA_CSV", "data/msoa.csv"),
			CensusAgeCSV:        getEnv("CENSUS_AGE_CSV", "data/census_age.csv"),
			OpenNamesDir:        getEnv("OS_OPENNAMES_DIR", "data/opennames"),
			BatchSize:           getEnvAsInt("INGEST_BATCH_SIZE", 5000),
		},
		Worker: WorkerConfig{
			Parallelism: getEnvAsInt("WORKER_PARALLELISM", 0),
		},
		Output: OutputConfig{
			Dir: getEnv("OUTPUT_DIR", "output"),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate checks configuration invariants that would otherwise surface as
// confusing runtime failures much later.
func (c *Config) Validate() error {
	if c.Budget.MaxRequestsPer5Min <= c.Budget.Headroom {
		return errors.New("MAX_REQUESTS_PER_5_MINS must exceed BUDGET_HEADROOM")
	}
	if c.Budget.MaxWaits < 1 {
		return errors.New("BUDGET_MAX_WAITS must be at least 1")
	}
	if c.Ingest.BatchSize < 1 {
		return errors.New("INGEST_BATCH_SIZE must be at least 1")
	}
	return nil
}

// URL builds a connection URL for pool construction and migrations
func (c *PostgresConfig) URL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable",
		c.User, c.Password, c.Host, c.Port, c.Database)
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
