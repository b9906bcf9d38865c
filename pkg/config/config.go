package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"gorm.io/gorm/logger"
)

// DBConfig holds database configuration
type DBConfig struct {
	Host            string
	Port            string
	User            string
	Password        string
	DBName          string
	SSLMode         string
	MaxIdleConns    int
	MaxOpenConns    int
	ConnMaxLifetime time.Duration
	LogLevel        logger.LogLevel
}

// GetDSN returns the PostgreSQL connection string
func (c *DBConfig) GetDSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode)
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port string
	Env  string
}

// SessionConfig holds session store configuration
type SessionConfig struct {
	TTL time.Duration
}

// TenancyConfig holds tenant resolution configuration
type TenancyConfig struct {
	// DefaultTenantSlug identifies the fallback tenant used when no other
	// resolution signal applies. Resolution hard-fails if this tenant does
	// not exist.
	DefaultTenantSlug string
}

// SchedulerConfig holds the per-tenant job scheduler configuration
type SchedulerConfig struct {
	Enabled bool
	// SyncSchedule is the cron expression for the system-wide planner sync sweep.
	SyncSchedule string
	SyncTimezone string
}

// IdPConfig holds settings for validating external identity-provider assertions
type IdPConfig struct {
	SigningKey string
}

// GraphConfig holds the outbound Microsoft Graph endpoint configuration
type GraphConfig struct {
	BaseURL    string
	Token      string
	MailSender string
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level string
}

// MetricsConfig holds metrics configuration
type MetricsConfig struct {
	Prefix string
}

// Config holds all configuration
type Config struct {
	DB        DBConfig
	Server    ServerConfig
	Session   SessionConfig
	Tenancy   TenancyConfig
	Scheduler SchedulerConfig
	IdP       IdPConfig
	Graph     GraphConfig
	Log       LogConfig
	Metrics   MetricsConfig
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		// Not returning error as .env file is optional
		fmt.Printf("Warning: .env file not found, using environment variables\n")
	}

	// Initialize config struct with values from environment
	config := &Config{
		DB: DBConfig{
			Host:            getEnv("DB_HOST", "localhost"),
			Port:            getEnv("DB_PORT", "5432"),
			User:            getEnv("DB_USER", "postgres"),
			Password:        getEnv("DB_PASSWORD", "password"),
			DBName:          getEnv("DB_NAME", "tenancy_service"),
			SSLMode:         getEnv("DB_SSL_MODE", "disable"),
			MaxIdleConns:    getEnvAsInt("DB_MAX_IDLE_CONNS", 10),
			MaxOpenConns:    getEnvAsInt("DB_MAX_OPEN_CONNS", 100),
			ConnMaxLifetime: getEnvAsDuration("DB_CONN_MAX_LIFETIME", 1*time.Hour),
			LogLevel:        getEnvAsLogLevel("DB_LOG_LEVEL", logger.Warn),
		},
		Server: ServerConfig{
			Port: getEnv("SERVER_PORT", "8082"),
			Env:  getEnv("APP_ENV", "development"),
		},
		Session: SessionConfig{
			TTL: getEnvAsDuration("SESSION_TTL", 24*time.Hour),
		},
		Tenancy: TenancyConfig{
			DefaultTenantSlug: getEnv("DEFAULT_TENANT_SLUG", "default"),
		},
		Scheduler: SchedulerConfig{
			Enabled:      getEnvAsBool("SCHEDULER_ENABLED", true),
			SyncSchedule: getEnv("SYNC_SCHEDULE", "0 2 * * *"),
			SyncTimezone: getEnv("SYNC_TIMEZONE", "UTC"),
		},
		IdP: IdPConfig{
			SigningKey: getEnv("IDP_SIGNING_KEY", "idpsharedsecret"),
		},
		Graph: GraphConfig{
			BaseURL:    getEnv("GRAPH_BASE_URL", "https://graph.microsoft.com/v1.0"),
			Token:      getEnv("GRAPH_TOKEN", ""),
			MailSender: getEnv("GRAPH_MAIL_SENDER", "no-reply@example.com"),
		},
		Log: LogConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Metrics: MetricsConfig{
			Prefix: getEnv("METRICS_PREFIX", "tenancy"),
		},
	}

	return config, nil
}

// LogConfig returns the configuration as a zap logger-friendly format
func (c *Config) LogConfig() []zap.Field {
	return []zap.Field{
		zap.String("environment", c.Server.Env),
		zap.String("db_host", c.DB.Host),
		zap.String("db_port", c.DB.Port),
		zap.String("db_name", c.DB.DBName),
		zap.String("server_port", c.Server.Port),
		zap.String("default_tenant_slug", c.Tenancy.DefaultTenantSlug),
		zap.Bool("scheduler_enabled", c.Scheduler.Enabled),
	}
}

// Helper function to get environment variables with defaults
func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

// Helper function to get environment variables as integers
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// Helper function to get environment variables as booleans
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// Helper function to get environment variables as durations
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// Helper function to get environment variables as log levels
func getEnvAsLogLevel(key string, defaultValue logger.LogLevel) logger.LogLevel {
	valueStr := getEnv(key, "")
	switch valueStr {
	case "silent":
		return logger.Silent
	case "error":
		return logger.Error
	case "warn":
		return logger.Warn
	case "info":
		return logger.Info
	default:
		return defaultValue
	}
}
