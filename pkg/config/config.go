package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"gorm.io/gorm/logger"
)

// DBConfig holds database configuration
type DBConfig struct {
	Driver          string        `env:"DB_DRIVER" envDefault:"postgres"`
	Host            string        `env:"DB_HOST" envDefault:"localhost"`
	Port            string        `env:"DB_PORT" envDefault:"5432"`
	User            string        `env:"DB_USER" envDefault:"postgres"`
	Password        string        `env:"DB_PASSWORD" envDefault:"password"`
	DBName          string        `env:"DB_NAME" envDefault:"obligations"`
	SSLMode         string        `env:"DB_SSL_MODE" envDefault:"disable"`
	SQLitePath      string        `env:"DB_SQLITE_PATH" envDefault:"obligations.db"`
	MaxIdleConns    int           `env:"DB_MAX_IDLE_CONNS" envDefault:"10"`
	MaxOpenConns    int           `env:"DB_MAX_OPEN_CONNS" envDefault:"100"`
	ConnMaxLifetime time.Duration `env:"DB_CONN_MAX_LIFETIME" envDefault:"1h"`
	LogLevelName    string        `env:"DB_LOG_LEVEL" envDefault:"warn"`
}

// GetDSN returns the PostgreSQL connection string
func (c *DBConfig) GetDSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode)
}

// LogLevel returns the gorm log level named by DB_LOG_LEVEL
func (c *DBConfig) LogLevel() logger.LogLevel {
	switch c.LogLevelName {
	case "silent":
		return logger.Silent
	case "error":
		return logger.Error
	case "info":
		return logger.Info
	default:
		return logger.Warn
	}
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port               string   `env:"SERVER_PORT" envDefault:"8080"`
	Env                string   `env:"APP_ENV" envDefault:"development"`
	CORSOrigins        []string `env:"CORS_ORIGINS" envDefault:"*" envSeparator:","`
	RateLimitPerSecond float64  `env:"RATE_LIMIT_PER_SECOND" envDefault:"20"`
	RateLimitBurst     int      `env:"RATE_LIMIT_BURST" envDefault:"40"`
}

// JWTConfig holds JWT configuration
type JWTConfig struct {
	SigningKey      string `env:"JWT_SIGNING_KEY,required,notEmpty"`
	ExpirationHours int    `env:"JWT_EXPIRATION_HOURS" envDefault:"24"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level string `env:"LOG_LEVEL" envDefault:"info"`
}

// AnalysisConfig holds the analysis dispatcher configuration
type AnalysisConfig struct {
	Enabled   bool          `env:"ANALYSIS_ENABLED" envDefault:"false"`
	Workers   int           `env:"ANALYSIS_WORKERS" envDefault:"2"`
	QueueSize int           `env:"ANALYSIS_QUEUE_SIZE" envDefault:"64"`
	Timeout   time.Duration `env:"ANALYSIS_TIMEOUT" envDefault:"10s"`
}

// BlobConfig holds attachment storage configuration
type BlobConfig struct {
	Root     string `env:"BLOB_ROOT" envDefault:"./data/blobs"`
	MaxBytes int64  `env:"BLOB_MAX_BYTES" envDefault:"10485760"`
}

// Config holds all configuration
type Config struct {
	ServiceName       string `env:"SERVICE_NAME" envDefault:"obligation-service"`
	AdminBootstrapKey string `env:"ADMIN_BOOTSTRAP_KEY"`
	OTelEndpoint      string `env:"OTEL_ENDPOINT"`
	ActivityPageSize  int    `env:"ACTIVITY_PAGE_SIZE" envDefault:"50"`

	DB       DBConfig
	Server   ServerConfig
	JWT      JWTConfig
	Log      LogConfig
	Analysis AnalysisConfig
	Blob     BlobConfig
}

// Load reads an optional .env file, then parses the environment
func Load() (*Config, error) {
	// .env is optional
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values the tags cannot express
func (c *Config) Validate() error {
	switch c.DB.Driver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("DB_DRIVER must be postgres or sqlite, got %q", c.DB.Driver)
	}
	if c.Analysis.Workers < 1 {
		return errors.New("ANALYSIS_WORKERS must be at least 1")
	}
	if c.Analysis.QueueSize < 1 {
		return errors.New("ANALYSIS_QUEUE_SIZE must be at least 1")
	}
	if c.Blob.MaxBytes <= 0 {
		return errors.New("BLOB_MAX_BYTES must be positive")
	}
	if c.ActivityPageSize < 1 {
		return errors.New("ACTIVITY_PAGE_SIZE must be positive")
	}
	return nil
}

// LogConfig returns the configuration as a zap logger-friendly format
func (c *Config) LogConfig() []zap.Field {
	return []zap.Field{
		zap.String("service", c.ServiceName),
		zap.String("environment", c.Server.Env),
		zap.String("db_driver", c.DB.Driver),
		zap.String("db_host", c.DB.Host),
		zap.String("db_name", c.DB.DBName),
		zap.String("server_port", c.Server.Port),
		zap.Bool("analysis_enabled", c.Analysis.Enabled),
		zap.Bool("tracing_enabled", c.OTelEndpoint != ""),
	}
}
