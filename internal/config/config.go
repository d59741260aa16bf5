package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"net/url"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// Config holds all configuration for our application
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Business  BusinessConfig  `mapstructure:"business"`
	Health    HealthConfig    `mapstructure:"health"`
}

type ServerConfig struct {
	Port            string        `mapstructure:"port"`
	Host            string        `mapstructure:"host"`
	Env             string        `mapstructure:"env"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	CORSOrigins     []string      `mapstructure:"cors_origins"`
}

type DatabaseConfig struct {
	URL             string        `mapstructure:"url"`
	Host            string        `mapstructure:"host"`
	Port            string        `mapstructure:"port"`
	Name            string        `mapstructure:"name"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     string `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type SchedulerConfig struct {
	ReminderSpec string        `mapstructure:"reminder_spec"`
	OverdueSpec  string        `mapstructure:"overdue_spec"`
	Timezone     string        `mapstructure:"timezone"`
	JobTimeout   time.Duration `mapstructure:"job_timeout"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type BusinessConfig struct {
	ScoreThreshold     string        `mapstructure:"score_threshold"`
	LockTimeout        time.Duration `mapstructure:"lock_timeout"`
	LedgerCacheTTL     time.Duration `mapstructure:"ledger_cache_ttl"`
	IdempotencyTTL     time.Duration `mapstructure:"idempotency_ttl"`
	ReminderWindowDays int           `mapstructure:"reminder_window_days"`
}

type HealthConfig struct {
	Timeout time.Duration `mapstructure:"timeout"`
}

// env maps each config key to its environment variable.
var env = map[string]string{
	"server.port":             "SERVER_PORT",
	"server.host":             "SERVER_HOST",
	"server.env":              "ENV",
	"server.read_timeout":     "SERVER_READ_TIMEOUT",
	"server.write_timeout":    "SERVER_WRITE_TIMEOUT",
	"server.shutdown_timeout": "SERVER_SHUTDOWN_TIMEOUT",
	"server.cors_origins":     "CORS_ALLOWED_ORIGINS",

	"database.url":               "DATABASE_URL",
	"database.host":              "DATABASE_HOST",
	"database.port":              "DATABASE_PORT",
	"database.name":              "DATABASE_NAME",
	"database.user":              "DATABASE_USER",
	"database.password":          "DATABASE_PASSWORD",
	"database.ssl_mode":          "DATABASE_SSL_MODE",
	"database.max_open_conns":    "DATABASE_MAX_OPEN_CONNS",
	"database.max_idle_conns":    "DATABASE_MAX_IDLE_CONNS",
	"database.conn_max_lifetime": "DATABASE_CONN_MAX_LIFETIME",

	"redis.host":     "REDIS_HOST",
	"redis.port":     "REDIS_PORT",
	"redis.password": "REDIS_PASSWORD",
	"redis.db":       "REDIS_DB",

	"scheduler.reminder_spec": "SCHEDULER_REMINDER_SPEC",
	"scheduler.overdue_spec":  "SCHEDULER_OVERDUE_SPEC",
	"scheduler.timezone":      "SCHEDULER_TIMEZONE",
	"scheduler.job_timeout":   "SCHEDULER_JOB_TIMEOUT",

	"logging.level":  "LOG_LEVEL",
	"logging.format": "LOG_FORMAT",

	"business.score_threshold":      "SCORE_THRESHOLD",
	"business.lock_timeout":         "LOCK_TIMEOUT",
	"business.ledger_cache_ttl":     "LEDGER_CACHE_TTL",
	"business.idempotency_ttl":      "IDEMPOTENCY_TTL",
	"business.reminder_window_days": "REMINDER_WINDOW_DAYS",

	"health.timeout": "HEALTH_CHECK_TIMEOUT",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.env", "development")
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "15s")
	v.SetDefault("server.shutdown_timeout", "30s")
	v.SetDefault("server.cors_origins", []string{"http://localhost:3000"})

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", "5432")
	v.SetDefault("database.name", "microbank")
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "5m")

	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", "6379")
	v.SetDefault("redis.db", 0)

	v.SetDefault("scheduler.reminder_spec", "0 8 * * *")
	v.SetDefault("scheduler.overdue_spec", "30 0 * * *")
	v.SetDefault("scheduler.timezone", "Asia/Manila")
	v.SetDefault("scheduler.job_timeout", "10m")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("business.score_threshold", "7")
	v.SetDefault("business.lock_timeout", "3s")
	v.SetDefault("business.ledger_cache_ttl", "10m")
	v.SetDefault("business.idempotency_ttl", "24h")
	v.SetDefault("business.reminder_window_days", 3)

	v.SetDefault("health.timeout", "5s")
}

// Load reads configuration from environment variables, after loading a .env
// file from the working directory when one exists.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("reading .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)
	for key, name := range env {
		if err := v.BindEnv(key, name); err != nil {
			return nil, fmt.Errorf("binding %s: %w", name, err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	// Validate configuration
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("SERVER_PORT is required")
	}

	if c.Database.URL == "" && c.Database.Host == "" {
		return fmt.Errorf("DATABASE_URL or DATABASE_HOST is required")
	}

	threshold, err := decimal.NewFromString(c.Business.ScoreThreshold)
	if err != nil {
		return fmt.Errorf("SCORE_THRESHOLD must be a valid decimal: %w", err)
	}
	if threshold.IsNegative() || threshold.GreaterThan(decimal.NewFromInt(10)) {
		return fmt.Errorf("SCORE_THRESHOLD must be between 0 and 10")
	}

	if c.Business.LockTimeout <= 0 {
		return fmt.Errorf("LOCK_TIMEOUT must be greater than 0")
	}

	if c.Business.ReminderWindowDays < 0 {
		return fmt.Errorf("REMINDER_WINDOW_DAYS must not be negative")
	}

	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	if _, err := parser.Parse(c.Scheduler.ReminderSpec); err != nil {
		return fmt.Errorf("SCHEDULER_REMINDER_SPEC must be a valid cron spec: %w", err)
	}
	if _, err := parser.Parse(c.Scheduler.OverdueSpec); err != nil {
		return fmt.Errorf("SCHEDULER_OVERDUE_SPEC must be a valid cron spec: %w", err)
	}

	if _, err := time.LoadLocation(c.Scheduler.Timezone); err != nil {
		return fmt.Errorf("SCHEDULER_TIMEZONE must be a valid IANA zone: %w", err)
	}

	if c.Health.Timeout <= 0 {
		return fmt.Errorf("HEALTH_CHECK_TIMEOUT must be greater than 0")
	}

	return nil
}

// DSN returns DATABASE_URL when set, otherwise a postgres URL built from the
// individual settings.
func (d DatabaseConfig) DSN() string {
	if d.URL != "" {
		return d.URL
	}

	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(d.User, d.Password),
		Host:   net.JoinHostPort(d.Host, d.Port),
		Path:   "/" + d.Name,
	}
	if d.SSLMode != "" {
		u.RawQuery = "sslmode=" + url.QueryEscape(d.SSLMode)
	}
	return u.String()
}

func (r RedisConfig) Addr() string {
	return net.JoinHostPort(r.Host, r.Port)
}

func (s ServerConfig) Addr() string {
	return net.JoinHostPort(s.Host, s.Port)
}

// IsDevelopment returns true if running in development environment
func (c *Config) IsDevelopment() bool {
	return c.Server.Env == "development" || c.Server.Env == "dev"
}

// IsProduction returns true if running in production environment
func (c *Config) IsProduction() bool {
	return c.Server.Env == "production" || c.Server.Env == "prod"
}

// GetScoreThreshold returns the approval threshold as decimal
func (c *Config) GetScoreThreshold() decimal.Decimal {
	threshold, _ := decimal.NewFromString(c.Business.ScoreThreshold)
	return threshold
}

// GetLocation returns the scheduler time zone.
func (c *Config) GetLocation() *time.Location {
	loc, err := time.LoadLocation(c.Scheduler.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
