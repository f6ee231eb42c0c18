// Package config provides configuration management and environment variable handling for the application
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ProductionConfig holds all configuration for the counter service
type ProductionConfig struct {
	Database  DatabaseConfig  `json:"database" yaml:"database"`
	Server    ServerConfig    `json:"server" yaml:"server"`
	Security  SecurityConfig  `json:"security" yaml:"security"`
	Logging   LoggingConfig   `json:"logging" yaml:"logging"`
	Metrics   MetricsConfig   `json:"metrics" yaml:"metrics"`
	Cache     CacheConfig     `json:"cache" yaml:"cache"`
	Issuance  IssuanceConfig  `json:"issuance" yaml:"issuance"`
	Assets    AssetsConfig    `json:"assets" yaml:"assets"`
	Scheduler SchedulerConfig `json:"scheduler" yaml:"scheduler"`
	Tracing   TracingConfig   `json:"tracing" yaml:"tracing"`
}

type DatabaseConfig struct {
	Driver          string        `json:"driver" yaml:"driver"` // postgres, sqlite
	Host            string        `json:"host" yaml:"host"`
	Port            int           `json:"port" yaml:"port"`
	Name            string        `json:"name" yaml:"name"`
	User            string        `json:"user" yaml:"user"`
	Password        string        `json:"password" yaml:"password"`
	SSLMode         string        `json:"ssl_mode" yaml:"ssl_mode"`
	SQLitePath      string        `json:"sqlite_path" yaml:"sqlite_path"`
	BusyTimeout     time.Duration `json:"busy_timeout" yaml:"busy_timeout"`
	MaxOpenConns    int           `json:"max_open_conns" yaml:"max_open_conns"`
	MaxIdleConns    int           `json:"max_idle_conns" yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `json:"conn_max_lifetime" yaml:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `json:"conn_max_idle_time" yaml:"conn_max_idle_time"`
	SlowQueryLog    bool          `json:"slow_query_log" yaml:"slow_query_log"`
	SlowQueryTime   time.Duration `json:"slow_query_time" yaml:"slow_query_time"`
}

type ServerConfig struct {
	Host            string        `json:"host" yaml:"host"`
	Port            int           `json:"port" yaml:"port"`
	ReadTimeout     time.Duration `json:"read_timeout" yaml:"read_timeout"`
	WriteTimeout    time.Duration `json:"write_timeout" yaml:"write_timeout"`
	IdleTimeout     time.Duration `json:"idle_timeout" yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `json:"shutdown_timeout" yaml:"shutdown_timeout"`
	BodyLimit       int           `json:"body_limit" yaml:"body_limit"`
	EnableMetrics   bool          `json:"enable_metrics" yaml:"enable_metrics"`
	ProxyHeader     string        `json:"proxy_header" yaml:"proxy_header"`
}

type SecurityConfig struct {
	// CORS
	AllowedOrigins []string `json:"allowed_origins" yaml:"allowed_origins"`
	AllowedMethods []string `json:"allowed_methods" yaml:"allowed_methods"`
	AllowedHeaders []string `json:"allowed_headers" yaml:"allowed_headers"`
	CORSMaxAge     int      `json:"cors_max_age" yaml:"cors_max_age"`

	// Rate Limiting
	GlobalRateLimit int           `json:"global_rate_limit" yaml:"global_rate_limit"` // requests per window
	RateLimitWindow time.Duration `json:"rate_limit_window" yaml:"rate_limit_window"`
}

type LoggingConfig struct {
	Level      string `json:"level" yaml:"level"`   // debug, info, warn, error
	Output     string `json:"output" yaml:"output"` // stdout, file, both
	FilePath   string `json:"file_path" yaml:"file_path"`
	MaxSize    int    `json:"max_size" yaml:"max_size"` // MB
	MaxBackups int    `json:"max_backups" yaml:"max_backups"`
	MaxAge     int    `json:"max_age" yaml:"max_age"` // days
	Compress   bool   `json:"compress" yaml:"compress"`
}

type MetricsConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Path    string `json:"path" yaml:"path"`
}

type CacheConfig struct {
	Enabled     bool          `json:"enabled" yaml:"enabled"`
	Provider    string        `json:"provider" yaml:"provider"` // redis, none
	RedisURL    string        `json:"redis_url" yaml:"redis_url"`
	RedisDB     int           `json:"redis_db" yaml:"redis_db"`
	RedisPrefix string        `json:"redis_prefix" yaml:"redis_prefix"`
	DefaultTTL  time.Duration `json:"default_ttl" yaml:"default_ttl"`
	// GuardBackend selects where issuance guards live: database or redis
	GuardBackend string `json:"guard_backend" yaml:"guard_backend"`
}

type IssuanceConfig struct {
	Provider     string        `json:"provider" yaml:"provider"` // mock, http
	BaseURL      string        `json:"base_url" yaml:"base_url"`
	APIKey       string        `json:"api_key" yaml:"api_key"`
	TokenIDPath  string        `json:"token_id_path" yaml:"token_id_path"`
	Timeout      time.Duration `json:"timeout" yaml:"timeout"`
	RateLimit    float64       `json:"rate_limit" yaml:"rate_limit"` // calls per second
	RateBurst    int           `json:"rate_burst" yaml:"rate_burst"`
	MockFailRate float64       `json:"mock_fail_rate" yaml:"mock_fail_rate"`
}

type AssetsConfig struct {
	PublicBaseURL string `json:"public_base_url" yaml:"public_base_url"`
}

type SchedulerConfig struct {
	ReconcilerEnabled  bool          `json:"reconciler_enabled" yaml:"reconciler_enabled"`
	ReconcilerSchedule string        `json:"reconciler_schedule" yaml:"reconciler_schedule"`
	OrphanAfter        time.Duration `json:"orphan_after" yaml:"orphan_after"`
}

type TracingConfig struct {
	Enabled     bool   `json:"enabled" yaml:"enabled"`
	Stdout      bool   `json:"stdout" yaml:"stdout"`
	ServiceName string `json:"service_name" yaml:"service_name"`
}

// DefaultConfig returns the configuration used when neither a file nor the
// environment overrides a value
func DefaultConfig() *ProductionConfig {
	return &ProductionConfig{
		Database: DatabaseConfig{
			Driver:          "postgres",
			Host:            "localhost",
			Port:            5432,
			Name:            "kiriban",
			User:            "postgres",
			SSLMode:         "require",
			SQLitePath:      "kiriban.db",
			BusyTimeout:     5 * time.Second,
			MaxOpenConns:    50,
			MaxIdleConns:    10,
			ConnMaxLifetime: 30 * time.Minute,
			ConnMaxIdleTime: 15 * time.Minute,
			SlowQueryLog:    true,
			SlowQueryTime:   time.Second,
		},
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			IdleTimeout:     120 * time.Second,
			ShutdownTimeout: 30 * time.Second,
			BodyLimit:       1024 * 1024,
			EnableMetrics:   true,
			ProxyHeader:     "X-Real-IP",
		},
		Security: SecurityConfig{
			AllowedOrigins:  []string{"*"},
			AllowedMethods:  []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders:  []string{"Origin", "Content-Type", "Accept"},
			CORSMaxAge:      86400,
			GlobalRateLimit: 2000,
			RateLimitWindow: time.Minute,
		},
		Logging: LoggingConfig{
			Level:      "info",
			Output:     "stdout",
			FilePath:   "/var/log/kiriban/app.log",
			MaxSize:    100,
			MaxBackups: 10,
			MaxAge:     30,
			Compress:   true,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
		Cache: CacheConfig{
			Enabled:      false,
			Provider:     "redis",
			RedisURL:     "redis://localhost:6379",
			RedisPrefix:  "kiriban:",
			DefaultTTL:   time.Hour,
			GuardBackend: "database",
		},
		Issuance: IssuanceConfig{
			Provider:    "mock",
			TokenIDPath: "token_id",
			Timeout:     2 * time.Minute,
			RateLimit:   5,
			RateBurst:   5,
		},
		Assets: AssetsConfig{
			PublicBaseURL: "http://localhost:8080",
		},
		Scheduler: SchedulerConfig{
			ReconcilerEnabled:  true,
			ReconcilerSchedule: "@every 5m",
			OrphanAfter:        30 * time.Minute,
		},
		Tracing: TracingConfig{
			Enabled:     false,
			Stdout:      false,
			ServiceName: "kiriban",
		},
	}
}

// LoadProductionConfig builds the configuration from defaults, an optional YAML
// file, the .env file and the process environment, in increasing precedence
func LoadProductionConfig(path string) (*ProductionConfig, error) {
	if err := loadEnvFile(".env"); err != nil {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	cfg := DefaultConfig()
	if path != "" {
		if err := loadYAMLFile(path, cfg); err != nil {
			return nil, err
		}
	}
	applyEnv(cfg)

	if err := ValidateProductionConfig(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *ProductionConfig) {
	db := &cfg.Database
	db.Driver = getEnvString("DB_DRIVER", db.Driver)
	db.Host = getEnvString("DB_HOST", db.Host)
	db.Port = getEnvInt("DB_PORT", db.Port)
	db.Name = getEnvString("DB_NAME", db.Name)
	db.User = getEnvString("DB_USER", db.User)
	db.Password = getEnvString("DB_PASSWORD", db.Password)
	db.SSLMode = getEnvString("DB_SSL_MODE", db.SSLMode)
	db.SQLitePath = getEnvString("DB_SQLITE_PATH", db.SQLitePath)
	db.BusyTimeout = getEnvDuration("DB_BUSY_TIMEOUT", db.BusyTimeout)
	db.MaxOpenConns = getEnvInt("DB_MAX_OPEN_CONNS", db.MaxOpenConns)
	db.MaxIdleConns = getEnvInt("DB_MAX_IDLE_CONNS", db.MaxIdleConns)
	db.ConnMaxLifetime = getEnvDuration("DB_CONN_MAX_LIFETIME", db.ConnMaxLifetime)
	db.ConnMaxIdleTime = getEnvDuration("DB_CONN_MAX_IDLE_TIME", db.ConnMaxIdleTime)
	db.SlowQueryLog = getEnvBool("DB_SLOW_QUERY_LOG", db.SlowQueryLog)
	db.SlowQueryTime = getEnvDuration("DB_SLOW_QUERY_TIME", db.SlowQueryTime)

	srv := &cfg.Server
	srv.Host = getEnvString("SERVER_HOST", srv.Host)
	srv.Port = getEnvInt("SERVER_PORT", srv.Port)
	srv.ReadTimeout = getEnvDuration("SERVER_READ_TIMEOUT", srv.ReadTimeout)
	srv.WriteTimeout = getEnvDuration("SERVER_WRITE_TIMEOUT", srv.WriteTimeout)
	srv.IdleTimeout = getEnvDuration("SERVER_IDLE_TIMEOUT", srv.IdleTimeout)
	srv.ShutdownTimeout = getEnvDuration("SERVER_SHUTDOWN_TIMEOUT", srv.ShutdownTimeout)
	srv.BodyLimit = getEnvInt("SERVER_BODY_LIMIT", srv.BodyLimit)
	srv.EnableMetrics = getEnvBool("SERVER_ENABLE_METRICS", srv.EnableMetrics)
	srv.ProxyHeader = getEnvString("SERVER_PROXY_HEADER", srv.ProxyHeader)

	sec := &cfg.Security
	sec.AllowedOrigins = getEnvStringSlice("CORS_ALLOWED_ORIGINS", sec.AllowedOrigins)
	sec.AllowedMethods = getEnvStringSlice("CORS_ALLOWED_METHODS", sec.AllowedMethods)
	sec.AllowedHeaders = getEnvStringSlice("CORS_ALLOWED_HEADERS", sec.AllowedHeaders)
	sec.CORSMaxAge = getEnvInt("CORS_MAX_AGE", sec.CORSMaxAge)
	sec.GlobalRateLimit = getEnvInt("GLOBAL_RATE_LIMIT", sec.GlobalRateLimit)
	sec.RateLimitWindow = getEnvDuration("RATE_LIMIT_WINDOW", sec.RateLimitWindow)

	lg := &cfg.Logging
	lg.Level = getEnvString("LOG_LEVEL", lg.Level)
	lg.Output = getEnvString("LOG_OUTPUT", lg.Output)
	lg.FilePath = getEnvString("LOG_FILE_PATH", lg.FilePath)
	lg.MaxSize = getEnvInt("LOG_MAX_SIZE", lg.MaxSize)
	lg.MaxBackups = getEnvInt("LOG_MAX_BACKUPS", lg.MaxBackups)
	lg.MaxAge = getEnvInt("LOG_MAX_AGE", lg.MaxAge)
	lg.Compress = getEnvBool("LOG_COMPRESS", lg.Compress)

	cfg.Metrics.Enabled = getEnvBool("METRICS_ENABLED", cfg.Metrics.Enabled)
	cfg.Metrics.Path = getEnvString("METRICS_PATH", cfg.Metrics.Path)

	c := &cfg.Cache
	c.Enabled = getEnvBool("CACHE_ENABLED", c.Enabled)
	c.Provider = getEnvString("CACHE_PROVIDER", c.Provider)
	c.RedisURL = getEnvString("CACHE_REDIS_URL", c.RedisURL)
	c.RedisDB = getEnvInt("CACHE_REDIS_DB", c.RedisDB)
	c.RedisPrefix = getEnvString("CACHE_REDIS_PREFIX", c.RedisPrefix)
	c.DefaultTTL = getEnvDuration("CACHE_DEFAULT_TTL", c.DefaultTTL)
	c.GuardBackend = getEnvString("ISSUANCE_GUARD_BACKEND", c.GuardBackend)

	is := &cfg.Issuance
	is.Provider = getEnvString("ISSUANCE_PROVIDER", is.Provider)
	is.BaseURL = getEnvString("ISSUANCE_BASE_URL", is.BaseURL)
	is.APIKey = getEnvString("ISSUANCE_API_KEY", is.APIKey)
	is.TokenIDPath = getEnvString("ISSUANCE_TOKEN_ID_PATH", is.TokenIDPath)
	is.Timeout = getEnvDuration("ISSUANCE_TIMEOUT", is.Timeout)
	is.RateLimit = getEnvFloat("ISSUANCE_RATE_LIMIT", is.RateLimit)
	is.RateBurst = getEnvInt("ISSUANCE_RATE_BURST", is.RateBurst)
	is.MockFailRate = getEnvFloat("ISSUANCE_MOCK_FAIL_RATE", is.MockFailRate)

	cfg.Assets.PublicBaseURL = getEnvString("ASSETS_PUBLIC_BASE_URL", cfg.Assets.PublicBaseURL)

	s := &cfg.Scheduler
	s.ReconcilerEnabled = getEnvBool("RECONCILER_ENABLED", s.ReconcilerEnabled)
	s.ReconcilerSchedule = getEnvString("RECONCILER_SCHEDULE", s.ReconcilerSchedule)
	s.OrphanAfter = getEnvDuration("RECONCILER_ORPHAN_AFTER", s.OrphanAfter)

	tr := &cfg.Tracing
	tr.Enabled = getEnvBool("TRACING_ENABLED", tr.Enabled)
	tr.Stdout = getEnvBool("TRACING_STDOUT", tr.Stdout)
	tr.ServiceName = getEnvString("TRACING_SERVICE_NAME", tr.ServiceName)
}

// loadEnvFile loads environment variables from the given file if it exists.
// Variables already present in the environment win.
func loadEnvFile(envFile string) error {
	if _, err := os.Stat(envFile); os.IsNotExist(err) {
		return nil
	}
	return godotenv.Load(envFile)
}

func loadYAMLFile(path string, cfg *ProductionConfig) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

// Helper functions for environment variable parsing
func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvStringSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		var result []string
		for _, item := range strings.Split(value, ",") {
			if trimmed := strings.TrimSpace(item); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		if len(result) > 0 {
			return result
		}
	}
	return defaultValue
}

func oneOf(value string, allowed ...string) bool {
	for _, a := range allowed {
		if value == a {
			return true
		}
	}
	return false
}

// ValidateProductionConfig validates the production configuration
func ValidateProductionConfig(cfg *ProductionConfig) error {
	var errors []string

	// Validate database configuration
	switch cfg.Database.Driver {
	case "postgres":
		if cfg.Database.Host == "" {
			errors = append(errors, "DB_HOST is required")
		}
		if cfg.Database.Port <= 0 || cfg.Database.Port > 65535 {
			errors = append(errors, "DB_PORT must be between 1 and 65535")
		}
		if cfg.Database.Name == "" {
			errors = append(errors, "DB_NAME is required")
		}
		if cfg.Database.User == "" {
			errors = append(errors, "DB_USER is required")
		}
	case "sqlite":
		if cfg.Database.SQLitePath == "" {
			errors = append(errors, "DB_SQLITE_PATH is required for the sqlite driver")
		}
	default:
		errors = append(errors, "DB_DRIVER must be one of: [postgres sqlite]")
	}

	// Validate server configuration
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		errors = append(errors, "SERVER_PORT must be between 1 and 65535")
	}
	if cfg.Server.ReadTimeout <= 0 {
		errors = append(errors, "SERVER_READ_TIMEOUT must be positive")
	}
	if cfg.Server.WriteTimeout <= 0 {
		errors = append(errors, "SERVER_WRITE_TIMEOUT must be positive")
	}

	// Validate logging configuration
	if !oneOf(cfg.Logging.Level, "debug", "info", "warn", "error") {
		errors = append(errors, "LOG_LEVEL must be one of: [debug info warn error]")
	}
	if !oneOf(cfg.Logging.Output, "stdout", "file", "both") {
		errors = append(errors, "LOG_OUTPUT must be one of: [stdout file both]")
	}
	if cfg.Logging.Output != "stdout" && cfg.Logging.FilePath == "" {
		errors = append(errors, "LOG_FILE_PATH is required when logging to a file")
	}

	// Validate cache configuration if enabled
	if cfg.Cache.Enabled && cfg.Cache.Provider == "redis" && cfg.Cache.RedisURL == "" {
		errors = append(errors, "CACHE_REDIS_URL is required when cache is enabled with redis provider")
	}
	if !oneOf(cfg.Cache.GuardBackend, "database", "redis") {
		errors = append(errors, "ISSUANCE_GUARD_BACKEND must be one of: [database redis]")
	}
	if cfg.Cache.GuardBackend == "redis" && !cfg.Cache.Enabled {
		errors = append(errors, "CACHE_ENABLED must be true when ISSUANCE_GUARD_BACKEND is redis")
	}

	// Validate issuance configuration
	switch cfg.Issuance.Provider {
	case "mock":
	case "http":
		if cfg.Issuance.BaseURL == "" {
			errors = append(errors, "ISSUANCE_BASE_URL is required for the http provider")
		}
		if cfg.Issuance.TokenIDPath == "" {
			errors = append(errors, "ISSUANCE_TOKEN_ID_PATH is required for the http provider")
		}
	default:
		errors = append(errors, "ISSUANCE_PROVIDER must be one of: [mock http]")
	}
	if cfg.Issuance.Timeout <= 0 {
		errors = append(errors, "ISSUANCE_TIMEOUT must be positive")
	}
	if cfg.Issuance.RateLimit <= 0 || cfg.Issuance.RateBurst <= 0 {
		errors = append(errors, "ISSUANCE_RATE_LIMIT and ISSUANCE_RATE_BURST must be positive")
	}

	if cfg.Assets.PublicBaseURL == "" {
		errors = append(errors, "ASSETS_PUBLIC_BASE_URL is required")
	}

	if cfg.Scheduler.ReconcilerEnabled {
		if cfg.Scheduler.ReconcilerSchedule == "" {
			errors = append(errors, "RECONCILER_SCHEDULE is required when the reconciler is enabled")
		}
		if cfg.Scheduler.OrphanAfter <= cfg.Issuance.Timeout {
			errors = append(errors, "RECONCILER_ORPHAN_AFTER must exceed ISSUANCE_TIMEOUT")
		}
	}

	// Return validation errors if any
	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed: %s", strings.Join(errors, "; "))
	}

	return nil
}
