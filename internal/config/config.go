package config

import (
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Engine   EngineConfig   `yaml:"engine"`
	Platform PlatformConfig `yaml:"platform"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Reset    ResetConfig    `yaml:"reset"`
	Archive  ArchiveConfig  `yaml:"archive"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port int    `yaml:"port"`
	Host string `yaml:"host"`
}

// GetHost returns the server host, with ECS detection
func (c ServerConfig) GetHost() string {
	// On ECS/container, listen on all interfaces
	if os.Getenv("ECS_CONTAINER_METADATA_URI") != "" || os.Getenv("AWS_EXECUTION_ENV") != "" {
		return "0.0.0.0"
	}
	if host := os.Getenv("SERVER_HOST"); host != "" {
		return host
	}
	return c.Host
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	URL             string `yaml:"url"`
	MaxOpenConns    int    `yaml:"max_open_conns"`
	MaxIdleConns    int    `yaml:"max_idle_conns"`
	ConnMaxLifetime int    `yaml:"conn_max_lifetime_minutes"`
}

// RedisConfig holds Redis settings for locking and the metrics cache.
// Redis is optional; with an empty Addr the engine falls back to PG advisory
// locks and uncached metric reads.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// EngineConfig holds rule engine scheduling settings.
type EngineConfig struct {
	IntervalSeconds int  `yaml:"interval_seconds"`
	LockTTLSeconds  int  `yaml:"lock_ttl_seconds"`
	RecordNoMatch   bool `yaml:"record_no_match"`
}

// Interval returns the engine pass interval as a duration
func (c EngineConfig) Interval() time.Duration {
	return time.Duration(c.IntervalSeconds) * time.Second
}

// LockTTL returns the per-asset lock TTL as a duration
func (c EngineConfig) LockTTL() time.Duration {
	return time.Duration(c.LockTTLSeconds) * time.Second
}

// PlatformConfig holds the ad platform gateway configuration.
type PlatformConfig struct {
	BaseURL        string `yaml:"base_url"`
	APIToken       string `yaml:"api_token"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// Timeout returns the configured timeout as a duration
func (c PlatformConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// MetricsConfig holds metric snapshot cache settings.
type MetricsConfig struct {
	CacheTTLSeconds int `yaml:"cache_ttl_seconds"`
}

// CacheTTL returns the snapshot cache TTL as a duration
func (c MetricsConfig) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLSeconds) * time.Second
}

// ResetConfig holds the daily budget reset worker settings.
type ResetConfig struct {
	Enabled             bool `yaml:"enabled"`
	PollIntervalSeconds int  `yaml:"poll_interval_seconds"`
}

// PollInterval returns the reset poll interval as a duration
func (c ResetConfig) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalSeconds) * time.Second
}

// ArchiveConfig holds the history archiver settings.
type ArchiveConfig struct {
	Enabled       bool   `yaml:"enabled"`
	S3Bucket      string `yaml:"s3_bucket"`
	S3Region      string `yaml:"s3_region"`
	AWSProfile    string `yaml:"aws_profile"` // Empty string uses default credential chain (IAM role on ECS)
	RetentionDays int    `yaml:"retention_days"`
}

// Retention returns the hot-history retention as a duration
func (c ArchiveConfig) Retention() time.Duration {
	return time.Duration(c.RetentionDays) * 24 * time.Hour
}

// GetAWSProfile returns the AWS profile, with environment variable override
func (c ArchiveConfig) GetAWSProfile() string {
	if envProfile := os.Getenv("AWS_PROFILE_OVERRIDE"); envProfile != "" {
		if envProfile == "none" || envProfile == "iam" {
			return "" // Use default credential chain (IAM role)
		}
		return envProfile
	}
	// On ECS/Lambda, don't use a profile - use IAM role
	if os.Getenv("ECS_CONTAINER_METADATA_URI") != "" || os.Getenv("AWS_EXECUTION_ENV") != "" {
		return ""
	}
	return c.AWSProfile
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	// Set defaults
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 25
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.Database.ConnMaxLifetime == 0 {
		cfg.Database.ConnMaxLifetime = 30
	}
	if cfg.Engine.IntervalSeconds == 0 {
		cfg.Engine.IntervalSeconds = 300
	}
	if cfg.Engine.LockTTLSeconds == 0 {
		cfg.Engine.LockTTLSeconds = 120
	}
	if cfg.Platform.TimeoutSeconds == 0 {
		cfg.Platform.TimeoutSeconds = 30
	}
	if cfg.Metrics.CacheTTLSeconds == 0 {
		cfg.Metrics.CacheTTLSeconds = 60
	}
	if cfg.Reset.PollIntervalSeconds == 0 {
		cfg.Reset.PollIntervalSeconds = 60
	}
	if cfg.Archive.RetentionDays == 0 {
		cfg.Archive.RetentionDays = 90
	}
	if cfg.Archive.S3Region == "" {
		cfg.Archive.S3Region = "us-west-2"
	}

	return &cfg, nil
}

// LoadFromEnv loads configuration with environment variable overrides.
// It automatically loads a .env file (if present) before reading env vars,
// so secrets can live in .env locally and in real env vars on ECS.
func LoadFromEnv(path string) (*Config, error) {
	// Load .env file if it exists (no error if missing)
	_ = godotenv.Load()

	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}

	// Override with environment variables if present
	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		cfg.Database.URL = dbURL
	}
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		cfg.Redis.Addr = addr
	}
	if password := os.Getenv("REDIS_PASSWORD"); password != "" {
		cfg.Redis.Password = password
	}
	if baseURL := os.Getenv("AD_PLATFORM_BASE_URL"); baseURL != "" {
		cfg.Platform.BaseURL = baseURL
	}
	if token := os.Getenv("AD_PLATFORM_API_TOKEN"); token != "" {
		cfg.Platform.APIToken = token
	}
	if bucket := os.Getenv("ARCHIVE_S3_BUCKET"); bucket != "" {
		cfg.Archive.S3Bucket = bucket
		cfg.Archive.Enabled = true
	}
	if region := os.Getenv("ARCHIVE_S3_REGION"); region != "" {
		cfg.Archive.S3Region = region
	}

	return cfg, nil
}
