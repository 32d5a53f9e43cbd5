// Package config handles configuration loading for honeytrap.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"honeytrap/internal/engagement"
	"honeytrap/internal/feed"
	"honeytrap/internal/gateway"
	"honeytrap/internal/intel"
	"honeytrap/internal/report"
	"honeytrap/internal/session"
	"honeytrap/internal/storage"
	s3archive "honeytrap/internal/storage/s3"
)

// Config holds the complete application configuration.
type Config struct {
	Server     ServerConfig          `yaml:"server"`
	Auth       AuthConfig            `yaml:"auth"`
	RateLimit  RateLimitConfig       `yaml:"rate_limit"`
	Logging    LoggingConfig         `yaml:"logging"`
	Session    session.Config        `yaml:"session"`
	Engagement engagement.Config     `yaml:"engagement"`
	Gateway    gateway.ClientConfig  `yaml:"gateway"`
	Report     report.Config         `yaml:"report"`
	Feed       feed.Config           `yaml:"feed"`
	Registry   RegistryConfig        `yaml:"registry"`
	Archive    ArchiveConfig         `yaml:"archive"`
	Transcript TranscriptConfig      `yaml:"transcripts"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	HTTPPort     int           `yaml:"http_port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// AuthConfig holds API authentication settings. Keys are stored as bcrypt
// hashes; plaintext keys in config are accepted for development only.
type AuthConfig struct {
	Enabled      bool     `yaml:"enabled"`
	APIKeyHeader string   `yaml:"api_key_header"`
	APIKeyHashes []string `yaml:"api_key_hashes"`
	APIKeys      []string `yaml:"api_keys"`
}

// RateLimitConfig holds rate limiting settings.
type RateLimitConfig struct {
	Enabled       bool          `yaml:"enabled"`
	RequestsPerIP int           `yaml:"requests_per_ip"`
	WindowSize    time.Duration `yaml:"window_size"`
	BurstSize     int           `yaml:"burst_size"`
	CleanupPeriod time.Duration `yaml:"cleanup_period"`
	ExemptPaths   []string      `yaml:"exempt_paths"`
	TrustProxy    bool          `yaml:"trust_proxy"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// RegistryConfig selects the scammer registry backend.
type RegistryConfig struct {
	// Backend is "memory" or "redis".
	Backend string            `yaml:"backend"`
	Redis   intel.RedisConfig `yaml:"redis"`
}

// ArchiveConfig holds ClickHouse archival settings.
type ArchiveConfig struct {
	Enabled    bool                     `yaml:"enabled"`
	ClickHouse storage.ClickHouseConfig `yaml:"clickhouse"`
	Writer     storage.ArchiverConfig   `yaml:"writer"`
}

// TranscriptConfig holds S3 transcript retention settings.
type TranscriptConfig struct {
	Enabled bool              `yaml:"enabled"`
	S3      s3archive.Config  `yaml:"s3"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			HTTPPort:     8080,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 60 * time.Second,
		},
		Auth: AuthConfig{
			Enabled:      false,
			APIKeyHeader: "X-API-Key",
		},
		RateLimit: RateLimitConfig{
			Enabled:       true,
			RequestsPerIP: 300,
			WindowSize:    time.Minute,
			BurstSize:     50,
			CleanupPeriod: 5 * time.Minute,
			ExemptPaths:   []string{"/health", "/metrics"},
			TrustProxy:    false,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Session:    session.DefaultConfig(),
		Engagement: engagement.DefaultConfig(),
		Gateway:    gateway.DefaultClientConfig(),
		Report:     report.DefaultConfig(),
		Feed:       feed.DefaultConfig(),
		Registry: RegistryConfig{
			Backend: "memory",
			Redis:   intel.DefaultRedisConfig(),
		},
		Archive: ArchiveConfig{
			Enabled:    false,
			ClickHouse: storage.DefaultClickHouseConfig(),
			Writer:     storage.DefaultArchiverConfig(),
		},
		Transcript: TranscriptConfig{
			Enabled: false,
			S3:      *s3archive.DefaultConfig(),
		},
	}
}

// Load loads configuration from a file or returns defaults.
func Load() (*Config, error) {
	cfg := DefaultConfig()

	configPath := os.Getenv("HONEYTRAP_CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides. Secrets arrive
// through the environment so they never land in config files.
func (c *Config) applyEnvOverrides() {
	if port := os.Getenv("HONEYTRAP_HTTP_PORT"); port != "" {
		fmt.Sscanf(port, "%d", &c.Server.HTTPPort)
	}
	if level := os.Getenv("HONEYTRAP_LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}
	if apiKey := os.Getenv("HONEYTRAP_API_KEY"); apiKey != "" {
		c.Auth.APIKeys = append(c.Auth.APIKeys, apiKey)
		c.Auth.Enabled = true
	}

	if url := os.Getenv("HONEYTRAP_LLM_BASE_URL"); url != "" {
		c.Gateway.BaseURL = url
	}
	if key := os.Getenv("HONEYTRAP_LLM_API_KEY"); key != "" {
		c.Gateway.APIKey = key
	}
	if model := os.Getenv("HONEYTRAP_LLM_MODEL"); model != "" {
		c.Gateway.Model = model
	}

	if endpoint := os.Getenv("HONEYTRAP_REPORT_ENDPOINT"); endpoint != "" {
		c.Report.Endpoint = endpoint
	}
	if key := os.Getenv("HONEYTRAP_REPORT_API_KEY"); key != "" {
		c.Report.APIKey = key
	}

	if addr := os.Getenv("HONEYTRAP_REDIS_ADDR"); addr != "" {
		c.Registry.Backend = "redis"
		c.Registry.Redis.Addr = addr
	}
	if pass := os.Getenv("HONEYTRAP_REDIS_PASSWORD"); pass != "" {
		c.Registry.Redis.Password = pass
	}

	if brokers := os.Getenv("HONEYTRAP_KAFKA_BROKERS"); brokers != "" {
		c.Feed.Enabled = true
		c.Feed.Brokers = splitAndTrim(brokers, ",")
	}

	if host := os.Getenv("CLICKHOUSE_HOST"); host != "" {
		c.Archive.Enabled = true
		c.Archive.ClickHouse.Hosts = []string{host}
	}
	if db := os.Getenv("CLICKHOUSE_DATABASE"); db != "" {
		c.Archive.ClickHouse.Database = db
	}
	if user := os.Getenv("CLICKHOUSE_USER"); user != "" {
		c.Archive.ClickHouse.Username = user
	}
	if pass := os.Getenv("CLICKHOUSE_PASSWORD"); pass != "" {
		c.Archive.ClickHouse.Password = pass
	}

	if bucket := os.Getenv("HONEYTRAP_S3_BUCKET"); bucket != "" {
		c.Transcript.Enabled = true
		c.Transcript.S3.Bucket = bucket
	}
	if region := os.Getenv("AWS_REGION"); region != "" {
		c.Transcript.S3.Region = region
	}
}

func splitAndTrim(s, sep string) []string {
	parts := make([]string, 0)
	for _, part := range strings.Split(s, sep) {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			parts = append(parts, trimmed)
		}
	}
	return parts
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Server.HTTPPort <= 0 || c.Server.HTTPPort > 65535 {
		return fmt.Errorf("invalid http_port: %d", c.Server.HTTPPort)
	}
	if err := c.Engagement.Validate(); err != nil {
		return err
	}
	if err := c.Feed.Validate(); err != nil {
		return err
	}
	if c.Registry.Backend != "memory" && c.Registry.Backend != "redis" {
		return fmt.Errorf("invalid registry backend: %q", c.Registry.Backend)
	}
	if c.Transcript.Enabled {
		if err := c.Transcript.S3.Validate(); err != nil {
			return err
		}
	}
	if c.Auth.Enabled && len(c.Auth.APIKeys) == 0 && len(c.Auth.APIKeyHashes) == 0 {
		return fmt.Errorf("auth enabled but no API keys configured")
	}
	return nil
}
