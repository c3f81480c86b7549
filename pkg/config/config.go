package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/fluxo/tsv-export/pkg/sink"
)

// Config represents the complete service configuration
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Concurrency ConcurrencyConfig `yaml:"concurrency"`
	Storage     StorageConfig     `yaml:"storage"`
	Output      OutputConfig      `yaml:"output"`
	OSS         OSSConfig         `yaml:"oss"`
	Logging     LoggingConfig     `yaml:"logging"`
}

// ServerConfig contains gRPC server configuration
type ServerConfig struct {
	Port           int           `yaml:"port"`
	MaxMessageSize int           `yaml:"max_message_size"`
	Timeout        time.Duration `yaml:"timeout"`
}

// ConcurrencyConfig limits how many exports run at once
type ConcurrencyConfig struct {
	MaxConcurrentTasks int           `yaml:"max_concurrent_tasks"`
	QueueTimeout       time.Duration `yaml:"queue_timeout"`
}

// StorageConfig contains temporary file storage settings
type StorageConfig struct {
	TempDirectory   string        `yaml:"temp_directory"`
	TempRetention   time.Duration `yaml:"temp_retention"`
	CleanupEnabled  bool          `yaml:"cleanup_enabled"`
	CleanupInterval time.Duration `yaml:"cleanup_interval"`
}

// OutputConfig holds defaults for requests that leave them unset
type OutputConfig struct {
	Encoding      string `yaml:"encoding"`
	LineSeparator string `yaml:"line_separator"`
}

// OSSConfig contains Alibaba Cloud OSS settings
type OSSConfig struct {
	Enabled         bool          `yaml:"enabled"`
	Endpoint        string        `yaml:"endpoint"`
	Bucket          string        `yaml:"bucket"`
	AccessKeyID     string        `yaml:"access_key_id"`
	AccessKeySecret string        `yaml:"access_key_secret"`
	KeyPrefix       string        `yaml:"key_prefix"`
	PartSize        int64         `yaml:"part_size"`
	SignedURLExpiry time.Duration `yaml:"signed_url_expiry"`
	MaxRetries      int           `yaml:"max_retries"`
	UploadTimeout   time.Duration `yaml:"upload_timeout"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level         string `yaml:"level"`
	Format        string `yaml:"format"`
	Output        string `yaml:"output"`
	EnableTracing bool   `yaml:"enable_tracing"`
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:           9090,
			MaxMessageSize: 16 * 1024 * 1024, // 16MB
			Timeout:        30 * time.Second,
		},
		Concurrency: ConcurrencyConfig{
			MaxConcurrentTasks: 10,
			QueueTimeout:       30 * time.Second,
		},
		Storage: StorageConfig{
			TempDirectory:   "/tmp/tsv-export",
			TempRetention:   1 * time.Hour,
			CleanupEnabled:  true,
			CleanupInterval: 10 * time.Minute,
		},
		Output: OutputConfig{
			Encoding: "utf-8",
		},
		OSS: OSSConfig{
			KeyPrefix:       "exports",
			PartSize:        10 * 1024 * 1024, // 10MB
			SignedURLExpiry: 7 * 24 * time.Hour,
			MaxRetries:      3,
			UploadTimeout:   30 * time.Minute,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// LoadConfig loads configuration from a YAML file. A missing file yields
// the defaults, still subject to environment overrides.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
	case err != nil:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides
func (c *Config) applyEnvOverrides() {
	if val := os.Getenv("OSS_ENDPOINT"); val != "" {
		c.OSS.Endpoint = val
	}
	if val := os.Getenv("OSS_BUCKET"); val != "" {
		c.OSS.Bucket = val
	}
	if val := os.Getenv("OSS_ACCESS_KEY_ID"); val != "" {
		c.OSS.AccessKeyID = val
	}
	if val := os.Getenv("OSS_ACCESS_KEY_SECRET"); val != "" {
		c.OSS.AccessKeySecret = val
	}
	if val := os.Getenv("LOG_LEVEL"); val != "" {
		c.Logging.Level = val
	}
	if val := os.Getenv("TSV_ENCODING"); val != "" {
		c.Output.Encoding = val
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Concurrency.MaxConcurrentTasks <= 0 {
		return fmt.Errorf("max concurrent tasks must be positive")
	}
	if c.Storage.TempDirectory == "" {
		return fmt.Errorf("temp directory is required")
	}
	if c.Storage.CleanupEnabled && c.Storage.CleanupInterval <= 0 {
		return fmt.Errorf("cleanup interval must be positive when cleanup is enabled")
	}
	if _, err := sink.LookupEncoding(c.Output.Encoding); err != nil {
		return fmt.Errorf("output encoding: %w", err)
	}
	if _, err := sink.ParseLineSeparator(c.Output.LineSeparator); err != nil {
		return fmt.Errorf("output line separator: %w", err)
	}
	if !c.OSS.Enabled {
		return nil
	}
	if c.OSS.Endpoint == "" {
		return fmt.Errorf("OSS endpoint is required")
	}
	if c.OSS.Bucket == "" {
		return fmt.Errorf("OSS bucket is required")
	}
	if c.OSS.AccessKeyID == "" {
		return fmt.Errorf("OSS access key ID is required")
	}
	if c.OSS.AccessKeySecret == "" {
		return fmt.Errorf("OSS access key secret is required")
	}
	if c.OSS.PartSize <= 0 {
		return fmt.Errorf("OSS part size must be positive")
	}
	return nil
}
