package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().Server.Port, cfg.Server.Port)
	assert.False(t, cfg.OSS.Enabled)
}

func TestLoadConfig_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := `
server:
  port: 7000
concurrency:
  max_concurrent_tasks: 2
  queue_timeout: 5s
output:
  encoding: windows-1250
  line_separator: crlf
logging:
  level: debug
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 7000, cfg.Server.Port)
	assert.Equal(t, 2, cfg.Concurrency.MaxConcurrentTasks)
	assert.Equal(t, 5*time.Second, cfg.Concurrency.QueueTimeout)
	assert.Equal(t, "windows-1250", cfg.Output.Encoding)
	assert.Equal(t, "crlf", cfg.Output.LineSeparator)
	assert.Equal(t, "debug", cfg.Logging.Level)
	// untouched sections keep their defaults
	assert.Equal(t, DefaultConfig().Storage.TempRetention, cfg.Storage.TempRetention)
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	t.Setenv("TSV_ENCODING", "iso-8859-2")
	t.Setenv("LOG_LEVEL", "warn")

	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "iso-8859-2", cfg.Output.Encoding)
	assert.Equal(t, "warn", cfg.Logging.Level)
}

func TestLoadConfig_BadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server: ["), 0o644))

	_, err := LoadConfig(path)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := map[string]func(*Config){
		"port":      func(c *Config) { c.Server.Port = 0 },
		"tasks":     func(c *Config) { c.Concurrency.MaxConcurrentTasks = 0 },
		"temp dir":  func(c *Config) { c.Storage.TempDirectory = "" },
		"interval":  func(c *Config) { c.Storage.CleanupInterval = 0 },
		"encoding":  func(c *Config) { c.Output.Encoding = "klingon" },
		"separator": func(c *Config) { c.Output.LineSeparator = "nul" },
		"oss":       func(c *Config) { c.OSS.Enabled = true },
	}
	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			cfg := DefaultConfig()
			mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}

	cfg := DefaultConfig()
	cfg.OSS = OSSConfig{
		Enabled:         true,
		Endpoint:        "oss-cn-hangzhou.aliyuncs.com",
		Bucket:          "exports",
		AccessKeyID:     "id",
		AccessKeySecret: "secret",
		PartSize:        1 << 20,
	}
	assert.NoError(t, cfg.Validate())
}
