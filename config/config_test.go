package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/acloudysky/s3drain"
)

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, BackendAWS, cfg.Backend)
	assert.Equal(t, "us-east-1", cfg.Region)
	assert.Equal(t, 3, cfg.RetryMaxAttempts)
	assert.Equal(t, 8, cfg.Drain.Concurrency)
	assert.Equal(t, 100000, cfg.Drain.MaxPages)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, "text", cfg.Output)
	assert.NoError(t, cfg.Validate())
}

func TestLoadFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	path := filepath.Join(dir, "drain.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
backend: minio
endpoint: localhost:9000
region: eu-west-1
drain:
  concurrency: 2
  prefix: logs/
log:
  level: debug
`), 0o600))

	t.Setenv("S3DRAIN_CONFIG", path)
	t.Setenv("S3DRAIN_DRAIN_CONCURRENCY", "16")
	t.Setenv("S3DRAIN_ACCESS_KEY", "minioadmin")
	t.Setenv("S3DRAIN_SECRET_KEY", "minioadmin")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, BackendMinio, cfg.Backend)
	assert.Equal(t, "localhost:9000", cfg.Endpoint)
	assert.Equal(t, "eu-west-1", cfg.Region)
	assert.Equal(t, 16, cfg.Drain.Concurrency)
	assert.Equal(t, "logs/", cfg.Drain.Prefix)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "minioadmin", cfg.AccessKey)
	assert.NoError(t, cfg.Validate())
}

func TestLoadMissingExplicitFile(t *testing.T) {
	t.Chdir(t.TempDir())

	_, err := Load("does-not-exist.yaml")
	assert.Equal(t, s3drain.ErrInvalidConfig, s3drain.CodeOf(err))
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Backend: BackendAWS,
			Region:  "us-east-1",
			Drain:   DrainConfig{Concurrency: 1, MaxPages: 10},
			Output:  "json",
		}
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"unknown backend", func(c *Config) { c.Backend = "gcs" }, "backend"},
		{"minio without endpoint", func(c *Config) { c.Backend = BackendMinio }, "endpoint"},
		{"empty region", func(c *Config) { c.Region = "" }, "region"},
		{"half credentials", func(c *Config) { c.AccessKey = "AKIA" }, "access_key"},
		{"zero concurrency", func(c *Config) { c.Drain.Concurrency = 0 }, "drain.concurrency"},
		{"zero max pages", func(c *Config) { c.Drain.MaxPages = 0 }, "drain.max_pages"},
		{"page size too large", func(c *Config) { c.Drain.PageSize = 5000 }, "drain.page_size"},
		{"unknown output", func(c *Config) { c.Output = "xml" }, "output"},
	}

	require.NoError(t, valid().Validate())

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)

			err := cfg.Validate()
			require.Error(t, err)
			assert.Equal(t, s3drain.ErrInvalidConfig, s3drain.CodeOf(err))
			assert.Contains(t, err.Error(), tt.field)
		})
	}
}
