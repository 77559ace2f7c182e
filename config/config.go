// Package config loads s3drain settings from defaults, an optional YAML file,
// a .env file and S3DRAIN_* environment variables, in increasing priority.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/acloudysky/s3drain"
)

// EnvPrefix is prepended to every environment variable, e.g. S3DRAIN_REGION.
const EnvPrefix = "S3DRAIN"

// Backends understood by the command line.
const (
	BackendAWS   = "aws"
	BackendMinio = "minio"
)

type Config struct {
	Backend string `mapstructure:"backend"`
	Region  string `mapstructure:"region"`

	// Endpoint is required for minio and optional for aws.
	Endpoint  string `mapstructure:"endpoint"`
	PathStyle bool   `mapstructure:"path_style"`
	Secure    bool   `mapstructure:"secure"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`

	RetryMaxAttempts int `mapstructure:"retry_max_attempts"`

	Drain DrainConfig `mapstructure:"drain"`
	Log   LogConfig   `mapstructure:"log"`

	// Output selects the report format: text, json or yaml.
	Output string `mapstructure:"output"`
}

type DrainConfig struct {
	Concurrency int    `mapstructure:"concurrency"`
	MaxPages    int    `mapstructure:"max_pages"`
	PageSize    int    `mapstructure:"page_size"`
	Prefix      string `mapstructure:"prefix"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

var keys = []string{
	"backend", "region", "endpoint", "path_style", "secure", "access_key", "secret_key",
	"retry_max_attempts", "output",
	"drain.concurrency", "drain.max_pages", "drain.page_size", "drain.prefix",
	"log.level", "log.format",
}

// Load builds a Config. path names a YAML config file; when empty the
// S3DRAIN_CONFIG variable is consulted and, failing that, ./s3drain.yaml is
// read if present.
func Load(path string) (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for _, key := range keys {
		_ = v.BindEnv(key)
	}
	_ = v.BindEnv("config")

	v.SetDefault("backend", BackendAWS)
	v.SetDefault("region", "us-east-1")
	v.SetDefault("retry_max_attempts", 3)
	v.SetDefault("output", "text")
	v.SetDefault("drain.concurrency", 8)
	v.SetDefault("drain.max_pages", 100000)
	v.SetDefault("drain.page_size", 0)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")

	if path == "" {
		path = v.GetString("config")
	}
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("s3drain")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, s3drain.NewInvalidConfigError("config", "config", "file", err.Error()).WithCause(err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, s3drain.NewInvalidConfigError("config", "config", "decode", err.Error()).WithCause(err)
	}
	return &cfg, nil
}

// Validate reports the first setting that cannot work.
func (c *Config) Validate() error {
	switch c.Backend {
	case BackendAWS:
	case BackendMinio:
		if c.Endpoint == "" {
			return invalid("endpoint", "required for the minio backend")
		}
	default:
		return invalid("backend", fmt.Sprintf("unknown backend %q", c.Backend))
	}

	if c.Region == "" {
		return invalid("region", "must not be empty")
	}
	if (c.AccessKey == "") != (c.SecretKey == "") {
		return invalid("access_key", "access_key and secret_key must be set together")
	}
	if c.Drain.Concurrency < 1 {
		return invalid("drain.concurrency", "must be at least 1")
	}
	if c.Drain.MaxPages < 1 {
		return invalid("drain.max_pages", "must be at least 1")
	}
	if c.Drain.PageSize < 0 || c.Drain.PageSize > 1000 {
		return invalid("drain.page_size", "must be between 0 and 1000")
	}

	switch c.Output {
	case "text", "json", "yaml":
	default:
		return invalid("output", fmt.Sprintf("unknown output format %q", c.Output))
	}
	return nil
}

func invalid(field, reason string) error {
	return s3drain.NewInvalidConfigError("config", "config", field, reason)
}
