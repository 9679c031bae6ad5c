// Package config loads cdkop settings from .cdkop.yaml and the environment.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"cdkop/internal/construct"
	"cdkop/internal/resolver"
	"cdkop/pkg/platform"
)

// DefaultRegion is used when neither configuration nor the cloud assembly names a region.
const DefaultRegion = "us-east-1"

var envKeyReplacer = strings.NewReplacer(".", "_")

// Config holds cdkop settings.
type Config struct {
	App          string      `mapstructure:"app"`
	Stack        string      `mapstructure:"stack"`
	Region       string      `mapstructure:"region"`
	StackType    string      `mapstructure:"stack_type"`
	DefaultChild string      `mapstructure:"default_child"`
	Strict       bool        `mapstructure:"strict"`
	MetadataFile string      `mapstructure:"metadata_file"`
	CommandsFile string      `mapstructure:"commands_file"`
	LogLevel     string      `mapstructure:"log_level"`
	Cache        CacheConfig `mapstructure:"cache"`
}

// CacheConfig selects an optional stack metadata cache.
type CacheConfig struct {
	// DSN is "postgres://...", "sqlite3://<file>" or "clickhouse://...".
	DSN       string        `mapstructure:"dsn"`
	RedisAddr string        `mapstructure:"redis_addr"`
	TTL       time.Duration `mapstructure:"ttl"`
}

// Enabled reports whether any cache backend is configured.
func (c CacheConfig) Enabled() bool {
	return c.DSN != "" || c.RedisAddr != ""
}

// Load reads configuration. With an empty path, .cdkop.yaml is looked up in the working
// directory and then $HOME; a missing file is not an error. CDKOP_* environment variables
// override file values.
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetDefault("app", platform.GetEnv("CDK_APP_DIR", "cdk.out"))
	v.SetDefault("stack", "")
	v.SetDefault("region", "")
	v.SetDefault("stack_type", construct.DefaultStackType)
	v.SetDefault("default_child", resolver.DefaultChild)
	v.SetDefault("strict", false)
	v.SetDefault("metadata_file", "")
	v.SetDefault("commands_file", "")
	v.SetDefault("log_level", "warn")
	v.SetDefault("cache.dsn", "")
	v.SetDefault("cache.redis_addr", "")
	v.SetDefault("cache.ttl", 5*time.Minute)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(".cdkop")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME")
	}

	v.SetEnvPrefix("CDKOP")
	v.SetEnvKeyReplacer(envKeyReplacer)
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values that would otherwise fail deep inside a resolution.
func (c *Config) Validate() error {
	if c.App == "" {
		return fmt.Errorf("app directory must not be empty")
	}
	if c.DefaultChild == "" {
		return fmt.Errorf("default_child must not be empty")
	}
	if c.Cache.TTL < 0 {
		return fmt.Errorf("cache.ttl must not be negative")
	}
	return nil
}

// ResolveRegion returns the configured region, else the assembly's region, else DefaultRegion.
func (c *Config) ResolveRegion(assemblyRegion string) string {
	if c.Region != "" {
		return c.Region
	}
	if assemblyRegion != "" {
		return assemblyRegion
	}
	return DefaultRegion
}

// ResolverConfig returns the matching settings for the resolver.
func (c *Config) ResolverConfig() resolver.Config {
	return resolver.Config{
		StackType:    c.StackType,
		DefaultChild: c.DefaultChild,
		Strict:       c.Strict,
	}
}
