package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/newthinker/feedd/internal/core"
	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig     `mapstructure:"server"`
	Feed      FeedConfig       `mapstructure:"feed"`
	Providers []ProviderConfig `mapstructure:"providers"`
	Assets    []string         `mapstructure:"assets"`
	Metrics   MetricsConfig    `mapstructure:"metrics"`
	Archive   ArchiveConfig    `mapstructure:"archive"`
}

type ServerConfig struct {
	Host   string `mapstructure:"host"`
	Port   int    `mapstructure:"port"`
	APIKey string `mapstructure:"api_key"`
}

// FeedConfig holds refresh loop settings.
type FeedConfig struct {
	RefreshInterval   time.Duration `mapstructure:"refresh_interval"`
	CycleDeadline     time.Duration `mapstructure:"cycle_deadline"`
	ProviderTimeout   time.Duration `mapstructure:"provider_timeout"`
	FailureThreshold  int           `mapstructure:"failure_threshold"`
	RateLimitCooldown time.Duration `mapstructure:"rate_limit_cooldown"`
	SubscriberBuffer  int           `mapstructure:"subscriber_buffer"`
}

// ProviderConfig describes one upstream source. Priority is the order
// of appearance in the list: earlier entries are preferred.
type ProviderConfig struct {
	Name    string `mapstructure:"name"`
	BaseURL string `mapstructure:"base_url"`
	APIKey  string `mapstructure:"api_key"`
}

// MetricsConfig holds metrics configuration.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// ArchiveConfig holds snapshot archival settings.
type ArchiveConfig struct {
	Enabled bool     `mapstructure:"enabled"`
	Type    string   `mapstructure:"type"` // "localfs" or "s3"
	Path    string   `mapstructure:"path"` // For localfs
	S3      S3Config `mapstructure:"s3"`   // For S3
}

type S3Config struct {
	Bucket    string `mapstructure:"bucket"`
	Endpoint  string `mapstructure:"endpoint"`
	Region    string `mapstructure:"region"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Prefix    string `mapstructure:"prefix"`
}

// Load reads configuration from file
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)

	// Support environment variable overrides
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	// Expand environment variables in string values
	for _, key := range v.AllKeys() {
		val := v.GetString(key)
		if strings.HasPrefix(val, "${") && strings.HasSuffix(val, "}") {
			envKey := strings.TrimSuffix(strings.TrimPrefix(val, "${"), "}")
			v.Set(key, os.Getenv(envKey))
		}
	}

	cfg := Defaults()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	return cfg, nil
}

// Defaults returns a config with sensible defaults
func Defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8080,
		},
		Feed: FeedConfig{
			RefreshInterval:   30 * time.Second,
			CycleDeadline:     20 * time.Second,
			ProviderTimeout:   8 * time.Second,
			FailureThreshold:  3,
			RateLimitCooldown: 5 * time.Minute,
			SubscriberBuffer:  8,
		},
		Providers: []ProviderConfig{
			{Name: "binance"},
			{Name: "coincap"},
			{Name: "coingecko"},
		},
		Assets: []string{"bitcoin", "ethereum", "solana"},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
		Archive: ArchiveConfig{
			Enabled: false,
			Type:    "localfs",
		},
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("port must be between 1 and 65535, got %d", c.Server.Port))
	}

	if c.Feed.RefreshInterval <= 0 {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("refresh_interval must be positive, got %s", c.Feed.RefreshInterval))
	}
	if c.Feed.CycleDeadline <= 0 || c.Feed.CycleDeadline > c.Feed.RefreshInterval {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("cycle_deadline must be positive and no longer than refresh_interval, got %s", c.Feed.CycleDeadline))
	}
	if c.Feed.ProviderTimeout <= 0 {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("provider_timeout must be positive, got %s", c.Feed.ProviderTimeout))
	}
	if c.Feed.FailureThreshold < 1 {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("failure_threshold must be at least 1, got %d", c.Feed.FailureThreshold))
	}

	if len(c.Providers) == 0 {
		return core.WrapError(core.ErrConfigMissing,
			fmt.Errorf("at least one provider must be configured"))
	}
	seen := make(map[string]struct{}, len(c.Providers))
	for _, p := range c.Providers {
		if p.Name == "" {
			return core.WrapError(core.ErrConfigInvalid,
				fmt.Errorf("provider name cannot be empty"))
		}
		if _, dup := seen[p.Name]; dup {
			return core.WrapError(core.ErrConfigInvalid,
				fmt.Errorf("duplicate provider %q", p.Name))
		}
		seen[p.Name] = struct{}{}
	}

	if len(c.Assets) == 0 {
		return core.WrapError(core.ErrConfigMissing,
			fmt.Errorf("at least one asset must be tracked"))
	}

	if c.Archive.Enabled {
		switch c.Archive.Type {
		case "localfs":
			if c.Archive.Path == "" {
				return core.WrapError(core.ErrConfigMissing,
					fmt.Errorf("archive path required for localfs"))
			}
		case "s3":
			if c.Archive.S3.Bucket == "" {
				return core.WrapError(core.ErrConfigMissing,
					fmt.Errorf("s3 bucket required for s3 archive"))
			}
		default:
			return core.WrapError(core.ErrConfigInvalid,
				fmt.Errorf("unknown archive type %q", c.Archive.Type))
		}
	}

	return nil
}
