// Package config loads the afk configuration from defaults, an optional
// config.toml and AFK_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/bnema/afk-farmer/internal/application"
)

const (
	EnvPrefix  = "AFK"
	configDir  = ".afk"
	configName = "config"

	DriverSQLite = "sqlite"
	DriverTOML   = "toml"
)

type Config struct {
	API     APIConfig     `mapstructure:"api" toml:"api"`
	Storage StorageConfig `mapstructure:"storage" toml:"storage"`
	Admin   AdminConfig   `mapstructure:"admin" toml:"admin"`
	Notify  NotifyConfig  `mapstructure:"notify" toml:"notify"`
	Farm    FarmConfig    `mapstructure:"farm" toml:"farm"`
	Log     LogConfig     `mapstructure:"log" toml:"log"`
}

type APIConfig struct {
	BaseURL  string        `mapstructure:"base_url" toml:"base_url"`
	Timeout  time.Duration `mapstructure:"timeout" toml:"timeout"`
	Attempts int           `mapstructure:"attempts" toml:"attempts"`
}

type StorageConfig struct {
	Driver string `mapstructure:"driver" toml:"driver"`
	Path   string `mapstructure:"path" toml:"path"`
}

type AdminConfig struct {
	Listen string `mapstructure:"listen" toml:"listen"`
	URL    string `mapstructure:"url" toml:"url"`
}

type NotifyConfig struct {
	WebhookURL string        `mapstructure:"webhook_url" toml:"webhook_url"`
	QueueSize  int           `mapstructure:"queue_size" toml:"queue_size"`
	Throttle   time.Duration `mapstructure:"throttle" toml:"throttle"`
}

type FarmConfig struct {
	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval" toml:"heartbeat_interval"`
	RestAfter         time.Duration `mapstructure:"rest_after" toml:"rest_after"`
	RestDuration      time.Duration `mapstructure:"rest_duration" toml:"rest_duration"`
	StartSettle       time.Duration `mapstructure:"start_settle" toml:"start_settle"`
	StartRetryStep    time.Duration `mapstructure:"start_retry_step" toml:"start_retry_step"`
	StartRetryMax     time.Duration `mapstructure:"start_retry_max" toml:"start_retry_max"`
	StartMaxAttempts  int           `mapstructure:"start_max_attempts" toml:"start_max_attempts"`
	StatsInterval     time.Duration `mapstructure:"stats_interval" toml:"stats_interval"`
	StatsWriteTimeout time.Duration `mapstructure:"stats_write_timeout" toml:"stats_write_timeout"`
	StaggerStep       time.Duration `mapstructure:"stagger_step" toml:"stagger_step"`
	LogCapacity       int           `mapstructure:"log_capacity" toml:"log_capacity"`
}

type LogConfig struct {
	Level string `mapstructure:"level" toml:"level"`
}

// New returns a viper instance with defaults, env binding and the default
// config search path applied. An explicit file overrides the search path.
func New(file string) *viper.Viper {
	v := viper.New()
	SetDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if file != "" {
		v.SetConfigFile(file)
		return v
	}
	v.SetConfigName(configName)
	v.SetConfigType("toml")
	if home, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(filepath.Join(home, configDir))
	}
	return v
}

func SetDefaults(v *viper.Viper) {
	timings := application.DefaultTimings()

	v.SetDefault("api.base_url", "https://api.altare.sh")
	v.SetDefault("api.timeout", 15*time.Second)
	v.SetDefault("api.attempts", 5)
	v.SetDefault("storage.driver", DriverSQLite)
	v.SetDefault("storage.path", "")
	v.SetDefault("admin.listen", "127.0.0.1:8787")
	v.SetDefault("admin.url", "http://127.0.0.1:8787")
	v.SetDefault("notify.webhook_url", "")
	v.SetDefault("notify.queue_size", 1000)
	v.SetDefault("notify.throttle", 600*time.Millisecond)
	v.SetDefault("farm.heartbeat_interval", timings.HeartbeatInterval)
	v.SetDefault("farm.rest_after", timings.RestAfter)
	v.SetDefault("farm.rest_duration", timings.RestDuration)
	v.SetDefault("farm.start_settle", timings.StartSettle)
	v.SetDefault("farm.start_retry_step", timings.StartRetryStep)
	v.SetDefault("farm.start_retry_max", timings.StartRetryMax)
	v.SetDefault("farm.start_max_attempts", 0)
	v.SetDefault("farm.stats_interval", timings.StatsInterval)
	v.SetDefault("farm.stats_write_timeout", timings.StatsWriteTimeout)
	v.SetDefault("farm.stagger_step", timings.StaggerStep)
	v.SetDefault("farm.log_capacity", timings.LogCapacity)
	v.SetDefault("log.level", "info")
}

// Load reads the config file when one exists and decodes the result. A
// missing file in the search path is not an error.
func Load(v *viper.Viper) (Config, error) {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.normalize(); err != nil {
		return Config{}, err
	}

	// The TOML store reads storage.path from viper directly.
	v.Set("storage.path", cfg.Storage.Path)
	return cfg, nil
}

func (c *Config) normalize() error {
	c.Storage.Driver = strings.ToLower(strings.TrimSpace(c.Storage.Driver))
	switch c.Storage.Driver {
	case DriverSQLite, DriverTOML:
	default:
		return fmt.Errorf("unknown storage driver %q", c.Storage.Driver)
	}

	if c.Storage.Path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("resolve home directory: %w", err)
		}
		name := "afk.db"
		if c.Storage.Driver == DriverTOML {
			name = "sessions.toml"
		}
		c.Storage.Path = filepath.Join(home, configDir, name)
	}
	return nil
}

func (c Config) Timings() application.Timings {
	return application.Timings{
		HeartbeatInterval: c.Farm.HeartbeatInterval,
		RestAfter:         c.Farm.RestAfter,
		RestDuration:      c.Farm.RestDuration,
		StartSettle:       c.Farm.StartSettle,
		StartRetryStep:    c.Farm.StartRetryStep,
		StartRetryMax:     c.Farm.StartRetryMax,
		StartMaxAttempts:  c.Farm.StartMaxAttempts,
		StatsInterval:     c.Farm.StatsInterval,
		StatsWriteTimeout: c.Farm.StatsWriteTimeout,
		StaggerStep:       c.Farm.StaggerStep,
		LogCapacity:       c.Farm.LogCapacity,
	}
}
