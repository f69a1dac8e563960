package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the complete configuration schema for the Uplight check engine.
//
// Configuration sources (in order of precedence):
//  1. Defaults
//  2. Configuration file (optional)
//  3. Environment variables
type Config struct {
	Server    ServerConfig    `mapstructure:"server" yaml:"server"`
	Storage   StorageConfig   `mapstructure:"storage" yaml:"storage"`
	Scheduler SchedulerConfig `mapstructure:"scheduler" yaml:"scheduler"`
	Checks    ChecksConfig    `mapstructure:"checks" yaml:"checks"`
	Dispatch  DispatchConfig  `mapstructure:"dispatch" yaml:"dispatch"`
	Alert     AlertConfig     `mapstructure:"alert" yaml:"alert"`
	Annotator AnnotatorConfig `mapstructure:"annotator" yaml:"annotator"`
	Lock      LockConfig      `mapstructure:"lock" yaml:"lock"`
	Log       LogConfig       `mapstructure:"log" yaml:"log"`
}

type ServerConfig struct {
	Addr         string        `mapstructure:"addr" yaml:"addr"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout" yaml:"idle_timeout"`
}

type StorageConfig struct {
	Path            string        `mapstructure:"path" yaml:"path"`
	MaxOpenConns    int           `mapstructure:"max_open_conns" yaml:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns" yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime" yaml:"conn_max_lifetime"`
}

// SchedulerConfig controls the periodic entry points.
type SchedulerConfig struct {
	WorkerCount       int           `mapstructure:"worker_count" yaml:"worker_count"`
	MonitorInterval   time.Duration `mapstructure:"monitor_interval" yaml:"monitor_interval"`
	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval" yaml:"heartbeat_interval"`
	MaxRetries        int           `mapstructure:"max_retries" yaml:"max_retries"`
}

type ChecksConfig struct {
	UserAgent    string        `mapstructure:"user_agent" yaml:"user_agent"`
	MaxBodyBytes int64         `mapstructure:"max_body_bytes" yaml:"max_body_bytes"`
	BodyTruncate int           `mapstructure:"body_truncate" yaml:"body_truncate"`
	MaxRedirects int           `mapstructure:"max_redirects" yaml:"max_redirects"`
	DNSServer    string        `mapstructure:"dns_server" yaml:"dns_server"` // optional host:port, system resolver when empty
	DNSTimeout   time.Duration `mapstructure:"dns_timeout" yaml:"dns_timeout"`
	Retry        RetryConfig   `mapstructure:"retry" yaml:"retry"`
}

type RetryConfig struct {
	MaxRetries   int           `mapstructure:"max_retries" yaml:"max_retries"`
	InitialDelay time.Duration `mapstructure:"initial_delay" yaml:"initial_delay"`
}

// DispatchConfig describes how (monitor, region) pairs reach an executor.
// Regions without an endpoint are probed in-process.
type DispatchConfig struct {
	MaxConcurrency int                     `mapstructure:"max_concurrency" yaml:"max_concurrency"` // 0 means unbounded
	TimeoutPadding time.Duration           `mapstructure:"timeout_padding" yaml:"timeout_padding"`
	Regions        map[string]RegionConfig `mapstructure:"regions" yaml:"regions"`
	Breaker        BreakerConfig           `mapstructure:"breaker" yaml:"breaker"`
}

type RegionConfig struct {
	Endpoint string        `mapstructure:"endpoint" yaml:"endpoint"`
	Timeout  time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

type BreakerConfig struct {
	MaxFailures uint32        `mapstructure:"max_failures" yaml:"max_failures"`
	OpenTimeout time.Duration `mapstructure:"open_timeout" yaml:"open_timeout"`
}

type AlertConfig struct {
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`
	Log     LogSinkConfig `mapstructure:"log" yaml:"log"`
	NATS    NATSConfig    `mapstructure:"nats" yaml:"nats"`
}

type LogSinkConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
}

type NATSConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	URL     string `mapstructure:"url" yaml:"url"`
	Subject string `mapstructure:"subject" yaml:"subject"`
}

type AnnotatorConfig struct {
	Enabled bool          `mapstructure:"enabled" yaml:"enabled"`
	BaseURL string        `mapstructure:"base_url" yaml:"base_url"`
	APIKey  string        `mapstructure:"api_key" yaml:"api_key"`
	Model   string        `mapstructure:"model" yaml:"model"`
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

type LockConfig struct {
	Redis RedisConfig `mapstructure:"redis" yaml:"redis"`
}

type RedisConfig struct {
	Enabled  bool          `mapstructure:"enabled" yaml:"enabled"`
	Addr     string        `mapstructure:"addr" yaml:"addr"`
	Password string        `mapstructure:"password" yaml:"password"`
	DB       int           `mapstructure:"db" yaml:"db"`
	TTL      time.Duration `mapstructure:"ttl" yaml:"ttl"`
}

type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`   // debug, info, warn, error, fatal, panic
	Pretty bool   `mapstructure:"pretty" yaml:"pretty"` // human-readable console output
}

// Load loads configuration from defaults, configuration file,
// and environment variables, then validates the result.
//
// The function fails fast on:
//   - Invalid configuration file
//   - Invalid or missing required configuration values
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix("UPLIGHT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AllowEmptyEnv(false)
	v.AutomaticEnv()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if configDir := getConfigDir(); configDir != "" {
		v.AddConfigPath(configDir)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("config file error: %w", err)
		}
	}

	// Secrets have no default, so AutomaticEnv alone will not surface them on Unmarshal.
	for key, env := range map[string]string{
		"annotator.api_key":   "UPLIGHT_ANNOTATOR_API_KEY",
		"lock.redis.password": "UPLIGHT_LOCK_REDIS_PASSWORD",
	} {
		if _, exists := os.LookupEnv(env); exists {
			_ = v.BindEnv(key, env)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	normalizeConfig(&cfg)

	if err := validateConfig(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// getConfigDir returns the appropriate config directory for the current OS
func getConfigDir() string {
	if runtime.GOOS == "windows" {
		if appData := os.Getenv("APPDATA"); appData != "" {
			return filepath.Join(appData, "uplight")
		}
		return ""
	}

	if home := os.Getenv("HOME"); home != "" {
		return filepath.Join(home, ".uplight")
	}
	return ""
}
