package config

import (
	"fmt"
	"net"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"time"
)

var (
	validLogLevels = []string{"debug", "info", "warn", "error", "fatal", "panic"}

	// validRegions are the executor locations a monitor may be configured with.
	validRegions = []string{"wnam", "enam", "sam", "weur", "eeur", "apac", "oc", "afr", "me"}
)

// validateConfig validates the configuration and returns an error if invalid.
func validateConfig(c *Config) error {
	for _, validate := range []func() error{
		func() error { return validateServerConfig(c.Server) },
		func() error { return validateStorageConfig(c.Storage) },
		func() error { return validateSchedulerConfig(c.Scheduler) },
		func() error { return validateChecksConfig(c.Checks) },
		func() error { return validateDispatchConfig(c.Dispatch) },
		func() error { return validateAlertConfig(c.Alert) },
		func() error { return validateAnnotatorConfig(c.Annotator) },
		func() error { return validateLockConfig(c.Lock) },
		func() error { return validateLogConfig(c.Log) },
	} {
		if err := validate(); err != nil {
			return err
		}
	}
	return nil
}

// validateServerConfig validates server configuration.
func validateServerConfig(s ServerConfig) error {
	if s.Addr == "" {
		return fmt.Errorf("server.addr cannot be empty")
	}

	host, portStr, err := net.SplitHostPort(s.Addr)
	if err != nil {
		return fmt.Errorf("server.addr invalid format: %w", err)
	}

	if portStr != "" {
		port, err := strconv.Atoi(portStr)
		if err != nil {
			return fmt.Errorf("server.addr invalid port: %w", err)
		}
		if port < 1 || port > 65535 {
			return fmt.Errorf("server.addr port out of range (1-65535)")
		}
	}

	if host != "" && host != "0.0.0.0" && host != "localhost" {
		if ip := net.ParseIP(host); ip == nil {
			if _, err := net.LookupHost(host); err != nil {
				return fmt.Errorf("server.addr invalid host: %s", host)
			}
		}
	}

	if s.ReadTimeout <= 0 {
		return fmt.Errorf("server.read_timeout must be greater than 0")
	}
	if s.WriteTimeout <= 0 {
		return fmt.Errorf("server.write_timeout must be greater than 0")
	}
	if s.IdleTimeout <= 0 {
		return fmt.Errorf("server.idle_timeout must be greater than 0")
	}

	if s.ReadTimeout > 5*time.Minute {
		return fmt.Errorf("server.read_timeout too large (max 5m)")
	}
	if s.WriteTimeout > 5*time.Minute {
		return fmt.Errorf("server.write_timeout too large (max 5m)")
	}
	if s.IdleTimeout > 30*time.Minute {
		return fmt.Errorf("server.idle_timeout too large (max 30m)")
	}

	return nil
}

// validateStorageConfig validates storage configuration.
func validateStorageConfig(s StorageConfig) error {
	if s.Path == "" {
		return fmt.Errorf("storage.path cannot be empty")
	}
	if strings.Contains(s.Path, "..") {
		return fmt.Errorf("storage.path cannot contain '..' for security")
	}

	if s.MaxOpenConns <= 0 {
		return fmt.Errorf("storage.max_open_conns must be greater than 0")
	}
	if s.MaxIdleConns < 0 {
		return fmt.Errorf("storage.max_idle_conns cannot be negative")
	}
	if s.MaxIdleConns > s.MaxOpenConns {
		return fmt.Errorf("storage.max_idle_conns cannot be greater than max_open_conns")
	}
	if s.ConnMaxLifetime <= 0 {
		return fmt.Errorf("storage.conn_max_lifetime must be greater than 0")
	}
	if s.MaxOpenConns > 1000 {
		return fmt.Errorf("storage.max_open_conns too large (max 1000)")
	}

	return nil
}

// validateSchedulerConfig validates scheduler configuration.
func validateSchedulerConfig(s SchedulerConfig) error {
	if s.WorkerCount <= 0 {
		return fmt.Errorf("scheduler.worker_count must be greater than 0")
	}
	if s.WorkerCount > 100 {
		return fmt.Errorf("scheduler.worker_count too large (max 100)")
	}

	for name, interval := range map[string]time.Duration{
		"monitor_interval":   s.MonitorInterval,
		"heartbeat_interval": s.HeartbeatInterval,
	} {
		if interval < 5*time.Second {
			return fmt.Errorf("scheduler.%s too small (min 5s)", name)
		}
		if interval > time.Hour {
			return fmt.Errorf("scheduler.%s too large (max 1h)", name)
		}
	}

	if s.MaxRetries < 0 {
		return fmt.Errorf("scheduler.max_retries cannot be negative")
	}
	if s.MaxRetries > 10 {
		return fmt.Errorf("scheduler.max_retries too large (max 10)")
	}

	return nil
}

// validateChecksConfig validates probe defaults and the retry policy.
func validateChecksConfig(c ChecksConfig) error {
	if c.UserAgent == "" {
		return fmt.Errorf("checks.user_agent cannot be empty")
	}
	if c.MaxBodyBytes <= 0 {
		return fmt.Errorf("checks.max_body_bytes must be greater than 0")
	}
	if c.BodyTruncate <= 0 {
		return fmt.Errorf("checks.body_truncate must be greater than 0")
	}
	if int64(c.BodyTruncate) > c.MaxBodyBytes {
		return fmt.Errorf("checks.body_truncate cannot be greater than max_body_bytes")
	}
	if c.MaxRedirects < 0 || c.MaxRedirects > 30 {
		return fmt.Errorf("checks.max_redirects must be between 0 and 30")
	}
	if c.DNSServer != "" {
		if _, _, err := net.SplitHostPort(c.DNSServer); err != nil {
			return fmt.Errorf("checks.dns_server invalid format: %w", err)
		}
	}
	if c.DNSTimeout <= 0 {
		return fmt.Errorf("checks.dns_timeout must be greater than 0")
	}

	if c.Retry.MaxRetries < 0 {
		return fmt.Errorf("checks.retry.max_retries cannot be negative")
	}
	if c.Retry.MaxRetries > 10 {
		return fmt.Errorf("checks.retry.max_retries too large (max 10)")
	}
	if c.Retry.InitialDelay <= 0 {
		return fmt.Errorf("checks.retry.initial_delay must be greater than 0")
	}
	if c.Retry.InitialDelay > time.Minute {
		return fmt.Errorf("checks.retry.initial_delay too large (max 1m)")
	}

	return nil
}

// validateDispatchConfig validates fan-out limits and regional endpoints.
func validateDispatchConfig(d DispatchConfig) error {
	if d.MaxConcurrency < 0 {
		return fmt.Errorf("dispatch.max_concurrency cannot be negative")
	}
	if d.TimeoutPadding < 0 {
		return fmt.Errorf("dispatch.timeout_padding cannot be negative")
	}

	for code, region := range d.Regions {
		if !slices.Contains(validRegions, code) {
			return fmt.Errorf("dispatch.regions.%s is not a known region (%s)", code, strings.Join(validRegions, ", "))
		}
		if region.Endpoint == "" {
			continue
		}
		u, err := url.Parse(region.Endpoint)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("dispatch.regions.%s.endpoint must be an absolute http(s) URL", code)
		}
		if region.Timeout < 0 {
			return fmt.Errorf("dispatch.regions.%s.timeout cannot be negative", code)
		}
	}

	if d.Breaker.MaxFailures == 0 {
		return fmt.Errorf("dispatch.breaker.max_failures must be greater than 0")
	}
	if d.Breaker.OpenTimeout <= 0 {
		return fmt.Errorf("dispatch.breaker.open_timeout must be greater than 0")
	}

	return nil
}

// validateAlertConfig validates notifier configuration.
func validateAlertConfig(a AlertConfig) error {
	if a.Timeout <= 0 {
		return fmt.Errorf("alert.timeout must be greater than 0")
	}
	if a.Timeout > 2*time.Minute {
		return fmt.Errorf("alert.timeout too large (max 2m)")
	}

	if a.NATS.Enabled {
		if a.NATS.URL == "" {
			return fmt.Errorf("alert.nats.url is required when nats is enabled")
		}
		if a.NATS.Subject == "" {
			return fmt.Errorf("alert.nats.subject is required when nats is enabled")
		}
		if strings.ContainsAny(a.NATS.Subject, " *>") {
			return fmt.Errorf("alert.nats.subject cannot contain spaces or wildcards")
		}
	}
	return nil
}

// validateAnnotatorConfig validates AI annotator configuration.
func validateAnnotatorConfig(a AnnotatorConfig) error {
	if !a.Enabled {
		return nil
	}
	if a.APIKey == "" {
		return fmt.Errorf("annotator.api_key is required when annotator is enabled")
	}
	if a.Model == "" {
		return fmt.Errorf("annotator.model is required when annotator is enabled")
	}
	if u, err := url.Parse(a.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("annotator.base_url must be an absolute URL")
	}
	if a.Timeout <= 0 {
		return fmt.Errorf("annotator.timeout must be greater than 0")
	}
	return nil
}

// validateLockConfig validates the cross-replica round lock.
func validateLockConfig(l LockConfig) error {
	if !l.Redis.Enabled {
		return nil
	}
	if l.Redis.Addr == "" {
		return fmt.Errorf("lock.redis.addr is required when redis lock is enabled")
	}
	if l.Redis.DB < 0 {
		return fmt.Errorf("lock.redis.db cannot be negative")
	}
	if l.Redis.TTL < 10*time.Second {
		return fmt.Errorf("lock.redis.ttl too small (min 10s)")
	}
	return nil
}

// validateLogConfig validates log configuration.
func validateLogConfig(l LogConfig) error {
	if !slices.Contains(validLogLevels, strings.ToLower(l.Level)) {
		return fmt.Errorf("log.level must be one of: debug, info, warn, error, fatal, panic")
	}
	return nil
}
