package config

import "github.com/spf13/viper"

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.idle_timeout", "60s")

	// Storage defaults
	v.SetDefault("storage.path", "uplight.db")
	v.SetDefault("storage.max_open_conns", 16)
	v.SetDefault("storage.max_idle_conns", 4)
	v.SetDefault("storage.conn_max_lifetime", "1h")

	// Scheduler defaults
	v.SetDefault("scheduler.worker_count", 4)
	v.SetDefault("scheduler.monitor_interval", "1m")
	v.SetDefault("scheduler.heartbeat_interval", "1m")
	v.SetDefault("scheduler.max_retries", 2)

	// Probe defaults
	v.SetDefault("checks.user_agent", "Uplight-Monitor/1.0")
	v.SetDefault("checks.max_body_bytes", 1024*1024)
	v.SetDefault("checks.body_truncate", 2048)
	v.SetDefault("checks.max_redirects", 10)
	v.SetDefault("checks.dns_server", "")
	v.SetDefault("checks.dns_timeout", "5s")
	v.SetDefault("checks.retry.max_retries", 3)
	v.SetDefault("checks.retry.initial_delay", "1s")

	// Dispatch defaults
	v.SetDefault("dispatch.max_concurrency", 0)
	v.SetDefault("dispatch.timeout_padding", "30s")
	v.SetDefault("dispatch.breaker.max_failures", 5)
	v.SetDefault("dispatch.breaker.open_timeout", "30s")

	// Alert defaults
	v.SetDefault("alert.timeout", "10s")
	v.SetDefault("alert.log.enabled", true)
	v.SetDefault("alert.nats.enabled", false)
	v.SetDefault("alert.nats.url", "nats://127.0.0.1:4222")
	v.SetDefault("alert.nats.subject", "uplight.events")

	// Annotator defaults
	v.SetDefault("annotator.enabled", false)
	v.SetDefault("annotator.base_url", "https://api.openai.com/v1")
	v.SetDefault("annotator.model", "gpt-4o-mini")
	v.SetDefault("annotator.timeout", "20s")

	// Lock defaults
	v.SetDefault("lock.redis.enabled", false)
	v.SetDefault("lock.redis.addr", "127.0.0.1:6379")
	v.SetDefault("lock.redis.db", 0)
	v.SetDefault("lock.redis.ttl", "5m")

	// Log defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)
}
