package config

import (
	"fmt"

	"github.com/spf13/viper"
)

type Config struct {
	Port           int      `mapstructure:"port"`
	DatabaseDriver string   `mapstructure:"database_driver"` // "sqlite" (sidecar default) or "postgres" (shared shop DB)
	DatabasePath   string   `mapstructure:"database_path"`   // sqlite only
	DatabaseURL    string   `mapstructure:"database_url"`    // postgres only
	LogLevel       string   `mapstructure:"log_level"`
	LogFormat      string   `mapstructure:"log_format"` // "text" or "json"
	AllowedOrigins []string `mapstructure:"allowed_origins"`

	RequestTimeoutSec  int `mapstructure:"request_timeout_sec"`  // HTTP read/write; 0 = server default
	ShutdownTimeoutSec int `mapstructure:"shutdown_timeout_sec"` // Graceful shutdown wait

	// Change-detection poller
	PollIntervalSec int `mapstructure:"poll_interval_sec"` // Orders table scan period

	// Liveness & cleanup
	HeartbeatIntervalSec int `mapstructure:"heartbeat_interval_sec"`
	CleanupIntervalSec   int `mapstructure:"cleanup_interval_sec"`
	LivenessTimeoutSec   int `mapstructure:"liveness_timeout_sec"`   // Client evicted after this much silence
	ReconnectGuardSec    int `mapstructure:"reconnect_guard_sec"`    // Re-subscribe rejected inside this window
	ThrottleRetentionSec int `mapstructure:"throttle_retention_sec"` // Stale throttle entries pruned past this age

	// Throttle cooldowns (milliseconds)
	StatusChangeCooldownMs int `mapstructure:"status_change_cooldown_ms"`
	FlagsUpdateCooldownMs  int `mapstructure:"flags_update_cooldown_ms"`
	HeartbeatCooldownMs    int `mapstructure:"heartbeat_cooldown_ms"`
	DefaultCooldownMs      int `mapstructure:"default_cooldown_ms"`
	PerOrderCooldownMs     int `mapstructure:"per_order_cooldown_ms"`

	// Fan-out
	EventBufferSize int `mapstructure:"event_buffer_size"` // Per-subscriber channel depth

	// Outer anti-storm layer: per-IP API rate limit; 0 = disabled
	APIRateLimitPerSec float64 `mapstructure:"api_rate_limit_per_sec"`
	APIRateLimitBurst  int     `mapstructure:"api_rate_limit_burst"`

	// Tracing; empty endpoint = disabled
	OTLPEndpoint      string  `mapstructure:"otlp_endpoint"`
	TraceSamplingRate float64 `mapstructure:"trace_sampling_rate"`
}

func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("/etc/orderdesk/")
	viper.AddConfigPath("$HOME/.orderdesk")
	viper.AddConfigPath(".")

	// Defaults
	viper.SetDefault("port", 8090)
	viper.SetDefault("database_driver", "sqlite")
	viper.SetDefault("database_path", "./orderdesk.db")
	viper.SetDefault("database_url", "")
	viper.SetDefault("log_level", "info")
	viper.SetDefault("log_format", "text")
	viper.SetDefault("allowed_origins", []string{"*"})
	viper.SetDefault("request_timeout_sec", 15)
	viper.SetDefault("shutdown_timeout_sec", 10)
	viper.SetDefault("poll_interval_sec", 60)
	viper.SetDefault("heartbeat_interval_sec", 30)
	viper.SetDefault("cleanup_interval_sec", 60)
	viper.SetDefault("liveness_timeout_sec", 60)
	viper.SetDefault("reconnect_guard_sec", 5)
	viper.SetDefault("throttle_retention_sec", 300)
	viper.SetDefault("status_change_cooldown_ms", 2000)
	viper.SetDefault("flags_update_cooldown_ms", 1500)
	viper.SetDefault("heartbeat_cooldown_ms", 1000)
	viper.SetDefault("default_cooldown_ms", 500)
	viper.SetDefault("per_order_cooldown_ms", 1000)
	viper.SetDefault("event_buffer_size", 1000)
	viper.SetDefault("api_rate_limit_per_sec", 0) // 0 = disabled
	viper.SetDefault("api_rate_limit_burst", 0)
	viper.SetDefault("otlp_endpoint", "")
	viper.SetDefault("trace_sampling_rate", 1.0)

	// Environment variables
	viper.SetEnvPrefix("ORDERDESK")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		// Config file not found; using defaults and env vars
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}
