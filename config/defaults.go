package config

import (
	"time"

	"github.com/BaSui01/snowgate/auth"
	"github.com/BaSui01/snowgate/identity"
	"github.com/BaSui01/snowgate/orchestrator"
	"github.com/BaSui01/snowgate/providers"
	"github.com/BaSui01/snowgate/store"
)

// DefaultConfig returns the configuration defaults. The auth strategy
// defaults to none and delegation to disabled, so a bare process starts
// without any identity infrastructure.
func DefaultConfig() *Config {
	return &Config{
		Server:       DefaultServerConfig(),
		Log:          DefaultLogConfig(),
		Auth:         auth.Config{Strategy: auth.StrategyNone},
		Delegation:   identity.Config{Timeout: 10 * time.Second},
		Provider:     providers.HTTPConfig{Timeout: 30 * time.Second},
		Orchestrator: orchestrator.Config{Mode: orchestrator.DispatchSequential, MaxParallel: 4},
		Tasks:        orchestrator.ManagerConfig{MaxTasks: 64, TaskTimeout: 2 * time.Minute},
		Store:        DefaultStoreConfig(),
		RateLimit:    DefaultRateLimitConfig(),
	}
}

// DefaultServerConfig returns the HTTP server defaults.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		HTTPPort:        8080,
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    30 * time.Second,
		ShutdownTimeout: 15 * time.Second,
	}
}

// DefaultLogConfig returns the logging defaults.
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:        "info",
		Format:       "json",
		EnableCaller: true,
	}
}

// DefaultStoreConfig returns the task archive defaults.
func DefaultStoreConfig() StoreConfig {
	return StoreConfig{
		Backend: "memory",
		Redis: store.RedisConfig{
			Addr: "localhost:6379",
			TTL:  time.Hour,
		},
	}
}

// DefaultRateLimitConfig returns the inbound throttle defaults.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		Enabled: true,
		RPS:     10,
		Burst:   20,
	}
}
