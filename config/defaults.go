// Package config provides the layered configuration loader for the
// market engine: default struct literal -> YAML file -> environment
// variables, per the precedence documented in SPEC_FULL.md §10.1.
package config

import "time"

// DefaultConfig returns the engine's out-of-the-box configuration.
func DefaultConfig() *Config {
	return &Config{
		Server:    DefaultServerConfig(),
		Database:  DefaultDatabaseConfig(),
		Redis:     DefaultRedisConfig(),
		Market:    DefaultMarketConfig(),
		Providers: DefaultProvidersConfig(),
		Log:       DefaultLogConfig(),
		Telemetry: DefaultTelemetryConfig(),
	}
}

// DefaultServerConfig returns the health/metrics listener defaults.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		HealthPort:      8080,
		MetricsPort:     9091,
		ReadTimeout:     10 * time.Second,
		WriteTimeout:    10 * time.Second,
		ShutdownTimeout: 15 * time.Second,
	}
}

// DefaultDatabaseConfig returns the persistence layer defaults.
func DefaultDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		Driver:          "postgres",
		Host:            "localhost",
		Port:            5432,
		User:            "dreddmarket",
		Password:        "",
		Name:            "dreddmarket",
		SSLMode:         "disable",
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
	}
}

// DefaultRedisConfig returns the distributed-lock backend defaults.
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:         "localhost:6379",
		Password:     "",
		DB:           0,
		PoolSize:     10,
		MinIdleConns: 2,
		LockPrefix:   "dreddmarket:thread-lock:",
	}
}

// DefaultMarketConfig returns the §6 configuration table defaults.
func DefaultMarketConfig() MarketConfig {
	return MarketConfig{
		MaxRounds:                      2,
		MaxConcurrency:                 4,
		ProviderTimeoutMS:              25000,
		MaxRetries:                     2,
		ConvergenceConfidenceThreshold: 0.1,
		ConvergenceClaimOverlap:        0.7,
		CircuitFailureThreshold:        3,
		CircuitRecoveryTimeoutMS:       30000,
		ArbiterDefault:                 ArbiterSpecConfig{Provider: "openai", Model: "gpt-4o"},
		ArbiterFallback:                ArbiterSpecConfig{Provider: "openai", Model: "gpt-4o"},
		DebugMode:                      false,
	}
}

// DefaultProvidersConfig returns the three in-scope providers, each
// enabled with the rate limits documented in §6.
func DefaultProvidersConfig() map[string]ProviderConfig {
	return map[string]ProviderConfig{
		"openai": {
			Enabled:       true,
			DefaultModel:  "gpt-4o",
			TimeoutMS:     25000,
			RateLimitRPS:  10,
			BreakerConfig: BreakerConfig{Threshold: 3, RecoveryTimeoutMS: 30000},
		},
		"anthropic": {
			Enabled:       true,
			DefaultModel:  "claude-3-5-sonnet-20241022",
			TimeoutMS:     30000,
			RateLimitRPS:  5,
			BreakerConfig: BreakerConfig{Threshold: 3, RecoveryTimeoutMS: 30000},
		},
		"gemini": {
			Enabled:       true,
			DefaultModel:  "gemini-1.5-pro",
			TimeoutMS:     25000,
			RateLimitRPS:  10,
			BreakerConfig: BreakerConfig{Threshold: 3, RecoveryTimeoutMS: 30000},
		},
	}
}

// DefaultLogConfig returns the structured-logging defaults.
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:            "info",
		Format:           "json",
		OutputPaths:      []string{"stdout"},
		EnableCaller:     true,
		EnableStacktrace: false,
	}
}

// DefaultTelemetryConfig returns the OTel defaults (disabled by default).
func DefaultTelemetryConfig() TelemetryConfig {
	return TelemetryConfig{
		Enabled:      false,
		OTLPEndpoint: "localhost:4317",
		ServiceName:  "dreddmarket-engine",
		SampleRate:   0.1,
	}
}
