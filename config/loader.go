// =============================================================================
// Config loader
// =============================================================================
// Unified configuration loading: YAML file + environment variable overrides.
//
// Usage:
//
//	cfg, err := config.NewLoader().
//	    WithConfigPath("config.yaml").
//	    WithEnvPrefix("MARKET").
//	    Load()
//
// Precedence: defaults -> YAML file -> environment variables.
// =============================================================================
package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the engine's complete configuration.
type Config struct {
	Server    ServerConfig              `yaml:"server" env:"SERVER"`
	Database  DatabaseConfig            `yaml:"database" env:"DATABASE"`
	Redis     RedisConfig               `yaml:"redis" env:"REDIS"`
	Market    MarketConfig              `yaml:"market" env:"MARKET"`
	Providers map[string]ProviderConfig `yaml:"providers" env:"-"`
	Log       LogConfig                 `yaml:"log" env:"LOG"`
	Telemetry TelemetryConfig           `yaml:"telemetry" env:"TELEMETRY"`
}

// ServerConfig configures the process's health/metrics listener.
type ServerConfig struct {
	HealthPort      int           `yaml:"health_port" env:"HEALTH_PORT"`
	MetricsPort     int           `yaml:"metrics_port" env:"METRICS_PORT"`
	ReadTimeout     time.Duration `yaml:"read_timeout" env:"READ_TIMEOUT"`
	WriteTimeout    time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
}

// DatabaseConfig configures the persistence layer (component I).
type DatabaseConfig struct {
	Driver          string        `yaml:"driver" env:"DRIVER"`
	Host            string        `yaml:"host" env:"HOST"`
	Port            int           `yaml:"port" env:"PORT"`
	User            string        `yaml:"user" env:"USER"`
	Password        string        `yaml:"password" env:"PASSWORD"`
	Name            string        `yaml:"name" env:"NAME"`
	SSLMode         string        `yaml:"ssl_mode" env:"SSL_MODE"`
	MaxOpenConns    int           `yaml:"max_open_conns" env:"MAX_OPEN_CONNS"`
	MaxIdleConns    int           `yaml:"max_idle_conns" env:"MAX_IDLE_CONNS"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" env:"CONN_MAX_LIFETIME"`
}

// DSN returns the database connection string for d.Driver.
func (d *DatabaseConfig) DSN() string {
	switch d.Driver {
	case "postgres":
		return fmt.Sprintf(
			"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode,
		)
	case "mysql":
		return fmt.Sprintf(
			"%s:%s@tcp(%s:%d)/%s?parseTime=true",
			d.User, d.Password, d.Host, d.Port, d.Name,
		)
	case "sqlite":
		return d.Name
	default:
		return ""
	}
}

// RedisConfig configures the backend behind the distributed per-thread
// run lock (internal/distlock) — not a response cache; caching model
// responses remains an explicit non-goal.
type RedisConfig struct {
	Addr         string `yaml:"addr" env:"ADDR"`
	Password     string `yaml:"password" env:"PASSWORD"`
	DB           int    `yaml:"db" env:"DB"`
	PoolSize     int    `yaml:"pool_size" env:"POOL_SIZE"`
	MinIdleConns int    `yaml:"min_idle_conns" env:"MIN_IDLE_CONNS"`
	LockPrefix   string `yaml:"lock_prefix" env:"LOCK_PREFIX"`
}

// ArbiterSpecConfig names a provider+model pair used as an arbiter.
type ArbiterSpecConfig struct {
	Provider string `yaml:"provider" env:"PROVIDER"`
	Model    string `yaml:"model" env:"MODEL"`
}

// MarketConfig is the §6 configuration table: the coordinator's (G)
// round budget, concurrency cap, and convergence/circuit thresholds.
type MarketConfig struct {
	MaxRounds                      int               `yaml:"max_rounds" env:"MAX_ROUNDS"`
	MaxConcurrency                 int               `yaml:"max_concurrency" env:"MAX_CONCURRENCY"`
	ProviderTimeoutMS              int               `yaml:"provider_timeout_ms" env:"PROVIDER_TIMEOUT_MS"`
	MaxRetries                     int               `yaml:"max_retries" env:"MAX_RETRIES"`
	ConvergenceConfidenceThreshold float64           `yaml:"convergence_confidence_threshold" env:"CONVERGENCE_CONFIDENCE_THRESHOLD"`
	ConvergenceClaimOverlap        float64           `yaml:"convergence_claim_overlap" env:"CONVERGENCE_CLAIM_OVERLAP"`
	CircuitFailureThreshold        int               `yaml:"circuit_failure_threshold" env:"CIRCUIT_FAILURE_THRESHOLD"`
	CircuitRecoveryTimeoutMS       int               `yaml:"circuit_recovery_timeout_ms" env:"CIRCUIT_RECOVERY_TIMEOUT_MS"`
	ArbiterDefault                 ArbiterSpecConfig `yaml:"arbiter_default" env:"ARBITER_DEFAULT"`
	ArbiterFallback                ArbiterSpecConfig `yaml:"arbiter_fallback" env:"ARBITER_FALLBACK"`
	DebugMode                      bool              `yaml:"debug_mode" env:"DEBUG_MODE"`
	MaxInFlightRuns                int               `yaml:"max_in_flight_runs" env:"MAX_IN_FLIGHT_RUNS"`
}

// BreakerConfig is the per-provider circuit breaker override (component C).
type BreakerConfig struct {
	Threshold         int `yaml:"threshold" env:"THRESHOLD"`
	RecoveryTimeoutMS int `yaml:"recovery_timeout_ms" env:"RECOVERY_TIMEOUT_MS"`
}

// ProviderConfig is the per-provider-tag override block (§6): enablement,
// credentials, default model, timeout, rate limit and breaker overrides.
type ProviderConfig struct {
	Enabled       bool          `yaml:"enabled" env:"ENABLED"`
	APIKey        string        `yaml:"api_key" env:"API_KEY"`
	BaseURL       string        `yaml:"base_url" env:"BASE_URL"`
	DefaultModel  string        `yaml:"default_model" env:"DEFAULT_MODEL"`
	TimeoutMS     int           `yaml:"timeout_ms" env:"TIMEOUT_MS"`
	RateLimitRPS  float64       `yaml:"rate_limit_rps" env:"RATE_LIMIT_RPS"`
	BreakerConfig BreakerConfig `yaml:"breaker" env:"BREAKER"`
}

// LogConfig configures the process-wide zap.Logger.
type LogConfig struct {
	Level            string   `yaml:"level" env:"LEVEL"`
	Format           string   `yaml:"format" env:"FORMAT"`
	OutputPaths      []string `yaml:"output_paths" env:"OUTPUT_PATHS"`
	EnableCaller     bool     `yaml:"enable_caller" env:"ENABLE_CALLER"`
	EnableStacktrace bool     `yaml:"enable_stacktrace" env:"ENABLE_STACKTRACE"`
}

// TelemetryConfig configures the OTel SDK (internal/telemetry.Init).
type TelemetryConfig struct {
	Enabled      bool    `yaml:"enabled" env:"ENABLED"`
	OTLPEndpoint string  `yaml:"otlp_endpoint" env:"OTLP_ENDPOINT"`
	ServiceName  string  `yaml:"service_name" env:"SERVICE_NAME"`
	SampleRate   float64 `yaml:"sample_rate" env:"SAMPLE_RATE"`
}

// =============================================================================
// Loader (builder pattern)
// =============================================================================

// Loader builds a Config from the layered default -> file -> env sources.
type Loader struct {
	configPath string
	envPrefix  string
	validators []func(*Config) error
}

// NewLoader creates a loader with the engine's default env prefix.
func NewLoader() *Loader {
	return &Loader{
		envPrefix:  "MARKET",
		validators: make([]func(*Config) error, 0),
	}
}

// WithConfigPath sets the YAML config file path.
func (l *Loader) WithConfigPath(path string) *Loader {
	l.configPath = path
	return l
}

// WithEnvPrefix overrides the environment variable prefix.
func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

// WithValidator registers an additional config validator.
func (l *Loader) WithValidator(v func(*Config) error) *Loader {
	l.validators = append(l.validators, v)
	return l
}

// Load builds the Config: defaults -> YAML file -> environment variables,
// then runs every registered validator.
func (l *Loader) Load() (*Config, error) {
	cfg := DefaultConfig()

	if l.configPath != "" {
		if err := l.loadFromFile(cfg); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	if err := l.loadFromEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	for _, v := range l.validators {
		if err := v(cfg); err != nil {
			return nil, fmt.Errorf("config validation failed: %w", err)
		}
	}

	return cfg, nil
}

func (l *Loader) loadFromFile(cfg *Config) error {
	data, err := os.ReadFile(l.configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

func (l *Loader) loadFromEnv(cfg *Config) error {
	return l.setFieldsFromEnv(reflect.ValueOf(cfg).Elem(), l.envPrefix)
}

// setFieldsFromEnv recursively walks cfg's struct tree, applying any
// matching MARKET_<PATH> environment variable onto its `env`-tagged field.
func (l *Loader) setFieldsFromEnv(v reflect.Value, prefix string) error {
	t := v.Type()

	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		fieldType := t.Field(i)

		envTag := fieldType.Tag.Get("env")
		if envTag == "" || envTag == "-" {
			continue
		}

		envKey := prefix + "_" + envTag

		if field.Kind() == reflect.Struct {
			if err := l.setFieldsFromEnv(field, envKey); err != nil {
				return err
			}
			continue
		}

		envValue := os.Getenv(envKey)
		if envValue == "" {
			continue
		}

		if err := setFieldValue(field, envValue); err != nil {
			return fmt.Errorf("failed to set %s: %w", envKey, err)
		}
	}

	return nil
}

func setFieldValue(field reflect.Value, value string) error {
	if !field.CanSet() {
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(value)
			if err != nil {
				return err
			}
			field.SetInt(int64(d))
		} else {
			i, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return err
			}
			field.SetInt(i)
		}

	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		u, err := strconv.ParseUint(value, 10, 64)
		if err != nil {
			return err
		}
		field.SetUint(u)

	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		field.SetFloat(f)

	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(b)

	case reflect.Slice:
		if field.Type().Elem().Kind() == reflect.String {
			parts := strings.Split(value, ",")
			for i := range parts {
				parts[i] = strings.TrimSpace(parts[i])
			}
			field.Set(reflect.ValueOf(parts))
		}
	}

	return nil
}

// =============================================================================
// Helpers
// =============================================================================

// MustLoad loads the config at path, panicking on failure.
func MustLoad(path string) *Config {
	cfg, err := NewLoader().WithConfigPath(path).Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}
	return cfg
}

// LoadFromEnv loads the config from environment variables only.
func LoadFromEnv() (*Config, error) {
	return NewLoader().Load()
}

// Validate enforces basic numeric/range sanity before the process
// accepts traffic, per SPEC_FULL.md §10.1.
func (c *Config) Validate() error {
	var errs []string

	if c.Server.HealthPort <= 0 || c.Server.HealthPort > 65535 {
		errs = append(errs, "invalid health port")
	}
	if c.Server.MetricsPort <= 0 || c.Server.MetricsPort > 65535 {
		errs = append(errs, "invalid metrics port")
	}
	if c.Market.MaxRounds <= 0 {
		errs = append(errs, "market.max_rounds must be positive")
	}
	if c.Market.MaxConcurrency <= 0 {
		errs = append(errs, "market.max_concurrency must be positive")
	}
	if c.Market.ProviderTimeoutMS <= 0 {
		errs = append(errs, "market.provider_timeout_ms must be positive")
	}
	if c.Market.ConvergenceConfidenceThreshold < 0 || c.Market.ConvergenceConfidenceThreshold > 1 {
		errs = append(errs, "market.convergence_confidence_threshold must be in [0,1]")
	}
	if c.Market.ConvergenceClaimOverlap < 0 || c.Market.ConvergenceClaimOverlap > 1 {
		errs = append(errs, "market.convergence_claim_overlap must be in [0,1]")
	}
	if c.Telemetry.SampleRate < 0 || c.Telemetry.SampleRate > 1 {
		errs = append(errs, "telemetry.sample_rate must be in [0,1]")
	}

	hasEnabled := false
	for tag, p := range c.Providers {
		if !p.Enabled {
			continue
		}
		hasEnabled = true
		if p.DefaultModel == "" {
			errs = append(errs, fmt.Sprintf("providers.%s.default_model is required when enabled", tag))
		}
	}
	if len(c.Providers) > 0 && !hasEnabled {
		errs = append(errs, "at least one provider must be enabled")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors: %s", strings.Join(errs, "; "))
	}

	return nil
}
