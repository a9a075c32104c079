package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the path checked for YAML configuration.
const DefaultConfigFile = "switchyard.yaml"

// Load returns a Config using the hierarchy: defaults < YAML < ENV.
// YAML file is optional; missing file is not an error.
func Load() (*Config, error) {
	return LoadFrom(DefaultConfigFile)
}

// LoadFrom returns a Config loaded from the given YAML path using the
// hierarchy: defaults < YAML < ENV. The YAML file is optional.
func LoadFrom(yamlPath string) (*Config, error) {
	cfg := Defaults()

	if err := loadYAML(&cfg, yamlPath); err != nil {
		return nil, fmt.Errorf("config yaml: %w", err)
	}

	loadEnv(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validate: %w", err)
	}

	return &cfg, nil
}

// loadYAML reads the YAML file and unmarshals it over cfg.
// Returns nil if the file does not exist.
func loadYAML(cfg *Config, path string) error {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path is validated by caller
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	return nil
}

// loadEnv overlays environment variables onto cfg.
// Only non-empty env values override the current config.
func loadEnv(cfg *Config) {
	setString(&cfg.Server.Port, "SWITCHYARD_PORT")
	setString(&cfg.Server.CORSOrigin, "SWITCHYARD_CORS_ORIGIN")
	setString(&cfg.Postgres.DSN, "DATABASE_URL")
	setInt32(&cfg.Postgres.MaxConns, "SWITCHYARD_PG_MAX_CONNS")
	setInt32(&cfg.Postgres.MinConns, "SWITCHYARD_PG_MIN_CONNS")
	setDuration(&cfg.Postgres.MaxConnLifetime, "SWITCHYARD_PG_MAX_CONN_LIFETIME")
	setDuration(&cfg.Postgres.MaxConnIdleTime, "SWITCHYARD_PG_MAX_CONN_IDLE_TIME")
	setDuration(&cfg.Postgres.HealthCheck, "SWITCHYARD_PG_HEALTH_CHECK")
	setString(&cfg.NATS.URL, "NATS_URL")
	setString(&cfg.Logging.Level, "SWITCHYARD_LOG_LEVEL")
	setString(&cfg.Logging.Service, "SWITCHYARD_LOG_SERVICE")
	setBool(&cfg.Logging.Async, "SWITCHYARD_LOG_ASYNC")
	setInt(&cfg.Breaker.MaxFailures, "SWITCHYARD_BREAKER_MAX_FAILURES")
	setDuration(&cfg.Breaker.Timeout, "SWITCHYARD_BREAKER_TIMEOUT")
	setFloat64(&cfg.Rate.RequestsPerSecond, "SWITCHYARD_RATE_RPS")
	setInt(&cfg.Rate.Burst, "SWITCHYARD_RATE_BURST")
	setDuration(&cfg.Rate.CleanupInterval, "SWITCHYARD_RATE_CLEANUP_INTERVAL")
	setDuration(&cfg.Rate.MaxIdleTime, "SWITCHYARD_RATE_MAX_IDLE_TIME")

	// Router
	setInt(&cfg.Router.SimpleMaxWords, "SWITCHYARD_ROUTER_SIMPLE_MAX_WORDS")
	setInt(&cfg.Router.ComplexMinWords, "SWITCHYARD_ROUTER_COMPLEX_MIN_WORDS")
	setString(&cfg.Router.DefaultPreference, "SWITCHYARD_ROUTER_DEFAULT_PREFERENCE")
	setDuration(&cfg.Router.ProbeTimeout, "SWITCHYARD_PROBE_TIMEOUT")
	setDuration(&cfg.Router.ProbeInterval, "SWITCHYARD_PROBE_INTERVAL")
	setDuration(&cfg.Router.ProbeTTL, "SWITCHYARD_PROBE_TTL")
	setInt(&cfg.Router.MaxConcurrentProbes, "SWITCHYARD_PROBE_MAX_CONCURRENT")

	// Provider backends
	setString(&cfg.Providers.HighQualityCloud.Endpoint, "SWITCHYARD_HIGH_QUALITY_CLOUD_ENDPOINT")
	setString(&cfg.Providers.HighQualityCloud.Model, "SWITCHYARD_HIGH_QUALITY_CLOUD_MODEL")
	setString(&cfg.Providers.CheapCloud.Endpoint, "SWITCHYARD_CHEAP_CLOUD_ENDPOINT")
	setString(&cfg.Providers.CheapCloud.Model, "SWITCHYARD_CHEAP_CLOUD_MODEL")
	setString(&cfg.Providers.CodeSpecialized.Endpoint, "SWITCHYARD_CODE_SPECIALIZED_ENDPOINT")
	setString(&cfg.Providers.CodeSpecialized.Model, "SWITCHYARD_CODE_SPECIALIZED_MODEL")
	setString(&cfg.Providers.FreeLocal.Endpoint, "SWITCHYARD_FREE_LOCAL_ENDPOINT")
	setString(&cfg.Providers.FreeLocal.Model, "SWITCHYARD_FREE_LOCAL_MODEL")

	// Telemetry
	setBool(&cfg.Telemetry.Enabled, "SWITCHYARD_TELEMETRY_ENABLED")
	setString(&cfg.Telemetry.Endpoint, "SWITCHYARD_TELEMETRY_ENDPOINT")
	setFloat64(&cfg.Telemetry.SampleRatio, "SWITCHYARD_TELEMETRY_SAMPLE_RATIO")

	// MCP
	setBool(&cfg.MCP.Enabled, "SWITCHYARD_MCP_ENABLED")
	setString(&cfg.MCP.Port, "SWITCHYARD_MCP_PORT")
	setString(&cfg.MCP.APIKey, "SWITCHYARD_MCP_API_KEY")

	// Cache
	setInt64(&cfg.Cache.MaxSizeMB, "SWITCHYARD_CACHE_SIZE_MB")
}

// validate checks that required fields are set.
func validate(cfg *Config) error {
	if cfg.Server.Port == "" {
		return errors.New("server.port is required")
	}
	if cfg.Postgres.DSN == "" {
		return errors.New("postgres.dsn is required")
	}
	if cfg.NATS.URL == "" {
		return errors.New("nats.url is required")
	}
	if cfg.Postgres.MaxConns < 1 {
		return errors.New("postgres.max_conns must be >= 1")
	}
	if cfg.Breaker.MaxFailures < 1 {
		return errors.New("breaker.max_failures must be >= 1")
	}
	if cfg.Rate.Burst < 1 {
		return errors.New("rate.burst must be >= 1")
	}
	if cfg.Router.SimpleMaxWords < 1 {
		return errors.New("router.simple_max_words must be >= 1")
	}
	if cfg.Router.ComplexMinWords <= cfg.Router.SimpleMaxWords {
		return errors.New("router.complex_min_words must exceed router.simple_max_words")
	}
	switch cfg.Router.DefaultPreference {
	case "cost-first", "balanced", "quality-first":
	default:
		return fmt.Errorf("router.default_preference %q is not one of cost-first, balanced, quality-first", cfg.Router.DefaultPreference)
	}
	if cfg.Router.MaxConcurrentProbes < 1 {
		return errors.New("router.max_concurrent_probes must be >= 1")
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt32(dst *int32, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 32); err == nil {
			*dst = int32(n)
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}
