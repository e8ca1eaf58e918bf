package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	// DefaultConfigFile is the path checked for YAML configuration.
	DefaultConfigFile = "tenantforge.yaml"
	// DefaultEnvFile is loaded into the process environment when present.
	DefaultEnvFile = ".env"
)

// Load returns a Config using the hierarchy: defaults < YAML < .env < ENV.
// Both files are optional.
func Load() (*Config, error) {
	return LoadFrom(DefaultConfigFile, DefaultEnvFile)
}

// LoadFrom returns a Config loaded from the given YAML path. Each envFile is
// loaded into the environment without overriding variables that are already
// set, then the environment is overlaid.
func LoadFrom(yamlPath string, envFiles ...string) (*Config, error) {
	cfg := Defaults()

	if err := loadYAML(&cfg, yamlPath); err != nil {
		return nil, fmt.Errorf("config yaml: %w", err)
	}

	if err := loadDotEnv(envFiles...); err != nil {
		return nil, fmt.Errorf("config env file: %w", err)
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
	data, err := os.ReadFile(path) //nolint:gosec // G304: path comes from the operator
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

func loadDotEnv(paths ...string) error {
	for _, p := range paths {
		if p == "" {
			continue
		}
		if _, err := os.Stat(p); errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return fmt.Errorf("load %s: %w", p, err)
		}
	}
	return nil
}

// loadEnv overlays environment variables onto cfg.
// Only non-empty env values override the current config.
func loadEnv(cfg *Config) {
	setString(&cfg.Server.Port, "TENANTFORGE_PORT")
	setString(&cfg.Server.CORSOrigin, "TENANTFORGE_CORS_ORIGIN")
	setString(&cfg.Server.PublicURL, "TENANTFORGE_PUBLIC_URL")
	setDuration(&cfg.Server.ShutdownTimeout, "TENANTFORGE_SHUTDOWN_TIMEOUT")

	setString(&cfg.Postgres.DSN, "DATABASE_URL")
	setInt32(&cfg.Postgres.MaxConns, "TENANTFORGE_PG_MAX_CONNS")
	setInt32(&cfg.Postgres.MinConns, "TENANTFORGE_PG_MIN_CONNS")
	setDuration(&cfg.Postgres.MaxConnLifetime, "TENANTFORGE_PG_MAX_CONN_LIFETIME")
	setDuration(&cfg.Postgres.MaxConnIdleTime, "TENANTFORGE_PG_MAX_CONN_IDLE_TIME")
	setDuration(&cfg.Postgres.HealthCheck, "TENANTFORGE_PG_HEALTH_CHECK")

	setString(&cfg.NATS.URL, "NATS_URL")
	setString(&cfg.NATS.Stream, "TENANTFORGE_NATS_STREAM")

	setString(&cfg.Logging.Level, "TENANTFORGE_LOG_LEVEL")
	setString(&cfg.Logging.Service, "TENANTFORGE_LOG_SERVICE")
	setBool(&cfg.Logging.Async, "TENANTFORGE_LOG_ASYNC")

	setInt(&cfg.Breaker.MaxFailures, "TENANTFORGE_BREAKER_MAX_FAILURES")
	setDuration(&cfg.Breaker.Timeout, "TENANTFORGE_BREAKER_TIMEOUT")

	setFloat64(&cfg.Rate.RequestsPerSecond, "TENANTFORGE_RATE_RPS")
	setInt(&cfg.Rate.Burst, "TENANTFORGE_RATE_BURST")

	// Payments
	setString(&cfg.Payments.BaseURL, "TENANTFORGE_PAYMENT_BASE_URL")
	setString(&cfg.Payments.KeyID, "TENANTFORGE_PAYMENT_KEY_ID")
	setString(&cfg.Payments.Currency, "TENANTFORGE_PAYMENT_CURRENCY")
	setDuration(&cfg.Payments.UpstreamTimeout, "TENANTFORGE_PAYMENT_TIMEOUT")
	setDuration(&cfg.Payments.DedupeTTL, "TENANTFORGE_PAYMENT_DEDUPE_TTL")
	setInt(&cfg.Payments.MaxInFlight, "TENANTFORGE_PAYMENT_MAX_IN_FLIGHT")

	// Activation
	setDuration(&cfg.Activation.SignupTTL, "TENANTFORGE_SIGNUP_TTL")
	setDuration(&cfg.Activation.ResendTTL, "TENANTFORGE_RESEND_TTL")
	setInt(&cfg.Activation.BcryptCost, "TENANTFORGE_BCRYPT_COST")

	// Session
	setString(&cfg.Session.Issuer, "TENANTFORGE_SESSION_ISSUER")
	setDuration(&cfg.Session.TTL, "TENANTFORGE_SESSION_TTL")
	setBool(&cfg.Session.CookieSecure, "TENANTFORGE_SESSION_COOKIE_SECURE")

	// Routing
	setString(&cfg.Routing.LegacyOwnerID, "TENANTFORGE_LEGACY_OWNER_ID")
	setString(&cfg.Routing.LegacyPrefix, "TENANTFORGE_LEGACY_PREFIX")
	setString(&cfg.Routing.TenantPrefix, "TENANTFORGE_TENANT_PREFIX")

	// Mail
	setString(&cfg.Mail.Host, "TENANTFORGE_SMTP_HOST")
	setInt(&cfg.Mail.Port, "TENANTFORGE_SMTP_PORT")
	setString(&cfg.Mail.From, "TENANTFORGE_SMTP_FROM")
	setString(&cfg.Mail.Username, "TENANTFORGE_SMTP_USERNAME")
	setInt(&cfg.Mail.Attempts, "TENANTFORGE_MAIL_ATTEMPTS")
	setInt(&cfg.Mail.MaxDeliver, "TENANTFORGE_MAIL_MAX_DELIVER")

	// Cache
	setInt64(&cfg.Cache.L1MaxSizeMB, "TENANTFORGE_CACHE_L1_SIZE_MB")
	setString(&cfg.Cache.L2Bucket, "TENANTFORGE_CACHE_L2_BUCKET")
	setDuration(&cfg.Cache.L2TTL, "TENANTFORGE_CACHE_L2_TTL")

	// Otel
	setBool(&cfg.Otel.Enabled, "TENANTFORGE_OTEL_ENABLED")
	setString(&cfg.Otel.Endpoint, "OTEL_EXPORTER_OTLP_ENDPOINT")
	setBool(&cfg.Otel.Insecure, "TENANTFORGE_OTEL_INSECURE")
	setFloat64(&cfg.Otel.SampleRate, "TENANTFORGE_OTEL_SAMPLE_RATE")
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
	if cfg.Activation.SignupTTL <= 0 || cfg.Activation.ResendTTL <= 0 {
		return errors.New("activation ttls must be positive")
	}
	if cfg.Session.TTL <= 0 {
		return errors.New("session.ttl must be positive")
	}
	if cfg.Payments.UpstreamTimeout <= 0 {
		return errors.New("payments.upstream_timeout must be positive")
	}
	if cfg.Routing.LegacyPrefix == "" || cfg.Routing.TenantPrefix == "" {
		return errors.New("routing prefixes are required")
	}
	if cfg.Routing.LegacyPrefix == cfg.Routing.TenantPrefix {
		return errors.New("routing.legacy_prefix and routing.tenant_prefix must differ")
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

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
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
