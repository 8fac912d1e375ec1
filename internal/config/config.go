package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	defaultAppName         = "Timelock"
	defaultAppEnv          = "development"
	defaultPort            = "8080"
	defaultLogLevel        = "info"
	defaultShutdownDelay   = 10 * time.Second
	defaultIdempotencyTTL  = 24 * time.Hour
	defaultAccessTokenTTL  = 15 * time.Minute
	defaultKafkaTopic      = "timelock.events"
	defaultMaxLinkExpiry   = 30 * 24 * 3600
	defaultRateLimit       = 120
	defaultWorkers         = 4
	devJWTSecret           = "dev-jwt-secret"
	devVaultSecret         = "dev-vault-secret"
	idemTTLSecondsEnvVar   = "IDEMPOTENCY_TTL_SECONDS"
	idemTTLDurEnvVar       = "IDEMPOTENCY_TTL"
	shutdownSecondsEnvVar  = "SHUTDOWN_TIMEOUT_SECONDS"
	shutdownDurationEnvVar = "SHUTDOWN_TIMEOUT"
)

// Config captures application runtime configuration. Values come from the
// YAML file named by CONFIG_FILE, if any, overridden by environment variables.
type Config struct {
	AppName            string
	AppEnv             string
	Port               string
	LogLevel           string
	DatabaseURL        string
	RedisURL           string
	KafkaBrokers       []string
	KafkaTopic         string
	JWTSecret          string
	VaultSecret        string
	AccessTokenTTL     time.Duration
	ShutdownPeriod     time.Duration
	IdempotencyTTL     time.Duration
	MaxLinkExpiry      uint64
	RateLimitPerMinute int
	WorkerConcurrency  int
}

// fileConfig mirrors the YAML schema of CONFIG_FILE.
type fileConfig struct {
	App struct {
		Name     string `yaml:"name"`
		Env      string `yaml:"env"`
		Port     string `yaml:"port"`
		LogLevel string `yaml:"log_level"`
	} `yaml:"app"`
	Dependencies struct {
		DatabaseURL  string   `yaml:"database_url"`
		RedisURL     string   `yaml:"redis_url"`
		KafkaBrokers []string `yaml:"kafka_brokers"`
		KafkaTopic   string   `yaml:"kafka_topic"`
	} `yaml:"dependencies"`
	Security struct {
		JWTSecret      string `yaml:"jwt_secret"`
		VaultSecret    string `yaml:"vault_secret"`
		AccessTokenTTL string `yaml:"access_token_ttl"`
	} `yaml:"security"`
	Limits struct {
		MaxLinkExpirySeconds uint64 `yaml:"max_link_expiry_seconds"`
		RateLimitPerMinute   int    `yaml:"rate_limit_per_minute"`
		IdempotencyTTL       string `yaml:"idempotency_ttl"`
		ShutdownTimeout      string `yaml:"shutdown_timeout"`
		WorkerConcurrency    int    `yaml:"worker_concurrency"`
	} `yaml:"limits"`
}

func defaults() Config {
	return Config{
		AppName:            defaultAppName,
		AppEnv:             defaultAppEnv,
		Port:               defaultPort,
		LogLevel:           defaultLogLevel,
		KafkaTopic:         defaultKafkaTopic,
		AccessTokenTTL:     defaultAccessTokenTTL,
		ShutdownPeriod:     defaultShutdownDelay,
		IdempotencyTTL:     defaultIdempotencyTTL,
		MaxLinkExpiry:      defaultMaxLinkExpiry,
		RateLimitPerMinute: defaultRateLimit,
		WorkerConcurrency:  defaultWorkers,
	}
}

// Load reads configuration values and populates a Config instance.
func Load() (Config, error) {
	cfg := defaults()
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.overlayFile(path); err != nil {
			return Config{}, err
		}
	}

	cfg.AppName = getEnv("APP_NAME", cfg.AppName)
	cfg.AppEnv = strings.ToLower(getEnv("APP_ENV", cfg.AppEnv))
	cfg.Port = getEnv("PORT", cfg.Port)
	cfg.LogLevel = strings.ToLower(getEnv("LOG_LEVEL", cfg.LogLevel))
	cfg.DatabaseURL = getEnv("DATABASE_URL", cfg.DatabaseURL)
	cfg.RedisURL = getEnv("REDIS_URL", cfg.RedisURL)
	cfg.KafkaTopic = getEnv("KAFKA_TOPIC", cfg.KafkaTopic)
	cfg.JWTSecret = getEnv("JWT_SECRET", cfg.JWTSecret)
	cfg.VaultSecret = getEnv("VAULT_SECRET", cfg.VaultSecret)
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		cfg.KafkaBrokers = splitCSV(v)
	}

	var err error
	if cfg.ShutdownPeriod, err = durationEnv(shutdownSecondsEnvVar, shutdownDurationEnvVar, cfg.ShutdownPeriod); err != nil {
		return Config{}, err
	}
	if cfg.IdempotencyTTL, err = durationEnv(idemTTLSecondsEnvVar, idemTTLDurEnvVar, cfg.IdempotencyTTL); err != nil {
		return Config{}, err
	}
	if cfg.AccessTokenTTL, err = durationEnv("ACCESS_TOKEN_TTL_SECONDS", "ACCESS_TOKEN_TTL", cfg.AccessTokenTTL); err != nil {
		return Config{}, err
	}
	if v := os.Getenv("MAX_LINK_EXPIRY"); v != "" {
		if cfg.MaxLinkExpiry, err = strconv.ParseUint(v, 10, 64); err != nil {
			return Config{}, fmt.Errorf("invalid MAX_LINK_EXPIRY: %w", err)
		}
	}
	if v := os.Getenv("RATE_LIMIT_PER_MINUTE"); v != "" {
		if cfg.RateLimitPerMinute, err = strconv.Atoi(v); err != nil {
			return Config{}, fmt.Errorf("invalid RATE_LIMIT_PER_MINUTE: %w", err)
		}
	}
	if v := os.Getenv("WORKER_CONCURRENCY"); v != "" {
		if cfg.WorkerConcurrency, err = strconv.Atoi(v); err != nil {
			return Config{}, fmt.Errorf("invalid WORKER_CONCURRENCY: %w", err)
		}
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) overlayFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	var f fileConfig
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}

	setString(&c.AppName, f.App.Name)
	setString(&c.AppEnv, f.App.Env)
	setString(&c.Port, f.App.Port)
	setString(&c.LogLevel, f.App.LogLevel)
	setString(&c.DatabaseURL, f.Dependencies.DatabaseURL)
	setString(&c.RedisURL, f.Dependencies.RedisURL)
	setString(&c.KafkaTopic, f.Dependencies.KafkaTopic)
	setString(&c.JWTSecret, f.Security.JWTSecret)
	setString(&c.VaultSecret, f.Security.VaultSecret)
	if len(f.Dependencies.KafkaBrokers) > 0 {
		c.KafkaBrokers = f.Dependencies.KafkaBrokers
	}
	if f.Limits.MaxLinkExpirySeconds > 0 {
		c.MaxLinkExpiry = f.Limits.MaxLinkExpirySeconds
	}
	if f.Limits.RateLimitPerMinute > 0 {
		c.RateLimitPerMinute = f.Limits.RateLimitPerMinute
	}
	if f.Limits.WorkerConcurrency > 0 {
		c.WorkerConcurrency = f.Limits.WorkerConcurrency
	}
	for _, d := range []struct {
		raw  string
		into *time.Duration
	}{
		{f.Security.AccessTokenTTL, &c.AccessTokenTTL},
		{f.Limits.IdempotencyTTL, &c.IdempotencyTTL},
		{f.Limits.ShutdownTimeout, &c.ShutdownPeriod},
	} {
		if d.raw == "" {
			continue
		}
		parsed, err := time.ParseDuration(d.raw)
		if err != nil {
			return fmt.Errorf("parse config file %s: %w", path, err)
		}
		*d.into = parsed
	}
	return nil
}

func (c *Config) validate() error {
	if c.MaxLinkExpiry == 0 {
		return fmt.Errorf("MAX_LINK_EXPIRY must be positive")
	}
	if c.IsDevelopment() {
		if c.JWTSecret == "" {
			c.JWTSecret = devJWTSecret
		}
		if c.VaultSecret == "" {
			c.VaultSecret = devVaultSecret
		}
		return nil
	}

	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL must be set")
	}
	if c.RedisURL == "" {
		return fmt.Errorf("REDIS_URL must be set")
	}
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET must be set")
	}
	if c.VaultSecret == "" {
		return fmt.Errorf("VAULT_SECRET must be set")
	}
	return nil
}

// IsDevelopment reports whether the service runs in a local environment,
// where in-memory stores and development endpoints are allowed.
func (c Config) IsDevelopment() bool {
	switch c.AppEnv {
	case "development", "dev", "local", "test":
		return true
	}
	return false
}

// Address returns the listen address in the format Fiber expects.
func (c Config) Address() string {
	if strings.HasPrefix(c.Port, ":") {
		return c.Port
	}
	return fmt.Sprintf(":%s", c.Port)
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func durationEnv(secondsVar, durationVar string, fallback time.Duration) (time.Duration, error) {
	if v := os.Getenv(secondsVar); v != "" {
		seconds, err := strconv.Atoi(v)
		if err != nil {
			return 0, fmt.Errorf("invalid %s: %w", secondsVar, err)
		}
		return time.Duration(seconds) * time.Second, nil
	}
	if v := os.Getenv(durationVar); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return 0, fmt.Errorf("invalid %s: %w", durationVar, err)
		}
		return d, nil
	}
	return fallback, nil
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func splitCSV(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
