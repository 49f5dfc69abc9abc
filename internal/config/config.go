// Package config loads service configuration from defaults, an optional YAML
// file and LEARNHUB_* environment variables, in that order.
package config

import (
	"errors"
	"fmt"
	"net/netip"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const envPrefix = "LEARNHUB_"

// Session backends.
const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
)

type Config struct {
	Environment      string           `yaml:"environment"`
	HTTP             HTTPConfig       `yaml:"http"`
	GRPC             GRPCConfig       `yaml:"grpc"`
	Log              LogConfig        `yaml:"log"`
	Postgres         PostgresConfig   `yaml:"postgres"`
	Redis            RedisConfig      `yaml:"redis"`
	Sessions         SessionsConfig   `yaml:"sessions"`
	Auth             AuthConfig       `yaml:"auth"`
	IdentityProvider IdentityProvider `yaml:"identity_provider"`
	RateLimit        RateLimitConfig  `yaml:"rate_limit"`
	Janitor          JanitorConfig    `yaml:"janitor"`
	Tracing          TracingConfig    `yaml:"tracing"`
}

type HTTPConfig struct {
	Addr              string        `yaml:"addr"`
	ReadTimeout       time.Duration `yaml:"read_timeout"`
	ReadHeaderTimeout time.Duration `yaml:"read_header_timeout"`
	WriteTimeout      time.Duration `yaml:"write_timeout"`
	IdleTimeout       time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout   time.Duration `yaml:"shutdown_timeout"`
	MaxBodyBytes      int64         `yaml:"max_body_bytes"`
	AllowedOrigins    []string      `yaml:"allowed_origins"`
	TrustedProxies    []string      `yaml:"trusted_proxies"`
}

// ProxyPrefixes parses TrustedProxies. Entries are CIDRs or bare addresses.
func (h HTTPConfig) ProxyPrefixes() ([]netip.Prefix, error) {
	var (
		out  []netip.Prefix
		errs []error
	)
	for _, raw := range h.TrustedProxies {
		if p, err := netip.ParsePrefix(raw); err == nil {
			out = append(out, p.Masked())
			continue
		}
		addr, err := netip.ParseAddr(raw)
		if err != nil {
			errs = append(errs, fmt.Errorf("http.trusted_proxies: %q is not an address or CIDR", raw))
			continue
		}
		addr = addr.Unmap()
		out = append(out, netip.PrefixFrom(addr, addr.BitLen()))
	}
	return out, errors.Join(errs...)
}

type GRPCConfig struct {
	// HealthAddr is where grpc.health.v1 is served. Empty disables it.
	HealthAddr string `yaml:"health_addr"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

type PostgresConfig struct {
	DSN             string        `yaml:"dsn"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	AutoMigrate     bool          `yaml:"auto_migrate"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type SessionsConfig struct {
	Backend      string        `yaml:"backend"`
	TTL          time.Duration `yaml:"ttl"`
	CookieSecure bool          `yaml:"cookie_secure"`
}

type AuthConfig struct {
	BcryptCost int `yaml:"bcrypt_cost"`
}

type IdentityProvider struct {
	Issuer       string `yaml:"issuer"`
	Audience     string `yaml:"audience"`
	HMACSecret   string `yaml:"hmac_secret"`
	PublicKeyPEM string `yaml:"public_key_pem"`
}

// Enabled reports whether third-party sign-in is configured.
func (p IdentityProvider) Enabled() bool {
	return p.HMACSecret != "" || p.PublicKeyPEM != ""
}

type RateLimitConfig struct {
	Burst     int           `yaml:"burst"`
	PerSecond float64       `yaml:"per_second"`
	IdleTTL   time.Duration `yaml:"idle_ttl"`
}

type JanitorConfig struct {
	Schedule string `yaml:"schedule"`
}

type TracingConfig struct {
	OTLPEndpoint string  `yaml:"otlp_endpoint"`
	SampleRatio  float64 `yaml:"sample_ratio"`
}

// Default returns the baseline configuration.
func Default() Config {
	return Config{
		Environment: "development",
		HTTP: HTTPConfig{
			Addr:              ":8080",
			ReadTimeout:       15 * time.Second,
			ReadHeaderTimeout: 15 * time.Second,
			WriteTimeout:      15 * time.Second,
			IdleTimeout:       60 * time.Second,
			ShutdownTimeout:   10 * time.Second,
			MaxBodyBytes:      1 << 20,
		},
		GRPC: GRPCConfig{HealthAddr: ":9090"},
		Log:  LogConfig{Level: "info"},
		Postgres: PostgresConfig{
			MaxOpenConns:    50,
			MaxIdleConns:    25,
			ConnMaxLifetime: 15 * time.Minute,
		},
		Sessions: SessionsConfig{
			Backend: BackendMemory,
			TTL:     7 * 24 * time.Hour,
		},
		Auth:      AuthConfig{BcryptCost: 10},
		RateLimit: RateLimitConfig{Burst: 40, PerSecond: 20, IdleTTL: 5 * time.Minute},
		Janitor:   JanitorConfig{Schedule: "@every 10m"},
		Tracing:   TracingConfig{SampleRatio: 1},
	}
}

// Load builds the configuration. path may be empty, in which case
// LEARNHUB_CONFIG is consulted.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		path = os.Getenv(envPrefix + "CONFIG")
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return Config{}, err
	}
	if cfg.Environment == "production" && os.Getenv(envPrefix+"COOKIE_SECURE") == "" {
		cfg.Sessions.CookieSecure = true
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// IsProduction reports whether the service runs in production mode.
func (c Config) IsProduction() bool {
	return c.Environment == "production"
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(envPrefix + key); ok {
			*dst = strings.TrimSpace(v)
		}
	}
	var errs []error
	integer := func(key string, dst *int) {
		if v, ok := lookup(envPrefix + key); ok {
			n, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", envPrefix, key, err))
				return
			}
			*dst = n
		}
	}
	boolean := func(key string, dst *bool) {
		if v, ok := lookup(envPrefix + key); ok {
			b, err := strconv.ParseBool(strings.TrimSpace(v))
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", envPrefix, key, err))
				return
			}
			*dst = b
		}
	}
	duration := func(key string, dst *time.Duration) {
		if v, ok := lookup(envPrefix + key); ok {
			d, err := time.ParseDuration(strings.TrimSpace(v))
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", envPrefix, key, err))
				return
			}
			*dst = d
		}
	}
	float := func(key string, dst *float64) {
		if v, ok := lookup(envPrefix + key); ok {
			f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", envPrefix, key, err))
				return
			}
			*dst = f
		}
	}

	str("ENV", &c.Environment)
	str("HTTP_ADDR", &c.HTTP.Addr)
	str("GRPC_HEALTH_ADDR", &c.GRPC.HealthAddr)
	str("LOG_LEVEL", &c.Log.Level)
	str("PG_DSN", &c.Postgres.DSN)
	boolean("PG_AUTO_MIGRATE", &c.Postgres.AutoMigrate)
	str("REDIS_ADDR", &c.Redis.Addr)
	str("REDIS_PASSWORD", &c.Redis.Password)
	integer("REDIS_DB", &c.Redis.DB)
	str("SESSION_BACKEND", &c.Sessions.Backend)
	duration("SESSION_TTL", &c.Sessions.TTL)
	boolean("COOKIE_SECURE", &c.Sessions.CookieSecure)
	integer("BCRYPT_COST", &c.Auth.BcryptCost)
	str("IDP_ISSUER", &c.IdentityProvider.Issuer)
	str("IDP_AUDIENCE", &c.IdentityProvider.Audience)
	str("IDP_HMAC_SECRET", &c.IdentityProvider.HMACSecret)
	str("IDP_PUBLIC_KEY_PEM", &c.IdentityProvider.PublicKeyPEM)
	integer("RATE_BURST", &c.RateLimit.Burst)
	float("RATE_PER_SECOND", &c.RateLimit.PerSecond)
	str("JANITOR_SCHEDULE", &c.Janitor.Schedule)
	str("OTLP_ENDPOINT", &c.Tracing.OTLPEndpoint)
	float("TRACE_SAMPLE_RATIO", &c.Tracing.SampleRatio)
	if v, ok := lookup(envPrefix + "CORS_ORIGINS"); ok {
		c.HTTP.AllowedOrigins = splitList(v)
	}
	if v, ok := lookup(envPrefix + "TRUSTED_PROXIES"); ok {
		c.HTTP.TrustedProxies = splitList(v)
	}
	return errors.Join(errs...)
}

// Validate reports every invalid setting at once.
func (c Config) Validate() error {
	var errs []error
	if c.HTTP.Addr == "" {
		errs = append(errs, errors.New("http.addr is required"))
	}
	if c.HTTP.MaxBodyBytes <= 0 {
		errs = append(errs, errors.New("http.max_body_bytes must be positive"))
	}
	if _, err := c.HTTP.ProxyPrefixes(); err != nil {
		errs = append(errs, err)
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("log.level %q is not one of debug, info, warn, error", c.Log.Level))
	}
	switch c.Sessions.Backend {
	case BackendMemory:
	case BackendPostgres:
		if c.Postgres.DSN == "" {
			errs = append(errs, errors.New("postgres.dsn is required for the postgres session backend"))
		}
	case BackendRedis:
		if c.Redis.Addr == "" {
			errs = append(errs, errors.New("redis.addr is required for the redis session backend"))
		}
		if c.Postgres.DSN == "" {
			errs = append(errs, errors.New("postgres.dsn is required for identity storage"))
		}
	default:
		errs = append(errs, fmt.Errorf("sessions.backend %q is not one of memory, postgres, redis", c.Sessions.Backend))
	}
	if c.Sessions.TTL <= 0 {
		errs = append(errs, errors.New("sessions.ttl must be positive"))
	}
	if c.Auth.BcryptCost < 4 || c.Auth.BcryptCost > 31 {
		errs = append(errs, fmt.Errorf("auth.bcrypt_cost %d out of range 4..31", c.Auth.BcryptCost))
	}
	if c.RateLimit.Burst <= 0 || c.RateLimit.PerSecond <= 0 {
		errs = append(errs, errors.New("rate_limit.burst and rate_limit.per_second must be positive"))
	}
	if c.IdentityProvider.Enabled() && (c.IdentityProvider.Issuer == "" || c.IdentityProvider.Audience == "") {
		errs = append(errs, errors.New("identity_provider.issuer and identity_provider.audience are required when a key is set"))
	}
	if c.Tracing.SampleRatio < 0 || c.Tracing.SampleRatio > 1 {
		errs = append(errs, errors.New("tracing.sample_ratio must be within 0..1"))
	}
	return errors.Join(errs...)
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
