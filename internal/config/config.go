// Package config loads service settings from GATEHOUSE_* environment variables.
package config

import (
	"errors"
	"fmt"
	"net/netip"
	"strings"
	"time"

	"github.com/joeshaw/envdecode"
)

const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"

	CredentialsStore = "store"
	CredentialsRedis = "redis"

	minSecretLength = 32
)

// Config holds process configuration. Defaults are provided via struct tags.
type Config struct {
	HTTPAddr string `env:"GATEHOUSE_HTTP_ADDR,default=:8080"`
	GRPCAddr string `env:"GATEHOUSE_GRPC_ADDR,default=:9090"`

	// Store selects the primary store: memory or postgres.
	Store       string `env:"GATEHOUSE_STORE,default=memory"`
	PostgresDSN string `env:"GATEHOUSE_PG_DSN"`
	AutoMigrate bool   `env:"GATEHOUSE_AUTO_MIGRATE,default=false"`

	// Credentials selects where refresh tokens live: store or redis.
	Credentials string `env:"GATEHOUSE_CREDENTIAL_STORE,default=store"`
	RedisAddr   string `env:"GATEHOUSE_REDIS_ADDR,default=localhost:6379"`
	RedisPrefix string `env:"GATEHOUSE_REDIS_PREFIX,default=gatehouse"`

	JWTSecret   string        `env:"GATEHOUSE_JWT_SECRET"`
	JWTIssuer   string        `env:"GATEHOUSE_JWT_ISSUER,default=gatehouse"`
	JWTAudience string        `env:"GATEHOUSE_JWT_AUDIENCE,default=gatehouse-api"`
	AccessTTL   time.Duration `env:"GATEHOUSE_ACCESS_TTL,default=60m"`
	RefreshTTL  time.Duration `env:"GATEHOUSE_REFRESH_TTL,default=168h"`

	RateLimitRPS   float64 `env:"GATEHOUSE_RATE_LIMIT_RPS,default=5"`
	RateLimitBurst int     `env:"GATEHOUSE_RATE_LIMIT_BURST,default=10"`

	// Comma-separated lists, split by Load into CORSOrigins and TrustedProxies.
	CORSOriginList   string `env:"GATEHOUSE_CORS_ORIGINS"`
	TrustedProxyList string `env:"GATEHOUSE_TRUSTED_PROXIES"`
	CORSOrigins      []string
	// TrustedProxies holds IPs or CIDRs whose X-Forwarded-For is honored.
	TrustedProxies []string

	AdminEmail    string `env:"GATEHOUSE_ADMIN_EMAIL"`
	AdminPassword string `env:"GATEHOUSE_ADMIN_PASSWORD"`

	LogLevel        string        `env:"GATEHOUSE_LOG_LEVEL,default=info"`
	ShutdownTimeout time.Duration `env:"GATEHOUSE_SHUTDOWN_TIMEOUT,default=10s"`
}

// Load decodes the environment and validates the result.
func Load() (Config, error) {
	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return Config{}, fmt.Errorf("decode env: %w", err)
	}
	cfg.Store = strings.ToLower(strings.TrimSpace(cfg.Store))
	cfg.Credentials = strings.ToLower(strings.TrimSpace(cfg.Credentials))
	cfg.CORSOrigins = splitList(cfg.CORSOriginList)
	cfg.TrustedProxies = splitList(cfg.TrustedProxyList)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports every invalid setting at once.
func (c Config) Validate() error {
	var errs []error
	if len(c.JWTSecret) < minSecretLength {
		errs = append(errs, fmt.Errorf("GATEHOUSE_JWT_SECRET must be at least %d bytes", minSecretLength))
	}
	if c.AccessTTL <= 0 {
		errs = append(errs, errors.New("GATEHOUSE_ACCESS_TTL must be positive"))
	}
	if c.RefreshTTL <= 0 {
		errs = append(errs, errors.New("GATEHOUSE_REFRESH_TTL must be positive"))
	}
	switch c.Store {
	case StoreMemory:
	case StorePostgres:
		if c.PostgresDSN == "" {
			errs = append(errs, errors.New("GATEHOUSE_PG_DSN is required for the postgres store"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown GATEHOUSE_STORE %q", c.Store))
	}
	switch c.Credentials {
	case CredentialsStore:
	case CredentialsRedis:
		if c.RedisAddr == "" {
			errs = append(errs, errors.New("GATEHOUSE_REDIS_ADDR is required for redis credentials"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown GATEHOUSE_CREDENTIAL_STORE %q", c.Credentials))
	}
	if c.RateLimitRPS < 0 || c.RateLimitBurst < 0 {
		errs = append(errs, errors.New("rate limit settings must not be negative"))
	}
	for _, p := range c.TrustedProxies {
		if _, err := netip.ParsePrefix(p); err == nil {
			continue
		}
		if _, err := netip.ParseAddr(p); err != nil {
			errs = append(errs, fmt.Errorf("GATEHOUSE_TRUSTED_PROXIES: invalid address %q", p))
		}
	}
	if (c.AdminEmail == "") != (c.AdminPassword == "") {
		errs = append(errs, errors.New("GATEHOUSE_ADMIN_EMAIL and GATEHOUSE_ADMIN_PASSWORD must be set together"))
	}
	return errors.Join(errs...)
}

// splitList splits a comma-separated value, dropping blanks.
func splitList(raw string) []string {
	fields := strings.FieldsFunc(raw, func(r rune) bool { return r == ',' })
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if f = strings.TrimSpace(f); f != "" {
			out = append(out, f)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
