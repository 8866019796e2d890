package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const secret = "0123456789abcdef0123456789abcdef"

func TestLoadDefaults(t *testing.T) {
	t.Setenv("GATEHOUSE_JWT_SECRET", secret)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, ":9090", cfg.GRPCAddr)
	assert.Equal(t, StoreMemory, cfg.Store)
	assert.Equal(t, CredentialsStore, cfg.Credentials)
	assert.Equal(t, "gatehouse", cfg.JWTIssuer)
	assert.Equal(t, "gatehouse-api", cfg.JWTAudience)
	assert.Equal(t, time.Hour, cfg.AccessTTL)
	assert.Equal(t, 7*24*time.Hour, cfg.RefreshTTL)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("GATEHOUSE_JWT_SECRET", secret)
	t.Setenv("GATEHOUSE_STORE", "Postgres")
	t.Setenv("GATEHOUSE_PG_DSN", "postgres://localhost/gatehouse")
	t.Setenv("GATEHOUSE_CREDENTIAL_STORE", "redis")
	t.Setenv("GATEHOUSE_ACCESS_TTL", "15m")
	t.Setenv("GATEHOUSE_CORS_ORIGINS", "https://a.example, https://b.example,,")
	t.Setenv("GATEHOUSE_TRUSTED_PROXIES", "10.0.0.0/8,192.0.2.1")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, StorePostgres, cfg.Store)
	assert.Equal(t, CredentialsRedis, cfg.Credentials)
	assert.Equal(t, 15*time.Minute, cfg.AccessTTL)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSOrigins)
	assert.Equal(t, []string{"10.0.0.0/8", "192.0.2.1"}, cfg.TrustedProxies)
}

func TestLoadSingleCORSOrigin(t *testing.T) {
	t.Setenv("GATEHOUSE_JWT_SECRET", secret)
	t.Setenv("GATEHOUSE_CORS_ORIGINS", "https://only.example")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"https://only.example"}, cfg.CORSOrigins)
	assert.Nil(t, cfg.TrustedProxies)
}

func TestLoadRejectsBadTrustedProxy(t *testing.T) {
	t.Setenv("GATEHOUSE_JWT_SECRET", secret)
	t.Setenv("GATEHOUSE_TRUSTED_PROXIES", "10.0.0.0/8,proxy.internal")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "proxy.internal")
}

func TestLoadRejectsWeakSecret(t *testing.T) {
	t.Setenv("GATEHOUSE_JWT_SECRET", "short")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "GATEHOUSE_JWT_SECRET")
}

func TestValidate(t *testing.T) {
	valid := Config{
		Store:       StoreMemory,
		Credentials: CredentialsStore,
		JWTSecret:   secret,
		AccessTTL:   time.Minute,
		RefreshTTL:  time.Hour,
	}
	require.NoError(t, valid.Validate())

	tests := map[string]func(c *Config){
		"postgres without dsn": func(c *Config) { c.Store = StorePostgres },
		"unknown store":        func(c *Config) { c.Store = "sqlite" },
		"unknown credentials":  func(c *Config) { c.Credentials = "vault" },
		"zero access ttl":      func(c *Config) { c.AccessTTL = 0 },
		"negative refresh ttl": func(c *Config) { c.RefreshTTL = -time.Second },
		"admin email only":     func(c *Config) { c.AdminEmail = "root@example.com" },
		"negative burst":       func(c *Config) { c.RateLimitBurst = -1 },
	}
	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			c := valid
			mutate(&c)
			require.Error(t, c.Validate())
		})
	}
}
