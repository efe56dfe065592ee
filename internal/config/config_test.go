package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, StoreDriverPostgres, cfg.StoreDriver)
	assert.Equal(t, "8080", cfg.HTTPPort)
	assert.Equal(t, 600*time.Second, cfg.OTPTTL)
	assert.Equal(t, int64(5), cfg.OTPIssueLimit)
	assert.Equal(t, int64(5), cfg.OTPMaxAttempts)
	assert.Equal(t, 15*time.Minute, cfg.OTPLockoutDuration)
	assert.Empty(t, cfg.OTPSecret)
	assert.Equal(t, 15*time.Minute, cfg.AccessTokenTTL)
	assert.Equal(t, []string{"*"}, cfg.CORSAllowedOrigins)
	assert.False(t, cfg.OTPExposeCode)
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("STORE_DRIVER", "memory")
	t.Setenv("OTP_TTL", "90s")
	t.Setenv("OTP_EXPOSE_CODE", "true")
	t.Setenv("CORS_ALLOWED_ORIGINS", "http://localhost:3000, https://brgy.example.ph")

	cfg, err := Load(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, StoreDriverMemory, cfg.StoreDriver)
	assert.Equal(t, 90*time.Second, cfg.OTPTTL)
	assert.True(t, cfg.OTPExposeCode)
	assert.Equal(t, []string{"http://localhost:3000", "https://brgy.example.ph"}, cfg.CORSAllowedOrigins)
}

func TestLoadFromDotEnvFile(t *testing.T) {
	dir := t.TempDir()
	content := "HTTP_PORT=9090\nLOG_LEVEL=debug\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte(content), 0o600))

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.HTTPPort)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestValidate(t *testing.T) {
	base := func() Config {
		return Config{
			DatabaseURL:     "postgres://localhost/db",
			StoreDriver:     StoreDriverPostgres,
			OTPTTL:          time.Minute,
			AccessTokenTTL:  time.Minute,
			RefreshTokenTTL: time.Hour,
			SessionTTL:      time.Hour,
		}
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{name: "valid", mutate: func(c *Config) {}, wantErr: false},
		{name: "unknown driver", mutate: func(c *Config) { c.StoreDriver = "mysql" }, wantErr: true},
		{name: "postgres without url", mutate: func(c *Config) { c.DatabaseURL = "" }, wantErr: true},
		{name: "memory without url", mutate: func(c *Config) { c.StoreDriver = StoreDriverMemory; c.DatabaseURL = "" }, wantErr: false},
		{name: "zero otp ttl", mutate: func(c *Config) { c.OTPTTL = 0 }, wantErr: true},
		{name: "negative session ttl", mutate: func(c *Config) { c.SessionTTL = -time.Second }, wantErr: true},
		{name: "negative issue limit", mutate: func(c *Config) { c.OTPIssueLimit = -1 }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := base()
			tt.mutate(&c)
			err := c.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
