package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("UPSTREAM_BASE_URL", "https://directory.internal/api")
	t.Setenv("JWT_HS256_SECRET", "c2VjcmV0LXNlY3JldC1zZWNyZXQtc2VjcmV0")
	t.Setenv("JWT_ISSUER", "sda-portal")
}

func TestLoadConfig_Defaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "production", cfg.AppEnv)
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "sda-example", cfg.ServiceName)
	assert.Equal(t, 10*time.Second, cfg.UpstreamTimeout)
	assert.Equal(t, 2*time.Second, cfg.UpstreamConnectTimeout)
	assert.Equal(t, []string{"X-Request-Id", "Trace-Token"}, cfg.GetTraceHeaders())
	assert.Equal(t, []string{"sda-portal"}, cfg.GetAllowedIssuers())
	assert.False(t, cfg.OTELEnabled)
	assert.False(t, cfg.IsDev())

	_, ok := cfg.ConsumerTokenValue()
	assert.False(t, ok)
}

func TestLoadConfig_Overrides(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("APP_ENV", "dev")
	t.Setenv("CONSUMER_TOKEN", " abc123 ")
	t.Setenv("TRACE_HEADERS", "X-Request-Id, X-B3-TraceId ,")
	t.Setenv("UPSTREAM_TIMEOUT", "1500ms")
	t.Setenv("JWT_ALLOWED_ISSUERS", "sda-portal,sda-admin")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.True(t, cfg.IsDev())
	assert.Equal(t, 1500*time.Millisecond, cfg.UpstreamTimeout)
	assert.Equal(t, []string{"X-Request-Id", "X-B3-TraceId"}, cfg.GetTraceHeaders())
	assert.Equal(t, []string{"sda-portal", "sda-admin"}, cfg.GetAllowedIssuers())

	token, ok := TokenFromConfig(cfg)
	assert.True(t, ok)
	assert.Equal(t, "abc123", token)
}

func TestLoadConfig_MissingRequired(t *testing.T) {
	t.Setenv("JWT_HS256_SECRET", "c2VjcmV0")

	_, err := LoadConfig()

	require.Error(t, err)
	assert.Contains(t, err.Error(), "UPSTREAM_BASE_URL")
}

func TestConfig_Validate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			AppEnv:          "production",
			ServiceName:     "sda-example",
			UpstreamBaseURL: "https://directory.internal",
			JWTHS256Secret:  "c2VjcmV0",
			JWTIssuer:       "sda-portal",
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"unknown env", func(c *Config) { c.AppEnv = "qa" }, "APP_ENV"},
		{"blank service name", func(c *Config) { c.ServiceName = " " }, "SERVICE_NAME"},
		{"relative upstream", func(c *Config) { c.UpstreamBaseURL = "/api" }, "UPSTREAM_BASE_URL"},
		{"ftp upstream", func(c *Config) { c.UpstreamBaseURL = "ftp://directory.internal" }, "UPSTREAM_BASE_URL"},
		{"negative timeout", func(c *Config) { c.UpstreamTimeout = -time.Second }, "UPSTREAM_TIMEOUT"},
		{"negative connect timeout", func(c *Config) { c.UpstreamConnectTimeout = -time.Second }, "UPSTREAM_CONNECT_TIMEOUT"},
		{"missing secret", func(c *Config) { c.JWTHS256Secret = "" }, "JWT_HS256_SECRET"},
		{"no issuer", func(c *Config) { c.JWTIssuer = "" }, "JWT_ALLOWED_ISSUERS"},
		{"negative skew", func(c *Config) { c.JWTClockSkewSeconds = -1 }, "JWT_CLOCK_SKEW_SECONDS"},
		{"sampling ratio", func(c *Config) { c.OTELSamplingRatio = 1.5 }, "OTEL_SAMPLING_RATIO"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestConfig_GetAllowedIssuers(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []string
	}{
		{"single", "sda-portal", []string{"sda-portal"}},
		{"multiple", "sda-portal,sda-admin,sda-batch", []string{"sda-portal", "sda-admin", "sda-batch"}},
		{"whitespace", "  sda-portal  , sda-admin ", []string{"sda-portal", "sda-admin"}},
		{"empty entries", "sda-portal,,  ,sda-admin", []string{"sda-portal", "sda-admin"}},
		{"trailing comma", "sda-portal,", []string{"sda-portal"}},
		{"duplicates kept", "a,b,a", []string{"a", "b", "a"}},
		{"empty", "", []string{}},
		{"only whitespace", "  ,  ", []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{JWTAllowedIssuers: tt.input}
			assert.Equal(t, tt.want, cfg.GetAllowedIssuers())
		})
	}
}

func TestConfig_AllowedIssuersPreferredOverIssuer(t *testing.T) {
	cfg := &Config{
		AppEnv:            "production",
		ServiceName:       "sda-example",
		UpstreamBaseURL:   "https://directory.internal",
		JWTHS256Secret:    "c2VjcmV0",
		JWTAllowedIssuers: "sda-admin",
		JWTIssuer:         "sda-portal",
	}

	require.NoError(t, cfg.Validate())
	assert.Equal(t, []string{"sda-admin"}, cfg.GetAllowedIssuers())
}
