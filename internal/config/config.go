package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds all application configuration
type Config struct {
	// Application
	AppEnv         string `env:"APP_ENV" envDefault:"production"`
	ServiceName    string `env:"SERVICE_NAME" envDefault:"sda-example"`
	ServiceVersion string `env:"SERVICE_VERSION" envDefault:"1.0.0"`
	LogLevel       string `env:"LOG_LEVEL" envDefault:"info"`

	// Server
	Port string `env:"PORT" envDefault:"8080"`

	// Platform clients
	ConsumerToken string   `env:"CONSUMER_TOKEN"`
	TraceHeaders  []string `env:"TRACE_HEADERS" envSeparator:"," envDefault:"X-Request-Id,Trace-Token"`

	// Upstream directory service
	UpstreamBaseURL        string        `env:"UPSTREAM_BASE_URL,required"`
	UpstreamTimeout        time.Duration `env:"UPSTREAM_TIMEOUT" envDefault:"10s"`
	UpstreamConnectTimeout time.Duration `env:"UPSTREAM_CONNECT_TIMEOUT" envDefault:"2s"`
	UpstreamHealthPath     string        `env:"UPSTREAM_HEALTH_PATH" envDefault:"/health"`
	UpstreamCircuitBreaker bool          `env:"UPSTREAM_CIRCUIT_BREAKER" envDefault:"false"`

	// JWT Configuration
	JWTHS256Secret      string `env:"JWT_HS256_SECRET,required"` // Base64-encoded HMAC secret
	JWTAllowedIssuers   string `env:"JWT_ALLOWED_ISSUERS"`       // CSV list of allowed issuers
	JWTIssuer           string `env:"JWT_ISSUER"`                // Single issuer, used when JWT_ALLOWED_ISSUERS is empty
	JWTAudience         string `env:"JWT_AUDIENCE"`
	JWTClockSkewSeconds int    `env:"JWT_CLOCK_SKEW_SECONDS" envDefault:"60"`

	// Metrics endpoint protection (production only)
	MetricsToken string `env:"METRICS_TOKEN"`

	// OpenTelemetry
	OTELEnabled          bool    `env:"OTEL_ENABLED" envDefault:"false"`
	OTELExporterEndpoint string  `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:"localhost:4317"`
	OTELSamplingRatio    float64 `env:"OTEL_SAMPLING_RATIO" envDefault:"0.1"`
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate performs custom validation on the configuration
func (c *Config) Validate() error {
	switch c.AppEnv {
	case "dev", "development", "test", "staging", "production":
	default:
		return fmt.Errorf("APP_ENV %q is not one of dev, development, test, staging, production", c.AppEnv)
	}

	if strings.TrimSpace(c.ServiceName) == "" {
		return fmt.Errorf("SERVICE_NAME is required")
	}

	u, err := url.Parse(c.UpstreamBaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("UPSTREAM_BASE_URL must be an absolute http or https URL")
	}

	if c.UpstreamTimeout < 0 {
		return fmt.Errorf("UPSTREAM_TIMEOUT must be non-negative")
	}
	if c.UpstreamConnectTimeout < 0 {
		return fmt.Errorf("UPSTREAM_CONNECT_TIMEOUT must be non-negative")
	}

	if c.JWTHS256Secret == "" {
		return fmt.Errorf("JWT_HS256_SECRET is required")
	}

	if c.JWTAllowedIssuers == "" {
		c.JWTAllowedIssuers = c.JWTIssuer
	}
	if len(c.GetAllowedIssuers()) == 0 {
		return fmt.Errorf("JWT_ALLOWED_ISSUERS (or JWT_ISSUER) must contain at least one valid issuer")
	}

	if c.JWTClockSkewSeconds < 0 {
		return fmt.Errorf("JWT_CLOCK_SKEW_SECONDS must be non-negative")
	}

	if c.OTELSamplingRatio < 0 || c.OTELSamplingRatio > 1 {
		return fmt.Errorf("OTEL_SAMPLING_RATIO must be between 0 and 1")
	}

	return nil
}

// IsDev reports whether the service runs in a development environment.
func (c *Config) IsDev() bool {
	return c.AppEnv == "dev" || c.AppEnv == "development"
}

// GetAllowedIssuers returns the list of allowed JWT issuers
func (c *Config) GetAllowedIssuers() []string {
	return splitCSV(c.JWTAllowedIssuers)
}

// GetTraceHeaders returns the trace header names to capture, trimmed.
func (c *Config) GetTraceHeaders() []string {
	return splitCSV(strings.Join(c.TraceHeaders, ","))
}

// ConsumerTokenValue reports the consumer token, if one is configured.
func (c *Config) ConsumerTokenValue() (string, bool) {
	token := strings.TrimSpace(c.ConsumerToken)
	return token, token != ""
}

// TokenFromConfig is the consumer token provider for Config.
func TokenFromConfig(c *Config) (string, bool) {
	return c.ConsumerTokenValue()
}

func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}
