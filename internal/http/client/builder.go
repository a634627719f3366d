package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"reflect"
	"strings"
	"sync"
	"time"

	"sda-commons/internal/observability/logger"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

const (
	defaultClientName = "client"
	maxRedirects      = 10
)

type builderState int

const (
	stateCreated builderState = iota
	stateConfiguring
	stateBuilt
)

// builderConfig holds the settings collected by a ClientBuilder. The json
// tags name the fields in ConfigError.
type builderConfig struct {
	Name            string                 `json:"name" validate:"required"`
	BaseURL         string                 `json:"baseURL" validate:"required,http_url"`
	Timeout         time.Duration          `json:"timeout" validate:"gte=0"`
	ConnectTimeout  time.Duration          `json:"connectTimeout" validate:"gte=0"`
	ReadTimeout     time.Duration          `json:"readTimeout" validate:"gte=0"`
	ConsumerToken   bool                   `json:"-"`
	PassAuth        bool                   `json:"-"`
	Gzip            bool                   `json:"-"`
	FollowRedirects bool                   `json:"-"`
	TLS             *TLSOptions            `json:"-"`
	Breaker         *CircuitBreakerOptions `json:"-"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// ClientBuilder configures one outbound client. It is obtained from
// Factory.ClientBuilder and sealed by a successful Build.
//
// A configuration call on a sealed builder changes nothing: the client that
// was already built keeps its settings. The call records a UsageError,
// returned by Err and by any later Build, and logs a warning. Callers that
// reconfigure a builder must check Err.
type ClientBuilder struct {
	mu      sync.Mutex
	factory *Factory
	state   builderState
	err     error
	cfg     builderConfig
}

func newClientBuilder(f *Factory) *ClientBuilder {
	return &ClientBuilder{
		factory: f,
		state:   stateCreated,
		cfg: builderConfig{
			Name:            defaultClientName,
			FollowRedirects: true,
		},
	}
}

// mutate applies fn unless the builder is sealed.
func (b *ClientBuilder) mutate(op string, fn func(*builderConfig)) *ClientBuilder {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == stateBuilt {
		if b.err == nil {
			b.err = &UsageError{Client: b.cfg.Name, Op: op, Err: ErrBuilderSealed}
		}
		b.factory.log.Warn(context.Background(), "client builder used after build",
			logger.Module("http_client"),
			logger.Action("configure"),
			logger.Client(b.cfg.Name),
			zap.String("op", op),
		)
		return b
	}
	fn(&b.cfg)
	b.state = stateConfiguring
	return b
}

// WithName sets the name used in logs, metrics and spans.
func (b *ClientBuilder) WithName(name string) *ClientBuilder {
	return b.mutate("WithName", func(c *builderConfig) { c.Name = strings.TrimSpace(name) })
}

// WithBaseURL sets the absolute http or https URL requests are resolved against.
func (b *ClientBuilder) WithBaseURL(baseURL string) *ClientBuilder {
	return b.mutate("WithBaseURL", func(c *builderConfig) { c.BaseURL = strings.TrimSpace(baseURL) })
}

// EnableConsumerToken sends the application's consumer token with every request.
func (b *ClientBuilder) EnableConsumerToken() *ClientBuilder {
	return b.mutate("EnableConsumerToken", func(c *builderConfig) { c.ConsumerToken = true })
}

// EnableAuthenticationPassThrough forwards the inbound Authorization header.
func (b *ClientBuilder) EnableAuthenticationPassThrough() *ClientBuilder {
	return b.mutate("EnableAuthenticationPassThrough", func(c *builderConfig) { c.PassAuth = true })
}

// EnableGzip accepts gzip encoded responses.
func (b *ClientBuilder) EnableGzip() *ClientBuilder {
	return b.mutate("EnableGzip", func(c *builderConfig) { c.Gzip = true })
}

// FollowRedirects toggles redirect following. Enabled by default, capped at 10 hops.
func (b *ClientBuilder) FollowRedirects(follow bool) *ClientBuilder {
	return b.mutate("FollowRedirects", func(c *builderConfig) { c.FollowRedirects = follow })
}

// WithTimeout bounds the whole exchange, including reading the body.
func (b *ClientBuilder) WithTimeout(d time.Duration) *ClientBuilder {
	return b.mutate("WithTimeout", func(c *builderConfig) { c.Timeout = d })
}

// WithConnectTimeout bounds dialing and the TLS handshake.
func (b *ClientBuilder) WithConnectTimeout(d time.Duration) *ClientBuilder {
	return b.mutate("WithConnectTimeout", func(c *builderConfig) { c.ConnectTimeout = d })
}

// WithReadTimeout bounds the wait for response headers.
func (b *ClientBuilder) WithReadTimeout(d time.Duration) *ClientBuilder {
	return b.mutate("WithReadTimeout", func(c *builderConfig) { c.ReadTimeout = d })
}

// WithTLS overrides the TLS settings.
func (b *ClientBuilder) WithTLS(opts TLSOptions) *ClientBuilder {
	return b.mutate("WithTLS", func(c *builderConfig) { c.TLS = &opts })
}

// WithCircuitBreaker enables a circuit breaker for the client.
func (b *ClientBuilder) WithCircuitBreaker(opts CircuitBreakerOptions) *ClientBuilder {
	return b.mutate("WithCircuitBreaker", func(c *builderConfig) { c.Breaker = &opts })
}

// Err returns the usage error recorded by a call made after Build.
func (b *ClientBuilder) Err() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.err
}

// Build validates the configuration and creates the client. A builder can be
// built once.
func (b *ClientBuilder) Build() (*Client, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == stateBuilt {
		if b.err == nil {
			b.err = &UsageError{Client: b.cfg.Name, Op: "Build", Err: ErrBuilderSealed}
		}
		return nil, b.err
	}

	cfg := b.cfg
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}

	f := b.factory
	token := ""
	if cfg.ConsumerToken {
		if !f.hasToken || f.token == "" {
			return nil, &ConfigError{
				Client: cfg.Name,
				Field:  "consumerToken",
				Reason: "no consumer token is configured",
				Err:    ErrConsumerTokenMissing,
			}
		}
		token = f.token
	}

	// http_url accepted it, so it parses.
	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, &ConfigError{Client: cfg.Name, Field: "baseURL", Reason: err.Error()}
	}

	rt, err := f.transport.Build(TransportOptions{
		Name:           cfg.Name,
		ConnectTimeout: cfg.ConnectTimeout,
		ReadTimeout:    cfg.ReadTimeout,
		Gzip:           cfg.Gzip,
		TLS:            cfg.TLS,
	})
	if err != nil {
		return nil, fmt.Errorf("client %q: build transport: %w", cfg.Name, err)
	}

	rt, err = layer(rt, layerOptions{
		name:     cfg.Name,
		host:     base.Host,
		holder:   f.holder,
		token:    token,
		passAuth: cfg.PassAuth,
		breaker:  cfg.Breaker,
		log:      f.log,
		metrics:  f.metrics,
		tracer:   f.tracer,
	})
	if err != nil {
		return nil, err
	}

	httpClient := &http.Client{
		Transport:     rt,
		Timeout:       cfg.Timeout,
		CheckRedirect: redirectPolicy(cfg.FollowRedirects),
	}

	b.state = stateBuilt
	return &Client{name: cfg.Name, baseURL: base, http: httpClient}, nil
}

func validateConfig(cfg builderConfig) error {
	err := validate.Struct(cfg)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return &ConfigError{Client: cfg.Name, Field: "config", Reason: err.Error()}
	}

	fe := verrs[0]
	ce := &ConfigError{Client: cfg.Name, Field: fe.Field()}
	switch fe.Tag() {
	case "required":
		ce.Reason = "is required"
		if fe.Field() == "baseURL" {
			ce.Err = ErrBaseURLMissing
		}
	case "http_url":
		ce.Reason = "must be an absolute http or https URL"
	case "gte":
		ce.Reason = "must not be negative"
	default:
		ce.Reason = fmt.Sprintf("failed %q validation", fe.Tag())
	}
	return ce
}

func redirectPolicy(follow bool) func(req *http.Request, via []*http.Request) error {
	return func(req *http.Request, via []*http.Request) error {
		if !follow {
			return http.ErrUseLastResponse
		}
		if len(via) >= maxRedirects {
			return fmt.Errorf("stopped after %d redirects", maxRedirects)
		}
		return nil
	}
}
