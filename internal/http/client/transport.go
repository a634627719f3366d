package client

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"sda-commons/internal/http/client/clienterr"
	"sda-commons/internal/observability/logger"
	"sda-commons/internal/requestctx"
	"sda-commons/internal/telemetry"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// TLSOptions configures the client side of TLS connections.
type TLSOptions struct {
	// MinVersion defaults to TLS 1.2.
	MinVersion         uint16
	ServerName         string
	RootCAs            *x509.CertPool
	InsecureSkipVerify bool
}

// TransportOptions is what a TransportBuilder receives for every client.
type TransportOptions struct {
	Name           string
	ConnectTimeout time.Duration
	ReadTimeout    time.Duration
	Gzip           bool
	TLS            *TLSOptions
}

// TransportBuilder creates the base round tripper of a client. Platform
// concerns are layered on top of whatever it returns.
type TransportBuilder interface {
	Build(opts TransportOptions) (http.RoundTripper, error)
}

// TransportBuilderFunc adapts a function to TransportBuilder.
type TransportBuilderFunc func(opts TransportOptions) (http.RoundTripper, error)

// Build implements TransportBuilder.
func (f TransportBuilderFunc) Build(opts TransportOptions) (http.RoundTripper, error) {
	return f(opts)
}

// DefaultTransportBuilder clones http.DefaultTransport, keeping its
// connection pooling, and applies the per-client options.
type DefaultTransportBuilder struct{}

// Build implements TransportBuilder.
func (DefaultTransportBuilder) Build(opts TransportOptions) (http.RoundTripper, error) {
	base, ok := http.DefaultTransport.(*http.Transport)
	if !ok {
		return nil, errors.New("http.DefaultTransport is not an *http.Transport")
	}
	t := base.Clone()

	if opts.ConnectTimeout > 0 {
		dialer := &net.Dialer{Timeout: opts.ConnectTimeout, KeepAlive: 30 * time.Second}
		t.DialContext = dialer.DialContext
		t.TLSHandshakeTimeout = opts.ConnectTimeout
	}
	if opts.ReadTimeout > 0 {
		t.ResponseHeaderTimeout = opts.ReadTimeout
	}

	// The transport only negotiates gzip (and decompresses) when asked to.
	t.DisableCompression = !opts.Gzip

	tlsCfg := &tls.Config{MinVersion: tls.VersionTLS12}
	if opts.TLS != nil {
		if opts.TLS.MinVersion != 0 {
			tlsCfg.MinVersion = opts.TLS.MinVersion
		}
		tlsCfg.ServerName = opts.TLS.ServerName
		tlsCfg.RootCAs = opts.TLS.RootCAs
		tlsCfg.InsecureSkipVerify = opts.TLS.InsecureSkipVerify
	}
	t.TLSClientConfig = tlsCfg

	return t, nil
}

// propagationTransport adds the captured inbound headers of the current
// request to every outbound request. Precedence, lowest first: trace headers,
// consumer token, authorization pass-through, headers set by the caller.
// Consumer token and authorization are only sent to the client's own host.
type propagationTransport struct {
	base     http.RoundTripper
	holder   *requestctx.Holder
	host     string
	token    string
	passAuth bool
}

func (t *propagationTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	captured := t.holder.Current(ctx)

	header := make(http.Header, len(req.Header)+len(captured.Trace)+2)
	for name, value := range captured.Trace {
		header.Set(name, value)
	}
	if header.Get(requestctx.HeaderRequestID) == "" {
		if reqID := requestctx.RequestID(ctx); reqID != "" {
			header.Set(requestctx.HeaderRequestID, reqID)
		}
	}

	if req.URL.Host == t.host {
		if t.token != "" {
			header.Set(requestctx.HeaderConsumerToken, t.token)
		}
		if t.passAuth && captured.Authorization != "" {
			header.Set(requestctx.HeaderAuthorization, captured.Authorization)
		}
	}

	for name, values := range req.Header {
		header[name] = append([]string(nil), values...)
	}

	// Clone so the caller's request is never mutated.
	out := req.Clone(ctx)
	out.Header = header
	return t.base.RoundTrip(out)
}

// loggingTransport logs one entry per outbound call. Headers are never logged.
type loggingTransport struct {
	base http.RoundTripper
	name string
	log  *logger.Logger
}

func (t *loggingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	start := time.Now()
	resp, err := t.base.RoundTrip(req)

	fields := []zap.Field{
		logger.Module("http_client"),
		logger.Action("request"),
		logger.Client(t.name),
		zap.String("method", req.Method),
		zap.String("url", sanitizeURL(req.URL)),
		zap.Float64("latency_ms", float64(time.Since(start).Microseconds())/1000),
	}

	ctx := req.Context()
	switch {
	case err != nil:
		t.log.Warn(ctx, "outbound request failed", append(fields,
			zap.String("kind", string(clienterr.Classify(err))),
			zap.Error(err),
		)...)
	case resp.StatusCode >= 400:
		t.log.Warn(ctx, "outbound request completed", append(fields, zap.Int("status", resp.StatusCode))...)
	default:
		t.log.Debug(ctx, "outbound request completed", append(fields, zap.Int("status", resp.StatusCode))...)
	}

	return resp, err
}

// CircuitBreakerOptions configures the optional breaker of a client. The
// breaker only fails fast while open; it never retries.
type CircuitBreakerOptions struct {
	// MaxRequests allowed while half-open. Defaults to 1.
	MaxRequests uint32
	// Interval clears the failure counts while closed. Zero never clears.
	Interval time.Duration
	// Timeout is how long the breaker stays open. Defaults to 60s.
	Timeout time.Duration
	// ConsecutiveFailures trips the breaker. Defaults to 5.
	ConsecutiveFailures uint32
}

var errServerError = errors.New("upstream server error")

// breakerTransport counts transport failures and 5xx responses.
type breakerTransport struct {
	base http.RoundTripper
	cb   *gobreaker.CircuitBreaker
}

func newBreakerTransport(base http.RoundTripper, name string, opts CircuitBreakerOptions, log *logger.Logger) *breakerTransport {
	failures := opts.ConsecutiveFailures
	if failures == 0 {
		failures = 5
	}

	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: opts.MaxRequests,
		Interval:    opts.Interval,
		Timeout:     opts.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn(context.Background(), "circuit breaker state changed",
				logger.Module("http_client"),
				logger.Action("circuit_breaker"),
				logger.Client(name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
	}

	return &breakerTransport{base: base, cb: gobreaker.NewCircuitBreaker(settings)}
}

func (t *breakerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	var resp *http.Response
	_, err := t.cb.Execute(func() (interface{}, error) {
		r, err := t.base.RoundTrip(req)
		if err != nil {
			return nil, err
		}
		resp = r
		if r.StatusCode >= 500 {
			return r, errServerError
		}
		return r, nil
	})
	if resp != nil {
		return resp, nil
	}
	return nil, err
}

// metricsTransport records the outbound call in prometheus.
type metricsTransport struct {
	base    http.RoundTripper
	name    string
	metrics *telemetry.ClientMetrics
}

func (t *metricsTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	start := time.Now()
	resp, err := t.base.RoundTrip(req)

	var status string
	if err != nil {
		status = string(clienterr.Classify(err))
	} else {
		status = telemetry.StatusLabel(resp.StatusCode)
	}
	t.metrics.Observe(t.name, req.Method, status, time.Since(start))

	return resp, err
}

type layerOptions struct {
	name     string
	host     string
	holder   *requestctx.Holder
	token    string
	passAuth bool
	breaker  *CircuitBreakerOptions
	log      *logger.Logger
	metrics  *telemetry.ClientMetrics
	tracer   trace.TracerProvider
}

// layer wraps base with the platform round trippers, innermost first:
// propagation, logging, circuit breaker, metrics, tracing.
func layer(base http.RoundTripper, opts layerOptions) (http.RoundTripper, error) {
	if base == nil {
		return nil, fmt.Errorf("transport builder returned a nil round tripper for client %q", opts.name)
	}

	var rt http.RoundTripper = &propagationTransport{
		base:     base,
		holder:   opts.holder,
		host:     opts.host,
		token:    opts.token,
		passAuth: opts.passAuth,
	}
	rt = &loggingTransport{base: rt, name: opts.name, log: opts.log}
	if opts.breaker != nil {
		rt = newBreakerTransport(rt, opts.name, *opts.breaker, opts.log)
	}
	if opts.metrics != nil {
		rt = &metricsTransport{base: rt, name: opts.name, metrics: opts.metrics}
	}

	otelOpts := []otelhttp.Option{
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return fmt.Sprintf("%s %s", opts.name, r.Method)
		}),
	}
	if opts.tracer != nil {
		otelOpts = append(otelOpts, otelhttp.WithTracerProvider(opts.tracer))
	}
	return otelhttp.NewTransport(rt, otelOpts...), nil
}
