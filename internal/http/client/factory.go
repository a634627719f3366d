package client

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"

	"sda-commons/internal/http/httperr"
	"sda-commons/internal/http/middleware"
	"sda-commons/internal/observability/logger"
	"sda-commons/internal/requestctx"
	"sda-commons/internal/telemetry"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Environment is the server environment the factory registers its inbound
// middleware on. chi.Router satisfies it.
type Environment interface {
	Use(middlewares ...func(http.Handler) http.Handler)
}

// State is the lifecycle state of a Factory.
type State int32

const (
	StateUninitialized State = iota
	StateReady
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateReady:
		return "ready"
	default:
		return "unknown"
	}
}

// Factory hands out client builders once the server environment and the
// runtime configuration are known. It is created empty at bootstrap and
// initialized exactly once.
type Factory struct {
	state atomic.Int32
	mu    sync.Mutex

	holder  *requestctx.Holder
	log     *logger.Logger
	metrics *telemetry.ClientMetrics
	tracer  trace.TracerProvider
	mapper  []httperr.MapperOption

	transport TransportBuilder
	token     string
	hasToken  bool
}

// FactoryOption configures a Factory
type FactoryOption func(*Factory)

// WithLogger sets the logger used by the error mapper and client transports.
func WithLogger(log *logger.Logger) FactoryOption {
	return func(f *Factory) {
		if log != nil {
			f.log = log
		}
	}
}

// WithHolder sets the holder inbound headers are captured into.
func WithHolder(h *requestctx.Holder) FactoryOption {
	return func(f *Factory) {
		if h != nil {
			f.holder = h
		}
	}
}

// WithMetrics records outbound calls of every client built by the factory.
func WithMetrics(m *telemetry.ClientMetrics) FactoryOption {
	return func(f *Factory) { f.metrics = m }
}

// WithTracerProvider sets the provider for outbound spans. The global
// provider is used otherwise.
func WithTracerProvider(tp trace.TracerProvider) FactoryOption {
	return func(f *Factory) { f.tracer = tp }
}

// WithMapperOptions passes options to the error mapper registered by Initialize.
func WithMapperOptions(opts ...httperr.MapperOption) FactoryOption {
	return func(f *Factory) { f.mapper = append(f.mapper, opts...) }
}

// NewFactory creates an uninitialized factory.
func NewFactory(opts ...FactoryOption) *Factory {
	f := &Factory{
		holder: requestctx.NewHolder(),
		log:    logger.Nop(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Initialize registers the context capture and error mapping middleware on
// env and stores the transport builder and consumer token. It succeeds once;
// later calls return a *LifecycleError and register nothing.
//
// It must run before any route is added to env: chi refuses middleware after
// routes, and Initialize then returns a *LifecycleError wrapping
// ErrEnvironmentRejected and leaves the factory uninitialized.
func (f *Factory) Initialize(env Environment, tb TransportBuilder, token string, ok bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if State(f.state.Load()) == StateReady {
		return &LifecycleError{Op: "Initialize", State: StateReady, Err: ErrAlreadyInitialized}
	}
	if tb == nil {
		tb = DefaultTransportBuilder{}
	}

	if err := use(env,
		middleware.ContextCapture(f.holder),
		middleware.ErrorMapping(httperr.NewMapper(f.log, f.mapper...)),
	); err != nil {
		return &LifecycleError{Op: "Initialize", State: StateUninitialized, Err: err}
	}

	f.transport = tb
	f.token = token
	f.hasToken = ok && token != ""
	f.state.Store(int32(StateReady))

	f.log.Info(context.Background(), "client factory initialized",
		logger.Module("http_client"),
		logger.Action("initialize"),
		zap.Bool("consumer_token_configured", f.hasToken),
		zap.Strings("trace_headers", f.holder.TraceHeaders()),
	)
	return nil
}

// use registers mws on env, turning a panic from env into an error.
func use(env Environment, mws ...func(http.Handler) http.Handler) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("%w: %v", ErrEnvironmentRejected, p)
		}
	}()
	env.Use(mws...)
	return nil
}

// ClientBuilder returns a fresh builder. It fails with a *LifecycleError
// before Initialize.
func (f *Factory) ClientBuilder() (*ClientBuilder, error) {
	if State(f.state.Load()) != StateReady {
		return nil, &LifecycleError{Op: "ClientBuilder", State: StateUninitialized, Err: ErrNotInitialized}
	}
	return newClientBuilder(f), nil
}

// State reports the lifecycle state.
func (f *Factory) State() State {
	return State(f.state.Load())
}

// Holder returns the holder inbound headers are captured into.
func (f *Factory) Holder() *requestctx.Holder {
	return f.holder
}
