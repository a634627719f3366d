package client

import (
	"fmt"
	"sync"
)

// ConsumerTokenProvider extracts the consumer token from the application
// configuration. ok is false when no token is configured.
type ConsumerTokenProvider[C any] func(cfg C) (token string, ok bool)

// InitialBuilder is the first stage of bundle construction.
type InitialBuilder[C any] struct{}

// NewBundle starts building a client bundle for configuration type C.
func NewBundle[C any]() *InitialBuilder[C] {
	return &InitialBuilder[C]{}
}

// WithConsumerTokenProvider sets how the consumer token is obtained.
func (b *InitialBuilder[C]) WithConsumerTokenProvider(p ConsumerTokenProvider[C]) *FinalBuilder[C] {
	return &FinalBuilder[C]{provider: p}
}

// Build creates a bundle without consumer token.
func (b *InitialBuilder[C]) Build() *Bundle[C] {
	return &Bundle[C]{}
}

// FinalBuilder is the last stage of bundle construction.
type FinalBuilder[C any] struct {
	provider ConsumerTokenProvider[C]
}

// Build creates the bundle.
func (b *FinalBuilder[C]) Build() *Bundle[C] {
	return &Bundle[C]{provider: b.provider}
}

// Bundle ties the client factory to the application lifecycle: the factory
// becomes available once Run has seen the configuration and the environment.
type Bundle[C any] struct {
	provider ConsumerTokenProvider[C]

	mu      sync.Mutex
	factory *Factory
}

// Run evaluates the token provider once and initializes the client factory
// on env with DefaultTransportBuilder.
func (b *Bundle[C]) Run(cfg C, env Environment, opts ...FactoryOption) error {
	return b.RunWithTransport(cfg, env, DefaultTransportBuilder{}, opts...)
}

// RunWithTransport is Run with a custom base transport.
func (b *Bundle[C]) RunWithTransport(cfg C, env Environment, tb TransportBuilder, opts ...FactoryOption) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.factory != nil {
		return &LifecycleError{Op: "Run", State: b.factory.State(), Err: ErrAlreadyInitialized}
	}

	var (
		token string
		ok    bool
	)
	if b.provider != nil {
		token, ok = b.provider(cfg)
	}

	f := NewFactory(opts...)
	if err := f.Initialize(env, tb, token, ok); err != nil {
		return fmt.Errorf("initialize client factory: %w", err)
	}
	b.factory = f
	return nil
}

// ClientFactory returns the factory created by Run.
func (b *Bundle[C]) ClientFactory() (*Factory, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.factory == nil {
		return nil, &LifecycleError{Op: "ClientFactory", State: StateUninitialized, Err: ErrNotInitialized}
	}
	return b.factory, nil
}
