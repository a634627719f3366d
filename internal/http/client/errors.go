package client

import (
	"errors"
	"fmt"
)

// Sentinel errors for errors.Is checks.
var (
	ErrNotInitialized       = errors.New("client factory is not initialized")
	ErrAlreadyInitialized   = errors.New("client factory is already initialized")
	ErrEnvironmentRejected  = errors.New("environment rejected the client middleware")
	ErrBuilderSealed        = errors.New("client builder was already built")
	ErrBaseURLMissing       = errors.New("base URL is missing")
	ErrConsumerTokenMissing = errors.New("consumer token is enabled but no token is configured")
	ErrInvalidConfig        = errors.New("invalid client configuration")
)

// ConfigError reports an invalid client configuration detected by Build.
// Field names the offending setting (baseURL, timeout, consumerToken, ...).
type ConfigError struct {
	Client string
	Field  string
	Reason string
	Err    error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("client %q: invalid %s: %s", e.Client, e.Field, e.Reason)
}

func (e *ConfigError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return ErrInvalidConfig
}

// LifecycleError reports a factory operation invoked in the wrong state.
type LifecycleError struct {
	Op    string
	State State
	Err   error
}

func (e *LifecycleError) Error() string {
	return fmt.Sprintf("client factory %s (state %s): %v", e.Op, e.State, e.Err)
}

func (e *LifecycleError) Unwrap() error { return e.Err }

// UsageError reports a builder used after Build.
type UsageError struct {
	Client string
	Op     string
	Err    error
}

func (e *UsageError) Error() string {
	return fmt.Sprintf("client %q: %s: %v", e.Client, e.Op, e.Err)
}

func (e *UsageError) Unwrap() error { return e.Err }
