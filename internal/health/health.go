// Package health runs named health checks and reports them over HTTP.
package health

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"sda-commons/internal/observability/logger"

	"go.uber.org/zap"
)

// DefaultTimeout bounds a single check.
const DefaultTimeout = 5 * time.Second

// Check reports whether a dependency is healthy.
type Check func(ctx context.Context) error

// Result is the outcome of one check. Error holds a coarse reason only; the
// underlying error is logged, never reported.
type Result struct {
	Healthy bool   `json:"healthy"`
	Error   string `json:"error,omitempty"`
}

// Report is the outcome of all registered checks.
type Report struct {
	Status string            `json:"status"`
	Checks map[string]Result `json:"checks"`
}

// Healthy reports whether every check passed.
func (r Report) Healthy() bool {
	return r.Status == "ok"
}

// Reason turns a check failure into text that is safe to serve.
type Reason func(err error) string

// DefaultReason reports timeouts and hides everything else.
func DefaultReason(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}
	return "check failed"
}

// Registry holds named checks. It is safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	checks  map[string]Check
	timeout time.Duration
	log     *logger.Logger
	reason  Reason
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger logs failed checks with their full error.
func WithLogger(log *logger.Logger) Option {
	return func(r *Registry) {
		if log != nil {
			r.log = log
		}
	}
}

// WithReason replaces DefaultReason.
func WithReason(reason Reason) Option {
	return func(r *Registry) {
		if reason != nil {
			r.reason = reason
		}
	}
}

// NewRegistry creates an empty registry. A non-positive timeout uses DefaultTimeout.
func NewRegistry(timeout time.Duration, opts ...Option) *Registry {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	r := &Registry{
		checks:  make(map[string]Check),
		timeout: timeout,
		log:     logger.Nop(),
		reason:  DefaultReason,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register adds or replaces the check called name.
func (r *Registry) Register(name string, check Check) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.checks[name] = check
}

// Names returns the registered check names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.checks))
	for name := range r.checks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Run executes all checks in parallel.
func (r *Registry) Run(ctx context.Context) Report {
	r.mu.RLock()
	checks := make(map[string]Check, len(r.checks))
	for name, c := range r.checks {
		checks[name] = c
	}
	r.mu.RUnlock()

	report := Report{Status: "ok", Checks: make(map[string]Result, len(checks))}

	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	for name, check := range checks {
		wg.Add(1)
		go func(name string, check Check) {
			defer wg.Done()
			res := r.runOne(ctx, name, check)

			mu.Lock()
			defer mu.Unlock()
			report.Checks[name] = res
			if !res.Healthy {
				report.Status = "unavailable"
			}
		}(name, check)
	}
	wg.Wait()

	return report
}

func (r *Registry) runOne(ctx context.Context, name string, check Check) (res Result) {
	checkCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	defer func() {
		if p := recover(); p != nil {
			r.logFailure(ctx, name, fmt.Errorf("check panicked: %v", p))
			res = Result{Error: "check panicked"}
		}
	}()

	if err := check(checkCtx); err != nil {
		r.logFailure(ctx, name, err)
		return Result{Error: r.reason(err)}
	}
	return Result{Healthy: true}
}

func (r *Registry) logFailure(ctx context.Context, name string, err error) {
	r.log.Warn(ctx, "health check failed",
		logger.Module("health"),
		logger.Action("check"),
		zap.String("check", name),
		zap.Error(err),
	)
}

// Handler serves the report as JSON: 200 when healthy, 503 otherwise.
func (r *Registry) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		report := r.Run(req.Context())

		status := http.StatusOK
		if !report.Healthy() {
			status = http.StatusServiceUnavailable
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(report)
	})
}
