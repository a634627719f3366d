package telemetry

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// ClientMetrics records outbound HTTP calls made by platform clients.
type ClientMetrics struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewClientMetrics creates the outbound metrics and registers them on reg.
// Registering twice on the same registry reuses the existing collectors.
func NewClientMetrics(reg prometheus.Registerer) (*ClientMetrics, error) {
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_client_requests_total",
		Help: "Total number of outbound HTTP requests",
	}, []string{"client", "method", "status"})

	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_client_request_duration_seconds",
		Help:    "Outbound HTTP request duration in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"client", "method"})

	var err error
	if requests, err = register(reg, requests); err != nil {
		return nil, fmt.Errorf("failed to register requests counter: %w", err)
	}
	if duration, err = register(reg, duration); err != nil {
		return nil, fmt.Errorf("failed to register duration histogram: %w", err)
	}

	return &ClientMetrics{requests: requests, duration: duration}, nil
}

func register[T prometheus.Collector](reg prometheus.Registerer, c T) (T, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

// Observe records one outbound call. status is the HTTP status code, or the
// failure kind when no response was received.
func (m *ClientMetrics) Observe(client, method, status string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(client, method, status).Inc()
	m.duration.WithLabelValues(client, method).Observe(elapsed.Seconds())
}

// StatusLabel renders an HTTP status code as a metric label.
func StatusLabel(code int) string {
	return strconv.Itoa(code)
}
