package telemetry

import (
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClientMetrics_Observe(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := NewClientMetrics(reg)
	require.NoError(t, err)

	m.Observe("directory", "GET", StatusLabel(200), 20*time.Millisecond)
	m.Observe("directory", "GET", StatusLabel(200), 30*time.Millisecond)
	m.Observe("directory", "GET", "timeout", time.Second)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.requests.WithLabelValues("directory", "GET", "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.requests.WithLabelValues("directory", "GET", "timeout")))

	expected := `
# HELP http_client_requests_total Total number of outbound HTTP requests
# TYPE http_client_requests_total counter
http_client_requests_total{client="directory",method="GET",status="200"} 2
http_client_requests_total{client="directory",method="GET",status="timeout"} 1
`
	assert.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "http_client_requests_total"))
}

func TestClientMetrics_RegisterTwiceReusesCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	first, err := NewClientMetrics(reg)
	require.NoError(t, err)
	second, err := NewClientMetrics(reg)
	require.NoError(t, err)

	first.Observe("a", "GET", "200", time.Millisecond)
	second.Observe("a", "GET", "200", time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(first.requests.WithLabelValues("a", "GET", "200")))
}

func TestClientMetrics_NilIsNoop(t *testing.T) {
	var m *ClientMetrics
	assert.NotPanics(t, func() {
		m.Observe("a", "GET", "200", time.Millisecond)
	})
}
