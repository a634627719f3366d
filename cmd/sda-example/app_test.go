package main

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"sda-commons/internal/auth"
	"sda-commons/internal/config"
	"sda-commons/internal/observability/logger"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testSecret   = "test-secret-key-at-least-32-bytes!!"
	testIssuer   = "sda-portal"
	testAudience = "sda-example"
)

// fakeDirectory is an upstream directory that records the headers it saw.
type fakeDirectory struct {
	mu      sync.Mutex
	headers []http.Header
	status  int
	server  *httptest.Server
}

func newFakeDirectory(t *testing.T) *fakeDirectory {
	t.Helper()
	d := &fakeDirectory{status: http.StatusOK}

	r := chi.NewRouter()
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(d.currentStatus())
	})
	r.Get("/people", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"items": []map[string]string{{"id": "p-1", "name": "Ada Lovelace", "team": r.URL.Query().Get("team")}},
		})
	})
	r.Get("/people/{id}", func(w http.ResponseWriter, r *http.Request) {
		d.mu.Lock()
		d.headers = append(d.headers, r.Header.Clone())
		d.mu.Unlock()

		if status := d.currentStatus(); status != http.StatusOK {
			w.WriteHeader(status)
			_, _ = w.Write([]byte(`{"message":"upstream says no"}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{
			"id":   chi.URLParam(r, "id"),
			"name": "Ada Lovelace",
			"team": "engines",
		})
	})

	d.server = httptest.NewServer(r)
	t.Cleanup(d.server.Close)
	return d
}

func (d *fakeDirectory) currentStatus() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.status
}

func (d *fakeDirectory) setStatus(status int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.status = status
}

func (d *fakeDirectory) lastHeaders(t *testing.T) http.Header {
	t.Helper()
	d.mu.Lock()
	defer d.mu.Unlock()
	require.NotEmpty(t, d.headers, "upstream was not called")
	return d.headers[len(d.headers)-1]
}

func (d *fakeDirectory) calls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.headers)
}

func testConfig(upstreamURL string) *config.Config {
	return &config.Config{
		AppEnv:                 "test",
		ServiceName:            "sda-example-test",
		ServiceVersion:         "test",
		UpstreamBaseURL:        upstreamURL,
		UpstreamTimeout:        2 * time.Second,
		UpstreamConnectTimeout: time.Second,
		UpstreamHealthPath:     "/health",
		TraceHeaders:           []string{"X-Request-Id", "Trace-Token"},
		JWTHS256Secret:         base64.StdEncoding.EncodeToString([]byte(testSecret)),
		JWTAllowedIssuers:      testIssuer,
		JWTAudience:            testAudience,
		JWTClockSkewSeconds:    60,
	}
}

func newTestApp(t *testing.T, cfg *config.Config) http.Handler {
	t.Helper()
	r, err := newApp(t.Context(), cfg, logger.Nop(), appOptions{})
	require.NoError(t, err)
	return r
}

func bearerToken(t *testing.T, subject string) string {
	t.Helper()
	claims := &auth.CustomClaims{
		Scope: "people:read",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    testIssuer,
			Audience:  jwt.ClaimStrings{testAudience},
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return "Bearer " + token
}

func TestGetPerson_PropagatesRequestContext(t *testing.T) {
	upstream := newFakeDirectory(t)
	cfg := testConfig(upstream.server.URL)
	cfg.ConsumerToken = "svc-token"
	app := newTestApp(t, cfg)

	authz := bearerToken(t, "user-1")
	req := httptest.NewRequest(http.MethodGet, "/v1/people/p-1", nil)
	req.Header.Set("X-Request-Id", "abc123")
	req.Header.Set("Trace-Token", "trace-1")
	req.Header.Set("Authorization", authz)
	rr := httptest.NewRecorder()

	app.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, "abc123", rr.Header().Get("X-Request-Id"))

	var body struct {
		Data struct {
			ID   string `json:"id"`
			Name string `json:"name"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "p-1", body.Data.ID)
	assert.Equal(t, "Ada Lovelace", body.Data.Name)

	seen := upstream.lastHeaders(t)
	assert.Equal(t, "abc123", seen.Get("X-Request-Id"))
	assert.Equal(t, "trace-1", seen.Get("Trace-Token"))
	assert.Equal(t, authz, seen.Get("Authorization"))
	assert.Equal(t, "svc-token", seen.Get("X-Consumer-Token"))
}

func TestGetPerson_NoConsumerTokenConfigured(t *testing.T) {
	upstream := newFakeDirectory(t)
	app := newTestApp(t, testConfig(upstream.server.URL))

	req := httptest.NewRequest(http.MethodGet, "/v1/people/p-1", nil)
	req.Header.Set("Authorization", bearerToken(t, "user-1"))
	rr := httptest.NewRecorder()

	app.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	seen := upstream.lastHeaders(t)
	assert.Empty(t, seen.Get("X-Consumer-Token"))
	assert.NotEmpty(t, seen.Get("X-Request-Id"), "generated request id should be propagated")
	assert.Equal(t, rr.Header().Get("X-Request-Id"), seen.Get("X-Request-Id"))
}

func TestGetPerson_RequiresAuthentication(t *testing.T) {
	upstream := newFakeDirectory(t)
	app := newTestApp(t, testConfig(upstream.server.URL))

	req := httptest.NewRequest(http.MethodGet, "/v1/people/p-1", nil)
	rr := httptest.NewRecorder()

	app.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Zero(t, upstream.calls())
}

func TestGetPerson_UpstreamErrorsAreMapped(t *testing.T) {
	tests := []struct {
		name           string
		upstreamStatus int
		wantStatus     int
	}{
		{"not found passes through", http.StatusNotFound, http.StatusNotFound},
		{"server error becomes bad gateway", http.StatusInternalServerError, http.StatusBadGateway},
		{"unavailable becomes bad gateway", http.StatusServiceUnavailable, http.StatusBadGateway},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			upstream := newFakeDirectory(t)
			upstream.setStatus(tt.upstreamStatus)
			app := newTestApp(t, testConfig(upstream.server.URL))

			req := httptest.NewRequest(http.MethodGet, "/v1/people/p-1", nil)
			req.Header.Set("Authorization", bearerToken(t, "user-1"))
			rr := httptest.NewRecorder()

			app.ServeHTTP(rr, req)

			assert.Equal(t, tt.wantStatus, rr.Code)

			var body map[string]any
			require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
			assert.Equal(t, "Upstream call failed", body["title"])
			assert.Equal(t, "UPSTREAM_ERROR", body["code"])
			assert.NotContains(t, rr.Body.String(), "upstream says no")
		})
	}
}

func TestGetPerson_UpstreamUnreachable(t *testing.T) {
	upstream := newFakeDirectory(t)
	url := upstream.server.URL
	upstream.server.Close()

	app := newTestApp(t, testConfig(url))

	req := httptest.NewRequest(http.MethodGet, "/v1/people/p-1", nil)
	req.Header.Set("Authorization", bearerToken(t, "user-1"))
	rr := httptest.NewRecorder()

	app.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusBadGateway, rr.Code)
	assert.Contains(t, rr.Body.String(), "UPSTREAM_UNAVAILABLE")
}

func TestDebugContext_DevOnly(t *testing.T) {
	upstream := newFakeDirectory(t)

	t.Run("hidden outside dev", func(t *testing.T) {
		app := newTestApp(t, testConfig(upstream.server.URL))

		req := httptest.NewRequest(http.MethodGet, "/debug/context", nil)
		req.Header.Set("Authorization", bearerToken(t, "user-1"))
		rr := httptest.NewRecorder()
		app.ServeHTTP(rr, req)

		assert.Equal(t, http.StatusNotFound, rr.Code)
	})

	t.Run("reports captured context in dev", func(t *testing.T) {
		cfg := testConfig(upstream.server.URL)
		cfg.AppEnv = "dev"
		app := newTestApp(t, cfg)

		req := httptest.NewRequest(http.MethodGet, "/debug/context", nil)
		req.Header.Set("Authorization", bearerToken(t, "user-1"))
		req.Header.Set("X-Request-Id", "dbg-1")
		rr := httptest.NewRecorder()
		app.ServeHTTP(rr, req)

		require.Equal(t, http.StatusOK, rr.Code)
		var body map[string]any
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
		assert.Equal(t, "dbg-1", body["requestId"])
		assert.Equal(t, true, body["authorizationCaptured"])
		assert.Equal(t, "user-1", body["subject"])
	})
}

func TestListTeam(t *testing.T) {
	upstream := newFakeDirectory(t)
	app := newTestApp(t, testConfig(upstream.server.URL))

	req := httptest.NewRequest(http.MethodGet, "/v1/teams/engines/people", nil)
	req.Header.Set("Authorization", bearerToken(t, "user-1"))
	rr := httptest.NewRecorder()

	app.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.JSONEq(t, `{"data":[{"id":"p-1","name":"Ada Lovelace","team":"engines"}]}`, rr.Body.String())
}
