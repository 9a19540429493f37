package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func serve(srv *Server, method, target string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	rec := httptest.NewRecorder()
	srv.echo.ServeHTTP(rec, req)
	return rec
}

func TestHandleLiveness(t *testing.T) {
	srv, _ := newTestServer(t, &stubRegistry{})

	rec := serve(srv, http.MethodGet, "/health/live")

	assert.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.Contains(t, body, "uptime")
}

func TestHandleReadiness_AllHealthy(t *testing.T) {
	srv, _ := newTestServer(t, &stubRegistry{}, withHealthChecks(
		HealthCheck{Name: "broadcaster", Check: func(context.Context) error { return nil }},
	))

	rec := serve(srv, http.MethodGet, "/health/ready")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ready"}`, rec.Body.String())
}

func TestHandleReadiness_NoChecks(t *testing.T) {
	srv, _ := newTestServer(t, &stubRegistry{})

	rec := serve(srv, http.MethodGet, "/health/ready")

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHandleReadiness_FailedCheck(t *testing.T) {
	srv, _ := newTestServer(t, &stubRegistry{}, withHealthChecks(
		HealthCheck{Name: "ok", Check: func(context.Context) error { return nil }},
		HealthCheck{Name: "broadcaster", Check: func(context.Context) error { return errors.New("broadcaster stopped") }},
	))

	rec := serve(srv, http.MethodGet, "/health/ready")

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "unhealthy", body["status"])
	assert.Equal(t, "broadcaster", body["failed_check"])
	assert.Equal(t, "broadcaster stopped", body["error"])
}

func TestHandleReadiness_ChecksReceiveDeadline(t *testing.T) {
	var hasDeadline bool
	srv, _ := newTestServer(t, &stubRegistry{}, withHealthChecks(
		HealthCheck{Name: "deadline", Check: func(ctx context.Context) error {
			_, hasDeadline = ctx.Deadline()
			return nil
		}},
	))

	serve(srv, http.MethodGet, "/health/ready")

	assert.True(t, hasDeadline)
}

func TestHandleVersion(t *testing.T) {
	srv, _ := newTestServer(t, &stubRegistry{})

	rec := serve(srv, http.MethodGet, "/version")

	assert.Equal(t, http.StatusOK, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "moonwatch", body["service"])
	assert.NotEmpty(t, body["version"])
	assert.NotEmpty(t, body["go_version"])
}

func TestHandleMetrics(t *testing.T) {
	srv, wsMetrics := newTestServer(t, &stubRegistry{})
	wsMetrics.Upgrades.WithLabelValues("failed").Inc()

	rec := serve(srv, http.MethodGet, "/metrics")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `moonwatch_websocket_upgrades_total{result="failed"} 1`)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}
