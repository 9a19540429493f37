package httpserver

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/pscheid92/moonwatch/internal/adapter/metrics"
	"github.com/pscheid92/moonwatch/internal/platform/config"
	"github.com/stretchr/testify/require"
)

// stubRegistry records registrations without running a broadcaster.
type stubRegistry struct {
	mu           sync.Mutex
	registerErr  error
	registered   []uuid.UUID
	unregistered []uuid.UUID
}

func (r *stubRegistry) Register(_ *websocket.Conn) (uuid.UUID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.registerErr != nil {
		return uuid.Nil, r.registerErr
	}
	id := uuid.New()
	r.registered = append(r.registered, id)
	return id, nil
}

func (r *stubRegistry) Unregister(id uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.unregistered = append(r.unregistered, id)
}

func (r *stubRegistry) unregisteredCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.unregistered)
}

func testConfig() *config.Config {
	return &config.Config{
		AppEnv:           "test",
		Host:             "127.0.0.1",
		Port:             0,
		ConnectRateLimit: 100,
		ConnectRateBurst: 100,
		LogLevel:         "info",
		LogFormat:        "text",
	}
}

type testServerOption func(cfg *config.Config, checks *[]HealthCheck)

func withHealthChecks(checks ...HealthCheck) testServerOption {
	return func(_ *config.Config, c *[]HealthCheck) {
		*c = checks
	}
}

func withRateLimit(ratePerSecond float64, burst int) testServerOption {
	return func(cfg *config.Config, _ *[]HealthCheck) {
		cfg.ConnectRateLimit = ratePerSecond
		cfg.ConnectRateBurst = burst
	}
}

// newTestServer builds a server around registry without binding a port.
func newTestServer(t *testing.T, registry subscriberRegistry, opts ...testServerOption) (*Server, *metrics.WebSocketMetrics) {
	t.Helper()

	cfg := testConfig()
	var checks []HealthCheck
	for _, opt := range opts {
		opt(cfg, &checks)
	}

	reg := metrics.NewRegistry()
	wsMetrics := metrics.NewWebSocketMetrics(reg)
	return NewServer(cfg, registry, wsMetrics, metrics.NewHTTPMetrics(reg), metrics.Handler(reg), checks), wsMetrics
}

// startServer binds an ephemeral port, serves in the background and returns the ws URL.
func startServer(t *testing.T, srv *Server) string {
	t.Helper()

	require.NoError(t, srv.Listen())
	serveErr := make(chan error, 1)
	go func() { serveErr <- srv.Serve() }()

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
		require.NoError(t, <-serveErr)
	})

	return "ws://" + srv.Addr() + "/"
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func eventually(t *testing.T, condition func() bool) {
	t.Helper()
	require.Eventually(t, condition, 2*time.Second, 5*time.Millisecond)
}
