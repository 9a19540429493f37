package httpserver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/pscheid92/moonwatch/internal/adapter/metrics"
	wsorigin "github.com/pscheid92/moonwatch/internal/adapter/websocket"
	"github.com/pscheid92/moonwatch/internal/domain"
	"github.com/pscheid92/moonwatch/internal/platform/config"
)

// subscriberRegistry is the part of the broadcaster the accept path needs.
type subscriberRegistry interface {
	Register(conn *websocket.Conn) (uuid.UUID, error)
	Unregister(id uuid.UUID)
}

type Server struct {
	echo   *echo.Echo
	config *config.Config

	registry       subscriberRegistry
	upgrader       websocket.Upgrader
	wsMetrics      *metrics.WebSocketMetrics
	httpMetrics    *metrics.HTTPMetrics
	metricsHandler http.Handler

	healthChecks []HealthCheck
	startTime    time.Time
	listener     net.Listener
}

func NewServer(cfg *config.Config, registry subscriberRegistry, wsMetrics *metrics.WebSocketMetrics, httpMetrics *metrics.HTTPMetrics, metricsHandler http.Handler, healthChecks []HealthCheck) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	srv := &Server{
		echo:     e,
		config:   cfg,
		registry: registry,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     wsorigin.NewCheckOrigin(cfg.AllowedOrigins, cfg.IsDevelopment()),
		},
		wsMetrics:      wsMetrics,
		httpMetrics:    httpMetrics,
		metricsHandler: metricsHandler,
		healthChecks:   healthChecks,
		startTime:      time.Now(),
	}

	e.HTTPErrorHandler = srv.handleError
	srv.registerRoutes()

	return srv
}

// Listen binds the configured address. Failure is reported as *domain.BindError.
func (s *Server) Listen() error {
	address := s.config.Address()
	ln, err := net.Listen("tcp", address)
	if err != nil {
		return &domain.BindError{Address: address, Err: err}
	}
	s.listener = ln
	s.echo.Listener = ln
	return nil
}

// Addr returns the bound address, or "" before Listen.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Serve accepts connections until Shutdown. It binds first if Listen was not called.
func (s *Server) Serve() error {
	if s.listener == nil {
		if err := s.Listen(); err != nil {
			return err
		}
	}

	slog.Info("WebSocket server is running", "url", "ws://"+s.Addr())
	if err := s.echo.Start(s.Addr()); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

// Start is Listen followed by Serve.
func (s *Server) Start() error {
	if err := s.Listen(); err != nil {
		return err
	}
	return s.Serve()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.echo.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}
	return nil
}
