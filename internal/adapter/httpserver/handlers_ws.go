package httpserver

import (
	"errors"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/pscheid92/moonwatch/internal/domain"
)

const rejectWriteTimeout = time.Second

func (s *Server) handleWebSocket(c echo.Context) error {
	ctx := c.Request().Context()

	// On failure the upgrader has already written the HTTP error response.
	conn, err := s.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		s.wsMetrics.Upgrades.WithLabelValues("failed").Inc()
		slog.DebugContext(ctx, "WebSocket handshake failed", "remote_addr", c.RealIP(), "error", err)
		return nil
	}

	id, err := s.registry.Register(conn)
	if err != nil {
		s.wsMetrics.Upgrades.WithLabelValues("rejected").Inc()
		s.reject(conn, err)
		slog.WarnContext(ctx, "WebSocket subscriber rejected", "remote_addr", c.RealIP(), "error", err)
		return nil
	}

	s.wsMetrics.Upgrades.WithLabelValues("accepted").Inc()
	s.wsMetrics.ActiveConnections.Inc()
	connectedAt := time.Now()
	slog.InfoContext(ctx, "Client connected", "subscriber_id", id.String(), "remote_addr", c.RealIP())

	// Read pump: the feed is push-only, so client frames are discarded. It also
	// drives pong handling and notices when the peer goes away.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	s.registry.Unregister(id)
	s.wsMetrics.ActiveConnections.Dec()
	s.wsMetrics.ConnectionDuration.Observe(time.Since(connectedAt).Seconds())
	slog.InfoContext(ctx, "Client disconnected", "subscriber_id", id.String())

	return nil //nolint:nilerr // a read error is the normal end of a subscription
}

// reject closes a connection the registry refused, telling the client why.
func (s *Server) reject(conn *websocket.Conn, cause error) {
	code := websocket.CloseInternalServerErr
	reason := "server unavailable"
	if errors.Is(cause, domain.ErrTooManySubscribers) {
		code = websocket.CloseTryAgainLater
		reason = "too many subscribers"
	}

	msg := websocket.FormatCloseMessage(code, reason)
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(rejectWriteTimeout))
	_ = conn.Close()
}
