package server

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/Dekunlebells/okaygoal/internal/metrics"
)

func (s *Server) upgrader() websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     NewCheckOrigin(s.config.AppURL, s.config.AppEnv == "development"),
	}
}

func (s *Server) handleWebSocket(c echo.Context) error {
	ip := c.RealIP()

	if ok, reason := s.limits.Acquire(ip); !ok {
		metrics.ConnectionsRejected.WithLabelValues(string(reason)).Inc()
		slog.Warn("Connection rejected", "remote_addr", ip, "reason", reason)
		return c.String(http.StatusTooManyRequests, "too many connections")
	}
	defer s.limits.Release(ip)

	upgrader := s.upgrader()
	ws, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		metrics.ConnectionsRejected.WithLabelValues("origin").Inc()
		return fmt.Errorf("failed to upgrade WebSocket: %w", err)
	}

	token := c.QueryParam("token")
	conn, err := s.hub.Accept(ws, token, ip)
	if err != nil {
		slog.Error("Failed to register connection", "remote_addr", ip, "error", err)
		_ = ws.Close()
		return nil
	}
	defer s.hub.Remove(conn)

	// Read pump — blocks until the connection closes. Inbound messages are
	// handed to the hub; the hub never disconnects for protocol violations.
	ctx := c.Request().Context()
	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			break
		}
		s.hub.HandleInbound(ctx, conn, data)
	}

	return nil
}
