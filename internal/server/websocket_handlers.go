package server

import (
	"encoding/json"
	"errors"

	"carkey/internal/middleware"
	"carkey/internal/notifications"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
)

var errRealtimeUnavailable = errors.New("realtime notifications require redis")

// requireUpgrade rejects plain HTTP requests before a ticket is spent on them.
func requireUpgrade(c *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(c) {
		return fiber.ErrUpgradeRequired
	}
	return c.Next()
}

// WebsocketHandler upgrades GET /api/ws to a push-only notification socket.
// WSTicketRequired must run first.
func (s *Server) WebsocketHandler() fiber.Handler {
	return websocket.New(func(conn *websocket.Conn) {
		uid, ok := conn.Locals("userID").(uint)
		if !ok || uid == 0 {
			_ = conn.Close()
			return
		}

		client, err := s.hub.Register(uid, conn)
		if err != nil {
			middleware.Logger.Warn("notification socket rejected", "user_id", uid, "error", err)
			_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"error":"`+err.Error()+`"}`))
			_ = conn.Close()
			return
		}

		if hello, err := json.Marshal(notifications.Event{
			Type:    notifications.EventConnected,
			Payload: fiber.Map{"user_id": uid},
		}); err == nil {
			client.TrySend(hello)
		}

		client.Serve()
	})
}
