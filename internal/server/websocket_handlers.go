package server

import (
	"quill/internal/middleware"
	"quill/internal/models"
	"quill/internal/observability"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
)

// IssueSocketTicket handles POST /api/ws/ticket
func (s *Server) IssueSocketTicket(c *fiber.Ctx) error {
	if s.hub == nil {
		return fiber.NewError(fiber.StatusServiceUnavailable, "Realtime notifications are unavailable")
	}
	ticket, err := s.authService.IssueSocketTicket(c.UserContext(), actorFrom(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(ticket)
}

// SocketAuth guards the notification socket. Non-upgrade requests get 426.
// The caller is identified by a ?ticket= from IssueSocketTicket or by a
// bearer token.
func (s *Server) SocketAuth() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !websocket.IsWebSocketUpgrade(c) {
			return fiber.ErrUpgradeRequired
		}
		if s.hub == nil {
			return fiber.NewError(fiber.StatusServiceUnavailable, "Realtime notifications are unavailable")
		}

		var (
			actor *models.User
			err   error
		)
		if ticket := c.Query("ticket"); ticket != "" {
			actor, err = s.authService.RedeemSocketTicket(c.UserContext(), ticket)
		} else {
			actor, err = s.authService.CurrentActor(c.UserContext(), bearerToken(c))
		}
		if err != nil {
			return respondError(c, err)
		}
		if actor == nil {
			return models.RespondWithError(c, fiber.StatusUnauthorized,
				models.NewUnauthenticatedError("Authorization required"))
		}
		setActor(c, actor)
		return c.Next()
	}
}

// NotificationsSocket handles GET /api/ws/notifications. Events addressed to
// the caller, plus newly published posts, are written as JSON text frames.
func (s *Server) NotificationsSocket() fiber.Handler {
	return websocket.New(func(conn *websocket.Conn) {
		observability.ActiveWebSockets.Inc()
		defer observability.ActiveWebSockets.Dec()

		uid, ok := conn.Locals(middleware.UserIDLocal).(uint)
		if !ok {
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

		// the connection is recycled once this handler returns, so wait
		// for the writer before leaving
		written := make(chan struct{})
		go func() {
			defer close(written)
			client.WritePump()
		}()
		client.ReadPump()
		<-written
	})
}
