package server

import (
	"context"
	"strings"

	"quill/internal/middleware"
	"quill/internal/models"

	"github.com/gofiber/fiber/v2"
)

const actorLocal = "actor"

// bearerToken returns the token of an "Authorization: Bearer <token>" header.
func bearerToken(c *fiber.Ctx) string {
	scheme, token, ok := strings.Cut(c.Get(fiber.HeaderAuthorization), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

// actorFrom returns the authenticated user, or nil for anonymous callers.
func actorFrom(c *fiber.Ctx) *models.User {
	actor, _ := c.Locals(actorLocal).(*models.User)
	return actor
}

func setActor(c *fiber.Ctx, actor *models.User) {
	c.Locals(actorLocal, actor)
	c.Locals(middleware.UserIDLocal, actor.ID)
	c.Locals(middleware.UserRoleLocal, string(actor.Role))
	// Sync to UserContext for logging and downstream services
	ctx := context.WithValue(c.UserContext(), middleware.UserIDKey, actor.ID)
	c.SetUserContext(ctx)
}

// AuthRequired rejects requests without a valid, unrevoked bearer token.
func (s *Server) AuthRequired() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if actorFrom(c) != nil {
			return c.Next()
		}
		actor, err := s.authService.CurrentActor(c.UserContext(), bearerToken(c))
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

// OptionalAuth identifies the caller when a valid token is sent. A missing
// or bad token leaves the request anonymous; AuthRequired further down the
// chain still rejects it.
func (s *Server) OptionalAuth() fiber.Handler {
	return func(c *fiber.Ctx) error {
		token := bearerToken(c)
		if token == "" {
			return c.Next()
		}
		if actor, err := s.authService.CurrentActor(c.UserContext(), token); err == nil && actor != nil {
			setActor(c, actor)
		}
		return c.Next()
	}
}

// AdminRequired returns middleware that rejects non-admin users with 403.
// Must be placed after AuthRequired.
func (s *Server) AdminRequired() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !actorFrom(c).IsAdmin() {
			return models.RespondWithError(c, fiber.StatusForbidden,
				models.NewForbiddenError("Admin access required"))
		}
		return c.Next()
	}
}
