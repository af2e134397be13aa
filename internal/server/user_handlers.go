package server

import (
	"strings"

	"quill/internal/models"
	"quill/internal/repository"
	"quill/internal/service"

	"github.com/gofiber/fiber/v2"
)

// ListUsers handles GET /api/users?role=&search=&page=&per_page=
func (s *Server) ListUsers(c *fiber.Ctx) error {
	page, perPage := pageParams(c)
	users, err := s.userService.List(c.UserContext(), actorFrom(c), repository.UserFilter{
		Role:    models.Role(strings.ToLower(strings.TrimSpace(c.Query("role")))),
		Search:  strings.TrimSpace(c.Query("search")),
		Page:    page,
		PerPage: perPage,
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(users)
}

// GetUser handles GET /api/users/:id
func (s *Server) GetUser(c *fiber.Ctx) error {
	id, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}
	user, err := s.userService.Get(c.UserContext(), actorFrom(c), id)
	if err != nil {
		return respondError(c, err)
	}
	return data(c, fiber.StatusOK, user)
}

// UpdateUser handles PUT and PATCH /api/users/:id
func (s *Server) UpdateUser(c *fiber.Ctx) error {
	id, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}
	var req struct {
		Name *string `json:"name"`
		Role *string `json:"role"`
	}
	if err := c.BodyParser(&req); err != nil {
		return invalidBody(c)
	}
	user, err := s.userService.Update(c.UserContext(), actorFrom(c), id, service.UpdateUserInput(req))
	if err != nil {
		return respondError(c, err)
	}
	return data(c, fiber.StatusOK, user)
}
