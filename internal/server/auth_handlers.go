package server

import (
	"quill/internal/models"
	"quill/internal/service"

	"github.com/gofiber/fiber/v2"
)

type authResponse struct {
	User  *models.User         `json:"user"`
	Token *service.IssuedToken `json:"token"`
}

// Register handles POST /api/auth/register
func (s *Server) Register(c *fiber.Ctx) error {
	var req struct {
		Name                 string `json:"name"`
		Email                string `json:"email"`
		Password             string `json:"password"`
		PasswordConfirmation string `json:"password_confirmation"`
	}
	if err := c.BodyParser(&req); err != nil {
		return invalidBody(c)
	}

	user, token, err := s.authService.Register(c.UserContext(), service.RegisterInput{
		Name:                 req.Name,
		Email:                req.Email,
		Password:             req.Password,
		PasswordConfirmation: req.PasswordConfirmation,
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(authResponse{User: user, Token: token})
}

// Login handles POST /api/auth/login
func (s *Server) Login(c *fiber.Ctx) error {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := c.BodyParser(&req); err != nil {
		return invalidBody(c)
	}

	user, err := s.authService.Identify(c.UserContext(), req.Email, req.Password)
	if err != nil {
		return respondError(c, err)
	}
	token, err := s.authService.IssueToken(user)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(authResponse{User: user, Token: token})
}

// Me handles GET /api/auth/me
func (s *Server) Me(c *fiber.Ctx) error {
	return data(c, fiber.StatusOK, actorFrom(c))
}

// Logout handles POST /api/auth/logout
func (s *Server) Logout(c *fiber.Ctx) error {
	if err := s.authService.Logout(c.UserContext(), bearerToken(c)); err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"message": "Logged out"})
}

// Refresh handles POST /api/auth/refresh
func (s *Server) Refresh(c *fiber.Ctx) error {
	user, token, err := s.authService.Refresh(c.UserContext(), bearerToken(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(authResponse{User: user, Token: token})
}
