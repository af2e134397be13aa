package server

import (
	"quill/internal/repository"
	"quill/internal/service"

	"github.com/gofiber/fiber/v2"
)

type categoryRequest struct {
	Name        *string                `json:"name"`
	Slug        *string                `json:"slug"`
	Description service.NullableString `json:"description"`
}

type tagRequest struct {
	Name *string `json:"name"`
	Slug *string `json:"slug"`
}

// ListCategories handles GET /api/categories
func (s *Server) ListCategories(c *fiber.Ctx) error {
	categories, err := s.categoryService.List(c.UserContext(), repository.CategoryListOptions{
		WithCount: queryBool(c, "with_count"),
		SortBy:    c.Query("sort_by"),
	})
	if err != nil {
		return respondError(c, err)
	}
	return data(c, fiber.StatusOK, categories)
}

// GetCategory handles GET /api/categories/:id
func (s *Server) GetCategory(c *fiber.Ctx) error {
	id, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}
	category, err := s.categoryService.Get(c.UserContext(), id)
	if err != nil {
		return respondError(c, err)
	}
	return data(c, fiber.StatusOK, category)
}

// CreateCategory handles POST /api/categories
func (s *Server) CreateCategory(c *fiber.Ctx) error {
	var req categoryRequest
	if err := c.BodyParser(&req); err != nil {
		return invalidBody(c)
	}
	category, err := s.categoryService.Create(c.UserContext(), actorFrom(c), service.CategoryInput(req))
	if err != nil {
		return respondError(c, err)
	}
	return data(c, fiber.StatusCreated, category)
}

// UpdateCategory handles PUT and PATCH /api/categories/:id
func (s *Server) UpdateCategory(c *fiber.Ctx) error {
	id, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}
	var req categoryRequest
	if err := c.BodyParser(&req); err != nil {
		return invalidBody(c)
	}
	category, err := s.categoryService.Update(c.UserContext(), actorFrom(c), id, service.CategoryInput(req))
	if err != nil {
		return respondError(c, err)
	}
	return data(c, fiber.StatusOK, category)
}

// DeleteCategory handles DELETE /api/categories/:id
func (s *Server) DeleteCategory(c *fiber.Ctx) error {
	id, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}
	if err := s.categoryService.Delete(c.UserContext(), actorFrom(c), id); err != nil {
		return respondError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// ListTags handles GET /api/tags
func (s *Server) ListTags(c *fiber.Ctx) error {
	tags, err := s.tagService.List(c.UserContext(), service.TagListOptions{
		WithCount: queryBool(c, "with_count"),
		MostUsed:  queryBool(c, "most_used"),
		Limit:     c.QueryInt("limit", 0),
	})
	if err != nil {
		return respondError(c, err)
	}
	return data(c, fiber.StatusOK, tags)
}

// GetTag handles GET /api/tags/:id
func (s *Server) GetTag(c *fiber.Ctx) error {
	id, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}
	tag, err := s.tagService.Get(c.UserContext(), id)
	if err != nil {
		return respondError(c, err)
	}
	return data(c, fiber.StatusOK, tag)
}

// CreateTag handles POST /api/tags
func (s *Server) CreateTag(c *fiber.Ctx) error {
	var req tagRequest
	if err := c.BodyParser(&req); err != nil {
		return invalidBody(c)
	}
	tag, err := s.tagService.Create(c.UserContext(), actorFrom(c), service.TagInput(req))
	if err != nil {
		return respondError(c, err)
	}
	return data(c, fiber.StatusCreated, tag)
}

// UpdateTag handles PUT and PATCH /api/tags/:id
func (s *Server) UpdateTag(c *fiber.Ctx) error {
	id, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}
	var req tagRequest
	if err := c.BodyParser(&req); err != nil {
		return invalidBody(c)
	}
	tag, err := s.tagService.Update(c.UserContext(), actorFrom(c), id, service.TagInput(req))
	if err != nil {
		return respondError(c, err)
	}
	return data(c, fiber.StatusOK, tag)
}

// DeleteTag handles DELETE /api/tags/:id
func (s *Server) DeleteTag(c *fiber.Ctx) error {
	id, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}
	if err := s.tagService.Delete(c.UserContext(), actorFrom(c), id); err != nil {
		return respondError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}
