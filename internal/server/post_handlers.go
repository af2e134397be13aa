package server

import (
	"quill/internal/query"
	"quill/internal/service"

	"github.com/gofiber/fiber/v2"
)

type createPostRequest struct {
	Title      string `json:"title"`
	Body       string `json:"body"`
	Status     string `json:"status"`
	CategoryID *uint  `json:"category_id"`
	Tags       []uint `json:"tags"`
}

type updatePostRequest struct {
	Title      *string            `json:"title"`
	Body       *string            `json:"body"`
	Status     *string            `json:"status"`
	CategoryID service.NullableID `json:"category_id"`
	Tags       *[]uint            `json:"tags"`
}

func postParams(c *fiber.Ctx) query.PostParams {
	return query.PostParams{
		Status:   c.Query("status"),
		Q:        c.Query("q"),
		Category: c.Query("category"),
		Tags:     c.Query("tags"),
		Author:   c.Query("author"),
		DateFrom: c.Query("date_from"),
		DateTo:   c.Query("date_to"),
		Sort:     c.Query("sort"),
		Page:     c.Query("page"),
		PerPage:  c.Query("per_page"),
	}
}

// ListPosts handles GET /api/posts
func (s *Server) ListPosts(c *fiber.Ctx) error {
	listing, err := s.postService.List(c.UserContext(), actorFrom(c), postParams(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"data": listing.Posts, "meta": listing.Meta})
}

// SearchPosts handles GET /api/posts/search. It runs the same query as the
// listing and echoes the accepted criteria back.
func (s *Server) SearchPosts(c *fiber.Ctx) error {
	listing, err := s.postService.List(c.UserContext(), actorFrom(c), postParams(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{
		"data": listing.Posts,
		"meta": fiber.Map{
			"current_page":  listing.Meta.CurrentPage,
			"last_page":     listing.Meta.LastPage,
			"per_page":      listing.Meta.PerPage,
			"total":         listing.Meta.Total,
			"total_results": listing.Meta.Total,
			"search_params": listing.Criteria.Echo(),
		},
	})
}

// CreatePost handles POST /api/posts
func (s *Server) CreatePost(c *fiber.Ctx) error {
	var req createPostRequest
	if err := c.BodyParser(&req); err != nil {
		return invalidBody(c)
	}

	post, err := s.postService.Create(c.UserContext(), actorFrom(c), service.CreatePostInput{
		Title:      req.Title,
		Body:       req.Body,
		Status:     req.Status,
		CategoryID: req.CategoryID,
		TagIDs:     req.Tags,
	})
	if err != nil {
		return respondError(c, err)
	}
	return data(c, fiber.StatusCreated, post)
}

// GetPost handles GET /api/posts/:id
func (s *Server) GetPost(c *fiber.Ctx) error {
	id, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}
	post, err := s.postService.Get(c.UserContext(), actorFrom(c), id)
	if err != nil {
		return respondError(c, err)
	}
	return data(c, fiber.StatusOK, post)
}

// UpdatePost handles PUT and PATCH /api/posts/:id. Omitted fields are left
// unchanged.
func (s *Server) UpdatePost(c *fiber.Ctx) error {
	id, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}
	var req updatePostRequest
	if err := c.BodyParser(&req); err != nil {
		return invalidBody(c)
	}

	post, err := s.postService.Update(c.UserContext(), actorFrom(c), id, service.UpdatePostInput{
		Title:      req.Title,
		Body:       req.Body,
		Status:     req.Status,
		CategoryID: req.CategoryID,
		TagIDs:     req.Tags,
	})
	if err != nil {
		return respondError(c, err)
	}
	return data(c, fiber.StatusOK, post)
}

// DeletePost handles DELETE /api/posts/:id (soft delete)
func (s *Server) DeletePost(c *fiber.Ctx) error {
	id, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}
	if err := s.postService.Delete(c.UserContext(), actorFrom(c), id); err != nil {
		return respondError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// ForceDeletePost handles DELETE /api/posts/:id/force
func (s *Server) ForceDeletePost(c *fiber.Ctx) error {
	id, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}
	if err := s.postService.ForceDelete(c.UserContext(), actorFrom(c), id); err != nil {
		return respondError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}
