package server

import (
	"github.com/gofiber/fiber/v2"
)

type tagIDsRequest struct {
	Tags []uint `json:"tags"`
}

// SyncTags handles PUT /api/posts/:id/tags. The post ends up with exactly
// the given tags.
func (s *Server) SyncTags(c *fiber.Ctx) error {
	id, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}
	var req tagIDsRequest
	if err := c.BodyParser(&req); err != nil {
		return invalidBody(c)
	}
	post, err := s.postService.SyncTags(c.UserContext(), actorFrom(c), id, req.Tags)
	if err != nil {
		return respondError(c, err)
	}
	return data(c, fiber.StatusOK, post)
}

// AttachTags handles POST /api/posts/:id/tags
func (s *Server) AttachTags(c *fiber.Ctx) error {
	id, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}
	var req tagIDsRequest
	if err := c.BodyParser(&req); err != nil {
		return invalidBody(c)
	}
	post, err := s.postService.AttachTags(c.UserContext(), actorFrom(c), id, req.Tags)
	if err != nil {
		return respondError(c, err)
	}
	return data(c, fiber.StatusOK, post)
}

// DetachTag handles DELETE /api/posts/:id/tags/:tagId
func (s *Server) DetachTag(c *fiber.Ctx) error {
	id, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}
	tagID, err := s.parseID(c, "tagId")
	if err != nil {
		return nil
	}
	post, err := s.postService.DetachTag(c.UserContext(), actorFrom(c), id, tagID)
	if err != nil {
		return respondError(c, err)
	}
	return data(c, fiber.StatusOK, post)
}

// LikePost handles POST /api/posts/:id/like
func (s *Server) LikePost(c *fiber.Ctx) error {
	id, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}
	status, err := s.postService.Like(c.UserContext(), actorFrom(c), id)
	if err != nil {
		return respondError(c, err)
	}
	return data(c, fiber.StatusCreated, status)
}

// UnlikePost handles DELETE /api/posts/:id/like
func (s *Server) UnlikePost(c *fiber.Ctx) error {
	id, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}
	status, err := s.postService.Unlike(c.UserContext(), actorFrom(c), id)
	if err != nil {
		return respondError(c, err)
	}
	return data(c, fiber.StatusOK, status)
}

// ListLikes handles GET /api/posts/:id/likes
func (s *Server) ListLikes(c *fiber.Ctx) error {
	id, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}
	page, perPage := pageParams(c)
	likes, err := s.postService.ListLikes(c.UserContext(), actorFrom(c), id, page, perPage)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(likes)
}
