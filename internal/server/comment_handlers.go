package server

import (
	"github.com/gofiber/fiber/v2"
)

type commentRequest struct {
	Body string `json:"body"`
}

// ListComments handles GET /api/posts/:id/comments
func (s *Server) ListComments(c *fiber.Ctx) error {
	postID, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}
	page, perPage := pageParams(c)
	comments, err := s.commentService.List(c.UserContext(), actorFrom(c), postID, page, perPage)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(comments)
}

// CreateComment handles POST /api/posts/:id/comments
func (s *Server) CreateComment(c *fiber.Ctx) error {
	postID, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}
	var req commentRequest
	if err := c.BodyParser(&req); err != nil {
		return invalidBody(c)
	}
	comment, err := s.commentService.Create(c.UserContext(), actorFrom(c), postID, req.Body)
	if err != nil {
		return respondError(c, err)
	}
	return data(c, fiber.StatusCreated, comment)
}

// GetComment handles GET /api/posts/:id/comments/:commentId
func (s *Server) GetComment(c *fiber.Ctx) error {
	postID, commentID, ok := s.commentIDs(c)
	if !ok {
		return nil
	}
	comment, err := s.commentService.Get(c.UserContext(), actorFrom(c), postID, commentID)
	if err != nil {
		return respondError(c, err)
	}
	return data(c, fiber.StatusOK, comment)
}

// UpdateComment handles PUT and PATCH /api/posts/:id/comments/:commentId
func (s *Server) UpdateComment(c *fiber.Ctx) error {
	postID, commentID, ok := s.commentIDs(c)
	if !ok {
		return nil
	}
	var req commentRequest
	if err := c.BodyParser(&req); err != nil {
		return invalidBody(c)
	}
	comment, err := s.commentService.Update(c.UserContext(), actorFrom(c), postID, commentID, req.Body)
	if err != nil {
		return respondError(c, err)
	}
	return data(c, fiber.StatusOK, comment)
}

// DeleteComment handles DELETE /api/posts/:id/comments/:commentId
func (s *Server) DeleteComment(c *fiber.Ctx) error {
	postID, commentID, ok := s.commentIDs(c)
	if !ok {
		return nil
	}
	if err := s.commentService.Delete(c.UserContext(), actorFrom(c), postID, commentID); err != nil {
		return respondError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (s *Server) commentIDs(c *fiber.Ctx) (postID, commentID uint, ok bool) {
	postID, err := s.parseID(c, "id")
	if err != nil {
		return 0, 0, false
	}
	commentID, err = s.parseID(c, "commentId")
	if err != nil {
		return 0, 0, false
	}
	return postID, commentID, true
}
