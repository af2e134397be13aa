package server

import (
	"io"

	"quill/internal/media"
	"quill/internal/models"

	"github.com/gofiber/fiber/v2"
)

// UploadImage handles POST /api/posts/:id/image with a multipart "image"
// field. The stored image replaces any previous one.
func (s *Server) UploadImage(c *fiber.Ctx) error {
	id, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}

	fileHeader, err := c.FormFile("image")
	if err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("No image provided"))
	}
	if limit := int64(s.config.ImageMaxUploadSizeMB) * 1024 * 1024; limit > 0 && fileHeader.Size > limit {
		return respondError(c, models.NewValidationError("image is too large"))
	}

	file, err := fileHeader.Open()
	if err != nil {
		return respondError(c, err)
	}
	defer func() { _ = file.Close() }()

	content, err := io.ReadAll(file)
	if err != nil {
		return respondError(c, err)
	}

	post, err := s.postService.UploadImage(c.UserContext(), actorFrom(c), id, media.Upload{
		Filename:    fileHeader.Filename,
		ContentType: fileHeader.Header.Get(fiber.HeaderContentType),
		Content:     content,
	})
	if err != nil {
		return respondError(c, err)
	}
	return data(c, fiber.StatusOK, post)
}

// DeleteImage handles DELETE /api/posts/:id/image
func (s *Server) DeleteImage(c *fiber.Ctx) error {
	id, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}
	post, err := s.postService.DeleteImage(c.UserContext(), actorFrom(c), id)
	if err != nil {
		return respondError(c, err)
	}
	return data(c, fiber.StatusOK, post)
}
