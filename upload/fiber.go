package upload

import (
	"github.com/gofiber/fiber/v2"

	"filesentry/logger"
)

// Fiber returns the guard as fiber middleware. The app's BodyLimit still
// applies before the guard sees the request.
func (g *Guard) Fiber() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !isMultipartForm(c.Get(fiber.HeaderContentType)) {
			return c.Next()
		}
		if int64(len(c.Body())) > g.opts.MaxUploadBytes {
			return c.SendStatus(fiber.StatusRequestEntityTooLarge)
		}
		form, err := c.MultipartForm()
		if err != nil {
			logger.Debugf("Malformed multipart body: %v", err)
			return c.SendStatus(fiber.StatusBadRequest)
		}
		if len(form.File) == 0 {
			return c.Next()
		}

		uploads, err := readFileHeaders(form.File)
		if err != nil {
			logger.Warnf("Failed to read uploaded file: %v", err)
			return c.SendStatus(fiber.StatusBadRequest)
		}
		v := g.Inspect(c.UserContext(), c.Get(RequestIDHeader), uploads)
		if v.Rejected {
			return c.Status(fiber.StatusForbidden).SendString(RejectionMessage)
		}
		return c.Next()
	}
}
