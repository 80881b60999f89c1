package httpx

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/swapyard/swapyard/internal/fault"
)

// Error renders a fault as a JSON response keyed by its discriminant.
// Anything else is reported as an opaque internal failure.
func Error(c *fiber.Ctx, err error) error {
	var fe *fault.Error
	if !errors.As(err, &fe) {
		return c.Status(http.StatusInternalServerError).JSON(fiber.Map{
			"error": fiber.Map{"kind": fault.KindInternal, "message": "internal error"},
		})
	}

	body := fiber.Map{"kind": fe.Kind, "message": fe.Message}
	if len(fe.Details) > 0 {
		body["details"] = fe.Details
	}
	return c.Status(fault.HTTPStatus(fe.Kind)).JSON(fiber.Map{"error": body})
}
