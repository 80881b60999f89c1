package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"
)

const (
	callerHeader = "X-User-ID"

	// CallerKey is the locals key under which the verified caller id is
	// stored for handlers.
	CallerKey = "user_id"
)

// CallerID extracts the caller identity forwarded by the auth gateway in
// front of this service. Reserved system identities are never accepted from
// the network.
func CallerID() fiber.Handler {
	return func(c *fiber.Ctx) error {
		caller := strings.TrimSpace(c.Get(callerHeader))
		if caller == "" {
			return fiber.NewError(fiber.StatusUnauthorized, "missing caller identity")
		}
		if strings.HasPrefix(caller, "system:") {
			return fiber.NewError(fiber.StatusForbidden, "reserved caller identity")
		}

		c.Locals(CallerKey, caller)
		return c.Next()
	}
}

// Caller returns the verified caller id for the request, if any.
func Caller(c *fiber.Ctx) string {
	caller, _ := c.Locals(CallerKey).(string)
	return caller
}
