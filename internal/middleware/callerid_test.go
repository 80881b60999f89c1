package middleware

import (
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
)

func callerApp() *fiber.App {
	app := fiber.New()
	app.Use(CallerID())
	app.Get("/whoami", func(c *fiber.Ctx) error {
		return c.SendString(Caller(c))
	})
	return app
}

func TestCallerIDRequiresHeader(t *testing.T) {
	app := callerApp()

	req := httptest.NewRequest(fiber.MethodGet, "/whoami", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	if resp.StatusCode != fiber.StatusUnauthorized {
		t.Fatalf("expected %d got %d", fiber.StatusUnauthorized, resp.StatusCode)
	}
}

func TestCallerIDRejectsSystemIdentities(t *testing.T) {
	app := callerApp()

	req := httptest.NewRequest(fiber.MethodGet, "/whoami", nil)
	req.Header.Set(callerHeader, "system:reaper")
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	if resp.StatusCode != fiber.StatusForbidden {
		t.Fatalf("expected %d got %d", fiber.StatusForbidden, resp.StatusCode)
	}
}

func TestCallerIDStoresCaller(t *testing.T) {
	app := callerApp()

	req := httptest.NewRequest(fiber.MethodGet, "/whoami", nil)
	req.Header.Set(callerHeader, "user-42")
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("expected %d got %d", fiber.StatusOK, resp.StatusCode)
	}
}
