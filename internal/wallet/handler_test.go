package wallet

import (
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"

	"github.com/swapyard/swapyard/internal/ledger"
	"github.com/swapyard/swapyard/internal/logging"
)

func TestTransactionsRejectsNegativePaging(t *testing.T) {
	h := NewHandler(NewService(ledger.NewMemoryStore(), logging.Discard()))
	app := fiber.New()
	app.Get("/wallets/me/transactions", h.Transactions)

	for _, target := range []string{
		"/wallets/me/transactions?offset=-1",
		"/wallets/me/transactions?limit=-5",
	} {
		req := httptest.NewRequest(fiber.MethodGet, target, nil)
		resp, err := app.Test(req)
		if err != nil {
			t.Fatalf("app.Test: %v", err)
		}
		if resp.StatusCode != fiber.StatusBadRequest {
			t.Fatalf("%s: expected %d got %d", target, fiber.StatusBadRequest, resp.StatusCode)
		}
	}
}

func TestTransactionsRejectsBadTimestamps(t *testing.T) {
	h := NewHandler(NewService(ledger.NewMemoryStore(), logging.Discard()))
	app := fiber.New()
	app.Get("/wallets/me/transactions", h.Transactions)

	req := httptest.NewRequest(fiber.MethodGet, "/wallets/me/transactions?since=yesterday", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Fatalf("expected %d got %d", fiber.StatusBadRequest, resp.StatusCode)
	}
}
