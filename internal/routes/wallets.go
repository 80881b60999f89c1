package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/swapyard/swapyard/internal/wallet"
)

// RegisterWalletRoutes wires wallet-related endpoints.
func RegisterWalletRoutes(r fiber.Router, h *wallet.Handler) {
	r.Get("/wallets/me", h.Me)
	r.Get("/wallets/me/transactions", h.Transactions)
	r.Get("/wallets/me/stats", h.Stats)
}
