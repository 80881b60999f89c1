package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/swapyard/swapyard/internal/escrow"
)

// RegisterEscrowRoutes wires escrow lifecycle endpoints.
func RegisterEscrowRoutes(r fiber.Router, h *escrow.Handler) {
	r.Post("/escrows", h.Create)
	r.Get("/escrows", h.List)
	r.Get("/escrows/:escrowId", h.Get)
	r.Post("/escrows/:escrowId/release", h.Release)
	r.Post("/escrows/:escrowId/dispute", h.Dispute)
	r.Post("/escrows/:escrowId/refund", h.Refund)
}
