package transfer

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/swapyard/swapyard/internal/httpx"
	"github.com/swapyard/swapyard/internal/middleware"
)

// Handler exposes the transfer HTTP endpoint.
type Handler struct {
	service *Service
}

// NewHandler builds a transfer HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type transferRequest struct {
	ToUserID    string `json:"to_user_id"`
	Amount      int64  `json:"amount"`
	Description string `json:"description"`
	ClientTxID  string `json:"client_tx_id"`
}

// Create moves funds from the caller's wallet to another user's.
func (h *Handler) Create(c *fiber.Ctx) error {
	var req transferRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}

	res, err := h.service.Transfer(c.UserContext(), Input{
		FromUserID:  middleware.Caller(c),
		ToUserID:    req.ToUserID,
		Amount:      req.Amount,
		Description: req.Description,
		ClientTxID:  req.ClientTxID,
	})
	if err != nil {
		return httpx.Error(c, err)
	}
	// The recipient's balance stays private; the sender only learns their own.
	return c.Status(http.StatusCreated).JSON(fiber.Map{
		"transaction_id": res.Transaction.ID,
		"from_balance":   res.FromBalance,
		"completed_at":   res.CompletedAt,
	})
}
