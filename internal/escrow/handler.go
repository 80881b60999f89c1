package escrow

import (
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/swapyard/swapyard/internal/httpx"
	"github.com/swapyard/swapyard/internal/ledger"
	"github.com/swapyard/swapyard/internal/middleware"
)

// Handler exposes escrow HTTP endpoints.
type Handler struct {
	service *Service
}

// NewHandler builds an escrow HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type createRequest struct {
	OfferID          string `json:"offer_id"`
	Amount           int64  `json:"amount"`
	ReleaseCondition string `json:"release_condition"`
}

type confirmRequest struct {
	Confirm bool `json:"confirm"`
}

type disputeRequest struct {
	Reason string `json:"reason"`
}

type escrowResponse struct {
	ID               string     `json:"id"`
	Reference        string     `json:"reference"`
	Amount           int64      `json:"amount"`
	FeeAmount        int64      `json:"fee_amount"`
	Status           string     `json:"status"`
	BuyerID          string     `json:"buyer_id"`
	SellerID         string     `json:"seller_id"`
	OfferID          string     `json:"offer_id"`
	ReleaseCondition string     `json:"release_condition,omitempty"`
	ExpiresAt        time.Time  `json:"expires_at"`
	DisputeReason    string     `json:"dispute_reason,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	ReleasedAt       *time.Time `json:"released_at,omitempty"`
	DisputeOpenedAt  *time.Time `json:"dispute_opened_at,omitempty"`
}

// Create opens an escrow for an accepted offer.
func (h *Handler) Create(c *fiber.Ctx) error {
	var req createRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	if req.OfferID == "" {
		return fiber.NewError(http.StatusBadRequest, "offer_id is required")
	}

	acct, err := h.service.Create(c.UserContext(), middleware.Caller(c), CreateInput{
		OfferID:          req.OfferID,
		Amount:           req.Amount,
		ReleaseCondition: req.ReleaseCondition,
	})
	if err != nil {
		return httpx.Error(c, err)
	}
	return c.Status(http.StatusCreated).JSON(toEscrowResponse(acct))
}

// Get returns one escrow snapshot to a participant.
func (h *Handler) Get(c *fiber.Ctx) error {
	acct, err := h.service.Get(c.UserContext(), c.Params("escrowId"), middleware.Caller(c))
	if err != nil {
		return httpx.Error(c, err)
	}
	return c.Status(http.StatusOK).JSON(toEscrowResponse(acct))
}

// List returns every escrow the caller participates in.
func (h *Handler) List(c *fiber.Ctx) error {
	accounts, err := h.service.ListForUser(c.UserContext(), middleware.Caller(c))
	if err != nil {
		return httpx.Error(c, err)
	}
	out := make([]escrowResponse, 0, len(accounts))
	for _, acct := range accounts {
		out = append(out, toEscrowResponse(acct))
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"escrows": out})
}

// Release pays the escrowed principal out to the seller.
func (h *Handler) Release(c *fiber.Ctx) error {
	var req confirmRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	acct, err := h.service.Release(c.UserContext(), c.Params("escrowId"), middleware.Caller(c), req.Confirm)
	if err != nil {
		return httpx.Error(c, err)
	}
	return c.Status(http.StatusOK).JSON(toEscrowResponse(acct))
}

// Dispute freezes a funded escrow.
func (h *Handler) Dispute(c *fiber.Ctx) error {
	var req disputeRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	acct, err := h.service.Dispute(c.UserContext(), c.Params("escrowId"), middleware.Caller(c), req.Reason)
	if err != nil {
		return httpx.Error(c, err)
	}
	return c.Status(http.StatusOK).JSON(toEscrowResponse(acct))
}

// Refund returns the escrowed principal to the buyer out of a dispute.
func (h *Handler) Refund(c *fiber.Ctx) error {
	var req confirmRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	acct, err := h.service.Refund(c.UserContext(), c.Params("escrowId"), middleware.Caller(c), req.Confirm)
	if err != nil {
		return httpx.Error(c, err)
	}
	return c.Status(http.StatusOK).JSON(toEscrowResponse(acct))
}

func toEscrowResponse(acct ledger.EscrowAccount) escrowResponse {
	return escrowResponse{
		ID:               acct.ID,
		Reference:        acct.Reference,
		Amount:           acct.Amount,
		FeeAmount:        acct.FeeAmount,
		Status:           string(acct.Status),
		BuyerID:          acct.BuyerID,
		SellerID:         acct.SellerID,
		OfferID:          acct.OfferID,
		ReleaseCondition: acct.ReleaseCondition,
		ExpiresAt:        acct.ExpiresAt,
		DisputeReason:    acct.DisputeReason,
		CreatedAt:        acct.CreatedAt,
		ReleasedAt:       acct.ReleasedAt,
		DisputeOpenedAt:  acct.DisputeOpenedAt,
	}
}
