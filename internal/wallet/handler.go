package wallet

import (
	"net/http"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/swapyard/swapyard/internal/httpx"
	"github.com/swapyard/swapyard/internal/ledger"
	"github.com/swapyard/swapyard/internal/middleware"
)

// Handler exposes wallet HTTP endpoints.
type Handler struct {
	service *Service
}

// NewHandler builds a wallet HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type walletResponse struct {
	ID               string    `json:"id"`
	OwnerID          string    `json:"owner_id"`
	AvailableBalance int64     `json:"available_balance"`
	HeldInEscrow     int64     `json:"held_in_escrow"`
	TotalEarned      int64     `json:"total_earned"`
	LastActivityAt   time.Time `json:"last_activity_at"`
}

type transactionResponse struct {
	ID               string    `json:"id"`
	Kind             string    `json:"kind"`
	Amount           int64     `json:"amount"`
	Status           string    `json:"status"`
	SenderWalletID   string    `json:"sender_wallet_id"`
	ReceiverWalletID string    `json:"receiver_wallet_id"`
	RelatedOfferID   string    `json:"related_offer_id,omitempty"`
	RelatedEscrowID  string    `json:"related_escrow_id,omitempty"`
	Description      string    `json:"description,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
}

// Me returns the caller's wallet snapshot, creating the wallet lazily.
func (h *Handler) Me(c *fiber.Ctx) error {
	w, err := h.service.GetWalletInfo(c.UserContext(), middleware.Caller(c))
	if err != nil {
		return httpx.Error(c, err)
	}
	return c.Status(http.StatusOK).JSON(toWalletResponse(w))
}

// Transactions returns the caller's paginated transaction history.
func (h *Handler) Transactions(c *fiber.Ctx) error {
	filter := ledger.HistoryFilter{}
	for _, k := range splitParam(c.Query("kind")) {
		filter.Kinds = append(filter.Kinds, ledger.Kind(k))
	}
	for _, st := range splitParam(c.Query("status")) {
		filter.Statuses = append(filter.Statuses, ledger.Status(st))
	}
	if v := c.Query("since"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return fiber.NewError(http.StatusBadRequest, "invalid since timestamp")
		}
		filter.Since = t
	}
	if v := c.Query("until"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return fiber.NewError(http.StatusBadRequest, "invalid until timestamp")
		}
		filter.Until = t
	}
	page := ledger.Page{
		Limit:  c.QueryInt("limit"),
		Offset: c.QueryInt("offset"),
	}
	if page.Limit < 0 || page.Offset < 0 {
		return fiber.NewError(http.StatusBadRequest, "limit and offset must not be negative")
	}

	txns, err := h.service.History(c.UserContext(), middleware.Caller(c), filter, page)
	if err != nil {
		return httpx.Error(c, err)
	}

	out := make([]transactionResponse, 0, len(txns))
	for _, txn := range txns {
		out = append(out, transactionResponse{
			ID:               txn.ID,
			Kind:             string(txn.Kind),
			Amount:           txn.Amount,
			Status:           string(txn.Status),
			SenderWalletID:   txn.SenderWalletID,
			ReceiverWalletID: txn.ReceiverWalletID,
			RelatedOfferID:   txn.RelatedOfferID,
			RelatedEscrowID:  txn.RelatedEscrowID,
			Description:      txn.Description,
			CreatedAt:        txn.CreatedAt,
		})
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"transactions": out, "offset": page.Offset})
}

// Stats returns the caller's ledger aggregates.
func (h *Handler) Stats(c *fiber.Ctx) error {
	stats, err := h.service.Stats(c.UserContext(), middleware.Caller(c))
	if err != nil {
		return httpx.Error(c, err)
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{
		"total_received":  stats.TotalReceived,
		"total_sent":      stats.TotalSent,
		"escrow_exposure": stats.EscrowExposure,
	})
}

func toWalletResponse(w ledger.Wallet) walletResponse {
	return walletResponse{
		ID:               w.ID,
		OwnerID:          w.OwnerID,
		AvailableBalance: w.AvailableBalance,
		HeldInEscrow:     w.HeldInEscrow,
		TotalEarned:      w.TotalEarned,
		LastActivityAt:   w.LastActivityAt,
	}
}

func splitParam(v string) []string {
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
