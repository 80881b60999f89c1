package offers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/swapyard/swapyard/internal/fault"
)

// Client talks to the offers subsystem over its internal HTTP API. It
// implements both Gateway and Directory.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient builds an HTTP-backed offers client.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 10 * time.Second},
	}
}

type offerPayload struct {
	ID         string `json:"id"`
	Status     string `json:"status"`
	CashAmount int64  `json:"cash_amount"`
	BuyerID    string `json:"buyer_id"`
	SellerID   string `json:"seller_id"`
	ListingRef string `json:"listing_ref"`
}

// GetOffer fetches one offer snapshot.
func (c *Client) GetOffer(ctx context.Context, id string) (Offer, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/internal/offers/"+id, nil)
	if err != nil {
		return Offer{}, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return Offer{}, fmt.Errorf("offers gateway: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return Offer{}, fault.NotFound("offer", id)
	default:
		return Offer{}, fmt.Errorf("offers gateway: unexpected status %d", resp.StatusCode)
	}

	var payload offerPayload
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return Offer{}, fmt.Errorf("offers gateway: decode offer: %w", err)
	}
	return Offer{
		ID:         payload.ID,
		Status:     Status(payload.Status),
		CashAmount: payload.CashAmount,
		BuyerID:    payload.BuyerID,
		SellerID:   payload.SellerID,
		ListingRef: payload.ListingRef,
	}, nil
}

// Exists checks a user id against the offers subsystem's user directory.
func (c *Client) Exists(ctx context.Context, userID string) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/internal/users/"+userID, nil)
	if err != nil {
		return false, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return false, fmt.Errorf("user directory: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		return true, nil
	case http.StatusNotFound:
		return false, nil
	default:
		return false, fmt.Errorf("user directory: unexpected status %d", resp.StatusCode)
	}
}
