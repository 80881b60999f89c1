package offers

import (
	"context"
	"sync"

	"github.com/swapyard/swapyard/internal/fault"
)

// Status mirrors the offer lifecycle owned by the offers subsystem. Only
// ACCEPTED offers can be escrowed.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusAccepted  Status = "ACCEPTED"
	StatusDeclined  Status = "DECLINED"
	StatusCancelled Status = "CANCELLED"
)

// Offer is the read-only snapshot the ledger core needs from the offers
// subsystem. BuyerID is the party paying cash; CashAmount may be zero for
// pure swaps.
type Offer struct {
	ID         string
	Status     Status
	CashAmount int64
	BuyerID    string
	SellerID   string
	ListingRef string
}

// Gateway reads offers from the external offers subsystem.
type Gateway interface {
	GetOffer(ctx context.Context, id string) (Offer, error)
}

// Directory answers whether a user exists, for transfer recipient checks.
type Directory interface {
	Exists(ctx context.Context, userID string) (bool, error)
}

// MemoryGateway is an in-memory gateway used by unit tests and dev mode.
type MemoryGateway struct {
	mu     sync.RWMutex
	offers map[string]Offer
	users  map[string]struct{}
}

// NewMemoryGateway creates an empty in-memory offers/users fixture.
func NewMemoryGateway() *MemoryGateway {
	return &MemoryGateway{offers: make(map[string]Offer), users: make(map[string]struct{})}
}

// PutOffer registers an offer and both participants.
func (g *MemoryGateway) PutOffer(offer Offer) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.offers[offer.ID] = offer
	g.users[offer.BuyerID] = struct{}{}
	g.users[offer.SellerID] = struct{}{}
}

// PutUser registers a known user id.
func (g *MemoryGateway) PutUser(userID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.users[userID] = struct{}{}
}

// GetOffer returns the stored offer or a NotFound fault.
func (g *MemoryGateway) GetOffer(_ context.Context, id string) (Offer, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	offer, ok := g.offers[id]
	if !ok {
		return Offer{}, fault.NotFound("offer", id)
	}
	return offer, nil
}

// Exists reports whether the user id was registered.
func (g *MemoryGateway) Exists(_ context.Context, userID string) (bool, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	_, ok := g.users[userID]
	return ok, nil
}
