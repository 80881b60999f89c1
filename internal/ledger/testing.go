package ledger

import "time"

// SeedBalance is a test helper that sets the available balance for an owner
// when using the in-memory store, creating the wallet lazily.
func SeedBalance(s Store, ownerID string, amount int64) {
	if mem, ok := s.(*memoryStore); ok {
		mem.mu.Lock()
		defer mem.mu.Unlock()
		w := walletFor(mem.state, ownerID)
		w.AvailableBalance = amount
		mem.state.wallets[ownerID] = w
	}
}

// ForceExpire is a test helper that rewinds an escrow's expiry when using the
// in-memory store, so sweep tests can observe the auto-release path.
func ForceExpire(s Store, escrowID string, expiresAt time.Time) {
	if mem, ok := s.(*memoryStore); ok {
		mem.mu.Lock()
		defer mem.mu.Unlock()
		if acct, ok := mem.state.escrows[escrowID]; ok {
			acct.ExpiresAt = expiresAt
			mem.state.escrows[escrowID] = acct
		}
	}
}
