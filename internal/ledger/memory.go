package ledger

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/swapyard/swapyard/internal/fault"
)

type memoryState struct {
	wallets       map[string]Wallet // keyed by owner id
	transactions  []Transaction
	opIDs         map[string]string // op id -> transaction id
	escrows       map[string]EscrowAccount
	escrowByOffer map[string]string // offer id -> escrow id
}

func newMemoryState() *memoryState {
	return &memoryState{
		wallets:       make(map[string]Wallet),
		opIDs:         make(map[string]string),
		escrows:       make(map[string]EscrowAccount),
		escrowByOffer: make(map[string]string),
	}
}

func (s *memoryState) clone() *memoryState {
	c := newMemoryState()
	for k, v := range s.wallets {
		c.wallets[k] = v
	}
	c.transactions = append([]Transaction(nil), s.transactions...)
	for k, v := range s.opIDs {
		c.opIDs[k] = v
	}
	for k, v := range s.escrows {
		c.escrows[k] = v
	}
	for k, v := range s.escrowByOffer {
		c.escrowByOffer[k] = v
	}
	return c
}

type memoryStore struct {
	mu    sync.RWMutex
	state *memoryState
}

// NewMemoryStore creates a concurrency-safe in-memory store used by unit
// tests and dev mode. Atomic units run against a staged copy of the state,
// so a failed unit leaves nothing behind.
func NewMemoryStore() Store {
	return &memoryStore{state: newMemoryState()}
}

func (s *memoryStore) WithinTx(_ context.Context, fn func(Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stage := s.state.clone()
	if err := fn(&memoryTx{state: stage}); err != nil {
		return err
	}
	s.state = stage
	return nil
}

func (s *memoryStore) GetOrCreateWallet(_ context.Context, ownerID string) (Wallet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return walletFor(s.state, ownerID), nil
}

func (s *memoryStore) HistoryFor(_ context.Context, userID string, filter HistoryFilter, page Page) ([]Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	w, ok := s.state.wallets[userID]
	if !ok {
		return nil, nil
	}

	var matched []Transaction
	for _, txn := range s.state.transactions {
		if txn.SenderWalletID != w.ID && txn.ReceiverWalletID != w.ID {
			continue
		}
		if !filter.matches(txn) {
			continue
		}
		matched = append(matched, txn)
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	limit := page.Limit
	if limit <= 0 {
		limit = defaultPageSize
	}
	offset := page.Offset
	if offset < 0 {
		offset = 0
	}
	if offset >= len(matched) {
		return nil, nil
	}
	matched = matched[offset:]
	if len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, nil
}

func (s *memoryStore) Aggregate(_ context.Context, userID string, dir Direction, kinds []Kind, statuses []Status) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	w, ok := s.state.wallets[userID]
	if !ok {
		return 0, nil
	}

	filter := HistoryFilter{Kinds: kinds, Statuses: statuses}
	var sum int64
	for _, txn := range s.state.transactions {
		switch dir {
		case DirectionIn:
			if txn.ReceiverWalletID != w.ID {
				continue
			}
		case DirectionOut:
			if txn.SenderWalletID != w.ID {
				continue
			}
		default:
			if txn.SenderWalletID != w.ID && txn.ReceiverWalletID != w.ID {
				continue
			}
		}
		if filter.matches(txn) {
			sum += txn.Amount
		}
	}
	return sum, nil
}

func (s *memoryStore) GetEscrow(_ context.Context, id string) (EscrowAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	acct, ok := s.state.escrows[id]
	if !ok {
		return EscrowAccount{}, fault.NotFound("escrow", id)
	}
	return acct, nil
}

func (s *memoryStore) EscrowForOffer(_ context.Context, offerID string) (EscrowAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.state.escrowByOffer[offerID]
	if !ok {
		return EscrowAccount{}, fault.NotFound("escrow", offerID)
	}
	return s.state.escrows[id], nil
}

func (s *memoryStore) ListEscrowsForUser(_ context.Context, userID string) ([]EscrowAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var accounts []EscrowAccount
	for _, acct := range s.state.escrows {
		if acct.BuyerID == userID || acct.SellerID == userID {
			accounts = append(accounts, acct)
		}
	}
	sort.Slice(accounts, func(i, j int) bool {
		return accounts[i].CreatedAt.After(accounts[j].CreatedAt)
	})
	return accounts, nil
}

func (s *memoryStore) ListExpiredFunded(_ context.Context, cutoff time.Time) ([]EscrowAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var accounts []EscrowAccount
	for _, acct := range s.state.escrows {
		if acct.Status == EscrowFunded && acct.ExpiresAt.Before(cutoff) {
			accounts = append(accounts, acct)
		}
	}
	return accounts, nil
}

const defaultPageSize = 50

func (f HistoryFilter) matches(txn Transaction) bool {
	if len(f.Kinds) > 0 && !containsKind(f.Kinds, txn.Kind) {
		return false
	}
	if len(f.Statuses) > 0 && !containsStatus(f.Statuses, txn.Status) {
		return false
	}
	if !f.Since.IsZero() && txn.CreatedAt.Before(f.Since) {
		return false
	}
	if !f.Until.IsZero() && txn.CreatedAt.After(f.Until) {
		return false
	}
	return true
}

func containsKind(kinds []Kind, k Kind) bool {
	for _, kind := range kinds {
		if kind == k {
			return true
		}
	}
	return false
}

func containsStatus(statuses []Status, s Status) bool {
	for _, status := range statuses {
		if status == s {
			return true
		}
	}
	return false
}

func walletFor(state *memoryState, ownerID string) Wallet {
	if w, ok := state.wallets[ownerID]; ok {
		return w
	}
	w := Wallet{
		ID:             uuid.NewString(),
		OwnerID:        ownerID,
		LastActivityAt: time.Now().UTC(),
	}
	state.wallets[ownerID] = w
	return w
}

// memoryTx mutates the staged state. The store lock is held by WithinTx for
// the whole unit.
type memoryTx struct {
	state *memoryState
}

func (t *memoryTx) WalletFor(_ context.Context, ownerID string) (Wallet, error) {
	return walletFor(t.state, ownerID), nil
}

func (t *memoryTx) DebitAvailable(_ context.Context, ownerID string, amount int64) (Wallet, error) {
	w := walletFor(t.state, ownerID)
	if w.AvailableBalance < amount {
		return Wallet{}, fault.InsufficientFunds(amount, w.AvailableBalance)
	}
	w.AvailableBalance -= amount
	w.LastActivityAt = time.Now().UTC()
	t.state.wallets[ownerID] = w
	return w, nil
}

func (t *memoryTx) CreditAvailable(_ context.Context, ownerID string, amount int64, earned bool) (Wallet, error) {
	w := walletFor(t.state, ownerID)
	w.AvailableBalance += amount
	if earned {
		w.TotalEarned += amount
	}
	w.LastActivityAt = time.Now().UTC()
	t.state.wallets[ownerID] = w
	return w, nil
}

func (t *memoryTx) HoldFunds(_ context.Context, ownerID string, debit, principal int64) (Wallet, error) {
	w := walletFor(t.state, ownerID)
	if w.AvailableBalance < debit {
		return Wallet{}, fault.InsufficientFunds(debit, w.AvailableBalance)
	}
	w.AvailableBalance -= debit
	w.HeldInEscrow += principal
	w.LastActivityAt = time.Now().UTC()
	t.state.wallets[ownerID] = w
	return w, nil
}

func (t *memoryTx) ReleaseHold(_ context.Context, ownerID string, principal int64) (Wallet, error) {
	w := walletFor(t.state, ownerID)
	if w.HeldInEscrow < principal {
		return Wallet{}, fault.InsufficientFunds(principal, w.HeldInEscrow)
	}
	w.HeldInEscrow -= principal
	w.LastActivityAt = time.Now().UTC()
	t.state.wallets[ownerID] = w
	return w, nil
}

func (t *memoryTx) AppendTransaction(_ context.Context, txn Transaction) (Transaction, error) {
	if _, exists := t.state.opIDs[txn.OpID]; exists {
		return Transaction{}, fault.Conflict("duplicate operation", map[string]any{"op_id": txn.OpID})
	}
	if txn.ID == "" {
		txn.ID = uuid.NewString()
	}
	if txn.CreatedAt.IsZero() {
		txn.CreatedAt = time.Now().UTC()
	}
	t.state.transactions = append(t.state.transactions, txn)
	t.state.opIDs[txn.OpID] = txn.ID
	return txn, nil
}

func (t *memoryTx) GetEscrowForUpdate(_ context.Context, id string) (EscrowAccount, error) {
	acct, ok := t.state.escrows[id]
	if !ok {
		return EscrowAccount{}, fault.NotFound("escrow", id)
	}
	return acct, nil
}

func (t *memoryTx) InsertEscrow(_ context.Context, acct EscrowAccount) error {
	if _, exists := t.state.escrowByOffer[acct.OfferID]; exists {
		return fault.Conflict("escrow already exists for offer", map[string]any{"offer_id": acct.OfferID})
	}
	t.state.escrows[acct.ID] = acct
	t.state.escrowByOffer[acct.OfferID] = acct.ID
	return nil
}

func (t *memoryTx) UpdateEscrow(_ context.Context, acct EscrowAccount) error {
	if _, ok := t.state.escrows[acct.ID]; !ok {
		return fault.NotFound("escrow", acct.ID)
	}
	t.state.escrows[acct.ID] = acct
	return nil
}
