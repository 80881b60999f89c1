package wallet

import (
	"context"
	"errors"
	"log/slog"

	"github.com/swapyard/swapyard/internal/fault"
	"github.com/swapyard/swapyard/internal/ledger"
)

// Service exposes wallet snapshots, transaction history and running
// statistics on top of the ledger store.
type Service struct {
	store  ledger.Store
	logger *slog.Logger
}

// NewService builds a wallet service instance.
func NewService(store ledger.Store, logger *slog.Logger) *Service {
	return &Service{store: store, logger: logger}
}

// GetWalletInfo returns the caller's wallet, creating it lazily on first
// access.
func (s *Service) GetWalletInfo(ctx context.Context, userID string) (ledger.Wallet, error) {
	w, err := s.store.GetOrCreateWallet(ctx, userID)
	if err != nil {
		return ledger.Wallet{}, s.internal("wallet lookup failed", err, userID)
	}
	return w, nil
}

// History returns the caller's transactions, newest first.
func (s *Service) History(ctx context.Context, userID string, filter ledger.HistoryFilter, page ledger.Page) ([]ledger.Transaction, error) {
	txns, err := s.store.HistoryFor(ctx, userID, filter, page)
	if err != nil {
		return nil, s.internal("history query failed", err, userID)
	}
	return txns, nil
}

// Stats summarizes a user's ledger activity without client-side re-scans.
type Stats struct {
	TotalReceived  int64
	TotalSent      int64
	EscrowExposure int64
}

// Stats aggregates completed movements for the user plus their current
// escrow exposure.
func (s *Service) Stats(ctx context.Context, userID string) (Stats, error) {
	completed := []ledger.Status{ledger.StatusCompleted}

	received, err := s.store.Aggregate(ctx, userID, ledger.DirectionIn, nil, completed)
	if err != nil {
		return Stats{}, s.internal("aggregate failed", err, userID)
	}
	sent, err := s.store.Aggregate(ctx, userID, ledger.DirectionOut, nil, completed)
	if err != nil {
		return Stats{}, s.internal("aggregate failed", err, userID)
	}
	w, err := s.store.GetOrCreateWallet(ctx, userID)
	if err != nil {
		return Stats{}, s.internal("wallet lookup failed", err, userID)
	}

	return Stats{TotalReceived: received, TotalSent: sent, EscrowExposure: w.HeldInEscrow}, nil
}

func (s *Service) internal(msg string, err error, userID string) error {
	var fe *fault.Error
	if errors.As(err, &fe) {
		return err
	}
	s.logger.Error(msg, "user_id", userID, "error", err)
	return fault.Internal(msg, err)
}
