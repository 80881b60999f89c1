package escrow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/swapyard/swapyard/internal/fault"
	"github.com/swapyard/swapyard/internal/ledger"
	"github.com/swapyard/swapyard/internal/notification"
	"github.com/swapyard/swapyard/internal/offers"
)

// SystemReaper is the trusted automated caller used by the expiry sweep. It
// is never accepted from the HTTP surface.
const SystemReaper = "system:reaper"

const (
	defaultFeeBps     = 250
	defaultWindow     = 7 * 24 * time.Hour
	defaultDeposit    = 500_000
	defaultSweepBatch = 100
)

// Settings carries the escrow policy knobs, passed at construction.
type Settings struct {
	// FeeBps is the platform fee in basis points of the principal.
	FeeBps int64
	// Window is how long a funded escrow waits before auto-release.
	Window time.Duration
	// DefaultDeposit is the protection deposit, in minor units, for
	// swap-only offers that carry no cash amount.
	DefaultDeposit int64
}

func (s Settings) withDefaults() Settings {
	if s.FeeBps <= 0 {
		s.FeeBps = defaultFeeBps
	}
	if s.Window <= 0 {
		s.Window = defaultWindow
	}
	if s.DefaultDeposit <= 0 {
		s.DefaultDeposit = defaultDeposit
	}
	return s
}

// Service drives the escrow state machine over the ledger store.
type Service struct {
	store    ledger.Store
	offers   offers.Gateway
	notifier notification.Notifier
	logger   *slog.Logger
	settings Settings
}

// NewService builds the escrow engine.
func NewService(store ledger.Store, gateway offers.Gateway, notifier notification.Notifier, logger *slog.Logger, settings Settings) *Service {
	return &Service{
		store:    store,
		offers:   gateway,
		notifier: notifier,
		logger:   logger,
		settings: settings.withDefaults(),
	}
}

// CreateInput captures the caller-supplied escrow options.
type CreateInput struct {
	OfferID string
	// Amount overrides the principal; zero means derive it from the offer.
	Amount           int64
	ReleaseCondition string
}

// Create opens an escrow for an accepted offer: it debits the buyer by
// principal plus fee, holds the principal, writes the deposit ledger entry
// and persists the account as FUNDED, all in one atomic unit.
func (s *Service) Create(ctx context.Context, requesterID string, input CreateInput) (ledger.EscrowAccount, error) {
	if input.Amount < 0 {
		return ledger.EscrowAccount{}, fault.BadRequest("amount must not be negative")
	}

	offer, err := s.offers.GetOffer(ctx, input.OfferID)
	if err != nil {
		return ledger.EscrowAccount{}, err
	}
	if offer.Status != offers.StatusAccepted {
		return ledger.EscrowAccount{}, fault.InvalidState(string(offer.Status), string(offers.StatusAccepted))
	}

	if _, err := s.store.EscrowForOffer(ctx, input.OfferID); err == nil {
		return ledger.EscrowAccount{}, fault.Conflict("escrow already exists for offer", map[string]any{"offer_id": input.OfferID})
	} else if !fault.IsKind(err, fault.KindNotFound) {
		return ledger.EscrowAccount{}, s.internal("escrow lookup failed", err, "offer_id", input.OfferID)
	}

	if requesterID != offer.BuyerID && requesterID != offer.SellerID {
		return ledger.EscrowAccount{}, fault.Unauthorized("requester is not a participant of the offer")
	}

	principal := input.Amount
	if principal == 0 {
		principal = offer.CashAmount
	}
	if principal == 0 {
		principal = s.settings.DefaultDeposit
	}
	fee := principal * s.settings.FeeBps / 10_000
	debit := principal + fee

	now := time.Now().UTC()
	acct := ledger.EscrowAccount{
		ID:               uuid.NewString(),
		Amount:           principal,
		FeeAmount:        fee,
		Status:           ledger.EscrowFunded,
		BuyerID:          offer.BuyerID,
		SellerID:         offer.SellerID,
		OfferID:          offer.ID,
		ReleaseCondition: input.ReleaseCondition,
		ExpiresAt:        now.Add(s.settings.Window),
		CreatedAt:        now,
	}
	acct.Reference = reference(acct.ID)

	err = s.store.WithinTx(ctx, func(tx ledger.Tx) error {
		buyerWallet, err := tx.HoldFunds(ctx, offer.BuyerID, debit, principal)
		if err != nil {
			return err
		}
		sellerWallet, err := tx.WalletFor(ctx, offer.SellerID)
		if err != nil {
			return err
		}
		if _, err := tx.AppendTransaction(ctx, ledger.Transaction{
			OpID:             "escrow_deposit:" + offer.ID,
			Kind:             ledger.KindEscrowDeposit,
			Amount:           debit,
			Status:           ledger.StatusCompleted,
			SenderWalletID:   buyerWallet.ID,
			ReceiverWalletID: sellerWallet.ID,
			RelatedOfferID:   offer.ID,
			RelatedEscrowID:  acct.ID,
			Description:      fmt.Sprintf("escrow deposit %s (fee %d)", acct.Reference, fee),
			CreatedAt:        now,
		}); err != nil {
			return err
		}
		return tx.InsertEscrow(ctx, acct)
	})
	if err != nil {
		var fe *fault.Error
		if errors.As(err, &fe) {
			return ledger.EscrowAccount{}, err
		}
		return ledger.EscrowAccount{}, s.internal("escrow funding failed", err,
			"escrow_id", acct.ID, "offer_id", offer.ID, "buyer_id", offer.BuyerID, "amount", debit)
	}

	s.logger.Info("escrow funded",
		"escrow_id", acct.ID, "offer_id", offer.ID, "buyer_id", offer.BuyerID,
		"seller_id", offer.SellerID, "principal", principal, "fee", fee)
	return acct, nil
}

// Release pays the held principal out to the seller. Valid from FUNDED, and
// from DISPUTED when the parties settle in the seller's favour.
func (s *Service) Release(ctx context.Context, escrowID, requesterID string, confirm bool) (ledger.EscrowAccount, error) {
	acct, err := s.store.GetEscrow(ctx, escrowID)
	if err != nil {
		return ledger.EscrowAccount{}, err
	}
	if acct.Status != ledger.EscrowFunded && acct.Status != ledger.EscrowDisputed {
		return ledger.EscrowAccount{}, fault.InvalidState(string(acct.Status), string(ledger.EscrowFunded))
	}
	if requesterID != acct.BuyerID && requesterID != acct.SellerID && requesterID != SystemReaper {
		return ledger.EscrowAccount{}, fault.Unauthorized("requester cannot release this escrow")
	}
	if !confirm {
		return ledger.EscrowAccount{}, fault.BadRequest("release must be confirmed")
	}

	now := time.Now().UTC()
	err = s.store.WithinTx(ctx, func(tx ledger.Tx) error {
		current, err := tx.GetEscrowForUpdate(ctx, escrowID)
		if err != nil {
			return err
		}
		if current.Status != ledger.EscrowFunded && current.Status != ledger.EscrowDisputed {
			return fault.InvalidState(string(current.Status), string(ledger.EscrowFunded))
		}

		buyerWallet, err := tx.ReleaseHold(ctx, current.BuyerID, current.Amount)
		if err != nil {
			return err
		}
		sellerWallet, err := tx.CreditAvailable(ctx, current.SellerID, current.Amount, true)
		if err != nil {
			return err
		}
		if _, err := tx.AppendTransaction(ctx, ledger.Transaction{
			OpID:             "escrow_release:" + current.ID,
			Kind:             ledger.KindEscrowRelease,
			Amount:           current.Amount,
			Status:           ledger.StatusCompleted,
			SenderWalletID:   buyerWallet.ID,
			ReceiverWalletID: sellerWallet.ID,
			RelatedOfferID:   current.OfferID,
			RelatedEscrowID:  current.ID,
			Description:      "escrow release " + current.Reference,
			CreatedAt:        now,
		}); err != nil {
			return err
		}

		current.Status = ledger.EscrowReleased
		current.ReleasedAt = &now
		acct = current
		return tx.UpdateEscrow(ctx, current)
	})
	if err != nil {
		var fe *fault.Error
		if errors.As(err, &fe) {
			return ledger.EscrowAccount{}, err
		}
		return ledger.EscrowAccount{}, s.internal("escrow release failed", err,
			"escrow_id", escrowID, "buyer_id", acct.BuyerID, "seller_id", acct.SellerID, "amount", acct.Amount)
	}

	s.logger.Info("escrow released",
		"escrow_id", acct.ID, "offer_id", acct.OfferID, "seller_id", acct.SellerID,
		"amount", acct.Amount, "requester", requesterID)
	s.notify(ctx, notification.KindEscrowReleased, acct.SellerID,
		fmt.Sprintf("Escrow %s released: %d credited to your wallet", acct.Reference, acct.Amount))
	return acct, nil
}

// Dispute freezes a FUNDED escrow. It moves no funds; the freeze is enforced
// by the state machine rejecting further transitions.
func (s *Service) Dispute(ctx context.Context, escrowID, requesterID, reason string) (ledger.EscrowAccount, error) {
	if strings.TrimSpace(reason) == "" {
		return ledger.EscrowAccount{}, fault.BadRequest("dispute reason is required")
	}

	acct, err := s.store.GetEscrow(ctx, escrowID)
	if err != nil {
		return ledger.EscrowAccount{}, err
	}
	if acct.Status != ledger.EscrowFunded {
		return ledger.EscrowAccount{}, fault.InvalidState(string(acct.Status), string(ledger.EscrowFunded))
	}
	if requesterID != acct.BuyerID && requesterID != acct.SellerID {
		return ledger.EscrowAccount{}, fault.Unauthorized("requester cannot dispute this escrow")
	}

	now := time.Now().UTC()
	err = s.store.WithinTx(ctx, func(tx ledger.Tx) error {
		current, err := tx.GetEscrowForUpdate(ctx, escrowID)
		if err != nil {
			return err
		}
		if current.Status != ledger.EscrowFunded {
			return fault.InvalidState(string(current.Status), string(ledger.EscrowFunded))
		}
		current.Status = ledger.EscrowDisputed
		current.DisputeReason = reason
		current.DisputeOpenedAt = &now
		acct = current
		return tx.UpdateEscrow(ctx, current)
	})
	if err != nil {
		var fe *fault.Error
		if errors.As(err, &fe) {
			return ledger.EscrowAccount{}, err
		}
		return ledger.EscrowAccount{}, s.internal("escrow dispute failed", err, "escrow_id", escrowID)
	}

	counterpart := acct.SellerID
	if requesterID == acct.SellerID {
		counterpart = acct.BuyerID
	}
	s.logger.Info("escrow disputed", "escrow_id", acct.ID, "offer_id", acct.OfferID, "requester", requesterID)
	s.notify(ctx, notification.KindEscrowDisputed, counterpart,
		fmt.Sprintf("Escrow %s was disputed: %s", acct.Reference, reason))
	return acct, nil
}

// Refund returns the held principal to the buyer out of a dispute. Only the
// seller (conceding) or the system may refund; a buyer must not be able to
// open a dispute and refund themselves.
func (s *Service) Refund(ctx context.Context, escrowID, requesterID string, confirm bool) (ledger.EscrowAccount, error) {
	acct, err := s.store.GetEscrow(ctx, escrowID)
	if err != nil {
		return ledger.EscrowAccount{}, err
	}
	if acct.Status != ledger.EscrowDisputed {
		return ledger.EscrowAccount{}, fault.InvalidState(string(acct.Status), string(ledger.EscrowDisputed))
	}
	if requesterID != acct.SellerID && requesterID != SystemReaper {
		return ledger.EscrowAccount{}, fault.Unauthorized("requester cannot refund this escrow")
	}
	if !confirm {
		return ledger.EscrowAccount{}, fault.BadRequest("refund must be confirmed")
	}

	now := time.Now().UTC()
	err = s.store.WithinTx(ctx, func(tx ledger.Tx) error {
		current, err := tx.GetEscrowForUpdate(ctx, escrowID)
		if err != nil {
			return err
		}
		if current.Status != ledger.EscrowDisputed {
			return fault.InvalidState(string(current.Status), string(ledger.EscrowDisputed))
		}

		if _, err := tx.ReleaseHold(ctx, current.BuyerID, current.Amount); err != nil {
			return err
		}
		buyerWallet, err := tx.CreditAvailable(ctx, current.BuyerID, current.Amount, false)
		if err != nil {
			return err
		}
		sellerWallet, err := tx.WalletFor(ctx, current.SellerID)
		if err != nil {
			return err
		}
		if _, err := tx.AppendTransaction(ctx, ledger.Transaction{
			OpID:             "escrow_refund:" + current.ID,
			Kind:             ledger.KindEscrowRefund,
			Amount:           current.Amount,
			Status:           ledger.StatusCompleted,
			SenderWalletID:   sellerWallet.ID,
			ReceiverWalletID: buyerWallet.ID,
			RelatedOfferID:   current.OfferID,
			RelatedEscrowID:  current.ID,
			Description:      "escrow refund " + current.Reference,
			CreatedAt:        now,
		}); err != nil {
			return err
		}

		current.Status = ledger.EscrowRefunded
		current.ReleasedAt = &now
		acct = current
		return tx.UpdateEscrow(ctx, current)
	})
	if err != nil {
		var fe *fault.Error
		if errors.As(err, &fe) {
			return ledger.EscrowAccount{}, err
		}
		return ledger.EscrowAccount{}, s.internal("escrow refund failed", err,
			"escrow_id", escrowID, "buyer_id", acct.BuyerID, "amount", acct.Amount)
	}

	s.logger.Info("escrow refunded", "escrow_id", acct.ID, "offer_id", acct.OfferID, "buyer_id", acct.BuyerID, "amount", acct.Amount)
	s.notify(ctx, notification.KindEscrowRefunded, acct.BuyerID,
		fmt.Sprintf("Escrow %s refunded: %d returned to your wallet", acct.Reference, acct.Amount))
	return acct, nil
}

// Get returns an escrow snapshot to one of its participants.
func (s *Service) Get(ctx context.Context, escrowID, requesterID string) (ledger.EscrowAccount, error) {
	acct, err := s.store.GetEscrow(ctx, escrowID)
	if err != nil {
		return ledger.EscrowAccount{}, err
	}
	if requesterID != acct.BuyerID && requesterID != acct.SellerID && requesterID != SystemReaper {
		return ledger.EscrowAccount{}, fault.Unauthorized("requester is not a participant of this escrow")
	}
	return acct, nil
}

// ListForUser returns every escrow the user participates in.
func (s *Service) ListForUser(ctx context.Context, userID string) ([]ledger.EscrowAccount, error) {
	return s.store.ListEscrowsForUser(ctx, userID)
}

// AutoReleaseExpired sweeps FUNDED escrows past their expiry and releases
// each one as the system reaper. Items are independent: one failure is
// logged and never blocks another.
func (s *Service) AutoReleaseExpired(ctx context.Context) (int, error) {
	expired, err := s.store.ListExpiredFunded(ctx, time.Now().UTC())
	if err != nil {
		return 0, s.internal("expired escrow scan failed", err)
	}

	released := 0
	for _, acct := range expired {
		if _, err := s.Release(ctx, acct.ID, SystemReaper, true); err != nil {
			s.logger.Warn("auto release failed", "escrow_id", acct.ID, "offer_id", acct.OfferID, "error", err)
			continue
		}
		released++
	}
	if len(expired) > 0 {
		s.logger.Info("auto release sweep done", "expired", len(expired), "released", released)
	}
	return released, nil
}

func (s *Service) notify(ctx context.Context, kind, destination, body string) {
	if s.notifier == nil {
		return
	}
	_ = s.notifier.Send(ctx, notification.Message{Kind: kind, Destination: destination, Body: body})
}

func (s *Service) internal(msg string, err error, attrs ...any) error {
	s.logger.Error(msg, append(attrs, "error", err)...)
	return fault.Internal(msg, err)
}

func reference(id string) string {
	short := strings.ReplaceAll(id, "-", "")
	if len(short) > 8 {
		short = short[:8]
	}
	return "ESC-" + strings.ToUpper(short)
}
