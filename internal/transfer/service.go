package transfer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/swapyard/swapyard/internal/fault"
	"github.com/swapyard/swapyard/internal/ledger"
	"github.com/swapyard/swapyard/internal/notification"
	"github.com/swapyard/swapyard/internal/offers"
)

// Service moves funds directly between wallets, validated against the
// sender's available balance.
type Service struct {
	store    ledger.Store
	users    offers.Directory
	notifier notification.Notifier
	logger   *slog.Logger
}

// NewService constructs a transfer service.
func NewService(store ledger.Store, users offers.Directory, notifier notification.Notifier, logger *slog.Logger) *Service {
	return &Service{store: store, users: users, notifier: notifier, logger: logger}
}

// Input captures the data needed to move funds between users.
type Input struct {
	FromUserID  string
	ToUserID    string
	Amount      int64
	Description string
	// ClientTxID keeps retries from double-applying; generated when empty.
	ClientTxID string
}

// Result describes the outcome of a transfer. It carries only the sender's
// balance; the recipient's stays private.
type Result struct {
	Transaction ledger.Transaction
	FromBalance int64
	CompletedAt time.Time
}

// Transfer atomically debits the sender, credits the recipient and writes
// one symmetric ledger entry carrying both wallet ids.
func (s *Service) Transfer(ctx context.Context, input Input) (Result, error) {
	if input.Amount <= 0 {
		return Result{}, fault.BadRequest("amount must be positive")
	}
	if input.FromUserID == input.ToUserID {
		return Result{}, fault.BadRequest("cannot transfer to yourself")
	}

	exists, err := s.users.Exists(ctx, input.ToUserID)
	if err != nil {
		return Result{}, s.internal("recipient lookup failed", err, input)
	}
	if !exists {
		return Result{}, fault.NotFound("user", input.ToUserID)
	}

	opID := input.ClientTxID
	if opID == "" {
		opID = uuid.NewString()
	}

	var res Result
	err = s.store.WithinTx(ctx, func(tx ledger.Tx) error {
		fromWallet, err := tx.DebitAvailable(ctx, input.FromUserID, input.Amount)
		if err != nil {
			return err
		}
		toWallet, err := tx.CreditAvailable(ctx, input.ToUserID, input.Amount, false)
		if err != nil {
			return err
		}
		txn, err := tx.AppendTransaction(ctx, ledger.Transaction{
			OpID:             "transfer:" + opID,
			Kind:             ledger.KindTransfer,
			Amount:           input.Amount,
			Status:           ledger.StatusCompleted,
			SenderWalletID:   fromWallet.ID,
			ReceiverWalletID: toWallet.ID,
			Description:      input.Description,
		})
		if err != nil {
			return err
		}
		res = Result{
			Transaction: txn,
			FromBalance: fromWallet.AvailableBalance,
			CompletedAt: txn.CreatedAt,
		}
		return nil
	})
	if err != nil {
		var fe *fault.Error
		if errors.As(err, &fe) {
			return Result{}, err
		}
		return Result{}, s.internal("transfer failed", err, input)
	}

	s.logger.Info("transfer completed",
		"transaction_id", res.Transaction.ID, "from", input.FromUserID, "to", input.ToUserID, "amount", input.Amount)
	if s.notifier != nil {
		_ = s.notifier.Send(ctx, notification.Message{
			Kind:        notification.KindTransferReceived,
			Destination: input.ToUserID,
			Body:        fmt.Sprintf("You received %d from %s", input.Amount, input.FromUserID),
		})
	}
	return res, nil
}

func (s *Service) internal(msg string, err error, input Input) error {
	s.logger.Error(msg, "from", input.FromUserID, "to", input.ToUserID, "amount", input.Amount, "error", err)
	return fault.Internal(msg, err)
}
