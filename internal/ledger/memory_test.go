package ledger

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/swapyard/swapyard/internal/fault"
)

func TestDebitAvailableIsConditional(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	owner := uuid.NewString()
	SeedBalance(store, owner, 500)

	err := store.WithinTx(ctx, func(tx Tx) error {
		_, err := tx.DebitAvailable(ctx, owner, 600)
		return err
	})
	if !fault.IsKind(err, fault.KindInsufficientFunds) {
		t.Fatalf("expected insufficient funds, got %v", err)
	}

	w, _ := store.GetOrCreateWallet(ctx, owner)
	if w.AvailableBalance != 500 {
		t.Fatalf("balance changed on rejected debit: %d", w.AvailableBalance)
	}
}

func TestWithinTxRollsBackOnError(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	owner := uuid.NewString()
	SeedBalance(store, owner, 1_000)

	boom := errors.New("boom")
	err := store.WithinTx(ctx, func(tx Tx) error {
		if _, err := tx.DebitAvailable(ctx, owner, 400); err != nil {
			return err
		}
		if _, err := tx.AppendTransaction(ctx, Transaction{
			OpID: "transfer:rollback", Kind: KindTransfer, Amount: 400, Status: StatusCompleted,
		}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected unit error, got %v", err)
	}

	// Nothing from the failed unit is visible.
	w, _ := store.GetOrCreateWallet(ctx, owner)
	if w.AvailableBalance != 1_000 {
		t.Fatalf("debit survived rollback: %d", w.AvailableBalance)
	}
	err = store.WithinTx(ctx, func(tx Tx) error {
		_, err := tx.AppendTransaction(ctx, Transaction{
			OpID: "transfer:rollback", Kind: KindTransfer, Amount: 1, Status: StatusCompleted,
		})
		return err
	})
	if err != nil {
		t.Fatalf("op id should be free after rollback: %v", err)
	}
}

func TestAppendTransactionRejectsDuplicateOpID(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	write := func() error {
		return store.WithinTx(ctx, func(tx Tx) error {
			_, err := tx.AppendTransaction(ctx, Transaction{
				OpID: "escrow_deposit:offer-1", Kind: KindEscrowDeposit, Amount: 100, Status: StatusCompleted,
			})
			return err
		})
	}

	if err := write(); err != nil {
		t.Fatalf("first append: %v", err)
	}
	if err := write(); !fault.IsKind(err, fault.KindConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestHistoryForClampsNegativePaging(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	owner := uuid.NewString()
	w, err := store.GetOrCreateWallet(ctx, owner)
	if err != nil {
		t.Fatalf("get wallet: %v", err)
	}
	err = store.WithinTx(ctx, func(tx Tx) error {
		_, err := tx.AppendTransaction(ctx, Transaction{
			OpID: "transfer:neg-page", Kind: KindTransfer, Amount: 100, Status: StatusCompleted,
			SenderWalletID: w.ID,
		})
		return err
	})
	if err != nil {
		t.Fatalf("seed transaction: %v", err)
	}

	txns, err := store.HistoryFor(ctx, owner, HistoryFilter{}, Page{Limit: -5, Offset: -1})
	if err != nil {
		t.Fatalf("history with negative paging: %v", err)
	}
	if len(txns) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(txns))
	}
}

func TestHoldAndReleaseKeepBalancesNonNegative(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	owner := uuid.NewString()
	SeedBalance(store, owner, 1_000)

	err := store.WithinTx(ctx, func(tx Tx) error {
		_, err := tx.HoldFunds(ctx, owner, 600, 500)
		return err
	})
	if err != nil {
		t.Fatalf("hold: %v", err)
	}
	w, _ := store.GetOrCreateWallet(ctx, owner)
	if w.AvailableBalance != 400 || w.HeldInEscrow != 500 {
		t.Fatalf("unexpected wallet after hold: %+v", w)
	}

	// Releasing more than is held is rejected.
	err = store.WithinTx(ctx, func(tx Tx) error {
		_, err := tx.ReleaseHold(ctx, owner, 700)
		return err
	})
	if !fault.IsKind(err, fault.KindInsufficientFunds) {
		t.Fatalf("expected insufficient funds, got %v", err)
	}

	err = store.WithinTx(ctx, func(tx Tx) error {
		_, err := tx.ReleaseHold(ctx, owner, 500)
		return err
	})
	if err != nil {
		t.Fatalf("release: %v", err)
	}
	w, _ = store.GetOrCreateWallet(ctx, owner)
	if w.HeldInEscrow != 0 {
		t.Fatalf("hold not cleared: %d", w.HeldInEscrow)
	}
}

func TestCreditAvailableTracksEarnings(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	owner := uuid.NewString()
	err := store.WithinTx(ctx, func(tx Tx) error {
		if _, err := tx.CreditAvailable(ctx, owner, 300, true); err != nil {
			return err
		}
		_, err := tx.CreditAvailable(ctx, owner, 200, false)
		return err
	})
	if err != nil {
		t.Fatalf("credit: %v", err)
	}

	w, _ := store.GetOrCreateWallet(ctx, owner)
	if w.AvailableBalance != 500 {
		t.Fatalf("expected balance 500, got %d", w.AvailableBalance)
	}
	if w.TotalEarned != 300 {
		t.Fatalf("expected earned 300, got %d", w.TotalEarned)
	}
}

func TestConcurrentDebitsSerialize(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	owner := uuid.NewString()
	SeedBalance(store, owner, 1_000)

	var wg sync.WaitGroup
	var mu sync.Mutex
	var rejected int
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := store.WithinTx(ctx, func(tx Tx) error {
				_, err := tx.DebitAvailable(ctx, owner, 100)
				return err
			})
			if err != nil {
				mu.Lock()
				rejected++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	w, _ := store.GetOrCreateWallet(ctx, owner)
	if w.AvailableBalance != 0 {
		t.Fatalf("expected balance drained to 0, got %d", w.AvailableBalance)
	}
	if rejected != 10 {
		t.Fatalf("expected 10 rejections, got %d", rejected)
	}
}

func TestEscrowQueries(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	buyer, seller := uuid.NewString(), uuid.NewString()
	now := time.Now().UTC()
	funded := EscrowAccount{
		ID: uuid.NewString(), Reference: "ESC-AAAA0001", Amount: 100, Status: EscrowFunded,
		BuyerID: buyer, SellerID: seller, OfferID: "offer-a",
		ExpiresAt: now.Add(-time.Minute), CreatedAt: now.Add(-time.Hour),
	}
	released := EscrowAccount{
		ID: uuid.NewString(), Reference: "ESC-AAAA0002", Amount: 200, Status: EscrowReleased,
		BuyerID: buyer, SellerID: seller, OfferID: "offer-b",
		ExpiresAt: now.Add(-time.Minute), CreatedAt: now,
	}
	err := store.WithinTx(ctx, func(tx Tx) error {
		if err := tx.InsertEscrow(ctx, funded); err != nil {
			return err
		}
		return tx.InsertEscrow(ctx, released)
	})
	if err != nil {
		t.Fatalf("insert escrows: %v", err)
	}

	byOffer, err := store.EscrowForOffer(ctx, "offer-a")
	if err != nil || byOffer.ID != funded.ID {
		t.Fatalf("escrow by offer: %v %+v", err, byOffer)
	}

	// A second escrow on a taken offer is rejected inside the unit.
	err = store.WithinTx(ctx, func(tx Tx) error {
		return tx.InsertEscrow(ctx, EscrowAccount{ID: uuid.NewString(), OfferID: "offer-a"})
	})
	if !fault.IsKind(err, fault.KindConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}

	mine, err := store.ListEscrowsForUser(ctx, buyer)
	if err != nil {
		t.Fatalf("list for user: %v", err)
	}
	if len(mine) != 2 || mine[0].ID != released.ID {
		t.Fatalf("unexpected list: %+v", mine)
	}

	expired, err := store.ListExpiredFunded(ctx, now)
	if err != nil {
		t.Fatalf("list expired: %v", err)
	}
	if len(expired) != 1 || expired[0].ID != funded.ID {
		t.Fatalf("expected only the funded escrow, got %+v", expired)
	}
}
