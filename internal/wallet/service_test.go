package wallet

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/swapyard/swapyard/internal/ledger"
	"github.com/swapyard/swapyard/internal/logging"
)

func seedTransaction(t *testing.T, store ledger.Store, txn ledger.Transaction) {
	t.Helper()
	err := store.WithinTx(context.Background(), func(tx ledger.Tx) error {
		_, err := tx.AppendTransaction(context.Background(), txn)
		return err
	})
	if err != nil {
		t.Fatalf("seed transaction: %v", err)
	}
}

func walletID(t *testing.T, store ledger.Store, userID string) string {
	t.Helper()
	w, err := store.GetOrCreateWallet(context.Background(), userID)
	if err != nil {
		t.Fatalf("get wallet: %v", err)
	}
	return w.ID
}

func TestGetWalletInfoCreatesLazily(t *testing.T) {
	store := ledger.NewMemoryStore()
	svc := NewService(store, logging.Discard())

	userID := uuid.NewString()
	w, err := svc.GetWalletInfo(context.Background(), userID)
	if err != nil {
		t.Fatalf("get wallet info: %v", err)
	}
	if w.OwnerID != userID {
		t.Fatalf("expected owner %s, got %s", userID, w.OwnerID)
	}
	if w.AvailableBalance != 0 || w.HeldInEscrow != 0 || w.TotalEarned != 0 {
		t.Fatalf("new wallet not empty: %+v", w)
	}

	// A second lookup returns the same wallet.
	again, _ := svc.GetWalletInfo(context.Background(), userID)
	if again.ID != w.ID {
		t.Fatalf("lazy creation not stable: %s vs %s", again.ID, w.ID)
	}
}

func TestHistoryFiltersAndPaginates(t *testing.T) {
	store := ledger.NewMemoryStore()
	svc := NewService(store, logging.Discard())
	ctx := context.Background()

	userID, otherID := uuid.NewString(), uuid.NewString()
	mine := walletID(t, store, userID)
	other := walletID(t, store, otherID)

	base := time.Now().UTC().Add(-time.Hour)
	for i := 0; i < 5; i++ {
		seedTransaction(t, store, ledger.Transaction{
			OpID:             fmt.Sprintf("transfer:hist-%d", i),
			Kind:             ledger.KindTransfer,
			Amount:           int64(100 * (i + 1)),
			Status:           ledger.StatusCompleted,
			SenderWalletID:   mine,
			ReceiverWalletID: other,
			CreatedAt:        base.Add(time.Duration(i) * time.Minute),
		})
	}
	seedTransaction(t, store, ledger.Transaction{
		OpID:             "escrow_deposit:hist-offer",
		Kind:             ledger.KindEscrowDeposit,
		Amount:           1_000,
		Status:           ledger.StatusCompleted,
		SenderWalletID:   mine,
		ReceiverWalletID: other,
		CreatedAt:        base.Add(10 * time.Minute),
	})
	// Someone else's traffic never shows up.
	seedTransaction(t, store, ledger.Transaction{
		OpID:             "transfer:hist-foreign",
		Kind:             ledger.KindTransfer,
		Amount:           999,
		Status:           ledger.StatusCompleted,
		SenderWalletID:   other,
		ReceiverWalletID: walletID(t, store, uuid.NewString()),
		CreatedAt:        base,
	})

	all, err := svc.History(ctx, userID, ledger.HistoryFilter{}, ledger.Page{})
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(all) != 6 {
		t.Fatalf("expected 6 entries, got %d", len(all))
	}
	// Newest first.
	if all[0].Kind != ledger.KindEscrowDeposit {
		t.Fatalf("expected escrow deposit first, got %s", all[0].Kind)
	}

	transfersOnly, err := svc.History(ctx, userID, ledger.HistoryFilter{Kinds: []ledger.Kind{ledger.KindTransfer}}, ledger.Page{})
	if err != nil {
		t.Fatalf("filtered history: %v", err)
	}
	if len(transfersOnly) != 5 {
		t.Fatalf("expected 5 transfers, got %d", len(transfersOnly))
	}

	window, err := svc.History(ctx, userID, ledger.HistoryFilter{
		Since: base.Add(90 * time.Second),
		Until: base.Add(5 * time.Minute),
	}, ledger.Page{})
	if err != nil {
		t.Fatalf("windowed history: %v", err)
	}
	if len(window) != 3 {
		t.Fatalf("expected 3 entries in window, got %d", len(window))
	}

	page, err := svc.History(ctx, userID, ledger.HistoryFilter{}, ledger.Page{Limit: 2, Offset: 2})
	if err != nil {
		t.Fatalf("paged history: %v", err)
	}
	if len(page) != 2 {
		t.Fatalf("expected page of 2, got %d", len(page))
	}
	if !page[0].CreatedAt.After(page[1].CreatedAt) {
		t.Fatalf("page out of order")
	}

	empty, err := svc.History(ctx, userID, ledger.HistoryFilter{}, ledger.Page{Offset: 100})
	if err != nil {
		t.Fatalf("out-of-range page: %v", err)
	}
	if len(empty) != 0 {
		t.Fatalf("expected empty page, got %d", len(empty))
	}
}

func TestStatsAggregatesDirections(t *testing.T) {
	store := ledger.NewMemoryStore()
	svc := NewService(store, logging.Discard())
	ctx := context.Background()

	userID, otherID := uuid.NewString(), uuid.NewString()
	mine := walletID(t, store, userID)
	other := walletID(t, store, otherID)

	seedTransaction(t, store, ledger.Transaction{
		OpID: "transfer:stats-out", Kind: ledger.KindTransfer, Amount: 300,
		Status: ledger.StatusCompleted, SenderWalletID: mine, ReceiverWalletID: other,
	})
	seedTransaction(t, store, ledger.Transaction{
		OpID: "transfer:stats-in", Kind: ledger.KindTransfer, Amount: 500,
		Status: ledger.StatusCompleted, SenderWalletID: other, ReceiverWalletID: mine,
	})
	// Reversed entries stay out of the totals.
	seedTransaction(t, store, ledger.Transaction{
		OpID: "transfer:stats-reversed", Kind: ledger.KindTransfer, Amount: 900,
		Status: ledger.StatusReversed, SenderWalletID: other, ReceiverWalletID: mine,
	})

	stats, err := svc.Stats(ctx, userID)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.TotalReceived != 500 {
		t.Fatalf("expected received 500, got %d", stats.TotalReceived)
	}
	if stats.TotalSent != 300 {
		t.Fatalf("expected sent 300, got %d", stats.TotalSent)
	}
	if stats.EscrowExposure != 0 {
		t.Fatalf("expected no exposure, got %d", stats.EscrowExposure)
	}
}
