package ledger

import (
	"context"
	"time"
)

// Kind labels the business meaning of a fund movement.
type Kind string

const (
	KindEscrowDeposit Kind = "ESCROW_DEPOSIT"
	KindEscrowRelease Kind = "ESCROW_RELEASE"
	KindEscrowRefund  Kind = "ESCROW_REFUND"
	KindTransfer      Kind = "TRANSFER"
)

// Status tracks the lifecycle of a transaction. Entries are only appended
// once the balance work already succeeded, so everything the store holds is
// COMPLETED; a correction appends a compensating entry, it never edits
// history.
type Status string

const (
	StatusCompleted Status = "COMPLETED"
	StatusReversed  Status = "REVERSED"
)

// Direction selects which side of a transaction a user sat on when
// aggregating.
type Direction string

const (
	DirectionIn  Direction = "in"
	DirectionOut Direction = "out"
)

// EscrowStatus enumerates the escrow state machine. Accounts are persisted
// only once funds are confirmed held, so FUNDED is the first observable
// state; RELEASED and REFUNDED are terminal.
type EscrowStatus string

const (
	EscrowFunded   EscrowStatus = "FUNDED"
	EscrowReleased EscrowStatus = "RELEASED"
	EscrowDisputed EscrowStatus = "DISPUTED"
	EscrowRefunded EscrowStatus = "REFUNDED"
)

// Wallet holds a user's funds in minor currency units. Both balances stay
// non-negative at all times; only the store mutates them, inside an atomic
// unit.
type Wallet struct {
	ID               string
	OwnerID          string
	AvailableBalance int64
	HeldInEscrow     int64
	TotalEarned      int64
	LastActivityAt   time.Time
}

// Transaction is one directed fund movement between two wallets, immutable
// once written. OpID is the caller-supplied deterministic operation id that
// keeps retries from double-applying.
type Transaction struct {
	ID               string
	OpID             string
	Kind             Kind
	Amount           int64
	Status           Status
	SenderWalletID   string
	ReceiverWalletID string
	RelatedOfferID   string
	RelatedEscrowID  string
	Description      string
	CreatedAt        time.Time
}

// EscrowAccount is a hold of funds tied to one accepted trade offer.
type EscrowAccount struct {
	ID               string
	Reference        string
	Amount           int64
	FeeAmount        int64
	Status           EscrowStatus
	BuyerID          string
	SellerID         string
	OfferID          string
	ReleaseCondition string
	ExpiresAt        time.Time
	DisputeReason    string
	CreatedAt        time.Time
	ReleasedAt       *time.Time
	DisputeOpenedAt  *time.Time
}

// HistoryFilter narrows a transaction history query. Zero values mean no
// constraint.
type HistoryFilter struct {
	Kinds    []Kind
	Statuses []Status
	Since    time.Time
	Until    time.Time
}

// Page bounds a history query.
type Page struct {
	Limit  int
	Offset int
}

// Store is the persistence contract for wallets, transactions and escrow
// rows. Reads may run outside a unit; every multi-write operation goes
// through WithinTx.
type Store interface {
	GetOrCreateWallet(ctx context.Context, ownerID string) (Wallet, error)
	HistoryFor(ctx context.Context, userID string, filter HistoryFilter, page Page) ([]Transaction, error)
	Aggregate(ctx context.Context, userID string, dir Direction, kinds []Kind, statuses []Status) (int64, error)

	GetEscrow(ctx context.Context, id string) (EscrowAccount, error)
	EscrowForOffer(ctx context.Context, offerID string) (EscrowAccount, error)
	ListEscrowsForUser(ctx context.Context, userID string) ([]EscrowAccount, error)
	ListExpiredFunded(ctx context.Context, cutoff time.Time) ([]EscrowAccount, error)

	// WithinTx runs fn as one atomic unit: either every mutation issued
	// through the Tx commits, or none do. Once the unit begins committing it
	// completes.
	WithinTx(ctx context.Context, fn func(Tx) error) error
}

// Tx exposes the mutations available inside an atomic unit. Balance
// mutations are conditional at the storage layer: the sufficient-funds check
// and the write are never observable as two separate steps to a concurrent
// caller on the same wallet.
type Tx interface {
	// WalletFor lazily creates and returns the wallet for ownerID.
	WalletFor(ctx context.Context, ownerID string) (Wallet, error)
	// DebitAvailable subtracts amount from the available balance, failing
	// with fault.InsufficientFunds if that would drive it below zero.
	DebitAvailable(ctx context.Context, ownerID string, amount int64) (Wallet, error)
	// CreditAvailable adds amount to the available balance. Earned credits
	// also bump the wallet's running TotalEarned.
	CreditAvailable(ctx context.Context, ownerID string, amount int64, earned bool) (Wallet, error)
	// HoldFunds debits the available balance by debit and moves principal
	// into the escrow hold in one step. debit may exceed principal by a fee
	// retained outside the wallet.
	HoldFunds(ctx context.Context, ownerID string, debit, principal int64) (Wallet, error)
	// ReleaseHold removes principal from the escrow hold, failing with
	// fault.InsufficientFunds if the hold does not cover it.
	ReleaseHold(ctx context.Context, ownerID string, principal int64) (Wallet, error)

	// AppendTransaction writes one immutable ledger entry, rejecting a
	// duplicate OpID with fault.Conflict.
	AppendTransaction(ctx context.Context, txn Transaction) (Transaction, error)

	// GetEscrowForUpdate loads an escrow row claimed for the rest of the
	// unit, so concurrent transitions serialize.
	GetEscrowForUpdate(ctx context.Context, id string) (EscrowAccount, error)
	// InsertEscrow persists a new account, rejecting a second account for
	// the same offer with fault.Conflict.
	InsertEscrow(ctx context.Context, acct EscrowAccount) error
	UpdateEscrow(ctx context.Context, acct EscrowAccount) error
}
