package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/swapyard/swapyard/internal/fault"
)

const uniqueViolation = "23505"

const walletColumns = "id, owner_id, available_balance, held_in_escrow, total_earned, last_activity_at"

const escrowColumns = `id, reference, amount, fee_amount, status, buyer_id, seller_id, offer_id,
        release_condition, expires_at, dispute_reason, created_at, released_at, dispute_opened_at`

const transactionColumns = `id, op_id, kind, amount, status, sender_wallet_id, receiver_wallet_id,
        related_offer_id, related_escrow_id, description, created_at`

// PostgresStore persists wallets, transactions and escrow accounts in
// PostgreSQL. Balance checks ride inside conditional UPDATEs so a
// sufficient-funds check and its write commit as one statement.
type PostgresStore struct {
	db *pgxpool.Pool
}

// NewPostgresStore constructs a Postgres-backed store.
func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

// WithinTx runs fn inside one database transaction with guaranteed
// all-or-nothing commit.
func (s *PostgresStore) WithinTx(ctx context.Context, fn func(Tx) error) error {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	if err := fn(&pgTx{tx: tx}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// GetOrCreateWallet lazily provisions the wallet row for ownerID.
func (s *PostgresStore) GetOrCreateWallet(ctx context.Context, ownerID string) (Wallet, error) {
	return upsertWallet(ctx, s.db, ownerID)
}

// HistoryFor returns the user's transactions, newest first.
func (s *PostgresStore) HistoryFor(ctx context.Context, userID string, filter HistoryFilter, page Page) ([]Transaction, error) {
	w, err := upsertWallet(ctx, s.db, userID)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`SELECT %s FROM transactions WHERE (sender_wallet_id = $1 OR receiver_wallet_id = $1)`, transactionColumns)
	args := []any{w.ID}
	query, args = appendFilter(query, args, filter)

	limit := page.Limit
	if limit <= 0 {
		limit = defaultPageSize
	}
	offset := page.Offset
	if offset < 0 {
		offset = 0
	}
	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d OFFSET $%d", len(args)+1, len(args)+2)
	args = append(args, limit, offset)

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var txns []Transaction
	for rows.Next() {
		txn, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		txns = append(txns, txn)
	}
	return txns, rows.Err()
}

// Aggregate sums the user's transactions matching the direction and the
// kind/status sets.
func (s *PostgresStore) Aggregate(ctx context.Context, userID string, dir Direction, kinds []Kind, statuses []Status) (int64, error) {
	w, err := upsertWallet(ctx, s.db, userID)
	if err != nil {
		return 0, err
	}

	var cond string
	switch dir {
	case DirectionIn:
		cond = "receiver_wallet_id = $1"
	case DirectionOut:
		cond = "sender_wallet_id = $1"
	default:
		cond = "(sender_wallet_id = $1 OR receiver_wallet_id = $1)"
	}
	query := "SELECT COALESCE(SUM(amount), 0) FROM transactions WHERE " + cond
	args := []any{w.ID}
	query, args = appendFilter(query, args, HistoryFilter{Kinds: kinds, Statuses: statuses})

	var sum int64
	if err := s.db.QueryRow(ctx, query, args...).Scan(&sum); err != nil {
		return 0, err
	}
	return sum, nil
}

// GetEscrow fetches one escrow account by id.
func (s *PostgresStore) GetEscrow(ctx context.Context, id string) (EscrowAccount, error) {
	row := s.db.QueryRow(ctx, fmt.Sprintf(`SELECT %s FROM escrow_accounts WHERE id = $1`, escrowColumns), id)
	acct, err := scanEscrow(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return EscrowAccount{}, fault.NotFound("escrow", id)
	}
	return acct, err
}

// EscrowForOffer fetches the escrow account tied to an offer, if any.
func (s *PostgresStore) EscrowForOffer(ctx context.Context, offerID string) (EscrowAccount, error) {
	row := s.db.QueryRow(ctx, fmt.Sprintf(`SELECT %s FROM escrow_accounts WHERE offer_id = $1`, escrowColumns), offerID)
	acct, err := scanEscrow(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return EscrowAccount{}, fault.NotFound("escrow", offerID)
	}
	return acct, err
}

// ListEscrowsForUser returns every escrow the user participates in, newest
// first.
func (s *PostgresStore) ListEscrowsForUser(ctx context.Context, userID string) ([]EscrowAccount, error) {
	rows, err := s.db.Query(ctx, fmt.Sprintf(`SELECT %s FROM escrow_accounts
        WHERE buyer_id = $1 OR seller_id = $1 ORDER BY created_at DESC`, escrowColumns), userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var accounts []EscrowAccount
	for rows.Next() {
		acct, err := scanEscrow(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, acct)
	}
	return accounts, rows.Err()
}

// ListExpiredFunded returns FUNDED escrows whose expiry passed before cutoff.
func (s *PostgresStore) ListExpiredFunded(ctx context.Context, cutoff time.Time) ([]EscrowAccount, error) {
	rows, err := s.db.Query(ctx, fmt.Sprintf(`SELECT %s FROM escrow_accounts
        WHERE status = $1 AND expires_at < $2`, escrowColumns), EscrowFunded, cutoff.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var accounts []EscrowAccount
	for rows.Next() {
		acct, err := scanEscrow(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, acct)
	}
	return accounts, rows.Err()
}

type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func upsertWallet(ctx context.Context, q querier, ownerID string) (Wallet, error) {
	row := q.QueryRow(ctx, fmt.Sprintf(`INSERT INTO wallets (id, owner_id, available_balance, held_in_escrow, total_earned, last_activity_at)
        VALUES ($1, $2, 0, 0, 0, now())
        ON CONFLICT (owner_id) DO UPDATE SET owner_id = EXCLUDED.owner_id
        RETURNING %s`, walletColumns), uuid.New(), ownerID)
	return scanWallet(row)
}

func scanWallet(row pgx.Row) (Wallet, error) {
	var w Wallet
	var id uuid.UUID
	if err := row.Scan(&id, &w.OwnerID, &w.AvailableBalance, &w.HeldInEscrow, &w.TotalEarned, &w.LastActivityAt); err != nil {
		return Wallet{}, err
	}
	w.ID = id.String()
	w.LastActivityAt = w.LastActivityAt.UTC()
	return w, nil
}

func scanEscrow(row pgx.Row) (EscrowAccount, error) {
	var acct EscrowAccount
	var id uuid.UUID
	if err := row.Scan(&id, &acct.Reference, &acct.Amount, &acct.FeeAmount, &acct.Status,
		&acct.BuyerID, &acct.SellerID, &acct.OfferID, &acct.ReleaseCondition, &acct.ExpiresAt,
		&acct.DisputeReason, &acct.CreatedAt, &acct.ReleasedAt, &acct.DisputeOpenedAt); err != nil {
		return EscrowAccount{}, err
	}
	acct.ID = id.String()
	return acct, nil
}

func scanTransaction(row pgx.Row) (Transaction, error) {
	var txn Transaction
	var id, sender, receiver uuid.UUID
	if err := row.Scan(&id, &txn.OpID, &txn.Kind, &txn.Amount, &txn.Status, &sender, &receiver,
		&txn.RelatedOfferID, &txn.RelatedEscrowID, &txn.Description, &txn.CreatedAt); err != nil {
		return Transaction{}, err
	}
	txn.ID = id.String()
	txn.SenderWalletID = sender.String()
	txn.ReceiverWalletID = receiver.String()
	return txn, nil
}

func appendFilter(query string, args []any, filter HistoryFilter) (string, []any) {
	if len(filter.Kinds) > 0 {
		kinds := make([]string, len(filter.Kinds))
		for i, k := range filter.Kinds {
			kinds[i] = string(k)
		}
		args = append(args, kinds)
		query += fmt.Sprintf(" AND kind = ANY($%d)", len(args))
	}
	if len(filter.Statuses) > 0 {
		statuses := make([]string, len(filter.Statuses))
		for i, st := range filter.Statuses {
			statuses[i] = string(st)
		}
		args = append(args, statuses)
		query += fmt.Sprintf(" AND status = ANY($%d)", len(args))
	}
	if !filter.Since.IsZero() {
		args = append(args, filter.Since.UTC())
		query += fmt.Sprintf(" AND created_at >= $%d", len(args))
	}
	if !filter.Until.IsZero() {
		args = append(args, filter.Until.UTC())
		query += fmt.Sprintf(" AND created_at <= $%d", len(args))
	}
	return query, args
}

// pgTx implements the atomic unit surface on top of one pgx transaction.
type pgTx struct {
	tx pgx.Tx
}

func (t *pgTx) WalletFor(ctx context.Context, ownerID string) (Wallet, error) {
	return upsertWallet(ctx, t.tx, ownerID)
}

func (t *pgTx) DebitAvailable(ctx context.Context, ownerID string, amount int64) (Wallet, error) {
	row := t.tx.QueryRow(ctx, fmt.Sprintf(`UPDATE wallets
        SET available_balance = available_balance - $2, last_activity_at = now()
        WHERE owner_id = $1 AND available_balance >= $2
        RETURNING %s`, walletColumns), ownerID, amount)
	w, err := scanWallet(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Wallet{}, t.insufficient(ctx, ownerID, amount)
	}
	return w, err
}

func (t *pgTx) CreditAvailable(ctx context.Context, ownerID string, amount int64, earned bool) (Wallet, error) {
	if _, err := upsertWallet(ctx, t.tx, ownerID); err != nil {
		return Wallet{}, err
	}
	earnedDelta := int64(0)
	if earned {
		earnedDelta = amount
	}
	row := t.tx.QueryRow(ctx, fmt.Sprintf(`UPDATE wallets
        SET available_balance = available_balance + $2, total_earned = total_earned + $3, last_activity_at = now()
        WHERE owner_id = $1
        RETURNING %s`, walletColumns), ownerID, amount, earnedDelta)
	return scanWallet(row)
}

func (t *pgTx) HoldFunds(ctx context.Context, ownerID string, debit, principal int64) (Wallet, error) {
	if _, err := upsertWallet(ctx, t.tx, ownerID); err != nil {
		return Wallet{}, err
	}
	row := t.tx.QueryRow(ctx, fmt.Sprintf(`UPDATE wallets
        SET available_balance = available_balance - $2, held_in_escrow = held_in_escrow + $3, last_activity_at = now()
        WHERE owner_id = $1 AND available_balance >= $2
        RETURNING %s`, walletColumns), ownerID, debit, principal)
	w, err := scanWallet(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Wallet{}, t.insufficient(ctx, ownerID, debit)
	}
	return w, err
}

func (t *pgTx) ReleaseHold(ctx context.Context, ownerID string, principal int64) (Wallet, error) {
	row := t.tx.QueryRow(ctx, fmt.Sprintf(`UPDATE wallets
        SET held_in_escrow = held_in_escrow - $2, last_activity_at = now()
        WHERE owner_id = $1 AND held_in_escrow >= $2
        RETURNING %s`, walletColumns), ownerID, principal)
	w, err := scanWallet(row)
	if errors.Is(err, pgx.ErrNoRows) {
		var held int64
		if scanErr := t.tx.QueryRow(ctx, `SELECT held_in_escrow FROM wallets WHERE owner_id = $1`, ownerID).Scan(&held); scanErr != nil && !errors.Is(scanErr, pgx.ErrNoRows) {
			return Wallet{}, scanErr
		}
		return Wallet{}, fault.InsufficientFunds(principal, held)
	}
	return w, err
}

func (t *pgTx) insufficient(ctx context.Context, ownerID string, required int64) error {
	w, err := upsertWallet(ctx, t.tx, ownerID)
	if err != nil {
		return err
	}
	return fault.InsufficientFunds(required, w.AvailableBalance)
}

func (t *pgTx) AppendTransaction(ctx context.Context, txn Transaction) (Transaction, error) {
	if txn.ID == "" {
		txn.ID = uuid.NewString()
	}
	if txn.CreatedAt.IsZero() {
		txn.CreatedAt = time.Now().UTC()
	}
	_, err := t.tx.Exec(ctx, `INSERT INTO transactions
        (id, op_id, kind, amount, status, sender_wallet_id, receiver_wallet_id, related_offer_id, related_escrow_id, description, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		txn.ID, txn.OpID, txn.Kind, txn.Amount, txn.Status, txn.SenderWalletID, txn.ReceiverWalletID,
		txn.RelatedOfferID, txn.RelatedEscrowID, txn.Description, txn.CreatedAt)
	if isUniqueViolation(err) {
		return Transaction{}, fault.Conflict("duplicate operation", map[string]any{"op_id": txn.OpID})
	}
	if err != nil {
		return Transaction{}, err
	}
	return txn, nil
}

func (t *pgTx) GetEscrowForUpdate(ctx context.Context, id string) (EscrowAccount, error) {
	row := t.tx.QueryRow(ctx, fmt.Sprintf(`SELECT %s FROM escrow_accounts WHERE id = $1 FOR UPDATE`, escrowColumns), id)
	acct, err := scanEscrow(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return EscrowAccount{}, fault.NotFound("escrow", id)
	}
	return acct, err
}

func (t *pgTx) InsertEscrow(ctx context.Context, acct EscrowAccount) error {
	_, err := t.tx.Exec(ctx, `INSERT INTO escrow_accounts
        (id, reference, amount, fee_amount, status, buyer_id, seller_id, offer_id, release_condition,
         expires_at, dispute_reason, created_at, released_at, dispute_opened_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		acct.ID, acct.Reference, acct.Amount, acct.FeeAmount, acct.Status, acct.BuyerID, acct.SellerID,
		acct.OfferID, acct.ReleaseCondition, acct.ExpiresAt.UTC(), acct.DisputeReason, acct.CreatedAt.UTC(),
		acct.ReleasedAt, acct.DisputeOpenedAt)
	if isUniqueViolation(err) {
		return fault.Conflict("escrow already exists for offer", map[string]any{"offer_id": acct.OfferID})
	}
	return err
}

func (t *pgTx) UpdateEscrow(ctx context.Context, acct EscrowAccount) error {
	tag, err := t.tx.Exec(ctx, `UPDATE escrow_accounts
        SET status = $2, dispute_reason = $3, released_at = $4, dispute_opened_at = $5
        WHERE id = $1`,
		acct.ID, acct.Status, acct.DisputeReason, acct.ReleasedAt, acct.DisputeOpenedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fault.NotFound("escrow", acct.ID)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
