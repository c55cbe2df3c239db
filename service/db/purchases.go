package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Purchase statuses. A purchase starts pending, moves to
// awaiting_confirmation when the buyer submits a signature, and ends in
// confirmed or failed. The terminal states are never left.
const (
	PurchaseStatusPending              = "pending"
	PurchaseStatusAwaitingConfirmation = "awaiting_confirmation"
	PurchaseStatusConfirmed            = "confirmed"
	PurchaseStatusFailed               = "failed"
)

// Purchase records a buyer's attempt to pay for a listing. The price and
// recipient are snapshotted at creation so later listing edits cannot change
// what a payment is verified against.
type Purchase struct {
	ID                   uuid.UUID
	ListingID            uuid.UUID
	BuyerWallet          string
	RecipientAddress     string
	AmountLamports       int64
	Status               string
	Blockhash            *string
	LastValidBlockHeight *int64
	TransactionSignature *string
	FailureReason        *string
	CreatedAt            time.Time
	ConfirmedAt          *time.Time
}

// CreatePurchaseParams contains the parameters for opening a purchase.
type CreatePurchaseParams struct {
	ID               uuid.UUID
	ListingID        uuid.UUID
	BuyerWallet      string
	RecipientAddress string
	AmountLamports   int64
}

const purchaseColumns = "id, listing_id, buyer_wallet, recipient_address, amount_lamports, status, blockhash, last_valid_block_height, transaction_signature, failure_reason, created_at, confirmed_at"

func scanPurchase(row pgx.Row) (*Purchase, error) {
	var p Purchase
	err := row.Scan(&p.ID, &p.ListingID, &p.BuyerWallet, &p.RecipientAddress, &p.AmountLamports,
		&p.Status, &p.Blockhash, &p.LastValidBlockHeight, &p.TransactionSignature,
		&p.FailureReason, &p.CreatedAt, &p.ConfirmedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// CreatePurchase opens a new pending purchase.
func (s *Store) CreatePurchase(ctx context.Context, params CreatePurchaseParams) (_ *Purchase, err error) {
	start := time.Now()
	defer func() { s.record("CreatePurchase", "purchases", start, err) }()

	sql, args, err := psql.Insert("purchases").
		Columns("id", "listing_id", "buyer_wallet", "recipient_address", "amount_lamports").
		Values(params.ID, params.ListingID, params.BuyerWallet, params.RecipientAddress, params.AmountLamports).
		Suffix("RETURNING " + purchaseColumns).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build insert: %w", err)
	}

	purchase, err := scanPurchase(s.pool.QueryRow(ctx, sql, args...))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			switch pgErr.Code {
			case "23505":
				return nil, fmt.Errorf("purchase %s: %w", params.ID, ErrAlreadyExists)
			case "23503":
				return nil, fmt.Errorf("listing %s or buyer %s: %w", params.ListingID, params.BuyerWallet, ErrNotFound)
			}
		}
		return nil, fmt.Errorf("failed to create purchase: %w", err)
	}

	return purchase, nil
}

// GetPurchase retrieves a purchase by id.
func (s *Store) GetPurchase(ctx context.Context, id uuid.UUID) (_ *Purchase, err error) {
	start := time.Now()
	defer func() { s.record("GetPurchase", "purchases", start, err) }()

	sql, args, err := psql.Select(purchaseColumns).
		From("purchases").
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build query: %w", err)
	}

	purchase, err := scanPurchase(s.pool.QueryRow(ctx, sql, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("purchase %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get purchase: %w", err)
	}

	return purchase, nil
}

// ListPurchasesByBuyer returns a buyer's purchases, newest first.
func (s *Store) ListPurchasesByBuyer(ctx context.Context, buyerWallet string, limit, offset int32) (_ []*Purchase, err error) {
	start := time.Now()
	defer func() { s.record("ListPurchasesByBuyer", "purchases", start, err) }()

	sql, args, err := psql.Select(purchaseColumns).
		From("purchases").
		Where(squirrel.Eq{"buyer_wallet": buyerWallet}).
		OrderBy("created_at DESC").
		Limit(uint64(limit)).
		Offset(uint64(offset)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build query: %w", err)
	}

	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list purchases: %w", err)
	}
	defer rows.Close()

	var purchases []*Purchase
	for rows.Next() {
		purchase, err := scanPurchase(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan purchase: %w", err)
		}
		purchases = append(purchases, purchase)
	}

	return purchases, rows.Err()
}

// HasConfirmedPurchase reports whether the buyer already holds a confirmed
// purchase for the listing.
func (s *Store) HasConfirmedPurchase(ctx context.Context, listingID uuid.UUID, buyerWallet string) (_ bool, err error) {
	start := time.Now()
	defer func() { s.record("HasConfirmedPurchase", "purchases", start, err) }()

	sql, args, err := psql.Select("1").
		From("purchases").
		Where(squirrel.Eq{
			"listing_id":   listingID,
			"buyer_wallet": buyerWallet,
			"status":       PurchaseStatusConfirmed,
		}).
		Limit(1).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("failed to build query: %w", err)
	}

	var one int
	err = s.pool.QueryRow(ctx, sql, args...).Scan(&one)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("failed to check purchase ownership: %w", err)
	}

	return true, nil
}

// SetPurchaseBlockhash records the blockhash an unsigned transaction was
// built against. Only pending purchases accept a new blockhash; a buyer may
// re-request a transaction after the previous blockhash expired. Returns
// ErrConflict if the purchase has already moved on.
func (s *Store) SetPurchaseBlockhash(ctx context.Context, id uuid.UUID, blockhash string, lastValidBlockHeight int64) (_ *Purchase, err error) {
	start := time.Now()
	defer func() { s.record("SetPurchaseBlockhash", "purchases", start, err) }()

	sql, args, err := psql.Update("purchases").
		Set("blockhash", blockhash).
		Set("last_valid_block_height", lastValidBlockHeight).
		Where(squirrel.Eq{"id": id, "status": PurchaseStatusPending}).
		Suffix("RETURNING " + purchaseColumns).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build update: %w", err)
	}

	purchase, err := scanPurchase(s.pool.QueryRow(ctx, sql, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, s.conflictOrNotFound(ctx, id, PurchaseStatusPending)
		}
		return nil, fmt.Errorf("failed to set blockhash: %w", err)
	}

	return purchase, nil
}

// MarkPurchaseAwaitingConfirmation stores the submitted signature and moves a
// pending purchase to awaiting_confirmation. Re-submitting the same signature
// while awaiting confirmation is a no-op; a different signature, or any other
// status, returns ErrConflict.
func (s *Store) MarkPurchaseAwaitingConfirmation(ctx context.Context, id uuid.UUID, signature string) (_ *Purchase, err error) {
	start := time.Now()
	defer func() { s.record("MarkPurchaseAwaitingConfirmation", "purchases", start, err) }()

	sql, args, err := psql.Update("purchases").
		Set("status", PurchaseStatusAwaitingConfirmation).
		Set("transaction_signature", signature).
		Where(squirrel.Eq{"id": id}).
		Where(squirrel.Or{
			squirrel.Eq{"status": PurchaseStatusPending},
			squirrel.And{
				squirrel.Eq{"status": PurchaseStatusAwaitingConfirmation},
				squirrel.Eq{"transaction_signature": signature},
			},
		}).
		Suffix("RETURNING " + purchaseColumns).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build update: %w", err)
	}

	purchase, err := scanPurchase(s.pool.QueryRow(ctx, sql, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, s.conflictOrNotFound(ctx, id, PurchaseStatusPending)
		}
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, fmt.Errorf("signature already bound to another purchase: %w", ErrConflict)
		}
		return nil, fmt.Errorf("failed to mark purchase awaiting confirmation: %w", err)
	}

	if s.metrics != nil {
		s.metrics.RecordPurchaseTransition(PurchaseStatusPending, PurchaseStatusAwaitingConfirmation)
	}
	return purchase, nil
}

// ConfirmPurchase finalizes a verified purchase and marks its listing sold,
// both in one database transaction. Only an awaiting_confirmation purchase
// can be confirmed; anything else returns ErrConflict, so a second confirm
// attempt for the same purchase is absorbed without touching the row.
func (s *Store) ConfirmPurchase(ctx context.Context, id uuid.UUID) (_ *Purchase, err error) {
	start := time.Now()
	defer func() { s.record("ConfirmPurchase", "purchases", start, err) }()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	updateSQL, updateArgs, err := psql.Update("purchases").
		Set("status", PurchaseStatusConfirmed).
		Set("confirmed_at", time.Now().UTC()).
		Where(squirrel.Eq{"id": id, "status": PurchaseStatusAwaitingConfirmation}).
		Suffix("RETURNING " + purchaseColumns).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build update: %w", err)
	}

	purchase, err := scanPurchase(tx.QueryRow(ctx, updateSQL, updateArgs...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, s.conflictOrNotFound(ctx, id, PurchaseStatusAwaitingConfirmation)
		}
		return nil, fmt.Errorf("failed to confirm purchase: %w", err)
	}

	soldSQL, soldArgs, err := psql.Update("listings").
		Set("is_sold", true).
		Set("is_active", false).
		Where(squirrel.Eq{"id": purchase.ListingID}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build listing update: %w", err)
	}
	if _, err = tx.Exec(ctx, soldSQL, soldArgs...); err != nil {
		return nil, fmt.Errorf("failed to mark listing sold: %w", err)
	}

	if err = tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit confirmation: %w", err)
	}

	if s.metrics != nil {
		s.metrics.RecordPurchaseTransition(PurchaseStatusAwaitingConfirmation, PurchaseStatusConfirmed)
	}
	return purchase, nil
}

// FailPurchase moves an awaiting_confirmation purchase to failed with a
// reason. Returns ErrConflict if the purchase is in any other status.
func (s *Store) FailPurchase(ctx context.Context, id uuid.UUID, reason string) (_ *Purchase, err error) {
	start := time.Now()
	defer func() { s.record("FailPurchase", "purchases", start, err) }()

	sql, args, err := psql.Update("purchases").
		Set("status", PurchaseStatusFailed).
		Set("failure_reason", reason).
		Where(squirrel.Eq{"id": id, "status": PurchaseStatusAwaitingConfirmation}).
		Suffix("RETURNING " + purchaseColumns).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build update: %w", err)
	}

	purchase, err := scanPurchase(s.pool.QueryRow(ctx, sql, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, s.conflictOrNotFound(ctx, id, PurchaseStatusAwaitingConfirmation)
		}
		return nil, fmt.Errorf("failed to fail purchase: %w", err)
	}

	if s.metrics != nil {
		s.metrics.RecordPurchaseTransition(PurchaseStatusAwaitingConfirmation, PurchaseStatusFailed)
	}
	return purchase, nil
}

// conflictOrNotFound distinguishes a missing purchase from one whose status
// failed the precondition of a conditional update.
func (s *Store) conflictOrNotFound(ctx context.Context, id uuid.UUID, expected string) error {
	sql, args, err := psql.Select("status").
		From("purchases").
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build query: %w", err)
	}

	var status string
	err = s.pool.QueryRow(ctx, sql, args...).Scan(&status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("purchase %s: %w", id, ErrNotFound)
		}
		return fmt.Errorf("failed to check purchase status: %w", err)
	}

	if s.metrics != nil {
		s.metrics.RecordPurchaseConflict(expected)
	}
	return fmt.Errorf("purchase %s is %s, expected %s: %w", id, status, expected, ErrConflict)
}
