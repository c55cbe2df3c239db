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

// Listing is an item offered for sale. The full-resolution object lives in
// object storage under ObjectKey; PreviewURL is publicly viewable.
type Listing struct {
	ID            uuid.UUID
	Title         string
	Description   string
	PriceLamports int64
	CreatorWallet string
	ObjectKey     string
	PreviewURL    *string
	IsActive      bool
	IsSold        bool
	CreatedAt     time.Time
}

// CreateListingParams contains the parameters for creating a listing.
type CreateListingParams struct {
	ID            uuid.UUID
	Title         string
	Description   string
	PriceLamports int64
	CreatorWallet string
	ObjectKey     string
	PreviewURL    *string
}

// ListListingsParams contains filters and pagination for listing queries.
type ListListingsParams struct {
	CreatorWallet string // empty means all creators
	ActiveOnly    bool
	Limit         int32
	Offset        int32
}

// CreatorStats summarizes a creator's sales.
type CreatorStats struct {
	CreatorWallet       string
	TotalListings       int64
	ActiveListings      int64
	SoldListings        int64
	TotalEarnedLamports int64
}

const listingColumns = "id, title, description, price_lamports, creator_wallet, object_key, preview_url, is_active, is_sold, created_at"

func scanListing(row pgx.Row) (*Listing, error) {
	var l Listing
	err := row.Scan(&l.ID, &l.Title, &l.Description, &l.PriceLamports, &l.CreatorWallet,
		&l.ObjectKey, &l.PreviewURL, &l.IsActive, &l.IsSold, &l.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &l, nil
}

// CreateListing inserts a new listing. The creator must already be registered.
func (s *Store) CreateListing(ctx context.Context, params CreateListingParams) (_ *Listing, err error) {
	start := time.Now()
	defer func() { s.record("CreateListing", "listings", start, err) }()

	sql, args, err := psql.Insert("listings").
		Columns("id", "title", "description", "price_lamports", "creator_wallet", "object_key", "preview_url").
		Values(params.ID, params.Title, params.Description, params.PriceLamports,
			params.CreatorWallet, params.ObjectKey, params.PreviewURL).
		Suffix("RETURNING " + listingColumns).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build insert: %w", err)
	}

	listing, err := scanListing(s.pool.QueryRow(ctx, sql, args...))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			switch pgErr.Code {
			case "23505":
				return nil, fmt.Errorf("listing %s: %w", params.ID, ErrAlreadyExists)
			case "23503":
				return nil, fmt.Errorf("creator %s: %w", params.CreatorWallet, ErrNotFound)
			}
		}
		return nil, fmt.Errorf("failed to create listing: %w", err)
	}

	return listing, nil
}

// GetListing retrieves a listing by id.
func (s *Store) GetListing(ctx context.Context, id uuid.UUID) (_ *Listing, err error) {
	start := time.Now()
	defer func() { s.record("GetListing", "listings", start, err) }()

	sql, args, err := psql.Select(listingColumns).
		From("listings").
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build query: %w", err)
	}

	listing, err := scanListing(s.pool.QueryRow(ctx, sql, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("listing %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get listing: %w", err)
	}

	return listing, nil
}

// ListListings returns listings matching the given filters, newest first.
func (s *Store) ListListings(ctx context.Context, params ListListingsParams) (_ []*Listing, err error) {
	start := time.Now()
	defer func() { s.record("ListListings", "listings", start, err) }()

	q := psql.Select(listingColumns).
		From("listings").
		OrderBy("created_at DESC").
		Limit(uint64(params.Limit)).
		Offset(uint64(params.Offset))
	if params.CreatorWallet != "" {
		q = q.Where(squirrel.Eq{"creator_wallet": params.CreatorWallet})
	}
	if params.ActiveOnly {
		q = q.Where(squirrel.Eq{"is_active": true})
	}

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build query: %w", err)
	}

	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list listings: %w", err)
	}
	defer rows.Close()

	var listings []*Listing
	for rows.Next() {
		listing, err := scanListing(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan listing: %w", err)
		}
		listings = append(listings, listing)
	}

	return listings, rows.Err()
}

// ListUnlockedListings returns the listings a buyer has unlocked through
// confirmed purchases, most recently confirmed first.
func (s *Store) ListUnlockedListings(ctx context.Context, buyerWallet string, limit, offset int32) (_ []*Listing, err error) {
	start := time.Now()
	defer func() { s.record("ListUnlockedListings", "listings", start, err) }()

	sql, args, err := psql.Select(
		"l.id", "l.title", "l.description", "l.price_lamports", "l.creator_wallet",
		"l.object_key", "l.preview_url", "l.is_active", "l.is_sold", "l.created_at",
	).
		From("listings l").
		Join("purchases p ON p.listing_id = l.id").
		Where(squirrel.Eq{"p.buyer_wallet": buyerWallet, "p.status": PurchaseStatusConfirmed}).
		OrderBy("p.confirmed_at DESC").
		Limit(uint64(limit)).
		Offset(uint64(offset)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build query: %w", err)
	}

	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list unlocked listings: %w", err)
	}
	defer rows.Close()

	var listings []*Listing
	for rows.Next() {
		listing, err := scanListing(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan listing: %w", err)
		}
		listings = append(listings, listing)
	}

	return listings, rows.Err()
}

// DeactivateListing soft-deletes a listing. Only the owning creator may
// deactivate it; returns ErrNotFound if the listing does not exist or belongs
// to someone else.
func (s *Store) DeactivateListing(ctx context.Context, id uuid.UUID, creatorWallet string) (err error) {
	start := time.Now()
	defer func() { s.record("DeactivateListing", "listings", start, err) }()

	sql, args, err := psql.Update("listings").
		Set("is_active", false).
		Where(squirrel.Eq{"id": id, "creator_wallet": creatorWallet}).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build update: %w", err)
	}

	tag, err := s.pool.Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("failed to deactivate listing: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("listing %s: %w", id, ErrNotFound)
	}

	return nil
}

// GetCreatorStats aggregates listing and sales counts for a creator.
func (s *Store) GetCreatorStats(ctx context.Context, creatorWallet string) (_ *CreatorStats, err error) {
	start := time.Now()
	defer func() { s.record("GetCreatorStats", "listings", start, err) }()

	sql, args, err := psql.Select(
		"COUNT(*)",
		"COUNT(*) FILTER (WHERE is_active)",
		"COUNT(*) FILTER (WHERE is_sold)",
		"COALESCE(SUM(price_lamports) FILTER (WHERE is_sold), 0)",
	).
		From("listings").
		Where(squirrel.Eq{"creator_wallet": creatorWallet}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build query: %w", err)
	}

	stats := &CreatorStats{CreatorWallet: creatorWallet}
	err = s.pool.QueryRow(ctx, sql, args...).
		Scan(&stats.TotalListings, &stats.ActiveListings, &stats.SoldListings, &stats.TotalEarnedLamports)
	if err != nil {
		return nil, fmt.Errorf("failed to get creator stats: %w", err)
	}

	return stats, nil
}
