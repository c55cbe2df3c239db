package db

import (
	"context"
	"fmt"
)

// schema is the full database schema. Migrate applies it idempotently; every
// statement is guarded with IF NOT EXISTS so repeated startups are safe.
const schema = `
CREATE TABLE IF NOT EXISTS users (
    wallet_address TEXT PRIMARY KEY,
    username TEXT UNIQUE,
    role TEXT NOT NULL DEFAULT 'buyer' CHECK (role IN ('creator', 'buyer')),
    created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS listings (
    id UUID PRIMARY KEY,
    title TEXT NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    price_lamports BIGINT NOT NULL CHECK (price_lamports > 0),
    creator_wallet TEXT NOT NULL REFERENCES users(wallet_address),
    object_key TEXT NOT NULL,
    preview_url TEXT,
    is_active BOOLEAN NOT NULL DEFAULT TRUE,
    is_sold BOOLEAN NOT NULL DEFAULT FALSE,
    created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS purchases (
    id UUID PRIMARY KEY,
    listing_id UUID NOT NULL REFERENCES listings(id),
    buyer_wallet TEXT NOT NULL REFERENCES users(wallet_address),
    recipient_address TEXT NOT NULL,
    amount_lamports BIGINT NOT NULL CHECK (amount_lamports > 0),
    status TEXT NOT NULL DEFAULT 'pending'
        CHECK (status IN ('pending', 'awaiting_confirmation', 'confirmed', 'failed')),
    blockhash TEXT,
    last_valid_block_height BIGINT,
    transaction_signature TEXT UNIQUE,
    failure_reason TEXT,
    created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
    confirmed_at TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_purchases_buyer ON purchases (buyer_wallet, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_purchases_listing ON purchases (listing_id);
CREATE INDEX IF NOT EXISTS idx_listings_creator ON listings (creator_wallet);
CREATE INDEX IF NOT EXISTS idx_listings_active ON listings (is_active) WHERE is_active;
`

// Migrate applies the schema to the connected database.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}
