package db

import (
	"context"
	"fmt"
)

// schema creates the lookup history table. It is idempotent.
const schema = `
CREATE TABLE IF NOT EXISTS lookups (
    id                     UUID PRIMARY KEY,
    requested_address      TEXT NOT NULL,
    address                TEXT NOT NULL,
    score                  SMALLINT NOT NULL CHECK (score BETWEEN 0 AND 100),
    source                 TEXT NOT NULL,
    fallback_reason        TEXT,
    transactions_requested SMALLINT NOT NULL DEFAULT 0,
    transactions_fetched   SMALLINT NOT NULL DEFAULT 0,
    shielded_outputs       INTEGER NOT NULL DEFAULT 0,
    total_outputs          INTEGER NOT NULL DEFAULT 0,
    created_at             TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_lookups_requested_address_created_at
    ON lookups (requested_address, created_at DESC);

CREATE INDEX IF NOT EXISTS idx_lookups_created_at
    ON lookups (created_at DESC);
`

// EnsureSchema creates the tables the store needs if they don't exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to ensure schema: %w", err)
	}
	return nil
}
