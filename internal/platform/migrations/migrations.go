// Package migrations applies the engine's database schema. Statements are
// idempotent so Apply can run on every startup.
package migrations

import (
	"context"
	"database/sql"
	"fmt"
)

var statements = []string{
	`CREATE TABLE IF NOT EXISTS ventures (
		id              TEXT PRIMARY KEY,
		owner_id        TEXT NOT NULL,
		title           TEXT NOT NULL,
		description     TEXT NOT NULL DEFAULT '',
		category        TEXT NOT NULL DEFAULT 'other',
		funding_goal    NUMERIC(20,8) NOT NULL,
		current_funding NUMERIC(20,8) NOT NULL DEFAULT 0,
		funding_version BIGINT NOT NULL DEFAULT 0,
		min_investment  NUMERIC(20,8) NOT NULL,
		max_investment  NUMERIC(20,8) NOT NULL DEFAULT 0,
		status          TEXT NOT NULL,
		halted          BOOLEAN NOT NULL DEFAULT FALSE,
		expires_at      TIMESTAMPTZ,
		created_at      TIMESTAMPTZ NOT NULL,
		updated_at      TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS venture_tiers (
		id          TEXT PRIMARY KEY,
		venture_id  TEXT NOT NULL REFERENCES ventures(id),
		name        TEXT NOT NULL,
		min_amount  NUMERIC(20,8) NOT NULL,
		max_amount  NUMERIC(20,8) NOT NULL DEFAULT 0,
		description TEXT NOT NULL DEFAULT '',
		benefits    JSONB,
		created_at  TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS investments (
		id              TEXT PRIMARY KEY,
		venture_id      TEXT NOT NULL REFERENCES ventures(id),
		supporter_id    TEXT NOT NULL,
		amount          NUMERIC(20,8) NOT NULL,
		tier_id         TEXT NOT NULL DEFAULT '',
		status          TEXT NOT NULL,
		idempotency_key TEXT NOT NULL,
		payment_ref     TEXT NOT NULL DEFAULT '',
		failure_reason  TEXT NOT NULL DEFAULT '',
		created_at      TIMESTAMPTZ NOT NULL,
		updated_at      TIMESTAMPTZ NOT NULL
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS investments_idempotency_key_idx
		ON investments (idempotency_key)`,
	`CREATE INDEX IF NOT EXISTS investments_venture_idx
		ON investments (venture_id)`,
	`CREATE INDEX IF NOT EXISTS investments_pending_age_idx
		ON investments (created_at) WHERE status = 'pending'`,
}

// Apply executes all schema statements in order.
func Apply(ctx context.Context, db *sql.DB) error {
	for i, stmt := range statements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}
	}
	return nil
}
