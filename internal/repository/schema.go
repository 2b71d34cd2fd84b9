package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS articles (
		id                      TEXT PRIMARY KEY,
		title                   TEXT NOT NULL DEFAULT '',
		category                TEXT NOT NULL DEFAULT '',
		price                   BIGINT NOT NULL DEFAULT 0 CHECK (price >= 0),
		payment_status          TEXT NOT NULL DEFAULT 'pending',
		payment_date            TIMESTAMPTZ,
		payment_amount          BIGINT,
		payment_method          TEXT,
		credited_transaction_id TEXT,
		created_at              TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at              TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS transactions (
		transaction_id TEXT PRIMARY KEY,
		gateway_ref    TEXT NOT NULL DEFAULT '',
		article_id     TEXT NOT NULL,
		user_id        TEXT NOT NULL,
		amount         BIGINT NOT NULL,
		currency       TEXT NOT NULL,
		status         TEXT NOT NULL,
		mode           TEXT NOT NULL DEFAULT '',
		checkout_url   TEXT NOT NULL DEFAULT '',
		credited       BOOLEAN NOT NULL DEFAULT FALSE,
		checked_at     TIMESTAMPTZ,
		created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at     TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS transactions_article_user_idx
		ON transactions (article_id, user_id, created_at DESC)`,
	`ALTER TABLE transactions ADD COLUMN IF NOT EXISTS checked_at TIMESTAMPTZ`,
	`CREATE INDEX IF NOT EXISTS transactions_status_created_idx
		ON transactions (status, created_at)`,
	`CREATE INDEX IF NOT EXISTS transactions_status_checked_idx
		ON transactions (status, checked_at NULLS FIRST, created_at)`,
	// At most one credited transaction per article.
	`CREATE UNIQUE INDEX IF NOT EXISTS transactions_one_credit_idx
		ON transactions (article_id) WHERE credited`,
	`CREATE TABLE IF NOT EXISTS payments (
		id             UUID PRIMARY KEY,
		transaction_id TEXT NOT NULL UNIQUE REFERENCES transactions (transaction_id),
		article_id     TEXT NOT NULL,
		user_id        TEXT NOT NULL,
		amount         BIGINT NOT NULL,
		currency       TEXT NOT NULL,
		method         TEXT NOT NULL DEFAULT '',
		paid_at        TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS payments_user_paid_idx ON payments (user_id, paid_at DESC)`,
}

// CreateTables creates the tables used by the service if they don't exist.
func CreateTables(ctx context.Context, db *pgxpool.Pool) error {
	for i, stmt := range schemaStatements {
		if _, err := db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("error applying schema statement %d: %w", i, err)
		}
	}
	return nil
}
