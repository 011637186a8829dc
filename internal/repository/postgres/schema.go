package postgres

import (
	"context"
	"database/sql"
	"fmt"
)

// Schema creates the tables the repositories expect. It is idempotent.
const Schema = `
	CREATE EXTENSION IF NOT EXISTS "pgcrypto";

	CREATE TABLE IF NOT EXISTS channels (
		id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		name VARCHAR(100) NOT NULL CHECK (length(name) >= 1),
		description TEXT,
		created_at TIMESTAMPTZ DEFAULT now() NOT NULL,
		CONSTRAINT channels_name_key UNIQUE (name)
	);

	CREATE TABLE IF NOT EXISTS messages (
		id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		seq BIGSERIAL NOT NULL,
		channel_id UUID NOT NULL REFERENCES channels(id) ON DELETE CASCADE,
		author_id TEXT NOT NULL,
		content TEXT NOT NULL CHECK (length(content) > 0 AND length(content) <= 4000),
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	);

	CREATE INDEX IF NOT EXISTS messages_channel_order_idx
		ON messages (channel_id, created_at, seq);
`

// EnsureSchema applies Schema to db
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}
