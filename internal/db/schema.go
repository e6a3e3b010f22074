package db

import (
	"context"
	"fmt"
)

// Schema is applied in order by Migrate. Every statement is idempotent.
var Schema = []string{
	`CREATE TABLE IF NOT EXISTS runs (
		id UUID PRIMARY KEY,
		user_id TEXT NOT NULL,
		client_id TEXT,
		date TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		time_sec INTEGER NOT NULL,
		distance_km DOUBLE PRECISION NOT NULL,
		pace TEXT NOT NULL,
		pace_seconds INTEGER NOT NULL DEFAULT 0,
		calories INTEGER NOT NULL DEFAULT 0,
		path JSONB NOT NULL DEFAULT '[]',
		deleted BOOLEAN NOT NULL DEFAULT FALSE,
		caption TEXT NOT NULL DEFAULT '',
		is_posted BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		UNIQUE (user_id, client_id)
	)`,
	`CREATE INDEX IF NOT EXISTS runs_user_date_idx ON runs (user_id, date DESC)`,
	`CREATE TABLE IF NOT EXISTS user_profiles (
		user_id TEXT PRIMARY KEY,
		weight_kg DOUBLE PRECISION,
		height_cm DOUBLE PRECISION,
		dob DATE,
		gender TEXT,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS shoes (
		id UUID PRIMARY KEY,
		user_id TEXT NOT NULL,
		name TEXT NOT NULL,
		distance_km DOUBLE PRECISION NOT NULL DEFAULT 0,
		target_km DOUBLE PRECISION NOT NULL DEFAULT 800,
		active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS shoes_user_active_idx ON shoes (user_id) WHERE active`,
}

// Migrate creates the tables the service needs.
func Migrate(ctx context.Context, q Querier) error {
	for i, stmt := range Schema {
		if _, err := q.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migrate step %d: %w", i+1, err)
		}
	}
	return nil
}
