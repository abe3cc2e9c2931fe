package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// EnsurePublishSchema creates the credential and outcome tables and adds newer
// columns if they are missing. Safe to call at startup.
func EnsurePublishSchema(db *sql.DB) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	tables := []string{
		`CREATE TABLE IF NOT EXISTS platform_credentials (
			platform_id TEXT PRIMARY KEY,
			access_token TEXT NOT NULL,
			refresh_token TEXT,
			expires_at TIMESTAMPTZ,
			scopes TEXT,
			token_type TEXT,
			identifiers TEXT,
			invalidated BOOLEAN NOT NULL DEFAULT FALSE,
			invalid_reason TEXT,
			version BIGINT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS publish_outcomes (
			id BIGSERIAL PRIMARY KEY,
			request_id TEXT NOT NULL,
			platform_id TEXT NOT NULL,
			status TEXT NOT NULL,
			remote_post_id TEXT,
			remote_url TEXT,
			error_kind TEXT,
			error_message TEXT,
			attempts INT NOT NULL DEFAULT 0,
			completed_at TIMESTAMPTZ NOT NULL,
			UNIQUE (request_id, platform_id)
		)`,
		`CREATE INDEX IF NOT EXISTS ix_publish_outcomes_platform ON publish_outcomes (platform_id, completed_at)`,
	}
	for _, ddl := range tables {
		if _, err := db.ExecContext(ctx, ddl); err != nil {
			return fmt.Errorf("ensure publish schema: %w", err)
		}
	}

	checks := []struct {
		table  string
		column string
		ddl    string
	}{
		{"publish_outcomes", "warnings", "ALTER TABLE publish_outcomes ADD COLUMN warnings TEXT"},
	}
	for _, c := range checks {
		exists, err := columnExists(ctx, db, c.table, c.column)
		if err != nil {
			return err
		}
		if !exists {
			if _, err := db.ExecContext(ctx, c.ddl); err != nil {
				return fmt.Errorf("adding column %s.%s failed: %w", c.table, c.column, err)
			}
		}
	}
	return nil
}

func columnExists(ctx context.Context, db *sql.DB, table, column string) (bool, error) {
	row := db.QueryRowContext(ctx, `SELECT 1 FROM information_schema.columns WHERE table_name=$1 AND column_name=$2`, table, column)
	var one int
	if err := row.Scan(&one); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, err
	}
	return true, nil
}
