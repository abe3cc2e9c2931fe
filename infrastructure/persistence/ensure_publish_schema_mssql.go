package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// EnsurePublishSchemaMSSQL creates the outcome table on SQL Server and adds
// newer columns when missing.
func EnsurePublishSchemaMSSQL(db *sql.DB) error {
	if err := EnsureCredentialSchemaMSSQL(db); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	ddl := `IF NOT EXISTS (SELECT * FROM sys.objects WHERE object_id = OBJECT_ID(N'dbo.publish_outcomes') AND type in (N'U'))
BEGIN
    CREATE TABLE dbo.[publish_outcomes] (
        id BIGINT IDENTITY(1,1) PRIMARY KEY,
        request_id NVARCHAR(64) NOT NULL,
        platform_id NVARCHAR(32) NOT NULL,
        status NVARCHAR(16) NOT NULL,
        remote_post_id NVARCHAR(255) NULL,
        remote_url NVARCHAR(1024) NULL,
        error_kind NVARCHAR(32) NULL,
        error_message NVARCHAR(MAX) NULL,
        attempts INT NOT NULL DEFAULT 0,
        completed_at DATETIME2 NOT NULL
    );
    CREATE UNIQUE INDEX UX_publish_outcomes_request_platform ON dbo.[publish_outcomes](request_id, platform_id);
END`
	if _, err := db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("create publish_outcomes (mssql): %w", err)
	}

	addIfMissing := func(table, column, ddl string) error {
		q := fmt.Sprintf(`IF COL_LENGTH('%s', '%s') IS NULL BEGIN %s END`, table, column, ddl)
		if _, err := db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("ensure column %s.%s: %w", table, column, err)
		}
		return nil
	}
	return addIfMissing("dbo.publish_outcomes", "warnings", "ALTER TABLE dbo.[publish_outcomes] ADD warnings NVARCHAR(MAX) NULL")
}
