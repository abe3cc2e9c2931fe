package persistence

import (
	"context"
	"database/sql"
	"fmt"

	"multipost/domain/model"
)

// OutcomeRepositoryMSSQL mirrors OutcomeRepository for SQL Server.
type OutcomeRepositoryMSSQL struct{ db *sql.DB }

func NewOutcomeRepositoryMSSQL(db *sql.DB) *OutcomeRepositoryMSSQL {
	return &OutcomeRepositoryMSSQL{db: db}
}

func (r *OutcomeRepositoryMSSQL) Append(ctx context.Context, o *model.PublishOutcome) error {
	warnings, err := encodeWarnings(o.Warnings)
	if err != nil {
		return err
	}
	q := `IF NOT EXISTS (SELECT 1 FROM dbo.[publish_outcomes] WITH (UPDLOCK, HOLDLOCK) WHERE request_id=@p1 AND platform_id=@p2)
    INSERT INTO dbo.[publish_outcomes] (` + outcomeColumns + `)
    VALUES (@p1,@p2,@p3,@p4,@p5,@p6,@p7,@p8,@p9,@p10);`
	res, err := r.db.ExecContext(ctx, q, o.RequestID, string(o.PlatformID), string(o.Status), o.RemotePostID, o.RemoteURL, string(o.ErrorKind), o.ErrorMessage, warnings, o.Attempts, o.CompletedAt)
	if err != nil {
		return fmt.Errorf("insert outcome (mssql): %w", err)
	}
	return duplicateIfNone(res)
}

func (r *OutcomeRepositoryMSSQL) ListByRequest(ctx context.Context, requestID string) ([]*model.PublishOutcome, error) {
	return queryOutcomes(ctx, r.db, `SELECT `+outcomeColumns+` FROM dbo.[publish_outcomes] WHERE request_id=@p1 ORDER BY completed_at, id`, requestID)
}

func (r *OutcomeRepositoryMSSQL) ListByPlatform(ctx context.Context, platform model.PlatformID) ([]*model.PublishOutcome, error) {
	return queryOutcomes(ctx, r.db, `SELECT `+outcomeColumns+` FROM dbo.[publish_outcomes] WHERE platform_id=@p1 ORDER BY completed_at, id`, string(platform))
}
