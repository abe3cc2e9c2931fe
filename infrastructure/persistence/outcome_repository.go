package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"multipost/domain/model"
	"multipost/domain/repository"
)

const outcomeColumns = `request_id, platform_id, status, remote_post_id, remote_url, error_kind, error_message, warnings, attempts, completed_at`

// OutcomeRepository is the append-only PostgreSQL outcome log.
type OutcomeRepository struct{ db *sql.DB }

func NewOutcomeRepository(db *sql.DB) *OutcomeRepository { return &OutcomeRepository{db: db} }

func (r *OutcomeRepository) Append(ctx context.Context, o *model.PublishOutcome) error {
	warnings, err := encodeWarnings(o.Warnings)
	if err != nil {
		return err
	}
	q := `INSERT INTO publish_outcomes (` + outcomeColumns + `)
		  VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		  ON CONFLICT (request_id, platform_id) DO NOTHING`
	res, err := r.db.ExecContext(ctx, q, o.RequestID, string(o.PlatformID), string(o.Status), o.RemotePostID, o.RemoteURL, string(o.ErrorKind), o.ErrorMessage, warnings, o.Attempts, o.CompletedAt)
	if err != nil {
		return fmt.Errorf("insert outcome: %w", err)
	}
	return duplicateIfNone(res)
}

func (r *OutcomeRepository) ListByRequest(ctx context.Context, requestID string) ([]*model.PublishOutcome, error) {
	return queryOutcomes(ctx, r.db, `SELECT `+outcomeColumns+` FROM publish_outcomes WHERE request_id=$1 ORDER BY completed_at, id`, requestID)
}

func (r *OutcomeRepository) ListByPlatform(ctx context.Context, platform model.PlatformID) ([]*model.PublishOutcome, error) {
	return queryOutcomes(ctx, r.db, `SELECT `+outcomeColumns+` FROM publish_outcomes WHERE platform_id=$1 ORDER BY completed_at, id`, string(platform))
}

func duplicateIfNone(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return repository.ErrDuplicateOutcome
	}
	return nil
}

func queryOutcomes(ctx context.Context, db *sql.DB, q string, args ...any) ([]*model.PublishOutcome, error) {
	rows, err := db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	list := make([]*model.PublishOutcome, 0)
	for rows.Next() {
		o := &model.PublishOutcome{}
		var platform, status string
		var remoteID, remoteURL, kind, msg, warnings sql.NullString
		if err := rows.Scan(&o.RequestID, &platform, &status, &remoteID, &remoteURL, &kind, &msg, &warnings, &o.Attempts, &o.CompletedAt); err != nil {
			return nil, err
		}
		o.PlatformID = model.PlatformID(platform)
		o.Status = model.OutcomeStatus(status)
		o.RemotePostID = remoteID.String
		o.RemoteURL = remoteURL.String
		o.ErrorKind = model.ErrorKind(kind.String)
		o.ErrorMessage = msg.String
		if warnings.Valid && warnings.String != "" {
			if err := json.Unmarshal([]byte(warnings.String), &o.Warnings); err != nil {
				return nil, fmt.Errorf("decode warnings: %w", err)
			}
		}
		list = append(list, o)
	}
	return list, rows.Err()
}

func encodeWarnings(w []string) (string, error) {
	if len(w) == 0 {
		return "[]", nil
	}
	b, err := json.Marshal(w)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
