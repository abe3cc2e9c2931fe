package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"multipost/domain/model"
	"multipost/domain/repository"
)

const credentialColumns = `platform_id, access_token, refresh_token, expires_at, scopes, token_type, identifiers, invalidated, invalid_reason, version, created_at, updated_at`

// CredentialRepository is the PostgreSQL credential store. The version column is
// the compare-and-swap token.
type CredentialRepository struct{ db *sql.DB }

func NewCredentialRepository(db *sql.DB) *CredentialRepository { return &CredentialRepository{db: db} }

func (r *CredentialRepository) Get(ctx context.Context, platform model.PlatformID) (*model.CredentialRecord, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+credentialColumns+` FROM platform_credentials WHERE platform_id=$1`, string(platform))
	rec, err := scanCredential(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.ErrCredentialNotFound
	}
	return rec, err
}

func (r *CredentialRepository) List(ctx context.Context) ([]*model.CredentialRecord, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+credentialColumns+` FROM platform_credentials ORDER BY platform_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*model.CredentialRecord
	for rows.Next() {
		rec, err := scanCredential(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (r *CredentialRepository) Put(ctx context.Context, rec *model.CredentialRecord) error {
	ids, err := encodeIdentifiers(rec.Identifiers)
	if err != nil {
		return err
	}
	q := `INSERT INTO platform_credentials (` + credentialColumns + `)
		  VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,1,$10,$11)
		  ON CONFLICT (platform_id) DO UPDATE SET
			access_token=EXCLUDED.access_token,
			refresh_token=EXCLUDED.refresh_token,
			expires_at=EXCLUDED.expires_at,
			scopes=EXCLUDED.scopes,
			token_type=EXCLUDED.token_type,
			identifiers=EXCLUDED.identifiers,
			invalidated=EXCLUDED.invalidated,
			invalid_reason=EXCLUDED.invalid_reason,
			version=platform_credentials.version+1,
			updated_at=EXCLUDED.updated_at
		  RETURNING version`
	var version int64
	err = r.db.QueryRowContext(ctx, q, string(rec.PlatformID), rec.AccessToken, rec.RefreshToken, nullTime(rec.ExpiresAt), rec.Scopes, rec.TokenType, ids, rec.Invalidated, rec.InvalidReason, rec.CreatedAt, rec.UpdatedAt).Scan(&version)
	if err != nil {
		return fmt.Errorf("upsert credential: %w", err)
	}
	rec.Version = version
	return nil
}

func (r *CredentialRepository) CompareAndSwap(ctx context.Context, rec *model.CredentialRecord, expectedVersion int64) error {
	ids, err := encodeIdentifiers(rec.Identifiers)
	if err != nil {
		return err
	}
	if expectedVersion == 0 {
		q := `INSERT INTO platform_credentials (` + credentialColumns + `)
			  VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,1,$10,$11)
			  ON CONFLICT (platform_id) DO NOTHING`
		res, err := r.db.ExecContext(ctx, q, string(rec.PlatformID), rec.AccessToken, rec.RefreshToken, nullTime(rec.ExpiresAt), rec.Scopes, rec.TokenType, ids, rec.Invalidated, rec.InvalidReason, rec.CreatedAt, rec.UpdatedAt)
		if err != nil {
			return fmt.Errorf("insert credential: %w", err)
		}
		return applyVersion(res, rec, 1)
	}
	q := `UPDATE platform_credentials SET
			access_token=$3, refresh_token=$4, expires_at=$5, scopes=$6, token_type=$7,
			identifiers=$8, invalidated=$9, invalid_reason=$10, updated_at=$11, version=version+1
		  WHERE platform_id=$1 AND version=$2`
	res, err := r.db.ExecContext(ctx, q, string(rec.PlatformID), expectedVersion, rec.AccessToken, rec.RefreshToken, nullTime(rec.ExpiresAt), rec.Scopes, rec.TokenType, ids, rec.Invalidated, rec.InvalidReason, rec.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update credential: %w", err)
	}
	return applyVersion(res, rec, expectedVersion+1)
}

func applyVersion(res sql.Result, rec *model.CredentialRecord, version int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return repository.ErrVersionConflict
	}
	rec.Version = version
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCredential(row rowScanner) (*model.CredentialRecord, error) {
	rec := &model.CredentialRecord{}
	var exp sql.NullTime
	var refresh, scopes, tokenType, ids, reason sql.NullString
	var platform string
	if err := row.Scan(&platform, &rec.AccessToken, &refresh, &exp, &scopes, &tokenType, &ids, &rec.Invalidated, &reason, &rec.Version, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
		return nil, err
	}
	rec.PlatformID = model.PlatformID(platform)
	rec.RefreshToken = refresh.String
	rec.Scopes = scopes.String
	rec.TokenType = tokenType.String
	rec.InvalidReason = reason.String
	if exp.Valid {
		t := exp.Time
		rec.ExpiresAt = &t
	}
	if ids.Valid && ids.String != "" {
		if err := json.Unmarshal([]byte(ids.String), &rec.Identifiers); err != nil {
			return nil, fmt.Errorf("decode identifiers: %w", err)
		}
	}
	return rec, nil
}

func encodeIdentifiers(ids map[string]string) (string, error) {
	if len(ids) == 0 {
		return "{}", nil
	}
	b, err := json.Marshal(ids)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
