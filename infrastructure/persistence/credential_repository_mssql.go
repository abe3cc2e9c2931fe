package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"multipost/domain/model"
	"multipost/domain/repository"
)

type CredentialRepositoryMSSQL struct{ db *sql.DB }

func NewCredentialRepositoryMSSQL(db *sql.DB) *CredentialRepositoryMSSQL {
	return &CredentialRepositoryMSSQL{db: db}
}

// EnsureCredentialSchemaMSSQL creates the platform_credentials table for SQL Server if it does not exist.
func EnsureCredentialSchemaMSSQL(db *sql.DB) error {
	ddl := `IF NOT EXISTS (SELECT * FROM sys.objects WHERE object_id = OBJECT_ID(N'dbo.platform_credentials') AND type in (N'U'))
BEGIN
    CREATE TABLE dbo.[platform_credentials] (
        platform_id NVARCHAR(32) NOT NULL PRIMARY KEY,
        access_token NVARCHAR(MAX) NOT NULL,
        refresh_token NVARCHAR(MAX) NULL,
        expires_at DATETIME2 NULL,
        scopes NVARCHAR(MAX) NULL,
        token_type NVARCHAR(32) NULL,
        identifiers NVARCHAR(MAX) NULL,
        invalidated BIT NOT NULL DEFAULT 0,
        invalid_reason NVARCHAR(1024) NULL,
        version BIGINT NOT NULL,
        created_at DATETIME2 NOT NULL,
        updated_at DATETIME2 NOT NULL
    );
END`
	if _, err := db.Exec(ddl); err != nil {
		return fmt.Errorf("create platform_credentials (mssql): %w", err)
	}
	return nil
}

func (r *CredentialRepositoryMSSQL) Get(ctx context.Context, platform model.PlatformID) (*model.CredentialRecord, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+credentialColumns+` FROM dbo.[platform_credentials] WHERE platform_id=@p1`, string(platform))
	rec, err := scanCredential(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.ErrCredentialNotFound
	}
	return rec, err
}

func (r *CredentialRepositoryMSSQL) List(ctx context.Context) ([]*model.CredentialRecord, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+credentialColumns+` FROM dbo.[platform_credentials] ORDER BY platform_id`)
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

func (r *CredentialRepositoryMSSQL) Put(ctx context.Context, rec *model.CredentialRecord) error {
	ids, err := encodeIdentifiers(rec.Identifiers)
	if err != nil {
		return err
	}
	// MERGE upsert by platform_id, bumping version on update
	q := `MERGE dbo.[platform_credentials] WITH (HOLDLOCK) AS target
USING (VALUES (@p1)) AS src(platform_id)
ON target.platform_id = src.platform_id
WHEN MATCHED THEN UPDATE SET
    access_token=@p2,
    refresh_token=@p3,
    expires_at=@p4,
    scopes=@p5,
    token_type=@p6,
    identifiers=@p7,
    invalidated=@p8,
    invalid_reason=@p9,
    version=target.version+1,
    updated_at=@p11
WHEN NOT MATCHED THEN
    INSERT (` + credentialColumns + `)
    VALUES (@p1,@p2,@p3,@p4,@p5,@p6,@p7,@p8,@p9,1,@p10,@p11)
OUTPUT inserted.version;`
	var version int64
	err = r.db.QueryRowContext(ctx, q,
		string(rec.PlatformID),
		rec.AccessToken,
		rec.RefreshToken,
		nullTime(rec.ExpiresAt),
		rec.Scopes,
		rec.TokenType,
		ids,
		rec.Invalidated,
		rec.InvalidReason,
		rec.CreatedAt,
		rec.UpdatedAt,
	).Scan(&version)
	if err != nil {
		return fmt.Errorf("merge credential (mssql): %w", err)
	}
	rec.Version = version
	return nil
}

func (r *CredentialRepositoryMSSQL) CompareAndSwap(ctx context.Context, rec *model.CredentialRecord, expectedVersion int64) error {
	ids, err := encodeIdentifiers(rec.Identifiers)
	if err != nil {
		return err
	}
	if expectedVersion == 0 {
		q := `IF NOT EXISTS (SELECT 1 FROM dbo.[platform_credentials] WITH (UPDLOCK, HOLDLOCK) WHERE platform_id=@p1)
    INSERT INTO dbo.[platform_credentials] (` + credentialColumns + `)
    VALUES (@p1,@p2,@p3,@p4,@p5,@p6,@p7,@p8,@p9,1,@p10,@p11);`
		res, err := r.db.ExecContext(ctx, q, string(rec.PlatformID), rec.AccessToken, rec.RefreshToken, nullTime(rec.ExpiresAt), rec.Scopes, rec.TokenType, ids, rec.Invalidated, rec.InvalidReason, rec.CreatedAt, rec.UpdatedAt)
		if err != nil {
			return fmt.Errorf("insert credential (mssql): %w", err)
		}
		return applyVersion(res, rec, 1)
	}
	q := `UPDATE dbo.[platform_credentials] SET
    access_token=@p3, refresh_token=@p4, expires_at=@p5, scopes=@p6, token_type=@p7,
    identifiers=@p8, invalidated=@p9, invalid_reason=@p10, updated_at=@p11, version=version+1
WHERE platform_id=@p1 AND version=@p2`
	res, err := r.db.ExecContext(ctx, q, string(rec.PlatformID), expectedVersion, rec.AccessToken, rec.RefreshToken, nullTime(rec.ExpiresAt), rec.Scopes, rec.TokenType, ids, rec.Invalidated, rec.InvalidReason, rec.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update credential (mssql): %w", err)
	}
	return applyVersion(res, rec, expectedVersion+1)
}
