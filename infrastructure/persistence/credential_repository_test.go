package persistence

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"multipost/domain/model"
	"multipost/domain/repository"
)

var credentialCols = []string{"platform_id", "access_token", "refresh_token", "expires_at", "scopes", "token_type", "identifiers", "invalidated", "invalid_reason", "version", "created_at", "updated_at"}

func TestCredentialRepository_Get(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewCredentialRepository(db)
	exp := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	created := time.Date(2025, 12, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta(`FROM platform_credentials WHERE platform_id=$1`)).
		WithArgs("facebook").
		WillReturnRows(sqlmock.NewRows(credentialCols).
			AddRow("facebook", "page-token", "user-token", exp, "pages_manage_posts", "bearer", `{"page_id":"42","page_name":"Demo"}`, false, nil, int64(3), created, created))

	rec, err := repo.Get(context.Background(), model.PlatformFacebook)
	require.NoError(t, err)
	assert.Equal(t, model.PlatformFacebook, rec.PlatformID)
	assert.Equal(t, "page-token", rec.AccessToken)
	assert.Equal(t, "user-token", rec.RefreshToken)
	require.NotNil(t, rec.ExpiresAt)
	assert.True(t, exp.Equal(*rec.ExpiresAt))
	assert.Equal(t, "42", rec.Identifier(model.IdentifierPageID))
	assert.Equal(t, int64(3), rec.Version)
	assert.Empty(t, rec.InvalidReason)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCredentialRepository_Get_NotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta(`FROM platform_credentials WHERE platform_id=$1`)).
		WithArgs("tiktok").
		WillReturnError(sql.ErrNoRows)

	_, err = NewCredentialRepository(db).Get(context.Background(), model.PlatformTikTok)
	require.ErrorIs(t, err, repository.ErrCredentialNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCredentialRepository_Put_SetsReturnedVersion(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO platform_credentials`)).
		WithArgs("youtube", "access", "refresh", sqlmock.AnyArg(), "", "", "{}", false, "", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"version"}).AddRow(int64(5)))

	rec := &model.CredentialRecord{PlatformID: model.PlatformYouTube, AccessToken: "access", RefreshToken: "refresh"}
	require.NoError(t, NewCredentialRepository(db).Put(context.Background(), rec))
	assert.Equal(t, int64(5), rec.Version)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCredentialRepository_CompareAndSwap(t *testing.T) {
	tests := []struct {
		name        string
		expected    int64
		setup       func(mock sqlmock.Sqlmock)
		wantErr     error
		wantVersion int64
	}{
		{
			name:     "update matches version",
			expected: 2,
			setup: func(mock sqlmock.Sqlmock) {
				mock.ExpectExec(regexp.QuoteMeta(`WHERE platform_id=$1 AND version=$2`)).
					WithArgs("youtube", int64(2), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
					WillReturnResult(sqlmock.NewResult(0, 1))
			},
			wantVersion: 3,
		},
		{
			name:     "stale version conflicts",
			expected: 2,
			setup: func(mock sqlmock.Sqlmock) {
				mock.ExpectExec(regexp.QuoteMeta(`WHERE platform_id=$1 AND version=$2`)).
					WillReturnResult(sqlmock.NewResult(0, 0))
			},
			wantErr:     repository.ErrVersionConflict,
			wantVersion: 2,
		},
		{
			name:     "first insert",
			expected: 0,
			setup: func(mock sqlmock.Sqlmock) {
				mock.ExpectExec(regexp.QuoteMeta(`ON CONFLICT (platform_id) DO NOTHING`)).
					WillReturnResult(sqlmock.NewResult(0, 1))
			},
			wantVersion: 1,
		},
		{
			name:     "insert races an existing record",
			expected: 0,
			setup: func(mock sqlmock.Sqlmock) {
				mock.ExpectExec(regexp.QuoteMeta(`ON CONFLICT (platform_id) DO NOTHING`)).
					WillReturnResult(sqlmock.NewResult(0, 0))
			},
			wantErr: repository.ErrVersionConflict,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock, err := sqlmock.New()
			require.NoError(t, err)
			defer db.Close()
			tt.setup(mock)

			rec := &model.CredentialRecord{PlatformID: model.PlatformYouTube, AccessToken: "a", Version: tt.expected}
			err = NewCredentialRepository(db).CompareAndSwap(context.Background(), rec, tt.expected)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, tt.wantVersion, rec.Version)
			require.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestCredentialRepositoryMSSQL_CompareAndSwap_Conflict(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(regexp.QuoteMeta(`UPDATE dbo.[platform_credentials]`)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	rec := &model.CredentialRecord{PlatformID: model.PlatformTikTok, AccessToken: "a"}
	err = NewCredentialRepositoryMSSQL(db).CompareAndSwap(context.Background(), rec, 4)
	require.ErrorIs(t, err, repository.ErrVersionConflict)
	require.NoError(t, mock.ExpectationsWereMet())
}
