package repository

import (
	"context"
	"errors"

	"multipost/domain/model"
)

var (
	ErrCredentialNotFound = errors.New("credential not found")
	ErrVersionConflict    = errors.New("credential version conflict")
)

// ICredentialStore persists one credential record per platform.
type ICredentialStore interface {
	Get(ctx context.Context, platform model.PlatformID) (*model.CredentialRecord, error)
	List(ctx context.Context) ([]*model.CredentialRecord, error)
	// Put overwrites unconditionally and stores rec with Version = previous+1.
	Put(ctx context.Context, rec *model.CredentialRecord) error
	// CompareAndSwap writes rec only if the stored version equals expectedVersion
	// (0 meaning "no record yet"); otherwise it returns ErrVersionConflict.
	CompareAndSwap(ctx context.Context, rec *model.CredentialRecord, expectedVersion int64) error
}
