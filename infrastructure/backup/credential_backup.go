// Package backup exports stored credentials as zip archives.
package backup

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"multipost/domain/model"
	"multipost/domain/repository"
	"multipost/infrastructure/logger"
)

var ErrNothingToBackup = errors.New("no credentials to back up")

// CredentialBackup snapshots the credential store, one JSON file per platform.
type CredentialBackup struct {
	store    repository.ICredentialStore
	archiver Archiver
	now      func() time.Time
}

func NewCredentialBackup(store repository.ICredentialStore, archiver Archiver) *CredentialBackup {
	return &CredentialBackup{store: store, archiver: archiver, now: time.Now}
}

// Backup archives one platform, or every platform when p is empty, and returns
// the archive location.
func (b *CredentialBackup) Backup(ctx context.Context, p model.PlatformID) (string, error) {
	var records []*model.CredentialRecord
	if p != "" {
		rec, err := b.store.Get(ctx, p)
		if errors.Is(err, repository.ErrCredentialNotFound) {
			return "", ErrNothingToBackup
		}
		if err != nil {
			return "", err
		}
		records = append(records, rec)
	} else {
		all, err := b.store.List(ctx)
		if err != nil {
			return "", err
		}
		records = all
	}
	if len(records) == 0 {
		return "", ErrNothingToBackup
	}

	ts := b.now().UTC()
	data, err := archive(records, ts)
	if err != nil {
		return "", err
	}
	location, err := b.archiver.Store(ctx, archiveName(p, ts), data)
	if err != nil {
		return "", err
	}
	logger.GetLogger().WithField("location", location).WithField("records", len(records)).Info("Credential backup created")
	return location, nil
}

func archiveName(p model.PlatformID, ts time.Time) string {
	stamp := ts.Format("20060102_150405")
	if p == "" {
		return fmt.Sprintf("all_credentials_backup_%s.zip", stamp)
	}
	return fmt.Sprintf("%s_backup_%s.zip", p, stamp)
}

func archive(records []*model.CredentialRecord, ts time.Time) ([]byte, error) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, rec := range records {
		body, err := json.MarshalIndent(rec, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("encode %s credential: %w", rec.PlatformID, err)
		}
		w, err := zw.CreateHeader(&zip.FileHeader{
			Name:     string(rec.PlatformID) + ".json",
			Method:   zip.Deflate,
			Modified: ts,
		})
		if err != nil {
			return nil, err
		}
		if _, err := w.Write(body); err != nil {
			return nil, err
		}
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("finish archive: %w", err)
	}
	return buf.Bytes(), nil
}
