package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"multipost/domain/model"
	"multipost/domain/repository"
)

// FileCredentialRepository stores one <platform>.json file per platform under dir.
// Writes go through a temp file and rename so a crash never leaves a torn record.
type FileCredentialRepository struct {
	dir string
	mu  sync.Mutex
}

func NewFileCredentialRepository(dir string) (*FileCredentialRepository, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create credential dir: %w", err)
	}
	return &FileCredentialRepository{dir: dir}, nil
}

func (r *FileCredentialRepository) Dir() string { return r.dir }

func (r *FileCredentialRepository) path(p model.PlatformID) string {
	return filepath.Join(r.dir, string(p)+".json")
}

func (r *FileCredentialRepository) read(p model.PlatformID) (*model.CredentialRecord, error) {
	b, err := os.ReadFile(r.path(p))
	if errors.Is(err, os.ErrNotExist) {
		return nil, repository.ErrCredentialNotFound
	}
	if err != nil {
		return nil, err
	}
	var rec model.CredentialRecord
	if err := json.Unmarshal(b, &rec); err != nil {
		return nil, fmt.Errorf("decode %s: %w", r.path(p), err)
	}
	if rec.PlatformID == "" {
		rec.PlatformID = p
	}
	return &rec, nil
}

func (r *FileCredentialRepository) write(rec *model.CredentialRecord) error {
	b, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(r.dir, string(rec.PlatformID)+"-*.tmp")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(b); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := os.Chmod(tmp.Name(), 0o600); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), r.path(rec.PlatformID))
}

func (r *FileCredentialRepository) Get(ctx context.Context, platform model.PlatformID) (*model.CredentialRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.read(platform)
}

func (r *FileCredentialRepository) List(ctx context.Context) ([]*model.CredentialRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entries, err := os.ReadDir(r.dir)
	if err != nil {
		return nil, err
	}
	var out []*model.CredentialRecord
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		rec, err := r.read(model.PlatformID(strings.TrimSuffix(e.Name(), ".json")))
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PlatformID < out[j].PlatformID })
	return out, nil
}

func (r *FileCredentialRepository) Put(ctx context.Context, rec *model.CredentialRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	var prev int64
	if cur, err := r.read(rec.PlatformID); err == nil {
		prev = cur.Version
	} else if !errors.Is(err, repository.ErrCredentialNotFound) {
		return err
	}
	rec.Version = prev + 1
	return r.write(rec)
}

func (r *FileCredentialRepository) CompareAndSwap(ctx context.Context, rec *model.CredentialRecord, expectedVersion int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	var cur int64
	if existing, err := r.read(rec.PlatformID); err == nil {
		cur = existing.Version
	} else if !errors.Is(err, repository.ErrCredentialNotFound) {
		return err
	}
	if cur != expectedVersion {
		return repository.ErrVersionConflict
	}
	rec.Version = expectedVersion + 1
	return r.write(rec)
}
