package persistence

import (
	"context"
	"sort"
	"sync"

	"multipost/domain/model"
	"multipost/domain/repository"
)

// MemoryCredentialRepository keeps credentials in process memory. Used by tests
// and by the serve command when no durable backend is configured.
type MemoryCredentialRepository struct {
	mu      sync.RWMutex
	records map[model.PlatformID]*model.CredentialRecord
}

func NewMemoryCredentialRepository() *MemoryCredentialRepository {
	return &MemoryCredentialRepository{records: make(map[model.PlatformID]*model.CredentialRecord)}
}

func (r *MemoryCredentialRepository) Get(ctx context.Context, platform model.PlatformID) (*model.CredentialRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.records[platform]
	if !ok {
		return nil, repository.ErrCredentialNotFound
	}
	return rec.Clone(), nil
}

func (r *MemoryCredentialRepository) List(ctx context.Context) ([]*model.CredentialRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*model.CredentialRecord, 0, len(r.records))
	for _, rec := range r.records {
		out = append(out, rec.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PlatformID < out[j].PlatformID })
	return out, nil
}

func (r *MemoryCredentialRepository) Put(ctx context.Context, rec *model.CredentialRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	var prev int64
	if cur, ok := r.records[rec.PlatformID]; ok {
		prev = cur.Version
	}
	rec.Version = prev + 1
	r.records[rec.PlatformID] = rec.Clone()
	return nil
}

func (r *MemoryCredentialRepository) CompareAndSwap(ctx context.Context, rec *model.CredentialRecord, expectedVersion int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	var cur int64
	if existing, ok := r.records[rec.PlatformID]; ok {
		cur = existing.Version
	}
	if cur != expectedVersion {
		return repository.ErrVersionConflict
	}
	rec.Version = expectedVersion + 1
	r.records[rec.PlatformID] = rec.Clone()
	return nil
}

// MemoryOutcomeRepository is an append-only in-memory outcome log.
type MemoryOutcomeRepository struct {
	mu       sync.RWMutex
	outcomes []model.PublishOutcome
}

func NewMemoryOutcomeRepository() *MemoryOutcomeRepository {
	return &MemoryOutcomeRepository{}
}

func (r *MemoryOutcomeRepository) Append(ctx context.Context, outcome *model.PublishOutcome) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, o := range r.outcomes {
		if o.RequestID == outcome.RequestID && o.PlatformID == outcome.PlatformID {
			return repository.ErrDuplicateOutcome
		}
	}
	r.outcomes = append(r.outcomes, copyOutcome(*outcome))
	return nil
}

func (r *MemoryOutcomeRepository) ListByRequest(ctx context.Context, requestID string) ([]*model.PublishOutcome, error) {
	return r.filter(func(o model.PublishOutcome) bool { return o.RequestID == requestID }), nil
}

func (r *MemoryOutcomeRepository) ListByPlatform(ctx context.Context, platform model.PlatformID) ([]*model.PublishOutcome, error) {
	return r.filter(func(o model.PublishOutcome) bool { return o.PlatformID == platform }), nil
}

// filter returns matches in append order, which is chronological.
func (r *MemoryOutcomeRepository) filter(match func(model.PublishOutcome) bool) []*model.PublishOutcome {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*model.PublishOutcome, 0)
	for _, o := range r.outcomes {
		if match(o) {
			c := copyOutcome(o)
			out = append(out, &c)
		}
	}
	return out
}

func copyOutcome(o model.PublishOutcome) model.PublishOutcome {
	if o.Warnings != nil {
		o.Warnings = append([]string(nil), o.Warnings...)
	}
	return o
}
