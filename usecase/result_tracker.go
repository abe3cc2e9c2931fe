package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"multipost/domain/model"
	"multipost/domain/repository"
)

type IResultTracker interface {
	Record(ctx context.Context, outcome *model.PublishOutcome) error
	HistoryByRequest(ctx context.Context, requestID string) ([]*model.PublishOutcome, error)
	HistoryByPlatform(ctx context.Context, platform model.PlatformID) ([]*model.PublishOutcome, error)
}

// ResultTracker serializes appends to the outcome store and rejects a second
// outcome for the same (request, platform).
type ResultTracker struct {
	mu    sync.Mutex
	store repository.IOutcomeStore
}

func NewResultTracker(store repository.IOutcomeStore) *ResultTracker {
	return &ResultTracker{store: store}
}

func (t *ResultTracker) Record(ctx context.Context, outcome *model.PublishOutcome) error {
	if outcome == nil || outcome.RequestID == "" || outcome.PlatformID == "" {
		return errors.New("outcome requires request_id and platform_id")
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	existing, err := t.store.ListByRequest(ctx, outcome.RequestID)
	if err != nil {
		return fmt.Errorf("check existing outcomes: %w", err)
	}
	for _, o := range existing {
		if o.PlatformID == outcome.PlatformID {
			return repository.ErrDuplicateOutcome
		}
	}
	if err := t.store.Append(ctx, outcome); err != nil {
		return fmt.Errorf("append outcome: %w", err)
	}
	return nil
}

func (t *ResultTracker) HistoryByRequest(ctx context.Context, requestID string) ([]*model.PublishOutcome, error) {
	return t.store.ListByRequest(ctx, requestID)
}

func (t *ResultTracker) HistoryByPlatform(ctx context.Context, platform model.PlatformID) ([]*model.PublishOutcome, error) {
	return t.store.ListByPlatform(ctx, platform)
}
