package repository

import (
	"context"
	"errors"

	"multipost/domain/model"
)

var ErrDuplicateOutcome = errors.New("outcome already recorded for request and platform")

// IOutcomeStore is an append-only log keyed by (request_id, platform_id).
// List methods return outcomes in chronological order.
type IOutcomeStore interface {
	Append(ctx context.Context, outcome *model.PublishOutcome) error
	ListByRequest(ctx context.Context, requestID string) ([]*model.PublishOutcome, error)
	ListByPlatform(ctx context.Context, platform model.PlatformID) ([]*model.PublishOutcome, error)
}

// IPublishNotifier receives pipeline progress as it happens.
type IPublishNotifier interface {
	StateChanged(ctx context.Context, change model.StateChange)
	OutcomeRecorded(ctx context.Context, outcome model.PublishOutcome)
}
