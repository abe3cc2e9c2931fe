package usecase_test

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"multipost/domain/model"
	"multipost/domain/repository"
	"multipost/infrastructure/persistence"
	"multipost/usecase"
)

func TestResultTracker_RejectsDuplicates(t *testing.T) {
	tracker := usecase.NewResultTracker(persistence.NewMemoryOutcomeRepository())
	ctx := context.Background()

	o := &model.PublishOutcome{RequestID: "r1", PlatformID: model.PlatformYouTube, Status: model.OutcomeSuccess}
	require.NoError(t, tracker.Record(ctx, o))
	require.ErrorIs(t, tracker.Record(ctx, o), repository.ErrDuplicateOutcome)
	require.Error(t, tracker.Record(ctx, &model.PublishOutcome{PlatformID: model.PlatformYouTube}))

	history, err := tracker.HistoryByRequest(ctx, "r1")
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func TestResultTracker_ConcurrentRecords(t *testing.T) {
	tracker := usecase.NewResultTracker(persistence.NewMemoryOutcomeRepository())
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 30; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			// every request is recorded twice; exactly one must stick
			o := &model.PublishOutcome{RequestID: fmt.Sprintf("r%d", i%15), PlatformID: model.PlatformTikTok}
			_ = tracker.Record(ctx, o)
		}()
	}
	wg.Wait()

	history, err := tracker.HistoryByPlatform(ctx, model.PlatformTikTok)
	require.NoError(t, err)
	assert.Len(t, history, 15)
}
