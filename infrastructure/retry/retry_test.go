package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"multipost/domain/model"
)

func noSleep(ctx context.Context, d time.Duration) error { return ctx.Err() }

func TestPolicy_Do_SucceedsAfterTransientFailures(t *testing.T) {
	p := NewPolicy(Config{MaxAttempts: 3}).WithSleeper(noSleep)
	calls := 0
	attempts, err := p.Do(context.Background(), func(ctx context.Context, attempt int) error {
		calls++
		if calls < 3 {
			return model.NewTransientError(model.PlatformYouTube, errors.New("503"))
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
	assert.Equal(t, 3, calls)
}

func TestPolicy_Do_StopsAtCap(t *testing.T) {
	p := NewPolicy(Config{MaxAttempts: 3}).WithSleeper(noSleep)
	attempts, err := p.Do(context.Background(), func(ctx context.Context, attempt int) error {
		return model.NewTransientError(model.PlatformTikTok, errors.New("reset"))
	})
	require.Error(t, err)
	assert.Equal(t, 3, attempts)
	assert.True(t, errors.Is(err, model.ErrTransientNetwork))
}

func TestPolicy_Do_NoRetryOnPermanentErrors(t *testing.T) {
	p := NewPolicy(Config{MaxAttempts: 5}).WithSleeper(noSleep)
	for _, e := range []error{
		model.NewRejectedError(model.PlatformFacebook, "policy", nil),
		model.NewValidationError(model.PlatformFacebook, "title"),
		model.NewAuthError(model.PlatformFacebook, model.AuthReasonRevoked, nil),
		errors.New("unclassified"),
	} {
		attempts, err := p.Do(context.Background(), func(ctx context.Context, attempt int) error { return e })
		assert.Equal(t, 1, attempts)
		assert.Equal(t, e, err)
	}
}

func TestPolicy_Do_ContextCancelledBetweenAttempts(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := NewPolicy(Config{MaxAttempts: 5, InitialDelay: time.Hour})
	attempts, err := p.Do(ctx, func(ctx context.Context, attempt int) error {
		cancel()
		return model.NewTransientError(model.PlatformYouTube, errors.New("timeout"))
	})
	assert.Equal(t, 1, attempts)
	assert.True(t, model.IsRetryable(err))
}

func TestApplyJitter_StaysWithinTenPercent(t *testing.T) {
	for i := 0; i < 100; i++ {
		d := applyJitter(time.Second)
		assert.GreaterOrEqual(t, d, 900*time.Millisecond)
		assert.LessOrEqual(t, d, 1100*time.Millisecond)
	}
}
