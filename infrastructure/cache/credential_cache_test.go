package cache_test

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"multipost/domain/model"
	"multipost/domain/repository"
	"multipost/infrastructure/cache"
)

// newTestCache needs a reachable redis (REDIS_ADDR, default localhost:6379)
// and skips otherwise.
func newTestCache(t *testing.T) *cache.CredentialCache {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	client, err := cache.NewCache(ctx, addr, "", "", 0)
	if err != nil {
		t.Skipf("redis not available: %v", err)
	}
	prefix := fmt.Sprintf("multipost-test:%s:", uuid.NewString())
	t.Cleanup(func() {
		keys, _ := client.Keys(context.Background(), prefix+"*").Result()
		if len(keys) > 0 {
			client.Del(context.Background(), keys...)
		}
		_ = client.Close()
	})
	return cache.NewCredentialCache(client, prefix)
}

func TestNewCache_Unreachable(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	client, err := cache.NewCache(ctx, "127.0.0.1:1", "", "", 0)
	assert.Error(t, err)
	assert.IsType(t, &redis.Client{}, client)
}

func TestCredentialCache_PutGetList(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	_, err := c.Get(ctx, model.PlatformYouTube)
	require.ErrorIs(t, err, repository.ErrCredentialNotFound)

	rec := &model.CredentialRecord{PlatformID: model.PlatformYouTube, AccessToken: "a", Identifiers: map[string]string{"channel_id": "UC1"}}
	require.NoError(t, c.Put(ctx, rec))
	assert.Equal(t, int64(1), rec.Version)
	require.NoError(t, c.Put(ctx, &model.CredentialRecord{PlatformID: model.PlatformFacebook, AccessToken: "f"}))

	got, err := c.Get(ctx, model.PlatformYouTube)
	require.NoError(t, err)
	assert.Equal(t, "a", got.AccessToken)
	assert.Equal(t, "UC1", got.Identifier("channel_id"))

	all, err := c.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, model.PlatformFacebook, all[0].PlatformID)
}

func TestCredentialCache_CompareAndSwap(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	first := &model.CredentialRecord{PlatformID: model.PlatformTikTok, AccessToken: "v1"}
	require.NoError(t, c.CompareAndSwap(ctx, first, 0))
	assert.Equal(t, int64(1), first.Version)

	require.ErrorIs(t, c.CompareAndSwap(ctx, &model.CredentialRecord{PlatformID: model.PlatformTikTok, AccessToken: "stale"}, 0), repository.ErrVersionConflict)

	second := &model.CredentialRecord{PlatformID: model.PlatformTikTok, AccessToken: "v2"}
	require.NoError(t, c.CompareAndSwap(ctx, second, 1))
	assert.Equal(t, int64(2), second.Version)
}

func TestCredentialCache_ConcurrentCASSingleWinner(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()
	require.NoError(t, c.Put(ctx, &model.CredentialRecord{PlatformID: model.PlatformYouTube, AccessToken: "base"}))

	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			err := c.CompareAndSwap(ctx, &model.CredentialRecord{PlatformID: model.PlatformYouTube, AccessToken: fmt.Sprint(i)}, 1)
			if err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 1, wins)

	got, err := c.Get(ctx, model.PlatformYouTube)
	require.NoError(t, err)
	assert.Equal(t, int64(2), got.Version)
}
