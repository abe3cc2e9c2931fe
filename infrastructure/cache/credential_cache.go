package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"multipost/domain/model"
	"multipost/domain/repository"

	"github.com/redis/go-redis/v9"
)

const casAttempts = 5

// CredentialCache is a credential store on redis. Each record is a JSON string
// under <prefix>credential:<platform>; a set indexes the stored platforms.
// Writes use WATCH/MULTI so a concurrent writer aborts the transaction.
type CredentialCache struct {
	client *redis.Client
	prefix string
}

func NewCredentialCache(client *redis.Client, prefix string) *CredentialCache {
	return &CredentialCache{client: client, prefix: prefix}
}

func (c *CredentialCache) key(p model.PlatformID) string {
	return c.prefix + "credential:" + string(p)
}

func (c *CredentialCache) indexKey() string {
	return c.prefix + "credentials"
}

func (c *CredentialCache) Get(ctx context.Context, platform model.PlatformID) (*model.CredentialRecord, error) {
	return c.get(ctx, c.client, platform)
}

func (c *CredentialCache) get(ctx context.Context, cmd redis.Cmdable, platform model.PlatformID) (*model.CredentialRecord, error) {
	raw, err := cmd.Get(ctx, c.key(platform)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, repository.ErrCredentialNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get credential %s: %w", platform, err)
	}
	var rec model.CredentialRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("decode credential %s: %w", platform, err)
	}
	return &rec, nil
}

func (c *CredentialCache) List(ctx context.Context) ([]*model.CredentialRecord, error) {
	members, err := c.client.SMembers(ctx, c.indexKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("list credentials: %w", err)
	}
	sort.Strings(members)
	out := make([]*model.CredentialRecord, 0, len(members))
	for _, m := range members {
		rec, err := c.Get(ctx, model.PlatformID(m))
		if errors.Is(err, repository.ErrCredentialNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

func (c *CredentialCache) Put(ctx context.Context, rec *model.CredentialRecord) error {
	return c.update(ctx, rec, func(current *model.CredentialRecord) error { return nil })
}

func (c *CredentialCache) CompareAndSwap(ctx context.Context, rec *model.CredentialRecord, expectedVersion int64) error {
	return c.update(ctx, rec, func(current *model.CredentialRecord) error {
		var version int64
		if current != nil {
			version = current.Version
		}
		if version != expectedVersion {
			return repository.ErrVersionConflict
		}
		return nil
	})
}

// update writes rec with version current+1 when check passes. Aborted
// transactions are retried; a failed check is returned as is.
func (c *CredentialCache) update(ctx context.Context, rec *model.CredentialRecord, check func(current *model.CredentialRecord) error) error {
	key := c.key(rec.PlatformID)
	for i := 0; i < casAttempts; i++ {
		var written model.CredentialRecord
		err := c.client.Watch(ctx, func(tx *redis.Tx) error {
			current, err := c.get(ctx, tx, rec.PlatformID)
			if err != nil && !errors.Is(err, repository.ErrCredentialNotFound) {
				return err
			}
			if err := check(current); err != nil {
				return err
			}
			written = *rec.Clone()
			written.Version = 1
			if current != nil {
				written.Version = current.Version + 1
			}
			raw, err := json.Marshal(&written)
			if err != nil {
				return fmt.Errorf("encode credential: %w", err)
			}
			_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
				p.Set(ctx, key, raw, 0)
				p.SAdd(ctx, c.indexKey(), string(rec.PlatformID))
				return nil
			})
			return err
		}, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return err
		}
		rec.Version = written.Version
		return nil
	}
	return repository.ErrVersionConflict
}
