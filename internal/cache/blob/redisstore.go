package blob

import (
	"context"
	"fmt"

	"github.com/itmlab/anchorserve/pkg/errors"
	pkgredis "github.com/itmlab/anchorserve/pkg/redis"
)

const redisKeyPrefix = "anchorserve:blob:"

// RedisStore implements Store over Redis. Entries are written without TTL so
// they behave like the file backend: they persist until deleted out of band.
type RedisStore struct {
	client *pkgredis.Client
}

// NewRedisStore wraps an existing Redis client.
func NewRedisStore(client *pkgredis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Get(ctx context.Context, name string) ([]byte, error) {
	data, err := s.client.GetBytes(ctx, redisKeyPrefix+name)
	if err != nil {
		if pkgredis.IsNilError(err) {
			return nil, fmt.Errorf("%w: %s", errors.ErrCacheMiss, name)
		}
		return nil, fmt.Errorf("reading cache entry %s: %w", name, err)
	}
	return data, nil
}

func (s *RedisStore) Put(ctx context.Context, name string, data []byte) error {
	if err := s.client.Set(ctx, redisKeyPrefix+name, data, 0); err != nil {
		return fmt.Errorf("writing cache entry %s: %w", name, err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, name string) error {
	if err := s.client.Del(ctx, redisKeyPrefix+name); err != nil {
		return fmt.Errorf("deleting cache entry %s: %w", name, err)
	}
	return nil
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx)
}
