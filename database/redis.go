package database

import (
	"context"
	"time"

	"imagemanager/types"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

const (
	redisKeyPrefix = "imagemanager:hash:"
	redisTagPrefix = "imagemanager:tag:"
	redisTagsKey   = "imagemanager:tags"
	pingTimeout    = 5 * time.Second
	evictBatchSize = 500
)

// RedisStore is a hash cache backed by a redis server
type RedisStore struct {
	url    string
	client *redis.Client
}

// OpenRedisStore connects to the redis server at url and checks it is reachable
func OpenRedisStore(ctx context.Context, url string) (*RedisStore, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, errors.Wrapf(err, "parse redis url")
	}
	client := redis.NewClient(opt)

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, errors.Wrapf(err, "ping redis %s", opt.Addr)
	}
	return &RedisStore{url: url, client: client}, nil
}

func redisKey(key types.HashKey) string {
	return redisKeyPrefix + key.String()
}

// Get looks up a cached hash value
func (s *RedisStore) Get(ctx context.Context, key types.HashKey) (types.HashValue, bool, error) {
	v, err := s.client.Get(ctx, redisKey(key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, errors.Wrapf(err, "lookup %s", key.Image)
	}
	return types.HashValue(v), true, nil
}

// PutIfAbsent stores value with SETNX and returns the value that ends up stored
func (s *RedisStore) PutIfAbsent(ctx context.Context, key types.HashKey, value types.HashValue, tag string) (types.HashValue, error) {
	k := redisKey(key)

	var setnx *redis.BoolCmd
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		setnx = pipe.SetNX(ctx, k, string(value), 0)
		pipe.SAdd(ctx, redisTagPrefix+tag, k)
		pipe.SAdd(ctx, redisTagsKey, tag)
		return nil
	})
	if err != nil {
		return "", errors.Wrapf(err, "store hash for %s", key.Image)
	}
	if setnx.Val() {
		return value, nil
	}

	stored, ok, err := s.Get(ctx, key)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", errors.Errorf("hash for %s vanished after insert", key.Image)
	}
	return stored, nil
}

// Stats counts entries per tag
func (s *RedisStore) Stats(ctx context.Context) (*CacheStats, error) {
	tags, err := s.client.SMembers(ctx, redisTagsKey).Result()
	if err != nil {
		return nil, errors.Wrap(err, "failed to list cache tags")
	}

	stats := &CacheStats{Location: s.url, ByTag: map[string]int64{}}
	for _, tag := range tags {
		n, err := s.client.SCard(ctx, redisTagPrefix+tag).Result()
		if err != nil {
			return nil, errors.Wrapf(err, "failed to count tag %s", tag)
		}
		stats.ByTag[tag] = n
		stats.Total += n
	}
	return stats, nil
}

// EvictTag deletes every entry stored under tag and returns how many were removed
func (s *RedisStore) EvictTag(ctx context.Context, tag string) (int64, error) {
	tagKey := redisTagPrefix + tag
	keys, err := s.client.SMembers(ctx, tagKey).Result()
	if err != nil {
		return 0, errors.Wrapf(err, "list entries for tag %s", tag)
	}

	var removed int64
	for start := 0; start < len(keys); start += evictBatchSize {
		end := start + evictBatchSize
		if end > len(keys) {
			end = len(keys)
		}
		n, err := s.client.Del(ctx, keys[start:end]...).Result()
		if err != nil {
			return removed, errors.Wrapf(err, "evict tag %s", tag)
		}
		removed += n
	}

	if err := s.client.Del(ctx, tagKey).Err(); err != nil {
		return removed, errors.Wrapf(err, "drop tag index %s", tag)
	}
	if err := s.client.SRem(ctx, redisTagsKey, tag).Err(); err != nil {
		return removed, errors.Wrapf(err, "drop tag %s", tag)
	}
	return removed, nil
}

// Close releases the connection pool
func (s *RedisStore) Close() error {
	return s.client.Close()
}
