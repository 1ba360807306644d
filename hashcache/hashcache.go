// Package hashcache memoizes perceptual hash computations in a persistent store.
package hashcache

import (
	"context"

	"imagemanager/database"
	"imagemanager/types"
	"imagemanager/utils"

	"github.com/pkg/errors"
)

// Store is a persistent key-value map of hash results.
// Writes never overwrite: the first value stored for a key wins.
type Store interface {
	Get(ctx context.Context, key types.HashKey) (types.HashValue, bool, error)
	PutIfAbsent(ctx context.Context, key types.HashKey, value types.HashValue, tag string) (types.HashValue, error)
	Close() error
}

// Maintainer is implemented by stores that support tag-level maintenance
type Maintainer interface {
	Stats(ctx context.Context) (*database.CacheStats, error)
	EvictTag(ctx context.Context, tag string) (int64, error)
}

// Opener opens a fresh store handle. Each worker opens its own.
type Opener func(ctx context.Context) (Store, error)

// NewOpener prepares the cache at location and returns an opener for it.
// A redis:// or rediss:// location selects the redis store, anything else is
// a directory holding a sqlite file.
func NewOpener(location string) (Opener, error) {
	if utils.IsRedisLocation(location) {
		return func(ctx context.Context) (Store, error) {
			s, err := database.OpenRedisStore(ctx, location)
			if err != nil {
				return nil, &CacheUnavailableError{Location: location, Err: err}
			}
			return s, nil
		}, nil
	}

	db, err := database.InitDatabase(location)
	if err != nil {
		return nil, &CacheUnavailableError{Location: location, Err: err}
	}
	if err := db.Close(); err != nil {
		return nil, &CacheUnavailableError{Location: location, Err: err}
	}

	return func(ctx context.Context) (Store, error) {
		s, err := database.OpenSQLiteStore(location)
		if err != nil {
			return nil, &CacheUnavailableError{Location: location, Err: err}
		}
		return s, nil
	}, nil
}

// ComputeFunc produces a hash value on a cache miss
type ComputeFunc func() (types.HashValue, error)

// Client wraps a store handle with compute-or-fetch semantics
type Client struct {
	store Store
}

// NewClient wraps store
func NewClient(store Store) *Client {
	return &Client{store: store}
}

// Open opens a store handle through opener and wraps it
func Open(ctx context.Context, opener Opener) (*Client, error) {
	store, err := opener(ctx)
	if err != nil {
		var unavailable *CacheUnavailableError
		if errors.As(err, &unavailable) {
			return nil, err
		}
		return nil, &CacheUnavailableError{Err: err}
	}
	return NewClient(store), nil
}

// GetOrCompute returns the cached value for key. On a miss it calls compute,
// stores the result under tag and returns the value held by the store, which
// may be a concurrent writer's value. Errors from compute are returned as is;
// store failures are returned as CacheUnavailableError.
func (c *Client) GetOrCompute(ctx context.Context, key types.HashKey, tag string, compute ComputeFunc) (types.HashValue, bool, error) {
	v, ok, err := c.store.Get(ctx, key)
	if err != nil {
		return "", false, &CacheUnavailableError{Err: err}
	}
	if ok {
		return v, true, nil
	}

	computed, err := compute()
	if err != nil {
		return "", false, err
	}

	stored, err := c.store.PutIfAbsent(ctx, key, computed, tag)
	if err != nil {
		return "", false, &CacheUnavailableError{Err: err}
	}
	return stored, false, nil
}

// Close releases the underlying store handle
func (c *Client) Close() error {
	return c.store.Close()
}
