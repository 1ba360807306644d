package hashcache

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"imagemanager/types"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var coarse = types.Algorithm{Name: types.AlgorithmAverage, HashSize: 8}

type failingStore struct{}

func (failingStore) Get(context.Context, types.HashKey) (types.HashValue, bool, error) {
	return "", false, errors.New("disk I/O error")
}

func (failingStore) PutIfAbsent(context.Context, types.HashKey, types.HashValue, string) (types.HashValue, error) {
	return "", errors.New("disk I/O error")
}

func (failingStore) Close() error { return nil }

func openTestClient(t *testing.T) (Opener, *Client) {
	t.Helper()
	opener, err := NewOpener(t.TempDir())
	require.NoError(t, err)
	client, err := Open(context.Background(), opener)
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	return opener, client
}

func TestGetOrComputeMemoizes(t *testing.T) {
	_, client := openTestClient(t)
	ctx := context.Background()
	key := types.NewHashKey(coarse, "/img/a.png", "")

	var calls int32
	compute := func() (types.HashValue, error) {
		atomic.AddInt32(&calls, 1)
		return "ahash:ff00", nil
	}

	v, cached, err := client.GetOrCompute(ctx, key, coarse.Tag(), compute)
	require.NoError(t, err)
	assert.False(t, cached)
	assert.Equal(t, types.HashValue("ahash:ff00"), v)

	v, cached, err = client.GetOrCompute(ctx, key, coarse.Tag(), compute)
	require.NoError(t, err)
	assert.True(t, cached)
	assert.Equal(t, types.HashValue("ahash:ff00"), v)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestGetOrComputeSurvivesReopen(t *testing.T) {
	opener, client := openTestClient(t)
	ctx := context.Background()
	key := types.NewHashKey(coarse, "/img/a.png", "")

	_, _, err := client.GetOrCompute(ctx, key, coarse.Tag(), func() (types.HashValue, error) { return "ahash:01", nil })
	require.NoError(t, err)

	other, err := Open(ctx, opener)
	require.NoError(t, err)
	defer other.Close()

	v, cached, err := other.GetOrCompute(ctx, key, coarse.Tag(), func() (types.HashValue, error) {
		t.Fatal("compute must not run for a cached key")
		return "", nil
	})
	require.NoError(t, err)
	assert.True(t, cached)
	assert.Equal(t, types.HashValue("ahash:01"), v)
}

func TestGetOrComputeComputeErrorNotStored(t *testing.T) {
	_, client := openTestClient(t)
	ctx := context.Background()
	key := types.NewHashKey(coarse, "/img/broken.png", "")
	decodeErr := errors.New("unexpected EOF")

	_, _, err := client.GetOrCompute(ctx, key, coarse.Tag(), func() (types.HashValue, error) { return "", decodeErr })
	assert.Equal(t, decodeErr, err)

	v, cached, err := client.GetOrCompute(ctx, key, coarse.Tag(), func() (types.HashValue, error) { return "ahash:02", nil })
	require.NoError(t, err)
	assert.False(t, cached)
	assert.Equal(t, types.HashValue("ahash:02"), v)
}

func TestGetOrComputeConcurrentWritersConverge(t *testing.T) {
	opener, _ := openTestClient(t)
	ctx := context.Background()
	key := types.NewHashKey(coarse, "/img/race.png", "")

	const workers = 6
	results := make([]types.HashValue, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c, err := Open(ctx, opener)
			if !assert.NoError(t, err) {
				return
			}
			defer c.Close()
			v, _, err := c.GetOrCompute(ctx, key, coarse.Tag(), func() (types.HashValue, error) {
				return types.HashValue("ahash:" + strings.Repeat("0", i+1)), nil
			})
			assert.NoError(t, err)
			results[i] = v
		}(i)
	}
	wg.Wait()

	for _, v := range results {
		assert.Equal(t, results[0], v)
	}
}

func TestGetOrComputeStoreFailureIsUnavailable(t *testing.T) {
	client := NewClient(failingStore{})
	_, _, err := client.GetOrCompute(context.Background(), types.NewHashKey(coarse, "/a", ""), coarse.Tag(),
		func() (types.HashValue, error) { return "ahash:00", nil })

	var unavailable *CacheUnavailableError
	assert.True(t, errors.As(err, &unavailable))
}

func TestNewOpenerUnusableLocation(t *testing.T) {
	file := filepath.Join(t.TempDir(), "not-a-dir")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))

	_, err := NewOpener(file)
	var unavailable *CacheUnavailableError
	require.True(t, errors.As(err, &unavailable))
	assert.Equal(t, file, unavailable.Location)
}

func TestRedisOpenerUnreachable(t *testing.T) {
	opener, err := NewOpener("redis://127.0.0.1:1/0")
	require.NoError(t, err)

	_, err = Open(context.Background(), opener)
	var unavailable *CacheUnavailableError
	assert.True(t, errors.As(err, &unavailable))
}

func TestDigestAlgorithms(t *testing.T) {
	content := []byte("not really a png")

	tests := []struct {
		algo   DigestAlgorithm
		prefix string
		hexLen int
	}{
		{DigestMD5, "md5:", 32},
		{DigestMurmur3, "murmur3:", 32},
		{DigestXXHash, "xxhash:", 16},
	}

	for _, tt := range tests {
		t.Run(string(tt.algo), func(t *testing.T) {
			d1, err := tt.algo.Digest(bytes.NewReader(content))
			require.NoError(t, err)
			d2, err := tt.algo.Digest(bytes.NewReader(content))
			require.NoError(t, err)
			other, err := tt.algo.Digest(bytes.NewReader(append(content, '!')))
			require.NoError(t, err)

			assert.Equal(t, d1, d2)
			assert.NotEqual(t, d1, other)
			assert.True(t, strings.HasPrefix(string(d1), tt.prefix))
			assert.Len(t, strings.TrimPrefix(string(d1), tt.prefix), tt.hexLen)
		})
	}
}

func TestDigestMD5KnownValue(t *testing.T) {
	d, err := DigestMD5.Digest(strings.NewReader(""))
	require.NoError(t, err)
	assert.Equal(t, types.ContentDigest("md5:d41d8cd98f00b204e9800998ecf8427e"), d)
}

func TestDigestFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a.bin")
	require.NoError(t, os.WriteFile(path, []byte("abc"), 0o644))

	d, err := DigestFile(path, DigestMD5)
	require.NoError(t, err)
	assert.Equal(t, types.ContentDigest("md5:900150983cd24fb0d6963f7d28e17f72"), d)

	_, err = DigestFile(filepath.Join(t.TempDir(), "missing"), DigestMD5)
	assert.Error(t, err)
}

func TestParseDigestAlgorithm(t *testing.T) {
	a, err := ParseDigestAlgorithm("XXHash")
	require.NoError(t, err)
	assert.Equal(t, DigestXXHash, a)

	_, err = ParseDigestAlgorithm("sha512")
	assert.Error(t, err)
}
