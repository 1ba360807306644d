package finder

import (
	"context"

	"imagemanager/hashcache"
	"imagemanager/imageprocessor"
	"imagemanager/types"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// worker carries everything one pool worker needs. The cache handle is opened
// on first use and belongs to this worker alone.
type worker struct {
	id     int
	open   hashcache.Opener
	client *hashcache.Client
	owned  bool
	hasher imageprocessor.Hasher
	verify bool
	digest hashcache.DigestAlgorithm
	log    *logrus.Entry
}

func (w *worker) cache(ctx context.Context) (*hashcache.Client, error) {
	if w.client != nil {
		return w.client, nil
	}
	if w.open == nil {
		return nil, &hashcache.CacheUnavailableError{Err: errors.New("no cache opener configured")}
	}

	client, err := hashcache.Open(ctx, w.open)
	if err != nil {
		return nil, err
	}
	w.log.Debug("opened cache handle")
	w.client = client
	w.owned = true
	return client, nil
}

// close releases the handle if this worker opened one
func (w *worker) close() {
	if w.client == nil || !w.owned {
		return
	}
	if err := w.client.Close(); err != nil {
		w.log.WithError(err).Warn("closing cache handle")
	}
	w.client = nil
	w.owned = false
}

// hash returns the value of image under algo, computing and storing it on a
// miss. The bool reports a cache hit.
func (w *worker) hash(ctx context.Context, image types.ImageRef, algo types.Algorithm) (types.HashValue, bool, error) {
	var digest types.ContentDigest
	if w.verify {
		d, err := hashcache.DigestFile(string(image), w.digest)
		if err != nil {
			return "", false, &imageprocessor.DecodeError{Path: string(image), Err: err}
		}
		digest = d
	}

	client, err := w.cache(ctx)
	if err != nil {
		return "", false, err
	}

	key := types.NewHashKey(algo, image, digest)
	return client.GetOrCompute(ctx, key, algo.Tag(), func() (types.HashValue, error) {
		return w.hasher.Hash(string(image), algo)
	})
}

func isDecodeError(err error) bool {
	var decodeErr *imageprocessor.DecodeError
	return errors.As(err, &decodeErr)
}
